/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

// minFramesPerBuffer bounds the frames derived from a device's reported latency
const minFramesPerBuffer = 64

// PortAudioBackend implements AudioBackend using the real PortAudio library
type PortAudioBackend struct {
	initialized bool
}

// NewPortAudioBackend creates a new PortAudio backend
func NewPortAudioBackend() *PortAudioBackend {
	return &PortAudioBackend{}
}

// Initialize initializes the PortAudio subsystem
func (p *PortAudioBackend) Initialize() error {
	if p.initialized {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	p.initialized = true
	return nil
}

// Terminate terminates the PortAudio subsystem
func (p *PortAudioBackend) Terminate() error {
	if !p.initialized {
		return nil
	}

	err := portaudio.Terminate()
	p.initialized = false
	return err
}

// OutputParameters reports the default output device's native rate and the
// frames per buffer matching its low-latency setting
func (p *PortAudioBackend) OutputParameters() (float64, int, error) {
	if !p.initialized {
		return 0, 0, fmt.Errorf("PortAudio not initialized")
	}

	device, err := portaudio.DefaultOutputDevice()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to query default output device: %w", err)
	}

	return device.DefaultSampleRate, framesForLatency(device.DefaultSampleRate, device.DefaultLowOutputLatency), nil
}

// MinInputBufferSize reports the smallest capture buffer in bytes for 16-bit
// samples, or an error when there is no usable microphone
func (p *PortAudioBackend) MinInputBufferSize(sampleRate float64, channels int) (int, error) {
	if !p.initialized {
		return 0, fmt.Errorf("PortAudio not initialized")
	}

	device, err := portaudio.DefaultInputDevice()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNoInputDevice, err)
	}
	if device.MaxInputChannels < channels {
		return 0, fmt.Errorf("%w: %s has %d input channels", ErrNoInputDevice, device.Name, device.MaxInputChannels)
	}

	frames := framesForLatency(sampleRate, device.DefaultLowInputLatency)
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: channels,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      sampleRate,
		FramesPerBuffer: frames,
	}
	if err := portaudio.IsFormatSupported(params, make([]int16, frames*channels)); err != nil {
		return 0, fmt.Errorf("input format not supported: %w", err)
	}

	return frames * channels * 2, nil
}

// SupportsOutputVolume is always true; gain is applied in software
func (p *PortAudioBackend) SupportsOutputVolume() bool {
	return true
}

// CreateInputStream opens a low-latency input stream on the default device
func (p *PortAudioBackend) CreateInputStream(sampleRate float64, channels, framesPerBuffer int, callback InputCallback) (StreamInterface, error) {
	if !p.initialized {
		return nil, fmt.Errorf("PortAudio not initialized")
	}

	device, err := portaudio.DefaultInputDevice()
	if err != nil {
		return nil, fmt.Errorf("failed to query default input device: %w", err)
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: channels,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      sampleRate,
		FramesPerBuffer: framesPerBuffer,
	}

	stream, err := portaudio.OpenStream(params, func(in []int16) {
		callback(in)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open input stream: %w", err)
	}

	return &PortAudioStream{stream: stream, isInput: true}, nil
}

// CreateOutputStream opens a low-latency output stream on the default device
func (p *PortAudioBackend) CreateOutputStream(sampleRate float64, channels, framesPerBuffer int, callback OutputCallback) (StreamInterface, error) {
	if !p.initialized {
		return nil, fmt.Errorf("PortAudio not initialized")
	}

	device, err := portaudio.DefaultOutputDevice()
	if err != nil {
		return nil, fmt.Errorf("failed to query default output device: %w", err)
	}

	params := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: channels,
			Latency:  device.DefaultLowOutputLatency,
		},
		SampleRate:      sampleRate,
		FramesPerBuffer: framesPerBuffer,
	}

	stream, err := portaudio.OpenStream(params, func(out []int16) {
		callback(out)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open output stream: %w", err)
	}

	return &PortAudioStream{stream: stream}, nil
}

// framesForLatency converts a device latency into an even frame count
func framesForLatency(sampleRate float64, latency time.Duration) int {
	frames := int(sampleRate * latency.Seconds())
	frames -= frames % 2
	if frames < minFramesPerBuffer {
		frames = minFramesPerBuffer
	}
	return frames
}

// PortAudioStream implements StreamInterface using PortAudio streams
type PortAudioStream struct {
	mu      sync.Mutex
	stream  *portaudio.Stream
	isInput bool
	active  bool
	closed  bool
}

// Start starts the audio stream
func (p *PortAudioStream) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream == nil || p.closed {
		return fmt.Errorf("stream is closed")
	}
	if p.active {
		return nil
	}
	if err := p.stream.Start(); err != nil {
		return err
	}
	p.active = true
	return nil
}

// Stop stops the audio stream after pending buffers are played
func (p *PortAudioStream) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream == nil || p.closed || !p.active {
		return nil
	}
	p.active = false
	return p.stream.Stop()
}

// Close closes the audio stream
func (p *PortAudioStream) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream == nil || p.closed {
		return nil
	}
	p.closed = true
	p.active = false
	return p.stream.Close()
}

// IsActive returns true if the stream has been started and not stopped.
// PortAudio doesn't expose this, so we track it ourselves.
func (p *PortAudioStream) IsActive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}
