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
	"errors"
	"fmt"
	"sync"
)

// ErrUnsupported reports that the device cannot capture audio at the native
// output rate. It is detected once per session and never retried.
var ErrUnsupported = errors.New("audio capture unsupported on this device")

// SampleFormat identifies the PCM encoding of a stream
type SampleFormat int

const (
	// SampleFormatS16LE is 16-bit signed little-endian PCM
	SampleFormatS16LE SampleFormat = iota
)

func (f SampleFormat) String() string {
	switch f {
	case SampleFormatS16LE:
		return "s16le"
	default:
		return fmt.Sprintf("SampleFormat(%d)", int(f))
	}
}

// BytesPerSample returns the encoded size of one sample
func (f SampleFormat) BytesPerSample() int {
	return 2
}

// StreamConfig describes the stream layout shared by playback and capture.
// It is resolved once per session and not modified afterwards.
type StreamConfig struct {
	SampleRateHz          int
	FramesPerBuffer       int
	Channels              int
	Format                SampleFormat
	MinCaptureBufferBytes int
	CaptureSupported      bool
}

// NewStreamConfig builds a mono 16-bit configuration
func NewStreamConfig(sampleRateHz, framesPerBuffer int) StreamConfig {
	return StreamConfig{
		SampleRateHz:    sampleRateHz,
		FramesPerBuffer: framesPerBuffer,
		Channels:        1,
		Format:          SampleFormatS16LE,
	}
}

// Validate checks the configuration can size audio buffers
func (c StreamConfig) Validate() error {
	if c.SampleRateHz <= 0 {
		return fmt.Errorf("invalid sample rate %d", c.SampleRateHz)
	}
	if c.FramesPerBuffer <= 0 {
		return fmt.Errorf("invalid frames per buffer %d", c.FramesPerBuffer)
	}
	if c.Channels != 1 {
		return fmt.Errorf("unsupported channel count %d", c.Channels)
	}
	return nil
}

// SamplesPerBuffer returns the number of samples in one buffer
func (c StreamConfig) SamplesPerBuffer() int {
	return c.FramesPerBuffer * c.Channels
}

// BufferBytes returns the encoded size of one buffer
func (c StreamConfig) BufferBytes() int {
	return c.SamplesPerBuffer() * c.Format.BytesPerSample()
}

// Resolver discovers the native stream parameters once per session
type Resolver struct {
	backend AudioBackend

	once   sync.Once
	config StreamConfig
	err    error
}

// NewResolver creates a resolver that probes the given backend.
// The backend is initialized on first use; whoever owns the engine context
// is responsible for terminating it.
func NewResolver(backend AudioBackend) *Resolver {
	return &Resolver{backend: backend}
}

// Resolve returns the session's stream configuration. On a device without a
// usable microphone it returns the output-only configuration together with
// ErrUnsupported. The result is computed once and cached.
func (r *Resolver) Resolve() (StreamConfig, error) {
	r.once.Do(func() {
		r.config, r.err = r.resolve()
	})
	return r.config, r.err
}

func (r *Resolver) resolve() (StreamConfig, error) {
	if err := r.backend.Initialize(); err != nil {
		return StreamConfig{}, fmt.Errorf("failed to initialize audio backend: %w", err)
	}

	sampleRate, framesPerBuffer, err := r.backend.OutputParameters()
	if err != nil {
		return StreamConfig{}, fmt.Errorf("failed to query output parameters: %w", err)
	}

	config := NewStreamConfig(int(sampleRate), framesPerBuffer)
	if err := config.Validate(); err != nil {
		return StreamConfig{}, fmt.Errorf("platform reported %w", err)
	}

	minBytes, err := r.backend.MinInputBufferSize(sampleRate, config.Channels)
	if err != nil {
		return config, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	if minBytes <= 0 {
		return config, fmt.Errorf("%w: invalid minimum capture buffer size %d", ErrUnsupported, minBytes)
	}

	config.MinCaptureBufferBytes = minBytes
	config.CaptureSupported = true
	return config, nil
}
