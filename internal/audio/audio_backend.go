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

import "errors"

// ErrNoInputDevice is returned by backends that cannot find a usable capture device
var ErrNoInputDevice = errors.New("no input device available")

// AudioBackend provides an abstraction layer for audio operations
// This enables dependency injection and makes testing hardware-independent
type AudioBackend interface {
	// Initialize the audio subsystem
	Initialize() error

	// Terminate the audio subsystem
	Terminate() error

	// OutputParameters reports the native output sample rate and frames per buffer
	OutputParameters() (sampleRate float64, framesPerBuffer int, err error)

	// MinInputBufferSize reports the smallest capture buffer, in bytes, that the
	// input device accepts for 16-bit samples at the given rate
	MinInputBufferSize(sampleRate float64, channels int) (int, error)

	// SupportsOutputVolume reports whether output volume can be controlled
	SupportsOutputVolume() bool

	// CreateInputStream creates a callback-driven input stream for recording
	CreateInputStream(sampleRate float64, channels, framesPerBuffer int, callback InputCallback) (StreamInterface, error)

	// CreateOutputStream creates a callback-driven output stream for playback
	CreateOutputStream(sampleRate float64, channels, framesPerBuffer int, callback OutputCallback) (StreamInterface, error)
}

// StreamInterface abstracts audio stream operations
type StreamInterface interface {
	// Start the audio stream
	Start() error

	// Stop the audio stream. Stopping a stopped stream is a no-op.
	Stop() error

	// Close the audio stream and release resources. Closing twice is a no-op.
	Close() error

	// IsActive returns true if the stream is currently active
	IsActive() bool
}

// InputCallback receives one buffer of captured samples.
// It runs on the realtime audio thread and must not block.
type InputCallback func(in []int16)

// OutputCallback fills one buffer of samples for playback.
// It runs on the realtime audio thread and must not block.
type OutputCallback func(out []int16)
