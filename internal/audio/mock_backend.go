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
	"math"
	"sort"
	"sync"
	"time"
)

// Defaults reported by the mock backend when not overridden
const (
	MockSampleRate      = 48000.0
	MockFramesPerBuffer = 192

	// maxRecordedBuffers caps the captured history kept for inspection
	maxRecordedBuffers = 4096
)

// MockAudioBackend implements AudioBackend for testing without hardware dependencies
type MockAudioBackend struct {
	mu                 sync.Mutex
	initialized        bool
	streams            map[string]*MockStream
	streamCounter      int
	initError          error
	terminateError     error
	createInputError   error
	createOutputError  error
	minInputError      error
	minInputSize       int
	sampleRate         float64
	framesPerBuffer    int
	volumeSupported    bool
	simulateRealTiming bool
	inputGenerator     func([]int16)
	playbackAudioData  [][]int16
	recordedAudioData  [][]int16
}

// NewMockAudioBackend creates a new mock audio backend
func NewMockAudioBackend() *MockAudioBackend {
	return &MockAudioBackend{
		streams:            make(map[string]*MockStream),
		sampleRate:         MockSampleRate,
		framesPerBuffer:    MockFramesPerBuffer,
		volumeSupported:    true,
		simulateRealTiming: true,
	}
}

// SetInitError configures the backend to return an error on Initialize()
func (m *MockAudioBackend) SetInitError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initError = err
}

// SetCreateInputError configures the backend to fail input stream creation
func (m *MockAudioBackend) SetCreateInputError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createInputError = err
}

// SetCreateOutputError configures the backend to fail output stream creation
func (m *MockAudioBackend) SetCreateOutputError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createOutputError = err
}

// SetMinInputBufferError simulates a device without a usable microphone
func (m *MockAudioBackend) SetMinInputBufferError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.minInputError = err
}

// SetMinInputBufferSize overrides the probed minimum capture size in bytes.
// Zero restores the default of one buffer.
func (m *MockAudioBackend) SetMinInputBufferSize(size int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.minInputSize = size
}

// SetOutputParameters overrides the reported native output parameters
func (m *MockAudioBackend) SetOutputParameters(sampleRate float64, framesPerBuffer int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sampleRate = sampleRate
	m.framesPerBuffer = framesPerBuffer
}

// SetVolumeSupported controls whether the mock output has volume control
func (m *MockAudioBackend) SetVolumeSupported(supported bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volumeSupported = supported
}

// SetSimulateRealTiming controls whether started streams are driven by a
// wall-clock ticker. When disabled, callers drive callbacks with Pump.
func (m *MockAudioBackend) SetSimulateRealTiming(simulate bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.simulateRealTiming = simulate
}

// SetInputGenerator sets a function that fills every captured buffer
func (m *MockAudioBackend) SetInputGenerator(generator func([]int16)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputGenerator = generator
}

// GetRecordedAudioData returns all buffers handed to input callbacks
func (m *MockAudioBackend) GetRecordedAudioData() [][]int16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([][]int16, len(m.recordedAudioData))
	copy(result, m.recordedAudioData)
	return result
}

// GetPlaybackAudioData returns all buffers produced by output callbacks
func (m *MockAudioBackend) GetPlaybackAudioData() [][]int16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([][]int16, len(m.playbackAudioData))
	copy(result, m.playbackAudioData)
	return result
}

// ResetAudioData clears the recorded input and output buffers
func (m *MockAudioBackend) ResetAudioData() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recordedAudioData = nil
	m.playbackAudioData = nil
}

// OpenStreamCount returns the number of streams created and not yet closed
func (m *MockAudioBackend) OpenStreamCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.streams)
}

// StreamsCreated returns the number of streams ever created
func (m *MockAudioBackend) StreamsCreated() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streamCounter
}

// IsInitialized reports whether Initialize succeeded and Terminate has not run
func (m *MockAudioBackend) IsInitialized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initialized
}

// Initialize initializes the mock audio subsystem
func (m *MockAudioBackend) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initError != nil {
		return m.initError
	}

	m.initialized = true
	return nil
}

// Terminate terminates the mock audio subsystem
func (m *MockAudioBackend) Terminate() error {
	m.mu.Lock()
	if m.terminateError != nil {
		m.mu.Unlock()
		return m.terminateError
	}
	streams := m.sortedStreams()
	// Release the lock before calling Stop/Close to avoid deadlocks
	m.mu.Unlock()

	for _, stream := range streams {
		_ = stream.Stop()  // Ignore errors during cleanup
		_ = stream.Close() // Ignore errors during cleanup
	}

	m.mu.Lock()
	m.initialized = false
	m.mu.Unlock()
	return nil
}

// OutputParameters reports the configured native output parameters
func (m *MockAudioBackend) OutputParameters() (float64, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return 0, 0, fmt.Errorf("mock audio backend not initialized")
	}
	return m.sampleRate, m.framesPerBuffer, nil
}

// MinInputBufferSize reports the configured minimum capture buffer size
func (m *MockAudioBackend) MinInputBufferSize(sampleRate float64, channels int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return 0, fmt.Errorf("mock audio backend not initialized")
	}
	if m.minInputError != nil {
		return 0, m.minInputError
	}
	if m.minInputSize != 0 {
		return m.minInputSize, nil
	}
	return m.framesPerBuffer * channels * 2, nil
}

// SupportsOutputVolume reports the configured volume capability
func (m *MockAudioBackend) SupportsOutputVolume() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.volumeSupported
}

// CreateInputStream creates a mock input stream
func (m *MockAudioBackend) CreateInputStream(sampleRate float64, channels, framesPerBuffer int, callback InputCallback) (StreamInterface, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return nil, fmt.Errorf("mock audio backend not initialized")
	}
	if m.createInputError != nil {
		return nil, m.createInputError
	}

	stream := m.newStream("input", sampleRate, channels, framesPerBuffer)
	stream.isInput = true
	stream.inputCallback = callback
	return stream, nil
}

// CreateOutputStream creates a mock output stream
func (m *MockAudioBackend) CreateOutputStream(sampleRate float64, channels, framesPerBuffer int, callback OutputCallback) (StreamInterface, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return nil, fmt.Errorf("mock audio backend not initialized")
	}
	if m.createOutputError != nil {
		return nil, m.createOutputError
	}

	stream := m.newStream("output", sampleRate, channels, framesPerBuffer)
	stream.outputCallback = callback
	return stream, nil
}

// newStream registers a stream; the caller holds m.mu
func (m *MockAudioBackend) newStream(kind string, sampleRate float64, channels, framesPerBuffer int) *MockStream {
	streamID := fmt.Sprintf("%s_%d", kind, m.streamCounter)
	m.streamCounter++

	stream := &MockStream{
		id:                 streamID,
		backend:            m,
		sampleRate:         sampleRate,
		channels:           channels,
		framesPerBuffer:    framesPerBuffer,
		isOpen:             true,
		simulateRealTiming: m.simulateRealTiming,
		buffer:             make([]int16, framesPerBuffer*channels),
	}
	m.streams[streamID] = stream
	return stream
}

// sortedStreams returns streams with inputs first; the caller holds m.mu
func (m *MockAudioBackend) sortedStreams() []*MockStream {
	streams := make([]*MockStream, 0, len(m.streams))
	for _, stream := range m.streams {
		streams = append(streams, stream)
	}
	sort.Slice(streams, func(i, j int) bool {
		if streams[i].isInput != streams[j].isInput {
			return streams[i].isInput
		}
		return streams[i].id < streams[j].id
	})
	return streams
}

// Pump runs n audio cycles synchronously. In each cycle every active input
// stream delivers one buffer before every active output stream consumes one.
func (m *MockAudioBackend) Pump(n int) {
	for i := 0; i < n; i++ {
		m.mu.Lock()
		streams := m.sortedStreams()
		m.mu.Unlock()

		for _, stream := range streams {
			stream.cycle()
		}
	}
}

// MockStream implements StreamInterface for testing
type MockStream struct {
	mu                 sync.Mutex
	id                 string
	backend            *MockAudioBackend
	sampleRate         float64
	channels           int
	framesPerBuffer    int
	isInput            bool
	isOpen             bool
	isActive           bool
	simulateRealTiming bool
	inputCallback      InputCallback
	outputCallback     OutputCallback
	buffer             []int16
	phase              int
	done               chan struct{}
	startError         error
	stopError          error
	closeError         error
}

// SetStartError configures the stream to return an error on Start()
func (m *MockStream) SetStartError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startError = err
}

// Start starts the mock stream
func (m *MockStream) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.startError != nil {
		return m.startError
	}
	if !m.isOpen {
		return fmt.Errorf("stream not open")
	}
	if m.isActive {
		return fmt.Errorf("stream already active")
	}

	m.isActive = true
	if m.simulateRealTiming {
		m.done = make(chan struct{})
		go m.run(m.done)
	}
	return nil
}

// Stop stops the mock stream
func (m *MockStream) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopError != nil {
		return m.stopError
	}
	if !m.isActive {
		return nil
	}

	m.isActive = false
	if m.done != nil {
		close(m.done)
		m.done = nil
	}
	return nil
}

// Close closes the mock stream
func (m *MockStream) Close() error {
	m.mu.Lock()
	if m.closeError != nil {
		m.mu.Unlock()
		return m.closeError
	}
	if !m.isOpen {
		m.mu.Unlock()
		return nil // Already closed
	}

	m.isOpen = false
	m.isActive = false
	if m.done != nil {
		close(m.done)
		m.done = nil
	}
	m.mu.Unlock()

	m.backend.mu.Lock()
	delete(m.backend.streams, m.id)
	m.backend.mu.Unlock()
	return nil
}

// IsActive returns true if the mock stream is active
func (m *MockStream) IsActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isActive
}

// cycle delivers or consumes one buffer if the stream is active
func (m *MockStream) cycle() {
	m.mu.Lock()
	if !m.isActive {
		m.mu.Unlock()
		return
	}
	buffer := m.buffer
	m.mu.Unlock()

	if m.isInput {
		m.backend.mu.Lock()
		generator := m.backend.inputGenerator
		m.backend.mu.Unlock()

		if generator != nil {
			generator(buffer)
		} else {
			m.generateSine(buffer)
		}
		m.backend.record(&m.backend.recordedAudioData, buffer)
		m.inputCallback(buffer)
		return
	}

	clear(buffer)
	m.outputCallback(buffer)
	m.backend.record(&m.backend.playbackAudioData, buffer)
}

// generateSine fills buffer with a continuous 440 Hz tone
func (m *MockStream) generateSine(buffer []int16) {
	for i := range buffer {
		t := float64(m.phase) / m.sampleRate
		buffer[i] = int16(0.1 * math.MaxInt16 * math.Sin(2*math.Pi*440*t))
		m.phase++
	}
}

// record appends a copy of data to dst under the backend lock
func (m *MockAudioBackend) record(dst *[][]int16, data []int16) {
	dataCopy := make([]int16, len(data))
	copy(dataCopy, data)

	m.mu.Lock()
	*dst = append(*dst, dataCopy)
	if len(*dst) > maxRecordedBuffers {
		*dst = (*dst)[len(*dst)-maxRecordedBuffers:]
	}
	m.mu.Unlock()
}

// run drives the stream from a ticker until done is closed
func (m *MockStream) run(done <-chan struct{}) {
	interval := time.Duration(float64(m.framesPerBuffer) / m.sampleRate * float64(time.Second))
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			m.cycle()
		}
	}
}
