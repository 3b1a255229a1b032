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

package echo

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/loqalabs/loqa-echo-go/internal/audio"
)

// DefaultQueueDepth is the number of buffers between capture and playback
const DefaultQueueDepth = 4

// Stats is a snapshot of realtime counters
type Stats struct {
	BuffersCaptured uint64
	BuffersPlayed   uint64
	Underruns       uint64
	QueueDropped    uint64
	QueueOverruns   uint64
	SinkDropped     uint64
	SinkBytes       uint64
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithQueueDepth sets the playback queue depth
func WithQueueDepth(depth int) EngineOption {
	return func(e *Engine) {
		e.queueDepth = depth
	}
}

// WithLogger sets the logger used by the engine and its paths
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// Engine owns the realtime audio subsystem for one session. It must be
// created before any Player or Recorder and destroyed after both.
type Engine struct {
	backend    audio.AudioBackend
	config     audio.StreamConfig
	queueDepth int
	logger     *slog.Logger

	destroyed bool

	// mu guards the path pointers against Stats readers; writes happen on
	// the control goroutine only.
	mu       sync.Mutex
	player   *Player
	recorder *Recorder
}

// NewEngine initializes the audio subsystem for config
func NewEngine(backend audio.AudioBackend, config audio.StreamConfig, opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		backend:    backend,
		config:     config,
		queueDepth: DefaultQueueDepth,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if err := config.Validate(); err != nil {
		return nil, &Error{Op: "create engine", Kind: KindParameterRejected, Err: err}
	}
	if e.queueDepth < 2 {
		return nil, newError("create engine", KindParameterRejected, "queue depth %d below 2", e.queueDepth)
	}
	if err := backend.Initialize(); err != nil {
		return nil, &Error{Op: "create engine", Kind: KindCreationFailed, Err: err}
	}

	e.logger.Info("engine created",
		"sampleRate", config.SampleRateHz,
		"framesPerBuffer", config.FramesPerBuffer,
		"queueDepth", e.queueDepth,
		"captureSupported", config.CaptureSupported,
	)
	return e, nil
}

// Config returns the stream configuration the engine was created with
func (e *Engine) Config() audio.StreamConfig {
	return e.config
}

// Destroyed reports whether Destroy has completed
func (e *Engine) Destroyed() bool {
	return e.destroyed
}

// ActivePaths returns how many players and recorders are attached
func (e *Engine) ActivePaths() int {
	n := 0
	if e.player != nil {
		n++
	}
	if e.recorder != nil {
		n++
	}
	return n
}

// Destroy releases the audio subsystem. Both paths must already be
// destroyed. Destroying twice is a no-op.
func (e *Engine) Destroy() error {
	if e.destroyed {
		return nil
	}
	if e.ActivePaths() > 0 {
		return newError("destroy engine", KindInvalidState, "%d audio paths still attached", e.ActivePaths())
	}

	e.destroyed = true
	if err := e.backend.Terminate(); err != nil {
		return fmt.Errorf("destroy engine: %w", err)
	}
	e.logger.Info("engine destroyed")
	return nil
}

func (e *Engine) setPlayer(p *Player) {
	e.mu.Lock()
	e.player = p
	e.mu.Unlock()
}

func (e *Engine) setRecorder(r *Recorder) {
	e.mu.Lock()
	e.recorder = r
	e.mu.Unlock()
}

// Stats aggregates counters from the attached paths. It is safe to call
// from any goroutine.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	var s Stats
	if p := e.player; p != nil {
		s.BuffersPlayed = p.played.Load()
		s.Underruns = p.underruns.Load()
		s.QueueDropped = p.queue.Dropped()
		s.QueueOverruns = p.queue.Overruns()
	}
	if r := e.recorder; r != nil {
		s.BuffersCaptured = r.captured.Load()
		s.SinkDropped = r.sink.dropped.Load()
		s.SinkBytes = r.sink.written.Load()
	}
	return s
}

func (e *Engine) checkAlive(op string) error {
	if e.destroyed {
		return newError(op, KindInvalidState, "engine destroyed")
	}
	return nil
}
