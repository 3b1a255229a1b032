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
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/loqalabs/loqa-echo-go/internal/audio"
)

// SessionOption configures a Session
type SessionOption func(*Session)

// WithSessionQueueDepth sets the playback queue depth of engines the session creates
func WithSessionQueueDepth(depth int) SessionOption {
	return func(s *Session) {
		s.queueDepth = depth
	}
}

// WithSessionLogger sets the parent logger; the session adds its ID
func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) {
		s.logger = logger
	}
}

// Session exposes the engine as flat operations returning booleans and
// status codes, the way a UI layer drives it. It owns at most one engine,
// one player and one recorder at a time. Use from a single goroutine.
type Session struct {
	id         uuid.UUID
	logger     *slog.Logger
	backend    audio.AudioBackend
	resolver   *audio.Resolver
	queueDepth int

	engine   *Engine
	player   *Player
	recorder *Recorder
	pipeline *Pipeline
	lastErr  error
}

// NewSession creates a session on backend. Nothing is opened until the
// first operation.
func NewSession(backend audio.AudioBackend, opts ...SessionOption) *Session {
	s := &Session{
		id:         uuid.New(),
		logger:     slog.Default(),
		backend:    backend,
		resolver:   audio.NewResolver(backend),
		queueDepth: DefaultQueueDepth,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("session", s.id)
	return s
}

// ID returns the session identifier
func (s *Session) ID() uuid.UUID {
	return s.id
}

// LastError returns the structured cause of the most recent failed operation
func (s *Session) LastError() error {
	return s.lastErr
}

func (s *Session) fail(err error) error {
	if err != nil {
		s.lastErr = err
		s.logger.Warn("operation failed", "err", err)
	}
	return err
}

// Resolve returns the cached stream configuration, see audio.Resolver
func (s *Session) Resolve() (audio.StreamConfig, error) {
	return s.resolver.Resolve()
}

// CaptureSupported reports whether this session may capture at all
func (s *Session) CaptureSupported() bool {
	config, err := s.Resolve()
	return err == nil && config.CaptureSupported
}

// CreateEngine creates the engine context. Failures surface through
// LastError and through later create calls.
func (s *Session) CreateEngine(sampleRateHz, framesPerBuffer int) {
	if s.engine != nil && !s.engine.destroyed {
		s.fail(newError("create engine", KindInvalidState, "engine already created"))
		return
	}

	config := audio.NewStreamConfig(sampleRateHz, framesPerBuffer)
	if resolved, err := s.Resolve(); err == nil {
		config.CaptureSupported = resolved.CaptureSupported
		config.MinCaptureBufferBytes = resolved.MinCaptureBufferBytes
	}

	engine, err := NewEngine(s.backend, config,
		WithQueueDepth(s.queueDepth),
		WithLogger(s.logger),
	)
	if s.fail(err) != nil {
		s.engine = nil
		return
	}
	s.engine = engine
}

// DeleteEngine destroys the engine context. Player and recorder must be
// deleted first.
func (s *Session) DeleteEngine() {
	if s.engine == nil {
		return
	}
	if s.fail(s.engine.Destroy()) != nil {
		return
	}
	s.engine = nil
}

// CreatePlayer creates the playback path
func (s *Session) CreatePlayer() bool {
	if s.engine == nil {
		s.fail(newError("create player", KindInvalidState, "engine not created"))
		return false
	}
	player, err := NewPlayer(s.engine)
	if s.fail(err) != nil {
		return false
	}
	s.player = player
	return true
}

// DeletePlayer destroys the playback path
func (s *Session) DeletePlayer() {
	if s.player == nil {
		return
	}
	if s.fail(s.player.Destroy()) != nil {
		return
	}
	s.player = nil
	s.pipeline = nil
}

// CreateRecorder creates the capture path writing to sinkPath. It fails
// without touching the input device when the session cannot capture.
func (s *Session) CreateRecorder(sinkPath string) bool {
	const op = "create recorder"
	if !s.CaptureSupported() {
		s.fail(newError(op, KindUnsupportedHardware, "capture unsupported for this session"))
		return false
	}
	if s.engine == nil {
		s.fail(newError(op, KindInvalidState, "engine not created"))
		return false
	}
	recorder, err := NewRecorder(s.engine, s.player, sinkPath)
	if s.fail(err) != nil {
		return false
	}
	s.recorder = recorder
	return true
}

// DeleteRecorder destroys the capture path
func (s *Session) DeleteRecorder() {
	if s.recorder == nil {
		return
	}
	if s.fail(s.recorder.Destroy()) != nil {
		return
	}
	s.recorder = nil
	s.pipeline = nil
}

// StartRecord starts capture
func (s *Session) StartRecord() { s.withRecorder("start record", (*Recorder).Start) }

// PauseRecord pauses capture
func (s *Session) PauseRecord() { s.withRecorder("pause record", (*Recorder).Pause) }

// RestartRecord resumes paused capture
func (s *Session) RestartRecord() { s.withRecorder("restart record", (*Recorder).Restart) }

// StopRecord ends capture for the session
func (s *Session) StopRecord() { s.withRecorder("stop record", (*Recorder).Stop) }

// StartPlay starts playback
func (s *Session) StartPlay() { s.withPlayer("start play", (*Player).Start) }

// StopPlay stops playback
func (s *Session) StopPlay() { s.withPlayer("stop play", (*Player).Stop) }

// SetMute mutes playback and returns a status code
func (s *Session) SetMute() Status {
	return StatusOf(s.withPlayer("mute", (*Player).Mute))
}

// SetNotMute unmutes playback and returns a status code
func (s *Session) SetNotMute() Status {
	return StatusOf(s.withPlayer("unmute", (*Player).Unmute))
}

// GetPlayerVolume returns the playback level in millibels
func (s *Session) GetPlayerVolume() int16 {
	if s.player == nil {
		return 0
	}
	return int16(s.player.Volume())
}

// GetMaxPlayerVolume returns the highest playback level in millibels
func (s *Session) GetMaxPlayerVolume() int16 {
	if s.player == nil {
		return 0
	}
	return int16(s.player.MaxVolume())
}

// SetPlayerVolume sets the playback level in millibels and returns a status code
func (s *Session) SetPlayerVolume(level int) Status {
	return StatusOf(s.withPlayer("set volume", func(p *Player) error {
		return p.SetVolume(level)
	}))
}

// GetRecorderVolume returns the peak level of the latest captured buffer
func (s *Session) GetRecorderVolume() int16 {
	if s.recorder == nil {
		return 0
	}
	return s.recorder.GetVolumeLevel()
}

func (s *Session) withPlayer(op string, fn func(*Player) error) error {
	if s.player == nil {
		return s.fail(newError(op, KindInvalidState, "player not created"))
	}
	return s.fail(fn(s.player))
}

func (s *Session) withRecorder(op string, fn func(*Recorder) error) error {
	if s.recorder == nil {
		return s.fail(newError(op, KindInvalidState, "recorder not created"))
	}
	return s.fail(fn(s.recorder))
}

// Pipeline returns the controller for the current engine, player and
// recorder, creating it on first use
func (s *Session) Pipeline() (*Pipeline, error) {
	if s.pipeline != nil && !s.pipeline.tornDown {
		return s.pipeline, nil
	}
	pipeline, err := NewPipeline(s.engine, s.player, s.recorder)
	if s.fail(err) != nil {
		return nil, err
	}
	s.pipeline = pipeline
	return pipeline, nil
}

// Bootstrap resolves the stream parameters and creates the engine, player
// and recorder in order. When a step fails, whatever was already created is
// released and the error is returned; ErrUnsupportedHardware means the
// caller should disable capture for the session.
func (s *Session) Bootstrap(sinkPath string) (*Pipeline, error) {
	config, err := s.Resolve()
	if err != nil {
		if errors.Is(err, audio.ErrUnsupported) {
			return nil, s.fail(&Error{Op: "bootstrap", Kind: KindUnsupportedHardware, Err: err})
		}
		return nil, s.fail(&Error{Op: "bootstrap", Kind: KindCreationFailed, Err: err})
	}
	s.logger.Info("native audio parameters",
		"sampleRate", config.SampleRateHz,
		"framesPerBuffer", config.FramesPerBuffer,
		"minCaptureBufferBytes", config.MinCaptureBufferBytes,
	)

	s.CreateEngine(config.SampleRateHz, config.FramesPerBuffer)
	if s.engine == nil {
		return nil, s.lastErr
	}

	if !s.CreatePlayer() {
		err := s.lastErr
		s.DeleteEngine()
		return nil, err
	}

	if !s.CreateRecorder(sinkPath) {
		err := s.lastErr
		s.DeletePlayer()
		s.DeleteEngine()
		return nil, err
	}

	return s.Pipeline()
}

// Shutdown releases everything the session holds, in reverse order of
// creation. It is safe to call more than once.
func (s *Session) Shutdown() error {
	var errs []error
	if s.pipeline != nil && !s.pipeline.tornDown {
		errs = append(errs, s.pipeline.Teardown())
	} else {
		if s.recorder != nil {
			errs = append(errs, s.recorder.Destroy())
		}
		if s.player != nil {
			errs = append(errs, s.player.Destroy())
		}
		if s.engine != nil {
			errs = append(errs, s.engine.Destroy())
		}
	}
	s.pipeline, s.recorder, s.player, s.engine = nil, nil, nil, nil

	// The resolver may have initialized the backend without an engine.
	errs = append(errs, s.backend.Terminate())
	return errors.Join(errs...)
}

// Stats returns the current engine counters, or zero without an engine
func (s *Session) Stats() Stats {
	if s.engine == nil {
		return Stats{}
	}
	return s.engine.Stats()
}
