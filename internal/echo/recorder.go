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
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/loqalabs/loqa-echo-go/internal/audio"
)

type recorderState int

const (
	recorderIdle recorderState = iota
	recorderRunning
	recorderPaused
	recorderStopped
)

func (s recorderState) String() string {
	switch s {
	case recorderIdle:
		return "idle"
	case recorderRunning:
		return "running"
	case recorderPaused:
		return "paused"
	case recorderStopped:
		return "stopped"
	default:
		return fmt.Sprintf("recorderState(%d)", int(s))
	}
}

// Recorder captures from the input device. Each captured buffer is written
// to the sink file and forwarded into the player's queue.
type Recorder struct {
	engine *Engine
	player *Player
	logger *slog.Logger
	sink   *captureSink
	stream audio.StreamInterface

	state     recorderState
	destroyed bool

	captured atomic.Uint64
	level    atomic.Int32
}

// NewRecorder opens the capture stream and the sink file at path, routing
// captured audio into player. On failure nothing is left open.
func NewRecorder(engine *Engine, player *Player, path string) (*Recorder, error) {
	const op = "create recorder"
	if err := engine.checkAlive(op); err != nil {
		return nil, err
	}
	if !engine.config.CaptureSupported {
		return nil, newError(op, KindUnsupportedHardware, "device cannot capture")
	}
	if player == nil || player.destroyed {
		return nil, newError(op, KindInvalidState, "no player to echo into")
	}
	if engine.recorder != nil {
		return nil, newError(op, KindInvalidState, "recorder already exists")
	}

	config := engine.config
	logger := engine.logger.With("path", "recorder")

	sink, err := openSink(path, config.BufferBytes(), logger)
	if err != nil {
		logger.Error("could not open sink", "sink", path, "err", err)
		return nil, &Error{Op: op, Kind: KindCreationFailed, Err: err}
	}

	r := &Recorder{
		engine: engine,
		player: player,
		logger: logger,
		sink:   sink,
	}

	stream, err := engine.backend.CreateInputStream(float64(config.SampleRateHz), config.Channels, config.FramesPerBuffer, r.capture)
	if err != nil {
		logger.Error("could not open input stream", "err", err)
		_ = sink.close() // Ignore errors while unwinding a failed create
		return nil, &Error{Op: op, Kind: KindCreationFailed, Err: err}
	}
	r.stream = stream
	engine.setRecorder(r)

	logger.Debug("recorder created", "sink", path)
	return r, nil
}

// capture runs on the input thread
func (r *Recorder) capture(in []int16) {
	r.captured.Add(1)
	r.level.Store(int32(audio.PeakLevel(in)))
	r.sink.submit(in)
	r.player.queue.Offer(in)
}

// Start begins capturing and echoing
func (r *Recorder) Start() error {
	return r.transition("start recorder", recorderIdle, recorderRunning, r.stream.Start)
}

// Pause stops the capture callback but keeps the device and sink open
func (r *Recorder) Pause() error {
	return r.transition("pause recorder", recorderRunning, recorderPaused, r.stream.Stop)
}

// Restart resumes a paused recorder without reopening the device
func (r *Recorder) Restart() error {
	return r.transition("restart recorder", recorderPaused, recorderRunning, r.stream.Start)
}

// Stop ends capture for the session; the recorder cannot be restarted.
// Stopping a stopped recorder is a no-op.
func (r *Recorder) Stop() error {
	const op = "stop recorder"
	if r.destroyed {
		return newError(op, KindInvalidState, "recorder destroyed")
	}
	if r.state == recorderStopped {
		return nil
	}
	if err := r.stream.Stop(); err != nil {
		return &Error{Op: op, Kind: KindInvalidState, Err: err}
	}
	r.state = recorderStopped
	return nil
}

func (r *Recorder) transition(op string, from, to recorderState, action func() error) error {
	if r.destroyed {
		return newError(op, KindInvalidState, "recorder destroyed")
	}
	if r.state != from {
		return newError(op, KindInvalidState, "recorder is %s", r.state)
	}
	if err := action(); err != nil {
		return &Error{Op: op, Kind: KindInvalidState, Err: err}
	}
	r.state = to
	return nil
}

// Capturing reports whether the capture callback is running
func (r *Recorder) Capturing() bool {
	return r.state == recorderRunning
}

// GetVolumeLevel returns the peak level of the most recent captured buffer
func (r *Recorder) GetVolumeLevel() int16 {
	return int16(r.level.Load())
}

// SinkPath returns the path of the raw capture file
func (r *Recorder) SinkPath() string {
	return r.sink.path
}

// SinkBytes returns the number of bytes written to the sink so far
func (r *Recorder) SinkBytes() uint64 {
	return r.sink.written.Load()
}

// Destroy stops capture and closes the sink. Destroying twice is a no-op.
func (r *Recorder) Destroy() error {
	if r.destroyed {
		return nil
	}
	r.destroyed = true

	err := errors.Join(r.stream.Stop(), r.stream.Close(), r.sink.close())
	r.engine.setRecorder(nil)
	if err != nil {
		return &Error{Op: "destroy recorder", Kind: KindInvalidState, Err: err}
	}

	r.logger.Debug("recorder destroyed", "sinkBytes", r.SinkBytes())
	return nil
}
