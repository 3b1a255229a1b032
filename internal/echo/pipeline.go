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
)

// State is the routing state of the echo pipeline
type State int

const (
	StateIdle State = iota
	StateEchoing
	// StatePaused is a pause requested by the user
	StatePaused
	// StateStopped is a suspension imposed by the environment
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEchoing:
		return "echoing"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// StateChangeFunc observes pipeline transitions
type StateChangeFunc func(from, to State)

// Pipeline coordinates capture and playback through start, pause, restart,
// suspend, resume and teardown. It is the single source of truth for
// whether audio is being routed. Not safe for concurrent use.
type Pipeline struct {
	engine   *Engine
	player   *Player
	recorder *Recorder
	logger   *slog.Logger

	state    State
	observed atomic.Int32
	tornDown bool
	hooks    []StateChangeFunc
}

// NewPipeline wires already-created engine, player and recorder
func NewPipeline(engine *Engine, player *Player, recorder *Recorder) (*Pipeline, error) {
	const op = "create pipeline"
	switch {
	case engine == nil || engine.destroyed:
		return nil, newError(op, KindInvalidState, "engine not created")
	case player == nil || player.destroyed:
		return nil, newError(op, KindInvalidState, "player not created")
	case recorder == nil || recorder.destroyed:
		return nil, newError(op, KindInvalidState, "recorder not created")
	case recorder.player != player:
		return nil, newError(op, KindInvalidState, "recorder does not feed this player")
	}

	return &Pipeline{
		engine:   engine,
		player:   player,
		recorder: recorder,
		logger:   engine.logger.With("component", "pipeline"),
	}, nil
}

// State returns the current state
func (p *Pipeline) State() State {
	return p.state
}

// ObservedState returns the current state and, unlike State, is safe to
// call from any goroutine
func (p *Pipeline) ObservedState() State {
	return State(p.observed.Load())
}

// TornDown reports whether Teardown has run
func (p *Pipeline) TornDown() bool {
	return p.tornDown
}

// Player returns the playback path
func (p *Pipeline) Player() *Player {
	return p.player
}

// Recorder returns the capture path
func (p *Pipeline) Recorder() *Recorder {
	return p.recorder
}

// Stats returns the engine's realtime counters
func (p *Pipeline) Stats() Stats {
	return p.engine.Stats()
}

// OnStateChange registers fn to be called after every transition
func (p *Pipeline) OnStateChange(fn StateChangeFunc) {
	p.hooks = append(p.hooks, fn)
}

// Start moves Idle to Echoing. Playback starts draining before capture
// begins forwarding so the first buffers are not lost.
func (p *Pipeline) Start() error {
	const op = "start"
	if err := p.expect(op, StateIdle); err != nil {
		return err
	}
	if err := p.player.Start(); err != nil {
		return err
	}
	if err := p.recorder.Start(); err != nil {
		_ = p.player.Stop() // Back out so Start can be retried from Idle
		return err
	}
	p.set(StateEchoing)
	return nil
}

// Pause moves Echoing to Paused. Playback is muted, not stopped, so the
// output path stays warm.
func (p *Pipeline) Pause() error {
	return p.hold("pause", StatePaused)
}

// Restart moves Paused to Echoing
func (p *Pipeline) Restart() error {
	return p.resume("restart", StatePaused)
}

// SystemSuspend moves Echoing to Stopped when the environment takes the
// application out of the foreground
func (p *Pipeline) SystemSuspend() error {
	return p.hold("system suspend", StateStopped)
}

// SystemResume moves Stopped back to Echoing
func (p *Pipeline) SystemResume() error {
	return p.resume("system resume", StateStopped)
}

// Toggle performs the action of a single start/stop control: start when
// idle, pause when echoing and resume when paused or suspended.
func (p *Pipeline) Toggle() error {
	switch p.state {
	case StateIdle:
		return p.Start()
	case StateEchoing:
		return p.Pause()
	case StatePaused:
		return p.Restart()
	default:
		return p.SystemResume()
	}
}

func (p *Pipeline) hold(op string, to State) error {
	if err := p.expect(op, StateEchoing); err != nil {
		return err
	}
	if err := p.recorder.Pause(); err != nil {
		return err
	}
	if err := p.player.Mute(); err != nil {
		// Capture is halted, so the queue underruns to silence regardless.
		p.logger.Warn("could not mute playback", "op", op, "err", err)
	}
	p.set(to)
	return nil
}

func (p *Pipeline) resume(op string, from State) error {
	if err := p.expect(op, from); err != nil {
		return err
	}
	if err := p.recorder.Restart(); err != nil {
		return err
	}
	if err := p.player.Unmute(); err != nil {
		p.logger.Warn("could not unmute playback", "op", op, "err", err)
	}
	p.set(StateEchoing)
	return nil
}

// Teardown destroys the recorder, the player and the engine in that order
// and returns to Idle. It may run from any state, but only once.
func (p *Pipeline) Teardown() error {
	if p.tornDown {
		return newError("teardown", KindInvalidState, "pipeline already torn down")
	}
	p.tornDown = true

	err := errors.Join(
		p.recorder.Destroy(),
		p.player.Destroy(),
		p.engine.Destroy(),
	)
	p.set(StateIdle)
	return err
}

func (p *Pipeline) expect(op string, want State) error {
	if p.tornDown {
		return newError(op, KindInvalidState, "pipeline torn down")
	}
	if p.state != want {
		return newError(op, KindInvalidState, "pipeline is %s, want %s", p.state, want)
	}
	return nil
}

func (p *Pipeline) set(to State) {
	from := p.state
	p.state = to
	p.observed.Store(int32(to))
	if from == to {
		return
	}
	p.logger.Info("pipeline state changed", "from", from, "to", to)
	for _, fn := range p.hooks {
		fn(from, to)
	}
}
