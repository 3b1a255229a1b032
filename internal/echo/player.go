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
	"log/slog"
	"math"
	"sync/atomic"

	"github.com/loqalabs/loqa-echo-go/internal/audio"
)

// Player drains the shared buffer queue to the output device. Mute and
// volume act inside the drain callback so the queue keeps running.
type Player struct {
	engine *Engine
	logger *slog.Logger
	queue  *audio.BufferQueue
	stream audio.StreamInterface

	running   bool
	destroyed bool

	muted     atomic.Bool
	volume    atomic.Int32
	gain      atomic.Uint64
	played    atomic.Uint64
	underruns atomic.Uint64
}

// NewPlayer allocates the buffer queue and registers the drain callback.
// On failure nothing is left allocated.
func NewPlayer(engine *Engine) (*Player, error) {
	const op = "create player"
	if err := engine.checkAlive(op); err != nil {
		return nil, err
	}
	if engine.player != nil {
		return nil, newError(op, KindInvalidState, "player already exists")
	}

	config := engine.config
	queue, err := audio.NewBufferQueue(engine.queueDepth, config.SamplesPerBuffer())
	if err != nil {
		return nil, &Error{Op: op, Kind: KindCreationFailed, Err: err}
	}

	p := &Player{
		engine: engine,
		logger: engine.logger.With("path", "player"),
		queue:  queue,
	}
	p.storeVolume(audio.MaxVolumeMillibel)

	stream, err := engine.backend.CreateOutputStream(float64(config.SampleRateHz), config.Channels, config.FramesPerBuffer, p.drain)
	if err != nil {
		p.logger.Error("could not open output stream", "err", err)
		return nil, &Error{Op: op, Kind: KindCreationFailed, Err: err}
	}
	p.stream = stream
	engine.setPlayer(p)

	p.logger.Debug("player created", "queueDepth", queue.Depth(), "bufferSize", queue.BufferSize())
	return p, nil
}

// drain runs on the output thread. An empty queue yields silence.
func (p *Player) drain(out []int16) {
	n, ok := p.queue.Dequeue(out)
	if !ok {
		clear(out)
		p.underruns.Add(1)
		return
	}
	clear(out[n:])
	p.played.Add(1)

	if p.muted.Load() {
		clear(out)
		return
	}
	audio.ApplyGain(out, math.Float64frombits(p.gain.Load()))
}

// Start begins consumption of queued buffers
func (p *Player) Start() error {
	const op = "start player"
	if p.destroyed {
		return newError(op, KindInvalidState, "player destroyed")
	}
	if p.running {
		return nil
	}
	if err := p.stream.Start(); err != nil {
		return &Error{Op: op, Kind: KindCreationFailed, Err: err}
	}
	p.running = true
	return nil
}

// Stop ends consumption. Stopping a stopped player is a no-op.
func (p *Player) Stop() error {
	if p.destroyed || !p.running {
		return nil
	}
	p.running = false
	if err := p.stream.Stop(); err != nil {
		return &Error{Op: "stop player", Kind: KindInvalidState, Err: err}
	}
	return nil
}

// Running reports whether the output stream is consuming buffers
func (p *Player) Running() bool {
	return p.running
}

// Mute silences output while the queue keeps draining
func (p *Player) Mute() error {
	return p.setMuted("mute", true)
}

// Unmute restores audible output at the current volume
func (p *Player) Unmute() error {
	return p.setMuted("unmute", false)
}

func (p *Player) setMuted(op string, muted bool) error {
	if err := p.checkVolumeControl(op); err != nil {
		return err
	}
	p.muted.Store(muted)
	return nil
}

// Muted reports whether output is muted
func (p *Player) Muted() bool {
	return p.muted.Load()
}

// Volume returns the current level in millibels
func (p *Player) Volume() int {
	return int(p.volume.Load())
}

// MinVolume returns the lowest accepted level in millibels
func (p *Player) MinVolume() int {
	return audio.MinVolumeMillibel
}

// MaxVolume returns the highest accepted level in millibels
func (p *Player) MaxVolume() int {
	return audio.MaxVolumeMillibel
}

// SetVolume sets the level in millibels. Levels outside
// [MinVolume, MaxVolume] are rejected and leave the volume unchanged.
func (p *Player) SetVolume(level int) error {
	const op = "set volume"
	if err := p.checkVolumeControl(op); err != nil {
		return err
	}
	if level < p.MinVolume() || level > p.MaxVolume() {
		return newError(op, KindParameterRejected, "level %d outside [%d, %d]", level, p.MinVolume(), p.MaxVolume())
	}
	p.storeVolume(level)
	return nil
}

func (p *Player) storeVolume(level int) {
	p.volume.Store(int32(level))
	p.gain.Store(math.Float64bits(audio.MillibelToGain(level)))
}

func (p *Player) checkVolumeControl(op string) error {
	if p.destroyed {
		return newError(op, KindInvalidState, "player destroyed")
	}
	if !p.engine.backend.SupportsOutputVolume() {
		return newError(op, KindUnsupportedHardware, "output device has no volume control")
	}
	return nil
}

// Destroy stops the drain callback and releases the queue. The recorder
// feeding this player must be destroyed first. Destroying twice is a no-op.
func (p *Player) Destroy() error {
	if p.destroyed {
		return nil
	}
	if p.engine.recorder != nil {
		return newError("destroy player", KindInvalidState, "recorder still attached")
	}

	stopErr := p.Stop()
	closeErr := p.stream.Close()
	p.destroyed = true
	p.engine.setPlayer(nil)

	if stopErr != nil {
		return stopErr
	}
	if closeErr != nil {
		return &Error{Op: "destroy player", Kind: KindInvalidState, Err: closeErr}
	}
	p.logger.Debug("player destroyed")
	return nil
}
