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
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/loqa-echo-go/internal/audio"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestBackend returns a mock backend driven by Pump whose microphone
// produces a ramp that changes every buffer
func newTestBackend() *audio.MockAudioBackend {
	backend := audio.NewMockAudioBackend()
	backend.SetSimulateRealTiming(false)

	var next int16
	backend.SetInputGenerator(func(buf []int16) {
		for i := range buf {
			next++
			if next > 8000 {
				next = 1
			}
			buf[i] = next
		}
	})
	return backend
}

func testConfig() audio.StreamConfig {
	cfg := audio.NewStreamConfig(48000, 192)
	cfg.CaptureSupported = true
	cfg.MinCaptureBufferBytes = 384
	return cfg
}

func newTestEngine(t *testing.T, backend *audio.MockAudioBackend, opts ...EngineOption) *Engine {
	t.Helper()
	opts = append([]EngineOption{WithLogger(discardLogger())}, opts...)
	engine, err := NewEngine(backend, testConfig(), opts...)
	require.NoError(t, err)
	return engine
}

func TestNewEngine(t *testing.T) {
	backend := newTestBackend()
	engine := newTestEngine(t, backend)

	assert.True(t, backend.IsInitialized())
	assert.Equal(t, 48000, engine.Config().SampleRateHz)
	assert.Equal(t, 0, engine.ActivePaths())
	assert.False(t, engine.Destroyed())
	assert.Equal(t, Stats{}, engine.Stats())
}

func TestNewEngine_Rejections(t *testing.T) {
	t.Run("invalid_config", func(t *testing.T) {
		_, err := NewEngine(newTestBackend(), audio.NewStreamConfig(0, 192), WithLogger(discardLogger()))
		assert.ErrorIs(t, err, ErrParameterRejected)
	})

	t.Run("queue_depth", func(t *testing.T) {
		_, err := NewEngine(newTestBackend(), testConfig(), WithQueueDepth(1), WithLogger(discardLogger()))
		assert.ErrorIs(t, err, ErrParameterRejected)
	})

	t.Run("backend_init", func(t *testing.T) {
		backend := newTestBackend()
		backend.SetInitError(errors.New("audio service unavailable"))
		_, err := NewEngine(backend, testConfig(), WithLogger(discardLogger()))
		assert.ErrorIs(t, err, ErrCreationFailed)
	})
}

func TestEngine_Destroy(t *testing.T) {
	backend := newTestBackend()
	engine := newTestEngine(t, backend)

	player, err := NewPlayer(engine)
	require.NoError(t, err)

	err = engine.Destroy()
	assert.ErrorIs(t, err, ErrInvalidState, "engine must outlive its paths")
	assert.False(t, engine.Destroyed())

	require.NoError(t, player.Destroy())
	require.NoError(t, engine.Destroy())
	assert.True(t, engine.Destroyed())
	assert.False(t, backend.IsInitialized())

	require.NoError(t, engine.Destroy(), "second destroy is a no-op")

	_, err = NewPlayer(engine)
	assert.ErrorIs(t, err, ErrInvalidState, "no paths on a destroyed engine")
}
