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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/loqa-echo-go/internal/audio"
)

func newTestPlayer(t *testing.T) (*Player, *audio.MockAudioBackend) {
	t.Helper()
	backend := newTestBackend()
	engine := newTestEngine(t, backend)
	player, err := NewPlayer(engine)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = player.Destroy()
		_ = engine.Destroy()
	})
	return player, backend
}

func TestPlayer_UnderrunIsSilence(t *testing.T) {
	player, backend := newTestPlayer(t)
	require.NoError(t, player.Start())

	backend.Pump(3)

	for _, buf := range backend.GetPlaybackAudioData() {
		assert.Equal(t, make([]int16, 192), buf)
	}
	assert.Equal(t, uint64(3), player.engine.Stats().Underruns)
	assert.Equal(t, uint64(0), player.engine.Stats().BuffersPlayed)
}

func TestPlayer_DrainsQueueInOrder(t *testing.T) {
	player, backend := newTestPlayer(t)
	require.NoError(t, player.Start())

	for v := int16(1); v <= 2; v++ {
		buf := make([]int16, 192)
		buf[0] = v
		require.True(t, player.queue.Enqueue(buf))
	}
	backend.Pump(3)

	played := backend.GetPlaybackAudioData()
	require.Len(t, played, 3)
	assert.Equal(t, int16(1), played[0][0])
	assert.Equal(t, int16(2), played[1][0])
	assert.Equal(t, int16(0), played[2][0])
	assert.Equal(t, uint64(2), player.engine.Stats().BuffersPlayed)
	assert.Equal(t, uint64(1), player.engine.Stats().Underruns)
}

func TestPlayer_MuteRoundTrip(t *testing.T) {
	player, backend := newTestPlayer(t)
	require.NoError(t, player.Start())
	require.NoError(t, player.SetVolume(-600))

	push := func() {
		buf := make([]int16, 192)
		buf[0] = 10000
		require.True(t, player.queue.Enqueue(buf))
	}

	push()
	backend.Pump(1)
	require.NoError(t, player.Mute())
	assert.True(t, player.Muted())
	push()
	backend.Pump(1)
	require.NoError(t, player.Unmute())
	assert.False(t, player.Muted())
	push()
	backend.Pump(1)

	played := backend.GetPlaybackAudioData()
	require.Len(t, played, 3)
	assert.Equal(t, int16(0), played[1][0], "muted output is silent")
	assert.Equal(t, played[0][0], played[2][0], "unmute restores the pre-mute level")
	assert.Equal(t, -600, player.Volume(), "volume survives mute")
	assert.Equal(t, uint64(3), player.engine.Stats().BuffersPlayed, "queue keeps draining while muted")
}

func TestPlayer_SetVolume(t *testing.T) {
	player, backend := newTestPlayer(t)
	assert.Equal(t, 0, player.Volume())
	assert.Equal(t, -10000, player.MinVolume())
	assert.Equal(t, 0, player.MaxVolume())

	require.NoError(t, player.SetVolume(-2000))
	assert.Equal(t, -2000, player.Volume())

	for _, level := range []int{1, -10001, 5000} {
		err := player.SetVolume(level)
		assert.ErrorIs(t, err, ErrParameterRejected, "level %d", level)
		assert.Equal(t, StatusParameterRejected, StatusOf(err))
		assert.Equal(t, -2000, player.Volume(), "rejected levels leave the volume unchanged")
	}

	require.NoError(t, player.Start())
	buf := make([]int16, 192)
	buf[0] = 10000
	require.True(t, player.queue.Enqueue(buf))
	backend.Pump(1)
	assert.Equal(t, int16(1000), backend.GetPlaybackAudioData()[0][0], "-20 dB is a tenth")
}

func TestPlayer_NoVolumeControl(t *testing.T) {
	player, backend := newTestPlayer(t)
	backend.SetVolumeSupported(false)

	assert.ErrorIs(t, player.SetVolume(-100), ErrUnsupportedHardware)
	assert.Equal(t, StatusUnsupported, StatusOf(player.Mute()))
	assert.Equal(t, StatusUnsupported, StatusOf(player.Unmute()))
	assert.False(t, player.Muted())
}

func TestPlayer_StartStop(t *testing.T) {
	player, _ := newTestPlayer(t)

	require.NoError(t, player.Start())
	require.NoError(t, player.Start(), "start while running is a no-op")
	assert.True(t, player.Running())
	require.NoError(t, player.Stop())
	require.NoError(t, player.Stop(), "stop is idempotent")
	assert.False(t, player.Running())
}

func TestPlayer_CreationFailure(t *testing.T) {
	backend := newTestBackend()
	engine := newTestEngine(t, backend)
	backend.SetCreateOutputError(errors.New("device busy"))

	player, err := NewPlayer(engine)
	assert.Nil(t, player)
	assert.ErrorIs(t, err, ErrCreationFailed)
	assert.Equal(t, 0, engine.ActivePaths())
	assert.Equal(t, 0, backend.OpenStreamCount())
	require.NoError(t, engine.Destroy())
}

func TestPlayer_Destroy(t *testing.T) {
	backend := newTestBackend()
	engine := newTestEngine(t, backend)
	player, err := NewPlayer(engine)
	require.NoError(t, err)

	_, err = NewPlayer(engine)
	assert.ErrorIs(t, err, ErrInvalidState, "one player per engine")

	require.NoError(t, player.Start())
	require.NoError(t, player.Destroy())
	require.NoError(t, player.Destroy(), "second destroy is a no-op")
	assert.Equal(t, 0, backend.OpenStreamCount())
	assert.ErrorIs(t, player.Start(), ErrInvalidState)
	assert.ErrorIs(t, player.Mute(), ErrInvalidState)
	require.NoError(t, engine.Destroy())
}
