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
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMillibelToGain(t *testing.T) {
	assert.Equal(t, 1.0, MillibelToGain(MaxVolumeMillibel))
	assert.Equal(t, 0.0, MillibelToGain(MinVolumeMillibel))
	assert.InDelta(t, 0.5012, MillibelToGain(-600), 0.001, "-6 dB is roughly half amplitude")
	assert.InDelta(t, 0.1, MillibelToGain(-2000), 1e-9)
}

func TestApplyGain(t *testing.T) {
	samples := []int16{1000, -1000, 0}
	ApplyGain(samples, 0.5)
	assert.Equal(t, []int16{500, -500, 0}, samples)

	loud := []int16{math.MaxInt16, math.MinInt16}
	ApplyGain(loud, 2)
	assert.Equal(t, []int16{math.MaxInt16, math.MinInt16}, loud, "gain saturates")

	unity := []int16{123}
	ApplyGain(unity, 1)
	assert.Equal(t, []int16{123}, unity)
}

func TestPeakLevel(t *testing.T) {
	assert.Equal(t, int16(0), PeakLevel(nil))
	assert.Equal(t, int16(300), PeakLevel([]int16{-10, 300, -299}))
	assert.Equal(t, int16(math.MaxInt16), PeakLevel([]int16{math.MinInt16}))
}

func TestS16LE(t *testing.T) {
	samples := []int16{0, 1, -1, math.MaxInt16, math.MinInt16}
	buf := make([]byte, 2*len(samples))

	n := EncodeS16LE(buf, samples)
	assert.Equal(t, 10, n)
	assert.Equal(t, []byte{0x00, 0x00, 0x01, 0x00, 0xff, 0xff, 0xff, 0x7f, 0x00, 0x80}, buf)
	assert.Equal(t, samples, DecodeS16LE(buf))
	assert.Equal(t, []int16{1}, DecodeS16LE([]byte{0x01, 0x00, 0x07}), "trailing odd byte is ignored")
}
