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
	"encoding/binary"
	"math"
)

// Millibel bounds for output volume
const (
	MinVolumeMillibel = -10000
	MaxVolumeMillibel = 0
)

// MillibelToGain converts an attenuation in millibels to a linear factor
func MillibelToGain(mB int) float64 {
	if mB <= MinVolumeMillibel {
		return 0
	}
	return math.Pow(10, float64(mB)/2000)
}

// ApplyGain scales samples in place, saturating at the int16 range
func ApplyGain(samples []int16, gain float64) {
	if gain == 1 {
		return
	}
	for i, s := range samples {
		v := math.Round(float64(s) * gain)
		switch {
		case v > math.MaxInt16:
			v = math.MaxInt16
		case v < math.MinInt16:
			v = math.MinInt16
		}
		samples[i] = int16(v)
	}
}

// PeakLevel returns the largest absolute sample value, saturated to int16
func PeakLevel(samples []int16) int16 {
	var peak int32
	for _, s := range samples {
		v := int32(s)
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	if peak > math.MaxInt16 {
		peak = math.MaxInt16
	}
	return int16(peak)
}

// EncodeS16LE writes samples into dst as little-endian 16-bit PCM and returns
// the number of bytes written. dst must hold 2*len(samples) bytes.
func EncodeS16LE(dst []byte, samples []int16) int {
	for i, s := range samples {
		binary.LittleEndian.PutUint16(dst[2*i:], uint16(s))
	}
	return 2 * len(samples)
}

// DecodeS16LE converts little-endian 16-bit PCM bytes to samples.
// A trailing odd byte is ignored.
func DecodeS16LE(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[2*i:]))
	}
	return samples
}
