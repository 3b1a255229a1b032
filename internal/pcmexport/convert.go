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

// Package pcmexport converts the engine's headerless capture sink into WAV
// so recordings can be inspected with ordinary audio tools.
package pcmexport

import (
	"fmt"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/loqalabs/loqa-echo-go/internal/audio"
)

const (
	bitDepth     = 16
	numChannels  = 1
	wavPCMFormat = 1
)

// ConvertToWAV reads 16-bit little-endian mono samples from rawPath and
// writes them to wavPath at sampleRate. It returns the number of samples.
func ConvertToWAV(rawPath, wavPath string, sampleRate int) (int, error) {
	if sampleRate <= 0 {
		return 0, fmt.Errorf("invalid sample rate %d", sampleRate)
	}

	raw, err := os.ReadFile(rawPath)
	if err != nil {
		return 0, fmt.Errorf("could not read capture sink: %w", err)
	}
	samples := audio.DecodeS16LE(raw)

	out, err := os.Create(wavPath)
	if err != nil {
		return 0, fmt.Errorf("could not create wav file: %w", err)
	}
	defer out.Close()

	encoder := wav.NewEncoder(out, sampleRate, bitDepth, numChannels, wavPCMFormat)
	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			SampleRate:  sampleRate,
			NumChannels: numChannels,
		},
		Data:           make([]int, len(samples)),
		SourceBitDepth: bitDepth,
	}
	for i, s := range samples {
		buf.Data[i] = int(s)
	}

	if err := encoder.Write(buf); err != nil {
		return 0, fmt.Errorf("could not encode wav: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return 0, fmt.Errorf("could not finalize wav: %w", err)
	}
	return len(samples), out.Sync()
}

// ReadWAV decodes a 16-bit mono WAV written by ConvertToWAV
func ReadWAV(wavPath string) ([]int16, int, error) {
	f, err := os.Open(wavPath)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return nil, 0, fmt.Errorf("invalid wav file %s", wavPath)
	}
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("could not decode wav: %w", err)
	}

	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = int16(v)
	}
	return samples, int(decoder.SampleRate), nil
}
