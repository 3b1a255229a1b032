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
	"os"
	"sync"
	"sync/atomic"

	"github.com/loqalabs/loqa-echo-go/internal/audio"
)

// sinkDepth is the number of encoded buffers that may wait for the writer
const sinkDepth = 64

// captureSink persists captured buffers as headerless S16LE PCM. The capture
// callback only hands preallocated chunks to a writer goroutine; when the
// writer falls behind, buffers are dropped and counted rather than blocking.
type captureSink struct {
	path    string
	file    *os.File
	logger  *slog.Logger
	free    chan []byte
	pending chan []byte
	stop    chan struct{}
	done    chan struct{}

	closeOnce sync.Once
	closeErr  error

	written atomic.Uint64
	dropped atomic.Uint64
}

func openSink(path string, chunkBytes int, logger *slog.Logger) (*captureSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("could not open capture sink: %w", err)
	}

	s := &captureSink{
		path:    path,
		file:    f,
		logger:  logger,
		free:    make(chan []byte, sinkDepth),
		pending: make(chan []byte, sinkDepth),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for i := 0; i < sinkDepth; i++ {
		s.free <- make([]byte, chunkBytes)
	}

	go s.run()
	return s, nil
}

// submit encodes samples for the writer. Never blocks.
func (s *captureSink) submit(samples []int16) {
	select {
	case chunk := <-s.free:
		if len(chunk) < 2*len(samples) {
			samples = samples[:len(chunk)/2]
		}
		n := audio.EncodeS16LE(chunk, samples)
		s.pending <- chunk[:n]
	default:
		s.dropped.Add(1)
	}
}

func (s *captureSink) run() {
	defer close(s.done)
	for {
		select {
		case chunk := <-s.pending:
			s.write(chunk)
		case <-s.stop:
			for {
				select {
				case chunk := <-s.pending:
					s.write(chunk)
				default:
					return
				}
			}
		}
	}
}

func (s *captureSink) write(chunk []byte) {
	n, err := s.file.Write(chunk)
	s.written.Add(uint64(n))
	if err != nil {
		if s.dropped.Add(1) == 1 {
			s.logger.Error("capture sink write failed", "path", s.path, "err", err)
		}
	}
	s.free <- chunk[:cap(chunk)]
}

// close flushes pending buffers and closes the file. Later calls return the
// first result.
func (s *captureSink) close() error {
	s.closeOnce.Do(func() {
		close(s.stop)
		<-s.done
		if err := s.file.Sync(); err != nil {
			s.closeErr = err
		}
		if err := s.file.Close(); err != nil && s.closeErr == nil {
			s.closeErr = err
		}
	})
	return s.closeErr
}
