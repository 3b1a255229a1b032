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
	"fmt"
	"sync/atomic"
)

// queueSlot holds one fixed-size buffer. seq encodes ownership: a slot at
// position pos is writable when seq == pos and readable when seq == pos+1.
type queueSlot struct {
	seq  atomic.Uint64
	n    int
	data []int16
}

// BufferQueue is a bounded ring of preallocated sample buffers shared by a
// capture producer and a playback consumer. No operation blocks: cursors are
// claimed with compare-and-swap and each slot is published through its own
// sequence number, so neither realtime thread ever waits on the other.
type BufferQueue struct {
	slots    []queueSlot
	depth    uint64
	enqueue  atomic.Uint64
	dequeue  atomic.Uint64
	dropped  atomic.Uint64
	overruns atomic.Uint64
}

// NewBufferQueue allocates depth buffers of samplesPerBuffer samples each
func NewBufferQueue(depth, samplesPerBuffer int) (*BufferQueue, error) {
	if depth < 2 {
		return nil, fmt.Errorf("buffer queue depth must be at least 2, got %d", depth)
	}
	if samplesPerBuffer <= 0 {
		return nil, fmt.Errorf("invalid buffer size %d", samplesPerBuffer)
	}

	q := &BufferQueue{
		slots: make([]queueSlot, depth),
		depth: uint64(depth),
	}
	for i := range q.slots {
		q.slots[i].data = make([]int16, samplesPerBuffer)
		q.slots[i].seq.Store(uint64(i))
	}
	return q, nil
}

// Depth returns the number of buffers in the ring
func (q *BufferQueue) Depth() int {
	return int(q.depth)
}

// BufferSize returns the number of samples per buffer
func (q *BufferQueue) BufferSize() int {
	return len(q.slots[0].data)
}

// Enqueue copies src into the next free buffer. It returns false when the
// queue is full. Samples beyond BufferSize are truncated.
func (q *BufferQueue) Enqueue(src []int16) bool {
	for {
		pos := q.enqueue.Load()
		slot := &q.slots[pos%q.depth]
		diff := int64(slot.seq.Load()) - int64(pos)

		switch {
		case diff == 0:
			if !q.enqueue.CompareAndSwap(pos, pos+1) {
				continue
			}
			slot.n = copy(slot.data, src)
			slot.seq.Store(pos + 1)
			return true
		case diff < 0:
			return false
		}
	}
}

// Dequeue copies the oldest ready buffer into dst and returns the number of
// samples copied. It returns false when no buffer is ready. A nil dst
// discards the buffer.
func (q *BufferQueue) Dequeue(dst []int16) (int, bool) {
	for {
		pos := q.dequeue.Load()
		slot := &q.slots[pos%q.depth]
		diff := int64(slot.seq.Load()) - int64(pos+1)

		switch {
		case diff == 0:
			if !q.dequeue.CompareAndSwap(pos, pos+1) {
				continue
			}
			n := copy(dst, slot.data[:slot.n])
			slot.seq.Store(pos + q.depth)
			return n, true
		case diff < 0:
			return 0, false
		}
	}
}

// Offer enqueues src, displacing the oldest unread buffer when the queue is
// full. If the slot it needs is still being read by the consumer, the
// incoming buffer is dropped instead and counted as an overrun.
func (q *BufferQueue) Offer(src []int16) bool {
	for attempt := uint64(0); attempt <= q.depth; attempt++ {
		if q.Enqueue(src) {
			return true
		}
		if _, ok := q.Dequeue(nil); ok {
			q.dropped.Add(1)
		}
	}
	q.overruns.Add(1)
	return false
}

// Len returns an approximate count of ready buffers
func (q *BufferQueue) Len() int {
	enq := q.enqueue.Load()
	deq := q.dequeue.Load()
	if enq < deq {
		return 0
	}
	return int(enq - deq)
}

// Dropped returns how many unread buffers were displaced by Offer
func (q *BufferQueue) Dropped() uint64 {
	return q.dropped.Load()
}

// Overruns returns how many incoming buffers Offer could not place
func (q *BufferQueue) Overruns() uint64 {
	return q.overruns.Load()
}
