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

// Package observe exposes the echo engine's realtime counters as
// OpenTelemetry metrics. Instruments are observable: their callbacks read
// atomic snapshots at collection time, so nothing is recorded from the
// audio threads themselves.
package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/loqalabs/loqa-echo-go/internal/echo"
)

// meterName is the instrumentation scope name used for all echo metrics.
const meterName = "github.com/loqalabs/loqa-echo-go"

// Source supplies the values observed at collection time. Both functions
// must be safe to call from any goroutine.
type Source struct {
	Stats func() echo.Stats
	State func() echo.State
}

// PipelineSource adapts a pipeline to a Source
func PipelineSource(p *echo.Pipeline) Source {
	return Source{
		Stats: p.Stats,
		State: p.ObservedState,
	}
}

// Metrics holds the registered instruments. Call Unregister to detach the
// callback when the observed session ends.
type Metrics struct {
	BuffersCaptured metric.Int64ObservableCounter
	BuffersPlayed   metric.Int64ObservableCounter
	Underruns       metric.Int64ObservableCounter
	QueueDropped    metric.Int64ObservableCounter
	QueueOverruns   metric.Int64ObservableCounter
	SinkDropped     metric.Int64ObservableCounter
	SinkBytes       metric.Int64ObservableCounter
	PipelineState   metric.Int64ObservableGauge

	registration metric.Registration
}

// NewMetrics creates the instruments on mp and registers a callback that
// observes src. attrs are attached to every observation.
func NewMetrics(mp metric.MeterProvider, src Source, attrs ...attribute.KeyValue) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	counters := []struct {
		dst  *metric.Int64ObservableCounter
		name string
		desc string
		unit string
	}{
		{&met.BuffersCaptured, "echo.buffers.captured", "Buffers delivered by the capture callback.", "{buffer}"},
		{&met.BuffersPlayed, "echo.buffers.played", "Buffers consumed by the playback callback.", "{buffer}"},
		{&met.Underruns, "echo.playback.underruns", "Playback cycles filled with silence because no buffer was ready.", "{cycle}"},
		{&met.QueueDropped, "echo.queue.dropped", "Unread buffers displaced by newer capture.", "{buffer}"},
		{&met.QueueOverruns, "echo.queue.overruns", "Captured buffers that could not be queued for playback.", "{buffer}"},
		{&met.SinkDropped, "echo.sink.dropped", "Captured buffers not persisted to the sink file.", "{buffer}"},
		{&met.SinkBytes, "echo.sink.bytes", "Bytes written to the capture sink file.", "By"},
	}
	for _, c := range counters {
		if *c.dst, err = m.Int64ObservableCounter(c.name,
			metric.WithDescription(c.desc),
			metric.WithUnit(c.unit),
		); err != nil {
			return nil, err
		}
	}

	if met.PipelineState, err = m.Int64ObservableGauge("echo.pipeline.state",
		metric.WithDescription("Pipeline state: 0 idle, 1 echoing, 2 paused, 3 stopped."),
	); err != nil {
		return nil, err
	}

	opt := metric.WithAttributes(attrs...)
	met.registration, err = m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		if src.Stats != nil {
			s := src.Stats()
			o.ObserveInt64(met.BuffersCaptured, toInt64(s.BuffersCaptured), opt)
			o.ObserveInt64(met.BuffersPlayed, toInt64(s.BuffersPlayed), opt)
			o.ObserveInt64(met.Underruns, toInt64(s.Underruns), opt)
			o.ObserveInt64(met.QueueDropped, toInt64(s.QueueDropped), opt)
			o.ObserveInt64(met.QueueOverruns, toInt64(s.QueueOverruns), opt)
			o.ObserveInt64(met.SinkDropped, toInt64(s.SinkDropped), opt)
			o.ObserveInt64(met.SinkBytes, toInt64(s.SinkBytes), opt)
		}
		if src.State != nil {
			o.ObserveInt64(met.PipelineState, int64(src.State()), opt)
		}
		return nil
	},
		met.BuffersCaptured, met.BuffersPlayed, met.Underruns,
		met.QueueDropped, met.QueueOverruns, met.SinkDropped,
		met.SinkBytes, met.PipelineState,
	)
	if err != nil {
		return nil, err
	}
	return met, nil
}

// Unregister stops observing the source
func (m *Metrics) Unregister() error {
	if m.registration == nil {
		return nil
	}
	err := m.registration.Unregister()
	m.registration = nil
	return err
}

// Attr is a convenience alias for [attribute.String]
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

func toInt64(v uint64) int64 {
	if v > 1<<63-1 {
		return 1<<63 - 1
	}
	return int64(v)
}
