// Copyright 2026 The WimLib Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package wim

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Stats is the progress aggregate threaded through every write
// operation, named and shaped after the *Stats parameter the teacher
// threads through nbs's read/write calls. Every field is updated with
// atomic ops since workers and the coordinator may touch it
// concurrently in parallel mode (spec §5: "Shared resources").
type Stats struct {
	BytesRead        uint64
	BytesWritten     uint64
	StreamsWritten   uint64
	ChunksCompressed uint64
	RawCopies        uint64
	AntiExpansions   uint64
}

func (s *Stats) addBytesRead(n uint64)     { atomic.AddUint64(&s.BytesRead, n) }
func (s *Stats) addBytesWritten(n uint64)  { atomic.AddUint64(&s.BytesWritten, n) }
func (s *Stats) addStreamWritten()         { atomic.AddUint64(&s.StreamsWritten, 1) }
func (s *Stats) addChunkCompressed()       { atomic.AddUint64(&s.ChunksCompressed, 1) }
func (s *Stats) addRawCopy()               { atomic.AddUint64(&s.RawCopies, 1) }
func (s *Stats) addAntiExpansion()         { atomic.AddUint64(&s.AntiExpansions, 1) }

// Metrics bundles prometheus collectors for the writer, mirroring
// dolt's prometheus/client_golang wiring at the store layer. Of these,
// only CompressDuration is updated, by the parallel writer's workers;
// StreamsWritten, BytesWritten and QueueDepth are registered but not
// updated by this package. A nil *Metrics, or a nil CompressDuration,
// is valid and simply skips instrumentation; NewWriterContext stores
// whatever *Metrics it is given, nil included.
type Metrics struct {
	StreamsWritten   prometheus.Counter
	BytesWritten     prometheus.Counter
	QueueDepth       prometheus.Gauge
	CompressDuration prometheus.Histogram
}

// NewMetrics registers a fresh set of collectors on reg (pass
// prometheus.NewRegistry() in tests to avoid collisions with the global
// default registry).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		StreamsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wim_streams_written_total",
			Help: "Number of streams written to the archive.",
		}),
		BytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wim_bytes_written_total",
			Help: "Number of compressed-or-raw bytes written to the archive.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wim_compress_queue_depth",
			Help: "Messages currently queued for compression.",
		}),
		CompressDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "wim_compress_duration_seconds",
			Help: "Time spent compressing one message's chunks.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.StreamsWritten, m.BytesWritten, m.QueueDepth, m.CompressDuration)
	}
	return m
}
