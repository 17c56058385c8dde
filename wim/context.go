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
	"go.uber.org/zap"
)

// WriterContext bundles the long-lived collaborators a write session
// shares: the resource reader (with its fd and chunk-table caches), the
// prometheus collectors, and the logger. One WriterContext is built per
// archive-writing session and handed to both the serial and parallel
// writers, matching the way the teacher threads a shared store handle
// plus *Stats through its read/write call graph.
type WriterContext struct {
	Reader  *ResourceReader
	Metrics *Metrics
	Log     *zap.SugaredLogger
	Config  *WriterConfig
}

// NewWriterContext wires up a WriterContext from cfg (DefaultWriterConfig
// when nil), creating a production zap logger when log is nil. metrics
// is stored as given; a nil metrics means no instrumentation.
func NewWriterContext(cfg *WriterConfig, log *zap.SugaredLogger, metrics *Metrics) *WriterContext {
	if cfg == nil {
		cfg = DefaultWriterConfig()
	}
	if log == nil {
		l, _ := zap.NewProduction()
		log = l.Sugar()
	}
	return &WriterContext{
		Reader:  NewResourceReader(cfg.FDCacheSize, cfg.ChunkTableCacheSize),
		Metrics: metrics,
		Log:     log,
		Config:  cfg,
	}
}

// Close releases the context's cached file handles. It does not close
// the logger (callers own *zap.Logger's lifecycle, since it is commonly
// shared across many unrelated subsystems).
func (wc *WriterContext) Close() {
	wc.Reader.Close()
}
