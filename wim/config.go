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
	"os"

	"github.com/BurntSushi/toml"
	"github.com/creasty/defaults"
)

// WriterConfig is the tunable surface of a write session: thread count,
// cache sizes, and the parallel/serial crossover point (spec §4.4's
// "below a size threshold, or if threads <= 1, fall back to the serial
// path"). Fields are tagged for both toml (on-disk config files) and
// creasty/defaults (programmatic zero-value construction), matching the
// pairing the wider example pack uses for CLI tool configuration.
type WriterConfig struct {
	Threads             int  `toml:"threads" default:"4"`
	FDCacheSize         int  `toml:"fd_cache_size" default:"32"`
	ChunkTableCacheSize int  `toml:"chunk_table_cache_size" default:"256"`
	ParallelThreshold   uint64 `toml:"parallel_threshold_bytes" default:"1048576"`
	Recompress          bool `toml:"recompress" default:"false"`
	AdvisoryLock        bool `toml:"advisory_lock" default:"true"`
}

// DefaultWriterConfig returns a WriterConfig populated entirely from its
// `default` struct tags.
func DefaultWriterConfig() *WriterConfig {
	cfg := &WriterConfig{}
	if err := defaults.Set(cfg); err != nil {
		// defaults.Set only fails on malformed struct tags, which is a
		// programmer error caught long before this ships.
		panic("wim: invalid WriterConfig defaults: " + err.Error())
	}
	return cfg
}

// LoadWriterConfig reads a TOML config file at path, applying
// defaults.Set first so that fields absent from the file keep their
// documented defaults rather than going to the Go zero value.
func LoadWriterConfig(path string) (*WriterConfig, error) {
	cfg := DefaultWriterConfig()
	f, err := os.Open(path)
	if err != nil {
		return nil, errf(ErrOpen, "open config %q: %v", path, err)
	}
	defer f.Close()

	if _, err := toml.NewDecoder(f).Decode(cfg); err != nil {
		return nil, errf(ErrInvalidParam, "parse config %q: %v", path, err)
	}
	return cfg, nil
}

// shouldUseParallel implements the serial/parallel crossover policy of
// spec §4.4: small jobs, or a thread count of 1, always go serial.
func (c *WriterConfig) shouldUseParallel(totalBytes uint64) bool {
	return c.Threads > 1 && totalBytes >= c.ParallelThreshold
}
