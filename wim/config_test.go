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
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultWriterConfig(t *testing.T) {
	cfg := DefaultWriterConfig()
	assert.Equal(t, 4, cfg.Threads)
	assert.Equal(t, 32, cfg.FDCacheSize)
	assert.Equal(t, 256, cfg.ChunkTableCacheSize)
	assert.EqualValues(t, 1048576, cfg.ParallelThreshold)
	assert.False(t, cfg.Recompress)
	assert.True(t, cfg.AdvisoryLock)
}

func TestLoadWriterConfigOverridesSomeFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wim.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
threads = 8
recompress = true
`), 0644))

	cfg, err := LoadWriterConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Threads)
	assert.True(t, cfg.Recompress)
	// Fields absent from the file keep their documented defaults.
	assert.Equal(t, 32, cfg.FDCacheSize)
}

func TestLoadWriterConfigMissingFile(t *testing.T) {
	_, err := LoadWriterConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestShouldUseParallel(t *testing.T) {
	cfg := DefaultWriterConfig()
	assert.False(t, cfg.shouldUseParallel(100))
	assert.True(t, cfg.shouldUseParallel(cfg.ParallelThreshold))

	cfg.Threads = 1
	assert.False(t, cfg.shouldUseParallel(cfg.ParallelThreshold*2))
}
