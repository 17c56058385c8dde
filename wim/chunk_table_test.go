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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkTable_NAndDiskSize(t *testing.T) {
	tbl := NewChunkTable(ChunkSize*3 + 1)
	assert.Equal(t, 4, tbl.N())
	assert.Equal(t, entryWidth32*3, tbl.DiskSize())

	empty := NewChunkTable(0)
	assert.Equal(t, 0, empty.N())
	assert.Equal(t, 0, empty.DiskSize())

	single := NewChunkTable(100)
	assert.Equal(t, 1, single.N())
	assert.Equal(t, 0, single.DiskSize(), "a single-chunk stream has no table entries to write")
}

func TestChunkTable_EntryWidthBySize(t *testing.T) {
	small := NewChunkTable(1 << 20)
	assert.Equal(t, entryWidth32, small.EntryWidth)

	large := NewChunkTable(sizeThresholdFor64BitEntries)
	assert.Equal(t, entryWidth64, large.EntryWidth)
}

func TestChunkTable_MarshalParseRoundTrip(t *testing.T) {
	tbl := NewChunkTable(ChunkSize*4 + 17)
	require.Equal(t, 5, tbl.N())
	for i := 1; i < tbl.N(); i++ {
		tbl.Set(i, uint64(i)*1000)
	}
	assert.True(t, tbl.Monotonic())

	encoded := tbl.Marshal()
	parsed, err := ParseChunkTable(encoded, 212, tbl.N(), tbl.EntryWidth)
	require.NoError(t, err)
	assert.Equal(t, tbl.Offsets, parsed.Offsets)
	assert.EqualValues(t, 212, parsed.TableOffset)
}

func TestChunkTable_ParseTruncated(t *testing.T) {
	tbl := NewChunkTable(ChunkSize*2 + 1)
	encoded := tbl.Marshal()
	_, err := ParseChunkTable(encoded[:len(encoded)-1], 0, tbl.N(), tbl.EntryWidth)
	assert.Error(t, err)
}

func TestChunkTable_MonotonicDetectsViolation(t *testing.T) {
	tbl := NewChunkTable(ChunkSize*3 + 1)
	tbl.Set(1, 100)
	tbl.Set(2, 50) // non-increasing
	tbl.Set(3, 200)
	assert.False(t, tbl.Monotonic())
}
