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

// ChunkTable is the per-stream chunk offset table described in spec §3.
// offsets[i] is the byte offset of chunk i relative to the end of the
// table itself; offsets[0] is always zero and is never written to disk,
// so the on-disk form is (n-1) entries wide.
type ChunkTable struct {
	// TableOffset is the absolute file offset at which this table (or,
	// if N <= 1, where it would have been) begins.
	TableOffset uint64

	// EntryWidth is 4 or 8 bytes, chosen by entryWidthFor(size).
	EntryWidth int

	// Offsets holds all n entries, including the implicit offsets[0] ==
	// 0. len(Offsets) == N.
	Offsets []uint64
}

// NewChunkTable allocates a table sized for a stream of `size`
// uncompressed bytes.
func NewChunkTable(size uint64) *ChunkTable {
	n := numChunks(size)
	return &ChunkTable{
		EntryWidth: entryWidthFor(size),
		Offsets:    make([]uint64, n),
	}
}

// N is the chunk count.
func (t *ChunkTable) N() int { return len(t.Offsets) }

// DiskSize is entry_width * (n-1): the table omits the always-zero
// offsets[0] (spec §3).
func (t *ChunkTable) DiskSize() int {
	if t.N() <= 1 {
		return 0
	}
	return t.EntryWidth * (t.N() - 1)
}

// Set records offsets[i] = off, the running payload offset after
// writing chunk i's compressed (or raw, on anti-expansion) bytes.
func (t *ChunkTable) Set(i int, off uint64) {
	t.Offsets[i] = off
}

// Marshal encodes offsets[1:n] little-endian at EntryWidth bytes each
// (spec §4.1 step 4). offsets[0] is always implicit zero and is not
// written.
func (t *ChunkTable) Marshal() []byte {
	size := t.DiskSize()
	b := make([]byte, size)
	for i := 1; i < t.N(); i++ {
		putUintLE(b[(i-1)*t.EntryWidth:], t.EntryWidth, t.Offsets[i])
	}
	return b
}

// ParseChunkTable decodes a table previously produced by Marshal. n is
// the chunk count (derived from the stream's recorded uncompressed
// size), entryWidth is 4 or 8.
func ParseChunkTable(b []byte, tableOffset uint64, n int, entryWidth int) (*ChunkTable, error) {
	t := &ChunkTable{
		TableOffset: tableOffset,
		EntryWidth:  entryWidth,
		Offsets:     make([]uint64, n),
	}
	want := entryWidth * (n - 1)
	if n > 1 && len(b) < want {
		return nil, errf(ErrRead, "chunk table truncated: have %d bytes, want %d", len(b), want)
	}
	for i := 1; i < n; i++ {
		t.Offsets[i] = getUintLE(b[(i-1)*entryWidth:], entryWidth)
	}
	return t, nil
}

// Monotonic verifies the testable property from spec §8 (#3): within a
// written stream, offsets[i+1] > offsets[i] for all i with more than
// zero bytes of payload following. Used by tests and as a defensive
// check before trusting a parsed table.
func (t *ChunkTable) Monotonic() bool {
	for i := 1; i < t.N(); i++ {
		if t.Offsets[i] <= t.Offsets[i-1] {
			return false
		}
	}
	return true
}
