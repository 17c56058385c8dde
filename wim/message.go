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

// overreadSlack is the "+8" in spec §4.4's scratch sizing: it safely
// accommodates over-read by an LZ77-style matcher operating on the
// input buffer in place.
const overreadSlack = 8

// Message is the unit of work for parallel mode (spec §3). It is
// allocated once at pool init and recycled through the coordinator's
// free-list; workers mutate only the fields below, never anything
// shared.
type Message struct {
	stream     *inFlightStream
	beginChunk int
	numChunks  int

	// in/out are pre-allocated scratch; inSize/outSize record how much
	// of each is actually in use for this dispatch. raw[i] records that
	// chunk i's compressor returned ErrDidNotShrink, so the writer must
	// write in[i][:inSize[i]] instead of out[i][:outSize[i]] for that
	// chunk. raw is in-memory bookkeeping only: nothing per chunk is
	// written to disk to mark it, the chunk table's offsets alone show
	// which chunks are stored uncompressed.
	in      [MaxChunksPerMsg][]byte
	out     [MaxChunksPerMsg][]byte
	inSize  [MaxChunksPerMsg]int
	outSize [MaxChunksPerMsg]int
	raw     [MaxChunksPerMsg]bool

	complete bool
}

// chunkBytes returns the bytes the writer should emit for chunk i of
// this message (already compressed, or raw if compression did not
// shrink it).
func (m *Message) chunkBytes(i int) []byte {
	if m.raw[i] {
		return m.in[i][:m.inSize[i]]
	}
	return m.out[i][:m.outSize[i]]
}

// newMessage allocates one Message's scratch buffers up front, per spec
// §4.4: "Pool of S messages, each owning
// MAX_CHUNKS_PER_MSG x (CHUNK_SIZE + 8) bytes of uncompressed scratch
// and MAX_CHUNKS_PER_MSG x CHUNK_SIZE bytes of compressed scratch".
func newMessage() *Message {
	m := &Message{}
	for i := 0; i < MaxChunksPerMsg; i++ {
		m.in[i] = make([]byte, ChunkSize+overreadSlack)
		m.out[i] = make([]byte, ChunkSize)
	}
	return m
}

// messagePool is the coordinator-owned free-list from spec §3/§4.4. It
// is never touched by workers and therefore needs no locking: only the
// coordinator goroutine calls get/put.
type messagePool struct {
	free []*Message
}

// newMessagePool allocates S = ceil(threads * 2) messages up front.
func newMessagePool(threads int) *messagePool {
	size := threads * 2
	if size < 2 {
		size = 2
	}
	p := &messagePool{free: make([]*Message, 0, size)}
	for i := 0; i < size; i++ {
		p.free = append(p.free, newMessage())
	}
	return p
}

func (p *messagePool) empty() bool { return len(p.free) == 0 }

func (p *messagePool) get() *Message {
	n := len(p.free)
	m := p.free[n-1]
	p.free = p.free[:n-1]
	return m
}

func (p *messagePool) put(m *Message) {
	m.stream = nil
	m.complete = false
	p.free = append(p.free, m)
}
