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

func TestMessagePoolSizing(t *testing.T) {
	p := newMessagePool(4)
	assert.Len(t, p.free, 8)
	assert.False(t, p.empty())

	tiny := newMessagePool(0)
	assert.Len(t, tiny.free, 2, "pool size floors at 2 even for threads <= 1")
}

func TestMessagePoolGetPutRecyclesState(t *testing.T) {
	p := newMessagePool(1)
	m := p.get()
	m.stream = &inFlightStream{index: 7}
	m.complete = true
	m.beginChunk = 3

	p.put(m)
	assert.Nil(t, m.stream)
	assert.False(t, m.complete)

	got := p.get()
	assert.Same(t, m, got, "free-list is LIFO over a single message, so get() returns the just-recycled one")
}

func TestMessagePoolExhaustion(t *testing.T) {
	p := newMessagePool(1) // size floors at 2
	require.False(t, p.empty())
	p.get()
	require.False(t, p.empty())
	p.get()
	assert.True(t, p.empty())
}

func TestMessageChunkBytesPrefersRawOnNoShrink(t *testing.T) {
	m := newMessage()
	copy(m.in[0], []byte("hello"))
	m.inSize[0] = 5
	m.raw[0] = true

	assert.Equal(t, []byte("hello"), m.chunkBytes(0))

	copy(m.out[0], []byte("HI"))
	m.outSize[0] = 2
	m.raw[0] = false
	assert.Equal(t, []byte("HI"), m.chunkBytes(0))
}
