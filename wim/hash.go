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
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"hash"
)

// HashSize is the width, in bytes, of a stream's content hash. SHA-1 is
// fixed by spec §6 ("SHA-1 itself" is an external black box, not a
// design choice), so crypto/sha1 is used directly rather than routed
// through a third-party hashing library.
const HashSize = 20

// Hash is a stream's SHA-1 content identity.
type Hash [HashSize]byte

// IsZero reports whether h is the zero-valued hash, i.e. a stream
// descriptor whose hash has not yet been computed (spec §3, Stream
// Descriptor).
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// Equal reports whether h and o are the same hash.
func (h Hash) Equal(o Hash) bool {
	return h == o
}

// String renders h as lowercase hex, matching the conventional WIM
// digest representation.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// HashFromBytes copies the first HashSize bytes of b into a Hash. It
// panics if b is shorter than HashSize, mirroring the teacher's
// `hash.Hash` constructors which assume well-formed input from trusted
// on-disk structures.
func HashFromBytes(b []byte) Hash {
	if len(b) < HashSize {
		panic("wim: HashFromBytes: input shorter than HashSize")
	}
	var h Hash
	copy(h[:], b)
	return h
}

// HasherContext is an incremental SHA-1 context, matching the §6
// contract: Init/Update/Final plus the IsZero/Equal helpers above.
type HasherContext struct {
	h hash.Hash
}

// NewHasherContext returns an initialized incremental hasher.
func NewHasherContext() *HasherContext {
	return &HasherContext{h: sha1.New()}
}

// Update folds additional bytes into the running digest. It never
// returns an error: crypto/sha1's Write never fails.
func (c *HasherContext) Update(p []byte) {
	_, _ = c.h.Write(p)
}

// Final returns the finished digest. The context must not be reused
// afterward.
func (c *HasherContext) Final() Hash {
	var out Hash
	c.h.Sum(out[:0])
	return out
}

// sumBytes is a convenience one-shot SHA-1, used by tests.
func sumBytes(p []byte) Hash {
	return Hash(sha1.Sum(p))
}

// equalHash is the §6 `equal(h1, h2)` helper, kept as a free function
// for call sites that compare two possibly-zero hashes without an
// existing receiver value in scope.
func equalHash(a, b Hash) bool {
	return bytes.Equal(a[:], b[:])
}
