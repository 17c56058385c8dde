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
	"github.com/dolthub/gozstd"
	"github.com/golang/snappy"
)

// ErrDidNotShrink is the compressor's "well-defined sentinel" from spec
// §6 / §9: a normal, expected outcome, not a failure. Callers fall back
// to storing the chunk uncompressed.
var ErrDidNotShrink = errDidNotShrink{}

type errDidNotShrink struct{}

func (errDidNotShrink) Error() string { return "wim: chunk did not shrink" }

// Compressor is the external collaborator contract of spec §6: given a
// chunk of at most ChunkSize input bytes, either compress it into dst
// (returning the bytes actually used) or report ErrDidNotShrink. The
// real engine treats LZX and XPRESS as black boxes behind this
// interface; this package supplies two concrete, ecosystem-backed
// stand-ins (see DESIGN.md) so the codec, anti-expansion path and
// "did-not-shrink" sentinel are all exercised end-to-end.
type Compressor interface {
	// Compress writes a compressed form of src into dst and returns the
	// slice of dst actually used. dst is guaranteed to be at least
	// len(src)-1 bytes (spec §6). Returns ErrDidNotShrink, never any
	// other error, if compression would not save space.
	Compress(dst, src []byte) ([]byte, error)

	// Kind identifies which on-disk compression tag this compressor
	// implements.
	Kind() CompressionKind
}

// Decompressor is the read-side counterpart used by the Resource Reader
// (spec §4.2) to expand a stream's chunks back to raw bytes.
type Decompressor interface {
	Decompress(dst, src []byte) ([]byte, error)
	Kind() CompressionKind
}

// xpressCodec backs the "xpress" compression kind with
// github.com/golang/snappy's block format. Real XPRESS is an LZ77 +
// Huffman codec tuned for speed; snappy fills the same architectural
// role (fast, modest ratio) and is a genuine dependency of the teacher
// repo, unlike a hand-rolled placeholder.
type xpressCodec struct{}

func NewXpressCompressor() Compressor     { return xpressCodec{} }
func NewXpressDecompressor() Decompressor { return xpressCodec{} }

func (xpressCodec) Kind() CompressionKind { return CompressionXpress }

func (xpressCodec) Compress(dst, src []byte) ([]byte, error) {
	out := snappy.Encode(dst, src)
	if len(out) >= len(src) {
		return nil, ErrDidNotShrink
	}
	return out, nil
}

func (xpressCodec) Decompress(dst, src []byte) ([]byte, error) {
	out, err := snappy.Decode(dst, src)
	if err != nil {
		return nil, wrapErr(err, "xpress decompress")
	}
	return out, nil
}

// lzxCodec backs the "lzx" compression kind with
// github.com/dolthub/gozstd, a cgo binding to zstd. LZX trades speed for
// ratio relative to XPRESS; zstd at a moderate level fills that role and
// is, again, a real dependency carried over from the teacher's go.mod.
type lzxCodec struct {
	level int
}

func NewLZXCompressor() Compressor     { return lzxCodec{level: 9} }
func NewLZXDecompressor() Decompressor { return lzxCodec{} }

func (lzxCodec) Kind() CompressionKind { return CompressionLZX }

func (c lzxCodec) Compress(dst, src []byte) ([]byte, error) {
	out := gozstd.CompressLevel(dst[:0], src, c.level)
	if len(out) >= len(src) {
		return nil, ErrDidNotShrink
	}
	return out, nil
}

func (lzxCodec) Decompress(dst, src []byte) ([]byte, error) {
	out, err := gozstd.Decompress(dst[:0], src)
	if err != nil {
		return nil, wrapErr(err, "lzx decompress")
	}
	return out, nil
}

// CompressorFor and DecompressorFor resolve the built-in codec for a
// requested CompressionKind. CompressionNone has no compressor; callers
// must special-case it per spec §4.1 step 1.
func CompressorFor(kind CompressionKind) (Compressor, error) {
	switch kind {
	case CompressionXpress:
		return NewXpressCompressor(), nil
	case CompressionLZX:
		return NewLZXCompressor(), nil
	default:
		return nil, errf(ErrInvalidParam, "no compressor for kind %s", kind)
	}
}

func DecompressorFor(kind CompressionKind) (Decompressor, error) {
	switch kind {
	case CompressionXpress:
		return NewXpressDecompressor(), nil
	case CompressionLZX:
		return NewLZXDecompressor(), nil
	default:
		return nil, errf(ErrInvalidParam, "no decompressor for kind %s", kind)
	}
}
