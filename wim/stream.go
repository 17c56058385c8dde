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

import "sync/atomic"

// SourceKind discriminates where a StreamDescriptor's bytes currently
// live (spec §3, "source location variant").
type SourceKind int

const (
	// SourceEmbedded means the stream's bytes are already part of an
	// existing WIM archive, at a known offset.
	SourceEmbedded SourceKind = iota
	// SourceFile means the stream's bytes live in a standalone file on
	// disk (e.g. a file being captured into a new image).
	SourceFile
	// SourceNative means the stream's bytes are reached through an
	// opaque, backend-specific descriptor (e.g. a Windows native handle
	// for a reparse point or ADS). The core never interprets it.
	SourceNative
)

// StreamSource is the union described in spec §3. Exactly one of the
// three field groups is meaningful, selected by Kind.
type StreamSource struct {
	Kind SourceKind

	// SourceEmbedded
	Archive       ArchiveHandle
	ArchiveOffset uint64

	// SourceFile
	Path string

	// SourceNative
	Native interface{}
}

// ArchiveHandle is the narrow interface a Resource Reader needs to pull
// bytes from an existing archive: a seekable, readable backing store
// plus its path (used in the Resource Reader's chunk-table cache keys).
type ArchiveHandle interface {
	ReaderAt() ReaderAtCloser
	Path() string
}

// ReaderAtCloser is satisfied by *os.File and by the mmap-backed source
// in mmap_source.go.
type ReaderAtCloser interface {
	ReadAt(p []byte, off int64) (int, error)
}

// StreamDescriptor uniquely identifies one content stream and carries
// everything the engine needs to read, compress, and record it (spec
// §3). Zero value is a valid, not-yet-hashed, empty stream.
type StreamDescriptor struct {
	// Hash is the stream's content hash. It may be the zero Hash when
	// the descriptor is constructed before the bytes are known (e.g.
	// freshly captured files); write_stream populates it.
	Hash Hash

	// Size is the stream's uncompressed length in bytes.
	Size uint64

	// SourceCompression is the compression kind the bytes are *currently*
	// stored in, at Source. CompressionNone if the source is raw.
	SourceCompression CompressionKind

	// SourceCompressedSize is the current on-disk compressed size at
	// Source; meaningful only when SourceCompression != CompressionNone.
	SourceCompressedSize uint64

	Source StreamSource

	// refCount is the incoming reference count (how many dentries point
	// at this stream). outRefCount is how many of the *target* archive's
	// images will reference it once finalization completes. Both are
	// accessed with atomic ops since multiple parallel-writer workers
	// may observe them for logging/metrics without synchronizing through
	// the coordinator.
	refCount    int32
	outRefCount int32

	// OutRecord is populated once write_stream (or the parallel writer's
	// drain phase) finishes emitting this stream.
	OutRecord *ResourceRecord
}

// NeedsNoBytes reports the spec §3 invariant: a zero-size stream needs
// no bytes written, only a degenerate resource record.
func (d *StreamDescriptor) NeedsNoBytes() bool {
	return d.Size == 0
}

func (d *StreamDescriptor) RefCount() int32    { return atomic.LoadInt32(&d.refCount) }
func (d *StreamDescriptor) AddRef()            { atomic.AddInt32(&d.refCount, 1) }
func (d *StreamDescriptor) OutRefCount() int32 { return atomic.LoadInt32(&d.outRefCount) }
func (d *StreamDescriptor) AddOutRef()         { atomic.AddInt32(&d.outRefCount, 1) }

// eligibleForRawCopy implements spec §4.1 step 1: the source's current
// compression equals the requested output kind, the kind is not `none`,
// and the caller did not force recompression.
func (d *StreamDescriptor) eligibleForRawCopy(outKind CompressionKind, recompress bool) bool {
	return !recompress && outKind != CompressionNone && d.SourceCompression == outKind
}

// ResourceRecord is what the lookup table stores for one stream (spec
// §3): absolute offset, compressed size, uncompressed size, and flags.
type ResourceRecord struct {
	Offset           uint64
	CompressedSize   uint64
	UncompressedSize uint64
	Flags            ResourceFlag
}

// Compressed reports whether the FlagCompressed bit is set.
func (r *ResourceRecord) Compressed() bool {
	return r.Flags&FlagCompressed != 0
}
