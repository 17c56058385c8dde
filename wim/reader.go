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
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// NativeSource is the capability set a native-backend stream location
// (spec §3, "native-backend location (opaque descriptor)") must
// implement. The core never interprets what's behind it; it only opens,
// reads, and closes.
type NativeSource interface {
	ReadAt(p []byte, off int64) (int, error)
	Close() error
}

// NativeOpener is implemented by StreamSource.Native values: a
// not-yet-opened capability descriptor that yields a NativeSource.
type NativeOpener interface {
	OpenNative() (NativeSource, error)
}

// ResourceReader implements the §4.2 contract: open/read/close over a
// stream's backing source, with cached handle reuse across chunk
// reads. One ResourceReader is shared by a whole WriteStreamList call
// (serial or parallel; in parallel mode only the coordinator reads).
// Source-file handles are cached by path, and parsed embedded chunk
// tables by archive path and offset.
type ResourceReader struct {
	files *fdCache

	// tableCache holds parsed embedded chunk tables, keyed by "path@offset".
	// Unlike fdCache this needs no refcounting: a ChunkTable is immutable
	// once parsed, so a plain size-bounded LRU (hashicorp/golang-lru) is
	// the right tool here, in contrast to fdCache's hand-rolled one.
	tableCache *lru.Cache[string, *ChunkTable]
}

// NewResourceReader returns a reader whose file-handle cache holds up
// to fdCacheSize open handles and whose chunk-table cache holds up to
// tableCacheSize parsed tables.
func NewResourceReader(fdCacheSize, tableCacheSize int) *ResourceReader {
	if fdCacheSize <= 0 {
		fdCacheSize = 32
	}
	if tableCacheSize <= 0 {
		tableCacheSize = 256
	}
	tc, _ := lru.New[string, *ChunkTable](tableCacheSize)
	return &ResourceReader{
		files:      newFDCache(fdCacheSize),
		tableCache: tc,
	}
}

// Close releases every cached file handle. It does not close
// ArchiveHandles passed in by callers; those are owned by the caller.
func (rr *ResourceReader) Close() {
	rr.files.Drop()
}

// Handle is the opaque object returned by Open.
type Handle struct {
	desc *StreamDescriptor
	raw  bool // caller wants the compressed bytes verbatim (raw-copy path)

	// SourceFile
	file     fileReader
	filePath string

	// SourceEmbedded
	archive      ArchiveHandle
	chunkTable   *ChunkTable
	decomp       Decompressor
	payloadStart uint64

	// SourceNative
	native NativeSource
}

type fileReader interface {
	ReadAt(p []byte, off int64) (int, error)
}

// Open prepares to read desc's bytes. raw requests the source's
// already-compressed bytes verbatim (used by the codec's raw-copy
// path); it is only meaningful, and only honored, when
// desc.SourceCompression != CompressionNone.
func (rr *ResourceReader) Open(desc *StreamDescriptor, raw bool) (*Handle, error) {
	h := &Handle{desc: desc, raw: raw && desc.SourceCompression != CompressionNone}

	switch desc.Source.Kind {
	case SourceFile:
		f, err := rr.files.RefFile(desc.Source.Path)
		if err != nil {
			return nil, errf(ErrOpen, "open source file %q: %v", desc.Source.Path, err)
		}
		h.file = f
		h.filePath = desc.Source.Path

	case SourceEmbedded:
		h.archive = desc.Source.Archive
		if h.raw {
			// Raw copy reads the whole encoded resource (table + payload)
			// verbatim; no decompression context is needed.
			return h, nil
		}
		if desc.SourceCompression == CompressionNone {
			return h, nil
		}
		decomp, err := DecompressorFor(desc.SourceCompression)
		if err != nil {
			return nil, err
		}
		h.decomp = decomp

		key := fmt.Sprintf("%s@%d", desc.Source.Archive.Path(), desc.Source.ArchiveOffset)
		if ct, ok := rr.tableCache.Get(key); ok {
			h.chunkTable = ct
		} else {
			n := numChunks(desc.Size)
			width := entryWidthFor(desc.Size)
			diskSize := 0
			if n > 1 {
				diskSize = width * (n - 1)
			}
			buf := make([]byte, diskSize)
			if diskSize > 0 {
				if _, err := desc.Source.Archive.ReaderAt().ReadAt(buf, int64(desc.Source.ArchiveOffset)); err != nil {
					return nil, errf(ErrRead, "read embedded chunk table: %v", err)
				}
			}
			ct, err := ParseChunkTable(buf, desc.Source.ArchiveOffset, n, width)
			if err != nil {
				return nil, err
			}
			rr.tableCache.Add(key, ct)
			h.chunkTable = ct
		}
		h.payloadStart = desc.Source.ArchiveOffset + uint64(h.chunkTable.DiskSize())

	case SourceNative:
		opener, ok := desc.Source.Native.(NativeOpener)
		if !ok {
			return nil, errf(ErrInvalidParam, "native source does not implement NativeOpener")
		}
		n, err := opener.OpenNative()
		if err != nil {
			return nil, errf(ErrOpen, "open native source: %v", err)
		}
		h.native = n

	default:
		return nil, errf(ErrInvalidParam, "unknown source kind %d", desc.Source.Kind)
	}

	return h, nil
}

// Read fills buf with exactly len(buf) bytes.
//
//   - Raw handles: offset is a byte offset within the source's encoded
//     resource (table + compressed payload); used to stream the whole
//     blob out verbatim.
//   - Non-raw SourceFile/SourceNative handles: offset is the logical
//     byte offset within the uncompressed stream.
//   - Non-raw SourceEmbedded handles with SourceCompression ==
//     CompressionNone: same as above (the embedded bytes are already
//     raw).
//   - Non-raw SourceEmbedded handles with compression: offset must be
//     chunk-aligned (a multiple of ChunkSize) and len(buf) must be the
//     size of that chunk; the chunk is transparently decompressed.
func (rr *ResourceReader) Read(h *Handle, buf []byte, offset uint64) error {
	if len(buf) == 0 {
		return nil
	}

	switch h.desc.Source.Kind {
	case SourceFile:
		return readAtFull(h.file, buf, int64(offset))

	case SourceNative:
		return readAtFull(h.native, buf, int64(offset))

	case SourceEmbedded:
		if h.raw {
			return readAtFull(h.archive.ReaderAt(), buf, int64(h.desc.Source.ArchiveOffset)+int64(offset))
		}
		if h.decomp == nil {
			return readAtFull(h.archive.ReaderAt(), buf, int64(h.desc.Source.ArchiveOffset)+int64(offset))
		}
		if offset%ChunkSize != 0 {
			return errf(ErrInvalidParam, "embedded compressed read must be chunk-aligned, got offset %d", offset)
		}
		idx := int(offset / ChunkSize)
		if idx < 0 || idx >= h.chunkTable.N() {
			return errf(ErrRead, "chunk index %d out of range (n=%d)", idx, h.chunkTable.N())
		}
		chunkStart := h.payloadStart + h.chunkTable.Offsets[idx]
		var chunkEnd uint64
		if idx+1 < h.chunkTable.N() {
			chunkEnd = h.payloadStart + h.chunkTable.Offsets[idx+1]
		} else {
			chunkEnd = h.payloadStart + h.desc.SourceCompressedSize - uint64(h.chunkTable.DiskSize())
		}
		compSize := chunkEnd - chunkStart
		// A chunk whose compressed size equals its uncompressed size was
		// stored raw (spec §9: no per-chunk marker bit, tracked only
		// through relative offsets).
		if compSize == uint64(len(buf)) {
			return readAtFull(h.archive.ReaderAt(), buf, int64(chunkStart))
		}
		compressed := make([]byte, compSize)
		if err := readAtFull(h.archive.ReaderAt(), compressed, int64(chunkStart)); err != nil {
			return err
		}
		out, err := h.decomp.Decompress(make([]byte, 0, len(buf)), compressed)
		if err != nil {
			return errf(ErrRead, "decompress chunk %d: %v", idx, err)
		}
		if len(out) != len(buf) {
			return errf(ErrRead, "decompressed chunk %d size mismatch: got %d want %d", idx, len(out), len(buf))
		}
		copy(buf, out)
		return nil

	default:
		return errf(ErrInvalidParam, "unknown source kind %d", h.desc.Source.Kind)
	}
}

// Close releases whatever h holds: a ref on a cached file handle, or a
// native source. Embedded-archive handles are not owned by Close; the
// caller that opened the ArchiveHandle closes it.
func (rr *ResourceReader) Close(h *Handle) error {
	if h.filePath != "" {
		return rr.files.UnrefFile(h.filePath)
	}
	if h.native != nil {
		return h.native.Close()
	}
	return nil
}

func readAtFull(r interface{ ReadAt([]byte, int64) (int, error) }, buf []byte, off int64) error {
	n, err := r.ReadAt(buf, off)
	if err != nil {
		return errf(ErrRead, "short or failed read at offset %d: %v", off, err)
	}
	if n != len(buf) {
		return errf(ErrRead, "short read at offset %d: got %d want %d", off, n, len(buf))
	}
	return nil
}
