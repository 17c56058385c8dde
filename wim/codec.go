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
	"io"
)

// OutputFile is the narrow sequential-with-seek contract the codec and
// finalizer need (spec §6, "Output file"). *os.File satisfies it.
type OutputFile interface {
	io.Writer
	io.Seeker
	Truncate(size int64) error
	Sync() error
}

// WriteStreamOptions controls one write_stream call.
type WriteStreamOptions struct {
	OutKind    CompressionKind
	Recompress bool
}

// WriteStream implements the Chunked Resource Codec contract of spec
// §4.1: read desc.Size bytes from its source, write an encoded stream
// at the output file's current position, and return the resulting
// ResourceRecord. It updates desc.Hash if it was zero, or fails with
// ErrInvalidResourceHash if the computed digest disagrees.
func WriteStream(rr *ResourceReader, comp Compressor, out OutputFile, desc *StreamDescriptor, opts WriteStreamOptions, stats *Stats) (*ResourceRecord, error) {
	fileOffset, err := out.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, errf(ErrWrite, "seek current: %v", err)
	}

	if desc.NeedsNoBytes() {
		return &ResourceRecord{Offset: uint64(fileOffset), UncompressedSize: 0, CompressedSize: 0}, nil
	}

	raw := desc.eligibleForRawCopy(opts.OutKind, opts.Recompress)

	h, err := rr.Open(desc, raw)
	if err != nil {
		return nil, err
	}
	defer rr.Close(h)

	if raw {
		return writeRawCopy(rr, h, out, desc, uint64(fileOffset), stats)
	}

	return writeChunked(rr, h, comp, out, desc, opts, uint64(fileOffset), stats)
}

// writeRawCopy implements spec §4.1 step 1: copy the source's
// already-compressed bytes verbatim, bypassing hashing.
func writeRawCopy(rr *ResourceReader, h *Handle, out OutputFile, desc *StreamDescriptor, fileOffset uint64, stats *Stats) (*ResourceRecord, error) {
	remaining := desc.SourceCompressedSize
	var off uint64
	buf := make([]byte, minU64(ChunkSize, remaining))
	for remaining > 0 {
		n := minU64(uint64(len(buf)), remaining)
		chunk := buf[:n]
		if err := rr.Read(h, chunk, off); err != nil {
			return nil, err
		}
		if _, err := out.Write(chunk); err != nil {
			return nil, errf(ErrWrite, "raw copy write: %v", err)
		}
		off += n
		remaining -= n
		stats.addBytesWritten(n)
	}
	stats.addRawCopy()
	return &ResourceRecord{
		Offset:           fileOffset,
		CompressedSize:   desc.SourceCompressedSize,
		UncompressedSize: desc.Size,
		Flags:            FlagCompressed,
	}, nil
}

// writeChunked implements spec §4.1 steps 2-6: the per-chunk compress
// loop, chunk-table reservation/patching, SHA-1 verification, and the
// anti-expansion fallback.
func writeChunked(rr *ResourceReader, h *Handle, comp Compressor, out OutputFile, desc *StreamDescriptor, opts WriteStreamOptions, fileOffset uint64, stats *Stats) (*ResourceRecord, error) {
	compressing := opts.OutKind != CompressionNone
	table := NewChunkTable(desc.Size)

	if compressing {
		if err := reserveTableSpace(out, table.DiskSize()); err != nil {
			return nil, err
		}
	}

	hasher := NewHasherContext()
	var running uint64
	remaining := desc.Size
	inBuf := make([]byte, ChunkSize)
	outBuf := make([]byte, ChunkSize)

	for i := 0; i < table.N(); i++ {
		toRead := minU64(remaining, ChunkSize)
		chunk := inBuf[:toRead]
		if err := rr.Read(h, chunk, uint64(i)*ChunkSize); err != nil {
			return nil, err
		}
		hasher.Update(chunk)
		stats.addBytesRead(toRead)

		var outChunk []byte
		if compressing {
			enc, err := comp.Compress(outBuf[:0], chunk)
			if err == ErrDidNotShrink {
				outChunk = chunk
			} else if err != nil {
				return nil, errf(ErrWrite, "compress chunk %d: %v", i, err)
			} else {
				outChunk = enc
				stats.addChunkCompressed()
			}
		} else {
			outChunk = chunk
		}

		if _, err := out.Write(outChunk); err != nil {
			return nil, errf(ErrWrite, "write chunk %d: %v", i, err)
		}
		table.Set(i, running)
		running += uint64(len(outChunk))
		remaining -= toRead
		stats.addBytesWritten(uint64(len(outChunk)))
	}

	var totalPayload uint64
	if compressing {
		if err := patchTable(out, table, fileOffset); err != nil {
			return nil, err
		}
		totalPayload = uint64(table.DiskSize()) + running
	} else {
		totalPayload = running
	}

	computed := hasher.Final()
	if desc.Hash.IsZero() {
		desc.Hash = computed
	} else if !equalHash(desc.Hash, computed) {
		return nil, errf(ErrInvalidResourceHash, "stream hash mismatch: want %s got %s", desc.Hash, computed)
	}

	record := &ResourceRecord{
		Offset:           fileOffset,
		CompressedSize:   totalPayload,
		UncompressedSize: desc.Size,
	}
	if compressing {
		record.Flags |= FlagCompressed
	}

	// Anti-expansion fallback (spec §4.1 step 6, testable property #5).
	if compressing && totalPayload >= desc.Size {
		if err := rewriteUncompressed(rr, h, out, desc, fileOffset, stats); err != nil {
			return nil, err
		}
		record.CompressedSize = desc.Size
		record.Flags &^= FlagCompressed
		stats.addAntiExpansion()
	}

	return record, nil
}

// reserveTableSpace writes diskSize zero bytes at the current output
// position, to be patched once all chunk offsets are known (spec §4.1
// step 2).
func reserveTableSpace(out OutputFile, diskSize int) error {
	if diskSize == 0 {
		return nil
	}
	zeros := make([]byte, diskSize)
	if _, err := out.Write(zeros); err != nil {
		return errf(ErrWrite, "reserve chunk table: %v", err)
	}
	return nil
}

// patchTable seeks back to the table's reserved region, writes the
// final offsets, and returns to the end of the stream (spec §4.1 step
// 4).
func patchTable(out OutputFile, table *ChunkTable, fileOffset uint64) error {
	end, err := out.Seek(0, io.SeekCurrent)
	if err != nil {
		return errf(ErrWrite, "seek current: %v", err)
	}
	if _, err := out.Seek(int64(fileOffset), io.SeekStart); err != nil {
		return errf(ErrWrite, "seek to table offset: %v", err)
	}
	if _, err := out.Write(table.Marshal()); err != nil {
		return errf(ErrWrite, "patch chunk table: %v", err)
	}
	if _, err := out.Seek(end, io.SeekStart); err != nil {
		return errf(ErrWrite, "seek to end: %v", err)
	}
	return nil
}

// rewriteUncompressed implements the rest of spec §4.1 step 6: rewind
// to fileOffset, rewrite the stream uncompressed, and truncate the file
// to fileOffset + size.
func rewriteUncompressed(rr *ResourceReader, h *Handle, out OutputFile, desc *StreamDescriptor, fileOffset uint64, stats *Stats) error {
	if _, err := out.Seek(int64(fileOffset), io.SeekStart); err != nil {
		return errf(ErrWrite, "seek to table offset: %v", err)
	}

	buf := make([]byte, ChunkSize)
	var off uint64
	remaining := desc.Size
	for remaining > 0 {
		n := minU64(ChunkSize, remaining)
		chunk := buf[:n]
		if err := rr.Read(h, chunk, off); err != nil {
			return err
		}
		if _, err := out.Write(chunk); err != nil {
			return errf(ErrWrite, "rewrite uncompressed: %v", err)
		}
		off += n
		remaining -= n
	}

	if err := out.Truncate(int64(fileOffset + desc.Size)); err != nil {
		return errf(ErrWrite, "truncate after anti-expansion: %v", err)
	}
	if _, err := out.Seek(int64(fileOffset+desc.Size), io.SeekStart); err != nil {
		return errf(ErrWrite, "seek to new end: %v", err)
	}
	return nil
}
