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

import "encoding/binary"

// On-disk constants, fixed by the format (spec §6).
const (
	// ChunkSize is the uncompressed size of one chunk within a stream.
	ChunkSize = 32768

	// HeaderSize is the fixed size, in bytes, of the archive header.
	HeaderSize = 212

	// entryWidth32 / entryWidth64 are the two chunk-table entry widths;
	// the 8-byte form is used once a stream's uncompressed size reaches
	// 2^32 bytes.
	entryWidth32 = 4
	entryWidth64 = 8

	sizeThresholdFor64BitEntries = uint64(1) << 32

	// MaxChunksPerMsg bounds how many chunks one parallel-writer Message
	// carries; kept small so scratch buffers stay bounded (spec §3/§4.4).
	MaxChunksPerMsg = 2
)

// CompressionKind identifies the codec a stream's bytes are compressed
// with. The numeric values are reused from the archive header, so they
// must not be renumbered.
type CompressionKind uint32

const (
	CompressionNone CompressionKind = iota
	CompressionXpress
	CompressionLZX
)

func (k CompressionKind) String() string {
	switch k {
	case CompressionNone:
		return "none"
	case CompressionXpress:
		return "xpress"
	case CompressionLZX:
		return "lzx"
	default:
		return "unknown"
	}
}

// ResourceFlag bits stored alongside each ResourceRecord in the lookup
// table.
type ResourceFlag uint8

const (
	// FlagCompressed marks a resource whose payload is chunk-compressed.
	// It is cleared by the anti-expansion fallback (spec §4.1 step 6).
	FlagCompressed ResourceFlag = 1 << iota
	FlagMetadata
	FlagFree
	FlagSpanned
)

// entryWidthFor returns the chunk-table entry width for a stream of the
// given uncompressed size (spec §3, "Chunk Table" invariants; testable
// property 4).
func entryWidthFor(size uint64) int {
	if size >= sizeThresholdFor64BitEntries {
		return entryWidth64
	}
	return entryWidth32
}

// putUintLE writes v into b using `width` bytes, little-endian. width
// must be 4 or 8. This is the explicit byte-pack replacement the design
// notes (§9) call for in place of raw integer punning.
func putUintLE(b []byte, width int, v uint64) {
	switch width {
	case entryWidth32:
		binary.LittleEndian.PutUint32(b, uint32(v))
	case entryWidth64:
		binary.LittleEndian.PutUint64(b, v)
	default:
		panic("wim: invalid chunk table entry width")
	}
}

// getUintLE reads a little-endian integer of `width` bytes (4 or 8).
func getUintLE(b []byte, width int) uint64 {
	switch width {
	case entryWidth32:
		return uint64(binary.LittleEndian.Uint32(b))
	case entryWidth64:
		return binary.LittleEndian.Uint64(b)
	default:
		panic("wim: invalid chunk table entry width")
	}
}

// numChunks returns ceil(size / ChunkSize), the chunk count `n` from
// spec §3.
func numChunks(size uint64) int {
	if size == 0 {
		return 0
	}
	return int((size + ChunkSize - 1) / ChunkSize)
}

// Header is the fixed-size leading section of a WIM archive. Only the
// fields the writer core touches are modeled here; dentry/XML-specific
// header fields are left to external collaborators.
type Header struct {
	Magic            [8]byte
	HeaderSize       uint32
	Version          uint32
	Flags            uint32
	ChunkSize        uint32
	LookupTableOffset uint64
	LookupTableSize   uint64
	XMLOffset         uint64
	XMLSize           uint64
	IntegrityOffset   uint64
	IntegritySize     uint64
	BootIndex         uint32
}

var wimMagic = [8]byte{'M', 'S', 'W', 'I', 'M', 0, 0, 0}

// NewHeader returns a zeroed placeholder header ready to be written at
// offset 0 before the real offsets are known (spec §4.5: "Header is
// written first as a placeholder, then overwritten at the end").
func NewHeader() *Header {
	return &Header{
		Magic:      wimMagic,
		HeaderSize: HeaderSize,
		ChunkSize:  ChunkSize,
	}
}

// Marshal encodes h into exactly HeaderSize bytes, little-endian.
func (h *Header) Marshal() []byte {
	b := make([]byte, HeaderSize)
	copy(b[0:8], h.Magic[:])
	binary.LittleEndian.PutUint32(b[8:12], h.HeaderSize)
	binary.LittleEndian.PutUint32(b[12:16], h.Version)
	binary.LittleEndian.PutUint32(b[16:20], h.Flags)
	binary.LittleEndian.PutUint32(b[20:24], h.ChunkSize)
	binary.LittleEndian.PutUint64(b[24:32], h.LookupTableOffset)
	binary.LittleEndian.PutUint64(b[32:40], h.LookupTableSize)
	binary.LittleEndian.PutUint64(b[40:48], h.XMLOffset)
	binary.LittleEndian.PutUint64(b[48:56], h.XMLSize)
	binary.LittleEndian.PutUint64(b[56:64], h.IntegrityOffset)
	binary.LittleEndian.PutUint64(b[64:72], h.IntegritySize)
	binary.LittleEndian.PutUint32(b[72:76], h.BootIndex)
	return b
}

// UnmarshalHeader decodes a HeaderSize-byte slice produced by Marshal.
func UnmarshalHeader(b []byte) (*Header, error) {
	if len(b) < HeaderSize {
		return nil, errShortHeader
	}
	h := &Header{}
	copy(h.Magic[:], b[0:8])
	h.HeaderSize = binary.LittleEndian.Uint32(b[8:12])
	h.Version = binary.LittleEndian.Uint32(b[12:16])
	h.Flags = binary.LittleEndian.Uint32(b[16:20])
	h.ChunkSize = binary.LittleEndian.Uint32(b[20:24])
	h.LookupTableOffset = binary.LittleEndian.Uint64(b[24:32])
	h.LookupTableSize = binary.LittleEndian.Uint64(b[32:40])
	h.XMLOffset = binary.LittleEndian.Uint64(b[40:48])
	h.XMLSize = binary.LittleEndian.Uint64(b[48:56])
	h.IntegrityOffset = binary.LittleEndian.Uint64(b[56:64])
	h.IntegritySize = binary.LittleEndian.Uint64(b[64:72])
	h.BootIndex = binary.LittleEndian.Uint32(b[72:76])
	return h, nil
}
