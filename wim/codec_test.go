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
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteStream_ZeroSize(t *testing.T) {
	dir := t.TempDir()
	out := openOutput(t, dir)
	defer out.Close()

	desc := &StreamDescriptor{Size: 0}
	rec, err := WriteStream(NewResourceReader(4, 4), zeroRunCodec{}, out, desc, WriteStreamOptions{OutKind: CompressionXpress}, &Stats{})
	require.NoError(t, err)
	assert.EqualValues(t, 0, rec.UncompressedSize)
	assert.EqualValues(t, 0, rec.CompressedSize)
}

func TestWriteStream_ChunkedRoundTrip(t *testing.T) {
	dir := t.TempDir()
	size := uint64(ChunkSize*2 + 100)
	content := make([]byte, size)
	desc := fileDescriptor(t, dir, content)

	rr := NewResourceReader(4, 4)
	out := openOutput(t, dir)
	defer out.Close()

	// The read-back below decodes with the built-in xpress decompressor,
	// so the stream is written with the matching built-in compressor.
	stats := &Stats{}
	rec, err := WriteStream(rr, NewXpressCompressor(), out, desc, WriteStreamOptions{OutKind: CompressionXpress}, stats)
	require.NoError(t, err)
	assert.True(t, rec.Compressed())
	assert.Less(t, rec.CompressedSize, rec.UncompressedSize)
	assert.False(t, desc.Hash.IsZero())
	assert.Greater(t, stats.BytesRead, uint64(0))

	// Read the chunk table + payload back as an embedded resource and
	// verify decompression reproduces the original bytes exactly.
	archive := &fakeArchive{f: out, path: out.Name()}
	embeddedDesc := &StreamDescriptor{
		Size:                 size,
		SourceCompression:    CompressionXpress,
		SourceCompressedSize: rec.CompressedSize,
		Source: StreamSource{
			Kind:          SourceEmbedded,
			Archive:       archive,
			ArchiveOffset: rec.Offset,
		},
	}

	h, err := rr.Open(embeddedDesc, false)
	require.NoError(t, err)
	defer rr.Close(h)

	got := make([]byte, size)
	for i := 0; i < numChunks(size); i++ {
		start := uint64(i) * ChunkSize
		end := start + ChunkSize
		if end > size {
			end = size
		}
		buf := got[start:end]
		require.NoError(t, rr.Read(h, buf, start))
	}
	assert.True(t, bytes.Equal(content, got))
}

func TestWriteStream_RawCopyEligible(t *testing.T) {
	dir := t.TempDir()
	payload := []byte("already-compressed-bytes-verbatim")
	desc := fileDescriptor(t, dir, payload)
	desc.SourceCompression = CompressionXpress
	desc.SourceCompressedSize = uint64(len(payload))

	rr := NewResourceReader(4, 4)
	out := openOutput(t, dir)
	defer out.Close()

	rec, err := WriteStream(rr, zeroRunCodec{}, out, desc, WriteStreamOptions{OutKind: CompressionXpress}, &Stats{})
	require.NoError(t, err)
	assert.True(t, rec.Compressed())
	assert.EqualValues(t, len(payload), rec.CompressedSize)

	written := make([]byte, len(payload))
	_, err = out.ReadAt(written, int64(rec.Offset))
	require.NoError(t, err)
	assert.Equal(t, payload, written)
}

func TestWriteStream_AntiExpansionFallback(t *testing.T) {
	dir := t.TempDir()
	// zeroRunCodec never shrinks non-zero bytes, so every chunk falls
	// back to raw, and the written size equals the table overhead plus
	// the original size -- triggering the anti-expansion rewrite.
	content := []byte("incompressible-ish-content-1234567890")
	desc := fileDescriptor(t, dir, content)

	rr := NewResourceReader(4, 4)
	out := openOutput(t, dir)
	defer out.Close()

	rec, err := WriteStream(rr, zeroRunCodec{}, out, desc, WriteStreamOptions{OutKind: CompressionXpress}, &Stats{})
	require.NoError(t, err)
	assert.False(t, rec.Compressed())
	assert.EqualValues(t, len(content), rec.CompressedSize)

	written := make([]byte, len(content))
	_, err = out.ReadAt(written, int64(rec.Offset))
	require.NoError(t, err)
	assert.Equal(t, content, written)
}

func TestWriteStream_HashMismatch(t *testing.T) {
	dir := t.TempDir()
	content := []byte("some content that will be rehashed")
	desc := fileDescriptor(t, dir, content)
	desc.Hash = Hash{0x01, 0x02, 0x03} // deliberately wrong

	rr := NewResourceReader(4, 4)
	out := openOutput(t, dir)
	defer out.Close()

	_, err := WriteStream(rr, zeroRunCodec{}, out, desc, WriteStreamOptions{OutKind: CompressionXpress}, &Stats{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidResourceHash))
}

// fakeArchive adapts an *os.File to ArchiveHandle for embedded-resource
// round-trip tests.
type fakeArchive struct {
	f    *os.File
	path string
}

func (a *fakeArchive) ReaderAt() ReaderAtCloser { return a.f }
func (a *fakeArchive) Path() string             { return a.path }
