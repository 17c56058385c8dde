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
	"encoding/binary"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// zeroRunCodec is a small, fully deterministic stand-in for a real
// Compressor used across this package's tests: it shrinks only an
// all-zero chunk (to a 9-byte marker), and reports ErrDidNotShrink for
// anything else. This lets tests exercise the codec's compress/raw and
// anti-expansion branches without depending on whether snappy or zstd
// happens to shrink a given byte pattern.
type zeroRunCodec struct{}

func (zeroRunCodec) Kind() CompressionKind { return CompressionXpress }

func (zeroRunCodec) Compress(dst, src []byte) ([]byte, error) {
	for _, b := range src {
		if b != 0 {
			return nil, ErrDidNotShrink
		}
	}
	out := dst[:0]
	out = append(out, 0xFF)
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(src)))
	out = append(out, lenBuf[:]...)
	if len(out) >= len(src) {
		return nil, ErrDidNotShrink
	}
	return out, nil
}

func (zeroRunCodec) Decompress(dst, src []byte) ([]byte, error) {
	if len(src) != 9 || src[0] != 0xFF {
		return nil, errf(ErrRead, "zeroRunCodec: malformed payload")
	}
	n := binary.LittleEndian.Uint64(src[1:])
	out := dst[:0]
	for i := uint64(0); i < n; i++ {
		out = append(out, 0)
	}
	return out, nil
}

// writeTempFile creates a temp file with contents b and returns its path.
func writeTempFile(t *testing.T, dir string, b []byte) string {
	t.Helper()
	f, err := os.CreateTemp(dir, "stream-*")
	require.NoError(t, err)
	defer f.Close()
	_, err = f.Write(b)
	require.NoError(t, err)
	return f.Name()
}

// fileDescriptor builds a StreamDescriptor sourcing its bytes from a
// freshly created temp file containing b.
func fileDescriptor(t *testing.T, dir string, b []byte) *StreamDescriptor {
	t.Helper()
	path := writeTempFile(t, dir, b)
	return &StreamDescriptor{
		Size:   uint64(len(b)),
		Source: StreamSource{Kind: SourceFile, Path: path},
	}
}

// openOutput opens a fresh temp file satisfying the OutputFile interface.
func openOutput(t *testing.T, dir string) *os.File {
	t.Helper()
	f, err := os.CreateTemp(dir, "archive-*")
	require.NoError(t, err)
	return f
}
