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
	"os"

	"github.com/edsrzf/mmap-go"
)

// MmapArchive is an ArchiveHandle backed by a memory-mapped, read-only
// view of an existing WIM file. Reading an embedded stream's compressed
// chunks straight out of the mapping avoids a pread syscall per chunk,
// the same access pattern the teacher's table readers use mmap for.
type MmapArchive struct {
	path string
	f    *os.File
	m    mmap.MMap
}

// OpenMmapArchive maps path read-only for the lifetime of the returned
// handle. Call Close when done.
func OpenMmapArchive(path string) (*MmapArchive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, wrapErr(err, "mmap archive: open")
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, wrapErr(err, "mmap archive: map")
	}
	return &MmapArchive{path: path, f: f, m: m}, nil
}

func (a *MmapArchive) Path() string { return a.path }

func (a *MmapArchive) ReaderAt() ReaderAtCloser { return mmapReaderAt{a.m} }

// Close unmaps and closes the backing file. Safe to call once.
func (a *MmapArchive) Close() error {
	var unmapErr error
	if a.m != nil {
		unmapErr = a.m.Unmap()
		a.m = nil
	}
	closeErr := a.f.Close()
	if unmapErr != nil {
		return wrapErr(unmapErr, "mmap archive: unmap")
	}
	if closeErr != nil {
		return wrapErr(closeErr, "mmap archive: close")
	}
	return nil
}

type mmapReaderAt struct {
	m mmap.MMap
}

func (r mmapReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(r.m)) {
		return 0, errf(ErrRead, "mmap read out of range at offset %d", off)
	}
	n := copy(p, r.m[off:])
	if n < len(p) {
		return n, errf(ErrRead, "short mmap read: got %d of %d bytes", n, len(p))
	}
	return n, nil
}

// FileArchive is the plain, non-mmap ArchiveHandle used when a caller
// does not want (or cannot use) a memory mapping, e.g. on a filesystem
// where mmap is unsupported or undesirable for a huge archive.
type FileArchive struct {
	path string
	f    *os.File
}

func OpenFileArchive(path string) (*FileArchive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, wrapErr(err, "file archive: open")
	}
	return &FileArchive{path: path, f: f}, nil
}

func (a *FileArchive) Path() string             { return a.path }
func (a *FileArchive) ReaderAt() ReaderAtCloser  { return a.f }
func (a *FileArchive) Close() error              { return a.f.Close() }
