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

// Package wim implements the stream-writing engine of a Windows Imaging
// (WIM) archive writer: a content-addressed container of file streams
// plus per-image metadata.
//
// The package is organized around the same split the on-disk format
// imposes: a chunked resource codec that compresses one stream at a
// time, a resource reader that can pull bytes back out of an existing
// archive, a source file, or a native backend, a serial writer for small
// jobs, a parallel writer that fans work out across a worker pool while
// preserving output order, and an archive finalizer that lays out the
// lookup table, XML blob and integrity table so that append is crash
// resistant.
//
// Directory trees, image XML, filesystem capture/apply, the real LZX
// and XPRESS codecs, and SHA-1 itself are treated as external
// collaborators reached through the narrow interfaces in compress.go,
// reader.go, hash.go and the MetadataWriters seam in finalize.go.
package wim
