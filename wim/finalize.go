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
	"os"
	"path/filepath"
	"time"

	"github.com/dolthub/fslock"
	"github.com/google/uuid"
)

// FinalizeMode selects the §4.5 on-disk strategy.
type FinalizeMode int

const (
	// ModeAuto lets Finalize pick append vs. rebuild per the policy below.
	ModeAuto FinalizeMode = iota
	ModeAppend
	ModeRebuild
)

// Layout describes an existing archive's table boundaries, as needed by
// the append-mode preconditions (spec §4.5): the lookup table must
// precede the XML, and the integrity table, if present, must follow it.
type Layout struct {
	LookupTableOffset, LookupTableSize uint64
	XMLOffset, XMLSize                 uint64
	IntegrityOffset, IntegritySize     uint64
	Deleted                            bool // true if any image was deleted since last finalize
}

// valid reports whether Layout satisfies append mode's ordering
// preconditions.
func (l Layout) valid() bool {
	if l.LookupTableOffset+l.LookupTableSize > l.XMLOffset {
		return false
	}
	if l.IntegritySize > 0 && l.IntegrityOffset < l.XMLOffset+l.XMLSize {
		return false
	}
	return true
}

// oldEnd is old_end from spec §4.5: the end of the integrity table if
// present, else the end of the XML.
func (l Layout) oldEnd() uint64 {
	if l.IntegritySize > 0 {
		return l.IntegrityOffset + l.IntegritySize
	}
	return l.XMLOffset + l.XMLSize
}

// MetadataWriters is the §6 "Archive metadata writers" external
// collaborator set: the finalizer sequences calls to these but does not
// itself know how to encode a lookup table, XML blob, or integrity
// table.
type MetadataWriters struct {
	WriteLookupTable    func(out OutputFile, records []*ResourceRecord) (*ResourceRecord, error)
	WriteXML            func(out OutputFile, totalBytesOverride uint64) (*ResourceRecord, error)
	WriteIntegrityTable func(out OutputFile, lutRecord *ResourceRecord, newLUTEnd, oldLUTEnd uint64) (*ResourceRecord, error)
}

// FinalizeOptions controls one Finalize call.
type FinalizeOptions struct {
	Mode             FinalizeMode
	CheckIntegrity   bool
	ReuseIntegrity   bool
	Fsync            bool
	SoftDelete       bool
	AdvisoryLock     bool
	ExistingLayout   *Layout // nil for a brand-new archive (always rebuild-shaped)
	TempDir          string  // directory for rebuild-mode temp files; "" = alongside path
}

// Finalize implements spec §4.5: lay out stream payloads (already
// written by the caller via WriteStreamList), then the lookup table,
// XML, and optional integrity table, then the header, using either the
// append-in-place or rebuild-via-tempfile policy.
//
// writeBody is invoked with the output file positioned at the correct
// starting offset (HeaderSize for rebuild, just past the placeholder
// header; see finalizeAppend for append) and must write
// every stream payload in order, returning the resulting
// []*ResourceRecord in stream order.
func Finalize(ctx *WriterContext, path string, opts FinalizeOptions, mw MetadataWriters, writeBody func(out OutputFile) ([]*ResourceRecord, error)) error {
	mode := opts.Mode
	if mode == ModeAuto {
		mode = selectMode(opts)
	}

	if opts.AdvisoryLock {
		lock := fslock.New(path)
		if err := lock.TryLock(); err != nil {
			return errf(ErrAlreadyLocked, "lock %q: %v", path, err)
		}
		defer lock.Unlock()
	}

	switch mode {
	case ModeRebuild:
		return finalizeRebuild(ctx, path, opts, mw, writeBody)
	default:
		err := finalizeAppend(ctx, path, opts, mw, writeBody)
		if err == ErrResourceOrder {
			if ctx.Log != nil {
				ctx.Log.Warnw("append-mode layout invalid, falling back to rebuild", "path", path)
			}
			return finalizeRebuild(ctx, path, opts, mw, writeBody)
		}
		return err
	}
}

// selectMode implements the §4.5 policy: rebuild unless nothing was
// deleted (or the caller opted into soft-delete) and rebuild wasn't
// forced; a brand-new archive has no prior layout to append onto and is
// always written in rebuild shape.
func selectMode(opts FinalizeOptions) FinalizeMode {
	if opts.ExistingLayout == nil {
		return ModeRebuild
	}
	if opts.ExistingLayout.Deleted && !opts.SoftDelete {
		return ModeRebuild
	}
	if !opts.ExistingLayout.valid() {
		return ModeRebuild
	}
	return ModeAppend
}

func finalizeAppend(ctx *WriterContext, path string, opts FinalizeOptions, mw MetadataWriters, writeBody func(out OutputFile) ([]*ResourceRecord, error)) error {
	layout := opts.ExistingLayout
	if layout == nil || !layout.valid() {
		return ErrResourceOrder
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return errf(ErrOpen, "open %q for append: %v", path, err)
	}
	defer f.Close()

	oldEnd := layout.oldEnd()
	suppressLUTRewrite := !layout.Deleted

	appendAt := oldEnd
	if suppressLUTRewrite {
		// Nothing modified or deleted: the existing lookup table remains
		// valid, so new content is appended after it instead of after XML
		// (spec §4.5: "treat old_end as end of lookup table").
		appendAt = layout.LookupTableOffset + layout.LookupTableSize
	}

	if err := truncateAndSeek(f, int64(appendAt)); err != nil {
		return err
	}

	records, err := writeBody(f)
	if err != nil {
		_ = f.Truncate(int64(oldEnd))
		return err
	}

	if err := writeTables(ctx, f, opts, mw, records, uint64(mustTell(f)), layout.LookupTableOffset+layout.LookupTableSize); err != nil {
		_ = f.Truncate(int64(oldEnd))
		return err
	}

	if opts.Fsync {
		if err := f.Sync(); err != nil {
			return errf(ErrWrite, "fsync %q: %v", path, err)
		}
	}
	return nil
}

func finalizeRebuild(ctx *WriterContext, path string, opts FinalizeOptions, mw MetadataWriters, writeBody func(out OutputFile) ([]*ResourceRecord, error)) error {
	dir := opts.TempDir
	if dir == "" {
		dir = filepath.Dir(path)
	}
	tmpPath := filepath.Join(dir, filepath.Base(path)+"."+uuid.NewString()[:9]+".tmp")

	f, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return errf(ErrOpen, "create temp archive %q: %v", tmpPath, err)
	}
	cleanup := func() {
		f.Close()
		os.Remove(tmpPath)
	}

	if _, err := f.Write(NewHeader().Marshal()); err != nil {
		cleanup()
		return errf(ErrWrite, "write placeholder header: %v", err)
	}

	records, err := writeBody(f)
	if err != nil {
		cleanup()
		return err
	}

	lutStart := mustTell(f)
	if err := writeTables(ctx, f, opts, mw, records, uint64(lutStart), 0); err != nil {
		cleanup()
		return err
	}

	if opts.Fsync {
		if err := f.Sync(); err != nil {
			cleanup()
			return errf(ErrWrite, "fsync temp archive: %v", err)
		}
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return errf(ErrWrite, "close temp archive: %v", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		// Fall back to unlinking the temp file (spec §4.5: "fall back on
		// rename failure by unlinking the temp").
		os.Remove(tmpPath)
		return errf(ErrRename, "rename %q to %q: %v", tmpPath, path, err)
	}
	return nil
}

// writeTables writes the lookup table, XML, and (if requested) the
// integrity table, with the §4.5 checkpoint header in between XML and
// the integrity table, then the final header. newLUTEnd is replaced by
// the end of the lookup table actually written, when one is written;
// oldLUTEnd is the end of the previous archive's lookup table (0 when
// there is none). Both are passed to WriteIntegrityTable as the reuse
// hint.
func writeTables(ctx *WriterContext, out OutputFile, opts FinalizeOptions, mw MetadataWriters, records []*ResourceRecord, newLUTEnd, oldLUTEnd uint64) error {
	hdr := NewHeader()

	var lutRecord *ResourceRecord
	if mw.WriteLookupTable != nil {
		rec, err := mw.WriteLookupTable(out, records)
		if err != nil {
			return wrapErr(err, "write lookup table")
		}
		lutRecord = rec
		newLUTEnd = rec.Offset + rec.CompressedSize
		hdr.LookupTableOffset = rec.Offset
		hdr.LookupTableSize = rec.CompressedSize
	}

	if mw.WriteXML != nil {
		var total uint64
		for _, r := range records {
			total += r.UncompressedSize
		}
		rec, err := mw.WriteXML(out, total)
		if err != nil {
			return wrapErr(err, "write xml")
		}
		hdr.XMLOffset = rec.Offset
		hdr.XMLSize = rec.CompressedSize
	}

	if opts.CheckIntegrity && mw.WriteIntegrityTable != nil {
		// Checkpoint header: bounds corruption risk if the process dies
		// mid-integrity-table (spec §4.5 "Checkpoint header").
		if err := writeHeaderAt(out, hdr, 0); err != nil {
			return err
		}

		rec, err := mw.WriteIntegrityTable(out, lutRecord, newLUTEnd, oldLUTEnd)
		if err != nil {
			return wrapErr(err, "write integrity table")
		}
		hdr.IntegrityOffset = rec.Offset
		hdr.IntegritySize = rec.CompressedSize
	}

	return writeHeaderAt(out, hdr, 0)
}

func writeHeaderAt(out OutputFile, hdr *Header, at int64) error {
	end, err := out.Seek(0, io.SeekCurrent)
	if err != nil {
		return errf(ErrWrite, "seek current before header write: %v", err)
	}
	if _, err := out.Seek(at, io.SeekStart); err != nil {
		return errf(ErrWrite, "seek to header: %v", err)
	}
	if _, err := out.Write(hdr.Marshal()); err != nil {
		return errf(ErrWrite, "write header: %v", err)
	}
	if _, err := out.Seek(end, io.SeekStart); err != nil {
		return errf(ErrWrite, "seek back after header write: %v", err)
	}
	return nil
}

func truncateAndSeek(f *os.File, at int64) error {
	if err := f.Truncate(at); err != nil {
		return errf(ErrWrite, "truncate to %d: %v", at, err)
	}
	if _, err := f.Seek(at, io.SeekStart); err != nil {
		return errf(ErrWrite, "seek to %d: %v", at, err)
	}
	return nil
}

func mustTell(f *os.File) int64 {
	off, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		// Seeking the current position never fails for a regular file
		// opened successfully; a failure here means the fd was closed out
		// from under us, a programmer error.
		panic("wim: seek current failed: " + err.Error())
	}
	return off
}

// lockWithTimeout is a convenience used by tests to probe whether an
// archive is currently locked without blocking indefinitely.
func lockWithTimeout(path string, d time.Duration) error {
	lock := fslock.New(path)
	return lock.LockWithTimeout(d)
}
