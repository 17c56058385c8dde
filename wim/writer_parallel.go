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
	"sync"
)

// inFlightStream tracks one stream from the moment it is first touched
// by the coordinator (either dispatched for reading, or recognized as
// needing direct handling) until its ResourceRecord is published. It is
// the "Writer State" per-stream bookkeeping of spec §3: msgList
// preserves dispatch order so the coordinator can always find the next
// chunk to write even though workers finish out of order.
type inFlightStream struct {
	desc  *StreamDescriptor
	index int // position in the caller's input list; used only for logging/asserts

	// terminal streams (no bytes, or raw-copy eligible, or the writer
	// isn't compressing at all) bypass the worker pool entirely and are
	// written directly by the coordinator via WriteStream, mirroring
	// spec §4.4's "direct_write list...handled by the coordinator
	// itself between parallel batches".
	terminal bool

	table         *ChunkTable
	tableReserved bool
	fileOffset    uint64
	running       uint64

	totalChunks int
	// dispatchedChunks is a monotonic cursor: how many of this stream's
	// chunks have been handed to a Message so far. Unlike msgList, which
	// Phase B drains as messages are written, this never shrinks, so it
	// stays correct even while a stream is simultaneously draining
	// (head of outstanding) and still being read (curDispatch) once it
	// spans more chunks than the message pool can hold at once.
	dispatchedChunks int
	writtenChunks    int
	msgList          []*Message

	sha    *HasherContext
	handle *Handle
}

// ParallelWriterOptions configures WriteStreamListParallel.
type ParallelWriterOptions struct {
	Threads  int
	WriteOpt WriteStreamOptions
}

// WriteStreamListParallel is the coordinator of spec §4.4: one
// goroutine (this call) plus Threads worker goroutines, communicating
// over two bounded channels standing in for the spec's blocking queues
// (the "target ecosystem... bounded channel primitive" §9 prefers).
// Stream and intra-stream chunk order in the output file are preserved
// even though workers may finish compressing out of order.
//
// On any error the coordinator stops dispatching, drains `compressed`
// until every message it has handed out has come back (so no worker
// ever touches message memory the caller has since freed), tears down
// the workers, and returns the error. The caller-visible archive state
// at that point is whatever has actually been written to out; callers
// that need atomicity wrap this with the finalizer's append/rebuild
// policy (finalize.go).
func WriteStreamListParallel(ctx *WriterContext, out OutputFile, streams []*StreamDescriptor, opts ParallelWriterOptions) (*Stats, error) {
	stats := &Stats{}
	threads := opts.Threads
	if threads < 1 {
		threads = 1
	}
	compressing := opts.WriteOpt.OutKind != CompressionNone

	var comp Compressor
	if compressing {
		var err error
		comp, err = CompressorFor(opts.WriteOpt.OutKind)
		if err != nil {
			return stats, err
		}
	}

	pool := newMessagePool(threads)
	queueSize := threads * 2
	toCompress := make(chan *Message, queueSize)
	compressedCh := make(chan *Message, queueSize)

	var wg sync.WaitGroup
	for i := 0; i < threads; i++ {
		wg.Add(1)
		go compressWorker(&wg, comp, ctx.Metrics, toCompress, compressedCh)
	}
	shutdownWorkers := func() {
		for i := 0; i < threads; i++ {
			toCompress <- nil
		}
		wg.Wait()
	}

	rr := ctx.Reader
	outstanding := make([]*inFlightStream, 0, len(streams))
	nextIdx := 0
	inFlightMsgs := 0

	// curDispatch is the non-terminal stream currently being read, if
	// any. It must persist across Phase A invocations: the message pool
	// can run dry mid-stream, and dispatch has to resume the same
	// stream next time around rather than abandon it for the next one.
	var curDispatch *inFlightStream

	fail := func(err error) (*Stats, error) {
		// Drain every message already dispatched before tearing down the
		// queues, so no worker writes into freed memory (spec §4.4
		// "Cancellation / shutdown").
		for inFlightMsgs > 0 {
			<-compressedCh
			inFlightMsgs--
		}
		shutdownWorkers()
		for _, ifs := range outstanding {
			if ifs.handle != nil {
				_ = rr.Close(ifs.handle)
			}
		}
		return stats, err
	}

	for {
		// Phase A: dispatch.
		for !pool.empty() {
			if curDispatch == nil {
				if nextIdx >= len(streams) {
					break
				}
				ifs := &inFlightStream{desc: streams[nextIdx], index: nextIdx}
				ifs.terminal = ifs.desc.NeedsNoBytes() ||
					ifs.desc.eligibleForRawCopy(opts.WriteOpt.OutKind, opts.WriteOpt.Recompress) ||
					!compressing
				outstanding = append(outstanding, ifs)
				nextIdx++

				if ifs.terminal {
					continue
				}

				ifs.table = NewChunkTable(ifs.desc.Size)
				ifs.totalChunks = ifs.table.N()
				ifs.sha = NewHasherContext()

				h, err := rr.Open(ifs.desc, false)
				if err != nil {
					return fail(err)
				}
				ifs.handle = h
				curDispatch = ifs
			}

			ifs := curDispatch
			msg := pool.get()
			msg.stream = ifs
			begin := ifs.dispatchedChunks
			msg.beginChunk = begin
			n := minInt(MaxChunksPerMsg, ifs.totalChunks-begin)
			msg.numChunks = n

			for j := 0; j < n; j++ {
				chunkIdx := begin + j
				toRead := minU64(ifs.desc.Size-uint64(chunkIdx)*ChunkSize, ChunkSize)
				buf := msg.in[j][:toRead]
				if err := rr.Read(ifs.handle, buf, uint64(chunkIdx)*ChunkSize); err != nil {
					pool.put(msg)
					return fail(err)
				}
				ifs.sha.Update(buf)
				msg.inSize[j] = int(toRead)
				stats.addBytesRead(toRead)
			}

			ifs.msgList = append(ifs.msgList, msg)
			ifs.dispatchedChunks += n
			inFlightMsgs++
			toCompress <- msg

			if begin+n >= ifs.totalChunks {
				// Finished reading this stream: finalize its hash now,
				// decoupled from when it is actually written (spec
				// §4.4 Phase A: "If a stream finishes reading: verify
				// SHA-1 ... and advance next_stream").
				computed := ifs.sha.Final()
				if ifs.desc.Hash.IsZero() {
					ifs.desc.Hash = computed
				} else if !equalHash(ifs.desc.Hash, computed) {
					return fail(errf(ErrInvalidResourceHash, "stream %d hash mismatch: want %s got %s", ifs.index, ifs.desc.Hash, computed))
				}
				curDispatch = nil
			}
		}

		if len(outstanding) == 0 {
			shutdownWorkers()
			return stats, nil
		}

		head := outstanding[0]

		if head.terminal {
			rec, err := WriteStream(rr, comp, out, head.desc, opts.WriteOpt, stats)
			if err != nil {
				return fail(err)
			}
			head.desc.OutRecord = rec
			stats.addStreamWritten()
			outstanding = outstanding[1:]
			continue
		}

		if inFlightMsgs == 0 {
			// Nothing outstanding to wait on, but head isn't done: a
			// logic error, not a recoverable state.
			return fail(errf(ErrInvalidParam, "parallel writer stalled: no in-flight messages but stream %d incomplete", head.index))
		}

		msg := <-compressedCh
		inFlightMsgs--
		msg.complete = true

		for len(head.msgList) > 0 && head.msgList[0].complete {
			m := head.msgList[0]
			if err := writeMessageChunks(out, head, m, stats); err != nil {
				return fail(err)
			}
			head.msgList = head.msgList[1:]
			head.writtenChunks += m.numChunks
			pool.put(m)

			if head.writtenChunks >= head.totalChunks {
				rec, err := finalizeInFlightStream(rr, out, head, stats)
				if err != nil {
					return fail(err)
				}
				head.desc.OutRecord = rec
				stats.addStreamWritten()
				if err := rr.Close(head.handle); err != nil {
					return fail(err)
				}
				outstanding = outstanding[1:]
				break
			}
		}
	}
}

// writeMessageChunks writes one completed message's chunks to out in
// order, reserving chunk-table space the first time begin_chunk == 0
// (spec §4.4 Phase B).
func writeMessageChunks(out OutputFile, ifs *inFlightStream, m *Message, stats *Stats) error {
	if m.beginChunk == 0 && !ifs.tableReserved {
		off, err := out.Seek(0, io.SeekCurrent)
		if err != nil {
			return errf(ErrWrite, "seek current: %v", err)
		}
		ifs.fileOffset = uint64(off)
		if err := reserveTableSpace(out, ifs.table.DiskSize()); err != nil {
			return err
		}
		ifs.tableReserved = true
	}

	for j := 0; j < m.numChunks; j++ {
		chunkIdx := m.beginChunk + j
		bytes := m.chunkBytes(j)
		if _, err := out.Write(bytes); err != nil {
			return errf(ErrWrite, "write chunk %d: %v", chunkIdx, err)
		}
		ifs.table.Set(chunkIdx, ifs.running)
		ifs.running += uint64(len(bytes))
		stats.addBytesWritten(uint64(len(bytes)))
	}
	return nil
}

// finalizeInFlightStream patches the chunk table, applies the
// anti-expansion fallback if needed, and returns the ResourceRecord
// (spec §4.4 Phase B, "If this message closes the stream...").
func finalizeInFlightStream(rr *ResourceReader, out OutputFile, ifs *inFlightStream, stats *Stats) (*ResourceRecord, error) {
	if err := patchTable(out, ifs.table, ifs.fileOffset); err != nil {
		return nil, err
	}

	totalPayload := uint64(ifs.table.DiskSize()) + ifs.running
	record := &ResourceRecord{
		Offset:           ifs.fileOffset,
		CompressedSize:   totalPayload,
		UncompressedSize: ifs.desc.Size,
		Flags:            FlagCompressed,
	}

	if totalPayload >= ifs.desc.Size {
		// Anti-expansion fallback. Per §9's second open question, this is
		// safe here: the writer forbids dispatching chunks beyond the
		// current stream boundary until it finalizes, so no other
		// stream's bytes follow this one yet.
		if err := rewriteUncompressed(rr, ifs.handle, out, ifs.desc, ifs.fileOffset, stats); err != nil {
			return nil, err
		}
		record.CompressedSize = ifs.desc.Size
		record.Flags &^= FlagCompressed
		stats.addAntiExpansion()
	}

	return record, nil
}
