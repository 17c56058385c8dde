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

import "github.com/dustin/go-humanize"

// WriteStreamListSerial implements spec §4.3: iterate the streams in
// order, writing each one with WriteStream. WriteStreamList uses it
// below WriterConfig.ParallelThreshold and when Threads <= 1. It is not
// used as a fallback: when the parallel writer fails, WriteStreamList
// returns that error without retrying serially.
func WriteStreamListSerial(ctx *WriterContext, out OutputFile, streams []*StreamDescriptor, opts WriteStreamOptions) (*Stats, error) {
	stats := &Stats{}

	var comp Compressor
	if opts.OutKind != CompressionNone {
		var err error
		comp, err = CompressorFor(opts.OutKind)
		if err != nil {
			return stats, err
		}
	}

	for i, desc := range streams {
		rec, err := WriteStream(ctx.Reader, comp, out, desc, opts, stats)
		if err != nil {
			if ctx.Log != nil {
				ctx.Log.Errorw("write stream failed", "index", i, "error", err)
			}
			return stats, err
		}
		desc.OutRecord = rec
		stats.addStreamWritten()
	}

	return stats, nil
}

// WriteStreamList picks the serial or parallel path per
// WriterConfig.shouldUseParallel and dispatches accordingly, applying
// the total uncompressed byte count of streams as the threshold input.
func WriteStreamList(ctx *WriterContext, out OutputFile, streams []*StreamDescriptor, opts WriteStreamOptions) (*Stats, error) {
	var total uint64
	for _, d := range streams {
		total += d.Size
	}

	if ctx.Config.shouldUseParallel(total) {
		pstats, err := WriteStreamListParallel(ctx, out, streams, ParallelWriterOptions{
			Threads:  ctx.Config.Threads,
			WriteOpt: opts,
		})
		if err != nil {
			if ctx.Log != nil {
				ctx.Log.Warnw("parallel write failed, nothing salvageable mid-archive", "error", err)
			}
			return pstats, err
		}
		if ctx.Log != nil {
			ctx.Log.Infow("wrote stream list", "streams", len(streams), "size", humanize.Bytes(total), "threads", ctx.Config.Threads)
		}
		return pstats, nil
	}

	stats, err := WriteStreamListSerial(ctx, out, streams, opts)
	if err == nil && ctx.Log != nil {
		ctx.Log.Infow("wrote stream list", "streams", len(streams), "size", humanize.Bytes(total))
	}
	return stats, err
}
