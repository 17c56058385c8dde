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
	"sync"
	"time"
)

// compressWorker is one of the T parallel-writer workers (spec §4.4,
// §5). It blocks on toCompress, compresses every chunk of each message
// it receives, and pushes the message to compressed. A nil message is
// the shutdown sentinel.
//
// A worker touches no shared mutable state besides its assigned message
// and the two channels: comp is stateless per call (a fresh dst slice
// each time), so no locking is needed here at all.
func compressWorker(wg *sync.WaitGroup, comp Compressor, metrics *Metrics, toCompress <-chan *Message, compressedCh chan<- *Message) {
	defer wg.Done()
	for m := range toCompress {
		if m == nil {
			return
		}
		compressMessage(m, comp, metrics)
		compressedCh <- m
	}
}

func compressMessage(m *Message, comp Compressor, metrics *Metrics) {
	start := time.Now()
	for i := 0; i < m.numChunks; i++ {
		in := m.in[i][:m.inSize[i]]
		out, err := comp.Compress(m.out[i][:0], in)
		if err == ErrDidNotShrink {
			// Per spec §4.4 worker contract: if compression did not
			// shrink the chunk, mark the chunk's output as the input
			// buffer/size.
			m.raw[i] = true
			m.outSize[i] = 0
			continue
		}
		// Compress may return a slice distinct from the dst it was
		// handed (e.g. snappy.Encode allocates fresh whenever
		// len(dst) < MaxEncodedLen(len(src))), so the returned slice,
		// not m.out[i], is the buffer chunkBytes must read back.
		m.raw[i] = false
		m.out[i] = out
		m.outSize[i] = len(out)
	}
	if metrics != nil && metrics.CompressDuration != nil {
		metrics.CompressDuration.Observe(time.Since(start).Seconds())
	}
}
