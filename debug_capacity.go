/*
 *
 * Copyright 2026 The Urpc Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

package urpc

import (
	"context"

	internalurpc "github.com/veos-sxarr-NEC/ve-urpc/internal/transport/urpc"
)

// CapacityProbeResult reports one size-sweep step against a direction's
// payload allocator: whether Alloc(size) succeeded, and how many free bytes
// remained in the unfragmented region afterward.
type CapacityProbeResult struct {
	Size    int    `json:"size"`
	OK      bool   `json:"ok"`
	Err     string `json:"err,omitempty"`
	FreeEnd uint64 `json:"free_end"`
}

// ProbeAllocatorCapacity drives seg's host->remote payload allocator with an
// increasing, then immediately-freed, sequence of allocation sizes — the
// same size-sweep-then-drain shape cmd/debug-capacity uses to characterize
// usable ring capacity, here run against this module's bump allocator
// instead of a generic byte ring.
//
// Each size is allocated, published, and consumed before the next size is
// attempted. The allocator reclaims consumed spans only when an allocation
// runs short, so each result's FreeEnd is the space left after all earlier
// sizes in the sweep, not the space free at steady state.
func ProbeAllocatorCapacity(seg *internalurpc.Segment, sizes []int) []CapacityProbeResult {
	send, _ := internalurpc.HostQueues(seg)
	alloc := internalurpc.NewAllocator(send)
	results := make([]CapacityProbeResult, 0, len(sizes))

	for _, size := range sizes {
		ctx, cancel := context.WithCancel(context.Background())
		offs, err := alloc.Alloc(ctx, uint32(size))
		cancel()
		if err != nil {
			results = append(results, CapacityProbeResult{Size: size, OK: false, Err: err.Error()})
			break
		}

		req, putErr := send.PutCmd(context.Background(), 1, offs, uint32(size), func(idx uint64) {
			alloc.CommitSlot(idx, offs, uint32(size))
		})
		if putErr != nil {
			results = append(results, CapacityProbeResult{Size: size, OK: false, Err: putErr.Error()})
			break
		}

		// Drain immediately so the slot and its span become reclaimable
		// when a later step runs short. This is the same
		// TransferQueue PutCmd published on — the far end's recv queue is a
		// different direction entirely — so a loopback sweep must drain its
		// own send queue, not recv.
		if _, _, _, _, ok := send.GetCmd(); ok {
			send.SlotDone(req)
		}

		results = append(results, CapacityProbeResult{Size: size, OK: true, FreeEnd: alloc.FreeBytes()})
	}
	return results
}

// FillUntilOutOfPayload repeatedly allocates chunkSize bytes without
// freeing any of them, reporting how many bytes were successfully reserved
// before the allocator ran out of payload space or maxChunks chunks were
// written — the backpressure-boundary counterpart to ProbeAllocatorCapacity's
// sweep.
func FillUntilOutOfPayload(seg *internalurpc.Segment, chunkSize int, maxChunks int) (chunksWritten int, bytesWritten int, lastErr error) {
	send, _ := internalurpc.HostQueues(seg)
	alloc := internalurpc.NewAllocator(send)

	for i := 0; i < maxChunks; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		offs, err := alloc.Alloc(ctx, uint32(chunkSize))
		cancel()
		if err != nil {
			return chunksWritten, bytesWritten, err
		}
		if _, err := send.PutCmd(context.Background(), 1, offs, uint32(chunkSize), func(idx uint64) {
			alloc.CommitSlot(idx, offs, uint32(chunkSize))
		}); err != nil {
			return chunksWritten, bytesWritten, err
		}
		chunksWritten++
		bytesWritten += chunkSize
	}
	return chunksWritten, bytesWritten, nil
}
