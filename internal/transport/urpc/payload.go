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
	"errors"
	"runtime"
	"time"
)

// ErrOutOfPayload is returned by Alloc when the data ring cannot free enough
// space before size, or before ALLOC_TIMEOUT_US elapses.
var ErrOutOfPayload = errors.New("urpc: out of payload space")

// DefaultAllocTimeout is ALLOC_TIMEOUT_US's default: a few seconds, per
// spec.md §4.3.
const DefaultAllocTimeout = 3 * time.Second

type mlistEntry struct {
	offs uint32
	len  uint32
}

// Allocator is the process-local bump allocator over one direction's
// payload data ring. It is never itself stored in shared memory — only the
// mailbox slots it describes are shared — so free_begin, free_end, and
// mlist live as plain Go fields, touched only by the single sending thread
// that owns this TransferQueue's producer side.
type Allocator struct {
	q         *TransferQueue
	dataLen   uint64
	freeBegin uint64
	freeEnd   uint64
	mlist     []mlistEntry
	timeout   time.Duration
}

// NewAllocator creates the payload allocator for the producer side of q.
// The entire data ring starts free.
func NewAllocator(q *TransferQueue) *Allocator {
	return &Allocator{
		q:       q,
		dataLen: uint64(len(q.Data())),
		freeEnd: uint64(len(q.Data())),
		mlist:   make([]mlistEntry, q.SlotCount()),
		timeout: DefaultAllocTimeout,
	}
}

// SetTimeout overrides ALLOC_TIMEOUT_US's default deadline.
func (a *Allocator) SetTimeout(d time.Duration) { a.timeout = d }

// Alloc reserves asize = ALIGN8(size) bytes from the free region, running
// gc passes and spinning until either enough space frees up or the
// allocator's timeout (or ctx) expires. It returns the byte offset to write
// payload into.
func (a *Allocator) Alloc(ctx context.Context, size uint32) (uint32, error) {
	asize := alignTo8(uint64(size))
	if asize > a.dataLen {
		return 0, ErrOutOfPayload
	}

	deadline := time.Now().Add(a.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	spins := 0
	for a.freeEnd-a.freeBegin < asize {
		a.gc()
		if a.freeEnd-a.freeBegin >= asize {
			break
		}
		select {
		case <-ctx.Done():
			return 0, ErrOutOfPayload
		default:
		}
		if !time.Now().Before(deadline) {
			return 0, ErrOutOfPayload
		}
		spins++
		if spins%spinYieldEvery == 0 {
			runtime.Gosched()
		}
	}

	offs := uint32(a.freeBegin)
	a.freeBegin += asize
	return offs, nil
}

// CommitSlot records the (offs, len) that slotIdx's mailbox entry is about
// to publish, so a future gc pass can reclaim that region once the slot
// goes back to empty (at which point the mailbox word itself no longer
// carries offs/len). Called from PutCmd's onReady hook.
func (a *Allocator) CommitSlot(slotIdx uint64, offs, length uint32) {
	a.mlist[slotIdx] = mlistEntry{offs: offs, len: length}
}

// gc reclaims the contiguous prefix of slots, starting just after the most
// recently published one, whose payloads have already been consumed
// (mailbox cmd == empty). Because the queue is SPSC and slots recycle in
// submission order, finished payloads form a reclaimable prefix of the free
// region — see spec.md §4.3's rationale.
func (a *Allocator) gc() {
	lastPut := a.q.LastPutReq()
	if lastPut < 0 {
		return
	}
	n := a.q.SlotCount()
	l := slotIndex(lastPut, n)

	if a.freeEnd == a.dataLen {
		if tail := a.dataLen - a.freeBegin; tail > 0 {
			e := a.mlist[l]
			if e.len == 0 {
				e.offs = uint32(a.freeBegin)
			}
			e.len += uint32(tail)
			a.mlist[l] = e
		}
		a.freeBegin, a.freeEnd = 0, 0
	}

	idx := (l + 1) % n
	for i := uint64(0); i < n-1; i++ {
		if a.q.MailboxCmd(idx) != emptyCmd {
			break
		}
		e := a.mlist[idx]
		if e.len > 0 {
			if uint64(e.offs) != a.freeEnd {
				break
			}
			a.freeEnd = alignTo8(uint64(e.offs) + uint64(e.len))
			a.mlist[idx] = mlistEntry{}
		}
		idx = (idx + 1) % n
	}
}

// FreeBytes reports the currently available (unfragmented) free region
// size, free_end - free_begin. Exposed for tests and diagnostics.
func (a *Allocator) FreeBytes() uint64 { return a.freeEnd - a.freeBegin }
