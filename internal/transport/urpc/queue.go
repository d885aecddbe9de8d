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
	"sync/atomic"
)

// ErrQueueFull is returned by PutCmd when the target slot is still occupied
// and the caller's context expires before it frees up.
var ErrQueueFull = errors.New("urpc: transfer queue full")

// ErrQueueClosed is returned once the segment has been marked closed.
var ErrQueueClosed = errors.New("urpc: transfer queue closed")

// spinYieldEvery bounds how many bare spin iterations run before the loop
// calls runtime.Gosched. A raw spin keeps latency lowest when the peer is
// about to post; yielding periodically keeps a busy host CPU from starving
// everything else on the core when the peer is slow. This is Go's nearest
// equivalent to a CPU pause intrinsic — unlike futex or condvar waits it
// never calls into the OS scheduler in a way that could block on a lock the
// remote process might itself be holding, matching spec.md's spin
// discipline ("must not call out to a scheduler that could hold an OS lock
// shared with the remote").
const spinYieldEvery = 256

// TransferQueue is one direction of the SPSC mailbox: the fixed header, the
// mailbox slot array, and a view of the data ring. A Segment owns two of
// these, one per direction.
type TransferQueue struct {
	hdr       *transferQueueHeader
	data      []byte
	slotCount uint64
	closed    *uint32
}

func newTransferQueue(hdr *transferQueueHeader, closed *uint32) *TransferQueue {
	n := hdr.SlotCount()
	return &TransferQueue{
		hdr:       hdr,
		data:      hdr.dataArea(n),
		slotCount: n,
		closed:    closed,
	}
}

// HostQueues returns the host's send/recv TransferQueue pair for seg: the
// host sends on queue A and receives on queue B.
func HostQueues(seg *Segment) (send, recv *TransferQueue) {
	return newTransferQueue(seg.A, &seg.H.closed), newTransferQueue(seg.B, &seg.H.closed)
}

// RemoteQueues returns the remote's send/recv TransferQueue pair for seg:
// the mirror image of HostQueues, since A is host->remote and B is
// remote->host.
func RemoteQueues(seg *Segment) (send, recv *TransferQueue) {
	return newTransferQueue(seg.B, &seg.H.closed), newTransferQueue(seg.A, &seg.H.closed)
}

// Data returns the direction's payload ring as a byte slice backed by
// shared memory. Callers (the payload allocator) are responsible for never
// reading or writing outside the bounds returned by a prior Alloc.
func (q *TransferQueue) Data() []byte { return q.data }

// SlotCount returns N, the mailbox depth, a power of two.
func (q *TransferQueue) SlotCount() uint64 { return q.slotCount }

func (q *TransferQueue) isClosed() bool {
	return q.closed != nil && atomic.LoadUint32(q.closed) != 0
}

// PutCmd reserves the next sequence number, spins until that slot's mailbox
// word reads empty, then publishes cmd/offs/length and advances
// last_put_req. The caller must have already written length bytes of
// payload into Data()[offs:offs+length] (or left them empty for
// zero-payload commands) before calling PutCmd, since the slot publish is
// the signal that those bytes are ready to read.
//
// onReady, if non-nil, is called with the reserved slot index once the slot
// is confirmed empty but before its new contents are published — this is
// the allocator's hook for recording the slot's (offs, len) in its
// process-local mlist side-table before the bytes it describes become
// reachable from the mailbox word alone.
//
// PutCmd only ever has one caller per TransferQueue (the SPSC producer), so
// last_put_req needs no compare-and-swap — only ordered loads and stores
// against the single shared copy.
func (q *TransferQueue) PutCmd(ctx context.Context, cmd uint8, offs uint32, length uint32, onReady func(slotIdx uint64)) (int64, error) {
	req := q.hdr.LastPutReq() + 1
	idx := slotIndex(req, q.slotCount)
	slot := q.hdr.mailboxAt(idx)

	spins := 0
	for {
		if q.isClosed() {
			return InvalidReq, ErrQueueClosed
		}
		if uint8(atomic.LoadUint64(slot)&cmdMask) == emptyCmd {
			break
		}
		select {
		case <-ctx.Done():
			return InvalidReq, ErrQueueFull
		default:
		}
		spins++
		if spins%spinYieldEvery == 0 {
			runtime.Gosched()
		}
	}

	if onReady != nil {
		onReady(idx)
	}
	atomic.StoreUint64(slot, packSlot(cmd, offs, length))
	q.hdr.SetLastPutReq(req)
	return req, nil
}

// LastPutReq and LastGetReq expose the direction's sequence counters.
func (q *TransferQueue) LastPutReq() int64 { return q.hdr.LastPutReq() }
func (q *TransferQueue) LastGetReq() int64 { return q.hdr.LastGetReq() }

// MailboxCmd returns the command byte currently published in slot idx,
// without disturbing offs/len. Used by the allocator's gc pass to test
// whether a slot has been freed.
func (q *TransferQueue) MailboxCmd(idx uint64) uint8 {
	return uint8(atomic.LoadUint64(q.hdr.mailboxAt(idx)) & cmdMask)
}

// GetCmd pops the next mailbox entry if one is pending, without blocking.
// It reports ok=false when the producer has not published past
// last_get_req yet.
func (q *TransferQueue) GetCmd() (req int64, cmd uint8, offs uint32, length uint32, ok bool) {
	lastPut := q.hdr.LastPutReq()
	lastGet := q.hdr.LastGetReq()
	if lastPut <= lastGet {
		return 0, 0, 0, 0, false
	}
	req = lastGet + 1
	idx := slotIndex(req, q.slotCount)
	v := atomic.LoadUint64(q.hdr.mailboxAt(idx))
	cmd, offs, length = unpackSlot(v)
	q.hdr.SetLastGetReq(req)
	return req, cmd, offs, length, true
}

// SlotDone marks the mailbox slot for req as empty again, telling the
// producer that the slot and its described payload bytes are reclaimable.
// Only the receiver calls this, after it has finished reading the payload.
func (q *TransferQueue) SlotDone(req int64) {
	idx := slotIndex(req, q.slotCount)
	atomic.StoreUint64(q.hdr.mailboxAt(idx), 0)
}

// SenderFlags and ReceiverFlags expose the two per-direction flag words for
// side-band signaling. Nothing in this package reads or sets them; the
// attach handshake uses the segment header's ready flags and attach count.
func (q *TransferQueue) SenderFlags() uint32            { return q.hdr.SenderFlags() }
func (q *TransferQueue) SetSenderFlags(v uint32)        { q.hdr.SetSenderFlags(v) }
func (q *TransferQueue) ReceiverFlags() uint32          { return q.hdr.ReceiverFlags() }
func (q *TransferQueue) SetReceiverFlags(v uint32)      { q.hdr.SetReceiverFlags(v) }

// Backlog returns the number of mailbox entries published but not yet
// consumed, i.e. last_put_req - last_get_req.
func (q *TransferQueue) Backlog() int64 {
	return q.hdr.LastPutReq() - q.hdr.LastGetReq()
}

// NextSlotFree reports, without blocking, whether the slot PutCmd would
// claim next is currently empty — the same test PutCmd's spin loop makes on
// every iteration, exposed so a caller can decide not to attempt a submit
// that would only block waiting on backpressure.
func (q *TransferQueue) NextSlotFree() bool {
	req := q.hdr.LastPutReq() + 1
	idx := slotIndex(req, q.slotCount)
	return uint8(atomic.LoadUint64(q.hdr.mailboxAt(idx))&cmdMask) == emptyCmd
}
