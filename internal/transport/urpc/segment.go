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
	"fmt"
	"sync/atomic"
	"unsafe"
)

// Layout constants for the shared segment.
const (
	// SegmentMagic identifies a valid segment.
	SegmentMagic = "MURPC\x00\x00\x00"

	// SegmentVersion is the current wire protocol version.
	SegmentVersion = uint32(1)

	// SegmentHeaderSize is the size in bytes of SegmentHeader, aligned to 128B.
	SegmentHeaderSize = 128

	// tqFixedHeaderSize is the size in bytes of the fixed portion of
	// transferQueueHeader, aligned to 64B. The mailbox array and data ring
	// follow immediately after.
	tqFixedHeaderSize = 64

	// DefaultSlotCount is N, the mailbox depth per direction. Must be a power of two.
	DefaultSlotCount = 256

	// MinSlotCount is the smallest permitted mailbox depth.
	MinSlotCount = 4

	// DefaultDataBufferSize is D, the payload ring size per direction, in bytes.
	DefaultDataBufferSize = 4 * 1024 * 1024

	// MinDataBufferSize is the smallest permitted payload ring size.
	MinDataBufferSize = 4096

	// DefaultMaxHandlers bounds the command-code space, matching
	// spec.md's [1, MAX_HANDLERS] handler range.
	DefaultMaxHandlers = 64

	// invalidReq is the bit pattern for "no request yet": sequence counters
	// are initialized to -1 per spec.md §3, stored as the all-ones uint64.
	invalidReq = ^uint64(0)
)

// SegmentHeader is the 128-byte header at offset 0 of the shared segment.
// All fields are accessed through sync/atomic because the memory is shared
// with another process — plain Go field assignment across this boundary is
// forbidden, per spec.md's "Shared-memory atomics" design note.
type SegmentHeader struct {
	magic        [8]byte
	version      uint32
	flags        uint32
	totalSize    uint64
	queueAOffset uint64
	queueBOffset uint64
	slotCount    uint64
	dataBufLen   uint64
	maxHandlers  uint32
	pad0         uint32
	hostPID      uint32
	remotePID    uint32
	hostReady    uint32
	remoteReady  uint32
	attachCount  uint32
	closed       uint32
	reserved     [40]byte
}

func (h *SegmentHeader) Magic() [8]byte { return h.magic }
func (h *SegmentHeader) SetMagic(m [8]byte) { h.magic = m }

func (h *SegmentHeader) Version() uint32        { return atomic.LoadUint32(&h.version) }
func (h *SegmentHeader) SetVersion(v uint32)     { atomic.StoreUint32(&h.version, v) }
func (h *SegmentHeader) TotalSize() uint64       { return atomic.LoadUint64(&h.totalSize) }
func (h *SegmentHeader) SetTotalSize(v uint64)   { atomic.StoreUint64(&h.totalSize, v) }
func (h *SegmentHeader) QueueAOffset() uint64     { return atomic.LoadUint64(&h.queueAOffset) }
func (h *SegmentHeader) SetQueueAOffset(v uint64) { atomic.StoreUint64(&h.queueAOffset, v) }
func (h *SegmentHeader) QueueBOffset() uint64     { return atomic.LoadUint64(&h.queueBOffset) }
func (h *SegmentHeader) SetQueueBOffset(v uint64) { atomic.StoreUint64(&h.queueBOffset, v) }
func (h *SegmentHeader) SlotCount() uint64        { return atomic.LoadUint64(&h.slotCount) }
func (h *SegmentHeader) SetSlotCount(v uint64)    { atomic.StoreUint64(&h.slotCount, v) }
func (h *SegmentHeader) DataBufLen() uint64       { return atomic.LoadUint64(&h.dataBufLen) }
func (h *SegmentHeader) SetDataBufLen(v uint64)   { atomic.StoreUint64(&h.dataBufLen, v) }
func (h *SegmentHeader) MaxHandlers() uint32      { return atomic.LoadUint32(&h.maxHandlers) }
func (h *SegmentHeader) SetMaxHandlers(v uint32)  { atomic.StoreUint32(&h.maxHandlers, v) }
func (h *SegmentHeader) HostPID() uint32          { return atomic.LoadUint32(&h.hostPID) }
func (h *SegmentHeader) SetHostPID(v uint32)      { atomic.StoreUint32(&h.hostPID, v) }
func (h *SegmentHeader) RemotePID() uint32        { return atomic.LoadUint32(&h.remotePID) }
func (h *SegmentHeader) SetRemotePID(v uint32)    { atomic.StoreUint32(&h.remotePID, v) }

func (h *SegmentHeader) HostReady() bool { return atomic.LoadUint32(&h.hostReady) != 0 }
func (h *SegmentHeader) SetHostReady(v bool) {
	atomic.StoreUint32(&h.hostReady, boolToUint32(v))
}

func (h *SegmentHeader) RemoteReady() bool { return atomic.LoadUint32(&h.remoteReady) != 0 }
func (h *SegmentHeader) SetRemoteReady(v bool) {
	atomic.StoreUint32(&h.remoteReady, boolToUint32(v))
}

// AttachCount returns the number of times the segment has been attached by
// a remote peer. Supplements the boolean ready flags (original_source only
// tracks a single attach event per side).
func (h *SegmentHeader) AttachCount() uint32     { return atomic.LoadUint32(&h.attachCount) }
func (h *SegmentHeader) IncrementAttachCount() uint32 { return atomic.AddUint32(&h.attachCount, 1) }

func (h *SegmentHeader) Closed() bool { return atomic.LoadUint32(&h.closed) != 0 }
func (h *SegmentHeader) SetClosed(v bool) {
	atomic.StoreUint32(&h.closed, boolToUint32(v))
}

func boolToUint32(v bool) uint32 {
	if v {
		return 1
	}
	return 0
}

// transferQueueHeader is the fixed-size (64B) header at the start of each
// direction's transfer queue. The mailbox slot array (N * 8 bytes) and the
// payload data ring (D bytes) follow immediately after in shared memory.
type transferQueueHeader struct {
	senderFlags   uint32
	receiverFlags uint32
	pad0          uint32
	pad1          uint32
	lastPutReq    uint64 // two's-complement bit pattern of an int64, -1 initially
	lastGetReq    uint64
	slotCount     uint64
	dataLen       uint64
	reserved      [16]byte
}

func (q *transferQueueHeader) SenderFlags() uint32   { return atomic.LoadUint32(&q.senderFlags) }
func (q *transferQueueHeader) SetSenderFlags(v uint32) { atomic.StoreUint32(&q.senderFlags, v) }
func (q *transferQueueHeader) ReceiverFlags() uint32   { return atomic.LoadUint32(&q.receiverFlags) }
func (q *transferQueueHeader) SetReceiverFlags(v uint32) {
	atomic.StoreUint32(&q.receiverFlags, v)
}

func (q *transferQueueHeader) LastPutReq() int64 {
	return int64(atomic.LoadUint64(&q.lastPutReq))
}
func (q *transferQueueHeader) SetLastPutReq(v int64) {
	atomic.StoreUint64(&q.lastPutReq, uint64(v))
}
func (q *transferQueueHeader) LastGetReq() int64 {
	return int64(atomic.LoadUint64(&q.lastGetReq))
}
func (q *transferQueueHeader) SetLastGetReq(v int64) {
	atomic.StoreUint64(&q.lastGetReq, uint64(v))
}

func (q *transferQueueHeader) SlotCount() uint64 { return atomic.LoadUint64(&q.slotCount) }
func (q *transferQueueHeader) DataLen() uint64   { return atomic.LoadUint64(&q.dataLen) }

// mailboxAt returns a pointer to the 64-bit mailbox word for the given slot
// index within this queue's slot array, which begins immediately after the
// fixed header.
func (q *transferQueueHeader) mailboxAt(slot uint64) *uint64 {
	return (*uint64)(unsafe.Add(unsafe.Pointer(q), tqFixedHeaderSize+uintptr(slot)*8))
}

// dataArea returns the payload ring as a byte slice backed by shared memory.
func (q *transferQueueHeader) dataArea(n uint64) []byte {
	base := unsafe.Add(unsafe.Pointer(q), tqFixedHeaderSize+uintptr(n)*8)
	return unsafe.Slice((*byte)(base), int(q.DataLen()))
}

// alignTo64 rounds size up to the next multiple of 64.
func alignTo64(size uint64) uint64 { return (size + 63) &^ 63 }

// alignTo8 rounds size up to the next multiple of 8, per spec.md's payload
// and record alignment rules.
func alignTo8(size uint64) uint64 { return (size + 7) &^ 7 }

// isPowerOfTwo reports whether n is a power of two.
func isPowerOfTwo(n uint64) bool { return n > 0 && n&(n-1) == 0 }

// queueLayout computes the total byte size of one direction's transfer
// queue (fixed header + mailbox array + data ring), aligned to 64 bytes so
// consecutive queues in the segment start on aligned boundaries.
func queueLayout(slotCount, dataLen uint64) uint64 {
	return alignTo64(tqFixedHeaderSize + slotCount*8 + dataLen)
}

// CalculateSegmentLayout computes the total segment size and the byte
// offsets of queue A (host->remote) and queue B (remote->host).
func CalculateSegmentLayout(slotCount, dataLen uint64) (totalSize, queueAOffset, queueBOffset uint64, err error) {
	if !isPowerOfTwo(slotCount) {
		return 0, 0, 0, fmt.Errorf("slot count %d is not a power of two", slotCount)
	}
	if slotCount < MinSlotCount {
		return 0, 0, 0, fmt.Errorf("slot count %d is below minimum %d", slotCount, MinSlotCount)
	}
	if dataLen < MinDataBufferSize {
		return 0, 0, 0, fmt.Errorf("data buffer size %d is below minimum %d", dataLen, MinDataBufferSize)
	}
	queueAOffset = alignTo64(SegmentHeaderSize)
	qSize := queueLayout(slotCount, dataLen)
	queueBOffset = queueAOffset + qSize
	totalSize = queueBOffset + qSize
	return totalSize, queueAOffset, queueBOffset, nil
}

// ValidateSegmentHeader checks a segment header for internal consistency,
// used by OpenSegment before trusting attacker^Wpeer-supplied layout fields.
func ValidateSegmentHeader(h *SegmentHeader) error {
	if h.Magic() != [8]byte{'M', 'U', 'R', 'P', 'C', 0, 0, 0} {
		return fmt.Errorf("invalid magic bytes")
	}
	if h.Version() != SegmentVersion {
		return fmt.Errorf("unsupported version %d, expected %d", h.Version(), SegmentVersion)
	}
	expectedTotal, expectedAOff, expectedBOff, err := CalculateSegmentLayout(h.SlotCount(), h.DataBufLen())
	if err != nil {
		return fmt.Errorf("layout calculation failed: %w", err)
	}
	if h.TotalSize() != expectedTotal {
		return fmt.Errorf("total size mismatch: got %d, expected %d", h.TotalSize(), expectedTotal)
	}
	if h.QueueAOffset() != expectedAOff {
		return fmt.Errorf("queue A offset mismatch: got %d, expected %d", h.QueueAOffset(), expectedAOff)
	}
	if h.QueueBOffset() != expectedBOff {
		return fmt.Errorf("queue B offset mismatch: got %d, expected %d", h.QueueBOffset(), expectedBOff)
	}
	return nil
}
