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
	"testing"
)

func TestAllocReturnsSequentialOffsets(t *testing.T) {
	q := newTestQueue(t, 8, 4096)
	a := NewAllocator(q)
	ctx := context.Background()

	off1, err := a.Alloc(ctx, 100)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if off1 != 0 {
		t.Fatalf("first Alloc offset = %d, want 0", off1)
	}
	off2, err := a.Alloc(ctx, 50)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if uint64(off2) != alignTo8(100) {
		t.Fatalf("second Alloc offset = %d, want %d", off2, alignTo8(100))
	}
}

func TestAllocTooLargeFails(t *testing.T) {
	q := newTestQueue(t, 8, 256)
	a := NewAllocator(q)
	if _, err := a.Alloc(context.Background(), 4096); err != ErrOutOfPayload {
		t.Fatalf("Alloc oversized = %v, want ErrOutOfPayload", err)
	}
}

// TestAllocReclaimsAfterSlotDone exercises the full alloc -> put_cmd ->
// get_cmd -> slot_done -> alloc cycle, checking that gc() reclaims space
// once the consumer frees a slot whose payload has been fully allocated
// past the ring's free region.
func TestAllocReclaimsAfterSlotDone(t *testing.T) {
	const slots, dataLen = 4, 256
	q := newTestQueue(t, slots, dataLen)
	a := NewAllocator(q)
	ctx := context.Background()

	send := func(size uint32) int64 {
		offs, err := a.Alloc(ctx, size)
		if err != nil {
			t.Fatalf("Alloc(%d): %v", size, err)
		}
		req, err := q.PutCmd(ctx, 1, offs, size, func(idx uint64) {
			a.CommitSlot(idx, offs, size)
		})
		if err != nil {
			t.Fatalf("PutCmd: %v", err)
		}
		return req
	}

	// Each send consumes 64 bytes (aligned), filling the 256-byte ring
	// after 4 sends with nothing freed yet.
	reqs := make([]int64, 0, slots)
	for i := 0; i < slots; i++ {
		reqs = append(reqs, send(60))
	}
	if a.FreeBytes() != 0 {
		t.Fatalf("FreeBytes after filling ring = %d, want 0", a.FreeBytes())
	}

	// Consume and free the oldest two slots.
	for i := 0; i < 2; i++ {
		req, _, _, _, ok := q.GetCmd()
		if !ok {
			t.Fatal("expected entry to consume")
		}
		q.SlotDone(req)
	}
	_ = reqs

	// A subsequent alloc should now succeed by running gc().
	if _, err := a.Alloc(ctx, 60); err != nil {
		t.Fatalf("Alloc after freeing should succeed via gc(): %v", err)
	}
}

// TestAllocRecoversAcrossWrapBoundary submits payload across the exact
// wrap point of the data ring: a chunk that is freed before the ring fills,
// a second chunk that stops 8 bytes short of the ring's end, and a third chunk that
// can only be satisfied once gc() has both absorbed the unused tail
// fragment into the most recently published slot and reclaimed the
// already-consumed head slot on the far side of the wrap.
func TestAllocRecoversAcrossWrapBoundary(t *testing.T) {
	const slots, dataLen = 4, 128
	q := newTestQueue(t, slots, dataLen)
	a := NewAllocator(q)
	ctx := context.Background()

	// Chunk A: 100 bytes, consumed immediately so its span becomes
	// reclaimable once the ring wraps around to it.
	offA, err := a.Alloc(ctx, 100)
	if err != nil {
		t.Fatalf("Alloc(A): %v", err)
	}
	if offA != 0 {
		t.Fatalf("offA = %d, want 0", offA)
	}
	reqA, err := q.PutCmd(ctx, 1, offA, 100, func(idx uint64) { a.CommitSlot(idx, offA, 100) })
	if err != nil {
		t.Fatalf("PutCmd(A): %v", err)
	}
	gotReq, _, _, _, ok := q.GetCmd()
	if !ok || gotReq != reqA {
		t.Fatalf("GetCmd(A) = (%d, %v), want (%d, true)", gotReq, ok, reqA)
	}
	q.SlotDone(reqA)

	// Chunk B: 16 bytes, left outstanding. A's 100 bytes were rounded up
	// to 104, so B starts there and leaves an 8-byte unusable tail before
	// free_end reaches data_len.
	offB, err := a.Alloc(ctx, 16)
	if err != nil {
		t.Fatalf("Alloc(B): %v", err)
	}
	if offB != 104 {
		t.Fatalf("offB = %d, want 104", offB)
	}
	if _, err := q.PutCmd(ctx, 1, offB, 16, func(idx uint64) { a.CommitSlot(idx, offB, 16) }); err != nil {
		t.Fatalf("PutCmd(B): %v", err)
	}
	if got := a.FreeBytes(); got != 8 {
		t.Fatalf("FreeBytes before wrap = %d, want 8", got)
	}

	// Chunk C needs more than the 8-byte tail, forcing gc() to absorb
	// the tail into B's span, wrap free_begin/free_end back to zero, and
	// reclaim A's now-empty slot on the far side.
	offC, err := a.Alloc(ctx, 16)
	if err != nil {
		t.Fatalf("Alloc(C) across wrap: %v", err)
	}
	if offC != 0 {
		t.Fatalf("offC = %d, want 0 (reclaimed from A's span after wrap)", offC)
	}
	if got, want := a.FreeBytes(), uint64(104-16); got != want {
		t.Fatalf("FreeBytes after wrap = %d, want %d", got, want)
	}
}
