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
	"time"
	"unsafe"
)

// newTestQueue builds a TransferQueue over a plain heap allocation, so
// queue/allocator unit tests don't need a real mmap'd segment.
func newTestQueue(t *testing.T, slotCount, dataLen uint64) *TransferQueue {
	t.Helper()
	size := queueLayout(slotCount, dataLen)
	buf := make([]byte, size)
	hdr := (*transferQueueHeader)(unsafe.Pointer(&buf[0]))
	initQueueHeader(hdr, slotCount, dataLen)
	q := newTransferQueue(hdr, nil)
	// buf stays alive as long as q does: q's header and data pointers
	// alias it.
	return q
}

func TestPutGetCmdRoundTrip(t *testing.T) {
	q := newTestQueue(t, 8, 4096)
	ctx := context.Background()

	req, err := q.PutCmd(ctx, 5, 100, 16, nil)
	if err != nil {
		t.Fatalf("PutCmd: %v", err)
	}
	if req != 0 {
		t.Fatalf("first PutCmd req = %d, want 0", req)
	}

	gotReq, cmd, offs, length, ok := q.GetCmd()
	if !ok {
		t.Fatal("GetCmd returned ok=false, want true")
	}
	if gotReq != req || cmd != 5 || offs != 100 || length != 16 {
		t.Fatalf("GetCmd = (%d, %d, %d, %d), want (%d, 5, 100, 16)", gotReq, cmd, offs, length, req)
	}

	if _, _, _, _, ok := q.GetCmd(); ok {
		t.Fatal("second GetCmd should return ok=false, nothing more published")
	}

	q.SlotDone(req)
	if cmd := q.MailboxCmd(uint64(req)); cmd != emptyCmd {
		t.Fatalf("slot cmd after SlotDone = %d, want empty", cmd)
	}
}

func TestPutCmdBlocksUntilSlotFrees(t *testing.T) {
	q := newTestQueue(t, 2, 4096)
	ctx := context.Background()

	// Fill both slots (N=2): reqs 0 and 1.
	if _, err := q.PutCmd(ctx, 1, 0, 0, nil); err != nil {
		t.Fatalf("PutCmd(0): %v", err)
	}
	if _, err := q.PutCmd(ctx, 1, 0, 0, nil); err != nil {
		t.Fatalf("PutCmd(1): %v", err)
	}

	// Slot 0 (req 2 % 2 == 0) is still occupied by req 0; PutCmd must
	// block until we free it, and must respect ctx cancellation instead
	// of spinning forever.
	shortCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := q.PutCmd(shortCtx, 1, 0, 0, nil); err != ErrQueueFull {
		t.Fatalf("PutCmd on full queue = %v, want ErrQueueFull", err)
	}

	// Free slot 0 and retry with a fresh context; should succeed now.
	if _, _, _, _, ok := q.GetCmd(); !ok {
		t.Fatal("expected a pending entry to consume")
	}
	q.SlotDone(0)

	if _, err := q.PutCmd(ctx, 1, 0, 0, nil); err != nil {
		t.Fatalf("PutCmd after freeing slot: %v", err)
	}
}

func TestBacklogTracksOutstandingEntries(t *testing.T) {
	q := newTestQueue(t, 8, 4096)
	ctx := context.Background()

	if q.Backlog() != 0 {
		t.Fatalf("initial backlog = %d, want 0", q.Backlog())
	}
	if _, err := q.PutCmd(ctx, 1, 0, 0, nil); err != nil {
		t.Fatalf("PutCmd: %v", err)
	}
	if q.Backlog() != 1 {
		t.Fatalf("backlog after one put = %d, want 1", q.Backlog())
	}
	if _, _, _, _, ok := q.GetCmd(); !ok {
		t.Fatal("GetCmd should have an entry")
	}
	if q.Backlog() != 0 {
		t.Fatalf("backlog after get = %d, want 0", q.Backlog())
	}
}
