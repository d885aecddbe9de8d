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

import "testing"

func TestPackUnpackSlotRoundTrip(t *testing.T) {
	cases := []struct {
		cmd    uint8
		offs   uint32
		length uint32
	}{
		{0, 0, 0},
		{1, 0, 0},
		{255, uint32(MaxPayloadOffset), uint32(MaxPayloadLen)},
		{42, 1 << 20, 4096},
	}
	for _, tc := range cases {
		v := packSlot(tc.cmd, tc.offs, tc.length)
		cmd, offs, length := unpackSlot(v)
		if cmd != tc.cmd || offs != tc.offs || length != tc.length {
			t.Fatalf("round trip mismatch for %+v: got cmd=%d offs=%d len=%d", tc, cmd, offs, length)
		}
	}
}

func TestPackSlotTruncatesOversizedOffset(t *testing.T) {
	v := packSlot(1, uint32(MaxPayloadOffset)+5, 0)
	_, offs, _ := unpackSlot(v)
	if offs == uint32(MaxPayloadOffset)+5 {
		t.Fatalf("expected offset to be masked to 24 bits, got %d", offs)
	}
}

func TestSlotIndexWraps(t *testing.T) {
	const n = 256
	if got := slotIndex(0, n); got != 0 {
		t.Fatalf("slotIndex(0) = %d, want 0", got)
	}
	if got := slotIndex(n, n); got != 0 {
		t.Fatalf("slotIndex(n) = %d, want 0 (wrap)", got)
	}
	if got := slotIndex(n+5, n); got != 5 {
		t.Fatalf("slotIndex(n+5) = %d, want 5", got)
	}
}
