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
	"bytes"
	"errors"
	"testing"
)

func TestPackUnpackRoundTrip(t *testing.T) {
	payload := []byte("hello urpc")
	size, err := PackedSize("LIxP", uint64(42), uint32(7), payload)
	if err != nil {
		t.Fatalf("PackedSize: %v", err)
	}
	buf := make([]byte, size)
	n, err := Pack(buf, "LIxP", uint64(42), uint32(7), payload)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if uint64(n) != size {
		t.Fatalf("Pack wrote %d bytes, PackedSize said %d", n, size)
	}
	if len(buf)%8 != 0 {
		t.Fatalf("packed record not 8-byte aligned: %d", len(buf))
	}

	var l1 uint64
	var i1 uint32
	var out []byte
	if err := Unpack(buf, "LIxP", &l1, &i1, &out); err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if l1 != 42 || i1 != 7 {
		t.Fatalf("unpacked scalars wrong: l1=%d i1=%d", l1, i1)
	}
	if !bytes.Equal(out, payload) {
		t.Fatalf("unpacked payload = %q, want %q", out, payload)
	}
}

func TestUnpackShortBuffer(t *testing.T) {
	buf := make([]byte, 4)
	var v uint32
	if err := Unpack(buf, "II", &v, &v); !errors.Is(err, ErrShort) {
		t.Fatalf("expected ErrShort, got %v", err)
	}
}

func TestPackMisalignedFormatRejected(t *testing.T) {
	// "IL" puts the 8-byte field at offset 4, violating alignment.
	if _, err := PackedSize("IL", uint32(1), uint64(2)); !errors.Is(err, ErrMisaligned) {
		t.Fatalf("expected ErrMisaligned, got %v", err)
	}
}

func TestUnknownFormatCharacter(t *testing.T) {
	if _, err := PackedSize("Z"); err == nil {
		t.Fatal("expected error for unknown format character")
	}
}

func TestFormatPlanIsCached(t *testing.T) {
	format := "ILx"
	plan1, err := compileFormat(format)
	if err != nil {
		t.Fatalf("compileFormat: %v", err)
	}
	plan2, err := compileFormat(format)
	if err != nil {
		t.Fatalf("compileFormat: %v", err)
	}
	if plan1 != plan2 {
		t.Fatal("expected cached plan to be reused across calls with the same format string")
	}
}

func TestPackPaddingIsZeroed(t *testing.T) {
	buf := make([]byte, 8)
	for i := range buf {
		buf[i] = 0xff
	}
	if _, err := Pack(buf, "x"); err != nil {
		t.Fatalf("Pack: %v", err)
	}
	for i := 0; i < 4; i++ {
		if buf[i] != 0 {
			t.Fatalf("padding byte %d not zeroed: %#x", i, buf[i])
		}
	}
}
