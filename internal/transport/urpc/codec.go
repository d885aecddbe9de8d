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
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
)

// ErrShort is returned by Unpack when the buffer is exhausted before the
// format string is fully consumed.
var ErrShort = errors.New("urpc: short buffer")

// ErrMisaligned is returned when an 8-byte field (L or P) falls on an
// offset that is not a multiple of 8 — the format string is missing an x
// padding entry, per spec.md §4.4's alignment rule.
var ErrMisaligned = errors.New("urpc: misaligned field in format string")

type fieldKind byte

const (
	fieldU32 fieldKind = 'I'
	fieldU64 fieldKind = 'L'
	fieldPad fieldKind = 'x'
	fieldBuf fieldKind = 'P'
)

// formatPlan is the parsed, validated form of a format string, cached so
// repeated pack/unpack calls on the same hot-path format (the common case —
// call sites reuse the same wire shape for every invocation of one remote
// function) skip re-parsing.
type formatPlan struct {
	fields []fieldKind
}

var planCache sync.Map // string -> *formatPlan

func compileFormat(format string) (*formatPlan, error) {
	if cached, ok := planCache.Load(format); ok {
		return cached.(*formatPlan), nil
	}
	fields := make([]fieldKind, 0, len(format))
	for _, c := range format {
		switch fieldKind(c) {
		case fieldU32, fieldU64, fieldPad, fieldBuf:
			fields = append(fields, fieldKind(c))
		default:
			return nil, fmt.Errorf("urpc: unknown format character %q", c)
		}
	}
	plan := &formatPlan{fields: fields}
	actual, _ := planCache.LoadOrStore(format, plan)
	return actual.(*formatPlan), nil
}

// PackedSize returns the number of bytes Pack will write for format and
// args, without writing anything. Useful for sizing the destination buffer
// before allocating payload space.
func PackedSize(format string, args ...interface{}) (uint64, error) {
	plan, err := compileFormat(format)
	if err != nil {
		return 0, err
	}
	var size uint64
	argIdx := 0
	for _, f := range plan.fields {
		switch f {
		case fieldU32:
			size += 4
			argIdx++
		case fieldU64:
			if size%8 != 0 {
				return 0, ErrMisaligned
			}
			size += 8
			argIdx++
		case fieldPad:
			size += 4
		case fieldBuf:
			if size%8 != 0 {
				return 0, ErrMisaligned
			}
			if argIdx >= len(args) {
				return 0, fmt.Errorf("urpc: too few arguments for format %q", format)
			}
			buf, ok := args[argIdx].([]byte)
			if !ok {
				return 0, fmt.Errorf("urpc: argument %d must be []byte for 'P'", argIdx)
			}
			size += 8 + uint64(len(buf))
			argIdx++
		}
	}
	return alignTo8(size), nil
}

// Pack walks format twice — once via PackedSize to compute the size, once
// here to emit — and writes the packed record into dst, which must be at
// least PackedSize(format, args...) bytes. It returns the number of bytes
// written.
//
// Send arguments by kind: 'I' takes a uint32, 'L' takes a uint64, 'x' takes
// nothing, 'P' takes a []byte.
func Pack(dst []byte, format string, args ...interface{}) (int, error) {
	size, err := PackedSize(format, args...)
	if err != nil {
		return 0, err
	}
	if uint64(len(dst)) < size {
		return 0, fmt.Errorf("urpc: destination buffer too small: have %d, need %d", len(dst), size)
	}
	plan, err := compileFormat(format)
	if err != nil {
		return 0, err
	}

	off := 0
	argIdx := 0
	for _, f := range plan.fields {
		switch f {
		case fieldU32:
			v, ok := args[argIdx].(uint32)
			if !ok {
				return 0, fmt.Errorf("urpc: argument %d must be uint32 for 'I'", argIdx)
			}
			binary.LittleEndian.PutUint32(dst[off:], v)
			off += 4
			argIdx++
		case fieldU64:
			v, ok := args[argIdx].(uint64)
			if !ok {
				return 0, fmt.Errorf("urpc: argument %d must be uint64 for 'L'", argIdx)
			}
			binary.LittleEndian.PutUint64(dst[off:], v)
			off += 8
			argIdx++
		case fieldPad:
			dst[off] = 0
			dst[off+1] = 0
			dst[off+2] = 0
			dst[off+3] = 0
			off += 4
		case fieldBuf:
			buf := args[argIdx].([]byte)
			binary.LittleEndian.PutUint64(dst[off:], uint64(len(buf)))
			off += 8
			copy(dst[off:], buf)
			off += len(buf)
			argIdx++
		}
	}
	return int(size), nil
}

// Unpack reads format's fields out of src. Recv arguments by kind: 'I'
// takes a *uint32, 'L' takes a *uint64, 'x' takes nothing, 'P' takes a
// *[]byte — the slice it sets points directly into src, valid only until
// the caller releases the underlying slot (SlotDone). Copy out of it if the
// data must outlive that.
func Unpack(src []byte, format string, args ...interface{}) error {
	plan, err := compileFormat(format)
	if err != nil {
		return err
	}

	off := 0
	argIdx := 0
	need := func(n int) error {
		if off+n > len(src) {
			return ErrShort
		}
		return nil
	}
	for _, f := range plan.fields {
		switch f {
		case fieldU32:
			if err := need(4); err != nil {
				return err
			}
			out, ok := args[argIdx].(*uint32)
			if !ok {
				return fmt.Errorf("urpc: argument %d must be *uint32 for 'I'", argIdx)
			}
			*out = binary.LittleEndian.Uint32(src[off:])
			off += 4
			argIdx++
		case fieldU64:
			if off%8 != 0 {
				return ErrMisaligned
			}
			if err := need(8); err != nil {
				return err
			}
			out, ok := args[argIdx].(*uint64)
			if !ok {
				return fmt.Errorf("urpc: argument %d must be *uint64 for 'L'", argIdx)
			}
			*out = binary.LittleEndian.Uint64(src[off:])
			off += 8
			argIdx++
		case fieldPad:
			if err := need(4); err != nil {
				return err
			}
			off += 4
		case fieldBuf:
			if off%8 != 0 {
				return ErrMisaligned
			}
			if err := need(8); err != nil {
				return err
			}
			n := binary.LittleEndian.Uint64(src[off:])
			off += 8
			if err := need(int(n)); err != nil {
				return err
			}
			out, ok := args[argIdx].(*[]byte)
			if !ok {
				return fmt.Errorf("urpc: argument %d must be *[]byte for 'P'", argIdx)
			}
			*out = src[off : off+int(n) : off+int(n)]
			off += int(n)
			argIdx++
		}
	}
	return nil
}
