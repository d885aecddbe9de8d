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

// inlineCopyThreshold is the payload size, in bytes, below which
// recv_progress copies word-by-word inline rather than delegating to
// BlockTransfer, per spec.md §4.5 ("small payloads <=16 bytes are copied
// inline ... to amortize latency").
const inlineCopyThreshold = 16

// BlockTransfer moves payload bytes out of a direction's shared data ring
// into a caller-owned destination buffer. On this host<->VE-accelerator
// transport the two processes can address the same memory, so the default
// implementation is a plain copy; a DMA-backed accelerator transport would
// instead implement this interface over whatever engine moves bytes
// between host RAM and device RAM.
type BlockTransfer interface {
	// Transfer copies src (a slice into the shared data ring) into dst.
	// dst must be at least len(src) bytes.
	Transfer(dst, src []byte) error
}

// LocalMirrorTransfer is the default BlockTransfer: host and remote share
// one address space (or, on VE hardware, the urpc layer below this package
// already makes the segment addressable by both sides), so transfer is a
// memmove.
type LocalMirrorTransfer struct{}

func (LocalMirrorTransfer) Transfer(dst, src []byte) error {
	copy(dst, src)
	return nil
}

// CountingTransfer decorates another BlockTransfer, tallying bytes and call
// counts for diagnostics in its exported Calls and Bytes fields.
type CountingTransfer struct {
	Next  BlockTransfer
	Calls uint64
	Bytes uint64
}

func (c *CountingTransfer) Transfer(dst, src []byte) error {
	if err := c.Next.Transfer(dst, src); err != nil {
		return err
	}
	c.Calls++
	c.Bytes += uint64(len(src))
	return nil
}

// copyPayload moves a payload out of the shared ring, taking the inline
// fast path for small transfers and delegating to bt otherwise.
func copyPayload(bt BlockTransfer, dst, src []byte) error {
	if len(src) <= inlineCopyThreshold {
		for i := range src {
			dst[i] = src[i]
		}
		return nil
	}
	return bt.Transfer(dst, src)
}
