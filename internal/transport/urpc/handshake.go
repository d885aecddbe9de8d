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
	"os"
	"runtime"
	"sync"
	"time"
)

// ErrAttachTimeout is returned by WaitForAttach when the remote does not
// attach before ctx is done.
var ErrAttachTimeout = errors.New("urpc: timed out waiting for remote attach")

// MarkHostReady flips the segment's host-ready flag, the signal the remote
// waits for before it starts trusting the queue layout.
func (s *Segment) MarkHostReady() { s.H.SetHostReady(true) }

// MarkRemoteReady flips the segment's remote-ready flag. It does not touch
// the attach counter; OpenSegment increments that when the remote attaches.
func (s *Segment) MarkRemoteReady() {
	s.H.SetRemoteReady(true)
}

// WaitForAttach spins on the segment's attach counter until the remote has
// attached at least once, ctx is done, or timeout elapses. Called by the
// host after CreateSegment and before it marks the segment for deferred
// deletion, so a remote that never shows up never leaves a leaked segment
// file either — the caller is expected to RemoveSegment on timeout.
func (s *Segment) WaitForAttach(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	spins := 0
	for s.H.AttachCount() == 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if !time.Now().Before(deadline) {
			return ErrAttachTimeout
		}
		spins++
		if spins%spinYieldEvery == 0 {
			runtime.Gosched()
		}
	}
	return nil
}

// WaitForHostReady is the remote side's half of the handshake: it spins
// until the host has finished initializing the segment.
func (s *Segment) WaitForHostReady(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	spins := 0
	for !s.H.HostReady() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if !time.Now().Before(deadline) {
			return ErrAttachTimeout
		}
		spins++
		if spins%spinYieldEvery == 0 {
			runtime.Gosched()
		}
	}
	return nil
}

// teardownState guards Segment.Teardown against a double call — from both
// an explicit Close and a deferred cleanup path racing each other, say —
// so teardown is idempotent as spec.md §4.1 requires. Segment.teardown is
// allocated once, eagerly, by CreateSegment/OpenSegment; Teardown itself
// never lazily initializes it, since two concurrent first calls racing a
// lazy nil-check could each allocate their own *teardownState and each run
// their own sync.Once.Do body.
type teardownState struct {
	once sync.Once
	err  error
}

// Teardown marks the segment closed, unmaps it, and (on the host) removes
// its backing file. Safe to call more than once; only the first call does
// any work.
func (s *Segment) Teardown(removeFile bool) error {
	s.teardown.once.Do(func() {
		s.H.SetClosed(true)
		err := s.Close()
		if removeFile {
			// Already gone is success, not failure: CreateHostPeer unlinks
			// the file itself as soon as attachment is observed (spec.md
			// §4.1's deferred-deletion handshake), so Teardown's own
			// removal here is frequently a no-op racing an already-clean
			// filesystem, not a real error.
			if rmErr := RemoveSegment(s.Name); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
				err = rmErr
			}
		}
		s.teardown.err = err
	})
	return s.teardown.err
}
