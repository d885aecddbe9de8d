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
	"runtime"
	"time"

	"go.uber.org/zap"
)

// Peer is one side's wire-level view of a segment: a send queue (with its
// payload allocator), a recv queue, and the handler table recv_progress
// dispatches through.
type Peer struct {
	log       *zap.Logger
	send      *TransferQueue
	sendAlloc *Allocator
	recv      *TransferQueue
	handlers  *HandlerTable
	bt        BlockTransfer
}

// NewPeer builds a Peer over the given send/recv directions. init, if
// non-nil, runs immediately with the Peer passed in, so callers can
// register their handler table in the same expression that constructs the
// peer rather than in a separate statement.
func NewPeer(send, recv *TransferQueue, maxHandlers uint32, log *zap.Logger, init func(*Peer)) *Peer {
	p := &Peer{
		log:       log,
		send:      send,
		sendAlloc: NewAllocator(send),
		recv:      recv,
		handlers:  NewHandlerTable(maxHandlers),
		bt:        LocalMirrorTransfer{},
	}
	if init != nil {
		init(p)
	}
	return p
}

// SetBlockTransfer overrides the default local-memory BlockTransfer, e.g.
// with a CountingTransfer for diagnostics.
func (p *Peer) SetBlockTransfer(bt BlockTransfer) { p.bt = bt }

// SetAllocTimeout overrides how long the send-side payload allocator waits
// for the peer to free space before returning ErrOutOfPayload.
func (p *Peer) SetAllocTimeout(d time.Duration) { p.sendAlloc.SetTimeout(d) }

// Register installs fn for cmd.
func (p *Peer) Register(cmd uint8, fn Handler) error { return p.handlers.Register(cmd, fn) }

// Unregister clears cmd's handler, if any.
func (p *Peer) Unregister(cmd uint8) { p.handlers.Unregister(cmd) }

// Send allocates payload space (if payload is non-empty), copies payload
// into the ring, and publishes a mailbox entry for cmd. It returns the
// request's sequence number.
func (p *Peer) Send(ctx context.Context, cmd uint8, payload []byte) (int64, error) {
	var offs uint32
	length := uint32(len(payload))
	if length > 0 {
		var err error
		offs, err = p.sendAlloc.Alloc(ctx, length)
		if err != nil {
			return InvalidReq, err
		}
		copy(p.send.Data()[offs:offs+length], payload)
	}
	return p.send.PutCmd(ctx, cmd, offs, length, func(slotIdx uint64) {
		p.sendAlloc.CommitSlot(slotIdx, offs, length)
	})
}

// RecvProgress pops up to budget mailbox entries from the recv queue,
// dispatching each to its registered handler and then freeing the slot.
// Handler errors (non-zero return) are logged but never abort the loop;
// unregistered command codes are silently skipped, slot still freed.
func (p *Peer) RecvProgress(budget int) (processed int, err error) {
	for processed < budget {
		req, cmd, offs, length, ok := p.recv.GetCmd()
		if !ok {
			break
		}

		var local []byte
		if length > 0 {
			local = make([]byte, length)
			src := p.recv.Data()[offs : offs+length]
			if err := copyPayload(p.bt, local, src); err != nil {
				p.log.Error("block transfer failed", zap.Uint8("cmd", cmd), zap.Error(err))
			}
		}

		if h := p.handlers.Lookup(cmd); h != nil {
			if rv := h(cmd, local); rv != 0 {
				p.log.Warn("handler returned non-zero status", zap.Uint8("cmd", cmd), zap.Int("status", rv))
			}
		} else if cmd != 0 {
			p.log.Debug("no handler registered for command code", zap.Uint8("cmd", cmd))
		}

		p.recv.SlotDone(req)
		processed++
	}
	return processed, nil
}

// RecvProgressTimeout loops RecvProgress, resetting the idle deadline
// whenever work is seen, and returns once no work has arrived for timeout.
func (p *Peer) RecvProgressTimeout(ctx context.Context, budget int, timeout time.Duration) (int, error) {
	total := 0
	deadline := time.Now().Add(timeout)
	for {
		n, err := p.RecvProgress(budget)
		if err != nil {
			return total, err
		}
		total += n
		if n > 0 {
			deadline = time.Now().Add(timeout)
		}
		if !time.Now().Before(deadline) {
			return total, nil
		}
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		default:
		}
		if n == 0 {
			runtime.Gosched()
		}
	}
}

// RecvReqTimeout blocks, calling RecvProgress(1) in a loop, until req has
// been retrieved from the recv queue (recv's last_get_req has reached it)
// or timeout elapses. It supplements recv_progress for callers that need to
// wait on one specific reply rather than drain the whole queue — a
// lower-level primitive than the full progress engine, useful for
// synchronous host-side helpers built directly on a Peer.
func (p *Peer) RecvReqTimeout(ctx context.Context, req int64, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for p.recv.LastGetReq() < req {
		if _, err := p.RecvProgress(1); err != nil {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		default:
		}
		if !time.Now().Before(deadline) {
			return false
		}
	}
	return true
}

// SendQueue and RecvQueue expose the underlying transfer queues for the
// command layer (backlog checks, closed state, etc).
func (p *Peer) SendQueue() *TransferQueue { return p.send }
func (p *Peer) RecvQueue() *TransferQueue { return p.recv }

// CopyPayload materializes the length bytes described at offs in the recv
// ring into a freshly allocated local buffer, taking the inline fast path
// for small payloads exactly like RecvProgress does. The command engine's
// progress() uses this directly on the recv queue rather than going
// through the handler table, since a reply is matched to its waiting
// command by queue position (SPSC, in submission order), not by dispatch
// on command code.
func (p *Peer) CopyPayload(offs, length uint32) ([]byte, error) {
	if length == 0 {
		return nil, nil
	}
	local := make([]byte, length)
	src := p.recv.Data()[offs : offs+length]
	if err := copyPayload(p.bt, local, src); err != nil {
		return nil, err
	}
	return local, nil
}
