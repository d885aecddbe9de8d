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
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/atomic"

	"github.com/veos-sxarr-NEC/ve-urpc/internal/command"
	"github.com/veos-sxarr-NEC/ve-urpc/internal/transport/urpc"
)

// Command codes reserved on this channel, per spec.md §6's "command-code
// space": 0 is empty/done, the rest of [1, MaxHandlers] is available. A
// Context sends calls on code 1 and its servicer answers on code 2; codes
// 3 and 4 are reserved for a close exchange and are not sent by anything
// in this package. Application-level inbound calls (the remote calling back into the host)
// would register additional codes on the same Peer.
const (
	cmdRemoteCall      uint8 = 1
	cmdRemoteCallReply uint8 = 2
	cmdCloseRequest    uint8 = 3
	cmdCloseReply      uint8 = 4
)

// CmdRemoteCall is the command code a servicer registers a HandlerFunc
// against to answer CallAsync requests issued by the host side of this
// Context pair. CallVHAsync callbacks run on the host and never reach it.
const CmdRemoteCall = cmdRemoteCall

// remoteCallFormat packs the target address and argument buffer: an 8-byte
// address field (aligned at offset 0) followed by a length-prefixed 'P'
// buffer.
const remoteCallFormat = "LP"

// replyFormat packs a remote call's outcome: an 8-byte return value
// followed by a 4-byte status code.
const replyFormat = "LI"

// State is the Context's lifecycle state.
type State int32

const (
	StateRunning State = iota
	StateExit
)

// ErrInvalid is returned by the public API when an operation is rejected
// outright (bad address, terminal state, full pending queue) rather than
// failing asynchronously through a command's status.
var ErrInvalid = errors.New("urpc: invalid operation")

// Context is the host-side public API: it owns a Peer (the wire
// transport) and a command pipeline, and runs the progress state machine
// that couples them. Exactly one goroutine should drive a given Context's
// blocking calls at a time — concurrent CallAsync/PeekResult/WaitResult
// calls are safe (they serialize through progressMu/submitMu) but the
// transport itself assumes single-threaded progress, per spec.md §5.
type Context struct {
	peer   *urpc.Peer
	seg    *urpc.Segment
	isMain bool

	pending     *command.PendingQueue
	inFlight    *command.InFlightQueue
	completions *command.CompletionQueue
	ids         command.IDAllocator

	progressMu sync.Mutex
	submitMu   sync.Mutex

	state atomic.Int32

	stats *Stats
	log   *zap.Logger
}

func newContext(peer *urpc.Peer, seg *urpc.Segment, isMain bool, log *zap.Logger) *Context {
	return &Context{
		peer:        peer,
		seg:         seg,
		isMain:      isMain,
		pending:     command.NewPendingQueue(),
		inFlight:    command.NewInFlightQueue(),
		completions: command.NewCompletionQueue(),
		stats:       newStats(),
		log:         log,
	}
}

// State reports whether the context is still running or has exited.
func (c *Context) State() State { return State(c.state.Load()) }

// CallAsync submits an asynchronous remote call to addr with args already
// packed into the wire representation the remote handler for addr expects.
// It returns INVALID immediately if addr is zero, the context has exited,
// or the pending queue is full (i.e. terminal); otherwise it returns the
// new request's ID right away — the call itself completes later,
// observable through PeekResult/WaitResult.
func (c *Context) CallAsync(ctx context.Context, addr uint64, args []byte) (uint64, error) {
	if addr == 0 || c.State() == StateExit {
		return command.InvalidID, ErrInvalid
	}

	c.submitMu.Lock()
	defer c.submitMu.Unlock()

	id := c.ids.Next()
	cmd := command.NewRemote(id, c.makeRemoteSubmit(addr, args), c.makeRemoteReply())

	if err := c.pending.Push(cmd); err != nil {
		return command.InvalidID, err
	}
	c.stats.callsSubmitted.Inc()

	// Opportunistic progress, per spec.md §4.7 ("runs progress(budget=3)
	// opportunistically, then returns id").
	_, _ = c.progress(ctx, 3)

	return id, nil
}

// CallVHAsync submits a host-side callback: fn runs locally, with no
// remote round trip, as soon as the progress loop observes the in-flight
// queue is empty — preserving issue-order visibility of every earlier
// remote call on this context.
func (c *Context) CallVHAsync(ctx context.Context, fn func() (uint64, error)) (uint64, error) {
	if c.State() == StateExit {
		return command.InvalidID, ErrInvalid
	}

	c.submitMu.Lock()
	defer c.submitMu.Unlock()

	id := c.ids.Next()
	cmd := command.NewHostSide(id, func(cc *command.Command) int32 {
		rv, err := fn()
		if err != nil {
			cc.Status = command.StatusError
			return -1
		}
		cc.Retval = rv
		cc.Status = command.StatusOK
		return 0
	})

	if err := c.pending.Push(cmd); err != nil {
		return command.InvalidID, err
	}

	_, _ = c.progress(ctx, 3)
	return id, nil
}

// PeekResult runs one opportunistic progress pass, then reports whether id
// has completed. ok is false when the request is still unfinished.
func (c *Context) PeekResult(ctx context.Context, id uint64) (status command.Status, retval uint64, ok bool, err error) {
	_, _ = c.progress(ctx, 3)

	c.submitMu.Lock()
	defer c.submitMu.Unlock()

	cmd := c.completions.Take(id)
	if cmd == nil {
		return command.StatusUnfinished, 0, false, nil
	}
	return cmd.Status, cmd.Retval, true, nil
}

// WaitResult loops PeekResult until id is no longer unfinished or ctx is
// done.
func (c *Context) WaitResult(ctx context.Context, id uint64) (command.Status, uint64, error) {
	spins := 0
	for {
		status, retval, ok, err := c.PeekResult(ctx, id)
		if err != nil {
			return status, retval, err
		}
		if ok {
			return status, retval, nil
		}
		select {
		case <-ctx.Done():
			return command.StatusUnfinished, 0, ctx.Err()
		default:
		}
		spins++
		if spins%256 == 0 {
			runtime.Gosched()
		}
	}
}

// Synchronize runs progress(0) — "while forward progress" — until both
// pending and in-flight are empty.
func (c *Context) Synchronize(ctx context.Context) error {
	c.submitMu.Lock()
	defer c.submitMu.Unlock()

	for !c.pending.Empty() || !c.inFlight.Empty() {
		n, err := c.progressLocked(ctx, 0)
		if err != nil {
			return err
		}
		if n == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			runtime.Gosched()
		}
	}
	return nil
}

// Close tears the context down. If the context has already exited, or is
// the process's main context (which outlives individual call sessions and
// is never explicitly closed), Close is a no-op that returns nil
// immediately. Otherwise it enqueues a terminal close command, waits for
// its completion, and marks the context Exit.
//
// Close does not cancel outstanding calls. The close command is scheduled
// like a host-side command, so it runs only once the in-flight queue is
// empty: Close returns after every earlier call has received its reply, or
// with ctx's error if ctx ends first. Calls still outstanding at that point
// are not completed with error status.
func (c *Context) Close(ctx context.Context) error {
	if c.State() == StateExit || c.isMain {
		return nil
	}

	c.submitMu.Lock()
	id := c.ids.Next()
	closeCmd := command.NewClose(id, func(cc *command.Command) int32 {
		c.state.Store(int32(StateExit))
		cc.Status = command.StatusOK
		return 0
	})
	err := c.pending.Push(closeCmd)
	c.submitMu.Unlock()
	if err != nil {
		return err
	}

	_, _, closeErr := c.WaitResult(ctx, id)
	// Close short-circuits above whenever c.isMain, so every Close that
	// reaches here is necessarily the remote side of the pair — only the
	// host (via Shutdown, never through Close) removes the backing
	// segment file.
	teardownErr := c.seg.Teardown(false)
	if closeErr != nil {
		return closeErr
	}
	return teardownErr
}

// progress runs the state machine, acquiring progressMu for the duration.
func (c *Context) progress(ctx context.Context, ops int) (int, error) {
	c.progressMu.Lock()
	defer c.progressMu.Unlock()
	return c.progressLocked(ctx, ops)
}

// progressLocked implements spec.md §4.7's progress(ops) pseudocode
// exactly: ops bounds the number of iterations, with ops == 0 meaning
// "loop while making forward progress."
func (c *Context) progressLocked(ctx context.Context, ops int) (int, error) {
	total := 0
	for iter := 0; ops == 0 || iter < ops; iter++ {
		recvd, sent := 0, 0

		if req, cmdCode, offs, length, ok := c.peer.RecvQueue().GetCmd(); ok {
			if c.inFlight.Empty() {
				c.peer.RecvQueue().SlotDone(req)
				c.state.Store(int32(StateExit))
				c.cancelAll()
				return total, errors.New("urpc: protocol violation: reply arrived with empty in-flight queue")
			}
			cmd := c.inFlight.Pop()
			c.stats.callsInFlight.Store(int64(c.inFlight.Len()))
			payload, err := c.peer.CopyPayload(offs, length)
			if err != nil {
				c.log.Error("failed to copy reply payload", zap.Error(err))
			}
			var rv int32
			if cmd.Reply != nil {
				rv = cmd.Reply(cmd, payload)
			}
			c.peer.RecvQueue().SlotDone(req)
			c.completions.Push(cmd)
			_ = cmdCode
			if rv < 0 {
				c.state.Store(int32(StateExit))
				c.cancelAll()
				return total, nil
			}
			recvd++
			c.stats.repliesReceived.Inc()
		}

		if cmd := c.pending.TryPop(); cmd != nil {
			if cmd.IsHostSide() {
				if c.inFlight.Empty() {
					rv := cmd.Submit(cmd)
					_ = rv
					c.completions.Push(cmd)
					sent++
				} else {
					c.pending.PushFront(cmd)
				}
			} else if !c.peer.SendQueue().NextSlotFree() {
				// The send mailbox is still full: defer rather than call
				// Submit, whose PutCmd would otherwise spin against
				// progressMu held for the length of its own send timeout,
				// stalling every other goroutine's PeekResult/WaitResult on
				// this Context behind one stuck submit.
				c.pending.PushFront(cmd)
			} else {
				if rv := cmd.Submit(cmd); rv == 0 {
					c.inFlight.Push(cmd)
					sent++
					c.stats.callsInFlight.Store(int64(c.inFlight.Len()))
				} else {
					cmd.Status = command.StatusError
					c.completions.Push(cmd)
				}
			}
		}

		total += recvd + sent
		if recvd+sent == 0 {
			break
		}
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		default:
		}
	}
	return total, nil
}

// cancelAll drains pending and in-flight into completions with status
// error, per spec.md §5's cancellation model.
func (c *Context) cancelAll() {
	for _, cmd := range c.pending.MarkTerminal() {
		cmd.Status = command.StatusError
		c.completions.Push(cmd)
	}
	for _, cmd := range c.inFlight.Drain() {
		cmd.Status = command.StatusError
		c.completions.Push(cmd)
	}
	c.stats.callsInFlight.Store(0)
}

func (c *Context) makeRemoteSubmit(addr uint64, args []byte) func(*command.Command) int32 {
	return func(cmd *command.Command) int32 {
		size, err := urpc.PackedSize(remoteCallFormat, addr, args)
		if err != nil {
			c.log.Error("failed to size remote call", zap.Error(err))
			return -1
		}
		buf := make([]byte, size)
		if _, err := urpc.Pack(buf, remoteCallFormat, addr, args); err != nil {
			c.log.Error("failed to pack remote call", zap.Error(err))
			return -1
		}

		sendCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		req, err := c.peer.Send(sendCtx, cmdRemoteCall, buf)
		if err != nil {
			c.log.Warn("submit failed", zap.Error(err))
			return -1
		}
		cmd.UrpcReq = req
		return 0
	}
}

func (c *Context) makeRemoteReply() func(*command.Command, []byte) int32 {
	return func(cmd *command.Command, payload []byte) int32 {
		var retval uint64
		var status uint32
		if err := urpc.Unpack(payload, replyFormat, &retval, &status); err != nil {
			cmd.Status = command.StatusError
			return 0
		}
		cmd.Retval = retval
		cmd.Status = command.Status(status)
		return 0
	}
}
