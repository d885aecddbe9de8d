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

package command

import (
	"errors"

	"github.com/eapache/queue"
)

// ErrTerminal is returned by PendingQueue.Push once the queue has been
// marked terminal (the context is tearing down or has already torn down).
var ErrTerminal = errors.New("urpc: context is in a terminal state")

// PendingQueue holds submitted-but-not-yet-submitted-to-the-transport
// commands, in submission order. push_front (used to defer a host-side
// command behind an outstanding in-flight one) is emulated on top of
// eapache/queue, which only adds at the tail: PushFront rotates the whole
// queue, so it costs O(n).
type PendingQueue struct {
	q        *queue.Queue
	terminal bool
}

// NewPendingQueue returns an empty pending queue.
func NewPendingQueue() *PendingQueue {
	return &PendingQueue{q: queue.New()}
}

// Push appends cmd, failing if the queue has been marked terminal.
func (p *PendingQueue) Push(cmd *Command) error {
	if p.terminal {
		return ErrTerminal
	}
	p.q.Add(cmd)
	return nil
}

// PushFront re-queues cmd at the head, used by the progress loop to defer a
// host-side command behind a still-outstanding in-flight queue.
func (p *PendingQueue) PushFront(cmd *Command) {
	p.q.Add(cmd)
	// queue.Queue has no native push-front; rotate the newly-added tail
	// element to the head so submission order for everyone else is
	// preserved and the deferred command is retried first.
	for i := 0; i < p.q.Length()-1; i++ {
		p.q.Add(p.q.Remove())
	}
}

// TryPop removes and returns the head command, or nil if empty.
func (p *PendingQueue) TryPop() *Command {
	if p.q.Length() == 0 {
		return nil
	}
	return p.q.Remove().(*Command)
}

// Empty reports whether the pending queue has no commands.
func (p *PendingQueue) Empty() bool { return p.q.Length() == 0 }

// Len returns the number of pending commands.
func (p *PendingQueue) Len() int { return p.q.Length() }

// MarkTerminal makes all future Push calls fail, and drains the queue into
// the returned slice (for the caller to push into completions as part of
// cancel_all).
func (p *PendingQueue) MarkTerminal() []*Command {
	p.terminal = true
	drained := make([]*Command, 0, p.q.Length())
	for p.q.Length() > 0 {
		drained = append(drained, p.q.Remove().(*Command))
	}
	return drained
}

// InFlightQueue holds commands whose submit thunk has already published a
// mailbox entry and are awaiting their reply, in submission order — which,
// since the transport is SPSC and the remote processes requests in order,
// is also reply order.
type InFlightQueue struct {
	q *queue.Queue
}

// NewInFlightQueue returns an empty in-flight queue.
func NewInFlightQueue() *InFlightQueue { return &InFlightQueue{q: queue.New()} }

// Push appends cmd.
func (f *InFlightQueue) Push(cmd *Command) { f.q.Add(cmd) }

// Pop removes and returns the head command. Callers must check Empty
// first; popping an empty in-flight queue when a reply has arrived is a
// protocol violation per spec.md §7 ("inbound reply with empty in-flight
// queue" is fatal) and is the caller's responsibility to detect.
func (f *InFlightQueue) Pop() *Command { return f.q.Remove().(*Command) }

// Empty reports whether nothing is currently awaiting a reply.
func (f *InFlightQueue) Empty() bool { return f.q.Length() == 0 }

// Len returns the number of in-flight commands.
func (f *InFlightQueue) Len() int { return f.q.Length() }

// Drain empties the queue, returning its contents in order. Used by
// cancel_all.
func (f *InFlightQueue) Drain() []*Command {
	drained := make([]*Command, 0, f.q.Length())
	for f.q.Length() > 0 {
		drained = append(drained, f.q.Remove().(*Command))
	}
	return drained
}

// CompletionQueue holds finished commands, indexed both in arrival order
// and by request ID. Lookup by ID is a map access; removing a completion
// also scans the arrival-order slice.
type CompletionQueue struct {
	order []*Command
	byID  map[uint64]*Command
}

// NewCompletionQueue returns an empty completion queue.
func NewCompletionQueue() *CompletionQueue {
	return &CompletionQueue{byID: make(map[uint64]*Command)}
}

// Push appends a finished command, making it visible to Peek/Take by ID.
func (c *CompletionQueue) Push(cmd *Command) {
	c.order = append(c.order, cmd)
	c.byID[cmd.ID] = cmd
}

// Peek returns the completion for id without removing it, or nil if the
// command has not completed (or never existed).
func (c *CompletionQueue) Peek(id uint64) *Command {
	return c.byID[id]
}

// Take removes and returns the completion for id, or nil if not present.
func (c *CompletionQueue) Take(id uint64) *Command {
	cmd, ok := c.byID[id]
	if !ok {
		return nil
	}
	delete(c.byID, id)
	for i, o := range c.order {
		if o == cmd {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return cmd
}

// Len returns the number of outstanding completions.
func (c *CompletionQueue) Len() int { return len(c.order) }
