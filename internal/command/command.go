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

// Package command implements the per-context command pipeline: the
// command object itself, its three ordered queues (pending, in-flight,
// completions), and the monotonic request-ID allocator. It has no
// knowledge of the wire transport — submit and reply thunks are plain
// closures the context layer supplies.
package command

// Status is the outcome a command settles into, surfaced through
// peek_result / wait_result.
type Status int

const (
	// StatusUnfinished means the command has not yet completed.
	StatusUnfinished Status = iota
	// StatusOK means the remote call (or host-side thunk) succeeded.
	StatusOK
	// StatusException means the remote side raised during the call.
	StatusException
	// StatusError means a local transport failure occurred (submit
	// failed, allocation timed out, the context tore down mid-flight).
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusUnfinished:
		return "unfinished"
	case StatusOK:
		return "ok"
	case StatusException:
		return "exception"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Kind distinguishes how a command is submitted and completed. Remote
// commands round-trip through the transfer queues; host-side commands run
// their submit thunk locally and complete immediately; close is a
// host-side variant that additionally carries the terminal
// shutdown semantics for Close, modeled as its own kind so the progress
// loop and tests can tell "ordinary local callback" apart from
// "the context is tearing down" without inspecting thunk internals.
type Kind int

const (
	KindRemote Kind = iota
	KindHostSide
	KindClose
)

// InvalidReq is the urpc_req sentinel for a command that has not yet been
// submitted to the transport (or never will be, for host-side/close
// commands).
const InvalidReq int64 = -1

// Command carries one request through pending -> in_flight -> completions.
// Submit and Reply are supplied by the context layer as closures capturing
// whatever arguments and target address the call needs; this package only
// sequences their invocation.
type Command struct {
	ID   uint64
	Kind Kind

	// Submit runs when the command reaches the head of pending. It
	// returns 0 on success (move to in_flight for Remote commands, or
	// straight to completions for HostSide/Close) or a negative errno-style
	// code on failure (moves straight to completions with StatusError).
	Submit func(c *Command) int32

	// Reply runs when the matching inbound slot arrives for a Remote
	// command. payload is already copied out of shared memory (valid only
	// for the duration of this call unless the closure retains a copy).
	// It returns 0 on success, or a negative value to signal a fatal
	// transport-level failure that should tear down the whole context.
	Reply func(c *Command, payload []byte) int32

	// UrpcReq is the transfer-queue sequence number this command was
	// published under, set by Submit. InvalidReq until then.
	UrpcReq int64

	Status Status
	Retval uint64
}

// NewRemote constructs a Remote-kind command.
func NewRemote(id uint64, submit func(*Command) int32, reply func(*Command, []byte) int32) *Command {
	return &Command{
		ID:      id,
		Kind:    KindRemote,
		Submit:  submit,
		Reply:   reply,
		UrpcReq: InvalidReq,
		Status:  StatusUnfinished,
	}
}

// NewHostSide constructs a HostSide-kind command: submit runs locally and
// the command completes without a remote round trip.
func NewHostSide(id uint64, submit func(*Command) int32) *Command {
	return &Command{
		ID:      id,
		Kind:    KindHostSide,
		Submit:  submit,
		UrpcReq: InvalidReq,
		Status:  StatusUnfinished,
	}
}

// NewClose constructs the terminal command Context.Close enqueues.
func NewClose(id uint64, submit func(*Command) int32) *Command {
	return &Command{
		ID:      id,
		Kind:    KindClose,
		Submit:  submit,
		UrpcReq: InvalidReq,
		Status:  StatusUnfinished,
	}
}

// IsHostSide reports whether the command should be gated on in_flight
// being empty rather than round-tripping through the transport — true for
// both HostSide and Close kinds.
func (c *Command) IsHostSide() bool {
	return c.Kind == KindHostSide || c.Kind == KindClose
}
