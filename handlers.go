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
	"time"

	"github.com/veos-sxarr-NEC/ve-urpc/internal/command"
	"github.com/veos-sxarr-NEC/ve-urpc/internal/transport/urpc"
)

// StatusOK is the wire value a servicer's Reply should send for a
// successful call, matching how Context's own reply unpacking interprets
// the status field (command.Status(status) == command.StatusOK).
const StatusOK = uint32(command.StatusOK)

// StatusException is the wire value for a reply indicating the remote
// side's handler raised rather than returning normally.
const StatusException = uint32(command.StatusException)

// HandlerFunc processes one inbound command, addressed by its code in the
// peer's command code space; a servicer answering CallAsync requests
// registers one on CmdRemoteCall. It returns 0 on
// success or a nonzero status the sender never sees directly (logged
// locally, per spec.md §4.5).
type HandlerFunc func(cmd uint8, payload []byte) int

// RegisterHandler installs fn for cmd on this Context's underlying peer.
// It is how the accelerator side answers CallAsync requests issued by the
// host: every such call arrives under CmdRemoteCall, with the target
// address packed into the payload (see UnpackCall), and fn is expected to
// reply with c.Reply, not by returning a value the transport interprets.
//
// A Context used this way is a servicer, not a caller: mixing
// RegisterHandler/RecvProgress with CallAsync/PeekResult/WaitResult on the
// same Context races two different interpretations of one recv queue and
// is not supported.
func (c *Context) RegisterHandler(cmd uint8, fn HandlerFunc) error {
	return c.peer.Register(cmd, urpc.Handler(fn))
}

// UnregisterHandler clears cmd's handler, if any.
func (c *Context) UnregisterHandler(cmd uint8) { c.peer.Unregister(cmd) }

// Reply sends a response to an inbound call back to the peer that issued
// it, packed the same way Context's own call/reply protocol unpacks
// replies: an 8-byte return value followed by a 4-byte status. The command
// code is fixed at cmdRemoteCallReply — the caller's progress loop matches
// an inbound entry to its outstanding call by queue position, not by code.
func (c *Context) Reply(ctx context.Context, retval uint64, status uint32) error {
	size, err := urpc.PackedSize(replyFormat, retval, status)
	if err != nil {
		return err
	}
	buf := make([]byte, size)
	if _, err := urpc.Pack(buf, replyFormat, retval, status); err != nil {
		return err
	}
	_, err = c.peer.Send(ctx, cmdRemoteCallReply, buf)
	return err
}

// RecvProgress drains up to budget inbound entries, dispatching each to
// its registered handler. Intended for the servicer side of a Context
// pair; see RegisterHandler.
func (c *Context) RecvProgress(budget int) (int, error) {
	return c.peer.RecvProgress(budget)
}

// RecvProgressTimeout loops RecvProgress until timeout elapses with no
// work processed, or ctx is done.
func (c *Context) RecvProgressTimeout(ctx context.Context, budget int, timeout time.Duration) (int, error) {
	return c.peer.RecvProgressTimeout(ctx, budget, timeout)
}

// UnpackCall decodes an inbound cmdRemoteCall payload into the address the
// caller targeted and the argument bytes it sent, mirroring the wire shape
// makeRemoteSubmit packs on the calling side.
func UnpackCall(payload []byte) (addr uint64, args []byte, err error) {
	if err := urpc.Unpack(payload, remoteCallFormat, &addr, &args); err != nil {
		return 0, nil, err
	}
	return addr, args, nil
}
