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

import "fmt"

// Handler processes one inbound command's payload and returns a status
// code. A non-zero return is logged by recv_progress but never aborts the
// receive loop or poisons the peer.
type Handler func(cmd uint8, payload []byte) int

// HandlerTable is the command-code-indexed registry a Peer dispatches
// recv_progress through. Codes run [1, MaxHandlers]; code 0 is reserved
// for the mailbox's empty sentinel and can never be registered.
type HandlerTable struct {
	maxHandlers uint32
	handlers    []Handler // index 0 unused, valid codes are [1, maxHandlers]
}

// NewHandlerTable creates an empty table sized for maxHandlers command
// codes.
func NewHandlerTable(maxHandlers uint32) *HandlerTable {
	return &HandlerTable{
		maxHandlers: maxHandlers,
		handlers:    make([]Handler, maxHandlers+1),
	}
}

// Register installs fn for cmd. It fails if cmd is out of range or already
// registered.
func (t *HandlerTable) Register(cmd uint8, fn Handler) error {
	if cmd == 0 || uint32(cmd) > t.maxHandlers {
		return fmt.Errorf("urpc: command code %d out of range [1, %d]", cmd, t.maxHandlers)
	}
	if t.handlers[cmd] != nil {
		return fmt.Errorf("urpc: command code %d already registered", cmd)
	}
	t.handlers[cmd] = fn
	return nil
}

// Unregister clears cmd's slot, if any.
func (t *HandlerTable) Unregister(cmd uint8) {
	if cmd == 0 || uint32(cmd) > t.maxHandlers {
		return
	}
	t.handlers[cmd] = nil
}

// Lookup returns the handler registered for cmd, or nil if the code is
// unregistered or out of range. Unregistered codes are not an error —
// recv_progress silently frees the slot and moves on.
func (t *HandlerTable) Lookup(cmd uint8) Handler {
	if cmd == 0 || uint32(cmd) > t.maxHandlers {
		return nil
	}
	return t.handlers[cmd]
}
