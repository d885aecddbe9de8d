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

// Package urpc is a host-side context engine for the micro-RPC shared
// memory transport between a host process and a tightly-coupled
// accelerator process.
//
// A Context wraps a Peer (internal/transport/urpc) and a command pipeline
// (internal/command), turning asynchronous remote calls into
// completion-tracked futures: CallAsync submits a call and returns a
// request ID, PeekResult / WaitResult observe its outcome, and
// Synchronize drains every outstanding call.
//
//	ctx, _, err := urpc.CreateHostPeer(context.Background(), urpc.WithRemote("/opt/accel/worker", nil, 0, 0))
//	id, err := ctx.CallAsync(context.Background(), addr, args)
//	status, retval, err := ctx.WaitResult(context.Background(), id)
package urpc
