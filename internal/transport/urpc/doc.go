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

// Package urpc implements the wire-level half of the micro-RPC transport:
// the shared memory segment, the SPSC transfer queue, the payload ring
// allocator, the pack/unpack codec, and the peer/handler table.
//
// This package has no notion of requests, futures, or completions — that
// layer lives in the root package and internal/command. This package only
// moves 8-byte mailbox descriptors and their associated payload bytes
// between two processes that share one memory segment.
package urpc
