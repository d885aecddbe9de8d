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

import "go.uber.org/atomic"

// Stats holds in-process-only counters describing a Context's call
// traffic. These are plain go.uber.org/atomic fields, not shared-memory
// ones — they never cross the segment boundary, so the raw sync/atomic
// discipline internal/transport/urpc applies to shared fields does not
// apply here; go.uber.org/atomic's typed wrappers are a better fit for
// process-local counters bumped from multiple goroutines calling into the
// same Context.
type Stats struct {
	callsSubmitted  atomic.Int64
	repliesReceived atomic.Int64
	callsInFlight   atomic.Int64
}

func newStats() *Stats { return &Stats{} }

// StatsSnapshot is a point-in-time copy of a Context's counters.
type StatsSnapshot struct {
	CallsSubmitted  int64 `json:"calls_submitted"`
	RepliesReceived int64 `json:"replies_received"`
	CallsInFlight   int64 `json:"calls_in_flight"`
}

// Stats returns a snapshot of the context's call counters.
func (c *Context) Stats() StatsSnapshot {
	return StatsSnapshot{
		CallsSubmitted:  c.stats.callsSubmitted.Load(),
		RepliesReceived: c.stats.repliesReceived.Load(),
		CallsInFlight:   c.stats.callsInFlight.Load(),
	}
}
