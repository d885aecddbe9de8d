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

import "testing"

func TestNewRemoteDefaults(t *testing.T) {
	c := NewRemote(7, func(*Command) int32 { return 0 }, func(*Command, []byte) int32 { return 0 })
	if c.Kind != KindRemote {
		t.Fatalf("Kind = %v, want KindRemote", c.Kind)
	}
	if c.UrpcReq != InvalidReq {
		t.Fatalf("UrpcReq = %d, want InvalidReq", c.UrpcReq)
	}
	if c.Status != StatusUnfinished {
		t.Fatalf("Status = %v, want StatusUnfinished", c.Status)
	}
	if c.IsHostSide() {
		t.Fatal("Remote command reported IsHostSide")
	}
}

func TestNewHostSideAndCloseAreHostSide(t *testing.T) {
	h := NewHostSide(1, func(*Command) int32 { return 0 })
	if !h.IsHostSide() {
		t.Fatal("HostSide command did not report IsHostSide")
	}
	cl := NewClose(2, func(*Command) int32 { return 0 })
	if !cl.IsHostSide() {
		t.Fatal("Close command did not report IsHostSide")
	}
	if cl.Kind != KindClose {
		t.Fatalf("Kind = %v, want KindClose", cl.Kind)
	}
}

func TestStatusString(t *testing.T) {
	cases := map[Status]string{
		StatusUnfinished: "unfinished",
		StatusOK:         "ok",
		StatusException:  "exception",
		StatusError:      "error",
		Status(99):       "unknown",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Fatalf("Status(%d).String() = %q, want %q", s, got, want)
		}
	}
}
