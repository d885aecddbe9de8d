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

func TestIDAllocatorMonotonic(t *testing.T) {
	var a IDAllocator
	prev := a.Next()
	for i := 0; i < 100; i++ {
		next := a.Next()
		if next <= prev {
			t.Fatalf("Next() = %d, want > %d", next, prev)
		}
		prev = next
	}
}

func TestIDAllocatorSkipsInvalidIDOnWraparound(t *testing.T) {
	a := IDAllocator{next: InvalidID - 1}
	first := a.Next()
	if first != InvalidID-1 {
		t.Fatalf("first Next() = %d, want %d", first, InvalidID-1)
	}
	second := a.Next()
	if second == InvalidID {
		t.Fatal("Next() returned InvalidID")
	}
	if second != 0 {
		t.Fatalf("second Next() = %d, want 0 (wrap past InvalidID)", second)
	}
}
