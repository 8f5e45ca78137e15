// Copyright 2014 Google Inc. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package platform

import (
	"os/exec"
	"testing"
	"time"
)

func TestTraceeExitUnblocksRequests(t *testing.T) {
	tracee := NewTracee(exec.Command("true"))

	// A running driver whose tracer stopped servicing requests.
	tracee.running = true
	for len(tracee.requests) < cap(tracee.requests) {
		tracee.requests <- &spaceRequest{result: make(chan error, 1)}
	}

	reserved := make(chan error, 1)
	released := make(chan error, 1)
	go func() { reserved <- tracee.Reserve(0x40000000, PageSize) }()
	go func() { released <- tracee.Release(0x40001000, PageSize) }()

	time.Sleep(10 * time.Millisecond)
	tracee.finish()

	select {
	case err := <-reserved:
		if err != TraceeExited {
			t.Fatalf("reserve: expected TraceeExited, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("reserve still blocked")
	}
	select {
	case err := <-released:
		if err != nil {
			t.Fatalf("release: expected nil, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("release still blocked")
	}
}
