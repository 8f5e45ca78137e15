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

//go:build !(linux && amd64)

package platform

import (
	"os/exec"
)

// Tracing is only implemented for linux/amd64.
type Tracee struct {
	cmd  *exec.Cmd
	done chan struct{}

	Started func(pid int)
	Debug   bool
}

func NewTracee(cmd *exec.Cmd) *Tracee {
	done := make(chan struct{})
	close(done)
	return &Tracee{cmd: cmd, done: done}
}

func (tracee *Tracee) Pid() int {
	return 0
}

func (tracee *Tracee) Done() <-chan struct{} {
	return tracee.done
}

func (tracee *Tracee) Reserve(base Paddr, size uint64) error {
	return Unsupported
}

func (tracee *Tracee) Release(base Paddr, size uint64) error {
	return Unsupported
}

func (tracee *Tracee) Run(handler FaultHandler) (int, error) {
	return -1, Unsupported
}
