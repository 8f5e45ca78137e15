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
	"fmt"
)

// Maximum x86 instruction length.
const MaxInstructionLength = 15

//
// Trap --
//
// Everything known about one protection fault: where the
// thread was, what it touched and its registers. A trap is
// only valid while the thread is stopped; handlers must not
// keep it once they return.
//
type Trap struct {
	// Faulting thread.
	Tid int

	// The faulting (data) address.
	Addr Paddr

	// The signal code (SEGV_MAPERR, SEGV_ACCERR).
	Code int32

	// Bytes at the instruction pointer.
	// This may be shorter than MaxInstructionLength
	// if the instruction sits at the end of a mapping.
	Instruction []byte

	// Register snapshot.
	// Changes are written back on success.
	Context Context
}

func (trap *Trap) String() string {
	return fmt.Sprintf("tid %d: fault at %x (code %d) ip %x [% x]",
		trap.Tid,
		trap.Addr,
		trap.Code,
		trap.Context.Ip(),
		trap.Instruction)
}

// FaultHandler services traps.
//
// Returning nil resumes the thread with the (modified)
// context. NotHandled means the fault is not ours and the
// signal is passed through untouched. Any other error is
// fatal to the access: the thread gets its SIGSEGV.
type FaultHandler interface {
	HandleFault(trap *Trap) error
}
