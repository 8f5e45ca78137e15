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

package fault

import (
	"log"
	"sync/atomic"

	"github.com/davecgh/go-spew/spew"

	"regbridge/decode"
	"regbridge/platform"
)

// Accessor performs register accesses on behalf of a trap.
// This is the same path used by direct reads and writes.
type Accessor interface {
	// Is this address in a protected region?
	Owns(addr platform.Paddr) bool

	// Resolve checks that the access lies within one device.
	Resolve(addr platform.Paddr, width uint) error

	Load(addr platform.Paddr, width uint) (uint64, error)
	Store(addr platform.Paddr, width uint, value uint64) error
}

//
// Interceptor --
//
// Turns traps into register accesses. Every trap goes
// through TRAPPED -> DECODED -> DISPATCHED -> COMPLETED,
// and anything short of COMPLETED is returned as an *Error.
// The trap source must then deliver the fault: the thread
// cannot continue with a made-up value.
//

type Interceptor struct {
	decoder  decode.Decoder
	accessor Accessor

	// Traps that reached each state.
	counts [numStates]uint64

	// Called with every failure, before it is returned.
	OnFailure func(err *Error)

	// Debugging?
	Debug bool
}

func NewInterceptor(decoder decode.Decoder, accessor Accessor) *Interceptor {
	return &Interceptor{
		decoder:  decoder,
		accessor: accessor,
	}
}

// Count is the number of traps that reached state.
func (interceptor *Interceptor) Count(state State) uint64 {
	if state < 0 || state >= numStates {
		return 0
	}
	return atomic.LoadUint64(&interceptor.counts[state])
}

func (interceptor *Interceptor) Handled() uint64 {
	return interceptor.Count(Completed)
}

func (interceptor *Interceptor) Failed() uint64 {
	return interceptor.Count(Failed)
}

func (interceptor *Interceptor) enter(trap *platform.Trap, state State) {
	atomic.AddUint64(&interceptor.counts[state], 1)
	if interceptor.Debug {
		log.Printf("fault: tid %d %x: %s", trap.Tid, trap.Addr, state)
	}
}

func (interceptor *Interceptor) fail(trap *platform.Trap, state State, err error) error {
	fault := &Error{
		Addr:        trap.Addr,
		Ip:          trap.Context.Ip(),
		Code:        trap.Code,
		Instruction: append([]byte(nil), trap.Instruction...),
		State:       state,
		Err:         err,
	}
	interceptor.enter(trap, Failed)

	log.Printf("fault: %s", fault.Error())
	log.Printf("fault: tid %d registers:\n%s", trap.Tid, spew.Sdump(trap.Context.Regs))

	if interceptor.OnFailure != nil {
		interceptor.OnFailure(fault)
	}
	return fault
}

// HandleFault implements platform.FaultHandler.
func (interceptor *Interceptor) HandleFault(trap *platform.Trap) error {
	if !interceptor.accessor.Owns(trap.Addr) {
		return platform.NotHandled
	}
	interceptor.enter(trap, Trapped)

	access, err := interceptor.decoder.Decode(trap.Instruction, &trap.Context)
	if err != nil {
		return interceptor.fail(trap, Trapped, err)
	}
	interceptor.enter(trap, Decoded)
	if interceptor.Debug {
		log.Printf("fault: tid %d %x: %s", trap.Tid, trap.Addr, access.String())
	}

	err = interceptor.accessor.Resolve(trap.Addr, access.Width)
	if err != nil {
		return interceptor.fail(trap, Decoded, err)
	}
	interceptor.enter(trap, Dispatched)

	var value uint64
	if access.Direction == decode.Store {
		err = interceptor.accessor.Store(trap.Addr, access.Width, access.Value)
	} else {
		value, err = interceptor.accessor.Load(trap.Addr, access.Width)
	}
	if err != nil {
		return interceptor.fail(trap, Dispatched, err)
	}

	access.Complete(&trap.Context, value)
	interceptor.enter(trap, Completed)
	return nil
}
