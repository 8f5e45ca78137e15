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
	"fmt"

	"regbridge/platform"
)

// Where a trap is in its handling.
type State int

const (
	Trapped State = iota
	Decoded
	Dispatched
	Completed
	Failed

	numStates
)

var stateNames = []string{
	"TRAPPED",
	"DECODED",
	"DISPATCHED",
	"COMPLETED",
	"FAILED",
}

func (state State) String() string {
	if state < 0 || int(state) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(state))
	}
	return stateNames[state]
}

//
// Error --
//
// A trap that could not be completed. State is the last
// state reached before failing: TRAPPED for decode errors,
// DECODED when the address resolves to no device (or the
// access runs past one), DISPATCHED for anything the model
// exchange returned.
//
type Error struct {
	Addr        platform.Paddr
	Ip          uint64
	Code        int32
	Instruction []byte
	State       State
	Err         error
}

func (err *Error) Error() string {
	return fmt.Sprintf("fault at %x (ip %x [% x], %s): %s",
		err.Addr, err.Ip, err.Instruction, err.State, err.Err.Error())
}

func (err *Error) Unwrap() error {
	return err.Err
}
