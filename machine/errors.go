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

package machine

import (
	"errors"
)

// Registry errors.
var DeviceOverlap = errors.New("Device regions overlap!")
var DeviceDuplicate = errors.New("Device id already registered!")
var DeviceNotFound = errors.New("Device not found!")
var DeviceEmpty = errors.New("Device has no size!")
var DeviceTooLarge = errors.New("Device too large!")

// Resolution errors.
var InvalidAddress = errors.New("Address not in any device!")

// Interrupt errors.
var QueueOverflow = errors.New("Interrupt queue overflow!")
var NoSubscription = errors.New("No interrupt handler.")
var HandlerPanic = errors.New("Interrupt handler panicked!")
var RelayClosed = errors.New("Relay closed.")
