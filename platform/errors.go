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
	"errors"
)

// Region errors.
var RegionUnaligned = errors.New("Region not aligned!")
var RegionBusy = errors.New("Region could not be reserved!")
var RegionNotFound = errors.New("Region not found!")
var RegionEmpty = errors.New("Region has no size!")

// Tracee errors.
var TraceeNotStopped = errors.New("Tracee is not stopped?")
var TraceeExited = errors.New("Tracee has exited.")
var TraceeRunning = errors.New("Tracee already running.")
var InjectFailed = errors.New("Syscall injection failed!")

// Not supported here.
var Unsupported = errors.New("Not supported on this platform.")

// Returned by a fault handler for faults it does not own.
var NotHandled = errors.New("Fault not handled.")
