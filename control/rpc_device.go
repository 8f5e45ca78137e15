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

package control

import (
	"regbridge/machine"
)

//
// Device registration.
//

type UnregisterCommand struct {
	// Device id.
	Id uint32 `json:"id"`
}

type DevicesResult struct {
	Devices []machine.DeviceInfo `json:"devices"`
}

type InterruptCommand struct {
	// Device id.
	Id uint32 `json:"id"`
}

func (rpc *Rpc) Register(info *machine.DeviceInfo, nop *Nop) error {
	return wrap(rpc.bridge.Register(*info))
}

func (rpc *Rpc) Unregister(cmd *UnregisterCommand, nop *Nop) error {
	return wrap(rpc.bridge.UnregisterDevice(cmd.Id))
}

func (rpc *Rpc) Devices(nop *Nop, result *DevicesResult) error {
	devices, err := rpc.bridge.Devices()
	if err != nil {
		return wrap(err)
	}
	result.Devices = devices
	return nil
}

// SignalInterrupts delivers the device's interrupts to the
// interface process as signals.
func (rpc *Rpc) SignalInterrupts(cmd *InterruptCommand, nop *Nop) error {
	return wrap(rpc.bridge.RegisterSignalHandler(cmd.Id))
}
