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
	"fmt"
	"io"
	"log"

	"regbridge/channel"
	"regbridge/platform"
	"regbridge/utils"
)

type DeviceInfo struct {
	// Friendly name.
	Name string `json:"name"`

	// Device id (on the wire).
	Id uint32 `json:"id"`

	// Register window.
	Base uint64 `json:"base"`
	Size uint64 `json:"size"`

	// Where the model lives.
	// Empty means the bridge default.
	channel.Endpoint

	// Debugging?
	Debug bool `json:"debug"`
}

// LoadDevices reads a device file (a JSON list).
func LoadDevices(reader io.Reader) ([]DeviceInfo, error) {
	var infos []DeviceInfo
	decoder := utils.NewDecoder(reader)
	err := decoder.Decode(&infos)
	if err != nil {
		return nil, err
	}

	for i := range infos {
		if infos[i].Name == "" {
			infos[i].Name = fmt.Sprintf("device%d", infos[i].Id)
		}
		log.Printf("Loading %s...", infos[i].Name)
	}
	return infos, nil
}

//
// Device --
//
// One live registration. The registry owns it from Add()
// until Remove(); the channel belongs to the device and is
// closed with it.
//
type Device struct {
	MemoryRegion

	Id   uint32
	name string

	// Backing model.
	Channel *channel.Channel

	// Debugging?
	Debug bool
}

func NewDevice(info DeviceInfo) *Device {
	name := info.Name
	if name == "" {
		name = fmt.Sprintf("device%d", info.Id)
	}
	return &Device{
		MemoryRegion: MemoryRegion{platform.Paddr(info.Base), info.Size},
		Id:           info.Id,
		name:         name,
		Debug:        info.Debug,
	}
}

func (device *Device) Name() string {
	return device.name
}

func (device *Device) IsDebugging() bool {
	return device.Debug
}

// Offset is the device-relative address of addr.
func (device *Device) Offset(addr platform.Paddr) uint32 {
	return uint32(addr.OffsetFrom(device.Start))
}

// Info describes the device, as it would appear in a device file.
func (device *Device) Info() DeviceInfo {
	info := DeviceInfo{
		Name:  device.name,
		Id:    device.Id,
		Base:  uint64(device.Start),
		Size:  device.Size,
		Debug: device.Debug,
	}
	if device.Channel != nil {
		info.Endpoint = device.Channel.Endpoint()
	}
	return info
}

func (device *Device) String() string {
	return fmt.Sprintf("%s (id %d) [%x, %x)", device.name, device.Id, device.Start, device.End())
}
