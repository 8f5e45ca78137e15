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
	"sync"
	"sync/atomic"

	"golang.org/x/exp/slices"

	"regbridge/platform"
)

// Offsets travel as 32 bits.
const MaxDeviceSize = uint64(1) << 32

//
// Registry --
//
// The set of live devices. Readers (the fault path) never
// lock: they load an immutable snapshot sorted by base
// address and binary search it. Writers serialize on the
// mutex, build a new snapshot and publish it.
//

type Registry struct {
	mutex sync.Mutex

	snapshot atomic.Pointer[[]*Device]
}

func NewRegistry() *Registry {
	registry := &Registry{}
	empty := make([]*Device, 0)
	registry.snapshot.Store(&empty)
	return registry
}

func (registry *Registry) devices() []*Device {
	return *registry.snapshot.Load()
}

func (registry *Registry) check(devices []*Device, id uint32, start platform.Paddr, size uint64) error {
	if size == 0 {
		return DeviceEmpty
	}
	if size > MaxDeviceSize || start.After(size) < start {
		return DeviceTooLarge
	}
	for _, device := range devices {
		if device.Id == id {
			return DeviceDuplicate
		}
	}
	for _, device := range devices {
		if device.Overlaps(start, size) {
			return DeviceOverlap
		}
	}
	return nil
}

// Check validates a prospective registration.
func (registry *Registry) Check(id uint32, start platform.Paddr, size uint64) error {
	return registry.check(registry.devices(), id, start, size)
}

// Add publishes a device.
func (registry *Registry) Add(device *Device) error {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()

	current := registry.devices()
	err := registry.check(current, device.Id, device.Start, device.Size)
	if err != nil {
		return err
	}

	index, _ := slices.BinarySearchFunc(current, device.Start, func(other *Device, addr platform.Paddr) int {
		return other.compare(addr)
	})
	next := slices.Insert(slices.Clone(current), index, device)
	registry.snapshot.Store(&next)
	return nil
}

// Remove unpublishes a device and returns it.
// The caller is responsible for tearing it down.
func (registry *Registry) Remove(id uint32) (*Device, error) {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()

	current := registry.devices()
	index := slices.IndexFunc(current, func(device *Device) bool {
		return device.Id == id
	})
	if index < 0 {
		return nil, DeviceNotFound
	}

	device := current[index]
	next := slices.Delete(slices.Clone(current), index, index+1)
	registry.snapshot.Store(&next)
	return device, nil
}

// Clear removes everything, returning what was there.
func (registry *Registry) Clear() []*Device {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()

	current := registry.devices()
	empty := make([]*Device, 0)
	registry.snapshot.Store(&empty)
	return current
}

func (registry *Registry) Lookup(id uint32) (*Device, bool) {
	for _, device := range registry.devices() {
		if device.Id == id {
			return device, true
		}
	}
	return nil, false
}

// Resolve finds the device containing addr.
// This neither locks nor allocates.
func (registry *Registry) Resolve(addr platform.Paddr) (*Device, uint32, bool) {
	current := registry.devices()
	index, found := slices.BinarySearchFunc(current, addr, func(device *Device, addr platform.Paddr) int {
		return device.compare(addr)
	})
	if !found {
		return nil, 0, false
	}
	device := current[index]
	return device, device.Offset(addr), true
}

// ResolveRange is Resolve for an access of width bytes,
// which must lie entirely within one device.
func (registry *Registry) ResolveRange(addr platform.Paddr, width uint) (*Device, uint32, error) {
	device, offset, ok := registry.Resolve(addr)
	if !ok || !device.Contains(addr, uint64(width)) {
		return nil, 0, InvalidAddress
	}
	return device, offset, nil
}

// Devices returns the live devices, by address.
func (registry *Registry) Devices() []*Device {
	return slices.Clone(registry.devices())
}
