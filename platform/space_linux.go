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

//go:build linux

package platform

import (
	"golang.org/x/sys/unix"
)

//
// LocalSpace --
//
// Protected regions inside this process. The mapping is
// anonymous, private and PROT_NONE, and must land exactly
// at the requested address (we never move a region).
//
type LocalSpace struct{}

func (LocalSpace) Reserve(base Paddr, size uint64) error {
	if !base.PageAligned() || size%PageSize != 0 {
		return RegionUnaligned
	}

	addr, _, e := unix.Syscall6(
		unix.SYS_MMAP,
		uintptr(base),
		uintptr(size),
		uintptr(unix.PROT_NONE),
		uintptr(unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_FIXED_NOREPLACE|unix.MAP_NORESERVE),
		^uintptr(0),
		0)
	if e != 0 {
		if e == unix.EEXIST {
			return RegionBusy
		}
		return e
	}

	// Older kernels treat NOREPLACE as a hint.
	if Paddr(addr) != base {
		unix.Syscall(unix.SYS_MUNMAP, addr, uintptr(size), 0)
		return RegionBusy
	}
	return nil
}

func (LocalSpace) Release(base Paddr, size uint64) error {
	_, _, e := unix.Syscall(
		unix.SYS_MUNMAP,
		uintptr(base),
		uintptr(size),
		0)
	if e != 0 {
		return e
	}
	return nil
}
