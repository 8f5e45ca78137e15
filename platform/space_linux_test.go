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
	"testing"
	"unsafe"

	"golang.org/x/sys/unix"
)

func TestLocalSpace(t *testing.T) {
	space := LocalSpace{}

	// Pick a free spot by letting the kernel choose.
	probe, err := unix.Mmap(-1, 0, 4*PageSize, unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	base := Paddr(uintptr(unsafe.Pointer(&probe[0])))
	unix.Munmap(probe)

	if err := space.Reserve(base, 2*PageSize); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := space.Reserve(base.After(PageSize), PageSize); err != RegionBusy {
		t.Fatalf("expected RegionBusy, got %v", err)
	}
	if err := space.Reserve(base+1, PageSize); err != RegionUnaligned {
		t.Fatalf("expected RegionUnaligned, got %v", err)
	}
	if err := space.Release(base, 2*PageSize); err != nil {
		t.Fatalf("release: %v", err)
	}

	// Free again.
	if err := space.Reserve(base, PageSize); err != nil {
		t.Fatalf("re-reserve: %v", err)
	}
	space.Release(base, PageSize)
}
