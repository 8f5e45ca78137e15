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
	"regbridge/platform"
)

type MemoryRegion struct {
	Start platform.Paddr
	Size  uint64
}

func (region *MemoryRegion) End() platform.Paddr {
	return region.Start.After(region.Size)
}

func (region *MemoryRegion) Overlaps(start platform.Paddr, size uint64) bool {
	return region.Start < start.After(size) && start < region.End()
}

func (region *MemoryRegion) Contains(start platform.Paddr, size uint64) bool {
	return region.Start <= start && region.End() >= start.After(size)
}

// compare orders a region against an address.
// Zero means the address is inside.
func (region *MemoryRegion) compare(addr platform.Paddr) int {
	if region.End() <= addr {
		return -1
	}
	if region.Start > addr {
		return 1
	}
	return 0
}
