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
	"sort"
	"sync"
	"sync/atomic"
)

// AddressSpace is where protected regions live.
// Reserve must leave the range mapped with no access,
// so that every load or store in it traps.
type AddressSpace interface {
	Reserve(base Paddr, size uint64) error
	Release(base Paddr, size uint64) error
}

type Region struct {
	Start Paddr
	Size  uint64
}

func (region Region) End() Paddr {
	return region.Start.After(region.Size)
}

func (region Region) Contains(addr Paddr) bool {
	return region.Start <= addr && addr < region.End()
}

//
// Protector --
//
// Protected regions are requested with byte granularity
// but can only be enforced a page at a time, so two small
// devices may well share a page. Pages are reference counted
// and handed to the address space in contiguous runs.

type Protector struct {
	mutex sync.Mutex

	// Where pages are reserved.
	space AddressSpace

	// Requested regions, by start.
	regions map[Paddr]Region

	// Page => number of regions using it.
	pages map[Paddr]int

	// Read-only copy of the pages, for Covers().
	// The fault path must not wait on the mutex, as it
	// is held while the address space is being changed.
	covered atomic.Pointer[map[Paddr]bool]
}

func NewProtector(space AddressSpace) *Protector {
	protector := &Protector{
		space:   space,
		regions: make(map[Paddr]Region),
		pages:   make(map[Paddr]int),
	}
	protector.publish()
	return protector
}

// publish refreshes the covered set.
// Must be called with the mutex held.
func (protector *Protector) publish() {
	covered := make(map[Paddr]bool, len(protector.pages))
	for page := range protector.pages {
		covered[page] = true
	}
	protector.covered.Store(&covered)
}

func pageSpan(base Paddr, size uint64) (Paddr, Paddr) {
	start := base.Page()
	end := base.After(size).Align(PageSize, true)
	return start, end
}

// runs collapses a sorted list of pages into contiguous regions.
func runs(pages []Paddr) []Region {
	sort.Slice(pages, func(i, j int) bool { return pages[i] < pages[j] })

	result := make([]Region, 0, 1)
	for _, page := range pages {
		n := len(result)
		if n > 0 && result[n-1].End() == page {
			result[n-1].Size += PageSize
			continue
		}
		result = append(result, Region{page, PageSize})
	}
	return result
}

// ReserveAndProtect makes [base, base+size) trap on access.
func (protector *Protector) ReserveAndProtect(base Paddr, size uint64) (Paddr, error) {
	if size == 0 {
		return 0, RegionEmpty
	}

	protector.mutex.Lock()
	defer protector.mutex.Unlock()

	if _, ok := protector.regions[base]; ok {
		return 0, RegionBusy
	}

	// Which pages are new?
	start, end := pageSpan(base, size)
	fresh := make([]Paddr, 0, 1)
	for page := start; page < end; page += PageSize {
		if protector.pages[page] == 0 {
			fresh = append(fresh, page)
		}
	}

	reserved := make([]Region, 0, 1)
	for _, run := range runs(fresh) {
		err := protector.space.Reserve(run.Start, run.Size)
		if err != nil {
			// Unwind what we've done.
			for _, done := range reserved {
				protector.space.Release(done.Start, done.Size)
			}
			return 0, err
		}
		reserved = append(reserved, run)
	}

	for page := start; page < end; page += PageSize {
		protector.pages[page] += 1
	}
	protector.regions[base] = Region{base, size}
	protector.publish()
	return base, nil
}

// Release drops the region starting at base.
// Pages are released once no region uses them.
func (protector *Protector) Release(base Paddr) error {
	protector.mutex.Lock()
	defer protector.mutex.Unlock()

	region, ok := protector.regions[base]
	if !ok {
		return RegionNotFound
	}
	delete(protector.regions, base)
	defer protector.publish()

	start, end := pageSpan(region.Start, region.Size)
	unused := make([]Paddr, 0, 1)
	for page := start; page < end; page += PageSize {
		protector.pages[page] -= 1
		if protector.pages[page] == 0 {
			delete(protector.pages, page)
			unused = append(unused, page)
		}
	}

	var err error
	for _, run := range runs(unused) {
		release_err := protector.space.Release(run.Start, run.Size)
		if release_err != nil && err == nil {
			err = release_err
		}
	}
	return err
}

// Covers is true if addr is on a protected page.
// This includes the slack around regions smaller than a page.
func (protector *Protector) Covers(addr Paddr) bool {
	covered := *protector.covered.Load()
	return covered[addr.Page()]
}

// Regions returns all protected regions, by address.
func (protector *Protector) Regions() []Region {
	protector.mutex.Lock()
	defer protector.mutex.Unlock()

	result := make([]Region, 0, len(protector.regions))
	for _, region := range protector.regions {
		result = append(result, region)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Start < result[j].Start })
	return result
}

// Attach moves every protected page into a new address space.
// This is used when a driver process is started: regions that
// were registered up front must be protected in the driver.
func (protector *Protector) Attach(space AddressSpace) error {
	protector.mutex.Lock()
	defer protector.mutex.Unlock()

	pages := make([]Paddr, 0, len(protector.pages))
	for page := range protector.pages {
		pages = append(pages, page)
	}
	all := runs(pages)

	for i, run := range all {
		err := space.Reserve(run.Start, run.Size)
		if err != nil {
			for _, done := range all[:i] {
				space.Release(done.Start, done.Size)
			}
			return err
		}
	}
	for _, run := range all {
		protector.space.Release(run.Start, run.Size)
	}

	protector.space = space
	return nil
}

// Close releases every page.
func (protector *Protector) Close() error {
	protector.mutex.Lock()
	defer protector.mutex.Unlock()

	pages := make([]Paddr, 0, len(protector.pages))
	for page := range protector.pages {
		pages = append(pages, page)
	}

	var err error
	for _, run := range runs(pages) {
		release_err := protector.space.Release(run.Start, run.Size)
		if release_err != nil && err == nil {
			err = release_err
		}
	}

	protector.regions = make(map[Paddr]Region)
	protector.pages = make(map[Paddr]int)
	protector.publish()
	return err
}
