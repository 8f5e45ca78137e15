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

package model

//
// Register --
//
// The stub stores registers as 64-bit words. A register
// access covers 1 to 8 bytes within its word; the server
// splits accesses that cross a word boundary.

type Register struct {
	// The value of the register.
	Value uint64 `json:"value"`

	// Read-only bits.
	Readonly uint64 `json:"readonly"`

	// Clear these bits on read.
	Readclr uint64 `json:"readclr"`
}

func widthMask(size uint) uint64 {
	if size == 0 || size > 8 {
		return 0
	}
	if size == 8 {
		return 0xffffffffffffffff
	}
	return (uint64(1) << (8 * size)) - 1
}

func (register *Register) Read(offset uint64, size uint) (uint64, error) {
	mask := widthMask(size)
	if mask == 0 || offset+uint64(size) > 8 {
		return 0, InvalidAccess
	}

	shift := offset * 8
	value := (register.Value >> shift) & mask

	register.Value = register.Value & ^((mask << shift) & register.Readclr)
	return value, nil
}

func (register *Register) Write(offset uint64, size uint, value uint64) error {
	mask := widthMask(size)
	if mask == 0 || offset+uint64(size) > 8 {
		return InvalidAccess
	}

	shift := offset * 8
	mask = (mask << shift) & ^register.Readonly
	value = value << shift

	register.Value = (register.Value & ^mask) | (value & mask)
	return nil
}
