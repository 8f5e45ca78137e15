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

import (
	"testing"
)

func TestRegisterSubword(t *testing.T) {
	var register Register

	if err := register.Write(0, 4, 0xAABBCCDD); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := register.Write(4, 2, 0x1122); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if register.Value != 0x00001122AABBCCDD {
		t.Fatalf("unexpected value %x", register.Value)
	}

	cases := []struct {
		offset   uint64
		size     uint
		expected uint64
	}{
		{0, 1, 0xDD},
		{1, 1, 0xCC},
		{2, 2, 0xAABB},
		{0, 4, 0xAABBCCDD},
		{4, 4, 0x1122},
		{0, 8, 0x00001122AABBCCDD},
	}
	for _, c := range cases {
		value, err := register.Read(c.offset, c.size)
		if err != nil || value != c.expected {
			t.Fatalf("read %d@%d: expected %x, got %x (%v)",
				c.size, c.offset, c.expected, value, err)
		}
	}
}

func TestRegisterMasks(t *testing.T) {
	register := Register{
		Value:    0xF0,
		Readonly: 0x0F,
		Readclr:  0x80,
	}

	register.Write(0, 1, 0xFF)
	if register.Value != 0xF0 {
		t.Fatalf("read-only bits written: %x", register.Value)
	}

	value, _ := register.Read(0, 1)
	if value != 0xF0 {
		t.Fatalf("expected f0, got %x", value)
	}
	if register.Value != 0x70 {
		t.Fatalf("clear-on-read not applied: %x", register.Value)
	}
}

func TestRegisterBoundary(t *testing.T) {
	var register Register
	if _, err := register.Read(6, 4); err != InvalidAccess {
		t.Fatalf("expected InvalidAccess, got %v", err)
	}
	if err := register.Write(0, 9, 0); err != InvalidAccess {
		t.Fatalf("expected InvalidAccess for width 9, got %v", err)
	}
	if err := register.Write(5, 3, 0xABCDEF); err != nil {
		t.Fatalf("tail write failed: %v", err)
	}
	if register.Value != 0xABCDEF0000000000 {
		t.Fatalf("unexpected value %x", register.Value)
	}
}
