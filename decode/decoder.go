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

package decode

import (
	"fmt"

	"regbridge/platform"
)

type Direction int

const (
	Load Direction = iota
	Store
)

func (direction Direction) String() string {
	if direction == Load {
		return "load"
	}
	return "store"
}

type Extension int

const (
	// Plain move; width of register and memory agree.
	NoExtend Extension = iota

	// MOVZX.
	ZeroExtend

	// MOVSX, MOVSXD.
	SignExtend
)

// Operand names (part of) a general purpose register.
type Operand struct {
	Reg platform.Register

	// Width in bytes (1, 2, 4 or 8).
	Width uint

	// AH, BH, CH, DH.
	High bool
}

func (operand Operand) String() string {
	if operand.High {
		return fmt.Sprintf("%s[15:8]", operand.Reg)
	}
	return fmt.Sprintf("%s/%d", operand.Reg, operand.Width)
}

// Read returns the operand value from ctx.
func (operand Operand) Read(ctx *platform.Context) uint64 {
	value := ctx.Get(operand.Reg)
	if operand.High {
		return (value >> 8) & 0xff
	}
	return value & mask(operand.Width)
}

// Write stores value in the operand, following the
// architectural rules: 32-bit writes clear the upper half,
// 8 and 16-bit writes leave the rest of the register alone.
func (operand Operand) Write(ctx *platform.Context, value uint64) {
	old := ctx.Get(operand.Reg)
	switch {
	case operand.High:
		ctx.Set(operand.Reg, (old&^0xff00)|((value&0xff)<<8))
	case operand.Width == 4:
		ctx.Set(operand.Reg, value&0xffffffff)
	case operand.Width == 8:
		ctx.Set(operand.Reg, value)
	default:
		m := mask(operand.Width)
		ctx.Set(operand.Reg, (old&^m)|(value&m))
	}
}

func mask(width uint) uint64 {
	if width >= 8 {
		return ^uint64(0)
	}
	return (uint64(1) << (8 * width)) - 1
}

func extend(value uint64, from uint, to uint, how Extension) uint64 {
	value &= mask(from)
	if how == SignExtend && from < 8 {
		sign := uint64(1) << (8*from - 1)
		if value&sign != 0 {
			value |= ^mask(from)
		}
	}
	return value & mask(to)
}

//
// Access --
//
// What a trapped instruction was trying to do. For stores
// the value is taken from the context at decode time; for
// loads Complete() writes the model's answer back.
//
type Access struct {
	Direction Direction

	// Bytes touched in memory.
	Width uint

	// The value written (Store).
	Value uint64

	// The destination (Load).
	Dest   Operand
	Extend Extension

	// Instruction length.
	Length int

	// Disassembly (for diagnostics).
	Text string
}

func (access *Access) String() string {
	if access.Direction == Store {
		return fmt.Sprintf("%s %d bytes <- %x (%s)",
			access.Direction, access.Width, access.Value, access.Text)
	}
	return fmt.Sprintf("%s %d bytes -> %s (%s)",
		access.Direction, access.Width, access.Dest, access.Text)
}

// Complete finishes the instruction in ctx.
// For a load, value is the data returned for the access.
func (access *Access) Complete(ctx *platform.Context, value uint64) {
	if access.Direction == Load {
		access.Dest.Write(
			ctx,
			extend(value, access.Width, access.Dest.Width, access.Extend))
	}
	ctx.Advance(access.Length)
}

// Decoder classifies the instruction at a trap.
//
// Only the narrow set of moves compilers emit for volatile
// register access is accepted; anything else must fail
// with DecodeFailed rather than guess.
type Decoder interface {
	Decode(instruction []byte, ctx *platform.Context) (Access, error)
}
