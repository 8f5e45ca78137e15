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

	"golang.org/x/arch/x86/x86asm"

	"regbridge/platform"
)

var x86Registers = map[x86asm.Reg]Operand{
	x86asm.AL:   {platform.RAX, 1, false},
	x86asm.CL:   {platform.RCX, 1, false},
	x86asm.DL:   {platform.RDX, 1, false},
	x86asm.BL:   {platform.RBX, 1, false},
	x86asm.AH:   {platform.RAX, 1, true},
	x86asm.CH:   {platform.RCX, 1, true},
	x86asm.DH:   {platform.RDX, 1, true},
	x86asm.BH:   {platform.RBX, 1, true},
	x86asm.SPB:  {platform.RSP, 1, false},
	x86asm.BPB:  {platform.RBP, 1, false},
	x86asm.SIB:  {platform.RSI, 1, false},
	x86asm.DIB:  {platform.RDI, 1, false},
	x86asm.R8B:  {platform.R8, 1, false},
	x86asm.R9B:  {platform.R9, 1, false},
	x86asm.R10B: {platform.R10, 1, false},
	x86asm.R11B: {platform.R11, 1, false},
	x86asm.R12B: {platform.R12, 1, false},
	x86asm.R13B: {platform.R13, 1, false},
	x86asm.R14B: {platform.R14, 1, false},
	x86asm.R15B: {platform.R15, 1, false},

	x86asm.AX:   {platform.RAX, 2, false},
	x86asm.CX:   {platform.RCX, 2, false},
	x86asm.DX:   {platform.RDX, 2, false},
	x86asm.BX:   {platform.RBX, 2, false},
	x86asm.SP:   {platform.RSP, 2, false},
	x86asm.BP:   {platform.RBP, 2, false},
	x86asm.SI:   {platform.RSI, 2, false},
	x86asm.DI:   {platform.RDI, 2, false},
	x86asm.R8W:  {platform.R8, 2, false},
	x86asm.R9W:  {platform.R9, 2, false},
	x86asm.R10W: {platform.R10, 2, false},
	x86asm.R11W: {platform.R11, 2, false},
	x86asm.R12W: {platform.R12, 2, false},
	x86asm.R13W: {platform.R13, 2, false},
	x86asm.R14W: {platform.R14, 2, false},
	x86asm.R15W: {platform.R15, 2, false},

	x86asm.EAX:  {platform.RAX, 4, false},
	x86asm.ECX:  {platform.RCX, 4, false},
	x86asm.EDX:  {platform.RDX, 4, false},
	x86asm.EBX:  {platform.RBX, 4, false},
	x86asm.ESP:  {platform.RSP, 4, false},
	x86asm.EBP:  {platform.RBP, 4, false},
	x86asm.ESI:  {platform.RSI, 4, false},
	x86asm.EDI:  {platform.RDI, 4, false},
	x86asm.R8L:  {platform.R8, 4, false},
	x86asm.R9L:  {platform.R9, 4, false},
	x86asm.R10L: {platform.R10, 4, false},
	x86asm.R11L: {platform.R11, 4, false},
	x86asm.R12L: {platform.R12, 4, false},
	x86asm.R13L: {platform.R13, 4, false},
	x86asm.R14L: {platform.R14, 4, false},
	x86asm.R15L: {platform.R15, 4, false},

	x86asm.RAX: {platform.RAX, 8, false},
	x86asm.RCX: {platform.RCX, 8, false},
	x86asm.RDX: {platform.RDX, 8, false},
	x86asm.RBX: {platform.RBX, 8, false},
	x86asm.RSP: {platform.RSP, 8, false},
	x86asm.RBP: {platform.RBP, 8, false},
	x86asm.RSI: {platform.RSI, 8, false},
	x86asm.RDI: {platform.RDI, 8, false},
	x86asm.R8:  {platform.R8, 8, false},
	x86asm.R9:  {platform.R9, 8, false},
	x86asm.R10: {platform.R10, 8, false},
	x86asm.R11: {platform.R11, 8, false},
	x86asm.R12: {platform.R12, 8, false},
	x86asm.R13: {platform.R13, 8, false},
	x86asm.R14: {platform.R14, 8, false},
	x86asm.R15: {platform.R15, 8, false},
}

func x86Register(reg x86asm.Reg) (Operand, error) {
	operand, ok := x86Registers[reg]
	if !ok {
		return Operand{}, fmt.Errorf("%w (%w): %s", DecodeFailed, UnknownRegister, reg)
	}
	return operand, nil
}

//
// X86 --
//
// Decodes 64-bit mode moves to and from memory.
//
type X86 struct{}

func checkMemory(mem x86asm.Mem) error {
	if mem.Base == x86asm.RIP || mem.Base == x86asm.EIP {
		return fmt.Errorf("%w: rip-relative", DecodeFailed)
	}
	switch mem.Segment {
	case 0, x86asm.DS:
		return nil
	}
	return fmt.Errorf("%w: segment %s", DecodeFailed, mem.Segment)
}

func (X86) Decode(instruction []byte, ctx *platform.Context) (Access, error) {
	inst, err := x86asm.Decode(instruction, 64)
	if err != nil {
		return Access{}, fmt.Errorf("%w: [% x]: %v", DecodeFailed, instruction, err)
	}

	access := Access{
		Width:  uint(inst.MemBytes),
		Length: inst.Len,
		Text:   x86asm.IntelSyntax(inst, 0, nil),
	}
	switch access.Width {
	case 1, 2, 4, 8:
	default:
		return Access{}, fmt.Errorf("%w (%w): %s", DecodeFailed, InvalidWidth, access.Text)
	}

	switch inst.Op {
	case x86asm.MOV:
		// Store: mov [mem], reg / imm.
		if mem, ok := inst.Args[0].(x86asm.Mem); ok {
			if err := checkMemory(mem); err != nil {
				return Access{}, err
			}
			access.Direction = Store
			switch src := inst.Args[1].(type) {
			case x86asm.Reg:
				operand, err := x86Register(src)
				if err != nil {
					return Access{}, err
				}
				access.Value = operand.Read(ctx)
			case x86asm.Imm:
				access.Value = uint64(int64(src)) & mask(access.Width)
			default:
				return Access{}, fmt.Errorf("%w: %s", DecodeFailed, access.Text)
			}
			return access, nil
		}

		// Load: mov reg, [mem].
		mem, ok := inst.Args[1].(x86asm.Mem)
		if !ok {
			return Access{}, fmt.Errorf("%w: %s", DecodeFailed, access.Text)
		}
		if err := checkMemory(mem); err != nil {
			return Access{}, err
		}
		return load(access, inst.Args[0], NoExtend)

	case x86asm.MOVZX, x86asm.MOVSX, x86asm.MOVSXD:
		mem, ok := inst.Args[1].(x86asm.Mem)
		if !ok {
			return Access{}, fmt.Errorf("%w: %s", DecodeFailed, access.Text)
		}
		if err := checkMemory(mem); err != nil {
			return Access{}, err
		}
		how := SignExtend
		if inst.Op == x86asm.MOVZX {
			how = ZeroExtend
		}
		return load(access, inst.Args[0], how)
	}

	return Access{}, fmt.Errorf("%w: %s", DecodeFailed, access.Text)
}

func load(access Access, dest x86asm.Arg, how Extension) (Access, error) {
	reg, ok := dest.(x86asm.Reg)
	if !ok {
		return Access{}, fmt.Errorf("%w: %s", DecodeFailed, access.Text)
	}
	operand, err := x86Register(reg)
	if err != nil {
		return Access{}, err
	}
	if how == NoExtend && operand.Width != access.Width {
		return Access{}, fmt.Errorf("%w (%w): %s", DecodeFailed, InvalidWidth, access.Text)
	}
	access.Direction = Load
	access.Dest = operand
	access.Extend = how
	return access, nil
}
