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
	"fmt"
)

//
// x86 platform constants.
//
const (
	PageSize = 4096
)

//
// Our general purpose registers.
//
type Register int

const (
	RAX Register = iota
	RBX
	RCX
	RDX
	RSI
	RDI
	RSP
	RBP
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
	RIP
	RFLAGS

	NumRegisters
)

var registerNames = [NumRegisters]string{
	"rax", "rbx", "rcx", "rdx", "rsi", "rdi", "rsp", "rbp",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
	"rip", "rflags",
}

func (reg Register) String() string {
	if reg < 0 || reg >= NumRegisters {
		return fmt.Sprintf("Register(%d)", int(reg))
	}
	return registerNames[reg]
}

//
// Context --
//
// A snapshot of the general purpose registers of a
// stopped thread. It is filled in when a thread traps
// and written back (with any changes) before it resumes.
//
type Context struct {
	Regs [NumRegisters]uint64
}

func (ctx *Context) Get(reg Register) uint64 {
	return ctx.Regs[reg]
}

func (ctx *Context) Set(reg Register, value uint64) {
	ctx.Regs[reg] = value
}

func (ctx *Context) Ip() uint64 {
	return ctx.Regs[RIP]
}

func (ctx *Context) Advance(length int) {
	ctx.Regs[RIP] += uint64(length)
}
