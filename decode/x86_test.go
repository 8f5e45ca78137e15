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
	"errors"
	"testing"

	"github.com/davecgh/go-spew/spew"

	"regbridge/platform"
)

func trapContext(values map[platform.Register]uint64) *platform.Context {
	ctx := &platform.Context{}
	for reg, value := range values {
		ctx.Set(reg, value)
	}
	ctx.Set(platform.RIP, 0x400000)
	return ctx
}

func TestX86Stores(t *testing.T) {
	tests := []struct {
		name   string
		code   []byte
		regs   map[platform.Register]uint64
		width  uint
		value  uint64
		length int
	}{
		{"mov [rdi], eax", []byte{0x89, 0x07}, map[platform.Register]uint64{platform.RAX: 0x1122334455667788}, 4, 0x55667788, 2},
		{"mov [rdi], rax", []byte{0x48, 0x89, 0x07}, map[platform.Register]uint64{platform.RAX: 0x1122334455667788}, 8, 0x1122334455667788, 3},
		{"mov [rdi], ax", []byte{0x66, 0x89, 0x07}, map[platform.Register]uint64{platform.RAX: 0xbeef}, 2, 0xbeef, 3},
		{"mov [rdi], al", []byte{0x88, 0x07}, map[platform.Register]uint64{platform.RAX: 0xbeef}, 1, 0xef, 2},
		{"mov [rdi], ah", []byte{0x88, 0x27}, map[platform.Register]uint64{platform.RAX: 0xbeef}, 1, 0xbe, 2},
		{"mov [rdi], r8d", []byte{0x44, 0x89, 0x07}, map[platform.Register]uint64{platform.R8: 0xffffffff12345678}, 4, 0x12345678, 3},
		{"mov dword [rdi], imm", []byte{0xc7, 0x07, 0xdd, 0xcc, 0xbb, 0xaa}, nil, 4, 0xaabbccdd, 6},
		{"mov byte [rdi], imm", []byte{0xc6, 0x07, 0x5a}, nil, 1, 0x5a, 3},
		{"mov qword [rdi], imm", []byte{0x48, 0xc7, 0x07, 0xff, 0xff, 0xff, 0xff}, nil, 8, 0xffffffffffffffff, 7},
	}

	for _, test := range tests {
		ctx := trapContext(test.regs)
		access, err := X86{}.Decode(test.code, ctx)
		if err != nil {
			t.Fatalf("%s: decode failed: %v", test.name, err)
		}
		if access.Direction != Store ||
			access.Width != test.width ||
			access.Value != test.value ||
			access.Length != test.length {
			t.Fatalf("%s: unexpected access %s", test.name, spew.Sdump(access))
		}

		access.Complete(ctx, 0)
		if ctx.Ip() != 0x400000+uint64(test.length) {
			t.Fatalf("%s: ip not advanced: %x", test.name, ctx.Ip())
		}
	}
}

func TestX86Loads(t *testing.T) {
	tests := []struct {
		name   string
		code   []byte
		before uint64
		value  uint64
		width  uint
		after  uint64
	}{
		{"mov eax, [rdi]", []byte{0x8b, 0x07}, 0xffffffffffffffff, 0xaabbccdd, 4, 0x00000000aabbccdd},
		{"mov rax, [rdi]", []byte{0x48, 0x8b, 0x07}, 0, 0x1122334455667788, 8, 0x1122334455667788},
		{"mov ax, [rdi]", []byte{0x66, 0x8b, 0x07}, 0xffffffffffffffff, 0x1234, 2, 0xffffffffffff1234},
		{"mov al, [rdi]", []byte{0x8a, 0x07}, 0x1111, 0x22, 1, 0x1122},
		{"mov ah, [rdi]", []byte{0x8a, 0x27}, 0x1111, 0x22, 1, 0x2211},
		{"movzx eax, byte [rdi]", []byte{0x0f, 0xb6, 0x07}, 0xffffffffffffffff, 0x1ff, 1, 0xff},
		{"movzx eax, word [rdi]", []byte{0x0f, 0xb7, 0x07}, 0xffffffffffffffff, 0x8000, 2, 0x8000},
		{"movsx rax, byte [rdi]", []byte{0x48, 0x0f, 0xbe, 0x07}, 0, 0x80, 1, 0xffffffffffffff80},
		{"movsx eax, word [rdi]", []byte{0x0f, 0xbf, 0x07}, 0, 0x8000, 2, 0x00000000ffff8000},
		{"movsxd rax, dword [rdi]", []byte{0x48, 0x63, 0x07}, 0, 0x80000000, 4, 0xffffffff80000000},
	}

	for _, test := range tests {
		ctx := trapContext(map[platform.Register]uint64{platform.RAX: test.before})
		access, err := X86{}.Decode(test.code, ctx)
		if err != nil {
			t.Fatalf("%s: decode failed: %v", test.name, err)
		}
		if access.Direction != Load || access.Width != test.width || access.Dest.Reg != platform.RAX {
			t.Fatalf("%s: unexpected access %s", test.name, spew.Sdump(access))
		}

		access.Complete(ctx, test.value)
		if ctx.Get(platform.RAX) != test.after {
			t.Fatalf("%s: expected rax %x, got %x", test.name, test.after, ctx.Get(platform.RAX))
		}
		if ctx.Ip() != 0x400000+uint64(len(test.code)) {
			t.Fatalf("%s: ip not advanced: %x", test.name, ctx.Ip())
		}
	}
}

func TestX86Rejects(t *testing.T) {
	tests := []struct {
		name string
		code []byte
	}{
		{"empty", []byte{}},
		{"add [rdi], eax", []byte{0x01, 0x07}},
		{"mov edi, eax", []byte{0x89, 0xc7}},
		{"mov eax, [rip]", []byte{0x8b, 0x05, 0x00, 0x00, 0x00, 0x00}},
		{"mov eax, fs:[rdi]", []byte{0x64, 0x8b, 0x07}},
		{"rep movsb", []byte{0xf3, 0xa4}},
		{"inc dword [rdi]", []byte{0xff, 0x07}},
	}

	for _, test := range tests {
		ctx := trapContext(nil)
		_, err := X86{}.Decode(test.code, ctx)
		if !errors.Is(err, DecodeFailed) {
			t.Fatalf("%s: expected DecodeFailed, got %v", test.name, err)
		}
		if ctx.Ip() != 0x400000 {
			t.Fatalf("%s: context modified", test.name)
		}
	}
}

func TestExtend(t *testing.T) {
	if v := extend(0x7f, 1, 8, SignExtend); v != 0x7f {
		t.Fatalf("positive sign extend: %x", v)
	}
	if v := extend(0xff, 1, 2, SignExtend); v != 0xffff {
		t.Fatalf("negative sign extend to 16: %x", v)
	}
	if v := extend(0xffff, 2, 8, ZeroExtend); v != 0xffff {
		t.Fatalf("zero extend: %x", v)
	}
}
