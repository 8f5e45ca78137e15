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

package fault

import (
	"errors"
	"testing"

	"regbridge/decode"
	"regbridge/platform"
)

var modelDown = errors.New("model down")
var noDevice = errors.New("no device")

type fakeAccessor struct {
	base   platform.Paddr
	size   uint64
	values map[platform.Paddr]uint64
	err    error
	miss   error
	calls  int
}

func newFake() *fakeAccessor {
	return &fakeAccessor{
		base:   0x40000000,
		size:   0x1000,
		values: make(map[platform.Paddr]uint64),
	}
}

func (fake *fakeAccessor) Owns(addr platform.Paddr) bool {
	return fake.base <= addr && addr < fake.base.After(fake.size)
}

func (fake *fakeAccessor) Resolve(addr platform.Paddr, width uint) error {
	return fake.miss
}

func (fake *fakeAccessor) Load(addr platform.Paddr, width uint) (uint64, error) {
	fake.calls += 1
	if fake.err != nil {
		return 0, fake.err
	}
	return fake.values[addr], nil
}

func (fake *fakeAccessor) Store(addr platform.Paddr, width uint, value uint64) error {
	fake.calls += 1
	if fake.err != nil {
		return fake.err
	}
	fake.values[addr] = value
	return nil
}

func newTrap(addr platform.Paddr, code []byte) *platform.Trap {
	trap := &platform.Trap{
		Tid:         1,
		Addr:        addr,
		Instruction: code,
	}
	trap.Context.Set(platform.RIP, 0x401000)
	trap.Context.Set(platform.RDI, uint64(addr))
	return trap
}

func TestStoreThenLoad(t *testing.T) {
	fake := newFake()
	interceptor := NewInterceptor(decode.X86{}, fake)

	// mov [rdi], eax
	store := newTrap(0x40000000, []byte{0x89, 0x07})
	store.Context.Set(platform.RAX, 0xAABBCCDD)
	if err := interceptor.HandleFault(store); err != nil {
		t.Fatalf("store failed: %v", err)
	}
	if store.Context.Ip() != 0x401002 {
		t.Fatalf("ip not advanced: %x", store.Context.Ip())
	}

	// mov ecx, [rdi]
	load := newTrap(0x40000000, []byte{0x8b, 0x0f})
	load.Context.Set(platform.RCX, 0xffffffffffffffff)
	if err := interceptor.HandleFault(load); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if load.Context.Get(platform.RCX) != 0xAABBCCDD {
		t.Fatalf("expected aabbccdd, got %x", load.Context.Get(platform.RCX))
	}
	for _, state := range []State{Trapped, Decoded, Dispatched, Completed} {
		if interceptor.Count(state) != 2 {
			t.Fatalf("%s: expected 2, got %d", state, interceptor.Count(state))
		}
	}
	if interceptor.Handled() != 2 || interceptor.Failed() != 0 {
		t.Fatalf("unexpected counts %d/%d", interceptor.Handled(), interceptor.Failed())
	}
}

func TestNotOurs(t *testing.T) {
	fake := newFake()
	interceptor := NewInterceptor(decode.X86{}, fake)

	trap := newTrap(0x10, []byte{0x8b, 0x07})
	if err := interceptor.HandleFault(trap); err != platform.NotHandled {
		t.Fatalf("expected NotHandled, got %v", err)
	}
	if fake.calls != 0 || interceptor.Failed() != 0 {
		t.Fatalf("foreign fault dispatched")
	}
}

func TestFailures(t *testing.T) {
	tests := []struct {
		name  string
		code  []byte
		err   error
		miss  error
		state State
		want  error
	}{
		{"decode", []byte{0x01, 0x07}, nil, nil, Trapped, decode.DecodeFailed},
		{"resolution", []byte{0x8b, 0x07}, nil, noDevice, Decoded, noDevice},
		{"transport", []byte{0x8b, 0x07}, modelDown, nil, Dispatched, modelDown},
		{"store transport", []byte{0x89, 0x07}, modelDown, nil, Dispatched, modelDown},
	}

	for _, test := range tests {
		fake := newFake()
		fake.err = test.err
		fake.miss = test.miss
		interceptor := NewInterceptor(decode.X86{}, fake)

		var reported *Error
		interceptor.OnFailure = func(err *Error) { reported = err }

		trap := newTrap(0x40000010, test.code)
		err := interceptor.HandleFault(trap)

		var fault *Error
		if !errors.As(err, &fault) {
			t.Fatalf("%s: expected *Error, got %v", test.name, err)
		}
		if fault.State != test.state || !errors.Is(err, test.want) {
			t.Fatalf("%s: unexpected failure %s", test.name, fault.Error())
		}
		if fault.Addr != 0x40000010 || fault.Ip != 0x401000 {
			t.Fatalf("%s: wrong diagnostics %s", test.name, fault.Error())
		}
		if reported != fault {
			t.Fatalf("%s: failure not reported", test.name)
		}

		// The last state reached, then FAILED.
		if interceptor.Count(test.state) != 1 ||
			interceptor.Count(test.state+1) != 0 ||
			interceptor.Count(Failed) != 1 ||
			interceptor.Count(Completed) != 0 {
			t.Fatalf("%s: unexpected transitions", test.name)
		}
		if test.miss != nil && fake.calls != 0 {
			t.Fatalf("%s: unresolved access dispatched", test.name)
		}

		// The thread must not move on.
		if trap.Context.Ip() != 0x401000 {
			t.Fatalf("%s: ip advanced on failure", test.name)
		}
	}
}

func TestStateNames(t *testing.T) {
	if Dispatched.String() != "DISPATCHED" || State(42).String() != "State(42)" {
		t.Fatalf("bad state names")
	}
}
