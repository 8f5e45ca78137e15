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

package protocol

import (
	"bytes"
	"errors"
	"testing"

	"github.com/davecgh/go-spew/spew"
)

func TestEncodeLayout(t *testing.T) {
	msg, err := NewWrite(1, 0x10, 4, 0xAABBCCDD)
	if err != nil {
		t.Fatalf("NewWrite failed: %v", err)
	}

	var buf [MessageSize]byte
	if err := msg.Encode(buf[:]); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	expected := []byte{
		0x01, 0x00, 0x00, 0x00, // device_id
		0x02, 0x00, 0x00, 0x00, // command
		0x10, 0x00, 0x00, 0x00, // address
		0x04, 0x00, 0x00, 0x00, // length
		0x00, 0x00, 0x00, 0x00, // result
		0xDD, 0xCC, 0xBB, 0xAA, // payload
	}
	if !bytes.Equal(buf[:len(expected)], expected) {
		t.Fatalf("unexpected header layout:\n%s", spew.Sdump(buf[:len(expected)]))
	}
	for i := len(expected); i < MessageSize; i++ {
		if buf[i] != 0 {
			t.Fatalf("payload byte %d not zero: %x", i, buf[i])
		}
	}
}

func TestDecodeRejects(t *testing.T) {
	good, _ := NewRead(3, 0, 4)
	var buf [MessageSize]byte
	good.Encode(buf[:])

	cases := []struct {
		name   string
		mutate func(b []byte)
		err    error
	}{
		{"command", func(b []byte) { b[4] = 9 }, UnknownCommand},
		{"result", func(b []byte) { b[16] = 7 }, UnknownResult},
		{"length", func(b []byte) { b[12] = 3 }, InvalidLength},
	}

	for _, c := range cases {
		scratch := buf
		c.mutate(scratch[:])
		var msg Message
		err := msg.Decode(scratch[:])
		if !errors.Is(err, c.err) {
			t.Fatalf("%s: expected %v, got %v", c.name, c.err, err)
		}
	}

	var msg Message
	if err := msg.Decode(buf[:MessageSize-1]); err != ShortBuffer {
		t.Fatalf("expected ShortBuffer, got %v", err)
	}
}

func TestValueWidths(t *testing.T) {
	cases := []struct {
		width    uint
		value    uint64
		expected uint64
	}{
		{1, 0x1122334455667788, 0x88},
		{2, 0x1122334455667788, 0x7788},
		{4, 0x1122334455667788, 0x55667788},
		{8, 0x1122334455667788, 0x1122334455667788},
	}

	for _, c := range cases {
		msg, err := NewWrite(0, 0, c.width, c.value)
		if err != nil {
			t.Fatalf("width %d: %v", c.width, err)
		}
		if msg.Value() != c.expected {
			t.Fatalf("width %d: expected %x, got %x", c.width, c.expected, msg.Value())
		}
	}

	if _, err := NewRead(0, 0, 3); err != InvalidLength {
		t.Fatalf("expected InvalidLength for width 3, got %v", err)
	}
}

func TestInterruptStream(t *testing.T) {
	var stream bytes.Buffer
	WriteMessage(&stream, NewInterrupt(8, 2))
	WriteMessage(&stream, NewInit(8))

	var msg Message
	if err := ReadMessage(&stream, &msg); err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	if msg.Command != CmdInterrupt || msg.DeviceId != 8 || msg.Irq() != 2 {
		t.Fatalf("bad interrupt: %s", spew.Sdump(msg.String()))
	}
	if err := ReadMessage(&stream, &msg); err != nil || msg.Command != CmdInit {
		t.Fatalf("expected INIT, got %s (%v)", msg.String(), err)
	}
}

func TestResultErr(t *testing.T) {
	if ResultSuccess.Err() != nil {
		t.Fatalf("SUCCESS should not be an error")
	}
	var rerr *ModelError
	if !errors.As(ResultTimeout.Err(), &rerr) || rerr.Result != ResultTimeout {
		t.Fatalf("expected ModelError(TIMEOUT)")
	}
}
