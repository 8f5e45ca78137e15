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
	"encoding/binary"
	"fmt"
	"io"
)

//
// Wire format --
//
// Every message exchanged with a model has the same fixed
// layout, in both directions. All integers are little endian.
//
//   device_id : uint32
//   command   : uint32
//   address   : uint32 (device-relative)
//   length    : uint32 (access width)
//   result    : uint32
//   payload   : [256]byte
//
// Responses echo the request header with the result set.
// Interrupts are pushed by the model without a request.

type Command uint32

const (
	CmdRead      Command = 0x01
	CmdWrite     Command = 0x02
	CmdInterrupt Command = 0x03
	CmdInit      Command = 0x04
	CmdDeinit    Command = 0x05
)

type Result uint32

const (
	ResultSuccess        Result = 0x00
	ResultError          Result = 0x01
	ResultTimeout        Result = 0x02
	ResultInvalidAddress Result = 0x03
)

const (
	HeaderSize  = 20
	PayloadSize = 256
	MessageSize = HeaderSize + PayloadSize
)

var order = binary.LittleEndian

type Message struct {
	DeviceId uint32
	Command  Command
	Address  uint32
	Length   uint32
	Result   Result

	// Value for READ responses and WRITE requests,
	// interrupt number for INTERRUPT.
	Payload [PayloadSize]byte
}

func (cmd Command) String() string {
	switch cmd {
	case CmdRead:
		return "READ"
	case CmdWrite:
		return "WRITE"
	case CmdInterrupt:
		return "INTERRUPT"
	case CmdInit:
		return "INIT"
	case CmdDeinit:
		return "DEINIT"
	}
	return fmt.Sprintf("Command(%d)", uint32(cmd))
}

func (cmd Command) Valid() bool {
	return cmd >= CmdRead && cmd <= CmdDeinit
}

func (result Result) String() string {
	switch result {
	case ResultSuccess:
		return "SUCCESS"
	case ResultError:
		return "ERROR"
	case ResultTimeout:
		return "TIMEOUT"
	case ResultInvalidAddress:
		return "INVALID_ADDRESS"
	}
	return fmt.Sprintf("Result(%d)", uint32(result))
}

func (result Result) Valid() bool {
	return result <= ResultInvalidAddress
}

// Err returns nil for SUCCESS and a *ModelError otherwise.
func (result Result) Err() error {
	if result == ResultSuccess {
		return nil
	}
	return &ModelError{Result: result}
}

// ValidWidth reports whether n is a supported access width.
func ValidWidth(n uint) bool {
	return n == 1 || n == 2 || n == 4 || n == 8
}

func NewRead(device uint32, addr uint32, length uint) (*Message, error) {
	if !ValidWidth(length) {
		return nil, InvalidLength
	}
	return &Message{
		DeviceId: device,
		Command:  CmdRead,
		Address:  addr,
		Length:   uint32(length),
	}, nil
}

func NewWrite(device uint32, addr uint32, length uint, value uint64) (*Message, error) {
	if !ValidWidth(length) {
		return nil, InvalidLength
	}
	msg := &Message{
		DeviceId: device,
		Command:  CmdWrite,
		Address:  addr,
		Length:   uint32(length),
	}
	msg.SetValue(value)
	return msg, nil
}

func NewInterrupt(device uint32, irq uint32) *Message {
	msg := &Message{
		DeviceId: device,
		Command:  CmdInterrupt,
		Length:   4,
	}
	order.PutUint32(msg.Payload[0:4], irq)
	return msg
}

func NewInit(device uint32) *Message {
	return &Message{DeviceId: device, Command: CmdInit}
}

func NewDeinit(device uint32) *Message {
	return &Message{DeviceId: device, Command: CmdDeinit}
}

// Value decodes the access value held in the payload.
// Bytes beyond Length are ignored.
func (msg *Message) Value() uint64 {
	switch msg.Length {
	case 1:
		return uint64(msg.Payload[0])
	case 2:
		return uint64(order.Uint16(msg.Payload[0:2]))
	case 4:
		return uint64(order.Uint32(msg.Payload[0:4]))
	case 8:
		return order.Uint64(msg.Payload[0:8])
	}
	return 0
}

// SetValue stores value truncated to Length bytes.
func (msg *Message) SetValue(value uint64) {
	switch msg.Length {
	case 1:
		msg.Payload[0] = uint8(value)
	case 2:
		order.PutUint16(msg.Payload[0:2], uint16(value))
	case 4:
		order.PutUint32(msg.Payload[0:4], uint32(value))
	case 8:
		order.PutUint64(msg.Payload[0:8], value)
	}
}

// Irq is the interrupt number of an INTERRUPT message.
func (msg *Message) Irq() uint32 {
	return order.Uint32(msg.Payload[0:4])
}

// Validate checks the header fields.
func (msg *Message) Validate() error {
	if !msg.Command.Valid() {
		return UnknownCommand
	}
	if !msg.Result.Valid() {
		return UnknownResult
	}
	switch msg.Command {
	case CmdRead, CmdWrite:
		if !ValidWidth(uint(msg.Length)) {
			return InvalidLength
		}
	}
	return nil
}

// Matches reports whether resp answers msg.
func (msg *Message) Matches(resp *Message) bool {
	return msg.DeviceId == resp.DeviceId &&
		msg.Command == resp.Command &&
		msg.Address == resp.Address
}

// Encode writes the wire form into buf.
// It does not allocate, buf must hold MessageSize bytes.
func (msg *Message) Encode(buf []byte) error {
	if len(buf) < MessageSize {
		return ShortBuffer
	}
	order.PutUint32(buf[0:4], msg.DeviceId)
	order.PutUint32(buf[4:8], uint32(msg.Command))
	order.PutUint32(buf[8:12], msg.Address)
	order.PutUint32(buf[12:16], msg.Length)
	order.PutUint32(buf[16:20], uint32(msg.Result))
	copy(buf[HeaderSize:MessageSize], msg.Payload[:])
	return nil
}

// Decode parses and validates the wire form in buf.
func (msg *Message) Decode(buf []byte) error {
	if len(buf) < MessageSize {
		return ShortBuffer
	}
	msg.DeviceId = order.Uint32(buf[0:4])
	msg.Command = Command(order.Uint32(buf[4:8]))
	msg.Address = order.Uint32(buf[8:12])
	msg.Length = order.Uint32(buf[12:16])
	msg.Result = Result(order.Uint32(buf[16:20]))
	copy(msg.Payload[:], buf[HeaderSize:MessageSize])
	return msg.Validate()
}

func (msg *Message) String() string {
	switch msg.Command {
	case CmdRead, CmdWrite:
		return fmt.Sprintf("%s dev=%d addr=%x len=%d value=%x result=%s",
			msg.Command,
			msg.DeviceId,
			msg.Address,
			msg.Length,
			msg.Value(),
			msg.Result)
	case CmdInterrupt:
		return fmt.Sprintf("%s dev=%d irq=%d",
			msg.Command,
			msg.DeviceId,
			msg.Irq())
	}
	return fmt.Sprintf("%s dev=%d result=%s",
		msg.Command,
		msg.DeviceId,
		msg.Result)
}

// ReadMessage reads exactly one message from reader.
func ReadMessage(reader io.Reader, msg *Message) error {
	var buf [MessageSize]byte
	_, err := io.ReadFull(reader, buf[:])
	if err != nil {
		return err
	}
	return msg.Decode(buf[:])
}

// WriteMessage writes one message to writer.
func WriteMessage(writer io.Writer, msg *Message) error {
	var buf [MessageSize]byte
	err := msg.Encode(buf[:])
	if err != nil {
		return err
	}
	_, err = writer.Write(buf[:])
	return err
}
