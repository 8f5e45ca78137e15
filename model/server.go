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

// Package model is a pass-through register model.
//
// It speaks the bridge wire protocol on a persistent stream
// connection and stores whatever is written, so a read after
// a write returns the written value. It is meant for tests and
// bring-up; real behavioural models live elsewhere.
package model

import (
	"log"
	"net"
	"os"
	"sync"

	"gopkg.in/tomb.v2"
	"regbridge/protocol"
)

type key struct {
	device uint32
	word   uint32
}

type Server struct {
	listener net.Listener
	tomb     tomb.Tomb

	// Protects everything below.
	mutex sync.Mutex

	// Register storage, by device and word.
	registers map[key]*Register

	// Live connections (for interrupts).
	conns map[*conn]bool

	// Which connection initialized each device.
	owners map[uint32]*conn

	// Don't answer anything?
	silent bool

	// Requests seen, by command.
	seen map[protocol.Command]int

	// Debugging?
	Debug bool
}

type conn struct {
	net.Conn

	// Serializes writes (responses vs. interrupts).
	mutex sync.Mutex
}

func (c *conn) send(msg *protocol.Message) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return protocol.WriteMessage(c.Conn, msg)
}

// Listen binds a model on the given endpoint.
// Stale unix sockets are removed first.
func Listen(network string, address string) (*Server, error) {
	if network == "unix" {
		os.Remove(address)
	}
	listener, err := net.Listen(network, address)
	if err != nil {
		return nil, err
	}

	server := &Server{
		listener:  listener,
		registers: make(map[key]*Register),
		conns:     make(map[*conn]bool),
		owners:    make(map[uint32]*conn),
		seen:      make(map[protocol.Command]int),
	}
	server.tomb.Go(server.serve)
	return server, nil
}

func (server *Server) Addr() net.Addr {
	return server.listener.Addr()
}

func (server *Server) serve() error {
	for {
		nc, err := server.listener.Accept()
		if err != nil {
			select {
			case <-server.tomb.Dying():
				return nil
			default:
			}
			return err
		}

		c := &conn{Conn: nc}
		server.mutex.Lock()
		server.conns[c] = true
		server.mutex.Unlock()

		// Raced with Close?
		select {
		case <-server.tomb.Dying():
			c.Close()
		default:
		}

		server.tomb.Go(func() error {
			server.handle(c)
			return nil
		})
	}
}

func (server *Server) handle(c *conn) {
	defer func() {
		server.mutex.Lock()
		delete(server.conns, c)
		for device, owner := range server.owners {
			if owner == c {
				delete(server.owners, device)
			}
		}
		server.mutex.Unlock()
		c.Close()
	}()

	for {
		var msg protocol.Message
		err := protocol.ReadMessage(c, &msg)
		if err != nil {
			return
		}

		resp, ok := server.process(c, &msg)
		if !ok {
			continue
		}
		if err := c.send(resp); err != nil {
			return
		}
	}
}

func (server *Server) process(c *conn, msg *protocol.Message) (*protocol.Message, bool) {
	server.mutex.Lock()
	defer server.mutex.Unlock()

	server.seen[msg.Command] += 1
	if server.silent {
		return nil, false
	}

	resp := *msg
	resp.Result = protocol.ResultSuccess
	resp.Payload = [protocol.PayloadSize]byte{}

	switch msg.Command {
	case protocol.CmdRead:
		value, err := server.load(msg.DeviceId, msg.Address, uint(msg.Length))
		if err != nil {
			resp.Result = protocol.ResultInvalidAddress
			break
		}
		resp.SetValue(value)

	case protocol.CmdWrite:
		err := server.store(msg.DeviceId, msg.Address, uint(msg.Length), msg.Value())
		if err != nil {
			resp.Result = protocol.ResultInvalidAddress
		}

	case protocol.CmdInit:
		server.owners[msg.DeviceId] = c

	case protocol.CmdDeinit:
		delete(server.owners, msg.DeviceId)

	default:
		resp.Result = protocol.ResultError
	}

	if server.Debug {
		log.Printf("model: %s", resp.String())
	}
	return &resp, true
}

// register returns the word holding addr.
// Must be called with the mutex held.
func (server *Server) register(device uint32, addr uint32) *Register {
	k := key{device, addr &^ 7}
	register, ok := server.registers[k]
	if !ok {
		register = new(Register)
		server.registers[k] = register
	}
	return register
}

// load reads size bytes at addr, a word at a time.
// Must be called with the mutex held.
func (server *Server) load(device uint32, addr uint32, size uint) (uint64, error) {
	if widthMask(size) == 0 {
		return 0, InvalidAccess
	}

	var value uint64
	for shift := uint(0); size > 0; {
		offset := uint64(addr % 8)
		n := min(size, 8-uint(offset))
		part, err := server.register(device, addr).Read(offset, n)
		if err != nil {
			return 0, err
		}
		value |= part << shift
		shift += 8 * n
		size -= n
		addr += uint32(n)
	}
	return value, nil
}

// store writes size bytes at addr, a word at a time.
// Must be called with the mutex held.
func (server *Server) store(device uint32, addr uint32, size uint, value uint64) error {
	if widthMask(size) == 0 {
		return InvalidAccess
	}

	for size > 0 {
		offset := uint64(addr % 8)
		n := min(size, 8-uint(offset))
		err := server.register(device, addr).Write(offset, n, value)
		if err != nil {
			return err
		}
		value >>= 8 * n
		size -= n
		addr += uint32(n)
	}
	return nil
}

// Define installs a register with the given masks.
// The offset is rounded down to its word.
func (server *Server) Define(device uint32, offset uint32, register Register) {
	server.mutex.Lock()
	defer server.mutex.Unlock()
	server.registers[key{device, offset &^ 7}] = &register
}

// SetSilent makes the model swallow requests without answering.
func (server *Server) SetSilent(silent bool) {
	server.mutex.Lock()
	defer server.mutex.Unlock()
	server.silent = silent
}

// Seen returns the number of requests received for cmd.
func (server *Server) Seen(cmd protocol.Command) int {
	server.mutex.Lock()
	defer server.mutex.Unlock()
	return server.seen[cmd]
}

// Interrupt pushes an interrupt to the client that initialized
// the device, or to every client if none did.
// It returns the number of clients notified.
func (server *Server) Interrupt(device uint32, irq uint32) int {
	server.mutex.Lock()
	targets := make([]*conn, 0, len(server.conns))
	if owner, ok := server.owners[device]; ok {
		targets = append(targets, owner)
	} else {
		for c := range server.conns {
			targets = append(targets, c)
		}
	}
	server.mutex.Unlock()

	msg := protocol.NewInterrupt(device, irq)
	sent := 0
	for _, c := range targets {
		if c.send(msg) == nil {
			sent += 1
		}
	}
	return sent
}

// Connections is the number of live clients.
func (server *Server) Connections() int {
	server.mutex.Lock()
	defer server.mutex.Unlock()
	return len(server.conns)
}

func (server *Server) Close() error {
	server.tomb.Kill(nil)
	err := server.listener.Close()

	server.mutex.Lock()
	for c := range server.conns {
		c.Close()
	}
	server.mutex.Unlock()

	server.tomb.Wait()
	return err
}
