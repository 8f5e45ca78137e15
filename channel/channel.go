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

package channel

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"regbridge/protocol"
)

// The default model endpoint.
const (
	DefaultNetwork = "unix"
	DefaultAddress = "/tmp/icd3_interface"
	DefaultTimeout = time.Second
)

type Endpoint struct {
	// Network, as understood by net.Dial.
	Network string `json:"network"`

	// Address of the model.
	Address string `json:"address"`
}

func (endpoint Endpoint) String() string {
	return endpoint.Network + ":" + endpoint.Address
}

// Sink receives messages pushed by the model.
// Deliver is called from the reader goroutine and must not block.
type Sink interface {
	Deliver(msg *protocol.Message)
}

type Config struct {
	// Friendly name (for logs).
	Name string

	Endpoint

	// Bound on each request.
	Timeout time.Duration

	// Dial attempts on (re)connect.
	Attempts int

	// Where interrupts go.
	Sink Sink

	// Debugging?
	Debug bool
}

//
// Channel --
//
// A channel is a persistent connection to one model
// instance. At most one request is outstanding at any
// time; the response is always matched to it before the
// next request is written.
//
// If a request fails (timeout, I/O error, or a response
// that does not match) the connection is dropped. There is
// no sequence number on the wire, so this is the only way
// to guarantee that a late response is never paired with
// a newer request. The next request reconnects.

type Channel struct {
	config Config

	// Serializes requests.
	mutex sync.Mutex

	// Protects the fields below.
	// (The reader also takes this on exit).
	state  sync.Mutex
	link   *link
	closed bool
}

func New(config Config) *Channel {
	if config.Network == "" {
		config.Network = DefaultNetwork
	}
	if config.Address == "" {
		config.Address = DefaultAddress
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Attempts <= 0 {
		config.Attempts = 1
	}
	if config.Name == "" {
		config.Name = config.Endpoint.String()
	}
	return &Channel{config: config}
}

func (channel *Channel) Name() string {
	return channel.config.Name
}

func (channel *Channel) Endpoint() Endpoint {
	return channel.config.Endpoint
}

func (channel *Channel) Timeout() time.Duration {
	return channel.config.Timeout
}

// Connect establishes the connection if not already up.
func (channel *Channel) Connect() error {
	channel.mutex.Lock()
	defer channel.mutex.Unlock()

	_, err := channel.connected()
	return err
}

func (channel *Channel) dial() (net.Conn, error) {
	dialer := net.Dialer{Timeout: channel.config.Timeout}

	var err error
	for attempt := 0; attempt < channel.config.Attempts; attempt += 1 {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * 10 * time.Millisecond)
		}
		var conn net.Conn
		conn, err = dialer.Dial(channel.config.Network, channel.config.Address)
		if err == nil {
			return conn, nil
		}
	}
	return nil, fmt.Errorf("%w: dial %s: %v", ChannelBroken, channel.config.Endpoint, err)
}

// connected returns the live link, dialing if necessary.
// Must be called with the request mutex held.
func (channel *Channel) connected() (*link, error) {
	channel.state.Lock()
	if channel.closed {
		channel.state.Unlock()
		return nil, ChannelClosed
	}
	current := channel.link
	channel.state.Unlock()

	if current != nil && current.alive() {
		return current, nil
	}
	if current != nil {
		channel.drop(current)
	}

	conn, err := channel.dial()
	if err != nil {
		return nil, err
	}

	fresh := newLink(channel.config.Name, conn, channel.config.Sink)

	channel.state.Lock()
	defer channel.state.Unlock()
	if channel.closed {
		fresh.stop()
		return nil, ChannelClosed
	}
	channel.link = fresh

	if channel.config.Debug {
		log.Printf("%s: connected to %s", channel.config.Name, channel.config.Endpoint)
	}
	return fresh, nil
}

func (channel *Channel) drop(dead *link) {
	channel.state.Lock()
	if channel.link == dead {
		channel.link = nil
	}
	channel.state.Unlock()

	dead.stop()
}

// SendAndWait writes msg and blocks until the matching
// response arrives, the channel timeout elapses or ctx is done.
// Results other than SUCCESS are returned in the response;
// the caller decides what they mean.
func (channel *Channel) SendAndWait(
	ctx context.Context,
	msg *protocol.Message) (*protocol.Message, error) {

	channel.mutex.Lock()
	defer channel.mutex.Unlock()

	current, err := channel.connected()
	if err != nil {
		return nil, err
	}

	resp, err := current.roundtrip(ctx, msg, channel.config.Timeout)
	if err == nil && !msg.Matches(resp) {
		err = fmt.Errorf("%w: sent %s, got %s", ResponseMismatch, msg, resp)
	}
	if err != nil {
		// Never reuse a connection with an unknown
		// number of responses in flight.
		channel.drop(current)
		if channel.config.Debug {
			log.Printf("%s: %s failed: %s", channel.config.Name, msg.Command, err.Error())
		}
		return nil, err
	}

	if channel.config.Debug {
		log.Printf("%s: %s -> %s", channel.config.Name, msg, resp.Result)
	}
	return resp, nil
}

// Close tears down the connection.
// Subsequent requests return ChannelClosed.
func (channel *Channel) Close() error {
	channel.state.Lock()
	channel.closed = true
	current := channel.link
	channel.link = nil
	channel.state.Unlock()

	if current != nil {
		current.stop()
	}
	return nil
}
