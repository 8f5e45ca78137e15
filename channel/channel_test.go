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
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"regbridge/model"
	"regbridge/protocol"
)

type sinkFunc func(msg *protocol.Message)

func (f sinkFunc) Deliver(msg *protocol.Message) {
	f(msg)
}

func startModel(t *testing.T) (*model.Server, Endpoint) {
	dir, err := os.MkdirTemp("", "rbch")
	if err != nil {
		t.Fatalf("tempdir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	endpoint := Endpoint{Network: "unix", Address: filepath.Join(dir, "model.sock")}
	server, err := model.Listen(endpoint.Network, endpoint.Address)
	if err != nil {
		t.Fatalf("model listen: %v", err)
	}
	t.Cleanup(func() { server.Close() })
	return server, endpoint
}

func TestRoundTrip(t *testing.T) {
	_, endpoint := startModel(t)
	channel := New(Config{Endpoint: endpoint})
	defer channel.Close()

	if err := channel.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}

	write, _ := protocol.NewWrite(1, 0x00, 4, 0xAABBCCDD)
	resp, err := channel.SendAndWait(context.Background(), write)
	if err != nil || resp.Result != protocol.ResultSuccess {
		t.Fatalf("write failed: %v %v", err, resp)
	}

	read, _ := protocol.NewRead(1, 0x00, 4)
	resp, err = channel.SendAndWait(context.Background(), read)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if resp.Value() != 0xAABBCCDD {
		t.Fatalf("expected aabbccdd, got %x", resp.Value())
	}
}

func TestTimeoutBound(t *testing.T) {
	server, endpoint := startModel(t)
	server.SetSilent(true)

	channel := New(Config{Endpoint: endpoint, Timeout: 100 * time.Millisecond})
	defer channel.Close()

	read, _ := protocol.NewRead(1, 0, 4)
	start := time.Now()
	_, err := channel.SendAndWait(context.Background(), read)
	elapsed := time.Since(start)

	if !errors.Is(err, ChannelTimeout) {
		t.Fatalf("expected ChannelTimeout, got %v", err)
	}
	if elapsed < 100*time.Millisecond || elapsed > 150*time.Millisecond {
		t.Fatalf("timeout took %s", elapsed)
	}
}

func TestReconnectAfterTimeout(t *testing.T) {
	server, endpoint := startModel(t)
	server.SetSilent(true)

	channel := New(Config{Endpoint: endpoint, Timeout: 50 * time.Millisecond})
	defer channel.Close()

	write, _ := protocol.NewWrite(2, 0x8, 2, 0xBEEF)
	if _, err := channel.SendAndWait(context.Background(), write); !errors.Is(err, ChannelTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}

	server.SetSilent(false)
	resp, err := channel.SendAndWait(context.Background(), write)
	if err != nil || resp.Result != protocol.ResultSuccess {
		t.Fatalf("expected reconnect to succeed: %v", err)
	}

	read, _ := protocol.NewRead(2, 0x8, 2)
	resp, err = channel.SendAndWait(context.Background(), read)
	if err != nil || resp.Value() != 0xBEEF {
		t.Fatalf("expected beef, got %v (%v)", resp, err)
	}
}

func TestInterruptToSink(t *testing.T) {
	server, endpoint := startModel(t)

	got := make(chan protocol.Message, 1)
	channel := New(Config{
		Endpoint: endpoint,
		Sink: sinkFunc(func(msg *protocol.Message) {
			got <- *msg
		}),
	})
	defer channel.Close()

	if err := channel.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}

	// Wait for the model to see us.
	deadline := time.Now().Add(time.Second)
	for server.Connections() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if server.Interrupt(8, 3) != 1 {
		t.Fatalf("interrupt not sent")
	}

	select {
	case msg := <-got:
		if msg.DeviceId != 8 || msg.Irq() != 3 {
			t.Fatalf("unexpected interrupt %s", msg.String())
		}
	case <-time.After(time.Second):
		t.Fatalf("interrupt not delivered")
	}

	// The request path is unaffected.
	read, _ := protocol.NewRead(8, 0, 4)
	if _, err := channel.SendAndWait(context.Background(), read); err != nil {
		t.Fatalf("read after interrupt: %v", err)
	}
}

func TestClosedAndUnreachable(t *testing.T) {
	_, endpoint := startModel(t)
	channel := New(Config{Endpoint: endpoint})
	channel.Close()

	read, _ := protocol.NewRead(1, 0, 4)
	if _, err := channel.SendAndWait(context.Background(), read); err != ChannelClosed {
		t.Fatalf("expected ChannelClosed, got %v", err)
	}

	missing := New(Config{
		Endpoint: Endpoint{Network: "unix", Address: endpoint.Address + ".missing"},
		Attempts: 2,
	})
	if err := missing.Connect(); !errors.Is(err, ChannelBroken) {
		t.Fatalf("expected ChannelBroken, got %v", err)
	}
}
