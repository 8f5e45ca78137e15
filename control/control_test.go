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

package control

import (
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"regbridge/bridge"
	"regbridge/channel"
	"regbridge/machine"
	"regbridge/model"
	"regbridge/platform"
)

type fakeSpace struct {
	mutex sync.Mutex
	pages map[platform.Paddr]uint64
}

func (space *fakeSpace) Reserve(base platform.Paddr, size uint64) error {
	space.mutex.Lock()
	defer space.mutex.Unlock()
	space.pages[base] = size
	return nil
}

func (space *fakeSpace) Release(base platform.Paddr, size uint64) error {
	space.mutex.Lock()
	defer space.mutex.Unlock()
	delete(space.pages, base)
	return nil
}

func TestControl(t *testing.T) {
	dir := t.TempDir()

	server, err := model.Listen("unix", filepath.Join(dir, "model.sock"))
	if err != nil {
		t.Fatalf("model: %v", err)
	}
	defer server.Close()

	b := bridge.New(bridge.Config{
		Endpoint: channel.Endpoint{Network: "unix", Address: filepath.Join(dir, "model.sock")},
		Space:    &fakeSpace{pages: make(map[platform.Paddr]uint64)},
	})
	if err := b.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	defer b.Deinit()

	socket := filepath.Join(dir, "control.sock")
	control, err := NewControl("unix", socket, b)
	if err != nil {
		t.Fatalf("control: %v", err)
	}
	defer control.Close()

	client, err := Dial("unix", socket)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	var nop Nop
	info := machine.DeviceInfo{Name: "uart", Id: 1, Base: 0x40000000, Size: 0x1000}
	if err := client.Call("Rpc.Register", &info, &nop); err != nil {
		t.Fatalf("register: %v", err)
	}

	overlap := machine.DeviceInfo{Id: 2, Base: 0x40000800, Size: 0x1000}
	err = client.Call("Rpc.Register", &overlap, &nop)
	if err == nil || !strings.HasPrefix(err.Error(), "ERROR_OVERLAP") {
		t.Fatalf("expected ERROR_OVERLAP, got %v", err)
	}

	write := WriteCommand{Addr: 0x40000000, Size: 4, Value: 0xAABBCCDD}
	if err := client.Call("Rpc.Write", &write, &nop); err != nil {
		t.Fatalf("write: %v", err)
	}
	var read ReadResult
	if err := client.Call("Rpc.Read", &ReadCommand{Addr: 0x40000000, Size: 4}, &read); err != nil {
		t.Fatalf("read: %v", err)
	}
	if read.Value != 0xAABBCCDD {
		t.Fatalf("expected aabbccdd, got %x", read.Value)
	}

	var resolved ResolveResult
	if err := client.Call("Rpc.Resolve", &ResolveCommand{Addr: 0x40000010}, &resolved); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Id != 1 || resolved.Offset != 0x10 {
		t.Fatalf("unexpected resolution %+v", resolved)
	}

	var devices DevicesResult
	if err := client.Call("Rpc.Devices", &nop, &devices); err != nil {
		t.Fatalf("devices: %v", err)
	}
	if len(devices.Devices) != 1 || devices.Devices[0].Name != "uart" {
		t.Fatalf("unexpected devices %+v", devices)
	}

	var pid PidResult
	if err := client.Call("Rpc.Pid", &nop, &pid); err != nil || pid.Pid != os.Getpid() {
		t.Fatalf("pid: %d (%v)", pid.Pid, err)
	}

	// Direct accesses never trap.
	var stats StatsResult
	if err := client.Call("Rpc.Stats", &nop, &stats); err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Handled != 0 || stats.Failed != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	if err := client.Call("Rpc.Unregister", &UnregisterCommand{Id: 1}, &nop); err != nil {
		t.Fatalf("unregister: %v", err)
	}
	err = client.Call("Rpc.Unregister", &UnregisterCommand{Id: 1}, &nop)
	if err == nil || !strings.HasPrefix(err.Error(), "ERROR_NOT_FOUND") {
		t.Fatalf("expected ERROR_NOT_FOUND, got %v", err)
	}
}

func TestBadHeader(t *testing.T) {
	dir := t.TempDir()
	b := bridge.New(bridge.Config{Space: &fakeSpace{pages: make(map[platform.Paddr]uint64)}})

	socket := filepath.Join(dir, "control.sock")
	control, err := NewControl("unix", socket, b)
	if err != nil {
		t.Fatalf("control: %v", err)
	}
	defer control.Close()

	conn, err := net.Dial("unix", socket)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.Write([]byte("HELLO RPC\n"))
	buf := make([]byte, 64)
	n, _ := conn.Read(buf)
	if string(buf[:n]) != InvalidHeader.Error() {
		t.Fatalf("unexpected reply %q", string(buf[:n]))
	}

	if _, err := NewControl("unix", "", b); err != InvalidControlSocket {
		t.Fatalf("expected InvalidControlSocket, got %v", err)
	}
}
