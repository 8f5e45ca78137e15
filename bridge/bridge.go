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

package bridge

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"regbridge/channel"
	"regbridge/decode"
	"regbridge/fault"
	"regbridge/machine"
	"regbridge/platform"
	"regbridge/protocol"
	"regbridge/utils"
)

type Config struct {
	// Model used by RegisterDevice().
	Endpoint channel.Endpoint

	// Bound on every model request.
	Timeout time.Duration

	// Dial attempts per (re)connect.
	Attempts int

	// Per-device interrupt queue.
	QueueDepth int

	// Interface pid file (empty for none).
	PidFile string

	// Where regions are protected.
	// Defaults to this process.
	Space platform.AddressSpace

	// Defaults to x86.
	Decoder decode.Decoder

	// Debugging?
	Debug bool
}

// Everything that exists between Init() and Deinit().
type core struct {
	registry    *machine.Registry
	protector   *platform.Protector
	relay       *machine.Relay
	interceptor *fault.Interceptor
}

//
// Bridge --
//
// Ties the pieces together: devices are registered here,
// which protects their window and connects their model;
// accesses arrive either through traps (HandleFault) or
// directly (ReadRegister, WriteRegister) and take the same
// path to the model.
//

type Bridge struct {
	config Config

	// Serializes lifecycle and registration.
	mutex sync.Mutex

	// Nil when not initialized.
	core atomic.Pointer[core]

	// The traced driver, if any.
	tracee atomic.Pointer[platform.Tracee]
}

func New(config Config) *Bridge {
	if config.Endpoint.Network == "" {
		config.Endpoint.Network = channel.DefaultNetwork
	}
	if config.Endpoint.Address == "" {
		config.Endpoint.Address = channel.DefaultAddress
	}
	if config.Timeout <= 0 {
		config.Timeout = channel.DefaultTimeout
	}
	if config.QueueDepth <= 0 {
		config.QueueDepth = machine.DefaultQueueDepth
	}
	if config.Space == nil {
		config.Space = platform.LocalSpace{}
	}
	if config.Decoder == nil {
		config.Decoder = decode.X86{}
	}
	if utils.DebugEnabled() {
		config.Debug = true
	}
	return &Bridge{config: config}
}

func (bridge *Bridge) Init() error {
	bridge.mutex.Lock()
	defer bridge.mutex.Unlock()

	if bridge.core.Load() != nil {
		return AlreadyInitialized
	}

	c := &core{
		registry:  machine.NewRegistry(),
		protector: platform.NewProtector(bridge.config.Space),
		relay:     machine.NewRelay(bridge.config.QueueDepth),
	}
	c.relay.Debug = bridge.config.Debug
	c.interceptor = fault.NewInterceptor(bridge.config.Decoder, &accessor{bridge, c})
	c.interceptor.Debug = bridge.config.Debug

	err := writePidFile(bridge.config.PidFile, bridge.GetInterfaceProcessPid())
	if err != nil {
		log.Printf("bridge: pid file: %s", err.Error())
	}

	bridge.core.Store(c)
	if bridge.config.Debug {
		log.Printf("bridge: initialized (model %s)", bridge.config.Endpoint)
	}
	return nil
}

func (bridge *Bridge) Deinit() error {
	bridge.mutex.Lock()
	defer bridge.mutex.Unlock()

	c := bridge.core.Load()
	if c == nil {
		return NotInitialized
	}
	bridge.core.Store(nil)

	for _, device := range c.registry.Clear() {
		bridge.teardown(c, device)
	}
	c.relay.Close()
	err := c.protector.Close()

	removePidFile(bridge.config.PidFile)
	if bridge.config.Debug {
		log.Printf("bridge: deinitialized")
	}
	return err
}

func (bridge *Bridge) current() (*core, error) {
	c := bridge.core.Load()
	if c == nil {
		return nil, NotInitialized
	}
	return c, nil
}

func (bridge *Bridge) RegisterDevice(id uint32, base uint64, size uint64) error {
	return bridge.RegisterDeviceAt(id, base, size, bridge.config.Endpoint)
}

func (bridge *Bridge) RegisterDeviceAt(
	id uint32,
	base uint64,
	size uint64,
	endpoint channel.Endpoint) error {

	return bridge.Register(machine.DeviceInfo{
		Id:       id,
		Base:     base,
		Size:     size,
		Endpoint: endpoint,
	})
}

// Register adds a device described by info.
// The window is protected and the model connected and
// initialized before the device becomes visible.
func (bridge *Bridge) Register(info machine.DeviceInfo) error {
	bridge.mutex.Lock()
	defer bridge.mutex.Unlock()

	c, err := bridge.current()
	if err != nil {
		return err
	}

	device := machine.NewDevice(info)
	err = c.registry.Check(device.Id, device.Start, device.Size)
	if err != nil {
		return err
	}

	if info.Network == "" {
		info.Network = bridge.config.Endpoint.Network
	}
	if info.Address == "" {
		info.Address = bridge.config.Endpoint.Address
	}

	_, err = c.protector.ReserveAndProtect(device.Start, device.Size)
	if err != nil {
		return err
	}

	device.Channel = channel.New(channel.Config{
		Name:     device.Name(),
		Endpoint: info.Endpoint,
		Timeout:  bridge.config.Timeout,
		Attempts: bridge.config.Attempts,
		Sink:     c.relay,
		Debug:    device.Debug || bridge.config.Debug,
	})
	device.Debug = device.Debug || bridge.config.Debug

	err = bridge.initDevice(device)
	if err == nil {
		err = c.registry.Add(device)
	}
	if err != nil {
		device.Channel.Close()
		c.protector.Release(device.Start)
		return err
	}

	log.Printf("%s: registered at %x (size %x, model %s)",
		device.Name(), device.Start, device.Size, info.Endpoint)
	return nil
}

func (bridge *Bridge) initDevice(device *machine.Device) error {
	resp, err := device.Channel.SendAndWait(context.Background(), protocol.NewInit(device.Id))
	if err != nil {
		return err
	}
	if resp.Result != protocol.ResultSuccess {
		return fmt.Errorf("%w: %s", InitRejected, resp.Result)
	}
	return nil
}

func (bridge *Bridge) UnregisterDevice(id uint32) error {
	bridge.mutex.Lock()
	defer bridge.mutex.Unlock()

	c, err := bridge.current()
	if err != nil {
		return err
	}

	device, err := c.registry.Remove(id)
	if err != nil {
		return err
	}
	return bridge.teardown(c, device)
}

// teardown releases everything a removed device held.
func (bridge *Bridge) teardown(c *core, device *machine.Device) error {
	c.relay.Unsubscribe(device.Id)

	resp, err := device.Channel.SendAndWait(context.Background(), protocol.NewDeinit(device.Id))
	if err != nil {
		log.Printf("%s: deinit: %s", device.Name(), err.Error())
	} else if resp.Result != protocol.ResultSuccess {
		log.Printf("%s: deinit: %s", device.Name(), resp.Result)
	}
	device.Channel.Close()

	err = c.protector.Release(device.Start)
	if err != nil {
		log.Printf("%s: releasing region: %s", device.Name(), err.Error())
	}

	log.Printf("%s: unregistered", device.Name())
	return err
}

// access performs one register access.
// Both traps and the direct API end up here.
func (bridge *Bridge) access(
	c *core,
	addr platform.Paddr,
	width uint,
	write bool,
	value uint64) (uint64, error) {

	if !protocol.ValidWidth(width) {
		return 0, protocol.InvalidLength
	}
	device, offset, err := c.registry.ResolveRange(addr, width)
	if err != nil {
		return 0, err
	}

	var msg *protocol.Message
	if write {
		msg, err = protocol.NewWrite(device.Id, offset, width, value)
	} else {
		msg, err = protocol.NewRead(device.Id, offset, width)
	}
	if err != nil {
		return 0, err
	}

	resp, err := device.Channel.SendAndWait(context.Background(), msg)
	if err != nil {
		return 0, err
	}
	if err := resp.Result.Err(); err != nil {
		return 0, err
	}

	if write {
		if device.IsDebugging() {
			log.Printf("%s: write %x <- %x (%d)", device.Name(), offset, value, width)
		}
		return 0, nil
	}
	value = resp.Value()
	if device.IsDebugging() {
		log.Printf("%s: read %x -> %x (%d)", device.Name(), offset, value, width)
	}
	return value, nil
}

func (bridge *Bridge) ReadRegister(addr uint64, size uint) (uint64, error) {
	c, err := bridge.current()
	if err != nil {
		return 0, err
	}
	return bridge.access(c, platform.Paddr(addr), size, false, 0)
}

func (bridge *Bridge) WriteRegister(addr uint64, value uint64, size uint) error {
	c, err := bridge.current()
	if err != nil {
		return err
	}
	_, err = bridge.access(c, platform.Paddr(addr), size, true, value)
	return err
}

// RegisterInterruptHandler subscribes handler to the device's
// interrupts, replacing any previous handler.
func (bridge *Bridge) RegisterInterruptHandler(id uint32, handler machine.InterruptHandler) error {
	// Serialized with UnregisterDevice, which cancels subscriptions.
	bridge.mutex.Lock()
	defer bridge.mutex.Unlock()

	c, err := bridge.current()
	if err != nil {
		return err
	}
	if _, ok := c.registry.Lookup(id); !ok {
		return machine.DeviceNotFound
	}
	return c.relay.Subscribe(id, handler)
}

// RegisterSignalHandler delivers the device's interrupts as
// signals to the interface process.
func (bridge *Bridge) RegisterSignalHandler(id uint32) error {
	return bridge.RegisterInterruptHandler(id, machine.SignalHandler("", bridge.GetInterfaceProcessPid))
}

// Diagnostics reports interrupts that could not be delivered.
func (bridge *Bridge) Diagnostics() (<-chan machine.Diagnostic, error) {
	c, err := bridge.current()
	if err != nil {
		return nil, err
	}
	return c.relay.Diagnostics(), nil
}

// GetInterfaceProcessPid is the process performing register
// accesses: the traced driver if there is one, else us.
func (bridge *Bridge) GetInterfaceProcessPid() int {
	if tracee := bridge.tracee.Load(); tracee != nil {
		if pid := tracee.Pid(); pid > 0 {
			return pid
		}
	}
	return os.Getpid()
}

func (bridge *Bridge) Resolve(addr uint64) (uint32, uint32, error) {
	c, err := bridge.current()
	if err != nil {
		return 0, 0, err
	}
	device, offset, ok := c.registry.Resolve(platform.Paddr(addr))
	if !ok {
		return 0, 0, machine.InvalidAddress
	}
	return device.Id, offset, nil
}

func (bridge *Bridge) Devices() ([]machine.DeviceInfo, error) {
	c, err := bridge.current()
	if err != nil {
		return nil, err
	}
	devices := c.registry.Devices()
	infos := make([]machine.DeviceInfo, 0, len(devices))
	for _, device := range devices {
		infos = append(infos, device.Info())
	}
	return infos, nil
}

// Attach moves all protected regions into space.
// Regions registered later are protected there as well.
func (bridge *Bridge) Attach(space platform.AddressSpace) error {
	c, err := bridge.current()
	if err != nil {
		return err
	}
	return c.protector.Attach(space)
}

// HandleFault implements platform.FaultHandler.
func (bridge *Bridge) HandleFault(trap *platform.Trap) error {
	c := bridge.core.Load()
	if c == nil {
		return platform.NotHandled
	}
	return c.interceptor.HandleFault(trap)
}

// Trace runs cmd as the driver, with every registered region
// protected inside it, and services its traps until it exits.
// Returns the driver's exit status.
func (bridge *Bridge) Trace(cmd *exec.Cmd) (int, error) {
	c, err := bridge.current()
	if err != nil {
		return -1, err
	}

	tracee := platform.NewTracee(cmd)
	tracee.Debug = bridge.config.Debug
	tracee.Started = func(pid int) {
		log.Printf("bridge: driver %d started", pid)
		err := writePidFile(bridge.config.PidFile, pid)
		if err != nil {
			log.Printf("bridge: pid file: %s", err.Error())
		}
	}
	if !bridge.tracee.CompareAndSwap(nil, tracee) {
		return -1, platform.TraceeRunning
	}
	defer bridge.tracee.Store(nil)

	err = c.protector.Attach(tracee)
	if err != nil {
		return -1, err
	}
	for _, region := range c.protector.Regions() {
		log.Printf("bridge: protecting [%x, %x) in driver", region.Start, region.End())
	}

	status, err := tracee.Run(bridge)

	// Back to protecting ourselves.
	attach_err := c.protector.Attach(bridge.config.Space)
	if attach_err != nil {
		log.Printf("bridge: reattaching: %s", attach_err.Error())
	}
	write_err := writePidFile(bridge.config.PidFile, os.Getpid())
	if write_err != nil {
		log.Printf("bridge: pid file: %s", write_err.Error())
	}
	return status, err
}

// Stats are the bridge counters.
type Stats struct {
	// Traps completed and failed.
	Handled uint64 `json:"handled"`
	Failed  uint64 `json:"failed"`

	// Interrupts delivered, overflowed and dropped
	// for want of a subscription.
	Interrupts uint64 `json:"interrupts"`
	Overflows  uint64 `json:"overflows"`
	Dropped    uint64 `json:"dropped"`
}

func (bridge *Bridge) Stats() Stats {
	c := bridge.core.Load()
	if c == nil {
		return Stats{}
	}
	return Stats{
		Handled:    c.interceptor.Handled(),
		Failed:     c.interceptor.Failed(),
		Interrupts: c.relay.Delivered(),
		Overflows:  c.relay.Overflows(),
		Dropped:    c.relay.Dropped(),
	}
}

// accessor is the fault.Accessor for one core.
type accessor struct {
	bridge *Bridge
	core   *core
}

func (a *accessor) Owns(addr platform.Paddr) bool {
	return a.core.protector.Covers(addr)
}

func (a *accessor) Resolve(addr platform.Paddr, width uint) error {
	if !protocol.ValidWidth(width) {
		return protocol.InvalidLength
	}
	_, _, err := a.core.registry.ResolveRange(addr, width)
	return err
}

func (a *accessor) Load(addr platform.Paddr, width uint) (uint64, error) {
	return a.bridge.access(a.core, addr, width, false, 0)
}

func (a *accessor) Store(addr platform.Paddr, width uint, value uint64) error {
	_, err := a.bridge.access(a.core, addr, width, true, value)
	return err
}
