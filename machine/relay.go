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

package machine

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"gopkg.in/tomb.v2"

	"regbridge/protocol"
)

// Default per-device queue depth.
const DefaultQueueDepth = 8

type worker struct {
	device uint32

	// Current handler (last subscription wins).
	handler atomic.Pointer[InterruptHandler]

	// Pending interrupts.
	queue chan uint32

	tomb tomb.Tomb
}

//
// Relay --
//
// Routes interrupts from the models to subscribed handlers.
// Each subscribed device has its own worker goroutine, so a
// slow handler only delays its own device. Interrupts for a
// busy device queue up to the configured depth; beyond that
// they are reported on the diagnostics channel (and logged),
// never silently lost. Interrupts for a device without a
// subscription are dropped and reported the same way.
//

type Relay struct {
	mutex sync.Mutex

	depth   int
	workers map[uint32]*worker
	closed  bool

	diagnostics chan Diagnostic

	delivered uint64
	overflows uint64
	dropped   uint64

	// Debugging?
	Debug bool
}

func NewRelay(depth int) *Relay {
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	return &Relay{
		depth:       depth,
		workers:     make(map[uint32]*worker),
		diagnostics: make(chan Diagnostic, 64),
	}
}

// Diagnostics carries undelivered interrupts.
// If nobody reads it, reports are only logged.
func (relay *Relay) Diagnostics() <-chan Diagnostic {
	return relay.diagnostics
}

func (relay *Relay) Delivered() uint64 {
	return atomic.LoadUint64(&relay.delivered)
}

func (relay *Relay) Overflows() uint64 {
	return atomic.LoadUint64(&relay.overflows)
}

func (relay *Relay) Dropped() uint64 {
	return atomic.LoadUint64(&relay.dropped)
}

func (relay *Relay) report(device uint32, irq uint32, err error) {
	diag := Diagnostic{Device: device, Irq: irq, Err: err}
	log.Printf("relay: %s", diag.String())
	select {
	case relay.diagnostics <- diag:
	default:
	}
}

// Subscribe sets the handler for a device.
// A previous handler is replaced; queued interrupts go
// to the new one.
func (relay *Relay) Subscribe(device uint32, handler InterruptHandler) error {
	if handler == nil {
		return fmt.Errorf("relay: nil handler for device %d", device)
	}

	relay.mutex.Lock()
	defer relay.mutex.Unlock()

	if relay.closed {
		return RelayClosed
	}

	w, ok := relay.workers[device]
	if ok {
		w.handler.Store(&handler)
		return nil
	}

	w = &worker{
		device: device,
		queue:  make(chan uint32, relay.depth),
	}
	w.handler.Store(&handler)
	w.tomb.Go(func() error {
		return relay.run(w)
	})
	relay.workers[device] = w
	return nil
}

// Unsubscribe cancels the device's subscription.
// Interrupts still queued are reported as dropped.
func (relay *Relay) Unsubscribe(device uint32) bool {
	relay.mutex.Lock()
	w, ok := relay.workers[device]
	delete(relay.workers, device)
	relay.mutex.Unlock()

	if ok {
		// Don't wait; this may be called from a handler.
		w.tomb.Kill(nil)
	}
	return ok
}

func (relay *Relay) run(w *worker) error {
	for {
		select {
		case irq := <-w.queue:
			relay.invoke(w, irq)
		case <-w.tomb.Dying():
			relay.drain(w)
			return nil
		}
	}
}

// drain reports whatever is left in a dead worker's queue.
// Nothing is queued once the worker has left the table.
func (relay *Relay) drain(w *worker) {
	for {
		select {
		case irq := <-w.queue:
			atomic.AddUint64(&relay.dropped, 1)
			relay.report(w.device, irq, NoSubscription)
		default:
			return
		}
	}
}

func (relay *Relay) invoke(w *worker, irq uint32) {
	defer func() {
		if r := recover(); r != nil {
			relay.report(w.device, irq, fmt.Errorf("%w: %v", HandlerPanic, r))
		}
	}()

	handler := *w.handler.Load()
	if relay.Debug {
		log.Printf("relay: device %d irq %d", w.device, irq)
	}
	handler(w.device, irq)
	atomic.AddUint64(&relay.delivered, 1)
}

// Raise queues an interrupt for the device's handler.
// This never blocks.
func (relay *Relay) Raise(device uint32, irq uint32) error {
	relay.mutex.Lock()
	defer relay.mutex.Unlock()

	w, ok := relay.workers[device]
	if !ok {
		atomic.AddUint64(&relay.dropped, 1)
		relay.report(device, irq, NoSubscription)
		return NoSubscription
	}

	select {
	case w.queue <- irq:
		return nil
	default:
		atomic.AddUint64(&relay.overflows, 1)
		relay.report(device, irq, QueueOverflow)
		return QueueOverflow
	}
}

// Deliver accepts interrupts from a channel.
func (relay *Relay) Deliver(msg *protocol.Message) {
	if msg.Command != protocol.CmdInterrupt {
		return
	}
	relay.Raise(msg.DeviceId, msg.Irq())
}

// Close stops every worker.
func (relay *Relay) Close() error {
	relay.mutex.Lock()
	relay.closed = true
	workers := relay.workers
	relay.workers = make(map[uint32]*worker)
	relay.mutex.Unlock()

	for _, w := range workers {
		w.tomb.Kill(nil)
	}
	for _, w := range workers {
		w.tomb.Wait()
	}
	return nil
}
