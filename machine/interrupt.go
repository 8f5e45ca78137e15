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
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"regbridge/utils"
)

// InterruptHandler is called for each interrupt a model raises.
// It runs on the device's relay worker, never on the fault path.
type InterruptHandler func(device uint32, irq uint32)

// Diagnostic reports an interrupt that could not be delivered.
type Diagnostic struct {
	Device uint32
	Irq    uint32
	Err    error
}

func (diag Diagnostic) String() string {
	return fmt.Sprintf("device %d irq %d: %s", diag.Device, diag.Irq, diag.Err.Error())
}

// Where the interface process finds pending interrupts.
const InterruptFilePrefix = "/tmp/icd3_interrupt_"

//
// SignalHandler --
//
// Delivers interrupts to a process as signals. This is for
// drivers that expect interrupts the way they would get
// them from a kernel module: a signal, plus a small file
// naming the device and interrupt (as "device,irq").
//
// pid is evaluated at delivery time; zero discards.
//
func SignalHandler(dir string, pid func() int) InterruptHandler {
	return func(device uint32, irq uint32) {
		target := pid()
		if target <= 0 {
			log.Printf("interrupt: device %d irq %d: no process", device, irq)
			return
		}

		path := fmt.Sprintf("%s%d", InterruptFilePrefix, target)
		if dir != "" {
			path = filepath.Join(dir, filepath.Base(path))
		}
		data := []byte(fmt.Sprintf("%d,%d", device, irq))
		err := os.WriteFile(path, data, 0644)
		if err != nil {
			log.Printf("interrupt: device %d irq %d: %s", device, irq, err.Error())
			return
		}

		err = unix.Kill(target, utils.SigInterrupt)
		if err != nil {
			log.Printf("interrupt: device %d irq %d: signal %d: %s",
				device, irq, target, err.Error())
		}
	}
}
