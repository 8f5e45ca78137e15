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

// Command regecho runs a pass-through register model.
//
// Every write is stored and returned by later reads. Lines of
// the form "irq <device> <irq>" on stdin push interrupts to
// the connected bridge.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"

	"regbridge/channel"
	"regbridge/model"
	"regbridge/utils"
)

var network = flag.String("network", channel.DefaultNetwork, "listen network")
var address = flag.String("address", channel.DefaultAddress, "listen address")
var registers = flag.String("registers", "", "register definitions (JSON)")
var debug = flag.Bool("debug", false, "log every request")

// A register with masks, as found in the definitions file.
type definition struct {
	Device uint32 `json:"device"`
	Offset uint32 `json:"offset"`
	model.Register
}

func define(server *model.Server, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	var definitions []definition
	err = utils.NewDecoder(file).Decode(&definitions)
	if err != nil {
		return err
	}
	for _, def := range definitions {
		server.Define(def.Device, def.Offset, def.Register)
	}
	log.Printf("Defined %d registers.", len(definitions))
	return nil
}

func commands(server *model.Server) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var device, irq uint32
		_, err := fmt.Sscanf(line, "irq %d %d", &device, &irq)
		if err != nil {
			log.Printf("Bad command %q: %s", line, err.Error())
			continue
		}
		n := server.Interrupt(device, irq)
		log.Printf("Interrupt %d:%d sent to %d clients.", device, irq, n)
	}
}

func main() {
	flag.Parse()

	server, err := model.Listen(*network, *address)
	if err != nil {
		log.Fatal(err)
	}
	defer server.Close()
	server.Debug = *debug || utils.DebugEnabled()

	if *registers != "" {
		err = define(server, *registers)
		if err != nil {
			log.Fatal(err)
		}
	}
	log.Printf("Model listening on %s:%s.", *network, *address)

	go commands(server)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, utils.SigShutdown, os.Interrupt)
	<-signals
	log.Printf("Shutdown.")
}
