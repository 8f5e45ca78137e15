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

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"regbridge/bridge"
	"regbridge/channel"
	"regbridge/control"
	"regbridge/machine"
	"regbridge/utils"
)

// Device state.
var devices = flag.String("devices", "", "device file (JSON)")

// Our control server.
var control_path = flag.String("control", "", "control socket")

// Model parameters.
var model = flag.String("model",
	channel.DefaultNetwork+":"+channel.DefaultAddress,
	"default model endpoint (network:address)")
var timeout = flag.Duration("timeout", channel.DefaultTimeout, "model request timeout")
var attempts = flag.Int("attempts", 3, "model connection attempts")

// Interrupt parameters.
var queue = flag.Int("queue", machine.DefaultQueueDepth, "interrupt queue per device")
var signals = flag.Bool("signals", false, "deliver interrupts as signals")

// Interface parameters.
var pidfile = flag.String("pidfile", bridge.DefaultPidFile, "interface pid file")

// Debug parameters.
var debug = flag.Bool("debug", false, "devices start debugging")
var freakout = flag.Bool("panic", false, "panic on fatal error")

func die(err error) {
	if *freakout {
		panic(err)
	}
	log.Fatal(err)
}

func parseEndpoint(value string) (channel.Endpoint, error) {
	parts := strings.SplitN(value, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return channel.Endpoint{}, fmt.Errorf("%w: %q", InvalidEndpoint, value)
	}
	return channel.Endpoint{Network: parts[0], Address: parts[1]}, nil
}

// load registers every device in the device file.
// Devices already registered are left alone.
func load(b *bridge.Bridge, path string) error {
	if path == "" {
		return nil
	}
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	infos, err := machine.LoadDevices(file)
	if err != nil {
		return err
	}

	for _, info := range infos {
		if _, _, err := b.Resolve(info.Base); err == nil {
			continue
		}
		info.Debug = info.Debug || *debug
		err = b.Register(info)
		if err != nil {
			return fmt.Errorf("%s: %w", info.Name, err)
		}
		if *signals {
			err = b.RegisterSignalHandler(info.Id)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func main() {
	// Parse all command line options.
	// Anything after the options is the driver.
	flag.Parse()

	status, err := run(flag.Args())
	if err != nil {
		die(err)
	}
	os.Exit(status)
}

func run(args []string) (int, error) {
	endpoint, err := parseEndpoint(*model)
	if err != nil {
		return -1, err
	}

	b := bridge.New(bridge.Config{
		Endpoint:   endpoint,
		Timeout:    *timeout,
		Attempts:   *attempts,
		QueueDepth: *queue,
		PidFile:    *pidfile,
		Debug:      *debug || utils.DebugEnabled(),
	})
	err = b.Init()
	if err != nil {
		return -1, err
	}
	defer b.Deinit()

	// Load all devices.
	err = load(b, *devices)
	if err != nil {
		return -1, err
	}

	// Create our RPC server.
	if *control_path != "" {
		server, err := control.NewControl("unix", *control_path, b)
		if err != nil {
			return -1, err
		}
		defer server.Close()
	}

	// The driver may leave the terminal in any state.
	stdin := int(os.Stdin.Fd())
	if term.IsTerminal(stdin) {
		state, err := term.GetState(stdin)
		if err == nil {
			defer term.Restore(stdin, state)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	group, ctx := errgroup.WithContext(ctx)

	diagnostics, err := b.Diagnostics()
	if err != nil {
		return -1, err
	}
	group.Go(func() error {
		return Report(ctx, diagnostics)
	})

	// Run the driver, if we have one.
	status := 0
	if len(args) > 0 {
		group.Go(func() error {
			var err error
			status, err = Loop(ctx, b, args)
			cancel()
			return err
		})
	}

	// Wait until we get a TERM signal, or the driver is done.
	// If we receive a HUP signal, then we reload the device
	// file and register anything new.
	incoming := make(chan os.Signal, 1)
	signal.Notify(incoming, utils.SigShutdown, utils.SigReload, os.Interrupt)
	defer signal.Stop(incoming)

	group.Go(func() error {
		for {
			select {
			case sig := <-incoming:
				if sig == utils.SigReload {
					err := load(b, *devices)
					if err != nil {
						log.Printf("Reload failed: %s", err.Error())
					}
					continue
				}
				log.Printf("Shutdown.")
				cancel()
				return nil

			case <-ctx.Done():
				return nil
			}
		}
	})

	err = group.Wait()

	stats := b.Stats()
	log.Printf("Traps: %d handled, %d failed. Interrupts: %d delivered, %d overflowed, %d dropped.",
		stats.Handled, stats.Failed, stats.Interrupts, stats.Overflows, stats.Dropped)

	if err == DriverKilled {
		err = nil
	}
	return status, err
}
