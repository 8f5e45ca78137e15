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
	"log"
	"os"
	"os/exec"

	"regbridge/bridge"
	"regbridge/machine"
)

// Loop runs the driver under the bridge until it exits
// (or ctx is cancelled, which kills it).
func Loop(ctx context.Context, b *bridge.Bridge, args []string) (int, error) {
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()

	log.Printf("Driver running...")
	status, err := b.Trace(cmd)
	if err != nil {
		return status, err
	}
	if ctx.Err() != nil {
		return status, DriverKilled
	}

	log.Printf("Driver exited (%d).", status)
	return status, nil
}

// Report logs interrupts that could not be delivered.
func Report(ctx context.Context, diagnostics <-chan machine.Diagnostic) error {
	for {
		select {
		case diag := <-diagnostics:
			log.Printf("Interrupt lost: %s", diag.String())
		case <-ctx.Done():
			return nil
		}
	}
}
