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
	"fmt"

	"regbridge/bridge"
)

//
// Rpc --
//
// This is basic state provided to the
// Rpc interface. All Rpc functions have
// access to this state (but nothing else).
//

type Rpc struct {
	bridge *bridge.Bridge
}

func NewRpc(b *bridge.Bridge) *Rpc {
	return &Rpc{bridge: b}
}

//
// The Noop --
//
// Many of our operations do not require
// a specific parameter or a specific return.
//
type Nop struct{}

// Errors carry their status code in front, so that
// clients can act on them without parsing messages.
func wrap(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", bridge.StatusOf(err), err)
}
