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
	"regbridge/bridge"
)

//
// Process information.
//

type PidResult struct {
	Pid int `json:"pid"`
}

type StatsResult struct {
	bridge.Stats
}

func (rpc *Rpc) Pid(nop *Nop, result *PidResult) error {
	result.Pid = rpc.bridge.GetInterfaceProcessPid()
	return nil
}

func (rpc *Rpc) Stats(nop *Nop, result *StatsResult) error {
	result.Stats = rpc.bridge.Stats()
	return nil
}
