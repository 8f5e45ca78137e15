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

//
// Direct register access.
//

type ReadCommand struct {
	// Absolute address.
	Addr uint64 `json:"addr"`

	// Width in bytes.
	Size uint `json:"size"`
}

type ReadResult struct {
	Value uint64 `json:"value"`
}

type WriteCommand struct {
	// Absolute address.
	Addr uint64 `json:"addr"`

	// Width in bytes.
	Size uint `json:"size"`

	// What to write.
	Value uint64 `json:"value"`
}

type ResolveCommand struct {
	Addr uint64 `json:"addr"`
}

type ResolveResult struct {
	Id     uint32 `json:"id"`
	Offset uint32 `json:"offset"`
}

func (rpc *Rpc) Read(cmd *ReadCommand, result *ReadResult) error {
	value, err := rpc.bridge.ReadRegister(cmd.Addr, cmd.Size)
	if err != nil {
		return wrap(err)
	}
	result.Value = value
	return nil
}

func (rpc *Rpc) Write(cmd *WriteCommand, nop *Nop) error {
	return wrap(rpc.bridge.WriteRegister(cmd.Addr, cmd.Value, cmd.Size))
}

func (rpc *Rpc) Resolve(cmd *ResolveCommand, result *ResolveResult) error {
	id, offset, err := rpc.bridge.Resolve(cmd.Addr)
	if err != nil {
		return wrap(err)
	}
	result.Id = id
	result.Offset = offset
	return nil
}
