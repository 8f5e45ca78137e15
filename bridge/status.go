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
	"errors"

	"regbridge/channel"
	"regbridge/decode"
	"regbridge/machine"
	"regbridge/platform"
	"regbridge/protocol"
)

// Status is the result code reported to external callers.
type Status int

const (
	Success Status = iota
	ErrorOverlap
	ErrorDuplicateId
	ErrorNotFound
	ErrorDecode
	ErrorTransport
	ErrorTimeout
	ErrorInvalidAddress
	ErrorInvalidArgument
	ErrorNotInitialized
	ErrorUnknown
)

var statusNames = []string{
	"SUCCESS",
	"ERROR_OVERLAP",
	"ERROR_DUPLICATE_ID",
	"ERROR_NOT_FOUND",
	"ERROR_DECODE",
	"ERROR_TRANSPORT",
	"ERROR_TIMEOUT",
	"ERROR_INVALID_ADDRESS",
	"ERROR_INVALID_ARGUMENT",
	"ERROR_NOT_INITIALIZED",
	"ERROR",
}

func (status Status) String() string {
	if status < 0 || int(status) >= len(statusNames) {
		return statusNames[ErrorUnknown]
	}
	return statusNames[status]
}

// StatusOf maps an error from any bridge operation to its status.
func StatusOf(err error) Status {
	if err == nil {
		return Success
	}

	var result *protocol.ModelError
	if errors.As(err, &result) {
		switch result.Result {
		case protocol.ResultTimeout:
			return ErrorTimeout
		case protocol.ResultInvalidAddress:
			return ErrorInvalidAddress
		}
		return ErrorTransport
	}

	switch {
	case errors.Is(err, machine.DeviceOverlap),
		errors.Is(err, platform.RegionBusy):
		return ErrorOverlap
	case errors.Is(err, machine.DeviceDuplicate):
		return ErrorDuplicateId
	case errors.Is(err, machine.DeviceNotFound):
		return ErrorNotFound
	case errors.Is(err, decode.DecodeFailed):
		return ErrorDecode
	case errors.Is(err, channel.ChannelTimeout):
		return ErrorTimeout
	case errors.Is(err, channel.ChannelBroken),
		errors.Is(err, channel.ChannelClosed),
		errors.Is(err, channel.ResponseMismatch),
		errors.Is(err, InitRejected):
		return ErrorTransport
	case errors.Is(err, machine.InvalidAddress):
		return ErrorInvalidAddress
	case errors.Is(err, machine.DeviceEmpty),
		errors.Is(err, machine.DeviceTooLarge),
		errors.Is(err, protocol.InvalidLength):
		return ErrorInvalidArgument
	case errors.Is(err, NotInitialized):
		return ErrorNotInitialized
	}
	return ErrorUnknown
}
