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

package protocol

import (
	"errors"
	"fmt"
)

// Codec errors.
var UnknownCommand = errors.New("Unknown command?")
var UnknownResult = errors.New("Unknown result?")
var InvalidLength = errors.New("Invalid access length!")
var ShortBuffer = errors.New("Short message buffer!")

// A model answered with something other than SUCCESS.
type ModelError struct {
	Result Result
}

func (err *ModelError) Error() string {
	return fmt.Sprintf("Model returned %s", err.Result)
}
