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

package utils

import (
	"os"
	"strings"
	"syscall"
)

const (
	SigInterrupt = syscall.SIGUSR1
	SigShutdown  = syscall.SIGTERM
	SigReload    = syscall.SIGHUP
)

// The variable controlling log verbosity.
const LogLevelVariable = "ICD3_LOG_LEVEL"

// DebugEnabled is true when ICD3_LOG_LEVEL asks for debug output.
func DebugEnabled() bool {
	return strings.EqualFold(os.Getenv(LogLevelVariable), "DEBUG")
}
