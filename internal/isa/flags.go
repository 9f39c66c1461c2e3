/*
 * Copyright 2024 Forge Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package isa

import (
	"fmt"
	"os"
)

// OptLevel selects how much of the pass pipeline runs.
type OptLevel uint8

const (
	// OptDefault runs the rewrite passes but no loop optimizations.
	OptDefault OptLevel = iota

	// OptFastest compiles with the minimum mandatory pass set.
	OptFastest

	// OptBest runs every pass, including loop analysis, LICM, GVN and
	// instruction shrinking.
	OptBest
)

func (self OptLevel) String() string {
	switch self {
	case OptFastest:
		return "fastest"
	case OptBest:
		return "best"
	default:
		return "default"
	}
}

// Flags is the immutable pass-gating configuration carried by a target.
// One Flags value may be shared read-only by any number of concurrent
// compilation contexts.
type Flags struct {
	Opt            OptLevel
	EnableVerifier bool
	EnableNaNCanon bool
}

// DefaultFlags returns the baseline configuration. The verifier can be
// force-enabled for a whole process with the FORGE_ENABLE_VERIFIER
// environment variable, which mirrors how debugging builds are usually run.
func DefaultFlags() Flags {
	return Flags{
		Opt:            OptDefault,
		EnableVerifier: os.Getenv("FORGE_ENABLE_VERIFIER") != "",
	}
}

func (self Flags) String() string {
	return fmt.Sprintf("opt=%s verify=%v nan_canon=%v", self.Opt, self.EnableVerifier, self.EnableNaNCanon)
}
