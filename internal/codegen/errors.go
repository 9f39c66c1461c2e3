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

package codegen

import (
	"fmt"
	"strings"

	"github.com/forgecc/forge/internal/ir"
)

// Violation is one structural or location-assignment inconsistency found by
// the verifier.
type Violation struct {
	Block ir.Block
	Instr int // index within the block, -1 for block- or function-level
	Msg   string
}

func (self Violation) String() string {
	switch {
	case self.Block == ir.NoBlock:
		return self.Msg
	case self.Instr < 0:
		return fmt.Sprintf("%s: %s", self.Block, self.Msg)
	default:
		return fmt.Sprintf("%s[%d]: %s", self.Block, self.Instr, self.Msg)
	}
}

// VerifierError carries the complete list of violations found by one
// verifier run, never just the first. It signals a bug in an upstream pass
// or malformed input and is not retryable.
type VerifierError struct {
	Func string
	List []Violation
}

func (self VerifierError) Error() string {
	buf := make([]string, 0, len(self.List))
	for _, v := range self.List {
		buf = append(buf, v.String())
	}
	return fmt.Sprintf("VerifierError(%s): %s", self.Func, strings.Join(buf, "; "))
}
