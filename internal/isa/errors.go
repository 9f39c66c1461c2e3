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

	"github.com/forgecc/forge/internal/ir"
)

// LegalizeError occurs when an instruction has no legal lowering or
// encoding for the target. It is not retryable without changing the input.
type LegalizeError struct {
	Target string
	Op     ir.Opcode
	Note   string
}

func (self LegalizeError) Error() string {
	if self.Note != "" {
		return fmt.Sprintf("LegalizeError(%s): %s: %s", self.Target, self.Op, self.Note)
	} else {
		return fmt.Sprintf("LegalizeError(%s): no lowering for %s", self.Target, self.Op)
	}
}

// LayoutError occurs when the final layout breaks a target limit, such as a
// stack frame or branch displacement that cannot be encoded.
type LayoutError struct {
	Target string
	Reason string
}

func (self LayoutError) Error() string {
	return fmt.Sprintf("LayoutError(%s): %s", self.Target, self.Reason)
}
