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

package amd64

import (
	"math"

	"github.com/forgecc/forge/internal/ir"
)

// ShrinkInstructions tags constants whose materialization has a shorter
// encoding than the full 10-byte movabs: zero becomes a 32-bit xor and
// values that zero-extend from 32 bits use the 32-bit mov form.
func (self *Amd64) ShrinkInstructions(fn *ir.Function) {
	for _, bb := range fn.Blocks {
		for i := range bb.Ins {
			p := &bb.Ins[i]
			if p.Op != ir.OpIconst {
				continue
			}
			switch {
			case p.Imm == 0:
				p.Hint = ir.HintZeroIdiom
			case p.Imm > 0 && p.Imm <= math.MaxUint32:
				p.Hint = ir.HintImm32
			}
		}
	}
}
