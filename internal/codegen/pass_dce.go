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
	"github.com/forgecc/forge/internal/ir"
)

// dce removes pure instructions whose definitions are never used. Removing
// one instruction can orphan its operands, so the mark/sweep repeats until
// a fixed point is reached.
func dce(fn *ir.Function) {
	for {
		dead := make(map[ir.Value]struct{})

		/* Phase 1: mark all the definitions */
		for _, bb := range fn.Blocks {
			for i := range bb.Ins {
				if p := &bb.Ins[i]; p.Def != ir.NoValue && p.Op.IsPure() {
					dead[p.Def] = struct{}{}
				}
			}
		}

		/* Phase 2: unmark everything that is used anywhere */
		for _, bb := range fn.Blocks {
			for i := range bb.Ins {
				for _, u := range bb.Ins[i].Uses() {
					delete(dead, u)
				}
			}
		}

		/* Phase 3: sweep the unused pure instructions */
		if len(dead) == 0 {
			return
		}
		for _, bb := range fn.Blocks {
			kept := bb.Ins[:0]
			for i := range bb.Ins {
				p := bb.Ins[i]
				if _, ok := dead[p.Def]; !(ok && p.Op.IsPure()) {
					kept = append(kept, p)
				}
			}
			bb.Ins = kept
		}
	}
}
