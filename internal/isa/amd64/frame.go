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
	"github.com/forgecc/forge/internal/ir"
	"github.com/forgecc/forge/internal/isa"
)

// frames larger than this are almost certainly a bug upstream, and their
// slot displacements would stop fitting the addressing modes we emit
const maxSpillSlots = 1 << 20

// PrologueEpilogue computes the final stack frame from the allocation
// outcome: which callee-saved registers need preserving, which slots hold
// references, and the total frame size. fn.Frame.SpillSlots must already
// carry the allocator's slot count.
func (self *Amd64) PrologueEpilogue(fn *ir.Function) error {
	fr := &fn.Frame
	if fr.SpillSlots > maxSpillSlots {
		return isa.LayoutError{Target: self.Name(), Reason: "stack frame too large"}
	}

	/* callee-saved registers referenced by any location */
	var used [len(allocationOrder)]bool
	for _, loc := range fn.Locs {
		if loc.Kind == ir.LocReg {
			used[loc.Idx] = true
		}
	}
	fr.SavedRegs = fr.SavedRegs[:0]
	for i := range allocationOrder {
		if used[i] && calleeSaved[i] {
			fr.SavedRegs = append(fr.SavedRegs, uint8(i))
		}
	}

	/* slots that ever hold a reference, for the safepoint maps */
	seen := make([]uint64, (fr.SpillSlots+63)/64)
	fr.RefSlots = fr.RefSlots[:0]
	for v, loc := range fn.Locs {
		if loc.Kind != ir.LocStack || fn.Types[v] != ir.TRef {
			continue
		}
		if w, b := loc.Idx/64, uint(loc.Idx%64); seen[w]&(1<<b) == 0 {
			seen[w] |= 1 << b
			fr.RefSlots = append(fr.RefSlots, loc.Idx)
		}
	}

	/* keep RSP 16-byte aligned at every call site */
	size := 8 * (fr.SpillSlots + int32(len(fr.SavedRegs)))
	fr.Size = (size + 15) &^ 15
	fr.Valid = true
	return nil
}
