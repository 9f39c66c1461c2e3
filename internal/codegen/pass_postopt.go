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

// postopt is the post-legalization rewrite pass: it threads branches whose
// target block does nothing but jump elsewhere, so legalization-introduced
// trampolines never survive to emission. The CFG is recomputed when any
// edge was retargeted.
func postopt(fn *ir.Function, cfg *ir.ControlFlowGraph) {
	changed := false

	/* a block forwards to u if it consists of a single "jump u" */
	forward := func(b ir.Block) (ir.Block, bool) {
		bb := fn.Blocks[b]
		if len(bb.Ins) != 1 || bb.Ins[0].Op != ir.OpJump {
			return ir.NoBlock, false
		}
		return bb.Ins[0].Targets[0], true
	}

	for _, bb := range fn.Blocks {
		t := bb.Term()
		if t == nil {
			continue
		}
		for k, to := range t.Targets {
			/* follow forwarding chains, guarding against cycles */
			for hops := 0; hops < len(fn.Blocks); hops++ {
				nx, ok := forward(to)
				if !ok || nx == to {
					break
				}
				to = nx
			}
			if t.Targets[k] != to {
				t.Targets[k] = to
				changed = true
			}
		}
	}

	if changed {
		cfg.Compute(fn)
	}
}
