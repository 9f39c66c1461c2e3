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
	"github.com/oleiade/lane"

	"github.com/forgecc/forge/internal/ir"
)

// eliminateUnreachableCode drops every block the entry cannot reach,
// renumbering the survivors. It reports whether anything was removed, in
// which case the CFG and dominator tree no longer describe the function.
func eliminateUnreachableCode(fn *ir.Function, cfg *ir.ControlFlowGraph) bool {
	if len(fn.Blocks) == 0 {
		return false
	}

	/* BFS from the entry block */
	live := make([]bool, len(fn.Blocks))
	q := lane.NewQueue()
	live[0] = true
	q.Enqueue(ir.Block(0))

	for !q.Empty() {
		bb := q.Dequeue().(ir.Block)
		for _, nx := range cfg.Succs[bb] {
			if !live[nx] {
				live[nx] = true
				q.Enqueue(nx)
			}
		}
	}

	/* fast path: everything reachable */
	n := 0
	for _, ok := range live {
		if ok {
			n++
		}
	}
	if n == len(fn.Blocks) {
		return false
	}

	fn.Compact(live)
	return true
}
