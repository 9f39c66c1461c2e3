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

// Package debug provides introspection helpers: compiler statistics and
// Graphviz renderings of functions under compilation.
package debug

import (
	"fmt"
	"strings"

	"github.com/forgecc/forge/internal/ir"
)

// A Stats records statistics about the code generator.
type Stats struct {
	Memory MemStats
}

// A MemStats records statistics about loaded executable memory.
type MemStats struct {
	Alloc int
	Count int
}

// CFGDot renders the control-flow graph of fn in Graphviz dot syntax, one
// node per basic block labeled with its instructions.
func CFGDot(fn *ir.Function, cfg *ir.ControlFlowGraph) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "digraph %q {\n", fn.Name)
	sb.WriteString("    node [shape=box, fontname=monospace]\n")

	for _, bb := range fn.Blocks {
		label := strings.ReplaceAll(bb.String(), "\n", "\\l") + "\\l"
		fmt.Fprintf(&sb, "    %s [label=\"%s\"]\n", bb.ID, strings.ReplaceAll(label, `"`, `\"`))
	}
	for _, bb := range fn.Blocks {
		for _, to := range cfg.Succs[bb.ID] {
			fmt.Fprintf(&sb, "    %s -> %s\n", bb.ID, to)
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}
