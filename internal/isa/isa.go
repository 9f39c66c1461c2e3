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
	"github.com/forgecc/forge/internal/binemit"
	"github.com/forgecc/forge/internal/ir"
)

// RegInfo describes the allocatable register file of a target.
type RegInfo struct {
	// NumRegs is the number of allocatable registers. Register allocation
	// assigns indices in [0, NumRegs); the target maps them to hardware
	// registers during encoding.
	NumRegs int

	// CalleeSaved[i] reports whether allocatable register i must be
	// preserved across calls by the prologue/epilogue.
	CalleeSaved []bool
}

// TargetIsa is the immutable capability descriptor of one compilation
// target. A single instance is shared read-only across every concurrently
// compiling context; all methods must therefore be safe for concurrent use
// and mutate only the function they are handed.
type TargetIsa interface {
	// Name identifies the target, e.g. "amd64".
	Name() string

	// Flags returns the pass-gating configuration baked into this target.
	Flags() Flags

	// Regs describes the allocatable register file.
	Regs() RegInfo

	// Legalize lowers fn to target-legal form. It may restructure control
	// flow; it recomputes cfg itself before returning, but the caller is
	// responsible for having dropped every analysis derived from cfg.
	Legalize(fn *ir.Function, cfg *ir.ControlFlowGraph) error

	// PrologueEpilogue computes the final stack frame from the register
	// allocation outcome and records it in fn.Frame.
	PrologueEpilogue(fn *ir.Function) error

	// ShrinkInstructions replaces instruction encodings with smaller
	// equivalent ones, recorded as encoding hints on the instructions.
	ShrinkInstructions(fn *ir.Function)

	// RelaxBranches lays the function out, selects final branch encodings
	// now that offsets are known, and encodes the complete artifact into
	// mach. The returned CodeInfo measures the artifact.
	RelaxBranches(fn *ir.Function, mach *binemit.MachBuffer) (binemit.CodeInfo, error)
}
