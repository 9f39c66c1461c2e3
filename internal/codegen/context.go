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

// Package codegen drives a single IR function through the fixed sequence of
// analysis and transformation passes and emits target machine code.
//
// When compiling many small functions it is important to avoid repeatedly
// allocating and deallocating the data structures needed for compilation:
// the Context holds on to every allocation between function compilations,
// and Clear resets it for the next one. A Context never holds the target
// descriptor; a TargetIsa is immutable and shared by any number of contexts
// concurrently, typically one Context per compilation goroutine and a
// single target instance.
package codegen

import (
	"errors"
	"unsafe"

	"github.com/bytedance/gopkg/lang/dirtmake"

	"github.com/forgecc/forge/internal/binemit"
	"github.com/forgecc/forge/internal/ir"
	"github.com/forgecc/forge/internal/isa"
	"github.com/forgecc/forge/internal/regalloc"
	"github.com/forgecc/forge/internal/rt"
)

// ErrNotCompiled is returned when emission is requested before a
// successful Compile.
var ErrNotCompiled = errors.New("codegen: function has not been compiled")

// ErrBufferTooSmall is returned by the bounds-checked emission entry point
// when the destination cannot hold CodeInfo.TotalSize bytes.
var ErrBufferTooSmall = errors.New("codegen: destination buffer is smaller than CodeInfo.TotalSize")

// _Stage is one pipeline step: a gate evaluated against the target flags
// and the action to run. The stage list is built once, at Context
// construction, and executed as a fixed iteration; tier gating therefore
// lives in one table instead of being scattered through the pipeline body.
type _Stage struct {
	name string
	when func(isa.Flags) bool
	run  func(*Context, isa.TargetIsa) error
}

func always(isa.Flags) bool          { return true }
func unlessFastest(f isa.Flags) bool { return f.Opt != isa.OptFastest }
func onlyBest(f isa.Flags) bool      { return f.Opt == isa.OptBest }
func verifying(f isa.Flags) bool     { return f.EnableVerifier }
func nanCanon(f isa.Flags) bool      { return f.EnableNaNCanon }

var pipeline = [...]_Stage{
	{name: "verify_input", when: verifying, run: func(c *Context, t isa.TargetIsa) error { return c.Verify(t) }},
	{name: "compute_cfg", when: always, run: func(c *Context, t isa.TargetIsa) error { c.ComputeCFG(); return nil }},
	{name: "preopt", when: unlessFastest, run: (*Context).Preopt},
	{name: "nan_canonicalization", when: nanCanon, run: (*Context).CanonicalizeNaNs},
	{name: "legalize", when: always, run: (*Context).Legalize},
	{name: "postopt", when: unlessFastest, run: (*Context).Postopt},
	{name: "compute_domtree", when: onlyBest, run: func(c *Context, t isa.TargetIsa) error { c.ComputeDomtree(); return nil }},
	{name: "compute_loop_analysis", when: onlyBest, run: func(c *Context, t isa.TargetIsa) error { c.ComputeLoopAnalysis(); return nil }},
	{name: "licm", when: onlyBest, run: (*Context).Licm},
	{name: "gvn", when: onlyBest, run: (*Context).SimpleGVN},
	{name: "compute_domtree", when: always, run: func(c *Context, t isa.TargetIsa) error { c.ComputeDomtree(); return nil }},
	{name: "unreachable_code", when: always, run: (*Context).EliminateUnreachableCode},
	{name: "dce", when: unlessFastest, run: (*Context).Dce},
	{name: "regalloc", when: always, run: (*Context).Regalloc},
	{name: "prologue_epilogue", when: always, run: (*Context).PrologueEpilogue},
	{name: "shrink_instructions", when: onlyBest, run: (*Context).ShrinkInstructions},
	{name: "relax_branches", when: always, run: (*Context).RelaxBranches},
}

// Context owns one function under compilation together with every derived
// analysis. It must not be shared between concurrent compilations; give
// each worker its own Context and share only the TargetIsa.
type Context struct {
	// Func is the function being compiled. Passes mutate it in place.
	Func *ir.Function

	cfg      ir.ControlFlowGraph
	domtree  DominatorTree
	loops    LoopAnalysis
	regalloc regalloc.Context
	mach     binemit.MachBuffer
	info     binemit.CodeInfo
	trace    []string
}

// NewContext allocates a compilation context around an empty function.
// Reuse the returned instance for multiple functions to avoid needless
// allocator thrashing.
func NewContext() *Context {
	return ForFunction(ir.NewFunction("", ir.Signature{}))
}

// ForFunction allocates a compilation context around an existing function.
func ForFunction(fn *ir.Function) *Context {
	return &Context{Func: fn}
}

// Clear resets every owned structure to empty while preserving allocated
// capacity, so one Context can compile an unbounded sequence of functions
// with amortized zero extra allocation.
func (self *Context) Clear() {
	self.Func.Clear()
	self.cfg.Clear()
	self.domtree.Clear()
	self.loops.Clear()
	self.regalloc.Clear()
	self.mach.Clear()
	self.info = binemit.CodeInfo{}
	self.trace = self.trace[:0]
}

// CFG exposes the current control-flow graph snapshot.
func (self *Context) CFG() *ir.ControlFlowGraph {
	return &self.cfg
}

// Domtree exposes the current dominator tree snapshot.
func (self *Context) Domtree() *DominatorTree {
	return &self.domtree
}

// LoopAnalysisResult exposes the current loop analysis snapshot.
func (self *Context) LoopAnalysisResult() *LoopAnalysis {
	return &self.loops
}

// Trace returns the names of the pipeline stages executed by the last
// Compile, in order. Pass probes in tests key off this.
func (self *Context) Trace() []string {
	return self.trace
}

// Compile runs the function through all the passes required by tgt's
// optimization tier, stopping at the first failing step. It returns the
// measurements of the final artifact; the machine code itself is written
// by a subsequent emission call.
func (self *Context) Compile(tgt isa.TargetIsa) (binemit.CodeInfo, error) {
	flags := tgt.Flags()
	self.trace = self.trace[:0]

	for i := range pipeline {
		st := &pipeline[i]
		if !st.when(flags) {
			continue
		}
		self.trace = append(self.trace, st.name)
		if err := st.run(self, tgt); err != nil {
			return binemit.CodeInfo{}, err
		}
	}
	return self.info, nil
}

// CompileAndEmit compiles the function and appends exactly
// CodeInfo.TotalSize bytes of machine code to mem, returning the grown
// buffer. Relocations are not applied; they are reported to relocs.
func (self *Context) CompileAndEmit(
	tgt isa.TargetIsa,
	mem []byte,
	relocs binemit.RelocSink,
	traps binemit.TrapSink,
	maps binemit.StackMapSink,
) ([]byte, binemit.CodeInfo, error) {
	info, err := self.Compile(tgt)
	if err != nil {
		return mem, binemit.CodeInfo{}, err
	}

	/* grow the buffer without zeroing the appended region, it is fully
	 * overwritten by the emission below */
	old := len(mem)
	need := old + int(info.TotalSize)
	if cap(mem) >= need {
		mem = mem[:need]
	} else {
		grown := dirtmake.Bytes(need, need)
		copy(grown, mem[:old])
		mem = grown
	}

	/* emission must reproduce the compiled measurements exactly */
	if ninfo := self.mach.CopyTo(mem[old:], relocs, traps, maps); ninfo != info {
		panic("codegen: emission diverged from the compiled CodeInfo")
	}
	return mem, info, nil
}

// EmitToSlice writes the compiled machine code into out, which must hold
// at least CodeInfo.TotalSize bytes. This is the bounds-checked emission
// entry point; prefer it unless a fixed memory location is required.
func (self *Context) EmitToSlice(
	tgt isa.TargetIsa,
	out []byte,
	relocs binemit.RelocSink,
	traps binemit.TrapSink,
	maps binemit.StackMapSink,
) (binemit.CodeInfo, error) {
	if !self.mach.Valid() {
		return binemit.CodeInfo{}, ErrNotCompiled
	}
	if uint64(len(out)) < uint64(self.info.TotalSize) {
		return binemit.CodeInfo{}, ErrBufferTooSmall
	}
	return self.mach.CopyTo(out, relocs, traps, maps), nil
}

// EmitToMemory writes the compiled machine code directly to mem with no
// bounds checking. The caller must guarantee the region holds at least
// CodeInfo.TotalSize bytes and stays valid and exclusively accessible for
// the duration of the call; flip it to executable only after this returns.
func (self *Context) EmitToMemory(
	tgt isa.TargetIsa,
	mem unsafe.Pointer,
	relocs binemit.RelocSink,
	traps binemit.TrapSink,
	maps binemit.StackMapSink,
) binemit.CodeInfo {
	if !self.mach.Valid() {
		panic(ErrNotCompiled)
	}
	n := int(self.info.TotalSize)
	return self.mach.CopyTo(rt.BytesFrom(mem, n, n), relocs, traps, maps)
}

/** Analyses **/

// ComputeCFG computes the control-flow graph from the function's current
// terminators.
func (self *Context) ComputeCFG() {
	self.cfg.Compute(self.Func)
}

// ComputeDomtree computes the dominator tree from the current CFG.
func (self *Context) ComputeDomtree() {
	self.domtree.Compute(self.Func, &self.cfg)
}

// ComputeLoopAnalysis computes the loop forest from the current CFG and
// dominator tree.
func (self *Context) ComputeLoopAnalysis() {
	self.loops.Compute(self.Func, &self.cfg, &self.domtree)
}

// Flowgraph computes the control-flow graph and the dominator tree.
func (self *Context) Flowgraph() {
	self.ComputeCFG()
	self.ComputeDomtree()
}

/** Verification **/

// Verify runs the structural verifier on the function, also checking that
// the dominator tree and control-flow graph are consistent with it. The
// returned VerifierError carries every violation found, not just the first.
func (self *Context) Verify(tgt isa.TargetIsa) error {
	v := _Verifier{}
	v.verifyFunction(self.Func, &self.cfg, &self.domtree)
	if len(v.list) == 0 {
		return nil
	}
	return VerifierError{Func: self.Func.Name, List: v.list}
}

// VerifyIf runs the verifier only when the target enables it.
func (self *Context) VerifyIf(tgt isa.TargetIsa) error {
	if tgt.Flags().EnableVerifier {
		return self.Verify(tgt)
	}
	return nil
}

// VerifyLocations runs the location-assignment verifier on the function.
func (self *Context) VerifyLocations(tgt isa.TargetIsa) error {
	v := _Verifier{}
	v.verifyLocations(self.Func, tgt.Regs())
	if len(v.list) == 0 {
		return nil
	}
	return VerifierError{Func: self.Func.Name, List: v.list}
}

// VerifyLocationsIf runs the location verifier only when the target
// enables it.
func (self *Context) VerifyLocationsIf(tgt isa.TargetIsa) error {
	if tgt.Flags().EnableVerifier {
		return self.VerifyLocations(tgt)
	}
	return nil
}

/** Passes **/

// Preopt performs pre-legalization rewrites on the function.
func (self *Context) Preopt(tgt isa.TargetIsa) error {
	preopt(self.Func, &self.cfg)
	return self.VerifyIf(tgt)
}

// CanonicalizeNaNs performs NaN canonicalizing rewrites on the function.
func (self *Context) CanonicalizeNaNs(tgt isa.TargetIsa) error {
	canonicalizeNaNs(self.Func)
	return self.VerifyIf(tgt)
}

// Legalize lowers the function for the target. Legalization may
// restructure control flow, so the dominator tree and loop analysis are
// unconditionally dropped before the target runs; the target recomputes
// the CFG itself.
func (self *Context) Legalize(tgt isa.TargetIsa) error {
	self.domtree.Clear()
	self.loops.Clear()
	if err := tgt.Legalize(self.Func, &self.cfg); err != nil {
		return err
	}
	return self.VerifyIf(tgt)
}

// Postopt performs post-legalization rewrites on the function.
func (self *Context) Postopt(tgt isa.TargetIsa) error {
	postopt(self.Func, &self.cfg)
	return self.VerifyIf(tgt)
}

// Licm performs loop-invariant code motion on the function.
func (self *Context) Licm(tgt isa.TargetIsa) error {
	licm(self.Func, &self.cfg, &self.loops)
	return self.VerifyIf(tgt)
}

// SimpleGVN performs global value numbering on the function.
func (self *Context) SimpleGVN(tgt isa.TargetIsa) error {
	simpleGVN(self.Func, &self.domtree)
	return self.VerifyIf(tgt)
}

// EliminateUnreachableCode removes blocks the entry cannot reach. Removal
// renumbers blocks, so the CFG and dominator tree are recomputed when
// anything was dropped.
func (self *Context) EliminateUnreachableCode(tgt isa.TargetIsa) error {
	if eliminateUnreachableCode(self.Func, &self.cfg) {
		self.ComputeCFG()
		self.ComputeDomtree()
	}
	return self.VerifyIf(tgt)
}

// Dce performs dead-code elimination on the function.
func (self *Context) Dce(tgt isa.TargetIsa) error {
	dce(self.Func)
	return self.VerifyIf(tgt)
}

// Regalloc runs the register allocator. No post-step verification happens
// here: the prologue/epilogue step that always follows re-verifies both
// structural and location consistency, which covers this one too.
func (self *Context) Regalloc(tgt isa.TargetIsa) error {
	return self.regalloc.Run(self.Func, tgt.Regs())
}

// PrologueEpilogue computes the stack frame and entry/exit sequences from
// the register allocation outcome.
func (self *Context) PrologueEpilogue(tgt isa.TargetIsa) error {
	self.Func.Frame.SpillSlots = self.regalloc.SpillSlots()
	if err := tgt.PrologueEpilogue(self.Func); err != nil {
		return err
	}
	if err := self.VerifyIf(tgt); err != nil {
		return err
	}
	return self.VerifyLocationsIf(tgt)
}

// ShrinkInstructions selects smaller equivalent instruction encodings.
func (self *Context) ShrinkInstructions(tgt isa.TargetIsa) error {
	tgt.ShrinkInstructions(self.Func)
	if err := self.VerifyIf(tgt); err != nil {
		return err
	}
	return self.VerifyLocationsIf(tgt)
}

// RelaxBranches lays out the function, fixes the final branch encodings
// and records the machine artifact, producing the final CodeInfo.
func (self *Context) RelaxBranches(tgt isa.TargetIsa) error {
	info, err := tgt.RelaxBranches(self.Func, &self.mach)
	if err != nil {
		return err
	}
	self.info = info
	if err := self.VerifyIf(tgt); err != nil {
		return err
	}
	return self.VerifyLocationsIf(tgt)
}
