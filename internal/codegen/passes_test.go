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
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgecc/forge/internal/ir"
)

func countOp(fn *ir.Function, op ir.Opcode) int {
	n := 0
	for _, bb := range fn.Blocks {
		for i := range bb.Ins {
			if bb.Ins[i].Op == op {
				n++
			}
		}
	}
	return n
}

func TestPreopt_ConstantFolding(t *testing.T) {
	fn := ir.NewFunction("fold", ir.Signature{Returns: []ir.Type{ir.TInt64}})
	bb := ir.NewBuilder(fn)
	x := bb.Iconst(ir.TInt64, 6)
	y := bb.Iconst(ir.TInt64, 7)
	bb.Return(bb.Imul(x, y))

	var cfg ir.ControlFlowGraph
	cfg.Compute(fn)
	preopt(fn, &cfg)
	dce(fn)

	require.Len(t, fn.Entry().Ins, 2, spew.Sdump(fn))
	p := &fn.Entry().Ins[0]
	assert.Equal(t, ir.OpIconst, p.Op)
	assert.Equal(t, int64(42), p.Imm)
}

func TestPreopt_Identities(t *testing.T) {
	fn := ir.NewFunction("identity", ir.Signature{Returns: []ir.Type{ir.TInt64}})
	bb := ir.NewBuilder(fn)
	v := bb.Call("ext", ir.TInt64) // opaque, not foldable
	z := bb.Iconst(ir.TInt64, 0)
	bb.Return(bb.Iadd(v, z))

	var cfg ir.ControlFlowGraph
	cfg.Compute(fn)
	preopt(fn, &cfg)
	dce(fn)

	/* x+0 folds away, the return uses the call result directly */
	assert.Zero(t, countOp(fn, ir.OpIadd), spew.Sdump(fn))
	assert.Equal(t, v, fn.Entry().Term().Args[0])
}

func TestPreopt_BranchFolding(t *testing.T) {
	fn := ir.NewFunction("brfold", ir.Signature{})
	bb := ir.NewBuilder(fn)
	taken, dead := bb.NewBlock(), bb.NewBlock()
	bb.Brz(bb.Iconst(ir.TBool, 0), taken, dead)
	bb.SwitchTo(taken)
	bb.Return(ir.NoValue)
	bb.SwitchTo(dead)
	bb.Trap(ir.TrapUnreachable)

	var cfg ir.ControlFlowGraph
	cfg.Compute(fn)
	preopt(fn, &cfg)

	/* brz on constant zero becomes a jump to the zero target, and the
	 * pass refreshed the CFG on its own */
	tm := fn.Entry().Term()
	require.Equal(t, ir.OpJump, tm.Op)
	require.Equal(t, []ir.Block{taken}, tm.Targets)
	assert.Equal(t, []ir.Block{taken}, cfg.Succs[0])

	require.True(t, eliminateUnreachableCode(fn, &cfg))
	assert.Len(t, fn.Blocks, 2)
}

func TestGVN_MergesDominatedDuplicates(t *testing.T) {
	fn := ir.NewFunction("gvn", ir.Signature{Returns: []ir.Type{ir.TInt64}})
	bb := ir.NewBuilder(fn)
	next := bb.NewBlock()
	x := bb.Call("ext", ir.TInt64)
	a := bb.Iadd(x, x)
	bb.Jump(next)
	bb.SwitchTo(next)
	b := bb.Iadd(x, x) // same computation, dominated by the first
	bb.Return(bb.Iadd(a, b))

	var cfg ir.ControlFlowGraph
	var dom DominatorTree
	cfg.Compute(fn)
	dom.Compute(fn, &cfg)
	simpleGVN(fn, &dom)
	dce(fn)

	assert.Equal(t, 2, countOp(fn, ir.OpIadd), spew.Sdump(fn))
	sum := fn.Blocks[next].Ins[0]
	assert.Equal(t, [2]ir.Value{a, a}, sum.Args)
}

func TestGVN_ScopeDoesNotLeakAcrossSiblings(t *testing.T) {
	fn := ir.NewFunction("gvnscope", ir.Signature{Returns: []ir.Type{ir.TInt64}})
	bb := ir.NewBuilder(fn)
	left, right := bb.NewBlock(), bb.NewBlock()
	c := bb.Call("ext", ir.TBool)
	bb.Brz(c, left, right)
	bb.SwitchTo(left)
	l := bb.Iconst(ir.TInt64, 7)
	bb.Return(l)
	bb.SwitchTo(right)
	r := bb.Iconst(ir.TInt64, 7)
	bb.Return(r)

	var cfg ir.ControlFlowGraph
	var dom DominatorTree
	cfg.Compute(fn)
	dom.Compute(fn, &cfg)
	simpleGVN(fn, &dom)

	/* neither sibling dominates the other, so the equal constants must
	 * not merge across them */
	assert.Equal(t, l, fn.Blocks[left].Term().Args[0])
	assert.Equal(t, r, fn.Blocks[right].Term().Args[0])
}

func TestLICM_HoistsInvariant(t *testing.T) {
	fn := ir.NewFunction("licm", ir.Signature{})
	bb := ir.NewBuilder(fn)
	head, body, exit := bb.NewBlock(), bb.NewBlock(), bb.NewBlock()
	c := bb.Call("cond", ir.TBool)
	bb.Jump(head)
	bb.SwitchTo(head)
	bb.Brz(c, exit, body)
	bb.SwitchTo(body)
	a := bb.Iconst(ir.TInt64, 10)
	b := bb.Iconst(ir.TInt64, 32)
	s := bb.Iadd(a, b)
	bb.Jump(head)
	bb.SwitchTo(exit)
	bb.Return(ir.NoValue)

	var cfg ir.ControlFlowGraph
	var dom DominatorTree
	var la LoopAnalysis
	cfg.Compute(fn)
	dom.Compute(fn, &cfg)
	la.Compute(fn, &cfg, &dom)
	licm(fn, &cfg, &la)

	/* the whole chain lands in the entry block, ahead of its jump */
	entry := fn.Entry()
	require.Len(t, entry.Ins, 5, spew.Sdump(fn))
	assert.Equal(t, s, entry.Ins[3].Def)
	assert.Equal(t, ir.OpJump, entry.Term().Op)
	assert.Len(t, fn.Blocks[body].Ins, 1)
}

func TestLICM_SkipsLoopsWithoutPreheader(t *testing.T) {
	fn := ir.NewFunction("noph", ir.Signature{})
	bb := ir.NewBuilder(fn)
	head, body, exit := bb.NewBlock(), bb.NewBlock(), bb.NewBlock()
	c := bb.Call("cond", ir.TBool)

	/* the entry enters the loop with a conditional branch, so the header
	 * has no dedicated preheader */
	bb.Brz(c, head, exit)
	bb.SwitchTo(head)
	bb.Brz(c, exit, body)
	bb.SwitchTo(body)
	v := bb.Iconst(ir.TInt64, 1)
	_ = v
	bb.Jump(head)
	bb.SwitchTo(exit)
	bb.Return(ir.NoValue)

	var cfg ir.ControlFlowGraph
	var dom DominatorTree
	var la LoopAnalysis
	cfg.Compute(fn)
	dom.Compute(fn, &cfg)
	la.Compute(fn, &cfg, &dom)
	licm(fn, &cfg, &la)

	require.Len(t, fn.Blocks[body].Ins, 2)
	assert.Equal(t, ir.OpIconst, fn.Blocks[body].Ins[0].Op)
}

func TestDCE_RemovesUnusedChains(t *testing.T) {
	fn := ir.NewFunction("dce", ir.Signature{})
	bb := ir.NewBuilder(fn)
	a := bb.Iconst(ir.TInt64, 1)
	b := bb.Iconst(ir.TInt64, 2)
	bb.Iadd(a, b) // unused, orphans a and b once removed
	bb.Call("keep", ir.TVoid)
	bb.Return(ir.NoValue)

	dce(fn)

	require.Len(t, fn.Entry().Ins, 2, spew.Sdump(fn))
	assert.Equal(t, ir.OpCall, fn.Entry().Ins[0].Op)
}

func TestNaNCanonicalization(t *testing.T) {
	fn := ir.NewFunction("nan", ir.Signature{Returns: []ir.Type{ir.TFloat64}})
	bb := ir.NewBuilder(fn)
	x := bb.Fconst(ir.TFloat64, 1.5)
	y := bb.Fconst(ir.TFloat64, 2.5)
	s := bb.Fadd(x, y)
	bb.Return(s)

	canonicalizeNaNs(fn)

	/* fcanon lands right after the fadd and captures its uses */
	ins := fn.Entry().Ins
	require.Len(t, ins, 5)
	require.Equal(t, ir.OpFcanon, ins[3].Op)
	assert.Equal(t, s, ins[3].Args[0])
	assert.Equal(t, ins[3].Def, fn.Entry().Term().Args[0])

	/* constants are not NaN producers */
	assert.Equal(t, 1, countOp(fn, ir.OpFcanon))
}

func TestPostopt_ThreadsJumpChains(t *testing.T) {
	fn := ir.NewFunction("thread", ir.Signature{})
	bb := ir.NewBuilder(fn)
	hop1, hop2, final := bb.NewBlock(), bb.NewBlock(), bb.NewBlock()
	bb.Jump(hop1)
	bb.SwitchTo(hop1)
	bb.Jump(hop2)
	bb.SwitchTo(hop2)
	bb.Jump(final)
	bb.SwitchTo(final)
	bb.Return(ir.NoValue)

	var cfg ir.ControlFlowGraph
	cfg.Compute(fn)
	postopt(fn, &cfg)

	assert.Equal(t, []ir.Block{final}, fn.Entry().Term().Targets)
	assert.Equal(t, []ir.Block{final}, cfg.Succs[0])

	require.True(t, eliminateUnreachableCode(fn, &cfg))
	assert.Len(t, fn.Blocks, 2)
}

func TestPostopt_SelfLoopTerminates(t *testing.T) {
	fn := ir.NewFunction("selfloop", ir.Signature{})
	bb := ir.NewBuilder(fn)
	spin := bb.NewBlock()
	bb.Jump(spin)
	bb.SwitchTo(spin)
	bb.Jump(spin)

	var cfg ir.ControlFlowGraph
	cfg.Compute(fn)
	postopt(fn, &cfg) // must not hang on the jump cycle

	assert.Equal(t, []ir.Block{spin}, fn.Entry().Term().Targets)
}
