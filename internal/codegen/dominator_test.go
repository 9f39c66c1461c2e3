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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgecc/forge/internal/ir"
)

// diamondFunc builds entry -> (left | right) -> join.
func diamondFunc() (*ir.Function, []ir.Block) {
	fn := ir.NewFunction("diamond", ir.Signature{})
	bb := ir.NewBuilder(fn)
	left, right, join := bb.NewBlock(), bb.NewBlock(), bb.NewBlock()
	bb.Brz(bb.Iconst(ir.TBool, 1), left, right)
	bb.SwitchTo(left)
	bb.Jump(join)
	bb.SwitchTo(right)
	bb.Jump(join)
	bb.SwitchTo(join)
	bb.Return(ir.NoValue)
	return fn, []ir.Block{0, left, right, join}
}

// loopFunc builds entry -> head; head -> (body | exit); body -> head.
func loopFunc() (*ir.Function, []ir.Block) {
	fn := ir.NewFunction("loop", ir.Signature{})
	bb := ir.NewBuilder(fn)
	head, body, exit := bb.NewBlock(), bb.NewBlock(), bb.NewBlock()
	cond := bb.Iconst(ir.TBool, 0)
	bb.Jump(head)
	bb.SwitchTo(head)
	bb.Brz(cond, exit, body)
	bb.SwitchTo(body)
	bb.Jump(head)
	bb.SwitchTo(exit)
	bb.Return(ir.NoValue)
	return fn, []ir.Block{0, head, body, exit}
}

func TestDominatorTree_Diamond(t *testing.T) {
	fn, blocks := diamondFunc()
	entry, left, right, join := blocks[0], blocks[1], blocks[2], blocks[3]

	var cfg ir.ControlFlowGraph
	var dom DominatorTree
	cfg.Compute(fn)
	dom.Compute(fn, &cfg)

	require.True(t, dom.Valid())
	assert.Equal(t, ir.NoBlock, dom.Idom[entry])
	assert.Equal(t, entry, dom.Idom[left])
	assert.Equal(t, entry, dom.Idom[right])
	assert.Equal(t, entry, dom.Idom[join])

	assert.True(t, dom.Dominates(entry, join))
	assert.True(t, dom.Dominates(join, join))
	assert.False(t, dom.Dominates(left, join))
	assert.ElementsMatch(t, []ir.Block{left, right, join}, dom.Children[entry])
}

func TestDominatorTree_Loop(t *testing.T) {
	fn, blocks := loopFunc()
	entry, head, body, exit := blocks[0], blocks[1], blocks[2], blocks[3]

	var cfg ir.ControlFlowGraph
	var dom DominatorTree
	cfg.Compute(fn)
	dom.Compute(fn, &cfg)

	assert.Equal(t, entry, dom.Idom[head])
	assert.Equal(t, head, dom.Idom[body])
	assert.Equal(t, head, dom.Idom[exit])
	assert.True(t, dom.Dominates(head, body))
	assert.False(t, dom.Dominates(body, exit))
}

func TestDominatorTree_UnreachableBlock(t *testing.T) {
	fn := ir.NewFunction("island", ir.Signature{})
	bb := ir.NewBuilder(fn)
	island := bb.NewBlock()
	bb.Return(ir.NoValue)
	bb.SwitchTo(island)
	bb.Trap(ir.TrapUnreachable)

	var cfg ir.ControlFlowGraph
	var dom DominatorTree
	cfg.Compute(fn)
	dom.Compute(fn, &cfg)

	assert.Equal(t, ir.NoBlock, dom.Idom[island])
	assert.False(t, dom.Dominates(0, island))
}

func TestLoopAnalysis_SingleLoop(t *testing.T) {
	fn, blocks := loopFunc()
	head, body, exit := blocks[1], blocks[2], blocks[3]

	var cfg ir.ControlFlowGraph
	var dom DominatorTree
	var la LoopAnalysis
	cfg.Compute(fn)
	dom.Compute(fn, &cfg)
	la.Compute(fn, &cfg, &dom)

	require.True(t, la.Valid())
	require.Len(t, la.Loops, 1)
	lp := &la.Loops[0]
	assert.Equal(t, head, lp.Header)
	assert.True(t, lp.Contains(head))
	assert.True(t, lp.Contains(body))
	assert.False(t, lp.Contains(exit))
}

func TestLoopAnalysis_NoLoops(t *testing.T) {
	fn, _ := diamondFunc()

	var cfg ir.ControlFlowGraph
	var dom DominatorTree
	var la LoopAnalysis
	cfg.Compute(fn)
	dom.Compute(fn, &cfg)
	la.Compute(fn, &cfg, &dom)

	assert.Empty(t, la.Loops)
}
