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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgecc/forge/internal/ir"
	"github.com/forgecc/forge/internal/isa"
)

func TestLegalize_RejectsParams(t *testing.T) {
	fn := ir.NewFunction("withparams", ir.Signature{Params: []ir.Type{ir.TInt64}})
	var cfg ir.ControlFlowGraph

	err := New(isa.Flags{}).Legalize(fn, &cfg)
	var lerr isa.LegalizeError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, "amd64", lerr.Target)
	assert.Contains(t, lerr.Note, "parameters")
}

func TestLegalize_RejectsMultipleReturns(t *testing.T) {
	fn := ir.NewFunction("tworet", ir.Signature{Returns: []ir.Type{ir.TInt64, ir.TInt64}})
	var cfg ir.ControlFlowGraph

	err := New(isa.Flags{}).Legalize(fn, &cfg)
	var lerr isa.LegalizeError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, ir.OpReturn, lerr.Op)
}

func TestLegalize_RejectsFloat(t *testing.T) {
	fn := ir.NewFunction("floaty", ir.Signature{Returns: []ir.Type{ir.TFloat64}})
	bb := ir.NewBuilder(fn)
	bb.Return(bb.Fconst(ir.TFloat64, 1.5))
	var cfg ir.ControlFlowGraph

	err := New(isa.Flags{}).Legalize(fn, &cfg)
	var lerr isa.LegalizeError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, ir.OpFconst, lerr.Op)
	assert.Contains(t, lerr.Note, "floating point")
}

func TestLegalize_BconstBecomesIconst(t *testing.T) {
	fn := ir.NewFunction("boolret", ir.Signature{Returns: []ir.Type{ir.TBool}})
	bb := ir.NewBuilder(fn)
	bb.Return(bb.Bconst(true))
	var cfg ir.ControlFlowGraph

	require.NoError(t, New(isa.Flags{}).Legalize(fn, &cfg))
	assert.Equal(t, ir.OpIconst, fn.Entry().Ins[0].Op)
	assert.Equal(t, int64(1), fn.Entry().Ins[0].Imm)
	assert.True(t, cfg.Valid())
}

func TestExpandPopcnt(t *testing.T) {
	fn := ir.NewFunction("bits", ir.Signature{Returns: []ir.Type{ir.TInt64}})
	bb := ir.NewBuilder(fn)
	x := bb.Iconst(ir.TInt64, 0xFF)
	p := bb.Popcnt(x)
	bb.Return(p)

	last := expandPopcnt(fn, fn.Entry(), 1)

	/* the sequence replaces the popcnt in place, terminator untouched */
	ins := fn.Entry().Ins
	assert.Equal(t, len(ins)-2, last)
	assert.Equal(t, ir.OpUshr, ins[last].Op)
	assert.Equal(t, p, ins[last].Def)
	assert.Equal(t, ir.OpReturn, ins[len(ins)-1].Op)
	assert.Equal(t, p, ins[len(ins)-1].Args[0])

	/* no popcnt left behind */
	for i := range ins {
		assert.NotEqual(t, ir.OpPopcnt, ins[i].Op, "instruction %d", i)
	}
}

func TestExpandPopcnt_MasksNarrowTypes(t *testing.T) {
	fn := ir.NewFunction("bits16", ir.Signature{Returns: []ir.Type{ir.TInt16}})
	bb := ir.NewBuilder(fn)
	x := bb.Iconst(ir.TInt16, -1)
	p := bb.Popcnt(x)
	bb.Return(p)

	last := expandPopcnt(fn, fn.Entry(), 1)
	ins := fn.Entry().Ins

	/* the expansion starts by clearing the bits above the value width */
	require.Equal(t, ir.OpIconst, ins[1].Op)
	assert.Equal(t, int64(0xFFFF), ins[1].Imm)
	require.Equal(t, ir.OpBand, ins[2].Op)
	assert.Equal(t, x, ins[2].Args[0])
	assert.Equal(t, p, ins[last].Def)
}
