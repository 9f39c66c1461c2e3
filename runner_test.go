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

//go:build amd64 && (linux || darwin)

package forge

import (
	"math/bits"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// eachTier runs the scenario once per optimization level, so the compiled
// result can be checked for agreement across the whole pipeline spread.
func eachTier(t *testing.T, run func(t *testing.T, r *FunctionRunner)) {
	for _, lv := range []OptLevel{OptFastest, OptDefault, OptBest} {
		t.Run(lv.String(), func(t *testing.T) {
			run(t, NewFunctionRunner(NewTarget(WithOptLevel(lv), WithVerifier(true))))
		})
	}
}

func TestRunner_ReturnBool(t *testing.T) {
	eachTier(t, func(t *testing.T, r *FunctionRunner) {
		fn := NewFunction("truth", Signature{Returns: []Type{TBool}})
		bb := NewBuilder(fn)
		bb.Return(bb.Bconst(true))

		v, err := r.RunBool(fn)
		require.NoError(t, err)
		assert.True(t, v)
	})
}

func TestRunner_Arithmetic(t *testing.T) {
	const want = ((7+35)*3 - 11) ^ 9

	eachTier(t, func(t *testing.T, r *FunctionRunner) {
		fn := NewFunction("arith", Signature{Returns: []Type{TInt64}})
		bb := NewBuilder(fn)
		s := bb.Iadd(bb.Iconst(TInt64, 7), bb.Iconst(TInt64, 35))
		m := bb.Imul(s, bb.Iconst(TInt64, 3))
		d := bb.Isub(m, bb.Iconst(TInt64, 11))
		bb.Return(bb.Bxor(d, bb.Iconst(TInt64, 9)))

		v, err := r.RunInt(fn)
		require.NoError(t, err)
		assert.Equal(t, int64(want), v)
	})
}

func TestRunner_Shifts(t *testing.T) {
	eachTier(t, func(t *testing.T, r *FunctionRunner) {
		fn := NewFunction("shifts", Signature{Returns: []Type{TInt64}})
		bb := NewBuilder(fn)
		l := bb.Ishl(bb.Iconst(TInt64, 1), bb.Iconst(TInt64, 33))
		bb.Return(bb.Ushr(l, bb.Iconst(TInt64, 4)))

		v, err := r.RunInt(fn)
		require.NoError(t, err)
		assert.Equal(t, int64(1)<<29, v)
	})
}

func TestRunner_Popcnt(t *testing.T) {
	inputs := []int64{0, 1, 0xFF, 0x8000000000000000 - 1, -1, 0x5a5a5a5a5a5a5a5a}

	eachTier(t, func(t *testing.T, r *FunctionRunner) {
		for _, in := range inputs {
			fn := NewFunction("bits", Signature{Returns: []Type{TInt64}})
			bb := NewBuilder(fn)
			bb.Return(bb.Popcnt(bb.Iconst(TInt64, in)))

			v, err := r.RunInt(fn)
			require.NoError(t, err)
			assert.Equal(t, int64(bits.OnesCount64(uint64(in))), v, "input %#x", in)
		}
	})
}

func TestRunner_BranchSelection(t *testing.T) {
	eachTier(t, func(t *testing.T, r *FunctionRunner) {
		for _, in := range []int64{3, 8} {
			fn := NewFunction("pick", Signature{Returns: []Type{TInt64}})
			bb := NewBuilder(fn)
			lo, hi := bb.NewBlock(), bb.NewBlock()

			/* in < 5 ? 111 : 222 */
			c := bb.Icmp(CondLt, bb.Iconst(TInt64, in), bb.Iconst(TInt64, 5))
			bb.Brz(c, hi, lo)
			bb.SwitchTo(lo)
			bb.Return(bb.Iconst(TInt64, 111))
			bb.SwitchTo(hi)
			bb.Return(bb.Iconst(TInt64, 222))

			want := int64(111)
			if in >= 5 {
				want = 222
			}
			v, err := r.RunInt(fn)
			require.NoError(t, err)
			assert.Equal(t, want, v, "input %d", in)
		}
	})
}

func TestRunner_BrTable(t *testing.T) {
	eachTier(t, func(t *testing.T, r *FunctionRunner) {
		for _, in := range []int64{0, 1, 2, 7} {
			fn := NewFunction("dispatch", Signature{Returns: []Type{TInt64}})
			bb := NewBuilder(fn)
			c0, c1, c2, def := bb.NewBlock(), bb.NewBlock(), bb.NewBlock(), bb.NewBlock()
			bb.BrTable(bb.Iconst(TInt64, in), []Block{c0, c1, c2}, def)
			for i, b := range []Block{c0, c1, c2, def} {
				bb.SwitchTo(b)
				bb.Return(bb.Iconst(TInt64, int64(100+i)))
			}

			want := int64(103)
			if in < 3 {
				want = 100 + in
			}
			v, err := r.RunInt(fn)
			require.NoError(t, err)
			assert.Equal(t, want, v, "input %d", in)
		}
	})
}

func TestRunner_RejectsExternalCalls(t *testing.T) {
	fn := NewFunction("caller", Signature{Returns: []Type{TInt64}})
	bb := NewBuilder(fn)
	bb.Return(bb.Call("external", TInt64))

	r := NewFunctionRunner(NewTarget())
	_, err := r.RunInt(fn)
	assert.ErrorIs(t, err, ErrUnresolvedRelocs)
}
