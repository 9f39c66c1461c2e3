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

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgecc/forge/internal/binemit"
	"github.com/forgecc/forge/internal/ir"
	"github.com/forgecc/forge/internal/isa"
	"github.com/forgecc/forge/internal/isa/amd64"
)

// fakeTarget is a minimal TargetIsa that performs no lowering and encodes
// every function as the same canned artifact. It exists so pipeline
// behavior can be observed without real instruction selection in the way.
type fakeTarget struct {
	flags       isa.Flags
	legalizeErr error
}

func (self fakeTarget) Name() string      { return "fake" }
func (self fakeTarget) Flags() isa.Flags  { return self.flags }
func (self fakeTarget) Regs() isa.RegInfo { return isa.RegInfo{NumRegs: 4, CalleeSaved: make([]bool, 4)} }

func (self fakeTarget) Legalize(fn *ir.Function, cfg *ir.ControlFlowGraph) error {
	if self.legalizeErr != nil {
		return self.legalizeErr
	}
	cfg.Compute(fn)
	return nil
}

func (self fakeTarget) PrologueEpilogue(fn *ir.Function) error {
	fn.Frame.Valid = true
	return nil
}

func (self fakeTarget) ShrinkInstructions(fn *ir.Function) {}

func (self fakeTarget) RelaxBranches(fn *ir.Function, mach *binemit.MachBuffer) (binemit.CodeInfo, error) {
	mach.Clear()
	mach.Target = self.Name()
	mach.Code = append(mach.Code, 0x90, 0xC3)
	mach.Rodata = append(mach.Rodata, 0xAA)
	return mach.Info(), nil
}

func retconst(fn *ir.Function, v int64) {
	bb := ir.NewBuilder(fn)
	bb.Return(bb.Iconst(ir.TInt64, v))
}

func buildArith(fn *ir.Function, a int64, b int64) {
	bb := ir.NewBuilder(fn)
	x := bb.Iconst(ir.TInt64, a)
	y := bb.Iconst(ir.TInt64, b)
	s := bb.Iadd(x, y)
	bb.Return(bb.Bxor(s, bb.Band(x, y)))
}

func TestContext_TierGating(t *testing.T) {
	traces := map[isa.OptLevel][]string{
		isa.OptFastest: {
			"compute_cfg", "legalize", "compute_domtree", "unreachable_code",
			"regalloc", "prologue_epilogue", "relax_branches",
		},
		isa.OptDefault: {
			"compute_cfg", "preopt", "legalize", "postopt", "compute_domtree",
			"unreachable_code", "dce", "regalloc", "prologue_epilogue",
			"relax_branches",
		},
		isa.OptBest: {
			"compute_cfg", "preopt", "legalize", "postopt", "compute_domtree",
			"compute_loop_analysis", "licm", "gvn", "compute_domtree",
			"unreachable_code", "dce", "regalloc", "prologue_epilogue",
			"shrink_instructions", "relax_branches",
		},
	}

	for opt, want := range traces {
		fn := ir.NewFunction("ret42", ir.Signature{Returns: []ir.Type{ir.TInt64}})
		retconst(fn, 42)

		ctx := ForFunction(fn)
		info, err := ctx.Compile(fakeTarget{flags: isa.Flags{Opt: opt}})
		require.NoError(t, err, opt)
		assert.Equal(t, want, ctx.Trace(), opt)
		assert.Equal(t, uint32(3), info.TotalSize, opt)
	}
}

func TestContext_VerifierStagesInTrace(t *testing.T) {
	fn := ir.NewFunction("ret42", ir.Signature{Returns: []ir.Type{ir.TInt64}})
	retconst(fn, 42)

	ctx := ForFunction(fn)
	_, err := ctx.Compile(fakeTarget{flags: isa.Flags{Opt: isa.OptFastest, EnableVerifier: true}})
	require.NoError(t, err)
	assert.Equal(t, "verify_input", ctx.Trace()[0])
}

func TestContext_VerifierToggle(t *testing.T) {
	/* returning a bool from an int64 function is structurally invalid */
	mk := func() *Context {
		fn := ir.NewFunction("badret", ir.Signature{Returns: []ir.Type{ir.TInt64}})
		bb := ir.NewBuilder(fn)
		bb.Return(bb.Iconst(ir.TBool, 1))
		return ForFunction(fn)
	}

	_, err := mk().Compile(fakeTarget{flags: isa.Flags{Opt: isa.OptFastest}})
	assert.NoError(t, err)

	ctx := mk()
	_, err = ctx.Compile(fakeTarget{flags: isa.Flags{Opt: isa.OptFastest, EnableVerifier: true}})
	var verr VerifierError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "badret", verr.Func)
	require.Len(t, verr.List, 1)
	assert.Contains(t, verr.List[0].Msg, "return type mismatch")
	assert.Equal(t, []string{"verify_input"}, ctx.Trace())
}

func TestContext_FailFast(t *testing.T) {
	fn := ir.NewFunction("ret42", ir.Signature{Returns: []ir.Type{ir.TInt64}})
	retconst(fn, 42)

	boom := isa.LegalizeError{Target: "fake", Op: ir.OpIconst, Note: "boom"}
	ctx := ForFunction(fn)
	info, err := ctx.Compile(fakeTarget{flags: isa.Flags{Opt: isa.OptBest}, legalizeErr: boom})

	assert.Equal(t, boom, err)
	assert.Equal(t, binemit.CodeInfo{}, info)
	assert.Equal(t, "legalize", ctx.Trace()[len(ctx.Trace())-1])
}

func TestContext_EmitToSlice(t *testing.T) {
	fn := ir.NewFunction("ret42", ir.Signature{Returns: []ir.Type{ir.TInt64}})
	retconst(fn, 42)
	ctx := ForFunction(fn)
	tgt := fakeTarget{flags: isa.Flags{}}

	_, err := ctx.EmitToSlice(tgt, make([]byte, 16), binemit.NullRelocSink{}, binemit.NullTrapSink{}, binemit.NullStackMapSink{})
	assert.ErrorIs(t, err, ErrNotCompiled)

	info, err := ctx.Compile(tgt)
	require.NoError(t, err)

	_, err = ctx.EmitToSlice(tgt, make([]byte, info.TotalSize-1), binemit.NullRelocSink{}, binemit.NullTrapSink{}, binemit.NullStackMapSink{})
	assert.ErrorIs(t, err, ErrBufferTooSmall)

	out := make([]byte, info.TotalSize)
	got, err := ctx.EmitToSlice(tgt, out, binemit.NullRelocSink{}, binemit.NullTrapSink{}, binemit.NullStackMapSink{})
	require.NoError(t, err)
	assert.Equal(t, info, got)
	assert.Equal(t, []byte{0x90, 0xC3, 0xAA}, out)

	/* a cleared context no longer holds an artifact */
	ctx.Clear()
	_, err = ctx.EmitToSlice(tgt, out, binemit.NullRelocSink{}, binemit.NullTrapSink{}, binemit.NullStackMapSink{})
	assert.ErrorIs(t, err, ErrNotCompiled)
}

func TestContext_CompileAndEmitAppends(t *testing.T) {
	fn := ir.NewFunction("ret42", ir.Signature{Returns: []ir.Type{ir.TInt64}})
	retconst(fn, 42)
	ctx := ForFunction(fn)
	tgt := fakeTarget{flags: isa.Flags{}}

	/* reallocation path: capacity is too small to append in place */
	mem := []byte{7, 7, 7}
	mem, info, err := ctx.CompileAndEmit(tgt, mem, binemit.NullRelocSink{}, binemit.NullTrapSink{}, binemit.NullStackMapSink{})
	require.NoError(t, err)
	assert.Equal(t, uint32(3), info.TotalSize)
	assert.Equal(t, []byte{7, 7, 7, 0x90, 0xC3, 0xAA}, mem)

	/* in-place path: spare capacity must be reused, not reallocated */
	buf := make([]byte, 2, 32)
	buf[0], buf[1] = 1, 2
	out, _, err := ctx.CompileAndEmit(tgt, buf, binemit.NullRelocSink{}, binemit.NullTrapSink{}, binemit.NullStackMapSink{})
	require.NoError(t, err)
	assert.Equal(t, 32, cap(out))
	assert.Equal(t, []byte{1, 2, 0x90, 0xC3, 0xAA}, out)
}

func TestContext_DeterministicEmission(t *testing.T) {
	faker := gofakeit.New(20240817)
	a, b := faker.Int64(), faker.Int64()

	for _, opt := range []isa.OptLevel{isa.OptFastest, isa.OptDefault, isa.OptBest} {
		tgt := amd64.New(isa.Flags{Opt: opt, EnableVerifier: true})

		var mems [][]byte
		var infos []binemit.CodeInfo
		for i := 0; i < 2; i++ {
			fn := ir.NewFunction("arith", ir.Signature{Returns: []ir.Type{ir.TInt64}})
			buildArith(fn, a, b)
			mem, info, err := ForFunction(fn).CompileAndEmit(tgt, nil, binemit.NullRelocSink{}, binemit.NullTrapSink{}, binemit.NullStackMapSink{})
			require.NoError(t, err, opt)
			mems, infos = append(mems, mem), append(infos, info)
		}
		assert.Equal(t, infos[0], infos[1], opt)
		assert.Equal(t, mems[0], mems[1], opt)
	}
}

func TestContext_ClearIsolatesCompilations(t *testing.T) {
	tgt := amd64.New(isa.Flags{Opt: isa.OptDefault, EnableVerifier: true})
	sig := ir.Signature{Returns: []ir.Type{ir.TInt64}}

	ctx := NewContext()
	ctx.Func.Name, ctx.Func.Sig = "first", sig
	buildArith(ctx.Func, 1111, 2222)
	_, _, err := ctx.CompileAndEmit(tgt, nil, binemit.NullRelocSink{}, binemit.NullTrapSink{}, binemit.NullStackMapSink{})
	require.NoError(t, err)

	/* a recycled context must produce the same bytes as a fresh one */
	ctx.Clear()
	ctx.Func.Name, ctx.Func.Sig = "second", sig
	buildArith(ctx.Func, 5, 7)
	reused, rinfo, err := ctx.CompileAndEmit(tgt, nil, binemit.NullRelocSink{}, binemit.NullTrapSink{}, binemit.NullStackMapSink{})
	require.NoError(t, err)

	fn := ir.NewFunction("second", sig)
	buildArith(fn, 5, 7)
	fresh, finfo, err := ForFunction(fn).CompileAndEmit(tgt, nil, binemit.NullRelocSink{}, binemit.NullTrapSink{}, binemit.NullStackMapSink{})
	require.NoError(t, err)

	assert.Equal(t, finfo, rinfo)
	assert.Equal(t, fresh, reused)
}
