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

// Package forge is a native code generator: build a function in its SSA IR,
// hand it to a compilation Context, and get machine code plus relocation,
// trap and stack-map records back.
//
//	fn := forge.NewFunction("answer", forge.Signature{Returns: []forge.Type{forge.TInt64}})
//	bb := forge.NewBuilder(fn)
//	bb.Return(bb.Iconst(forge.TInt64, 42))
//
//	ctx := forge.ForFunction(fn)
//	buf, info, err := ctx.CompileAndEmit(forge.NewTarget(), nil,
//	    forge.NullRelocSink{}, forge.NullTrapSink{}, forge.NullStackMapSink{})
//
// Contexts are reusable: Clear() resets one for the next function while
// keeping its internal allocations. Targets are immutable and safe to share
// across any number of concurrently compiling goroutines.
package forge

import (
	"github.com/forgecc/forge/internal/binemit"
	"github.com/forgecc/forge/internal/codegen"
	"github.com/forgecc/forge/internal/ir"
	"github.com/forgecc/forge/internal/isa"
)

// Compilation driver.
type (
	Context  = codegen.Context
	CodeInfo = binemit.CodeInfo
)

// IR construction.
type (
	Function  = ir.Function
	Builder   = ir.Builder
	Signature = ir.Signature
	Type      = ir.Type
	Value     = ir.Value
	Block     = ir.Block
	Cond      = ir.Cond
	TrapKind  = ir.TrapKind
	SrcLoc    = ir.SrcLoc
)

// Analyses exposed for inspection and tooling.
type (
	ControlFlowGraph = ir.ControlFlowGraph
	DominatorTree    = codegen.DominatorTree
	LoopAnalysis     = codegen.LoopAnalysis
	VerifierError    = codegen.VerifierError
)

// Emission sinks.
type (
	RelocKind        = binemit.RelocKind
	StackMap         = binemit.StackMap
	RelocSink        = binemit.RelocSink
	TrapSink         = binemit.TrapSink
	StackMapSink     = binemit.StackMapSink
	NullRelocSink    = binemit.NullRelocSink
	NullTrapSink     = binemit.NullTrapSink
	NullStackMapSink = binemit.NullStackMapSink
)

// Target configuration.
type (
	TargetIsa = isa.TargetIsa
	Flags     = isa.Flags
	OptLevel  = isa.OptLevel
)

const (
	TVoid    = ir.TVoid
	TInt8    = ir.TInt8
	TInt16   = ir.TInt16
	TInt32   = ir.TInt32
	TInt64   = ir.TInt64
	TBool    = ir.TBool
	TFloat32 = ir.TFloat32
	TFloat64 = ir.TFloat64
	TRef     = ir.TRef
)

const (
	CondEq  = ir.CondEq
	CondNe  = ir.CondNe
	CondLt  = ir.CondLt
	CondLe  = ir.CondLe
	CondGt  = ir.CondGt
	CondGe  = ir.CondGe
	CondULt = ir.CondULt
	CondULe = ir.CondULe
	CondUGt = ir.CondUGt
	CondUGe = ir.CondUGe
)

const (
	OptDefault = isa.OptDefault
	OptFastest = isa.OptFastest
	OptBest    = isa.OptBest
)

const (
	TrapUser        = ir.TrapUser
	TrapUnreachable = ir.TrapUnreachable
	TrapDivByZero   = ir.TrapDivByZero
	TrapOOB         = ir.TrapOOB
)

// NewFunction creates an empty function with the given name and signature.
func NewFunction(name string, sig Signature) *Function {
	return ir.NewFunction(name, sig)
}

// NewBuilder creates a builder positioned at a fresh entry block of fn.
func NewBuilder(fn *Function) *Builder {
	return ir.NewBuilder(fn)
}

// NewContext allocates a reusable compilation context around an empty
// function.
func NewContext() *Context {
	return codegen.NewContext()
}

// ForFunction allocates a compilation context around an existing function.
func ForFunction(fn *Function) *Context {
	return codegen.ForFunction(fn)
}
