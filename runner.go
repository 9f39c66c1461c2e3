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
	"errors"
	"unsafe"

	"github.com/forgecc/forge/internal/loader"
)

// ErrUnresolvedRelocs is returned by the runner for functions that call
// external symbols, which it has no way to resolve.
var ErrUnresolvedRelocs = errors.New("forge: function has unresolved relocations")

// FunctionRunner compiles functions on the host target, maps them into
// executable memory and calls them. It exists for tests and experiments;
// loaded code is never unmapped.
type FunctionRunner struct {
	ctx *Context
	tgt TargetIsa
}

// NewFunctionRunner creates a runner that compiles with the given target.
func NewFunctionRunner(tgt TargetIsa) *FunctionRunner {
	return &FunctionRunner{
		ctx: NewContext(),
		tgt: tgt,
	}
}

type relocCounter struct {
	NullRelocSink
	n int
}

func (self *relocCounter) Reloc(uint32, RelocKind, string, int64) {
	self.n++
}

// load compiles fn and places the artifact into executable memory.
func (self *FunctionRunner) load(fn *Function) (loader.Function, error) {
	self.ctx.Clear()
	self.ctx.Func = fn

	var rc relocCounter
	mem, _, err := self.ctx.CompileAndEmit(self.tgt, nil, &rc, NullTrapSink{}, NullStackMapSink{})
	if err != nil {
		return nil, err
	}
	if rc.n != 0 {
		return nil, ErrUnresolvedRelocs
	}
	return loader.Loader(mem).Load(), nil
}

// RunBool compiles and executes a niladic function returning a single
// boolean.
func (self *FunctionRunner) RunBool(fn *Function) (bool, error) {
	f, err := self.load(fn)
	if err != nil {
		return false, err
	}
	return (*(*func() bool)(unsafe.Pointer(&f)))(), nil
}

// RunInt compiles and executes a niladic function returning a single
// 64-bit integer.
func (self *FunctionRunner) RunInt(fn *Function) (int64, error) {
	f, err := self.load(fn)
	if err != nil {
		return 0, err
	}
	return (*(*func() int64)(unsafe.Pointer(&f)))(), nil
}
