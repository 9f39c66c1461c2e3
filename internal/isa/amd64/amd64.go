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

// Package amd64 is the x86-64 compilation target.
//
// The backend is deliberately simple: every value lives in a 64-bit
// register or an 8-byte frame slot, ALU results are computed in a scratch
// register, and R10/R11 are reserved as scratch so lowering never has to
// steal an allocatable register.
package amd64

import (
	"github.com/chenzhuoyu/iasm/x86_64"

	"github.com/forgecc/forge/internal/isa"
)

const (
	RAX = x86_64.RAX
	RCX = x86_64.RCX
	RDX = x86_64.RDX
	RBX = x86_64.RBX
	RSP = x86_64.RSP
	RBP = x86_64.RBP
	RSI = x86_64.RSI
	RDI = x86_64.RDI
	R8  = x86_64.R8
	R9  = x86_64.R9
	R10 = x86_64.R10
	R11 = x86_64.R11
	R12 = x86_64.R12
	R13 = x86_64.R13
	R14 = x86_64.R14
	R15 = x86_64.R15
)

// allocationOrder maps allocatable register indices to hardware registers.
// Caller-saved registers come first so short-lived values prefer them;
// RSP/RBP are the stack and frame pointers and R10/R11 stay free for the
// lowering scratch sequences.
var allocationOrder = [12]x86_64.Register64{
	RAX, RCX, RDX, RSI, RDI, R8, R9,
	RBX, R12, R13, R14, R15,
}

// calleeSaved[i] mirrors allocationOrder: the System V callee-saved set.
var calleeSaved = [12]bool{
	false, false, false, false, false, false, false,
	true, true, true, true, true,
}

func Ptr(base x86_64.Register, disp int32) *x86_64.MemoryOperand {
	return x86_64.Ptr(base, disp)
}

// Amd64 implements isa.TargetIsa. The descriptor is immutable after New and
// may be shared by any number of concurrent compilation contexts.
type Amd64 struct {
	flags isa.Flags
	arch  *x86_64.Arch
}

// New creates an x86-64 target with the given pass-gating flags.
func New(flags isa.Flags) *Amd64 {
	return &Amd64{
		flags: flags,
		arch:  x86_64.CreateArch(),
	}
}

func (self *Amd64) Name() string {
	return "amd64"
}

func (self *Amd64) Flags() isa.Flags {
	return self.flags
}

func (self *Amd64) Regs() isa.RegInfo {
	return isa.RegInfo{
		NumRegs:     len(allocationOrder),
		CalleeSaved: calleeSaved[:],
	}
}

// hwreg maps an allocatable register index to its hardware register.
func hwreg(idx int32) x86_64.Register64 {
	return allocationOrder[idx]
}
