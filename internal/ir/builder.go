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

package ir

import (
	"fmt"
	"math"
)

// Builder appends instructions to a Function one block at a time. It keeps
// no state beyond the insertion point, so it can be discarded freely.
type Builder struct {
	fn  *Function
	cur *BasicBlock
	pos SrcLoc
}

// NewBuilder creates a builder positioned at a fresh entry block of fn.
func NewBuilder(fn *Function) *Builder {
	p := &Builder{fn: fn}
	p.SwitchTo(fn.NewBlock())
	return p
}

// Func returns the function under construction.
func (self *Builder) Func() *Function {
	return self.fn
}

// Current returns the block instructions are currently appended to.
func (self *Builder) Current() Block {
	return self.cur.ID
}

// NewBlock creates a new empty block without moving the insertion point.
func (self *Builder) NewBlock() Block {
	return self.fn.NewBlock()
}

// SwitchTo moves the insertion point to the end of bb.
func (self *Builder) SwitchTo(bb Block) {
	self.cur = self.fn.Blocks[bb]
}

// SetPos tags subsequent instructions with the given source location.
func (self *Builder) SetPos(pos SrcLoc) {
	self.pos = pos
}

func (self *Builder) emit(p Instr) Value {
	if t := self.cur.Term(); t != nil {
		panic(fmt.Sprintf("ir: emitting %s into terminated block %s", p.Op, self.cur.ID))
	}
	p.Pos = self.pos
	self.cur.Ins = append(self.cur.Ins, p)
	return p.Def
}

func (self *Builder) value(op Opcode, ty Type, x Value, y Value) Value {
	return self.emit(Instr{
		Op:   op,
		Ty:   ty,
		Def:  self.fn.NewValue(ty),
		Args: [2]Value{x, y},
	})
}

/** Constants **/

func (self *Builder) Iconst(ty Type, v int64) Value {
	return self.emit(Instr{
		Op:   op2const(ty),
		Ty:   ty,
		Def:  self.fn.NewValue(ty),
		Imm:  v,
		Args: [2]Value{NoValue, NoValue},
	})
}

func (self *Builder) Bconst(v bool) Value {
	i := int64(0)
	if v {
		i = 1
	}
	return self.Iconst(TBool, i)
}

func (self *Builder) Fconst(ty Type, v float64) Value {
	return self.emit(Instr{
		Op:   OpFconst,
		Ty:   ty,
		Def:  self.fn.NewValue(ty),
		Imm:  int64(math.Float64bits(v)),
		Args: [2]Value{NoValue, NoValue},
	})
}

func op2const(ty Type) Opcode {
	switch {
	case ty == TBool:
		return OpBconst
	case ty.IsFloat():
		return OpFconst
	default:
		return OpIconst
	}
}

/** Arithmetic **/

func (self *Builder) Iadd(x Value, y Value) Value { return self.value(OpIadd, self.fn.TypeOf(x), x, y) }
func (self *Builder) Isub(x Value, y Value) Value { return self.value(OpIsub, self.fn.TypeOf(x), x, y) }
func (self *Builder) Imul(x Value, y Value) Value { return self.value(OpImul, self.fn.TypeOf(x), x, y) }
func (self *Builder) Band(x Value, y Value) Value { return self.value(OpBand, self.fn.TypeOf(x), x, y) }
func (self *Builder) Bor(x Value, y Value) Value  { return self.value(OpBor, self.fn.TypeOf(x), x, y) }
func (self *Builder) Bxor(x Value, y Value) Value { return self.value(OpBxor, self.fn.TypeOf(x), x, y) }
func (self *Builder) Ishl(x Value, y Value) Value { return self.value(OpIshl, self.fn.TypeOf(x), x, y) }
func (self *Builder) Ushr(x Value, y Value) Value { return self.value(OpUshr, self.fn.TypeOf(x), x, y) }
func (self *Builder) Fadd(x Value, y Value) Value { return self.value(OpFadd, self.fn.TypeOf(x), x, y) }
func (self *Builder) Fmul(x Value, y Value) Value { return self.value(OpFmul, self.fn.TypeOf(x), x, y) }

func (self *Builder) Popcnt(x Value) Value {
	return self.value(OpPopcnt, self.fn.TypeOf(x), x, NoValue)
}

func (self *Builder) Icmp(cc Cond, x Value, y Value) Value {
	return self.emit(Instr{
		Op:   OpIcmp,
		Cond: cc,
		Ty:   TBool,
		Def:  self.fn.NewValue(TBool),
		Args: [2]Value{x, y},
	})
}

// Call invokes an external symbol taking no arguments. A TVoid return type
// produces no result value. Every call site is a safepoint.
func (self *Builder) Call(sym string, ret Type) Value {
	def := NoValue
	if ret != TVoid {
		def = self.fn.NewValue(ret)
	}
	return self.emit(Instr{
		Op:   OpCall,
		Ty:   ret,
		Def:  def,
		Sym:  sym,
		Args: [2]Value{NoValue, NoValue},
	})
}

/** Terminators **/

func (self *Builder) Jump(to Block) {
	self.emit(Instr{
		Op:      OpJump,
		Def:     NoValue,
		Args:    [2]Value{NoValue, NoValue},
		Targets: []Block{to},
	})
}

func (self *Builder) Brz(v Value, ifzero Block, otherwise Block) {
	self.emit(Instr{
		Op:      OpBrz,
		Def:     NoValue,
		Args:    [2]Value{v, NoValue},
		Targets: []Block{ifzero, otherwise},
	})
}

// BrTable jumps to cases[v] when v is in range, and to def otherwise. The
// default target is stored as the last element of Targets.
func (self *Builder) BrTable(v Value, cases []Block, def Block) {
	tab := make([]Block, 0, len(cases)+1)
	tab = append(tab, cases...)
	tab = append(tab, def)
	self.emit(Instr{
		Op:      OpBrTable,
		Def:     NoValue,
		Args:    [2]Value{v, NoValue},
		Targets: tab,
	})
}

func (self *Builder) Return(v Value) {
	self.emit(Instr{
		Op:   OpReturn,
		Def:  NoValue,
		Args: [2]Value{v, NoValue},
	})
}

func (self *Builder) Trap(kind TrapKind) {
	self.emit(Instr{
		Op:   OpTrap,
		Def:  NoValue,
		Imm:  int64(kind),
		Args: [2]Value{NoValue, NoValue},
	})
}
