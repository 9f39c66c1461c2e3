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
	"strings"
)

// LocKind discriminates the location a value is assigned to after register
// allocation.
type LocKind uint8

const (
	LocNone LocKind = iota
	LocReg          // allocatable register, Idx is the target register index
	LocStack        // spill slot, Idx is the slot number
)

// Loc is the physical location of one value.
type Loc struct {
	Kind LocKind
	Idx  int32
}

func (self Loc) String() string {
	switch self.Kind {
	case LocReg:
		return fmt.Sprintf("reg#%d", self.Idx)
	case LocStack:
		return fmt.Sprintf("slot#%d", self.Idx)
	default:
		return "unassigned"
	}
}

// FrameLayout is the stack frame computed by the prologue/epilogue pass.
// Offsets are negative displacements from the frame pointer.
type FrameLayout struct {
	Valid      bool
	Size       int32     // total frame size in bytes, keeps the stack aligned
	SpillSlots int32     // number of 8-byte spill slots
	SavedRegs  []uint8   // allocatable register indices saved in the prologue
	RefSlots   []int32   // spill slot numbers holding TRef values
	Safepoints [][]int32 // live reference slots per call site, in layout order
}

func (self *FrameLayout) clear() {
	self.Valid = false
	self.Size = 0
	self.SpillSlots = 0
	self.SavedRegs = self.SavedRegs[:0]
	self.RefSlots = self.RefSlots[:0]
	self.Safepoints = self.Safepoints[:0]
}

// BasicBlock is a straight-line instruction sequence ending in a terminator.
type BasicBlock struct {
	ID  Block
	Ins []Instr
}

// Term returns the block terminator, or nil if the block is still open.
func (self *BasicBlock) Term() *Instr {
	if n := len(self.Ins); n == 0 {
		return nil
	} else if p := &self.Ins[n-1]; !p.Op.IsTerminator() {
		return nil
	} else {
		return p
	}
}

func (self *BasicBlock) String() string {
	buf := make([]string, 0, len(self.Ins)+1)
	buf = append(buf, fmt.Sprintf("%s:", self.ID))
	for i := range self.Ins {
		buf = append(buf, "    "+self.Ins[i].String())
	}
	return strings.Join(buf, "\n")
}

// Function is the unit of compilation: an ordered list of basic blocks in
// SSA form plus per-value bookkeeping. Blocks[0] is the entry block. It is
// exclusively owned by one compilation context at a time.
type Function struct {
	Name   string
	Sig    Signature
	Blocks []*BasicBlock
	Types  []Type // value types, indexed by Value
	Locs   []Loc  // value locations, filled by register allocation
	Frame  FrameLayout
	pool   []*BasicBlock
}

// NewFunction creates an empty function with the given name and signature.
func NewFunction(name string, sig Signature) *Function {
	return &Function{
		Name: name,
		Sig:  sig,
	}
}

// Clear resets the function to empty while retaining the allocated capacity
// of every internal buffer, so it can be rebuilt without reallocation.
func (self *Function) Clear() {
	for _, bb := range self.Blocks {
		bb.Ins = bb.Ins[:0]
		self.pool = append(self.pool, bb)
	}
	self.Name = ""
	self.Sig = Signature{}
	self.Blocks = self.Blocks[:0]
	self.Types = self.Types[:0]
	self.Locs = self.Locs[:0]
	self.Frame.clear()
}

// NewBlock appends a fresh empty block and returns its handle.
func (self *Function) NewBlock() Block {
	var bb *BasicBlock

	/* reuse a pooled block if possible */
	if n := len(self.pool); n != 0 {
		bb, self.pool = self.pool[n-1], self.pool[:n-1]
	} else {
		bb = new(BasicBlock)
	}

	/* attach to the block list */
	bb.ID = Block(len(self.Blocks))
	self.Blocks = append(self.Blocks, bb)
	return bb.ID
}

// NewValue allocates a fresh SSA value of the given type.
func (self *Function) NewValue(ty Type) Value {
	self.Types = append(self.Types, ty)
	return Value(len(self.Types) - 1)
}

// NumValues returns the number of values allocated so far.
func (self *Function) NumValues() int {
	return len(self.Types)
}

// TypeOf returns the type of a value.
func (self *Function) TypeOf(v Value) Type {
	if v == NoValue {
		return TVoid
	} else {
		return self.Types[v]
	}
}

// LocOf returns the assigned location of a value, or the zero Loc if
// register allocation has not run.
func (self *Function) LocOf(v Value) Loc {
	if int(v) >= len(self.Locs) {
		return Loc{}
	} else {
		return self.Locs[v]
	}
}

// Compact removes every block whose live flag is false, renumbers the
// remaining blocks and rewrites all branch targets. The entry block must be
// kept. Removed blocks return to the internal pool.
func (self *Function) Compact(live []bool) {
	remap := make([]Block, len(self.Blocks))
	kept := self.Blocks[:0]

	/* renumber the surviving blocks */
	for i, bb := range self.Blocks {
		if !live[i] {
			remap[i] = NoBlock
			bb.Ins = bb.Ins[:0]
			self.pool = append(self.pool, bb)
			continue
		}
		bb.ID = Block(len(kept))
		remap[i] = bb.ID
		kept = append(kept, bb)
	}
	self.Blocks = kept

	/* rewrite the branch targets */
	for _, bb := range self.Blocks {
		t := bb.Term()
		if t == nil {
			continue
		}
		for k, to := range t.Targets {
			t.Targets[k] = remap[to]
		}
	}
}

// Entry returns the entry block, or nil for an empty function.
func (self *Function) Entry() *BasicBlock {
	if len(self.Blocks) == 0 {
		return nil
	} else {
		return self.Blocks[0]
	}
}

func (self *Function) String() string {
	buf := make([]string, 0, len(self.Blocks)+1)
	buf = append(buf, fmt.Sprintf("function %q %s {", self.Name, self.Sig.String()))
	for _, bb := range self.Blocks {
		buf = append(buf, bb.String())
	}
	buf = append(buf, "}")
	return strings.Join(buf, "\n")
}
