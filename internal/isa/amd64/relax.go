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
	"fmt"
	"math"

	"github.com/chenzhuoyu/iasm/x86_64"

	"github.com/forgecc/forge/internal/binemit"
	"github.com/forgecc/forge/internal/ir"
	"github.com/forgecc/forge/internal/isa"
)

// condition code nibbles of the Jcc encodings
const (
	_CC_AE = 0x3
	_CC_E  = 0x4
)

// fixed encodings of the indirect jump tail of a table dispatch:
//
//	movslq (%r11,%r10,4), %r10
//	addq   %r11, %r10
//	jmpq   *%r10
var tableTail = []byte{
	0x4F, 0x63, 0x14, 0x93,
	0x4D, 0x01, 0xDA,
	0x41, 0xFF, 0xE2,
}

type _ItemKind uint8

const (
	_KindRaw      _ItemKind = iota
	_KindBranch             // cc < 0 encodes an unconditional jump
	_KindTableLea           // rip-relative lea of a jump table into R11
	_KindCall               // pc-relative call with a relocation and a safepoint
	_KindTrap               // ud2
)

type _Item struct {
	kind   _ItemKind
	raw    []byte
	cc     int8
	wide   bool
	target ir.Block
	table  int
	sym    string
	smap   int
	trap   ir.TrapKind
	pos    ir.SrcLoc
}

// size returns the encoded size of the item under its current relaxation
// state. Branches start out short and only ever widen, so the layout
// fixpoint terminates.
func (self *_Item) size() int32 {
	switch self.kind {
	case _KindRaw:
		return int32(len(self.raw))
	case _KindTableLea:
		return 7
	case _KindCall:
		return 5
	case _KindTrap:
		return 2
	case _KindBranch:
		switch {
		case !self.wide:
			return 2
		case self.cc < 0:
			return 5
		default:
			return 6
		}
	default:
		return 0
	}
}

// _Relaxer lays one function out, resolves every branch to its final
// encoding and materializes the artifact into a MachBuffer.
type _Relaxer struct {
	isa    *Amd64
	fn     *ir.Function
	err    error
	smap   int
	items  []_Item
	heads  []int
	offs   []int32
	blocks []int32
	tables [][]ir.Block
}

func (self *_Relaxer) failf(format string, args ...interface{}) {
	if self.err == nil {
		self.err = isa.LayoutError{Target: self.isa.Name(), Reason: fmt.Sprintf(format, args...)}
	}
}

// RelaxBranches implements the final backend step: block layout, branch
// relaxation and encoding of the finished artifact into mach.
func (self *Amd64) RelaxBranches(fn *ir.Function, mach *binemit.MachBuffer) (binemit.CodeInfo, error) {
	if !fn.Frame.Valid {
		return binemit.CodeInfo{}, isa.LayoutError{Target: self.Name(), Reason: "stack frame has not been computed"}
	}

	rx := _Relaxer{isa: self, fn: fn}
	rx.build()
	if rx.err != nil {
		return binemit.CodeInfo{}, rx.err
	}

	rx.layout()
	if rx.err != nil {
		return binemit.CodeInfo{}, rx.err
	}
	return rx.emit(mach), nil
}

/** Lowering **/

func (self *_Relaxer) build() {
	self.prologue()
	self.heads = make([]int, len(self.fn.Blocks))

	for _, bb := range self.fn.Blocks {
		self.heads[bb.ID] = len(self.items)
		for i := range bb.Ins {
			if self.err != nil {
				return
			}
			v := &bb.Ins[i]
			if v.Op.IsTerminator() {
				self.terminator(bb, v)
			} else {
				self.lower(v)
			}
		}
	}
}

func (self *_Relaxer) prologue() {
	fr := &self.fn.Frame
	self.raw([]byte{0x55}) // push %rbp

	self.asm(func(p *x86_64.Program) {
		p.MOVQ(RSP, RBP)
		if fr.Size != 0 {
			p.SUBQ(fr.Size, RSP)
		}
		for k, r := range fr.SavedRegs {
			p.MOVQ(hwreg(int32(r)), Ptr(RBP, savedDisp(fr.SpillSlots, k)))
		}
	})
}

func (self *_Relaxer) epilogue(p *x86_64.Program) {
	fr := &self.fn.Frame
	for k, r := range fr.SavedRegs {
		p.MOVQ(Ptr(RBP, savedDisp(fr.SpillSlots, k)), hwreg(int32(r)))
	}
	p.MOVQ(RBP, RSP)
}

func (self *_Relaxer) lower(v *ir.Instr) {
	switch v.Op {
	case ir.OpIconst:
		self.asm(func(p *x86_64.Program) { self.constant(p, v) })

	case ir.OpIadd, ir.OpIsub, ir.OpImul, ir.OpBand, ir.OpBor, ir.OpBxor:
		self.asm(func(p *x86_64.Program) {
			self.loadTo(p, v.Args[0], R10)
			y := self.operand(p, v.Args[1])
			switch v.Op {
			case ir.OpIadd:
				p.ADDQ(y, R10)
			case ir.OpIsub:
				p.SUBQ(y, R10)
			case ir.OpImul:
				p.IMULQ(y, R10)
			case ir.OpBand:
				p.ANDQ(y, R10)
			case ir.OpBor:
				p.ORQ(y, R10)
			case ir.OpBxor:
				p.XORQ(y, R10)
			}
			self.store(p, R10, v.Def)
		})

	case ir.OpIshl, ir.OpUshr:
		self.asm(func(p *x86_64.Program) {
			/* shift counts live in CL, stash the real RCX in R11 */
			self.loadTo(p, v.Args[0], R10)
			p.MOVQ(RCX, R11)
			self.loadTo(p, v.Args[1], RCX)
			if v.Op == ir.OpIshl {
				p.SHLQ(x86_64.CL, R10)
			} else {
				p.SHRQ(x86_64.CL, R10)
			}
			p.MOVQ(R11, RCX)
			self.store(p, R10, v.Def)
		})

	case ir.OpIcmp:
		self.asm(func(p *x86_64.Program) {
			self.loadTo(p, v.Args[0], R10)
			y := self.operand(p, v.Args[1])
			p.CMPQ(y, R10)
			setcc[v.Cond](p, x86_64.Register8(R10))
			p.MOVZBQ(x86_64.Register8(R10), R10)
			self.store(p, R10, v.Def)
		})

	case ir.OpPopcnt:
		self.asm(func(p *x86_64.Program) {
			self.loadTo(p, v.Args[0], R10)
			p.POPCNTQ(R10, R10)
			self.store(p, R10, v.Def)
		})

	case ir.OpCall:
		self.items = append(self.items, _Item{kind: _KindCall, sym: v.Sym, smap: self.smap, pos: v.Pos})
		self.smap++
		if v.Def != ir.NoValue {
			self.asm(func(p *x86_64.Program) { self.store(p, RAX, v.Def) })
		}

	default:
		self.failf("no encoding for %s, it should have been legalized away", v.Op)
	}
}

func (self *_Relaxer) terminator(bb *ir.BasicBlock, v *ir.Instr) {
	switch v.Op {
	case ir.OpJump:
		self.jump(bb, v.Targets[0])

	case ir.OpBrz:
		self.asm(func(p *x86_64.Program) {
			r := self.operand(p, v.Args[0])
			p.TESTQ(r, r)
		})
		self.items = append(self.items, _Item{kind: _KindBranch, cc: _CC_E, target: v.Targets[0]})
		self.jump(bb, v.Targets[1])

	case ir.OpBrTable:
		n := len(v.Targets) - 1 // the default target comes last
		ti := len(self.tables)
		self.tables = append(self.tables, v.Targets[:n])
		self.asm(func(p *x86_64.Program) {
			self.loadTo(p, v.Args[0], R10)
			p.CMPQ(n, R10)
		})
		self.items = append(self.items, _Item{kind: _KindBranch, cc: _CC_AE, target: v.Targets[n]})
		self.items = append(self.items, _Item{kind: _KindTableLea, table: ti})
		self.raw(tableTail)

	case ir.OpReturn:
		self.asm(func(p *x86_64.Program) {
			if v.Args[0] != ir.NoValue {
				self.loadTo(p, v.Args[0], RAX)
			}
			self.epilogue(p)
		})
		self.raw([]byte{0x5D, 0xC3}) // pop %rbp; ret

	case ir.OpTrap:
		self.items = append(self.items, _Item{kind: _KindTrap, trap: ir.TrapKind(v.Imm), pos: v.Pos})
	}
}

// jump emits an unconditional branch, eliding it when the target is the
// next block in layout order.
func (self *_Relaxer) jump(bb *ir.BasicBlock, to ir.Block) {
	if to != bb.ID+1 {
		self.items = append(self.items, _Item{kind: _KindBranch, cc: -1, target: to})
	}
}

/** Layout **/

// layout assigns offsets to every item, widening short branches until all
// displacements fit. Sizes only ever grow, so this is a fixpoint.
func (self *_Relaxer) layout() {
	self.offs = make([]int32, len(self.items)+1)
	self.blocks = make([]int32, len(self.fn.Blocks))

	for {
		/* current offsets under the current widths */
		pos := int64(0)
		for i := range self.items {
			self.offs[i] = int32(pos)
			pos += int64(self.items[i].size())
		}
		if pos > math.MaxInt32 {
			self.failf("code size %d overflows the branch range", pos)
			return
		}
		self.offs[len(self.items)] = int32(pos)

		/* block addresses under those offsets */
		for b, h := range self.heads {
			self.blocks[b] = self.offs[h]
		}

		/* widen every short branch that no longer reaches */
		done := true
		for i := range self.items {
			v := &self.items[i]
			if v.kind != _KindBranch || v.wide {
				continue
			}
			if d := int64(self.blocks[v.target]) - int64(self.offs[i]+v.size()); d < math.MinInt8 || d > math.MaxInt8 {
				v.wide = true
				done = false
			}
		}
		if done {
			return
		}
	}
}

/** Emission **/

func (self *_Relaxer) emit(mach *binemit.MachBuffer) binemit.CodeInfo {
	mach.Clear()
	mach.Target = self.isa.Name()
	code := self.offs[len(self.items)]

	/* jump tables trail the code in the artifact */
	tabs := make([]int32, len(self.tables))
	base := code
	for i, t := range self.tables {
		tabs[i] = base
		base += int32(4 * len(t))
	}

	for i := range self.items {
		v := &self.items[i]
		off := self.offs[i]
		switch v.kind {
		case _KindRaw:
			mach.Code = append(mach.Code, v.raw...)

		case _KindBranch:
			mach.Code = appendBranch(mach.Code, v, self.blocks[v.target]-(off+v.size()))

		case _KindTableLea:
			/* lea table(%rip), %r11 */
			mach.Code = append(mach.Code, 0x4C, 0x8D, 0x1D)
			mach.Code = appendU32(mach.Code, uint32(tabs[v.table]-(off+7)))

		case _KindCall:
			mach.Code = append(mach.Code, 0xE8, 0x00, 0x00, 0x00, 0x00)
			mach.Relocs = append(mach.Relocs, binemit.Reloc{
				Offset: uint32(off + 1),
				Kind:   binemit.RelocPCRel4,
				Symbol: v.sym,
				Addend: -4,
			})
			mach.StackMaps = append(mach.StackMaps, binemit.StackMapSite{
				Offset: uint32(off + 5),
				Map: binemit.StackMap{
					FrameSize: self.fn.Frame.Size,
					RefSlots:  self.fn.Frame.Safepoints[v.smap],
				},
			})

		case _KindTrap:
			mach.Code = append(mach.Code, 0x0F, 0x0B) // ud2
			mach.Traps = append(mach.Traps, binemit.TrapSite{
				Offset: uint32(off),
				Loc:    v.pos,
				Kind:   v.trap,
			})
		}
	}

	/* table entries are signed 32-bit offsets relative to the table base */
	for i, t := range self.tables {
		for _, to := range t {
			mach.Jumptables = appendU32(mach.Jumptables, uint32(self.blocks[to]-tabs[i]))
		}
	}
	return mach.Info()
}

func appendU32(b []byte, v uint32) []byte {
	return append(b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func appendBranch(code []byte, v *_Item, disp int32) []byte {
	switch {
	case !v.wide && v.cc < 0:
		return append(code, 0xEB, byte(disp))
	case !v.wide:
		return append(code, 0x70|byte(v.cc), byte(disp))
	case v.cc < 0:
		code = append(code, 0xE9)
		return appendU32(code, uint32(disp))
	default:
		code = append(code, 0x0F, 0x80|byte(v.cc))
		return appendU32(code, uint32(disp))
	}
}
