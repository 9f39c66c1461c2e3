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

package regalloc

import (
	"fmt"
	"sort"

	"github.com/forgecc/forge/internal/ir"
	"github.com/forgecc/forge/internal/isa"
)

// Error occurs when no valid register assignment exists for the required
// live ranges under the target's register file. It is fatal for the
// compilation of that function.
type Error struct {
	Func   string
	Reason string
}

func (self Error) Error() string {
	return fmt.Sprintf("RegAllocError(%s): %s", self.Func, self.Reason)
}

type _Interval struct {
	val   ir.Value
	start int32
	end   int32
	ref   bool
}

// Context is the working storage of the linear-scan allocator. It keeps no
// state across functions other than buffer capacity; Clear resets it for
// the next compilation.
type Context struct {
	live      _Liveness
	order     []_Interval
	active    []int // indices into order, sorted by increasing end
	calls     []int32
	freeRegs  []int32
	freeSlots []int32
	nextSlot  int32
}

// Clear resets the allocator state, retaining buffer capacity.
func (self *Context) Clear() {
	self.order = self.order[:0]
	self.active = self.active[:0]
	self.calls = self.calls[:0]
	self.freeRegs = self.freeRegs[:0]
	self.freeSlots = self.freeSlots[:0]
	self.nextSlot = 0
}

// Run assigns a location to every value of fn and records the live
// reference slots of each call-site safepoint into fn.Frame.Safepoints.
// Values live across a call are assigned stack slots outright, so no
// caller-saved register ever needs preserving around a call.
func (self *Context) Run(fn *ir.Function, regs isa.RegInfo) error {
	if regs.NumRegs <= 0 {
		return Error{Func: fn.Name, Reason: "target has no allocatable registers"}
	}
	self.Clear()
	self.buildIntervals(fn)

	/* locations, one per value */
	if cap(fn.Locs) < fn.NumValues() {
		fn.Locs = make([]ir.Loc, fn.NumValues())
	} else {
		fn.Locs = fn.Locs[:fn.NumValues()]
		for i := range fn.Locs {
			fn.Locs[i] = ir.Loc{}
		}
	}

	/* all registers start out free, lowest index preferred */
	for i := regs.NumRegs - 1; i >= 0; i-- {
		self.freeRegs = append(self.freeRegs, int32(i))
	}

	/* scan the intervals in order of increasing start */
	for i := range self.order {
		it := &self.order[i]
		self.expire(fn, it.start)

		/* values live across a safepoint go straight to the stack */
		if self.spansCall(it) {
			fn.Locs[it.val] = ir.Loc{Kind: ir.LocStack, Idx: self.allocSlot()}
			self.insertActive(fn, i)
			continue
		}

		/* take a free register when one exists */
		if n := len(self.freeRegs); n != 0 {
			r := self.freeRegs[n-1]
			self.freeRegs = self.freeRegs[:n-1]
			fn.Locs[it.val] = ir.Loc{Kind: ir.LocReg, Idx: r}
			self.insertActive(fn, i)
			continue
		}

		/* all registers busy: spill whichever of the active intervals and
		 * the current one ends last */
		vi := self.victim(i)
		if vi == i {
			fn.Locs[it.val] = ir.Loc{Kind: ir.LocStack, Idx: self.allocSlot()}
			self.insertActive(fn, i)
			continue
		}

		/* steal the victim's register, move the victim to the stack */
		vv := self.order[vi].val
		fn.Locs[it.val] = fn.Locs[vv]
		fn.Locs[vv] = ir.Loc{Kind: ir.LocStack, Idx: self.allocSlot()}
		self.insertActive(fn, i)
	}

	/* collect per-safepoint reference slots */
	self.recordSafepoints(fn)
	return nil
}

// SpillSlots returns the number of stack slots the last Run consumed.
func (self *Context) SpillSlots() int32 {
	return self.nextSlot
}

func (self *Context) buildIntervals(fn *ir.Function) {
	self.live.compute(fn)
	nv := fn.NumValues()

	start := make([]int32, nv)
	end := make([]int32, nv)
	for i := range start {
		start[i] = -1
		end[i] = -1
	}
	touch := func(v ir.Value, pos int32) {
		if v == ir.NoValue {
			return
		}
		if start[v] < 0 || pos < start[v] {
			start[v] = pos
		}
		if pos > end[v] {
			end[v] = pos
		}
	}

	/* number the instructions linearly in block order */
	pos := int32(0)
	for i, bb := range fn.Blocks {
		first, last := pos, pos+int32(len(bb.Ins))

		/* values live into or out of the block span its boundary */
		self.live.in[i].foreach(func(v ir.Value) { touch(v, first) })
		self.live.out[i].foreach(func(v ir.Value) { touch(v, last) })

		for k := range bb.Ins {
			p := &bb.Ins[k]
			touch(p.Def, pos)
			for _, u := range p.Uses() {
				touch(u, pos)
			}
			if p.Op == ir.OpCall {
				self.calls = append(self.calls, pos)
			}
			pos++
		}
	}

	/* one interval per value that is defined at all */
	for v := 0; v < nv; v++ {
		if start[v] >= 0 {
			self.order = append(self.order, _Interval{
				val:   ir.Value(v),
				start: start[v],
				end:   end[v],
				ref:   fn.Types[v] == ir.TRef,
			})
		}
	}
	sort.Slice(self.order, func(i, j int) bool {
		return self.order[i].start < self.order[j].start
	})
}

func (self *Context) spansCall(it *_Interval) bool {
	for _, c := range self.calls {
		if it.start < c && it.end > c {
			return true
		}
	}
	return false
}

func (self *Context) allocSlot() int32 {
	if n := len(self.freeSlots); n != 0 {
		s := self.freeSlots[n-1]
		self.freeSlots = self.freeSlots[:n-1]
		return s
	}
	s := self.nextSlot
	self.nextSlot++
	return s
}

func (self *Context) expire(fn *ir.Function, pos int32) {
	k := 0
	for _, ai := range self.active {
		if self.order[ai].end >= pos {
			self.active[k] = ai
			k++
			continue
		}

		/* interval over, return its location to the free pools */
		switch loc := fn.Locs[self.order[ai].val]; loc.Kind {
		case ir.LocReg:
			self.freeRegs = append(self.freeRegs, loc.Idx)
		case ir.LocStack:
			self.freeSlots = append(self.freeSlots, loc.Idx)
		}
	}
	self.active = self.active[:k]
}

func (self *Context) insertActive(fn *ir.Function, i int) {
	self.active = append(self.active, i)
	sort.Slice(self.active, func(a, b int) bool {
		return self.order[self.active[a]].end < self.order[self.active[b]].end
	})
}

// victim picks the interval to spill when no register is free: the one
// ending last among the in-register actives and the current interval.
func (self *Context) victim(cur int) int {
	best := cur
	for k := len(self.active) - 1; k >= 0; k-- {
		ai := self.active[k]
		if self.order[ai].end > self.order[best].end {
			best = ai
		}
	}
	return best
}

func (self *Context) recordSafepoints(fn *ir.Function) {
	fn.Frame.Safepoints = fn.Frame.Safepoints[:0]
	ci := 0
	for _, bb := range fn.Blocks {
		for k := range bb.Ins {
			if bb.Ins[k].Op == ir.OpCall {
				fn.Frame.Safepoints = append(fn.Frame.Safepoints, self.refSlotsAt(fn, self.calls[ci]))
				ci++
			}
		}
	}
}

func (self *Context) refSlotsAt(fn *ir.Function, call int32) []int32 {
	var slots []int32
	for i := range self.order {
		it := &self.order[i]
		if !it.ref || it.start >= call || it.end <= call {
			continue
		}
		if loc := fn.Locs[it.val]; loc.Kind == ir.LocStack {
			slots = append(slots, loc.Idx)
		}
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i] < slots[j] })
	return slots
}
