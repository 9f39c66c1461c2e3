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
	"github.com/forgecc/forge/internal/ir"
)

type _BitSet []uint64

func newBitSet(buf _BitSet, n int) _BitSet {
	nw := (n + 63) >> 6
	if cap(buf) < nw {
		return make(_BitSet, nw)
	}
	buf = buf[:nw]
	for i := range buf {
		buf[i] = 0
	}
	return buf
}

func (self _BitSet) add(v ir.Value)      { self[v>>6] |= 1 << (uint(v) & 63) }
func (self _BitSet) del(v ir.Value)      { self[v>>6] &^= 1 << (uint(v) & 63) }
func (self _BitSet) has(v ir.Value) bool { return self[v>>6]&(1<<(uint(v)&63)) != 0 }

func (self _BitSet) union(other _BitSet) bool {
	ch := false
	for i, w := range other {
		if self[i]|w != self[i] {
			self[i] |= w
			ch = true
		}
	}
	return ch
}

func (self _BitSet) foreach(fn func(v ir.Value)) {
	for i, w := range self {
		for w != 0 {
			b := w & -w
			fn(ir.Value(i<<6 + popcount(b-1)))
			w &^= b
		}
	}
}

func popcount(v uint64) int {
	n := 0
	for v != 0 {
		v &= v - 1
		n++
	}
	return n
}

// _Liveness is per-block live-in/live-out sets computed with the usual
// backward dataflow iteration; back edges fall out of iterating to a fixed
// point, no loop analysis needed.
type _Liveness struct {
	in  []_BitSet
	out []_BitSet
	tmp _BitSet
}

func (self *_Liveness) compute(fn *ir.Function) {
	nb := len(fn.Blocks)
	nv := fn.NumValues()

	/* reuse the set buffers across runs */
	for len(self.in) < nb {
		self.in = append(self.in, nil)
		self.out = append(self.out, nil)
	}
	self.in = self.in[:nb]
	self.out = self.out[:nb]
	for i := 0; i < nb; i++ {
		self.in[i] = newBitSet(self.in[i], nv)
		self.out[i] = newBitSet(self.out[i], nv)
	}

	/* iterate until no live-in set changes */
	for ch := true; ch; {
		ch = false
		for i := nb - 1; i >= 0; i-- {
			bb := fn.Blocks[i]

			/* out[b] = union of in[s] over successors */
			if t := bb.Term(); t != nil {
				for _, s := range t.Targets {
					self.out[i].union(self.in[s])
				}
			}

			/* in[b] = (out[b] - defs) + uses, scanned backwards */
			self.tmp = newBitSet(self.tmp, nv)
			live := self.tmp
			live.union(self.out[i])
			for k := len(bb.Ins) - 1; k >= 0; k-- {
				p := &bb.Ins[k]
				if p.Def != ir.NoValue {
					live.del(p.Def)
				}
				for _, u := range p.Uses() {
					if u != ir.NoValue {
						live.add(u)
					}
				}
			}
			ch = self.in[i].union(live) || ch
		}
	}
}
