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

package binemit

import (
	"github.com/forgecc/forge/internal/ir"
)

// Reloc is a recorded relocation site, offset relative to the code start.
type Reloc struct {
	Offset uint32
	Kind   RelocKind
	Symbol string
	Addend int64
}

// TrapSite is a recorded potentially-trapping instruction.
type TrapSite struct {
	Offset uint32
	Loc    ir.SrcLoc
	Kind   ir.TrapKind
}

// StackMapSite is a recorded safepoint.
type StackMapSite struct {
	Offset uint32
	Map    StackMap
}

// MachBuffer holds the fully relaxed machine artifact of one function: the
// final code bytes plus everything the emission pass replays into the
// caller's sinks. Branch relaxation fills it in; emission only copies bytes
// and forwards the recorded events, which keeps emission a pure function of
// the compiled state.
type MachBuffer struct {
	Target     string
	Code       []byte
	Jumptables []byte
	Rodata     []byte
	Relocs     []Reloc
	Traps      []TrapSite
	StackMaps  []StackMapSite
}

// Clear empties the buffer, retaining capacity.
func (self *MachBuffer) Clear() {
	self.Target = ""
	self.Code = self.Code[:0]
	self.Jumptables = self.Jumptables[:0]
	self.Rodata = self.Rodata[:0]
	self.Relocs = self.Relocs[:0]
	self.Traps = self.Traps[:0]
	self.StackMaps = self.StackMaps[:0]
}

// Valid reports whether the buffer holds a relaxed artifact.
func (self *MachBuffer) Valid() bool {
	return self.Target != ""
}

// Info measures the buffer.
func (self *MachBuffer) Info() CodeInfo {
	cs := uint32(len(self.Code))
	jt := uint32(len(self.Jumptables))
	ro := uint32(len(self.Rodata))
	return CodeInfo{
		CodeSize:       cs,
		JumptablesSize: jt,
		RodataSize:     ro,
		TotalSize:      cs + jt + ro,
	}
}

// CopyTo writes the artifact regions into out, which must hold at least
// Info().TotalSize bytes, and replays the recorded events into the sinks.
// It returns the measured CodeInfo.
func (self *MachBuffer) CopyTo(out []byte, relocs RelocSink, traps TrapSink, maps StackMapSink) CodeInfo {
	n := copy(out, self.Code)
	n += copy(out[n:], self.Jumptables)
	copy(out[n:], self.Rodata)

	/* one callback per site, in offset order */
	for _, r := range self.Relocs {
		relocs.Reloc(r.Offset, r.Kind, r.Symbol, r.Addend)
	}
	for _, t := range self.Traps {
		traps.Trap(t.Offset, t.Loc, t.Kind)
	}
	for _, m := range self.StackMaps {
		maps.StackMap(m.Offset, m.Map)
	}
	return self.Info()
}
