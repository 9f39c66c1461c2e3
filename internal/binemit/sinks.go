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
	"fmt"

	"github.com/forgecc/forge/internal/ir"
)

// RelocKind identifies how the bytes at a relocation site must be patched.
type RelocKind uint8

const (
	// RelocPCRel4 is a 4-byte PC-relative reference, measured from the end
	// of the 4-byte field.
	RelocPCRel4 RelocKind = iota

	// RelocAbs8 is an 8-byte absolute address.
	RelocAbs8
)

func (self RelocKind) String() string {
	switch self {
	case RelocPCRel4:
		return "pcrel4"
	case RelocAbs8:
		return "abs8"
	default:
		return fmt.Sprintf("reloc(%d)", uint8(self))
	}
}

// StackMap records which spill slots hold live references at one safepoint.
// Slots are 8-byte slot numbers within the frame of the emitted function.
type StackMap struct {
	FrameSize int32
	RefSlots  []int32
}

// RelocSink receives one callback per relocation site during emission.
type RelocSink interface {
	Reloc(offset uint32, kind RelocKind, symbol string, addend int64)
}

// TrapSink receives one callback per potentially trapping instruction
// during emission.
type TrapSink interface {
	Trap(offset uint32, loc ir.SrcLoc, kind ir.TrapKind)
}

// StackMapSink receives one callback per safepoint during emission.
type StackMapSink interface {
	StackMap(offset uint32, m StackMap)
}

// NullRelocSink ignores relocations.
type NullRelocSink struct{}

func (NullRelocSink) Reloc(uint32, RelocKind, string, int64) {}

// NullTrapSink ignores trap sites.
type NullTrapSink struct{}

func (NullTrapSink) Trap(uint32, ir.SrcLoc, ir.TrapKind) {}

// NullStackMapSink ignores stack maps.
type NullStackMapSink struct{}

func (NullStackMapSink) StackMap(uint32, StackMap) {}
