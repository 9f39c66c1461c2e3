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

// Value identifies an SSA value within one Function.
type Value int32

// NoValue marks the absence of a value operand or result.
const NoValue Value = -1

func (self Value) String() string {
	if self == NoValue {
		return "v?"
	} else {
		return fmt.Sprintf("v%d", int32(self))
	}
}

// Block identifies a basic block within one Function.
type Block int32

// NoBlock marks the absence of a block reference.
const NoBlock Block = -1

func (self Block) String() string {
	return fmt.Sprintf("bb%d", int32(self))
}

// Opcode enumerates every IR operation.
type Opcode uint8

const (
	OpInvalid Opcode = iota
	OpIconst         // integer constant, Imm
	OpBconst         // boolean constant, Imm is 0 or 1
	OpFconst         // float constant, Imm is the raw bit pattern
	OpIadd
	OpIsub
	OpImul
	OpBand
	OpBor
	OpBxor
	OpIshl
	OpUshr
	OpIcmp // integer compare, yields TBool
	OpPopcnt
	OpFadd
	OpFmul
	OpFcanon // NaN canonicalization of Args[0]
	OpCall   // call the external symbol Sym, safepoint
	OpJump   // to Targets[0]
	OpBrz    // Targets[0] if Args[0] == 0, Targets[1] otherwise
	OpBrTable
	OpReturn
	OpTrap // unconditional trap, Imm is the TrapKind
)

var opNames = [...]string{
	OpInvalid: "invalid",
	OpIconst:  "iconst",
	OpBconst:  "bconst",
	OpFconst:  "fconst",
	OpIadd:    "iadd",
	OpIsub:    "isub",
	OpImul:    "imul",
	OpBand:    "band",
	OpBor:     "bor",
	OpBxor:    "bxor",
	OpIshl:    "ishl",
	OpUshr:    "ushr",
	OpIcmp:    "icmp",
	OpPopcnt:  "popcnt",
	OpFadd:    "fadd",
	OpFmul:    "fmul",
	OpFcanon:  "fcanon",
	OpCall:    "call",
	OpJump:    "jump",
	OpBrz:     "brz",
	OpBrTable: "br_table",
	OpReturn:  "return",
	OpTrap:    "trap",
}

func (self Opcode) String() string {
	if int(self) < len(opNames) {
		return opNames[self]
	} else {
		return fmt.Sprintf("op(%d)", uint8(self))
	}
}

// IsTerminator checks whether the opcode ends a basic block.
func (self Opcode) IsTerminator() bool {
	switch self {
	case OpJump, OpBrz, OpBrTable, OpReturn, OpTrap:
		return true
	default:
		return false
	}
}

// IsConstant checks whether the opcode produces a compile-time constant.
func (self Opcode) IsConstant() bool {
	return self == OpIconst || self == OpBconst || self == OpFconst
}

// IsPure checks whether the opcode is free of side effects, which makes
// its instructions eligible for GVN, LICM and dead-code removal.
func (self Opcode) IsPure() bool {
	switch self {
	case OpIconst, OpBconst, OpFconst,
		OpIadd, OpIsub, OpImul,
		OpBand, OpBor, OpBxor,
		OpIshl, OpUshr,
		OpIcmp, OpPopcnt,
		OpFadd, OpFmul, OpFcanon:
		return true
	default:
		return false
	}
}

var opArity = [...]int8{
	OpIconst:  0,
	OpBconst:  0,
	OpFconst:  0,
	OpIadd:    2,
	OpIsub:    2,
	OpImul:    2,
	OpBand:    2,
	OpBor:     2,
	OpBxor:    2,
	OpIshl:    2,
	OpUshr:    2,
	OpIcmp:    2,
	OpPopcnt:  1,
	OpFadd:    2,
	OpFmul:    2,
	OpFcanon:  1,
	OpCall:    0,
	OpJump:    0,
	OpBrz:     1,
	OpBrTable: 1,
	OpReturn:  -1, // 0 or 1, depending on the signature
	OpTrap:    0,
}

// Cond is the condition code of an OpIcmp instruction.
type Cond uint8

const (
	CondEq Cond = iota
	CondNe
	CondLt
	CondLe
	CondGt
	CondGe
	CondULt
	CondULe
	CondUGt
	CondUGe
)

var condNames = [...]string{
	CondEq:  "eq",
	CondNe:  "ne",
	CondLt:  "slt",
	CondLe:  "sle",
	CondGt:  "sgt",
	CondGe:  "sge",
	CondULt: "ult",
	CondULe: "ule",
	CondUGt: "ugt",
	CondUGe: "uge",
}

func (self Cond) String() string {
	if int(self) < len(condNames) {
		return condNames[self]
	} else {
		return fmt.Sprintf("cond(%d)", uint8(self))
	}
}

// TrapKind classifies a potentially trapping code location.
type TrapKind uint8

const (
	TrapUser TrapKind = iota
	TrapUnreachable
	TrapDivByZero
	TrapOOB
)

var trapNames = [...]string{
	TrapUser:        "user",
	TrapUnreachable: "unreachable",
	TrapDivByZero:   "div0",
	TrapOOB:         "oob",
}

func (self TrapKind) String() string {
	if int(self) < len(trapNames) {
		return trapNames[self]
	} else {
		return fmt.Sprintf("trap(%d)", uint8(self))
	}
}

// Encoding hints attached by the instruction shrinking pass, honored by the
// target emitter when selecting between equivalent encodings.
const (
	HintNone      uint8 = iota
	HintZeroIdiom       // materialize zero with "xor r32, r32"
	HintImm32           // load a non-negative 32-bit immediate with "mov r32, imm32"
)

// Instr is one IR instruction. An instruction defines at most one value,
// recorded in Def; passes rewrite instructions in place.
type Instr struct {
	Op      Opcode
	Cond    Cond
	Hint    uint8
	Ty      Type
	Def     Value
	Args    [2]Value
	Imm     int64
	Sym     string
	Targets []Block
	Pos     SrcLoc
}

// Uses returns the value operands of the instruction.
func (self *Instr) Uses() []Value {
	switch n := opArity[self.Op]; {
	case n == 0:
		return nil
	case n == 1:
		return self.Args[:1]
	case n == 2:
		return self.Args[:2]
	case self.Args[0] != NoValue:
		return self.Args[:1]
	default:
		return nil
	}
}

func (self *Instr) String() string {
	buf := make([]string, 0, 4)
	for _, v := range self.Uses() {
		buf = append(buf, v.String())
	}
	switch self.Op {
	case OpIconst, OpBconst, OpFconst, OpTrap:
		buf = append(buf, fmt.Sprintf("%d", self.Imm))
	case OpIcmp:
		buf = append(buf, self.Cond.String())
	case OpCall:
		buf = append(buf, fmt.Sprintf("%q", self.Sym))
	}
	for _, bb := range self.Targets {
		buf = append(buf, bb.String())
	}
	if self.Def != NoValue {
		return fmt.Sprintf("%s = %s.%s %s", self.Def, self.Op, self.Ty, strings.Join(buf, ", "))
	} else {
		return fmt.Sprintf("%s %s", self.Op, strings.Join(buf, ", "))
	}
}
