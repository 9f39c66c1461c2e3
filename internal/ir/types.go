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
)

// Type is the lattice of value types the IR can express.
type Type uint8

const (
	TVoid Type = iota
	TInt8
	TInt16
	TInt32
	TInt64
	TBool
	TFloat32
	TFloat64
	TRef // GC-visible pointer, reported in stack maps
)

var typeNames = [...]string{
	TVoid:    "void",
	TInt8:    "i8",
	TInt16:   "i16",
	TInt32:   "i32",
	TInt64:   "i64",
	TBool:    "b1",
	TFloat32: "f32",
	TFloat64: "f64",
	TRef:     "ref",
}

func (self Type) String() string {
	if int(self) < len(typeNames) {
		return typeNames[self]
	} else {
		return fmt.Sprintf("type(%d)", uint8(self))
	}
}

// IsInt checks whether the type lives in general purpose registers.
func (self Type) IsInt() bool {
	switch self {
	case TInt8, TInt16, TInt32, TInt64, TBool, TRef:
		return true
	default:
		return false
	}
}

// IsFloat checks whether the type lives in vector registers.
func (self Type) IsFloat() bool {
	return self == TFloat32 || self == TFloat64
}

// CallConv identifies the calling convention of a function signature.
type CallConv uint8

const (
	// CallConvHost is the native convention of the host target.
	CallConvHost CallConv = iota
)

// Signature describes the parameters and returns of a Function.
type Signature struct {
	Conv    CallConv
	Params  []Type
	Returns []Type
}

func (self *Signature) String() string {
	return fmt.Sprintf("sig(%v -> %v)", self.Params, self.Returns)
}
