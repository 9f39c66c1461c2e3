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

// Package rt contains the small pieces of unsafe runtime plumbing that the
// raw emission path and the executable-memory loader need.
package rt

import (
	"reflect"
	"unsafe"
)

type GoSlice struct {
	Ptr unsafe.Pointer
	Len int
	Cap int
}

type GoEface struct {
	Type  unsafe.Pointer
	Value unsafe.Pointer
}

// BytesFrom views the memory at p as a byte slice of length n and
// capacity c, without copying.
func BytesFrom(p unsafe.Pointer, n int, c int) (r []byte) {
	(*GoSlice)(unsafe.Pointer(&r)).Ptr = p
	(*GoSlice)(unsafe.Pointer(&r)).Len = n
	(*GoSlice)(unsafe.Pointer(&r)).Cap = c
	return
}

// FuncAddr extracts the code entry point from a Go function value.
func FuncAddr(f interface{}) unsafe.Pointer {
	if reflect.TypeOf(f).Kind() != reflect.Func {
		panic("f is not a function")
	}
	return *(*unsafe.Pointer)((*GoEface)(unsafe.Pointer(&f)).Value)
}
