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

//go:build linux || darwin

// Package loader places finished machine code into executable memory.
//
// Loaded functions are leaf code: they never call back into Go, never grow
// the stack and carry no Go function metadata, so nothing is registered
// with the Go runtime.
package loader

import (
	"os"
	"sync/atomic"
	"syscall"
	"unsafe"

	"github.com/forgecc/forge/internal/rt"
)

const (
	_AP = syscall.MAP_ANON | syscall.MAP_PRIVATE
	_RX = syscall.PROT_READ | syscall.PROT_EXEC
	_RW = syscall.PROT_READ | syscall.PROT_WRITE
)

type (
	Loader   []byte
	Function unsafe.Pointer
)

var (
	FnCount  uint32
	LoadSize uintptr
)

func mkptr(m uintptr) unsafe.Pointer {
	return *(*unsafe.Pointer)(unsafe.Pointer(&m))
}

func alignUp(n uintptr, a int) uintptr {
	return (n + uintptr(a) - 1) &^ (uintptr(a) - 1)
}

// Load copies the code into a fresh page-aligned mapping, flips the
// mapping to read-execute and returns the entry point. The mapping is
// never unmapped; loaded code lives for the rest of the process.
func (self Loader) Load() (f Function) {
	var mm uintptr
	var er syscall.Errno

	/* align the size to pages */
	nf := uintptr(len(self))
	nb := alignUp(nf, os.Getpagesize())

	/* allocate a block of memory */
	if mm, _, er = syscall.Syscall6(syscall.SYS_MMAP, 0, nb, _RW, _AP, 0, 0); er != 0 {
		panic(er)
	}

	/* copy code into the memory */
	copy(rt.BytesFrom(mkptr(mm), len(self), int(nb)), self)

	/* make it executable */
	if _, _, err := syscall.Syscall(syscall.SYS_MPROTECT, mm, nb, _RX); err != 0 {
		panic(err)
	}

	/* record statistics */
	atomic.AddUint32(&FnCount, 1)
	atomic.AddUintptr(&LoadSize, nb)
	return Function(&mm)
}
