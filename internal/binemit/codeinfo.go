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
)

// CodeInfo describes one emitted artifact. The layout in memory is machine
// code first, then jump tables, then read-only data; the three sizes always
// add up to TotalSize. The value returned by a compile must match the value
// a subsequent emission measures, byte for byte of the same function.
type CodeInfo struct {
	CodeSize       uint32
	JumptablesSize uint32
	RodataSize     uint32
	TotalSize      uint32
}

func (self CodeInfo) String() string {
	return fmt.Sprintf(
		"code=%d jt=%d rodata=%d total=%d",
		self.CodeSize,
		self.JumptablesSize,
		self.RodataSize,
		self.TotalSize,
	)
}
