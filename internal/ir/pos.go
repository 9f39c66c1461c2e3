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

// SrcLoc is an opaque source location carried from the front-end through to
// the trap sink. The zero value means "no location".
type SrcLoc uint32

// NoSrcLoc is the missing source location.
const NoSrcLoc SrcLoc = 0

func (self SrcLoc) String() string {
	if self == NoSrcLoc {
		return "@?"
	} else {
		return fmt.Sprintf("@%04x", uint32(self))
	}
}
