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

package forge

import (
	"github.com/forgecc/forge/internal/isa"
	"github.com/forgecc/forge/internal/isa/amd64"
)

// Option adjusts the flag set a target is constructed with.
type Option func(*isa.Flags)

// WithOptLevel selects the optimization tier.
func WithOptLevel(lv OptLevel) Option {
	return func(f *isa.Flags) {
		f.Opt = lv
	}
}

// WithVerifier toggles IR verification between pipeline steps. The default
// follows the FORGE_ENABLE_VERIFIER environment variable.
func WithVerifier(on bool) Option {
	return func(f *isa.Flags) {
		f.EnableVerifier = on
	}
}

// WithNaNCanonicalization toggles the rewrite that forces every
// float-producing instruction to emit a single canonical NaN bit pattern.
func WithNaNCanonicalization(on bool) Option {
	return func(f *isa.Flags) {
		f.EnableNaNCanon = on
	}
}

// NewTarget builds an x86-64 target descriptor from the default flags plus
// the given options. The descriptor is immutable; build one per distinct
// configuration and share it freely.
func NewTarget(opts ...Option) TargetIsa {
	flags := isa.DefaultFlags()
	for _, fn := range opts {
		fn(&flags)
	}
	return amd64.New(flags)
}
