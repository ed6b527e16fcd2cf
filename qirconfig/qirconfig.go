// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package qirconfig loads the decompiler's tunable options from a YAML
// document, the same way the teacher's own tools load their
// configuration.
package qirconfig

import (
	"os"

	"sigs.k8s.io/yaml"
)

// Options configures a decompile.Build/Execute/Lower run.
type Options struct {
	// ForceComprehensionMode, if set, overrides the code-object-name
	// heuristic and always opens a ComprehensionLoopBlock at FOR_ITER
	// regardless of the function's declared name.
	ForceComprehensionMode bool `json:"forceComprehensionMode"`
	// DisallowedOpcodes lists opcode names that cmd/qirc rejects,
	// before decompiling, in any function that contains one, even if
	// the decompiler otherwise supports them, letting an operator
	// shrink the accepted dialect for a given deployment.
	DisallowedOpcodes []string `json:"disallowedOpcodes,omitempty"`
	// MaxBlocks bounds the number of blocks Build may emit for a single
	// function, guarding against pathological or adversarial input; 0
	// means unbounded.
	MaxBlocks int `json:"maxBlocks,omitempty"`
}

// Default returns the zero-tuning configuration: comprehension mode
// keyed purely off code object name, every known opcode allowed, no
// block budget.
func Default() *Options {
	return &Options{}
}

// Load reads and parses a YAML options document from path.
func Load(path string) (*Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse parses a YAML options document already read into memory.
func Parse(data []byte) (*Options, error) {
	opts := Default()
	if err := yaml.Unmarshal(data, opts); err != nil {
		return nil, err
	}
	return opts, nil
}

// Disallows reports whether opts forbids opname, beyond whatever the
// decompiler's own closed opcode set already rejects.
func (o *Options) Disallows(opname string) bool {
	if o == nil {
		return false
	}
	for _, n := range o.DisallowedOpcodes {
		if n == opname {
			return true
		}
	}
	return false
}
