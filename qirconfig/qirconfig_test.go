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

package qirconfig

import "testing"

func TestParse(t *testing.T) {
	doc := []byte(`
forceComprehensionMode: true
disallowedOpcodes:
  - DELETE_SUBSCR
  - MAKE_CLOSURE
maxBlocks: 64
`)
	opts, err := Parse(doc)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !opts.ForceComprehensionMode {
		t.Fatalf("ForceComprehensionMode not set")
	}
	if opts.MaxBlocks != 64 {
		t.Fatalf("MaxBlocks = %d", opts.MaxBlocks)
	}
	if !opts.Disallows("DELETE_SUBSCR") {
		t.Fatalf("Disallows(DELETE_SUBSCR) = false")
	}
	if opts.Disallows("LOAD_FAST") {
		t.Fatalf("Disallows(LOAD_FAST) = true")
	}
}

func TestDefault(t *testing.T) {
	opts := Default()
	if opts.ForceComprehensionMode || opts.MaxBlocks != 0 || len(opts.DisallowedOpcodes) != 0 {
		t.Fatalf("Default() = %+v, want zero value", opts)
	}
	if opts.Disallows("anything") {
		t.Fatalf("Default().Disallows should always be false")
	}
}
