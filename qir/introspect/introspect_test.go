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

package introspect

import "testing"

func TestFixtureImplementsReader(t *testing.T) {
	var _ Reader = &Fixture{}
}

func TestFixtureGlobalValue(t *testing.T) {
	f := &Fixture{
		Locals:  []string{"x"},
		Frees:   []string{"outer"},
		Globals: []string{"math.sqrt"},
		Values:  map[string]any{"math.sqrt": "builtin"},
	}
	if got := f.LocalNames(); len(got) != 1 || got[0] != "x" {
		t.Fatalf("LocalNames = %v", got)
	}
	if got := f.FreeNames(); len(got) != 1 || got[0] != "outer" {
		t.Fatalf("FreeNames = %v", got)
	}
	if got := f.GlobalNames(); len(got) != 1 || got[0] != "math.sqrt" {
		t.Fatalf("GlobalNames = %v", got)
	}
	v, ok := f.GlobalValue("math.sqrt")
	if !ok || v != "builtin" {
		t.Fatalf("GlobalValue = %v, %v", v, ok)
	}
	if _, ok := f.GlobalValue("missing"); ok {
		t.Fatalf("GlobalValue(missing) should report not found")
	}
}
