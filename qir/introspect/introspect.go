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

// Package introspect declares the narrow capability the decompiler's
// host-language collaborator would use to answer scoping questions
// about a function before it is decompiled: which names are local to
// it, which are free (closed over from an enclosing scope), which are
// global, and what a given global name currently resolves to.
//
// Real introspection (walking an actual function's code object and its
// enclosing frames) belongs to the host language runtime and is out of
// scope for this module; Reader is implemented here only by Fixture,
// a literal test double.
package introspect

// Reader answers scoping questions about a single function.
type Reader interface {
	// LocalNames returns the names bound somewhere in the function's
	// own scope: its parameters together with every name assigned to
	// by the body.
	LocalNames() []string
	// FreeNames returns the names the function closes over from an
	// enclosing scope.
	FreeNames() []string
	// GlobalNames returns the names the function resolves against the
	// global scope, dotted attribute chains collapsed into one name
	// (e.g. "math.sqrt" rather than "math" and "sqrt" separately).
	GlobalNames() []string
	// GlobalValue returns the current value bound to name in the
	// global scope, and whether name is actually bound there.
	GlobalValue(name string) (any, bool)
}

// Fixture is a literal Reader, the shape a unit test or a JSON-derived
// host snapshot naturally takes.
type Fixture struct {
	Locals  []string
	Frees   []string
	Globals []string
	Values  map[string]any
}

func (f *Fixture) LocalNames() []string  { return f.Locals }
func (f *Fixture) FreeNames() []string   { return f.Frees }
func (f *Fixture) GlobalNames() []string { return f.Globals }

func (f *Fixture) GlobalValue(name string) (any, bool) {
	v, ok := f.Values[name]
	return v, ok
}
