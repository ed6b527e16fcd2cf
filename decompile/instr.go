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

// Package decompile lifts a compiled stack-machine instruction stream
// into a single QIR expression: it partitions the stream into a CFG of
// typed blocks, orders the CFG topologically, symbolically executes
// each block over a QIR-valued operand stack, and folds the blocks
// into one expression tree.
package decompile

// Instruction is one decoded bytecode instruction, as produced by a
// host-language disassembler. Offset and Argval (for jump opcodes) are
// in the same absolute unit: Argval is the absolute target offset, not
// a relative delta.
type Instruction struct {
	Opname       string
	Arg          int
	Argval       any
	Offset       int
	IsJumpTarget bool
	StartsLine   bool
}

// Reader is the narrow capability this package consumes from the host
// language: given a compiled code object, yield its instructions in
// program order plus its formal parameter names. Real introspection
// (disassembling an actual code object) is a host-language collaborator
// outside this module's scope; Reader is implemented here only by
// fixtures built directly from a literal instruction slice (see
// NewReader) and by test doubles.
type Reader interface {
	// Instructions returns the function body's instructions in
	// program order.
	Instructions() ([]Instruction, error)
	// ArgNames returns the ordered formal parameter names; the
	// decompiled expression is wrapped in one Lambda per name,
	// outermost parameter outermost.
	ArgNames() []string
	// Name returns the code object's declared name, used to key
	// comprehension mode off `<listcomp>`, `<setcomp>`, `<dictcomp>`,
	// `<genexpr>`.
	Name() string
}

// Listing is a Reader backed by a literal, already-decoded instruction
// slice — the shape a JSON instruction dump (as read by cmd/qirc) or a
// unit test fixture naturally takes.
type Listing struct {
	FuncName string
	Args     []string
	Instrs   []Instruction
}

// NewReader wraps a literal instruction slice as a Reader.
func NewReader(name string, args []string, instrs []Instruction) *Listing {
	return &Listing{FuncName: name, Args: args, Instrs: instrs}
}

func (l *Listing) Instructions() ([]Instruction, error) { return l.Instrs, nil }
func (l *Listing) ArgNames() []string                   { return l.Args }
func (l *Listing) Name() string                         { return l.FuncName }

// comprehensionNames are the code-object names that key comprehension
// mode, per Design Notes: "Implementations should key the mode off the
// code object's declared name."
var comprehensionNames = map[string]bool{
	"<listcomp>": true,
	"<setcomp>":  true,
	"<dictcomp>": true,
	"<genexpr>":  true,
}
