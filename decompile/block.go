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

package decompile

import "github.com/liautaud/qir/qir"

// Block is one node of a CFG: either a maximal straight-line
// instruction run or a typed control node. Every concrete block type
// embeds base, which carries the common bookkeeping (index, edges,
// predecessors, and the lowered expression).
type Block interface {
	Index() int
	Normal() Block
	Jumped() Block
	Predecessors() []Block
	Expression() qir.Expr
	SetExpression(qir.Expr)

	setIndex(int)
	setNormal(Block)
	setJumped(Block)
	addPredecessor(Block)
}

type base struct {
	idx    int
	normal Block
	jumped Block
	preds  []Block
	expr   qir.Expr
}

func (b *base) Index() int             { return b.idx }
func (b *base) Normal() Block          { return b.normal }
func (b *base) Jumped() Block          { return b.jumped }
func (b *base) Predecessors() []Block  { return b.preds }
func (b *base) Expression() qir.Expr   { return b.expr }
func (b *base) SetExpression(e qir.Expr) { b.expr = e }

func (b *base) setIndex(i int)       { b.idx = i }
func (b *base) setNormal(n Block)    { b.normal = n }
func (b *base) setJumped(j Block)    { b.jumped = j }
func (b *base) addPredecessor(p Block) {
	b.preds = append(b.preds, p)
}
func (b *base) setPredecessors(p []Block) { b.preds = p }

// binding is a (name, value) pair introduced by a STORE_NAME/STORE_FAST
// (or DELETE_NAME/DELETE_FAST, whose value is Null) within a
// LinearBlock, in the order encountered.
type binding struct {
	Name  qir.Identifier
	Value qir.Expr
}

// LinearBlock is a maximal straight-line instruction run. After
// symbolic execution it carries the operand stack it leaves behind,
// the bindings it introduced, and, if a RETURN_VALUE/YIELD_VALUE was
// seen, the returned expression.
type LinearBlock struct {
	base
	Instructions []Instruction

	EntryStack []qir.Expr
	Stack      []qir.Expr
	Bindings   []binding
	Returns    qir.Expr

	// Appended and AppendedKey record the operand(s) of a
	// LIST_APPEND/SET_ADD/MAP_ADD seen in this block, for
	// lowerComprehension to read back without re-simulating the
	// block's stack effects. AppendedKey is nil except after MAP_ADD.
	Appended    qir.Expr
	AppendedKey qir.Expr
}

// JumpBlock carries a single unconditional jump instruction. Its one
// Normal successor is retargeted at close time to the jump destination.
type JumpBlock struct {
	base
	Instruction Instruction
	Stack       []qir.Expr
}

// BranchBlock carries a single conditional-branch instruction. Normal
// is the fallthrough successor, Jumped is the taken-branch successor.
// Condition is assigned during symbolic execution (the top-of-stack
// value at the end of the block).
type BranchBlock struct {
	base
	Instruction Instruction
	Condition   qir.Expr
	Stack       []qir.Expr
}

// ForIterBlock carries the "advance iterator" branch instruction.
// Normal means "yielded a value"; Jumped means "exhausted". Current is
// the synthesised per-iteration identifier pushed after reconciliation.
// Build never constructs one: every FOR_ITER opens a ForLoopBlock or
// ComprehensionLoopBlock instead, so the type only keeps Block's
// variant set complete.
type ForIterBlock struct {
	base
	Instruction Instruction
	Current     qir.Expr
	Stack       []qir.Expr
}

// PlaceholderBlock's expression is pre-assigned at construction; it
// represents a re-entry point inside a composite loop body (a call to
// on_loop or on_after).
type PlaceholderBlock struct {
	base
	Stack []qir.Expr
}

// NewPlaceholderBlock constructs a PlaceholderBlock with its
// expression fixed to expr.
func NewPlaceholderBlock(expr qir.Expr) *PlaceholderBlock {
	p := &PlaceholderBlock{}
	p.expr = expr
	return p
}

// WhileLoopBlock is a composite block containing the nested CFG built
// from a while-loop's body instructions.
type WhileLoopBlock struct {
	base
	Body  *Graph
	Stack []qir.Expr
}

// ForLoopBlock is a composite block driven by a FOR_ITER over
// Iterator; Var is the synthesised per-iteration binding name.
type ForLoopBlock struct {
	base
	Iterator qir.Expr
	Var      qir.Identifier
	Body     *Graph
	Stack    []qir.Expr
}

// ComprehensionLoopBlock is a composite block whose body is rewritten
// into a relational Filter/Project pipeline rather than a recursive
// expression (see lowerComprehension).
type ComprehensionLoopBlock struct {
	base
	Iterator qir.Expr
	Var      qir.Identifier
	Body     *Graph
	Stack    []qir.Expr
}

// Graph is a built CFG: a sequence of blocks, the offset→block mapping
// required to resolve jump targets (populated even for instructions
// suppressed after a RETURN_VALUE), and (after Sort) a topological
// order plus the set of unreachable, detached block indices.
//
// Comprehension records whether this graph was built with
// comprehension mode on (see Build), so Execute knows whether a
// LIST_APPEND/SET_ADD/MAP_ADD in one of its LinearBlocks is building a
// real host value or standing in for lowerComprehension's relational
// rewrite.
type Graph struct {
	Blocks        []Block
	BlockMapping  map[int]Block
	Order         []int
	Detached      map[int]bool
	Comprehension bool
}
