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

package qir

import "fmt"

// ShapeError is returned when a node is constructed with an
// argument that does not satisfy the declared shape of the field
// (wrong variant, wrong arity). It is the Go analogue of the
// TypeError that the reference implementation's Expression.__init__
// raised on every field during construction.
type ShapeError struct {
	Variant string
	Field   string
	Want    string
	Got     Expr
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("qir: %s.%s: expected %s, got %T", e.Variant, e.Field, e.Want, e.Got)
}

// TypeError is returned by the local evaluator when an operator or
// a conditional is applied to a QIR variant it cannot operate on.
type TypeError struct {
	Op  string
	Got Expr
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("qir: %s: unexpected operand %T", e.Op, e.Got)
}

// NotDecodableError is returned by Decode when given a node that has
// no corresponding host value (any relational, functional or special
// node).
type NotDecodableError struct {
	Node Expr
}

func (e *NotDecodableError) Error() string {
	return fmt.Sprintf("qir: %T is not decodable", e.Node)
}

// NotEncodableError is returned by Encode when given a host value that
// has no QIR representation (functions, channels, and so on).
type NotEncodableError struct {
	Value any
}

func (e *NotEncodableError) Error() string {
	return fmt.Sprintf("qir: %T is not encodable", e.Value)
}

// NotLocallyEvaluableError is returned by Evaluate when the expression
// tree contains a node (Scan, Database, Table, or any other relational
// operator) that can only be resolved by a remote evaluator.
type NotLocallyEvaluableError struct {
	Node Expr
}

func (e *NotLocallyEvaluableError) Error() string {
	return fmt.Sprintf("qir: %T is not locally evaluable", e.Node)
}

// NotRemotelyEvaluableError is returned by a remote evaluator when the
// expression tree contains a Native node, which by definition wraps an
// opaque host value that cannot be shipped over the wire.
//
// The reference implementation misspelled the method that raises this
// error as evalutate_remotely on several special nodes; this
// reimplementation does not preserve that typo anywhere in its API.
type NotRemotelyEvaluableError struct {
	Node Expr
}

func (e *NotRemotelyEvaluableError) Error() string {
	return fmt.Sprintf("qir: %T is not remotely evaluable", e.Node)
}

// NotSerializableError is returned by a wire encoder when it reaches a
// subtree rooted at, or containing, a Native node.
type NotSerializableError struct {
	Node Expr
}

func (e *NotSerializableError) Error() string {
	return fmt.Sprintf("qir: %T is not serializable", e.Node)
}

// NotImplementedError is returned by the decompiler when it encounters
// an opcode outside the closed set it knows how to interpret.
type NotImplementedError struct {
	Opname string
}

func (e *NotImplementedError) Error() string {
	return fmt.Sprintf("qir: opcode %q not implemented", e.Opname)
}

// NotYetImplementedError is returned for opcodes that are recognized
// but whose full semantics (default arguments, closures over cells)
// this decompiler does not support.
type NotYetImplementedError struct {
	Reason string
}

func (e *NotYetImplementedError) Error() string {
	return fmt.Sprintf("qir: not yet implemented: %s", e.Reason)
}

// PredecessorStacksError is returned by the symbolic executor when a
// block's incoming edges disagree on the shape of the operand stack
// they contribute, which indicates unstructured control flow that the
// decompiler cannot lower into QIR.
type PredecessorStacksError struct {
	BlockIndex int
	Stacks     [][]Expr
}

func (e *PredecessorStacksError) Error() string {
	return fmt.Sprintf("qir: block %d: %d incompatible predecessor stacks", e.BlockIndex, len(e.Stacks))
}

// BlockBudgetError is returned by the decompiler when a function's CFG
// exceeds an operator-configured block budget, guarding against
// pathological or adversarial bytecode.
type BlockBudgetError struct {
	Count int
	Max   int
}

func (e *BlockBudgetError) Error() string {
	return fmt.Sprintf("qir: %d blocks exceeds configured budget of %d", e.Count, e.Max)
}
