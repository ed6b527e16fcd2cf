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

// Package qir implements the Query Intermediate Representation: a small
// tagged-tree algebra of expressions modelling relational computations,
// a local (in-process) evaluator for it, and the host-value <-> QIR
// encoding used at its boundary.
//
// Expressions are immutable once constructed; evaluators never mutate
// their inputs and always return fresh expressions.
package qir

// Expr is implemented by every QIR node. The set of implementations is
// closed to the variants declared in this package; callers outside the
// package cannot add new variants (the method is unexported), mirroring
// the fixed variant set of the reference implementation's Expression
// class hierarchy.
type Expr interface {
	isExpr()
}

// SameTree reports whether a and b are structurally identical QIR
// trees: same variant at every node, same leaf payloads. It is used by
// the decompiler's symbolic executor to reconcile predecessor stacks,
// and is unrelated to the Equal QIR node (the binary == operator of the
// algebra itself).
func SameTree(a, b Expr) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case Null:
		_, ok := b.(Null)
		return ok
	case Boolean:
		bv, ok := b.(Boolean)
		return ok && av == bv
	case Number:
		bv, ok := b.(Number)
		return ok && av == bv
	case Double:
		bv, ok := b.(Double)
		return ok && av == bv
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Identifier:
		bv, ok := b.(Identifier)
		return ok && av == bv
	case ListNil:
		_, ok := b.(ListNil)
		return ok
	case TupleNil:
		_, ok := b.(TupleNil)
		return ok
	case Fixed:
		_, ok := b.(Fixed)
		return ok
	case *ListCons:
		bv, ok := b.(*ListCons)
		return ok && SameTree(av.Head, bv.Head) && SameTree(av.Tail, bv.Tail)
	case *ListDestr:
		bv, ok := b.(*ListDestr)
		return ok && SameTree(av.Input, bv.Input) && SameTree(av.OnNil, bv.OnNil) && SameTree(av.OnCons, bv.OnCons)
	case *TupleCons:
		bv, ok := b.(*TupleCons)
		return ok && SameTree(av.Key, bv.Key) && SameTree(av.Value, bv.Value) && SameTree(av.Tail, bv.Tail)
	case *TupleDestr:
		bv, ok := b.(*TupleDestr)
		return ok && SameTree(av.Input, bv.Input) && SameTree(av.Key, bv.Key)
	case *Lambda:
		bv, ok := b.(*Lambda)
		return ok && av.Parameter == bv.Parameter && SameTree(av.Body, bv.Body)
	case *Application:
		bv, ok := b.(*Application)
		return ok && SameTree(av.Function, bv.Function) && SameTree(av.Argument, bv.Argument)
	case *Conditional:
		bv, ok := b.(*Conditional)
		return ok && SameTree(av.Condition, bv.Condition) && SameTree(av.OnTrue, bv.OnTrue) && SameTree(av.OnFalse, bv.OnFalse)
	case *Scan:
		bv, ok := b.(*Scan)
		return ok && SameTree(av.Table, bv.Table)
	case *Filter:
		bv, ok := b.(*Filter)
		return ok && SameTree(av.Predicate, bv.Predicate) && SameTree(av.Input, bv.Input)
	case *Project:
		bv, ok := b.(*Project)
		return ok && SameTree(av.Format, bv.Format) && SameTree(av.Input, bv.Input)
	case *Sort:
		bv, ok := b.(*Sort)
		return ok && SameTree(av.Key, bv.Key) && av.Ascending == bv.Ascending && SameTree(av.Input, bv.Input)
	case *Limit:
		bv, ok := b.(*Limit)
		return ok && SameTree(av.N, bv.N) && SameTree(av.Input, bv.Input)
	case *Group:
		bv, ok := b.(*Group)
		return ok && SameTree(av.Key, bv.Key) && SameTree(av.Input, bv.Input)
	case *Join:
		bv, ok := b.(*Join)
		return ok && SameTree(av.Predicate, bv.Predicate) && SameTree(av.Left, bv.Left) && SameTree(av.Right, bv.Right)
	case *Not:
		bv, ok := b.(*Not)
		return ok && SameTree(av.Element, bv.Element)
	case *Binary:
		bv, ok := b.(*Binary)
		return ok && av.Op == bv.Op && SameTree(av.Left, bv.Left) && SameTree(av.Right, bv.Right)
	case *Native:
		// Native wraps an opaque host value; two Natives are only
		// the same tree if they wrap the same host value.
		bv, ok := b.(*Native)
		return ok && av.Value == bv.Value
	case *Builtin:
		bv, ok := b.(*Builtin)
		return ok && av.Module == bv.Module && av.Name == bv.Name
	case *Bytecode:
		bv, ok := b.(*Bytecode)
		return ok && av.Code == bv.Code
	case *Database:
		bv, ok := b.(*Database)
		return ok && *av == *bv
	case *Table:
		bv, ok := b.(*Table)
		return ok && SameTree(av.Database, bv.Database) && av.Name == bv.Name
	default:
		return false
	}
}

// Substitute returns a copy of e with every free occurrence of an
// Identifier present in repl replaced by its mapped expression. Inside
// a Lambda whose parameter shadows one of the replaced names, that
// name is left alone in the body, while the other names are still
// replaced there. It
// is used by the bytecode decompiler to close over intermediate
// bindings (e.g. a STORE_FAST alias) when folding a comprehension
// body down to a single element expression.
func Substitute(e Expr, repl map[Identifier]Expr) Expr {
	if len(repl) == 0 || e == nil {
		return e
	}
	switch v := e.(type) {
	case Null, Boolean, Number, Double, String, ListNil, TupleNil, Fixed:
		return e
	case Identifier:
		if r, ok := repl[v]; ok {
			return r
		}
		return e
	case *ListCons:
		return &ListCons{Head: Substitute(v.Head, repl), Tail: Substitute(v.Tail, repl)}
	case *ListDestr:
		return &ListDestr{Input: Substitute(v.Input, repl), OnNil: Substitute(v.OnNil, repl), OnCons: Substitute(v.OnCons, repl)}
	case *TupleCons:
		return &TupleCons{Key: Substitute(v.Key, repl), Value: Substitute(v.Value, repl), Tail: Substitute(v.Tail, repl)}
	case *TupleDestr:
		return &TupleDestr{Input: Substitute(v.Input, repl), Key: Substitute(v.Key, repl)}
	case *Lambda:
		inner := repl
		if _, shadowed := repl[v.Parameter]; shadowed {
			inner = make(map[Identifier]Expr, len(repl)-1)
			for k, val := range repl {
				if k != v.Parameter {
					inner[k] = val
				}
			}
		}
		return &Lambda{Parameter: v.Parameter, Body: Substitute(v.Body, inner)}
	case *Application:
		return &Application{Function: Substitute(v.Function, repl), Argument: Substitute(v.Argument, repl)}
	case *Conditional:
		return &Conditional{Condition: Substitute(v.Condition, repl), OnTrue: Substitute(v.OnTrue, repl), OnFalse: Substitute(v.OnFalse, repl)}
	case *Scan:
		return &Scan{Table: Substitute(v.Table, repl)}
	case *Filter:
		return &Filter{Predicate: Substitute(v.Predicate, repl), Input: Substitute(v.Input, repl)}
	case *Project:
		return &Project{Format: Substitute(v.Format, repl), Input: Substitute(v.Input, repl)}
	case *Sort:
		return &Sort{Key: Substitute(v.Key, repl), Ascending: v.Ascending, Input: Substitute(v.Input, repl)}
	case *Limit:
		return &Limit{N: Substitute(v.N, repl), Input: Substitute(v.Input, repl)}
	case *Group:
		return &Group{Key: Substitute(v.Key, repl), Input: Substitute(v.Input, repl)}
	case *Join:
		return &Join{Predicate: Substitute(v.Predicate, repl), Left: Substitute(v.Left, repl), Right: Substitute(v.Right, repl)}
	case *Not:
		return &Not{Element: Substitute(v.Element, repl)}
	case *Binary:
		return &Binary{Op: v.Op, Left: Substitute(v.Left, repl), Right: Substitute(v.Right, repl)}
	case *Native, *Builtin, *Bytecode, *Database, *Table:
		return e
	default:
		return e
	}
}
