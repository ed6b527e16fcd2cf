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

// Lower folds g, already executed, into a single QIR expression by
// assigning every block's Expression in reverse topological order (so
// a block is only lowered once every block it can reach has been).
func Lower(g *Graph) (qir.Expr, error) {
	if err := lowerGraph(g); err != nil {
		return nil, err
	}
	if len(g.Blocks) == 0 {
		return qir.NewNull(), nil
	}
	return g.Blocks[0].Expression(), nil
}

// lowerGraph assigns every block's Expression, processing g.Order back
// to front: g.Order is the forward topological order Execute uses
// (predecessors before successors), but folding requires the reverse
// (a block's Expression reads its successors', so successors must be
// lowered first).
func lowerGraph(g *Graph) error {
	if g.Order == nil {
		g.Sort()
	}
	for i := len(g.Order) - 1; i >= 0; i-- {
		blk := g.Blocks[g.Order[i]]
		if err := lowerBlock(blk); err != nil {
			return err
		}
	}
	return nil
}

func exprOrNull(b Block) qir.Expr {
	if b == nil {
		return qir.NewNull()
	}
	return b.Expression()
}

func lowerBlock(blk Block) error {
	switch t := blk.(type) {
	case *LinearBlock:
		t.SetExpression(lowerLinear(t))
		return nil

	case *JumpBlock:
		t.SetExpression(exprOrNull(t.Normal()))
		return nil

	case *BranchBlock:
		t.SetExpression(lowerBranch(t))
		return nil

	case *ForIterBlock:
		// Never constructed by Build (FOR_ITER always opens a
		// composite loop block instead), kept only so Block's
		// interface is total; its fallthrough successor carries the
		// real continuation.
		t.SetExpression(exprOrNull(t.Normal()))
		return nil

	case *WhileLoopBlock:
		if err := lowerGraph(t.Body); err != nil {
			return err
		}
		t.SetExpression(lowerWhileLoop(t))
		return nil

	case *ForLoopBlock:
		if err := lowerGraph(t.Body); err != nil {
			return err
		}
		t.SetExpression(lowerForLoop(t))
		return nil

	case *ComprehensionLoopBlock:
		if err := lowerGraph(t.Body); err != nil {
			return err
		}
		elem, err := lowerComprehension(t)
		if err != nil {
			return err
		}
		t.SetExpression(elem)
		return nil

	case *PlaceholderBlock:
		// Expression fixed at construction.
		return nil

	default:
		return nil
	}
}

// lowerLinear folds a LinearBlock's bindings around its continuation:
// the last-encountered binding becomes the innermost
// Application(Lambda(name, ...), value) wrapper.
func lowerLinear(lb *LinearBlock) qir.Expr {
	var inner qir.Expr
	switch {
	case lb.Returns != nil:
		inner = lb.Returns
	case lb.Normal() != nil:
		inner = lb.Normal().Expression()
	default:
		inner = qir.NewNull()
	}
	for i := len(lb.Bindings) - 1; i >= 0; i-- {
		bnd := lb.Bindings[i]
		inner = qir.NewApplication(qir.NewLambda(bnd.Name, inner), bnd.Value)
	}
	return inner
}

// lowerBranch turns a BranchBlock into a Conditional, picking OnTrue
// and OnFalse from Normal/Jumped according to which edge the opcode's
// fallthrough represents the truthy case.
func lowerBranch(b *BranchBlock) qir.Expr {
	normal := exprOrNull(b.Normal())
	jumped := exprOrNull(b.Jumped())
	if truthyIsNext(b.Instruction.Opname) {
		return qir.NewConditional(b.Condition, normal, jumped)
	}
	return qir.NewConditional(b.Condition, jumped, normal)
}

// lowerWhileLoop builds the fixed-point recursion:
//
//	Application(
//	  Application(
//	    Lambda(on_after, Application(Fixed, Lambda(on_loop, Lambda(_, bodyExpr)))),
//	    Lambda(_, afterExpr),
//	  ),
//	  Null,
//	)
//
// on_loop and on_after are thunks (Lambda(_, ...)), so a placeholder
// inside bodyExpr only unfolds the next iteration (or jumps to
// afterExpr) when it actually applies one of them; unlike a for loop,
// a while loop's body has no per-iteration argument to apply the
// fixed point to, so the outer Application(..., Null) is what forces
// the first step once on_loop/on_after are both bound.
func lowerWhileLoop(w *WhileLoopBlock) qir.Expr {
	bodyExpr := exprOrNull(entryOf(w.Body))
	afterExpr := exprOrNull(w.Normal())

	outerFunc := qir.NewLambda("on_loop", qir.NewLambda("_", bodyExpr))
	fixed := qir.NewApplication(qir.NewFixed(), outerFunc)
	bound := qir.NewApplication(qir.NewLambda("on_after", fixed), qir.NewLambda("_", afterExpr))
	return qir.NewApplication(bound, qir.NewNull())
}

// lowerForLoop builds a Y-combinator recursion over the iterator,
// ListDestr'd at each step: the head is bound to Var, on_loop becomes
// "recurse on the tail", and on_after is the loop's own continuation,
// bound once around the whole recursive step so it is visible both
// from an empty list and from a placeholder deep inside bodyExpr.
func lowerForLoop(f *ForLoopBlock) qir.Expr {
	bodyExpr := exprOrNull(entryOf(f.Body))
	afterExpr := exprOrNull(f.Normal())

	head := qir.Identifier("head")
	tail := qir.Identifier("tail")
	rec := qir.Identifier("rec")
	iter := qir.Identifier("iter")

	recurseOnTail := qir.NewApplication(rec, tail)
	boundOnLoop := qir.NewApplication(qir.NewLambda("on_loop", bodyExpr), qir.NewLambda("_", recurseOnTail))
	boundVar := qir.NewApplication(qir.NewLambda(f.Var, boundOnLoop), head)
	onCons := qir.NewLambda(head, qir.NewLambda(tail, boundVar))
	onNil := qir.NewApplication(qir.Identifier("on_after"), qir.NewNull())
	destr := qir.NewListDestr(iter, onNil, onCons)
	perStep := qir.NewApplication(qir.NewLambda("on_after", destr), qir.NewLambda("_", afterExpr))

	outerFunc := qir.NewLambda(rec, qir.NewLambda(iter, perStep))
	fixed := qir.NewApplication(qir.NewFixed(), outerFunc)
	return qir.NewApplication(fixed, f.Iterator)
}

// entryOf returns a composite block's body's first block, or nil if
// the body is empty.
func entryOf(g *Graph) Block {
	if g == nil || len(g.Blocks) == 0 {
		return nil
	}
	return g.Blocks[0]
}

// lowerComprehension rewrites a ComprehensionLoopBlock's body into a
// relational Filter/Project pipeline rather than a recursive
// expression. It walks the unique path from the body's entry block to
// the LinearBlock carrying the LIST_APPEND/SET_ADD/MAP_ADD that
// produces the collected element, substituting every intermediate
// binding along the way so the resulting element expression is closed
// over nothing but Var, and conjoining the condition of every
// BranchBlock on that path, negated where the path leaves the branch
// by its falsy edge.
func lowerComprehension(c *ComprehensionLoopBlock) (qir.Expr, error) {
	appendBlock, path, err := findAppendPath(c.Body)
	if err != nil {
		return nil, err
	}

	subst := map[qir.Identifier]qir.Expr{}
	var conjuncts []qir.Expr

	for _, step := range path {
		switch t := step.blk.(type) {
		case *LinearBlock:
			for _, bnd := range t.Bindings {
				subst[bnd.Name] = qir.Substitute(bnd.Value, subst)
			}
		case *BranchBlock:
			cond := qir.Substitute(t.Condition, subst)
			// step.outViaJump is the edge this branch actually took
			// on the way to the append; truthyTaken tells us whether
			// that edge corresponds to the condition being true.
			truthyTaken := step.outViaJump != truthyIsNext(t.Instruction.Opname)
			if truthyTaken {
				conjuncts = append(conjuncts, cond)
			} else {
				conjuncts = append(conjuncts, qir.NewNot(cond))
			}
		}
	}

	for _, bnd := range appendBlock.Bindings {
		subst[bnd.Name] = qir.Substitute(bnd.Value, subst)
	}

	if appendBlock.Appended == nil {
		return nil, &qir.NotYetImplementedError{Reason: "comprehension body does not append a value along its only path"}
	}
	elem := qir.Substitute(appendBlock.Appended, subst)
	if appendBlock.AppendedKey != nil {
		key := qir.Substitute(appendBlock.AppendedKey, subst)
		elem = qir.NewTupleCons(key, elem, qir.NewTupleNil())
	}

	iter := c.Iterator
	if len(conjuncts) > 0 {
		cond := conjuncts[0]
		for _, cj := range conjuncts[1:] {
			cond = qir.NewAnd(cond, cj)
		}
		iter = qir.NewFilter(qir.NewLambda(c.Var, cond), iter)
	}
	return qir.NewProject(qir.NewLambda(c.Var, elem), iter), nil
}

// pathStep is an intermediate block on the way to a comprehension's
// append block, together with which of its own two successors
// (Normal = false, Jumped = true) the path actually continues
// through.
type pathStep struct {
	blk        Block
	outViaJump bool
}

// findAppendPath walks g from its entry block toward the unique
// LinearBlock carrying an append opcode (identified by Appended being
// set), returning that block and the intermediate blocks on the path
// taken to reach it, each tagged with the out-edge the path took.
func findAppendPath(g *Graph) (*LinearBlock, []pathStep, error) {
	if g == nil || len(g.Blocks) == 0 {
		return nil, nil, &qir.NotYetImplementedError{Reason: "comprehension body is empty"}
	}
	visited := map[int]bool{}
	var path []pathStep

	var walk func(b Block) (*LinearBlock, bool)
	walk = func(b Block) (*LinearBlock, bool) {
		if b == nil || visited[b.Index()] {
			return nil, false
		}
		visited[b.Index()] = true
		if lb, ok := b.(*LinearBlock); ok && lb.Appended != nil {
			return lb, true
		}
		if n := b.Normal(); n != nil {
			if found, ok := walk(n); ok {
				path = append([]pathStep{{blk: b, outViaJump: false}}, path...)
				return found, true
			}
		}
		if j := b.Jumped(); j != nil {
			if found, ok := walk(j); ok {
				path = append([]pathStep{{blk: b, outViaJump: true}}, path...)
				return found, true
			}
		}
		return nil, false
	}

	found, ok := walk(g.Blocks[0])
	if !ok {
		return nil, nil, &qir.NotYetImplementedError{Reason: "comprehension body has no reachable append"}
	}
	return found, path, nil
}
