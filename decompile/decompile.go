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

func init() {
	qir.BytecodeRealizer = realize
}

// Decompile builds a CFG from r's instruction stream, symbolically
// executes it, and folds the result into a single QIR expression
// wrapped in one Lambda per formal parameter, outermost parameter
// outermost. Whether FOR_ITER opens a plain ForLoopBlock or a
// ComprehensionLoopBlock is decided by r.Name(): <listcomp>,
// <setcomp>, <dictcomp> and <genexpr> code objects get the relational
// rewrite.
func Decompile(r Reader) (qir.Expr, error) {
	return decompile(r, 0)
}

// DecompileBudgeted is Decompile with a block budget: once the CFG is
// built, if it (including every nested composite loop body) contains
// more than maxBlocks blocks, it is rejected with a
// *qir.BlockBudgetError before Execute or Lower ever runs. maxBlocks
// <= 0 means unbounded, matching qirconfig.Options.MaxBlocks's zero
// value.
func DecompileBudgeted(r Reader, maxBlocks int) (qir.Expr, error) {
	return decompile(r, maxBlocks)
}

func decompile(r Reader, maxBlocks int) (qir.Expr, error) {
	instrs, err := r.Instructions()
	if err != nil {
		return nil, err
	}

	g, err := Build(instrs, comprehensionNames[r.Name()])
	if err != nil {
		return nil, err
	}
	if maxBlocks > 0 {
		if n := CountBlocks(g); n > maxBlocks {
			return nil, &qir.BlockBudgetError{Count: n, Max: maxBlocks}
		}
	}
	g.Sort()
	if err := Execute(g, nil); err != nil {
		return nil, err
	}
	body, err := Lower(g)
	if err != nil {
		return nil, err
	}

	args := r.ArgNames()
	expr := body
	for i := len(args) - 1; i >= 0; i-- {
		expr = qir.NewLambda(qir.Identifier(args[i]), expr)
	}
	return expr, nil
}

// CountBlocks returns the total number of blocks in g, including every
// block nested inside a WhileLoopBlock, ForLoopBlock, or
// ComprehensionLoopBlock's Body.
func CountBlocks(g *Graph) int {
	if g == nil {
		return 0
	}
	n := len(g.Blocks)
	for _, b := range g.Blocks {
		switch t := b.(type) {
		case *WhileLoopBlock:
			n += CountBlocks(t.Body)
		case *ForLoopBlock:
			n += CountBlocks(t.Body)
		case *ComprehensionLoopBlock:
			n += CountBlocks(t.Body)
		}
	}
	return n
}

// realize implements qir.BytecodeRealizer, registered above the same
// way a database/sql driver registers itself: qir cannot import
// decompile (decompile already imports qir), so it exposes a package
// level function variable that decompile fills in at init time.
//
// It only supports single-parameter code objects, since BuiltinFunc
// is a single host-value-to-host-value function and a curried
// multi-parameter Lambda chain has no faithful representation at that
// boundary; callers with a multi-parameter code object should call
// Decompile directly and drive the resulting Lambda chain with
// qir.Evaluate and nested qir.Application nodes instead.
func realize(code any) (qir.BuiltinFunc, error) {
	r, ok := code.(Reader)
	if !ok {
		return nil, &qir.NotYetImplementedError{Reason: "bytecode realizer: code object does not implement decompile.Reader"}
	}
	if len(r.ArgNames()) != 1 {
		return nil, &qir.NotYetImplementedError{Reason: "bytecode realizer: only single-parameter code objects are supported"}
	}

	expr, err := Decompile(r)
	if err != nil {
		return nil, err
	}
	lambda, ok := expr.(*qir.Lambda)
	if !ok {
		return nil, &qir.NotYetImplementedError{Reason: "bytecode realizer: decompiled expression is not a Lambda"}
	}

	return func(arg any) (any, error) {
		qarg, err := qir.Encode(arg)
		if err != nil {
			return nil, err
		}
		result, err := qir.Evaluate(qir.NewApplication(lambda, qarg), qir.Environment{})
		if err != nil {
			return nil, err
		}
		return qir.Decode(result)
	}, nil
}
