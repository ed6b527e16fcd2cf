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

import (
	"testing"

	"github.com/liautaud/qir/qir"
)

func ins(offset int, opname string, arg int, argval any, jumpTarget bool) Instruction {
	return Instruction{
		Opname:       opname,
		Arg:          arg,
		Argval:       argval,
		Offset:       offset,
		IsJumpTarget: jumpTarget,
	}
}

// decodeResult runs expr applied to arg through the evaluator and
// decodes the result back to a host value, for assertions on loops
// where comparing the raw lowered tree would be unreadable.
func decodeResult(t *testing.T, expr qir.Expr, arg any) any {
	t.Helper()
	qarg, err := qir.Encode(arg)
	if err != nil {
		t.Fatalf("encode argument: %v", err)
	}
	result, err := qir.Evaluate(qir.NewApplication(expr, qarg), qir.Environment{})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	decoded, err := qir.Decode(result)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return decoded
}

// TestDecompileIdentity covers `lambda u: u`.
func TestDecompileIdentity(t *testing.T) {
	r := NewReader("f", []string{"u"}, []Instruction{
		ins(0, "LOAD_FAST", 0, "u", false),
		ins(2, "RETURN_VALUE", 0, nil, false),
	})
	expr, err := Decompile(r)
	if err != nil {
		t.Fatalf("Decompile: %v", err)
	}
	want := qir.NewLambda("u", qir.NewIdentifier("u"))
	if !qir.SameTree(expr, want) {
		t.Fatalf("got %#v, want %#v", expr, want)
	}
}

// TestDecompilePlusTwo covers `lambda x: x + 2`.
func TestDecompilePlusTwo(t *testing.T) {
	r := NewReader("f", []string{"x"}, []Instruction{
		ins(0, "LOAD_FAST", 0, "x", false),
		ins(2, "LOAD_CONST", 0, int64(2), false),
		ins(4, "BINARY_ADD", 0, nil, false),
		ins(6, "RETURN_VALUE", 0, nil, false),
	})
	expr, err := Decompile(r)
	if err != nil {
		t.Fatalf("Decompile: %v", err)
	}
	want := qir.NewLambda("x", qir.NewPlus(qir.NewIdentifier("x"), qir.NewNumber(2)))
	if !qir.SameTree(expr, want) {
		t.Fatalf("got %#v, want %#v", expr, want)
	}

	got := decodeResult(t, expr, int64(5))
	if got != int64(7) {
		t.Fatalf("evaluated result = %v, want 7", got)
	}
}

// TestDecompileTernary covers `lambda x: True if x < 10 else False`.
func TestDecompileTernary(t *testing.T) {
	r := NewReader("f", []string{"x"}, []Instruction{
		ins(0, "LOAD_FAST", 0, "x", false),
		ins(2, "LOAD_CONST", 0, int64(10), false),
		ins(4, "COMPARE_OP", 0, "<", false),
		ins(6, "POP_JUMP_IF_FALSE", 0, 14, false),
		ins(8, "LOAD_CONST", 0, true, false),
		ins(10, "RETURN_VALUE", 0, nil, false),
		ins(14, "LOAD_CONST", 0, false, true),
		ins(16, "RETURN_VALUE", 0, nil, false),
	})
	expr, err := Decompile(r)
	if err != nil {
		t.Fatalf("Decompile: %v", err)
	}
	want := qir.NewLambda("x", qir.NewConditional(
		qir.NewLowerThan(qir.NewIdentifier("x"), qir.NewNumber(10)),
		qir.NewBoolean(true),
		qir.NewBoolean(false),
	))
	if !qir.SameTree(expr, want) {
		t.Fatalf("got %#v, want %#v", expr, want)
	}

	if got := decodeResult(t, expr, int64(3)); got != true {
		t.Fatalf("x=3: got %v, want true", got)
	}
	if got := decodeResult(t, expr, int64(30)); got != false {
		t.Fatalf("x=30: got %v, want false", got)
	}
}

// TestDecompileWhileLoop covers the scenario-5 shape:
//
//	def f(x):
//	    y = 0
//	    while x + y < 12:
//	        y -= 6
//	    return y
//
// y only decreases here, so for x < 12 the condition can never flip
// back to false and the loop diverges; this test only exercises the
// x >= 12 case, where the loop body never runs at all. A loop body
// that genuinely runs more than once is exercised separately below.
func TestDecompileWhileLoop(t *testing.T) {
	r := NewReader("f", []string{"x"}, []Instruction{
		ins(0, "LOAD_CONST", 0, int64(0), false),
		ins(2, "STORE_FAST", 0, "y", false),
		ins(4, "SETUP_LOOP", 0, 28, false),
		ins(6, "LOAD_FAST", 0, "x", true),
		ins(8, "LOAD_FAST", 0, "y", false),
		ins(10, "BINARY_ADD", 0, nil, false),
		ins(12, "LOAD_CONST", 0, int64(12), false),
		ins(14, "COMPARE_OP", 0, "<", false),
		ins(16, "POP_JUMP_IF_FALSE", 0, 28, false),
		ins(18, "LOAD_FAST", 0, "y", false),
		ins(20, "LOAD_CONST", 0, int64(6), false),
		ins(22, "INPLACE_SUBTRACT", 0, nil, false),
		ins(24, "STORE_FAST", 0, "y", false),
		ins(26, "JUMP_ABSOLUTE", 0, 6, false),
		ins(28, "LOAD_FAST", 0, "y", true),
		ins(30, "RETURN_VALUE", 0, nil, false),
	})
	expr, err := Decompile(r)
	if err != nil {
		t.Fatalf("Decompile: %v", err)
	}
	// x + y < 12 is false on entry whenever x >= 12, so the body never
	// runs and y is returned unchanged. x < 12 would recurse forever
	// here (y only ever decreases, so the condition never flips); that
	// path is exercised instead by the genuinely-iterating loop below.
	if got := decodeResult(t, expr, int64(15)); got != int64(0) {
		t.Fatalf("x=15: got %v, want 0", got)
	}
	if got := decodeResult(t, expr, int64(12)); got != int64(0) {
		t.Fatalf("x=12: got %v, want 0", got)
	}
}

// TestDecompileWhileLoopMultipleIterations exercises a loop body that
// actually runs more than once, unlike the scenario-5 shape above:
//
//	def f(n):
//	    m = n
//	    while m > 0:
//	        m -= 1
//	    return m
func TestDecompileWhileLoopMultipleIterations(t *testing.T) {
	r := NewReader("f", []string{"n"}, []Instruction{
		ins(0, "LOAD_FAST", 0, "n", false),
		ins(2, "STORE_FAST", 0, "m", false),
		ins(4, "SETUP_LOOP", 0, 24, false),
		ins(6, "LOAD_FAST", 0, "m", true),
		ins(8, "LOAD_CONST", 0, int64(0), false),
		ins(10, "COMPARE_OP", 0, ">", false),
		ins(12, "POP_JUMP_IF_FALSE", 0, 24, false),
		ins(14, "LOAD_FAST", 0, "m", false),
		ins(16, "LOAD_CONST", 0, int64(1), false),
		ins(18, "INPLACE_SUBTRACT", 0, nil, false),
		ins(20, "STORE_FAST", 0, "m", false),
		ins(22, "JUMP_ABSOLUTE", 0, 6, false),
		ins(24, "LOAD_FAST", 0, "m", true),
		ins(26, "RETURN_VALUE", 0, nil, false),
	})

	expr, err := Decompile(r)
	if err != nil {
		t.Fatalf("Decompile: %v", err)
	}
	if got := decodeResult(t, expr, int64(3)); got != int64(0) {
		t.Fatalf("n=3: got %v, want 0", got)
	}
	if got := decodeResult(t, expr, int64(0)); got != int64(0) {
		t.Fatalf("n=0: got %v, want 0", got)
	}
}

// TestDecompileForLoopEarlyReturn covers:
//
//	def f(lst):
//	    for elem in lst:
//	        if elem > 2:
//	            return elem
//	    return -1
func TestDecompileForLoopEarlyReturn(t *testing.T) {
	r := NewReader("f", []string{"lst"}, []Instruction{
		ins(0, "LOAD_FAST", 0, "lst", false),
		ins(2, "GET_ITER", 0, nil, false),
		ins(4, "FOR_ITER", 0, 26, false),
		ins(6, "STORE_FAST", 0, "elem", true),
		ins(8, "LOAD_FAST", 0, "elem", false),
		ins(10, "LOAD_CONST", 0, int64(2), false),
		ins(12, "COMPARE_OP", 0, ">", false),
		ins(14, "POP_JUMP_IF_FALSE", 0, 20, false),
		ins(16, "LOAD_FAST", 0, "elem", false),
		ins(18, "RETURN_VALUE", 0, nil, false),
		ins(20, "JUMP_ABSOLUTE", 0, 4, true),
		ins(26, "LOAD_CONST", 0, int64(-1), true),
		ins(28, "RETURN_VALUE", 0, nil, false),
	})
	expr, err := Decompile(r)
	if err != nil {
		t.Fatalf("Decompile: %v", err)
	}
	if got := decodeResult(t, expr, []any{int64(1), int64(5), int64(2)}); got != int64(5) {
		t.Fatalf("got %v, want 5", got)
	}
	if got := decodeResult(t, expr, []any{int64(1), int64(1)}); got != int64(-1) {
		t.Fatalf("got %v, want -1", got)
	}
}

// TestLowerComprehensionFilterProject builds a ComprehensionLoopBlock's
// body directly, bypassing Build/Execute, and checks that
// lowerComprehension turns
//
//	[u.name for u in table('users') if min_age < u.age]
//
// into a Filter feeding a Project. TestDecompileFilteredListComprehension
// below exercises the same shape through the real Build/Execute/Lower
// pipeline from raw bytecode.
func TestLowerComprehensionFilterProject(t *testing.T) {
	cv := qir.Identifier("cv_0")

	entry := &LinearBlock{}
	entry.setIndex(0)
	entry.Bindings = []binding{{Name: "u", Value: cv}}

	branch := &BranchBlock{Instruction: Instruction{Opname: "POP_JUMP_IF_FALSE"}}
	branch.setIndex(1)
	branch.Condition = qir.NewLowerThan(
		qir.NewIdentifier("min_age"),
		qir.NewTupleDestr(qir.Identifier("u"), qir.NewString("age")),
	)

	appendBlock := &LinearBlock{}
	appendBlock.setIndex(2)
	appendBlock.Appended = qir.NewTupleDestr(qir.Identifier("u"), qir.NewString("name"))

	entry.setNormal(branch)
	branch.addPredecessor(entry)
	branch.setNormal(appendBlock) // true edge, since POP_JUMP_IF_FALSE's fallthrough is the truthy case
	appendBlock.addPredecessor(branch)

	body := &Graph{Blocks: []Block{entry, branch, appendBlock}}

	comp := &ComprehensionLoopBlock{
		Iterator: qir.NewApplication(qir.NewIdentifier("table"), qir.NewString("users")),
		Var:      cv,
		Body:     body,
	}

	got, err := lowerComprehension(comp)
	if err != nil {
		t.Fatalf("lowerComprehension: %v", err)
	}

	want := qir.NewProject(
		qir.NewLambda(cv, qir.NewTupleDestr(cv, qir.NewString("name"))),
		qir.NewFilter(
			qir.NewLambda(cv, qir.NewLowerThan(qir.NewIdentifier("min_age"), qir.NewTupleDestr(cv, qir.NewString("age")))),
			qir.NewApplication(qir.NewIdentifier("table"), qir.NewString("users")),
		),
	)
	if !qir.SameTree(got, want) {
		t.Fatalf("got %#v, want %#v", got, want)
	}
}

// TestDecompileBudgetedRejectsOversizedGraph covers the ternary
// shape's 4-block CFG (entry, branch, true-arm, false-arm) against
// DecompileBudgeted: a budget below 4 must reject it with
// *qir.BlockBudgetError, a budget of 4 or more (or 0, unbounded) must
// let it through unchanged.
func TestDecompileBudgetedRejectsOversizedGraph(t *testing.T) {
	r := NewReader("f", []string{"x"}, []Instruction{
		ins(0, "LOAD_FAST", 0, "x", false),
		ins(2, "LOAD_CONST", 0, int64(10), false),
		ins(4, "COMPARE_OP", 0, "<", false),
		ins(6, "POP_JUMP_IF_FALSE", 0, 14, false),
		ins(8, "LOAD_CONST", 0, true, false),
		ins(10, "RETURN_VALUE", 0, nil, false),
		ins(14, "LOAD_CONST", 0, false, true),
		ins(16, "RETURN_VALUE", 0, nil, false),
	})

	if _, err := DecompileBudgeted(r, 3); err == nil {
		t.Fatalf("expected *qir.BlockBudgetError, got nil")
	} else if _, ok := err.(*qir.BlockBudgetError); !ok {
		t.Fatalf("err = %v, want *qir.BlockBudgetError", err)
	}

	if _, err := DecompileBudgeted(r, 4); err != nil {
		t.Fatalf("DecompileBudgeted with exact budget: %v", err)
	}
	if _, err := DecompileBudgeted(r, 0); err != nil {
		t.Fatalf("DecompileBudgeted unbounded: %v", err)
	}
}

// TestDecompileFilteredListComprehension covers, end to end through
// Build/Execute/Lower, the flagship shape of a filtered comprehension:
//
//	<listcomp>(.0): [u.name for u in .0 if min_age < u.age]
//
// LIST_APPEND's accumulator mutation must be suppressed in
// comprehension mode (see execLinear) or the append-taken and
// append-skipped edges into the loop-back placeholder disagree and
// reconcile fails with PredecessorStacksError before Lower ever runs.
func TestDecompileFilteredListComprehension(t *testing.T) {
	r := NewReader("<listcomp>", []string{".0"}, []Instruction{
		ins(0, "BUILD_LIST", 0, nil, false),
		ins(2, "LOAD_FAST", 0, ".0", false),
		ins(4, "FOR_ITER", 0, 30, false),
		ins(6, "STORE_FAST", 0, "u", true),
		ins(8, "LOAD_FAST", 0, "min_age", false),
		ins(10, "LOAD_FAST", 0, "u", false),
		ins(12, "LOAD_ATTR", 0, "age", false),
		ins(14, "COMPARE_OP", 0, "<", false),
		ins(16, "POP_JUMP_IF_FALSE", 0, 4, false),
		ins(18, "LOAD_FAST", 0, "u", false),
		ins(20, "LOAD_ATTR", 0, "name", false),
		ins(22, "LIST_APPEND", 1, nil, false),
		ins(24, "JUMP_ABSOLUTE", 0, 4, true),
		ins(30, "RETURN_VALUE", 0, nil, true),
	})
	expr, err := Decompile(r)
	if err != nil {
		t.Fatalf("Decompile: %v", err)
	}

	cv := qir.Identifier("cv_4")
	want := qir.NewLambda(".0", qir.NewProject(
		qir.NewLambda(cv, qir.NewTupleDestr(cv, qir.NewString("name"))),
		qir.NewFilter(
			qir.NewLambda(cv, qir.NewLowerThan(qir.NewIdentifier("min_age"), qir.NewTupleDestr(cv, qir.NewString("age")))),
			qir.NewIdentifier(".0"),
		),
	))
	if !qir.SameTree(expr, want) {
		t.Fatalf("got %#v, want %#v", expr, want)
	}
}

// TestFixedCurriedApplication locks in two correctness fixes together:
// Fixed's call-by-value-safe expansion, and Evaluate substituting a
// Lambda's free variables when it is returned as a value rather than
// applied immediately. ListDestr.OnCons is the one place in the
// evaluator that applies a curried two-parameter Lambda via two
// separate Application nodes, so summing a list with it is a direct
// exercise of both fixes at once.
func TestFixedCurriedApplication(t *testing.T) {
	list := qir.NewListCons(qir.NewNumber(1), qir.NewListCons(qir.NewNumber(2), qir.NewListCons(qir.NewNumber(3), qir.NewListNil())))

	rec := qir.Identifier("rec")
	head := qir.Identifier("head")
	tail := qir.Identifier("tail")
	lst := qir.Identifier("lst")

	sumStep := qir.NewPlus(head, qir.NewApplication(rec, tail))
	onCons := qir.NewLambda(head, qir.NewLambda(tail, sumStep))
	destr := qir.NewListDestr(lst, qir.NewNumber(0), onCons)
	body := qir.NewLambda(rec, qir.NewLambda(lst, destr))

	sum := qir.NewApplication(qir.NewFixed(), body)
	applied := qir.NewApplication(sum, list)

	result, err := qir.Evaluate(applied, qir.Environment{})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	n, ok := result.(qir.Number)
	if !ok {
		t.Fatalf("result = %#v, want qir.Number", result)
	}
	if int64(n) != 6 {
		t.Fatalf("sum = %d, want 6", int64(n))
	}
}
