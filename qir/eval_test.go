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

import "testing"

func evalOrFatal(t *testing.T, e Expr) Expr {
	t.Helper()
	v, err := Evaluate(e, Environment{})
	if err != nil {
		t.Fatalf("Evaluate(%#v): %v", e, err)
	}
	return v
}

func TestEvaluateIdentityApplication(t *testing.T) {
	id := NewLambda("x", Identifier("x"))
	got := evalOrFatal(t, NewApplication(id, NewNumber(5)))
	if n, ok := got.(Number); !ok || n != 5 {
		t.Fatalf("got %#v, want Number(5)", got)
	}
}

func TestEvaluateCurriedApplication(t *testing.T) {
	// lambda a: lambda b: a + b, applied to 3 then 4.
	add := NewLambda("a", NewLambda("b", NewPlus(Identifier("a"), Identifier("b"))))
	applied := NewApplication(NewApplication(add, NewNumber(3)), NewNumber(4))
	got := evalOrFatal(t, applied)
	if n, ok := got.(Number); !ok || n != 7 {
		t.Fatalf("got %#v, want Number(7)", got)
	}
}

func TestEvaluateConditional(t *testing.T) {
	cond := NewConditional(NewLowerThan(NewNumber(1), NewNumber(2)), NewString("yes"), NewString("no"))
	got := evalOrFatal(t, cond)
	if s, ok := got.(String); !ok || s != "yes" {
		t.Fatalf("got %#v, want String(yes)", got)
	}
}

func TestEvaluateConditionalRejectsNonBoolean(t *testing.T) {
	cond := NewConditional(NewNumber(1), NewString("yes"), NewString("no"))
	_, err := Evaluate(cond, Environment{})
	if _, ok := err.(*TypeError); !ok {
		t.Fatalf("err = %v, want *TypeError", err)
	}
}

func TestEvaluateNot(t *testing.T) {
	got := evalOrFatal(t, NewNot(NewBoolean(false)))
	if b, ok := got.(Boolean); !ok || !bool(b) {
		t.Fatalf("got %#v, want Boolean(true)", got)
	}
}

func TestEvaluateArithmetic(t *testing.T) {
	cases := []struct {
		name string
		e    Expr
		want Number
	}{
		{"plus", NewPlus(NewNumber(2), NewNumber(3)), 5},
		{"minus", NewMinus(NewNumber(5), NewNumber(3)), 2},
		{"star", NewStar(NewNumber(4), NewNumber(3)), 12},
		{"mod", NewMod(NewNumber(7), NewNumber(3)), 1},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := evalOrFatal(t, c.e)
			n, ok := got.(Number)
			if !ok || n != c.want {
				t.Fatalf("got %#v, want Number(%d)", got, c.want)
			}
		})
	}
}

func TestEvaluateDivProducesDouble(t *testing.T) {
	got := evalOrFatal(t, NewDiv(NewNumber(7), NewNumber(2)))
	d, ok := got.(Double)
	if !ok || d != 3.5 {
		t.Fatalf("got %#v, want Double(3.5)", got)
	}
}

func TestEvaluateListDestr(t *testing.T) {
	list := NewListCons(NewNumber(1), NewListCons(NewNumber(2), NewListNil()))
	head := Identifier("head")
	tail := Identifier("tail")
	onCons := NewLambda(head, NewLambda(tail, head))
	destr := NewListDestr(list, NewNumber(-1), onCons)
	got := evalOrFatal(t, destr)
	if n, ok := got.(Number); !ok || n != 1 {
		t.Fatalf("got %#v, want Number(1)", got)
	}
}

func TestEvaluateListDestrOnNil(t *testing.T) {
	destr := NewListDestr(NewListNil(), NewNumber(-1), NewLambda("h", NewLambda("t", Identifier("h"))))
	got := evalOrFatal(t, destr)
	if n, ok := got.(Number); !ok || n != -1 {
		t.Fatalf("got %#v, want Number(-1)", got)
	}
}

func TestEvaluateTupleDestr(t *testing.T) {
	tuple := NewTupleCons(NewString("name"), NewString("amy"), NewTupleCons(NewString("age"), NewNumber(30), NewTupleNil()))
	got := evalOrFatal(t, NewTupleDestr(tuple, NewString("age")))
	if n, ok := got.(Number); !ok || n != 30 {
		t.Fatalf("got %#v, want Number(30)", got)
	}
}

func TestEvaluateTupleDestrMissingKey(t *testing.T) {
	tuple := NewTupleCons(NewString("name"), NewString("amy"), NewTupleNil())
	got := evalOrFatal(t, NewTupleDestr(tuple, NewString("missing")))
	if _, ok := got.(Null); !ok {
		t.Fatalf("got %#v, want Null", got)
	}
}

func TestEvaluateRelationalNodeDeclines(t *testing.T) {
	db := NewDatabase("mem", "analytics", "localhost", 0, "", "")
	table, err := NewTable(db, "users")
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	_, err = Evaluate(NewScan(table), Environment{})
	if _, ok := err.(*NotLocallyEvaluableError); !ok {
		t.Fatalf("err = %v, want *NotLocallyEvaluableError", err)
	}
}

func TestEvaluateBuiltin(t *testing.T) {
	double := NewBuiltin("test", "double", func(arg any) (any, error) {
		n := arg.(int64)
		return n * 2, nil
	})
	applied := NewApplication(double, NewNumber(21))
	got := evalOrFatal(t, applied)
	if n, ok := got.(Number); !ok || n != 42 {
		t.Fatalf("got %#v, want Number(42)", got)
	}
}
