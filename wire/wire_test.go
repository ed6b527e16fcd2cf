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

package wire

import (
	"errors"
	"testing"

	"github.com/liautaud/qir/qir"
)

func TestRoundTripValueTree(t *testing.T) {
	db := qir.NewDatabase("mem", "analytics", "localhost", 5432, "root", "secret")
	table, err := qir.NewTable(db, "users")
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	tree := qir.NewFilter(
		qir.NewLambda("u", qir.NewLowerThan(qir.NewNumber(18), qir.NewTupleDestr(qir.Identifier("u"), qir.NewString("age")))),
		qir.NewScan(table),
	)

	data, err := Encode(tree)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !qir.SameTree(got, tree) {
		t.Fatalf("round trip mismatch: got %#v want %#v", got, tree)
	}
}

func TestRoundTripDoubleExact(t *testing.T) {
	for _, v := range []float64{
		0,
		-0.1234567891,
		3.14159265358979,
		1e18,
		-1e18,
		1.0 / 3.0,
	} {
		data, err := Encode(qir.NewDouble(v))
		if err != nil {
			t.Fatalf("Encode(%v): %v", v, err)
		}
		got, err := Decode(data)
		if err != nil {
			t.Fatalf("Decode(%v): %v", v, err)
		}
		d, ok := got.(qir.Double)
		if !ok || float64(d) != v {
			t.Fatalf("round trip of %v = %#v, want exact %v", v, got, v)
		}
	}
}

func TestEncodeRejectsNative(t *testing.T) {
	tree := qir.NewApplication(qir.NewNative(func() {}), qir.NewNumber(1))
	_, err := Encode(tree)
	var nse *qir.NotSerializableError
	if !errors.As(err, &nse) {
		t.Fatalf("Encode(Native) = %v, want *qir.NotSerializableError", err)
	}
}

func TestEncodeRejectsBytecode(t *testing.T) {
	tree := qir.NewBytecode("opaque-code-object")
	_, err := Encode(tree)
	var nse *qir.NotSerializableError
	if !errors.As(err, &nse) {
		t.Fatalf("Encode(Bytecode) = %v, want *qir.NotSerializableError", err)
	}
}

func TestDecodeDetectsCorruption(t *testing.T) {
	data, err := Encode(qir.NewNumber(42))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	data[0] ^= 0xff
	if _, err := Decode(data); err == nil {
		t.Fatalf("Decode accepted corrupted message")
	}
}

func TestBuiltinDropsFunction(t *testing.T) {
	tree := qir.NewBuiltin("math", "sqrt", func(a any) (any, error) { return a, nil })
	data, err := Encode(tree)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	b, ok := got.(*qir.Builtin)
	if !ok {
		t.Fatalf("Decode = %T, want *qir.Builtin", got)
	}
	if b.Module != "math" || b.Name != "sqrt" {
		t.Fatalf("Builtin = %+v", b)
	}
	if b.Function != nil {
		t.Fatalf("decoded Builtin.Function should be nil, not re-resolved")
	}
}
