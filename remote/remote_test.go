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

package remote

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/liautaud/qir/qir"
)

func TestRequestIDRoundTrip(t *testing.T) {
	if _, ok := RequestID(context.Background()); ok {
		t.Fatalf("expected no request id on a bare context")
	}
	id := uuid.New()
	ctx := context.WithValue(context.Background(), requestIDKey{}, id)
	got, ok := RequestID(ctx)
	if !ok || got != id {
		t.Fatalf("RequestID = %v, %v; want %v, true", got, ok, id)
	}
}

func row(name string, age int64) qir.Expr {
	return qir.NewTupleCons(qir.NewString("name"), qir.NewString(name),
		qir.NewTupleCons(qir.NewString("age"), qir.NewNumber(age), qir.NewTupleNil()))
}

func TestLoopbackScanFilterProject(t *testing.T) {
	store := MemStore{
		"users": {row("amy", 30), row("bo", 12), row("cass", 45)},
	}
	l := NewLoopback(store)

	db := qir.NewDatabase("mem", "analytics", "", 0, "", "")
	table, err := qir.NewTable(db, "users")
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}

	tree := qir.NewProject(
		qir.NewLambda("u", qir.NewTupleDestr(qir.Identifier("u"), qir.NewString("name"))),
		qir.NewFilter(
			qir.NewLambda("u", qir.NewLowerThan(qir.NewNumber(18), qir.NewTupleDestr(qir.Identifier("u"), qir.NewString("age")))),
			qir.NewScan(table),
		),
	)

	result, err := l.Evaluate(context.Background(), tree)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	decoded, err := qir.Decode(result)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	names, ok := decoded.([]any)
	if !ok || len(names) != 2 {
		t.Fatalf("decoded = %#v", decoded)
	}
	if names[0] != "amy" || names[1] != "cass" {
		t.Fatalf("names = %v", names)
	}
}

func TestLoopbackDeclinesNative(t *testing.T) {
	store := MemStore{}
	l := NewLoopback(store)
	tree := qir.NewApplication(qir.NewNative(func() {}), qir.NewNumber(1))

	_, err := l.Evaluate(context.Background(), tree)
	var nre *qir.NotRemotelyEvaluableError
	if !errors.As(err, &nre) {
		t.Fatalf("Evaluate(Native) = %v, want *qir.NotRemotelyEvaluableError", err)
	}
}

func TestLoopbackLimitAndSort(t *testing.T) {
	store := MemStore{
		"users": {row("amy", 30), row("bo", 12), row("cass", 45)},
	}
	l := NewLoopback(store)
	db := qir.NewDatabase("mem", "analytics", "", 0, "", "")
	table, err := qir.NewTable(db, "users")
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}

	tree := qir.NewLimit(qir.NewNumber(2),
		qir.NewSort(qir.NewLambda("u", qir.NewTupleDestr(qir.Identifier("u"), qir.NewString("age"))), true, qir.NewScan(table)))

	result, err := l.Evaluate(context.Background(), tree)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	decoded, err := qir.Decode(result)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	rows, ok := decoded.([]any)
	if !ok || len(rows) != 2 {
		t.Fatalf("decoded = %#v", decoded)
	}
	first, ok := rows[0].(map[string]any)
	if !ok || first["name"] != "bo" {
		t.Fatalf("rows[0] = %#v", rows[0])
	}
}
