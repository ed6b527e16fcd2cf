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

// Package qirfmt renders a QIR tree as indented, human-readable text,
// the same role pir.Trace.Describe plays for a query plan, plus an
// optional zstd-compressed snapshot writer for golden test fixtures.
package qirfmt

import (
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/liautaud/qir/qir"
)

// Describe renders e as a multi-line, indented string: one line per
// node, children indented two spaces deeper than their parent.
func Describe(e qir.Expr) string {
	var b strings.Builder
	describe(&b, e, 0)
	return b.String()
}

func indent(b *strings.Builder, depth int) {
	b.WriteString(strings.Repeat("  ", depth))
}

func describe(b *strings.Builder, e qir.Expr, depth int) {
	indent(b, depth)
	switch v := e.(type) {
	case nil:
		b.WriteString("<nil>\n")
	case qir.Null:
		b.WriteString("Null\n")
	case qir.Boolean:
		fmt.Fprintf(b, "Boolean %v\n", bool(v))
	case qir.Number:
		fmt.Fprintf(b, "Number %d\n", int64(v))
	case qir.Double:
		fmt.Fprintf(b, "Double %v\n", float64(v))
	case qir.String:
		fmt.Fprintf(b, "String %q\n", string(v))
	case qir.Identifier:
		fmt.Fprintf(b, "Identifier %s\n", string(v))
	case qir.ListNil:
		b.WriteString("ListNil\n")
	case *qir.ListCons:
		b.WriteString("ListCons\n")
		describe(b, v.Head, depth+1)
		describe(b, v.Tail, depth+1)
	case *qir.ListDestr:
		b.WriteString("ListDestr\n")
		describe(b, v.Input, depth+1)
		describe(b, v.OnNil, depth+1)
		describe(b, v.OnCons, depth+1)
	case qir.TupleNil:
		b.WriteString("TupleNil\n")
	case *qir.TupleCons:
		b.WriteString("TupleCons\n")
		describe(b, v.Key, depth+1)
		describe(b, v.Value, depth+1)
		describe(b, v.Tail, depth+1)
	case *qir.TupleDestr:
		b.WriteString("TupleDestr\n")
		describe(b, v.Input, depth+1)
		describe(b, v.Key, depth+1)
	case *qir.Lambda:
		fmt.Fprintf(b, "Lambda %s\n", string(v.Parameter))
		describe(b, v.Body, depth+1)
	case *qir.Application:
		b.WriteString("Application\n")
		describe(b, v.Function, depth+1)
		describe(b, v.Argument, depth+1)
	case *qir.Conditional:
		b.WriteString("Conditional\n")
		describe(b, v.Condition, depth+1)
		describe(b, v.OnTrue, depth+1)
		describe(b, v.OnFalse, depth+1)
	case qir.Fixed:
		b.WriteString("Fixed\n")
	case *qir.Not:
		b.WriteString("Not\n")
		describe(b, v.Element, depth+1)
	case *qir.Binary:
		fmt.Fprintf(b, "Binary %s\n", v.Op)
		describe(b, v.Left, depth+1)
		describe(b, v.Right, depth+1)
	case *qir.Scan:
		b.WriteString("Scan\n")
		describe(b, v.Table, depth+1)
	case *qir.Filter:
		b.WriteString("Filter\n")
		describe(b, v.Predicate, depth+1)
		describe(b, v.Input, depth+1)
	case *qir.Project:
		b.WriteString("Project\n")
		describe(b, v.Format, depth+1)
		describe(b, v.Input, depth+1)
	case *qir.Sort:
		fmt.Fprintf(b, "Sort ascending=%v\n", v.Ascending)
		describe(b, v.Key, depth+1)
		describe(b, v.Input, depth+1)
	case *qir.Limit:
		b.WriteString("Limit\n")
		describe(b, v.N, depth+1)
		describe(b, v.Input, depth+1)
	case *qir.Group:
		b.WriteString("Group\n")
		describe(b, v.Key, depth+1)
		describe(b, v.Input, depth+1)
	case *qir.Join:
		b.WriteString("Join\n")
		describe(b, v.Predicate, depth+1)
		describe(b, v.Left, depth+1)
		describe(b, v.Right, depth+1)
	case *qir.Native:
		fmt.Fprintf(b, "Native %p\n", v.Value)
	case *qir.Builtin:
		fmt.Fprintf(b, "Builtin %s.%s\n", v.Module, v.Name)
	case *qir.Bytecode:
		b.WriteString("Bytecode\n")
	case *qir.Database:
		fmt.Fprintf(b, "Database %s://%s@%s:%d/%s\n", v.Driver, v.User, v.Host, v.Port, v.Name)
	case *qir.Table:
		fmt.Fprintf(b, "Table %s\n", v.Name)
		describe(b, v.Database, depth+1)
	default:
		fmt.Fprintf(b, "%T\n", e)
	}
}

// WriteSnapshot writes a zstd-compressed Describe dump of e to w, for
// use as a golden test fixture.
func WriteSnapshot(w io.Writer, e qir.Expr) error {
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return err
	}
	if _, err := enc.Write([]byte(Describe(e))); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// ReadSnapshot decompresses and returns a snapshot written by
// WriteSnapshot.
func ReadSnapshot(r io.Reader) (string, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return "", err
	}
	defer dec.Close()
	data, err := io.ReadAll(dec)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
