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

package qirfmt

import (
	"bytes"
	"strings"
	"testing"

	"github.com/liautaud/qir/qir"
)

func TestDescribeNesting(t *testing.T) {
	e := qir.NewLambda("x", qir.NewPlus(qir.Identifier("x"), qir.NewNumber(2)))
	out := Describe(e)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("Describe produced %d lines, want 4:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "Lambda x") {
		t.Fatalf("first line = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "  Binary Plus") {
		t.Fatalf("second line = %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], "    Identifier x") {
		t.Fatalf("third line = %q", lines[2])
	}
	if !strings.HasPrefix(lines[3], "    Number 2") {
		t.Fatalf("fourth line = %q", lines[3])
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	e := qir.NewConditional(qir.NewLowerThan(qir.NewNumber(1), qir.NewNumber(2)), qir.NewString("yes"), qir.NewString("no"))
	var buf bytes.Buffer
	if err := WriteSnapshot(&buf, e); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	got, err := ReadSnapshot(&buf)
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}
	if got != Describe(e) {
		t.Fatalf("round trip mismatch:\ngot:  %q\nwant: %q", got, Describe(e))
	}
}
