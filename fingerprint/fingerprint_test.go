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

package fingerprint

import (
	"testing"

	"github.com/liautaud/qir/qir"
)

func tree(x int64) qir.Expr {
	return qir.NewLambda("u", qir.NewPlus(qir.Identifier("u"), qir.NewNumber(x)))
}

func TestOfIsStableAcrossEqualTrees(t *testing.T) {
	a := tree(2)
	b := tree(2)
	if Of(a) != Of(b) {
		t.Fatalf("structurally identical trees fingerprinted differently: %d != %d", Of(a), Of(b))
	}
}

func TestOfDistinguishesDifferentTrees(t *testing.T) {
	a := tree(2)
	b := tree(3)
	if Of(a) == Of(b) {
		t.Fatalf("distinct trees fingerprinted identically: %d", Of(a))
	}
}

func TestOfStableUnderEncodeDecodeRoundTrip(t *testing.T) {
	original := "hello"
	encoded, err := qir.Encode(original)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := qir.Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	reencoded, err := qir.Encode(decoded)
	if err != nil {
		t.Fatalf("re-Encode: %v", err)
	}
	if Of(encoded) != Of(reencoded) {
		t.Fatalf("fingerprint not stable under encode/decode round trip")
	}
}
