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

// Package fingerprint computes a content hash of a QIR expression, for
// use as a cache key by a view/result cache sitting in front of the
// remote evaluator. Two structurally identical trees always produce
// the same fingerprint; collisions between distinct trees are not
// ruled out.
package fingerprint

import (
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/dchest/siphash"

	"github.com/liautaud/qir/qir"
)

// k0, k1 are fixed siphash keys: the fingerprint is used only as a
// local cache key within one process, never as a MAC, so there is no
// need to randomize them per run.
const (
	k0 = 0x5d1ec810febed702
	k1 = 0x40fd7fee17262f71
)

// Of returns a content hash of e.
func Of(e qir.Expr) uint64 {
	w := &writer{}
	w.write(e)
	return siphash.Hash(k0, k1, w.buf)
}

type writer struct {
	buf []byte
}

func (w *writer) tag(tag byte) {
	w.buf = append(w.buf, tag)
}

func (w *writer) str(s string) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *writer) i64(v int64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, uint64(v))
}

func (w *writer) write(e qir.Expr) {
	switch v := e.(type) {
	case nil:
		w.tag(0)
	case qir.Null:
		w.tag(1)
	case qir.Boolean:
		w.tag(2)
		if v {
			w.tag(1)
		} else {
			w.tag(0)
		}
	case qir.Number:
		w.tag(3)
		w.i64(int64(v))
	case qir.Double:
		w.tag(4)
		w.str(strconv.FormatFloat(float64(v), 'g', -1, 64))
	case qir.String:
		w.tag(5)
		w.str(string(v))
	case qir.Identifier:
		w.tag(6)
		w.str(string(v))
	case qir.ListNil:
		w.tag(7)
	case *qir.ListCons:
		w.tag(8)
		w.write(v.Head)
		w.write(v.Tail)
	case *qir.ListDestr:
		w.tag(9)
		w.write(v.Input)
		w.write(v.OnNil)
		w.write(v.OnCons)
	case qir.TupleNil:
		w.tag(10)
	case *qir.TupleCons:
		w.tag(11)
		w.write(v.Key)
		w.write(v.Value)
		w.write(v.Tail)
	case *qir.TupleDestr:
		w.tag(12)
		w.write(v.Input)
		w.write(v.Key)
	case *qir.Lambda:
		w.tag(13)
		w.str(string(v.Parameter))
		w.write(v.Body)
	case *qir.Application:
		w.tag(14)
		w.write(v.Function)
		w.write(v.Argument)
	case *qir.Conditional:
		w.tag(15)
		w.write(v.Condition)
		w.write(v.OnTrue)
		w.write(v.OnFalse)
	case qir.Fixed:
		w.tag(16)
	case *qir.Scan:
		w.tag(17)
		w.write(v.Table)
	case *qir.Filter:
		w.tag(18)
		w.write(v.Predicate)
		w.write(v.Input)
	case *qir.Project:
		w.tag(19)
		w.write(v.Format)
		w.write(v.Input)
	case *qir.Sort:
		w.tag(20)
		w.write(v.Key)
		if v.Ascending {
			w.tag(1)
		} else {
			w.tag(0)
		}
		w.write(v.Input)
	case *qir.Limit:
		w.tag(21)
		w.write(v.N)
		w.write(v.Input)
	case *qir.Group:
		w.tag(22)
		w.write(v.Key)
		w.write(v.Input)
	case *qir.Join:
		w.tag(23)
		w.write(v.Predicate)
		w.write(v.Left)
		w.write(v.Right)
	case *qir.Not:
		w.tag(24)
		w.write(v.Element)
	case *qir.Binary:
		w.tag(25)
		w.i64(int64(v.Op))
		w.write(v.Left)
		w.write(v.Right)
	case *qir.Native:
		// Native wraps an opaque host value; its identity, not its
		// (unknowable) content, is all we can fingerprint.
		w.tag(26)
		w.str(fmt.Sprintf("%p", v.Value))
	case *qir.Builtin:
		w.tag(27)
		w.str(v.Module)
		w.str(v.Name)
	case *qir.Bytecode:
		w.tag(28)
	case *qir.Database:
		w.tag(29)
		w.str(v.Driver)
		w.str(v.Name)
		w.str(v.Host)
		w.i64(int64(v.Port))
		w.str(v.User)
	case *qir.Table:
		w.tag(30)
		w.write(v.Database)
		w.str(v.Name)
	default:
		w.tag(255)
	}
}
