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

// Package wire implements a minimal schema-driven encoding of a QIR
// tree: one tag byte per node followed by its declared fields in order
// (strings length-prefixed, child nodes inline), skipping a Builtin's
// Function, and rejecting outright any subtree rooted at, or
// containing, a Native or a Bytecode node. A Bytecode's Code is not
// skipped: the whole node is rejected.
//
// The encoding is closed over the same variant set as qir.Expr; it
// does not attempt forward compatibility with variants this module
// does not know about, matching the fixed schema of the reference
// implementation's message format.
package wire

import (
	"encoding/binary"
	"fmt"
	"math"

	"golang.org/x/crypto/blake2b"

	"github.com/liautaud/qir/qir"
)

// macKey is fixed because Encode's trailer authenticates message
// integrity within a single trusted process boundary (catching
// accidental truncation or corruption of a cached snapshot), not
// cross-party authenticity; callers who need a real MAC should key
// their own blake2b.New256 call instead of relying on this one.
var macKey = [32]byte{
	0x71, 0x04, 0x9a, 0x2e, 0x8b, 0x3d, 0x5c, 0x16,
	0xf0, 0x27, 0x4e, 0x61, 0xd8, 0x93, 0x0a, 0x55,
	0x3c, 0x4a, 0xb7, 0x28, 0x6d, 0x91, 0x0e, 0x44,
	0x1f, 0x5e, 0x82, 0x39, 0x7b, 0xc0, 0x6a, 0xd3,
}

const trailerSize = 32

// NotSerializableError is returned wrapped as qir.NotSerializableError
// (re-exported here for callers that only import wire) whenever a tree
// cannot be encoded.
type NotSerializableError = qir.NotSerializableError

// Encode serializes e into a self-describing byte message followed by
// a blake2b-256 integrity trailer, or fails with
// *qir.NotSerializableError if e contains a Native node or a Bytecode
// node (an opaque host code object has no portable representation
// either).
func Encode(e qir.Expr) ([]byte, error) {
	w := &encoder{}
	if err := w.write(e); err != nil {
		return nil, err
	}
	h, err := blake2b.New256(macKey[:])
	if err != nil {
		return nil, err
	}
	h.Write(w.buf)
	return h.Sum(w.buf), nil
}

// Decode is the left inverse of Encode: it verifies the integrity
// trailer and reconstructs the QIR tree. A Builtin node decodes with a
// nil Function (the schema skips that field on the wire; the caller is
// expected to re-resolve the function by (Module, Name) on its side).
func Decode(data []byte) (qir.Expr, error) {
	if len(data) < trailerSize {
		return nil, fmt.Errorf("wire: message too short")
	}
	body, trailer := data[:len(data)-trailerSize], data[len(data)-trailerSize:]
	h, err := blake2b.New256(macKey[:])
	if err != nil {
		return nil, err
	}
	h.Write(body)
	sum := h.Sum(nil)
	if string(sum) != string(trailer) {
		return nil, fmt.Errorf("wire: integrity trailer mismatch")
	}
	d := &decoder{buf: body}
	e, err := d.read()
	if err != nil {
		return nil, err
	}
	if d.pos != len(d.buf) {
		return nil, fmt.Errorf("wire: %d trailing bytes after message", len(d.buf)-d.pos)
	}
	return e, nil
}

// Tags, stable across Encode/Decode within this module's version; not
// intended to match fingerprint's tag assignment (a different, purely
// local numbering used only as a cache key).
const (
	tagNull = iota
	tagBoolean
	tagNumber
	tagDouble
	tagString
	tagIdentifier
	tagListNil
	tagListCons
	tagListDestr
	tagTupleNil
	tagTupleCons
	tagTupleDestr
	tagLambda
	tagApplication
	tagConditional
	tagFixed
	tagNot
	tagBinary
	tagScan
	tagFilter
	tagProject
	tagSort
	tagLimit
	tagGroup
	tagJoin
	tagBuiltin
	tagDatabase
	tagTable
)

type encoder struct {
	buf []byte
}

func (w *encoder) tag(t byte)    { w.buf = append(w.buf, t) }
func (w *encoder) bool(b bool) {
	if b {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}
func (w *encoder) i64(v int64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, uint64(v))
}
func (w *encoder) f64(v float64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, math.Float64bits(v))
}
func (w *encoder) str(s string) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *encoder) write(e qir.Expr) error {
	switch v := e.(type) {
	case qir.Null:
		w.tag(tagNull)
	case qir.Boolean:
		w.tag(tagBoolean)
		w.bool(bool(v))
	case qir.Number:
		w.tag(tagNumber)
		w.i64(int64(v))
	case qir.Double:
		w.tag(tagDouble)
		w.f64(float64(v))
	case qir.String:
		w.tag(tagString)
		w.str(string(v))
	case qir.Identifier:
		w.tag(tagIdentifier)
		w.str(string(v))
	case qir.ListNil:
		w.tag(tagListNil)
	case *qir.ListCons:
		w.tag(tagListCons)
		if err := w.write(v.Head); err != nil {
			return err
		}
		return w.write(v.Tail)
	case *qir.ListDestr:
		w.tag(tagListDestr)
		if err := w.write(v.Input); err != nil {
			return err
		}
		if err := w.write(v.OnNil); err != nil {
			return err
		}
		return w.write(v.OnCons)
	case qir.TupleNil:
		w.tag(tagTupleNil)
	case *qir.TupleCons:
		w.tag(tagTupleCons)
		if err := w.write(v.Key); err != nil {
			return err
		}
		if err := w.write(v.Value); err != nil {
			return err
		}
		return w.write(v.Tail)
	case *qir.TupleDestr:
		w.tag(tagTupleDestr)
		if err := w.write(v.Input); err != nil {
			return err
		}
		return w.write(v.Key)
	case *qir.Lambda:
		w.tag(tagLambda)
		w.str(string(v.Parameter))
		return w.write(v.Body)
	case *qir.Application:
		w.tag(tagApplication)
		if err := w.write(v.Function); err != nil {
			return err
		}
		return w.write(v.Argument)
	case *qir.Conditional:
		w.tag(tagConditional)
		if err := w.write(v.Condition); err != nil {
			return err
		}
		if err := w.write(v.OnTrue); err != nil {
			return err
		}
		return w.write(v.OnFalse)
	case qir.Fixed:
		w.tag(tagFixed)
	case *qir.Not:
		w.tag(tagNot)
		return w.write(v.Element)
	case *qir.Binary:
		w.tag(tagBinary)
		w.i64(int64(v.Op))
		if err := w.write(v.Left); err != nil {
			return err
		}
		return w.write(v.Right)
	case *qir.Scan:
		w.tag(tagScan)
		return w.write(v.Table)
	case *qir.Filter:
		w.tag(tagFilter)
		if err := w.write(v.Predicate); err != nil {
			return err
		}
		return w.write(v.Input)
	case *qir.Project:
		w.tag(tagProject)
		if err := w.write(v.Format); err != nil {
			return err
		}
		return w.write(v.Input)
	case *qir.Sort:
		w.tag(tagSort)
		w.bool(v.Ascending)
		if err := w.write(v.Key); err != nil {
			return err
		}
		return w.write(v.Input)
	case *qir.Limit:
		w.tag(tagLimit)
		if err := w.write(v.N); err != nil {
			return err
		}
		return w.write(v.Input)
	case *qir.Group:
		w.tag(tagGroup)
		if err := w.write(v.Key); err != nil {
			return err
		}
		return w.write(v.Input)
	case *qir.Join:
		w.tag(tagJoin)
		if err := w.write(v.Predicate); err != nil {
			return err
		}
		if err := w.write(v.Left); err != nil {
			return err
		}
		return w.write(v.Right)
	case *qir.Builtin:
		// Function is unserialisable (a Go func value); the schema
		// skips it and carries only the (Module, Name) lookup key.
		w.tag(tagBuiltin)
		w.str(v.Module)
		w.str(v.Name)
	case *qir.Database:
		w.tag(tagDatabase)
		w.str(v.Driver)
		w.str(v.Name)
		w.str(v.Host)
		w.i64(int64(v.Port))
		w.str(v.User)
		w.str(v.Pass)
	case *qir.Table:
		w.tag(tagTable)
		if err := w.write(v.Database); err != nil {
			return err
		}
		w.str(v.Name)
	case *qir.Native, *qir.Bytecode:
		return &qir.NotSerializableError{Node: e}
	default:
		return &qir.NotSerializableError{Node: e}
	}
	return nil
}

type decoder struct {
	buf []byte
	pos int
}

func (d *decoder) tag() (byte, error) {
	if d.pos >= len(d.buf) {
		return 0, fmt.Errorf("wire: truncated message (tag)")
	}
	t := d.buf[d.pos]
	d.pos++
	return t, nil
}

func (d *decoder) bool() (bool, error) {
	if d.pos >= len(d.buf) {
		return false, fmt.Errorf("wire: truncated message (bool)")
	}
	b := d.buf[d.pos] != 0
	d.pos++
	return b, nil
}

func (d *decoder) i64() (int64, error) {
	if d.pos+8 > len(d.buf) {
		return 0, fmt.Errorf("wire: truncated message (i64)")
	}
	v := int64(binary.LittleEndian.Uint64(d.buf[d.pos:]))
	d.pos += 8
	return v, nil
}

func (d *decoder) f64() (float64, error) {
	if d.pos+8 > len(d.buf) {
		return 0, fmt.Errorf("wire: truncated message (f64)")
	}
	bits := binary.LittleEndian.Uint64(d.buf[d.pos:])
	d.pos += 8
	return math.Float64frombits(bits), nil
}

func (d *decoder) str() (string, error) {
	if d.pos+4 > len(d.buf) {
		return "", fmt.Errorf("wire: truncated message (str len)")
	}
	n := int(binary.LittleEndian.Uint32(d.buf[d.pos:]))
	d.pos += 4
	if d.pos+n > len(d.buf) {
		return "", fmt.Errorf("wire: truncated message (str body)")
	}
	s := string(d.buf[d.pos : d.pos+n])
	d.pos += n
	return s, nil
}

func (d *decoder) read() (qir.Expr, error) {
	t, err := d.tag()
	if err != nil {
		return nil, err
	}
	switch t {
	case tagNull:
		return qir.NewNull(), nil
	case tagBoolean:
		b, err := d.bool()
		return qir.NewBoolean(b), err
	case tagNumber:
		n, err := d.i64()
		return qir.NewNumber(n), err
	case tagDouble:
		f, err := d.f64()
		return qir.NewDouble(f), err
	case tagString:
		s, err := d.str()
		return qir.NewString(s), err
	case tagIdentifier:
		s, err := d.str()
		return qir.NewIdentifier(s), err
	case tagListNil:
		return qir.NewListNil(), nil
	case tagListCons:
		head, err := d.read()
		if err != nil {
			return nil, err
		}
		tail, err := d.read()
		if err != nil {
			return nil, err
		}
		return qir.NewListCons(head, tail), nil
	case tagListDestr:
		input, err := d.read()
		if err != nil {
			return nil, err
		}
		onNil, err := d.read()
		if err != nil {
			return nil, err
		}
		onCons, err := d.read()
		if err != nil {
			return nil, err
		}
		return qir.NewListDestr(input, onNil, onCons), nil
	case tagTupleNil:
		return qir.NewTupleNil(), nil
	case tagTupleCons:
		key, err := d.read()
		if err != nil {
			return nil, err
		}
		value, err := d.read()
		if err != nil {
			return nil, err
		}
		tail, err := d.read()
		if err != nil {
			return nil, err
		}
		return qir.NewTupleCons(key, value, tail), nil
	case tagTupleDestr:
		input, err := d.read()
		if err != nil {
			return nil, err
		}
		key, err := d.read()
		if err != nil {
			return nil, err
		}
		return qir.NewTupleDestr(input, key), nil
	case tagLambda:
		param, err := d.str()
		if err != nil {
			return nil, err
		}
		body, err := d.read()
		if err != nil {
			return nil, err
		}
		return qir.NewLambda(qir.Identifier(param), body), nil
	case tagApplication:
		fn, err := d.read()
		if err != nil {
			return nil, err
		}
		arg, err := d.read()
		if err != nil {
			return nil, err
		}
		return qir.NewApplication(fn, arg), nil
	case tagConditional:
		cond, err := d.read()
		if err != nil {
			return nil, err
		}
		onTrue, err := d.read()
		if err != nil {
			return nil, err
		}
		onFalse, err := d.read()
		if err != nil {
			return nil, err
		}
		return qir.NewConditional(cond, onTrue, onFalse), nil
	case tagFixed:
		return qir.NewFixed(), nil
	case tagNot:
		e, err := d.read()
		return qir.NewNot(e), err
	case tagBinary:
		op, err := d.i64()
		if err != nil {
			return nil, err
		}
		left, err := d.read()
		if err != nil {
			return nil, err
		}
		right, err := d.read()
		if err != nil {
			return nil, err
		}
		return qir.NewBinary(qir.BinaryOp(op), left, right), nil
	case tagScan:
		table, err := d.read()
		return qir.NewScan(table), err
	case tagFilter:
		pred, err := d.read()
		if err != nil {
			return nil, err
		}
		input, err := d.read()
		if err != nil {
			return nil, err
		}
		return qir.NewFilter(pred, input), nil
	case tagProject:
		format, err := d.read()
		if err != nil {
			return nil, err
		}
		input, err := d.read()
		if err != nil {
			return nil, err
		}
		return qir.NewProject(format, input), nil
	case tagSort:
		asc, err := d.bool()
		if err != nil {
			return nil, err
		}
		key, err := d.read()
		if err != nil {
			return nil, err
		}
		input, err := d.read()
		if err != nil {
			return nil, err
		}
		return qir.NewSort(key, asc, input), nil
	case tagLimit:
		n, err := d.read()
		if err != nil {
			return nil, err
		}
		input, err := d.read()
		if err != nil {
			return nil, err
		}
		return qir.NewLimit(n, input), nil
	case tagGroup:
		key, err := d.read()
		if err != nil {
			return nil, err
		}
		input, err := d.read()
		if err != nil {
			return nil, err
		}
		return qir.NewGroup(key, input), nil
	case tagJoin:
		pred, err := d.read()
		if err != nil {
			return nil, err
		}
		left, err := d.read()
		if err != nil {
			return nil, err
		}
		right, err := d.read()
		if err != nil {
			return nil, err
		}
		return qir.NewJoin(pred, left, right), nil
	case tagBuiltin:
		module, err := d.str()
		if err != nil {
			return nil, err
		}
		name, err := d.str()
		if err != nil {
			return nil, err
		}
		return qir.NewBuiltin(module, name, nil), nil
	case tagDatabase:
		driver, err := d.str()
		if err != nil {
			return nil, err
		}
		name, err := d.str()
		if err != nil {
			return nil, err
		}
		host, err := d.str()
		if err != nil {
			return nil, err
		}
		port, err := d.i64()
		if err != nil {
			return nil, err
		}
		user, err := d.str()
		if err != nil {
			return nil, err
		}
		pass, err := d.str()
		if err != nil {
			return nil, err
		}
		return qir.NewDatabase(driver, name, host, int(port), user, pass), nil
	case tagTable:
		database, err := d.read()
		if err != nil {
			return nil, err
		}
		name, err := d.str()
		if err != nil {
			return nil, err
		}
		return qir.NewTable(database, name)
	default:
		return nil, fmt.Errorf("wire: unknown tag %d", t)
	}
}
