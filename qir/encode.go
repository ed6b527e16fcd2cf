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

import "reflect"

// Encode maps a host value into a QIR value tree. Mappings become
// right-folded TupleCons chains, other iterables (slices, arrays)
// become right-folded ListCons chains, and anything else fails with
// NotEncodableError.
func Encode(value any) (Expr, error) {
	switch v := value.(type) {
	case nil:
		return Null{}, nil
	case bool:
		return Boolean(v), nil
	case int:
		return Number(int64(v)), nil
	case int32:
		return Number(int64(v)), nil
	case int64:
		return Number(v), nil
	case float32:
		return Double(float64(v)), nil
	case float64:
		return Double(v), nil
	case string:
		return String(v), nil
	case map[string]any:
		return encodeMap(v)
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, &NotEncodableError{Value: value}
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return encodeMap(m)
	case reflect.Slice, reflect.Array:
		return encodeSeq(rv)
	default:
		return nil, &NotEncodableError{Value: value}
	}
}

func encodeMap(m map[string]any) (Expr, error) {
	var tail Expr = TupleNil{}
	// Iteration order over a Go map is undefined; callers that need a
	// stable encoding should sort keys before calling Encode on a
	// type with deterministic field order instead.
	for k, v := range m {
		ev, err := Encode(v)
		if err != nil {
			return nil, err
		}
		tail = NewTupleCons(String(k), ev, tail)
	}
	return tail, nil
}

func encodeSeq(rv reflect.Value) (Expr, error) {
	n := rv.Len()
	var tail Expr = ListNil{}
	for i := n - 1; i >= 0; i-- {
		ev, err := Encode(rv.Index(i).Interface())
		if err != nil {
			return nil, err
		}
		tail = NewListCons(ev, tail)
	}
	return tail, nil
}

// Decode is the left inverse of Encode on the value/structural subset
// of QIR: values return their payload, TupleNil/TupleCons decode to a
// map[string]any, and ListNil/ListCons decode to a []any. Decoding any
// other node fails with NotDecodableError.
func Decode(e Expr) (any, error) {
	switch v := e.(type) {
	case Null:
		return nil, nil
	case Boolean:
		return bool(v), nil
	case Number:
		return int64(v), nil
	case Double:
		return float64(v), nil
	case String:
		return string(v), nil
	case TupleNil:
		return map[string]any{}, nil
	case *TupleCons:
		decoded, err := Decode(v.Tail)
		if err != nil {
			return nil, err
		}
		m, ok := decoded.(map[string]any)
		if !ok {
			return nil, &NotDecodableError{Node: e}
		}
		key, err := Decode(v.Key)
		if err != nil {
			return nil, err
		}
		ks, ok := key.(string)
		if !ok {
			return nil, &NotDecodableError{Node: e}
		}
		val, err := Decode(v.Value)
		if err != nil {
			return nil, err
		}
		m[ks] = val
		return m, nil
	case ListNil:
		return []any{}, nil
	case *ListCons:
		tail, err := Decode(v.Tail)
		if err != nil {
			return nil, err
		}
		elems, ok := tail.([]any)
		if !ok {
			return nil, &NotDecodableError{Node: e}
		}
		head, err := Decode(v.Head)
		if err != nil {
			return nil, err
		}
		return append([]any{head}, elems...), nil
	default:
		return nil, &NotDecodableError{Node: e}
	}
}
