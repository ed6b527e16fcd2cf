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

// Package remote declares the client-side boundary of the external QIR
// evaluator that the local evaluator falls back away from, and ships
// one in-memory implementation, Loopback, for tests and CLI demos: a
// real network evaluator is out of scope for this module.
package remote

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/liautaud/qir/qir"
	"github.com/liautaud/qir/wire"
)

// Evaluator is the client-side stub for an external QIR evaluator: it
// takes a (possibly relational) tree and returns its fully reduced
// value. Implementations are expected to decline with
// *qir.NotRemotelyEvaluableError rather than fail outright when the
// tree cannot make it across the wire.
type Evaluator interface {
	Evaluate(ctx context.Context, e qir.Expr) (qir.Expr, error)
}

// TableStore resolves a table name to its rows, each row encoded as a
// QIR value (ordinarily a TupleCons chain produced by qir.Encode).
type TableStore interface {
	Rows(name string) ([]qir.Expr, error)
}

// MemStore is a TableStore backed by a fixed in-memory map, the shape
// a seeded test fixture naturally takes.
type MemStore map[string][]qir.Expr

func (m MemStore) Rows(name string) ([]qir.Expr, error) {
	rows, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("remote: no such table %q", name)
	}
	return rows, nil
}

// Loopback evaluates relational operators over Store without
// contacting any actual remote host, so Scan/Filter/Project/Sort/
// Limit/Group/Join are exercised end to end by tests without standing
// up a real RPC server.
type Loopback struct {
	Store TableStore
}

// NewLoopback constructs a Loopback evaluator over the given store.
func NewLoopback(store TableStore) *Loopback {
	return &Loopback{Store: store}
}

type requestIDKey struct{}

// RequestID returns the id Evaluate minted for the call ctx descends
// from, if any.
func RequestID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(requestIDKey{}).(uuid.UUID)
	return id, ok
}

// Evaluate tags the call with a fresh request id, stashed on ctx under
// RequestID (mirroring the teacher's queryID := uuid.New() at its own
// query entry point, threaded through for a caller to log rather than
// discarded), declines with *qir.NotRemotelyEvaluableError if e cannot
// be wire-encoded, and otherwise evaluates it against Store.
func (l *Loopback) Evaluate(ctx context.Context, e qir.Expr) (qir.Expr, error) {
	ctx = context.WithValue(ctx, requestIDKey{}, uuid.New())
	if _, err := wire.Encode(e); err != nil {
		return nil, &qir.NotRemotelyEvaluableError{Node: e}
	}
	return l.eval(ctx, e)
}

func (l *Loopback) eval(ctx context.Context, e qir.Expr) (qir.Expr, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch t := e.(type) {
	case *qir.Scan:
		table, ok := t.Table.(*qir.Table)
		if !ok {
			return nil, fmt.Errorf("remote: Scan.Table is not a *qir.Table")
		}
		rows, err := l.Store.Rows(table.Name)
		if err != nil {
			return nil, err
		}
		return toList(rows), nil

	case *qir.Filter:
		rows, err := l.rows(ctx, t.Input)
		if err != nil {
			return nil, err
		}
		var kept []qir.Expr
		for _, row := range rows {
			v, err := qir.Evaluate(qir.NewApplication(t.Predicate, row), qir.Environment{})
			if err != nil {
				return nil, err
			}
			b, ok := v.(qir.Boolean)
			if !ok {
				return nil, &qir.TypeError{Op: "Filter", Got: v}
			}
			if bool(b) {
				kept = append(kept, row)
			}
		}
		return toList(kept), nil

	case *qir.Project:
		rows, err := l.rows(ctx, t.Input)
		if err != nil {
			return nil, err
		}
		out := make([]qir.Expr, len(rows))
		for i, row := range rows {
			v, err := qir.Evaluate(qir.NewApplication(t.Format, row), qir.Environment{})
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return toList(out), nil

	case *qir.Sort:
		rows, err := l.rows(ctx, t.Input)
		if err != nil {
			return nil, err
		}
		keys := make([]any, len(rows))
		for i, row := range rows {
			v, err := qir.Evaluate(qir.NewApplication(t.Key, row), qir.Environment{})
			if err != nil {
				return nil, err
			}
			decoded, err := qir.Decode(v)
			if err != nil {
				return nil, err
			}
			keys[i] = decoded
		}
		idx := make([]int, len(rows))
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(i, j int) bool {
			less := lessAny(keys[idx[i]], keys[idx[j]])
			if t.Ascending {
				return less
			}
			return lessAny(keys[idx[j]], keys[idx[i]])
		})
		out := make([]qir.Expr, len(rows))
		for i, j := range idx {
			out[i] = rows[j]
		}
		return toList(out), nil

	case *qir.Limit:
		rows, err := l.rows(ctx, t.Input)
		if err != nil {
			return nil, err
		}
		n, err := qir.Evaluate(t.N, qir.Environment{})
		if err != nil {
			return nil, err
		}
		num, ok := n.(qir.Number)
		if !ok {
			return nil, &qir.TypeError{Op: "Limit", Got: n}
		}
		if int(num) < len(rows) {
			rows = rows[:num]
		}
		return toList(rows), nil

	case *qir.Group:
		rows, err := l.rows(ctx, t.Input)
		if err != nil {
			return nil, err
		}
		order := []string{}
		groups := map[string][]qir.Expr{}
		for _, row := range rows {
			k, err := qir.Evaluate(qir.NewApplication(t.Key, row), qir.Environment{})
			if err != nil {
				return nil, err
			}
			decoded, err := qir.Decode(k)
			if err != nil {
				return nil, err
			}
			key := fmt.Sprint(decoded)
			if _, ok := groups[key]; !ok {
				order = append(order, key)
			}
			groups[key] = append(groups[key], row)
		}
		out := make([]qir.Expr, len(order))
		for i, key := range order {
			out[i] = qir.NewTupleCons(qir.NewString(key), toList(groups[key]), qir.NewTupleNil())
		}
		return toList(out), nil

	case *qir.Join:
		left, err := l.rows(ctx, t.Left)
		if err != nil {
			return nil, err
		}
		right, err := l.rows(ctx, t.Right)
		if err != nil {
			return nil, err
		}
		var out []qir.Expr
		for _, lr := range left {
			for _, rr := range right {
				applied := qir.NewApplication(qir.NewApplication(t.Predicate, lr), rr)
				v, err := qir.Evaluate(applied, qir.Environment{})
				if err != nil {
					return nil, err
				}
				b, ok := v.(qir.Boolean)
				if !ok {
					return nil, &qir.TypeError{Op: "Join", Got: v}
				}
				if bool(b) {
					out = append(out, qir.NewTupleCons(qir.NewString("left"), lr, qir.NewTupleCons(qir.NewString("right"), rr, qir.NewTupleNil())))
				}
			}
		}
		return toList(out), nil

	case *qir.Database, *qir.Table:
		return nil, &qir.NotLocallyEvaluableError{Node: e}

	default:
		return qir.Evaluate(e, qir.Environment{})
	}
}

// rows evaluates e and decodes it into a Go slice of its elements,
// requiring e to reduce to a list.
func (l *Loopback) rows(ctx context.Context, e qir.Expr) ([]qir.Expr, error) {
	v, err := l.eval(ctx, e)
	if err != nil {
		return nil, err
	}
	return fromList(v)
}

func toList(rows []qir.Expr) qir.Expr {
	var tail qir.Expr = qir.NewListNil()
	for i := len(rows) - 1; i >= 0; i-- {
		tail = qir.NewListCons(rows[i], tail)
	}
	return tail
}

func fromList(e qir.Expr) ([]qir.Expr, error) {
	var out []qir.Expr
	for {
		switch t := e.(type) {
		case qir.ListNil:
			return out, nil
		case *qir.ListCons:
			out = append(out, t.Head)
			e = t.Tail
		default:
			return nil, &qir.TypeError{Op: "remote.fromList", Got: e}
		}
	}
}

func lessAny(a, b any) bool {
	switch av := a.(type) {
	case int64:
		bv, _ := b.(int64)
		return av < bv
	case float64:
		bv, _ := b.(float64)
		return av < bv
	case string:
		bv, _ := b.(string)
		return av < bv
	case bool:
		bv, _ := b.(bool)
		return !av && bv
	default:
		return fmt.Sprint(a) < fmt.Sprint(b)
	}
}
