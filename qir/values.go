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

// Null is the QIR expression representing the null value.
type Null struct{}

// Boolean is a QIR boolean literal.
type Boolean bool

// Number is a QIR integer literal.
type Number int64

// Double is a QIR floating point literal.
type Double float64

// String is a QIR string literal.
type String string

func (Null) isExpr()    {}
func (Boolean) isExpr() {}
func (Number) isExpr()  {}
func (Double) isExpr()  {}
func (String) isExpr()  {}

// NewNull returns the null expression.
func NewNull() Null { return Null{} }

// NewBoolean wraps a host bool as a QIR expression.
func NewBoolean(v bool) Boolean { return Boolean(v) }

// NewNumber wraps a host integer as a QIR expression.
func NewNumber(v int64) Number { return Number(v) }

// NewDouble wraps a host float as a QIR expression.
func NewDouble(v float64) Double { return Double(v) }

// NewString wraps a host string as a QIR expression.
func NewString(v string) String { return String(v) }

// isValue marks the leaf value variants; it is used by the evaluator
// to decide whether an operand of an algebraic operator is a Value
// (and thus has a host-representable payload) or something else.
type isValue interface {
	value()
}

func (Null) value()    {}
func (Boolean) value() {}
func (Number) value()  {}
func (Double) value()  {}
func (String) value()  {}

// asValue returns e and true if e is one of the five value variants.
func asValue(e Expr) (isValue, bool) {
	v, ok := e.(isValue)
	return v, ok
}
