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

// Scan iterates the unordered elements of Table.
type Scan struct {
	Table Expr
}

// Filter keeps the elements v of Input such that Predicate(v) is true.
type Filter struct {
	Predicate Expr
	Input     Expr
}

// Project maps every element v of Input through Format(v).
type Project struct {
	Format Expr
	Input  Expr
}

// Sort orders the elements of Input by Key, ascending or descending.
type Sort struct {
	Key       Expr
	Ascending bool
	Input     Expr
}

// Limit truncates Input to its first N elements.
type Limit struct {
	N     Expr
	Input Expr
}

// Group partitions the elements of Input by Key.
type Group struct {
	Key   Expr
	Input Expr
}

// Join pairs elements of Left and Right for which Predicate holds.
type Join struct {
	Predicate Expr
	Left      Expr
	Right     Expr
}

func (*Scan) isExpr()   {}
func (*Filter) isExpr() {}
func (*Project) isExpr() {}
func (*Sort) isExpr()   {}
func (*Limit) isExpr()  {}
func (*Group) isExpr()  {}
func (*Join) isExpr()   {}

// NewScan constructs a relational scan over table.
func NewScan(table Expr) *Scan { return &Scan{Table: table} }

// NewFilter constructs a relational filter.
func NewFilter(predicate, input Expr) *Filter {
	return &Filter{Predicate: predicate, Input: input}
}

// NewProject constructs a relational projection.
func NewProject(format, input Expr) *Project {
	return &Project{Format: format, Input: input}
}

// NewSort constructs a relational sort.
func NewSort(key Expr, ascending bool, input Expr) *Sort {
	return &Sort{Key: key, Ascending: ascending, Input: input}
}

// NewLimit constructs a relational limit.
func NewLimit(n, input Expr) *Limit {
	return &Limit{N: n, Input: input}
}

// NewGroup constructs a relational grouping.
func NewGroup(key, input Expr) *Group {
	return &Group{Key: key, Input: input}
}

// NewJoin constructs a relational join.
func NewJoin(predicate, left, right Expr) *Join {
	return &Join{Predicate: predicate, Left: left, Right: right}
}
