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

package decompile

import (
	"fmt"

	"github.com/liautaud/qir/qir"
)

// Execute runs the symbolic executor over g in topological order,
// reconciling each block's incoming operand stack from its
// predecessors and then applying that block's per-opcode semantics.
// startingStack seeds the entry block (the default is empty).
func Execute(g *Graph, startingStack []qir.Expr) error {
	if g.Order == nil {
		g.Sort()
	}
	for _, idx := range g.Order {
		blk := g.Blocks[idx]
		stack, err := reconcile(blk, startingStack)
		if err != nil {
			return err
		}
		if err := executeBlock(blk, stack, g.Comprehension); err != nil {
			return err
		}
	}
	return nil
}

// reconcile computes a block's initial operand stack from the final
// stacks of its predecessors, per §4.6: every contributing stack must
// agree element-wise, or the executor fails with
// PredecessorStacksError.
func reconcile(blk Block, startingStack []qir.Expr) ([]qir.Expr, error) {
	preds := blk.Predecessors()
	if len(preds) == 0 {
		return append([]qir.Expr(nil), startingStack...), nil
	}
	candidates := make([][]qir.Expr, 0, len(preds))
	for _, p := range preds {
		candidates = append(candidates, contribution(p, p.Jumped() == blk))
	}
	first := candidates[0]
	for _, c := range candidates[1:] {
		if !stacksEqual(first, c) {
			return nil, &qir.PredecessorStacksError{BlockIndex: blk.Index(), Stacks: candidates}
		}
	}
	return append([]qir.Expr(nil), first...), nil
}

// contribution returns the stack a single predecessor edge contributes
// to its successor, applying the three pop-on-edge exceptions from
// §4.6.
func contribution(p Block, viaJump bool) []qir.Expr {
	full := finalStackOf(p)
	switch t := p.(type) {
	case *BranchBlock:
		if len(full) == 0 {
			return full
		}
		if popsBeforeBranch(t.Instruction.Opname) {
			return full[:len(full)-1]
		}
		if orPop(t.Instruction.Opname) && !viaJump {
			return full[:len(full)-1]
		}
	case *ForIterBlock:
		if !viaJump && len(full) > 0 {
			return full[:len(full)-1]
		}
	}
	return full
}

func stacksEqual(a, b []qir.Expr) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !qir.SameTree(a[i], b[i]) {
			return false
		}
	}
	return true
}

func finalStackOf(b Block) []qir.Expr {
	switch t := b.(type) {
	case *LinearBlock:
		return t.Stack
	case *JumpBlock:
		return t.Stack
	case *BranchBlock:
		return t.Stack
	case *ForIterBlock:
		return t.Stack
	case *WhileLoopBlock:
		return t.Stack
	case *ForLoopBlock:
		return t.Stack
	case *ComprehensionLoopBlock:
		return t.Stack
	case *PlaceholderBlock:
		return t.Stack
	default:
		return nil
	}
}

func executeBlock(blk Block, stack []qir.Expr, comprehension bool) error {
	switch t := blk.(type) {
	case *LinearBlock:
		return execLinear(t, stack, comprehension)

	case *JumpBlock:
		t.Stack = stack
		return nil

	case *BranchBlock:
		t.Stack = stack
		if len(stack) == 0 {
			return fmt.Errorf("decompile: block %d: %s with empty stack", t.Index(), t.Instruction.Opname)
		}
		t.Condition = stack[len(stack)-1]
		return nil

	case *ForIterBlock:
		cv := qir.NewIdentifier(fmt.Sprintf("cv_%d", t.Instruction.Offset))
		t.Current = cv
		t.Stack = append(append([]qir.Expr(nil), stack...), cv)
		return nil

	case *WhileLoopBlock:
		t.Stack = stack
		return Execute(t.Body, stack)

	case *ForLoopBlock:
		if len(stack) == 0 {
			return fmt.Errorf("decompile: block %d: for-loop with empty stack", t.Index())
		}
		t.Iterator = stack[len(stack)-1]
		t.Stack = stack[:len(stack)-1]
		inner := append(append([]qir.Expr(nil), t.Stack...), qir.NewIdentifier(string(t.Var)))
		return Execute(t.Body, inner)

	case *ComprehensionLoopBlock:
		if len(stack) == 0 {
			return fmt.Errorf("decompile: block %d: comprehension loop with empty stack", t.Index())
		}
		t.Iterator = stack[len(stack)-1]
		t.Stack = stack[:len(stack)-1]
		inner := append(append([]qir.Expr(nil), t.Stack...), qir.NewIdentifier(string(t.Var)))
		return Execute(t.Body, inner)

	case *PlaceholderBlock:
		t.Stack = stack
		return nil

	default:
		return fmt.Errorf("decompile: unhandled block type %T", blk)
	}
}

// execLinear runs the per-opcode rules of §4.6 over a LinearBlock's
// instructions, threading a local QIR-valued operand stack and
// accumulating bindings in encounter order.
func execLinear(lb *LinearBlock, entry []qir.Expr, comprehension bool) error {
	lb.EntryStack = entry
	stack := append([]qir.Expr(nil), entry...)

	pop := func() (qir.Expr, error) {
		if len(stack) == 0 {
			return nil, fmt.Errorf("decompile: block %d: stack underflow", lb.Index())
		}
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v, nil
	}
	push := func(e qir.Expr) { stack = append(stack, e) }
	peekAt := func(depth int) (int, error) {
		i := len(stack) - 1 - depth
		if i < 0 {
			return 0, fmt.Errorf("decompile: block %d: stack underflow", lb.Index())
		}
		return i, nil
	}

	for _, ins := range lb.Instructions {
		if lb.Returns != nil {
			break // later instructions in this block are discarded
		}
		var err error
		switch {
		case ins.Opname == "NOP", ins.Opname == "POP_BLOCK":

		case ins.Opname == "POP_TOP":
			_, err = pop()

		case ins.Opname == "ROT_TWO":
			var i int
			if i, err = peekAt(1); err == nil {
				stack[i], stack[i+1] = stack[i+1], stack[i]
			}

		case ins.Opname == "ROT_THREE":
			var i int
			if i, err = peekAt(2); err == nil {
				stack[i], stack[i+1], stack[i+2] = stack[i+2], stack[i], stack[i+1]
			}

		case ins.Opname == "DUP_TOP":
			var i int
			if i, err = peekAt(0); err == nil {
				push(stack[i])
			}

		case ins.Opname == "DUP_TOP_TWO":
			var i int
			if i, err = peekAt(1); err == nil {
				a, b := stack[i], stack[i+1]
				push(a)
				push(b)
			}

		case ins.Opname == "LOAD_CONST":
			var v qir.Expr
			if v, err = qir.Encode(ins.Argval); err == nil {
				push(v)
			}

		case loadOpcode(ins.Opname):
			name, ok := ins.Argval.(string)
			if !ok {
				err = fmt.Errorf("decompile: %s: argval not a name", ins.Opname)
			} else {
				push(qir.NewIdentifier(name))
			}

		case ins.Opname == "LOAD_CLOSURE":
			// closure cells are opaque; no effect on the QIR stack.

		case ins.Opname == "LOAD_ATTR":
			name, ok := ins.Argval.(string)
			if !ok {
				err = fmt.Errorf("decompile: LOAD_ATTR: argval not a name")
				break
			}
			var c qir.Expr
			if c, err = pop(); err == nil {
				push(qir.NewTupleDestr(c, qir.NewString(name)))
			}

		case ins.Opname == "STORE_NAME", ins.Opname == "STORE_FAST":
			name, ok := ins.Argval.(string)
			if !ok {
				err = fmt.Errorf("decompile: %s: argval not a name", ins.Opname)
				break
			}
			var v qir.Expr
			if v, err = pop(); err == nil {
				lb.Bindings = append(lb.Bindings, binding{Name: qir.Identifier(name), Value: v})
			}

		case ins.Opname == "DELETE_NAME", ins.Opname == "DELETE_FAST":
			name, ok := ins.Argval.(string)
			if !ok {
				err = fmt.Errorf("decompile: %s: argval not a name", ins.Opname)
				break
			}
			lb.Bindings = append(lb.Bindings, binding{Name: qir.Identifier(name), Value: qir.NewNull()})

		case ins.Opname == "COMPARE_OP":
			op, ok := ins.Argval.(string)
			if !ok {
				err = fmt.Errorf("decompile: COMPARE_OP: argval not a string")
				break
			}
			qop, ok := compareOps[op]
			if !ok {
				err = &qir.NotImplementedError{Opname: "COMPARE_OP " + op}
				break
			}
			var right, left qir.Expr
			if right, err = pop(); err != nil {
				break
			}
			if left, err = pop(); err != nil {
				break
			}
			push(qir.NewBinary(qop, left, right))

		case isBinaryOp(ins.Opname):
			qop := binaryOps[ins.Opname]
			var right, left qir.Expr
			if right, err = pop(); err != nil {
				break
			}
			if left, err = pop(); err != nil {
				break
			}
			push(qir.NewBinary(qop, left, right))

		case ins.Opname == "BINARY_SUBSCR":
			var key, container qir.Expr
			if key, err = pop(); err != nil {
				break
			}
			if container, err = pop(); err != nil {
				break
			}
			push(qir.NewTupleDestr(container, key))

		case ins.Opname == "STORE_SUBSCR":
			var key, container, value qir.Expr
			if key, err = pop(); err != nil {
				break
			}
			if container, err = pop(); err != nil {
				break
			}
			if value, err = pop(); err != nil {
				break
			}
			push(qir.NewTupleCons(key, value, container))

		case ins.Opname == "DELETE_SUBSCR":
			// The source pops value before container; the intended
			// relational meaning is "remove key from container", so
			// this implementation pops key, then container, and
			// pushes TupleCons(key, Null, container).
			var key, container qir.Expr
			if key, err = pop(); err != nil {
				break
			}
			if container, err = pop(); err != nil {
				break
			}
			push(qir.NewTupleCons(key, qir.NewNull(), container))

		case ins.Opname == "BUILD_TUPLE", ins.Opname == "BUILD_LIST", ins.Opname == "BUILD_SET":
			n := ins.Arg
			var elems []qir.Expr
			elems, err = popN(&stack, n)
			if err == nil {
				var tail qir.Expr = qir.NewListNil()
				for i := len(elems) - 1; i >= 0; i-- {
					tail = qir.NewListCons(elems[i], tail)
				}
				push(tail)
			}

		case ins.Opname == "BUILD_MAP":
			n := ins.Arg
			var elems []qir.Expr
			elems, err = popN(&stack, 2*n)
			if err == nil {
				var tail qir.Expr = qir.NewTupleNil()
				for i := len(elems) - 2; i >= 0; i -= 2 {
					tail = qir.NewTupleCons(elems[i], elems[i+1], tail)
				}
				push(tail)
			}

		case ins.Opname == "BUILD_STRING":
			n := ins.Arg
			var elems []qir.Expr
			elems, err = popN(&stack, n)
			if err == nil {
				var out string
				for _, e := range elems {
					s, ok := e.(qir.String)
					if !ok {
						err = fmt.Errorf("decompile: BUILD_STRING: operand is not a String")
						break
					}
					out += string(s)
				}
				if err == nil {
					push(qir.NewString(out))
				}
			}

		case ins.Opname == "CALL_FUNCTION":
			n := ins.Arg
			var args []qir.Expr
			args, err = popN(&stack, n)
			if err != nil {
				break
			}
			var fn qir.Expr
			if fn, err = pop(); err != nil {
				break
			}
			result := fn
			for _, a := range args {
				result = qir.NewApplication(result, a)
			}
			push(result)

		case ins.Opname == "LIST_APPEND", ins.Opname == "SET_ADD":
			var v qir.Expr
			if v, err = pop(); err != nil {
				break
			}
			var i int
			if i, err = peekAt(ins.Arg - 1); err == nil {
				lb.Appended = v
				// In comprehension mode the accumulator slot is never
				// read back (lowerComprehension reads Appended
				// directly), and every path through the loop body must
				// leave an identical stack behind for reconcile to
				// accept the loop-back edge; mutating it here would
				// make the append-taken and append-skipped paths
				// disagree at the very next iteration's join point.
				if !comprehension {
					stack[i] = qir.NewListCons(v, stack[i])
				}
			}

		case ins.Opname == "MAP_ADD":
			var v, k qir.Expr
			if k, err = pop(); err != nil {
				break
			}
			if v, err = pop(); err != nil {
				break
			}
			var i int
			if i, err = peekAt(ins.Arg - 1); err == nil {
				lb.Appended = v
				lb.AppendedKey = k
				if !comprehension {
					stack[i] = qir.NewTupleCons(k, v, stack[i])
				}
			}

		case ins.Opname == "RETURN_VALUE", ins.Opname == "YIELD_VALUE":
			var v qir.Expr
			if v, err = pop(); err == nil {
				lb.Returns = v
			}

		case ins.Opname == "MAKE_FUNCTION", ins.Opname == "MAKE_CLOSURE":
			if ins.Arg != 0 {
				err = &qir.NotYetImplementedError{Reason: ins.Opname + " with defaults/cells is not supported"}
			}

		case ins.Opname == "SETUP_LOOP", ins.Opname == "GET_ITER":
			// GET_ITER leaves the would-be iterable as the QIR-level
			// iterator expression; no further transformation needed.
			// SETUP_LOOP carries no QIR-visible stack effect here.

		default:
			err = &qir.NotImplementedError{Opname: ins.Opname}
		}
		if err != nil {
			return err
		}
	}

	lb.Stack = stack
	return nil
}

func isBinaryOp(opname string) bool {
	_, ok := binaryOps[opname]
	return ok
}

func popN(stack *[]qir.Expr, n int) ([]qir.Expr, error) {
	s := *stack
	if n < 0 || n > len(s) {
		return nil, fmt.Errorf("decompile: stack underflow popping %d values", n)
	}
	out := append([]qir.Expr(nil), s[len(s)-n:]...)
	*stack = s[:len(s)-n]
	return out, nil
}
