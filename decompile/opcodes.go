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

import "github.com/liautaud/qir/qir"

// unconditionalJumps are opcodes that open a JumpBlock (rule 4).
var unconditionalJumps = map[string]bool{
	"JUMP_FORWARD":  true,
	"JUMP_ABSOLUTE": true,
	"CONTINUE_LOOP": true,
	"BREAK_LOOP":    true,
}

// conditionalBranches are opcodes that open a BranchBlock (rule 5).
var conditionalBranches = map[string]bool{
	"POP_JUMP_IF_TRUE":     true,
	"POP_JUMP_IF_FALSE":    true,
	"JUMP_IF_TRUE_OR_POP":  true,
	"JUMP_IF_FALSE_OR_POP": true,
}

// popsBeforeBranch reports whether opname pops the condition off the
// stack unconditionally before branching, per the stack-reconciliation
// rule in §4.6 (POP_JUMP_IF_* always pops; JUMP_IF_*_OR_POP only pops
// along its Normal edge).
func popsBeforeBranch(opname string) bool {
	return opname == "POP_JUMP_IF_TRUE" || opname == "POP_JUMP_IF_FALSE"
}

// orPop reports whether opname is one of the JUMP_IF_*_OR_POP forms,
// whose Normal edge pops and whose Jump edge keeps the full stack.
func orPop(opname string) bool {
	return opname == "JUMP_IF_TRUE_OR_POP" || opname == "JUMP_IF_FALSE_OR_POP"
}

// truthyIsNext reports whether the block's Normal successor ("next")
// is the branch taken when the condition is true. *_IF_FALSE* opcodes
// branch (jump) on false, so their Normal edge is the truthy one.
func truthyIsNext(opname string) bool {
	switch opname {
	case "POP_JUMP_IF_FALSE", "JUMP_IF_FALSE_OR_POP":
		return true
	case "POP_JUMP_IF_TRUE", "JUMP_IF_TRUE_OR_POP":
		return false
	default:
		return false
	}
}

// binaryOps maps BINARY_*/INPLACE_* opcodes onto the corresponding QIR
// binary operator.
var binaryOps = map[string]qir.BinaryOp{
	"BINARY_ADD":           qir.OpPlus,
	"INPLACE_ADD":          qir.OpPlus,
	"BINARY_SUBTRACT":      qir.OpMinus,
	"INPLACE_SUBTRACT":     qir.OpMinus,
	"BINARY_MULTIPLY":      qir.OpStar,
	"INPLACE_MULTIPLY":     qir.OpStar,
	"BINARY_TRUE_DIVIDE":   qir.OpDiv,
	"INPLACE_TRUE_DIVIDE":  qir.OpDiv,
	"BINARY_MODULO":        qir.OpMod,
	"INPLACE_MODULO":       qir.OpMod,
	"BINARY_POWER":         qir.OpPower,
	"INPLACE_POWER":        qir.OpPower,
	"BINARY_AND":           qir.OpAnd,
	"INPLACE_AND":          qir.OpAnd,
	"BINARY_OR":            qir.OpOr,
	"INPLACE_OR":           qir.OpOr,
}

// compareOps maps the COMPARE_OP payload string onto the corresponding
// QIR comparison operator.
var compareOps = map[string]qir.BinaryOp{
	"==": qir.OpEqual,
	"<=": qir.OpLowerOrEqual,
	"<":  qir.OpLowerThan,
	">=": qir.OpGreaterOrEqual,
	">":  qir.OpGreaterThan,
}

// knownOpcodes is the closed opcode set this decompiler understands.
// Any instruction whose opname is missing from this set fails fast
// with NotImplementedError; silent acceptance of an unrecognised
// opcode is forbidden.
var knownOpcodes = buildKnownOpcodes()

func buildKnownOpcodes() map[string]bool {
	m := map[string]bool{
		"NOP": true, "POP_TOP": true, "ROT_TWO": true, "ROT_THREE": true,
		"DUP_TOP": true, "DUP_TOP_TWO": true,
		"COMPARE_OP":     true,
		"BINARY_SUBSCR":  true,
		"STORE_SUBSCR":   true,
		"DELETE_SUBSCR":  true,
		"RETURN_VALUE":   true,
		"YIELD_VALUE":    true,
		"LIST_APPEND":    true,
		"SET_ADD":        true,
		"MAP_ADD":        true,
		"POP_BLOCK":      true,
		"LOAD_CONST":     true,
		"LOAD_NAME":      true,
		"LOAD_GLOBAL":    true,
		"LOAD_FAST":      true,
		"LOAD_DEREF":     true,
		"LOAD_CLOSURE":   true,
		"LOAD_ATTR":      true,
		"STORE_NAME":     true,
		"STORE_FAST":     true,
		"DELETE_NAME":    true,
		"DELETE_FAST":    true,
		"CALL_FUNCTION":  true,
		"BUILD_TUPLE":    true,
		"BUILD_LIST":     true,
		"BUILD_SET":      true,
		"BUILD_MAP":      true,
		"BUILD_STRING":   true,
		"MAKE_FUNCTION":  true,
		"MAKE_CLOSURE":   true,
		"SETUP_LOOP":     true,
		"GET_ITER":       true,
		"FOR_ITER":       true,
		"JUMP_FORWARD":   true,
		"JUMP_ABSOLUTE":  true,
		"CONTINUE_LOOP":  true,
		"BREAK_LOOP":     true,
		"POP_JUMP_IF_TRUE":     true,
		"POP_JUMP_IF_FALSE":    true,
		"JUMP_IF_TRUE_OR_POP":  true,
		"JUMP_IF_FALSE_OR_POP": true,
	}
	for op := range binaryOps {
		m[op] = true
	}
	return m
}

// loadOpcode reports whether opname is a name-loading LinearBlock
// instruction that pushes an Identifier (every LOAD_* form except
// LOAD_CLOSURE, which has no effect on the QIR stack, and LOAD_CONST,
// which pushes an encoded literal instead).
func loadOpcode(opname string) bool {
	switch opname {
	case "LOAD_NAME", "LOAD_GLOBAL", "LOAD_FAST", "LOAD_DEREF":
		return true
	default:
		return false
	}
}
