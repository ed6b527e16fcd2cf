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

// Build partitions instrs into a CFG, in a single linear pass, per the
// rules below (evaluated in order for every instruction not swallowed
// by a loop body already being collected):
//
//  1. offset < ignoreUntil: append to the composite block currently
//     being collected, verbatim.
//  2. FOR_ITER: open a ForLoopBlock (or ComprehensionLoopBlock in
//     comprehension mode); ignoreUntil := argval; force a new block.
//  3. SETUP_LOOP whose following instruction is a jump target but not
//     FOR_ITER: open a WhileLoopBlock; ignoreUntil := argval; force a
//     new block.
//  4. Unconditional jump: open a JumpBlock; force a new block.
//  5. Conditional branch: open a BranchBlock; force a new block.
//  6. Otherwise: open a new LinearBlock if this instruction is a jump
//     target or a new block was forced; append to it.
//
// comprehension selects whether FOR_ITER opens a ForLoopBlock or a
// ComprehensionLoopBlock; Decompile sets it from the code object's
// declared name.
func Build(instrs []Instruction, comprehension bool) (*Graph, error) {
	b := &builder{
		instrs:       instrs,
		comprehension: comprehension,
		mapping:      map[int]Block{},
		afterOffset:  map[Block]int{},
	}
	return b.run()
}

type builder struct {
	instrs        []Instruction
	comprehension bool

	blocks []Block
	mapping map[int]Block

	ignoreUntil int
	forceNew    bool
	cur         *LinearBlock
	collecting  []Instruction
	collectKind string // "while" | "for" | "comp"
	collectAt   Instruction

	afterOffset map[Block]int // composite block -> offset of its Normal successor
}

func (b *builder) run() (*Graph, error) {
	offsetIndex := make(map[int]int, len(b.instrs))
	for i, ins := range b.instrs {
		offsetIndex[ins.Offset] = i
	}

	for i := 0; i < len(b.instrs); i++ {
		ins := b.instrs[i]

		if ins.Opname == "AFTER_LOOP" {
			// Synthetic marker closeComposite appends at the end of a
			// collected loop body so rewireComposite can look up the
			// forward-exit block via BlockMapping; it is not a real
			// opcode and carries no stack effect of its own.
			blk := &LinearBlock{}
			b.blocks = append(b.blocks, blk)
			b.mapping[ins.Offset] = blk
			b.forceNew = true
			continue
		}

		if !knownOpcodes[ins.Opname] {
			return nil, &qir.NotImplementedError{Opname: ins.Opname}
		}

		if ins.Offset < b.ignoreUntil {
			b.collecting = append(b.collecting, ins)
			continue
		}
		if b.collecting != nil {
			if err := b.closeComposite(); err != nil {
				return nil, err
			}
		}

		switch {
		case ins.Opname == "FOR_ITER":
			target, err := offsetArg(ins)
			if err != nil {
				return nil, err
			}
			kind := "for"
			if b.comprehension {
				kind = "comp"
			}
			b.openComposite(ins, target, kind)

		case ins.Opname == "SETUP_LOOP" && i+1 < len(b.instrs) &&
			b.instrs[i+1].IsJumpTarget && b.instrs[i+1].Opname != "FOR_ITER":
			target, err := offsetArg(ins)
			if err != nil {
				return nil, err
			}
			b.openComposite(ins, target, "while")

		case unconditionalJumps[ins.Opname]:
			blk := &JumpBlock{Instruction: ins}
			b.blocks = append(b.blocks, blk)
			b.mapping[ins.Offset] = blk
			b.forceNew = true

		case conditionalBranches[ins.Opname]:
			blk := &BranchBlock{Instruction: ins}
			b.blocks = append(b.blocks, blk)
			b.mapping[ins.Offset] = blk
			b.forceNew = true

		default:
			if ins.IsJumpTarget || b.forceNew || b.cur == nil {
				b.cur = &LinearBlock{}
				b.blocks = append(b.blocks, b.cur)
				b.forceNew = false
			}
			b.cur.Instructions = append(b.cur.Instructions, ins)
			b.mapping[ins.Offset] = b.cur
		}
	}
	if b.collecting != nil {
		if err := b.closeComposite(); err != nil {
			return nil, err
		}
	}

	for i, blk := range b.blocks {
		blk.setIndex(i)
	}

	if err := b.wire(offsetIndex); err != nil {
		return nil, err
	}
	b.linkPredecessors()

	return &Graph{Blocks: b.blocks, BlockMapping: b.mapping, Comprehension: b.comprehension}, nil
}

func offsetArg(ins Instruction) (int, error) {
	switch v := ins.Argval.(type) {
	case int:
		return v, nil
	default:
		return 0, fmt.Errorf("decompile: %s: argval %v is not an absolute offset", ins.Opname, ins.Argval)
	}
}

func (b *builder) openComposite(opening Instruction, target int, kind string) {
	b.ignoreUntil = target
	b.collectKind = kind
	b.collectAt = opening
	b.collecting = []Instruction{}
	b.forceNew = true
	b.cur = nil
}

// closeComposite builds the nested CFG for a collected loop body,
// rewires its back-edges/forward-exit-edges into placeholders, and
// appends the finished composite block.
func (b *builder) closeComposite() error {
	body := b.collecting
	afterOffset := b.ignoreUntil
	b.collecting = nil
	b.ignoreUntil = 0

	rewritten := make([]Instruction, len(body))
	copy(rewritten, body)
	for i := range rewritten {
		if rewritten[i].Opname == "BREAK_LOOP" {
			rewritten[i] = Instruction{
				Opname:       "JUMP_ABSOLUTE",
				Arg:          afterOffset,
				Argval:       afterOffset,
				Offset:       rewritten[i].Offset,
				IsJumpTarget: rewritten[i].IsJumpTarget,
				StartsLine:   rewritten[i].StartsLine,
			}
		}
	}
	// A jump/FOR_ITER back-edge that targets the opening FOR_ITER or
	// SETUP_LOOP instruction itself (the usual "continue" encoding)
	// has no block of its own once that opening instruction is
	// dropped from the collected body; retarget it at the body's own
	// first instruction so it resolves to the same (future) entry
	// block that rewireComposite treats as the loop's re-entry point.
	if len(rewritten) > 0 {
		firstOffset := rewritten[0].Offset
		for i := range rewritten {
			if off, ok := rewritten[i].Argval.(int); ok && off == b.collectAt.Offset {
				rewritten[i].Argval = firstOffset
				rewritten[i].Arg = firstOffset
			}
		}
	}
	rewritten = append(rewritten, Instruction{
		Opname: "AFTER_LOOP", Offset: afterOffset, IsJumpTarget: true,
	})

	inner, err := Build(rewritten, b.collectKind == "comp")
	if err != nil {
		return err
	}
	afterBlock := inner.BlockMapping[afterOffset]
	entryBlock := Block(nil)
	if len(inner.Blocks) > 0 {
		entryBlock = inner.Blocks[0]
	}
	rewireComposite(inner, entryBlock, afterBlock)

	var blk Block
	switch b.collectKind {
	case "while":
		blk = &WhileLoopBlock{Body: inner}
	case "for":
		blk = &ForLoopBlock{Body: inner, Var: qir.Identifier(fmt.Sprintf("cv_%d", b.collectAt.Offset))}
	case "comp":
		blk = &ComprehensionLoopBlock{Body: inner, Var: qir.Identifier(fmt.Sprintf("cv_%d", b.collectAt.Offset))}
	}
	b.blocks = append(b.blocks, blk)
	b.mapping[b.collectAt.Offset] = blk
	b.afterOffset[blk] = afterOffset
	b.cur = nil
	return nil
}

// rewireComposite replaces every edge into entry (a back-edge, i.e.
// "go around the loop again") with a fresh placeholder bound to
// Application(on_loop, Null), and every edge into after (a forward
// exit out of the loop) with a placeholder bound to
// Application(on_after, Null).
func rewireComposite(g *Graph, entry, after Block) {
	onLoop := NewPlaceholderBlock(qir.NewApplication(qir.NewIdentifier("on_loop"), qir.NewNull()))
	onAfter := NewPlaceholderBlock(qir.NewApplication(qir.NewIdentifier("on_after"), qir.NewNull()))
	used := false
	for _, blk := range g.Blocks {
		if blk.Normal() == entry {
			blk.setNormal(onLoop)
			onLoop.addPredecessor(blk)
			used = true
		}
		if blk.Jumped() == entry {
			blk.setJumped(onLoop)
			onLoop.addPredecessor(blk)
			used = true
		}
		if after != nil && blk.Normal() == after {
			blk.setNormal(onAfter)
			onAfter.addPredecessor(blk)
			used = true
		}
		if after != nil && blk.Jumped() == after {
			blk.setJumped(onAfter)
			onAfter.addPredecessor(blk)
			used = true
		}
	}
	if used {
		onLoop.setIndex(len(g.Blocks))
		onAfter.setIndex(len(g.Blocks) + 1)
		g.Blocks = append(g.Blocks, onLoop, onAfter)
	}
	// Every former predecessor of entry now targets onLoop instead;
	// entry itself is only ever reached via the composite block's own
	// starting stack, so reconcile must treat it as predecessor-less.
	if entry != nil {
		if setter, ok := entry.(predSetter); ok {
			setter.setPredecessors(nil)
		}
	}
}

// wire translates every block's jump-target/fallthrough offsets into
// successor Block references via b.mapping.
func (b *builder) wire(offsetIndex map[int]int) error {
	fallthroughOf := func(lastOffset int) Block {
		idx, ok := offsetIndex[lastOffset]
		if !ok || idx+1 >= len(b.instrs) {
			return nil
		}
		return b.mapping[b.instrs[idx+1].Offset]
	}

	for _, blk := range b.blocks {
		switch t := blk.(type) {
		case *LinearBlock:
			if len(t.Instructions) == 0 {
				continue
			}
			if hasReturn(t.Instructions) {
				continue
			}
			last := t.Instructions[len(t.Instructions)-1]
			t.setNormal(fallthroughOf(last.Offset))

		case *JumpBlock:
			target, err := offsetArg(t.Instruction)
			if err != nil {
				return err
			}
			t.setNormal(b.mapping[target])

		case *BranchBlock:
			target, err := offsetArg(t.Instruction)
			if err != nil {
				return err
			}
			t.setNormal(fallthroughOf(t.Instruction.Offset))
			t.setJumped(b.mapping[target])

		case *ForIterBlock:
			target, err := offsetArg(t.Instruction)
			if err != nil {
				return err
			}
			t.setNormal(fallthroughOf(t.Instruction.Offset))
			t.setJumped(b.mapping[target])

		case *WhileLoopBlock:
			t.setNormal(b.mapping[b.afterOffset[t]])
		case *ForLoopBlock:
			t.setNormal(b.mapping[b.afterOffset[t]])
		case *ComprehensionLoopBlock:
			t.setNormal(b.mapping[b.afterOffset[t]])
		}
	}
	return nil
}

func hasReturn(instrs []Instruction) bool {
	for _, ins := range instrs {
		if ins.Opname == "RETURN_VALUE" || ins.Opname == "YIELD_VALUE" {
			return true
		}
	}
	return false
}

// linkPredecessors populates every block's Predecessors by walking the
// forward edges just wired.
func (b *builder) linkPredecessors() {
	for _, blk := range b.blocks {
		if n := blk.Normal(); n != nil {
			n.addPredecessor(blk)
		}
		if j := blk.Jumped(); j != nil {
			j.addPredecessor(blk)
		}
	}
}
