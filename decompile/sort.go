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

import "golang.org/x/exp/slices"

// Sort computes a depth-first post-order traversal from g.Blocks[0],
// reversed, and records it in g.Order. Any block not reached is
// detached: its successor/predecessor pointers to and from it are
// cleared, and its index is recorded in g.Detached.
//
// Because every back-edge lives inside a composite loop's own nested
// Graph, the outer graph reached by this traversal is always a DAG.
func (g *Graph) Sort() {
	if len(g.Blocks) == 0 {
		g.Order = nil
		g.Detached = map[int]bool{}
		return
	}

	visited := make(map[int]bool, len(g.Blocks))
	var post []int

	var visit func(Block)
	visit = func(b Block) {
		if b == nil || visited[b.Index()] {
			return
		}
		visited[b.Index()] = true
		if n := b.Normal(); n != nil {
			visit(n)
		}
		if j := b.Jumped(); j != nil {
			visit(j)
		}
		post = append(post, b.Index())
	}
	visit(g.Blocks[0])

	// post is a post-order traversal; reversed, it is a topological
	// order (every block after its predecessors), which is what Execute
	// walks. Lower walks the same order back to front, so a block's
	// successors are lowered before the block that reads them.
	slices.Reverse(post)
	g.Order = post

	g.Detached = map[int]bool{}
	for _, b := range g.Blocks {
		if !visited[b.Index()] {
			g.Detached[b.Index()] = true
		}
	}
	for _, b := range g.Blocks {
		if !g.Detached[b.Index()] {
			continue
		}
		b.setNormal(nil)
		b.setJumped(nil)
	}
	// A detached block's successors no longer count it as a
	// predecessor, and any still-live block drops a detached
	// predecessor from its own list.
	for _, b := range g.Blocks {
		clearDetachedPredecessors(b, g.Detached)
	}
}

type predSetter interface {
	setPredecessors([]Block)
}

// clearDetachedPredecessors drops any predecessor of b that is itself
// detached, so a block's predecessor list only ever reflects the live
// graph once Sort has run.
func clearDetachedPredecessors(b Block, detached map[int]bool) {
	setter, ok := b.(predSetter)
	if !ok {
		return
	}
	var live []Block
	for _, p := range b.Predecessors() {
		if !detached[p.Index()] {
			live = append(live, p)
		}
	}
	setter.setPredecessors(live)
}
