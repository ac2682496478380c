package disasm

import "sort"

// BasicBlock represents a sequence of instructions with a single entry point.
type BasicBlock struct {
	ID      int
	Start   int    // index into FuncCFG.Lines (inclusive)
	End     int    // index into FuncCFG.Lines (exclusive)
	Succs   []Succ // successor edges
	IsEntry bool
	IsTerm  bool // ends with RET or a jump out of the function
}

// Succ describes a control-flow successor edge.
type Succ struct {
	BlockID int
	Cond    string // "" = unconditional, "T" = taken, "F" = fallthrough
}

// FuncCFG is a per-function control flow graph.
type FuncCFG struct {
	Name   string
	Blocks []BasicBlock
	Lines  []Line
}

// BuildCFG constructs a control flow graph from a function's lines.
// The algorithm:
//  1. Find block leaders: index 0, branch targets, instructions after terminators.
//  2. Partition instructions into blocks by leaders.
//  3. Compute successor edges from each block's last instruction.
func BuildCFG(name string, lines []Line) FuncCFG {
	if len(lines) == 0 {
		return FuncCFG{Name: name, Lines: lines}
	}

	last := lines[len(lines)-1]
	funcStart := lines[0].Offset
	funcEnd := last.Offset + uint32(last.Len)

	addrToIdx := make(map[uint32]int, len(lines))
	for i, l := range lines {
		addrToIdx[l.Offset] = i
	}
	inFunc := func(bi *BranchInfo) (int, bool) {
		if !bi.HasTarget || bi.Target < funcStart || bi.Target >= funcEnd {
			return 0, false
		}
		idx, ok := addrToIdx[bi.Target]
		return idx, ok
	}

	// Pass 1: Identify block leaders.
	leaders := map[int]bool{0: true}
	for i, l := range lines {
		bi := DecodeBranch(l)
		if bi == nil {
			continue
		}
		if i+1 < len(lines) {
			leaders[i+1] = true
		}
		if idx, ok := inFunc(bi); ok {
			leaders[idx] = true
		}
	}

	sorted := make([]int, 0, len(leaders))
	for idx := range leaders {
		sorted = append(sorted, idx)
	}
	sort.Ints(sorted)

	// Pass 2: Partition into blocks.
	blocks := make([]BasicBlock, len(sorted))
	leaderToBlock := make(map[int]int, len(sorted))
	for i, start := range sorted {
		end := len(lines)
		if i+1 < len(sorted) {
			end = sorted[i+1]
		}
		blocks[i] = BasicBlock{ID: i, Start: start, End: end, IsEntry: start == 0}
		leaderToBlock[start] = i
	}

	// Pass 3: Compute successors.
	for i := range blocks {
		blk := &blocks[i]
		bi := DecodeBranch(lines[blk.End-1])

		if bi == nil {
			if next, ok := leaderToBlock[blk.End]; ok {
				blk.Succs = append(blk.Succs, Succ{BlockID: next})
			}
			continue
		}
		if bi.IsRet {
			blk.IsTerm = true
			continue
		}

		target := -1
		if idx, ok := inFunc(bi); ok {
			target = leaderToBlock[idx]
		}

		if bi.Cond {
			if target >= 0 {
				blk.Succs = append(blk.Succs, Succ{BlockID: target, Cond: "T"})
			}
			if next, ok := leaderToBlock[blk.End]; ok {
				blk.Succs = append(blk.Succs, Succ{BlockID: next, Cond: "F"})
			}
			continue
		}
		if target >= 0 {
			blk.Succs = append(blk.Succs, Succ{BlockID: target})
		} else {
			// Jump outside the function or through a register.
			blk.IsTerm = true
		}
	}

	return FuncCFG{Name: name, Blocks: blocks, Lines: lines}
}
