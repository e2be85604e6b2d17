package bytecode

import (
	"sort"
	"strconv"
)

// Flow classifies how an instruction passes control on.
type Flow uint8

const (
	FlowNext       Flow = iota // falls through
	FlowBranch                 // conditional: target or fall through
	FlowJump                   // goto, goto_w
	FlowSubroutine             // jsr, jsr_w: target, later resumes after
	FlowSwitch                 // tableswitch, lookupswitch
	FlowReturn                 // *return, ret
	FlowThrow                  // athrow
)

// Flow reports the control transfer of o.
func (o Opcode) Flow() Flow {
	switch {
	case o >= 0x99 && o <= 0xa6, o == 0xc6, o == 0xc7: // if*, ifnull, ifnonnull
		return FlowBranch
	case o == Goto, o == 0xc8:
		return FlowJump
	case o == 0xa8, o == 0xc9:
		return FlowSubroutine
	case o == TableSwitch, o == LookupSwitch:
		return FlowSwitch
	case o >= 0xac && o <= Return, o == 0xa9:
		return FlowReturn
	case o == 0xbf:
		return FlowThrow
	}
	return FlowNext
}

// Block is a run of instructions with a single entry.
type Block struct {
	ID      int
	Start   int // index into CFG.Insts, inclusive
	End     int // exclusive
	Succs   []Succ
	Entry   bool
	Handler bool // starts an exception handler
	Term    bool // ends in a return or throw
}

// Succ is a control-flow edge. Cond is "" for unconditional edges, "T" or
// "F" for the two sides of a conditional branch, and the case key or
// "default" for switch edges.
type Succ struct {
	BlockID int
	Cond    string
}

// CFG is the control flow graph of one method.
type CFG struct {
	Blocks []Block
	Insts  []Inst
}

// BuildCFG partitions a method's instructions into basic blocks:
//  1. Leaders are the first instruction, branch and switch targets, exception
//     handler entries and every instruction after a control transfer.
//  2. Instructions are split at leaders.
//  3. Successors come from each block's last instruction.
func BuildCFG(insts []Inst, handlers ...int) *CFG {
	g := &CFG{Insts: insts}
	if len(insts) == 0 {
		return g
	}

	byOffset := make(map[int]int, len(insts))
	for i, in := range insts {
		byOffset[in.Offset] = i
	}

	leaders := map[int]bool{0: true}
	isHandler := map[int]bool{}
	mark := func(off int) {
		if i, ok := byOffset[off]; ok {
			leaders[i] = true
		}
	}
	for _, h := range handlers {
		if i, ok := byOffset[h]; ok {
			leaders[i] = true
			isHandler[i] = true
		}
	}
	for i, in := range insts {
		flow := in.Opcode.Flow()
		if flow == FlowNext {
			continue
		}
		if i+1 < len(insts) {
			leaders[i+1] = true
		}
		for _, t := range targets(in) {
			mark(t.off)
		}
	}

	starts := make([]int, 0, len(leaders))
	for i := range leaders {
		starts = append(starts, i)
	}
	sort.Ints(starts)

	g.Blocks = make([]Block, len(starts))
	blockAt := make(map[int]int, len(starts))
	for b, start := range starts {
		end := len(insts)
		if b+1 < len(starts) {
			end = starts[b+1]
		}
		g.Blocks[b] = Block{ID: b, Start: start, End: end, Entry: start == 0, Handler: isHandler[start]}
		blockAt[start] = b
	}
	blockOf := func(off int) (int, bool) {
		i, ok := byOffset[off]
		if !ok {
			return 0, false
		}
		b, ok := blockAt[i]
		return b, ok
	}

	for b := range g.Blocks {
		blk := &g.Blocks[b]
		last := insts[blk.End-1]
		next, hasNext := blockAt[blk.End]

		switch last.Opcode.Flow() {
		case FlowNext:
			if hasNext {
				blk.Succs = append(blk.Succs, Succ{BlockID: next})
			}
		case FlowReturn, FlowThrow:
			blk.Term = true
		case FlowBranch:
			for _, t := range targets(last) {
				if id, ok := blockOf(t.off); ok {
					blk.Succs = append(blk.Succs, Succ{BlockID: id, Cond: "T"})
				}
			}
			if hasNext {
				blk.Succs = append(blk.Succs, Succ{BlockID: next, Cond: "F"})
			}
		case FlowJump, FlowSwitch:
			for _, t := range targets(last) {
				if id, ok := blockOf(t.off); ok {
					blk.Succs = append(blk.Succs, Succ{BlockID: id, Cond: t.cond})
				}
			}
		case FlowSubroutine:
			for _, t := range targets(last) {
				if id, ok := blockOf(t.off); ok {
					blk.Succs = append(blk.Succs, Succ{BlockID: id})
				}
			}
			if hasNext {
				blk.Succs = append(blk.Succs, Succ{BlockID: next})
			}
		}
	}
	return g
}

type target struct {
	off  int
	cond string
}

func targets(in Inst) []target {
	if t, ok := in.BranchTarget(); ok {
		return []target{{off: t}}
	}
	sw, ok := in.Switch()
	if !ok {
		return nil
	}
	out := make([]target, 0, len(sw.Targets)+1)
	for i, t := range sw.Targets {
		out = append(out, target{off: t, cond: strconv.Itoa(int(sw.Keys[i]))})
	}
	return append(out, target{off: sw.Default, cond: "default"})
}
