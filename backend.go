// backend.go - the abstract host-backend contract and the compile loop
// that drives it (§4.5 "Host backend (abstract contract)")
//
// The primitive table the spec lists (direct_read_*/direct_write_*,
// set_jump_dest, uop_handlers) is language-neutral; this module realises
// it as a chain of Go closures rather than emitted machine code - each
// surviving uop becomes one HostStep, and a compiled block is just a
// slice of them walked by an index (backend_run.go's Run). "Host
// registers" are modelled as value cells, one per surviving producer
// uop, with peephole case (b)'s MOV rename implemented as cell aliasing
// instead of copying - the same effect a real register-rename peephole
// has, expressed the way a value-oriented host language expresses it.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

// regValue is the value held by one cell: a host "register" in this
// backend's sense. Only one of the two fields is meaningful, per the
// producing vreg id's domain.
type regValue struct {
	I uint64
	F float64
}

// HostStep is one compiled step. next is the index of the step to run
// afterward, or stepFallthrough to continue in sequence; end is non-zero
// when the block must return control to the dispatcher.
type HostStep func(cpu *CPU_X86, rt *Runtime) (next int, end BlockEndReason)

const stepFallthrough = -1

// HostProgram is a compiled block's host code: an ordered slice of
// steps plus the cell count a Runtime must allocate to execute it.
type HostProgram struct {
	Steps    []HostStep
	NumCells int
}

// Runtime is the per-execution state a HostProgram needs beyond the
// shared CPU_X86: the value cells backing in-block register versions,
// and the scratch spill slots spec §4.5's prologue reserves (temp0..3,
// temp0d/1d - here just cells like any other vreg, since there is no
// literal stack frame in a closure-chain backend).
type Runtime struct {
	cells []regValue
	entry [VRegNumIDs]regValue // block-entry ("version 0") values, loaded from cpu state once
	args  [4]uint32            // LOAD_FUNC_ARG staging area consumed by the next CALL_FUNC*
}

// jumpTarget is the mutable patch point a jump step closes over; it
// starts at -1 ("unresolved") and is filled in by Compile once the
// target uop's step index is known, implementing set_jump_dest.
type jumpTarget struct{ step int }

// compiler carries the bookkeeping Compile needs while walking a
// block's uops in order once.
type compiler struct {
	block *IRBlock
	rf    *RegFile

	cellOf     []int // producer uop index -> backing cell index (after rename aliasing)
	currentVer [VRegNumIDs]int
	nextCell   int

	steps []HostStep

	jumpChainHead map[int][]*jumpTarget // target uop index -> patch points awaiting it
	endOfBlock    []*jumpTarget
}

// Compile implements spec §4.5's compile loop over an already-optimised
// (and possibly unrolled) IRBlock, producing a HostProgram.
func Compile(block *IRBlock, fields *stateFieldTable) *HostProgram {
	c := &compiler{
		block:         block,
		rf:            block.regs,
		cellOf:        make([]int, block.Len()),
		jumpChainHead: make(map[int][]*jumpTarget),
	}
	for i := range c.cellOf {
		c.cellOf[i] = -1
	}

	for i := 0; i < block.Len(); i++ {
		u := block.At(i)

		if u.Kind.Flags().Has(UopBarrier) {
			c.emitFlush(fields, true)
		} else if u.Kind.Flags().Has(UopOrderBarrier) {
			c.emitFlush(fields, false)
		}

		if patches, ok := c.jumpChainHead[i]; ok {
			target := len(c.steps)
			for _, jt := range patches {
				jt.step = target
			}
			delete(c.jumpChainHead, i)
		}

		if u.Invalid() {
			continue
		}

		c.trackDest(i, u)

		stepIdx := len(c.steps)
		step, jt := c.compileUop(i, u, fields)
		c.steps = append(c.steps, step)

		if u.IsJump() && jt != nil {
			if u.JumpDestIsEnd {
				c.endOfBlock = append(c.endOfBlock, jt)
			} else if u.JumpDestUop >= 0 {
				c.jumpChainHead[u.JumpDestUop] = append(c.jumpChainHead[u.JumpDestUop], jt)
			}
		}
		_ = stepIdx
	}

	c.emitFlush(fields, true)
	epilogueTarget := len(c.steps)
	for _, jt := range c.endOfBlock {
		jt.step = epilogueTarget
	}
	c.steps = append(c.steps, func(cpu *CPU_X86, rt *Runtime) (int, BlockEndReason) {
		return stepFallthrough, BlockEndNormal
	})

	return &HostProgram{Steps: c.steps, NumCells: c.nextCell}
}

// trackDest records which version of id is current as of this point in
// the compile walk (needed by emitFlush, which must flush whatever is
// "current" at the moment the barrier is reached, not at block end) and
// allocates the cell that will hold the value this uop produces.
func (c *compiler) trackDest(uopIdx int, u *Uop) {
	if !u.Dest.IsValid() {
		return
	}
	c.currentVer[u.Dest.ID] = u.Dest.Version
	c.cellOf[uopIdx] = c.allocCell()
}

func (c *compiler) allocCell() int {
	idx := c.nextCell
	c.nextCell++
	return idx
}

// cellRef resolves r to the cell backing its value: the entry cell for
// a block-entry version, or the (possibly rename-aliased) producer cell
// otherwise.
func (c *compiler) cellRef(r IRReg) func(rt *Runtime) *regValue {
	if !r.IsValid() {
		return nil
	}
	producer := c.rf.Producer(r.ID, r.Version)
	if producer < 0 {
		id := r.ID
		return func(rt *Runtime) *regValue { return &rt.entry[id] }
	}
	idx := c.cellOf[producer]
	return func(rt *Runtime) *regValue { return &rt.cells[idx] }
}

// aliasDest makes uopIdx's destination cell the same backing cell as an
// existing source reference instead of allocating a fresh one,
// implementing peephole case (b) (a MOV whose source has at most one
// remaining reader is a rename, not a copy).
func (c *compiler) aliasDest(uopIdx int, src IRReg) bool {
	producer := c.rf.Producer(src.ID, src.Version)
	if producer < 0 || c.rf.Refcount(src.ID, src.Version) > 1 {
		return false
	}
	c.cellOf[uopIdx] = c.cellOf[producer]
	return true
}
