// irblock.go - the IR block buffer and per-instruction decode table
//
// Grounded on original_source/src/codegen_new/codegen.c's codegen_block
// append model (a flat array plus write cursor, back-pointer to the
// owning codeblock).
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

const (
	IRBlockMaxUops  = 4096
	MaxInstructions = 50 // per block, spec §4.1
)

// InstrInfo is one per-instruction record, indexed by ins count, used by
// the unroller to find a backward-branch target within the same block.
type InstrInfo struct {
	PC         uint32
	SegOverride int
	Op32       uint32
	FPUTop     int
	IRStart    int // uop index where this instruction's emission began
}

// IRBlock is the fixed-capacity micro-op buffer for one code block
// (§3 "IR block buffer").
type IRBlock struct {
	uops   [IRBlockMaxUops]Uop
	cursor int

	owner *CodeBlock

	instrs    [MaxInstructions]InstrInfo
	instrN    int

	regs *RegFile

	endRequested bool // set by the decoder/emitters when a cap is hit
}

func NewIRBlock(owner *CodeBlock) *IRBlock {
	b := &IRBlock{owner: owner, regs: NewRegFile()}
	for i := range b.uops {
		b.uops[i].JumpDestUop = -1
		b.uops[i].JumpListNext = -1
	}
	return b
}

// Len returns the number of uops emitted so far.
func (b *IRBlock) Len() int { return b.cursor }

// At returns a pointer to uop i for in-place mutation (flags, jump dest).
func (b *IRBlock) At(i int) *Uop { return &b.uops[i] }

// append reserves the next uop slot and returns its index. Returns -1 and
// sets endRequested if the buffer is full.
func (b *IRBlock) append() int {
	if b.cursor >= IRBlockMaxUops {
		b.endRequested = true
		return -1
	}
	idx := b.cursor
	b.uops[idx] = Uop{JumpDestUop: -1, JumpListNext: -1}
	b.cursor++
	return idx
}

// BeginInstruction records a new entry in the per-instruction table,
// returning its index (capped at MaxInstructions - the decoder must stop
// once this is exceeded).
func (b *IRBlock) BeginInstruction(pc uint32, segOverride int, op32 uint32, fpuTop int) int {
	if b.instrN >= MaxInstructions {
		b.endRequested = true
		return -1
	}
	idx := b.instrN
	b.instrs[idx] = InstrInfo{PC: pc, SegOverride: segOverride, Op32: op32, FPUTop: fpuTop, IRStart: b.cursor}
	b.instrN++
	return idx
}

// FindInstructionAt returns the InstrInfo whose PC equals pc, for the
// unroller's backward-branch lookup, and whether it was found.
func (b *IRBlock) FindInstructionAt(pc uint32) (InstrInfo, bool) {
	for i := 0; i < b.instrN; i++ {
		if b.instrs[i].PC == pc {
			return b.instrs[i], true
		}
	}
	return InstrInfo{}, false
}

func (b *IRBlock) ShouldEnd() bool {
	return b.endRequested || b.regs.BlockShouldEnd() || b.instrN >= MaxInstructions
}

func (b *IRBlock) RequestEnd() { b.endRequested = true }
