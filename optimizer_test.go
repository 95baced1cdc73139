package main

import "testing"

// TestOptimizerMovRenameAliasesCell is spec §8 scenario 6: emit
// MOV_IMM(temp0, 0x1234); MOV(EAX, temp0) where temp0 has exactly one
// reader (the MOV itself). aliasDest should fold the MOV into a cell
// alias rather than a copy - backend.go's peephole case (b) - so the
// MOV's backing cell is literally the same cell as temp0's producer,
// not a fresh one loaded from it.
func TestOptimizerMovRenameAliasesCell(t *testing.T) {
	arena, err := NewArena(defaultBlockPoolSize * arenaSizePerBlock)
	if err != nil {
		t.Fatalf("NewArena: %v", err)
	}
	defer arena.Close()

	pool := NewBlockPool(defaultBlockPoolSize, 1, arena)
	cb := pool.BlockInit(0, 0, StatusFlatDS|StatusFlatSS|StatusUse32|StatusStack32)
	irb := NewIRBlock(cb)
	ir := NewIRBuilder(irb)

	immIdx := ir.EmitMovImm(VRegTemp0, 0x1234)
	movIdx := ir.EmitMov(VRegEAX, VRegTemp0)

	c := &compiler{
		block:         irb,
		rf:            irb.regs,
		cellOf:        make([]int, irb.Len()),
		jumpChainHead: make(map[int][]*jumpTarget),
	}
	for i := range c.cellOf {
		c.cellOf[i] = -1
	}
	c.trackDest(immIdx, irb.At(immIdx))
	c.trackDest(movIdx, irb.At(movIdx))

	if !c.aliasDest(movIdx, irb.At(movIdx).Src[0]) {
		t.Fatalf("expected aliasDest to succeed: temp0 has a single reader")
	}
	if c.cellOf[movIdx] != c.cellOf[immIdx] {
		t.Fatalf("expected the MOV's cell to alias the MOV_IMM's cell: got %d vs %d", c.cellOf[movIdx], c.cellOf[immIdx])
	}
}

// TestOptimizerMovRenameEndToEnd runs the same pair of uops through the
// real Optimize+Compile pipeline and checks observable behaviour: the
// MOV_IMM producer survives DCE (its value is still read, just via
// rename rather than copy), and EAX holds 0x1234 once the trailing
// barrier flushes it to CPU state.
func TestOptimizerMovRenameEndToEnd(t *testing.T) {
	arena, err := NewArena(defaultBlockPoolSize * arenaSizePerBlock)
	if err != nil {
		t.Fatalf("NewArena: %v", err)
	}
	defer arena.Close()

	pool := NewBlockPool(defaultBlockPoolSize, 1, arena)
	cb := pool.BlockInit(0, 0, StatusFlatDS|StatusFlatSS|StatusUse32|StatusStack32)
	irb := NewIRBlock(cb)
	ir := NewIRBuilder(irb)

	immIdx := ir.EmitMovImm(VRegTemp0, 0x1234)
	ir.EmitMov(VRegEAX, VRegTemp0)
	ir.EmitNopBarrier()

	Optimize(irb)

	if irb.At(immIdx).Invalid() {
		t.Fatalf("MOV_IMM producer must survive: temp0 still has a live reader")
	}

	fields := NewStateFieldTable()
	prog := Compile(irb, fields)

	cpu := &CPU_X86{}
	rt := &Runtime{cells: make([]regValue, prog.NumCells)}
	idx := 0
	for idx >= 0 && idx < len(prog.Steps) {
		next, _ := prog.Steps[idx](cpu, rt)
		if next == stepFallthrough {
			idx++
		} else {
			idx = next
		}
	}

	if cpu.EAX != 0x1234 {
		t.Fatalf("expected EAX to be flushed to 0x1234, got %#x", cpu.EAX)
	}
}

// TestOptimizerEliminatesDeadVolatileWrite covers DCE's pure case: a
// volatile register write with no reader at all (not even a rename
// candidate) must be eliminated outright.
func TestOptimizerEliminatesDeadVolatileWrite(t *testing.T) {
	arena, err := NewArena(defaultBlockPoolSize * arenaSizePerBlock)
	if err != nil {
		t.Fatalf("NewArena: %v", err)
	}
	defer arena.Close()

	pool := NewBlockPool(defaultBlockPoolSize, 1, arena)
	cb := pool.BlockInit(0, 0, StatusFlatDS|StatusFlatSS|StatusUse32|StatusStack32)
	irb := NewIRBlock(cb)
	ir := NewIRBuilder(irb)

	deadIdx := ir.EmitMovImm(VRegTemp1, 0xdead)
	ir.EmitNopBarrier()

	Optimize(irb)

	if !irb.At(deadIdx).Invalid() {
		t.Fatalf("expected the unread MOV_IMM into temp1 to be eliminated")
	}
}

// TestOptimizerNeverEliminatesPermanentWrite confirms a permanent
// register's write survives DCE even with zero in-block readers, since
// MarkAllPermanentRequired flags it REQUIRED at the barrier before DCE
// ever runs.
func TestOptimizerNeverEliminatesPermanentWrite(t *testing.T) {
	arena, err := NewArena(defaultBlockPoolSize * arenaSizePerBlock)
	if err != nil {
		t.Fatalf("NewArena: %v", err)
	}
	defer arena.Close()

	pool := NewBlockPool(defaultBlockPoolSize, 1, arena)
	cb := pool.BlockInit(0, 0, StatusFlatDS|StatusFlatSS|StatusUse32|StatusStack32)
	irb := NewIRBlock(cb)
	ir := NewIRBuilder(irb)

	eaxIdx := ir.EmitMovImm(VRegEAX, 7)
	ir.EmitNopBarrier()

	Optimize(irb)

	if irb.At(eaxIdx).Invalid() {
		t.Fatalf("a permanent register's write must never be eliminated by DCE")
	}
}
