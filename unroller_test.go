package main

import "testing"

// TestUnrollerFiresOnBackwardJmp exercises emitJmpTarget's in-block
// JMP_DEST path directly at the decode/IR level: an unconditional JMP
// (0xEB) whose target lands on an instruction already decoded earlier in
// the same block must both emit a JMP_DEST rather than an exit stub, and
// offer the range to TryUnroll, which should replicate it. This is
// checked structurally (uop count grows past one copy of the loop body)
// rather than by running the program to completion, since an
// unconditional backward branch with no other exit never halts.
func TestUnrollerFiresOnBackwardJmp(t *testing.T) {
	// INC EAX (0x40, bridged - real payload uops); loop target. JMP rel8
	// back to it (0xEB, native).
	image := []byte{0x40, 0xEB, 0xFD} // disp -3: target = 3-3 = 0 (the INC)
	mem := NewFlatMemory()
	mem.LoadImage(0, image)

	arena, err := NewArena(defaultBlockPoolSize * arenaSizePerBlock)
	if err != nil {
		t.Fatalf("NewArena: %v", err)
	}
	defer arena.Close()

	pool := NewBlockPool(defaultBlockPoolSize, 1, arena)
	smc := NewSMC(pool)

	cb := pool.BlockInit(0, 0, StatusFlatDS|StatusFlatSS|StatusUse32|StatusStack32)
	irb := NewIRBlock(cb)
	ir := NewIRBuilder(irb)
	dec := NewDecoder(mem, ir, smc, cb)

	pc := uint32(0)
	for {
		nextPC, end := dec.DecodeOne(pc, -1, true)
		pc = nextPC
		if end {
			break
		}
	}

	if irb.instrN != 2 {
		t.Fatalf("expected 2 decoded instructions (INC, JMP), got %d", irb.instrN)
	}
	// A single compile of [INC bridge uops, JMP_DEST] sits at a handful of
	// uops (the INC's op-size/seg/arg/call uops plus one JMP_DEST). If
	// TryUnroll fired, that range is physically duplicated multiple times,
	// so the final cursor should be well beyond one copy.
	noUnrollUpperBound := 8
	if irb.cursor <= noUnrollUpperBound {
		t.Fatalf("expected the unroller to have duplicated the loop body, cursor=%d", irb.cursor)
	}
}
