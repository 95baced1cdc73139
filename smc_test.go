package main

import "testing"

// TestSMCBusInvalidatesOnGuestWrite is spec §8 scenarios 3/4 reduced to a
// single page: register a block's code-present range, then write through
// SMCBus to a byte inside that range, and confirm the block is evicted
// from the live set (it becomes lookup-dead and Program nil) without
// needing to call the dispatcher at all - SMCBus alone must be enough to
// get write-path SMC coverage, per the whole reason SMCBus exists.
func TestSMCBusInvalidatesOnGuestWrite(t *testing.T) {
	arena, err := NewArena(64 * blockHeaderSize)
	if err != nil {
		t.Fatalf("NewArena: %v", err)
	}
	defer arena.Close()

	pool := NewBlockPool(16, 1, arena)
	smc := NewSMC(pool)
	mem := NewFlatMemory()
	bus := NewSMCBus(mem, smc)

	cb := pool.BlockInit(0, 0, StatusFlatDS)
	smc.MarkCodePresent(cb, 0, 4) // block covers guest bytes [0,4)

	if cb.Program != nil {
		t.Fatalf("freshly-compiled block should start with a nil Program in this test")
	}
	cb.Program = &HostProgram{} // pretend a compile happened

	bus.Write(2, 0x90) // a write inside the block's code-present range

	if pool.LookupHash(0) != nil {
		t.Fatalf("expected the block's hash entry to be cleared after an in-range write")
	}
	if cb.Program != nil {
		t.Fatalf("expected the block's Program to be cleared after an in-range write")
	}
}

// TestSMCBusLeavesUnrelatedBlockAlone writes outside any registered
// code-present range and confirms nothing is invalidated, so SMCBus
// doesn't over-invalidate on every write.
func TestSMCBusLeavesUnrelatedBlockAlone(t *testing.T) {
	arena, err := NewArena(64 * blockHeaderSize)
	if err != nil {
		t.Fatalf("NewArena: %v", err)
	}
	defer arena.Close()

	pool := NewBlockPool(16, 1, arena)
	smc := NewSMC(pool)
	mem := NewFlatMemory()
	bus := NewSMCBus(mem, smc)

	cb := pool.BlockInit(0, 0, StatusFlatDS)
	smc.MarkCodePresent(cb, 0, 4)
	cb.Program = &HostProgram{}

	bus.Write(0x2000, 0x00) // far outside the block's page entirely

	if cb.Program == nil {
		t.Fatalf("write outside the code-present range should not invalidate the block")
	}
}
