package main

import "testing"

func TestArenaAllocateFreeCoalesce(t *testing.T) {
	a, err := NewArena(4 * blockHeaderSize)
	if err != nil {
		t.Fatalf("NewArena: %v", err)
	}
	defer a.Close()

	m1, ok := a.AllocateBlock()
	if !ok {
		t.Fatalf("first AllocateBlock should succeed")
	}
	m2, ok := a.AllocateBlock()
	if !ok {
		t.Fatalf("second AllocateBlock should succeed")
	}
	if m1.off == m2.off {
		t.Fatalf("two live allocations must not overlap")
	}

	a.Free(m1)
	a.Free(m2)
	if got := a.BytesInUse(); got != 0 {
		t.Fatalf("expected 0 bytes in use after freeing everything, got %d", got)
	}

	// Coalescing should let a single allocation the size of both freed
	// blocks combined succeed without bumping past capacity.
	if _, ok := a.Allocate(2 * blockHeaderSize); !ok {
		t.Fatalf("expected coalesced free span to satisfy a 2x allocation")
	}
}

func TestArenaExhaustionReportsFalse(t *testing.T) {
	a, err := NewArena(blockHeaderSize)
	if err != nil {
		t.Fatalf("NewArena: %v", err)
	}
	defer a.Close()

	if _, ok := a.AllocateBlock(); !ok {
		t.Fatalf("first allocation should fit exactly")
	}
	if _, ok := a.AllocateBlock(); ok {
		t.Fatalf("arena is exhausted, second allocation must fail")
	}
}

// TestBlockPoolChargesAndReleasesArena covers codecache.go's BlockInit /
// DeleteBlock wiring: every live block should hold a non-zero HeadMem
// footprint, and deleting it must return that footprint to the arena.
func TestBlockPoolChargesAndReleasesArena(t *testing.T) {
	const poolSize = 4
	a, err := NewArena(poolSize * blockHeaderSize)
	if err != nil {
		t.Fatalf("NewArena: %v", err)
	}
	defer a.Close()

	pool := NewBlockPool(poolSize, 1, a)
	cb := pool.BlockInit(0x1000, 0x1000, StatusFlatDS)
	if cb.HeadMem.size == 0 {
		t.Fatalf("expected BlockInit to charge a HeadMem footprint from the arena")
	}
	before := a.BytesInUse()
	if before == 0 {
		t.Fatalf("expected nonzero arena usage after BlockInit")
	}

	pool.DeleteBlock(cb.index)
	after := a.BytesInUse()
	if after != before-blockHeaderSize {
		t.Fatalf("expected DeleteBlock to release exactly one block's footprint: before=%d after=%d", before, after)
	}
}

// TestBlockPoolFreesArenaSlotOnExhaustion exercises freeOneArenaSlot: when
// the pool's own slot count exceeds what the arena can back, BlockInit
// must still succeed by evicting another live block's footprint rather
// than leaving the new block with a zero-value HeadMem.
func TestBlockPoolFreesArenaSlotOnExhaustion(t *testing.T) {
	const poolSize = 4
	a, err := NewArena(1 * blockHeaderSize) // room for exactly one block
	if err != nil {
		t.Fatalf("NewArena: %v", err)
	}
	defer a.Close()

	pool := NewBlockPool(poolSize, 1, a)
	first := pool.BlockInit(0x1000, 0x1000, StatusFlatDS)
	if first.HeadMem.size == 0 {
		t.Fatalf("first block should have been charged a footprint")
	}

	second := pool.BlockInit(0x2000, 0x2000, StatusFlatDS)
	if second.HeadMem.size == 0 {
		t.Fatalf("expected freeOneArenaSlot to make room for the second block")
	}
}
