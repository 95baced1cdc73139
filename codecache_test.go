package main

import "testing"

// TestBlockSlotBoundHolds is spec §8's "Block-slot bound": free + dirty
// + live must equal BLOCK_SIZE at every point in the pool's life, not
// just at rest. Exercised across BlockInit/DeleteBlock/invalidateBlock
// cycles, including eviction once the pool is saturated.
func TestBlockSlotBoundHolds(t *testing.T) {
	const size = 8
	pool := NewBlockPool(size, 1, nil)

	checkBound := func(step string) {
		t.Helper()
		if got := pool.freeLen + pool.dirtyLen + pool.LiveCount(); got != size {
			t.Fatalf("%s: free(%d)+dirty(%d)+live(%d) = %d, want %d", step, pool.freeLen, pool.dirtyLen, pool.LiveCount(), got, size)
		}
	}
	checkBound("fresh pool")

	var blocks []*CodeBlock
	for i := 0; i < size; i++ {
		phys := uint32(i * 0x1000)
		blocks = append(blocks, pool.BlockInit(phys, phys, StatusFlatDS))
		checkBound("after BlockInit")
	}

	// Pool is now saturated; one more BlockInit must evict rather than
	// grow the slice.
	pool.BlockInit(0xF000, 0xF000, StatusFlatDS)
	checkBound("after eviction-forced BlockInit")

	pool.DeleteBlock(blocks[1].index)
	checkBound("after DeleteBlock")

	pool.invalidateBlock(blocks[2].index)
	checkBound("after invalidateBlock")
}

// TestBlockInitEvictsWhenSaturated confirms a pool at full capacity
// reclaims a slot instead of silently aliasing two live blocks onto the
// same index.
func TestBlockInitEvictsWhenSaturated(t *testing.T) {
	const size = 4
	pool := NewBlockPool(size, 1, nil)

	seen := make(map[int]bool)
	for i := 0; i < size+2; i++ {
		phys := uint32(i * 0x1000)
		cb := pool.BlockInit(phys, phys, StatusFlatDS)
		seen[cb.index] = true
	}
	if pool.LiveCount() > size {
		t.Fatalf("live count %d exceeds pool capacity %d", pool.LiveCount(), size)
	}
}
