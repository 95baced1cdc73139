package main

import "testing"

// TestMarkCodePresentSplitsStraddlingInstruction is spec §8 scenario 3:
// a 5-byte instruction at physical address 4092 runs bytes
// [4092,4097), the last one landing on the next 4 KiB page. MarkCodePresent
// must split the range across pageBase(4092)=0 and pageBase(4096)=4096,
// setting PageMask bit 63 (the last 64-byte slot of the first page) and
// PageMask2 bit 0 (the first slot of the second page), and must link the
// block into both pages' block lists.
func TestMarkCodePresentSplitsStraddlingInstruction(t *testing.T) {
	arena, err := NewArena(64 * blockHeaderSize)
	if err != nil {
		t.Fatalf("NewArena: %v", err)
	}
	defer arena.Close()

	pool := NewBlockPool(16, 1, arena)
	smc := NewSMC(pool)

	const addr = 4092
	const length = 5
	cb := pool.BlockInit(addr, addr, StatusFlatDS)
	smc.MarkCodePresent(cb, addr, length)

	if cb.PageMask&(1<<63) == 0 {
		t.Fatalf("expected PageMask bit 63 set, got %#x", cb.PageMask)
	}
	if cb.PageMask2&1 == 0 {
		t.Fatalf("expected PageMask2 bit 0 set, got %#x", cb.PageMask2)
	}
	if cb.Flags&FlagHasSecondPage == 0 {
		t.Fatalf("expected FlagHasSecondPage to be set on a straddling block")
	}
	if cb.Phys2 != 4096 {
		t.Fatalf("expected Phys2 to be the second page's base (4096), got %d", cb.Phys2)
	}

	page1 := pool.pageFor(0)
	page2 := pool.pageFor(4096)
	if !blockInList(pool, page1.blockHead, cb.index) {
		t.Fatalf("expected block to be linked into the first page's block list")
	}
	if !blockInList2(pool, page2.blockHead2, cb.index) {
		t.Fatalf("expected block to be linked into the second page's block list")
	}
}

// TestSMCWriteOnSecondPageInvalidatesStraddlingBlock is spec §8
// scenario 4: a guest write to the first byte of the straddling block's
// second page must flip that page's dirty-mask bit 0 and invalidate
// the block, unlinking it from both pages' lists.
func TestSMCWriteOnSecondPageInvalidatesStraddlingBlock(t *testing.T) {
	arena, err := NewArena(64 * blockHeaderSize)
	if err != nil {
		t.Fatalf("NewArena: %v", err)
	}
	defer arena.Close()

	pool := NewBlockPool(16, 1, arena)
	smc := NewSMC(pool)
	mem := NewFlatMemory()
	bus := NewSMCBus(mem, smc)

	const addr = 4092
	const length = 5
	cb := pool.BlockInit(addr, addr, StatusFlatDS)
	smc.MarkCodePresent(cb, addr, length)
	cb.Program = &HostProgram{}

	bus.Write(4096, 0x90) // first byte of the second page

	page2 := pool.pageFor(4096)
	if page2.DirtyMask&1 == 0 {
		t.Fatalf("expected the second page's dirty mask bit 0 to be set")
	}
	if cb.Program != nil {
		t.Fatalf("expected the straddling block to be invalidated by a write landing only on its second page")
	}
	if pool.LookupHash(addr) != nil {
		t.Fatalf("expected the block's hash entry to be cleared after invalidation")
	}
}

func blockInList(pool *BlockPool, head, want int) bool {
	for idx := head; idx != BlockIndexInvalid; idx = pool.blocks[idx].next {
		if idx == want {
			return true
		}
	}
	return false
}

func blockInList2(pool *BlockPool, head, want int) bool {
	for idx := head; idx != BlockIndexInvalid; idx = pool.blocks[idx].next2 {
		if idx == want {
			return true
		}
	}
	return false
}
