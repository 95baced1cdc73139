package main

import "testing"

// TestDecoderInstructionCapForcesBlockEnd is spec §8 scenario 5's sibling
// at this backend's actual binding cap: MaxInstructions (50) is checked
// after every decoded instruction (decoder.go's "end = end ||
// d.ir.ShouldEnd()"), so a guest stream of nothing but single-byte INC
// EAX never decodes past it even though the stream itself is far
// longer. The decoded instruction count, not just a buffer-full flag,
// must land exactly on the cap.
func TestDecoderInstructionCapForcesBlockEnd(t *testing.T) {
	image := make([]byte, MaxInstructions*4) // plenty of INC EAX, more than the cap allows
	for i := range image {
		image[i] = 0x40 // INC EAX
	}
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

	if irb.instrN != MaxInstructions {
		t.Fatalf("expected decoding to stop exactly at the %d-instruction cap, got %d", MaxInstructions, irb.instrN)
	}
	if !irb.ShouldEnd() {
		t.Fatalf("expected ShouldEnd to report true once the instruction cap is hit")
	}
}

// TestRegFileVersionCapForcesBlockEnd exercises RegVersionMax directly
// at the register-file level, bypassing the decoder's own (much lower)
// MaxInstructions cap: repeated direct writes to the same id must flip
// RegFile.blockEnd once the allocated version would exceed the 8-bit
// field's real-backend range, without ever panicking or wrapping.
func TestRegFileVersionCapForcesBlockEnd(t *testing.T) {
	arena, err := NewArena(defaultBlockPoolSize * arenaSizePerBlock)
	if err != nil {
		t.Fatalf("NewArena: %v", err)
	}
	defer arena.Close()

	pool := NewBlockPool(defaultBlockPoolSize, 1, arena)
	cb := pool.BlockInit(0, 0, StatusFlatDS|StatusFlatSS|StatusUse32|StatusStack32)
	irb := NewIRBlock(cb)
	ir := NewIRBuilder(irb)

	tripped := -1
	for i := 1; i <= RegVersionMax+5; i++ {
		ir.EmitMovImm(VRegEAX, uint32(i))
		if ir.ShouldEnd() {
			tripped = i
			break
		}
	}

	if tripped < 0 {
		t.Fatalf("expected ShouldEnd to trip within %d writes past RegVersionMax", RegVersionMax+5)
	}
	if tripped > RegVersionMax+1 {
		t.Fatalf("version cap tripped too late: at write %d, want at or before %d", tripped, RegVersionMax+1)
	}
}

// TestSSAVersionsStrictlyIncrease confirms every Write on the same id
// allocates a strictly larger version than the one before it, and that
// every Read in between observes the latest write - the core SSA
// invariant RegFile.Write/Read are built to preserve.
func TestSSAVersionsStrictlyIncrease(t *testing.T) {
	rf := NewRegFile()

	r0 := rf.Read(VRegEBX)
	if r0.Version != 0 {
		t.Fatalf("expected block-entry version 0, got %d", r0.Version)
	}

	var last = r0.Version
	for i := 0; i < 10; i++ {
		w := rf.Write(VRegEBX, i)
		if w.Version <= last {
			t.Fatalf("write %d did not strictly increase version: got %d after %d", i, w.Version, last)
		}
		last = w.Version

		r := rf.Read(VRegEBX)
		if r.Version != w.Version {
			t.Fatalf("read after write %d observed stale version %d, want %d", i, r.Version, w.Version)
		}
	}
}

// TestRefcountConservation confirms Read/DecRefcount keep a version's
// refcount exactly equal to the number of outstanding readers: N reads
// followed by N decrements must return the version to zero and queue it
// on the dead-list, and a decrement past zero must panic (the
// conservation invariant this field exists to enforce).
func TestRefcountConservation(t *testing.T) {
	rf := NewRegFile()
	rf.Write(VRegECX, 0) // version 1, producer uop 0

	const readers = 3
	for i := 0; i < readers; i++ {
		rf.Read(VRegECX)
	}
	if got := rf.Refcount(VRegECX, 1); got != readers {
		t.Fatalf("expected refcount %d after %d reads, got %d", readers, readers, got)
	}

	for i := 0; i < readers-1; i++ {
		rf.DecRefcount(VRegECX, 1)
	}
	if got := rf.Refcount(VRegECX, 1); got != 1 {
		t.Fatalf("expected refcount 1 with one decrement remaining, got %d", got)
	}

	rf.DecRefcount(VRegECX, 1)
	if got := rf.Refcount(VRegECX, 1); got != 0 {
		t.Fatalf("expected refcount 0 after final decrement, got %d", got)
	}

	found := false
	for _, k := range rf.DeadCandidates() {
		if k.id == VRegECX && k.ver == 1 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected version to join the dead-list once its refcount reached zero")
	}
}

// TestRefcountUnderflowPanics documents DecRefcount's panic-on-underflow
// behaviour: decrementing a version with no outstanding readers is a
// caller bug (double-release), not a value this invariant tolerates.
func TestRefcountUnderflowPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected DecRefcount to panic on refcount underflow")
		}
	}()
	rf := NewRegFile()
	rf.DecRefcount(VRegEDX, 0) // version 0 has refcount 0 and no readers yet
}
