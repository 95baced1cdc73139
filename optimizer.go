// optimizer.go - dead-code elimination (§4.4 "Dead-code elimination")
//
// Drains the register file's dead-list to a fixed point: a version whose
// refcount drops to zero and isn't REQUIRED has its producer marked
// INVALID, which in turn releases that producer's own sources, possibly
// adding more versions to the dead-list. Grounded on
// original_source/src/codegen_new/codegen_backend_x86-64.c's
// codegen_optimise pass, reimplemented against RegFile's worklist instead
// of a direct array walk.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

// Optimize runs dead-code elimination over block to a fixed point. Barrier
// and call uops are never eliminated even if their nominal Dest goes dead,
// since they may have side effects beyond producing a register value;
// DCE here only ever removes pure register-producing uops (spec §4.4
// "only eliminates uops whose entire purpose was producing a now-unread
// register version").
func Optimize(block *IRBlock) {
	rf := block.regs

	// The last version of a volatile register is never replaced by a
	// later write, so Write never queues it; queue it here if unread.
	for id := VRegID(0); id < VRegNumIDs; id++ {
		ver := rf.lastVersion[id]
		if id.Lifetime() == LifetimeVolatile && rf.Refcount(id, ver) == 0 && rf.Flags(id, ver)&RegRefRequired == 0 {
			rf.addToDeadList(id, ver)
		}
	}

	for {
		candidates := rf.DeadCandidates()
		if len(candidates) == 0 {
			return
		}
		for _, k := range candidates {
			eliminateIfDead(block, rf, k.id, k.ver)
		}
	}
}

func eliminateIfDead(block *IRBlock, rf *RegFile, id VRegID, ver int) {
	// Every candidate drawn from the worklist is consumed here exactly
	// once, whether or not it actually gets eliminated - otherwise an
	// entry that fails one of the guards below (e.g. a block-entry
	// version, or a producer that's a barrier) never leaves deadSet and
	// Optimize's fixed-point loop spins forever.
	defer rf.removeFromDeadList(id, ver)

	if rf.Refcount(id, ver) != 0 {
		return
	}
	if rf.Flags(id, ver)&RegRefRequired != 0 {
		return
	}

	producer := rf.Producer(id, ver)
	if producer < 0 {
		// block-entry version, nothing to eliminate
		return
	}

	u := block.At(producer)
	if u.Invalid() {
		return
	}
	if u.Kind.Flags().Has(UopBarrier) || u.Kind.Flags().Has(UopOrderBarrier) || u.IsJump() {
		return
	}
	if u.Dest.ID != id || u.Dest.Version != ver {
		// this uop also has other live effects encoded through Dest;
		// a defensive check, should not happen for pure producers
		return
	}

	u.markInvalid()

	for _, src := range u.Src {
		if src.IsValid() {
			rf.DecRefcount(src.ID, src.Version)
		}
	}
}
