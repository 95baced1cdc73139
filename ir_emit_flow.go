// ir_emit_flow.go - control-flow micro-op emitters (§4.2 "Control flow")
//
// Every conditional carries two forms: a *_ptr form (branches out of the
// block to a runtime-supplied routine, e.g. the GPF routine) and a *_DEST
// form (targets another uop within the block, used for in-block
// branches/loops). Grounded on original_source's codegen_ops_branch.c,
// which emits both encodings for the same condition.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

// condJumpToPtr emits a uop that, if its condition holds, jumps to a host
// routine outside the block (a guest fault handler, an exit stub, etc).
func (ir *IRBuilder) condJumpToPtr(kind UopKind, a, b IRReg, imm uint32, target any) int {
	return ir.emit(kind, func(u *Uop) {
		u.Src[0], u.Src[1] = a, b
		u.Imm = imm
		u.Pointer = target
	})
}

// EmitCmpImmJz: if (a == imm) jump to the routine at target.
func (ir *IRBuilder) EmitCmpImmJz(a VRegID, imm uint32, target any) int {
	return ir.condJumpToPtr(UopCmpImmJz, ir.read(a), InvalidIRReg, imm, target)
}
func (ir *IRBuilder) EmitCmpImmJnz(a VRegID, imm uint32, target any) int {
	return ir.condJumpToPtr(UopCmpImmJnz, ir.read(a), InvalidIRReg, imm, target)
}

func (ir *IRBuilder) cmpRegJumpToPtr(kind UopKind, a, b VRegID, target any) int {
	return ir.condJumpToPtr(kind, ir.read(a), ir.read(b), 0, target)
}

func (ir *IRBuilder) EmitCmpJb(a, b VRegID, target any) int   { return ir.cmpRegJumpToPtr(UopCmpJb, a, b, target) }
func (ir *IRBuilder) EmitCmpJnb(a, b VRegID, target any) int  { return ir.cmpRegJumpToPtr(UopCmpJnb, a, b, target) }
func (ir *IRBuilder) EmitCmpJl(a, b VRegID, target any) int   { return ir.cmpRegJumpToPtr(UopCmpJl, a, b, target) }
func (ir *IRBuilder) EmitCmpJnl(a, b VRegID, target any) int  { return ir.cmpRegJumpToPtr(UopCmpJnl, a, b, target) }
func (ir *IRBuilder) EmitCmpJbe(a, b VRegID, target any) int  { return ir.cmpRegJumpToPtr(UopCmpJbe, a, b, target) }
func (ir *IRBuilder) EmitCmpJnbe(a, b VRegID, target any) int { return ir.cmpRegJumpToPtr(UopCmpJnbe, a, b, target) }
func (ir *IRBuilder) EmitCmpJle(a, b VRegID, target any) int  { return ir.cmpRegJumpToPtr(UopCmpJle, a, b, target) }
func (ir *IRBuilder) EmitCmpJnle(a, b VRegID, target any) int { return ir.cmpRegJumpToPtr(UopCmpJnle, a, b, target) }
func (ir *IRBuilder) EmitCmpJo(a, b VRegID, target any) int   { return ir.cmpRegJumpToPtr(UopCmpJo, a, b, target) }
func (ir *IRBuilder) EmitCmpJno(a, b VRegID, target any) int  { return ir.cmpRegJumpToPtr(UopCmpJno, a, b, target) }

func (ir *IRBuilder) EmitTestJs(a VRegID, target any) int {
	return ir.condJumpToPtr(UopTestJs, ir.read(a), InvalidIRReg, 0, target)
}
func (ir *IRBuilder) EmitTestJns(a VRegID, target any) int {
	return ir.condJumpToPtr(UopTestJns, ir.read(a), InvalidIRReg, 0, target)
}

// condJumpToDest emits an in-block conditional branch. Its target uop
// index is unresolved if the branch is forward (caller must later call
// IRBuilder.SetJumpDest with the returned index); known immediately if
// backward.
func (ir *IRBuilder) condJumpToDest(kind UopKind, a, b IRReg, imm uint32, knownTarget int) int {
	idx := ir.emit(kind, func(u *Uop) {
		u.Src[0], u.Src[1] = a, b
		u.Imm = imm
		u.JumpDestUop = knownTarget // -1 if forward/unresolved
	})
	return idx
}

func (ir *IRBuilder) EmitCmpImmJzDest(a VRegID, imm uint32, knownTarget int) int {
	return ir.condJumpToDest(UopCmpImmJzDest, ir.read(a), InvalidIRReg, imm, knownTarget)
}
func (ir *IRBuilder) EmitCmpImmJnzDest(a VRegID, imm uint32, knownTarget int) int {
	return ir.condJumpToDest(UopCmpImmJnzDest, ir.read(a), InvalidIRReg, imm, knownTarget)
}

func (ir *IRBuilder) cmpRegJumpToDest(kind UopKind, a, b VRegID, knownTarget int) int {
	return ir.condJumpToDest(kind, ir.read(a), ir.read(b), 0, knownTarget)
}

func (ir *IRBuilder) EmitCmpJbDest(a, b VRegID, t int) int   { return ir.cmpRegJumpToDest(UopCmpJbDest, a, b, t) }
func (ir *IRBuilder) EmitCmpJnbDest(a, b VRegID, t int) int  { return ir.cmpRegJumpToDest(UopCmpJnbDest, a, b, t) }
func (ir *IRBuilder) EmitCmpJlDest(a, b VRegID, t int) int   { return ir.cmpRegJumpToDest(UopCmpJlDest, a, b, t) }
func (ir *IRBuilder) EmitCmpJnlDest(a, b VRegID, t int) int  { return ir.cmpRegJumpToDest(UopCmpJnlDest, a, b, t) }
func (ir *IRBuilder) EmitCmpJbeDest(a, b VRegID, t int) int  { return ir.cmpRegJumpToDest(UopCmpJbeDest, a, b, t) }
func (ir *IRBuilder) EmitCmpJnbeDest(a, b VRegID, t int) int { return ir.cmpRegJumpToDest(UopCmpJnbeDest, a, b, t) }
func (ir *IRBuilder) EmitCmpJleDest(a, b VRegID, t int) int  { return ir.cmpRegJumpToDest(UopCmpJleDest, a, b, t) }
func (ir *IRBuilder) EmitCmpJnleDest(a, b VRegID, t int) int { return ir.cmpRegJumpToDest(UopCmpJnleDest, a, b, t) }
func (ir *IRBuilder) EmitCmpJoDest(a, b VRegID, t int) int   { return ir.cmpRegJumpToDest(UopCmpJoDest, a, b, t) }
func (ir *IRBuilder) EmitCmpJnoDest(a, b VRegID, t int) int  { return ir.cmpRegJumpToDest(UopCmpJnoDest, a, b, t) }

func (ir *IRBuilder) EmitTestJsDest(a VRegID, t int) int {
	return ir.condJumpToDest(UopTestJsDest, ir.read(a), InvalidIRReg, 0, t)
}
func (ir *IRBuilder) EmitTestJnsDest(a VRegID, t int) int {
	return ir.condJumpToDest(UopTestJnsDest, ir.read(a), InvalidIRReg, 0, t)
}

// EmitJmp: unconditional jump to a host routine/exit stub pointer.
func (ir *IRBuilder) EmitJmp(target any) int {
	return ir.emit(UopJmp, func(u *Uop) { u.Pointer = target })
}

// EmitJmpDest: unconditional jump to another uop in this block.
func (ir *IRBuilder) EmitJmpDest(knownTarget int) int {
	return ir.emit(UopJmpDest, func(u *Uop) { u.JumpDestUop = knownTarget })
}

// EmitNopBarrier: a bare barrier with no other effect (used to force a
// full register flush+invalidate at a specific point, e.g. before
// unrolling re-establishes loop-entry state).
func (ir *IRBuilder) EmitNopBarrier() int { return ir.emit(UopNopBarrier, nil) }
