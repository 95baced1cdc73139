// ir_emit_fpu.go - x87 FPU micro-op emitters (§4.2 "Floating point")
//
// FP_ENTER is the entry barrier every FPU-touching instruction emits
// first. Its effect is its barrier flag: emitting it marks the permanent
// vregs REQUIRED so they are flushed around it. The closure backend runs
// the uop itself as a no-op; no #NM is raised.
// Arithmetic itself operates on the double-precision scratch/stack vregs
// (VRegSTn, VRegTemp0D/1D); narrower x87 precision control is a Non-goal
// (spec §7) and is not modelled here.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

// EmitFpEnter must be the first uop of any x87-touching instruction.
func (ir *IRBuilder) EmitFpEnter(flags uint32) int {
	return ir.emit(UopFpEnter, func(u *Uop) { u.Imm = flags })
}

func (ir *IRBuilder) fpBinOp(kind UopKind, dst, a, b VRegID) int {
	sa, sb := ir.read(a), ir.read(b)
	return ir.emit(kind, func(u *Uop) {
		u.Src[0], u.Src[1] = sa, sb
		u.Dest = ir.write(dst)
	})
}

func (ir *IRBuilder) EmitFadd(dst, a, b VRegID) int { return ir.fpBinOp(UopFadd, dst, a, b) }
func (ir *IRBuilder) EmitFsub(dst, a, b VRegID) int { return ir.fpBinOp(UopFsub, dst, a, b) }
func (ir *IRBuilder) EmitFmul(dst, a, b VRegID) int { return ir.fpBinOp(UopFmul, dst, a, b) }
func (ir *IRBuilder) EmitFdiv(dst, a, b VRegID) int { return ir.fpBinOp(UopFdiv, dst, a, b) }

// EmitFcom: compare a against b, result folded into the FPU status word
// vreg (C0/C2/C3), per the unordered-compare semantics of FCOM/FUCOM.
func (ir *IRBuilder) EmitFcom(a, b VRegID) int {
	sa, sb := ir.read(a), ir.read(b)
	return ir.emit(UopFcom, func(u *Uop) {
		u.Src[0], u.Src[1] = sa, sb
		u.Dest = ir.write(VRegFPUStatusWord)
	})
}

func (ir *IRBuilder) fpUnOp(kind UopKind, dst, src VRegID) int {
	s := ir.read(src)
	return ir.emit(kind, func(u *Uop) {
		u.Src[0] = s
		u.Dest = ir.write(dst)
	})
}

func (ir *IRBuilder) EmitFabs(dst, src VRegID) int  { return ir.fpUnOp(UopFabs, dst, src) }
func (ir *IRBuilder) EmitFchs(dst, src VRegID) int  { return ir.fpUnOp(UopFchs, dst, src) }
func (ir *IRBuilder) EmitFsqrt(dst, src VRegID) int { return ir.fpUnOp(UopFsqrt, dst, src) }

// EmitFtst: compare src against +0.0, result folded into the status word.
func (ir *IRBuilder) EmitFtst(src VRegID) int {
	s := ir.read(src)
	return ir.emit(UopFtst, func(u *Uop) {
		u.Src[0] = s
		u.Dest = ir.write(VRegFPUStatusWord)
	})
}
