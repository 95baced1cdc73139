// ir_emit_mmx.go - MMX/3DNow micro-op emitters (§4.2 "SIMD")
//
// MMX_ENTER is emitted before any packed op, in the same barrier role as
// FP_ENTER for scalar x87; the closure backend runs it as a no-op and the
// x87 tag word is left unchanged. 3DNow ops operate on the same 64-bit
// VRegMMn vregs reinterpreted as two packed 32-bit floats; the uop's Imm
// carries the packed-element-size/operation-variant selector the way
// original_source's codegen_ops_3dnow.c switches on it.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

func (ir *IRBuilder) EmitMmxEnter(flags uint32) int {
	return ir.emit(UopMmxEnter, func(u *Uop) { u.Imm = flags })
}

func (ir *IRBuilder) packedBinOp(kind UopKind, dst, a, b VRegID, variant uint32) int {
	sa, sb := ir.read(a), ir.read(b)
	return ir.emit(kind, func(u *Uop) {
		u.Src[0], u.Src[1] = sa, sb
		u.Imm = variant
		u.Dest = ir.write(dst)
	})
}

func (ir *IRBuilder) EmitPAdd(dst, a, b VRegID, variant uint32) int {
	return ir.packedBinOp(UopPAdd, dst, a, b, variant)
}
func (ir *IRBuilder) EmitPSub(dst, a, b VRegID, variant uint32) int {
	return ir.packedBinOp(UopPSub, dst, a, b, variant)
}
func (ir *IRBuilder) EmitPCmp(dst, a, b VRegID, variant uint32) int {
	return ir.packedBinOp(UopPCmp, dst, a, b, variant)
}
func (ir *IRBuilder) EmitPMul(dst, a, b VRegID, variant uint32) int {
	return ir.packedBinOp(UopPMul, dst, a, b, variant)
}
func (ir *IRBuilder) EmitPUnpack(dst, a, b VRegID, variant uint32) int {
	return ir.packedBinOp(UopPUnpack, dst, a, b, variant)
}
func (ir *IRBuilder) EmitPPack(dst, a, b VRegID, variant uint32) int {
	return ir.packedBinOp(UopPPack, dst, a, b, variant)
}

// EmitPShift: dst = a shifted by a uniform count (register or immediate
// count folded into Imm by the caller; variant selects left/right/arith
// and element width).
func (ir *IRBuilder) EmitPShift(dst, a VRegID, count uint32, variant uint32) int {
	sa := ir.read(a)
	return ir.emit(UopPShift, func(u *Uop) {
		u.Src[0] = sa
		u.Imm = count | variant<<16
		u.Dest = ir.write(dst)
	})
}

// 3DNow packed-float ops: same two-source shape, variant distinguishes
// the specific mnemonic family member (e.g. PFCMPEQ vs PFCMPGE).
func (ir *IRBuilder) EmitPfAdd(dst, a, b VRegID) int { return ir.packedBinOp(UopPfAdd, dst, a, b, 0) }
func (ir *IRBuilder) EmitPfSub(dst, a, b VRegID) int { return ir.packedBinOp(UopPfSub, dst, a, b, 0) }
func (ir *IRBuilder) EmitPfMul(dst, a, b VRegID) int { return ir.packedBinOp(UopPfMul, dst, a, b, 0) }
func (ir *IRBuilder) EmitPfMin(dst, a, b VRegID) int { return ir.packedBinOp(UopPfMin, dst, a, b, 0) }
func (ir *IRBuilder) EmitPfMax(dst, a, b VRegID) int { return ir.packedBinOp(UopPfMax, dst, a, b, 0) }
func (ir *IRBuilder) EmitPfCmp(dst, a, b VRegID, variant uint32) int {
	return ir.packedBinOp(UopPfCmp, dst, a, b, variant)
}

func (ir *IRBuilder) pfUnOp(kind UopKind, dst, src VRegID) int {
	s := ir.read(src)
	return ir.emit(kind, func(u *Uop) {
		u.Src[0] = s
		u.Dest = ir.write(dst)
	})
}

func (ir *IRBuilder) EmitPf2Id(dst, src VRegID) int  { return ir.pfUnOp(UopPf2Id, dst, src) }
func (ir *IRBuilder) EmitPi2Fd(dst, src VRegID) int  { return ir.pfUnOp(UopPi2Fd, dst, src) }
func (ir *IRBuilder) EmitPfRcp(dst, src VRegID) int  { return ir.pfUnOp(UopPfRcp, dst, src) }
func (ir *IRBuilder) EmitPfRsqrt(dst, src VRegID) int { return ir.pfUnOp(UopPfRsqrt, dst, src) }
