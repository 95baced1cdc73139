// ir_emit_shift.go - shift/rotate micro-op emitters (§4.2)
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

func (ir *IRBuilder) shiftReg(kind UopKind, dst, a, count VRegID) int {
	sa, sc := ir.read(a), ir.read(count)
	return ir.emit(kind, func(u *Uop) {
		u.Src[0], u.Src[1] = sa, sc
		u.Dest = ir.write(dst)
	})
}

func (ir *IRBuilder) shiftImm(kind UopKind, dst, a VRegID, imm uint32) int {
	sa := ir.read(a)
	return ir.emit(kind, func(u *Uop) {
		u.Src[0] = sa
		u.Imm = imm
		u.Dest = ir.write(dst)
	})
}

func (ir *IRBuilder) EmitSar(dst, a, count VRegID) int       { return ir.shiftReg(UopSar, dst, a, count) }
func (ir *IRBuilder) EmitSarImm(dst, a VRegID, i uint32) int { return ir.shiftImm(UopSarImm, dst, a, i) }
func (ir *IRBuilder) EmitShl(dst, a, count VRegID) int       { return ir.shiftReg(UopShl, dst, a, count) }
func (ir *IRBuilder) EmitShlImm(dst, a VRegID, i uint32) int { return ir.shiftImm(UopShlImm, dst, a, i) }
func (ir *IRBuilder) EmitShr(dst, a, count VRegID) int       { return ir.shiftReg(UopShr, dst, a, count) }
func (ir *IRBuilder) EmitShrImm(dst, a VRegID, i uint32) int { return ir.shiftImm(UopShrImm, dst, a, i) }
func (ir *IRBuilder) EmitRol(dst, a, count VRegID) int       { return ir.shiftReg(UopRol, dst, a, count) }
func (ir *IRBuilder) EmitRolImm(dst, a VRegID, i uint32) int { return ir.shiftImm(UopRolImm, dst, a, i) }
func (ir *IRBuilder) EmitRor(dst, a, count VRegID) int       { return ir.shiftReg(UopRor, dst, a, count) }
func (ir *IRBuilder) EmitRorImm(dst, a VRegID, i uint32) int { return ir.shiftImm(UopRorImm, dst, a, i) }
