// ir_emit_mem.go - memory access micro-op emitters (§4.2)
//
// Every memory uop carries the order-barrier flag: prior writes must be
// visible, and a subsequent load may observe a page-fault exit (spec §5
// "Memory loads/stores emitted to guest memory are all order-barriers").
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

// EmitMemLoadAbs: dest = seg:[imm].
func (ir *IRBuilder) EmitMemLoadAbs(dst, seg VRegID, imm uint32) int {
	s := ir.read(seg)
	return ir.emit(UopMemLoadAbs, func(u *Uop) {
		u.Src[0] = s
		u.Imm = imm
		u.Dest = ir.write(dst)
	})
}

// EmitMemLoadReg: dest = seg:[addr].
func (ir *IRBuilder) EmitMemLoadReg(dst, seg, addr VRegID) int {
	s, a := ir.read(seg), ir.read(addr)
	return ir.emit(UopMemLoadReg, func(u *Uop) {
		u.Src[0], u.Src[1] = s, a
		u.Dest = ir.write(dst)
	})
}

// EmitMemStoreAbs: seg:[imm] = src.
func (ir *IRBuilder) EmitMemStoreAbs(seg, src VRegID, imm uint32) int {
	s, v := ir.read(seg), ir.read(src)
	return ir.emit(UopMemStoreAbs, func(u *Uop) {
		u.Src[0], u.Src[1] = s, v
		u.Imm = imm
	})
}

// EmitMemStoreReg: seg:[addr] = src.
func (ir *IRBuilder) EmitMemStoreReg(seg, addr, src VRegID) int {
	s, a, v := ir.read(seg), ir.read(addr), ir.read(src)
	return ir.emit(UopMemStoreReg, func(u *Uop) {
		u.Src[0], u.Src[1], u.Src[2] = s, a, v
	})
}

func (ir *IRBuilder) memStoreImm(kind UopKind, seg, addr VRegID, imm uint32) int {
	s, a := ir.read(seg), ir.read(addr)
	return ir.emit(kind, func(u *Uop) {
		u.Src[0], u.Src[1] = s, a
		u.Imm = imm
	})
}

func (ir *IRBuilder) EmitMemStoreImm8(seg, addr VRegID, imm uint32) int {
	return ir.memStoreImm(UopMemStoreImm8, seg, addr, imm)
}
func (ir *IRBuilder) EmitMemStoreImm16(seg, addr VRegID, imm uint32) int {
	return ir.memStoreImm(UopMemStoreImm16, seg, addr, imm)
}
func (ir *IRBuilder) EmitMemStoreImm32(seg, addr VRegID, imm uint32) int {
	return ir.memStoreImm(UopMemStoreImm32, seg, addr, imm)
}

func (ir *IRBuilder) EmitMemLoadSingle(dst, seg, addr VRegID) int {
	s, a := ir.read(seg), ir.read(addr)
	return ir.emit(UopMemLoadSingle, func(u *Uop) {
		u.Src[0], u.Src[1] = s, a
		u.Dest = ir.write(dst)
	})
}

func (ir *IRBuilder) EmitMemLoadDouble(dst, seg, addr VRegID) int {
	s, a := ir.read(seg), ir.read(addr)
	return ir.emit(UopMemLoadDouble, func(u *Uop) {
		u.Src[0], u.Src[1] = s, a
		u.Dest = ir.write(dst)
	})
}

func (ir *IRBuilder) EmitMemStoreSingle(seg, addr, src VRegID) int {
	s, a, v := ir.read(seg), ir.read(addr), ir.read(src)
	return ir.emit(UopMemStoreSingle, func(u *Uop) {
		u.Src[0], u.Src[1], u.Src[2] = s, a, v
	})
}

func (ir *IRBuilder) EmitMemStoreDouble(seg, addr, src VRegID) int {
	s, a, v := ir.read(seg), ir.read(addr), ir.read(src)
	return ir.emit(UopMemStoreDouble, func(u *Uop) {
		u.Src[0], u.Src[1], u.Src[2] = s, a, v
	})
}

// EmitStorePImm: constant-to-constant-address store (STORE_P_IMM), used by
// block glue to write a literal into a fixed host address with no vreg
// involved at all.
func (ir *IRBuilder) EmitStorePImm(ptr any, imm uint32, eightBit bool) int {
	kind := UopStorePImm
	if eightBit {
		kind = UopStorePImm8
	}
	return ir.emit(kind, func(u *Uop) {
		u.Pointer = ptr
		u.Imm = imm
	})
}

// EmitLoadSeg: call the segment-load helper with src in srcSel, target
// segment p; a non-zero return exits the block (guest fault).
func (ir *IRBuilder) EmitLoadSeg(srcSel VRegID, segPtr any) int {
	s := ir.read(srcSel)
	return ir.emit(UopLoadSeg, func(u *Uop) {
		u.Src[0] = s
		u.Pointer = segPtr
	})
}
