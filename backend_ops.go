// backend_ops.go - per-opcode compilation helpers for the closure-chain
// backend (continuation of backend_closure.go): integer ALU, the two
// conditional-jump families, x87, and MMX/3DNow.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

import "math/bits"

func isCondJumpToPtr(k UopKind) bool  { return k >= UopCmpImmJz && k <= UopTestJns }
func isCondJumpToDest(k UopKind) bool { return k >= UopCmpImmJzDest && k <= UopTestJnsDest }
func isFPU(k UopKind) bool            { return k >= UopFpEnter && k <= UopFsqrt }
func isSIMD(k UopKind) bool           { return k >= UopMmxEnter && k <= UopPfRsqrt }

const condDestOffset = UopCmpImmJzDest - UopCmpImmJz

func condBase(k UopKind) UopKind {
	if k >= UopCmpImmJzDest {
		return k - condDestOffset
	}
	return k
}

func subOverflow32(a, b uint32) bool {
	res := a - b
	return ((a^b)&(a^res))>>31 != 0
}

// evalCond implements the condition each compare-and-branch uop encodes;
// b and imm are only meaningful for the kinds that use them.
func evalCond(k UopKind, a, b, imm uint32) bool {
	switch condBase(k) {
	case UopCmpImmJz:
		return a == imm
	case UopCmpImmJnz:
		return a != imm
	case UopCmpJb:
		return a < b
	case UopCmpJnb:
		return a >= b
	case UopCmpJl:
		return int32(a) < int32(b)
	case UopCmpJnl:
		return int32(a) >= int32(b)
	case UopCmpJbe:
		return a <= b
	case UopCmpJnbe:
		return a > b
	case UopCmpJle:
		return int32(a) <= int32(b)
	case UopCmpJnle:
		return int32(a) > int32(b)
	case UopCmpJo:
		return subOverflow32(a, b)
	case UopCmpJno:
		return !subOverflow32(a, b)
	case UopTestJs:
		return int32(a) < 0
	case UopTestJns:
		return int32(a) >= 0
	}
	return false
}

func (c *compiler) compileCondJumpToPtr(idx int, u *Uop) HostStep {
	a := c.cellRef(u.Src[0])
	b := c.cellRef(u.Src[1])
	kind, imm, ptr := u.Kind, u.Imm, u.Pointer
	return func(cpu *CPU_X86, rt *Runtime) (int, BlockEndReason) {
		var bv uint32
		if b != nil {
			bv = uint32(b(rt).I)
		}
		if evalCond(kind, uint32(a(rt).I), bv, imm) {
			if ptr == ExitStubBlockEnd {
				return stepFallthrough, BlockEndNormal
			}
			return stepFallthrough, BlockEndFault
		}
		return stepFallthrough, BlockEndNone
	}
}

func (c *compiler) compileCondJumpToDest(idx int, u *Uop) (HostStep, *jumpTarget) {
	a := c.cellRef(u.Src[0])
	b := c.cellRef(u.Src[1])
	kind, imm := u.Kind, u.Imm
	jt := &jumpTarget{step: -1}
	step := func(cpu *CPU_X86, rt *Runtime) (int, BlockEndReason) {
		var bv uint32
		if b != nil {
			bv = uint32(b(rt).I)
		}
		if evalCond(kind, uint32(a(rt).I), bv, imm) {
			return jt.step, BlockEndNone
		}
		return stepFallthrough, BlockEndNone
	}
	return step, jt
}

func intOpFor(k UopKind) func(a, b uint32) uint32 {
	switch k {
	case UopAdd:
		return func(a, b uint32) uint32 { return a + b }
	case UopAnd:
		return func(a, b uint32) uint32 { return a & b }
	case UopOr:
		return func(a, b uint32) uint32 { return a | b }
	case UopSub:
		return func(a, b uint32) uint32 { return a - b }
	case UopXor:
		return func(a, b uint32) uint32 { return a ^ b }
	case UopAndn:
		return func(a, b uint32) uint32 { return ^a & b }
	default:
		return func(a, b uint32) uint32 { return a }
	}
}

func immBaseKind(k UopKind) UopKind {
	switch k {
	case UopAddImm:
		return UopAdd
	case UopAndImm:
		return UopAnd
	case UopOrImm:
		return UopOr
	case UopSubImm:
		return UopSub
	case UopXorImm:
		return UopXor
	default:
		return k
	}
}

func (c *compiler) intBinOp(idx int, u *Uop, op func(a, b uint32) uint32) HostStep {
	destIdx := c.cellOf[idx]
	a, b := c.cellRef(u.Src[0]), c.cellRef(u.Src[1])
	return func(cpu *CPU_X86, rt *Runtime) (int, BlockEndReason) {
		rt.cells[destIdx] = regValue{I: uint64(op(uint32(a(rt).I), uint32(b(rt).I)))}
		return stepFallthrough, BlockEndNone
	}
}

func (c *compiler) intBinImmOp(idx int, u *Uop, op func(a, b uint32) uint32) HostStep {
	destIdx := c.cellOf[idx]
	a := c.cellRef(u.Src[0])
	imm := u.Imm
	return func(cpu *CPU_X86, rt *Runtime) (int, BlockEndReason) {
		rt.cells[destIdx] = regValue{I: uint64(op(uint32(a(rt).I), imm))}
		return stepFallthrough, BlockEndNone
	}
}

func shiftOpFor(k UopKind) func(v, n uint32) uint32 {
	switch k {
	case UopSar:
		return func(v, n uint32) uint32 { return uint32(int32(v) >> (n & 31)) }
	case UopShl:
		return func(v, n uint32) uint32 { return v << (n & 31) }
	case UopShr:
		return func(v, n uint32) uint32 { return v >> (n & 31) }
	case UopRol:
		return func(v, n uint32) uint32 { return bits.RotateLeft32(v, int(n&31)) }
	case UopRor:
		return func(v, n uint32) uint32 { return bits.RotateLeft32(v, -int(n&31)) }
	default:
		return func(v, n uint32) uint32 { return v }
	}
}

func shiftImmBaseKind(k UopKind) UopKind {
	switch k {
	case UopSarImm:
		return UopSar
	case UopShlImm:
		return UopShl
	case UopShrImm:
		return UopShr
	case UopRolImm:
		return UopRol
	case UopRorImm:
		return UopRor
	default:
		return k
	}
}

func fcomStatus(a, b float64) uint64 {
	switch {
	case a < b:
		return 1 << 8 // C0
	case a > b:
		return 0
	default:
		return 1 << 14 // C3: equal (NaN/unordered not modelled)
	}
}

func (c *compiler) compileFPU(idx int, u *Uop, destIdx int) HostStep {
	switch u.Kind {
	case UopFpEnter:
		return noopStep
	case UopFadd, UopFsub, UopFmul, UopFdiv:
		a, b := c.cellRef(u.Src[0]), c.cellRef(u.Src[1])
		op := fpOpFor(u.Kind)
		return func(cpu *CPU_X86, rt *Runtime) (int, BlockEndReason) {
			rt.cells[destIdx] = regValue{F: op(a(rt).F, b(rt).F)}
			return stepFallthrough, BlockEndNone
		}
	case UopFabs:
		a := c.cellRef(u.Src[0])
		return func(cpu *CPU_X86, rt *Runtime) (int, BlockEndReason) {
			v := a(rt).F
			if v < 0 {
				v = -v
			}
			rt.cells[destIdx] = regValue{F: v}
			return stepFallthrough, BlockEndNone
		}
	case UopFchs:
		a := c.cellRef(u.Src[0])
		return func(cpu *CPU_X86, rt *Runtime) (int, BlockEndReason) {
			rt.cells[destIdx] = regValue{F: -a(rt).F}
			return stepFallthrough, BlockEndNone
		}
	case UopFsqrt:
		a := c.cellRef(u.Src[0])
		return func(cpu *CPU_X86, rt *Runtime) (int, BlockEndReason) {
			rt.cells[destIdx] = regValue{F: sqrtFloat64(a(rt).F)}
			return stepFallthrough, BlockEndNone
		}
	case UopFcom:
		a, b := c.cellRef(u.Src[0]), c.cellRef(u.Src[1])
		return func(cpu *CPU_X86, rt *Runtime) (int, BlockEndReason) {
			rt.cells[destIdx] = regValue{I: fcomStatus(a(rt).F, b(rt).F)}
			return stepFallthrough, BlockEndNone
		}
	case UopFtst:
		a := c.cellRef(u.Src[0])
		return func(cpu *CPU_X86, rt *Runtime) (int, BlockEndReason) {
			rt.cells[destIdx] = regValue{I: fcomStatus(a(rt).F, 0)}
			return stepFallthrough, BlockEndNone
		}
	default:
		return noopStep
	}
}

func fpOpFor(k UopKind) func(a, b float64) float64 {
	switch k {
	case UopFadd:
		return func(a, b float64) float64 { return a + b }
	case UopFsub:
		return func(a, b float64) float64 { return a - b }
	case UopFmul:
		return func(a, b float64) float64 { return a * b }
	case UopFdiv:
		return func(a, b float64) float64 { return a / b }
	default:
		return func(a, b float64) float64 { return a }
	}
}

func laneWidth(variant uint32) int {
	switch variant & 0xff {
	case 0:
		return 8
	case 1:
		return 16
	case 2:
		return 32
	default:
		return 64
	}
}

// packedOp applies op lane-wise across a and b, treating each as a
// sequence of same-width unsigned lanes packed into the 64-bit word the
// way VRegMMn holds them.
func packedOp(a, b uint64, width int, op func(x, y uint64) uint64) uint64 {
	if width >= 64 {
		return op(a, b)
	}
	mask := uint64(1)<<uint(width) - 1
	var out uint64
	for shift := 0; shift < 64; shift += width {
		x := (a >> uint(shift)) & mask
		y := (b >> uint(shift)) & mask
		out |= (op(x, y) & mask) << uint(shift)
	}
	return out
}

func (c *compiler) compileSIMD(idx int, u *Uop, destIdx int) HostStep {
	switch u.Kind {
	case UopMmxEnter:
		return noopStep
	case UopPAdd, UopPSub, UopPCmp, UopPMul:
		a, b := c.cellRef(u.Src[0]), c.cellRef(u.Src[1])
		width := laneWidth(u.Imm)
		op := packedIntOpFor(u.Kind)
		return func(cpu *CPU_X86, rt *Runtime) (int, BlockEndReason) {
			rt.cells[destIdx] = regValue{I: packedOp(a(rt).I, b(rt).I, width, op)}
			return stepFallthrough, BlockEndNone
		}
	case UopPUnpack:
		a, b := c.cellRef(u.Src[0]), c.cellRef(u.Src[1])
		width := laneWidth(u.Imm)
		return func(cpu *CPU_X86, rt *Runtime) (int, BlockEndReason) {
			rt.cells[destIdx] = regValue{I: unpackLow(a(rt).I, b(rt).I, width)}
			return stepFallthrough, BlockEndNone
		}
	case UopPPack:
		a, b := c.cellRef(u.Src[0]), c.cellRef(u.Src[1])
		width := laneWidth(u.Imm)
		return func(cpu *CPU_X86, rt *Runtime) (int, BlockEndReason) {
			rt.cells[destIdx] = regValue{I: packSaturate(a(rt).I, b(rt).I, width)}
			return stepFallthrough, BlockEndNone
		}
	case UopPShift:
		a := c.cellRef(u.Src[0])
		count := u.Imm & 0xffff
		width := laneWidth(u.Imm >> 16)
		return func(cpu *CPU_X86, rt *Runtime) (int, BlockEndReason) {
			rt.cells[destIdx] = regValue{I: packedOp(a(rt).I, 0, width, func(x, _ uint64) uint64 {
				return x << count
			})}
			return stepFallthrough, BlockEndNone
		}
	case UopPfAdd, UopPfSub, UopPfMul, UopPfMin, UopPfMax, UopPfCmp:
		a, b := c.cellRef(u.Src[0]), c.cellRef(u.Src[1])
		op := pfOpFor(u.Kind)
		return func(cpu *CPU_X86, rt *Runtime) (int, BlockEndReason) {
			al, ah := unpackF32(a(rt).I)
			bl, bh := unpackF32(b(rt).I)
			rt.cells[destIdx] = regValue{I: packF32(op(al, bl), op(ah, bh))}
			return stepFallthrough, BlockEndNone
		}
	case UopPf2Id:
		a := c.cellRef(u.Src[0])
		return func(cpu *CPU_X86, rt *Runtime) (int, BlockEndReason) {
			al, ah := unpackF32(a(rt).I)
			rt.cells[destIdx] = regValue{I: uint64(uint32(int32(al))) | uint64(uint32(int32(ah)))<<32}
			return stepFallthrough, BlockEndNone
		}
	case UopPi2Fd:
		a := c.cellRef(u.Src[0])
		return func(cpu *CPU_X86, rt *Runtime) (int, BlockEndReason) {
			v := a(rt).I
			lo := float32(int32(uint32(v)))
			hi := float32(int32(uint32(v >> 32)))
			rt.cells[destIdx] = regValue{I: packF32(lo, hi)}
			return stepFallthrough, BlockEndNone
		}
	case UopPfRcp:
		a := c.cellRef(u.Src[0])
		return func(cpu *CPU_X86, rt *Runtime) (int, BlockEndReason) {
			al, _ := unpackF32(a(rt).I)
			r := float32(1) / al
			rt.cells[destIdx] = regValue{I: packF32(r, r)}
			return stepFallthrough, BlockEndNone
		}
	case UopPfRsqrt:
		a := c.cellRef(u.Src[0])
		return func(cpu *CPU_X86, rt *Runtime) (int, BlockEndReason) {
			al, _ := unpackF32(a(rt).I)
			r := float32(1) / float32(sqrtFloat64(float64(al)))
			rt.cells[destIdx] = regValue{I: packF32(r, r)}
			return stepFallthrough, BlockEndNone
		}
	default:
		return noopStep
	}
}

func packedIntOpFor(k UopKind) func(x, y uint64) uint64 {
	switch k {
	case UopPAdd:
		return func(x, y uint64) uint64 { return x + y }
	case UopPSub:
		return func(x, y uint64) uint64 { return x - y }
	case UopPMul:
		return func(x, y uint64) uint64 { return x * y }
	case UopPCmp:
		return func(x, y uint64) uint64 {
			if x == y {
				return ^uint64(0)
			}
			return 0
		}
	default:
		return func(x, y uint64) uint64 { return x }
	}
}

func unpackLow(a, b uint64, width int) uint64 {
	mask := uint64(1)<<uint(width) - 1
	var out uint64
	for i := 0; i < 64/width/2; i++ {
		out |= (a >> uint(i*width) & mask) << uint(2*i*width)
		out |= (b >> uint(i*width) & mask) << uint((2*i+1)*width)
	}
	return out
}

func packSaturate(a, b uint64, width int) uint64 {
	srcWidth := width * 2
	mask := uint64(1)<<uint(width) - 1
	srcMask := uint64(1)<<uint(srcWidth) - 1
	var out uint64
	shift := 0
	for _, v := range [2]uint64{a, b} {
		for i := 0; i < 64/srcWidth; i++ {
			lane := (v >> uint(i*srcWidth)) & srcMask
			if lane > mask {
				lane = mask
			}
			out |= lane << uint(shift)
			shift += width
		}
	}
	return out
}

func pfOpFor(k UopKind) func(a, b float32) float32 {
	switch k {
	case UopPfAdd:
		return func(a, b float32) float32 { return a + b }
	case UopPfSub:
		return func(a, b float32) float32 { return a - b }
	case UopPfMul:
		return func(a, b float32) float32 { return a * b }
	case UopPfMin:
		return func(a, b float32) float32 {
			if a < b {
				return a
			}
			return b
		}
	case UopPfMax:
		return func(a, b float32) float32 {
			if a > b {
				return a
			}
			return b
		}
	case UopPfCmp:
		return func(a, b float32) float32 {
			if a == b {
				return float32FromBits(0xffffffff)
			}
			return 0
		}
	default:
		return func(a, b float32) float32 { return a }
	}
}
