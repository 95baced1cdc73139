// uop.go - the micro-op IR instruction and its opcode catalogue
//
// Catalogue and flag bits are a direct port of
// original_source/src/cpu_new/codegen_ir_defs.h's UOP_TYPE_*/UOP_* macros.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

// UopFlag carries the barrier/order-barrier/operand-shape bits of a uop
// opcode, per spec §3.
type UopFlag uint32

const (
	UopBarrier      UopFlag = 1 << iota // all prior uops visible, all regs flushed+invalidated
	UopOrderBarrier                     // written back but not invalidated
	UopUsesRegs
	UopUsesPointer
	UopUsesImmediate
	UopIsJump
	UopIsJumpTarget
)

// UopKind is the opcode tag of a micro-op.
type UopKind uint16

const (
	UopLoadFuncArg0 UopKind = iota
	UopLoadFuncArg1
	UopLoadFuncArg2
	UopLoadFuncArg3
	UopLoadFuncArg0Imm
	UopLoadFuncArg1Imm
	UopLoadFuncArg2Imm
	UopLoadFuncArg3Imm
	UopCallFunc
	UopCallInstructionFunc
	UopStorePImm
	UopStorePImm8
	UopLoadSeg
	UopJmp
	UopCallFuncResult
	UopJmpDest
	UopNopBarrier

	UopMovPtr
	UopMovImm
	UopMov
	UopMovzx
	UopMovsx
	UopMovDoubleInt
	UopMovIntDouble
	UopMovIntDouble64
	UopMovRegPtr
	UopMovzxRegPtr8
	UopMovzxRegPtr16

	UopAdd
	UopAddImm
	UopAnd
	UopAndImm
	UopAddLShift
	UopOr
	UopOrImm
	UopSub
	UopSubImm
	UopXor
	UopXorImm
	UopAndn

	UopMemLoadAbs
	UopMemLoadReg
	UopMemStoreAbs
	UopMemStoreReg
	UopMemStoreImm8
	UopMemStoreImm16
	UopMemStoreImm32
	UopMemLoadSingle
	UopMemLoadDouble
	UopMemStoreSingle
	UopMemStoreDouble

	UopCmpImmJz
	UopCmpImmJnz
	UopCmpJb
	UopCmpJnb
	UopCmpJl
	UopCmpJnl
	UopCmpJbe
	UopCmpJnbe
	UopCmpJle
	UopCmpJnle
	UopCmpJo
	UopCmpJno
	UopTestJs
	UopTestJns

	UopCmpImmJzDest
	UopCmpImmJnzDest
	UopCmpJbDest
	UopCmpJnbDest
	UopCmpJlDest
	UopCmpJnlDest
	UopCmpJbeDest
	UopCmpJnbeDest
	UopCmpJleDest
	UopCmpJnleDest
	UopCmpJoDest
	UopCmpJnoDest
	UopTestJsDest
	UopTestJnsDest

	UopSar
	UopSarImm
	UopShl
	UopShlImm
	UopShr
	UopShrImm
	UopRol
	UopRolImm
	UopRor
	UopRorImm

	UopFpEnter
	UopFadd
	UopFsub
	UopFmul
	UopFdiv
	UopFcom
	UopFabs
	UopFchs
	UopFtst
	UopFsqrt

	UopMmxEnter
	UopPAdd
	UopPSub
	UopPCmp
	UopPShift
	UopPUnpack
	UopPPack
	UopPMul
	UopPfAdd
	UopPfSub
	UopPfMul
	UopPfMin
	UopPfMax
	UopPfCmp
	UopPf2Id
	UopPi2Fd
	UopPfRcp
	UopPfRsqrt

	UopNumKinds
)

var uopFlags [UopNumKinds]UopFlag

func setFlags(k UopKind, f UopFlag) { uopFlags[k] = f }

func init() {
	regs, ptr, imm := UopUsesRegs, UopUsesPointer, UopUsesImmediate
	barrier, order, jump, jtgt := UopBarrier, UopOrderBarrier, UopIsJump, UopIsJumpTarget

	setFlags(UopLoadFuncArg0, regs)
	setFlags(UopLoadFuncArg1, regs)
	setFlags(UopLoadFuncArg2, regs)
	setFlags(UopLoadFuncArg3, regs)
	setFlags(UopLoadFuncArg0Imm, imm|barrier)
	setFlags(UopLoadFuncArg1Imm, imm|barrier)
	setFlags(UopLoadFuncArg2Imm, imm|barrier)
	setFlags(UopLoadFuncArg3Imm, imm|barrier)
	setFlags(UopCallFunc, ptr|barrier)
	setFlags(UopCallInstructionFunc, ptr|barrier)
	setFlags(UopStorePImm, imm)
	setFlags(UopStorePImm8, imm)
	setFlags(UopLoadSeg, regs|ptr|barrier)
	setFlags(UopJmp, ptr|order)
	setFlags(UopCallFuncResult, regs|ptr|barrier)
	setFlags(UopJmpDest, imm|ptr|order|jump)
	setFlags(UopNopBarrier, barrier)

	setFlags(UopMovPtr, regs|ptr)
	setFlags(UopMovImm, regs|imm)
	setFlags(UopMov, regs)
	setFlags(UopMovzx, regs)
	setFlags(UopMovsx, regs)
	setFlags(UopMovDoubleInt, regs)
	setFlags(UopMovIntDouble, regs)
	setFlags(UopMovIntDouble64, regs)
	setFlags(UopMovRegPtr, regs|ptr)
	setFlags(UopMovzxRegPtr8, regs|ptr)
	setFlags(UopMovzxRegPtr16, regs|ptr)

	setFlags(UopAdd, regs)
	setFlags(UopAddImm, regs|imm)
	setFlags(UopAnd, regs|imm)
	setFlags(UopAndImm, regs|imm)
	setFlags(UopAddLShift, regs|imm)
	setFlags(UopOr, regs|imm)
	setFlags(UopOrImm, regs|imm)
	setFlags(UopSub, regs)
	setFlags(UopSubImm, regs|imm)
	setFlags(UopXor, regs|imm)
	setFlags(UopXorImm, regs|imm)
	setFlags(UopAndn, regs|imm)

	setFlags(UopMemLoadAbs, regs|imm|order)
	setFlags(UopMemLoadReg, regs|imm|order)
	setFlags(UopMemStoreAbs, regs|imm|order)
	setFlags(UopMemStoreReg, regs|order)
	setFlags(UopMemStoreImm8, regs|imm|order)
	setFlags(UopMemStoreImm16, regs|imm|order)
	setFlags(UopMemStoreImm32, regs|imm|order)
	setFlags(UopMemLoadSingle, regs|imm|order)
	setFlags(UopMemLoadDouble, regs|imm|order)
	setFlags(UopMemStoreSingle, regs|order)
	setFlags(UopMemStoreDouble, regs|order)

	for k := UopCmpImmJz; k <= UopTestJns; k++ {
		setFlags(k, regs|imm|ptr|order)
	}
	for k := UopCmpImmJzDest; k <= UopTestJnsDest; k++ {
		setFlags(k, regs|imm|ptr|order|jump)
	}

	for k := UopSar; k <= UopRorImm; k++ {
		f := regs
		if k == UopSarImm || k == UopShlImm || k == UopShrImm || k == UopRolImm || k == UopRorImm {
			f |= imm
		}
		setFlags(k, f)
	}

	setFlags(UopFpEnter, imm|barrier)
	for k := UopFadd; k <= UopFsqrt; k++ {
		setFlags(k, regs)
	}

	setFlags(UopMmxEnter, imm|barrier)
	for k := UopPAdd; k <= UopPfRsqrt; k++ {
		setFlags(k, regs)
	}

	_ = jtgt // no uop kind carries the jump-target flag; the backend resolves jumps from JumpDestUop
}

func (k UopKind) Flags() UopFlag { return uopFlags[k] }

func (f UopFlag) Has(bit UopFlag) bool { return f&bit != 0 }

// Uop is one IR instruction: an opcode tag, up to one destination and
// three source register refs (any may be invalid), an immediate, a
// generic pointer operand, backend-bound host register numbers (filled
// during codegen), and jump bookkeeping.
type Uop struct {
	Kind UopKind

	Dest IRReg
	Src  [3]IRReg

	Imm     uint32
	Pointer any // call target, absolute host address, or GPF/exit routine

	// Not used: the closure backend keeps its own per-version cells and
	// never assigns host register numbers.
	DestReal int
	SrcReal  [3]int

	// Jump bookkeeping (§4.2 "Jump handling"). Only JumpDestUop and
	// JumpDestIsEnd are read; JumpListNext is initialised to -1, and
	// IsJumpTarget and patchPoint are never set.
	JumpDestUop   int // index of the target uop, or -1 if unresolved/to-ptr
	JumpListNext  int // not used; always -1
	JumpDestIsEnd bool
	IsJumpTarget  bool // not used
	patchPoint    any  // not used

	SourcePC uint32 // guest PC this uop was emitted for, for debugging

	flags RegRefFlag // INVALID set by the optimiser, skipped by the backend
}

func (u *Uop) Invalid() bool    { return u.flags&RegRefInvalid != 0 }
func (u *Uop) markInvalid()     { u.flags |= RegRefInvalid }
func (u *Uop) IsBarrier() bool  { return u.Kind.Flags().Has(UopBarrier) }
func (u *Uop) IsOrderBarrier() bool { return u.Kind.Flags().Has(UopOrderBarrier) }
func (u *Uop) IsJump() bool     { return u.Kind.Flags().Has(UopIsJump) }
