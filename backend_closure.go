// backend_closure.go - the concrete closure-chain host backend
//
// Implements the uop_handlers table and direct_read_*/direct_write_*
// primitives spec §4.5 describes, targeting Go closures instead of
// machine code. A compiled block's "host code" is a HostProgram (a
// flat []HostStep); Run walks it with an integer step counter the way
// a real backend would walk machine-code bytes with an instruction
// pointer, with JMP/branch steps returning the index to continue at.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

// stateFieldTable binds every permanent-lifetime vreg id to the CPU_X86
// struct field it mirrors, realising direct_read_*/direct_write_* as
// closures over struct fields rather than fixed memory offsets. Volatile
// ids (scratch temps, EA operands, lazy-flags components) have no
// binding: they never survive a barrier, so nothing ever needs to load
// or store them outside the block itself.
type stateFieldTable struct {
	bound [VRegNumIDs]bool
	load  [VRegNumIDs]func(cpu *CPU_X86) regValue
	store [VRegNumIDs]func(cpu *CPU_X86, v regValue)
}

func bindInt32(t *stateFieldTable, id VRegID, get func(c *CPU_X86) *uint32) {
	t.bound[id] = true
	t.load[id] = func(c *CPU_X86) regValue { return regValue{I: uint64(*get(c))} }
	t.store[id] = func(c *CPU_X86, v regValue) { *get(c) = uint32(v.I) }
}

func bindUint16(t *stateFieldTable, id VRegID, get func(c *CPU_X86) *uint16) {
	t.bound[id] = true
	t.load[id] = func(c *CPU_X86) regValue { return regValue{I: uint64(*get(c))} }
	t.store[id] = func(c *CPU_X86, v regValue) { *get(c) = uint16(v.I) }
}

func bindByte(t *stateFieldTable, id VRegID, get func(c *CPU_X86) *byte) {
	t.bound[id] = true
	t.load[id] = func(c *CPU_X86) regValue { return regValue{I: uint64(*get(c))} }
	t.store[id] = func(c *CPU_X86, v regValue) { *get(c) = byte(v.I) }
}

func bindUint64(t *stateFieldTable, id VRegID, get func(c *CPU_X86) *uint64) {
	t.bound[id] = true
	t.load[id] = func(c *CPU_X86) regValue { return regValue{I: *get(c)} }
	t.store[id] = func(c *CPU_X86, v regValue) { *get(c) = v.I }
}

func bindFloat64(t *stateFieldTable, id VRegID, get func(c *CPU_X86) *float64) {
	t.bound[id] = true
	t.load[id] = func(c *CPU_X86) regValue { return regValue{F: *get(c)} }
	t.store[id] = func(c *CPU_X86, v regValue) { *get(c) = v.F }
}

// NewStateFieldTable builds the one binding table this backend needs;
// it holds no per-block state, so callers may share a single instance.
func NewStateFieldTable() *stateFieldTable {
	t := &stateFieldTable{}

	bindInt32(t, VRegEAX, func(c *CPU_X86) *uint32 { return &c.EAX })
	bindInt32(t, VRegECX, func(c *CPU_X86) *uint32 { return &c.ECX })
	bindInt32(t, VRegEDX, func(c *CPU_X86) *uint32 { return &c.EDX })
	bindInt32(t, VRegEBX, func(c *CPU_X86) *uint32 { return &c.EBX })
	bindInt32(t, VRegESP, func(c *CPU_X86) *uint32 { return &c.ESP })
	bindInt32(t, VRegEBP, func(c *CPU_X86) *uint32 { return &c.EBP })
	bindInt32(t, VRegESI, func(c *CPU_X86) *uint32 { return &c.ESI })
	bindInt32(t, VRegEDI, func(c *CPU_X86) *uint32 { return &c.EDI })

	bindInt32(t, VRegPC, func(c *CPU_X86) *uint32 { return &c.EIP })
	bindInt32(t, VRegOldPC, func(c *CPU_X86) *uint32 { return &c.PrevEIP })

	bindInt32(t, VRegCSBase, func(c *CPU_X86) *uint32 { return &c.CSBase })
	bindInt32(t, VRegDSBase, func(c *CPU_X86) *uint32 { return &c.DSBase })
	bindInt32(t, VRegESBase, func(c *CPU_X86) *uint32 { return &c.ESBase })
	bindInt32(t, VRegFSBase, func(c *CPU_X86) *uint32 { return &c.FSBase })
	bindInt32(t, VRegGSBase, func(c *CPU_X86) *uint32 { return &c.GSBase })
	bindInt32(t, VRegSSBase, func(c *CPU_X86) *uint32 { return &c.SSBase })

	bindUint16(t, VRegCSSeg, func(c *CPU_X86) *uint16 { return &c.CS })
	bindUint16(t, VRegDSSeg, func(c *CPU_X86) *uint16 { return &c.DS })
	bindUint16(t, VRegESSeg, func(c *CPU_X86) *uint16 { return &c.ES })
	bindUint16(t, VRegFSSeg, func(c *CPU_X86) *uint16 { return &c.FS })
	bindUint16(t, VRegGSSeg, func(c *CPU_X86) *uint16 { return &c.GS })
	bindUint16(t, VRegSSSeg, func(c *CPU_X86) *uint16 { return &c.SS })

	bindUint16(t, VRegFPUControlWord, func(c *CPU_X86) *uint16 { return &c.FPU.ControlWord })
	bindUint16(t, VRegFPUStatusWord, func(c *CPU_X86) *uint16 { return &c.FPU.StatusWord })

	t.bound[VRegFPUTop] = true
	t.load[VRegFPUTop] = func(c *CPU_X86) regValue { return regValue{I: uint64(c.FPU.Top)} }
	t.store[VRegFPUTop] = func(c *CPU_X86, v regValue) { c.FPU.Top = int(v.I) & 7 }

	for i := 0; i < 8; i++ {
		i := i
		bindFloat64(t, VRegST0+VRegID(i), func(c *CPU_X86) *float64 { return &c.FPU.ST[i] })
		bindByte(t, VRegTag0+VRegID(i), func(c *CPU_X86) *byte { return &c.FPU.Tag[i] })
		bindUint64(t, VRegMM0+VRegID(i), func(c *CPU_X86) *uint64 { return &c.FPU.MM[i] })
	}

	bindUint64(t, VRegCycles, func(c *CPU_X86) *uint64 { return &c.Cycles })
	bindInt32(t, VRegFlags, func(c *CPU_X86) *uint32 { return &c.Flags })
	bindInt32(t, VRegEFlags, func(c *CPU_X86) *uint32 { return &c.EFlags })

	return t
}

// emitFlush appends a step that writes every permanent register's
// current-as-of-here value back to CPU state (spec §4.5 step 1,
// reg_flush_invalidate / order-barrier writeback). The cell/SSA model
// this backend uses has no separate "cached in a host register" state
// to invalidate, so flush and flush-invalidate collapse to the same
// action: a full-barrier and an order-barrier both just mean "make sure
// cpu's fields agree with the block's current values before whatever
// runs next might observe them".
func (c *compiler) emitFlush(fields *stateFieldTable, _ fullBarrier) {
	type flushItem struct {
		id  VRegID
		get func(rt *Runtime) *regValue
	}
	var items []flushItem
	for id := VRegID(0); id < VRegNumIDs; id++ {
		if id.Lifetime() != LifetimePermanent || !fields.bound[id] {
			continue
		}
		fn := c.cellRef(IRReg{ID: id, Version: c.currentVer[id]})
		if fn == nil {
			continue
		}
		items = append(items, flushItem{id, fn})
	}
	c.steps = append(c.steps, func(cpu *CPU_X86, rt *Runtime) (int, BlockEndReason) {
		for _, it := range items {
			fields.store[it.id](cpu, *it.get(rt))
		}
		return stepFallthrough, BlockEndNone
	})
}

type fullBarrier = bool

// compileUop lowers one surviving uop to a HostStep, returning a
// jumpTarget handle when the uop is an in-block jump (spec §4.5 step 5).
func (c *compiler) compileUop(idx int, u *Uop, fields *stateFieldTable) (HostStep, *jumpTarget) {
	destIdx := c.cellOf[idx]

	switch u.Kind {
	case UopMov:
		if c.aliasDest(idx, u.Src[0]) {
			return noopStep, nil
		}
		src := c.cellRef(u.Src[0])
		return func(cpu *CPU_X86, rt *Runtime) (int, BlockEndReason) {
			rt.cells[destIdx] = *src(rt)
			return stepFallthrough, BlockEndNone
		}, nil

	case UopMovImm:
		imm := u.Imm
		return func(cpu *CPU_X86, rt *Runtime) (int, BlockEndReason) {
			rt.cells[destIdx] = regValue{I: uint64(imm)}
			return stepFallthrough, BlockEndNone
		}, nil

	case UopMovPtr:
		ptr := u.Pointer
		return func(cpu *CPU_X86, rt *Runtime) (int, BlockEndReason) {
			rt.cells[destIdx] = regValue{I: pointerToWord(ptr)}
			return stepFallthrough, BlockEndNone
		}, nil

	case UopMovRegPtr, UopMovzxRegPtr8, UopMovzxRegPtr16:
		load := u.Pointer.(func() uint32)
		return func(cpu *CPU_X86, rt *Runtime) (int, BlockEndReason) {
			rt.cells[destIdx] = regValue{I: uint64(load())}
			return stepFallthrough, BlockEndNone
		}, nil

	case UopMovzx, UopMovsx:
		src := c.cellRef(u.Src[0])
		return func(cpu *CPU_X86, rt *Runtime) (int, BlockEndReason) {
			rt.cells[destIdx] = regValue{I: src(rt).I}
			return stepFallthrough, BlockEndNone
		}, nil

	case UopMovDoubleInt:
		src := c.cellRef(u.Src[0])
		return func(cpu *CPU_X86, rt *Runtime) (int, BlockEndReason) {
			rt.cells[destIdx] = regValue{F: float64(int32(src(rt).I))}
			return stepFallthrough, BlockEndNone
		}, nil

	case UopMovIntDouble, UopMovIntDouble64:
		src := c.cellRef(u.Src[0])
		return func(cpu *CPU_X86, rt *Runtime) (int, BlockEndReason) {
			rt.cells[destIdx] = regValue{I: uint64(int32(src(rt).F))}
			return stepFallthrough, BlockEndNone
		}, nil

	case UopAdd, UopAnd, UopOr, UopSub, UopXor, UopAndn:
		return c.intBinOp(idx, u, intOpFor(u.Kind)), nil
	case UopAddImm, UopAndImm, UopOrImm, UopSubImm, UopXorImm:
		return c.intBinImmOp(idx, u, intOpFor(immBaseKind(u.Kind))), nil

	case UopAddLShift:
		a, b := c.cellRef(u.Src[0]), c.cellRef(u.Src[1])
		n := u.Imm
		return func(cpu *CPU_X86, rt *Runtime) (int, BlockEndReason) {
			rt.cells[destIdx] = regValue{I: uint64(uint32(a(rt).I) + (uint32(b(rt).I) << n))}
			return stepFallthrough, BlockEndNone
		}, nil

	case UopSar, UopShl, UopShr, UopRol, UopRor:
		a, cnt := c.cellRef(u.Src[0]), c.cellRef(u.Src[1])
		op := shiftOpFor(u.Kind)
		return func(cpu *CPU_X86, rt *Runtime) (int, BlockEndReason) {
			rt.cells[destIdx] = regValue{I: uint64(op(uint32(a(rt).I), uint32(cnt(rt).I)&31))}
			return stepFallthrough, BlockEndNone
		}, nil
	case UopSarImm, UopShlImm, UopShrImm, UopRolImm, UopRorImm:
		a := c.cellRef(u.Src[0])
		op := shiftOpFor(shiftImmBaseKind(u.Kind))
		count := u.Imm & 31
		return func(cpu *CPU_X86, rt *Runtime) (int, BlockEndReason) {
			rt.cells[destIdx] = regValue{I: uint64(op(uint32(a(rt).I), count))}
			return stepFallthrough, BlockEndNone
		}, nil

	case UopMemLoadAbs:
		seg := c.cellRef(u.Src[0])
		addr := u.Imm
		return func(cpu *CPU_X86, rt *Runtime) (int, BlockEndReason) {
			base := uint32(seg(rt).I) + addr
			rt.cells[destIdx] = regValue{I: uint64(cpu.bus.Read(base))}
			return stepFallthrough, BlockEndNone
		}, nil
	case UopMemLoadReg:
		seg, a := c.cellRef(u.Src[0]), c.cellRef(u.Src[1])
		return func(cpu *CPU_X86, rt *Runtime) (int, BlockEndReason) {
			base := uint32(seg(rt).I) + uint32(a(rt).I)
			rt.cells[destIdx] = regValue{I: uint64(cpu.bus.Read(base))}
			return stepFallthrough, BlockEndNone
		}, nil
	case UopMemStoreAbs:
		seg, v := c.cellRef(u.Src[0]), c.cellRef(u.Src[1])
		addr := u.Imm
		return func(cpu *CPU_X86, rt *Runtime) (int, BlockEndReason) {
			base := uint32(seg(rt).I) + addr
			cpu.bus.Write(base, byte(v(rt).I))
			return stepFallthrough, BlockEndNone
		}, nil
	case UopMemStoreReg:
		seg, a, v := c.cellRef(u.Src[0]), c.cellRef(u.Src[1]), c.cellRef(u.Src[2])
		return func(cpu *CPU_X86, rt *Runtime) (int, BlockEndReason) {
			base := uint32(seg(rt).I) + uint32(a(rt).I)
			cpu.bus.Write(base, byte(v(rt).I))
			return stepFallthrough, BlockEndNone
		}, nil
	case UopMemStoreImm8, UopMemStoreImm16, UopMemStoreImm32:
		seg, addr := c.cellRef(u.Src[0]), c.cellRef(u.Src[1])
		imm := u.Imm
		width := memStoreWidth(u.Kind)
		return func(cpu *CPU_X86, rt *Runtime) (int, BlockEndReason) {
			base := uint32(seg(rt).I) + uint32(addr(rt).I)
			writeLE(cpu, base, imm, width)
			return stepFallthrough, BlockEndNone
		}, nil
	case UopMemLoadSingle, UopMemLoadDouble:
		seg, addr := c.cellRef(u.Src[0]), c.cellRef(u.Src[1])
		return func(cpu *CPU_X86, rt *Runtime) (int, BlockEndReason) {
			base := uint32(seg(rt).I) + uint32(addr(rt).I)
			rt.cells[destIdx] = regValue{F: readFloatLE(cpu, base, u.Kind == UopMemLoadDouble)}
			return stepFallthrough, BlockEndNone
		}, nil
	case UopMemStoreSingle, UopMemStoreDouble:
		seg, addr, v := c.cellRef(u.Src[0]), c.cellRef(u.Src[1]), c.cellRef(u.Src[2])
		isDouble := u.Kind == UopMemStoreDouble
		return func(cpu *CPU_X86, rt *Runtime) (int, BlockEndReason) {
			base := uint32(seg(rt).I) + uint32(addr(rt).I)
			writeFloatLE(cpu, base, v(rt).F, isDouble)
			return stepFallthrough, BlockEndNone
		}, nil

	case UopStorePImm, UopStorePImm8:
		ptr, imm := u.Pointer, u.Imm
		return func(cpu *CPU_X86, rt *Runtime) (int, BlockEndReason) {
			store := ptr.(func(uint32))
			store(imm)
			return stepFallthrough, BlockEndNone
		}, nil

	case UopLoadSeg:
		sel := c.cellRef(u.Src[0])
		fn, _ := u.Pointer.(func(cpu *CPU_X86, sel uint16) int)
		return func(cpu *CPU_X86, rt *Runtime) (int, BlockEndReason) {
			if fn == nil {
				return stepFallthrough, BlockEndNone
			}
			if ret := fn(cpu, uint16(sel(rt).I)); ret != 0 {
				return stepFallthrough, BlockEndFault
			}
			return stepFallthrough, BlockEndNone
		}, nil

	case UopLoadFuncArg0, UopLoadFuncArg1, UopLoadFuncArg2, UopLoadFuncArg3:
		slot := int(u.Kind - UopLoadFuncArg0)
		src := c.cellRef(u.Src[0])
		return func(cpu *CPU_X86, rt *Runtime) (int, BlockEndReason) {
			rt.args[slot] = uint32(src(rt).I)
			return stepFallthrough, BlockEndNone
		}, nil
	case UopLoadFuncArg0Imm, UopLoadFuncArg1Imm, UopLoadFuncArg2Imm, UopLoadFuncArg3Imm:
		slot := int(u.Kind - UopLoadFuncArg0Imm)
		imm := u.Imm
		return func(cpu *CPU_X86, rt *Runtime) (int, BlockEndReason) {
			rt.args[slot] = imm
			return stepFallthrough, BlockEndNone
		}, nil

	case UopCallFunc:
		fn := u.Pointer.(func(cpu *CPU_X86, args [4]uint32))
		return func(cpu *CPU_X86, rt *Runtime) (int, BlockEndReason) {
			fn(cpu, rt.args)
			return stepFallthrough, BlockEndNone
		}, nil
	case UopCallFuncResult:
		fn := u.Pointer.(func(cpu *CPU_X86, args [4]uint32) uint32)
		return func(cpu *CPU_X86, rt *Runtime) (int, BlockEndReason) {
			rt.cells[destIdx] = regValue{I: uint64(fn(cpu, rt.args))}
			return stepFallthrough, BlockEndNone
		}, nil
	case UopCallInstructionFunc:
		bridge := u.Pointer.(*BridgeCall)
		return func(cpu *CPU_X86, rt *Runtime) (int, BlockEndReason) {
			if ret := bridge.Run(cpu); ret != int(BlockEndNone) {
				return stepFallthrough, BlockEndReason(ret)
			}
			return stepFallthrough, BlockEndNone
		}, nil

	case UopJmp:
		ptr := u.Pointer
		return func(cpu *CPU_X86, rt *Runtime) (int, BlockEndReason) {
			if ptr == ExitStubBlockEnd {
				return stepFallthrough, BlockEndNormal
			}
			return stepFallthrough, BlockEndFault
		}, nil
	case UopJmpDest:
		jt := &jumpTarget{step: -1}
		return func(cpu *CPU_X86, rt *Runtime) (int, BlockEndReason) {
			return jt.step, BlockEndNone
		}, jt
	case UopNopBarrier:
		return noopStep, nil

	default:
		if isCondJumpToPtr(u.Kind) {
			return c.compileCondJumpToPtr(idx, u), nil
		}
		if isCondJumpToDest(u.Kind) {
			return c.compileCondJumpToDest(idx, u)
		}
		if isFPU(u.Kind) {
			return c.compileFPU(idx, u, destIdx), nil
		}
		if isSIMD(u.Kind) {
			return c.compileSIMD(idx, u, destIdx), nil
		}
		return noopStep, nil
	}
}

func noopStep(cpu *CPU_X86, rt *Runtime) (int, BlockEndReason) { return stepFallthrough, BlockEndNone }

func pointerToWord(ptr any) uint64 {
	if fn, ok := ptr.(func() uint32); ok {
		return uint64(fn())
	}
	return 0
}

func writeLE(cpu *CPU_X86, addr, val uint32, width int) {
	for i := 0; i < width; i++ {
		cpu.bus.Write(addr+uint32(i), byte(val>>(8*i)))
	}
}

func memStoreWidth(k UopKind) int {
	switch k {
	case UopMemStoreImm8:
		return 1
	case UopMemStoreImm16:
		return 2
	default:
		return 4
	}
}

func readFloatLE(cpu *CPU_X86, addr uint32, isDouble bool) float64 {
	n := 4
	if isDouble {
		n = 8
	}
	var bits uint64
	for i := 0; i < n; i++ {
		bits |= uint64(cpu.bus.Read(addr+uint32(i))) << (8 * i)
	}
	if isDouble {
		return float64FromBits64(bits)
	}
	return float64(float32FromBits32(uint32(bits)))
}

func writeFloatLE(cpu *CPU_X86, addr uint32, v float64, isDouble bool) {
	if isDouble {
		bits := float64Bits64(v)
		for i := 0; i < 8; i++ {
			cpu.bus.Write(addr+uint32(i), byte(bits>>(8*i)))
		}
		return
	}
	bits := float32Bits32(float32(v))
	for i := 0; i < 4; i++ {
		cpu.bus.Write(addr+uint32(i), byte(bits>>(8*i)))
	}
}
