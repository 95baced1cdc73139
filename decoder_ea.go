// decoder_ea.go - effective-address computation (§4.1 "Effective-address
// computation")
//
// Ported from cpu_x86.go's calcEffectiveAddress16/32 (interpreter style:
// decode-then-compute-now) into emit-style: each case appends the uops
// that will recompute the same address when the block runs, writing the
// result into VRegEAAddr/VRegEASeg instead of returning a value directly.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

// gprVReg maps an x86 ModR/M register-field index (0..7, EAX..EDI order)
// to its VRegID, matching cpu_x86.go's regs32 array ordering.
var gprVReg = [8]VRegID{
	VRegEAX, VRegECX, VRegEDX, VRegEBX,
	VRegESP, VRegEBP, VRegESI, VRegEDI,
}

// ModRM is the decoded (mod, reg, rm) triple plus whatever SIB/displacement
// followed it, captured once per instruction by the decoder's prefix/opcode
// walk (spec §4.1).
type ModRM struct {
	Mod, Reg, RM byte
	HasSIB       bool
	SIBScale     byte
	SIBIndex     byte
	SIBBase      byte
	Disp         int32
	DispBits     int // 0, 8, or 32 (16 for 16-bit addressing)
}

// DecodeModRM reads the ModR/M byte (and SIB/displacement, if mod != 3)
// from s, exactly mirroring cpu_x86.go's fetchModRM/fetchSIB field layout.
func DecodeModRM(s *ByteStream, addr32 bool) ModRM {
	b := s.Fetch8()
	m := ModRM{Mod: (b >> 6) & 3, Reg: (b >> 3) & 7, RM: b & 7}
	if m.Mod == 3 {
		return m
	}
	if addr32 {
		decodeModRM32Tail(s, &m)
	} else {
		decodeModRM16Tail(s, &m)
	}
	return m
}

func decodeModRM16Tail(s *ByteStream, m *ModRM) {
	switch m.Mod {
	case 0:
		if m.RM == 6 {
			m.Disp = int32(int16(s.Fetch16()))
			m.DispBits = 16
		}
	case 1:
		m.Disp = int32(int8(s.Fetch8()))
		m.DispBits = 8
	case 2:
		m.Disp = int32(int16(s.Fetch16()))
		m.DispBits = 16
	}
}

func decodeModRM32Tail(s *ByteStream, m *ModRM) {
	if m.RM == 4 {
		m.HasSIB = true
		sib := s.Fetch8()
		m.SIBScale = (sib >> 6) & 3
		m.SIBIndex = (sib >> 3) & 7
		m.SIBBase = sib & 7
		if m.SIBBase == 5 && m.Mod == 0 {
			m.Disp = int32(s.Fetch32())
			m.DispBits = 32
		}
	} else if m.RM == 5 && m.Mod == 0 {
		m.Disp = int32(s.Fetch32())
		m.DispBits = 32
		return
	}
	switch m.Mod {
	case 1:
		m.Disp = int32(int8(s.Fetch8()))
		m.DispBits = 8
	case 2:
		m.Disp = int32(s.Fetch32())
		m.DispBits = 32
	}
}

// EmitEA16 appends the uops computing a 16-bit-addressing effective
// address into VRegEAAddr, with the default segment (SS for BP-based
// modes, DS otherwise) in VRegEASeg unless a prefix override is active.
func (ir *IRBuilder) EmitEA16(m ModRM, segOverride int) {
	var base0, base1 VRegID
	hasBase1 := false
	seg := VRegDSSeg
	switch m.RM {
	case 0:
		base0, base1, hasBase1 = VRegEBX, VRegESI, true
	case 1:
		base0, base1, hasBase1 = VRegEBX, VRegEDI, true
	case 2:
		base0, base1, hasBase1 = VRegEBP, VRegESI, true
		seg = VRegSSSeg
	case 3:
		base0, base1, hasBase1 = VRegEBP, VRegEDI, true
		seg = VRegSSSeg
	case 4:
		base0 = VRegESI
	case 5:
		base0 = VRegEDI
	case 6:
		if m.Mod == 0 {
			ir.EmitMovImm(VRegEAAddr, uint32(uint16(m.Disp)))
			ir.applySegOverride(seg, segOverride)
			return
		}
		base0 = VRegEBP
		seg = VRegSSSeg
	case 7:
		base0 = VRegEBX
	}

	if hasBase1 {
		ir.EmitAdd(VRegEAAddr, base0, base1)
	} else {
		ir.EmitMov(VRegEAAddr, base0)
	}
	if m.DispBits != 0 {
		ir.EmitAddImm(VRegEAAddr, VRegEAAddr, uint32(uint16(m.Disp)))
	}
	ir.EmitAndImm(VRegEAAddr, VRegEAAddr, 0xFFFF)
	ir.applySegOverride(seg, segOverride)
}

// EmitEA32 appends the uops computing a 32-bit-addressing (incl. SIB)
// effective address (spec §4.1 "32-bit").
func (ir *IRBuilder) EmitEA32(m ModRM, segOverride int) {
	seg := VRegDSSeg

	if m.HasSIB {
		if m.SIBBase == 5 && m.Mod == 0 {
			ir.EmitMovImm(VRegEAAddr, uint32(m.Disp))
		} else {
			base := gprVReg[m.SIBBase]
			ir.EmitMov(VRegEAAddr, base)
			if m.SIBBase == 4 || m.SIBBase == 5 {
				seg = VRegSSSeg
			}
		}
		if m.SIBIndex != 4 {
			index := gprVReg[m.SIBIndex]
			ir.EmitAddLShift(VRegEAAddr, VRegEAAddr, index, uint32(m.SIBScale))
		}
	} else if m.RM == 5 && m.Mod == 0 {
		ir.EmitMovImm(VRegEAAddr, uint32(m.Disp))
	} else {
		base := gprVReg[m.RM]
		ir.EmitMov(VRegEAAddr, base)
		if m.RM == 4 || m.RM == 5 {
			seg = VRegSSSeg
		}
	}

	if m.DispBits != 0 && !(m.RM == 5 && m.Mod == 0) && !(m.HasSIB && m.SIBBase == 5 && m.Mod == 0) {
		ir.EmitAddImm(VRegEAAddr, VRegEAAddr, uint32(m.Disp))
	}
	ir.applySegOverride(seg, segOverride)
}

// applySegOverride writes def unless segOverride names one of the six
// override segments (spec §4.1 "a segment override has been set").
func (ir *IRBuilder) applySegOverride(def VRegID, segOverride int) {
	seg := def
	if segOverride >= 0 {
		seg = overrideSegVReg[segOverride]
	}
	ir.EmitMov(VRegEASeg, seg)
}

var overrideSegVReg = [6]VRegID{
	VRegESSeg, VRegCSSeg, VRegSSSeg, VRegDSSeg, VRegFSSeg, VRegGSSeg,
}
