// decoder.go - the x86 decode loop (§4.1)
//
// Walks guest bytes starting at a linear PC, resolving prefixes the same
// way cpu_x86.go's Step() prefix loop does, then either calls a native IR
// emitter for the opcode or falls back to a CALL_INSTRUCTION_FUNC of the
// interpreter's existing baseOps/extendedOps handler (interp_bridge.go).
// Recompiling full x86 semantics is explicitly out of scope (spec §1
// Non-goals); the fallback path is what makes that safe.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

// ByteStream is a cursor over guest linear memory, used identically by
// the decoder and by EmitEA16/32's ModR/M+SIB+displacement reads.
type ByteStream struct {
	bus X86Bus
	pc  uint32
}

func NewByteStream(bus X86Bus, pc uint32) *ByteStream { return &ByteStream{bus: bus, pc: pc} }

func (s *ByteStream) Fetch8() byte {
	v := s.bus.Read(s.pc)
	s.pc++
	return v
}

func (s *ByteStream) Fetch16() uint16 {
	lo := uint16(s.Fetch8())
	hi := uint16(s.Fetch8())
	return lo | hi<<8
}

func (s *ByteStream) Fetch32() uint32 {
	lo := uint32(s.Fetch16())
	hi := uint32(s.Fetch16())
	return lo | hi<<16
}

func (s *ByteStream) PC() uint32 { return s.pc }

// DecodeState is the decoder's mutable per-instruction prefix state,
// mirroring cpu_x86.go's prefixSeg/prefixRep/prefixOpSize/prefixAddrSize
// fields (spec §4.1 "Inputs").
type DecodeState struct {
	SegOverride int // -1 = none, else 0..5 ES/CS/SS/DS/FS/GS
	Rep         int // 0 none, 1 REP/REPE, 2 REPNE
	OpSize32    bool
	AddrSize32  bool
	SSegsX      bool // a segment override prefix was seen
}

// Decoder drives one block's worth of instruction decode, emitting into
// an IRBuilder and reporting byte-range coverage to the SMC detector.
type Decoder struct {
	bus   X86Bus
	ir    *IRBuilder
	smc   *SMC
	block *CodeBlock

	fpuStaticTop bool
	fpuTop       int
}

func NewDecoder(bus X86Bus, ir *IRBuilder, smc *SMC, block *CodeBlock) *Decoder {
	return &Decoder{bus: bus, ir: ir, smc: smc, block: block, fpuStaticTop: true}
}

// DecodeOne decodes and emits exactly one guest instruction starting at
// pc, recording it in the per-instruction table and marking its bytes
// code-present. Returns the PC immediately following it and whether the
// block must end (instruction-count cap, emitted IR cap, or an emitter
// signalling a block-terminating control-flow op).
func (d *Decoder) DecodeOne(pc uint32, segOverride int, op32 bool) (nextPC uint32, end bool) {
	s := NewByteStream(d.bus, pc)
	st := DecodeState{SegOverride: -1, OpSize32: op32, AddrSize32: op32}
	if segOverride >= 0 {
		st.SegOverride = segOverride
		st.SSegsX = true
	}

	opcode, table := d.walkPrefixes(s, &st)

	instrIdx := d.ir.block.BeginInstruction(pc, st.SegOverride, encodeOp32(st), d.fpuTop)
	if instrIdx < 0 {
		return pc, true
	}
	d.ir.SetSourcePC(pc)

	end = d.dispatch(s, &st, table, opcode, pc)

	d.smc.MarkCodePresent(d.block, pc, s.PC()-pc)

	end = end || d.ir.ShouldEnd()
	return s.PC(), end
}

// opTable names which opcode table a decoded opcode indexes into, per
// spec §4.1's prefix-selected table list.
type opTable int

const (
	tableBase opTable = iota
	table0F
	tableRep
	tableRepne
	tableFPU58 // D8: reg-only primaries, 5-bit index
	tableFPU59 // D9
	tableFPU5A // DA
	tableFPU5B // DB
	tableFPU5C // DC
	tableFPU5D // DD
	tableFPU5E // DE
	tableFPU5F // DF
	table3DNow // 0F 0F, opcode byte follows ModR/M+SIB+displacement
)

// walkPrefixes consumes prefix bytes, updating st, and returns the opcode
// byte along with which table it should be looked up in (spec §4.1
// "Recognised prefixes").
func (d *Decoder) walkPrefixes(s *ByteStream, st *DecodeState) (byte, opTable) {
	for {
		b := s.Fetch8()
		switch b {
		case 0x26:
			st.SegOverride, st.SSegsX = 0, true
		case 0x2E:
			st.SegOverride, st.SSegsX = 1, true
		case 0x36:
			st.SegOverride, st.SSegsX = 2, true
		case 0x3E:
			st.SegOverride, st.SSegsX = 3, true
		case 0x64:
			st.SegOverride, st.SSegsX = 4, true
		case 0x65:
			st.SegOverride, st.SSegsX = 5, true
		case 0x66:
			st.OpSize32 = !st.OpSize32
		case 0x67:
			st.AddrSize32 = !st.AddrSize32
		case 0xF0: // LOCK, ignored
		case 0xF2:
			st.Rep = 2
		case 0xF3:
			st.Rep = 1
		case 0x0F:
			op := s.Fetch8()
			if op == 0x0F {
				return d.decode3DNowTail(s, st)
			}
			return op, table0F
		case 0xD8:
			return d.fpuOpcodeIndex(s, tableFPU58), tableFPU58
		case 0xD9:
			return d.fpuOpcodeIndex(s, tableFPU59), tableFPU59
		case 0xDA:
			return d.fpuOpcodeIndex(s, tableFPU5A), tableFPU5A
		case 0xDB:
			return d.fpuOpcodeIndex(s, tableFPU5B), tableFPU5B
		case 0xDC:
			return d.fpuOpcodeIndex(s, tableFPU5C), tableFPU5C
		case 0xDD:
			return d.fpuOpcodeIndex(s, tableFPU5D), tableFPU5D
		case 0xDE:
			return d.fpuOpcodeIndex(s, tableFPU5E), tableFPU5E
		case 0xDF:
			return d.fpuOpcodeIndex(s, tableFPU5F), tableFPU5F
		default:
			if st.Rep == 1 {
				return b, tableRep
			}
			if st.Rep == 2 {
				return b, tableRepne
			}
			return b, tableBase
		}
	}
}

// fpuOpcodeIndex computes the index used for an FPU opcode table: the
// full ModR/M byte if it addresses memory (mod != 3), or a 5-bit
// reg-only index (reg | (mod<<3)) built from reg and the top two ModR/M
// bits, per spec §4.1.
func (d *Decoder) fpuOpcodeIndex(s *ByteStream, _ opTable) byte {
	b := s.Fetch8()
	mod := (b >> 6) & 3
	reg := (b >> 3) & 7
	if mod == 3 {
		return (reg | (b&0xC0)>>3) & 0x1f
	}
	return b
}

func encodeOp32(st DecodeState) uint32 {
	var v uint32
	if st.OpSize32 {
		v |= 1
	}
	if st.AddrSize32 {
		v |= 2
	}
	return v
}

// dispatch looks up a native IR emitter for (table, opcode); if none
// exists it falls back to CALL_INSTRUCTION_FUNC (spec §4.1 "Dispatch").
// Returns true if the block must terminate after this instruction.
func (d *Decoder) dispatch(s *ByteStream, st *DecodeState, table opTable, opcode byte, instrStart uint32) bool {
	if table == tableBase {
		if emit, ok := nativeBaseEmitters[opcode]; ok {
			return emit(d, s, st)
		}
	}
	return d.emitInterpreterFallback(s, st, table, opcode, instrStart)
}

// nativeEmitter is the signature of a per-opcode IR emitter: given the
// already-consumed prefix/opcode bytes, it reads any remaining operand
// bytes from s, appends IR, and reports whether the block must end.
type nativeEmitter func(d *Decoder, s *ByteStream, st *DecodeState) (end bool)

// nativeBaseEmitters covers the subset of the unprefixed opcode table
// this port translates natively; everything else uses the interpreter
// fallback (spec §1 "a fallback to interpreted handlers is always
// available" - full ISA coverage in the recompiler is a Non-goal).
var nativeBaseEmitters = map[byte]nativeEmitter{
	0xE9: (*Decoder).emitJmpRel32,
	0xEB: (*Decoder).emitJmpRel8,
	0x90: (*Decoder).emitNop,
}

func (d *Decoder) emitNop(s *ByteStream, st *DecodeState) bool { return false }

func (d *Decoder) emitJmpRel8(s *ByteStream, st *DecodeState) bool {
	disp := int8(s.Fetch8())
	target := uint32(int32(s.PC()) + int32(disp))
	d.emitJmpTarget(target)
	return true
}

func (d *Decoder) emitJmpRel32(s *ByteStream, st *DecodeState) bool {
	disp := int32(s.Fetch32())
	target := uint32(int32(s.PC()) + disp)
	d.emitJmpTarget(target)
	return true
}

// emitJmpTarget emits an unconditional jump to target. If target lands on
// an instruction already decoded earlier in this same block - a backward
// branch closing a short loop - it is emitted as an in-block JMP_DEST
// and offered to the unroller (spec §4.4); any other target exits the
// block through the dispatcher re-entry stub, since the destination
// either isn't compiled yet or lies outside this block entirely.
func (d *Decoder) emitJmpTarget(target uint32) {
	if info, ok := d.ir.block.FindInstructionAt(target); ok {
		branchUop := d.ir.EmitJmpDest(info.IRStart)
		TryUnroll(d.ir, UnrollQuery{BranchUop: branchUop, DestPC: target}, d.fpuTop)
		return
	}
	d.ir.EmitMovImm(VRegPC, target)
	d.ir.EmitJmp(ExitStubBlockEnd)
}

// ExitStubBlockEnd is the pointer value EmitJmp/EmitCmp*Jxx use to signal
// "leave the compiled block, PC already updated" (spec §4.8 "control
// returns and PC/flags/cycles have been updated").
var ExitStubBlockEnd = &struct{ name string }{"block-end"}
