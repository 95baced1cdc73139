// unroller.go - short backward-loop unrolling (§4.4 "Optimiser / loop
// unroller")
//
// Queried whenever a branch targets an earlier instruction within the
// same block. Grounded on original_source/src/codegen_new/codegen.c's
// codegen_is_byte_code / loop-unroll detection, which this keeps the
// shape of: look up the destination instruction in the per-instruction
// table, compare FPU top, and decide an iteration count under three
// simultaneous caps before physically duplicating the micro-op range.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

const (
	UnrollMaxUops     = 1000
	UnrollMaxRefs     = 200
	UnrollMaxIterations = 10
)

// UnrollQuery is what the decoder supplies when a branch targets an
// earlier PC within the block under compilation: the branch's own uop
// index (so its jump destination can be rewritten) and the destination
// guest PC.
type UnrollQuery struct {
	BranchUop int
	DestPC    uint32
}

// TryUnroll implements spec §4.4: look up destPC in the block's
// per-instruction table; if it isn't found, or its recorded FPU top
// disagrees with the block's current FPU top, no unrolling is possible
// (the caller's fallback path applies - ending the block normally).
// Otherwise compute an iteration count honouring the three caps and, if
// it exceeds 1, physically replicate [start, cursor) that many times.
func TryUnroll(ir *IRBuilder, q UnrollQuery, currentFPUTop int) bool {
	block := ir.block
	info, ok := block.FindInstructionAt(q.DestPC)
	if !ok {
		return false
	}
	if info.FPUTop != currentFPUTop {
		return false
	}

	start := info.IRStart
	cursor := block.cursor
	length := cursor - start
	if length <= 0 {
		return false
	}

	count := unrollCount(block, start, cursor, length)
	if count <= 1 {
		return false
	}

	reestablishEntryState(ir, info)

	for iter := 1; iter < count; iter++ {
		last := iter == count-1
		duplicateRange(block, start, cursor, iter, length, last)
	}
	return true
}

// unrollCount finds the largest iteration count (capped at
// UnrollMaxIterations) such that the fully-unrolled body fits within
// UnrollMaxUops micro-ops and no single register version accumulates
// more than UnrollMaxRefs references across all copies.
func unrollCount(block *IRBlock, start, cursor, length int) int {
	maxByUops := (IRBlockMaxUops - block.cursor) / length
	if maxByUops < 1 {
		maxByUops = 1
	}
	count := UnrollMaxIterations
	if maxByUops < count {
		count = maxByUops
	}
	if 1000/length < count && length > 0 {
		if UnrollMaxUops/length < count {
			count = UnrollMaxUops / length
		}
	}
	if count < 1 {
		count = 1
	}

	// Walk down from count while any source version inside [start,
	// cursor) would, once read once more per extra iteration, exceed
	// UnrollMaxRefs. A version's total reference count after n extra
	// copies is its current refcount plus n times however many times
	// this range reads it; bound conservatively using the per-id
	// refcount already recorded rather than re-deriving per-read site
	// counts, which keeps this a single pass over the range.
	for count > 1 {
		if fitsRefcountBudget(block, start, cursor, count) {
			break
		}
		count--
	}
	return count
}

func fitsRefcountBudget(block *IRBlock, start, cursor, count int) bool {
	rf := block.regs
	for i := start; i < cursor; i++ {
		u := block.At(i)
		for _, src := range u.Src {
			if !src.IsValid() {
				continue
			}
			if rf.Refcount(src.ID, src.Version)*count > UnrollMaxRefs {
				return false
			}
		}
	}
	return true
}

// reestablishEntryState re-emits the loop-entry instruction's recorded
// operand-size and segment-override flags before the first unrolled
// copy, since the block's register file may hold a different value for
// them by the time the backward branch is reached (spec §4.4 "Before the
// first unrolled iteration... re-established via explicit MOV_IMM /
// MOV_PTR operations").
func reestablishEntryState(ir *IRBuilder, info InstrInfo) {
	ir.EmitMovImm(VRegOp32, info.Op32)
	if info.SegOverride >= 0 {
		ir.EmitMovImm(VRegSSegsX, 1)
		ir.EmitMov(VRegEASeg, overrideSegVReg[info.SegOverride])
	} else {
		ir.EmitMovImm(VRegSSegsX, 0)
	}
}

// duplicateRange appends one copy of the micro-ops in [start, end) at
// the block's current cursor, rewriting register operands against the
// live RegFile (so each source read picks up whatever the most recent
// producer - original or a prior copy - actually is, and each
// destination write allocates a genuinely fresh version) and rewriting
// in-range jump destinations by this iteration's offset. The branch
// that closes the loop (the one whose target is the range's own start,
// i.e. the backward edge) is redirected to the next copy's entry, except
// on the final iteration, where it is left targeting the true loop
// header so execution can still fall through to further, non-unrolled
// iterations at runtime.
func duplicateRange(block *IRBlock, start, end, iter, length int, last bool) {
	rf := block.regs
	offset := iter * length

	for i := start; i < end; i++ {
		src := block.At(i)
		if src.Invalid() {
			continue
		}
		newIdx := block.append()
		if newIdx < 0 {
			return
		}
		dst := block.At(newIdx)
		dst.Kind = src.Kind
		dst.Imm = src.Imm
		dst.Pointer = src.Pointer
		dst.SourcePC = src.SourcePC
		dst.JumpDestIsEnd = src.JumpDestIsEnd

		for j, s := range src.Src {
			if s.IsValid() {
				dst.Src[j] = rf.Read(s.ID)
			} else {
				dst.Src[j] = InvalidIRReg
			}
		}
		if src.Dest.IsValid() {
			dst.Dest = rf.Write(src.Dest.ID, newIdx)
		}

		if src.IsJump() && !src.JumpDestIsEnd {
			switch {
			case src.JumpDestUop == start:
				if last {
					dst.JumpDestUop = start
				} else {
					dst.JumpDestUop = start + (iter+1)*length
				}
			case src.JumpDestUop >= start && src.JumpDestUop < end:
				dst.JumpDestUop = src.JumpDestUop + offset
			default:
				dst.JumpDestUop = src.JumpDestUop
			}
		} else {
			dst.JumpDestUop = src.JumpDestUop
		}
	}
}
