// irbuilder.go - the single-threaded append-only IR emission contract
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

// IRBuilder wraps an IRBlock and its RegFile, exposing the read()/write()
// primitives every per-category emitter (ir_emit_*.go) is built from.
// Single-threaded, append-only: spec §4.2.
type IRBuilder struct {
	block *IRBlock
	regs  *RegFile
	pc    uint32 // source PC attached to the next emitted uop, for debugging

	producer int // index of the uop currently being filled in by emit()
}

func NewIRBuilder(block *IRBlock) *IRBuilder {
	return &IRBuilder{block: block, regs: block.regs}
}

func (ir *IRBuilder) SetSourcePC(pc uint32) { ir.pc = pc }

// read captures the current version of id as a source operand.
func (ir *IRBuilder) read(id VRegID) IRReg { return ir.regs.Read(id) }

// write allocates a new version of id, produced by the uop currently
// being emitted (ir.producer, set by emit() before fn runs - by the
// time fn calls write(), block.cursor already points one past it).
func (ir *IRBuilder) write(id VRegID) IRReg {
	return ir.regs.Write(id, ir.producer)
}

// emit appends one uop built by fn, applying the barrier/order-barrier
// invariants from spec §3 before returning its index. fn receives a
// pointer to the freshly zeroed uop slot to fill in (kind, dest, sources,
// immediate, pointer).
func (ir *IRBuilder) emit(kind UopKind, fn func(u *Uop)) int {
	idx := ir.block.append()
	if idx < 0 {
		return -1
	}
	u := ir.block.At(idx)
	u.Kind = kind
	u.SourcePC = ir.pc
	ir.producer = idx
	if fn != nil {
		fn(u)
	}

	// Invariant: a barrier forces register-file flush-invalidate at
	// emission time (modelled here as "every permanent register's
	// current version becomes REQUIRED", which is the producer-retention
	// half of flush-invalidate; the backend performs the actual host
	// register flush at codegen time per §4.5 step 1).
	if kind.Flags().Has(UopBarrier) {
		ir.regs.MarkAllPermanentRequired()
	}

	return idx
}

// SetJumpDest resolves a previously emitted forward jump's target to the
// uop about to be appended (the current cursor), recording it in the
// jump's JumpDestUop; the backend reads that field directly, and no
// jump_list_next chain is built. If the cursor is already at
// IRBlockMaxUops, the jump is marked JumpDestIsEnd instead and the
// backend resolves it to the block epilogue.
func (ir *IRBuilder) SetJumpDest(jumpUopIdx int) {
	target := ir.block.cursor
	u := ir.block.At(jumpUopIdx)
	if target >= IRBlockMaxUops {
		u.JumpDestIsEnd = true
		return
	}
	u.JumpDestUop = target
}

// ShouldEnd reports whether a compile-time cap (uop buffer, version,
// refcount, or instruction count) has been exceeded since this builder's
// block was created. decoder.go's DecodeOne checks it after every
// emitted instruction and folds it into its end result, so no further
// instructions are added once it is true.
func (ir *IRBuilder) ShouldEnd() bool { return ir.block.ShouldEnd() }
