// backend_run.go - the host-program execution loop
//
// Walks a HostProgram the way a real backend's compiled code walks
// itself: an instruction pointer (here, a step index) that almost always
// just increments, occasionally redirected by a jump step. Grounded on
// original_source/src/codegen_new/codegen_backend_x86-64.c's generated
// entry function, whose role this plays without emitting actual machine
// code.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

// Run executes prog against cpu, seeding the runtime's block-entry cells
// from current CPU state and writing permanent registers back on every
// barrier/order-barrier the compile walk inserted flush steps for.
func Run(prog *HostProgram, cpu *CPU_X86, fields *stateFieldTable) BlockEndReason {
	rt := &Runtime{cells: make([]regValue, prog.NumCells)}
	for id := VRegID(0); id < VRegNumIDs; id++ {
		if fields.bound[id] {
			rt.entry[id] = fields.load[id](cpu)
		}
	}

	pc := 0
	for {
		if pc < 0 || pc >= len(prog.Steps) {
			return BlockEndNormal
		}
		next, end := prog.Steps[pc](cpu, rt)
		if end != BlockEndNone {
			return end
		}
		if next == stepFallthrough {
			pc++
		} else {
			pc = next
		}
	}
}
