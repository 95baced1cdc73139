package main

import "testing"

// TestScenarioMovAddStore is spec §8 scenario 1: MOV EAX,1; ADD EAX,2;
// MOV [0x1000],EAX; HLT, starting with EAX=0. All three instructions run
// through the interpreter fallback, whose call uop is a full barrier, so
// EAX lives in the CPU-state struct and the store observes EAX=3.
func TestScenarioMovAddStore(t *testing.T) {
	script := `
bytes = {
  0xB8, 0x01, 0x00, 0x00, 0x00, -- MOV EAX, 1
  0x05, 0x02, 0x00, 0x00, 0x00, -- ADD EAX, 2
  0xA3, 0x00, 0x10, 0x00, 0x00, -- MOV [0x1000], EAX
  0xF4,                         -- HLT
}
expect = {
  EAX = 3,
  ["mem:0x1000"] = 3,
}
`
	result, err := RunScenario(script)
	if err != nil {
		t.Fatalf("RunScenario: %v", err)
	}
	if !result.CPU.Halted {
		t.Fatalf("expected CPU to halt, ran %d steps", result.Steps)
	}
	for _, c := range result.Checked {
		if c.Got != c.Expected {
			t.Errorf("%s: got %#x want %#x", c.Name, c.Got, c.Expected)
		}
	}
	if !result.Passed() {
		t.Fatalf("scenario did not pass: %+v", result.Checked)
	}
}

// TestScenarioBackwardLoop drives a small backward-branching loop
// (increment EAX, decrement ECX, JNZ back to the loop header) end to end
// through the dispatcher. JNZ has no native IR emitter (only the
// unconditional 0xE9/0xEB forms reach emitJmpTarget's in-block JMP_DEST
// and unroller path - see TestUnrollerFiresOnBackwardJmp for that),
// so each iteration here recompiles or re-hits the cached block through
// the ordinary CALL_INSTRUCTION_FUNC bridge. Expected final state: ECX=0,
// EAX holds the iteration count.
func TestScenarioBackwardLoop(t *testing.T) {
	script := `
bytes = {
  0xB9, 0x05, 0x00, 0x00, 0x00, -- MOV ECX, 5
  0xB8, 0x00, 0x00, 0x00, 0x00, -- MOV EAX, 0
  -- loop:
  0x40,                         -- INC EAX
  0x49,                         -- DEC ECX
  0x75, 0xFC,                   -- JNZ loop (rel8 -4: back to the INC at offset 10)
  0xF4,                         -- HLT
}
expect = {
  EAX = 5,
  ECX = 0,
}
steps = 256
`
	result, err := RunScenario(script)
	if err != nil {
		t.Fatalf("RunScenario: %v", err)
	}
	if !result.Passed() {
		t.Fatalf("scenario did not pass: %+v (halted=%v steps=%d)", result.Checked, result.CPU.Halted, result.Steps)
	}
}
