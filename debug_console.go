// debug_console.go - interactive block-cache/disassembly inspector
//
// Adapted from terminal_host.go's raw-mode stdin adapter (same
// MakeRaw/Restore read loop shape, here feeding a line
// editor instead of a guest MMIO device) and debug_disasm_x86.go's
// disassembler, which this drives over guest memory to print a
// compiled block's source bytes next to its cache entry.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.design/x/clipboard"
	"golang.org/x/term"
)

// DisassembledLine represents one disassembled instruction (debug_disasm_x86.go's
// disassembleX86 return type; the teacher's debug_interface.go this originally
// lived in was dropped along with the rest of the whole-machine debug monitor).
type DisassembledLine struct {
	Address      uint64
	HexBytes     string
	Mnemonic     string
	Size         int
	IsPC         bool
	IsBranch     bool
	BranchTarget uint64
}

// DebugConsole is the operator-facing REPL over a running Dispatcher: list
// cached blocks, disassemble guest memory, dump registers, single-step.
type DebugConsole struct {
	d    *Dispatcher
	cpu  *CPU_X86
	pool *BlockPool
	mem  *FlatMemory
}

// RunDebugConsole sets stdin to raw mode (terminal_host.go's convention)
// and drives command input until "quit" or EOF, restoring the terminal on
// exit regardless of how the loop ends.
func RunDebugConsole(d *Dispatcher, cpu *CPU_X86, pool *BlockPool, mem *FlatMemory) {
	console := &DebugConsole{d: d, cpu: cpu, pool: pool, mem: mem}

	fd := int(os.Stdin.Fd())
	oldState, rawErr := term.MakeRaw(fd)
	if rawErr == nil {
		defer term.Restore(fd, oldState)
	}
	// clipboard.Init is best-effort: a headless CI runner or an operator
	// without an X11/Wayland session has no clipboard to attach to, and
	// "yank block disassembly to the clipboard" is the only feature that
	// needs it - everything else in the console still works without it.
	clipboardReady := clipboard.Init() == nil

	reader := bufio.NewReader(os.Stdin)
	fmt.Print("\r\ndynarec> ")
	for {
		line, err := readRawLine(reader)
		if err != nil {
			return
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			fmt.Print("\r\ndynarec> ")
			continue
		}
		if fields[0] == "quit" || fields[0] == "q" {
			return
		}
		console.dispatch(fields, clipboardReady)
		fmt.Print("\r\ndynarec> ")
	}
}

// readRawLine accumulates bytes until CR/LF, since raw mode delivers
// keystrokes one at a time with no line discipline (same translation
// terminal_host.go applies: CR -> LF, DEL -> BS).
func readRawLine(r *bufio.Reader) (string, error) {
	var sb strings.Builder
	for {
		b, err := r.ReadByte()
		if err != nil {
			return "", err
		}
		switch b {
		case '\r', '\n':
			fmt.Print("\r\n")
			return sb.String(), nil
		case 0x7F, 0x08:
			s := sb.String()
			if len(s) > 0 {
				sb.Reset()
				sb.WriteString(s[:len(s)-1])
				fmt.Print("\b \b")
			}
		default:
			sb.WriteByte(b)
			fmt.Printf("%c", b)
		}
	}
}

func (c *DebugConsole) dispatch(fields []string, clipboardReady bool) {
	switch fields[0] {
	case "help", "h":
		fmt.Print("\r\ncommands: regs | blocks | disasm <hex-addr> [count] | yank <hex-addr> [count] | step | run | quit")
	case "regs", "r":
		c.printRegs()
	case "blocks", "b":
		c.printBlocks()
	case "disasm", "d":
		c.disasm(fields, clipboardReady, false)
	case "yank", "y":
		c.disasm(fields, clipboardReady, true)
	case "step", "s":
		reason := c.d.Step()
		fmt.Printf("\r\nstopped: %s", blockEndName(reason))
	case "run":
		c.d.Run()
		fmt.Print("\r\nhalted")
	default:
		fmt.Printf("\r\nunknown command %q (try \"help\")", fields[0])
	}
}

func (c *DebugConsole) printRegs() {
	cpu := c.cpu
	fmt.Printf("\r\nEAX=%08X EBX=%08X ECX=%08X EDX=%08X", cpu.EAX, cpu.EBX, cpu.ECX, cpu.EDX)
	fmt.Printf("\r\nESI=%08X EDI=%08X EBP=%08X ESP=%08X", cpu.ESI, cpu.EDI, cpu.EBP, cpu.ESP)
	fmt.Printf("\r\nEIP=%08X PrevEIP=%08X EFLAGS=%08X Halted=%v", cpu.EIP, cpu.PrevEIP, cpu.EFlags, cpu.Halted)
}

func (c *DebugConsole) printBlocks() {
	fmt.Printf("\r\nlive=%d", c.pool.LiveCount())
	shown := 0
	for i := range c.pool.blocks {
		b := &c.pool.blocks[i]
		if b.Flags&FlagInFreeList != 0 || b.PC == BlockPCInvalid {
			continue
		}
		compiled := b.Program != nil
		fmt.Printf("\r\n  slot %4d  PC=%08X phys=%08X ins=%d compiled=%v", b.index, b.PC, b.Phys, b.Ins, compiled)
		shown++
		if shown >= 32 {
			fmt.Print("\r\n  ...")
			break
		}
	}
}

// disasm prints (or, with yank, also copies to the clipboard) count
// instructions starting at a hex guest address, via debug_disasm_x86.go's
// disassembleX86 driven over guest RAM.
func (c *DebugConsole) disasm(fields []string, clipboardReady, yank bool) {
	if len(fields) < 2 {
		fmt.Print("\r\nusage: disasm <hex-addr> [count]")
		return
	}
	addr, err := strconv.ParseUint(strings.TrimPrefix(fields[1], "0x"), 16, 32)
	if err != nil {
		fmt.Printf("\r\nbad address %q", fields[1])
		return
	}
	count := 16
	if len(fields) >= 3 {
		if n, err := strconv.Atoi(fields[2]); err == nil && n > 0 {
			count = n
		}
	}

	readMem := func(a uint64, size int) []byte {
		out := make([]byte, size)
		for i := 0; i < size; i++ {
			out[i] = c.mem.Read(uint32(a) + uint32(i))
		}
		return out
	}

	lines := disassembleX86(readMem, addr, count)
	var sb strings.Builder
	for _, l := range lines {
		row := fmt.Sprintf("%08X  %-24s %s", l.Address, l.HexBytes, l.Mnemonic)
		fmt.Printf("\r\n%s", row)
		sb.WriteString(row)
		sb.WriteByte('\n')
	}

	if yank && clipboardReady {
		clipboard.Write(clipboard.FmtText, []byte(sb.String()))
		fmt.Print("\r\n(copied to clipboard)")
	} else if yank {
		fmt.Print("\r\n(clipboard unavailable, not copied)")
	}
}

func blockEndName(r BlockEndReason) string {
	switch r {
	case BlockEndNone:
		return "none"
	case BlockEndNormal:
		return "normal"
	case BlockEndFault:
		return "fault"
	case BlockEndSelfModified:
		return "self-modified"
	default:
		return "unknown"
	}
}
