package emu

import (
	"fmt"
	"strings"
)

// Reg is a general purpose register number in x86-64 encoding order.
type Reg uint8

const (
	RAX Reg = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
)

var names64 = [16]string{"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi", "r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15"}
var names32 = [16]string{"eax", "ecx", "edx", "ebx", "esp", "ebp", "esi", "edi", "r8d", "r9d", "r10d", "r11d", "r12d", "r13d", "r14d", "r15d"}

// Name returns the register's 64-bit or 32-bit name.
func (r Reg) Name(wide bool) string {
	if wide {
		return names64[r&15]
	}
	return names32[r&15]
}

func (r Reg) String() string { return r.Name(true) }

// Flags holds the arithmetic status flags the emulator tracks.
type Flags struct {
	CF, ZF, SF, OF bool
}

// RFLAGS packs the flags into their architectural bit positions.
func (f Flags) RFLAGS() uint64 {
	v := uint64(1 << 1) // reserved, always set
	if f.CF {
		v |= 1 << 0
	}
	if f.ZF {
		v |= 1 << 6
	}
	if f.SF {
		v |= 1 << 7
	}
	if f.OF {
		v |= 1 << 11
	}
	return v
}

func (f Flags) String() string {
	var set []string
	for _, fl := range []struct {
		on   bool
		name string
	}{{f.CF, "CF"}, {f.ZF, "ZF"}, {f.SF, "SF"}, {f.OF, "OF"}} {
		if fl.on {
			set = append(set, fl.name)
		}
	}
	return "[" + strings.Join(set, " ") + "]"
}

// Registers is a snapshot of the CPU state.
type Registers struct {
	GPR   [16]uint64
	RIP   uint64
	Flags Flags
}

// Get returns a named register: rip, a 64-bit name (rax, r8) or a 32-bit
// name (eax, r8d).
func (r *Registers) Get(name string) (uint64, bool) {
	name = strings.ToLower(name)
	if name == "rip" {
		return r.RIP, true
	}
	for i := range names64 {
		if names64[i] == name {
			return r.GPR[i], true
		}
		if names32[i] == name {
			return r.GPR[i] & 0xffffffff, true
		}
	}
	return 0, false
}

func (r *Registers) String() string {
	var sb strings.Builder
	sb.WriteString("Cpu {\n")
	for i, name := range names64 {
		fmt.Fprintf(&sb, "    %s: %016x,\n", name, r.GPR[i])
	}
	fmt.Fprintf(&sb, "    rip: %016x,\n", r.RIP)
	fmt.Fprintf(&sb, "    flags: %s,\n", r.Flags)
	sb.WriteString("}")
	return sb.String()
}
