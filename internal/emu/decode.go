package emu

import (
	"fmt"
	"strings"

	"golang.org/x/arch/x86/x86asm"
)

// maxInstLen is the architectural upper bound on x86 instruction length.
const maxInstLen = 15

// Op is a decoded operation class.
type Op uint8

const (
	OpNop Op = iota
	OpMovImm
	OpMovReg
	OpALU
	OpIncDec
	OpJcc
	OpJmp
	OpSyscall
)

// ALU operations, numbered like the /digit extension of opcode 0x83.
type ALUOp uint8

const (
	ALUAdd ALUOp = 0
	ALUOr  ALUOp = 1
	ALUAnd ALUOp = 4
	ALUSub ALUOp = 5
	ALUXor ALUOp = 6
	ALUCmp ALUOp = 7
	ALUInc ALUOp = 8
	ALUDec ALUOp = 9
)

var aluOps = map[x86asm.Op]ALUOp{
	x86asm.ADD: ALUAdd, x86asm.OR: ALUOr, x86asm.AND: ALUAnd,
	x86asm.SUB: ALUSub, x86asm.XOR: ALUXor, x86asm.CMP: ALUCmp,
}

// condCodes maps conditional jumps to the low nibble of their 0x7x opcode.
// jp and jnp are absent: the parity flag is not tracked.
var condCodes = map[x86asm.Op]uint8{
	x86asm.JO: 0x0, x86asm.JNO: 0x1, x86asm.JB: 0x2, x86asm.JAE: 0x3,
	x86asm.JE: 0x4, x86asm.JNE: 0x5, x86asm.JBE: 0x6, x86asm.JA: 0x7,
	x86asm.JS: 0x8, x86asm.JNS: 0x9, x86asm.JL: 0xc, x86asm.JGE: 0xd,
	x86asm.JLE: 0xe, x86asm.JG: 0xf,
}

// Inst is one decoded instruction.
type Inst struct {
	Addr uint64
	Len  int
	Op   Op

	Wide   bool // 64-bit operand size
	Dst    Reg
	Src    Reg
	HasImm bool
	Imm    int64
	ALU    ALUOp
	Cond   uint8
	Target uint64

	raw x86asm.Inst
}

// Next returns the address of the following instruction.
func (in Inst) Next() uint64 { return in.Addr + uint64(in.Len) }

// String returns the instruction in Intel syntax.
func (in Inst) String() string {
	if in.raw.Op == 0 {
		return "(bad)"
	}
	return x86asm.IntelSyntax(in.raw, in.Addr, nil)
}

// DecodeError reports bytes the emulator cannot decode.
type DecodeError struct {
	Addr  uint64
	Bytes []byte
	Msg   string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %#x: %s: % x", e.Addr, e.Msg, e.Bytes)
}

func decodeError(addr uint64, code []byte, n int, msg string) *DecodeError {
	n = min(len(code), max(n, 1))
	return &DecodeError{Addr: addr, Bytes: append([]byte(nil), code[:n]...), Msg: msg}
}

// gpr maps a 32- or 64-bit general purpose register operand onto Reg.
func gpr(a x86asm.Arg) (r Reg, wide, ok bool) {
	reg, isReg := a.(x86asm.Reg)
	if !isReg {
		return 0, false, false
	}
	switch {
	case x86asm.RAX <= reg && reg <= x86asm.R15:
		return Reg(reg - x86asm.RAX), true, true
	case x86asm.EAX <= reg && reg <= x86asm.R15L:
		return Reg(reg - x86asm.EAX), false, true
	}
	return 0, false, false
}

func operandMsg(a x86asm.Arg) string {
	switch a.(type) {
	case x86asm.Mem:
		return "memory operands not supported"
	case nil:
		return "missing operand"
	}
	return fmt.Sprintf("unsupported operand %s", strings.ToLower(a.String()))
}

// Decode decodes the instruction at the start of code, which was fetched
// from addr.
func Decode(code []byte, addr uint64) (Inst, error) {
	in := Inst{Addr: addr}
	raw, err := x86asm.Decode(code, 64)
	if err != nil {
		return in, decodeError(addr, code, raw.Len, err.Error())
	}
	in.raw = raw
	in.Len = raw.Len
	fail := func(msg string) (Inst, error) {
		return in, decodeError(addr, code, raw.Len, msg)
	}

	switch raw.Op {
	case 0:
		// x86asm reports truncated or invalid bytes as a bare prefix.
		return fail("invalid or truncated instruction")

	case x86asm.NOP:
		in.Op = OpNop

	case x86asm.SYSCALL:
		in.Op = OpSyscall

	case x86asm.MOV, x86asm.ADD, x86asm.OR, x86asm.AND, x86asm.SUB, x86asm.XOR, x86asm.CMP:
		dst, wide, ok := gpr(raw.Args[0])
		if !ok {
			return fail(operandMsg(raw.Args[0]))
		}
		in.Dst, in.Wide = dst, wide
		if raw.Op == x86asm.MOV {
			in.Op = OpMovReg
		} else {
			in.Op, in.ALU = OpALU, aluOps[raw.Op]
		}
		if imm, isImm := raw.Args[1].(x86asm.Imm); isImm {
			in.HasImm, in.Imm = true, int64(imm)
			if in.Op == OpMovReg {
				in.Op = OpMovImm
			}
			break
		}
		src, swide, ok := gpr(raw.Args[1])
		if !ok || swide != wide {
			return fail(operandMsg(raw.Args[1]))
		}
		in.Src = src

	case x86asm.INC, x86asm.DEC:
		dst, wide, ok := gpr(raw.Args[0])
		if !ok {
			return fail(operandMsg(raw.Args[0]))
		}
		in.Op, in.Dst, in.Wide = OpIncDec, dst, wide
		in.ALU = ALUInc
		if raw.Op == x86asm.DEC {
			in.ALU = ALUDec
		}

	case x86asm.JP, x86asm.JNP:
		return fail("parity flag not tracked")

	default:
		cc, isJcc := condCodes[raw.Op]
		if raw.Op != x86asm.JMP && !isJcc {
			return fail("unsupported instruction " + strings.ToLower(raw.Op.String()))
		}
		rel, isRel := raw.Args[0].(x86asm.Rel)
		if !isRel {
			return fail(operandMsg(raw.Args[0]))
		}
		in.Op, in.Cond = OpJmp, cc
		if isJcc {
			in.Op = OpJcc
		}
		in.Target = in.Next() + uint64(int64(rel))
	}
	return in, nil
}
