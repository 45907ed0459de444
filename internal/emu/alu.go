package emu

// alu computes op on width-bit operands and returns the result with the
// updated flags. inc and dec leave CF as it was.
func alu(op ALUOp, a, b uint64, width uint, prev Flags) (uint64, Flags) {
	mask := ^uint64(0)
	if width < 64 {
		mask = 1<<width - 1
	}
	sign := uint64(1) << (width - 1)
	a &= mask
	b &= mask

	var r uint64
	var f Flags
	switch op {
	case ALUAdd, ALUInc:
		r = (a + b) & mask
		f.CF = r < a
		f.OF = (a^r)&(b^r)&sign != 0
	case ALUSub, ALUCmp, ALUDec:
		r = (a - b) & mask
		f.CF = a < b
		f.OF = (a^b)&(a^r)&sign != 0
	case ALUAnd:
		r = a & b
	case ALUOr:
		r = a | b
	case ALUXor:
		r = a ^ b
	}
	if op == ALUInc || op == ALUDec {
		f.CF = prev.CF
	}
	f.ZF = r == 0
	f.SF = r&sign != 0
	return r, f
}

// cond evaluates a jcc condition code.
func (f Flags) cond(cc uint8) bool {
	var ok bool
	switch cc >> 1 {
	case 0:
		ok = f.OF
	case 1:
		ok = f.CF
	case 2:
		ok = f.ZF
	case 3:
		ok = f.CF || f.ZF
	case 4:
		ok = f.SF
	case 6:
		ok = f.SF != f.OF
	case 7:
		ok = f.ZF || f.SF != f.OF
	}
	if cc&1 != 0 {
		return !ok
	}
	return ok
}
