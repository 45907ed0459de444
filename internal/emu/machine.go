// Package emu runs x86-64 Linux program images on a small interpreter.
//
// The interpreter covers the register-only instruction subset the built-in
// programs are written in, plus the write and exit system calls. Programs
// are stepped one instruction at a time, run to an exit or breakpoint, and
// inspected between stops.
package emu

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"

	"github.com/mbrock/asmhello/internal/eventlog"
	"github.com/mbrock/asmhello/internal/program"
)

// DefaultLimit bounds the instructions a single machine may execute.
const DefaultLimit = 1_000_000

// ctxCheckInterval is how many instructions Run executes between context checks.
const ctxCheckInterval = 1024

var (
	// ErrExited is returned when stepping a machine whose program exited.
	ErrExited = errors.New("program has exited")

	// ErrUnsupportedSyscall is returned for system calls other than write and exit.
	ErrUnsupportedSyscall = errors.New("unsupported syscall")

	// ErrInstructionLimit is returned once the instruction budget is spent.
	ErrInstructionLimit = errors.New("instruction limit reached")
)

// Linux x86-64 system call numbers.
const (
	sysWrite     = 1
	sysExit      = 60
	sysExitGroup = 231
)

// Linux errno values returned to the program as -errno.
const (
	errnoEIO    = 5
	errnoEBADF  = 9
	errnoEFAULT = 14
)

// StopReason says why Step or Run returned.
type StopReason uint8

const (
	StopStep StopReason = iota
	StopBreak
	StopExit
)

func (r StopReason) String() string {
	switch r {
	case StopStep:
		return "step"
	case StopBreak:
		return "break"
	case StopExit:
		return "exit"
	}
	return fmt.Sprintf("StopReason(%d)", r)
}

// Config configures a Machine. The zero value is usable: 8 MiB of memory,
// the default instruction limit, program output discarded and no events.
type Config struct {
	MemSize uint64
	Limit   uint64

	// Stdout and Stderr receive writes to fd 1 and fd 2.
	Stdout io.Writer
	Stderr io.Writer

	Events  eventlog.EventLog
	Verbose bool

	// Trace receives one line per executed instruction while verbose.
	Trace io.Writer
}

// Machine is one loaded program and its CPU state.
type Machine struct {
	name   string
	regs   Registers
	mem    *Memory
	files  map[int]io.Writer
	events eventlog.EventLog
	breaks map[uint64]struct{}

	// resumeAt is the breakpoint Run last stopped at. Run does not stop
	// there again until an instruction has executed.
	resumeAt uint64
	resuming bool

	verbose bool
	trace   io.Writer

	limit  uint64
	steps  uint64
	exited bool
	status int
}

// New loads img into a fresh address space and points rip at its entry.
func New(img *program.Image, cfg Config) (*Machine, error) {
	if cfg.MemSize == 0 {
		cfg.MemSize = DefaultMemSize
	}
	if cfg.Limit == 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.Events == nil {
		cfg.Events = eventlog.Nop{}
	}
	if cfg.Trace == nil {
		cfg.Trace = os.Stderr
	}

	m := &Machine{
		name:    img.Name,
		mem:     NewMemory(cfg.MemSize),
		files:   map[int]io.Writer{},
		events:  cfg.Events,
		breaks:  map[uint64]struct{}{},
		verbose: cfg.Verbose,
		trace:   cfg.Trace,
		limit:   cfg.Limit,
	}
	if cfg.Stdout != nil {
		m.files[1] = cfg.Stdout
	}
	if cfg.Stderr != nil {
		m.files[2] = cfg.Stderr
	}

	for _, s := range img.Segments {
		if err := m.mem.Write(s.Addr, s.Data); err != nil {
			return nil, fmt.Errorf("load segment %#x: %w", s.Addr, err)
		}
	}
	m.regs.RIP = img.Entry
	m.regs.GPR[RSP] = (cfg.MemSize - 8) &^ 0xf

	slog.Debug("machine loaded", "program", m.name, "entry", fmt.Sprintf("%#x", img.Entry), "segments", len(img.Segments))
	if err := eventlog.EmitStarted(m.events, m.name, img.Entry); err != nil {
		slog.Debug("emit started failed", "error", err)
	}
	return m, nil
}

// Name returns the program name.
func (m *Machine) Name() string { return m.name }

// Registers returns a snapshot of the CPU registers.
func (m *Machine) Registers() Registers { return m.regs }

// SetRegister overwrites a general purpose register.
func (m *Machine) SetRegister(r Reg, v uint64) { m.regs.GPR[r&15] = v }

// ReadU16 reads a little-endian word from memory.
func (m *Machine) ReadU16(addr uint64) (uint16, error) { return m.mem.ReadU16(addr) }

// SetVerbose toggles per-instruction tracing.
func (m *Machine) SetVerbose(v bool) { m.verbose = v }

// Verbose reports whether tracing is on.
func (m *Machine) Verbose() bool { return m.verbose }

// AddBreak stops Run before the instruction at addr executes.
func (m *Machine) AddBreak(addr uint64) { m.breaks[addr] = struct{}{} }

// RemoveBreak deletes a breakpoint.
func (m *Machine) RemoveBreak(addr uint64) { delete(m.breaks, addr) }

// Breaks lists breakpoint addresses in ascending order.
func (m *Machine) Breaks() []uint64 { return slices.Sorted(maps.Keys(m.breaks)) }

// Exited reports whether the program made an exit system call.
func (m *Machine) Exited() bool { return m.exited }

// ExitStatus returns the exit status, valid once Exited is true.
func (m *Machine) ExitStatus() int { return m.status }

// Steps returns how many instructions have executed.
func (m *Machine) Steps() uint64 { return m.steps }

// Decode decodes the instruction at addr without executing it.
func (m *Machine) Decode(addr uint64) (Inst, error) {
	code, err := m.mem.fetch(addr, maxInstLen)
	if err != nil {
		return Inst{}, err
	}
	return Decode(code, addr)
}

// Step executes one instruction.
func (m *Machine) Step() (StopReason, error) {
	if m.exited {
		return StopExit, ErrExited
	}
	if m.steps >= m.limit {
		return StopStep, fmt.Errorf("%w (%d)", ErrInstructionLimit, m.limit)
	}

	in, err := m.Decode(m.regs.RIP)
	if err != nil {
		return StopStep, err
	}
	if m.verbose {
		fmt.Fprintf(m.trace, "code exec: [%#x]: %s\n", in.Addr, in)
	}
	m.steps++
	m.resuming = false
	return m.exec(in)
}

// Run executes until the program exits, a breakpoint is reached, an error
// occurs or ctx is done. Resuming from a breakpoint stop executes the
// instruction at the breakpoint before any breakpoint can stop Run again.
func (m *Machine) Run(ctx context.Context) (StopReason, error) {
	for i := 0; ; i++ {
		if i%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return StopStep, err
			}
		}
		rip := m.regs.RIP
		if _, ok := m.breaks[rip]; ok && !(m.resuming && m.resumeAt == rip) {
			m.resumeAt, m.resuming = rip, true
			slog.Debug("breakpoint hit", "program", m.name, "addr", fmt.Sprintf("%#x", rip))
			if err := eventlog.EmitBreak(m.events, m.name, rip); err != nil {
				slog.Debug("emit break failed", "error", err)
			}
			return StopBreak, nil
		}
		reason, err := m.Step()
		if err != nil || reason == StopExit {
			return reason, err
		}
	}
}

func (m *Machine) get(r Reg, wide bool) uint64 {
	v := m.regs.GPR[r&15]
	if !wide {
		v &= 0xffffffff
	}
	return v
}

// set writes a register; 32-bit writes zero the upper half.
func (m *Machine) set(r Reg, v uint64, wide bool) {
	if !wide {
		v &= 0xffffffff
	}
	m.regs.GPR[r&15] = v
}

func (m *Machine) exec(in Inst) (StopReason, error) {
	next := in.Next()
	switch in.Op {
	case OpNop:
	case OpMovImm:
		m.set(in.Dst, uint64(in.Imm), in.Wide)
	case OpMovReg:
		m.set(in.Dst, m.get(in.Src, in.Wide), in.Wide)
	case OpALU, OpIncDec:
		m.execALU(in)
	case OpJcc:
		if m.regs.Flags.cond(in.Cond) {
			next = in.Target
		}
	case OpJmp:
		next = in.Target
	case OpSyscall:
		m.regs.RIP = next
		return m.syscall(in.Addr)
	default:
		return StopStep, fmt.Errorf("exec %#x: unknown op %d", in.Addr, in.Op)
	}
	m.regs.RIP = next
	return StopStep, nil
}

func (m *Machine) execALU(in Inst) {
	a := m.get(in.Dst, in.Wide)
	var b uint64
	switch {
	case in.Op == OpIncDec:
		b = 1
	case in.HasImm:
		b = uint64(in.Imm)
	default:
		b = m.get(in.Src, in.Wide)
	}

	width := uint(32)
	if in.Wide {
		width = 64
	}
	res, flags := alu(in.ALU, a, b, width, m.regs.Flags)
	m.regs.Flags = flags
	if in.ALU != ALUCmp {
		m.set(in.Dst, res, in.Wide)
	}
}

// syscall dispatches on rax with the Linux register convention. rcx and r11
// are clobbered with the return address and rflags as the kernel does.
func (m *Machine) syscall(addr uint64) (StopReason, error) {
	nr := m.regs.GPR[RAX]
	m.regs.GPR[RCX] = m.regs.RIP
	m.regs.GPR[R11] = m.regs.Flags.RFLAGS()

	switch nr {
	case sysWrite:
		m.regs.GPR[RAX] = m.write(int(m.regs.GPR[RDI]), m.regs.GPR[RSI], m.regs.GPR[RDX])
		return StopStep, nil

	case sysExit, sysExitGroup:
		m.exited = true
		m.status = int(m.regs.GPR[RDI] & 0xff)
		slog.Debug("program exited", "program", m.name, "status", m.status, "steps", m.steps)
		if err := eventlog.EmitExited(m.events, m.name, m.status); err != nil {
			slog.Debug("emit exited failed", "error", err)
		}
		return StopExit, nil
	}
	return StopStep, fmt.Errorf("%w %d at %#x", ErrUnsupportedSyscall, nr, addr)
}

func (m *Machine) write(fd int, buf, count uint64) uint64 {
	data, err := m.mem.Read(buf, count)
	if err != nil {
		return negErrno(errnoEFAULT)
	}
	w, ok := m.files[fd]
	if !ok {
		return negErrno(errnoEBADF)
	}

	n, err := w.Write(data)
	n = min(n, len(data))
	if err != nil && n <= 0 {
		slog.Debug("program write failed", "program", m.name, "fd", fd, "error", err)
		return negErrno(errnoEIO)
	}
	if err := eventlog.WriteOutput(m.events, fd, string(data[:n]), map[string]string{
		eventlog.FieldProgram: m.name,
	}); err != nil {
		slog.Debug("emit output failed", "error", err)
	}
	return uint64(n)
}

func negErrno(errno int64) uint64 { return uint64(-errno) }
