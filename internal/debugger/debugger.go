// Package debugger drives an emulated program from a small command
// language, either as a script or interactively.
//
// Commands:
//
//	q, quit, exit          end the session
//	p, print [X]           dump registers, or print register X, the word at
//	                       address X, or the word at SEG:OFF registers
//	r, run                 run until exit or breakpoint
//	n, next                execute one instruction
//	c, continue            same as run
//	logon, logoff          toggle per-instruction tracing
//	b, break ADDR          set a breakpoint
//	while break ADDR {     run the body every time execution stops at ADDR
//	  ...
//	}
package debugger

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/mbrock/asmhello/internal/emu"
)

// ErrQuit is returned when a quit command ends the session.
var ErrQuit = errors.New("quit")

// Session is a debugger attached to one machine.
type Session struct {
	m   *emu.Machine
	out io.Writer
}

// New attaches a session to m. Debugger output goes to out.
func New(m *emu.Machine, out io.Writer) *Session {
	return &Session{m: m, out: out}
}

// Machine returns the machine under debug.
func (s *Session) Machine() *emu.Machine { return s.m }

// RunScript parses src and executes it. Ending by quit or by resuming an
// exited program is not an error.
func (s *Session) RunScript(ctx context.Context, src string) error {
	cmds, err := Parse(src)
	if err != nil {
		return err
	}
	return Finished(s.Exec(ctx, cmds))
}

// RunFile executes the script at path.
func (s *Session) RunFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := s.RunScript(ctx, string(data)); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// Finished maps the errors that normally end a session to nil.
func Finished(err error) error {
	if errors.Is(err, ErrQuit) || errors.Is(err, emu.ErrExited) {
		return nil
	}
	return err
}

// Exec executes cmds in order. It returns ErrQuit on quit and
// emu.ErrExited when asked to resume a program that already exited.
func (s *Session) Exec(ctx context.Context, cmds []Command) error {
	for _, cmd := range cmds {
		if err := s.exec(ctx, cmd); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) exec(ctx context.Context, cmd Command) error {
	slog.Debug("debugger command", "cmd", cmd.Kind.String(), "line", cmd.Line)
	switch cmd.Kind {
	case CmdQuit:
		return ErrQuit
	case CmdPrint:
		return s.print(cmd.Arg)
	case CmdRun, CmdContinue:
		_, err := s.cont(ctx)
		return err
	case CmdNext:
		return s.next()
	case CmdLogon:
		s.m.SetVerbose(true)
	case CmdLogoff:
		s.m.SetVerbose(false)
	case CmdBreak:
		s.m.AddBreak(cmd.Addr)
	case CmdWhileBreak:
		return s.whileBreak(ctx, cmd)
	default:
		return fmt.Errorf("line %d: unknown command %v", cmd.Line, cmd.Kind)
	}
	return nil
}

func (s *Session) cont(ctx context.Context) (emu.StopReason, error) {
	if s.m.Exited() {
		return emu.StopExit, emu.ErrExited
	}
	reason, err := s.m.Run(ctx)
	if err != nil {
		return reason, err
	}
	s.report(reason)
	return reason, nil
}

func (s *Session) next() error {
	if s.m.Exited() {
		return emu.ErrExited
	}
	reason, err := s.m.Step()
	if err != nil {
		return err
	}
	s.report(reason)
	return nil
}

func (s *Session) report(reason emu.StopReason) {
	switch reason {
	case emu.StopBreak:
		fmt.Fprintf(s.out, "breaking at [%#x]\n", s.m.Registers().RIP)
	case emu.StopExit:
		fmt.Fprintf(s.out, "Program terminating with code '%#x', exiting...\n", s.m.ExitStatus())
	}
}

func (s *Session) whileBreak(ctx context.Context, cmd Command) error {
	s.m.AddBreak(cmd.Addr)
	for {
		reason, err := s.cont(ctx)
		if err != nil {
			return err
		}
		if reason != emu.StopBreak || s.m.Registers().RIP != cmd.Addr {
			return nil
		}
		if err := s.Exec(ctx, cmd.Body); err != nil {
			return err
		}
	}
}

func (s *Session) print(arg string) error {
	regs := s.m.Registers()
	if arg == "" {
		fmt.Fprintln(s.out, regs.String())
		return nil
	}

	if v, ok := regs.Get(arg); ok {
		fmt.Fprintf(s.out, "%s: %016x\n", strings.ToLower(arg), v)
		return nil
	}

	at, addr := arg, uint64(0)
	if a, err := ParseAddr(arg); err == nil {
		addr = a
	} else if r1, r2, ok := strings.Cut(arg, ":"); ok {
		seg, ok1 := regs.Get(r1)
		off, ok2 := regs.Get(r2)
		if !ok1 || !ok2 {
			return fmt.Errorf("print: unknown register pair %q", arg)
		}
		addr = seg*16 + off
		at = fmt.Sprintf("%s[%x:%x]", arg, seg, off)
	} else {
		return fmt.Errorf("print: cannot parse %q", arg)
	}

	v, err := s.m.ReadU16(addr)
	if err != nil {
		return fmt.Errorf("print: %w", err)
	}
	fmt.Fprintf(s.out, "Data(u16) at %s: %x\n", at, v)
	return nil
}

// REPL reads commands from in until EOF, quit, or the program exits and is
// resumed. A while block may span several lines. The prompt is shown only
// when in is a terminal. Parse and command errors are reported and the
// loop continues.
func (s *Session) REPL(ctx context.Context, in io.Reader) error {
	interactive := false
	if f, ok := in.(*os.File); ok {
		interactive = term.IsTerminal(int(f.Fd()))
	}
	prompt := func(p string) {
		if interactive {
			fmt.Fprint(s.out, p)
		}
	}

	sc := bufio.NewScanner(in)
	var pending []string
	prompt("> ")
	for sc.Scan() {
		pending = append(pending, sc.Text())
		cmds, err := Parse(strings.Join(pending, "\n"))
		if errors.Is(err, ErrUnterminated) {
			prompt("... ")
			continue
		}
		pending = pending[:0]

		if err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
		} else if err := s.Exec(ctx, cmds); err != nil {
			if done := Finished(err); done == nil {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
		prompt("> ")
	}
	return sc.Err()
}
