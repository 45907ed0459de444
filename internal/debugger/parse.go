package debugger

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Kind is a debugger command.
type Kind uint8

const (
	CmdQuit Kind = iota
	CmdPrint
	CmdRun
	CmdNext
	CmdContinue
	CmdLogon
	CmdLogoff
	CmdBreak
	CmdWhileBreak
)

var kindNames = [...]string{"quit", "print", "run", "next", "continue", "logon", "logoff", "break", "while"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Command is one parsed script command.
type Command struct {
	Kind Kind
	Line int

	// Arg is the operand of print, if any.
	Arg string

	// Addr is the breakpoint address of break and while.
	Addr uint64

	// Body holds the commands of a while block.
	Body []Command
}

// ErrUnterminated marks a while block missing its closing brace.
var ErrUnterminated = errors.New("expected closing '}' after while command")

// ParseError reports a script line that could not be parsed.
type ParseError struct {
	Line int
	Msg  string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse parses a debugger script. Blank lines and lines starting with #
// are ignored.
func Parse(src string) ([]Command, error) {
	p := &parser{lines: strings.Split(src, "\n")}
	cmds, _, err := p.block(false)
	if err != nil {
		return nil, err
	}
	return cmds, nil
}

type parser struct {
	lines []string
	idx   int
}

// block parses commands until end of input or, inside a block, a closing
// brace. closed reports whether a brace ended it.
func (p *parser) block(inBlock bool) (cmds []Command, closed bool, err error) {
	for p.idx < len(p.lines) {
		lineNum := p.idx + 1
		line := strings.TrimSpace(p.lines[p.idx])
		p.idx++

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if line == "}" {
			if !inBlock {
				return nil, false, &ParseError{Line: lineNum, Msg: "unexpected '}'"}
			}
			return cmds, true, nil
		}

		cmd, err := p.command(line, lineNum)
		if err != nil {
			return nil, false, err
		}
		cmds = append(cmds, cmd)
	}
	return cmds, false, nil
}

func (p *parser) command(line string, lineNum int) (Command, error) {
	cmd := Command{Line: lineNum}
	fields := strings.Fields(line)

	switch fields[0] {
	case "q", "quit", "exit":
		cmd.Kind = CmdQuit
	case "p", "print":
		cmd.Kind = CmdPrint
		if len(fields) > 1 {
			cmd.Arg = fields[1]
		}
	case "r", "run":
		cmd.Kind = CmdRun
	case "n", "next":
		cmd.Kind = CmdNext
	case "c", "continue":
		cmd.Kind = CmdContinue
	case "logon":
		cmd.Kind = CmdLogon
	case "logoff":
		cmd.Kind = CmdLogoff
	case "b", "break":
		if len(fields) < 2 {
			return cmd, &ParseError{Line: lineNum, Msg: "break requires an address"}
		}
		if len(fields) > 2 {
			return cmd, &ParseError{Line: lineNum, Msg: "break takes one address"}
		}
		addr, err := ParseAddr(fields[1])
		if err != nil {
			return cmd, &ParseError{Line: lineNum, Msg: fmt.Sprintf("cannot parse addr %q", fields[1])}
		}
		cmd.Kind, cmd.Addr = CmdBreak, addr
		return cmd, nil
	case "while":
		return p.while(fields, lineNum)
	default:
		return cmd, &ParseError{Line: lineNum, Msg: fmt.Sprintf("unknown command %q", line)}
	}

	if len(fields) > 1 && cmd.Kind != CmdPrint {
		return cmd, &ParseError{Line: lineNum, Msg: fmt.Sprintf("%s takes no arguments", cmd.Kind)}
	}
	return cmd, nil
}

// while parses "while break ADDR {" and its body.
func (p *parser) while(fields []string, lineNum int) (Command, error) {
	if len(fields) < 4 {
		return Command{}, &ParseError{Line: lineNum, Msg: "while statement requires 4 parts"}
	}
	if fields[1] != "break" {
		return Command{}, &ParseError{Line: lineNum, Msg: "only 'break' is supported after while"}
	}
	addr, err := ParseAddr(fields[2])
	if err != nil {
		return Command{}, &ParseError{Line: lineNum, Msg: fmt.Sprintf("cannot parse addr %q after break", fields[2])}
	}
	if fields[3] != "{" || len(fields) > 4 {
		return Command{}, &ParseError{Line: lineNum, Msg: "expected '{' after address"}
	}

	body, closed, err := p.block(true)
	if err != nil {
		return Command{}, err
	}
	if !closed {
		return Command{}, &ParseError{Line: lineNum, Err: ErrUnterminated}
	}
	return Command{Kind: CmdWhileBreak, Line: lineNum, Addr: addr, Body: body}, nil
}

// ParseAddr parses a hex address, with or without 0x, or a SEG:OFF pair
// of hex numbers meaning SEG*16+OFF.
func ParseAddr(s string) (uint64, error) {
	if seg, off, ok := strings.Cut(s, ":"); ok {
		segment, err := parseHex(seg)
		if err != nil {
			return 0, err
		}
		offset, err := parseHex(off)
		if err != nil {
			return 0, err
		}
		return segment*16 + offset, nil
	}
	return parseHex(s)
}

func parseHex(s string) (uint64, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	return strconv.ParseUint(s, 16, 64)
}
