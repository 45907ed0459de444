// Package eventlog records what an emulated program did: when it started,
// what it wrote, where it stopped and how it exited.
package eventlog

import (
	"fmt"
	"maps"
	"strconv"
	"strings"
)

// EventLog accepts structured entries. Field names follow journald rules
// (upper case, digits and underscores).
type EventLog interface {
	// Write sends a structured entry to the backing store.
	Write(message string, fields map[string]string) error

	// Close releases any resources.
	Close() error
}

// Lifecycle event constants.
const (
	EventStarted = "started"
	EventOutput  = "output"
	EventBreak   = "break"
	EventExited  = "exited"
)

// Event field names.
const (
	FieldEvent    = "ASM_EVENT"
	FieldProgram  = "ASM_PROGRAM"
	FieldExitCode = "ASM_EXIT_CODE"
	FieldAddr     = "ASM_ADDR"
	FieldFD       = "FD"
)

// EmitStarted writes a program started event.
func EmitStarted(log EventLog, program string, entry uint64) error {
	return log.Write("Program started", map[string]string{
		FieldEvent:   EventStarted,
		FieldProgram: program,
		FieldAddr:    formatAddr(entry),
	})
}

// WriteOutput writes bytes the program sent to fd, with extra fields.
func WriteOutput(log EventLog, fd int, text string, extraFields map[string]string) error {
	fields := map[string]string{
		FieldEvent: EventOutput,
		FieldFD:    strconv.Itoa(fd),
	}
	maps.Copy(fields, extraFields)
	return log.Write(text, fields)
}

// EmitBreak writes a breakpoint hit event.
func EmitBreak(log EventLog, program string, addr uint64) error {
	return log.Write("Breakpoint hit", map[string]string{
		FieldEvent:   EventBreak,
		FieldProgram: program,
		FieldAddr:    formatAddr(addr),
	})
}

// EmitExited writes a program exited event.
func EmitExited(log EventLog, program string, exitCode int) error {
	return log.Write("Program exited", map[string]string{
		FieldEvent:    EventExited,
		FieldProgram:  program,
		FieldExitCode: strconv.Itoa(exitCode),
	})
}

func formatAddr(addr uint64) string {
	return fmt.Sprintf("%#x", addr)
}

// Kind names an EventLog implementation.
type Kind string

const (
	KindLog     Kind = "log"
	KindJournal Kind = "journal"
	KindNone    Kind = "none"
)

// Open builds the event log described by kinds: one kind, or several kinds
// separated by commas that all receive every entry. An empty string means log.
func Open(kinds string) (EventLog, error) {
	if strings.TrimSpace(kinds) == "" {
		return NewSlog(nil), nil
	}

	var logs []EventLog
	for part := range strings.SplitSeq(kinds, ",") {
		l, err := openKind(Kind(strings.TrimSpace(part)))
		if err != nil {
			for _, opened := range logs {
				opened.Close()
			}
			return nil, err
		}
		logs = append(logs, l)
	}
	if len(logs) == 1 {
		return logs[0], nil
	}
	return NewTee(logs...), nil
}

func openKind(kind Kind) (EventLog, error) {
	switch kind {
	case KindLog:
		return NewSlog(nil), nil
	case KindJournal:
		return OpenJournal()
	case KindNone:
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("unknown event log %q (want log, journal or none)", kind)
	}
}

// Nop discards every entry.
type Nop struct{}

func (Nop) Write(string, map[string]string) error { return nil }
func (Nop) Close() error                          { return nil }
