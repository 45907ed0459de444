// asmrun - run the greeter and counter machine code on an x86-64 emulator
//
// Usage:
//
//	asmrun [flags] <program>            Run a built-in program or ELF file
//	asmrun dump [-o file] <program>     Write a built-in program as an ELF executable
//	asmrun list                         List built-in programs
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/mbrock/asmhello/internal/debugger"
	"github.com/mbrock/asmhello/internal/emu"
	"github.com/mbrock/asmhello/internal/eventlog"
	"github.com/mbrock/asmhello/internal/program"
)

// Global flags
var (
	verboseFlag     bool
	scriptFlag      string
	interactiveFlag bool
	eventsFlag      string
	logLevelFlag    string
	memFlag         uint64
	limitFlag       uint64
	outputFlag      string
)

func main() {
	flag.BoolVarP(&verboseFlag, "verbose", "v", false, "Trace every executed instruction to stderr")
	flag.StringVarP(&scriptFlag, "script", "s", "", "Run debugger commands from FILE")
	flag.BoolVarP(&interactiveFlag, "interactive", "i", false, "Read debugger commands from stdin")
	flag.StringVar(&eventsFlag, "events", envOr("ASMRUN_EVENTS", "log"), "Event log: log, journal, none, or a comma list (overrides ASMRUN_EVENTS)")
	flag.StringVar(&logLevelFlag, "log-level", envOr("ASMRUN_LOG_LEVEL", "info"), "Log level: debug, info, warn, error (overrides ASMRUN_LOG_LEVEL)")
	flag.Uint64Var(&memFlag, "mem", emu.DefaultMemSize, "Emulated memory size in bytes")
	flag.Uint64Var(&limitFlag, "limit", emu.DefaultLimit, "Maximum instructions to execute")
	flag.StringVarP(&outputFlag, "output", "o", "", "Output file for dump (default: program name)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `asmrun - run the greeter and counter machine code on an x86-64 emulator

Usage:
  asmrun [flags] <program>            Run a built-in program or ELF file
  asmrun dump [-o file] <program>     Write a built-in program as an ELF executable
  asmrun list                         List built-in programs

Programs: %s

Flags:
`, strings.Join(program.Names(), ", "))
		flag.PrintDefaults()
	}
	flag.Parse()

	setupLogging()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	switch args[0] {
	case "dump":
		if len(args) < 2 {
			fatal("usage: asmrun dump [-o file] <program>")
		}
		cmdDump(args[1])
	case "list":
		cmdList()
	default:
		os.Exit(cmdRun(args[0]))
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

func setupLogging() {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevelFlag)); err != nil {
		fatal("invalid --log-level %q", logLevelFlag)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// cmdRun loads and runs a program and returns the status to exit with.
func cmdRun(name string) int {
	img, err := program.Resolve(name)
	if err != nil {
		fatal("%v", err)
	}

	events, err := eventlog.Open(eventsFlag)
	if err != nil {
		fatal("opening event log: %v", err)
	}
	defer events.Close()

	m, err := emu.New(img, emu.Config{
		MemSize: memFlag,
		Limit:   limitFlag,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		Events:  events,
		Verbose: verboseFlag,
		Trace:   os.Stderr,
	})
	if err != nil {
		fatal("loading %s: %v", img.Name, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	debugging := scriptFlag != "" || interactiveFlag
	sess := debugger.New(m, os.Stderr)
	switch {
	case scriptFlag != "":
		err = sess.RunFile(ctx, scriptFlag)
	case interactiveFlag:
		err = debugger.Finished(sess.REPL(ctx, os.Stdin))
	default:
		_, err = m.Run(ctx)
	}
	if err != nil {
		fatal("%s: %v", m.Name(), err)
	}

	if !m.Exited() {
		if debugging {
			return 0
		}
		fatal("%s stopped at %#x without exiting", m.Name(), m.Registers().RIP)
	}
	return m.ExitStatus()
}

func cmdDump(name string) {
	img, err := program.Lookup(name)
	if err != nil {
		fatal("%v", err)
	}
	path := outputFlag
	if path == "" {
		path = img.Name
	}
	if err := program.SaveELF(path, img); err != nil {
		fatal("%v", err)
	}
	fmt.Printf("%s: wrote %s (entry %#x)\n", img.Name, path, img.Entry)
}

func cmdList() {
	for _, name := range program.Names() {
		img, err := program.Lookup(name)
		if err != nil {
			fatal("%v", err)
		}
		size := 0
		for _, seg := range img.Segments {
			size += len(seg.Data)
		}
		fmt.Printf("%-8s entry %#x  %d bytes in %d segments\n", name, img.Entry, size, len(img.Segments))
	}
}
