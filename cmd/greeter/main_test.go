package main

import (
	"bytes"
	"errors"
	"io"
	"os"
	"os/exec"
	"testing"

	"github.com/creack/pty"
)

const helperEnv = "GREETER_RUN_MAIN"

func TestMain(m *testing.M) {
	if os.Getenv(helperEnv) == "1" {
		main()
		return
	}
	os.Exit(m.Run())
}

// greeterCmd re-executes the test binary as the greeter program.
func greeterCmd(t *testing.T, args ...string) *exec.Cmd {
	t.Helper()
	cmd := exec.Command(os.Args[0], args...)
	cmd.Env = append(os.Environ(), helperEnv+"=1")
	return cmd
}

func runGreeter(t *testing.T, args ...string) (stdout, stderr string, code int) {
	t.Helper()
	cmd := greeterCmd(t, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb
	err := cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return out.String(), errb.String(), exitErr.ExitCode()
	}
	if err != nil {
		t.Fatalf("run greeter: %v", err)
	}
	return out.String(), errb.String(), 0
}

func TestGreeter_OutputAndStatus(t *testing.T) {
	stdout, stderr, code := runGreeter(t)
	if stdout != "Hello, World!\n" {
		t.Fatalf("stdout = %q, want %q", stdout, "Hello, World!\n")
	}
	if stderr != "" {
		t.Fatalf("unexpected stderr %q", stderr)
	}
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
}

func TestGreeter_IgnoresArguments(t *testing.T) {
	stdout, _, code := runGreeter(t, "--loud", "extra")
	if stdout != "Hello, World!\n" || code != 0 {
		t.Fatalf("got (%q, %d), want (%q, 0)", stdout, code, "Hello, World!\n")
	}
}

func TestGreeter_ClosedStdoutStillExitsZero(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	r.Close()

	cmd := greeterCmd(t)
	cmd.Stdout = w
	err = cmd.Run()
	w.Close()
	if err != nil {
		t.Fatalf("expected exit 0 with broken stdout, got %v", err)
	}
}

func TestGreeter_Parallel(t *testing.T) {
	for i := range 8 {
		t.Run("run", func(t *testing.T) {
			t.Parallel()
			stdout, _, code := runGreeter(t)
			if stdout != "Hello, World!\n" || code != 0 {
				t.Fatalf("run %d: got (%q, %d)", i, stdout, code)
			}
		})
	}
}

func TestGreeter_Terminal(t *testing.T) {
	cmd := greeterCmd(t)
	ptmx, err := pty.Start(cmd)
	if err != nil {
		t.Skipf("pty unavailable: %v", err)
	}
	defer ptmx.Close()

	// Linux returns EIO once the child side closes.
	out, _ := io.ReadAll(ptmx)
	if err := cmd.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if want := "Hello, World!\r\n"; string(out) != want {
		t.Fatalf("terminal output = %q, want %q", out, want)
	}
}
