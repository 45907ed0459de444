package main

import (
	"bytes"
	"errors"
	"os"
	"os/exec"
	"testing"
)

const helperEnv = "COUNTER_RUN_MAIN"

func TestMain(m *testing.M) {
	if os.Getenv(helperEnv) == "1" {
		main()
		return
	}
	os.Exit(m.Run())
}

func runCounter(t *testing.T) (stdout string, code int) {
	t.Helper()
	cmd := exec.Command(os.Args[0])
	cmd.Env = append(os.Environ(), helperEnv+"=1")
	var out bytes.Buffer
	cmd.Stdout = &out
	err := cmd.Run()
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected non-zero exit, got %v", err)
	}
	return out.String(), exitErr.ExitCode()
}

func TestCounter_ExitsWithFive(t *testing.T) {
	stdout, code := runCounter(t)
	if stdout != "" {
		t.Fatalf("stdout = %q, want empty", stdout)
	}
	if code != 5 {
		t.Fatalf("exit code = %d, want 5", code)
	}
}

func TestCounter_Repeatable(t *testing.T) {
	for i := range 3 {
		if _, code := runCounter(t); code != 5 {
			t.Fatalf("run %d: exit code = %d, want 5", i, code)
		}
	}
}

func TestCounter_Parallel(t *testing.T) {
	for range 8 {
		t.Run("run", func(t *testing.T) {
			t.Parallel()
			if stdout, code := runCounter(t); stdout != "" || code != 5 {
				t.Fatalf("got (%q, %d), want (\"\", 5)", stdout, code)
			}
		})
	}
}
