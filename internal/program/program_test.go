package program

import (
	"bytes"
	"debug/elf"
	"errors"
	"io/fs"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"
	"testing"
)

func TestLookup(t *testing.T) {
	for _, name := range []string{"greeter", "counter"} {
		img, err := Lookup(name)
		if err != nil {
			t.Fatalf("Lookup(%q): %v", name, err)
		}
		if img.Name != name {
			t.Errorf("Name = %q, want %q", img.Name, name)
		}
		if img.Entry != TextAddr {
			t.Errorf("%s entry = %#x, want %#x", name, img.Entry, TextAddr)
		}
	}
	if _, err := Lookup("nope"); err == nil {
		t.Fatal("expected error for unknown program")
	}
}

func TestNames(t *testing.T) {
	if got := Names(); !slices.Equal(got, []string{"counter", "greeter"}) {
		t.Fatalf("Names() = %v", got)
	}
}

func TestGreeterDataSegment(t *testing.T) {
	img := Greeter()
	if len(img.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(img.Segments))
	}
	data := img.Segments[1]
	if data.Addr != DataAddr || string(data.Data) != "Hello, World!\n" {
		t.Fatalf("data segment = %#x %q", data.Addr, data.Data)
	}
	if img.Size() != DataAddr+14 {
		t.Fatalf("Size() = %#x", img.Size())
	}
}

func TestLookupReturnsFreshImages(t *testing.T) {
	a, _ := Lookup("greeter")
	a.Segments[1].Data[0] = 'J'
	b, _ := Lookup("greeter")
	if b.Segments[1].Data[0] != 'H' {
		t.Fatal("built-in image shared mutable data")
	}
}

func TestELFRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteELF(&buf, Greeter()); err != nil {
		t.Fatalf("WriteELF: %v", err)
	}

	f, err := elf.NewFile(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("debug/elf rejected output: %v", err)
	}
	if f.Type != elf.ET_EXEC || f.Machine != elf.EM_X86_64 {
		t.Fatalf("type/machine = %v/%v", f.Type, f.Machine)
	}
	for _, p := range f.Progs {
		if p.Off%pageSize != p.Vaddr%pageSize {
			t.Errorf("segment %#x offset %#x not congruent", p.Vaddr, p.Off)
		}
	}

	img, err := ReadELF(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("ReadELF: %v", err)
	}
	want := Greeter()
	if img.Entry != want.Entry || len(img.Segments) != len(want.Segments) {
		t.Fatalf("got entry %#x with %d segments", img.Entry, len(img.Segments))
	}
	for i := range want.Segments {
		g, w := img.Segments[i], want.Segments[i]
		if g.Addr != w.Addr || g.Flags != w.Flags || !bytes.Equal(g.Data, w.Data) {
			t.Errorf("segment %d mismatch: got %#x/%d/% x", i, g.Addr, g.Flags, g.Data)
		}
	}
}

func TestReadELF_Errors(t *testing.T) {
	if _, err := ReadELF(bytes.NewReader([]byte("not an elf file at all"))); err == nil {
		t.Fatal("expected error for garbage input")
	}
	if err := WriteELF(&bytes.Buffer{}, &Image{}); !errors.Is(err, ErrNoSegments) {
		t.Fatalf("WriteELF(empty) = %v, want ErrNoSegments", err)
	}
}

func TestResolve(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "count.elf")
	if err := SaveELF(path, Counter()); err != nil {
		t.Fatalf("SaveELF: %v", err)
	}

	img, err := Resolve(path)
	if err != nil {
		t.Fatalf("Resolve(file): %v", err)
	}
	if img.Name != "count" {
		t.Errorf("Name = %q, want count", img.Name)
	}
	if _, err := Resolve("greeter"); err != nil {
		t.Fatalf("Resolve(greeter): %v", err)
	}
	if _, err := Resolve(filepath.Join(dir, "missing")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

// TestNativeExecution runs the written executables on the host kernel.
func TestNativeExecution(t *testing.T) {
	if runtime.GOOS != "linux" || runtime.GOARCH != "amd64" {
		t.Skipf("native execution needs linux/amd64, have %s/%s", runtime.GOOS, runtime.GOARCH)
	}
	dir := t.TempDir()

	greeterPath := filepath.Join(dir, "greeter")
	if err := SaveELF(greeterPath, Greeter()); err != nil {
		t.Fatalf("SaveELF: %v", err)
	}
	out, err := exec.Command(greeterPath).Output()
	if errors.Is(err, fs.ErrPermission) {
		t.Skipf("temp dir not executable: %v", err)
	}
	if err != nil {
		t.Fatalf("greeter: %v", err)
	}
	if string(out) != "Hello, World!\n" {
		t.Fatalf("greeter stdout = %q", out)
	}

	counterPath := filepath.Join(dir, "counter")
	if err := SaveELF(counterPath, Counter()); err != nil {
		t.Fatalf("SaveELF: %v", err)
	}
	out, err = exec.Command(counterPath).Output()
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) || exitErr.ExitCode() != 5 {
		t.Fatalf("counter: err=%v", err)
	}
	if len(out) != 0 {
		t.Fatalf("counter stdout = %q", out)
	}
}
