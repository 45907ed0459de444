// Package program holds the machine-code images of the greeter and counter
// programs and converts them to and from static ELF64 executables.
package program

import (
	"fmt"
	"sort"

	"github.com/mbrock/asmhello/internal/greeter"
)

// Segment permission flags.
const (
	FlagX uint32 = 1 << iota
	FlagW
	FlagR
)

// Load addresses used by both built-in images.
const (
	TextAddr uint64 = 0x401000
	DataAddr uint64 = 0x402000
)

// Segment is a contiguous block of bytes loaded at Addr.
type Segment struct {
	Addr  uint64
	Data  []byte
	Flags uint32
}

// End returns the first address past the segment.
func (s Segment) End() uint64 { return s.Addr + uint64(len(s.Data)) }

// Image is a loadable program.
type Image struct {
	Name     string
	Entry    uint64
	Segments []Segment
}

// Size returns the highest address any segment occupies.
func (img *Image) Size() uint64 {
	var end uint64
	for _, s := range img.Segments {
		end = max(end, s.End())
	}
	return end
}

// Greeter returns the image that writes the greeting and exits 0.
func Greeter() *Image {
	text := []byte{
		0xb8, 0x01, 0x00, 0x00, 0x00,                               // mov eax, 1
		0xbf, 0x01, 0x00, 0x00, 0x00,                               // mov edi, 1
		0x48, 0xbe, 0x00, 0x20, 0x40, 0x00, 0x00, 0x00, 0x00, 0x00, // movabs rsi, msg
		0xba, byte(len(greeter.Message)), 0x00, 0x00, 0x00,         // mov edx, len
		0x0f, 0x05,                                                 // syscall
		0xb8, 0x3c, 0x00, 0x00, 0x00,                               // mov eax, 60
		0x48, 0x31, 0xff,                                           // xor rdi, rdi
		0x0f, 0x05,                                                 // syscall
	}
	return &Image{
		Name:  "greeter",
		Entry: TextAddr,
		Segments: []Segment{
			{Addr: TextAddr, Data: text, Flags: FlagR | FlagX},
			{Addr: DataAddr, Data: []byte(greeter.Message), Flags: FlagR},
		},
	}
}

// Counter returns the image that counts rdi up to 5 and exits with it.
func Counter() *Image {
	text := []byte{
		0x48, 0x31, 0xff,             // xor rdi, rdi
		0x48, 0xff, 0xc7,             // loop: inc rdi
		0x48, 0x83, 0xff, 0x05,       // cmp rdi, 5
		0x75, 0xf7,                   // jne loop
		0xb8, 0x3c, 0x00, 0x00, 0x00, // mov eax, 60
		0x0f, 0x05,                   // syscall
	}
	return &Image{
		Name:  "counter",
		Entry: TextAddr,
		Segments: []Segment{
			{Addr: TextAddr, Data: text, Flags: FlagR | FlagX},
		},
	}
}

var builtins = map[string]func() *Image{
	"greeter": Greeter,
	"counter": Counter,
}

// Names lists the built-in images in sorted order.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns a fresh copy of the named built-in image.
func Lookup(name string) (*Image, error) {
	build, ok := builtins[name]
	if !ok {
		return nil, fmt.Errorf("unknown program %q (known: %v)", name, Names())
	}
	return build(), nil
}

// IsBuiltin reports whether name refers to a built-in image.
func IsBuiltin(name string) bool {
	_, ok := builtins[name]
	return ok
}
