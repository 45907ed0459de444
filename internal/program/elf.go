package program

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const pageSize = 0x1000

const (
	ehdrSize = 64
	phdrSize = 56
)

// ErrNoSegments is returned for ELF files without PT_LOAD program headers.
var ErrNoSegments = errors.New("no loadable segments")

// WriteELF writes img as a static little-endian x86-64 executable. Each
// segment becomes one PT_LOAD entry whose file offset is congruent to its
// address modulo the page size.
func WriteELF(w io.Writer, img *Image) error {
	if len(img.Segments) == 0 {
		return ErrNoSegments
	}

	hdr := elf.Header64{
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(elf.EM_X86_64),
		Version:   uint32(elf.EV_CURRENT),
		Entry:     img.Entry,
		Phoff:     ehdrSize,
		Ehsize:    ehdrSize,
		Phentsize: phdrSize,
		Phnum:     uint16(len(img.Segments)),
	}
	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	hdr.Ident[elf.EI_OSABI] = byte(elf.ELFOSABI_NONE)

	cursor := uint64(ehdrSize + phdrSize*len(img.Segments))
	progs := make([]elf.Prog64, len(img.Segments))
	for i, s := range img.Segments {
		off := alignUp(cursor, pageSize) + s.Addr%pageSize
		progs[i] = elf.Prog64{
			Type:   uint32(elf.PT_LOAD),
			Flags:  s.Flags,
			Off:    off,
			Vaddr:  s.Addr,
			Paddr:  s.Addr,
			Filesz: uint64(len(s.Data)),
			Memsz:  uint64(len(s.Data)),
			Align:  pageSize,
		}
		cursor = off + uint64(len(s.Data))
	}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	for i := range progs {
		if err := binary.Write(&buf, binary.LittleEndian, &progs[i]); err != nil {
			return fmt.Errorf("encode program header %d: %w", i, err)
		}
	}
	for i, s := range img.Segments {
		buf.Write(make([]byte, progs[i].Off-uint64(buf.Len())))
		buf.Write(s.Data)
	}

	_, err := w.Write(buf.Bytes())
	return err
}

// SaveELF writes img to path as an executable file.
func SaveELF(path string, img *Image) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0755)
	if err != nil {
		return err
	}
	if err := WriteELF(f, img); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// ReadELF parses an x86-64 ELF64 executable into an Image.
func ReadELF(r io.ReaderAt) (*Image, error) {
	f, err := elf.NewFile(r)
	if err != nil {
		return nil, fmt.Errorf("parse elf: %w", err)
	}
	defer f.Close()

	if f.Class != elf.ELFCLASS64 {
		return nil, fmt.Errorf("unsupported elf class %v", f.Class)
	}
	if f.Machine != elf.EM_X86_64 {
		return nil, fmt.Errorf("unsupported machine %v", f.Machine)
	}

	img := &Image{Entry: f.Entry}
	for _, p := range f.Progs {
		if p.Type != elf.PT_LOAD || p.Memsz == 0 {
			continue
		}
		if p.Filesz > p.Memsz {
			return nil, fmt.Errorf("segment at %#x: file size %d exceeds memory size %d", p.Vaddr, p.Filesz, p.Memsz)
		}
		data := make([]byte, p.Memsz)
		if _, err := p.ReadAt(data[:p.Filesz], 0); err != nil && err != io.EOF {
			return nil, fmt.Errorf("read segment at %#x: %w", p.Vaddr, err)
		}
		img.Segments = append(img.Segments, Segment{
			Addr:  p.Vaddr,
			Data:  data,
			Flags: uint32(p.Flags),
		})
	}
	if len(img.Segments) == 0 {
		return nil, ErrNoSegments
	}
	return img, nil
}

// LoadELF reads the executable at path. The image is named after the file.
func LoadELF(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := ReadELF(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	img.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return img, nil
}

// Resolve returns the built-in image called name, or loads name as an ELF
// file when no built-in matches.
func Resolve(name string) (*Image, error) {
	if IsBuiltin(name) {
		return Lookup(name)
	}
	if _, err := os.Stat(name); err != nil {
		return nil, fmt.Errorf("unknown program %q (known: %v)", name, Names())
	}
	return LoadELF(name)
}

func alignUp(n, align uint64) uint64 {
	return (n + align - 1) &^ (align - 1)
}
