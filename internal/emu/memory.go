package emu

import (
	"encoding/binary"
	"fmt"
)

// DefaultMemSize is the size of the flat address space starting at 0.
const DefaultMemSize = 8 * 1024 * 1024

// MemoryError reports an access outside the mapped address space.
type MemoryError struct {
	Addr uint64
	Len  uint64
}

func (e *MemoryError) Error() string {
	return fmt.Sprintf("memory access out of range: %#x (+%d)", e.Addr, e.Len)
}

// Memory is a flat byte-addressed space mapped from address 0.
type Memory struct {
	data []byte
}

// NewMemory maps size bytes, all zero.
func NewMemory(size uint64) *Memory {
	return &Memory{data: make([]byte, size)}
}

// Size returns the number of mapped bytes.
func (m *Memory) Size() uint64 { return uint64(len(m.data)) }

func (m *Memory) check(addr, n uint64) error {
	if addr > m.Size() || n > m.Size()-addr {
		return &MemoryError{Addr: addr, Len: n}
	}
	return nil
}

// Read returns a copy of n bytes at addr.
func (m *Memory) Read(addr, n uint64) ([]byte, error) {
	if err := m.check(addr, n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, m.data[addr:addr+n])
	return out, nil
}

// Write copies b to addr.
func (m *Memory) Write(addr uint64, b []byte) error {
	if err := m.check(addr, uint64(len(b))); err != nil {
		return err
	}
	copy(m.data[addr:], b)
	return nil
}

// ReadU16 reads a little-endian 16-bit value.
func (m *Memory) ReadU16(addr uint64) (uint16, error) {
	b, err := m.Read(addr, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// fetch returns up to n bytes at addr without copying, clamped to the end
// of memory.
func (m *Memory) fetch(addr, n uint64) ([]byte, error) {
	if addr >= m.Size() {
		return nil, &MemoryError{Addr: addr, Len: 1}
	}
	end := min(addr+n, m.Size())
	return m.data[addr:end], nil
}
