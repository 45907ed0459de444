package eventlog

import (
	"fmt"
	"maps"
	"sync"
)

// Entry is one recorded write.
type Entry struct {
	Message string
	Fields  map[string]string
}

// Fake is an in-memory EventLog for unit tests.
type Fake struct {
	mu      sync.Mutex
	entries []Entry
	closed  bool
}

var _ EventLog = (*Fake)(nil)

// NewFake creates a Fake with no entries.
func NewFake() *Fake {
	return &Fake{}
}

func (f *Fake) Write(message string, fields map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return fmt.Errorf("event log closed")
	}
	f.entries = append(f.entries, Entry{Message: message, Fields: maps.Clone(fields)})
	return nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Entries returns a copy of everything written so far.
func (f *Fake) Entries() []Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Entry, len(f.entries))
	copy(out, f.entries)
	return out
}

// Events returns the entries whose ASM_EVENT field equals kind.
func (f *Fake) Events(kind string) []Entry {
	var out []Entry
	for _, e := range f.Entries() {
		if e.Fields[FieldEvent] == kind {
			out = append(out, e)
		}
	}
	return out
}
