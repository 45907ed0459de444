package eventlog

import (
	"errors"
	"log/slog"

	"github.com/coreos/go-systemd/v22/journal"
)

// ErrJournalUnavailable is returned when no journald socket is reachable.
var ErrJournalUnavailable = errors.New("journald socket not available")

// Journal sends entries to systemd-journald.
type Journal struct{}

var _ EventLog = Journal{}

// OpenJournal returns a Journal if journald is accepting entries.
func OpenJournal() (Journal, error) {
	if !journal.Enabled() {
		return Journal{}, ErrJournalUnavailable
	}
	return Journal{}, nil
}

// Write sends an entry to journald (fire-and-forget).
func (Journal) Write(message string, fields map[string]string) error {
	slog.Debug("journal eventlog writing", "message", truncate(message, 50), "event", fields[FieldEvent])
	return journal.Send(message, journal.PriInfo, fields)
}

func (Journal) Close() error { return nil }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
