package eventlog

import (
	"context"
	"log/slog"
	"maps"
	"slices"
)

// Slog writes entries as structured log records.
type Slog struct {
	logger *slog.Logger
}

var _ EventLog = (*Slog)(nil)

// NewSlog logs through logger, or the default logger when nil.
func NewSlog(logger *slog.Logger) *Slog {
	return &Slog{logger: logger}
}

func (l *Slog) Write(message string, fields map[string]string) error {
	logger := l.logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := make([]slog.Attr, 0, len(fields))
	for _, k := range slices.Sorted(maps.Keys(fields)) {
		attrs = append(attrs, slog.String(k, fields[k]))
	}
	logger.LogAttrs(context.Background(), slog.LevelInfo, message, attrs...)
	return nil
}

func (l *Slog) Close() error { return nil }
