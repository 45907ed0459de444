package eventlog

import "errors"

// Tee fans every entry out to several event logs.
type Tee struct {
	logs []EventLog
}

var _ EventLog = (*Tee)(nil)

// NewTee creates an EventLog writing to all of logs.
func NewTee(logs ...EventLog) *Tee {
	return &Tee{logs: logs}
}

// Write sends the entry to every log, even if earlier ones fail.
func (t *Tee) Write(message string, fields map[string]string) error {
	var errs []error
	for _, l := range t.logs {
		if err := l.Write(message, fields); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every log.
func (t *Tee) Close() error {
	var errs []error
	for _, l := range t.logs {
		if err := l.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
