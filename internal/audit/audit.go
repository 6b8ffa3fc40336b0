/**
 * @description
 * This package provides the append-only audit log for security-relevant
 * events. Entries are kept in a capped in-memory ring and can additionally be
 * mirrored to a JSONL file sink on a best-effort basis.
 *
 * @notes
 * - The log re-checks every payload against the forbidden-field list before
 *   storing it, as defense in depth. Offending fields are dropped, never
 *   truncated into the stored entry.
 * - Writes to the file sink must never impact the caller; errors are ignored.
 */
package audit

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

// Event types recorded by the service.
const (
	EventWalletProvisioned = "WALLET_PROVISIONED"
	EventWalletSkipped     = "WALLET_SKIPPED"
	EventProvisionFailed   = "PROVISION_FAILED"
	EventSecurityViolation = "SECURITY_VIOLATION"
	EventPINSetup          = "PIN_SETUP"
	EventPINVerified       = "PIN_VERIFIED"
	EventPINRejected       = "PIN_REJECTED"
	EventPINLocked         = "PIN_LOCKED"
	EventBiometricEnabled  = "BIOMETRIC_ENABLED"
	EventBiometricDisabled = "BIOMETRIC_DISABLED"
	EventSessionLocked     = "SESSION_LOCKED"
)

// Entry is one recorded audit event.
type Entry struct {
	Time      time.Time      `json:"time"`
	EventType string         `json:"event_type"`
	Details   map[string]any `json:"details,omitempty"`
}

// Scrubber removes forbidden fields from a payload before it is stored.
type Scrubber func(details map[string]any) map[string]any

// Sink receives every recorded entry, typically for file persistence.
type Sink interface {
	Write(entry Entry) error
}

// Log is an append-only, capped audit log. The zero cap defaults to 100
// retained entries; older entries are evicted first.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	max     int
	scrub   Scrubber
	sink    Sink
	now     func() time.Time
}

// NewLog creates an audit log retaining at most max entries.
func NewLog(max int, scrub Scrubber, sink Sink) *Log {
	if max <= 0 {
		max = 100
	}
	return &Log{max: max, scrub: scrub, sink: sink, now: time.Now}
}

// Record appends one event. Details pass through the scrubber first so that a
// forbidden value can never be stored, whatever the caller handed in.
func (l *Log) Record(eventType string, details map[string]any) {
	if l.scrub != nil {
		details = l.scrub(details)
	}
	entry := Entry{Time: l.now(), EventType: eventType, Details: details}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	if len(l.entries) > l.max {
		l.entries = l.entries[len(l.entries)-l.max:]
	}
	if l.sink != nil {
		// Best-effort persistence; ignore errors to avoid impacting callers.
		_ = l.sink.Write(entry)
	}
}

// List returns a copy of all retained entries, oldest first.
func (l *Log) List() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// ListLimit returns at most limit of the newest retained entries.
func (l *Log) ListLimit(limit int) []Entry {
	if limit <= 0 || limit > l.max {
		limit = l.max
	}
	all := l.List()
	if len(all) <= limit {
		return all
	}
	return all[len(all)-limit:]
}

// FileSink appends audit entries as JSONL.
type FileSink struct {
	mu   sync.Mutex
	file *os.File
}

// NewFileSink opens (or creates) the JSONL file at path. An empty path yields
// a nil sink, which the log treats as "in-memory only".
func NewFileSink(path string) (*FileSink, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, err
	}
	return &FileSink{file: f}, nil
}

func (s *FileSink) Write(entry Entry) error {
	if s == nil || s.file == nil {
		return nil
	}
	b, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.file.Write(append(b, '\n'))
	return err
}
