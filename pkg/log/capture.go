package log

import (
	"fmt"
	"io"
	"sync"

	"github.com/op/go-logging"
)

// Severity values reported in captured records.
const (
	SeverityDebug = iota
	SeverityInfo
	SeverityWarning
	SeverityError
	SeveritySevere
)

// Record codes. Anything logged below warning level is reported as CodeNoError.
const (
	CodeNoError = 0
	CodeSystem  = 1
)

// Entry is a single captured log record.
type Entry struct {
	Code     int
	Severity int
	Module   string
	Message  string
}

// Capture is a go-logging backend that keeps records at or above a minimum
// severity so they can be shipped to a remote peer.
type Capture struct {
	mu          sync.Mutex
	minSeverity int
	limit       int
	entries     []Entry
}

// NewCapture creates a capture backend retaining at most limit entries
// (oldest dropped first). A limit of zero means unbounded.
func NewCapture(minSeverity, limit int) *Capture {
	return &Capture{minSeverity: minSeverity, limit: limit}
}

// Log implements logging.Backend.
func (c *Capture) Log(level logging.Level, calldepth int, rec *logging.Record) error {
	severity := severityOf(level)
	if severity < c.minSeverity {
		return nil
	}

	code := CodeNoError
	if severity >= SeverityWarning {
		code = CodeSystem
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, Entry{
		Code:     code,
		Severity: severity,
		Module:   rec.Module,
		Message:  rec.Message(),
	})
	if c.limit > 0 && len(c.entries) > c.limit {
		c.entries = c.entries[len(c.entries)-c.limit:]
	}
	return nil
}

// Drain returns all captured entries and resets the capture.
func (c *Capture) Drain() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.entries
	c.entries = nil
	return out
}

// Reset discards all captured entries.
func (c *Capture) Reset() {
	c.mu.Lock()
	c.entries = nil
	c.mu.Unlock()
}

// WriteEntries writes entries as "<code> <severity> <message>" lines.
func WriteEntries(w io.Writer, entries []Entry) error {
	for _, e := range entries {
		if _, err := fmt.Fprintf(w, "%d %d %s\n", e.Code, e.Severity, e.Message); err != nil {
			return err
		}
	}
	return nil
}

func severityOf(level logging.Level) int {
	switch level {
	case logging.CRITICAL:
		return SeveritySevere
	case logging.ERROR:
		return SeverityError
	case logging.WARNING:
		return SeverityWarning
	case logging.NOTICE, logging.INFO:
		return SeverityInfo
	default:
		return SeverityDebug
	}
}
