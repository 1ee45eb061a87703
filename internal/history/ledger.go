// Package history keeps a fixed-size, most-recent-first record of past runs.
package history

import (
	"sync"
	"time"
)

// Capacity is the maximum number of records retained by a [Ledger].
const Capacity = 10

// TimestampLayout is the wire format of [RunRecord.Timestamp].
const TimestampLayout = "2006-01-02 15:04:05"

// Status is the overall outcome of a recorded run.
type Status string

const (
	StatusSuccess Status = "Success"
	StatusPartial Status = "Partial"
	StatusFailed  Status = "Failed"
)

// RunRecord summarizes one completed workflow run. Records are immutable
// once stored.
type RunRecord struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Status    Status `json:"status"`
	Details   string `json:"details"`
}

// FormatTimestamp renders t in [TimestampLayout].
func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// Ledger stores up to [Capacity] records, newest first. It is safe for
// concurrent use by the scheduler loop and manual-trigger handlers.
type Ledger struct {
	mu      sync.RWMutex
	records []RunRecord
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{records: make([]RunRecord, 0, Capacity+1)}
}

// Record inserts rec at the head and evicts the oldest records beyond [Capacity].
func (l *Ledger) Record(rec RunRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.records = append(l.records, RunRecord{})
	copy(l.records[1:], l.records)
	l.records[0] = rec
	if len(l.records) > Capacity {
		l.records = l.records[:Capacity]
	}
}

// List returns a copy of the records, newest first.
func (l *Ledger) List() []RunRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]RunRecord, len(l.records))
	copy(out, l.records)
	return out
}

// Len returns the number of stored records.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}
