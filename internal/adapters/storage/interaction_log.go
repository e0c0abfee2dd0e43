package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/lcalzada-xor/trapwire/internal/core/domain"
	"github.com/lcalzada-xor/trapwire/internal/core/ports"
)

var interactionHeader = []string{"timestamp", "source_ip", "service", "username", "password", "metadata"}

// InteractionCSV reads and appends the decoy-interaction log. The decoy
// listeners normally write it; the in-process bridge appends through here so
// the file stays the single audit trail.
type InteractionCSV struct {
	mu   sync.Mutex
	path string
}

// NewInteractionCSV uses the given file.
func NewInteractionCSV(path string) *InteractionCSV {
	return &InteractionCSV{path: path}
}

// Recent returns up to limit of the newest records, oldest first. A missing
// file yields no records and no error.
func (l *InteractionCSV) Recent(limit int) ([]domain.InteractionRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open interaction log: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var all []domain.InteractionRecord
	for {
		row, err := r.Read()
		if err != nil {
			break
		}
		if len(row) < 3 || row[0] == "timestamp" {
			continue
		}
		rec := domain.InteractionRecord{SourceIP: row[1], Service: row[2]}
		if ts, err := time.Parse(timeLayout, row[0]); err == nil {
			rec.Timestamp = ts
		}
		if len(row) > 3 {
			rec.Username = row[3]
		}
		if len(row) > 4 {
			rec.Password = row[4]
		}
		if len(row) > 5 {
			rec.Metadata = row[5]
		}
		all = append(all, rec)
	}

	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

// AppendInteraction adds one record to the audit trail.
func (l *InteractionCSV) AppendInteraction(rec domain.InteractionRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	writeHeader := false
	if _, err := os.Stat(l.path); os.IsNotExist(err) {
		writeHeader = true
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open interaction log: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(interactionHeader); err != nil {
			return err
		}
	}
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	if err := w.Write([]string{ts.Format(timeLayout), rec.SourceIP, rec.Service, rec.Username, rec.Password, rec.Metadata}); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

var (
	_ ports.InteractionSource = (*InteractionCSV)(nil)
	_ ports.InteractionSink   = (*InteractionCSV)(nil)
)
