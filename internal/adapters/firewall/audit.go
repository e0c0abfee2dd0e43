package firewall

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// AuditLog appends one human-readable line per enforcement action. It is both
// the forensic record and an input to evidence archives.
type AuditLog struct {
	mu   sync.Mutex
	path string
}

// NewAuditLog writes to the given file, creating it on first append.
func NewAuditLog(path string) *AuditLog {
	return &AuditLog{path: path}
}

// Append records one action. Failures are returned but callers treat them as
// best-effort: a lost audit line must never stop an enforcement.
func (a *AuditLog) Append(action, detail string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := os.OpenFile(a.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	line := fmt.Sprintf("[%s] %s: %s\n", time.Now().Format("2006-01-02 15:04:05"), action, detail)
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}

// Path returns the audit file location (archived as evidence).
func (a *AuditLog) Path() string { return a.path }
