package domain

import "time"

// InteractionRecord is one decoy touch from the append-only honeypot log.
// The decoy listeners write these; only the correlation engine and the
// dashboard tail read them.
type InteractionRecord struct {
	Timestamp time.Time `json:"timestamp"`
	SourceIP  string    `json:"source_ip"`
	Service   string    `json:"service"`
	Username  string    `json:"username,omitempty"`
	Password  string    `json:"password,omitempty"`
	Metadata  string    `json:"metadata,omitempty"`
}
