package domain

import "time"

// Alert is one entry of the bounded dashboard alert ring.
type Alert struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	IP        string    `json:"ip"`
	Type      string    `json:"type"`
	Action    string    `json:"action"`
}
