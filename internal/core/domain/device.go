package domain

import (
	"strings"
	"time"
)

// DefaultTrust is the score every newly observed device starts with.
const DefaultTrust = 50

// Flags are the three independent protection markers carried by a device.
// Isolated implies Redirected (containment subsumes deception); the policy
// engine maintains that invariant whenever it sets Isolated.
type Flags struct {
	Redirected  bool `json:"redirected"`
	Isolated    bool `json:"isolated"`
	Quarantined bool `json:"quarantined"`
}

// Device is the registry entry for a station. The MAC is the identity; the IP
// may change across DHCP renewals and is informational.
type Device struct {
	MAC        string    `json:"mac"`
	IP         string    `json:"ip"`
	Hostname   string    `json:"hostname"`
	FirstSeen  time.Time `json:"first_seen"`
	LastSeen   time.Time `json:"last_seen"`
	TrustScore int       `json:"trust_score"`
	Flags      Flags     `json:"flags"`
}

// NewDevice creates a registry entry in its initial probationary state.
func NewDevice(mac string, now time.Time) Device {
	return Device{
		MAC:        NormalizeMAC(mac),
		IP:         "",
		Hostname:   "",
		FirstSeen:  now,
		LastSeen:   now,
		TrustScore: DefaultTrust,
		Flags:      Flags{Quarantined: true},
	}
}

// NormalizeMAC lowercases a MAC address so registry keys are canonical.
func NormalizeMAC(mac string) string {
	return strings.ToLower(strings.TrimSpace(mac))
}

// ClampTrust bounds a trust score to [0,100].
func ClampTrust(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// Age returns the time elapsed since the device was first observed.
func (d Device) Age(now time.Time) time.Duration {
	return now.Sub(d.FirstSeen)
}

// Offline reports whether the device has produced no presence evidence for
// longer than the threshold. Packet traffic does not count as presence.
func (d Device) Offline(now time.Time, threshold time.Duration) bool {
	return now.Sub(d.LastSeen) > threshold
}

// Status is the dashboard projection of a device's state.
type Status string

const (
	StatusOffline     Status = "OFFLINE"
	StatusContained   Status = "CONTAINED"
	StatusDeceived    Status = "DECEIVED"
	StatusQuarantined Status = "NEW/QUARANTINED"
	StatusSuspicious  Status = "SUSPICIOUS"
	StatusIdle        Status = "IDLE"
	StatusOnline      Status = "ONLINE"
)

// ProjectStatus derives the UI-visible status in priority order. anomalous and
// packets describe the cycle that just closed.
func (d Device) ProjectStatus(offline bool, anomalous bool, packets int) Status {
	switch {
	case offline:
		return StatusOffline
	case d.Flags.Isolated:
		return StatusContained
	case d.Flags.Redirected:
		return StatusDeceived
	case d.Flags.Quarantined:
		return StatusQuarantined
	case anomalous:
		return StatusSuspicious
	case packets == 0:
		return StatusIdle
	default:
		return StatusOnline
	}
}

// DeviceView is the dashboard row published for every known device each cycle.
type DeviceView struct {
	IP         string  `json:"ip"`
	MAC        string  `json:"mac"`
	Hostname   string  `json:"hostname"`
	Packets    int     `json:"packets"`
	Ports      int     `json:"ports"`
	Status     Status  `json:"status"`
	TrustScore int     `json:"trust_score"`
	LastSeen   float64 `json:"last_seen"` // seconds since last presence evidence
	Flags      Flags   `json:"flags"`
}
