// Package ports defines the boundaries between the defense core and its
// adapters. Services accept these interfaces and return concrete structs.
package ports

import (
	"context"
	"time"

	"github.com/lcalzada-xor/trapwire/internal/core/domain"
)

// PresenceEvidence is one positive sighting from a presence source. IP and
// Hostname are filled only when the source knows them.
type PresenceEvidence struct {
	MAC      string
	IP       string
	Hostname string
}

// PresenceSource is one leg of the presence trinity. A failing source returns
// an error and contributes nothing that cycle; it must never panic the loop.
type PresenceSource interface {
	Name() string
	Poll(ctx context.Context) ([]PresenceEvidence, error)
}

// Enforcer issues idempotent firewall and wireless mutations. Every additive
// operation deletes any matching prior rule first, so the loop may re-assert
// policy each cycle.
type Enforcer interface {
	Redirect(ctx context.Context, ip string) error
	Isolate(ctx context.Context, ip string) error
	BlockMAC(ctx context.Context, mac string) error
	QuarantineMAC(ctx context.Context, ip, mac string) error
	Disconnect(ctx context.Context, mac string) error
	Release(ctx context.Context, ip, mac string) error
	Lockdown(ctx context.Context) error
}

// Observation is one behavior-log row: the detector's training food.
type Observation struct {
	Timestamp   time.Time
	IP          string
	MAC         string
	PacketRate  float64
	Packets     int
	UniquePorts int
	Score       int
	Label       int
}

// BehaviorLog appends per-cycle observations and serves them back for
// training.
type BehaviorLog interface {
	Append(obs Observation) error
	Load() ([]Observation, error)
}

// Verdict is the detector's answer for one feature point.
type Verdict struct {
	Anomalous bool
	Score     int
	Reasons   []string
}

// Detector classifies one (packet rate, unique ports) point. Implementations
// must be safe for concurrent Classify calls and may retrain in the
// background.
type Detector interface {
	Classify(packetRate float64, uniquePorts int) Verdict
	Observe(obs Observation)
}

// InteractionSource serves recent decoy-interaction records, newest last.
type InteractionSource interface {
	Recent(limit int) ([]domain.InteractionRecord, error)
}

// InteractionSink appends one decoy-interaction record to the audit trail.
type InteractionSink interface {
	AppendInteraction(rec domain.InteractionRecord) error
}

// RegistryStore persists the device registry snapshot.
type RegistryStore interface {
	Save(devices map[string]domain.Device) error
	Load() (map[string]domain.Device, error)
}

// AuditRepository persists audit history rows for the dashboard.
type AuditRepository interface {
	SaveAudit(ctx context.Context, entry domain.AuditEntry) error
	GetAudits(ctx context.Context, limit int) ([]domain.AuditEntry, error)
}

// UserRepository stores dashboard accounts.
type UserRepository interface {
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	SaveUser(ctx context.Context, user *domain.User) error
}

// AuthService validates dashboard sessions.
type AuthService interface {
	Login(ctx context.Context, username, password string) (string, *domain.User, error)
	ValidateToken(ctx context.Context, token string) (*domain.User, error)
	Logout(ctx context.Context, token string)
}

// DefenseService is the surface the dashboard talks to. The loop engine
// implements it.
type DefenseService interface {
	Devices(ctx context.Context) []domain.DeviceView
	Alerts(ctx context.Context) []domain.Alert
	Interactions(ctx context.Context, limit int) ([]domain.InteractionRecord, error)
	ManualAction(ctx context.Context, action string, ip string, actor string) error
	Lockdown(ctx context.Context, actor string) error
}
