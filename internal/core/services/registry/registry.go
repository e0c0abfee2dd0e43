// Package registry holds the canonical in-memory device registry, keyed by
// MAC. Devices are never deleted; long-absent stations remain as history.
package registry

import (
	"log"
	"sync"
	"time"

	"github.com/lcalzada-xor/trapwire/internal/core/domain"
	"github.com/lcalzada-xor/trapwire/internal/core/ports"
)

// Registry implements the device registry. All methods take the internal
// lock; callers needing a consistent multi-device view use All (a copy taken
// under the lock) or the engine's cycle lock above this layer.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]domain.Device
	store   ports.RegistryStore
}

// New creates an empty registry backed by the given snapshot store. A nil
// store keeps the registry memory-only (used by tests).
func New(store ports.RegistryStore) *Registry {
	return &Registry{
		devices: make(map[string]domain.Device),
		store:   store,
	}
}

// Restore loads the snapshot from disk. Missing or corrupt snapshots start
// the registry empty; that is not an error.
func (r *Registry) Restore() {
	if r.store == nil {
		return
	}
	loaded, err := r.store.Load()
	if err != nil {
		log.Printf("Registry: starting empty, snapshot not usable: %v", err)
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for mac, d := range loaded {
		r.devices[domain.NormalizeMAC(mac)] = d
	}
	log.Printf("Registry: restored %d devices", len(loaded))
}

// Persist rewrites the snapshot. In-memory state stays authoritative on
// failure; the next cycle retries.
func (r *Registry) Persist() {
	if r.store == nil {
		return
	}
	r.mu.RLock()
	copied := make(map[string]domain.Device, len(r.devices))
	for mac, d := range r.devices {
		copied[mac] = d
	}
	r.mu.RUnlock()

	if err := r.store.Save(copied); err != nil {
		log.Printf("Registry: snapshot write failed: %v", err)
	}
}

// ObservePresence upserts a device from one piece of presence evidence and
// refreshes last_seen. This is the only code path that moves last_seen;
// packet traffic never does.
func (r *Registry) ObservePresence(ev ports.PresenceEvidence, now time.Time) {
	mac := domain.NormalizeMAC(ev.MAC)
	if mac == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[mac]
	if !ok {
		d = domain.NewDevice(mac, now)
	}
	d.LastSeen = now
	if ev.IP != "" {
		d.IP = ev.IP
	}
	if ev.Hostname != "" && ev.Hostname != "unknown" {
		d.Hostname = ev.Hostname
	}
	r.devices[mac] = d
}

// Get returns a copy of the device record.
func (r *Registry) Get(mac string) (domain.Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[domain.NormalizeMAC(mac)]
	return d, ok
}

// FindByIP locates a device by its current IP. MAC stays the identity; this
// exists for operator actions addressed by IP.
func (r *Registry) FindByIP(ip string) (domain.Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.devices {
		if d.IP == ip {
			return d, true
		}
	}
	return domain.Device{}, false
}

// All returns a copy of every device record.
func (r *Registry) All() []domain.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	return out
}

// Update applies fn to the stored record, clamping trust and restoring the
// containment-implies-deception invariant afterwards. Unknown MACs are
// ignored.
func (r *Registry) Update(mac string, fn func(*domain.Device)) {
	mac = domain.NormalizeMAC(mac)
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[mac]
	if !ok {
		return
	}
	fn(&d)
	d.TrustScore = domain.ClampTrust(d.TrustScore)
	if d.Flags.Isolated {
		d.Flags.Redirected = true
	}
	r.devices[mac] = d
}

// Count returns the registry size.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}
