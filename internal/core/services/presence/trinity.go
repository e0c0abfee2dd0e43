// Package presence reconciles who is on the LAN from three independent
// evidence sources: DHCP leases (identity), the kernel neighbor table (IP
// heartbeat) and the wireless station dump (L2 presence). Each source has a
// blind spot; the union is strictly more reliable than any single one.
package presence

import (
	"context"
	"log"
	"time"

	"github.com/lcalzada-xor/trapwire/internal/core/ports"
	"github.com/lcalzada-xor/trapwire/internal/core/services/registry"
)

// Trinity polls its sources once per cycle and feeds every positive sighting
// into the registry.
type Trinity struct {
	sources []ports.PresenceSource
}

// NewTrinity assembles the standard three sources for the given AP interface.
func NewTrinity(apInterface string, leaseFiles []string) *Trinity {
	return &Trinity{sources: []ports.PresenceSource{
		NewDHCPSource(leaseFiles),
		NewNeighborSource(),
		NewStationSource(apInterface),
	}}
}

// NewTrinityFromSources exists for tests and exotic deployments.
func NewTrinityFromSources(sources ...ports.PresenceSource) *Trinity {
	return &Trinity{sources: sources}
}

// Reconcile polls every source and upserts the evidence. A failing source is
// logged and skipped; the cycle never aborts on source failure.
func (t *Trinity) Reconcile(ctx context.Context, reg *registry.Registry, now time.Time) {
	for _, src := range t.sources {
		evidence, err := src.Poll(ctx)
		if err != nil {
			log.Printf("Presence: source %s failed, skipping this cycle: %v", src.Name(), err)
			continue
		}
		for _, ev := range evidence {
			reg.ObservePresence(ev, now)
		}
	}
}
