package presence

import (
	"context"
	"strings"

	"github.com/lcalzada-xor/trapwire/internal/core/ports"
)

// NeighborSource reads the kernel neighbor table via `ip neigh`. Entries in
// FAILED or INCOMPLETE state are ignored; everything else counts as an IP
// heartbeat.
type NeighborSource struct {
	Run Runner
}

// NewNeighborSource uses the default subprocess runner.
func NewNeighborSource() *NeighborSource {
	return &NeighborSource{Run: runCommand}
}

func (s *NeighborSource) Name() string { return "neighbor" }

func (s *NeighborSource) Poll(ctx context.Context) ([]ports.PresenceEvidence, error) {
	output, err := s.Run(ctx, "ip", "neigh")
	if err != nil {
		return nil, err
	}
	return parseNeighbors(string(output)), nil
}

// parseNeighbors extracts (ip, mac) pairs from `ip neigh` output. Lines look
// like:
//
//	192.168.10.23 dev wlan0 lladdr aa:bb:cc:dd:ee:ff REACHABLE
func parseNeighbors(output string) []ports.PresenceEvidence {
	var out []ports.PresenceEvidence
	for _, line := range strings.Split(output, "\n") {
		fields := splitFields(line)
		if len(fields) < 2 {
			continue
		}
		idx := -1
		for i, f := range fields {
			if f == "lladdr" {
				idx = i
				break
			}
		}
		if idx < 0 || idx+1 >= len(fields) {
			continue
		}
		state := fields[len(fields)-1]
		if state == "FAILED" || state == "INCOMPLETE" {
			continue
		}
		out = append(out, ports.PresenceEvidence{MAC: fields[idx+1], IP: fields[0]})
	}
	return out
}
