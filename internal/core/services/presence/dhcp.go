package presence

import (
	"bufio"
	"context"
	"os"
	"strconv"
	"time"

	"github.com/lcalzada-xor/trapwire/internal/core/ports"
)

// DHCPSource parses dnsmasq-style lease files. Lines look like:
//
//	1717430400 aa:bb:cc:dd:ee:ff 192.168.10.23 camera-01 01:aa:bb:cc:dd:ee:ff
//
// Only unexpired leases count as evidence. The first existing candidate path
// wins; none existing means the source contributes nothing.
type DHCPSource struct {
	Paths []string
	now   func() time.Time
}

// NewDHCPSource probes the given lease file candidates in order.
func NewDHCPSource(paths []string) *DHCPSource {
	return &DHCPSource{Paths: paths, now: time.Now}
}

func (s *DHCPSource) Name() string { return "dhcp" }

// Poll reads the lease file and returns identity evidence (MAC + IP +
// hostname) for every valid lease. Malformed lines are skipped.
func (s *DHCPSource) Poll(ctx context.Context) ([]ports.PresenceEvidence, error) {
	var path string
	for _, p := range s.Paths {
		if _, err := os.Stat(p); err == nil {
			path = p
			break
		}
	}
	if path == "" {
		return nil, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	now := s.now()
	var out []ports.PresenceEvidence

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		ev, ok := parseLease(scanner.Text(), now)
		if !ok {
			continue
		}
		out = append(out, ev)
	}
	return out, scanner.Err()
}

func parseLease(line string, now time.Time) (ports.PresenceEvidence, bool) {
	fields := splitFields(line)
	if len(fields) < 3 {
		return ports.PresenceEvidence{}, false
	}
	expiry, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return ports.PresenceEvidence{}, false
	}
	if !time.Unix(expiry, 0).After(now) {
		return ports.PresenceEvidence{}, false
	}

	ev := ports.PresenceEvidence{MAC: fields[1], IP: fields[2]}
	if len(fields) > 3 {
		ev.Hostname = fields[3]
	}
	return ev, true
}
