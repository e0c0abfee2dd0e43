package presence

import (
	"context"
	"os/exec"
	"strings"

	"github.com/lcalzada-xor/trapwire/internal/core/ports"
)

// Runner executes a host command and returns its combined output. Tests
// substitute a fake; production uses runCommand.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// StationSource dumps associated stations from the wireless driver via
// `iw dev <iface> station dump`. It sees L2 physical presence even for
// stations that are silent at the IP layer.
type StationSource struct {
	Interface string
	Run       Runner
}

// NewStationSource polls the given AP interface.
func NewStationSource(iface string) *StationSource {
	return &StationSource{Interface: iface, Run: runCommand}
}

func (s *StationSource) Name() string { return "wifi" }

func (s *StationSource) Poll(ctx context.Context) ([]ports.PresenceEvidence, error) {
	output, err := s.Run(ctx, "iw", "dev", s.Interface, "station", "dump")
	if err != nil {
		return nil, err
	}
	return parseStations(string(output)), nil
}

// parseStations extracts MACs from station dump blocks. Header lines look
// like:
//
//	Station aa:bb:cc:dd:ee:ff (on wlan0)
func parseStations(output string) []ports.PresenceEvidence {
	var out []ports.PresenceEvidence
	for _, line := range strings.Split(output, "\n") {
		fields := splitFields(line)
		if len(fields) >= 2 && fields[0] == "Station" {
			out = append(out, ports.PresenceEvidence{MAC: fields[1]})
		}
	}
	return out
}

func splitFields(line string) []string {
	return strings.Fields(strings.TrimSpace(line))
}
