package presence

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcalzada-xor/trapwire/internal/core/ports"
	"github.com/lcalzada-xor/trapwire/internal/core/services/registry"
)

func writeLeases(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dnsmasq.leases")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDHCPSource_ValidAndExpiredLeases(t *testing.T) {
	now := time.Now()
	valid := now.Add(1 * time.Hour).Unix()
	expired := now.Add(-1 * time.Hour).Unix()

	content := fmt.Sprintf(
		"%d aa:bb:cc:dd:ee:01 192.168.10.21 camera-01 01:aa\n"+
			"%d aa:bb:cc:dd:ee:02 192.168.10.22 old-device 01:ab\n"+
			"garbage line\n"+
			"%d aa:bb:cc:dd:ee:03 192.168.10.23 * 01:ac\n",
		valid, expired, valid)

	src := NewDHCPSource([]string{writeLeases(t, content)})
	evidence, err := src.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, evidence, 2, "expired and malformed lines must be skipped")

	assert.Equal(t, "aa:bb:cc:dd:ee:01", evidence[0].MAC)
	assert.Equal(t, "192.168.10.21", evidence[0].IP)
	assert.Equal(t, "camera-01", evidence[0].Hostname)
	assert.Equal(t, "aa:bb:cc:dd:ee:03", evidence[1].MAC)
}

func TestDHCPSource_MissingFile(t *testing.T) {
	src := NewDHCPSource([]string{"/nonexistent/leases"})
	evidence, err := src.Poll(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, evidence)
}

func TestParseNeighbors(t *testing.T) {
	output := `192.168.10.21 dev wlan0 lladdr aa:bb:cc:dd:ee:01 REACHABLE
192.168.10.22 dev wlan0 lladdr aa:bb:cc:dd:ee:02 STALE
192.168.10.23 dev wlan0 lladdr aa:bb:cc:dd:ee:03 FAILED
192.168.10.24 dev wlan0  INCOMPLETE
`
	evidence := parseNeighbors(output)
	require.Len(t, evidence, 2)
	assert.Equal(t, "aa:bb:cc:dd:ee:01", evidence[0].MAC)
	assert.Equal(t, "192.168.10.21", evidence[0].IP)
	assert.Equal(t, "aa:bb:cc:dd:ee:02", evidence[1].MAC, "STALE entries still count as heartbeat")
}

func TestParseStations(t *testing.T) {
	output := `Station aa:bb:cc:dd:ee:01 (on wlan0)
	inactive time:	1000 ms
	rx bytes:	12345
Station aa:bb:cc:dd:ee:02 (on wlan0)
	inactive time:	5 ms
`
	evidence := parseStations(output)
	require.Len(t, evidence, 2)
	assert.Equal(t, "aa:bb:cc:dd:ee:01", evidence[0].MAC)
	assert.Empty(t, evidence[0].IP, "station dump yields L2 presence only")
}

type fakeSource struct {
	name     string
	evidence []ports.PresenceEvidence
	err      error
}

func (f fakeSource) Name() string { return f.name }
func (f fakeSource) Poll(ctx context.Context) ([]ports.PresenceEvidence, error) {
	return f.evidence, f.err
}

func TestTrinity_SourceFailureIsolation(t *testing.T) {
	reg := registry.New(nil)
	trinity := NewTrinityFromSources(
		fakeSource{name: "dhcp", evidence: []ports.PresenceEvidence{{MAC: "aa:bb:cc:dd:ee:01", IP: "192.168.10.21", Hostname: "cam"}}},
		fakeSource{name: "neighbor", evidence: []ports.PresenceEvidence{{MAC: "aa:bb:cc:dd:ee:02", IP: "192.168.10.22"}}},
		fakeSource{name: "wifi", err: errors.New("iw: command failed")},
	)

	now := time.Now()
	trinity.Reconcile(context.Background(), reg, now)

	assert.Equal(t, 2, reg.Count(), "devices from healthy sources survive a failing source")
	d, ok := reg.Get("aa:bb:cc:dd:ee:01")
	require.True(t, ok)
	assert.Equal(t, "cam", d.Hostname)
	assert.Equal(t, now, d.LastSeen)
}

func TestTrinity_UnionOfSources(t *testing.T) {
	reg := registry.New(nil)
	// Same MAC from two sources: DHCP carries identity, station dump only MAC.
	trinity := NewTrinityFromSources(
		fakeSource{name: "wifi", evidence: []ports.PresenceEvidence{{MAC: "AA:BB:CC:DD:EE:01"}}},
		fakeSource{name: "dhcp", evidence: []ports.PresenceEvidence{{MAC: "aa:bb:cc:dd:ee:01", IP: "192.168.10.21", Hostname: "cam"}}},
	)
	trinity.Reconcile(context.Background(), reg, time.Now())

	assert.Equal(t, 1, reg.Count(), "sources must reconcile into one identity per MAC")
	d, _ := reg.Get("aa:bb:cc:dd:ee:01")
	assert.Equal(t, "192.168.10.21", d.IP)
}
