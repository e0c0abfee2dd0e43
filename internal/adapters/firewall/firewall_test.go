package firewall

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcalzada-xor/trapwire/internal/core/domain"
)

type recordedCmd struct {
	name string
	args []string
}

func recorder(cmds *[]recordedCmd) Runner {
	return func(ctx context.Context, name string, args ...string) ([]byte, error) {
		*cmds = append(*cmds, recordedCmd{name: name, args: args})
		return nil, nil
	}
}

func (c recordedCmd) String() string {
	return c.name + " " + strings.Join(c.args, " ")
}

func TestRedirect_DeleteBeforeAddWithInterfaceBinding(t *testing.T) {
	var cmds []recordedCmd
	fw := NewIPTables("wlan0", nil, nil)
	fw.run = recorder(&cmds)

	require.NoError(t, fw.Redirect(context.Background(), "192.168.10.30"))
	require.Len(t, cmds, 6, "three port pairs, each delete+add")

	// First pair: port 22 -> 2222.
	assert.Equal(t, "iptables -t nat -D PREROUTING -i wlan0 -s 192.168.10.30 -p tcp --dport 22 -j REDIRECT --to-port 2222", cmds[0].String())
	assert.Equal(t, "iptables -t nat -A PREROUTING -i wlan0 -s 192.168.10.30 -p tcp --dport 22 -j REDIRECT --to-port 2222", cmds[1].String())

	for i := 0; i < len(cmds); i += 2 {
		assert.Contains(t, cmds[i].args, "-D")
		assert.Contains(t, cmds[i+1].args, "-A")
		assert.Contains(t, cmds[i].args, "-i", "interface binding is mandatory")
	}
}

func TestIsolate_DropsBothDirections(t *testing.T) {
	var cmds []recordedCmd
	fw := NewIPTables("wlan0", nil, nil)
	fw.run = recorder(&cmds)

	require.NoError(t, fw.Isolate(context.Background(), "192.168.10.30"))

	joined := make([]string, len(cmds))
	for i, c := range cmds {
		joined[i] = c.String()
	}
	assert.Contains(t, joined, "iptables -t filter -A FORWARD -s 192.168.10.30 -j DROP")
	assert.Contains(t, joined, "iptables -t filter -A FORWARD -d 192.168.10.30 -j DROP")
}

func TestInputValidation(t *testing.T) {
	fw := NewIPTables("wlan0", nil, nil)
	fw.run = recorder(&[]recordedCmd{})
	ctx := context.Background()

	assert.ErrorIs(t, fw.Redirect(ctx, "127.0.0.1"), domain.ErrInvalidIP)
	assert.ErrorIs(t, fw.Redirect(ctx, "224.0.0.1"), domain.ErrInvalidIP)
	assert.ErrorIs(t, fw.Redirect(ctx, "not-an-ip"), domain.ErrInvalidIP)
	assert.ErrorIs(t, fw.Redirect(ctx, "::1"), domain.ErrInvalidIP)
	assert.ErrorIs(t, fw.Isolate(ctx, "0.0.0.0"), domain.ErrInvalidIP)
	assert.ErrorIs(t, fw.BlockMAC(ctx, "aa:bb:cc:dd:ee"), domain.ErrInvalidMAC)
	assert.ErrorIs(t, fw.BlockMAC(ctx, "aa:bb:cc:dd:ee:ff; rm -rf /"), domain.ErrInvalidMAC)
	assert.NoError(t, fw.BlockMAC(ctx, "aa:bb:cc:dd:ee:ff"))
}

func TestQuarantine_RateLimitsAfterRedirect(t *testing.T) {
	var cmds []recordedCmd
	fw := NewIPTables("wlan0", nil, nil)
	fw.run = recorder(&cmds)

	require.NoError(t, fw.QuarantineMAC(context.Background(), "192.168.10.30", "aa:bb:cc:dd:ee:ff"))

	last := cmds[len(cmds)-1].String()
	assert.Contains(t, last, "--mac-source aa:bb:cc:dd:ee:ff")
	assert.Contains(t, last, "--limit 5/minute")
	assert.Contains(t, last, "ACCEPT")
}

func TestSimulator_IdempotenceLaws(t *testing.T) {
	sim := NewSimulator()
	ctx := context.Background()
	ip := "192.168.10.30"
	mac := "aa:bb:cc:dd:ee:ff"

	// Redirect ∘ Redirect ≡ Redirect.
	require.NoError(t, sim.Redirect(ctx, ip))
	once := sim.ActiveRules()
	require.NoError(t, sim.Redirect(ctx, ip))
	assert.Equal(t, once, sim.ActiveRules(), "repeat redirect must not duplicate rules")
	assert.Len(t, once, 3)

	// Release ∘ Redirect ≡ identity on rule state.
	require.NoError(t, sim.Release(ctx, ip, mac))
	assert.Empty(t, sim.ActiveRules())

	// Release on clean state is a no-op.
	require.NoError(t, sim.Release(ctx, ip, mac))
	assert.Empty(t, sim.ActiveRules())
}

func TestSimulator_ReleaseClearsEverything(t *testing.T) {
	sim := NewSimulator()
	ctx := context.Background()
	ip := "192.168.10.30"
	mac := "aa:bb:cc:dd:ee:ff"

	require.NoError(t, sim.Redirect(ctx, ip))
	require.NoError(t, sim.Isolate(ctx, ip))
	require.NoError(t, sim.QuarantineMAC(ctx, ip, mac))
	require.NoError(t, sim.BlockMAC(ctx, mac))
	assert.Len(t, sim.ActiveRules(), 7, "3 redirects + 2 drops + rate-limit + mac drop")

	require.NoError(t, sim.Release(ctx, ip, mac))
	assert.Empty(t, sim.ActiveRules())

	require.NoError(t, sim.Release(ctx, ip, mac), "second release succeeds on clean state")
}

func TestSimulator_DisconnectAndLockdown(t *testing.T) {
	sim := NewSimulator()
	ctx := context.Background()

	require.NoError(t, sim.Disconnect(ctx, "aa:bb:cc:dd:ee:ff"))
	assert.Equal(t, []string{"aa:bb:cc:dd:ee:ff"}, sim.Kicked())
	assert.Error(t, sim.Disconnect(ctx, "bogus"))

	assert.False(t, sim.LockedDown())
	require.NoError(t, sim.Lockdown(ctx))
	assert.True(t, sim.LockedDown())
}

func TestAuditLog_Format(t *testing.T) {
	path := filepath.Join(t.TempDir(), "iptables_actions.log")
	audit := NewAuditLog(path)

	require.NoError(t, audit.Append("REDIRECT", "192.168.10.30 -> decoy grid"))
	require.NoError(t, audit.Append("ISOLATE", "forwarding dropped for 192.168.10.30"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Regexp(t, `^\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\] REDIRECT: 192\.168\.10\.30 -> decoy grid$`, lines[0])
}

func TestArchiver_PackagesExistingSources(t *testing.T) {
	dir := t.TempDir()
	behavior := filepath.Join(dir, "behavior.csv")
	require.NoError(t, os.WriteFile(behavior, []byte("timestamp,ip\n"), 0644))
	missing := filepath.Join(dir, "honeypot.csv")

	arch := NewArchiver(dir, behavior, missing)
	path, err := arch.Archive()
	require.NoError(t, err)

	r, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	require.Len(t, r.File, 1, "missing sources are skipped")
	assert.Equal(t, "behavior.csv", r.File[0].Name)
	assert.Regexp(t, `evidence_\d{8}_\d{6}\.zip$`, path)
}

func TestIsolate_ProducesEvidenceArchive(t *testing.T) {
	dir := t.TempDir()
	behavior := filepath.Join(dir, "behavior.csv")
	require.NoError(t, os.WriteFile(behavior, []byte("data\n"), 0644))
	auditPath := filepath.Join(dir, "iptables_actions.log")

	fw := NewIPTables("wlan0", NewAuditLog(auditPath), NewArchiver(dir, behavior, auditPath))
	fw.run = recorder(&[]recordedCmd{})

	require.NoError(t, fw.Isolate(context.Background(), "192.168.10.30"))

	matches, err := filepath.Glob(filepath.Join(dir, "evidence_*.zip"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	data, err := os.ReadFile(auditPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "ISOLATE:")
	assert.Contains(t, string(data), "EVIDENCE:")
}
