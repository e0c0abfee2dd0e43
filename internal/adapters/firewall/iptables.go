// Package firewall issues idempotent packet-filter and wireless-driver
// mutations. Every additive operation deletes any matching prior rule first,
// so the defense loop can safely re-assert policy each cycle.
package firewall

import (
	"context"
	"fmt"
	"log"
	"os/exec"
	"strconv"

	"github.com/lcalzada-xor/trapwire/internal/core/domain"
	"github.com/lcalzada-xor/trapwire/internal/core/ports"
	"github.com/lcalzada-xor/trapwire/internal/telemetry"
)

// decoyPorts maps attacked service ports to their decoy listeners.
var decoyPorts = []struct{ from, to int }{
	{22, 2222},
	{80, 8080},
	{445, 4445},
}

const rateLimit = "5/minute"

// Runner executes a host command. Tests substitute a recorder.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// IPTables implements ports.Enforcer against the host's iptables and the
// wireless driver on one AP interface.
type IPTables struct {
	iface    string
	run      Runner
	audit    *AuditLog
	archiver *Archiver
}

// NewIPTables creates the live enforcer. archiver may be nil to disable
// evidence packaging.
func NewIPTables(iface string, audit *AuditLog, archiver *Archiver) *IPTables {
	return &IPTables{iface: iface, run: runCommand, audit: audit, archiver: archiver}
}

// Redirect installs destination-NAT rules steering the source IP's traffic to
// the decoy grid. The interface binding is mandatory: without it the rules
// silently miss attacker traffic traversing the gateway.
func (t *IPTables) Redirect(ctx context.Context, ip string) error {
	if err := domain.ValidateActionIP(ip); err != nil {
		return err
	}
	for _, p := range decoyPorts {
		rule := t.redirectRule(ip, p.from, p.to)
		t.deleteThenAdd(ctx, "nat", rule)
	}
	t.record(domain.ActionRedirect, fmt.Sprintf("%s -> decoy grid (22,80,445)", ip))
	return nil
}

// Isolate drops every forwarded packet to or from the IP, then packages
// evidence.
func (t *IPTables) Isolate(ctx context.Context, ip string) error {
	if err := domain.ValidateActionIP(ip); err != nil {
		return err
	}
	t.deleteThenAdd(ctx, "filter", []string{"FORWARD", "-s", ip, "-j", "DROP"})
	t.deleteThenAdd(ctx, "filter", []string{"FORWARD", "-d", ip, "-j", "DROP"})
	t.record(domain.ActionIsolate, fmt.Sprintf("forwarding dropped for %s", ip))

	if t.archiver != nil {
		if path, err := t.archiver.Archive(); err != nil {
			log.Printf("Enforcer: evidence archive failed: %v", err)
		} else {
			t.record(domain.ActionEvidence, path)
		}
	}
	return nil
}

// BlockMAC drops forwarded traffic by link-layer source; it survives IP
// changes.
func (t *IPTables) BlockMAC(ctx context.Context, mac string) error {
	if err := domain.ValidateMAC(mac); err != nil {
		return err
	}
	t.deleteThenAdd(ctx, "filter", t.macDropRule(mac))
	t.record(domain.ActionBlockMAC, mac)
	return nil
}

// QuarantineMAC redirects the device's IP to the decoy grid and rate-limits
// the MAC on the forwarding chain: the device can still talk, but cannot scan
// or flood.
func (t *IPTables) QuarantineMAC(ctx context.Context, ip, mac string) error {
	if err := domain.ValidateMAC(mac); err != nil {
		return err
	}
	if err := t.Redirect(ctx, ip); err != nil {
		return err
	}
	t.deleteThenAdd(ctx, "filter", t.rateLimitRule(mac))
	t.record(domain.ActionQuarantine, fmt.Sprintf("%s (%s) rate-limited to %s", mac, ip, rateLimit))
	return nil
}

// Disconnect kicks the station off the AP. A blocked MAC cannot re-associate.
func (t *IPTables) Disconnect(ctx context.Context, mac string) error {
	if err := domain.ValidateMAC(mac); err != nil {
		return err
	}
	if _, err := t.run(ctx, "hostapd_cli", "-i", t.iface, "deauthenticate", mac); err != nil {
		// hostapd may not be managing the interface; fall back to the driver.
		if out, err2 := t.run(ctx, "iw", "dev", t.iface, "station", "del", mac); err2 != nil {
			return fmt.Errorf("station delete failed: %v (%s)", err2, out)
		}
	}
	t.record(domain.ActionKick, mac)
	return nil
}

// Release deletes every rule the other actions might have installed for the
// IP and (optionally) MAC. Safe to call on already-clean state.
func (t *IPTables) Release(ctx context.Context, ip, mac string) error {
	if err := domain.ValidateActionIP(ip); err != nil {
		return err
	}
	if mac != "" {
		if err := domain.ValidateMAC(mac); err != nil {
			return err
		}
	}

	for _, p := range decoyPorts {
		t.delete(ctx, "nat", t.redirectRule(ip, p.from, p.to))
	}
	t.delete(ctx, "filter", []string{"FORWARD", "-s", ip, "-j", "DROP"})
	t.delete(ctx, "filter", []string{"FORWARD", "-d", ip, "-j", "DROP"})
	if mac != "" {
		t.delete(ctx, "filter", t.macDropRule(mac))
		t.delete(ctx, "filter", t.rateLimitRule(mac))
	}
	t.record(domain.ActionRelease, fmt.Sprintf("%s %s", ip, mac))
	return nil
}

// Lockdown sets the forwarding chain's default policy to drop.
func (t *IPTables) Lockdown(ctx context.Context) error {
	if out, err := t.run(ctx, "iptables", "-P", "FORWARD", "DROP"); err != nil {
		return fmt.Errorf("lockdown failed: %v (%s)", err, out)
	}
	t.record(domain.ActionLockdown, "FORWARD policy DROP")
	return nil
}

func (t *IPTables) redirectRule(ip string, from, to int) []string {
	return []string{
		"PREROUTING", "-i", t.iface, "-s", ip, "-p", "tcp",
		"--dport", strconv.Itoa(from), "-j", "REDIRECT", "--to-port", strconv.Itoa(to),
	}
}

func (t *IPTables) macDropRule(mac string) []string {
	return []string{"FORWARD", "-m", "mac", "--mac-source", mac, "-j", "DROP"}
}

func (t *IPTables) rateLimitRule(mac string) []string {
	return []string{
		"FORWARD", "-m", "mac", "--mac-source", mac,
		"-m", "limit", "--limit", rateLimit, "-j", "ACCEPT",
	}
}

// deleteThenAdd makes additive rules idempotent. The delete may fail when no
// prior rule exists; that is the normal case and is ignored.
func (t *IPTables) deleteThenAdd(ctx context.Context, table string, rule []string) {
	t.delete(ctx, table, rule)
	args := append([]string{"-t", table, "-A"}, rule...)
	if out, err := t.run(ctx, "iptables", args...); err != nil {
		// Logged to audit; the next cycle re-asserts via idempotent design.
		log.Printf("Enforcer: iptables add failed: %v (%s)", err, out)
		telemetry.EnforcementErrors.WithLabelValues(rule[0]).Inc()
		if t.audit != nil {
			if aerr := t.audit.Append("ERROR", fmt.Sprintf("iptables -t %s -A %v failed: %v", table, rule, err)); aerr != nil {
				log.Printf("Enforcer: audit append failed: %v", aerr)
			}
		}
	}
}

func (t *IPTables) delete(ctx context.Context, table string, rule []string) {
	args := append([]string{"-t", table, "-D"}, rule...)
	t.run(ctx, "iptables", args...)
}

func (t *IPTables) record(action domain.AuditAction, detail string) {
	telemetry.EnforcementsTotal.WithLabelValues(string(action)).Inc()
	if t.audit == nil {
		return
	}
	if err := t.audit.Append(string(action), detail); err != nil {
		log.Printf("Enforcer: audit append failed: %v", err)
	}
}

var _ ports.Enforcer = (*IPTables)(nil)
