package firewall

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/lcalzada-xor/trapwire/internal/core/domain"
	"github.com/lcalzada-xor/trapwire/internal/core/ports"
)

// Simulator implements ports.Enforcer entirely in memory. It backs tests and
// non-Linux hosts, modeling the same delete-before-add discipline as the live
// enforcer so idempotence is observable as rule-set equality.
type Simulator struct {
	mu         sync.Mutex
	rules      map[string]bool
	kicked     []string
	lockedDown bool
}

// NewSimulator returns an empty simulated packet filter.
func NewSimulator() *Simulator {
	return &Simulator{rules: make(map[string]bool)}
}

func (s *Simulator) Redirect(ctx context.Context, ip string) error {
	if err := domain.ValidateActionIP(ip); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range decoyPorts {
		s.rules[simRedirect(ip, p.from, p.to)] = true
	}
	return nil
}

func (s *Simulator) Isolate(ctx context.Context, ip string) error {
	if err := domain.ValidateActionIP(ip); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[simDrop("src", ip)] = true
	s.rules[simDrop("dst", ip)] = true
	return nil
}

func (s *Simulator) BlockMAC(ctx context.Context, mac string) error {
	if err := domain.ValidateMAC(mac); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[simMACDrop(mac)] = true
	return nil
}

func (s *Simulator) QuarantineMAC(ctx context.Context, ip, mac string) error {
	if err := domain.ValidateMAC(mac); err != nil {
		return err
	}
	if err := s.Redirect(ctx, ip); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[simRateLimit(mac)] = true
	return nil
}

func (s *Simulator) Disconnect(ctx context.Context, mac string) error {
	if err := domain.ValidateMAC(mac); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kicked = append(s.kicked, mac)
	return nil
}

func (s *Simulator) Release(ctx context.Context, ip, mac string) error {
	if err := domain.ValidateActionIP(ip); err != nil {
		return err
	}
	if mac != "" {
		if err := domain.ValidateMAC(mac); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range decoyPorts {
		delete(s.rules, simRedirect(ip, p.from, p.to))
	}
	delete(s.rules, simDrop("src", ip))
	delete(s.rules, simDrop("dst", ip))
	if mac != "" {
		delete(s.rules, simMACDrop(mac))
		delete(s.rules, simRateLimit(mac))
	}
	return nil
}

func (s *Simulator) Lockdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lockedDown = true
	return nil
}

// ActiveRules returns the sorted rule set, for equality assertions.
func (s *Simulator) ActiveRules() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.rules))
	for r := range s.rules {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// Kicked returns MACs disconnected so far.
func (s *Simulator) Kicked() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.kicked))
	copy(out, s.kicked)
	return out
}

// LockedDown reports whether the forwarding default policy is drop.
func (s *Simulator) LockedDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lockedDown
}

func simRedirect(ip string, from, to int) string {
	return "redirect " + ip + " " + strconv.Itoa(from) + "->" + strconv.Itoa(to)
}

func simDrop(dir, ip string) string  { return fmt.Sprintf("drop %s %s", dir, ip) }
func simMACDrop(mac string) string   { return "mac-drop " + mac }
func simRateLimit(mac string) string { return "mac-ratelimit " + mac }

var _ ports.Enforcer = (*Simulator)(nil)
