// Package engine drives the adaptive defense loop: capture, reconcile,
// score, correlate, enforce, persist. It owns the cycle lock and is the only
// writer of flags and trust during automated operation.
package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/lcalzada-xor/trapwire/internal/adapters/sniffer"
	"github.com/lcalzada-xor/trapwire/internal/config"
	"github.com/lcalzada-xor/trapwire/internal/core/domain"
	"github.com/lcalzada-xor/trapwire/internal/core/ports"
	"github.com/lcalzada-xor/trapwire/internal/core/services/audit"
	"github.com/lcalzada-xor/trapwire/internal/core/services/correlation"
	"github.com/lcalzada-xor/trapwire/internal/core/services/policy"
	"github.com/lcalzada-xor/trapwire/internal/core/services/presence"
	"github.com/lcalzada-xor/trapwire/internal/core/services/registry"
	"github.com/lcalzada-xor/trapwire/internal/telemetry"
)

const alertRingCap = 50

// PacketCapture feeds one bounded window of packets into the collector. The
// live implementation blocks until the window elapses.
type PacketCapture interface {
	CaptureWindow(ctx context.Context, window time.Duration, collector *sniffer.FlowCollector)
}

// Engine wires the pipeline components and runs the loop.
type Engine struct {
	cfg          *config.Config
	reg          *registry.Registry
	trinity      *presence.Trinity
	collector    *sniffer.FlowCollector
	capture      PacketCapture
	detector     ports.Detector
	policy       *policy.Engine
	correlator   *correlation.Engine
	enforcer     ports.Enforcer
	auditSvc     *audit.AuditService
	interactions ports.InteractionSource

	// Cycle lock: the analyze phase holds it end to end, so mid-cycle manual
	// actions observe either the prior or the next consistent state.
	mu sync.Mutex

	captureMu sync.Mutex

	snapshot atomic.Value // []domain.DeviceView

	alertMu sync.Mutex
	alerts  []domain.Alert
}

// New assembles the loop driver. capture may be nil (tests feed the collector
// directly); auditSvc may be nil.
func New(
	cfg *config.Config,
	reg *registry.Registry,
	trinity *presence.Trinity,
	collector *sniffer.FlowCollector,
	capture PacketCapture,
	detector ports.Detector,
	correlator *correlation.Engine,
	enforcer ports.Enforcer,
	auditSvc *audit.AuditService,
	interactions ports.InteractionSource,
) *Engine {
	e := &Engine{
		cfg:          cfg,
		reg:          reg,
		trinity:      trinity,
		collector:    collector,
		capture:      capture,
		detector:     detector,
		policy:       policy.New(cfg.Thresholds),
		correlator:   correlator,
		enforcer:     enforcer,
		auditSvc:     auditSvc,
		interactions: interactions,
	}
	e.snapshot.Store([]domain.DeviceView{})
	return e
}

// Run executes cycles until the context ends. Every cycle is an independent
// attempt: component failures are logged, never fatal.
func (e *Engine) Run(ctx context.Context) {
	e.reg.Restore()
	log.Printf("Defense loop starting: window=%s interface=%s", e.cfg.CaptureWindow, e.cfg.APInterface)

	for {
		if ctx.Err() != nil {
			// Best-effort final snapshot; firewall rules are intentionally
			// left in place on shutdown.
			e.reg.Persist()
			return
		}

		if capture := e.getCapture(); capture != nil {
			capture.CaptureWindow(ctx, e.cfg.CaptureWindow, e.collector)
		} else {
			select {
			case <-ctx.Done():
				continue
			case <-time.After(e.cfg.CaptureWindow):
			}
		}

		e.runCycleAt(ctx, time.Now())

		select {
		case <-ctx.Done():
		case <-time.After(e.cfg.CycleSleep):
		}
	}
}

// SetCapture installs the packet source. The app layer retries opening the
// live capture in the background; until then cycles run presence-only.
func (e *Engine) SetCapture(c PacketCapture) {
	e.captureMu.Lock()
	e.capture = c
	e.captureMu.Unlock()
}

func (e *Engine) getCapture() PacketCapture {
	e.captureMu.Lock()
	defer e.captureMu.Unlock()
	return e.capture
}

// runCycleAt executes the analyze/correlate/enforce/persist phases for one
// cycle ending at now.
func (e *Engine) runCycleAt(ctx context.Context, now time.Time) {
	e.mu.Lock()

	// Presence first, so just-arrived devices are visible to scoring.
	e.trinity.Reconcile(ctx, e.reg, now)
	stats := e.collector.Harvest(now)

	var (
		threats []domain.Threat
		views   []domain.DeviceView
	)

	for _, dev := range e.reg.All() {
		a := e.policy.Assess(dev, stats[dev.MAC], e.detector, now)

		e.reg.Update(dev.MAC, func(d *domain.Device) {
			d.TrustScore = a.Device.TrustScore
			d.Flags = a.Device.Flags
		})

		if a.Observation != nil {
			e.detector.Observe(*a.Observation)
		}
		if a.Anomalous {
			telemetry.AnomaliesTotal.Inc()
		}
		if a.Threat != nil {
			threats = append(threats, *a.Threat)
		}
		views = append(views, a.View)
	}

	// Correlation runs strictly after threats exist and before enforcement,
	// so enforcement sees the escalated state.
	if e.correlator != nil && len(threats) > 0 {
		threats = e.correlator.Correlate(threats)
		for _, t := range threats {
			if t.Correlation == "" {
				continue
			}
			e.reg.Update(t.MAC, func(d *domain.Device) {
				d.TrustScore = t.Trust
				d.Flags = t.Flags
			})
		}
	}

	e.mu.Unlock()

	// Enforcement in threat-list order; failures are logged and retried next
	// cycle via idempotent re-assertion.
	for _, t := range threats {
		e.enforce(ctx, t)
	}

	e.reg.Persist()
	e.snapshot.Store(views)
	telemetry.CyclesTotal.Inc()
	telemetry.DevicesKnown.Set(float64(e.reg.Count()))
}

func (e *Engine) enforce(ctx context.Context, t domain.Threat) {
	if t.IP == "" {
		return
	}

	if t.Flags.Redirected {
		if err := e.enforcer.Redirect(ctx, t.IP); err != nil {
			log.Printf("Loop: redirect %s failed: %v", t.IP, err)
		} else {
			e.pushAlert(t.IP, t.Reason, "redirect")
			e.auditSvc.Log(ctx, "loop", domain.ActionRedirect, t.IP, t.Reason)
		}
	}
	if t.Flags.Isolated {
		if err := e.enforcer.Isolate(ctx, t.IP); err != nil {
			log.Printf("Loop: isolate %s failed: %v", t.IP, err)
		} else {
			e.pushAlert(t.IP, t.Reason, "isolate")
			e.auditSvc.Log(ctx, "loop", domain.ActionIsolate, t.IP, t.Reason)
		}
	}
}

func (e *Engine) pushAlert(ip, reason, action string) {
	e.alertMu.Lock()
	defer e.alertMu.Unlock()
	e.alerts = append(e.alerts, domain.Alert{
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
		IP:        ip,
		Type:      reason,
		Action:    action,
	})
	if len(e.alerts) > alertRingCap {
		e.alerts = e.alerts[len(e.alerts)-alertRingCap:]
	}
}

// Devices returns the snapshot published at the end of the last cycle.
func (e *Engine) Devices(ctx context.Context) []domain.DeviceView {
	return e.snapshot.Load().([]domain.DeviceView)
}

// Alerts returns a copy of the alert ring, newest last.
func (e *Engine) Alerts(ctx context.Context) []domain.Alert {
	e.alertMu.Lock()
	defer e.alertMu.Unlock()
	out := make([]domain.Alert, len(e.alerts))
	copy(out, e.alerts)
	return out
}

// Interactions serves the decoy log tail for the dashboard.
func (e *Engine) Interactions(ctx context.Context, limit int) ([]domain.InteractionRecord, error) {
	if e.interactions == nil {
		return nil, nil
	}
	return e.interactions.Recent(limit)
}

// ManualAction applies one operator action to the device currently holding
// the IP. Valid actions: isolate, block, kick, quarantine, redirect, release.
func (e *Engine) ManualAction(ctx context.Context, action, ip, actor string) error {
	if err := domain.ValidateActionIP(ip); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	dev, ok := e.reg.FindByIP(ip)
	if !ok {
		return fmt.Errorf("no device with IP %s", ip)
	}

	switch action {
	case "isolate":
		if err := e.enforcer.Isolate(ctx, ip); err != nil {
			return err
		}
		e.reg.Update(dev.MAC, func(d *domain.Device) {
			d.Flags.Isolated = true
			d.Flags.Redirected = true
			d.TrustScore = min(d.TrustScore, e.cfg.Thresholds.IsolateTrust/2)
		})
		e.auditSvc.Log(ctx, actor, domain.ActionIsolate, ip, "manual")

	case "block":
		if err := e.enforcer.BlockMAC(ctx, dev.MAC); err != nil {
			return err
		}
		e.reg.Update(dev.MAC, func(d *domain.Device) {
			d.Flags.Isolated = true
			d.Flags.Redirected = true
			d.TrustScore = 0
		})
		e.auditSvc.Log(ctx, actor, domain.ActionBlockMAC, dev.MAC, "manual")

	case "kick":
		if err := e.enforcer.Disconnect(ctx, dev.MAC); err != nil {
			return err
		}
		e.auditSvc.Log(ctx, actor, domain.ActionKick, dev.MAC, "manual")

	case "quarantine":
		if err := e.enforcer.QuarantineMAC(ctx, ip, dev.MAC); err != nil {
			return err
		}
		e.reg.Update(dev.MAC, func(d *domain.Device) {
			d.Flags.Quarantined = true
			d.Flags.Redirected = true
			d.TrustScore = min(d.TrustScore, e.cfg.Thresholds.RedirectTrust-5)
		})
		e.auditSvc.Log(ctx, actor, domain.ActionQuarantine, dev.MAC, "manual")

	case "redirect":
		if err := e.enforcer.Redirect(ctx, ip); err != nil {
			return err
		}
		e.reg.Update(dev.MAC, func(d *domain.Device) {
			d.Flags.Redirected = true
			d.TrustScore = min(d.TrustScore, e.cfg.Thresholds.RedirectTrust-5)
		})
		e.auditSvc.Log(ctx, actor, domain.ActionRedirect, ip, "manual")

	case "release":
		if err := e.enforcer.Release(ctx, ip, dev.MAC); err != nil {
			return err
		}
		e.reg.Update(dev.MAC, func(d *domain.Device) {
			d.Flags = domain.Flags{}
			d.TrustScore = domain.DefaultTrust
		})
		e.auditSvc.Log(ctx, actor, domain.ActionRelease, ip, "manual")

	default:
		return fmt.Errorf("unknown action %q", action)
	}

	e.reg.Persist()
	return nil
}

// Lockdown sets the forwarding default policy to drop. One-shot, no argument.
func (e *Engine) Lockdown(ctx context.Context, actor string) error {
	if err := e.enforcer.Lockdown(ctx); err != nil {
		return err
	}
	e.auditSvc.Log(ctx, actor, domain.ActionLockdown, "", "manual")
	e.pushAlert("", "Network lockdown", "lockdown")
	return nil
}

var _ ports.DefenseService = (*Engine)(nil)
