// Package policy turns per-cycle traffic evidence into trust movements,
// protection flags and cycle-scoped threats. It is the only writer of flags
// and trust during automated operation.
package policy

import (
	"strings"
	"time"

	"github.com/lcalzada-xor/trapwire/internal/config"
	"github.com/lcalzada-xor/trapwire/internal/core/domain"
	"github.com/lcalzada-xor/trapwire/internal/core/ports"
)

// Engine applies the trust state machine.
type Engine struct {
	cfg config.Thresholds
}

// New creates a policy engine with the given tuning.
func New(cfg config.Thresholds) *Engine {
	return &Engine{cfg: cfg}
}

// Assessment is the outcome of scoring one device for one cycle.
type Assessment struct {
	Device      domain.Device // updated record to write back
	Offline     bool
	Anomalous   bool
	Verdict     ports.Verdict
	Threat      *domain.Threat     // nil when nothing to enforce
	Observation *ports.Observation // nil when the device was not scored
	View        domain.DeviceView  // always emitted, for every known device
}

// Assess scores one device against its window stats. Offline devices are not
// scored and not enforced against; their flags persist. Every device yields a
// dashboard view regardless of the outcome.
func (e *Engine) Assess(d domain.Device, stats *domain.FlowStats, detector ports.Detector, now time.Time) Assessment {
	if stats == nil {
		stats = domain.NewFlowStats(now)
	}
	packetRate := stats.Rate(now)
	uniquePorts := stats.UniquePorts()

	a := Assessment{Device: d, Offline: d.Offline(now, e.cfg.OfflineAfter)}

	if !a.Offline {
		a.Verdict = detector.Classify(packetRate, uniquePorts)
		a.Anomalous = a.Verdict.Anomalous

		d.TrustScore = e.applyTrustDeltas(d.TrustScore, a.Anomalous, packetRate, uniquePorts)

		// Quarantine lifts only on sustained good behavior: high trust AND a
		// minimum observation period since first sighting.
		if d.Flags.Quarantined && d.TrustScore > e.cfg.PromoteTrust && d.Age(now) >= e.cfg.PromoteAge {
			d.Flags.Quarantined = false
		}

		// Flag derivation is monotonic within the loop; flags are never
		// auto-cleared here.
		if d.TrustScore < e.cfg.RedirectTrust {
			d.Flags.Redirected = true
		}
		if d.TrustScore < e.cfg.IsolateTrust {
			d.Flags.Isolated = true
			d.Flags.Redirected = true
		}

		a.Observation = &ports.Observation{
			Timestamp:   now,
			IP:          d.IP,
			MAC:         d.MAC,
			PacketRate:  packetRate,
			Packets:     stats.Packets,
			UniquePorts: uniquePorts,
			Score:       a.Verdict.Score,
			Label:       boolToLabel(a.Anomalous),
		}

		if a.Anomalous || d.Flags.Redirected {
			a.Threat = &domain.Threat{
				IP:     d.IP,
				MAC:    d.MAC,
				Score:  a.Verdict.Score,
				Trust:  d.TrustScore,
				Flags:  d.Flags,
				Reason: threatReason(a.Verdict),
			}
		}
	}

	a.Device = d
	a.View = domain.DeviceView{
		IP:         d.IP,
		MAC:        d.MAC,
		Hostname:   d.Hostname,
		Packets:    stats.Packets,
		Ports:      uniquePorts,
		Status:     d.ProjectStatus(a.Offline, a.Anomalous, stats.Packets),
		TrustScore: d.TrustScore,
		LastSeen:   now.Sub(d.LastSeen).Seconds(),
		Flags:      d.Flags,
	}
	return a
}

func (e *Engine) applyTrustDeltas(score int, anomalous bool, packetRate float64, uniquePorts int) int {
	if anomalous {
		score -= 20
	}
	if uniquePorts > e.cfg.ScanPorts {
		score -= 10
	}
	if packetRate > e.cfg.FloodPPS {
		score -= 5
	}
	if !anomalous && uniquePorts < 5 {
		score++
	}
	return domain.ClampTrust(score)
}

func threatReason(v ports.Verdict) string {
	if len(v.Reasons) == 0 {
		return "Deception active"
	}
	return strings.Join(v.Reasons, ", ")
}

func boolToLabel(b bool) int {
	if b {
		return 1
	}
	return 0
}
