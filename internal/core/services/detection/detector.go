// Package detection classifies per-device traffic features with a hybrid
// two-stage model: fixed threshold rules plus a trained isolation-forest
// outlier stage. The rule stage alone can cross the anomaly bar; the learned
// stage only ever adds evidence.
package detection

import (
	"context"
	"log"
	"math/rand"
	"sync"

	"github.com/lcalzada-xor/trapwire/internal/config"
	"github.com/lcalzada-xor/trapwire/internal/core/ports"
	"github.com/lcalzada-xor/trapwire/internal/telemetry"
)

// Reason strings enumerate in stable order in every verdict.
const (
	ReasonHighRate = "High Packet Rate"
	ReasonPortScan = "Port Scan Detected"
	ReasonML       = "ML Anomaly Detected"
)

// HybridDetector implements ports.Detector. Fit and predict are mutually
// exclusive on the model mutex; predict never blocks on it — while a fit is
// in flight, classification degrades to rule-only.
type HybridDetector struct {
	cfg config.Thresholds
	log ports.BehaviorLog

	modelMu sync.Mutex
	model   *IsolationForest

	rngMu sync.Mutex
	rng   *rand.Rand

	retrainCh chan struct{}
}

// NewHybridDetector wires the detector to its observation log.
func NewHybridDetector(cfg config.Thresholds, behaviorLog ports.BehaviorLog) *HybridDetector {
	return &HybridDetector{
		cfg:       cfg,
		log:       behaviorLog,
		rng:       rand.New(rand.NewSource(rand.Int63())),
		retrainCh: make(chan struct{}, 1),
	}
}

// Classify scores one (packet rate, unique ports) point. Pure function of the
// inputs plus current model state: same inputs, same model, same verdict.
func (d *HybridDetector) Classify(packetRate float64, uniquePorts int) ports.Verdict {
	score := 0
	var reasons []string

	if packetRate > d.cfg.RatePPS {
		score += 50
		reasons = append(reasons, ReasonHighRate)
	}
	if uniquePorts > d.cfg.PortFan {
		score += 50
		reasons = append(reasons, ReasonPortScan)
	}

	// Learned stage. TryLock keeps predict non-blocking: if a retrain holds
	// the model we return the rule verdict for this call.
	if d.modelMu.TryLock() {
		if d.model != nil && d.model.IsOutlier(point{packetRate, float64(uniquePorts)}) {
			score += d.cfg.MLBonus
			reasons = append(reasons, ReasonML)
		}
		d.modelMu.Unlock()
	}

	if score > d.cfg.ScoreCap {
		score = d.cfg.ScoreCap
	}

	return ports.Verdict{
		Anomalous: score >= d.cfg.Anomaly,
		Score:     score,
		Reasons:   reasons,
	}
}

// Observe appends one observation to the behavior log and, with a small fixed
// probability, requests a background retrain. The request channel is bounded
// with drop-on-full semantics, preserving at-most-one retrain in flight.
func (d *HybridDetector) Observe(obs ports.Observation) {
	if err := d.log.Append(obs); err != nil {
		log.Printf("Detector: behavior log append failed: %v", err)
	}

	d.rngMu.Lock()
	hit := d.rng.Float64() < d.cfg.RetrainProb
	d.rngMu.Unlock()
	if !hit {
		return
	}

	select {
	case d.retrainCh <- struct{}{}:
	default:
		// A retrain is already queued or running.
	}
}

// Start launches the retrain worker. It exits with the context.
func (d *HybridDetector) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-d.retrainCh:
				d.retrain()
			}
		}
	}()
}

// retrain fits a fresh forest from the observation history. Holding the model
// mutex for the whole fit keeps prediction from reading a half-built model.
func (d *HybridDetector) retrain() {
	rows, err := d.log.Load()
	if err != nil {
		log.Printf("Detector: could not load history, keeping prior model: %v", err)
		return
	}
	if len(rows) < d.cfg.MinTrainRows {
		// Not enough signal yet; rule-only until the log grows.
		return
	}

	samples := make([]point, len(rows))
	for i, r := range rows {
		samples[i] = point{r.PacketRate, float64(r.UniquePorts)}
	}

	d.rngMu.Lock()
	rng := rand.New(rand.NewSource(d.rng.Int63()))
	d.rngMu.Unlock()

	d.modelMu.Lock()
	defer d.modelMu.Unlock()
	model := FitForest(samples, rng)
	if model == nil {
		d.model = nil
		return
	}
	d.model = model
	telemetry.RetrainsTotal.Inc()
	log.Printf("Detector: retrained on %d observations", len(rows))
}

// RetrainNow runs a synchronous retrain. Used at startup to warm the model
// from an existing history, and by tests.
func (d *HybridDetector) RetrainNow() {
	d.retrain()
}
