// Package correlation joins the cycle's threat set against recent decoy
// interactions. An anomaly alone is suspicion; an anomaly plus a voluntary
// touch of a decoy is near-certain malicious intent.
package correlation

import (
	"fmt"
	"log"

	"github.com/lcalzada-xor/trapwire/internal/config"
	"github.com/lcalzada-xor/trapwire/internal/core/domain"
	"github.com/lcalzada-xor/trapwire/internal/core/ports"
)

const (
	scoreBoost = 30
	trustLoss  = 40
)

// Engine escalates threats whose source IP appears in the decoy log.
// Interaction events arrive over a bounded channel and are flushed to the
// append-only log at correlation time; the log file stays the audit trail and
// the single source of counts.
type Engine struct {
	cfg    config.Thresholds
	source ports.InteractionSource
	sink   ports.InteractionSink

	live chan domain.InteractionRecord
}

// New creates a correlation engine. sink may be nil when no in-process decoy
// bridge is wired; Notify then drops events.
func New(cfg config.Thresholds, source ports.InteractionSource, sink ports.InteractionSink) *Engine {
	return &Engine{
		cfg:    cfg,
		source: source,
		sink:   sink,
		live:   make(chan domain.InteractionRecord, 256),
	}
}

// Notify queues one live interaction event. Drop-on-full keeps decoy bridges
// from ever blocking on the defense loop.
func (e *Engine) Notify(rec domain.InteractionRecord) {
	select {
	case e.live <- rec:
	default:
	}
}

// Correlate flushes pending interaction events, then amends the threat set in
// place and returns it. A missing or unreadable log makes the engine a no-op
// for the cycle.
func (e *Engine) Correlate(threats []domain.Threat) []domain.Threat {
	e.flushLive()

	activity := e.recentActivity()
	if len(activity) == 0 {
		return threats
	}

	for i := range threats {
		count, touched := activity[threats[i].IP]
		if !touched || threats[i].IP == "" {
			continue
		}
		threats[i].Score = min(threats[i].Score+scoreBoost, e.cfg.ScoreCap)
		threats[i].Trust = max(threats[i].Trust-trustLoss, 0)
		threats[i].Flags.Redirected = true
		threats[i].Correlation = fmt.Sprintf("Correlation: Anomaly + Honeypot Interaction (%d events)", count)
	}
	return threats
}

func (e *Engine) flushLive() {
	for {
		select {
		case rec := <-e.live:
			if e.sink == nil {
				continue
			}
			if err := e.sink.AppendInteraction(rec); err != nil {
				log.Printf("Correlation: interaction log append failed: %v", err)
			}
		default:
			return
		}
	}
}

// recentActivity maps source IP to interaction count over the most recent
// window of records.
func (e *Engine) recentActivity() map[string]int {
	records, err := e.source.Recent(e.cfg.CorrelationRows)
	if err != nil {
		log.Printf("Correlation: interaction log unreadable, skipping: %v", err)
		return nil
	}
	activity := make(map[string]int, len(records))
	for _, r := range records {
		if r.SourceIP != "" {
			activity[r.SourceIP]++
		}
	}
	return activity
}
