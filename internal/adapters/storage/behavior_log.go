package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/lcalzada-xor/trapwire/internal/core/ports"
)

const timeLayout = "2006-01-02 15:04:05"

var behaviorHeader = []string{"timestamp", "ip", "mac", "packet_rate", "packets", "unique_ports", "score", "label"}

// BehaviorCSV is the append-only observation log. One row per online device
// per cycle; the detector consumes it for training.
type BehaviorCSV struct {
	mu   sync.Mutex
	path string
}

// NewBehaviorCSV appends to the given file, writing the header on creation.
func NewBehaviorCSV(path string) *BehaviorCSV {
	return &BehaviorCSV{path: path}
}

func (b *BehaviorCSV) Append(obs ports.Observation) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	writeHeader := false
	if _, err := os.Stat(b.path); os.IsNotExist(err) {
		writeHeader = true
	}

	f, err := os.OpenFile(b.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open behavior log: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(behaviorHeader); err != nil {
			return err
		}
	}
	row := []string{
		obs.Timestamp.Format(timeLayout),
		obs.IP,
		obs.MAC,
		strconv.FormatFloat(obs.PacketRate, 'f', 2, 64),
		strconv.Itoa(obs.Packets),
		strconv.Itoa(obs.UniquePorts),
		strconv.Itoa(obs.Score),
		strconv.Itoa(obs.Label),
	}
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// Load returns every parseable observation. Malformed rows are skipped, not
// fatal: the log may be mid-append or hand-edited.
func (b *BehaviorCSV) Load() ([]ports.Observation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := os.Open(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open behavior log: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var out []ports.Observation
	for {
		row, err := r.Read()
		if err != nil {
			break
		}
		if len(row) < 8 || row[0] == "timestamp" {
			continue
		}
		ts, err := time.Parse(timeLayout, row[0])
		if err != nil {
			continue
		}
		rate, err := strconv.ParseFloat(row[3], 64)
		if err != nil {
			continue
		}
		packets, _ := strconv.Atoi(row[4])
		uniquePorts, _ := strconv.Atoi(row[5])
		score, _ := strconv.Atoi(row[6])
		label, _ := strconv.Atoi(row[7])

		out = append(out, ports.Observation{
			Timestamp:   ts,
			IP:          row[1],
			MAC:         row[2],
			PacketRate:  rate,
			Packets:     packets,
			UniquePorts: uniquePorts,
			Score:       score,
			Label:       label,
		})
	}
	return out, nil
}

var _ ports.BehaviorLog = (*BehaviorCSV)(nil)
