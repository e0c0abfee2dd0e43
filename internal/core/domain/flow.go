package domain

import "time"

// FlowStats accumulates per-MAC traffic counters for one analysis window.
// It is cleared at every cycle boundary and never persisted.
type FlowStats struct {
	Packets     int
	Ports       map[uint16]struct{}
	WindowStart time.Time
}

// NewFlowStats returns an empty counter set for the window starting now.
func NewFlowStats(start time.Time) *FlowStats {
	return &FlowStats{Ports: make(map[uint16]struct{}), WindowStart: start}
}

// AddPacket records one link-layer packet; port is the TCP destination port,
// or negative when the packet carried no TCP segment.
func (f *FlowStats) AddPacket(port int) {
	f.Packets++
	if port >= 0 && port <= 0xffff {
		f.Ports[uint16(port)] = struct{}{}
	}
}

// UniquePorts returns the number of distinct TCP destination ports observed.
func (f *FlowStats) UniquePorts() int {
	return len(f.Ports)
}

// Rate returns packets per second over the elapsed window. A minimum divisor
// of one second prevents blow-up on very short windows.
func (f *FlowStats) Rate(now time.Time) float64 {
	dur := now.Sub(f.WindowStart).Seconds()
	if dur < 1 {
		dur = 1
	}
	return float64(f.Packets) / dur
}
