// Package sniffer feeds the defense loop with per-MAC traffic counters from a
// live packet window on the AP interface. Only L2/L3/L4 headers are read;
// payloads are never inspected.
package sniffer

import (
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/lcalzada-xor/trapwire/internal/core/domain"
	"github.com/lcalzada-xor/trapwire/internal/telemetry"
)

// FlowCollector aggregates one analysis window of packets into per-MAC
// FlowStats. Keys are canonical MACs, matching registry identity; per-IP
// tracking is deliberately absent.
type FlowCollector struct {
	mu          sync.Mutex
	stats       map[string]*domain.FlowStats
	windowStart time.Time
	iface       string
}

// NewFlowCollector returns an empty collector for the given interface name
// (used only for metric labels).
func NewFlowCollector(iface string) *FlowCollector {
	return &FlowCollector{
		stats:       make(map[string]*domain.FlowStats),
		windowStart: time.Now(),
		iface:       iface,
	}
}

// Ingest consumes one captured packet. Packets without a link layer are
// ignored; TCP destination ports land in the source MAC's port set.
func (c *FlowCollector) Ingest(pkt gopacket.Packet) {
	ethLayer := pkt.Layer(layers.LayerTypeEthernet)
	if ethLayer == nil {
		return
	}
	eth := ethLayer.(*layers.Ethernet)
	mac := domain.NormalizeMAC(eth.SrcMAC.String())

	port := -1
	if tcpLayer := pkt.Layer(layers.LayerTypeTCP); tcpLayer != nil {
		port = int(tcpLayer.(*layers.TCP).DstPort)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.stats[mac]
	if !ok {
		s = domain.NewFlowStats(c.windowStart)
		c.stats[mac] = s
	}
	s.AddPacket(port)
	telemetry.PacketsCaptured.WithLabelValues(c.iface).Inc()
}

// Harvest returns the accumulated stats and resets the collector for the next
// window. The caller owns the returned map.
func (c *FlowCollector) Harvest(now time.Time) map[string]*domain.FlowStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.stats
	c.stats = make(map[string]*domain.FlowStats)
	c.windowStart = now
	return out
}

// WindowStart returns the start of the current window.
func (c *FlowCollector) WindowStart() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.windowStart
}
