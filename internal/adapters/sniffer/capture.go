package sniffer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
)

const snapLen = 65536

// PcapSource owns the live capture handle on the AP interface. One handle is
// opened for the process lifetime and drained window by window.
type PcapSource struct {
	iface   string
	handle  *pcap.Handle
	packets chan gopacket.Packet
}

// NewPcapSource opens a live handle in promiscuous mode.
func NewPcapSource(iface string) (*PcapSource, error) {
	handle, err := pcap.OpenLive(iface, snapLen, true, pcap.BlockForever)
	if err != nil {
		return nil, fmt.Errorf("open capture on %s: %w", iface, err)
	}

	src := &PcapSource{iface: iface, handle: handle}
	src.packets = gopacket.NewPacketSource(handle, handle.LinkType()).Packets()
	return src, nil
}

// CaptureWindow feeds packets into the collector until the window elapses or
// the context is cancelled. Partial windows are acceptable; the analyze phase
// divides by elapsed time.
func (s *PcapSource) CaptureWindow(ctx context.Context, window time.Duration, collector *FlowCollector) {
	deadline := time.NewTimer(window)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			return
		case pkt, ok := <-s.packets:
			if !ok {
				return
			}
			collector.Ingest(pkt)
		}
	}
}

// Close releases the capture handle.
func (s *PcapSource) Close() {
	if s.handle != nil {
		s.handle.Close()
	}
}
