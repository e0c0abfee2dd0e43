package sniffer

import (
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTCPPacket(t *testing.T, srcMAC string, dstPort uint16) gopacket.Packet {
	t.Helper()
	mac, err := net.ParseMAC(srcMAC)
	require.NoError(t, err)

	eth := &layers.Ethernet{
		SrcMAC:       mac,
		DstMAC:       net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.IP{192, 168, 10, 21},
		DstIP:    net.IP{192, 168, 10, 1},
	}
	tcp := &layers.TCP{SrcPort: 51000, DstPort: layers.TCPPort(dstPort), SYN: true}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, tcp))

	return gopacket.NewPacket(buf.Bytes(), layers.LayerTypeEthernet, gopacket.Default)
}

func buildARPPacket(t *testing.T, srcMAC string) gopacket.Packet {
	t.Helper()
	mac, err := net.ParseMAC(srcMAC)
	require.NoError(t, err)

	eth := &layers.Ethernet{
		SrcMAC:       mac,
		DstMAC:       net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		EthernetType: layers.EthernetTypeARP,
	}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   mac,
		SourceProtAddress: []byte{192, 168, 10, 21},
		DstHwAddress:      make([]byte, 6),
		DstProtAddress:    []byte{192, 168, 10, 1},
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, arp))

	return gopacket.NewPacket(buf.Bytes(), layers.LayerTypeEthernet, gopacket.Default)
}

func TestFlowCollector_AggregatesByMAC(t *testing.T) {
	c := NewFlowCollector("test0")

	c.Ingest(buildTCPPacket(t, "aa:bb:cc:dd:ee:01", 22))
	c.Ingest(buildTCPPacket(t, "aa:bb:cc:dd:ee:01", 80))
	c.Ingest(buildTCPPacket(t, "aa:bb:cc:dd:ee:01", 80))
	c.Ingest(buildTCPPacket(t, "AA:BB:CC:DD:EE:02", 443))

	stats := c.Harvest(time.Now())
	require.Len(t, stats, 2)

	s1 := stats["aa:bb:cc:dd:ee:01"]
	require.NotNil(t, s1)
	assert.Equal(t, 3, s1.Packets)
	assert.Equal(t, 2, s1.UniquePorts(), "duplicate ports collapse")

	s2 := stats["aa:bb:cc:dd:ee:02"]
	require.NotNil(t, s2, "MAC keys are canonical lowercase")
	assert.Equal(t, 1, s2.Packets)
}

func TestFlowCollector_NonTCPCountsPacketsOnly(t *testing.T) {
	c := NewFlowCollector("test0")
	c.Ingest(buildARPPacket(t, "aa:bb:cc:dd:ee:01"))

	stats := c.Harvest(time.Now())
	s := stats["aa:bb:cc:dd:ee:01"]
	require.NotNil(t, s)
	assert.Equal(t, 1, s.Packets)
	assert.Equal(t, 0, s.UniquePorts())
}

func TestFlowCollector_HarvestResets(t *testing.T) {
	c := NewFlowCollector("test0")
	c.Ingest(buildTCPPacket(t, "aa:bb:cc:dd:ee:01", 22))

	first := c.Harvest(time.Now())
	assert.Len(t, first, 1)

	second := c.Harvest(time.Now())
	assert.Empty(t, second, "stats are cleared at cycle boundary")
}

func TestFlowStatsRate_MinimumDivisor(t *testing.T) {
	c := NewFlowCollector("test0")
	c.Ingest(buildTCPPacket(t, "aa:bb:cc:dd:ee:01", 22))
	c.Ingest(buildTCPPacket(t, "aa:bb:cc:dd:ee:01", 22))

	stats := c.Harvest(time.Now())
	s := stats["aa:bb:cc:dd:ee:01"]
	// Window just opened: elapsed ~0s, divisor clamps to 1s.
	assert.InDelta(t, 2.0, s.Rate(s.WindowStart), 0.01)
}
