package router

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/groundview/internal/core"
	"firestige.xyz/groundview/internal/transport"
)

const prefix = "GroundSystem.Spacecraft1.TelemetryPackets"

func newTestRouter(t *testing.T) (*Router, *transport.MemoryBroker) {
	t.Helper()
	broker := transport.NewMemoryBroker(transport.WithQueueSize(16))
	t.Cleanup(func() { broker.Close() })

	r := New(Config{
		Listen:     "127.0.0.1:0",
		Namespace:  "GroundSystem",
		Spacecraft: "Spacecraft1",
	}, broker)
	return r, broker
}

func subscribe(t *testing.T, broker *transport.MemoryBroker, topic string) *transport.MemorySubscriber {
	t.Helper()
	sub := broker.NewSubscriber()
	require.NoError(t, sub.Subscribe(topic))
	t.Cleanup(func() { sub.Close() })
	return sub
}

func receive(t *testing.T, sub *transport.MemorySubscriber) transport.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg, err := sub.Receive(ctx)
	require.NoError(t, err)
	return msg
}

func TestRoutePublishesOnStreamTopic(t *testing.T) {
	r, broker := newTestRouter(t)
	sub := subscribe(t, broker, prefix+".0x808")

	datagram := []byte{0x08, 0x08, 0xC0, 0x01, 0xAA}
	require.NoError(t, r.Route(context.Background(), "10.0.0.5:1234", datagram))

	msg := receive(t, sub)
	assert.Equal(t, datagram, msg.Payload)
	assert.Equal(t, []byte("10.0.0.5:1234"), msg.Address)
	assert.Equal(t, []string{"10.0.0.5:1234"}, r.Sources())
}

func TestRouteDropsShortDatagram(t *testing.T) {
	r, broker := newTestRouter(t)
	sub := subscribe(t, broker, prefix)

	assert.Error(t, r.Route(context.Background(), "10.0.0.5:1234", []byte{0x08}))
	assert.Empty(t, r.Sources())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := sub.Receive(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestRoutePublishFailure(t *testing.T) {
	r, broker := newTestRouter(t)
	require.NoError(t, broker.Close())

	err := r.Route(context.Background(), "10.0.0.5:1234", []byte{0x08, 0x00})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrClosed))
}

func TestRouterUDP(t *testing.T) {
	r, broker := newTestRouter(t)
	sub := subscribe(t, broker, prefix)

	require.NoError(t, r.Start(context.Background()))
	defer r.Stop(context.Background())
	assert.Equal(t, "router", r.Name())

	conn, err := net.Dial("udp", r.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte{0x08, 0x00, 0xC0, 0x07, 0x01, 0x02})
	require.NoError(t, err)

	msg := receive(t, sub)
	assert.Equal(t, []byte{0x08, 0x00, 0xC0, 0x07, 0x01, 0x02}, msg.Payload)
	assert.Equal(t, conn.LocalAddr().String(), string(msg.Address))
	assert.Len(t, r.Sources(), 1)
}

func TestRouterDropsOversizeDatagram(t *testing.T) {
	broker := transport.NewMemoryBroker(transport.WithQueueSize(16))
	t.Cleanup(func() { broker.Close() })
	sub := subscribe(t, broker, prefix)

	r := New(Config{
		Listen:     "127.0.0.1:0",
		ReadBuffer: 8,
		Namespace:  "GroundSystem",
		Spacecraft: "Spacecraft1",
	}, broker)
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop(context.Background())

	conn, err := net.Dial("udp", r.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte{0x08, 0x00, 0xC0, 0x01, 1, 2, 3, 4, 5})
	require.NoError(t, err)
	_, err = conn.Write([]byte{0x08, 0x00, 0xC0, 0x02, 1, 2, 3, 4})
	require.NoError(t, err)

	msg := receive(t, sub)
	assert.Equal(t, []byte{0x08, 0x00, 0xC0, 0x02, 1, 2, 3, 4}, msg.Payload)
}

func TestRouterStopIsIdempotent(t *testing.T) {
	r, _ := newTestRouter(t)
	assert.Nil(t, r.Addr())
	assert.NoError(t, r.Stop(context.Background()))

	require.NoError(t, r.Start(context.Background()))
	require.NoError(t, r.Stop(context.Background()))
	assert.NoError(t, r.Stop(context.Background()))
	assert.Nil(t, r.Addr())
}

func TestRouterStartBadAddress(t *testing.T) {
	r := New(Config{Listen: "not-an-address"}, transport.NewMemoryBroker())
	assert.Error(t, r.Start(context.Background()))
}

// writeCapture builds an ethernet pcap holding the given packets.
func writeCapture(t *testing.T, packets ...[]gopacket.SerializableLayer) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	w := pcapgo.NewWriter(&buf)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, ls := range packets {
		sb := gopacket.NewSerializeBuffer()
		require.NoError(t, gopacket.SerializeLayers(sb, gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}, ls...))
		data := sb.Bytes()
		ci := gopacket.CaptureInfo{
			Timestamp:     ts.Add(time.Duration(i) * time.Millisecond),
			CaptureLength: len(data),
			Length:        len(data),
		}
		require.NoError(t, w.WritePacket(ci, data))
	}
	return &buf
}

func udpFrame(t *testing.T, dstPort uint16, payload []byte) []gopacket.SerializableLayer {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
		DstMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 6},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4(192, 168, 1, 10),
		DstIP:    net.IPv4(192, 168, 1, 20),
	}
	udp := &layers.UDP{SrcPort: 5000, DstPort: layers.UDPPort(dstPort)}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	return []gopacket.SerializableLayer{eth, ip, udp, gopacket.Payload(payload)}
}

func tcpFrame(t *testing.T) []gopacket.SerializableLayer {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
		DstMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 6},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.IPv4(192, 168, 1, 10),
		DstIP:    net.IPv4(192, 168, 1, 20),
	}
	tcp := &layers.TCP{SrcPort: 5000, DstPort: 80, Window: 1024}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))
	return []gopacket.SerializableLayer{eth, ip, tcp, gopacket.Payload([]byte("GET /"))}
}

func TestReplayPcapRoutesUDPPayloads(t *testing.T) {
	r, broker := newTestRouter(t)
	sub := subscribe(t, broker, prefix)

	capture := writeCapture(t,
		udpFrame(t, 1234, []byte{0x08, 0x00, 0xC0, 0x01}),
		tcpFrame(t),
		udpFrame(t, 9999, []byte{0x08, 0x01, 0xC0, 0x02}),
		udpFrame(t, 1234, []byte{0x08, 0x02, 0xC0, 0x03}),
	)

	stats, err := ReplayPcap(context.Background(), capture, r.Route, ReplayOptions{Port: 1234})
	require.NoError(t, err)
	assert.Equal(t, ReplayStats{Packets: 4, Routed: 2, Skipped: 2}, stats)

	first := receive(t, sub)
	assert.Equal(t, []byte{0x08, 0x00, 0xC0, 0x01}, first.Payload)
	assert.Equal(t, "192.168.1.10:5000", string(first.Address))

	second := receive(t, sub)
	assert.Equal(t, []byte{0x08, 0x02, 0xC0, 0x03}, second.Payload)
}

func TestReplayPcapCountsRouteFailures(t *testing.T) {
	capture := writeCapture(t,
		udpFrame(t, 1234, []byte{0x08}),
		udpFrame(t, 1234, []byte{0x08, 0x00}),
	)
	r, _ := newTestRouter(t)

	stats, err := ReplayPcap(context.Background(), capture, r.Route, ReplayOptions{Pace: true})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Routed)
}

func TestReplayPcapRejectsGarbage(t *testing.T) {
	_, err := ReplayPcap(context.Background(), bytes.NewReader([]byte("not a capture")), func(context.Context, string, []byte) error {
		return nil
	}, ReplayOptions{})
	assert.Error(t, err)
}

func TestReplayPcapHonoursContext(t *testing.T) {
	capture := writeCapture(t, udpFrame(t, 1234, []byte{0x08, 0x00}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ReplayPcap(ctx, capture, func(context.Context, string, []byte) error { return nil }, ReplayOptions{})
	assert.True(t, errors.Is(err, context.Canceled))
}
