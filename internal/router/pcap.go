package router

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// RouteFunc publishes one datagram from source.
type RouteFunc func(ctx context.Context, source string, datagram []byte) error

// ReplayOptions controls pcap replay.
type ReplayOptions struct {
	// Port keeps only datagrams sent to this UDP port. Zero keeps all.
	Port uint16
	// Pace sleeps between packets to reproduce the capture timing.
	Pace bool
}

// ReplayStats summarizes a replay run.
type ReplayStats struct {
	Packets int
	Routed  int
	Skipped int
	Failed  int
}

// ReplayPcapFile opens path and replays it through route.
func ReplayPcapFile(ctx context.Context, path string, route RouteFunc, opts ReplayOptions) (ReplayStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return ReplayStats{}, fmt.Errorf("failed to open pcap file: %w", err)
	}
	defer f.Close()
	return ReplayPcap(ctx, f, route, opts)
}

// ReplayPcap feeds the UDP payloads of a pcap stream to route. Non-UDP
// packets are skipped. Route failures are counted, not fatal.
func ReplayPcap(ctx context.Context, r io.Reader, route RouteFunc, opts ReplayOptions) (ReplayStats, error) {
	var stats ReplayStats

	reader, err := pcapgo.NewReader(r)
	if err != nil {
		return stats, fmt.Errorf("failed to read pcap header: %w", err)
	}

	var last time.Time
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		data, ci, err := reader.ReadPacketData()
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		if err != nil {
			return stats, fmt.Errorf("failed to read packet %d: %w", stats.Packets+1, err)
		}
		stats.Packets++

		source, payload, ok := udpPayload(gopacket.NewPacket(data, reader.LinkType(), gopacket.NoCopy), opts.Port)
		if !ok {
			stats.Skipped++
			continue
		}

		if opts.Pace && !last.IsZero() {
			if err := sleep(ctx, ci.Timestamp.Sub(last)); err != nil {
				return stats, err
			}
		}
		last = ci.Timestamp

		if err := route(ctx, source, payload); err != nil {
			stats.Failed++
			continue
		}
		stats.Routed++
	}
}

func udpPayload(packet gopacket.Packet, port uint16) (string, []byte, bool) {
	udpLayer := packet.Layer(layers.LayerTypeUDP)
	if udpLayer == nil {
		return "", nil, false
	}
	udp := udpLayer.(*layers.UDP)
	if port != 0 && uint16(udp.DstPort) != port {
		return "", nil, false
	}

	var ip net.IP
	switch nl := packet.NetworkLayer().(type) {
	case *layers.IPv4:
		ip = nl.SrcIP
	case *layers.IPv6:
		ip = nl.SrcIP
	}

	source := strconv.Itoa(int(udp.SrcPort))
	if ip != nil {
		source = net.JoinHostPort(ip.String(), source)
	}
	return source, append([]byte(nil), udp.Payload...), true
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
