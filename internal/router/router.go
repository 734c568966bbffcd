// Package router ingests telemetry datagrams over UDP and republishes them
// on per-stream topics.
package router

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"firestige.xyz/groundview/internal/log"
	"firestige.xyz/groundview/internal/metrics"
	"firestige.xyz/groundview/internal/transport"
)

const (
	defaultReadBuffer = 65535
	defaultSourceTTL  = 10 * time.Minute

	// streamIDLength is the leading big-endian stream id word.
	streamIDLength = 2
)

// Config configures a Router.
type Config struct {
	Listen     string
	ReadBuffer int
	SourceTTL  time.Duration
	Namespace  string
	Spacecraft string
}

// Router reads datagrams and publishes each one on
// <namespace>.<spacecraft>.TelemetryPackets.<stream id>, with the sender
// address as the message address.
type Router struct {
	cfg     Config
	pub     transport.Publisher
	sources *cache.Cache
	logger  log.Logger

	mu     sync.Mutex
	conn   *net.UDPConn
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a router. The publisher stays owned by the caller.
func New(cfg Config, pub transport.Publisher) *Router {
	if cfg.ReadBuffer <= 0 {
		cfg.ReadBuffer = defaultReadBuffer
	}
	if cfg.SourceTTL <= 0 {
		cfg.SourceTTL = defaultSourceTTL
	}
	return &Router{
		cfg:     cfg,
		pub:     pub,
		sources: cache.New(cfg.SourceTTL, cfg.SourceTTL/2),
		logger:  log.GetLogger().WithField("component", "router"),
	}
}

// Name identifies the router as a daemon service.
func (r *Router) Name() string { return "router" }

// Start binds the UDP socket and starts the read loop.
func (r *Router) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", r.cfg.Listen)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)

	r.mu.Lock()
	r.conn = conn
	r.cancel = cancel
	r.mu.Unlock()

	r.logger.WithField("addr", conn.LocalAddr().String()).Info("router started")

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.readLoop(ctx, conn)
	}()
	return nil
}

func (r *Router) readLoop(ctx context.Context, conn *net.UDPConn) {
	// One spare byte tells a datagram that filled the buffer from a truncated one.
	buf := make([]byte, r.cfg.ReadBuffer+1)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			r.logger.WithError(err).Warn("failed to read datagram")
			continue
		}
		if n > r.cfg.ReadBuffer {
			metrics.PacketsDroppedTotal.WithLabelValues("router", metrics.DropOversize).Inc()
			r.logger.WithField("source", from.String()).WithField("read_buffer", r.cfg.ReadBuffer).
				Warn("datagram larger than read buffer dropped")
			continue
		}

		datagram := append([]byte(nil), buf[:n]...)
		if err := r.Route(ctx, from.String(), datagram); err != nil && ctx.Err() == nil {
			r.logger.WithError(err).Debug("datagram not routed")
		}
	}
}

// Route publishes one datagram from source. It is the shared path for
// live UDP input and pcap replay.
func (r *Router) Route(ctx context.Context, source string, datagram []byte) error {
	if len(datagram) < streamIDLength {
		metrics.PacketsDroppedTotal.WithLabelValues("router", metrics.DropMalformed).Inc()
		return fmt.Errorf("datagram of %d bytes has no stream id", len(datagram))
	}

	appID := transport.FormatAppID(binary.BigEndian.Uint16(datagram[:streamIDLength]))
	r.trackSource(source, appID)
	metrics.RouterDatagramsTotal.WithLabelValues(appID).Inc()

	topic := transport.TelemetryTopic(r.cfg.Namespace, r.cfg.Spacecraft, appID)
	if err := r.pub.Publish(ctx, topic, transport.Message{Address: []byte(source), Payload: datagram}); err != nil {
		metrics.RouterPublishErrorsTotal.Inc()
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (r *Router) trackSource(source, appID string) {
	if _, found := r.sources.Get(source); !found {
		r.logger.WithField("source", source).WithField("app_id", appID).Info("new telemetry source")
	}
	r.sources.SetDefault(source, time.Now())
	metrics.RouterSources.Set(float64(r.sources.ItemCount()))
}

// Sources lists sender addresses seen within the source TTL.
func (r *Router) Sources() []string {
	items := r.sources.Items()
	out := make([]string, 0, len(items))
	for k := range items {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Addr returns the bound UDP address, or nil before Start.
func (r *Router) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	return r.conn.LocalAddr()
}

// Stop closes the socket and waits for the read loop.
func (r *Router) Stop(ctx context.Context) error {
	r.mu.Lock()
	conn, cancel := r.conn, r.cancel
	r.conn, r.cancel = nil, nil
	r.mu.Unlock()

	if conn == nil {
		return nil
	}
	cancel()
	err := conn.Close()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	r.logger.Info("router stopped")
	return err
}
