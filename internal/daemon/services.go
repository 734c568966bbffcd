package daemon

import (
	"context"
	"fmt"

	"firestige.xyz/groundview/internal/config"
	"firestige.xyz/groundview/internal/layout"
	"firestige.xyz/groundview/internal/log"
	"firestige.xyz/groundview/internal/router"
	"firestige.xyz/groundview/internal/transport"
	"firestige.xyz/groundview/internal/viewer"
	"firestige.xyz/groundview/pkg/plugin"
)

// Service is a component with a start/stop lifecycle run by the daemon.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Transport hands out publishers and subscribers for one configuration.
// With the memory transport every caller shares a single broker.
type Transport struct {
	cfg    config.TransportConfig
	broker *transport.MemoryBroker
}

// NewTransport prepares the configured transport.
func NewTransport(cfg config.TransportConfig) *Transport {
	t := &Transport{cfg: cfg}
	if cfg.Type == "memory" {
		t.broker = transport.NewMemoryBroker(transport.WithQueueSize(cfg.QueueSize))
	}
	return t
}

// Publisher returns a publisher the caller must close.
func (t *Transport) Publisher() (transport.Publisher, error) {
	if t.broker != nil {
		return nopCloser{t.broker}, nil
	}
	return transport.NewKafkaPublisher(t.cfg.Kafka)
}

// Subscriber returns a subscriber the caller must close.
func (t *Transport) Subscriber() (transport.Subscriber, error) {
	if t.broker != nil {
		return t.broker.NewSubscriber(), nil
	}
	return transport.NewKafkaSubscriber(t.cfg.Kafka)
}

// Shared reports whether publishers and subscribers live in this process.
func (t *Transport) Shared() bool { return t.broker != nil }

// Close releases the shared broker, if any.
func (t *Transport) Close() error {
	if t.broker != nil {
		return t.broker.Close()
	}
	return nil
}

// nopCloser keeps the router from closing the broker the viewer still reads.
type nopCloser struct{ *transport.MemoryBroker }

func (nopCloser) Close() error { return nil }

// routerService binds a router to the publisher it owns.
type routerService struct {
	*router.Router
	pub transport.Publisher
}

func (s *routerService) Stop(ctx context.Context) error {
	err := s.Router.Stop(ctx)
	if cerr := s.pub.Close(); err == nil {
		err = cerr
	}
	return err
}

// newRouter builds the routing service with its own publisher.
func newRouter(cfg *config.GlobalConfig, tr *Transport) (*routerService, error) {
	pub, err := tr.Publisher()
	if err != nil {
		return nil, fmt.Errorf("create publisher: %w", err)
	}
	r := router.New(RouterConfig(cfg), pub)
	return &routerService{Router: r, pub: pub}, nil
}

// RouterConfig maps the global configuration onto a router configuration.
func RouterConfig(cfg *config.GlobalConfig) router.Config {
	return router.Config{
		Listen:     cfg.Router.Listen,
		ReadBuffer: cfg.Router.ReadBuffer,
		SourceTTL:  cfg.Router.SourceTTL,
		Namespace:  cfg.Mission.Namespace,
		Spacecraft: cfg.Mission.Spacecraft,
	}
}

// ViewerEnabled reports whether cfg describes a page to run.
func ViewerEnabled(cfg *config.GlobalConfig) bool {
	return cfg.Viewer.Events || cfg.Viewer.Definition != ""
}

// NewPage builds the configured telemetry page: reporters, the field or
// event consumer, and a receiver on the page topic.
func NewPage(ctx context.Context, cfg *config.GlobalConfig, tr *Transport, onError func(error)) (*viewer.Page, error) {
	reporters, err := NewReporters(cfg.Reporters)
	if err != nil {
		return nil, err
	}

	topic := cfg.Topic()
	opts := []viewer.Option{
		viewer.WithTitle(cfg.Viewer.Title),
		viewer.WithAppID(cfg.Viewer.AppID),
		viewer.WithTopic(topic),
		viewer.WithReporters(reporters...),
		viewer.WithContext(ctx),
	}

	var handler viewer.Handler
	if cfg.Viewer.Events {
		handler = viewer.NewEventConsumer(opts...)
	} else {
		l, err := LoadLayout(cfg.Viewer)
		if err != nil {
			return nil, err
		}
		handler = viewer.NewConsumer(l, opts...)
	}

	sub, err := tr.Subscriber()
	if err != nil {
		return nil, fmt.Errorf("create subscriber: %w", err)
	}

	pageCfg := viewer.PageConfig{Title: cfg.Viewer.Title, Topic: topic, StopTimeout: cfg.Viewer.StopTimeout}
	return viewer.NewPage(pageCfg, sub, handler, reporters, onError), nil
}

// LoadLayout reads the page definition named by the viewer section.
func LoadLayout(vc config.ViewerConfig) (*layout.PacketLayout, error) {
	order, err := layout.ParseEndianness(vc.Endian)
	if err != nil {
		return nil, err
	}
	return layout.Load(vc.Definition, layout.WithEndianness(order), layout.WithCapacity(vc.Capacity))
}

// NewReporters creates and initializes the configured reporter plugins.
// A page without reporters prints to the console.
func NewReporters(rcs []config.ReporterConfig) ([]plugin.Reporter, error) {
	if len(rcs) == 0 {
		rcs = []config.ReporterConfig{{Name: "console"}}
	}

	reporters := make([]plugin.Reporter, 0, len(rcs))
	for _, rc := range rcs {
		r, err := plugin.NewReporter(rc.Name, rc.Config)
		if err != nil {
			return nil, err
		}
		log.GetLogger().WithField("reporter", rc.Name).Debug("reporter initialized")
		reporters = append(reporters, r)
	}
	return reporters, nil
}
