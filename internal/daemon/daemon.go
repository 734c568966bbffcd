// Package daemon implements the groundview process lifecycle.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"firestige.xyz/groundview/internal/command"
	"firestige.xyz/groundview/internal/config"
	"firestige.xyz/groundview/internal/log"
	"firestige.xyz/groundview/internal/metrics"
	"firestige.xyz/groundview/internal/viewer"
)

// Version is set at build time with -ldflags "-X firestige.xyz/groundview/internal/daemon.Version=...".
var Version = "0.1.0"

// Daemon runs the configured services: the routing service and a telemetry
// page, plus the metrics server.
type Daemon struct {
	// Configuration
	config     *config.GlobalConfig
	configPath string
	pidFile    string

	// Core components
	transport     *Transport
	mu            sync.RWMutex
	services      []Service
	page          *viewer.Page   // nil if no page configured
	router        *routerService // nil if router disabled
	metricsServer *metrics.Server // nil if metrics disabled
	startTime     time.Time

	// Lifecycle management
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownChan chan struct{}
	sigChan      chan os.Signal
	stopOnce     sync.Once
	stopErr      error
}

// New loads configPath and creates a daemon. A missing file runs on defaults.
func New(configPath, pidFile string) (*Daemon, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return NewWithConfig(cfg, configPath, pidFile), nil
}

// NewWithConfig creates a daemon from an already validated configuration.
// configPath is only read again on reload and may be empty.
func NewWithConfig(cfg *config.GlobalConfig, configPath, pidFile string) *Daemon {
	d := &Daemon{
		config:       cfg,
		configPath:   configPath,
		pidFile:      pidFile,
		shutdownChan: make(chan struct{}, 1),
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d
}

// Start initializes logging and metrics, then starts every service in
// order. A failing service stops the ones already running.
func (d *Daemon) Start() error {
	// 1. Initialize logging system
	if err := log.Init(d.config.Log); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger := log.GetLogger()
	logger.WithFields(map[string]interface{}{
		"config":     d.configPath,
		"namespace":  d.config.Mission.Namespace,
		"spacecraft": d.config.Mission.Spacecraft,
		"transport":  d.config.Transport.Type,
	}).Info("starting groundview daemon")

	// 2. Write PID file
	if err := d.writePIDFile(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	// 3. Start metrics server
	if err := d.startMetrics(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	// 4. Build services
	if err := d.buildServices(); err != nil {
		d.shutdown()
		return err
	}
	if len(d.services) == 0 {
		d.shutdown()
		return errors.New("nothing to run: enable the router or configure a viewer page")
	}
	if err := d.buildControl(); err != nil {
		d.shutdown()
		return err
	}
	d.startTime = time.Now()

	// 5. Start services in order
	for i, s := range d.services {
		if err := s.Start(d.ctx); err != nil {
			d.services = d.services[:i]
			d.shutdown()
			return fmt.Errorf("failed to start %s: %w", s.Name(), err)
		}
		logger.WithField("service", s.Name()).Info("service started")
	}

	logger.Info("daemon started successfully")
	return nil
}

func (d *Daemon) buildServices() error {
	d.transport = NewTransport(d.config.Transport)

	if d.config.Router.Enabled {
		rs, err := newRouter(d.config, d.transport)
		if err != nil {
			return fmt.Errorf("failed to create router: %w", err)
		}
		d.router = rs
		d.services = append(d.services, rs)
	}

	if ViewerEnabled(d.config) {
		page, err := NewPage(d.ctx, d.config, d.transport, func(err error) {
			log.GetLogger().WithError(err).Error("telemetry page stopped on transport error")
		})
		if err != nil {
			return fmt.Errorf("failed to create viewer page: %w", err)
		}
		d.page = page
		d.services = append(d.services, page)
	}
	return nil
}

// buildControl prepends the control channels so they start first and
// stop last.
func (d *Daemon) buildControl() error {
	handler := command.NewCommandHandler(d)
	var control []Service

	if d.config.Control.Socket != "" {
		control = append(control, command.NewUDSServer(d.config.Control.Socket, handler))
	}
	if d.config.Control.Kafka.Enabled {
		consumer, err := command.NewKafkaCommandConsumer(d.config.Control, d.config.Transport.Kafka.Brokers, handler)
		if err != nil {
			return fmt.Errorf("failed to create kafka command consumer: %w", err)
		}
		control = append(control, consumer)
	}

	d.services = append(control, d.services...)
	return nil
}

// Run blocks until shutdown is triggered by SIGTERM/SIGINT, by
// TriggerShutdown, or by the page stopping on its own. SIGHUP reloads the
// log configuration.
func (d *Daemon) Run() error {
	d.sigChan = make(chan os.Signal, 1)
	signal.Notify(d.sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	var pageDone <-chan struct{}
	if d.page != nil {
		pageDone = d.page.Done()
	}

	logger := log.GetLogger()
	logger.Info("daemon running, waiting for signals")

	for {
		select {
		case sig := <-d.sigChan:
			switch sig {
			case syscall.SIGTERM, syscall.SIGINT:
				logger.WithField("signal", sig.String()).Info("received shutdown signal")
				return d.Stop()

			case syscall.SIGHUP:
				logger.Info("received reload signal")
				if err := d.Reload(); err != nil {
					logger.WithError(err).Error("failed to reload config")
				}
			}

		case <-d.shutdownChan:
			logger.Info("shutdown triggered")
			return d.Stop()

		case <-pageDone:
			err := d.page.Err()
			logger.WithError(err).Warn("telemetry page stopped")
			if stopErr := d.Stop(); stopErr != nil {
				logger.WithError(stopErr).Error("error during shutdown")
			}
			return err

		case <-d.ctx.Done():
			logger.WithError(d.ctx.Err()).Info("context cancelled")
			d.Stop()
			return d.ctx.Err()
		}
	}
}

// Stop stops services in reverse start order, each within the viewer stop
// timeout, then releases the transport and metrics server. Safe to call
// more than once.
func (d *Daemon) Stop() error {
	d.stopOnce.Do(func() {
		log.GetLogger().Info("initiating graceful shutdown")
		d.stopErr = d.shutdown()
		log.GetLogger().Info("daemon stopped gracefully")
	})
	return d.stopErr
}

func (d *Daemon) shutdown() error {
	logger := log.GetLogger()
	var errs []error

	d.mu.Lock()
	services := d.services
	d.services = nil
	d.mu.Unlock()

	// 1. Stop services in reverse order
	for i := len(services) - 1; i >= 0; i-- {
		s := services[i]
		ctx, cancel := context.WithTimeout(context.Background(), d.config.Viewer.StopTimeout)
		if err := s.Stop(ctx); err != nil {
			logger.WithError(err).WithField("service", s.Name()).Error("error stopping service")
			errs = append(errs, fmt.Errorf("stop %s: %w", s.Name(), err))
		}
		cancel()
	}

	// 2. Release the shared broker
	if d.transport != nil {
		if err := d.transport.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	// 3. Stop metrics server
	if d.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := d.metricsServer.Stop(ctx); err != nil {
			logger.WithError(err).Error("error stopping metrics server")
		}
		cancel()
		d.metricsServer = nil
	}

	// 4. Cancel context and unregister signals
	d.cancel()
	if d.sigChan != nil {
		signal.Stop(d.sigChan)
	}

	// 5. Remove PID file
	if err := d.removePIDFile(); err != nil {
		logger.WithError(err).Error("error removing PID file")
	}

	return errors.Join(errs...)
}

// Reload re-reads the configuration file and applies the log settings.
// Everything else requires a restart.
func (d *Daemon) Reload() error {
	if d.configPath == "" {
		return errors.New("no configuration file to reload")
	}

	newConfig, err := config.Load(d.configPath)
	if err != nil {
		return fmt.Errorf("failed to load new config: %w", err)
	}
	if err := log.Init(newConfig.Log); err != nil {
		return fmt.Errorf("failed to reinitialize logging: %w", err)
	}
	d.config.Log = newConfig.Log

	log.GetLogger().WithFields(map[string]interface{}{
		"level":  newConfig.Log.Level,
		"format": newConfig.Log.Format,
	}).Info("configuration reloaded")
	return nil
}

// TriggerShutdown asks Run to stop the daemon.
func (d *Daemon) TriggerShutdown() {
	select {
	case d.shutdownChan <- struct{}{}:
	default:
	}
}

// Status reports the running services for the control plane.
func (d *Daemon) Status() command.Status {
	st := command.Status{
		Version:    Version,
		UptimeSec:  int64(time.Since(d.startTime).Seconds()),
		Namespace:  d.config.Mission.Namespace,
		Spacecraft: d.config.Mission.Spacecraft,
		Transport:  d.config.Transport.Type,
		Services:   d.Services(),
	}
	if d.page != nil {
		ps := &command.PageStatus{
			Title: d.page.Title(),
			Topic: d.page.Topic(),
			State: d.page.State().String(),
		}
		if err := d.page.Err(); err != nil {
			ps.Error = err.Error()
		}
		st.Page = ps
	}
	if d.router != nil {
		rs := &command.RouterStatus{Listen: d.config.Router.Listen, Sources: d.router.Sources()}
		if addr := d.router.Addr(); addr != nil {
			rs.Listen = addr.String()
		}
		st.Router = rs
	}
	return st
}

// Services lists the names of the running services in start order.
func (d *Daemon) Services() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.services))
	for _, s := range d.services {
		names = append(names, s.Name())
	}
	return names
}

// Config returns the active configuration.
func (d *Daemon) Config() *config.GlobalConfig { return d.config }

// startMetrics starts the metrics HTTP server if enabled.
func (d *Daemon) startMetrics() error {
	if !d.config.Metrics.Enabled {
		log.GetLogger().Debug("metrics server disabled")
		return nil
	}

	d.metricsServer = metrics.NewServer(d.config.Metrics.Listen, d.config.Metrics.Path)
	return d.metricsServer.Start(d.ctx)
}

// writePIDFile writes the current process ID to the PID file.
func (d *Daemon) writePIDFile() error {
	if d.pidFile == "" {
		return nil
	}

	pid := os.Getpid()
	if err := os.WriteFile(d.pidFile, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return fmt.Errorf("failed to write PID file %s: %w", d.pidFile, err)
	}

	log.GetLogger().WithField("path", d.pidFile).WithField("pid", pid).Debug("PID file written")
	return nil
}

// removePIDFile removes the PID file.
func (d *Daemon) removePIDFile() error {
	if d.pidFile == "" {
		return nil
	}

	if err := os.Remove(d.pidFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file %s: %w", d.pidFile, err)
	}
	return nil
}
