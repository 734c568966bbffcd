package viewer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"firestige.xyz/groundview/internal/log"
	"firestige.xyz/groundview/internal/receiver"
	"firestige.xyz/groundview/internal/transport"
	"firestige.xyz/groundview/pkg/plugin"
)

// Page runs one subscription: a receiver feeding a handler whose frames go
// to the page's reporters.
type Page struct {
	title       string
	topic       string
	stopTimeout time.Duration
	handler     Handler
	reporters   []plugin.Reporter
	receiver    *receiver.Receiver
	logger      log.Logger
}

// PageConfig describes a page to build.
type PageConfig struct {
	Title       string
	Topic       string
	StopTimeout time.Duration
}

// NewPage wires sub to handler. The page owns sub and the reporters.
func NewPage(cfg PageConfig, sub transport.Subscriber, handler Handler, reporters []plugin.Reporter, onError func(error)) *Page {
	p := &Page{
		title:       cfg.Title,
		topic:       cfg.Topic,
		stopTimeout: cfg.StopTimeout,
		handler:     handler,
		reporters:   reporters,
		logger:      log.GetLogger().WithField("page", cfg.Title),
	}
	opts := []receiver.Option{receiver.WithLogger(p.logger)}
	if onError != nil {
		opts = append(opts, receiver.WithErrorHandler(onError))
	}
	p.receiver = receiver.New(sub, handler.Handle, opts...)
	return p
}

// Name identifies the page as a daemon service.
func (p *Page) Name() string { return "viewer" }

// Start starts the reporters, then the receiver. Reporters already started
// are stopped again if a later step fails.
func (p *Page) Start(ctx context.Context) error {
	for i, r := range p.reporters {
		if err := r.Start(ctx); err != nil {
			p.stopReporters(ctx, p.reporters[:i])
			return fmt.Errorf("start reporter %s: %w", r.Name(), err)
		}
	}

	if err := p.receiver.Start(p.topic); err != nil {
		p.stopReporters(ctx, p.reporters)
		return err
	}
	return nil
}

// Stop stops the receiver within the page's stop timeout, then flushes and
// stops reporters in reverse order.
func (p *Page) Stop(ctx context.Context) error {
	errs := []error{p.receiver.Stop(p.stopTimeout)}
	errs = append(errs, p.stopReporters(ctx, p.reporters)...)
	return errors.Join(errs...)
}

func (p *Page) stopReporters(ctx context.Context, rs []plugin.Reporter) []error {
	var errs []error
	for i := len(rs) - 1; i >= 0; i-- {
		r := rs[i]
		if err := r.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush reporter %s: %w", r.Name(), err))
		}
		if err := r.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop reporter %s: %w", r.Name(), err))
		}
	}
	return errs
}

// Done is closed when the receiver stops, including on transport failure.
func (p *Page) Done() <-chan struct{} { return p.receiver.Done() }

// Err returns the transport error that stopped the page, if any.
func (p *Page) Err() error { return p.receiver.Err() }

func (p *Page) Topic() string { return p.topic }

// State returns the receiver lifecycle state.
func (p *Page) State() receiver.State { return p.receiver.State() }

// Title returns the page title.
func (p *Page) Title() string { return p.title }
