// Package receiver runs the asynchronous telemetry receive loop.
//
// A Receiver reads two-part messages from a transport.Subscriber on one
// goroutine, drops the address frame, and hands each payload through a
// capacity-1 channel to a second goroutine that invokes the callback. The
// callback therefore runs serially, in arrival order, and never blocks the
// transport for longer than one buffered packet.
package receiver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"firestige.xyz/groundview/internal/core"
	"firestige.xyz/groundview/internal/log"
	"firestige.xyz/groundview/internal/metrics"
	"firestige.xyz/groundview/internal/transport"
)

// State is the receiver lifecycle state.
type State int32

const (
	Stopped State = iota
	Running
	StopRequested
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	case StopRequested:
		return "stop_requested"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Callback receives one payload. The slice is only valid for the call.
type Callback func(payload []byte)

// Option configures a Receiver.
type Option func(*Receiver)

// WithErrorHandler is called once, from the receive goroutine, when the
// transport fails.
func WithErrorHandler(fn func(error)) Option {
	return func(r *Receiver) { r.onError = fn }
}

// WithLogger overrides the global logger.
func WithLogger(l log.Logger) Option {
	return func(r *Receiver) { r.logger = l }
}

// Receiver is single-use: it subscribes to one topic and, once stopped,
// cannot be restarted. It takes ownership of the subscriber and closes it
// when both goroutines have exited.
type Receiver struct {
	sub      transport.Subscriber
	callback Callback
	onError  func(error)
	logger   log.Logger

	state    atomic.Int32
	started  atomic.Bool
	stopping atomic.Bool
	done     chan struct{}

	mu     sync.Mutex
	topic  string
	cancel context.CancelFunc
	err    error
}

func New(sub transport.Subscriber, cb Callback, opts ...Option) *Receiver {
	r := &Receiver{
		sub:      sub,
		callback: cb,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = log.GetLogger()
	}
	return r
}

// Start subscribes to topic and launches the receive and dispatch goroutines.
func (r *Receiver) Start(topic string) error {
	if !r.started.CompareAndSwap(false, true) {
		return core.ErrReceiverStarted
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.topic = topic
	r.logger = r.logger.WithField("topic", topic)

	if err := r.sub.Subscribe(topic); err != nil {
		err = fmt.Errorf("subscribe %s: %w", topic, err)
		r.err = err
		r.sub.Close()
		close(r.done)
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.setState(Running)

	handoff := make(chan []byte, 1)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.receiveLoop(ctx, handoff)
	}()
	go func() {
		defer wg.Done()
		r.dispatchLoop(handoff)
	}()
	go func() {
		wg.Wait()
		cancel()
		if err := r.sub.Close(); err != nil {
			r.logger.WithError(err).Warn("failed to close subscriber")
		}
		r.setState(Stopped)
		r.logger.Info("receiver stopped")
		close(r.done)
	}()

	r.logger.Info("receiver started")
	return nil
}

func (r *Receiver) receiveLoop(ctx context.Context, handoff chan<- []byte) {
	defer close(handoff)

	for {
		msg, err := r.sub.Receive(ctx)
		if r.stopping.Load() {
			if err == nil {
				metrics.PacketsDroppedTotal.WithLabelValues(r.topic, metrics.DropStopping).Inc()
			}
			return
		}
		if err != nil {
			r.fail(err)
			return
		}

		select {
		case handoff <- msg.Payload:
		case <-ctx.Done():
			return
		}
	}
}

func (r *Receiver) dispatchLoop(handoff <-chan []byte) {
	for payload := range handoff {
		if r.stopping.Load() {
			metrics.PacketsDroppedTotal.WithLabelValues(r.topic, metrics.DropStopping).Inc()
			continue
		}
		metrics.PacketsReceivedTotal.WithLabelValues(r.topic).Inc()
		r.callback(payload)
	}
}

func (r *Receiver) fail(err error) {
	if !errors.Is(err, core.ErrTransport) && !errors.Is(err, core.ErrClosed) {
		err = fmt.Errorf("%w: %v", core.ErrTransport, err)
	}

	r.mu.Lock()
	r.err = err
	r.mu.Unlock()

	r.logger.WithError(err).Error("receive failed, receiver stopping")
	if r.onError != nil {
		r.onError(err)
	}
}

// Stop requests shutdown and waits up to timeout for both goroutines to
// exit. Once it returns nil no further callback runs. Stop is idempotent and
// a no-op before Start.
func (r *Receiver) Stop(timeout time.Duration) error {
	if !r.started.Load() {
		return nil
	}

	if r.stopping.CompareAndSwap(false, true) {
		r.state.CompareAndSwap(int32(Running), int32(StopRequested))
		r.mu.Lock()
		cancel := r.cancel
		r.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-r.done:
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: %s did not stop within %s", core.ErrStopTimeout, r.Topic(), timeout)
	}
}

// State returns the current lifecycle state.
func (r *Receiver) State() State {
	return State(r.state.Load())
}

// Done is closed once the receiver has fully stopped.
func (r *Receiver) Done() <-chan struct{} {
	return r.done
}

// Err returns the transport error that stopped the receiver, if any.
func (r *Receiver) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Receiver) Topic() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.topic
}

func (r *Receiver) setState(s State) {
	r.state.Store(int32(s))
	metrics.ReceiverState.WithLabelValues(r.topic).Set(float64(s))
}
