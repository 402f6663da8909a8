// Package lifecycle mediates the connection between the host shell and a
// background process and guarantees the binding is released exactly once.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goletan/servicehost/internal/metrics"
	"github.com/goletan/servicehost/internal/telemetry"
	"github.com/goletan/servicehost/shared/types"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Controller owns the binding to one background process.
//
// Start, Stop and Shutdown are serialized. Binding state itself only
// changes through the notifications the binder delivers, which may arrive
// on any goroutine.
type Controller struct {
	desc    types.Descriptor
	binder  types.Binder
	logger  *zap.Logger
	metrics *metrics.HostMetrics

	opMu sync.Mutex

	mu         sync.Mutex
	state      State
	conn       types.Connection
	current    *attempt
	release    bool // stop requested while a bind is in flight
	changed    chan struct{}
	pending    []Transition
	listeners  []Listener
	delivering bool
}

// New creates an unbound controller for desc.
func New(desc types.Descriptor, binder types.Binder, log *zap.Logger, met *metrics.HostMetrics) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Controller{
		desc:    desc,
		binder:  binder,
		logger:  log.With(zap.String("service", desc.Name)),
		metrics: met,
		changed: make(chan struct{}),
	}
	met.SetState(desc.Name, int(Unbound))
	return c
}

// Name returns the descriptor name.
func (c *Controller) Name() string {
	return c.desc.Name
}

// Descriptor returns the descriptor the controller binds to.
func (c *Controller) Descriptor() types.Descriptor {
	return c.desc
}

// State returns the current binding state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsBound reports whether a live connection is held.
func (c *Controller) IsBound() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == Bound && c.conn != nil
}

// Connection returns the live connection, or nil when not bound.
func (c *Controller) Connection() types.Connection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// OnTransition registers a listener for state changes.
func (c *Controller) OnTransition(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Start requests a binding and waits for its outcome. It is a no-op when
// a binding exists or is already in flight (it then waits for that bind).
// A failed bind leaves the controller Unbound and is not retried. If ctx
// ends first, ctx.Err() is returned and the bind keeps running: a bind
// cannot be cancelled once requested.
func (c *Controller) Start(ctx context.Context) (err error) {
	ctx, span := c.startSpan(ctx, "lifecycle.Start")
	begin := time.Now()
	defer func() {
		c.metrics.ObserveExecution(c.desc.Name, "start", time.Since(begin).Seconds())
		telemetry.EndSpan(span, err)
	}()

	c.opMu.Lock()
	defer c.opMu.Unlock()

	for {
		c.mu.Lock()
		switch c.state {
		case Bound:
			c.unlock()
			c.logger.Debug("Start ignored, service already bound")
			return nil

		case Binding:
			a := c.current
			c.release = false
			c.unlock()
			return c.await(ctx, a)

		case Unbinding:
			ch := c.changed
			c.unlock()
			if err := waitChange(ctx, ch); err != nil {
				return err
			}
			continue
		}

		a := &attempt{c: c, done: make(chan struct{})}
		c.current = a
		if err := c.setState(Binding, nil); err != nil {
			c.unlock()
			return err
		}
		c.unlock()

		c.logger.Info("Binding service", zap.String("control_addr", c.desc.ControlAddr))
		if err := c.binder.Bind(ctx, c.desc, a); err != nil {
			a.Failed(err)
		}
		return c.await(ctx, a)
	}
}

// Stop releases the binding. It is a no-op when unbound. A bind in flight
// is released as soon as it connects.
func (c *Controller) Stop(ctx context.Context) (err error) {
	ctx, span := c.startSpan(ctx, "lifecycle.Stop")
	begin := time.Now()
	defer func() {
		c.metrics.ObserveExecution(c.desc.Name, "stop", time.Since(begin).Seconds())
		telemetry.EndSpan(span, err)
	}()

	c.opMu.Lock()
	defer c.opMu.Unlock()

	return c.stop(ctx)
}

// Shutdown asks the background process to terminate and then releases the
// binding. The process is terminated even when no binding is held.
func (c *Controller) Shutdown(ctx context.Context) (err error) {
	ctx, span := c.startSpan(ctx, "lifecycle.Shutdown")
	begin := time.Now()
	defer func() {
		c.metrics.ObserveExecution(c.desc.Name, "shutdown", time.Since(begin).Seconds())
		telemetry.EndSpan(span, err)
	}()

	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.logger.Info("Terminating service")
	var errs []error
	if err := c.binder.Terminate(ctx, c.desc); err != nil {
		c.logger.Error("Failed to terminate service", zap.Error(err))
		errs = append(errs, fmt.Errorf("terminate %s: %w", c.desc.Name, err))
	}
	if err := c.stop(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// HandleEvent maps a host lifecycle event onto at most one operation.
func (c *Controller) HandleEvent(ctx context.Context, ev HostEvent) error {
	switch ev {
	case EventCreate:
		return nil
	case EventStart:
		return c.Start(ctx)
	case EventStop:
		return c.Stop(ctx)
	case EventDestroy:
		return c.Shutdown(ctx)
	default:
		return fmt.Errorf("%w: %d", ErrUnknownEvent, int(ev))
	}
}

func (c *Controller) stop(ctx context.Context) error {
	for {
		c.mu.Lock()
		switch c.state {
		case Unbound:
			c.unlock()
			return nil

		case Unbinding:
			ch := c.changed
			c.unlock()
			if err := waitChange(ctx, ch); err != nil {
				return err
			}

		case Binding:
			c.release = true
			a := c.current
			c.unlock()
			c.logger.Info("Bind in flight, releasing once it settles")
			select {
			case <-a.done:
			case <-ctx.Done():
				return ctx.Err()
			}

		case Bound:
			conn := c.conn
			c.conn = nil
			if err := c.setState(Unbinding, nil); err != nil {
				c.unlock()
				return err
			}
			c.unlock()

			c.logger.Info("Unbinding service", zap.String("connection", conn.ID()))
			uerr := c.binder.Unbind(ctx, conn)

			c.mu.Lock()
			serr := c.setState(Unbound, nil)
			c.unlock()

			if uerr != nil {
				c.logger.Warn("Unbind reported an error", zap.Error(uerr))
				return fmt.Errorf("unbind %s: %w", c.desc.Name, uerr)
			}
			return serr
		}
	}
}

func (c *Controller) await(ctx context.Context, a *attempt) error {
	select {
	case <-a.done:
		return a.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// setState moves to the next state. Callers hold c.mu.
func (c *Controller) setState(to State, cause error) error {
	from := c.state
	if !canTransition(from, to) {
		c.logger.Error("Rejected binding state change",
			zap.Stringer("from", from), zap.Stringer("to", to))
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	c.state = to
	c.metrics.SetState(c.desc.Name, int(to))
	c.pending = append(c.pending, Transition{
		Service: c.desc.Name,
		From:    from,
		To:      to,
		Err:     cause,
		At:      time.Now(),
	})
	close(c.changed)
	c.changed = make(chan struct{})

	c.logger.Debug("Binding state changed", zap.Stringer("from", from), zap.Stringer("to", to))
	return nil
}

// unlock releases c.mu and then delivers queued transitions. Only one
// goroutine delivers at a time; transitions queued meanwhile are drained by
// it, so every listener sees them in the order they were made.
func (c *Controller) unlock() {
	if c.delivering {
		c.mu.Unlock()
		return
	}
	c.delivering = true
	for len(c.pending) > 0 {
		pending := c.pending
		c.pending = nil
		listeners := c.listeners
		c.mu.Unlock()

		for _, t := range pending {
			for _, l := range listeners {
				l(t)
			}
		}
		c.mu.Lock()
	}
	c.delivering = false
	c.mu.Unlock()
}

func (c *Controller) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return telemetry.Tracer().Start(ctx, name, trace.WithAttributes(attribute.String("service", c.desc.Name)))
}

func waitChange(ctx context.Context, ch <-chan struct{}) error {
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
