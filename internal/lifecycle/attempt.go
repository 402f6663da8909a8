package lifecycle

import (
	"context"
	"fmt"

	"github.com/goletan/servicehost/shared/types"
	"go.uber.org/zap"
)

// attempt is the Notifier handed to the binder for one bind request.
// Notifications for an attempt that is no longer current are dropped.
type attempt struct {
	c    *Controller
	done chan struct{}
	err  error
	conn types.Connection
}

func (a *attempt) settled() bool {
	select {
	case <-a.done:
		return true
	default:
		return false
	}
}

func (a *attempt) settle(conn types.Connection, err error) {
	a.conn = conn
	a.err = err
	close(a.done)
}

// Connected implements types.Notifier.
func (a *attempt) Connected(conn types.Connection) {
	c := a.c
	c.mu.Lock()
	if c.current != a || a.settled() {
		c.unlock()
		c.logger.Warn("Releasing connection from a stale bind", zap.String("connection", conn.ID()))
		_ = c.binder.Unbind(context.Background(), conn)
		return
	}

	a.settle(conn, nil)
	if err := c.setState(Bound, nil); err != nil {
		c.unlock()
		_ = c.binder.Unbind(context.Background(), conn)
		return
	}
	c.conn = conn
	c.logger.Info("Service bound", zap.String("connection", conn.ID()))

	if !c.release {
		c.unlock()
		return
	}

	c.release = false
	c.conn = nil
	_ = c.setState(Unbinding, nil)
	c.unlock()

	c.logger.Info("Releasing binding requested while in flight", zap.String("connection", conn.ID()))
	if err := c.binder.Unbind(context.Background(), conn); err != nil {
		c.logger.Warn("Unbind reported an error", zap.Error(err))
	}

	c.mu.Lock()
	_ = c.setState(Unbound, nil)
	c.unlock()
}

// Failed implements types.Notifier.
func (a *attempt) Failed(err error) {
	c := a.c
	c.mu.Lock()
	if c.current != a || a.settled() {
		c.unlock()
		return
	}

	a.settle(nil, fmt.Errorf("%w: %s: %w", ErrBindFailed, c.desc.Name, err))
	c.release = false
	_ = c.setState(Unbound, err)
	c.metrics.IncBindFailure(c.desc.Name)
	c.unlock()

	c.logger.Warn("Bind failed", zap.Error(err))
}

// Disconnected implements types.Notifier.
func (a *attempt) Disconnected(err error) {
	c := a.c
	c.mu.Lock()
	if c.current != a {
		c.unlock()
		return
	}
	if !a.settled() {
		c.unlock()
		a.Failed(err)
		return
	}
	if c.state != Bound || c.conn != a.conn {
		// Already released through Stop.
		c.unlock()
		return
	}

	conn := c.conn
	c.conn = nil
	_ = c.setState(Unbinding, err)
	c.unlock()

	c.logger.Warn("Connection lost", zap.String("connection", conn.ID()), zap.Error(err))
	_ = c.binder.Unbind(context.Background(), conn)

	c.mu.Lock()
	_ = c.setState(Unbound, err)
	c.unlock()
}
