// /servicehost/internal/registry/registry.go
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/goletan/servicehost/internal/lifecycle"
	"go.uber.org/zap"
)

// ErrNotFound is returned when no controller is registered under a name.
var ErrNotFound = errors.New("service not registered")

// ErrAlreadyRegistered is returned when a name is registered twice.
var ErrAlreadyRegistered = errors.New("service already registered")

// Registry holds the lifecycle controllers of every hosted service.
type Registry struct {
	controllers map[string]*lifecycle.Controller
	order       []string
	mu          sync.RWMutex
	logger      *zap.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		controllers: make(map[string]*lifecycle.Controller),
		logger:      log,
	}
}

// Register adds a controller to the registry.
func (r *Registry) Register(c *lifecycle.Controller) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := c.Name()
	if _, exists := r.controllers[name]; exists {
		r.logger.Error("Service already registered", zap.String("service", name))
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, name)
	}

	r.controllers[name] = c
	r.order = append(r.order, name)
	r.logger.Info("Service registered", zap.String("service", name))
	return nil
}

// Get returns the controller registered under name.
func (r *Registry) Get(name string) (*lifecycle.Controller, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.controllers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return c, nil
}

// List returns the registered names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.controllers))
	for name := range r.controllers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StartAll binds every registered service in registration order.
func (r *Registry) StartAll(ctx context.Context) error {
	return r.Dispatch(ctx, lifecycle.EventStart)
}

// StopAll releases every binding in reverse registration order.
func (r *Registry) StopAll(ctx context.Context) error {
	return r.Dispatch(ctx, lifecycle.EventStop)
}

// ShutdownAll terminates every service in reverse registration order.
func (r *Registry) ShutdownAll(ctx context.Context) error {
	return r.Dispatch(ctx, lifecycle.EventDestroy)
}

// Dispatch delivers a host event to every controller. A failing service
// does not prevent the event from reaching the others.
func (r *Registry) Dispatch(ctx context.Context, ev lifecycle.HostEvent) error {
	r.mu.RLock()
	controllers := make([]*lifecycle.Controller, 0, len(r.order))
	for _, name := range r.order {
		controllers = append(controllers, r.controllers[name])
	}
	r.mu.RUnlock()

	if ev == lifecycle.EventStop || ev == lifecycle.EventDestroy {
		for i, j := 0, len(controllers)-1; i < j; i, j = i+1, j-1 {
			controllers[i], controllers[j] = controllers[j], controllers[i]
		}
	}

	var errs []error
	for _, c := range controllers {
		if err := c.HandleEvent(ctx, ev); err != nil {
			r.logger.Error("Failed to handle host event",
				zap.String("service", c.Name()),
				zap.Stringer("event", ev),
				zap.Error(err))
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		r.logger.Error("One or more services failed to handle host event",
			zap.Stringer("event", ev), zap.Errors("errors", errs))
		return errors.Join(errs...)
	}
	return nil
}
