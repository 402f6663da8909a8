package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goletan/servicehost/internal/lifecycle"
	"github.com/goletan/servicehost/internal/registry"
	"go.uber.org/zap"
)

// ServiceStatus describes one hosted service.
type ServiceStatus struct {
	Name        string `json:"name"`
	State       string `json:"state"`
	Bound       bool   `json:"bound"`
	Connection  string `json:"connection,omitempty"`
	ControlAddr string `json:"control_addr"`
}

func statusOf(c *lifecycle.Controller) ServiceStatus {
	s := ServiceStatus{
		Name:        c.Name(),
		State:       c.State().String(),
		Bound:       c.IsBound(),
		ControlAddr: c.Descriptor().ControlAddr,
	}
	if conn := c.Connection(); conn != nil {
		s.Connection = conn.ID()
	}
	return s
}

type servicesHandler struct {
	services Services
	logger   *zap.Logger
}

func (h *servicesHandler) List(w http.ResponseWriter, r *http.Request) {
	names := h.services.List()
	out := make([]ServiceStatus, 0, len(names))
	for _, name := range names {
		c, err := h.services.Get(name)
		if err != nil {
			continue
		}
		out = append(out, statusOf(c))
	}
	WriteJSON(w, http.StatusOK, out)
}

func (h *servicesHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, ok := h.lookup(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, statusOf(c))
}

func (h *servicesHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, (*lifecycle.Controller).Start)
}

func (h *servicesHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, (*lifecycle.Controller).Stop)
}

func (h *servicesHandler) Shutdown(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, (*lifecycle.Controller).Shutdown)
}

func (h *servicesHandler) act(w http.ResponseWriter, r *http.Request, op func(*lifecycle.Controller, context.Context) error) {
	c, ok := h.lookup(w, r)
	if !ok {
		return
	}

	if err := op(c, r.Context()); err != nil {
		h.logger.Warn("Service action failed",
			zap.String("service", c.Name()),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		switch {
		case errors.Is(err, lifecycle.ErrBindFailed):
			WriteProblem(w, http.StatusBadGateway, err.Error())
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			WriteProblem(w, http.StatusGatewayTimeout, "service did not settle in time; state: "+c.State().String())
		default:
			WriteProblem(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	WriteJSON(w, http.StatusOK, statusOf(c))
}

func (h *servicesHandler) lookup(w http.ResponseWriter, r *http.Request) (*lifecycle.Controller, bool) {
	name := chi.URLParam(r, "name")
	c, err := h.services.Get(name)
	if errors.Is(err, registry.ErrNotFound) {
		WriteProblem(w, http.StatusNotFound, "unknown service: "+name)
		return nil, false
	}
	if err != nil {
		WriteProblem(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return c, true
}
