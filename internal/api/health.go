package api

import (
	"net/http"
	"time"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
	Services  int       `json:"services"`
}

func healthHandler(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC(),
			Version:   deps.Version,
		}
		if deps.Services != nil {
			resp.Services = len(deps.Services.List())
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}
