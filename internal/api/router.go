// Package api serves the local control API: service status and lifecycle
// actions, the server configuration editor and database transfer.
package api

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goletan/servicehost/internal/lifecycle"
	"go.uber.org/zap"
)

const requestTimeout = 60 * time.Second

// Services is the registry view the API needs.
type Services interface {
	List() []string
	Get(name string) (*lifecycle.Controller, error)
}

// ConfigEditor edits the server configuration file.
type ConfigEditor interface {
	Load() error
	Get(path string) (any, error)
	Set(path string, value any) error
	Save() error
	Raw() ([]byte, error)
	Replace(data []byte) error
}

// Database moves the server database in and out.
type Database interface {
	Path() string
	Export(ctx context.Context, dst io.Writer) (int64, error)
	Import(ctx context.Context, src io.Reader) (int64, error)
}

// Deps are the components served by the router. Nil members disable
// their routes.
type Deps struct {
	Services Services
	Config   ConfigEditor
	Database Database
	Metrics  http.Handler
	Version  string
}

// NewRouter builds the chi router.
//
// Routes:
//   - GET  /health
//   - GET  /api/v1/services, GET /api/v1/services/{name}
//   - POST /api/v1/services/{name}/start|stop|shutdown
//   - GET|PUT|PATCH /api/v1/config
//   - GET  /api/v1/database/export, POST /api/v1/database/import
//   - GET  /metrics
func NewRouter(deps Deps, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("api")

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/health", healthHandler(deps))

	r.Route("/api/v1", func(r chi.Router) {
		if deps.Services != nil {
			h := &servicesHandler{services: deps.Services, logger: log}
			r.Route("/services", func(r chi.Router) {
				r.Get("/", h.List)
				r.Get("/{name}", h.Get)
				r.Post("/{name}/start", h.Start)
				r.Post("/{name}/stop", h.Stop)
				r.Post("/{name}/shutdown", h.Shutdown)
			})
		}
		if deps.Config != nil {
			h := &configHandler{editor: deps.Config}
			r.Get("/config", h.Get)
			r.Put("/config", h.Replace)
			r.Patch("/config", h.Patch)
		}
		if deps.Database != nil {
			h := &databaseHandler{db: deps.Database}
			r.Get("/database/export", h.Export)
			r.Post("/database/import", h.Import)
		}
	})

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}
	return r
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			fields := []zap.Field{
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
			}
			// Polled endpoints stay at debug.
			if r.URL.Path == "/health" || strings.HasPrefix(r.URL.Path, "/metrics") {
				log.Debug("API request completed", fields...)
				return
			}
			log.Info("API request completed", fields...)
		})
	}
}
