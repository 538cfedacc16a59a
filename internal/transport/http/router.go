package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"credtrust/internal/platform/health"
	"credtrust/pkg/platform/middleware/apikey"
	"credtrust/pkg/platform/middleware/request"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultMaxBodyBytes   = 1 << 20
)

// Routes is implemented by every domain handler.
type Routes interface {
	Register(r chi.Router)
}

// Config controls the router's middleware.
type Config struct {
	APIKeys        []string
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	Gatherer       prometheus.Gatherer
	Latency        *request.Metrics
}

// NewRouter wires probes and metrics unauthenticated and mounts every domain
// handler behind the API key guard.
func NewRouter(cfg Config, logger *slog.Logger, probes *health.Handler, routes ...Routes) http.Handler {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}

	r := chi.NewRouter()
	r.Use(request.Recovery(logger))
	r.Use(request.RequestID)
	r.Use(request.RequestTime)
	r.Use(request.Logger(logger))
	r.Use(request.Latency(cfg.Latency, routePattern))

	if probes != nil {
		probes.Register(r)
	}
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(request.Timeout(cfg.RequestTimeout))
		r.Use(request.BodyLimit(cfg.MaxBodyBytes))
		r.Use(request.ContentTypeJSON)
		r.Use(apikey.Require(cfg.APIKeys, logger))
		for _, route := range routes {
			route.Register(r)
		}
	})

	return r
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
