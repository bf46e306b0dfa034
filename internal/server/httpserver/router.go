package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/yndnr/peerscout-go/internal/server/httpserver/handler"
	"github.com/yndnr/peerscout-go/internal/telemetry/metric"
)

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	Handler handler.Config

	Metrics *metric.Registry
	Logger  *slog.Logger

	// RateLimit is the per-IP rate (requests/second); zero disables.
	RateLimit float64
	RateBurst int
}

// NewRouter builds the route table and its middleware chains.
//
// Health checks skip rate limiting and audit so that probes from
// orchestrators never get throttled or flood the log.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cfg.Handler.Logger = cfg.Logger
	h := handler.New(cfg.Handler)

	limit := RateLimit(cfg.RateLimit, cfg.RateBurst)
	route := func(name string) http.Handler {
		return Chain(h,
			Recover(cfg.Logger),
			RequestID(),
			limit,
			Audit(cfg.Logger, cfg.Metrics, name),
		)
	}
	plain := Chain(h, Recover(cfg.Logger), RequestID())

	mux := http.NewServeMux()

	mux.Handle("GET /health", plain)
	mux.Handle("GET /ready", plain)
	mux.Handle("GET /metrics", Chain(cfg.Metrics.Handler(), Recover(cfg.Logger), limit))

	mux.Handle("GET /api/public/info/", route("info"))
	mux.Handle("GET /api/content/channel/", route("channels"))
	mux.Handle("GET /api/peers/", route("peers"))
	mux.Handle("GET /api/locations/", route("locations"))

	return mux
}
