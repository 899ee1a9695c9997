// Package router wires the analytics and health routes and applies the
// middleware chain.
package router

import (
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/internal/analytics"
	gwmw "github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/internal/gateway/middleware"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/internal/gateway/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/pkg/metrics"
	pkgmw "github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/pkg/middleware"
)

// Deps are the handlers and access components behind the router. Limiter,
// Health and Metrics may be nil.
type Deps struct {
	Analytics *analytics.Handler
	Limiter   *ratelimit.Limiter
	Health    *health.Checker
	Metrics   *metrics.Metrics
	Access    config.AccessConfig
	Timeout   time.Duration
}

// New builds the full HTTP handler.
//
// Route table:
//
//	POST   /api/v1/recompute               rate limited
//	GET    /api/v1/coordinates
//	GET    /api/v1/coordinates/live        rate limited
//	POST   /api/v1/projection              rate limited
//	GET    /api/v1/artifacts/{key}
//	GET    /api/v1/parties/agreement
//	GET    /api/v1/parties/cohesion
//	GET    /api/v1/snapshots/current
//	GET    /health/live, /health/ready
//
// Middleware chain (outermost first):
//
//	RequestID -> Metrics -> CORS -> RateLimit -> Timeout -> mux
func New(d Deps) http.Handler {
	mux := http.NewServeMux()
	d.Analytics.Register(mux)
	if d.Health != nil {
		mux.HandleFunc("GET /health/live", d.Health.LiveHandler())
		mux.HandleFunc("GET /health/ready", d.Health.ReadyHandler())
	}

	mws := []func(http.Handler) http.Handler{pkgmw.RequestID}
	if d.Metrics != nil {
		mws = append(mws, pkgmw.Metrics(d.Metrics))
	}
	if len(d.Access.CORSOrigins) > 0 {
		mws = append(mws, gwmw.CORS(gwmw.DefaultCORSConfig(d.Access.CORSOrigins)))
	}
	if d.Limiter != nil {
		mws = append(mws, gwmw.RateLimit(d.Limiter, d.Access.RateLimit, ExpensiveRoute))
	}
	if d.Timeout > 0 {
		mws = append(mws, pkgmw.Timeout(d.Timeout))
	}
	return pkgmw.Chain(mux, mws...)
}

// ExpensiveRoute reports requests that compute on demand.
func ExpensiveRoute(r *http.Request) bool {
	switch r.URL.Path {
	case "/api/v1/projection", "/api/v1/coordinates/live":
		return true
	case "/api/v1/recompute":
		return r.Method == http.MethodPost
	}
	return false
}
