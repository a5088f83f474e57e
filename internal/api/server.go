// Package api exposes the engine events over HTTP for serverless-style
// invocation.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robalyx/marginalia/internal/engine"
	"github.com/robalyx/marginalia/internal/metrics"
	"github.com/robalyx/marginalia/internal/setup/config"
	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
)

// NewServer creates the HTTP handler of the callable API. A nil gatherer
// disables the /metrics endpoint.
func NewServer(
	e *engine.Engine, gatherer prometheus.Gatherer, m *metrics.Metrics, cfg *config.API, logger *zap.Logger,
) http.Handler {
	h := NewHandler(e, logger)
	mw := &middleware{
		metrics: m,
		timeout: time.Duration(cfg.RequestTimeout) * time.Millisecond,
		logger:  logger.Named("api"),
	}

	router := bunrouter.New()

	router.Use(mw.observe, mw.withTimeout).WithGroup("/v1", func(g *bunrouter.Group) {
		g.POST("/votes", h.CastVote)
		g.POST("/flags", h.FlagSource)
		g.POST("/impressions", h.RecordImpression)
		g.POST("/not-interested", h.NotInterested)
		g.POST("/bookmarks", h.Bookmark)
		g.POST("/unbookmarks", h.Unbookmark)
		g.POST("/replies", h.RecordReply)
		g.GET("/sources/:id/risk", h.AssessSource)
		g.POST("/contents/:id/index", h.IndexContent)
		g.POST("/contents/:id/remove", h.RemoveContent)
		g.POST("/contents/:id/retopic", h.RetopicContent)
	})

	if gatherer != nil && cfg.EnableMetrics {
		router.GET("/metrics", bunrouter.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	return gzhttp.GzipHandler(router)
}

type middleware struct {
	metrics *metrics.Metrics
	timeout time.Duration
	logger  *zap.Logger
}

// observe records the duration and status of each request.
func (m *middleware) observe(next bunrouter.HandlerFunc) bunrouter.HandlerFunc {
	return func(w http.ResponseWriter, req bunrouter.Request) error {
		began := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		err := next(rec, req)

		m.metrics.ObserveRequest(req.Route(), rec.status, time.Since(began))
		m.logger.Debug("Served request",
			zap.String("route", req.Route()),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(began)))

		return err
	}
}

// withTimeout bounds the handling time of each request.
func (m *middleware) withTimeout(next bunrouter.HandlerFunc) bunrouter.HandlerFunc {
	return func(w http.ResponseWriter, req bunrouter.Request) error {
		if m.timeout <= 0 {
			return next(w, req)
		}

		ctx, cancel := context.WithTimeout(req.Context(), m.timeout)
		defer cancel()

		return next(w, req.WithContext(ctx))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
