package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/liamcoop/fairprice/internal/logger"
	"github.com/liamcoop/fairprice/regions"
)

const slowRequestThreshold = 2 * time.Second

// requestLogger logs one line per request with the chi request id and feeds
// the status counters behind /api/v1/metrics.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := logger.WithAttrs(r.Context(), "request_id", middleware.GetReqID(r.Context()))
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r.WithContext(ctx))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		logger.ObserveStatus(status)

		args := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", elapsed.Milliseconds(),
		}
		switch {
		case elapsed > slowRequestThreshold:
			logger.ObserveSlowRequest()
			logger.WarnContext(ctx, "slow request", args...)
		case status >= 500:
			logger.ErrorContext(ctx, "request failed", args...)
		default:
			logger.From(ctx).InfoContext(ctx, "request", args...)
		}
	})
}

type regionKey struct{}

// regionCtx resolves {regionId} once for every nested route.
func (s *Server) regionCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "regionId")
		region, err := s.regions.Get(id)
		if err != nil {
			respondError(w, http.StatusNotFound, "region not found", err)
			return
		}
		ctx := context.WithValue(r.Context(), regionKey{}, region)
		ctx = logger.WithAttrs(ctx, "region", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func regionFrom(ctx context.Context) *regions.Region {
	return ctx.Value(regionKey{}).(*regions.Region)
}
