package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/metrics"
)

const (
	VisitorHeader = "X-Visitor-ID"
	VisitorCookie = "visitor_id"

	maxVisitorIDLen = 64
)

type visitorKey struct{}

// withVisitor resolves the visitor from the header or cookie and issues a
// fresh id when neither carries a usable one.
func withVisitor(cookieTTL time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(VisitorHeader)
			if id == "" {
				if c, err := r.Cookie(VisitorCookie); err == nil {
					id = c.Value
				}
			}
			if id == "" || len(id) > maxVisitorIDLen {
				id = uuid.NewString()
			}

			http.SetCookie(w, &http.Cookie{
				Name:     VisitorCookie,
				Value:    id,
				Path:     "/",
				MaxAge:   int(cookieTTL.Seconds()),
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
			w.Header().Set(VisitorHeader, id)

			ctx := context.WithValue(r.Context(), visitorKey{}, domain.Session{VisitorID: id})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func sessionFrom(r *http.Request) domain.Session {
	sess, _ := r.Context().Value(visitorKey{}).(domain.Session)
	return sess
}

// observe logs every request and records it under its route pattern.
func observe(logger *zap.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			elapsed := time.Since(start)
			m.ObserveRequest(route, status, elapsed)

			logger.Debug("http request",
				zap.String("method", r.Method),
				zap.String("route", route),
				zap.Int("status", status),
				zap.Duration("elapsed", elapsed),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
