// internal/httpapi/middleware.go
//
// Request middleware for the entity API.
//
// Chain order (outermost first):
//
//  1. chi RequestID and Recoverer.
//  2. clientInfo: caller IP, agent, and country (client.go).
//  3. accessLog: one DEBUG line per request, WARN for 5xx.
//  4. Security: API security headers.
//  5. WithScope: builds scope.Scope from the upstream gateway's headers.
//
// Notes
// -----
// • Authentication happens upstream.  The headers are trusted as-is; an
//   absent tenant header yields an empty tenant, which the engine rejects
//   for multi-tenant entities.
// • Security headers are added *before* next.ServeHTTP because JSON
//   responses write their body immediately; handlers may still override.
// • Oxford commas, two spaces after periods.
package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/yanizio/tenantstore/internal/scope"
)

// Identity headers set by the upstream gateway.
const (
	HeaderTenantID = "X-Tenant-ID"
	HeaderUserID   = "X-User-ID"
)

// WithScope stores the caller's scope in the request context.
func WithScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sc := scope.New(
			strings.TrimSpace(r.Header.Get(HeaderTenantID)),
			strings.TrimSpace(r.Header.Get(HeaderUserID)),
		)
		next.ServeHTTP(w, r.WithContext(scope.WithScope(r.Context(), sc)))
	})
}

// Security sets API security headers on every response:
//
//   • Strict-Transport-Security  –  forces HTTPS (2 years)
//   • Content-Security-Policy    –  nothing may be loaded or framed
//   • X-Content-Type-Options     –  MIME-sniffing defence
//   • X-Frame-Options            –  click-jacking defence
//   • Referrer-Policy            –  no Referer at all
//   • Cache-Control              –  tenant data is never cached
func Security(next http.Handler) http.Handler {
	headers := [][2]string{
		{"Strict-Transport-Security", "max-age=63072000; includeSubDomains"},
		{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
		{"X-Content-Type-Options", "nosniff"},
		{"X-Frame-Options", "DENY"},
		{"Referrer-Policy", "no-referrer"},
		{"Cache-Control", "no-store"},
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		for _, kv := range headers {
			if h.Get(kv[0]) == "" {
				h.Set(kv[0], kv[1])
			}
		}
		next.ServeHTTP(w, r)
	})
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("tenant", r.Header.Get(HeaderTenantID)),
		}
		if ci := ClientFromContext(r.Context()); ci != nil {
			fields = append(fields,
				zap.Stringer("ip", ci.IP),
				zap.String("country", ci.Country),
				zap.String("agent", ci.Agent),
				zap.String("device", ci.Device),
				zap.Bool("bot", ci.IsBot),
			)
		}
		if status >= http.StatusInternalServerError {
			zap.L().Warn("api request failed", fields...)
			return
		}
		zap.L().Debug("api request", fields...)
	})
}
