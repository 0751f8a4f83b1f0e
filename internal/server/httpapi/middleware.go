package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/Sato-Isolated/uploadhaven-sub006/internal/common"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/server/audit"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/server/auth"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/server/models"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/server/ratelimit"
	"github.com/go-chi/chi/v5/middleware"
)

type ctxKey string

const claimsKey ctxKey = "claims"

func claimsFrom(ctx context.Context) *auth.Claims {
	c, _ := ctx.Value(claimsKey).(*auth.Claims)
	return c
}

func userIDFrom(ctx context.Context) string {
	if c := claimsFrom(ctx); c != nil {
		return c.UserID
	}
	return ""
}

// clientIP expects realIP to have run.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// requestLogger records method, path, status and duration. The query string
// is left out on purpose and the fragment never reaches the server.
func (s *HTTPServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		s.logger.Info(r.Context(), "request",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
		)
	})
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// authenticate accepts an optional bearer token. A present but invalid
// token is rejected rather than treated as anonymous.
func (s *HTTPServer) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			s.writeError(w, r, common.ErrInvalidToken)
			return
		}

		claims, err := auth.ParseToken(token, s.jwtSecret)
		if err != nil {
			s.audit.Record(r.Context(), audit.Event{
				Category: models.CategoryAuthEvent,
				Action:   "token_rejected",
				Severity: models.SeverityMedium,
				Status:   models.StatusFailure,
				IP:       clientIP(r),
				Details:  map[string]string{"reason": tokenFailure(err)},
			})
			s.writeError(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	})
}

func tokenFailure(err error) string {
	if errors.Is(err, common.ErrTokenExpired) {
		return "expired"
	}
	return "invalid"
}

func (s *HTTPServer) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFrom(r.Context())
		switch {
		case claims == nil:
			s.writeError(w, r, common.ErrorUnauthorized)
			return
		case !claims.IsAdmin():
			s.audit.Record(r.Context(), audit.Event{
				Category: models.CategorySecurityEvent,
				Action:   "admin_denied",
				Severity: models.SeverityHigh,
				Status:   models.StatusBlocked,
				IP:       clientIP(r),
				UserID:   claims.UserID,
			})
			s.writeError(w, r, common.ErrorForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimit applies the per-(ip, route) request budget. A limiter backend
// failure lets the request through and is logged.
func (s *HTTPServer) rateLimit(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)

			n, err := s.requests.Hit(r.Context(), ratelimit.Key(ip, route))
			if err != nil {
				s.logger.Error(r.Context(), "rate limiter unavailable", "route", route, "error", err)
				next.ServeHTTP(w, r)
				return
			}

			if n > s.opts.RequestsPerMinute {
				s.audit.Record(r.Context(), audit.Event{
					Category: models.CategoryRateLimit,
					Action:   "request_throttled",
					Severity: models.SeverityMedium,
					Status:   models.StatusBlocked,
					IP:       ip,
					Details:  map[string]string{"route": route},
				})
				w.Header().Set("Retry-After", "60")
				s.writeError(w, r, common.ErrRateLimitExceeded)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
