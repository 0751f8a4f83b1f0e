// Package httpapi exposes the share lifecycle over HTTP using chi.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/netip"
	"time"

	"github.com/Sato-Isolated/uploadhaven-sub006/internal/logging"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/server/audit"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/server/models"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/server/ratelimit"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// AuditService is the part of the audit trail the API needs.
type AuditService interface {
	Record(ctx context.Context, ev audit.Event)
	Query(ctx context.Context, f models.AuditFilter) ([]*models.AuditLogEntry, error)
	Decrypt(ctx context.Context, id, adminID, ip string) (map[string]string, error)
}

type Options struct {
	Address           string
	SecretKey         string
	RequestsPerMinute int
	MaxUploadSize     int64
	ShutdownTimeout   time.Duration
	// TrustedProxies are the peers whose forwarding headers name the client.
	TrustedProxies    []netip.Prefix
}

type HTTPServer struct {
	opts      Options
	shares    *services.ShareService
	audit     AuditService
	requests  ratelimit.Limiter
	jwtSecret []byte
	logger    logging.Logger
}

// NewHTTPServer wires the API. requests is the per-(ip, route) request
// budget limiter and must use a one minute window.
func NewHTTPServer(opts Options, l logging.Logger, shares *services.ShareService, auditSvc AuditService, requests ratelimit.Limiter) *HTTPServer {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	return &HTTPServer{
		opts:      opts,
		shares:    shares,
		audit:     auditSvc,
		requests:  requests,
		jwtSecret: []byte(opts.SecretKey),
		logger:    l.With("module", "http_server"),
	}
}

func (s *HTTPServer) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(s.realIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders)
	r.Use(s.authenticate)

	r.Get("/health", s.health)
	r.With(s.rateLimit("share_page")).Get("/s/{id}", s.sharePage)

	r.Route("/api", func(r chi.Router) {
		r.Route("/files", func(r chi.Router) {
			r.With(s.rateLimit("upload")).Post("/", s.upload)

			r.Route("/{id}", func(r chi.Router) {
				r.With(s.rateLimit("info")).Get("/", s.info)
				r.With(s.rateLimit("download")).Get("/download", s.download)
				r.With(s.rateLimit("verify_password")).Post("/verify-password", s.verifyPassword)
				r.Get("/preview", s.preview)
				r.With(s.rateLimit("delete")).Delete("/", s.deleteFile)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Get("/audit", s.listAudit)
			r.Post("/audit/{id}/decrypt", s.decryptAudit)
		})
	})

	return r
}

// Run serves until ctx is cancelled, then drains in-flight requests for at
// most ShutdownTimeout.
func (s *HTTPServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.opts.Address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "HTTP server shutdown", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-stopped
	return nil
}
