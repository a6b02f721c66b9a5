// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Neighborly Contributors

// Package web exposes the credential workflows as a JSON REST API.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/sethvargo/go-limiter"

	"github.com/neighborly/neighborly/internal/auth"
)

// Authenticator logs users in and resolves session tokens.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*auth.LoginResult, error)
	Authenticate(ctx context.Context, token string) (ulid.ULID, error)
}

// PasswordResetter runs the password reset workflow.
type PasswordResetter interface {
	Request(ctx context.Context, email string) bool
	Complete(ctx context.Context, email, rawToken, newPassword string) bool
}

// EmailConfirmer runs the email confirmation workflow.
type EmailConfirmer interface {
	Confirm(ctx context.Context, userID ulid.ULID, rawToken string) bool
	Resend(ctx context.Context, userID ulid.ULID) bool
}

// Registrar creates accounts.
type Registrar interface {
	Register(ctx context.Context, email, password string) (*auth.User, error)
}

// Services bundles the workflows the API exposes.
type Services struct {
	Auth     Authenticator
	Reset    PasswordResetter
	Confirm  EmailConfirmer
	Register Registrar
}

// DefaultRequestTimeout bounds a single API request.
const DefaultRequestTimeout = 30 * time.Second

// Handler serves the REST API.
type Handler struct {
	auth       Authenticator
	reset      PasswordResetter
	confirm    EmailConfirmer
	register   Registrar
	logger     *slog.Logger
	timeout    time.Duration
	limit      RateLimit
	limitStore limiter.Store
	limitMW    func(http.Handler) http.Handler
	router     chi.Router
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithHandlerLogger sets the request and error logger.
func WithHandlerLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithRequestTimeout overrides DefaultRequestTimeout.
func WithRequestTimeout(d time.Duration) HandlerOption {
	return func(h *Handler) {
		h.timeout = d
	}
}

// WithRateLimit limits the public POST routes per client IP.
func WithRateLimit(limit RateLimit) HandlerOption {
	return func(h *Handler) {
		h.limit = limit
	}
}

// NewHandler wires the routes. Every service is required. Call Close to
// release the rate limiter.
func NewHandler(svc Services, opts ...HandlerOption) (*Handler, error) {
	if svc.Auth == nil || svc.Reset == nil || svc.Confirm == nil || svc.Register == nil {
		return nil, oops.Code("WEB_HANDLER_INVALID").Errorf("all services are required")
	}
	h := &Handler{
		auth:     svc.Auth,
		reset:    svc.Reset,
		confirm:  svc.Confirm,
		register: svc.Register,
		logger:   slog.Default(),
		timeout:  DefaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.limit.Tokens > 0 {
		store, mw, err := newRateLimiter(h.limit)
		if err != nil {
			return nil, err
		}
		h.limitStore = store
		h.limitMW = mw
	}
	h.router = h.routes()
	return h, nil
}

// Close stops the rate limiter's sweeper. It is safe to call without one.
func (h *Handler) Close(ctx context.Context) error {
	if h.limitStore == nil {
		return nil
	}
	if err := h.limitStore.Close(ctx); err != nil {
		return oops.Code("RATE_LIMIT_CLOSE_FAILED").Wrap(err)
	}
	return nil
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logRequest(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(instrument)
	r.Use(middleware.Timeout(h.timeout))

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if h.limitMW != nil {
				r.Use(h.limitMW)
			}
			r.Post("/login", h.login)
			r.Post("/password-action", h.passwordAction)
			r.Post("/register", h.registerUser)
		})
		r.Get("/email-confirm", h.emailConfirm)
		r.Post("/resend-email-confirm", h.resendEmailConfirm)
		r.With(h.requireSession).Get("/me", h.me)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusNotFound, "not_found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "method_not_allowed")
	})
	return r
}

// fail writes the status mapped from err and logs server-side failures.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if retryAfter, ok := auth.RetryAfter(err); ok && status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(retryAfter)))
	}
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err)
	}
	respondError(w, status, errorIDFor(status))
}

// retryAfterSeconds rounds up so clients never retry early.
func retryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}
