// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Neighborly Contributors

package web

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-limiter"
	"github.com/sethvargo/go-limiter/httplimit"
	"github.com/sethvargo/go-limiter/memorystore"
)

// RateLimit bounds requests per client IP on the unauthenticated POST routes.
// A zero Tokens disables limiting.
type RateLimit struct {
	Tokens   uint64
	Interval time.Duration
}

// clientIP keys the limiter. middleware.RealIP runs first and may already
// have replaced RemoteAddr with a bare address.
func clientIP(r *http.Request) (string, error) {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host, nil
	}
	if r.RemoteAddr == "" {
		return "", oops.Code("RATE_LIMIT_NO_CLIENT").Errorf("request has no remote address")
	}
	return r.RemoteAddr, nil
}

func newRateLimiter(cfg RateLimit) (limiter.Store, func(http.Handler) http.Handler, error) {
	store, err := memorystore.New(&memorystore.Config{
		Tokens:   cfg.Tokens,
		Interval: cfg.Interval,
	})
	if err != nil {
		return nil, nil, oops.Code("RATE_LIMIT_INIT_FAILED").Wrap(err)
	}
	mw, err := httplimit.NewMiddleware(store, clientIP)
	if err != nil {
		//nolint:errcheck // the store was never used
		store.Close(context.Background())
		return nil, nil, oops.Code("RATE_LIMIT_INIT_FAILED").Wrap(err)
	}
	return store, mw.Handle, nil
}
