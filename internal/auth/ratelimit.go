// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Neighborly Contributors

package auth

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/samber/oops"
)

// Login throttling configuration.
const (
	// LockoutDuration is the time an email is locked out after too many failures.
	// Failures older than this are forgotten.
	LockoutDuration = 15 * time.Minute

	// LockoutThreshold is the number of failures that triggers a lockout.
	LockoutThreshold = 7

	// MaxFailureDelay caps the progressive delay before lockout.
	MaxFailureDelay = 32 * time.Second

	// maxTrackedEmails bounds the throttle's memory; stale entries are swept
	// when it is exceeded.
	maxTrackedEmails = 10000
)

// ErrLoginThrottled is the cause of a login refused by the throttle.
var ErrLoginThrottled = errors.New("too many failed login attempts")

// CodeLoginThrottled is attached to ErrLoginThrottled.
const CodeLoginThrottled = "AUTH_LOGIN_THROTTLED"

// ThrottleResult contains the result of a throttle check.
type ThrottleResult struct {
	// Delay is the time to wait after the last failure before another attempt.
	Delay time.Duration

	// IsLockedOut indicates the email is temporarily locked.
	IsLockedOut bool

	// LockoutRemaining is the time until the lockout expires.
	LockoutRemaining time.Duration
}

// CheckFailures evaluates the throttle state for a failure count at now.
// lockedUntil is the current lockout timestamp (nil if not locked).
func CheckFailures(failures int, lockedUntil *time.Time, now time.Time) ThrottleResult {
	result := ThrottleResult{}

	if IsLockedOut(lockedUntil, now) {
		result.IsLockedOut = true
		result.LockoutRemaining = lockedUntil.Sub(now)
		return result
	}

	// Progressive delay: 2^(failures-1) seconds, capped before lockout
	if failures > 0 && failures < LockoutThreshold {
		result.Delay = time.Duration(1<<(failures-1)) * time.Second
		if result.Delay > MaxFailureDelay {
			result.Delay = MaxFailureDelay
		}
	}

	if failures >= LockoutThreshold {
		result.IsLockedOut = true
		result.LockoutRemaining = LockoutDuration
	}

	return result
}

// IsLockedOut returns true if the lockout time is after now.
func IsLockedOut(lockedUntil *time.Time, now time.Time) bool {
	return lockedUntil != nil && lockedUntil.After(now)
}

// ComputeLockoutTime returns the lockout timestamp for the given failure count.
// Returns nil if failures < LockoutThreshold.
func ComputeLockoutTime(failures int, now time.Time) *time.Time {
	if failures < LockoutThreshold {
		return nil
	}
	lockout := now.Add(LockoutDuration)
	return &lockout
}

// ThrottledError reports a refused login and how long the caller should wait.
func ThrottledError(email string, retryAfter time.Duration) error {
	return oops.Code(CodeLoginThrottled).
		With("email", email).
		With("retry_after", retryAfter).
		Wrap(ErrLoginThrottled)
}

// RetryAfter extracts the wait from an error built by ThrottledError.
func RetryAfter(err error) (time.Duration, bool) {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return 0, false
	}
	d, ok := oopsErr.Context()["retry_after"].(time.Duration)
	return d, ok
}

type failureRecord struct {
	failures    int
	lastFailure time.Time
	lockedUntil *time.Time
}

// LoginThrottle tracks failed logins per email in memory and refuses
// attempts during the progressive delay or a lockout. Unknown emails are
// tracked like known ones so the throttle does not reveal registration.
type LoginThrottle struct {
	mu      sync.Mutex
	now     func() time.Time
	records map[string]*failureRecord
}

// ThrottleOption configures a LoginThrottle.
type ThrottleOption func(*LoginThrottle)

// WithThrottleClock overrides the clock.
func WithThrottleClock(now func() time.Time) ThrottleOption {
	return func(t *LoginThrottle) {
		t.now = now
	}
}

// NewLoginThrottle creates an empty LoginThrottle.
func NewLoginThrottle(opts ...ThrottleOption) *LoginThrottle {
	t := &LoginThrottle{now: time.Now, records: make(map[string]*failureRecord)}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func throttleKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// stale reports whether rec no longer affects decisions at now.
func (rec *failureRecord) stale(now time.Time) bool {
	if rec.lockedUntil != nil {
		return !rec.lockedUntil.After(now)
	}
	return now.Sub(rec.lastFailure) >= LockoutDuration
}

// Allow returns nil when email may attempt a login now, or a
// ThrottledError carrying the remaining wait.
func (t *LoginThrottle) Allow(email string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := throttleKey(email)
	rec, ok := t.records[key]
	if !ok {
		return nil
	}
	now := t.now()
	if rec.stale(now) {
		delete(t.records, key)
		return nil
	}

	result := CheckFailures(rec.failures, rec.lockedUntil, now)
	if result.IsLockedOut {
		return ThrottledError(key, result.LockoutRemaining)
	}
	if wait := rec.lastFailure.Add(result.Delay).Sub(now); wait > 0 {
		return ThrottledError(key, wait)
	}
	return nil
}

// RecordFailure counts a failed attempt for email.
func (t *LoginThrottle) RecordFailure(email string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	key := throttleKey(email)
	rec, ok := t.records[key]
	if !ok || rec.stale(now) {
		if len(t.records) >= maxTrackedEmails {
			t.sweep(now)
		}
		rec = &failureRecord{}
		t.records[key] = rec
	}
	rec.failures++
	rec.lastFailure = now
	rec.lockedUntil = ComputeLockoutTime(rec.failures, now)
}

// RecordSuccess forgets the failures of email.
func (t *LoginThrottle) RecordSuccess(email string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.records, throttleKey(email))
}

func (t *LoginThrottle) sweep(now time.Time) {
	for key, rec := range t.records {
		if rec.stale(now) {
			delete(t.records, key)
		}
	}
}
