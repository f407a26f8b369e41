package provider

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Error classes. Every error returned by this package matches exactly one
// of ErrTransient or ErrPermanent via errors.Is.
var (
	// ErrTransient marks failures that may succeed on retry: 5xx, 408, 429,
	// connection errors and timeouts.
	ErrTransient = errors.New("transient provider error")

	// ErrPermanent marks failures that will not improve on retry: 4xx other
	// than 408/429, and payloads that cannot be parsed.
	ErrPermanent = errors.New("permanent provider error")

	// ErrNotFound is a permanent error for lookups that matched nothing.
	ErrNotFound = errors.New("not found at provider")
)

// Error describes one failed provider call.
type Error struct {
	Provider   string
	Op         string
	StatusCode int
	RetryAfter time.Duration
	Transient  bool
	NotFound   bool
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	if e.Op != "" {
		b.WriteString(" ")
		b.WriteString(e.Op)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": HTTP %d", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the error class sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrTransient:
		return e.Transient
	case ErrPermanent:
		return !e.Transient
	case ErrNotFound:
		return e.NotFound
	}
	return false
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsPermanent reports whether err is a classified permanent provider failure.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}

// transientStatus reports whether an HTTP status is retryable.
func transientStatus(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusRequestTimeout ||
		code >= 500
}

// parseRetryAfter reads a Retry-After header in seconds or HTTP-date form.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func parseError(provider, op string, err error) *Error {
	return &Error{Provider: provider, Op: op, Err: fmt.Errorf("parse: %w", err)}
}
