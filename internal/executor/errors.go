package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a request failure for retry policy and reporting.
type Kind string

const (
	KindTimeout     Kind = "timeout"
	KindNetwork     Kind = "network"
	KindRateLimited Kind = "rate_limited"
	KindHTTP        Kind = "http"
)

// ExecError is a terminal or per-attempt request failure.
type ExecError struct {
	Kind     Kind
	Provider string
	Model    string
	Status   int    // set for KindHTTP and KindRateLimited
	Body     string // response body snippet, for diagnostics
	Err      error
}

func (e *ExecError) Error() string {
	switch e.Kind {
	case KindHTTP, KindRateLimited:
		return fmt.Sprintf("%s %s/%s: HTTP %d: %s", e.Kind, e.Provider, e.Model, e.Status, e.Body)
	default:
		return fmt.Sprintf("%s %s/%s: %v", e.Kind, e.Provider, e.Model, e.Err)
	}
}

func (e *ExecError) Unwrap() error { return e.Err }

// Retryable reports whether the failure is worth another attempt:
// timeouts, network errors, 429 and 5xx. Other 4xx are terminal -
// bad request, auth or model name, retrying cannot help.
func (e *ExecError) Retryable() bool {
	switch e.Kind {
	case KindTimeout, KindNetwork, KindRateLimited:
		return true
	case KindHTTP:
		return e.Status >= 500 && e.Status < 600
	}
	return false
}

// IsRetryable classifies any error through the ExecError lens.
func IsRetryable(err error) bool {
	var ee *ExecError
	if errors.As(err, &ee) {
		return ee.Retryable()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "connection refused") ||
		strings.Contains(s, "connection reset") ||
		strings.Contains(s, "timeout") ||
		strings.Contains(s, "eof")
}
