package executor

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/aibatch/internal/ai"
	"github.com/local/aibatch/internal/config"
	"github.com/local/aibatch/internal/metrics"
)

const bodySnippetLimit = 512

// Executor issues one inference request with timeout, bounded retries and a
// uniform delay between attempts. Retry policy lives in ExecError.Retryable.
type Executor struct {
	http       *http.Client
	provider   string
	timeout    time.Duration
	maxRetries int
	retryDelay time.Duration
}

func New(p config.Provider) *Executor {
	return &Executor{
		http:       &http.Client{},
		provider:   p.Name,
		timeout:    p.Timeout.Duration(),
		maxRetries: p.MaxRetries,
		retryDelay: p.RetryDelay.Duration(),
	}
}

// Execute sends the prompt through the adapter and returns the extracted
// model text plus the number of attempts made. A retryable failure is
// attempted maxRetries+1 times in total; a terminal failure returns after
// the attempt that produced it.
func (e *Executor) Execute(ctx context.Context, adapter ai.Adapter, p ai.Prompt) (string, int, error) {
	var lastErr error
	attempts := 0

	for attempt := 1; attempt <= e.maxRetries+1; attempt++ {
		if ctx.Err() != nil {
			if lastErr != nil {
				return "", attempts, lastErr
			}
			return "", attempts, ctx.Err()
		}

		attempts = attempt
		start := time.Now()
		text, err := e.attempt(ctx, adapter, p)
		dur := time.Since(start)

		if err == nil {
			metrics.ObserveRequest(e.provider, p.Model, "success", dur)
			return text, attempts, nil
		}
		lastErr = err

		var ee *ExecError
		retryable := false
		result := "error"
		if errors.As(err, &ee) {
			result = string(ee.Kind)
			retryable = ee.Retryable()
		}
		metrics.ObserveRequest(e.provider, p.Model, result, dur)

		log.Warn().
			Str("provider", e.provider).
			Str("model", p.Model).
			Int("attempt", attempt).
			Int("max_attempts", e.maxRetries+1).
			Dur("duration", dur).
			Err(err).
			Msg("provider request failed")

		if !retryable {
			return "", attempts, err
		}
		if attempt > e.maxRetries {
			break
		}

		metrics.IncRetry(e.provider, p.Model)
		if !sleepCtx(ctx, e.retryDelay) {
			return "", attempts, lastErr
		}
	}

	return "", attempts, lastErr
}

// attempt runs exactly one request under the per-request timeout.
func (e *Executor) attempt(ctx context.Context, adapter ai.Adapter, p ai.Prompt) (string, error) {
	req, err := adapter.BuildRequest(p)
	if err != nil {
		return "", &ExecError{Kind: KindNetwork, Provider: e.provider, Model: p.Model, Err: err}
	}

	cctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	req = req.WithContext(cctx)

	resp, err := e.http.Do(req)
	if err != nil {
		kind := KindNetwork
		if errors.Is(err, context.DeadlineExceeded) || cctx.Err() == context.DeadlineExceeded {
			kind = KindTimeout
		}
		return "", &ExecError{Kind: kind, Provider: e.provider, Model: p.Model, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &ExecError{Kind: KindNetwork, Provider: e.provider, Model: p.Model, Err: err}
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &ExecError{Kind: KindRateLimited, Provider: e.provider, Model: p.Model, Status: resp.StatusCode, Body: snippet(body)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &ExecError{Kind: KindHTTP, Provider: e.provider, Model: p.Model, Status: resp.StatusCode, Body: snippet(body)}
	}

	text, err := adapter.ExtractText(body)
	if err != nil {
		// a 200 with an unreadable body is treated like a flaky upstream
		return "", &ExecError{Kind: KindNetwork, Provider: e.provider, Model: p.Model, Err: err}
	}
	return text, nil
}

func snippet(body []byte) string {
	if len(body) > bodySnippetLimit {
		body = body[:bodySnippetLimit]
	}
	return string(body)
}

// sleepCtx sleeps for d unless the context ends first; returns false on cancel.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
