package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/market-intel/internal/metrics"
	"github.com/Checker-Finance/market-intel/internal/rate"
)

// ErrRetriesExhausted is wrapped by the error returned once every attempt failed.
var ErrRetriesExhausted = errors.New("retries exhausted")

// StatusError is returned for non-retryable 4xx responses when no error handler is set.
type StatusError struct {
	Provider string
	Status   int
	Body     []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned %d", e.Provider, e.Status)
}

// Backoff returns the sleep before retry number attempt+1: base * 2^attempt.
func Backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	return base << attempt
}

// Executor handles rate-limited, retrying HTTP execution.
type Executor struct {
	logger       *zap.Logger
	rateMgr      *rate.Manager
	http         *http.Client
	retryMax     int
	backoffBase  time.Duration
	provider     string
	errorHandler func(status int, body []byte) error
	sleep        func(ctx context.Context, d time.Duration) error
}

// New creates an Executor. errorHandler is called on non-retryable 4xx
// responses to produce a provider-specific error; if nil a *StatusError is returned.
func New(
	logger *zap.Logger,
	rateMgr *rate.Manager,
	httpClient *http.Client,
	retryMax int,
	backoffBase time.Duration,
	provider string,
	errorHandler func(status int, body []byte) error,
) *Executor {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if retryMax < 0 {
		retryMax = 0
	}
	return &Executor{
		logger:       logger,
		rateMgr:      rateMgr,
		http:         httpClient,
		retryMax:     retryMax,
		backoffBase:  backoffBase,
		provider:     provider,
		errorHandler: errorHandler,
		sleep:        sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func retryable(status int) bool {
	return status >= 500 || status == http.StatusTooManyRequests
}

// Do executes req with rate limiting and retries and returns the response body.
// rateLimitKey scopes the rate limiter per provider.
func (e *Executor) Do(ctx context.Context, req *http.Request, rateLimitKey string) ([]byte, error) {
	if e.rateMgr != nil {
		if err := e.rateMgr.Wait(ctx, rateLimitKey); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= e.retryMax; attempt++ {
		if attempt > 0 {
			if err := e.sleep(ctx, Backoff(e.backoffBase, attempt-1)); err != nil {
				return nil, fmt.Errorf("%s retry aborted: %w", e.provider, err)
			}
		}
		attempts++

		r, err := e.attemptRequest(ctx, req)
		if err != nil {
			return nil, err
		}

		start := time.Now()
		resp, err := e.http.Do(r)
		if err != nil {
			metrics.IncProviderRequest(e.provider, req.Method, "error")
			metrics.ObserveDuration(metrics.ProviderRequestDuration, start, e.provider, req.Method)
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%s request: %w", e.provider, ctx.Err())
			}
			lastErr = err
			e.logger.Warn(e.provider+".http_failed",
				zap.String("url", req.URL.String()),
				zap.Error(err),
				zap.Int("attempt", attempt))
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		elapsed := time.Since(start)
		metrics.IncProviderRequest(e.provider, req.Method, strconv.Itoa(resp.StatusCode))
		metrics.ObserveDuration(metrics.ProviderRequestDuration, start, e.provider, req.Method)

		if retryable(resp.StatusCode) {
			e.logger.Warn(e.provider+".server_error",
				zap.Int("status", resp.StatusCode),
				zap.String("url", req.URL.String()),
				zap.Int("attempt", attempt),
				zap.Duration("latency", elapsed))
			lastErr = fmt.Errorf("%s server error: %d", e.provider, resp.StatusCode)
			continue
		}

		if resp.StatusCode >= 400 {
			if e.errorHandler != nil {
				return nil, e.errorHandler(resp.StatusCode, body)
			}
			return nil, &StatusError{Provider: e.provider, Status: resp.StatusCode, Body: body}
		}

		if readErr != nil {
			lastErr = fmt.Errorf("read body: %w", readErr)
			continue
		}

		e.logger.Debug(e.provider+".http_success",
			zap.String("url", req.URL.String()),
			zap.Int("status", resp.StatusCode),
			zap.Duration("elapsed", elapsed))
		return body, nil
	}

	return nil, fmt.Errorf("%s request failed after %d attempts: %w: %w", e.provider, attempts, ErrRetriesExhausted, lastErr)
}

// DoJSON executes req like Do and JSON-decodes the response into out.
func (e *Executor) DoJSON(ctx context.Context, req *http.Request, rateLimitKey string, out any) error {
	body, err := e.Do(ctx, req, rateLimitKey)
	if err != nil {
		return err
	}
	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			e.logger.Warn(e.provider+".decode_failed",
				zap.Error(err),
				zap.String("url", req.URL.String()))
			return fmt.Errorf("decode failed: %w", err)
		}
	}
	return nil
}

// attemptRequest clones req for one attempt, rewinding the body if possible.
func (e *Executor) attemptRequest(ctx context.Context, req *http.Request) (*http.Request, error) {
	r := req.Clone(ctx)
	if req.Body == nil || req.Body == http.NoBody {
		return r, nil
	}
	if req.GetBody == nil {
		return r, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("rewind body: %w", err)
	}
	r.Body = body
	return r, nil
}
