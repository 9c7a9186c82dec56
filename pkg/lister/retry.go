package lister

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// ErrRetryExhausted is returned when all retry attempts are spent on
// transient failures.
var ErrRetryExhausted = errors.New("retry attempts exhausted")

// TransportError is an HTTP-level failure raised by a Source's remote call.
// It carries enough for the retry wrapper to classify it without the wrapper
// knowing anything about the service.
type TransportError struct {
	StatusCode int

	// RetryAfter is the explicit backoff requested by the remote service
	// (Retry-After header), zero if none was given.
	RetryAfter time.Duration

	URL string
}

func (e *TransportError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("transport error (status %d, retry after %s): %s", e.StatusCode, e.RetryAfter, e.URL)
	}
	return fmt.Sprintf("transport error (status %d): %s", e.StatusCode, e.URL)
}

// Temporary reports whether the failure is worth retrying: rate limiting,
// request timeouts and server-side errors. Everything else (auth rejections,
// malformed requests) is fatal on first occurrence.
func (e *TransportError) Temporary() bool {
	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode == http.StatusRequestTimeout:
		return true
	case e.StatusCode >= 500:
		return true
	}
	return false
}

// TransportErrorFromResponse builds a TransportError from a non-2xx
// response, parsing the Retry-After header when present. The body is not
// consumed.
func TransportErrorFromResponse(resp *http.Response) *TransportError {
	te := &TransportError{StatusCode: resp.StatusCode}
	if resp.Request != nil && resp.Request.URL != nil {
		te.URL = resp.Request.URL.String()
	}
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			te.RetryAfter = time.Duration(secs) * time.Second
		} else if at, err := http.ParseTime(v); err == nil {
			if d := time.Until(at); d > 0 {
				te.RetryAfter = d
			}
		}
	}
	return te
}

// classify returns whether err is transient, and the remote-requested delay
// if it advertised one.
func classify(err error) (retryAfter time.Duration, retryable bool) {
	var te *TransportError
	if errors.As(err, &te) {
		return te.RetryAfter, te.Temporary()
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return 0, true
	}
	return 0, false
}

// RetryPolicy bounds the throttling retry wrapper.
type RetryPolicy struct {
	// MaxAttempts caps the total number of attempts, the initial call
	// included.
	MaxAttempts int

	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     5,
		InitialInterval: 1 * time.Second,
		MaxInterval:     1 * time.Minute,
		Multiplier:      2.0,
	}
}

// Retrier wraps a single logical remote call with bounded, backoff-scheduled
// retries of transient failures. Fatal failures propagate unmodified on
// first occurrence.
type Retrier struct {
	policy RetryPolicy
	logger *zap.Logger

	// sleep is swappable so backoff scheduling is testable without
	// real waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

type RetrierOption func(*Retrier)

func RetrierWithLogger(logger *zap.Logger) RetrierOption {
	return func(r *Retrier) {
		r.logger = logger
	}
}

func RetrierWithSleep(sleep func(ctx context.Context, d time.Duration) error) RetrierOption {
	return func(r *Retrier) {
		r.sleep = sleep
	}
}

func NewRetrier(policy RetryPolicy, opts ...RetrierOption) *Retrier {
	r := &Retrier{
		policy: policy,
		logger: zap.NewNop(),
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Do runs fn, retrying transient failures until success, a fatal failure or
// the attempt bound. The remote's explicit retry-after delay overrides the
// exponential backoff when present. op names the call in logs and metrics.
func (r *Retrier) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.policy.InitialInterval
	b.MaxInterval = r.policy.MaxInterval
	b.Multiplier = r.policy.Multiplier
	b.MaxElapsedTime = 0

	var lastErr error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				r.logger.Info("Call succeeded after retry",
					zap.String("operation", op),
					zap.Int("attempt", attempt))
			}
			return nil
		}
		lastErr = err

		retryAfter, retryable := classify(err)
		if !retryable {
			return err
		}

		if attempt >= r.policy.MaxAttempts {
			break
		}

		wait := b.NextBackOff()
		if retryAfter > 0 {
			wait = retryAfter
		}

		retriesTotal.WithLabelValues(op).Inc()
		retryBackoffSeconds.WithLabelValues(op).Observe(wait.Seconds())

		r.logger.Warn("Transient failure, backing off",
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err))

		if err := r.sleep(ctx, wait); err != nil {
			return err
		}
	}

	retriesExhaustedTotal.WithLabelValues(op).Inc()
	return fmt.Errorf("%s: %w after %d attempts: %w", op, ErrRetryExhausted, r.policy.MaxAttempts, lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
