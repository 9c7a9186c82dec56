package lister

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sleepRecorder replaces real waiting and keeps every requested duration.
type sleepRecorder struct {
	slept []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.slept = append(r.slept, d)
	return nil
}

func (r *sleepRecorder) total() time.Duration {
	var sum time.Duration
	for _, d := range r.slept {
		sum += d
	}
	return sum
}

func testPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     4,
		InitialInterval: 10 * time.Millisecond,
		MaxInterval:     100 * time.Millisecond,
		Multiplier:      2.0,
	}
}

func TestRetrierSuccessPassesThrough(t *testing.T) {
	rec := &sleepRecorder{}
	r := NewRetrier(testPolicy(), RetrierWithSleep(rec.sleep))

	calls := 0
	err := r.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, rec.slept)
}

func TestRetrierExhaustsBoundedAttempts(t *testing.T) {
	rec := &sleepRecorder{}
	r := NewRetrier(testPolicy(), RetrierWithSleep(rec.sleep))

	calls := 0
	err := r.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return &TransportError{StatusCode: http.StatusServiceUnavailable}
	})

	require.ErrorIs(t, err, ErrRetryExhausted)
	assert.Equal(t, 4, calls)
	assert.Len(t, rec.slept, 3)

	var te *TransportError
	assert.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusServiceUnavailable, te.StatusCode)
}

func TestRetrierFatalFailurePropagatesImmediately(t *testing.T) {
	rec := &sleepRecorder{}
	r := NewRetrier(testPolicy(), RetrierWithSleep(rec.sleep))

	fatal := &TransportError{StatusCode: http.StatusUnauthorized}
	calls := 0
	err := r.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return fatal
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, rec.slept)

	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Same(t, fatal, te)
}

func TestRetrierHonorsRetryAfter(t *testing.T) {
	rec := &sleepRecorder{}
	r := NewRetrier(testPolicy(), RetrierWithSleep(rec.sleep))

	// Three rate-limit answers asking for 2s each, then success: the
	// caller observes one successful logical call after a cumulative
	// wait of at least 6s.
	calls := 0
	err := r.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		if calls <= 3 {
			return &TransportError{
				StatusCode: http.StatusTooManyRequests,
				RetryAfter: 2 * time.Second,
			}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second, 2 * time.Second}, rec.slept)
	assert.GreaterOrEqual(t, rec.total(), 6*time.Second)
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestRetrierRetriesNetworkTimeouts(t *testing.T) {
	rec := &sleepRecorder{}
	r := NewRetrier(testPolicy(), RetrierWithSleep(rec.sleep))

	calls := 0
	err := r.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return &url.Error{Op: "Get", URL: "https://forge.example", Err: timeoutError{}}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Len(t, rec.slept, 1)
}

func TestTransportErrorClassification(t *testing.T) {
	tests := []struct {
		status    int
		temporary bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusRequestTimeout, true},
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
		{http.StatusUnauthorized, false},
		{http.StatusForbidden, false},
		{http.StatusNotFound, false},
		{http.StatusBadRequest, false},
	}
	for _, tc := range tests {
		te := &TransportError{StatusCode: tc.status}
		assert.Equal(t, tc.temporary, te.Temporary(), "status %d", tc.status)
	}
}

func TestTransportErrorFromResponse(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusTooManyRequests,
		Header:     http.Header{"Retry-After": []string{"2"}},
	}

	te := TransportErrorFromResponse(resp)
	assert.Equal(t, http.StatusTooManyRequests, te.StatusCode)
	assert.Equal(t, 2*time.Second, te.RetryAfter)
	assert.True(t, te.Temporary())
}
