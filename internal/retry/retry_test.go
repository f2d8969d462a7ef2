package retry

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastPolicy(attempts int) Policy {
	return Policy{Attempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond, Sleep: NoSleep}
}

func TestDoRetriesTransientErrors(t *testing.T) {
	calls := 0
	n, err := Do(context.Background(), fastPolicy(3), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return &StatusError{Provider: "p", StatusCode: http.StatusTooManyRequests}
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	calls := 0
	boom := errors.New("malformed")
	n, err := Do(context.Background(), fastPolicy(3), func(ctx context.Context) error {
		calls++
		return Permanent(boom)
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, calls)
}

func TestDoGivesUpAfterAttempts(t *testing.T) {
	calls := 0
	n, err := Do(context.Background(), fastPolicy(2), func(ctx context.Context) error {
		calls++
		return ErrTimeout
	})
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, calls)
}

func TestDoHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n, err := Do(ctx, fastPolicy(3), func(ctx context.Context) error {
		t.Fatal("fn must not run on a cancelled context")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, n)
}

func TestTransient(t *testing.T) {
	assert.True(t, Transient(&StatusError{StatusCode: 503}))
	assert.True(t, Transient(&StatusError{StatusCode: 408}))
	assert.False(t, Transient(&StatusError{StatusCode: 404}))
	assert.True(t, Transient(context.DeadlineExceeded))
	assert.False(t, Transient(context.Canceled))
	assert.False(t, Transient(errors.New("bad json")))
}

func TestDelayBackoffAndCap(t *testing.T) {
	p := Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond}
	assert.Equal(t, 100*time.Millisecond, p.delay(1, errors.New("x")))
	assert.Equal(t, 200*time.Millisecond, p.delay(2, errors.New("x")))
	assert.Equal(t, 300*time.Millisecond, p.delay(3, errors.New("x")))
	assert.Equal(t, 300*time.Millisecond, p.delay(1, &StatusError{StatusCode: 429, RetryAfter: time.Minute}))
}
