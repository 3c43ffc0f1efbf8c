package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-go/vai-wellness/pkg/core"
)

func fastPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}
}

func TestDo_SucceedsOnThirdAttemptAfterRateLimits(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), fastPolicy(), "test", func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", core.NewRateLimitError("test", "429")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
}

func TestDo_NonRateLimitErrorIsNotRetried(t *testing.T) {
	calls := 0
	boom := core.NewNetworkError("test", errors.New("connection reset"))
	_, err := Do(context.Background(), fastPolicy(), "test", func(context.Context) (int, error) {
		calls++
		return 0, boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustionReturnsLastError(t *testing.T) {
	calls := 0
	var last error
	_, err := Do(context.Background(), fastPolicy(), "test", func(context.Context) (int, error) {
		calls++
		last = core.NewRateLimitError("test", "attempt")
		return 0, last
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Same(t, last, err)
	assert.True(t, core.IsRateLimited(err))
}

func TestDo_BackoffDoubles(t *testing.T) {
	var stamps []time.Time
	p := Policy{MaxAttempts: 3, BaseDelay: 20 * time.Millisecond}
	_, _ = Do(context.Background(), p, "test", func(context.Context) (int, error) {
		stamps = append(stamps, time.Now())
		return 0, core.NewRateLimitError("test", "429")
	})
	require.Len(t, stamps, 3)
	first := stamps[1].Sub(stamps[0])
	second := stamps[2].Sub(stamps[1])
	assert.GreaterOrEqual(t, first, 20*time.Millisecond)
	assert.GreaterOrEqual(t, second, 40*time.Millisecond)
}

func TestDo_CustomClassifier(t *testing.T) {
	calls := 0
	transient := errors.New("transient")
	p := fastPolicy()
	p.Retryable = func(err error) bool { return errors.Is(err, transient) }
	_, err := Do(context.Background(), p, "test", func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, transient
		}
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDo_StopsWhenContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	p := Policy{MaxAttempts: 3, BaseDelay: time.Hour}
	done := make(chan error, 1)
	go func() {
		_, err := Do(ctx, p, "test", func(context.Context) (int, error) {
			calls++
			return 0, core.NewRateLimitError("test", "429")
		})
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	case <-time.After(time.Second):
		t.Fatal("Do did not return after cancel")
	}
}

func TestPolicy_Defaults(t *testing.T) {
	p := Policy{}.normalized()
	assert.Equal(t, DefaultMaxAttempts, p.MaxAttempts)
	assert.Equal(t, DefaultBaseDelay, p.BaseDelay)
	assert.True(t, p.Retryable(core.NewRateLimitError("x", "y")))
	assert.False(t, p.Retryable(errors.New("other")))
}
