package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func newTestBreaker(clock *time.Time) *CircuitBreaker {
	cb := NewCircuitBreaker(Config{
		FailureThreshold:    2,
		SuccessThreshold:    1,
		Timeout:             time.Minute,
		HalfOpenMaxRequests: 1,
	})
	cb.now = func() time.Time { return *clock }
	return cb
}

func TestCircuitBreaker(t *testing.T) {
	t.Run("opens after consecutive failures", func(t *testing.T) {
		clock := time.Unix(0, 0)
		cb := newTestBreaker(&clock)

		assert.ErrorIs(t, cb.Execute(func() error { return errBoom }), errBoom)
		assert.Equal(t, StateClosed, cb.GetState())
		assert.ErrorIs(t, cb.Execute(func() error { return errBoom }), errBoom)
		assert.Equal(t, StateOpen, cb.GetState())

		called := false
		err := cb.Execute(func() error { called = true; return nil })
		assert.ErrorIs(t, err, ErrCircuitBreakerOpen)
		assert.False(t, called)
	})

	t.Run("success resets the failure streak", func(t *testing.T) {
		clock := time.Unix(0, 0)
		cb := newTestBreaker(&clock)

		_ = cb.Execute(func() error { return errBoom })
		require.NoError(t, cb.Execute(func() error { return nil }))
		_ = cb.Execute(func() error { return errBoom })
		assert.Equal(t, StateClosed, cb.GetState())
	})

	t.Run("half-open probe closes on success", func(t *testing.T) {
		clock := time.Unix(0, 0)
		cb := newTestBreaker(&clock)
		_ = cb.Execute(func() error { return errBoom })
		_ = cb.Execute(func() error { return errBoom })

		clock = clock.Add(time.Minute)
		require.NoError(t, cb.Execute(func() error { return nil }))
		assert.Equal(t, StateClosed, cb.GetState())
	})

	t.Run("half-open probe failure reopens", func(t *testing.T) {
		clock := time.Unix(0, 0)
		cb := newTestBreaker(&clock)
		_ = cb.Execute(func() error { return errBoom })
		_ = cb.Execute(func() error { return errBoom })

		clock = clock.Add(time.Minute)
		_ = cb.Execute(func() error { return errBoom })
		assert.Equal(t, StateOpen, cb.GetState())
	})

	t.Run("ignored errors neither trip nor reset", func(t *testing.T) {
		clock := time.Unix(0, 0)
		cb := newTestBreaker(&clock)

		_ = cb.Execute(func() error { return errBoom })
		for i := 0; i < 5; i++ {
			err := cb.Execute(func() error { return Ignore(errBoom) })
			assert.ErrorIs(t, err, errBoom)
			assert.NotErrorIs(t, err, ErrCircuitBreakerOpen)
		}
		assert.Equal(t, StateClosed, cb.GetState())

		_ = cb.Execute(func() error { return errBoom })
		assert.Equal(t, StateOpen, cb.GetState(), "streak survives ignored calls")
	})

	t.Run("ignored half-open call frees its slot", func(t *testing.T) {
		clock := time.Unix(0, 0)
		cb := newTestBreaker(&clock)
		_ = cb.Execute(func() error { return errBoom })
		_ = cb.Execute(func() error { return errBoom })

		clock = clock.Add(time.Minute)
		_ = cb.Execute(func() error { return Ignore(errBoom) })
		assert.Equal(t, StateHalfOpen, cb.GetState())
		require.NoError(t, cb.Execute(func() error { return nil }))
		assert.Equal(t, StateClosed, cb.GetState())
	})

	t.Run("zero config falls back to defaults", func(t *testing.T) {
		cb := NewCircuitBreaker(Config{})
		assert.Equal(t, DefaultConfig(), cb.config)
		assert.Equal(t, "closed", cb.GetState().String())
	})
}
