package circuitbreaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/intentwire/verifier/pkg/logger"
)

func TestCircuitBreaker(t *testing.T) {
	log := &logger.EmptyLogger{}

	t.Run("trips after threshold failures", func(t *testing.T) {
		cb := NewCircuitBreaker(true, 3, time.Minute, time.Minute, log)

		assert.False(t, cb.RecordFailure())
		assert.False(t, cb.RecordFailure())
		assert.False(t, cb.IsOpen())
		assert.True(t, cb.RecordFailure())
		assert.True(t, cb.IsOpen())
	})

	t.Run("success clears the failure window", func(t *testing.T) {
		cb := NewCircuitBreaker(true, 2, time.Minute, time.Minute, log)

		cb.RecordFailure()
		cb.RecordSuccess()
		assert.False(t, cb.RecordFailure(), "count restarted after a success")
		assert.False(t, cb.IsOpen())
	})

	t.Run("reopens after reset timeout", func(t *testing.T) {
		cb := NewCircuitBreaker(true, 1, time.Minute, 10*time.Millisecond, log)

		cb.RecordFailure()
		assert.True(t, cb.IsOpen())

		time.Sleep(20 * time.Millisecond)
		assert.False(t, cb.IsOpen())
	})

	t.Run("manual reset", func(t *testing.T) {
		cb := NewCircuitBreaker(true, 1, time.Minute, time.Hour, log)

		cb.RecordFailure()
		assert.True(t, cb.IsOpen())
		cb.Reset()
		assert.False(t, cb.IsOpen())
	})

	t.Run("disabled breaker never opens", func(t *testing.T) {
		cb := NewCircuitBreaker(false, 1, time.Minute, time.Minute, log)

		cb.RecordFailure()
		cb.RecordFailure()
		assert.False(t, cb.IsOpen())
		assert.False(t, cb.IsEnabled())
	})
}
