package circuit

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type outcome bool

const (
	fail outcome = false
	ok   outcome = true
)

func replay(b *Breaker, outcomes ...outcome) {
	for _, o := range outcomes {
		if o {
			b.RecordSuccess()
		} else {
			b.RecordFailure()
		}
	}
}

func TestBreakerStates(t *testing.T) {
	tests := []struct {
		name     string
		opts     []Option
		outcomes []outcome
		wantOpen bool
	}{
		{name: "new breaker is closed", wantOpen: false},
		{name: "default threshold opens on the fifth failure", outcomes: []outcome{fail, fail, fail, fail, fail}, wantOpen: true},
		{name: "four failures stay closed", outcomes: []outcome{fail, fail, fail, fail}, wantOpen: false},
		{
			name:     "success while closed clears the failure streak",
			opts:     []Option{WithFailureThreshold(3)},
			outcomes: []outcome{fail, fail, ok, fail, fail},
			wantOpen: false,
		},
		{
			name:     "one probe success is not enough to close",
			opts:     []Option{WithFailureThreshold(1), WithSuccessThreshold(2)},
			outcomes: []outcome{fail, ok},
			wantOpen: true,
		},
		{
			name:     "consecutive probe successes close",
			opts:     []Option{WithFailureThreshold(1), WithSuccessThreshold(2)},
			outcomes: []outcome{fail, ok, ok},
			wantOpen: false,
		},
		{
			name:     "a failed probe restarts the success streak",
			opts:     []Option{WithFailureThreshold(1), WithSuccessThreshold(3)},
			outcomes: []outcome{fail, ok, ok, fail, ok, ok},
			wantOpen: true,
		},
		{
			name:     "non-positive thresholds keep the defaults",
			opts:     []Option{WithFailureThreshold(0), WithSuccessThreshold(-1)},
			outcomes: []outcome{fail, fail, fail, fail},
			wantOpen: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New("kafka-events", tt.opts...)
			replay(b, tt.outcomes...)
			assert.Equal(t, tt.wantOpen, b.IsOpen())
		})
	}
}

func TestBreakerTransitions(t *testing.T) {
	t.Run("opening and closing are reported once", func(t *testing.T) {
		b := New("ratelimit", WithFailureThreshold(2), WithSuccessThreshold(1))
		assert.Equal(t, "ratelimit", b.Name())

		useFallback, change := b.RecordFailure()
		assert.False(t, useFallback)
		assert.False(t, change.Opened)

		useFallback, change = b.RecordFailure()
		assert.True(t, useFallback)
		assert.True(t, change.Opened)

		useFallback, change = b.RecordFailure()
		assert.True(t, useFallback)
		assert.False(t, change.Opened)

		usePrimary, change := b.RecordSuccess()
		assert.True(t, usePrimary)
		assert.True(t, change.Closed)
		assert.Equal(t, StateClosed, b.State())
	})

	t.Run("reset closes an open breaker", func(t *testing.T) {
		b := New("ratelimit", WithFailureThreshold(1))
		b.RecordFailure()
		require.True(t, b.IsOpen())

		b.Reset()
		assert.Equal(t, StateClosed, b.State())
		useFallback, _ := b.RecordFailure()
		assert.True(t, useFallback)
	})

	t.Run("concurrent recording is safe", func(t *testing.T) {
		b := New("kafka-events", WithFailureThreshold(50))
		var wg sync.WaitGroup
		for range 100 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				b.RecordFailure()
			}()
		}
		wg.Wait()
		assert.True(t, b.IsOpen())
	})
}
