package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedule_DelayForAttempt_FirstAttemptNeverWaits(t *testing.T) {
	s := NewSchedule(3, 1.0, 30.0, 2.0)
	assert.Equal(t, time.Duration(0), s.DelayForAttempt(1))
}

func TestSchedule_DelayForAttempt_MatchesFlakyToolScenario(t *testing.T) {
	// initial_delay=0.01, multiplier=2, max_attempts=3: delays before
	// attempts 2 and 3 are ~0.01s and ~0.02s.
	s := NewSchedule(3, 0.01, 30.0, 2.0)
	assert.InDelta(t, 0.01, s.DelayForAttempt(2).Seconds(), 0.001)
	assert.InDelta(t, 0.02, s.DelayForAttempt(3).Seconds(), 0.001)
}

func TestSchedule_DelayForAttempt_CapsAtMaxDelay(t *testing.T) {
	s := NewSchedule(10, 1.0, 3.0, 2.0)
	// attempt 5: 1 * 2^3 = 8, capped to 3.0
	assert.InDelta(t, 3.0, s.DelayForAttempt(5).Seconds(), 0.01)
}

func TestSchedule_MaxAttemptsClampedToOne(t *testing.T) {
	s := NewSchedule(0, 1.0, 30.0, 2.0)
	assert.Equal(t, 1, s.MaxAttempts)
}

func TestSleep_ReturnsNilForZeroDelay(t *testing.T) {
	require.NoError(t, Sleep(context.Background(), 0))
}

func TestSleep_InterruptedByContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Sleep(ctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}
