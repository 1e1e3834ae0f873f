package poll

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestNextTickAlignment(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name    string
		start   time.Time
		elapsed time.Duration
		period  time.Duration
		want    time.Time
	}{
		{
			name:    "mid slot schedules",
			start:   base.Add(30 * time.Minute),
			elapsed: 2 * time.Second,
			period:  2 * time.Hour,
			want:    base.Add(2*time.Hour + Epsilon),
		},
		{
			name:    "exactly on the grid",
			start:   base,
			elapsed: time.Second,
			period:  2 * time.Hour,
			want:    base.Add(2*time.Hour + Epsilon),
		},
		{
			name:    "cycle overshoots the next tick",
			start:   base.Add(110 * time.Minute),
			elapsed: 15 * time.Minute, // ends past base+2h+eps
			period:  2 * time.Hour,
			want:    base.Add(4*time.Hour + Epsilon),
		},
		{
			name:    "gears grid",
			start:   base.Add(3 * time.Hour),
			elapsed: time.Second,
			period:  4 * time.Hour,
			want:    base.Add(4*time.Hour + Epsilon),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NextTick(tc.start, tc.elapsed, tc.period)
			assert.Equal(t, tc.want, got)

			// next ≡ epsilon (mod period), and strictly after the cycle end
			assert.Zero(t, got.Add(-Epsilon).UnixNano()%int64(tc.period))
			assert.True(t, got.After(tc.start.Add(tc.elapsed)))
		})
	}
}

func TestNextTickIsSmallest(t *testing.T) {
	// property 7: the smallest grid tick + epsilon strictly after s + e
	start := time.Date(2024, 3, 1, 7, 59, 0, 0, time.UTC)
	for _, elapsed := range []time.Duration{0, time.Minute, 30 * time.Minute} {
		got := NextTick(start, elapsed, 2*time.Hour)
		assert.True(t, got.After(start.Add(elapsed)))
		assert.False(t, got.Add(-2*time.Hour).After(start.Add(elapsed)),
			"one period earlier should not be strictly after the cycle end")
	}
}

func TestRunStopsOnCancelAfterSuccess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	cycle := func(context.Context) (int, error) {
		calls.Add(1)
		cancel() // shut down while the loop is realigning
		return 1, nil
	}

	l := New("test", 2*time.Hour, 30*time.Minute, cycle, zaptest.NewLogger(t), nil)
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop on cancellation")
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestRunStopsOnCancelDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cycle := func(context.Context) (int, error) {
		return 0, nil // empty diff sends the loop into backoff
	}

	l := New("test", 2*time.Hour, 30*time.Minute, cycle, zaptest.NewLogger(t), nil)
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop on cancellation")
	}
}
