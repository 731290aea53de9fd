package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestLimiterSpacing(t *testing.T) {
	t.Parallel()

	l := New(2.0)
	if l.Interval() != 500*time.Millisecond {
		t.Fatalf("expected 500ms interval, got %v", l.Interval())
	}

	ctx := context.Background()
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first := time.Now()
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second := time.Now()

	// Allow a small scheduling tolerance.
	if gap := second.Sub(first); gap < 450*time.Millisecond {
		t.Errorf("expected permitted requests to be >= 0.5s apart, got %v", gap)
	}
}

func TestLimiterConcurrentCallers(t *testing.T) {
	t.Parallel()

	l := New(10.0)
	ctx := context.Background()

	var mu sync.Mutex
	var stamps []time.Time
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Wait(ctx); err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			mu.Lock()
			stamps = append(stamps, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(stamps) != 4 {
		t.Fatalf("expected 4 permits, got %d", len(stamps))
	}
	earliest, latest := stamps[0], stamps[0]
	for _, s := range stamps {
		if s.Before(earliest) {
			earliest = s
		}
		if s.After(latest) {
			latest = s
		}
	}
	// Four permits at 10 req/s span at least three intervals.
	if span := latest.Sub(earliest); span < 250*time.Millisecond {
		t.Errorf("expected permits to be spread over >= 300ms, got %v", span)
	}
}

func TestLimiterDisabled(t *testing.T) {
	t.Parallel()

	for _, rps := range []float64{0, -1} {
		l := New(rps)
		if l.Enabled() || l.Interval() != 0 {
			t.Errorf("rate %v should disable limiting", rps)
		}
		start := time.Now()
		for range 100 {
			if err := l.Wait(context.Background()); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if time.Since(start) > 100*time.Millisecond {
			t.Error("disabled limiter must not wait")
		}
	}
}

func TestLimiterContextCancelled(t *testing.T) {
	t.Parallel()

	l := New(0.1)
	ctx, cancel := context.WithCancel(context.Background())
	_ = l.Wait(ctx)
	cancel()
	if err := l.Wait(ctx); err == nil {
		t.Error("expected an error from a cancelled context")
	}
}

func TestSlowest(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		rps      float64
		delay    time.Duration
		expected float64
	}{
		{"no crawl delay", 2, 0, 2},
		{"crawl delay is stricter", 2, 2 * time.Second, 0.5},
		{"rate is stricter", 0.1, time.Second, 0.1},
		{"disabled rate takes crawl delay", 0, 4 * time.Second, 0.25},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Slowest(tc.rps, tc.delay); got != tc.expected {
				t.Errorf("Slowest(%v, %v) = %v, expected %v", tc.rps, tc.delay, got, tc.expected)
			}
		})
	}
}
