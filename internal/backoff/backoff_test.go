package backoff

import (
	"testing"
	"time"
)

func TestExponential_NextDelay(t *testing.T) {
	tests := []struct {
		name     string
		initial  time.Duration
		maxDelay time.Duration
		attempt  int
		want     time.Duration
	}{
		{"first retry uses initial delay", 100 * time.Millisecond, time.Second, 0, 100 * time.Millisecond},
		{"second retry doubles", 100 * time.Millisecond, time.Second, 1, 200 * time.Millisecond},
		{"third retry quadruples", 100 * time.Millisecond, time.Second, 2, 400 * time.Millisecond},
		{"capped at max delay", 100 * time.Millisecond, time.Second, 5, time.Second},
		{"huge attempt is capped", time.Millisecond, time.Second, 200, time.Second},
		{"negative attempt", time.Millisecond, time.Second, -1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(Exponential, tt.initial, tt.maxDelay, 0)
			if got := s.NextDelay(tt.attempt); got != tt.want {
				t.Errorf("NextDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}
}

func TestExponential_Uncapped(t *testing.T) {
	s := New(Exponential, time.Millisecond, 0, 0)
	if got := s.NextDelay(10); got != 1024*time.Millisecond {
		t.Errorf("expected 1.024s without a cap, got %v", got)
	}
}

func TestJittered_NextDelay(t *testing.T) {
	s := New(Jittered, 100*time.Millisecond, 10*time.Second, 0.2)

	for attempt := range 4 {
		base := time.Duration(int64(1)<<uint(attempt)) * 100 * time.Millisecond
		lo := time.Duration(float64(base) * 0.8)
		hi := time.Duration(float64(base) * 1.2)

		for range 50 {
			d := s.NextDelay(attempt)
			if d < lo || d > hi {
				t.Fatalf("attempt %d: delay %v outside [%v, %v]", attempt, d, lo, hi)
			}
		}
	}
}

func TestJittered_ClampsFactor(t *testing.T) {
	s := New(Jittered, 100*time.Millisecond, time.Second, 5)
	for range 100 {
		if d := s.NextDelay(0); d < 0 || d > 200*time.Millisecond {
			t.Fatalf("delay %v outside the clamped range", d)
		}
	}
}

func TestConstant_NextDelay(t *testing.T) {
	s := New(Constant, 50*time.Millisecond, time.Second, 0)
	for attempt := range 5 {
		if d := s.NextDelay(attempt); d != 50*time.Millisecond {
			t.Errorf("attempt %d: expected 50ms, got %v", attempt, d)
		}
	}
}
