package testutil

import (
	"testing"
	"time"
)

func TestStepClockAdvances(t *testing.T) {
	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	c := NewStepClock(start, time.Minute)

	if got := c.Now(); !got.Equal(start) {
		t.Fatalf("first reading: got %v, want %v", got, start)
	}
	if got := c.Now(); !got.Equal(start.Add(time.Minute)) {
		t.Fatalf("second reading: got %v, want %v", got, start.Add(time.Minute))
	}

	c.Reset(start)
	if got := c.Now(); !got.Equal(start) {
		t.Fatalf("after reset: got %v, want %v", got, start)
	}
}

func TestStepClockDefaultStep(t *testing.T) {
	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	c := NewStepClock(start, 0)
	c.Now()
	if got := c.Now(); !got.Equal(start.Add(time.Second)) {
		t.Fatalf("default step: got %v, want +1s", got)
	}
}
