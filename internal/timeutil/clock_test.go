package timeutil

import (
	"testing"
	"time"
)

func TestRealClock(t *testing.T) {
	var c Clock = RealClock{}
	start := c.Now()
	if c.Since(start) < 0 {
		t.Error("Since() went backwards")
	}
}

func TestMockClock(t *testing.T) {
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	c := NewMockClock(base)

	if !c.Now().Equal(base) || !c.Now().Equal(base) {
		t.Fatal("MockClock without step should not move")
	}

	c.Advance(90 * time.Second)
	if got := c.Since(base); got != 90*time.Second {
		t.Errorf("Since() = %v, want 90s", got)
	}

	later := base.Add(time.Hour)
	c.Set(later)
	if !c.Now().Equal(later) {
		t.Errorf("Now() after Set = %v, want %v", c.Now(), later)
	}
}

func TestSteppingClock(t *testing.T) {
	base := time.Unix(1700000000, 0)
	c := NewSteppingClock(base, 100*time.Millisecond)

	for i := 0; i < 3; i++ {
		want := base.Add(time.Duration(i) * 100 * time.Millisecond)
		if got := c.Now(); !got.Equal(want) {
			t.Fatalf("Now() #%d = %v, want %v", i, got, want)
		}
	}
	// Since does not step.
	if c.Since(base) != 300*time.Millisecond || c.Since(base) != 300*time.Millisecond {
		t.Errorf("Since() = %v, want 300ms", c.Since(base))
	}
}
