package utils

import (
	"math"
	"testing"
	"time"
)

func TestFrameCounter(t *testing.T) {
	var clock time.Duration
	c := newFrameCounter(func() time.Duration { return clock })

	for i := 0; i < 59; i++ {
		clock += 16 * time.Millisecond
		if _, ok := c.Tick(); ok {
			t.Fatalf("Tick() reported after %v", clock)
		}
	}

	clock = 1200 * time.Millisecond
	fps, ok := c.Tick()
	if !ok {
		t.Fatal("Tick() did not report after 1.2s")
	}
	if want := 60 / 1.2; math.Abs(fps-want) > 1e-9 {
		t.Errorf("fps = %v, want %v", fps, want)
	}

	clock += 500 * time.Millisecond
	if _, ok := c.Tick(); ok {
		t.Error("Tick() reported half a second into a new window")
	}
}
