package utils

import (
	"time"

	"github.com/loov/hrtime"
)

// FrameCounter measures frames per second over windows of at least one
// second.
type FrameCounter struct {
	now    func() time.Duration
	start  time.Duration
	frames uint64
}

func NewFrameCounter() *FrameCounter {
	return newFrameCounter(hrtime.Now)
}

func newFrameCounter(now func() time.Duration) *FrameCounter {
	return &FrameCounter{now: now, start: now()}
}

// Tick counts one frame. Once more than a second has passed since the last
// report it returns the rate over that window and starts a new one.
func (c *FrameCounter) Tick() (fps float64, ok bool) {
	c.frames++
	now := c.now()
	elapsed := now - c.start
	if elapsed <= time.Second {
		return 0, false
	}

	fps = float64(c.frames) / elapsed.Seconds()
	c.frames = 0
	c.start = now
	return fps, true
}
