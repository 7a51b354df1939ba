package vkpacer

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/framepacing/framepacer"
)

// fenceOps is the handful of fence calls the timeline needs.
type fenceOps[F any] interface {
	create() (F, error)
	// submit queues an empty batch that signals fence once everything
	// submitted earlier has completed.
	submit(fence F) error
	// wait reports whether fence became signaled within timeout.
	wait(fence F, timeout time.Duration) (bool, error)
	reset(fence F) error
	destroy(fence F)
	idle() error
}

type pendingFence[F any] struct {
	value framepacer.FenceValue
	fence F
}

// fenceTimeline turns one-shot fences into a monotonic counter. A queue
// completes work in submission order, so once the fence signaled for a value
// is seen, every lower value is complete too.
type fenceTimeline[F any] struct {
	ops       fenceOps[F]
	completed framepacer.FenceValue
	pending   []pendingFence[F]
	free      []F
}

func (t *fenceTimeline[F]) Signal(value framepacer.FenceValue) error {
	if n := len(t.pending); n > 0 && value <= t.pending[n-1].value {
		return errors.Newf("fence value %d signaled after %d", value, t.pending[n-1].value)
	}
	if value <= t.completed {
		return errors.Newf("fence value %d signaled after completed %d", value, t.completed)
	}

	var fence F
	if n := len(t.free); n > 0 {
		fence = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		var err error
		fence, err = t.ops.create()
		if err != nil {
			return errors.Wrap(err, "create fence")
		}
	}

	if err := t.ops.submit(fence); err != nil {
		t.free = append(t.free, fence)
		return errors.Wrapf(err, "submit signal for fence value %d", value)
	}
	t.pending = append(t.pending, pendingFence[F]{value: value, fence: fence})
	return nil
}

func (t *fenceTimeline[F]) CompletedValue() (framepacer.FenceValue, error) {
	for len(t.pending) > 0 {
		signaled, err := t.ops.wait(t.pending[0].fence, 0)
		if err != nil {
			return t.completed, errors.Wrap(err, "poll fence")
		}
		if !signaled {
			break
		}
		if err := t.retire(1); err != nil {
			return t.completed, err
		}
	}
	return t.completed, nil
}

func (t *fenceTimeline[F]) WaitUntil(value framepacer.FenceValue, timeout time.Duration) error {
	completed, err := t.CompletedValue()
	if err != nil {
		return err
	}
	if completed >= value {
		return nil
	}

	idx := -1
	for i, p := range t.pending {
		if p.value >= value {
			idx = i
			break
		}
	}
	if idx < 0 {
		return errors.Newf("fence value %d was never signaled", value)
	}

	signaled, err := t.ops.wait(t.pending[idx].fence, timeout)
	if err != nil {
		return errors.Wrapf(err, "wait for fence value %d", value)
	}
	if !signaled {
		return errors.Mark(errors.Newf("fence value %d not reached within %s", value, timeout), framepacer.ErrTimeout)
	}
	return t.retire(idx + 1)
}

// retire moves the first n pending fences to the free list.
func (t *fenceTimeline[F]) retire(n int) error {
	for i := 0; i < n; i++ {
		p := t.pending[0]
		if err := t.ops.reset(p.fence); err != nil {
			return errors.Wrap(err, "reset fence")
		}
		t.pending = t.pending[1:]
		t.completed = p.value
		t.free = append(t.free, p.fence)
	}
	return nil
}

func (t *fenceTimeline[F]) destroy() error {
	err := t.ops.idle()
	if err != nil {
		// Destroying fences the queue may still signal is worse than leaking.
		return errors.Wrap(err, "wait for queue idle")
	}
	for _, p := range t.pending {
		t.completed = p.value
		t.ops.destroy(p.fence)
	}
	for _, f := range t.free {
		t.ops.destroy(f)
	}
	t.pending = nil
	t.free = nil
	return nil
}

// Timeline is a framepacer.Queue and framepacer.Fence on a Vulkan queue.
type Timeline struct {
	fenceTimeline[core1_0.Fence]
}

func NewTimeline(driver core1_0.DeviceDriver, queue core1_0.Queue) *Timeline {
	return &Timeline{
		fenceTimeline: fenceTimeline[core1_0.Fence]{
			ops: deviceFenceOps{driver: driver, queue: queue},
		},
	}
}

// Destroy waits for the queue to go idle and destroys every fence.
func (t *Timeline) Destroy() error {
	return t.destroy()
}

type deviceFenceOps struct {
	driver core1_0.DeviceDriver
	queue  core1_0.Queue
}

func (o deviceFenceOps) create() (core1_0.Fence, error) {
	fence, _, err := o.driver.CreateFence(nil, core1_0.FenceCreateInfo{})
	return fence, err
}

func (o deviceFenceOps) submit(fence core1_0.Fence) error {
	_, err := o.driver.QueueSubmit(o.queue, &fence, core1_0.SubmitInfo{})
	return err
}

func (o deviceFenceOps) wait(fence core1_0.Fence, timeout time.Duration) (bool, error) {
	res, err := o.driver.WaitForFences(true, timeout, fence)
	if err != nil {
		return false, err
	}
	return res != core1_0.VKTimeout, nil
}

func (o deviceFenceOps) reset(fence core1_0.Fence) error {
	_, err := o.driver.ResetFences(fence)
	return err
}

func (o deviceFenceOps) destroy(fence core1_0.Fence) {
	o.driver.DestroyFence(fence, nil)
}

func (o deviceFenceOps) idle() error {
	_, err := o.driver.QueueWaitIdle(o.queue)
	return err
}
