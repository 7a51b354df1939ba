// Package simgpu is a software stand-in for a GPU queue, its fence and its
// presentation surface. Work never executes; signals queue up in submission
// order and complete when the caller retires them, either by hand or on a
// ticker through Run.
//
// It also keeps track of which allocator the GPU is still reading so that
// premature reuse shows up as a counted violation.
package simgpu

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/framepacing/framepacer"
)

// Device implements framepacer.Queue and framepacer.Fence.
type Device struct {
	mu        sync.Mutex
	completed framepacer.FenceValue
	pending   []framepacer.FenceValue
	// changed is closed and replaced every time completed moves.
	changed chan struct{}

	// recording holds the allocators reset since the last signal; the next
	// signal is the one that covers their work.
	recording []*Allocator

	hung       bool
	signalErr  error
	signals    int
	waits      []framepacer.FenceValue
	violations int
}

func NewDevice() *Device {
	return &Device{changed: make(chan struct{})}
}

// Signal queues value behind every earlier signal.
func (d *Device) Signal(value framepacer.FenceValue) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.signalErr != nil {
		return d.signalErr
	}
	last := d.completed
	if n := len(d.pending); n > 0 {
		last = d.pending[n-1]
	}
	if value <= last {
		return errors.Newf("fence value %d signaled after %d", value, last)
	}

	d.pending = append(d.pending, value)
	d.signals++
	for _, a := range d.recording {
		a.inFlight = value
	}
	d.recording = d.recording[:0]
	return nil
}

func (d *Device) CompletedValue() (framepacer.FenceValue, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.completed, nil
}

// WaitUntil blocks until value completes or timeout passes.
func (d *Device) WaitUntil(value framepacer.FenceValue, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	d.mu.Lock()
	d.waits = append(d.waits, value)
	for d.completed < value {
		changed := d.changed
		d.mu.Unlock()

		select {
		case <-changed:
		case <-timer.C:
			return errors.Mark(errors.Newf("fence value %d not reached within %s", value, timeout), framepacer.ErrTimeout)
		}

		d.mu.Lock()
	}
	d.mu.Unlock()
	return nil
}

// Retire completes up to n pending signals in order and returns how many
// completed.
func (d *Device) Retire(n int) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	if n > len(d.pending) {
		n = len(d.pending)
	}
	if n == 0 {
		return 0
	}
	d.advance(d.pending[n-1])
	d.pending = d.pending[n:]
	return n
}

// RetireThrough completes every pending signal up to and including value.
func (d *Device) RetireThrough(value framepacer.FenceValue) {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for n < len(d.pending) && d.pending[n] <= value {
		n++
	}
	if n == 0 {
		return
	}
	d.advance(d.pending[n-1])
	d.pending = d.pending[n:]
}

// RetireAll completes everything queued so far.
func (d *Device) RetireAll() {
	d.Retire(len(d.Pending()))
}

func (d *Device) advance(value framepacer.FenceValue) {
	d.completed = value
	close(d.changed)
	d.changed = make(chan struct{})
}

// Run retires one pending signal every latency until ctx is done or the
// device hangs.
func (d *Device) Run(ctx context.Context, latency time.Duration) error {
	ticker := time.NewTicker(latency)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if d.isHung() {
				continue
			}
			d.Retire(1)
		}
	}
}

// Hang stops Run from retiring anything, as a lost device would.
func (d *Device) Hang() {
	d.mu.Lock()
	d.hung = true
	d.mu.Unlock()
}

func (d *Device) isHung() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hung
}

// FailSignals makes every following Signal return err.
func (d *Device) FailSignals(err error) {
	d.mu.Lock()
	d.signalErr = err
	d.mu.Unlock()
}

// Pending returns a copy of the queued, uncompleted signal values.
func (d *Device) Pending() []framepacer.FenceValue {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]framepacer.FenceValue(nil), d.pending...)
}

func (d *Device) Signals() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.signals
}

// Waits returns the values passed to WaitUntil, in call order.
func (d *Device) Waits() []framepacer.FenceValue {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]framepacer.FenceValue(nil), d.waits...)
}

// Violations counts allocator resets and destroys that happened while the
// GPU could still be reading the allocator.
func (d *Device) Violations() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.violations
}
