package simgpu

import (
	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/framepacing/framepacer"
)

// Allocator implements framepacer.Allocator and checks that it is only
// reset or destroyed once the GPU has finished with its commands.
type Allocator struct {
	dev *Device

	// inFlight is the fence value covering the last commands recorded here.
	inFlight  framepacer.FenceValue
	resets    int
	destroyed bool
}

func (d *Device) NewAllocator() *Allocator {
	return &Allocator{dev: d}
}

// NewAllocators returns n allocators typed for framepacer.New.
func (d *Device) NewAllocators(n int) ([]*Allocator, []framepacer.Allocator) {
	sims := make([]*Allocator, n)
	ifaces := make([]framepacer.Allocator, n)
	for i := range sims {
		sims[i] = d.NewAllocator()
		ifaces[i] = sims[i]
	}
	return sims, ifaces
}

func (a *Allocator) Reset() error {
	d := a.dev
	d.mu.Lock()
	defer d.mu.Unlock()

	if a.destroyed {
		return errors.New("reset of destroyed allocator")
	}
	if d.completed < a.inFlight {
		d.violations++
		return errors.Newf("allocator reset while the gpu is at %d, needs %d", d.completed, a.inFlight)
	}

	a.resets++
	d.recording = append(d.recording, a)
	return nil
}

func (a *Allocator) Destroy() {
	d := a.dev
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.completed < a.inFlight {
		d.violations++
	}
	a.destroyed = true
}

func (a *Allocator) Resets() int {
	a.dev.mu.Lock()
	defer a.dev.mu.Unlock()
	return a.resets
}

func (a *Allocator) Destroyed() bool {
	a.dev.mu.Lock()
	defer a.dev.mu.Unlock()
	return a.destroyed
}

// InFlight is the fence value the GPU must reach before this allocator is
// free again.
func (a *Allocator) InFlight() framepacer.FenceValue {
	a.dev.mu.Lock()
	defer a.dev.mu.Unlock()
	return a.inFlight
}
