package framepacer_test

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/framepacing/framepacer"
	"github.com/vkngwrapper/framepacing/framepacer/simgpu"
)

type image struct{ id int }

func images(n int) []image {
	out := make([]image, n)
	for i := range out {
		out[i] = image{id: i}
	}
	return out
}

type rig struct {
	dev        *simgpu.Device
	swapchain  *simgpu.Swapchain
	allocators []*simgpu.Allocator
	pacer      *framepacer.Pacer[image]
}

func newRig(t *testing.T, slots int, swapchain *simgpu.Swapchain, opts framepacer.Options) *rig {
	t.Helper()

	dev := simgpu.NewDevice()
	if swapchain == nil {
		swapchain = simgpu.NewSwapchain(slots)
	}
	sims, allocators := dev.NewAllocators(slots)

	pacer, err := framepacer.New(dev, dev, swapchain, images(slots), allocators, opts)
	if err != nil {
		t.Fatalf("New() failed: %+v", err)
	}
	return &rig{dev: dev, swapchain: swapchain, allocators: sims, pacer: pacer}
}

func noop(*framepacer.Slot[image]) error { return nil }

func TestNewValidation(t *testing.T) {
	dev := simgpu.NewDevice()
	swapchain := simgpu.NewSwapchain(3)
	_, three := dev.NewAllocators(3)
	_, one := dev.NewAllocators(1)

	tests := []struct {
		name       string
		queue      framepacer.Queue
		images     []image
		allocators []framepacer.Allocator
	}{
		{"nil queue", nil, images(3), three},
		{"length mismatch", dev, images(2), three},
		{"single slot", dev, images(1), one},
		{"nil allocator", dev, images(3), []framepacer.Allocator{three[0], nil, three[2]}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := framepacer.New(tt.queue, dev, swapchain, tt.images, tt.allocators, framepacer.Options{})
			if !errors.Is(err, framepacer.ErrSetup) {
				t.Errorf("New() error = %v, want ErrSetup", err)
			}
		})
	}
}

func TestSignalStrictlyIncreasing(t *testing.T) {
	r := newRig(t, 3, nil, framepacer.Options{})

	var last framepacer.FenceValue
	for i := 0; i < 10; i++ {
		v, err := r.pacer.Signal()
		if err != nil {
			t.Fatalf("Signal() failed: %+v", err)
		}
		if v <= last {
			t.Fatalf("Signal() = %d after %d, want strictly increasing", v, last)
		}
		last = v
	}
	if last != 10 {
		t.Errorf("tenth Signal() = %d, want 10", last)
	}
}

func TestSignalFailureDoesNotReuseValue(t *testing.T) {
	r := newRig(t, 3, nil, framepacer.Options{})

	if _, err := r.pacer.Signal(); err != nil {
		t.Fatalf("Signal() failed: %+v", err)
	}

	r.dev.FailSignals(errors.New("device lost"))
	if _, err := r.pacer.Signal(); !errors.Is(err, framepacer.ErrSubmit) {
		t.Fatalf("Signal() error = %v, want ErrSubmit", err)
	}

	r.dev.FailSignals(nil)
	v, err := r.pacer.Signal()
	if err != nil {
		t.Fatalf("Signal() failed: %+v", err)
	}
	if v != 3 {
		t.Errorf("Signal() after failure = %d, want 3", v)
	}
}

func TestWaitForReachedValueDoesNotBlock(t *testing.T) {
	r := newRig(t, 3, nil, framepacer.Options{})

	v, err := r.pacer.Signal()
	if err != nil {
		t.Fatalf("Signal() failed: %+v", err)
	}
	r.dev.RetireAll()

	if err := r.pacer.WaitFor(v); err != nil {
		t.Fatalf("WaitFor(%d) failed: %+v", v, err)
	}
	if err := r.pacer.WaitFor(0); err != nil {
		t.Fatalf("WaitFor(0) failed: %+v", err)
	}

	if waits := r.dev.Waits(); len(waits) != 0 {
		t.Errorf("blocking waits = %v, want none", waits)
	}
	if got := r.pacer.Stats().ImmediateWaits; got != 2 {
		t.Errorf("ImmediateWaits = %d, want 2", got)
	}
}

func TestWaitForBlocksUntilCompleted(t *testing.T) {
	r := newRig(t, 3, nil, framepacer.Options{})

	v, err := r.pacer.Signal()
	if err != nil {
		t.Fatalf("Signal() failed: %+v", err)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		r.dev.RetireThrough(v)
	}()

	if err := r.pacer.WaitFor(v); err != nil {
		t.Fatalf("WaitFor(%d) failed: %+v", v, err)
	}

	waits := r.dev.Waits()
	if len(waits) != 1 || waits[0] != v {
		t.Errorf("blocking waits = %v, want [%d]", waits, v)
	}
	if got := r.pacer.Stats().BlockingWaits; got != 1 {
		t.Errorf("BlockingWaits = %d, want 1", got)
	}
}

func TestWaitForTimeout(t *testing.T) {
	r := newRig(t, 3, nil, framepacer.Options{WaitTimeout: 50 * time.Millisecond})

	v, err := r.pacer.Signal()
	if err != nil {
		t.Fatalf("Signal() failed: %+v", err)
	}

	start := time.Now()
	err = r.pacer.WaitFor(v)
	elapsed := time.Since(start)

	if !errors.Is(err, framepacer.ErrTimeout) {
		t.Fatalf("WaitFor() error = %v, want ErrTimeout", err)
	}
	if errors.Is(err, framepacer.ErrSubmit) {
		t.Errorf("timeout also marked ErrSubmit: %v", err)
	}
	if elapsed > 2*time.Second {
		t.Errorf("WaitFor() took %v, want about the 50ms timeout", elapsed)
	}
}

// Three frames on three slots signal 1, 2, 3; acquiring for the fourth frame
// reuses slot 0 and must wait for 1.
func TestThreeFramesThenReuse(t *testing.T) {
	r := newRig(t, 3, nil, framepacer.Options{})

	for i := 0; i < 2; i++ {
		if err := r.pacer.Frame(noop); err != nil {
			t.Fatalf("frame %d failed: %+v", i+1, err)
		}
	}
	if waits := r.dev.Waits(); len(waits) != 0 {
		t.Fatalf("blocking waits after two frames = %v, want none", waits)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		r.dev.RetireThrough(1)
	}()
	if err := r.pacer.Frame(noop); err != nil {
		t.Fatalf("frame 3 failed: %+v", err)
	}

	for i, want := range []framepacer.FenceValue{1, 2, 3} {
		if got := r.pacer.Slot(i).FenceValue; got != want {
			t.Errorf("slot %d FenceValue = %d, want %d", i, got, want)
		}
	}
	if got := r.pacer.Current(); got != 0 {
		t.Errorf("Current() = %d, want 0", got)
	}
	waits := r.dev.Waits()
	if len(waits) != 1 || waits[0] != 1 {
		t.Errorf("blocking waits = %v, want [1]", waits)
	}
	if completed, _ := r.dev.CompletedValue(); completed < 1 {
		t.Errorf("completed = %d after acquiring slot 0, want >= 1", completed)
	}
	if v := r.dev.Violations(); v != 0 {
		t.Errorf("violations = %d, want 0", v)
	}
}

func TestNoPrematureReuse(t *testing.T) {
	tests := []struct {
		name  string
		slots int
		order []int
	}{
		{"two slots", 2, []int{0, 1}},
		{"three slots", 3, []int{0, 1, 2}},
		{"three slots out of order", 3, []int{0, 2, 1, 1, 0, 2}},
		{"four slots mailbox", 4, []int{0, 1, 3, 0, 2, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t, tt.slots, simgpu.NewScriptedSwapchain(tt.order...), framepacer.Options{})

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() { done <- r.dev.Run(ctx, time.Millisecond) }()

			for i := 0; i < 60; i++ {
				err := r.pacer.Frame(func(slot *framepacer.Slot[image]) error {
					completed, _ := r.dev.CompletedValue()
					if completed < slot.FenceValue {
						t.Errorf("frame %d: recording slot %d at completed %d, slot needs %d",
							i, slot.Index, completed, slot.FenceValue)
					}
					if slot.BackBuffer.id != slot.Index {
						t.Errorf("slot %d has back-buffer %d", slot.Index, slot.BackBuffer.id)
					}
					return nil
				})
				if err != nil {
					t.Fatalf("frame %d failed: %+v", i, err)
				}
			}

			if err := r.pacer.Close(); err != nil {
				t.Fatalf("Close() failed: %+v", err)
			}
			cancel()
			<-done

			if v := r.dev.Violations(); v != 0 {
				t.Errorf("violations = %d, want 0", v)
			}
			stats := r.pacer.Stats()
			if stats.FramesBegun != 60 || stats.FramesEnded != 60 {
				t.Errorf("frames begun/ended = %d/%d, want 60/60", stats.FramesBegun, stats.FramesEnded)
			}
		})
	}
}

func TestShutdownWaitsForInFlightWork(t *testing.T) {
	r := newRig(t, 3, nil, framepacer.Options{})

	for i := 0; i < 2; i++ {
		if err := r.pacer.Frame(noop); err != nil {
			t.Fatalf("frame %d failed: %+v", i+1, err)
		}
	}
	r.dev.RetireThrough(1)
	if err := r.pacer.Frame(noop); err != nil {
		t.Fatalf("frame 3 failed: %+v", err)
	}
	r.dev.RetireThrough(2)

	closed := make(chan error, 1)
	go func() { closed <- r.pacer.Close() }()

	select {
	case err := <-closed:
		t.Fatalf("Close() returned %v while the gpu was at 2 of 3", err)
	case <-time.After(50 * time.Millisecond):
	}
	for i, a := range r.allocators {
		if a.Destroyed() {
			t.Errorf("allocator %d destroyed while work was in flight", i)
		}
	}

	r.dev.RetireAll()
	if err := <-closed; err != nil {
		t.Fatalf("Close() failed: %+v", err)
	}

	for i, a := range r.allocators {
		if !a.Destroyed() {
			t.Errorf("allocator %d not destroyed after Close", i)
		}
	}
	if v := r.dev.Violations(); v != 0 {
		t.Errorf("violations = %d, want 0", v)
	}
}

func TestCloseTimeoutKeepsResources(t *testing.T) {
	r := newRig(t, 3, nil, framepacer.Options{WaitTimeout: 30 * time.Millisecond})

	if err := r.pacer.Frame(noop); err != nil {
		t.Fatalf("Frame() failed: %+v", err)
	}

	err := r.pacer.Close()
	if !errors.Is(err, framepacer.ErrTimeout) {
		t.Fatalf("Close() error = %v, want ErrTimeout", err)
	}
	for i, a := range r.allocators {
		if a.Destroyed() {
			t.Errorf("allocator %d destroyed after failed drain", i)
		}
	}
}

func TestShutdownFallsBackToIdle(t *testing.T) {
	tests := []struct {
		name          string
		idleErr       error
		wantDestroyed bool
	}{
		{"idle succeeds", nil, true},
		{"idle fails", errors.New("device lost"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t, 3, nil, framepacer.Options{WaitTimeout: 30 * time.Millisecond})
			if err := r.pacer.Frame(noop); err != nil {
				t.Fatalf("Frame() failed: %+v", err)
			}

			idled := false
			err := r.pacer.Shutdown(func() error {
				idled = true
				if tt.idleErr != nil {
					return tt.idleErr
				}
				r.dev.RetireAll()
				return nil
			})
			if !errors.Is(err, framepacer.ErrTimeout) {
				t.Fatalf("Shutdown() error = %v, want ErrTimeout", err)
			}
			if !idled {
				t.Fatal("Shutdown() did not fall back to idle")
			}

			for i, a := range r.allocators {
				if a.Destroyed() != tt.wantDestroyed {
					t.Errorf("allocator %d destroyed = %v, want %v", i, a.Destroyed(), tt.wantDestroyed)
				}
			}
			if v := r.dev.Violations(); v != 0 {
				t.Errorf("violations = %d, want 0", v)
			}
		})
	}
}

func TestShutdownAfterDrainSkipsIdle(t *testing.T) {
	r := newRig(t, 3, nil, framepacer.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.dev.Run(ctx, time.Millisecond)

	if err := r.pacer.Frame(noop); err != nil {
		t.Fatalf("Frame() failed: %+v", err)
	}
	err := r.pacer.Shutdown(func() error {
		t.Error("idle called after a successful drain")
		return nil
	})
	if err != nil {
		t.Fatalf("Shutdown() failed: %+v", err)
	}
	for i, a := range r.allocators {
		if !a.Destroyed() {
			t.Errorf("allocator %d not destroyed", i)
		}
	}
}

func TestClosedPacer(t *testing.T) {
	r := newRig(t, 2, nil, framepacer.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.dev.Run(ctx, time.Millisecond)

	if err := r.pacer.Close(); err != nil {
		t.Fatalf("Close() failed: %+v", err)
	}
	if err := r.pacer.Close(); err != nil {
		t.Errorf("second Close() = %v, want nil", err)
	}

	if _, err := r.pacer.Signal(); !errors.Is(err, framepacer.ErrClosed) {
		t.Errorf("Signal() error = %v, want ErrClosed", err)
	}
	if err := r.pacer.WaitFor(1); !errors.Is(err, framepacer.ErrClosed) {
		t.Errorf("WaitFor() error = %v, want ErrClosed", err)
	}
	if _, err := r.pacer.BeginFrame(); !errors.Is(err, framepacer.ErrClosed) {
		t.Errorf("BeginFrame() error = %v, want ErrClosed", err)
	}
	if err := r.pacer.Frame(noop); !errors.Is(err, framepacer.ErrClosed) {
		t.Errorf("Frame() error = %v, want ErrClosed", err)
	}
}

func TestAcquireOutOfRange(t *testing.T) {
	r := newRig(t, 3, simgpu.NewScriptedSwapchain(5), framepacer.Options{})

	_, err := r.pacer.AcquireNextSlot()
	if !errors.Is(err, framepacer.ErrSubmit) {
		t.Errorf("AcquireNextSlot() error = %v, want ErrSubmit", err)
	}
}

func TestAcquireFailureIsRetriedNextFrame(t *testing.T) {
	r := newRig(t, 3, nil, framepacer.Options{})
	errOutOfDate := errors.New("surface out of date")

	r.swapchain.FailNext(errOutOfDate)
	err := r.pacer.Frame(noop)
	if !errors.Is(err, errOutOfDate) {
		t.Fatalf("Frame() error = %v, want surface error", err)
	}

	if err := r.pacer.Frame(noop); err != nil {
		t.Fatalf("Frame() after failed acquire: %+v", err)
	}
	if got := r.swapchain.Acquired(); len(got) != 2 || got[0] != 0 || got[1] != 1 {
		t.Errorf("acquired = %v, want [0 1]", got)
	}
}

func TestRecordErrorStillProtectsSlot(t *testing.T) {
	r := newRig(t, 3, nil, framepacer.Options{})
	errPresent := errors.New("present failed")

	err := r.pacer.Frame(func(*framepacer.Slot[image]) error { return errPresent })
	if !errors.Is(err, errPresent) {
		t.Fatalf("Frame() error = %v, want present error", err)
	}
	if got := r.pacer.Slot(0).FenceValue; got != 1 {
		t.Errorf("slot 0 FenceValue = %d, want 1", got)
	}
	if got := r.allocators[0].InFlight(); got != 1 {
		t.Errorf("allocator 0 in flight = %d, want 1", got)
	}

	if err := r.pacer.Frame(noop); err != nil {
		t.Fatalf("Frame() after record error: %+v", err)
	}
}

func TestRebind(t *testing.T) {
	r := newRig(t, 3, nil, framepacer.Options{})

	if err := r.pacer.Frame(noop); err != nil {
		t.Fatalf("Frame() failed: %+v", err)
	}

	fresh := []image{{id: 10}, {id: 11}, {id: 12}}
	if err := r.pacer.Rebind(fresh); err == nil {
		t.Fatal("Rebind() with work in flight succeeded")
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		r.dev.RetireAll()
	}()
	if err := r.pacer.Drain(); err != nil {
		t.Fatalf("Drain() failed: %+v", err)
	}

	if err := r.pacer.Rebind(fresh[:2]); !errors.Is(err, framepacer.ErrSetup) {
		t.Errorf("Rebind() with 2 back-buffers error = %v, want ErrSetup", err)
	}
	if err := r.pacer.Rebind(fresh); err != nil {
		t.Fatalf("Rebind() failed: %+v", err)
	}

	err := r.pacer.Frame(func(slot *framepacer.Slot[image]) error {
		if slot.BackBuffer.id != 10+slot.Index {
			t.Errorf("slot %d back-buffer = %d, want %d", slot.Index, slot.BackBuffer.id, 10+slot.Index)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Frame() after Rebind failed: %+v", err)
	}
}

func TestProtocolMisuse(t *testing.T) {
	r := newRig(t, 3, nil, framepacer.Options{})

	if err := r.pacer.EndFrame(); err == nil {
		t.Error("EndFrame() without BeginFrame succeeded")
	}
	if _, err := r.pacer.BeginFrame(); err != nil {
		t.Fatalf("BeginFrame() failed: %+v", err)
	}
	if _, err := r.pacer.BeginFrame(); err == nil {
		t.Error("second BeginFrame() succeeded")
	}
	if _, err := r.pacer.AcquireNextSlot(); err == nil {
		t.Error("AcquireNextSlot() while recording succeeded")
	}
	if err := r.pacer.Drain(); err == nil {
		t.Error("Drain() while recording succeeded")
	}
	if err := r.pacer.EndFrame(); err != nil {
		t.Fatalf("EndFrame() failed: %+v", err)
	}
}

type failingAllocator struct{}

func (failingAllocator) Reset() error { return errors.New("allocator busy") }
func (failingAllocator) Destroy()     {}

func TestAllocatorResetFailure(t *testing.T) {
	dev := simgpu.NewDevice()
	allocators := []framepacer.Allocator{failingAllocator{}, failingAllocator{}}
	pacer, err := framepacer.New(dev, dev, simgpu.NewSwapchain(2), images(2), allocators, framepacer.Options{})
	if err != nil {
		t.Fatalf("New() failed: %+v", err)
	}

	if _, err := pacer.BeginFrame(); !errors.Is(err, framepacer.ErrSubmit) {
		t.Errorf("BeginFrame() error = %v, want ErrSubmit", err)
	}
}
