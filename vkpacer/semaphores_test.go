package vkpacer

import (
	"testing"
	"time"

	"github.com/vkngwrapper/framepacing/framepacer"
	"github.com/vkngwrapper/framepacing/framepacer/simgpu"
)

// lazyGPU completes fence values only when something waits for them, so
// any semaphore reuse that is not ordered by a wait shows up.
type lazyGPU struct {
	*simgpu.Device
}

func (g lazyGPU) WaitUntil(value framepacer.FenceValue, timeout time.Duration) error {
	g.RetireThrough(value)
	return g.Device.WaitUntil(value, timeout)
}

// semaphoreSurface acquires images the way Swapchain does and checks that
// every semaphore it hands to an acquire is no longer waited on by a
// pending submit.
type semaphoreSurface struct {
	t          *testing.T
	gpu        lazyGPU
	images     *simgpu.Swapchain
	semaphores *acquireSemaphores[int]
	created    int

	// consumedBy is the fence value signaled after the submit that waited
	// on each semaphore.
	consumedBy map[int]framepacer.FenceValue
	last       int
}

func newSemaphoreSurface(t *testing.T, gpu lazyGPU, images *simgpu.Swapchain, count int) *semaphoreSurface {
	s := &semaphoreSurface{
		t:          t,
		gpu:        gpu,
		images:     images,
		consumedBy: map[int]framepacer.FenceValue{},
	}
	s.semaphores = newAcquireSemaphores(count, func() (int, error) {
		s.created++
		return s.created, nil
	})
	return s
}

func (s *semaphoreSurface) AcquireNextImage() (int, error) {
	semaphore, err := s.semaphores.next()
	if err != nil {
		return -1, err
	}

	completed, _ := s.gpu.CompletedValue()
	if value, ok := s.consumedBy[semaphore]; ok && completed < value {
		s.t.Errorf("semaphore %d reused at completed value %d, its waiting submit completes at %d", semaphore, completed, value)
	}

	index, err := s.images.AcquireNextImage()
	if err != nil {
		s.semaphores.release(semaphore)
		return -1, err
	}
	s.semaphores.bind(index, semaphore)
	s.last = semaphore
	return index, nil
}

func TestAcquireSemaphoresWaitForConsumingSubmit(t *testing.T) {
	tests := []struct {
		name   string
		images int
		order  []int
	}{
		{"fifo", 3, []int{0, 1, 2}},
		{"two images", 2, []int{0, 1}},
		{"mailbox", 3, []int{0, 1, 0, 2, 2, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gpu := lazyGPU{simgpu.NewDevice()}
			surface := newSemaphoreSurface(t, gpu, simgpu.NewScriptedSwapchain(tt.order...), tt.images)
			_, allocators := gpu.NewAllocators(tt.images)

			pacer, err := framepacer.New(gpu, gpu, surface, make([]int, tt.images), allocators, framepacer.Options{
				WaitTimeout: time.Second,
			})
			if err != nil {
				t.Fatalf("New() failed: %+v", err)
			}

			for frame := 0; frame < 20; frame++ {
				err := pacer.Frame(func(*framepacer.Slot[int]) error {
					// The frame's submit waits on the acquire semaphore and
					// is covered by the value the pacer signals next.
					surface.consumedBy[surface.last] = pacer.Value() + 1
					return nil
				})
				if err != nil {
					t.Fatalf("frame %d failed: %+v", frame, err)
				}
			}

			if surface.created > tt.images+1 {
				t.Errorf("created %d semaphores for %d images, want at most %d", surface.created, tt.images, tt.images+1)
			}
			if err := pacer.Close(); err != nil {
				t.Fatalf("Close() failed: %+v", err)
			}
		})
	}
}

func TestAcquireSemaphoresRelease(t *testing.T) {
	created := 0
	semaphores := newAcquireSemaphores(2, func() (int, error) {
		created++
		return created, nil
	})

	first, _ := semaphores.next()
	semaphores.release(first)
	again, _ := semaphores.next()
	if again != first {
		t.Errorf("next() after release = %d, want %d", again, first)
	}

	semaphores.bind(0, again)
	second, _ := semaphores.next()
	if second == first {
		t.Errorf("next() returned semaphore %d while image 0 still holds it", first)
	}
	semaphores.bind(0, second)
	third, _ := semaphores.next()
	if third != first {
		t.Errorf("next() after rebinding image 0 = %d, want freed %d", third, first)
	}
	if len(semaphores.all) != 2 {
		t.Errorf("created %d semaphores, want 2", len(semaphores.all))
	}
}
