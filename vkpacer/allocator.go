package vkpacer

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// CommandAllocator is the per-slot command memory: a command pool holding a
// single primary command buffer. Resetting the pool recycles the buffer's
// memory, so it must only happen once the slot's fence value is reached.
type CommandAllocator struct {
	driver core1_0.DeviceDriver
	Pool   core1_0.CommandPool
	Buffer core1_0.CommandBuffer
}

func NewCommandAllocator(driver core1_0.DeviceDriver, queueFamilyIndex int) (*CommandAllocator, error) {
	pool, _, err := driver.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		QueueFamilyIndex: queueFamilyIndex,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create command pool")
	}

	buffers, _, err := driver.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        pool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	})
	if err != nil {
		driver.DestroyCommandPool(pool, nil)
		return nil, errors.Wrap(err, "allocate command buffer")
	}

	return &CommandAllocator{
		driver: driver,
		Pool:   pool,
		Buffer: buffers[0],
	}, nil
}

// NewCommandAllocators creates n allocators. On failure the ones already
// created are destroyed.
func NewCommandAllocators(driver core1_0.DeviceDriver, queueFamilyIndex int, n int) ([]*CommandAllocator, error) {
	allocators := make([]*CommandAllocator, 0, n)
	for i := 0; i < n; i++ {
		a, err := NewCommandAllocator(driver, queueFamilyIndex)
		if err != nil {
			for _, created := range allocators {
				created.Destroy()
			}
			return nil, errors.Wrapf(err, "command allocator %d", i)
		}
		allocators = append(allocators, a)
	}
	return allocators, nil
}

func (a *CommandAllocator) Reset() error {
	_, err := a.driver.ResetCommandPool(a.Pool, 0)
	return err
}

func (a *CommandAllocator) Destroy() {
	a.driver.FreeCommandBuffers(a.Buffer)
	a.driver.DestroyCommandPool(a.Pool, nil)
}
