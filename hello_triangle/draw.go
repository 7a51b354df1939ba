package main

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/framepacing/framepacer"
	"github.com/vkngwrapper/framepacing/utils"
	"github.com/vkngwrapper/framepacing/vkpacer"
)

func (app *HelloTriangleApplication) drawableExtent() core1_0.Extent2D {
	w, h := app.window.VulkanGetDrawableSize()
	return core1_0.Extent2D{Width: int(w), Height: int(h)}
}

func (app *HelloTriangleApplication) createSwapchain() error {
	modes, _, err := app.surfaceExtension.GetPhysicalDeviceSurfacePresentModes(app.surface, app.physicalDevice)
	if err != nil {
		return err
	}
	// Tearing support is only checked once; toggling vsync later switches
	// between whatever this decided and FIFO.
	app.tearing = app.cfg.AllowTearing && vkpacer.TearingSupported(modes)

	app.swapchain, err = vkpacer.NewSwapchain(app.deviceDriver, app.surfaceExtension, vkpacer.SwapchainOptions{
		Surface:        app.surface,
		PhysicalDevice: app.physicalDevice,
		Extent:         app.drawableExtent(),
		ImageCount:     app.cfg.FrameCount,
		VSync:          app.vsync,
		AllowTearing:   app.tearing,
		GraphicsFamily: *app.queueFamilies.GraphicsFamily,
		PresentFamily:  *app.queueFamilies.PresentFamily,
		AcquireTimeout: app.cfg.FenceTimeout,
	})
	if err != nil {
		return err
	}

	app.logSwapchain("swapchain created")
	return nil
}

func (app *HelloTriangleApplication) logSwapchain(msg string) {
	slog.Info(msg,
		"images", app.swapchain.ImageCount(),
		"width", app.swapchain.Extent.Width,
		"height", app.swapchain.Extent.Height,
		"present_mode", app.swapchain.PresentMode,
		"tearing", app.tearing)
	if app.swapchain.ImageCount() != app.cfg.FrameCount {
		slog.Warn("surface did not grant the requested image count",
			"requested", app.cfg.FrameCount,
			"granted", app.swapchain.ImageCount())
	}
}

// createPacer builds a fence timeline, one command allocator per swapchain
// image and the pacer that rotates through them.
func (app *HelloTriangleApplication) createPacer() error {
	allocators, err := vkpacer.NewCommandAllocators(app.deviceDriver, *app.queueFamilies.GraphicsFamily, app.swapchain.ImageCount())
	if err != nil {
		return err
	}

	pacerAllocators := make([]framepacer.Allocator, len(allocators))
	for i, a := range allocators {
		pacerAllocators[i] = a
	}

	timeline := vkpacer.NewTimeline(app.deviceDriver, app.graphicsQueue)
	pacer, err := framepacer.New(timeline, timeline, app.swapchain, app.framebuffers, pacerAllocators, framepacer.Options{
		WaitTimeout: app.cfg.FenceTimeout,
	})
	if err != nil {
		for _, a := range allocators {
			a.Destroy()
		}
		return err
	}

	app.allocators = allocators
	app.timeline = timeline
	app.pacer = pacer
	return nil
}

func (app *HelloTriangleApplication) destroyPacer() error {
	if err := app.pacer.Close(); err != nil {
		return err
	}
	if err := app.timeline.Destroy(); err != nil {
		return err
	}
	app.pacer = nil
	app.timeline = nil
	app.allocators = nil
	return nil
}

func (app *HelloTriangleApplication) drawFrame() error {
	err := app.pacer.Frame(app.recordFrame)
	if errors.Is(err, vkpacer.ErrOutOfDate) {
		app.swapchainStale = true
		return nil
	} else if err != nil {
		return err
	}

	if fps, ok := app.frameCounter.Tick(); ok {
		slog.Info("frame rate", "fps", fps, "vsync", app.vsync)
	}
	return nil
}

// recordFrame records, submits and presents one frame on slot. The slot's
// allocator was already reset by the pacer.
func (app *HelloTriangleApplication) recordFrame(slot *framepacer.Slot[core1_0.Framebuffer]) error {
	buffer := app.allocators[slot.Index].Buffer

	_, err := app.deviceDriver.BeginCommandBuffer(buffer, core1_0.CommandBufferBeginInfo{
		Flags: core1_0.CommandBufferUsageOneTimeSubmit,
	})
	if err != nil {
		return err
	}

	err = app.swapchain.CmdTransitionToRenderTarget(buffer, slot.Index)
	if err != nil {
		return err
	}

	color := utils.ClearColor
	err = app.deviceDriver.CmdBeginRenderPass(buffer, core1_0.SubpassContentsInline,
		core1_0.RenderPassBeginInfo{
			RenderPass:  app.renderPass,
			Framebuffer: slot.BackBuffer,
			RenderArea: core1_0.Rect2D{
				Offset: core1_0.Offset2D{X: 0, Y: 0},
				Extent: app.swapchain.Extent,
			},
			ClearValues: []core1_0.ClearValue{
				core1_0.ClearValueFloat{color[0], color[1], color[2], color[3]},
			},
		})
	if err != nil {
		return err
	}

	app.deviceDriver.CmdBindPipeline(buffer, core1_0.PipelineBindPointGraphics, app.graphicsPipeline)
	app.deviceDriver.CmdBindVertexBuffers(buffer, 0, []core1_0.Buffer{app.vertexBuffer}, []int{0})
	app.deviceDriver.CmdBindIndexBuffer(buffer, app.indexBuffer, 0, core1_0.IndexTypeUInt32)
	app.deviceDriver.CmdBindDescriptorSets(buffer, core1_0.PipelineBindPointGraphics, app.pipelineLayout, 0, []core1_0.DescriptorSet{
		app.descriptorSet,
	}, nil)
	app.deviceDriver.CmdDrawIndexed(buffer, len(app.indices), 1, 0, 0, 0)
	app.deviceDriver.CmdEndRenderPass(buffer)

	err = app.swapchain.CmdTransitionToPresent(buffer, slot.Index)
	if err != nil {
		return err
	}

	_, err = app.deviceDriver.EndCommandBuffer(buffer)
	if err != nil {
		return err
	}

	_, err = app.deviceDriver.QueueSubmit(app.graphicsQueue, nil,
		core1_0.SubmitInfo{
			WaitSemaphores:   []core1_0.Semaphore{app.swapchain.AcquireSemaphore()},
			WaitDstStageMask: []core1_0.PipelineStageFlags{core1_0.PipelineStageColorAttachmentOutput},
			CommandBuffers:   []core1_0.CommandBuffer{buffer},
			SignalSemaphores: []core1_0.Semaphore{app.swapchain.RenderFinished(slot.Index)},
		},
	)
	if err != nil {
		return err
	}

	err = app.swapchain.Present(app.presentQueue, slot.Index)
	if errors.Is(err, vkpacer.ErrOutOfDate) {
		// The frame was queued; the swapchain is rebuilt before the next one.
		app.swapchainStale = true
		return nil
	}
	return err
}

// recreateSwapchain rebuilds the swapchain for the current window size and
// vsync setting. The GPU is drained first so no queued frame still refers to
// the old images.
func (app *HelloTriangleApplication) recreateSwapchain() error {
	extent := app.drawableExtent()
	if extent.Width == 0 || extent.Height == 0 {
		return nil
	}
	if (app.window.GetFlags() & sdl.WINDOW_MINIMIZED) != 0 {
		return nil
	}

	err := app.pacer.Drain()
	if err != nil {
		return err
	}

	// Acquire semaphores and the presentation engine are not covered by the
	// fence timeline.
	_, err = app.deviceDriver.DeviceWaitIdle()
	if err != nil {
		return err
	}

	app.cleanupSwapchain()

	err = app.swapchain.Recreate(extent, app.vsync)
	if err != nil {
		return err
	}

	err = app.createRenderPass()
	if err != nil {
		return err
	}

	err = app.createGraphicsPipeline()
	if err != nil {
		return err
	}

	err = app.createFramebuffers()
	if err != nil {
		return err
	}

	if app.swapchain.ImageCount() == app.pacer.Slots() {
		err = app.pacer.Rebind(app.framebuffers)
	} else {
		err = app.destroyPacer()
		if err == nil {
			err = app.createPacer()
		}
	}
	if err != nil {
		return err
	}

	app.swapchainStale = false
	app.logSwapchain("swapchain recreated")
	return nil
}
