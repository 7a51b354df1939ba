package main

import (
	"log/slog"

	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core/v3"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v3/khr_surface"

	"github.com/vkngwrapper/framepacing/framepacer"
	"github.com/vkngwrapper/framepacing/utils"
	"github.com/vkngwrapper/framepacing/vkpacer"
)

type HelloTriangleApplication struct {
	cfg *utils.Config

	window *sdl.Window

	globalDriver   core1_0.GlobalDriver
	instanceDriver core1_0.CoreInstanceDriver
	deviceDriver   core1_0.CoreDeviceDriver

	debugDriver      ext_debug_utils.ExtensionDriver
	debugMessenger   ext_debug_utils.DebugUtilsMessenger
	surfaceExtension khr_surface.ExtensionDriver
	surface          khr_surface.Surface

	physicalDevice core1_0.PhysicalDevice
	queueFamilies  QueueFamilyIndices

	graphicsQueue core1_0.Queue
	presentQueue  core1_0.Queue

	swapchain    *vkpacer.Swapchain
	framebuffers []core1_0.Framebuffer

	renderPass          core1_0.RenderPass
	descriptorPool      core1_0.DescriptorPool
	descriptorSet       core1_0.DescriptorSet
	descriptorSetLayout core1_0.DescriptorSetLayout
	pipelineLayout      core1_0.PipelineLayout
	graphicsPipeline    core1_0.Pipeline

	// uploadPool backs the one-off upload commands used during setup.
	uploadPool core1_0.CommandPool

	timeline   *vkpacer.Timeline
	allocators []*vkpacer.CommandAllocator
	pacer      *framepacer.Pacer[core1_0.Framebuffer]

	vsync          bool
	tearing        bool
	swapchainStale bool
	frameCounter   *utils.FrameCounter

	vertices           []utils.Vertex
	indices            []uint32
	vertexBuffer       core1_0.Buffer
	vertexBufferMemory core1_0.DeviceMemory
	indexBuffer        core1_0.Buffer
	indexBufferMemory  core1_0.DeviceMemory

	textureImage       core1_0.Image
	textureImageMemory core1_0.DeviceMemory
	textureImageView   core1_0.ImageView
	textureSampler     core1_0.Sampler
}

func (app *HelloTriangleApplication) Run() error {
	err := app.initWindow()
	if err != nil {
		return err
	}

	err = app.initVulkan()
	defer app.cleanup()
	if err != nil {
		return err
	}

	return app.mainLoop()
}

func (app *HelloTriangleApplication) initWindow() error {
	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return err
	}

	window, err := sdl.CreateWindow(app.cfg.Title, sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED, int32(app.cfg.Width), int32(app.cfg.Height), sdl.WINDOW_SHOWN|sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		return err
	}
	app.window = window

	app.globalDriver, err = core.CreateDriverFromProcAddr(sdl.VulkanGetVkGetInstanceProcAddr())
	if err != nil {
		return err
	}

	return nil
}

func (app *HelloTriangleApplication) initVulkan() error {
	err := app.createInstance()
	if err != nil {
		return err
	}

	err = app.setupDebugMessenger()
	if err != nil {
		return err
	}

	err = app.createSurface()
	if err != nil {
		return err
	}

	err = app.pickPhysicalDevice()
	if err != nil {
		return err
	}

	err = app.createLogicalDevice()
	if err != nil {
		return err
	}

	err = app.createSwapchain()
	if err != nil {
		return err
	}

	err = app.createRenderPass()
	if err != nil {
		return err
	}

	err = app.createDescriptorSetLayout()
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

	err = app.createUploadPool()
	if err != nil {
		return err
	}

	err = app.loadModel()
	if err != nil {
		return err
	}

	err = app.createVertexBuffer()
	if err != nil {
		return err
	}

	err = app.createIndexBuffer()
	if err != nil {
		return err
	}

	err = app.createTextureImage()
	if err != nil {
		return err
	}

	err = app.createSampler()
	if err != nil {
		return err
	}

	err = app.createDescriptorPool()
	if err != nil {
		return err
	}

	err = app.createDescriptorSet()
	if err != nil {
		return err
	}

	return app.createPacer()
}

func (app *HelloTriangleApplication) mainLoop() error {
	rendering := true
	app.frameCounter = utils.NewFrameCounter()

appLoop:
	for true {
		for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
			switch e := event.(type) {
			case *sdl.QuitEvent:
				break appLoop
			case *sdl.KeyboardEvent:
				if e.Type != sdl.KEYDOWN || e.Repeat != 0 {
					continue
				}
				switch e.Keysym.Sym {
				case sdl.K_ESCAPE:
					break appLoop
				case sdl.K_v:
					app.vsync = !app.vsync
					slog.Info("vsync toggled", "vsync", app.vsync)
					app.swapchainStale = true
				}
			case *sdl.WindowEvent:
				switch e.Event {
				case sdl.WINDOWEVENT_MINIMIZED:
					rendering = false
				case sdl.WINDOWEVENT_RESTORED:
					rendering = true
				case sdl.WINDOWEVENT_RESIZED:
					w, h := app.window.GetSize()
					rendering = w > 0 && h > 0
					app.swapchainStale = true
				}
			}
		}

		if !rendering {
			sdl.Delay(10)
			continue
		}
		if app.swapchainStale {
			err := app.recreateSwapchain()
			if err != nil {
				return err
			}
			// A zero sized or minimised window leaves nothing to draw to.
			if app.swapchainStale {
				sdl.Delay(10)
				continue
			}
		}

		err := app.drawFrame()
		if err != nil {
			return err
		}
	}

	stats := app.pacer.Stats()
	slog.Info("frame loop finished",
		"frames", stats.FramesEnded,
		"blocking_waits", stats.BlockingWaits,
		"stall", stats.StallTime)
	return nil
}

func (app *HelloTriangleApplication) cleanup() {
	// No Vulkan object may be destroyed while the GPU can still reach it.
	if app.pacer != nil {
		err := app.pacer.Shutdown(func() error {
			_, err := app.deviceDriver.DeviceWaitIdle()
			return err
		})
		if err != nil {
			slog.Error("failed to drain gpu before shutdown", "error", err)
		}
		app.allocators = nil
	}
	if app.timeline != nil {
		if err := app.timeline.Destroy(); err != nil {
			slog.Error("failed to destroy fence timeline", "error", err)
		}
	}

	app.cleanupSwapchain()
	if app.swapchain != nil {
		app.swapchain.Destroy()
	}

	if app.textureSampler.Initialized() {
		app.deviceDriver.DestroySampler(app.textureSampler, nil)
	}

	if app.textureImageView.Initialized() {
		app.deviceDriver.DestroyImageView(app.textureImageView, nil)
	}

	if app.textureImage.Initialized() {
		app.deviceDriver.DestroyImage(app.textureImage, nil)
	}

	if app.textureImageMemory.Initialized() {
		app.deviceDriver.FreeMemory(app.textureImageMemory, nil)
	}

	if app.descriptorPool.Initialized() {
		app.deviceDriver.DestroyDescriptorPool(app.descriptorPool, nil)
	}

	if app.pipelineLayout.Initialized() {
		app.deviceDriver.DestroyPipelineLayout(app.pipelineLayout, nil)
	}

	if app.descriptorSetLayout.Initialized() {
		app.deviceDriver.DestroyDescriptorSetLayout(app.descriptorSetLayout, nil)
	}

	if app.indexBuffer.Initialized() {
		app.deviceDriver.DestroyBuffer(app.indexBuffer, nil)
	}

	if app.indexBufferMemory.Initialized() {
		app.deviceDriver.FreeMemory(app.indexBufferMemory, nil)
	}

	if app.vertexBuffer.Initialized() {
		app.deviceDriver.DestroyBuffer(app.vertexBuffer, nil)
	}

	if app.vertexBufferMemory.Initialized() {
		app.deviceDriver.FreeMemory(app.vertexBufferMemory, nil)
	}

	if app.uploadPool.Initialized() {
		app.deviceDriver.DestroyCommandPool(app.uploadPool, nil)
	}

	if app.deviceDriver != nil {
		app.deviceDriver.DestroyDevice(nil)
	}

	if app.debugMessenger.Initialized() {
		app.debugDriver.DestroyDebugUtilsMessenger(app.debugMessenger, nil)
	}

	if app.surface.Initialized() {
		app.surfaceExtension.DestroySurface(app.surface, nil)
	}

	if app.instanceDriver != nil {
		app.instanceDriver.DestroyInstance(nil)
	}

	if app.window != nil {
		app.window.Destroy()
	}
	sdl.Quit()
}

// cleanupSwapchain destroys everything that depends on the swapchain's
// images or extent.
func (app *HelloTriangleApplication) cleanupSwapchain() {
	for _, framebuffer := range app.framebuffers {
		app.deviceDriver.DestroyFramebuffer(framebuffer, nil)
	}
	app.framebuffers = nil

	if app.graphicsPipeline.Initialized() {
		app.deviceDriver.DestroyPipeline(app.graphicsPipeline, nil)
		app.graphicsPipeline = core1_0.Pipeline{}
	}

	if app.renderPass.Initialized() {
		app.deviceDriver.DestroyRenderPass(app.renderPass, nil)
		app.renderPass = core1_0.RenderPass{}
	}
}
