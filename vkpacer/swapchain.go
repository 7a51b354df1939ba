package vkpacer

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/vkngwrapper/framepacing/framepacer"
)

type SwapchainOptions struct {
	Surface        khr_surface.Surface
	PhysicalDevice core1_0.PhysicalDevice

	// Extent is used when the surface leaves the size to the swapchain.
	Extent core1_0.Extent2D
	// ImageCount is the number of images requested, clamped to what the
	// surface allows.
	ImageCount int

	VSync        bool
	AllowTearing bool

	GraphicsFamily int
	PresentFamily  int

	// AcquireTimeout bounds AcquireNextImage.
	AcquireTimeout time.Duration
}

// Swapchain owns the presentable images and their views, and implements
// framepacer.Surface.
type Swapchain struct {
	driver    core1_0.DeviceDriver
	surfaces  khr_surface.ExtensionDriver
	extension khr_swapchain.ExtensionDriver
	opts      SwapchainOptions

	handle      khr_swapchain.Swapchain
	Format      core1_0.Format
	Extent      core1_0.Extent2D
	PresentMode khr_surface.PresentMode
	Images      []core1_0.Image
	Views       []core1_0.ImageView

	layouts layoutTracker

	acquires       *acquireSemaphores[core1_0.Semaphore]
	renderFinished []core1_0.Semaphore
	lastAcquire    core1_0.Semaphore
}

func NewSwapchain(driver core1_0.DeviceDriver, surfaces khr_surface.ExtensionDriver, opts SwapchainOptions) (*Swapchain, error) {
	s := &Swapchain{
		driver:    driver,
		surfaces:  surfaces,
		extension: khr_swapchain.CreateExtensionDriverFromCoreDriver(driver),
		opts:      opts,
	}
	if err := s.create(); err != nil {
		s.Destroy()
		return nil, err
	}
	return s, nil
}

func (s *Swapchain) create() error {
	caps, _, err := s.surfaces.GetPhysicalDeviceSurfaceCapabilities(s.opts.Surface, s.opts.PhysicalDevice)
	if err != nil {
		return errors.Wrap(err, "query surface capabilities")
	}
	formats, _, err := s.surfaces.GetPhysicalDeviceSurfaceFormats(s.opts.Surface, s.opts.PhysicalDevice)
	if err != nil {
		return errors.Wrap(err, "query surface formats")
	}
	if len(formats) == 0 {
		return errors.New("surface reports no formats")
	}
	modes, _, err := s.surfaces.GetPhysicalDeviceSurfacePresentModes(s.opts.Surface, s.opts.PhysicalDevice)
	if err != nil {
		return errors.Wrap(err, "query present modes")
	}

	surfaceFormat := chooseSurfaceFormat(formats)
	s.PresentMode = ChoosePresentMode(s.opts.VSync, s.opts.AllowTearing, modes)
	s.Extent = chooseExtent(caps, s.opts.Extent)

	sharingMode := core1_0.SharingModeExclusive
	var queueFamilyIndices []int
	if s.opts.GraphicsFamily != s.opts.PresentFamily {
		sharingMode = core1_0.SharingModeConcurrent
		queueFamilyIndices = []int{s.opts.GraphicsFamily, s.opts.PresentFamily}
	}

	handle, _, err := s.extension.CreateSwapchain(nil, khr_swapchain.SwapchainCreateInfo{
		Surface: s.opts.Surface,

		MinImageCount:    chooseImageCount(caps, s.opts.ImageCount),
		ImageFormat:      surfaceFormat.Format,
		ImageColorSpace:  surfaceFormat.ColorSpace,
		ImageExtent:      s.Extent,
		ImageArrayLayers: 1,
		ImageUsage:       core1_0.ImageUsageColorAttachment,

		ImageSharingMode:   sharingMode,
		QueueFamilyIndices: queueFamilyIndices,

		PreTransform:   caps.CurrentTransform,
		CompositeAlpha: khr_surface.CompositeAlphaOpaque,
		PresentMode:    s.PresentMode,
		Clipped:        true,
	})
	if err != nil {
		return errors.Wrap(err, "create swapchain")
	}
	s.handle = handle
	s.Format = surfaceFormat.Format

	images, _, err := s.extension.GetSwapchainImages(handle)
	if err != nil {
		return errors.Wrap(err, "get swapchain images")
	}
	s.Images = images
	s.layouts = newLayoutTracker(len(images))
	s.acquires = newAcquireSemaphores(len(images), func() (core1_0.Semaphore, error) {
		semaphore, _, err := s.driver.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
		return semaphore, errors.Wrap(err, "create acquire semaphore")
	})

	for _, image := range images {
		view, _, err := s.driver.CreateImageView(nil, core1_0.ImageViewCreateInfo{
			Image:    image,
			ViewType: core1_0.ImageViewType2D,
			Format:   s.Format,
			SubresourceRange: colorSubresource,
		})
		if err != nil {
			return errors.Wrap(err, "create swapchain image view")
		}
		s.Views = append(s.Views, view)

		finished, _, err := s.driver.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
		if err != nil {
			return errors.Wrap(err, "create render finished semaphore")
		}
		s.renderFinished = append(s.renderFinished, finished)
	}

	return nil
}

// ImageCount is the number of images the driver actually created.
func (s *Swapchain) ImageCount() int {
	return len(s.Images)
}

// AcquireNextImage acquires the next presentable image. The returned index
// is only safe to render to once the semaphore from AcquireSemaphore has
// been waited on by the submission that writes it.
//
// The caller must wait for the frame slot of each acquired index before the
// next acquire, as framepacer.Pacer does. Only then is the semaphore the
// index held before free for reuse.
func (s *Swapchain) AcquireNextImage() (int, error) {
	semaphore, err := s.acquires.next()
	if err != nil {
		return -1, err
	}

	index, res, err := s.extension.AcquireNextImage(s.handle, s.opts.AcquireTimeout, &semaphore, nil)
	if res == khr_swapchain.VKErrorOutOfDate {
		s.acquires.release(semaphore)
		return -1, errors.Mark(errors.New("acquire: swapchain out of date"), ErrOutOfDate)
	}
	if res == core1_0.VKTimeout {
		s.acquires.release(semaphore)
		return -1, errors.Mark(errors.Newf("acquire: no image within %s", s.opts.AcquireTimeout), framepacer.ErrTimeout)
	}
	if err != nil {
		s.acquires.release(semaphore)
		return -1, errors.Wrap(err, "acquire swapchain image")
	}

	s.acquires.bind(index, semaphore)
	s.lastAcquire = semaphore
	return index, nil
}

// AcquireSemaphore is signaled when the most recently acquired image is
// available for rendering.
func (s *Swapchain) AcquireSemaphore() core1_0.Semaphore {
	return s.lastAcquire
}

// RenderFinished is the semaphore the present of image index waits on.
func (s *Swapchain) RenderFinished(index int) core1_0.Semaphore {
	return s.renderFinished[index]
}

// Present queues image index for display. Out of date and suboptimal
// results are reported as ErrOutOfDate.
func (s *Swapchain) Present(queue core1_0.Queue, index int) error {
	res, err := s.extension.QueuePresent(queue, khr_swapchain.PresentInfo{
		WaitSemaphores: []core1_0.Semaphore{s.renderFinished[index]},
		Swapchains:     []khr_swapchain.Swapchain{s.handle},
		ImageIndices:   []int{index},
	})
	if res == khr_swapchain.VKErrorOutOfDate || res == khr_swapchain.VKSuboptimal {
		return errors.Mark(errors.New("present: swapchain out of date"), ErrOutOfDate)
	}
	return errors.Wrap(err, "present")
}

// Recreate rebuilds the swapchain for a new extent and present mode. The
// caller must make sure the device no longer uses any of its images.
func (s *Swapchain) Recreate(extent core1_0.Extent2D, vsync bool) error {
	s.Destroy()
	s.opts.Extent = extent
	s.opts.VSync = vsync
	return s.create()
}

func (s *Swapchain) Destroy() {
	if s.acquires != nil {
		for _, semaphore := range s.acquires.all {
			s.driver.DestroySemaphore(semaphore, nil)
		}
	}
	for _, semaphore := range s.renderFinished {
		s.driver.DestroySemaphore(semaphore, nil)
	}
	for _, view := range s.Views {
		s.driver.DestroyImageView(view, nil)
	}
	if s.handle.Initialized() {
		s.extension.DestroySwapchain(s.handle, nil)
	}

	s.acquires = nil
	s.renderFinished = nil
	s.Views = nil
	s.Images = nil
	s.handle = khr_swapchain.Swapchain{}
	s.lastAcquire = core1_0.Semaphore{}
}

func chooseSurfaceFormat(formats []khr_surface.SurfaceFormat) khr_surface.SurfaceFormat {
	for _, format := range formats {
		if format.Format == core1_0.FormatB8G8R8A8SRGB && format.ColorSpace == khr_surface.ColorSpaceSRGBNonlinear {
			return format
		}
	}
	return formats[0]
}

func chooseImageCount(caps *khr_surface.SurfaceCapabilities, requested int) int {
	count := requested
	if count < caps.MinImageCount {
		count = caps.MinImageCount
	}
	if caps.MaxImageCount > 0 && count > caps.MaxImageCount {
		count = caps.MaxImageCount
	}
	return count
}

func chooseExtent(caps *khr_surface.SurfaceCapabilities, fallback core1_0.Extent2D) core1_0.Extent2D {
	if caps.CurrentExtent.Width != -1 {
		return caps.CurrentExtent
	}
	return core1_0.Extent2D{
		Width:  clamp(fallback.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: clamp(fallback.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
