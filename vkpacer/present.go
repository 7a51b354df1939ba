package vkpacer

import (
	"slices"

	"github.com/vkngwrapper/extensions/v3/khr_surface"
)

// ChoosePresentMode maps the vsync setting onto a present mode. With vsync
// on the result is always FIFO. With vsync off it prefers an immediate mode
// when tearing is allowed, then mailbox, and falls back to FIFO, which every
// surface supports.
func ChoosePresentMode(vsync, allowTearing bool, available []khr_surface.PresentMode) khr_surface.PresentMode {
	if vsync {
		return khr_surface.PresentModeFIFO
	}
	if allowTearing && slices.Contains(available, khr_surface.PresentModeImmediate) {
		return khr_surface.PresentModeImmediate
	}
	if slices.Contains(available, khr_surface.PresentModeMailbox) {
		return khr_surface.PresentModeMailbox
	}
	return khr_surface.PresentModeFIFO
}

// TearingSupported reports whether an immediate present mode is available.
func TearingSupported(available []khr_surface.PresentMode) bool {
	return slices.Contains(available, khr_surface.PresentModeImmediate)
}
