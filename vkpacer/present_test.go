package vkpacer

import (
	"testing"

	"github.com/vkngwrapper/extensions/v3/khr_surface"
)

func TestChoosePresentMode(t *testing.T) {
	all := []khr_surface.PresentMode{
		khr_surface.PresentModeFIFO,
		khr_surface.PresentModeMailbox,
		khr_surface.PresentModeImmediate,
	}
	fifoOnly := []khr_surface.PresentMode{khr_surface.PresentModeFIFO}
	noImmediate := []khr_surface.PresentMode{khr_surface.PresentModeFIFO, khr_surface.PresentModeMailbox}

	tests := []struct {
		name         string
		vsync        bool
		allowTearing bool
		available    []khr_surface.PresentMode
		want         khr_surface.PresentMode
	}{
		{"vsync ignores other modes", true, true, all, khr_surface.PresentModeFIFO},
		{"tearing allowed", false, true, all, khr_surface.PresentModeImmediate},
		{"tearing disallowed", false, false, all, khr_surface.PresentModeMailbox},
		{"no immediate mode", false, true, noImmediate, khr_surface.PresentModeMailbox},
		{"fifo only", false, true, fifoOnly, khr_surface.PresentModeFIFO},
		{"nothing reported", false, true, nil, khr_surface.PresentModeFIFO},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ChoosePresentMode(tt.vsync, tt.allowTearing, tt.available)
			if got != tt.want {
				t.Errorf("ChoosePresentMode(%v, %v) = %v, want %v", tt.vsync, tt.allowTearing, got, tt.want)
			}
		})
	}
}

func TestTearingSupported(t *testing.T) {
	if TearingSupported([]khr_surface.PresentMode{khr_surface.PresentModeMailbox}) {
		t.Error("TearingSupported() = true without an immediate mode")
	}
	if !TearingSupported([]khr_surface.PresentMode{khr_surface.PresentModeImmediate}) {
		t.Error("TearingSupported() = false with an immediate mode")
	}
}
