package vkpacer

import (
	"testing"

	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
)

func TestNewLayoutTracker(t *testing.T) {
	layouts := newLayoutTracker(3)
	if len(layouts) != 3 {
		t.Fatalf("len = %d, want 3", len(layouts))
	}
	for i, l := range layouts {
		if l != core1_0.ImageLayoutUndefined {
			t.Errorf("layouts[%d] = %s, want undefined", i, l)
		}
	}
}

func TestTransitionFor(t *testing.T) {
	present := khr_swapchain.ImageLayoutPresentSrc
	color := core1_0.ImageLayoutColorAttachmentOptimal

	tests := []struct {
		name     string
		old, new core1_0.ImageLayout
		wantDst  core1_0.PipelineStageFlags
		wantErr  bool
	}{
		{"first use", core1_0.ImageLayoutUndefined, color, core1_0.PipelineStageColorAttachmentOutput, false},
		{"after present", present, color, core1_0.PipelineStageColorAttachmentOutput, false},
		{"to present", color, present, core1_0.PipelineStageBottomOfPipe, false},
		{"present twice", present, present, 0, true},
		{"undefined to present", core1_0.ImageLayoutUndefined, present, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := transitionFor(tt.old, tt.new)
			if tt.wantErr {
				if err == nil {
					t.Errorf("transitionFor(%s, %s) succeeded, want error", tt.old, tt.new)
				}
				return
			}
			if err != nil {
				t.Fatalf("transitionFor(%s, %s) failed: %v", tt.old, tt.new, err)
			}
			if got.dstStage != tt.wantDst {
				t.Errorf("dstStage = %v, want %v", got.dstStage, tt.wantDst)
			}
		})
	}
}

func TestChooseImageCount(t *testing.T) {
	tests := []struct {
		min, max, requested, want int
	}{
		{2, 8, 3, 3},
		{4, 8, 3, 4},
		{2, 2, 3, 2},
		{2, 0, 5, 5},
	}
	for _, tt := range tests {
		caps := &khr_surface.SurfaceCapabilities{MinImageCount: tt.min, MaxImageCount: tt.max}
		if got := chooseImageCount(caps, tt.requested); got != tt.want {
			t.Errorf("chooseImageCount(min %d, max %d, %d) = %d, want %d", tt.min, tt.max, tt.requested, got, tt.want)
		}
	}
}

func TestChooseExtent(t *testing.T) {
	caps := &khr_surface.SurfaceCapabilities{
		CurrentExtent:  core1_0.Extent2D{Width: 800, Height: 600},
		MinImageExtent: core1_0.Extent2D{Width: 1, Height: 1},
		MaxImageExtent: core1_0.Extent2D{Width: 4096, Height: 4096},
	}
	if got := chooseExtent(caps, core1_0.Extent2D{Width: 10, Height: 10}); got != caps.CurrentExtent {
		t.Errorf("chooseExtent() = %+v, want surface extent %+v", got, caps.CurrentExtent)
	}

	caps.CurrentExtent = core1_0.Extent2D{Width: -1, Height: -1}
	got := chooseExtent(caps, core1_0.Extent2D{Width: 8000, Height: 0})
	want := core1_0.Extent2D{Width: 4096, Height: 1}
	if got != want {
		t.Errorf("chooseExtent() = %+v, want clamped %+v", got, want)
	}
}
