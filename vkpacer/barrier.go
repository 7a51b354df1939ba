package vkpacer

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
)

var colorSubresource = core1_0.ImageSubresourceRange{
	AspectMask:     core1_0.ImageAspectColor,
	BaseMipLevel:   0,
	LevelCount:     1,
	BaseArrayLayer: 0,
	LayerCount:     1,
}

// layoutTracker remembers the layout each swapchain image was last
// transitioned to in recorded commands. Fresh images start undefined.
type layoutTracker []core1_0.ImageLayout

func newLayoutTracker(n int) layoutTracker {
	layouts := make(layoutTracker, n)
	for i := range layouts {
		layouts[i] = core1_0.ImageLayoutUndefined
	}
	return layouts
}

type transition struct {
	srcStage, dstStage   core1_0.PipelineStageFlags
	srcAccess, dstAccess core1_0.AccessFlags
}

func transitionFor(oldLayout, newLayout core1_0.ImageLayout) (transition, error) {
	switch {
	case newLayout == core1_0.ImageLayoutColorAttachmentOptimal &&
		(oldLayout == core1_0.ImageLayoutUndefined || oldLayout == khr_swapchain.ImageLayoutPresentSrc):
		// The acquire semaphore wait happens at color attachment output,
		// so the barrier has to start there too.
		return transition{
			srcStage:  core1_0.PipelineStageColorAttachmentOutput,
			dstStage:  core1_0.PipelineStageColorAttachmentOutput,
			srcAccess: 0,
			dstAccess: core1_0.AccessColorAttachmentWrite,
		}, nil
	case oldLayout == core1_0.ImageLayoutColorAttachmentOptimal && newLayout == khr_swapchain.ImageLayoutPresentSrc:
		return transition{
			srcStage:  core1_0.PipelineStageColorAttachmentOutput,
			dstStage:  core1_0.PipelineStageBottomOfPipe,
			srcAccess: core1_0.AccessColorAttachmentWrite,
			dstAccess: 0,
		}, nil
	}
	return transition{}, errors.Errorf("unexpected layout transition: %s -> %s", oldLayout, newLayout)
}

// CmdTransitionToRenderTarget records the barrier that makes image index
// writable as a color attachment.
func (s *Swapchain) CmdTransitionToRenderTarget(cmd core1_0.CommandBuffer, index int) error {
	return s.cmdTransition(cmd, index, core1_0.ImageLayoutColorAttachmentOptimal)
}

// CmdTransitionToPresent records the barrier that hands image index back to
// the presentation engine.
func (s *Swapchain) CmdTransitionToPresent(cmd core1_0.CommandBuffer, index int) error {
	return s.cmdTransition(cmd, index, khr_swapchain.ImageLayoutPresentSrc)
}

func (s *Swapchain) cmdTransition(cmd core1_0.CommandBuffer, index int, newLayout core1_0.ImageLayout) error {
	if index < 0 || index >= len(s.Images) {
		return errors.AssertionFailedf("swapchain image %d out of range [0, %d)", index, len(s.Images))
	}
	oldLayout := s.layouts[index]
	t, err := transitionFor(oldLayout, newLayout)
	if err != nil {
		return err
	}

	err = s.driver.CmdPipelineBarrier(cmd, t.srcStage, t.dstStage, 0, nil, nil, []core1_0.ImageMemoryBarrier{
		{
			OldLayout:           oldLayout,
			NewLayout:           newLayout,
			SrcQueueFamilyIndex: -1,
			DstQueueFamilyIndex: -1,
			Image:               s.Images[index],
			SubresourceRange:    colorSubresource,
			SrcAccessMask:       t.srcAccess,
			DstAccessMask:       t.dstAccess,
		},
	})
	if err != nil {
		return err
	}
	s.layouts[index] = newLayout
	return nil
}
