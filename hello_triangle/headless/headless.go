// Package headless paces frames against a simulated GPU, exercising the same
// frame protocol as the windowed path without a Vulkan device.
package headless

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"github.com/vkngwrapper/framepacing/framepacer"
	"github.com/vkngwrapper/framepacing/framepacer/simgpu"
	"github.com/vkngwrapper/framepacing/utils"
)

// Report summarises a finished run.
type Report struct {
	Stats           framepacer.Stats
	AllocatorResets int
	// Violations counts allocator resets and destroys that raced the
	// simulated GPU.
	Violations int
}

// Run paces cfg.HeadlessFrames frames against a simulated GPU that
// completes one signal every cfg.SimulatedLatency.
func Run(cfg *utils.Config) (Report, error) {
	device := simgpu.NewDevice()
	allocators, pacerAllocators := device.NewAllocators(cfg.FrameCount)

	images := make([]int, cfg.FrameCount)
	for i := range images {
		images[i] = i
	}

	pacer, err := framepacer.New(device, device, simgpu.NewSwapchain(cfg.FrameCount), images, pacerAllocators, framepacer.Options{
		WaitTimeout: cfg.FenceTimeout,
	})
	if err != nil {
		return Report{}, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return device.Run(ctx, cfg.SimulatedLatency)
	})

	g.Go(func() error {
		defer cancel()

		counter := utils.NewFrameCounter()
		for i := 0; i < cfg.HeadlessFrames; i++ {
			err := pacer.Frame(func(slot *framepacer.Slot[int]) error {
				if slot.BackBuffer != slot.Index {
					return errors.AssertionFailedf("slot %d bound to image %d", slot.Index, slot.BackBuffer)
				}
				return nil
			})
			if err != nil {
				return errors.Wrapf(err, "frame %d", i)
			}

			if fps, ok := counter.Tick(); ok {
				slog.Info("frame rate", "fps", fps, "headless", true)
			}
		}

		return pacer.Close()
	})

	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	report := Report{
		Stats:      pacer.Stats(),
		Violations: device.Violations(),
	}
	for _, a := range allocators {
		report.AllocatorResets += a.Resets()
	}
	slog.Info("headless run finished",
		"frames", report.Stats.FramesEnded,
		"last_value", report.Stats.LastSignaled,
		"blocking_waits", report.Stats.BlockingWaits,
		"immediate_waits", report.Stats.ImmediateWaits,
		"stall", report.Stats.StallTime,
		"allocator_resets", report.AllocatorResets)

	if report.Violations > 0 {
		return report, errors.Newf("%d allocator resets or destroys raced the simulated gpu", report.Violations)
	}
	return report, nil
}
