package utils

import "github.com/vkngwrapper/core/v3/core1_0"

// SquareViewport maps clip space onto a width by width square centred
// vertically on a width by height target, so one model unit covers the same
// number of pixels on both axes whatever the window's aspect ratio. Parts of
// the square outside the target are cut by the scissor.
func SquareViewport(width, height int) core1_0.Viewport {
	side := float32(width)
	return core1_0.Viewport{
		X:        0,
		Y:        (float32(height) - side) / 2,
		Width:    side,
		Height:   side,
		MinDepth: 0,
		MaxDepth: 1,
	}
}
