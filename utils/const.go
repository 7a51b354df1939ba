package utils

import "time"

const (
	// FrameCount is the number of swapchain images, and so frame slots,
	// requested at startup.
	FrameCount = 3

	FenceTimeout = 5 * time.Second

	TextureWidth  = 256
	TextureHeight = 256
	TexelSize     = 4
)

// ClearColor is the back-buffer clear color, RGBA.
var ClearColor = [4]float32{0.4, 0.6, 0.9, 1.0}
