package vkpacer

import "github.com/cockroachdb/errors"

// ErrOutOfDate marks acquire or present results that require the swapchain
// to be recreated before rendering continues.
var ErrOutOfDate = errors.New("swapchain out of date")
