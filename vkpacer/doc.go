// Package vkpacer implements the framepacer collaborators on Vulkan through
// vkngwrapper: a fence timeline made of pooled binary fences, a command pool
// per frame slot, and a swapchain that acts as the presentation surface.
package vkpacer
