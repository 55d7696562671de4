package swapchain

import (
	"fmt"

	"golang.org/x/exp/constraints"
)

type Extent struct {
	Width  int
	Height int
}

func (e Extent) String() string { return fmt.Sprintf("%dx%d", e.Width, e.Height) }

// Capabilities is the part of the surface capabilities that decides the
// swapchain's size and length.
type Capabilities struct {
	// Current is negative when the surface lets the swapchain choose.
	Current   Extent
	Min       Extent
	Max       Extent
	MinImages int
	// MaxImages is 0 when there is no limit.
	MaxImages int
}

func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ChooseExtent returns the surface's current extent when it has one,
// otherwise requested clamped to the surface limits.
func ChooseExtent(caps Capabilities, requested Extent) Extent {
	if caps.Current.Width >= 0 {
		return caps.Current
	}

	return Extent{
		Width:  Clamp(requested.Width, caps.Min.Width, caps.Max.Width),
		Height: Clamp(requested.Height, caps.Min.Height, caps.Max.Height),
	}
}

// Supported reports whether a swapchain of extent can be created now.
// Minimized windows report a zero extent, which is never supported.
func Supported(caps Capabilities, extent Extent) bool {
	if extent.Width <= 0 || extent.Height <= 0 {
		return false
	}
	return extent.Width >= caps.Min.Width && extent.Width <= caps.Max.Width &&
		extent.Height >= caps.Min.Height && extent.Height <= caps.Max.Height
}

// ImageCount asks for one image more than the minimum so acquisition does
// not stall on the presentation engine.
func ImageCount(caps Capabilities) int {
	count := caps.MinImages + 1
	if caps.MaxImages > 0 && count > caps.MaxImages {
		count = caps.MaxImages
	}
	return count
}
