package softpipe

import (
	"math"

	"golang.org/x/image/math/f32"
)

// Viewport is the affine mapping from normalized device coordinates onto the
// destination pixel grid, plus the depth range written after perspective
// division.
//
// X and Y locate the upper-left corner of the viewport in pixels. Width and
// Height may extend past the destination image; execution always intersects
// the viewport with the image bounds and the scissor rectangle.
type Viewport struct {
	// X and Y are the viewport origin in pixels.
	X float32
	Y float32

	// Width and Height are the viewport extent in pixels.
	Width  float32
	Height float32

	// MinDepth and MaxDepth define the output depth range.
	MinDepth float32
	MaxDepth float32
}

// Transform maps a normalized device coordinate (each component already
// divided by clip-space W) to pixel coordinates and a depth value.
// NDC (-1, -1) maps to the viewport origin; (+1, +1) to the opposite corner.
func (v Viewport) Transform(ndc f32.Vec4) (px, py, depth float32) {
	px = v.X + (ndc[0]+1)*0.5*v.Width
	py = v.Y + (ndc[1]+1)*0.5*v.Height
	depth = v.MinDepth + ndc[2]*(v.MaxDepth-v.MinDepth)
	return px, py, depth
}

// Bounds returns the smallest integer rectangle covering the viewport.
func (v Viewport) Bounds() Rect {
	x0 := int32(math.Floor(float64(v.X)))
	y0 := int32(math.Floor(float64(v.Y)))
	x1 := int32(math.Ceil(float64(v.X + v.Width)))
	y1 := int32(math.Ceil(float64(v.Y + v.Height)))
	return Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// Rect is an integer pixel-space rectangle. It is used for scissor state and
// for image bounds. A Rect with non-positive Width or Height is empty.
type Rect struct {
	X      int32
	Y      int32
	Width  int32
	Height int32
}

// Empty reports whether the rectangle contains no pixels.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Contains reports whether the pixel (x, y) lies inside the rectangle.
func (r Rect) Contains(x, y int32) bool {
	return x >= r.X && x < r.X+r.Width && y >= r.Y && y < r.Y+r.Height
}

// Intersect returns the intersection of two rectangles.
// The result is empty if the rectangles do not overlap.
func (r Rect) Intersect(o Rect) Rect {
	x0 := max(r.X, o.X)
	y0 := max(r.Y, o.Y)
	x1 := min(r.X+r.Width, o.X+o.Width)
	y1 := min(r.Y+r.Height, o.Y+o.Height)
	return Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}
