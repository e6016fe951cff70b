package raster

import (
	"encoding/binary"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/softpipe"
	"github.com/gogpu/softpipe/pipeline"
	"golang.org/x/image/math/f32"
)

// orient2d is the signed doubled area of triangle (a, b, c) in y-down screen
// space: positive when c lies to the left of the directed edge a -> b.
func orient2d(ax, ay, bx, by, cx, cy float64) float64 {
	return (bx-ax)*(cy-ay) - (by-ay)*(cx-ax)
}

// isTopLeft reports whether the directed edge a -> b is a top or left edge of
// a positively oriented triangle. Samples exactly on such an edge belong to
// the triangle; samples on other edges do not, so adjacent triangles sharing
// an edge cover each sample exactly once.
func isTopLeft(ax, ay, bx, by float64) bool {
	if by == ay {
		return bx > ax
	}
	return by < ay
}

// rasterTriangle rasterizes vertices t, t+1, t+2 of the draw into the
// pre-intersected bounds rectangle.
func (d *Driver) rasterTriangle(p *pipeline.Pipeline, draw *Draw, scratch []byte, clip []f32.Vec4, t int, bounds softpipe.Rect) {
	i := [3]int{t, t + 1, t + 2}
	c := [3]f32.Vec4{clip[i[0]], clip[i[1]], clip[i[2]]}

	// Primitives reaching behind the eye plane are discarded whole: output
	// records are opaque, so they cannot be split at the clip boundary.
	for k := 0; k < 3; k++ {
		if c[k][3] <= 0 {
			return
		}
	}

	// Trivial reject against the view volume planes.
	for axis := 0; axis < 3; axis++ {
		allLow, allHigh := true, true
		for k := 0; k < 3; k++ {
			if c[k][axis] >= -c[k][3] {
				allLow = false
			}
			if c[k][axis] <= c[k][3] {
				allHigh = false
			}
		}
		if allLow || allHigh {
			return
		}
	}

	// Perspective division and viewport transform.
	vp := p.Viewport()
	var sx, sy [3]float64
	for k := 0; k < 3; k++ {
		inv := 1 / c[k][3]
		ndc := f32.Vec4{c[k][0] * inv, c[k][1] * inv, c[k][2] * inv, 1}
		px, py, _ := vp.Transform(ndc)
		sx[k], sy[k] = float64(px), float64(py)
	}

	area := orient2d(sx[0], sy[0], sx[1], sy[1], sx[2], sy[2])
	if area == 0 {
		return
	}

	// Winding is classified by the signed area in framebuffer coordinates:
	// positive is counter-clockwise.
	front := area > 0
	if p.FrontFace() == gputypes.FrontFaceCW {
		front = area < 0
	}
	switch p.CullMode() {
	case gputypes.CullModeBack:
		if !front {
			return
		}
	case gputypes.CullModeFront:
		if front {
			return
		}
	}

	// Normalize to positive orientation so one edge rule covers both windings.
	if area < 0 {
		i[1], i[2] = i[2], i[1]
		sx[1], sx[2] = sx[2], sx[1]
		sy[1], sy[2] = sy[2], sy[1]
		area = -area
	}

	tl12 := isTopLeft(sx[1], sy[1], sx[2], sy[2])
	tl20 := isTopLeft(sx[2], sy[2], sx[0], sy[0])
	tl01 := isTopLeft(sx[0], sy[0], sx[1], sy[1])

	minX := int32(math.Floor(min(sx[0], sx[1], sx[2])))
	maxX := int32(math.Ceil(max(sx[0], sx[1], sx[2])))
	minY := int32(math.Floor(min(sy[0], sy[1], sy[2])))
	maxY := int32(math.Ceil(max(sy[0], sy[1], sy[2])))
	if minX < bounds.X {
		minX = bounds.X
	}
	if maxX > bounds.X+bounds.Width {
		maxX = bounds.X + bounds.Width
	}
	if minY < bounds.Y {
		minY = bounds.Y
	}
	if maxY > bounds.Y+bounds.Height {
		maxY = bounds.Y + bounds.Height
	}
	if minX >= maxX || minY >= maxY {
		return
	}

	layout := p.OutputLayout()
	rec := [3][]byte{
		scratch[i[0]*layout.Size : (i[0]+1)*layout.Size],
		scratch[i[1]*layout.Size : (i[1]+1)*layout.Size],
		scratch[i[2]*layout.Size : (i[2]+1)*layout.Size],
	}

	rasterRows := func(y0, y1 int32, varying []byte) {
		for y := y0; y < y1; y++ {
			py := float64(y) + 0.5
			for x := minX; x < maxX; x++ {
				px := float64(x) + 0.5

				// Edge functions relative to the sample; each one is the
				// doubled area of the sub-triangle opposite its vertex.
				e0 := orient2d(sx[1], sy[1], sx[2], sy[2], px, py)
				e1 := orient2d(sx[2], sy[2], sx[0], sy[0], px, py)
				e2 := orient2d(sx[0], sy[0], sx[1], sy[1], px, py)
				if !covers(e0, tl12) || !covers(e1, tl20) || !covers(e2, tl01) {
					continue
				}

				b0 := e0 / area
				b1 := e1 / area
				b2 := e2 / area
				interpolate(varying, rec, b0, b1, b2)

				color := draw.Target.Load(int(x), int(y))
				p.RunFragmentStage(&color, varying, draw.Uniforms)
				draw.Target.Store(int(x), int(y), color)
			}
		}
	}

	rows := maxY - minY
	if d.pool == nil || int(rows) < 2*d.bandRows {
		rasterRows(minY, maxY, make([]byte, layout.Size))
		return
	}

	band := int32(d.bandRows)
	work := make([]func(), 0, (rows+band-1)/band)
	for y := minY; y < maxY; y += band {
		y0, y1 := y, y+band
		if y1 > maxY {
			y1 = maxY
		}
		varying := make([]byte, layout.Size)
		work = append(work, func() { rasterRows(y0, y1, varying) })
	}
	d.pool.ExecuteAll(work)
}

// covers reports whether a sample with edge function value e is covered,
// applying the top-left fill rule on the boundary.
func covers(e float64, topLeft bool) bool {
	return e > 0 || (e == 0 && topLeft)
}

// interpolate writes the barycentric combination of three vertex output
// records into dst, word by word.
func interpolate(dst []byte, rec [3][]byte, b0, b1, b2 float64) {
	for off := 0; off+4 <= len(dst); off += 4 {
		v0 := float64(math.Float32frombits(binary.LittleEndian.Uint32(rec[0][off:])))
		v1 := float64(math.Float32frombits(binary.LittleEndian.Uint32(rec[1][off:])))
		v2 := float64(math.Float32frombits(binary.LittleEndian.Uint32(rec[2][off:])))
		v := float32(b0*v0 + b1*v1 + b2*v2)
		binary.LittleEndian.PutUint32(dst[off:], math.Float32bits(v))
	}
}
