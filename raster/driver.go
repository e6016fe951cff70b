// Package raster is the execution driver of softpipe: it drives a built
// pipeline over a vertex range, rasterizes the resulting triangles, and
// invokes the fragment stage for every covered pixel sample of the
// destination framebuffer.
package raster

import (
	"encoding/binary"
	"errors"
	"math"
	"sync"

	"github.com/gogpu/softpipe"
	"github.com/gogpu/softpipe/internal/parallel"
	"github.com/gogpu/softpipe/pipeline"
	"golang.org/x/image/math/f32"
)

// Execution errors. Precondition violations are detected defensively and
// reported rather than corrupting memory; they indicate caller bugs, not
// recoverable runtime conditions.
var (
	// ErrNilPipeline is returned when executing with a nil pipeline.
	ErrNilPipeline = errors.New("raster: pipeline is nil")

	// ErrNilDraw is returned when executing with a nil draw record.
	ErrNilDraw = errors.New("raster: draw is nil")

	// ErrNilTarget is returned when the draw has no destination framebuffer.
	ErrNilTarget = errors.New("raster: destination framebuffer is nil")

	// ErrIncompletePipeline is returned when a pipeline is missing a stage
	// callable. Pipelines from a successful build never trigger this.
	ErrIncompletePipeline = errors.New("raster: pipeline is missing a stage callable")

	// ErrVertexRange is returned when the vertex range overflows.
	ErrVertexRange = errors.New("raster: vertex range overflows")

	// ErrOutOfMemory is returned when the vertex output scratch buffer
	// would exceed the driver's allocation limit.
	ErrOutOfMemory = errors.New("raster: vertex output scratch allocation too large")
)

// maxScratchBytes caps the vertex output scratch allocation for one draw.
const maxScratchBytes = 1 << 30

// defaultBandRows is the number of pixel rows per parallel work item.
const defaultBandRows = 16

// Draw describes one execution of a pipeline: a vertex range, an instance,
// a destination image, input vertex buffers, and a uniform block. A Draw is
// transient; the driver does not retain it past Execute.
type Draw struct {
	// FirstVertex is the first vertex index to process.
	FirstVertex uint32

	// VertexCount is the number of vertices to process.
	VertexCount uint32

	// Instance is the instance index passed to the vertex stage.
	Instance uint32

	// Target is the destination framebuffer. It is exclusively owned by
	// this draw for the duration of Execute.
	Target *softpipe.Framebuffer

	// Bindings are the input vertex buffers, read-only during the draw.
	Bindings [][]byte

	// Uniforms is the uniform block, read-only during the draw.
	Uniforms []byte
}

// Driver executes built pipelines. A Driver holds a scratch-buffer pool
// and, optionally, a worker pool for band-parallel rasterization; it is
// safe for concurrent Execute calls as long as each call targets a
// different framebuffer.
type Driver struct {
	pool     *parallel.Pool
	scratch  scratchPool
	bandRows int
}

// Option configures a Driver.
type Option func(*Driver)

// WithWorkers enables parallel rasterization on a pool of n workers.
// If n is 0 or negative, GOMAXPROCS workers are used. Without this option
// the driver rasterizes on the calling goroutine.
func WithWorkers(n int) Option {
	return func(d *Driver) { d.pool = parallel.NewPool(n) }
}

// WithBandRows sets the number of pixel rows per parallel work item.
// The default is 16. Values below 1 are ignored.
func WithBandRows(n int) Option {
	return func(d *Driver) {
		if n >= 1 {
			d.bandRows = n
		}
	}
}

// NewDriver creates an execution driver.
func NewDriver(opts ...Option) *Driver {
	d := &Driver{bandRows: defaultBandRows}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Close releases the driver's worker pool, if any. The driver remains
// usable afterwards, falling back to single-threaded rasterization.
func (d *Driver) Close() {
	if d.pool != nil {
		d.pool.Close()
	}
}

// Execute runs one draw through the pipeline.
//
// The vertex stage is invoked once over the full range, writing one output
// record per vertex into a scratch buffer. Vertex outputs are grouped into
// triangles, clipped against the [-w, w] volume, transformed by the
// pipeline's viewport (with perspective division by clip-space W), and
// rasterized into the intersection of the viewport bounds, the scissor
// rectangle, and the framebuffer bounds. For each covered pixel sample the
// fragment stage receives a color slot seeded with the current framebuffer
// contents and the barycentrically interpolated vertex output record.
//
// Triangles with any vertex at w <= 0 are discarded rather than clipped:
// output records are opaque byte blobs and cannot be split at the clip
// plane. Degenerate (zero-area) triangles produce no fragments.
//
// The destination framebuffer is the only state Execute mutates. Within one
// call, triangles are processed in submission order so read-modify-write
// blending in the fragment stage is deterministic.
func (d *Driver) Execute(p *pipeline.Pipeline, draw *Draw) error {
	if p == nil {
		return ErrNilPipeline
	}
	if draw == nil {
		return ErrNilDraw
	}
	if draw.Target == nil {
		return ErrNilTarget
	}
	if p.VertexStage() == nil || p.FragmentStage() == nil {
		softpipe.Logger().Warn("execute called with incomplete pipeline", "label", p.Label())
		return ErrIncompletePipeline
	}
	layout := p.OutputLayout()
	if err := layout.Validate(); err != nil {
		return err
	}
	if draw.VertexCount == 0 {
		return nil
	}
	if draw.FirstVertex+draw.VertexCount < draw.FirstVertex {
		return ErrVertexRange
	}

	count := int(draw.VertexCount)
	if count > maxScratchBytes/layout.Size {
		return ErrOutOfMemory
	}
	scratch := d.scratch.get(count * layout.Size)
	defer d.scratch.put(scratch)

	p.RunVertexStage(draw.FirstVertex, draw.FirstVertex+draw.VertexCount, draw.Instance,
		scratch, draw.Bindings, draw.Uniforms)

	// Clip-space positions, one per vertex output record.
	clip := make([]f32.Vec4, count)
	for i := range clip {
		clip[i] = readVec4(scratch, i*layout.Size+layout.PositionOffset)
	}

	// No sample outside this rectangle is ever written.
	bounds := draw.Target.Bounds().
		Intersect(p.Viewport().Bounds()).
		Intersect(p.Scissor())
	if bounds.Empty() {
		return nil
	}

	for t := 0; t+3 <= count; t += 3 {
		d.rasterTriangle(p, draw, scratch, clip, t, bounds)
	}
	return nil
}

// readVec4 reads four float32 values at a byte offset.
func readVec4(buf []byte, off int) f32.Vec4 {
	return f32.Vec4{
		math.Float32frombits(binary.LittleEndian.Uint32(buf[off:])),
		math.Float32frombits(binary.LittleEndian.Uint32(buf[off+4:])),
		math.Float32frombits(binary.LittleEndian.Uint32(buf[off+8:])),
		math.Float32frombits(binary.LittleEndian.Uint32(buf[off+12:])),
	}
}

// scratchPool reuses vertex output scratch buffers across draws.
type scratchPool struct {
	mu   sync.Mutex
	bufs [][]byte
}

// maxPooledBufs limits how many scratch buffers are retained.
const maxPooledBufs = 4

// get returns a zeroed buffer of exactly n bytes.
func (sp *scratchPool) get(n int) []byte {
	sp.mu.Lock()
	for i, b := range sp.bufs {
		if cap(b) >= n {
			last := len(sp.bufs) - 1
			sp.bufs[i] = sp.bufs[last]
			sp.bufs = sp.bufs[:last]
			sp.mu.Unlock()
			b = b[:n]
			clear(b)
			return b
		}
	}
	sp.mu.Unlock()
	return make([]byte, n)
}

// put returns a buffer to the pool.
func (sp *scratchPool) put(b []byte) {
	if b == nil {
		return
	}
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if len(sp.bufs) < maxPooledBufs {
		sp.bufs = append(sp.bufs, b)
	}
}
