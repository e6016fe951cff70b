package pipeline

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/softpipe"
	"github.com/gogpu/softpipe/shader"
	"golang.org/x/image/math/f32"
)

// Pipeline is an immutable compiled pipeline state object: one vertex-stage
// callable, one fragment-stage callable, the vertex output layout, and the
// baked fixed-function state.
//
// A Pipeline returned by a successful build always carries non-nil stage
// callables. No field is ever mutated after construction, so a Pipeline is
// freely shared, read-only, across concurrent draws; concurrent draws using
// the same Pipeline never interfere.
type Pipeline struct {
	label     string
	key       Key
	vertex    shader.VertexStage
	fragment  shader.FragmentStage
	layout    shader.OutputLayout
	topology  gputypes.PrimitiveTopology
	frontFace gputypes.FrontFace
	cullMode  gputypes.CullMode
	viewport  softpipe.Viewport
	scissor   softpipe.Rect
}

// Label returns the pipeline's debug name.
func (p *Pipeline) Label() string { return p.label }

// Key returns the cache key computed from the pipeline's description.
func (p *Pipeline) Key() Key { return p.key }

// VertexStage returns the compiled vertex-stage callable.
func (p *Pipeline) VertexStage() shader.VertexStage { return p.vertex }

// FragmentStage returns the compiled fragment-stage callable.
func (p *Pipeline) FragmentStage() shader.FragmentStage { return p.fragment }

// OutputLayout returns the vertex output record layout.
func (p *Pipeline) OutputLayout() shader.OutputLayout { return p.layout }

// Topology returns the primitive topology.
func (p *Pipeline) Topology() gputypes.PrimitiveTopology { return p.topology }

// FrontFace returns the front-facing winding.
func (p *Pipeline) FrontFace() gputypes.FrontFace { return p.frontFace }

// CullMode returns the face culling mode.
func (p *Pipeline) CullMode() gputypes.CullMode { return p.cullMode }

// Viewport returns the baked viewport state.
func (p *Pipeline) Viewport() softpipe.Viewport { return p.viewport }

// Scissor returns the baked scissor rectangle.
func (p *Pipeline) Scissor() softpipe.Rect { return p.scissor }

// RunVertexStage invokes the vertex stage over [firstVertex, lastVertex),
// writing one output record per vertex into out.
func (p *Pipeline) RunVertexStage(firstVertex, lastVertex, instanceID uint32, out []byte, bindings [][]byte, uniforms []byte) {
	p.vertex.Invoke(firstVertex, lastVertex, instanceID, out, bindings, uniforms)
}

// RunFragmentStage invokes the fragment stage for one covered sample.
func (p *Pipeline) RunFragmentStage(color *f32.Vec4, varyings []byte, uniforms []byte) {
	p.fragment.Invoke(color, varyings, uniforms)
}

// DumpVertexOutput formats one vertex output record for debugging: the
// clip-space position followed by the varying words. The record must be
// OutputLayout().Size bytes.
func (p *Pipeline) DumpVertexOutput(record []byte) string {
	var sb strings.Builder
	if len(record) < p.layout.Size {
		fmt.Fprintf(&sb, "record too short: %d bytes, layout needs %d", len(record), p.layout.Size)
		return sb.String()
	}
	word := func(off int) float32 {
		return math.Float32frombits(binary.LittleEndian.Uint32(record[off:]))
	}
	po := p.layout.PositionOffset
	fmt.Fprintf(&sb, "position (%g, %g, %g, %g)",
		word(po), word(po+4), word(po+8), word(po+12))
	for off := 0; off < p.layout.Size; off += 4 {
		if off >= po && off < po+16 {
			continue
		}
		fmt.Fprintf(&sb, " [%d]=%g", off, word(off))
	}
	return sb.String()
}
