// Package shader defines the contracts between the pipeline core and a
// shader translator: bytecode modules, the translator and optimizer
// interfaces, the compiled stage callables, and the vertex output layout.
//
// The core treats translation as a black box: any implementation that turns
// (module, entry point, specialization) into callables with the documented
// ABI can back a pipeline. The shader/softvm package provides a reference
// interpreter-backed translator; JIT backends plug in through the same
// interfaces.
package shader

import (
	"math"
	"runtime"

	"golang.org/x/image/math/f32"
)

// Stage identifies a programmable pipeline stage.
type Stage uint8

const (
	// StageVertex is the per-vertex stage.
	StageVertex Stage = iota

	// StageFragment is the per-pixel stage.
	StageFragment
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StageFragment:
		return "fragment"
	default:
		return "unknown"
	}
}

// OutputLayout describes the per-vertex output record a vertex stage writes.
//
// Each record is Size bytes. The clip-space position (four float32
// components, including the W divisor) lives at PositionOffset. The
// remaining bytes hold varyings whose sub-layout is opaque to the core but
// stable for a given pipeline; during rasterization they are interpolated
// as packed float32 words, so both fields must be 4-byte aligned.
type OutputLayout struct {
	// Size is the total record size in bytes.
	Size int

	// PositionOffset is the byte offset of the clip-space position.
	PositionOffset int
}

// Validate checks the layout invariants: a positive word-aligned size, a
// word-aligned position offset, and room for the four position components.
func (l OutputLayout) Validate() error {
	switch {
	case l.Size <= 0:
		return ErrBadLayout
	case l.Size%4 != 0 || l.PositionOffset%4 != 0:
		return ErrBadLayout
	case l.PositionOffset < 0 || l.PositionOffset+16 > l.Size:
		return ErrBadLayout
	}
	return nil
}

// Specialization maps specialization-constant IDs to raw 32-bit values.
// A nil map leaves every constant at its default.
type Specialization map[uint32]uint32

// Float returns the constant with the given ID interpreted as a float32,
// or def if the ID is absent.
func (s Specialization) Float(id uint32, def float32) float32 {
	if bits, ok := s[id]; ok {
		return math.Float32frombits(bits)
	}
	return def
}

// VertexStage is a compiled vertex-stage callable.
//
// Invoke processes vertices [firstVertex, lastVertex) for one instance,
// writing one output record per vertex into out, laid out per the stage's
// OutputLayout (record i corresponds to vertex firstVertex+i). bindings are
// the draw's input vertex buffers and uniforms is the draw's uniform block;
// both are read-only from the stage's perspective.
type VertexStage interface {
	Invoke(firstVertex, lastVertex, instanceID uint32, out []byte, bindings [][]byte, uniforms []byte)
}

// FragmentStage is a compiled fragment-stage callable, invoked once per
// covered pixel sample.
//
// color is seeded with the current destination pixel so the stage can
// perform read-modify-write blending; the value left in color is committed
// to the image. varyings is the interpolated vertex output record for the
// sample (position words included), laid out per the pipeline's
// OutputLayout.
type FragmentStage interface {
	Invoke(color *f32.Vec4, varyings []byte, uniforms []byte)
}

// VertexFunc adapts a function to the VertexStage interface.
type VertexFunc func(firstVertex, lastVertex, instanceID uint32, out []byte, bindings [][]byte, uniforms []byte)

// Invoke calls f.
func (f VertexFunc) Invoke(firstVertex, lastVertex, instanceID uint32, out []byte, bindings [][]byte, uniforms []byte) {
	f(firstVertex, lastVertex, instanceID, out, bindings, uniforms)
}

// FragmentFunc adapts a function to the FragmentStage interface.
type FragmentFunc func(color *f32.Vec4, varyings []byte, uniforms []byte)

// Invoke calls f.
func (f FragmentFunc) Invoke(color *f32.Vec4, varyings []byte, uniforms []byte) {
	f(color, varyings, uniforms)
}

// CompiledStage is the output of one translator invocation: a callable for
// exactly one stage, plus the vertex output layout for vertex stages.
//
// IR carries the translator's private representation of the stage. An
// Optimizer that recognizes the representation may rewrite it and re-emit
// the callables; the core never inspects IR.
type CompiledStage struct {
	// Stage identifies which callable is populated.
	Stage Stage

	// Vertex is set when Stage is StageVertex.
	Vertex VertexStage

	// Fragment is set when Stage is StageFragment.
	Fragment FragmentStage

	// Layout describes the vertex output record (vertex stages only).
	Layout OutputLayout

	// IR is the translator-private stage representation.
	IR any
}

// Translator compiles a module entry point into an executable stage.
//
// Translation is a pure function of its inputs: identical (module, entry,
// stage, specialization) tuples produce behaviorally identical stages.
// Implementations must be safe for concurrent use; the pipeline builder
// translates active stages in parallel.
type Translator interface {
	Translate(m *Module, entryPoint string, stage Stage, spec Specialization) (*CompiledStage, error)
}

// Optimizer rewrites a compiled stage for a host execution target.
// It is applied after translation and before the stage is bound into a
// pipeline object. Failures abort the pipeline build.
type Optimizer interface {
	Optimize(cs *CompiledStage, target Target) (*CompiledStage, error)
}

// Target describes the host execution target an optimizer specializes for.
type Target struct {
	// Arch is the CPU architecture (GOARCH).
	Arch string

	// VectorWidth is the preferred SIMD lane count in float32 elements.
	VectorWidth int
}

// NativeTarget returns the target descriptor for the running host.
func NativeTarget() Target {
	width := 4
	switch runtime.GOARCH {
	case "amd64":
		width = 8
	case "arm64":
		width = 4
	}
	return Target{Arch: runtime.GOARCH, VectorWidth: width}
}
