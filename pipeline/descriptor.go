// Package pipeline compiles declarative pipeline descriptions into
// immutable, executable pipeline objects, and caches the results.
//
// A GraphicsDescriptor names the shader bytecode, entry points, and
// specialization constants of each active stage plus the fixed-function
// state (topology, cull state, viewport, scissor). Builder.Build invokes a
// shader.Translator per stage, runs the configured optimizer, and assembles
// a Pipeline that is immutable from then on and safe to share across
// concurrent draws.
package pipeline

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/softpipe"
	"github.com/gogpu/softpipe/shader"
)

// StageDescriptor describes one programmable stage of a pipeline.
type StageDescriptor struct {
	// Module is the shader bytecode module.
	Module *shader.Module

	// EntryPoint is the entry point name within the module.
	EntryPoint string

	// Specialization overrides the module's specialization constants.
	// May be nil.
	Specialization shader.Specialization
}

// GraphicsDescriptor describes a graphics pipeline to build.
//
// Every field except Label participates in the cache key: the built pipeline
// object bakes all of this state in, so two descriptions that differ anywhere
// must never alias one cached object.
type GraphicsDescriptor struct {
	// Label is an optional debug name.
	Label string

	// VertexStage is the vertex stage description.
	VertexStage StageDescriptor

	// FragmentStage is the fragment stage description.
	FragmentStage StageDescriptor

	// Topology is the primitive topology.
	// Only gputypes.PrimitiveTopologyTriangleList is supported.
	Topology gputypes.PrimitiveTopology

	// FrontFace selects which winding is front-facing.
	FrontFace gputypes.FrontFace

	// CullMode selects which faces are discarded before rasterization.
	CullMode gputypes.CullMode

	// Viewport maps clip space onto the destination pixel grid.
	Viewport softpipe.Viewport

	// Scissor restricts fragment generation to a pixel rectangle.
	// It is intersected with the destination image bounds at execution
	// time, never stored pre-clamped.
	Scissor softpipe.Rect
}
