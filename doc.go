// Package softpipe is a CPU execution core for an explicit graphics pipeline.
//
// # Overview
//
// softpipe turns a declarative pipeline description (shader bytecode plus
// fixed-function state) into a compiled, immutable pipeline object, and
// drives that object over vertex ranges to rasterize triangles into a
// Framebuffer. It is the software analog of the pipeline compilation and
// draw execution path of a modern explicit graphics API.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/softpipe"
//	    "github.com/gogpu/softpipe/pipeline"
//	    "github.com/gogpu/softpipe/raster"
//	    "github.com/gogpu/softpipe/shader/softvm"
//	)
//
//	builder := pipeline.NewBuilder(softvm.NewTranslator(),
//	    pipeline.WithOptimizer(softvm.NewOptimizer()))
//	p, err := builder.Build(desc, cache)
//	if err != nil {
//	    // handle error
//	}
//
//	fb := softpipe.NewFramebuffer(256, 256)
//	drv := raster.NewDriver()
//	err = drv.Execute(p, &raster.Draw{
//	    VertexCount: 3,
//	    Target:      fb,
//	    Bindings:    [][]byte{vertexData},
//	})
//
// # Architecture
//
// The module is organized into:
//   - softpipe: Framebuffer, Viewport, Rect, package logger
//   - shader: bytecode modules, translator and optimizer contracts, stage ABI
//   - shader/softvm: reference interpreter translator over a register bytecode
//   - pipeline: descriptor, builder, immutable pipeline object, cache
//   - raster: execution driver (vertex dispatch, rasterization, fragment dispatch)
//
// Pipeline objects are immutable after construction and safe to share across
// concurrent draws. The destination Framebuffer is exclusively owned by one
// draw for the duration of Execute; callers serialize draws that target the
// same image.
package softpipe
