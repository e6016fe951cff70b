package pipeline

import (
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/softpipe"
	"github.com/gogpu/softpipe/shader"
)

func hashTestDescriptor() *GraphicsDescriptor {
	vs := shader.NewModule("vs", []byte{1, 2, 3})
	fs := shader.NewModule("fs", []byte{4, 5, 6})
	return &GraphicsDescriptor{
		Label:         "test",
		VertexStage:   StageDescriptor{Module: vs, EntryPoint: "main"},
		FragmentStage: StageDescriptor{Module: fs, EntryPoint: "main"},
		Topology:      gputypes.PrimitiveTopologyTriangleList,
		FrontFace:     gputypes.FrontFaceCCW,
		CullMode:      gputypes.CullModeNone,
		Viewport:      softpipe.Viewport{Width: 64, Height: 64, MaxDepth: 1},
		Scissor:       softpipe.Rect{Width: 64, Height: 64},
	}
}

func TestHashDeterministic(t *testing.T) {
	a := HashGraphicsDescriptor(hashTestDescriptor())
	b := HashGraphicsDescriptor(hashTestDescriptor())
	if a != b {
		t.Errorf("identical descriptors hashed differently: %#x vs %#x", a, b)
	}
}

func TestHashLabelExcluded(t *testing.T) {
	base := hashTestDescriptor()
	relabeled := hashTestDescriptor()
	relabeled.Label = "renamed"
	if HashGraphicsDescriptor(base) != HashGraphicsDescriptor(relabeled) {
		t.Error("label should not affect the cache key")
	}
}

func TestHashCoversEveryField(t *testing.T) {
	base := HashGraphicsDescriptor(hashTestDescriptor())

	perturbations := []struct {
		name   string
		mutate func(*GraphicsDescriptor)
	}{
		{"vertex module", func(d *GraphicsDescriptor) {
			d.VertexStage.Module = shader.NewModule("vs", []byte{9, 9, 9})
		}},
		{"vertex entry point", func(d *GraphicsDescriptor) { d.VertexStage.EntryPoint = "other" }},
		{"vertex specialization", func(d *GraphicsDescriptor) {
			d.VertexStage.Specialization = shader.Specialization{0: 1}
		}},
		{"fragment module", func(d *GraphicsDescriptor) {
			d.FragmentStage.Module = shader.NewModule("fs", []byte{9, 9, 9})
		}},
		{"fragment entry point", func(d *GraphicsDescriptor) { d.FragmentStage.EntryPoint = "other" }},
		{"fragment specialization", func(d *GraphicsDescriptor) {
			d.FragmentStage.Specialization = shader.Specialization{2: 7}
		}},
		{"front face", func(d *GraphicsDescriptor) { d.FrontFace = gputypes.FrontFaceCW }},
		{"cull mode", func(d *GraphicsDescriptor) { d.CullMode = gputypes.CullModeBack }},
		{"viewport origin", func(d *GraphicsDescriptor) { d.Viewport.X = 8 }},
		{"viewport extent", func(d *GraphicsDescriptor) { d.Viewport.Width = 128 }},
		{"viewport depth", func(d *GraphicsDescriptor) { d.Viewport.MinDepth = 0.5 }},
		{"scissor origin", func(d *GraphicsDescriptor) { d.Scissor.Y = 4 }},
		{"scissor extent", func(d *GraphicsDescriptor) { d.Scissor.Height = 32 }},
	}
	for _, tt := range perturbations {
		t.Run(tt.name, func(t *testing.T) {
			d := hashTestDescriptor()
			tt.mutate(d)
			if HashGraphicsDescriptor(d) == base {
				t.Errorf("changing %s did not change the cache key", tt.name)
			}
		})
	}
}

func TestHashSpecializationOrderIndependent(t *testing.T) {
	// Map iteration order must not leak into the key.
	a := hashTestDescriptor()
	a.VertexStage.Specialization = shader.Specialization{1: 10, 2: 20, 3: 30}
	b := hashTestDescriptor()
	b.VertexStage.Specialization = shader.Specialization{3: 30, 1: 10, 2: 20}

	if HashGraphicsDescriptor(a) != HashGraphicsDescriptor(b) {
		t.Error("specialization maps with equal contents hashed differently")
	}
}

func TestHashNilModule(t *testing.T) {
	d := hashTestDescriptor()
	d.VertexStage.Module = nil
	// Must not panic; nil modules are caught later by descriptor validation.
	_ = HashGraphicsDescriptor(d)
}
