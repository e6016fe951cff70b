package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/softpipe"
	"github.com/gogpu/softpipe/shader"
)

// Builder errors.
var (
	// ErrNilDescriptor is returned when building with a nil descriptor.
	ErrNilDescriptor = errors.New("pipeline: descriptor is nil")

	// ErrNilTranslator is returned when creating a builder without a translator.
	ErrNilTranslator = errors.New("pipeline: translator is nil")

	// ErrNilModule is returned when a stage descriptor has no shader module.
	ErrNilModule = errors.New("pipeline: stage shader module is nil")

	// ErrNoEntryPoint is returned when a stage descriptor has an empty entry point.
	ErrNoEntryPoint = errors.New("pipeline: stage entry point is empty")

	// ErrUnsupportedTopology is returned for any topology other than a
	// triangle list.
	ErrUnsupportedTopology = errors.New("pipeline: unsupported primitive topology")

	// ErrBadViewport is returned for a viewport with non-positive extent.
	ErrBadViewport = errors.New("pipeline: viewport extent must be positive")

	// ErrIncompleteStage is returned when a translator reports success but
	// delivers no callable for the requested stage.
	ErrIncompleteStage = errors.New("pipeline: translator returned no stage callable")
)

// BuildError identifies the stage whose translation or optimization aborted
// a pipeline build. Partial build state is discarded, never exposed.
type BuildError struct {
	// Stage is the failing stage.
	Stage shader.Stage

	// Err is the translator's or optimizer's diagnostic.
	Err error
}

// Error implements the error interface.
func (e *BuildError) Error() string {
	return fmt.Sprintf("pipeline: build %s stage: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying diagnostic.
func (e *BuildError) Unwrap() error { return e.Err }

// Builder compiles graphics pipelines. A Builder holds no per-build state
// and is safe for concurrent use.
type Builder struct {
	translator shader.Translator
	optimizer  shader.Optimizer
	target     shader.Target
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithOptimizer installs a native-code optimizer. Each translated stage is
// passed through it before being bound into the pipeline object;
// optimization failures abort the build like translation failures.
func WithOptimizer(o shader.Optimizer) BuilderOption {
	return func(b *Builder) { b.optimizer = o }
}

// WithTarget overrides the execution target the optimizer specializes for.
// The default is shader.NativeTarget().
func WithTarget(t shader.Target) BuilderOption {
	return func(b *Builder) { b.target = t }
}

// NewBuilder creates a pipeline builder backed by the given translator.
func NewBuilder(t shader.Translator, opts ...BuilderOption) *Builder {
	b := &Builder{
		translator: t,
		target:     shader.NativeTarget(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build compiles a pipeline from its description.
//
// If cache is non-nil and holds an entry for the description's key, the
// cached object is returned directly with no retranslation; it is
// behaviorally indistinguishable from a fresh build. Otherwise both stages
// are translated independently (in parallel, sharing no mutable state),
// optimized, assembled into an immutable Pipeline, and inserted into the
// cache.
//
// Any stage failure aborts the build with a *BuildError identifying the
// stage; no partial pipeline is ever exposed.
func (b *Builder) Build(desc *GraphicsDescriptor, cache *Cache) (*Pipeline, error) {
	if b.translator == nil {
		return nil, ErrNilTranslator
	}
	if desc == nil {
		return nil, ErrNilDescriptor
	}
	if err := validateDescriptor(desc); err != nil {
		return nil, err
	}

	key := HashGraphicsDescriptor(desc)
	if cache != nil {
		if p, ok := cache.Lookup(key); ok {
			return p, nil
		}
	}

	stages := [2]struct {
		stage shader.Stage
		sd    *StageDescriptor
		cs    *shader.CompiledStage
		err   error
	}{
		{stage: shader.StageVertex, sd: &desc.VertexStage},
		{stage: shader.StageFragment, sd: &desc.FragmentStage},
	}

	var wg sync.WaitGroup
	for i := range stages {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := &stages[i]
			s.cs, s.err = b.translator.Translate(s.sd.Module, s.sd.EntryPoint, s.stage, s.sd.Specialization)
			if s.err != nil || b.optimizer == nil {
				return
			}
			s.cs, s.err = b.optimizer.Optimize(s.cs, b.target)
		}(i)
	}
	wg.Wait()

	for i := range stages {
		if stages[i].err != nil {
			return nil, &BuildError{Stage: stages[i].stage, Err: stages[i].err}
		}
	}

	vs, fs := stages[0].cs, stages[1].cs
	if vs.Vertex == nil {
		return nil, &BuildError{Stage: shader.StageVertex, Err: ErrIncompleteStage}
	}
	if fs.Fragment == nil {
		return nil, &BuildError{Stage: shader.StageFragment, Err: ErrIncompleteStage}
	}
	if err := vs.Layout.Validate(); err != nil {
		return nil, &BuildError{Stage: shader.StageVertex, Err: err}
	}

	p := &Pipeline{
		label:     desc.Label,
		key:       key,
		vertex:    vs.Vertex,
		fragment:  fs.Fragment,
		layout:    vs.Layout,
		topology:  desc.Topology,
		frontFace: desc.FrontFace,
		cullMode:  desc.CullMode,
		viewport:  desc.Viewport,
		scissor:   desc.Scissor,
	}

	if cache != nil {
		cache.Insert(key, p)
	}
	softpipe.Logger().Debug("pipeline built",
		"label", desc.Label,
		"key", uint64(key),
		"outputSize", p.layout.Size,
		"positionOffset", p.layout.PositionOffset)
	return p, nil
}

// validateDescriptor checks the parts of a description the builder can
// reject without consulting the translator.
func validateDescriptor(desc *GraphicsDescriptor) error {
	for _, sd := range []*StageDescriptor{&desc.VertexStage, &desc.FragmentStage} {
		if sd.Module == nil {
			return ErrNilModule
		}
		if sd.EntryPoint == "" {
			return ErrNoEntryPoint
		}
	}
	if desc.Topology != gputypes.PrimitiveTopologyTriangleList {
		return ErrUnsupportedTopology
	}
	if desc.Viewport.Width <= 0 || desc.Viewport.Height <= 0 {
		return ErrBadViewport
	}
	return nil
}
