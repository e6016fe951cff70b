package softvm

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/gogpu/softpipe/shader"
	"golang.org/x/image/math/f32"
)

// mustModule assembles a program into a shader module or fails the test.
func mustModule(t *testing.T, p *Program, label string) *shader.Module {
	t.Helper()
	m, err := p.Module(label)
	if err != nil {
		t.Fatalf("Module(%q): %v", label, err)
	}
	return m
}

// packVec4s serializes vec4 values into the wire layout of vertex buffers
// and uniform blocks.
func packVec4s(vs ...f32.Vec4) []byte {
	buf := make([]byte, 0, len(vs)*16)
	for _, v := range vs {
		for _, c := range v {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(c))
		}
	}
	return buf
}

func TestTranslateNilModule(t *testing.T) {
	_, err := NewTranslator().Translate(nil, "vs", shader.StageVertex, nil)
	if !errors.Is(err, shader.ErrUnsupportedBytecode) {
		t.Errorf("err = %v, want ErrUnsupportedBytecode", err)
	}
}

func TestTranslateForeignBytecode(t *testing.T) {
	m := shader.NewModule("foreign", []byte("not softvm bytecode"))
	_, err := NewTranslator().Translate(m, "vs", shader.StageVertex, nil)
	if !errors.Is(err, shader.ErrUnsupportedBytecode) {
		t.Errorf("err = %v, want ErrUnsupportedBytecode", err)
	}

	var te *shader.TranslationError
	if !errors.As(err, &te) {
		t.Fatalf("err = %T, want *shader.TranslationError", err)
	}
	if te.Module != "foreign" || te.EntryPoint != "vs" || te.Stage != shader.StageVertex {
		t.Errorf("diagnostic = %+v", te)
	}
}

func TestTranslateSPIRVBytecode(t *testing.T) {
	// WGSL-sourced modules carry SPIR-V for JIT-capable translators; the
	// interpreter must refuse them rather than misread the words.
	const src = `@vertex
fn vs_main() -> @builtin(position) vec4<f32> {
    return vec4<f32>(0.0, 0.0, 0.0, 1.0);
}`
	m, err := shader.NewModuleWGSL("wgsl", src)
	if err != nil {
		t.Fatalf("NewModuleWGSL: %v", err)
	}
	if len(m.Code()) == 0 {
		t.Fatal("compiled module has no bytecode")
	}
	_, err = NewTranslator().Translate(m, "vs_main", shader.StageVertex, nil)
	if !errors.Is(err, shader.ErrUnsupportedBytecode) {
		t.Errorf("err = %v, want ErrUnsupportedBytecode", err)
	}
}

func TestTranslateEntryPointNotFound(t *testing.T) {
	m := mustModule(t, testProgram(), "m")
	_, err := NewTranslator().Translate(m, "missing", shader.StageVertex, nil)
	if !errors.Is(err, shader.ErrEntryPointNotFound) {
		t.Errorf("err = %v, want ErrEntryPointNotFound", err)
	}
}

func TestTranslateStageMismatch(t *testing.T) {
	m := mustModule(t, testProgram(), "m")
	_, err := NewTranslator().Translate(m, "vs", shader.StageFragment, nil)
	if !errors.Is(err, shader.ErrStageMismatch) {
		t.Errorf("err = %v, want ErrStageMismatch", err)
	}
}

func TestTranslateVertexLayout(t *testing.T) {
	p := NewProgram()
	p.Vertex("vs", 3, 1).Const(0, f32.Vec4{0, 0, 0, 1}).StoreOutput(1, 0)
	m := mustModule(t, p, "m")

	cs, err := NewTranslator().Translate(m, "vs", shader.StageVertex, nil)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if cs.Stage != shader.StageVertex || cs.Vertex == nil {
		t.Fatal("missing vertex callable")
	}
	want := shader.OutputLayout{Size: 48, PositionOffset: 16}
	if cs.Layout != want {
		t.Errorf("Layout = %+v, want %+v", cs.Layout, want)
	}
}

func TestVertexExecution(t *testing.T) {
	p := NewProgram()
	b := p.AddBinding(16)
	p.Vertex("vs", 2, 0).
		LoadInput(0, b, 0).
		StoreOutput(0, 0).
		LoadIndex(1).
		StoreOutput(1, 1)
	m := mustModule(t, p, "m")

	cs, err := NewTranslator().Translate(m, "vs", shader.StageVertex, nil)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}

	binding := packVec4s(
		f32.Vec4{0, 0, 0, 1},
		f32.Vec4{1, 0, 0, 1},
		f32.Vec4{2, 0, 0, 1},
		f32.Vec4{3, 0, 0, 1},
	)
	out := make([]byte, 2*32)
	cs.Vertex.Invoke(2, 4, 7, out, [][]byte{binding}, nil)

	record := func(i, slot int) f32.Vec4 {
		return loadVec4(out, i*32+slot*16)
	}
	if got := record(0, 0); got != (f32.Vec4{2, 0, 0, 1}) {
		t.Errorf("vertex 2 position = %v", got)
	}
	if got := record(1, 0); got != (f32.Vec4{3, 0, 0, 1}) {
		t.Errorf("vertex 3 position = %v", got)
	}
	if got := record(0, 1); got != (f32.Vec4{2, 7, 0, 1}) {
		t.Errorf("vertex 2 index varying = %v", got)
	}
	if got := record(1, 1); got != (f32.Vec4{3, 7, 0, 1}) {
		t.Errorf("vertex 3 index varying = %v", got)
	}
}

func TestVertexUniformLoad(t *testing.T) {
	p := NewProgram()
	p.Vertex("vs", 1, 0).LoadUniform(0, 1).StoreOutput(0, 0)
	m := mustModule(t, p, "m")

	cs, err := NewTranslator().Translate(m, "vs", shader.StageVertex, nil)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}

	uniforms := packVec4s(f32.Vec4{9, 9, 9, 9}, f32.Vec4{1, 2, 3, 4})
	out := make([]byte, 16)
	cs.Vertex.Invoke(0, 1, 0, out, nil, uniforms)
	if got := loadVec4(out, 0); got != (f32.Vec4{1, 2, 3, 4}) {
		t.Errorf("uniform load = %v, want {1 2 3 4}", got)
	}
}

func TestFragmentBlendExecution(t *testing.T) {
	p := NewProgram()
	p.Fragment("fs").
		LoadColor(0).
		Const(1, f32.Vec4{0.25, 0, 0, 0.5}).
		Add(2, 0, 1).
		StoreColor(2)
	m := mustModule(t, p, "m")

	cs, err := NewTranslator().Translate(m, "fs", shader.StageFragment, nil)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if cs.Fragment == nil {
		t.Fatal("missing fragment callable")
	}

	color := f32.Vec4{0.5, 0, 0, 0}
	cs.Fragment.Invoke(&color, nil, nil)
	if color != (f32.Vec4{0.75, 0, 0, 0.5}) {
		t.Errorf("blended color = %v, want {0.75 0 0 0.5}", color)
	}
}

func TestFragmentVaryingLoad(t *testing.T) {
	p := NewProgram()
	p.Fragment("fs").LoadVarying(0, 1).StoreColor(0)
	m := mustModule(t, p, "m")

	cs, err := NewTranslator().Translate(m, "fs", shader.StageFragment, nil)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}

	varyings := packVec4s(f32.Vec4{0, 0, 0, 1}, f32.Vec4{0.5, 0.25, 1, 1})
	var color f32.Vec4
	cs.Fragment.Invoke(&color, varyings, nil)
	if color != (f32.Vec4{0.5, 0.25, 1, 1}) {
		t.Errorf("color = %v, want the slot 1 varying", color)
	}
}

func TestSpecializationConstants(t *testing.T) {
	p := NewProgram()
	p.Fragment("fs").Spec(0, 3, 2).StoreColor(0)
	m := mustModule(t, p, "m")
	tr := NewTranslator()

	cs, err := tr.Translate(m, "fs", shader.StageFragment, nil)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	var color f32.Vec4
	cs.Fragment.Invoke(&color, nil, nil)
	if color != (f32.Vec4{2, 2, 2, 2}) {
		t.Errorf("default specialization color = %v, want splat 2", color)
	}

	spec := shader.Specialization{3: math.Float32bits(5)}
	cs, err = tr.Translate(m, "fs", shader.StageFragment, spec)
	if err != nil {
		t.Fatalf("Translate with specialization: %v", err)
	}
	cs.Fragment.Invoke(&color, nil, nil)
	if color != (f32.Vec4{5, 5, 5, 5}) {
		t.Errorf("overridden specialization color = %v, want splat 5", color)
	}
}

func TestALUOps(t *testing.T) {
	tests := []struct {
		name string
		emit func(*Entry)
		want f32.Vec4
	}{
		{"sub", func(e *Entry) { e.Sub(2, 0, 1) }, f32.Vec4{3, 2, 1, 0}},
		{"mul", func(e *Entry) { e.Mul(2, 0, 1) }, f32.Vec4{4, 8, 12, 16}},
		{"div", func(e *Entry) { e.Div(2, 0, 1) }, f32.Vec4{4, 2, 4. / 3, 1}},
		{"min", func(e *Entry) { e.Min(2, 0, 1) }, f32.Vec4{1, 2, 3, 4}},
		{"max", func(e *Entry) { e.Max(2, 0, 1) }, f32.Vec4{4, 4, 4, 4}},
		{"dot", func(e *Entry) { e.Dot(2, 0, 1) }, f32.Vec4{40, 40, 40, 40}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProgram()
			e := p.Fragment("fs").
				Const(0, f32.Vec4{4, 4, 4, 4}).
				Const(1, f32.Vec4{1, 2, 3, 4})
			tt.emit(e)
			e.StoreColor(2)

			cs, err := NewTranslator().Translate(mustModule(t, p, "m"), "fs", shader.StageFragment, nil)
			if err != nil {
				t.Fatalf("Translate: %v", err)
			}
			var color f32.Vec4
			cs.Fragment.Invoke(&color, nil, nil)
			if color != tt.want {
				t.Errorf("color = %v, want %v", color, tt.want)
			}
		})
	}
}
