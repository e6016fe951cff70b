package softvm

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/softpipe/shader"
	"golang.org/x/image/math/f32"
)

// Translator compiles softvm module bytecode into interpreter-backed stage
// callables. It implements shader.Translator.
//
// Translation is deterministic and allocates no shared mutable state, so a
// single Translator is safe for concurrent use by parallel stage builds.
type Translator struct{}

// NewTranslator creates a softvm translator.
func NewTranslator() *Translator { return &Translator{} }

// Translate decodes the module, resolves the entry point, applies
// specialization constants, and emits the stage callable.
//
// Failures are reported as *shader.TranslationError wrapping the specific
// diagnostic (shader.ErrUnsupportedBytecode for foreign or malformed
// bytecode, shader.ErrEntryPointNotFound, shader.ErrStageMismatch).
func (t *Translator) Translate(m *shader.Module, entryPoint string, stage shader.Stage, spec shader.Specialization) (*shader.CompiledStage, error) {
	fail := func(err error) (*shader.CompiledStage, error) {
		label := ""
		if m != nil {
			label = m.Label()
		}
		return nil, &shader.TranslationError{
			Module:     label,
			EntryPoint: entryPoint,
			Stage:      stage,
			Err:        err,
		}
	}

	if m == nil {
		return fail(fmt.Errorf("nil module: %w", shader.ErrUnsupportedBytecode))
	}
	prog, err := decodeProgram(m.Code())
	if err != nil {
		return fail(err)
	}

	var ent *entry
	for i := range prog.entries {
		if prog.entries[i].name == entryPoint {
			ent = &prog.entries[i]
			break
		}
	}
	if ent == nil {
		return fail(shader.ErrEntryPointNotFound)
	}
	if ent.stage != stage {
		return fail(fmt.Errorf("entry %q is a %s entry: %w", entryPoint, ent.stage, shader.ErrStageMismatch))
	}
	if err := validateEntry(prog, ent); err != nil {
		return fail(err)
	}

	ir := &stageIR{
		stage:        stage,
		strides:      prog.strides,
		outputVec4s:  ent.outputVec4s,
		positionSlot: ent.positionSlot,
		code:         specialize(ent.code, spec),
	}
	return bind(ir), nil
}

// specialize resolves OpSpec instructions against the supplied constants,
// rewriting them to OpConst. The returned slice is always a fresh copy.
func specialize(code []Instr, spec shader.Specialization) []Instr {
	out := append([]Instr(nil), code...)
	for i := range out {
		if out[i].Op != OpSpec {
			continue
		}
		v := spec.Float(uint32(out[i].Slot), out[i].Imm[0])
		out[i] = Instr{Op: OpConst, Dst: out[i].Dst, Imm: f32.Vec4{v, v, v, v}}
	}
	return out
}

// stageIR is the translator-private representation of one compiled stage.
// It is carried on shader.CompiledStage.IR so the softvm optimizer can
// rewrite the code and re-emit the callables.
type stageIR struct {
	stage        shader.Stage
	strides      []uint32
	outputVec4s  uint16
	positionSlot uint16
	code         []Instr
}

// bind wraps a stage IR in interpreter closures.
func bind(ir *stageIR) *shader.CompiledStage {
	cs := &shader.CompiledStage{Stage: ir.stage, IR: ir}
	switch ir.stage {
	case shader.StageVertex:
		cs.Vertex = shader.VertexFunc(ir.runVertex)
		cs.Layout = shader.OutputLayout{
			Size:           int(ir.outputVec4s) * 16,
			PositionOffset: int(ir.positionSlot) * 16,
		}
	case shader.StageFragment:
		cs.Fragment = shader.FragmentFunc(ir.runFragment)
	}
	return cs
}

// runVertex interprets the entry point once per vertex in [first, last),
// writing one output record per vertex into out.
func (ir *stageIR) runVertex(first, last, instance uint32, out []byte, bindings [][]byte, uniforms []byte) {
	recSize := int(ir.outputVec4s) * 16
	var regs [numRegs]f32.Vec4
	for v := first; v < last; v++ {
		rec := recordAt(out, int(v-first), recSize)
		for i := range ir.code {
			in := &ir.code[i]
			switch in.Op {
			case OpConst:
				regs[in.Dst] = in.Imm
			case OpLoadInput:
				var src []byte
				if int(in.A) < len(bindings) {
					src = bindings[in.A]
				}
				stride := 0
				if int(in.A) < len(ir.strides) {
					stride = int(ir.strides[in.A])
				}
				regs[in.Dst] = loadVec4(src, int(v)*stride+int(in.Slot)*16)
			case OpLoadIndex:
				regs[in.Dst] = f32.Vec4{float32(v), float32(instance), 0, 1}
			case OpLoadUniform:
				regs[in.Dst] = loadVec4(uniforms, int(in.Slot)*16)
			case OpStoreOutput:
				storeVec4(rec, int(in.Slot)*16, regs[in.A])
			default:
				execALU(&regs, in)
			}
		}
	}
}

// runFragment interprets the entry point for one covered pixel sample.
func (ir *stageIR) runFragment(color *f32.Vec4, varyings []byte, uniforms []byte) {
	var regs [numRegs]f32.Vec4
	for i := range ir.code {
		in := &ir.code[i]
		switch in.Op {
		case OpConst:
			regs[in.Dst] = in.Imm
		case OpLoadVarying:
			regs[in.Dst] = loadVec4(varyings, int(in.Slot)*16)
		case OpLoadUniform:
			regs[in.Dst] = loadVec4(uniforms, int(in.Slot)*16)
		case OpLoadColor:
			regs[in.Dst] = *color
		case OpStoreColor:
			*color = regs[in.A]
		default:
			execALU(&regs, in)
		}
	}
}

// execALU executes the stage-independent arithmetic opcodes.
func execALU(regs *[numRegs]f32.Vec4, in *Instr) {
	a, b := regs[in.A], regs[in.B]
	switch in.Op {
	case OpMov:
		regs[in.Dst] = a
	case OpAdd:
		regs[in.Dst] = f32.Vec4{a[0] + b[0], a[1] + b[1], a[2] + b[2], a[3] + b[3]}
	case OpSub:
		regs[in.Dst] = f32.Vec4{a[0] - b[0], a[1] - b[1], a[2] - b[2], a[3] - b[3]}
	case OpMul:
		regs[in.Dst] = f32.Vec4{a[0] * b[0], a[1] * b[1], a[2] * b[2], a[3] * b[3]}
	case OpDiv:
		regs[in.Dst] = f32.Vec4{a[0] / b[0], a[1] / b[1], a[2] / b[2], a[3] / b[3]}
	case OpMin:
		regs[in.Dst] = f32.Vec4{min(a[0], b[0]), min(a[1], b[1]), min(a[2], b[2]), min(a[3], b[3])}
	case OpMax:
		regs[in.Dst] = f32.Vec4{max(a[0], b[0]), max(a[1], b[1]), max(a[2], b[2]), max(a[3], b[3])}
	case OpDot:
		s := a[0]*b[0] + a[1]*b[1] + a[2]*b[2] + a[3]*b[3]
		regs[in.Dst] = f32.Vec4{s, s, s, s}
	}
}

// recordAt returns the byte slice of one output record, or nil when the
// buffer is too small. Short buffers are a caller precondition violation;
// the interpreter degrades to dropped writes rather than panicking.
func recordAt(out []byte, index, size int) []byte {
	lo := index * size
	hi := lo + size
	if lo < 0 || hi > len(out) {
		return nil
	}
	return out[lo:hi]
}

// loadVec4 reads four float32 values at a byte offset.
// Reads past the end of the buffer produce zeros.
func loadVec4(buf []byte, off int) f32.Vec4 {
	if off < 0 || off+16 > len(buf) {
		return f32.Vec4{}
	}
	return f32.Vec4{
		math.Float32frombits(binary.LittleEndian.Uint32(buf[off:])),
		math.Float32frombits(binary.LittleEndian.Uint32(buf[off+4:])),
		math.Float32frombits(binary.LittleEndian.Uint32(buf[off+8:])),
		math.Float32frombits(binary.LittleEndian.Uint32(buf[off+12:])),
	}
}

// storeVec4 writes four float32 values at a byte offset.
// Writes past the end of the buffer are dropped.
func storeVec4(buf []byte, off int, v f32.Vec4) {
	if off < 0 || off+16 > len(buf) {
		return
	}
	binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(v[0]))
	binary.LittleEndian.PutUint32(buf[off+4:], math.Float32bits(v[1]))
	binary.LittleEndian.PutUint32(buf[off+8:], math.Float32bits(v[2]))
	binary.LittleEndian.PutUint32(buf[off+12:], math.Float32bits(v[3]))
}
