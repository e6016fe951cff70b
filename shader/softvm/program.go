package softvm

import (
	"fmt"

	"github.com/gogpu/softpipe/shader"
	"golang.org/x/image/math/f32"
)

// Program is an in-memory softvm shader module under construction.
// Build it with the Entry emitters, then Assemble it into bytecode.
// A Program is not safe for concurrent mutation.
type Program struct {
	strides []uint32
	entries []entry
}

// entry is one named entry point.
type entry struct {
	name         string
	stage        shader.Stage
	outputVec4s  uint16 // vertex record size in vec4 slots
	positionSlot uint16 // vec4 slot of the clip-space position
	code         []Instr
}

// layout derives the shader output layout from the entry declaration.
func (e *entry) layout() shader.OutputLayout {
	return shader.OutputLayout{
		Size:           int(e.outputVec4s) * 16,
		PositionOffset: int(e.positionSlot) * 16,
	}
}

// NewProgram creates an empty program.
func NewProgram() *Program {
	return &Program{}
}

// AddBinding declares an input vertex buffer binding with the given byte
// stride between consecutive vertex records. Returns the binding index.
func (p *Program) AddBinding(strideBytes uint32) int {
	p.strides = append(p.strides, strideBytes)
	return len(p.strides) - 1
}

// Vertex adds a vertex entry point. outputVec4s is the size of the per-vertex
// output record in vec4 slots; positionSlot is the slot holding the
// clip-space position.
func (p *Program) Vertex(name string, outputVec4s, positionSlot int) *Entry {
	p.entries = append(p.entries, entry{
		name:         name,
		stage:        shader.StageVertex,
		outputVec4s:  uint16(outputVec4s),
		positionSlot: uint16(positionSlot),
	})
	return &Entry{p: p, idx: len(p.entries) - 1}
}

// Fragment adds a fragment entry point.
func (p *Program) Fragment(name string) *Entry {
	p.entries = append(p.entries, entry{
		name:  name,
		stage: shader.StageFragment,
	})
	return &Entry{p: p, idx: len(p.entries) - 1}
}

// Assemble validates the program and serializes it to module bytecode.
func (p *Program) Assemble() ([]byte, error) {
	if len(p.strides) > maxBindings {
		return nil, fmt.Errorf("softvm: %d bindings exceeds limit of %d", len(p.strides), maxBindings)
	}
	seen := make(map[string]struct{}, len(p.entries))
	for i := range p.entries {
		e := &p.entries[i]
		if e.name == "" || len(e.name) > maxNameLen {
			return nil, fmt.Errorf("softvm: invalid entry point name %q", e.name)
		}
		if _, dup := seen[e.name]; dup {
			return nil, fmt.Errorf("softvm: duplicate entry point %q", e.name)
		}
		seen[e.name] = struct{}{}
		if err := validateEntry(p, e); err != nil {
			return nil, err
		}
	}
	return encodeProgram(p), nil
}

// Module assembles the program and wraps the bytecode as a shader module.
func (p *Program) Module(label string) (*shader.Module, error) {
	code, err := p.Assemble()
	if err != nil {
		return nil, err
	}
	return shader.NewModule(label, code), nil
}

// Entry emits instructions into one entry point. Emitters return the Entry
// so simple sequences can be chained.
type Entry struct {
	p   *Program
	idx int
}

func (e *Entry) emit(in Instr) *Entry {
	ent := &e.p.entries[e.idx]
	ent.code = append(ent.code, in)
	return e
}

// Const loads an immediate vector into dst.
func (e *Entry) Const(dst int, imm f32.Vec4) *Entry {
	return e.emit(Instr{Op: OpConst, Dst: uint8(dst), Imm: imm})
}

// Spec loads specialization constant id into dst, splatted across all four
// components; def is the value used when the constant is not overridden.
func (e *Entry) Spec(dst int, id uint32, def float32) *Entry {
	return e.emit(Instr{Op: OpSpec, Dst: uint8(dst), Slot: uint16(id), Imm: f32.Vec4{def}})
}

// LoadInput loads a vec4 from input binding at vec4 slot of the current
// vertex's record.
func (e *Entry) LoadInput(dst, binding, slot int) *Entry {
	return e.emit(Instr{Op: OpLoadInput, Dst: uint8(dst), A: uint8(binding), Slot: uint16(slot)})
}

// LoadIndex loads (vertexIndex, instanceID, 0, 1) into dst.
func (e *Entry) LoadIndex(dst int) *Entry {
	return e.emit(Instr{Op: OpLoadIndex, Dst: uint8(dst)})
}

// LoadUniform loads a vec4 from the uniform block at the given vec4 slot.
func (e *Entry) LoadUniform(dst, slot int) *Entry {
	return e.emit(Instr{Op: OpLoadUniform, Dst: uint8(dst), Slot: uint16(slot)})
}

// LoadVarying loads an interpolated vec4 from the given varying slot.
func (e *Entry) LoadVarying(dst, slot int) *Entry {
	return e.emit(Instr{Op: OpLoadVarying, Dst: uint8(dst), Slot: uint16(slot)})
}

// LoadColor loads the current color slot into dst.
func (e *Entry) LoadColor(dst int) *Entry {
	return e.emit(Instr{Op: OpLoadColor, Dst: uint8(dst)})
}

// Mov copies register a into dst.
func (e *Entry) Mov(dst, a int) *Entry {
	return e.emit(Instr{Op: OpMov, Dst: uint8(dst), A: uint8(a)})
}

// Add emits dst = a + b.
func (e *Entry) Add(dst, a, b int) *Entry {
	return e.emit(Instr{Op: OpAdd, Dst: uint8(dst), A: uint8(a), B: uint8(b)})
}

// Sub emits dst = a - b.
func (e *Entry) Sub(dst, a, b int) *Entry {
	return e.emit(Instr{Op: OpSub, Dst: uint8(dst), A: uint8(a), B: uint8(b)})
}

// Mul emits dst = a * b.
func (e *Entry) Mul(dst, a, b int) *Entry {
	return e.emit(Instr{Op: OpMul, Dst: uint8(dst), A: uint8(a), B: uint8(b)})
}

// Div emits dst = a / b.
func (e *Entry) Div(dst, a, b int) *Entry {
	return e.emit(Instr{Op: OpDiv, Dst: uint8(dst), A: uint8(a), B: uint8(b)})
}

// Min emits dst = min(a, b).
func (e *Entry) Min(dst, a, b int) *Entry {
	return e.emit(Instr{Op: OpMin, Dst: uint8(dst), A: uint8(a), B: uint8(b)})
}

// Max emits dst = max(a, b).
func (e *Entry) Max(dst, a, b int) *Entry {
	return e.emit(Instr{Op: OpMax, Dst: uint8(dst), A: uint8(a), B: uint8(b)})
}

// Dot emits dst = dot(a, b), splatted.
func (e *Entry) Dot(dst, a, b int) *Entry {
	return e.emit(Instr{Op: OpDot, Dst: uint8(dst), A: uint8(a), B: uint8(b)})
}

// StoreOutput writes register a into the given output vec4 slot.
func (e *Entry) StoreOutput(slot, a int) *Entry {
	return e.emit(Instr{Op: OpStoreOutput, A: uint8(a), Slot: uint16(slot)})
}

// StoreColor writes register a into the color slot.
func (e *Entry) StoreColor(a int) *Entry {
	return e.emit(Instr{Op: OpStoreColor, A: uint8(a)})
}

// validateEntry checks register bounds, slot bounds, and per-stage opcode
// legality for one entry point.
func validateEntry(p *Program, e *entry) error {
	if e.stage == shader.StageVertex {
		if e.outputVec4s == 0 {
			return fmt.Errorf("softvm: vertex entry %q declares an empty output record", e.name)
		}
		if e.positionSlot >= e.outputVec4s {
			return fmt.Errorf("softvm: vertex entry %q position slot %d outside record of %d slots",
				e.name, e.positionSlot, e.outputVec4s)
		}
	}
	for i := range e.code {
		in := &e.code[i]
		if int(in.Dst) >= numRegs || int(in.B) >= numRegs {
			return fmt.Errorf("softvm: entry %q instruction %d: register out of range", e.name, i)
		}
		// The A operand of OpLoadInput names a binding, not a register;
		// it is range-checked below.
		if in.Op != OpLoadInput && int(in.A) >= numRegs {
			return fmt.Errorf("softvm: entry %q instruction %d: register out of range", e.name, i)
		}
		switch in.Op {
		case OpLoadInput:
			if e.stage != shader.StageVertex {
				return fmt.Errorf("softvm: entry %q instruction %d: %s", e.name, i, errVertexOnly)
			}
			if int(in.A) >= len(p.strides) {
				return fmt.Errorf("softvm: entry %q instruction %d: input binding %d not declared",
					e.name, i, in.A)
			}
		case OpLoadIndex:
			if e.stage != shader.StageVertex {
				return fmt.Errorf("softvm: entry %q instruction %d: %s", e.name, i, errVertexOnly)
			}
		case OpStoreOutput:
			if e.stage != shader.StageVertex {
				return fmt.Errorf("softvm: entry %q instruction %d: %s", e.name, i, errVertexOnly)
			}
			if in.Slot >= e.outputVec4s {
				return fmt.Errorf("softvm: entry %q instruction %d: output slot %d outside record of %d slots",
					e.name, i, in.Slot, e.outputVec4s)
			}
		case OpLoadVarying, OpLoadColor, OpStoreColor:
			if e.stage != shader.StageFragment {
				return fmt.Errorf("softvm: entry %q instruction %d: %s", e.name, i, errFragmentOnly)
			}
		case OpConst, OpSpec, OpLoadUniform, OpMov, OpAdd, OpSub, OpMul, OpDiv, OpMin, OpMax, OpDot:
			// Legal in both stages.
		default:
			return fmt.Errorf("softvm: entry %q instruction %d: unknown opcode %d", e.name, i, in.Op)
		}
	}
	return nil
}

const (
	errVertexOnly   = "opcode is restricted to vertex entry points"
	errFragmentOnly = "opcode is restricted to fragment entry points"
)
