// Package softvm is the reference shader translator of softpipe: an
// interpreter over a compact register bytecode.
//
// A softvm module carries one or more named entry points, each a linear
// sequence of instructions over sixteen vec4 registers. Vertex entry points
// declare their output record as a number of vec4 slots plus the slot
// holding the clip-space position; the translator derives the pipeline's
// OutputLayout from that declaration. There is no control flow: programs
// are straight-line, which keeps translation, specialization, and
// optimization simple while exercising the full pipeline contract.
//
// Programs are built in memory with NewProgram and serialized to bytecode
// with Assemble; the Translator consumes the serialized form like any other
// shader module.
package softvm

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/softpipe/shader"
	"golang.org/x/image/math/f32"
)

// numRegs is the size of the vec4 register file.
const numRegs = 16

// Opcode identifies a softvm instruction.
type Opcode uint8

// Instruction set. Dst, A, B name registers; Slot addresses inputs,
// uniforms, varyings, output slots, or specialization-constant IDs.
const (
	opInvalid Opcode = iota

	// OpConst loads the immediate vector into Dst.
	OpConst

	// OpSpec loads specialization constant Slot into Dst (splatted).
	// Imm[0] holds the default value used when the constant is not set.
	OpSpec

	// OpLoadInput loads a vec4 from input binding A at vec4 slot Slot of
	// the current vertex's record. Vertex stages only.
	OpLoadInput

	// OpLoadIndex loads (vertexIndex, instanceID, 0, 1) into Dst.
	// Vertex stages only.
	OpLoadIndex

	// OpLoadUniform loads a vec4 from the uniform block at vec4 slot Slot.
	OpLoadUniform

	// OpLoadVarying loads an interpolated vec4 from varying slot Slot.
	// Fragment stages only.
	OpLoadVarying

	// OpLoadColor loads the current color slot into Dst. Fragment only.
	OpLoadColor

	// OpMov copies register A into Dst.
	OpMov

	// OpAdd, OpSub, OpMul, OpDiv, OpMin, OpMax operate componentwise:
	// Dst = A op B.
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMin
	OpMax

	// OpDot computes the 4-component dot product of A and B, splatted.
	OpDot

	// OpStoreOutput writes register A into output vec4 slot Slot of the
	// current vertex's record. Vertex stages only.
	OpStoreOutput

	// OpStoreColor writes register A into the color slot. Fragment only.
	OpStoreColor

	opMax
)

// Instr is one decoded softvm instruction.
type Instr struct {
	Op   Opcode
	Dst  uint8
	A    uint8
	B    uint8
	Slot uint16
	Imm  f32.Vec4
}

// Serialized module format.
const (
	magic        = "SVM1"
	version      = 1
	instrSize    = 24 // op, dst, a, b, slot, reserved, 4 x float32 bits
	maxNameLen   = 255
	maxBindings  = 16
	maxEntryCode = 1 << 20
)

// encodeProgram serializes a program to module bytecode.
func encodeProgram(p *Program) []byte {
	size := 4 + 2 + 2 + 4*len(p.strides) + 2
	for i := range p.entries {
		e := &p.entries[i]
		size += 2 + len(e.name) + 1 + 2 + 2 + 4 + instrSize*len(e.code)
	}
	buf := make([]byte, 0, size)
	buf = append(buf, magic...)
	buf = binary.LittleEndian.AppendUint16(buf, version)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(p.strides)))
	for _, s := range p.strides {
		buf = binary.LittleEndian.AppendUint32(buf, s)
	}
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(p.entries)))
	for i := range p.entries {
		e := &p.entries[i]
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(e.name)))
		buf = append(buf, e.name...)
		buf = append(buf, byte(e.stage))
		buf = binary.LittleEndian.AppendUint16(buf, e.outputVec4s)
		buf = binary.LittleEndian.AppendUint16(buf, e.positionSlot)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(e.code)))
		for _, in := range e.code {
			buf = append(buf, byte(in.Op), in.Dst, in.A, in.B)
			buf = binary.LittleEndian.AppendUint16(buf, in.Slot)
			buf = binary.LittleEndian.AppendUint16(buf, 0)
			for _, c := range in.Imm {
				buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(c))
			}
		}
	}
	return buf
}

// decoder reads the serialized form with bounds checking.
type decoder struct {
	buf []byte
	off int
}

func (d *decoder) remain() int { return len(d.buf) - d.off }

func (d *decoder) bytes(n int) ([]byte, error) {
	if n < 0 || d.remain() < n {
		return nil, fmt.Errorf("softvm: truncated module at offset %d: %w", d.off, shader.ErrUnsupportedBytecode)
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b, nil
}

func (d *decoder) u8() (uint8, error) {
	b, err := d.bytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *decoder) u16() (uint16, error) {
	b, err := d.bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (d *decoder) u32() (uint32, error) {
	b, err := d.bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// decodeProgram parses module bytecode back into a program.
func decodeProgram(code []byte) (*Program, error) {
	d := &decoder{buf: code}
	m, err := d.bytes(4)
	if err != nil {
		return nil, err
	}
	if string(m) != magic {
		return nil, fmt.Errorf("softvm: bad module magic: %w", shader.ErrUnsupportedBytecode)
	}
	v, err := d.u16()
	if err != nil {
		return nil, err
	}
	if v != version {
		return nil, fmt.Errorf("softvm: unsupported module version %d: %w", v, shader.ErrUnsupportedBytecode)
	}

	bindingCount, err := d.u16()
	if err != nil {
		return nil, err
	}
	if bindingCount > maxBindings {
		return nil, fmt.Errorf("softvm: binding count %d exceeds limit: %w", bindingCount, shader.ErrUnsupportedBytecode)
	}
	p := &Program{strides: make([]uint32, bindingCount)}
	for i := range p.strides {
		if p.strides[i], err = d.u32(); err != nil {
			return nil, err
		}
	}

	entryCount, err := d.u16()
	if err != nil {
		return nil, err
	}
	p.entries = make([]entry, 0, entryCount)
	for ei := 0; ei < int(entryCount); ei++ {
		nameLen, err := d.u16()
		if err != nil {
			return nil, err
		}
		if nameLen > maxNameLen {
			return nil, fmt.Errorf("softvm: entry name length %d exceeds limit: %w", nameLen, shader.ErrUnsupportedBytecode)
		}
		name, err := d.bytes(int(nameLen))
		if err != nil {
			return nil, err
		}
		stage, err := d.u8()
		if err != nil {
			return nil, err
		}
		if shader.Stage(stage) != shader.StageVertex && shader.Stage(stage) != shader.StageFragment {
			return nil, fmt.Errorf("softvm: unknown stage %d in entry %q: %w", stage, name, shader.ErrUnsupportedBytecode)
		}
		outputVec4s, err := d.u16()
		if err != nil {
			return nil, err
		}
		positionSlot, err := d.u16()
		if err != nil {
			return nil, err
		}
		instrCount, err := d.u32()
		if err != nil {
			return nil, err
		}
		if instrCount > maxEntryCode {
			return nil, fmt.Errorf("softvm: instruction count %d exceeds limit: %w", instrCount, shader.ErrUnsupportedBytecode)
		}
		e := entry{
			name:         string(name),
			stage:        shader.Stage(stage),
			outputVec4s:  outputVec4s,
			positionSlot: positionSlot,
			code:         make([]Instr, instrCount),
		}
		for ii := range e.code {
			raw, err := d.bytes(instrSize)
			if err != nil {
				return nil, err
			}
			in := &e.code[ii]
			in.Op = Opcode(raw[0])
			in.Dst = raw[1]
			in.A = raw[2]
			in.B = raw[3]
			in.Slot = binary.LittleEndian.Uint16(raw[4:6])
			for c := 0; c < 4; c++ {
				in.Imm[c] = math.Float32frombits(binary.LittleEndian.Uint32(raw[8+4*c:]))
			}
			if in.Op == opInvalid || in.Op >= opMax {
				return nil, fmt.Errorf("softvm: unknown opcode %d in entry %q: %w", in.Op, e.name, shader.ErrUnsupportedBytecode)
			}
		}
		p.entries = append(p.entries, e)
	}
	if d.remain() != 0 {
		return nil, fmt.Errorf("softvm: %d trailing bytes after module: %w", d.remain(), shader.ErrUnsupportedBytecode)
	}
	return p, nil
}
