package softvm

import (
	"errors"
	"testing"

	"github.com/gogpu/softpipe/shader"
	"golang.org/x/image/math/f32"
)

// testProgram builds a small two-entry program used across the codec tests.
func testProgram() *Program {
	p := NewProgram()
	b := p.AddBinding(16)
	p.Vertex("vs", 2, 0).
		LoadInput(0, b, 0).
		StoreOutput(0, 0).
		LoadIndex(1).
		StoreOutput(1, 1)
	p.Fragment("fs").
		Const(0, f32.Vec4{1, 0, 0, 1}).
		StoreColor(0)
	return p
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	p := testProgram()
	code, err := p.Assemble()
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	got, err := decodeProgram(code)
	if err != nil {
		t.Fatalf("decodeProgram: %v", err)
	}

	if len(got.strides) != 1 || got.strides[0] != 16 {
		t.Errorf("strides = %v, want [16]", got.strides)
	}
	if len(got.entries) != 2 {
		t.Fatalf("entry count = %d, want 2", len(got.entries))
	}

	vs := got.entries[0]
	if vs.name != "vs" || vs.stage != shader.StageVertex {
		t.Errorf("entry 0 = %q %v, want vs vertex", vs.name, vs.stage)
	}
	if vs.outputVec4s != 2 || vs.positionSlot != 0 {
		t.Errorf("vs layout = %d vec4s, position %d", vs.outputVec4s, vs.positionSlot)
	}
	if len(vs.code) != 4 {
		t.Fatalf("vs code length = %d, want 4", len(vs.code))
	}

	fs := got.entries[1]
	if fs.name != "fs" || fs.stage != shader.StageFragment {
		t.Errorf("entry 1 = %q %v, want fs fragment", fs.name, fs.stage)
	}
	if fs.code[0].Imm != (f32.Vec4{1, 0, 0, 1}) {
		t.Errorf("fs const immediate = %v", fs.code[0].Imm)
	}
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	code, err := testProgram().Assemble()
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	code[0] = 'X'
	if _, err := decodeProgram(code); !errors.Is(err, shader.ErrUnsupportedBytecode) {
		t.Errorf("bad magic: err = %v, want ErrUnsupportedBytecode", err)
	}
}

func TestDecodeRejectsBadVersion(t *testing.T) {
	code, err := testProgram().Assemble()
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	code[4] = 0xFF
	if _, err := decodeProgram(code); !errors.Is(err, shader.ErrUnsupportedBytecode) {
		t.Errorf("bad version: err = %v, want ErrUnsupportedBytecode", err)
	}
}

func TestDecodeRejectsTruncation(t *testing.T) {
	code, err := testProgram().Assemble()
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	for _, n := range []int{0, 3, 10, len(code) - 1} {
		if _, err := decodeProgram(code[:n]); !errors.Is(err, shader.ErrUnsupportedBytecode) {
			t.Errorf("truncated to %d bytes: err = %v, want ErrUnsupportedBytecode", n, err)
		}
	}
}

func TestDecodeRejectsUnknownOpcode(t *testing.T) {
	code, err := testProgram().Assemble()
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	// The final instruction's opcode byte starts instrSize bytes from the end.
	code[len(code)-instrSize] = byte(opMax)
	if _, err := decodeProgram(code); !errors.Is(err, shader.ErrUnsupportedBytecode) {
		t.Errorf("unknown opcode: err = %v, want ErrUnsupportedBytecode", err)
	}
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	code, err := testProgram().Assemble()
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	code = append(code, 0)
	if _, err := decodeProgram(code); !errors.Is(err, shader.ErrUnsupportedBytecode) {
		t.Errorf("trailing bytes: err = %v, want ErrUnsupportedBytecode", err)
	}
}

func TestAssembleRejectsInvalidPrograms(t *testing.T) {
	tests := []struct {
		name  string
		build func() *Program
	}{
		{"empty entry name", func() *Program {
			p := NewProgram()
			p.Vertex("", 1, 0).Const(0, f32.Vec4{}).StoreOutput(0, 0)
			return p
		}},
		{"duplicate entry", func() *Program {
			p := NewProgram()
			p.Fragment("main").StoreColor(0)
			p.Fragment("main").StoreColor(0)
			return p
		}},
		{"empty vertex record", func() *Program {
			p := NewProgram()
			p.Vertex("vs", 0, 0)
			return p
		}},
		{"position outside record", func() *Program {
			p := NewProgram()
			p.Vertex("vs", 1, 1).Const(0, f32.Vec4{}).StoreOutput(0, 0)
			return p
		}},
		{"undeclared binding", func() *Program {
			p := NewProgram()
			p.Vertex("vs", 1, 0).LoadInput(0, 3, 0).StoreOutput(0, 0)
			return p
		}},
		{"output slot outside record", func() *Program {
			p := NewProgram()
			p.Vertex("vs", 1, 0).Const(0, f32.Vec4{}).StoreOutput(1, 0)
			return p
		}},
		{"vertex op in fragment", func() *Program {
			p := NewProgram()
			p.Fragment("fs").LoadIndex(0).StoreColor(0)
			return p
		}},
		{"fragment op in vertex", func() *Program {
			p := NewProgram()
			p.Vertex("vs", 1, 0).LoadVarying(0, 0).StoreOutput(0, 0)
			return p
		}},
		{"register out of range", func() *Program {
			p := NewProgram()
			p.Fragment("fs").Mov(0, numRegs).StoreColor(0)
			return p
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.build().Assemble(); err == nil {
				t.Error("Assemble succeeded, want error")
			}
		})
	}
}
