package shader

import (
	"fmt"
	"hash/fnv"

	"github.com/gogpu/naga"
)

// Module is an immutable shader bytecode module.
//
// The bytecode format is owned by the translator that consumes the module;
// the core only relies on the content hash, which identifies the module in
// pipeline cache keys.
type Module struct {
	label string
	code  []byte
	hash  uint64
}

// NewModule creates a module from raw bytecode. The code is copied.
func NewModule(label string, code []byte) *Module {
	h := fnv.New64a()
	_, _ = h.Write(code)
	return &Module{
		label: label,
		code:  append([]byte(nil), code...),
		hash:  h.Sum64(),
	}
}

// NewModuleWGSL compiles WGSL source to SPIR-V and wraps it as a module.
// The resulting bytecode is consumed by SPIR-V-capable translators; the
// reference softvm translator rejects it with a translation error.
func NewModuleWGSL(label, source string) (*Module, error) {
	spirv, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("shader: compile WGSL module %q: %w", label, err)
	}
	return NewModule(label, spirv), nil
}

// Label returns the module's debug label.
func (m *Module) Label() string { return m.label }

// Code returns the module bytecode. Callers must not modify it.
func (m *Module) Code() []byte { return m.code }

// Hash returns the FNV-1a content hash of the bytecode.
func (m *Module) Hash() uint64 { return m.hash }
