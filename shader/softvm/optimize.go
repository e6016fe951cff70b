package softvm

import (
	"errors"

	"github.com/gogpu/softpipe/shader"
	"golang.org/x/image/math/f32"
)

// Optimizer errors.
var (
	// ErrForeignIR is returned when a compiled stage was not produced by
	// the softvm translator.
	ErrForeignIR = errors.New("softvm: compiled stage carries foreign IR")

	// ErrBadTarget is returned for a target descriptor the optimizer
	// cannot specialize for.
	ErrBadTarget = errors.New("softvm: invalid optimization target")

	// ErrNilStage is returned when the stage to optimize is nil.
	ErrNilStage = errors.New("softvm: compiled stage is nil")
)

// Optimizer rewrites softvm stages for the host execution target.
// It implements shader.Optimizer.
//
// Two passes run today: constant folding (arithmetic over registers whose
// values are known at optimization time, which includes resolved
// specialization constants) and dead-store elimination. Straight-line code
// makes both passes a single linear scan.
type Optimizer struct{}

// NewOptimizer creates a softvm optimizer.
func NewOptimizer() *Optimizer { return &Optimizer{} }

// Optimize rewrites the stage's code and re-emits its callables.
// Failures are reported as *shader.OptimizationError; the pipeline builder
// treats them like translation failures.
func (o *Optimizer) Optimize(cs *shader.CompiledStage, target shader.Target) (*shader.CompiledStage, error) {
	fail := func(stage shader.Stage, err error) (*shader.CompiledStage, error) {
		return nil, &shader.OptimizationError{Stage: stage, Target: target, Err: err}
	}
	if cs == nil {
		return fail(0, ErrNilStage)
	}
	ir, ok := cs.IR.(*stageIR)
	if !ok {
		return fail(cs.Stage, ErrForeignIR)
	}
	if target.VectorWidth < 1 {
		return fail(cs.Stage, ErrBadTarget)
	}

	opt := &stageIR{
		stage:        ir.stage,
		strides:      ir.strides,
		outputVec4s:  ir.outputVec4s,
		positionSlot: ir.positionSlot,
		code:         eliminateDeadStores(foldConstants(ir.code)),
	}
	return bind(opt), nil
}

// foldConstants propagates OpConst values through the register file and
// precomputes arithmetic whose operands are all known. Division by zero
// folds to the same IEEE result the interpreter would produce.
func foldConstants(code []Instr) []Instr {
	out := make([]Instr, 0, len(code))
	var known [numRegs]bool
	var value [numRegs]f32.Vec4

	for _, in := range code {
		switch in.Op {
		case OpConst:
			known[in.Dst] = true
			value[in.Dst] = in.Imm
		case OpMov:
			if known[in.A] {
				in = Instr{Op: OpConst, Dst: in.Dst, Imm: value[in.A]}
				known[in.Dst] = true
				value[in.Dst] = in.Imm
			} else {
				known[in.Dst] = false
			}
		case OpAdd, OpSub, OpMul, OpDiv, OpMin, OpMax, OpDot:
			if known[in.A] && known[in.B] {
				var regs [numRegs]f32.Vec4
				regs[in.A] = value[in.A]
				regs[in.B] = value[in.B]
				folded := in
				execALU(&regs, &folded)
				in = Instr{Op: OpConst, Dst: in.Dst, Imm: regs[in.Dst]}
				known[in.Dst] = true
				value[in.Dst] = in.Imm
			} else {
				known[in.Dst] = false
			}
		case OpStoreOutput, OpStoreColor:
			// No destination register.
		default:
			// Loads from inputs, uniforms, varyings, or the color slot.
			known[in.Dst] = false
		}
		out = append(out, in)
	}
	return out
}

// eliminateDeadStores drops instructions whose destination register is
// never read before being overwritten. Stores to the output record and the
// color slot are the only side effects and are always kept.
func eliminateDeadStores(code []Instr) []Instr {
	var live [numRegs]bool
	keep := make([]bool, len(code))

	for i := len(code) - 1; i >= 0; i-- {
		in := &code[i]
		switch in.Op {
		case OpStoreOutput, OpStoreColor:
			keep[i] = true
			live[in.A] = true
		default:
			if !live[in.Dst] {
				continue
			}
			keep[i] = true
			live[in.Dst] = false
			switch in.Op {
			case OpMov:
				live[in.A] = true
			case OpAdd, OpSub, OpMul, OpDiv, OpMin, OpMax, OpDot:
				live[in.A] = true
				live[in.B] = true
			case OpLoadInput:
				// A names a binding, not a register.
			}
		}
	}

	out := make([]Instr, 0, len(code))
	for i, in := range code {
		if keep[i] {
			out = append(out, in)
		}
	}
	return out
}
