package shader

import (
	"errors"
	"fmt"
)

// Shader contract errors.
var (
	// ErrBadLayout is returned when an output layout violates its invariants.
	ErrBadLayout = errors.New("shader: invalid vertex output layout")

	// ErrEntryPointNotFound is returned when a module has no entry point
	// with the requested name.
	ErrEntryPointNotFound = errors.New("shader: entry point not found")

	// ErrStageMismatch is returned when an entry point exists but belongs
	// to a different stage than requested.
	ErrStageMismatch = errors.New("shader: entry point stage mismatch")

	// ErrUnsupportedBytecode is returned when a translator does not
	// understand the module's bytecode format.
	ErrUnsupportedBytecode = errors.New("shader: unsupported bytecode")
)

// TranslationError reports a failed bytecode translation. It identifies the
// module and entry point so a build failure can be attributed to a stage.
type TranslationError struct {
	// Module is the label of the module being translated.
	Module string

	// EntryPoint is the requested entry point name.
	EntryPoint string

	// Stage is the requested stage.
	Stage Stage

	// Err is the translator's diagnostic.
	Err error
}

// Error implements the error interface.
func (e *TranslationError) Error() string {
	return fmt.Sprintf("shader: translate %s entry %q of module %q: %v",
		e.Stage, e.EntryPoint, e.Module, e.Err)
}

// Unwrap returns the underlying diagnostic.
func (e *TranslationError) Unwrap() error { return e.Err }

// OptimizationError reports a failed native-code optimization pass.
// The pipeline builder treats it identically to a translation failure.
type OptimizationError struct {
	// Stage is the stage being optimized.
	Stage Stage

	// Target is the execution target the pass specialized for.
	Target Target

	// Err is the optimizer's diagnostic.
	Err error
}

// Error implements the error interface.
func (e *OptimizationError) Error() string {
	return fmt.Sprintf("shader: optimize %s stage for %s: %v", e.Stage, e.Target.Arch, e.Err)
}

// Unwrap returns the underlying diagnostic.
func (e *OptimizationError) Unwrap() error { return e.Err }
