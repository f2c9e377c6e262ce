package vm

import "fmt"

// Trap is the runtime-failure type every interpretation step can produce.
// A Trap aborts the current invocation and unwinds to the caller of
// Invoke/Call; it is distinct from a decode-time error (*wasm.DecodeError)
// and from a host-side instantiation error, per spec.md §7's three-way
// split between decode errors, instantiation errors and traps.
type Trap struct {
	Code    string
	message string
}

func (t *Trap) Error() string {
	return t.message
}

func newTrap(code, message string) *Trap {
	return &Trap{Code: code, message: message}
}

func trapf(code, format string, args ...interface{}) *Trap {
	return &Trap{Code: code, message: fmt.Sprintf(format, args...)}
}

// Named trap codes, one per spec.md §7 trap.
const (
	TrapUnreachable               = "Unreachable"
	TrapIntegerDivideByZero       = "IntegerDivideByZero"
	TrapIntegerOverflow           = "IntegerOverflow"
	TrapInvalidConversionToInt    = "InvalidConversionToInteger"
	TrapOutOfBoundsMemory         = "OutOfBoundsMemoryAccess"
	TrapUninitializedTableElement = "UninitializedTableElement"
	TrapUndefinedTableElement     = "UndefinedTableElement"
	TrapIndirectCallTypeMismatch  = "IndirectCallTypeMismatch"
	TrapImmutableGlobal           = "ImmutableGlobalWrite"
	TrapStackOverflow             = "CallStackExhausted"
	TrapElementSegmentOutOfBounds = "ElementSegmentOutOfBounds"
	TrapDataSegmentOutOfBounds    = "DataSegmentOutOfBounds"
	TrapOutOfFuel                 = "OutOfFuel"
	TrapExportNotFound            = "ExportNotFound"
	TrapSignatureMismatch         = "SignatureMismatch"
)

// Sentinel traps, mirroring the teacher's package-level Err* convention
// (vm/error.go) but keyed to this interpreter's own trap taxonomy.
var (
	ErrUnreachable = newTrap(TrapUnreachable, "unreachable executed")

	ErrIntegerDivideByZero = newTrap(TrapIntegerDivideByZero, "integer divide by zero")
	ErrIntegerOverflow     = newTrap(TrapIntegerOverflow, "integer overflow")
	ErrInvalidIntConversion = newTrap(TrapInvalidConversionToInt, "invalid conversion to integer")

	ErrOutOfBoundsMemory = newTrap(TrapOutOfBoundsMemory, "out of bounds memory access")

	ErrUninitializedTableElement = newTrap(TrapUninitializedTableElement, "uninitialized table element")
	ErrUndefinedTableElement     = newTrap(TrapUndefinedTableElement, "undefined element")
	ErrIndirectCallTypeMismatch  = newTrap(TrapIndirectCallTypeMismatch, "indirect call signature mismatch")

	ErrImmutableGlobal = newTrap(TrapImmutableGlobal, "write to immutable global")

	ErrStackOverflow = newTrap(TrapStackOverflow, "call stack exhausted")

	ErrElementSegmentOutOfBounds = newTrap(TrapElementSegmentOutOfBounds, "element segment out of bounds")
	ErrDataSegmentOutOfBounds    = newTrap(TrapDataSegmentOutOfBounds, "data segment out of bounds")

	ErrOutOfFuel = newTrap(TrapOutOfFuel, "out of fuel")

	ErrExportNotFound    = newTrap(TrapExportNotFound, "export not found")
	ErrSignatureMismatch = newTrap(TrapSignatureMismatch, "call signature mismatch")
)

// InstantiateError wraps a failure that occurs while wiring an instance
// together: an unresolved import, an invalid const-expression initializer,
// or a segment naming a table or memory that does not exist. No import's
// type is checked against its resolved value, and a trapping start
// function is reported as a *Trap rather than wrapped here. It is distinct from a
// Trap raised during an ordinary Invoke because it means the instance was
// never usable in the first place.
type InstantiateError struct {
	Reason string
}

func (e *InstantiateError) Error() string {
	return "instantiate: " + e.Reason
}

func instantiateErrf(format string, args ...interface{}) *InstantiateError {
	return &InstantiateError{Reason: fmt.Sprintf(format, args...)}
}
