package wasm

import "fmt"

// DecodeError is returned by Decode when the input bytes are not a valid
// WebAssembly 1.0 module. All decode-time failures enumerated in
// spec.md §7 are represented as a DecodeError with a Kind identifying
// which one.
type DecodeError struct {
	Kind    string
	Message string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("wasm: %s: %s", e.Kind, e.Message)
}

func decodeErr(kind, format string, args ...interface{}) *DecodeError {
	return &DecodeError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Decode error kinds named by spec.md §7. Embedders can compare
// DecodeError.Kind against these constants instead of parsing messages.
const (
	KindUnexpectedEOF                 = "UnexpectedEof"
	KindMalformedLeb                  = "MalformedLeb"
	KindInvalidUtf8                   = "InvalidUtf8"
	KindBadHeader                     = "BadHeader"
	KindDuplicateOrOutOfOrderSection  = "DuplicateOrOutOfOrderSection"
	KindInvalidValueType              = "InvalidValueType"
	KindInvalidConstExpr              = "InvalidConstExpr"
	KindFunctionCodeCountMismatch     = "FunctionCodeCountMismatch"
	KindInvalidMemoryLimits           = "InvalidMemoryLimits"
	KindInvalidTableLimits            = "InvalidTableLimits"
	KindInvalidBlockType              = "InvalidBlockType"
	KindUnbalancedLabel               = "UnbalancedLabel"
	KindUnknownSection                = "UnknownSection"
	KindUnknownOpcode                 = "UnknownOpcode"
)
