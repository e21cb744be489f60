package record

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrSchemaSyntax     = errors.New("record: malformed variable syntax")
	ErrUnknownType      = errors.New("record: unknown type tag")
	ErrDuplicateColumn  = errors.New("record: duplicate column name")
	ErrCompile          = errors.New("record: layout compilation failed")
	ErrCapacityExceeded = errors.New("record: vector capacity exceeded")
	ErrUnknownField     = errors.New("record: unknown field")
	ErrFieldKind        = errors.New("record: operation not valid for field kind")
	ErrValueType        = errors.New("record: value does not fit field type")
	ErrBadBuffer        = errors.New("record: tuple underflow/overflow")
	ErrVarTooLong       = errors.New("record: vector length exceeds u16")
)

// CompileError carries every diagnostic found while compiling one layout.
type CompileError struct {
	Shape       string
	Diagnostics []string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("record: compile %s: %s", e.Shape, strings.Join(e.Diagnostics, "; "))
}

func (e *CompileError) Unwrap() error { return ErrCompile }
