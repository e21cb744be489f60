package heap

import "errors"

var (
	ErrUnknownColumn = errors.New("heap: unknown column")
	ErrColumnType    = errors.New("heap: column type mismatch")
	ErrTableNotEmpty = errors.New("heap: columns can only be declared on an empty table")
	ErrRowOutOfRange = errors.New("heap: row out of range")
	ErrTableClosed   = errors.New("heap: table is closed")
	ErrPredicate     = errors.New("heap: invalid predicate")
)
