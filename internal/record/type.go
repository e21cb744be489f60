package record

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tuannm99/novaloop/internal/alias/bx"
)

// Type is the closed set of column value types. The short tags follow the
// usual tree-format letters: b S s I i F D L l O.
type Type uint8

const (
	TypeUint8 Type = iota + 1
	TypeInt16
	TypeUint16
	TypeInt32
	TypeUint32
	TypeFloat32
	TypeFloat64
	TypeInt64
	TypeUint64
	TypeBool
)

var tagToType = map[string]Type{
	"b": TypeUint8,
	"S": TypeInt16,
	"s": TypeUint16,
	"I": TypeInt32,
	"i": TypeUint32,
	"F": TypeFloat32,
	"D": TypeFloat64,
	"L": TypeInt64,
	"l": TypeUint64,
	"O": TypeBool,
}

// ParseType maps a short tag to its Type.
func ParseType(tag string) (Type, error) {
	t, ok := tagToType[tag]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownType, tag)
	}
	return t, nil
}

func (t Type) Valid() bool { return t >= TypeUint8 && t <= TypeBool }

// MarshalText stores a Type as its short tag in table metadata.
func (t Type) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, t)
	}
	return []byte(t.Tag()), nil
}

func (t *Type) UnmarshalText(b []byte) error {
	v, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Tag returns the short tag of t ("F" for float32 and so on).
func (t Type) Tag() string {
	switch t {
	case TypeUint8:
		return "b"
	case TypeInt16:
		return "S"
	case TypeUint16:
		return "s"
	case TypeInt32:
		return "I"
	case TypeUint32:
		return "i"
	case TypeFloat32:
		return "F"
	case TypeFloat64:
		return "D"
	case TypeInt64:
		return "L"
	case TypeUint64:
		return "l"
	case TypeBool:
		return "O"
	default:
		return "?"
	}
}

// GoType is the Go spelling of t, used in generated definitions.
func (t Type) GoType() string {
	switch t {
	case TypeUint8:
		return "uint8"
	case TypeInt16:
		return "int16"
	case TypeUint16:
		return "uint16"
	case TypeInt32:
		return "int32"
	case TypeUint32:
		return "uint32"
	case TypeFloat32:
		return "float32"
	case TypeFloat64:
		return "float64"
	case TypeInt64:
		return "int64"
	case TypeUint64:
		return "uint64"
	case TypeBool:
		return "bool"
	default:
		return "invalid"
	}
}

func (t Type) String() string { return t.GoType() }

// Size is the encoded width of one value in bytes.
func (t Type) Size() int {
	switch t {
	case TypeUint8, TypeBool:
		return 1
	case TypeInt16, TypeUint16:
		return 2
	case TypeInt32, TypeUint32, TypeFloat32:
		return 4
	case TypeInt64, TypeUint64, TypeFloat64:
		return 8
	default:
		return 0
	}
}

func (t Type) IsInteger() bool {
	return t.Valid() && t != TypeFloat32 && t != TypeFloat64 && t != TypeBool
}

func (t Type) IsFloat() bool { return t == TypeFloat32 || t == TypeFloat64 }

// Zero is the Go zero value of t (float32(0), int16(0), false, ...).
func (t Type) Zero() any { return decodeValue(t, make([]byte, 8)) }

// EmptySlice is an empty slice of t's Go type.
func (t Type) EmptySlice() any { return decodeSlice(t, nil, 0) }

// DefaultLiteral is the value a field of type t is reset to when its
// variable does not declare one.
func (t Type) DefaultLiteral() string {
	switch t {
	case TypeInt16, TypeInt32, TypeInt64, TypeUint64:
		return "-1"
	case TypeFloat32, TypeFloat64:
		return "NaN"
	case TypeBool:
		return "false"
	default:
		return "0"
	}
}

// encodeLiteral parses lit as a value of type t into dst (len == t.Size()).
// Unsigned types accept "-1" and wrap to their maximum.
func encodeLiteral(t Type, lit string, dst []byte) error {
	lit = strings.TrimSpace(lit)
	switch t {
	case TypeBool:
		v, err := strconv.ParseBool(lit)
		if err != nil {
			return fmt.Errorf("record: bad bool literal %q: %w", lit, err)
		}
		putValue(t, dst, boolBits(v))
		return nil
	case TypeFloat32, TypeFloat64:
		f, err := parseFloatLiteral(lit)
		if err != nil {
			return err
		}
		if t == TypeFloat32 {
			bx.PutF32(dst, float32(f))
		} else {
			bx.PutF64(dst, f)
		}
		return nil
	}

	if !t.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownType, t)
	}
	i, err := strconv.ParseInt(lit, 0, 64)
	if err != nil {
		u, uerr := strconv.ParseUint(lit, 0, 64)
		if uerr != nil {
			return fmt.Errorf("record: bad %s literal %q: %w", t, lit, err)
		}
		putValue(t, dst, u)
		return nil
	}
	putValue(t, dst, uint64(i))
	return nil
}

func parseFloatLiteral(lit string) (float64, error) {
	switch strings.ToLower(lit) {
	case "nan":
		return math.NaN(), nil
	case "inf", "+inf":
		return math.Inf(1), nil
	case "-inf":
		return math.Inf(-1), nil
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return 0, fmt.Errorf("record: bad float literal %q: %w", lit, err)
	}
	return f, nil
}

func boolBits(v bool) uint64 {
	if v {
		return 1
	}
	return 0
}

// putValue stores the low t.Size() bytes of raw; raw holds integer bits, or
// float bits already produced by the caller.
func putValue(t Type, dst []byte, raw uint64) {
	switch t.Size() {
	case 1:
		dst[0] = byte(raw)
	case 2:
		bx.PutU16(dst, uint16(raw))
	case 4:
		bx.PutU32(dst, uint32(raw))
	case 8:
		bx.PutU64(dst, raw)
	}
}

// decodeValue returns the native Go value stored in src.
func decodeValue(t Type, src []byte) any {
	switch t {
	case TypeUint8:
		return src[0]
	case TypeInt16:
		return bx.I16(src)
	case TypeUint16:
		return bx.U16(src)
	case TypeInt32:
		return bx.I32(src)
	case TypeUint32:
		return bx.U32(src)
	case TypeFloat32:
		return bx.F32(src)
	case TypeFloat64:
		return bx.F64(src)
	case TypeInt64:
		return bx.I64(src)
	case TypeUint64:
		return bx.U64(src)
	case TypeBool:
		return src[0] != 0
	default:
		return nil
	}
}

// encodeValue converts v into t's encoding. Any Go numeric kind is accepted
// and converted; bool only for TypeBool.
func encodeValue(t Type, dst []byte, v any) error {
	switch t {
	case TypeBool:
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("%w: want bool, got %T", ErrValueType, v)
		}
		dst[0] = byte(boolBits(b))
		return nil
	case TypeFloat32:
		f, ok := asFloat64(v)
		if !ok {
			return fmt.Errorf("%w: want number, got %T", ErrValueType, v)
		}
		bx.PutF32(dst, float32(f))
		return nil
	case TypeFloat64:
		f, ok := asFloat64(v)
		if !ok {
			return fmt.Errorf("%w: want number, got %T", ErrValueType, v)
		}
		bx.PutF64(dst, f)
		return nil
	}

	raw, ok := asIntBits(v)
	if !ok {
		return fmt.Errorf("%w: want integer, got %T", ErrValueType, v)
	}
	putValue(t, dst, raw)
	return nil
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	}
	return 0, false
}

func asIntBits(v any) (uint64, bool) {
	switch x := v.(type) {
	case int:
		return uint64(x), true
	case int8:
		return uint64(x), true
	case int16:
		return uint64(x), true
	case int32:
		return uint64(x), true
	case int64:
		return uint64(x), true
	case uint:
		return uint64(x), true
	case uint8:
		return uint64(x), true
	case uint16:
		return uint64(x), true
	case uint32:
		return uint64(x), true
	case uint64:
		return x, true
	case float32:
		return uint64(int64(x)), true
	case float64:
		return uint64(int64(x)), true
	case bool:
		return boolBits(x), true
	}
	return 0, false
}
