package record

import (
	"fmt"

	"github.com/tuannm99/novaloop/internal/alias/bx"
)

// Buffer is one instance of a Layout: a flat arena holding every scalar and
// fixed array, plus one container per growable field.
//
// A Buffer is owned by a single reader or writer and is not safe for
// concurrent use.
type Buffer struct {
	layout     *Layout
	data       []byte
	containers [][]byte
}

func (b *Buffer) Layout() *Layout { return b.layout }

func (b *Buffer) Lookup(name string) (FieldID, error) { return b.layout.Lookup(name) }

// Init resets every scalar to its default and truncates growable
// containers. Fixed arrays keep their bytes; their counters reset to 0.
func (b *Buffer) Init() {
	l := b.layout
	for _, s := range l.initSpans {
		copy(b.data[s.off:s.off+s.n], l.defaults[s.off:s.off+s.n])
	}
	for i := range b.containers {
		b.containers[i] = b.containers[i][:0]
	}
}

// ---- scalar access ----

func (b *Buffer) scalar(id FieldID) (Field, []byte) {
	f := b.layout.fields[id]
	if f.Kind != FieldScalar {
		panic(fmt.Errorf("%w: %s is a %s field", ErrFieldKind, f.Name, f.Kind))
	}
	return f, b.data[f.Offset : f.Offset+f.Type.Size()]
}

// Get returns the native value of a scalar field, or a typed slice of the
// visible elements of a vector field.
func (b *Buffer) Get(id FieldID) any {
	f := b.layout.fields[id]
	if f.Kind == FieldScalar {
		return decodeValue(f.Type, b.data[f.Offset:f.Offset+f.Type.Size()])
	}
	return b.Values(id)
}

// Set stores v into a scalar field, converting between numeric kinds.
func (b *Buffer) Set(id FieldID, v any) error {
	f := b.layout.fields[id]
	if f.Kind != FieldScalar {
		return fmt.Errorf("%w: %s is a %s field", ErrFieldKind, f.Name, f.Kind)
	}
	if err := encodeValue(f.Type, b.data[f.Offset:f.Offset+f.Type.Size()], v); err != nil {
		return fmt.Errorf("field %s: %w", f.Name, err)
	}
	return nil
}

func (b *Buffer) Float64(id FieldID) float64 {
	f, raw := b.scalar(id)
	return readFloat(f.Type, raw)
}

func (b *Buffer) Int64(id FieldID) int64 {
	f, raw := b.scalar(id)
	return readInt(f.Type, raw)
}

func (b *Buffer) Uint64(id FieldID) uint64 {
	f, raw := b.scalar(id)
	return uint64(readInt(f.Type, raw))
}

func (b *Buffer) Bool(id FieldID) bool {
	f, raw := b.scalar(id)
	return readInt(f.Type, raw) != 0 || (f.Type.IsFloat() && readFloat(f.Type, raw) != 0)
}

func (b *Buffer) SetFloat64(id FieldID, v float64) {
	f, raw := b.scalar(id)
	writeFloat(f.Type, raw, v)
}

func (b *Buffer) SetInt64(id FieldID, v int64) {
	f, raw := b.scalar(id)
	writeInt(f.Type, raw, v)
}

func (b *Buffer) SetUint64(id FieldID, v uint64) {
	f, raw := b.scalar(id)
	writeUint(f.Type, raw, v)
}

func (b *Buffer) SetBool(id FieldID, v bool) {
	f, raw := b.scalar(id)
	writeUint(f.Type, raw, boolBits(v))
}

// ---- vector access ----

func (b *Buffer) vector(id FieldID) Field {
	f := b.layout.fields[id]
	if f.Kind == FieldScalar {
		panic(fmt.Errorf("%w: %s is a scalar field", ErrFieldKind, f.Name))
	}
	return f
}

// Len is the visible length of a vector field: its counter for fixed
// arrays, the container length for growable fields.
func (b *Buffer) Len(id FieldID) int {
	f := b.vector(id)
	if f.Kind == FieldGrowable {
		return len(b.containers[f.Offset]) / f.Type.Size()
	}
	c := b.layout.fields[f.Counter]
	return int(readInt(c.Type, b.data[c.Offset:c.Offset+c.Type.Size()]))
}

// SetLen sets the visible length. Fixed arrays refuse lengths above their
// capacity; growable containers are resized, new elements zeroed.
func (b *Buffer) SetLen(id FieldID, n int) error {
	f := b.vector(id)
	if n < 0 {
		return fmt.Errorf("%w: %s length %d", ErrCapacityExceeded, f.Name, n)
	}
	if f.Kind == FieldGrowable {
		want := n * f.Type.Size()
		c := b.containers[f.Offset]
		if want <= cap(c) {
			old := len(c)
			c = c[:want]
			if want > old {
				clear(c[old:])
			}
		} else {
			c = append(c, make([]byte, want-len(c))...)
		}
		b.containers[f.Offset] = c
		if f.Counter != NoField {
			b.setCounter(f.Counter, n)
		}
		return nil
	}
	if n > f.Cap {
		return fmt.Errorf("%w: %s length %d > %d", ErrCapacityExceeded, f.Name, n, f.Cap)
	}
	b.setCounter(f.Counter, n)
	return nil
}

func (b *Buffer) setCounter(id FieldID, n int) {
	c := b.layout.fields[id]
	writeUint(c.Type, b.data[c.Offset:c.Offset+c.Type.Size()], uint64(n))
}

// elem returns the bytes of element i, checking capacity for arrays and the
// current length for growable fields.
func (b *Buffer) elem(f Field, i int) ([]byte, error) {
	sz := f.Type.Size()
	if f.Kind == FieldGrowable {
		c := b.containers[f.Offset]
		if i < 0 || (i+1)*sz > len(c) {
			return nil, fmt.Errorf("%w: %s index %d, length %d", ErrCapacityExceeded, f.Name, i, len(c)/sz)
		}
		return c[i*sz : (i+1)*sz], nil
	}
	if i < 0 || i >= f.Cap {
		return nil, fmt.Errorf("%w: %s index %d, capacity %d", ErrCapacityExceeded, f.Name, i, f.Cap)
	}
	off := f.Offset + i*sz
	return b.data[off : off+sz], nil
}

// At returns element i of a vector field.
func (b *Buffer) At(id FieldID, i int) (any, error) {
	f := b.vector(id)
	raw, err := b.elem(f, i)
	if err != nil {
		return nil, err
	}
	return decodeValue(f.Type, raw), nil
}

func (b *Buffer) Float64At(id FieldID, i int) float64 {
	f := b.vector(id)
	raw, err := b.elem(f, i)
	if err != nil {
		panic(err)
	}
	return readFloat(f.Type, raw)
}

func (b *Buffer) Int64At(id FieldID, i int) int64 {
	f := b.vector(id)
	raw, err := b.elem(f, i)
	if err != nil {
		panic(err)
	}
	return readInt(f.Type, raw)
}

// SetAt stores v at element i without touching the counter.
func (b *Buffer) SetAt(id FieldID, i int, v any) error {
	f := b.vector(id)
	raw, err := b.elem(f, i)
	if err != nil {
		return err
	}
	if err := encodeValue(f.Type, raw, v); err != nil {
		return fmt.Errorf("field %s[%d]: %w", f.Name, i, err)
	}
	return nil
}

func (b *Buffer) SetFloat64At(id FieldID, i int, v float64) error {
	f := b.vector(id)
	raw, err := b.elem(f, i)
	if err != nil {
		return err
	}
	writeFloat(f.Type, raw, v)
	return nil
}

func (b *Buffer) SetInt64At(id FieldID, i int, v int64) error {
	f := b.vector(id)
	raw, err := b.elem(f, i)
	if err != nil {
		return err
	}
	writeInt(f.Type, raw, v)
	return nil
}

// Append adds one element to a growable field.
func (b *Buffer) Append(id FieldID, v any) error {
	f := b.vector(id)
	if f.Kind != FieldGrowable {
		return fmt.Errorf("%w: append on %s field %s", ErrFieldKind, f.Kind, f.Name)
	}
	var tmp [8]byte
	raw := tmp[:f.Type.Size()]
	if err := encodeValue(f.Type, raw, v); err != nil {
		return fmt.Errorf("field %s: %w", f.Name, err)
	}
	b.containers[f.Offset] = append(b.containers[f.Offset], raw...)
	if f.Counter != NoField {
		b.setCounter(f.Counter, b.Len(id))
	}
	return nil
}

// Values copies the visible elements of a vector field into a typed slice
// ([]float32, []int32, ...). Lengths beyond capacity are clamped.
func (b *Buffer) Values(id FieldID) any {
	f := b.vector(id)
	n := b.Len(id)
	if f.Kind == FieldArray && n > f.Cap {
		n = f.Cap
	}
	if n < 0 {
		n = 0
	}
	return decodeSlice(f.Type, b.rawElems(f, n), n)
}

func (b *Buffer) rawElems(f Field, n int) []byte {
	sz := f.Type.Size()
	if f.Kind == FieldGrowable {
		return b.containers[f.Offset][:n*sz]
	}
	return b.data[f.Offset : f.Offset+n*sz]
}

// ---- raw helpers shared with the row codec ----

func readInt(t Type, src []byte) int64 {
	switch t {
	case TypeUint8, TypeBool:
		return int64(src[0])
	case TypeInt16:
		return int64(bx.I16(src))
	case TypeUint16:
		return int64(bx.U16(src))
	case TypeInt32:
		return int64(bx.I32(src))
	case TypeUint32:
		return int64(bx.U32(src))
	case TypeInt64:
		return bx.I64(src)
	case TypeUint64:
		return int64(bx.U64(src))
	case TypeFloat32:
		return int64(bx.F32(src))
	case TypeFloat64:
		return int64(bx.F64(src))
	default:
		return 0
	}
}

func readFloat(t Type, src []byte) float64 {
	switch t {
	case TypeFloat32:
		return float64(bx.F32(src))
	case TypeFloat64:
		return bx.F64(src)
	case TypeUint64:
		return float64(bx.U64(src))
	default:
		return float64(readInt(t, src))
	}
}

func writeFloat(t Type, dst []byte, v float64) {
	switch t {
	case TypeFloat32:
		bx.PutF32(dst, float32(v))
	case TypeFloat64:
		bx.PutF64(dst, v)
	case TypeBool:
		dst[0] = byte(boolBits(v != 0))
	case TypeUint64:
		putValue(t, dst, uint64(v))
	default:
		putValue(t, dst, uint64(int64(v)))
	}
}

func writeInt(t Type, dst []byte, v int64) {
	switch t {
	case TypeFloat32, TypeFloat64:
		writeFloat(t, dst, float64(v))
	case TypeBool:
		dst[0] = byte(boolBits(v != 0))
	default:
		putValue(t, dst, uint64(v))
	}
}

func writeUint(t Type, dst []byte, v uint64) {
	switch t {
	case TypeFloat32, TypeFloat64:
		writeFloat(t, dst, float64(v))
	case TypeBool:
		dst[0] = byte(boolBits(v != 0))
	default:
		putValue(t, dst, v)
	}
}

// decodeSlice turns n packed values into a typed Go slice.
func decodeSlice(t Type, raw []byte, n int) any {
	switch t {
	case TypeUint8:
		return collect[uint8](t, raw, n)
	case TypeInt16:
		return collect[int16](t, raw, n)
	case TypeUint16:
		return collect[uint16](t, raw, n)
	case TypeInt32:
		return collect[int32](t, raw, n)
	case TypeUint32:
		return collect[uint32](t, raw, n)
	case TypeFloat32:
		return collect[float32](t, raw, n)
	case TypeFloat64:
		return collect[float64](t, raw, n)
	case TypeInt64:
		return collect[int64](t, raw, n)
	case TypeUint64:
		return collect[uint64](t, raw, n)
	case TypeBool:
		return collect[bool](t, raw, n)
	default:
		return nil
	}
}

func collect[T any](t Type, raw []byte, n int) []T {
	sz := t.Size()
	out := make([]T, n)
	for i := range out {
		out[i] = decodeValue(t, raw[i*sz:(i+1)*sz]).(T)
	}
	return out
}
