package record

import (
	"fmt"
	"math"
	"reflect"

	"github.com/tuannm99/novaloop/internal/alias/bx"
)

// Tuple format of one stored row:
//
//	[nullmap: ceil(N/8) bytes, bit=1 => absent] [col0?] [col1?] ...
//
// Scalars are their fixed little-endian width. Vector components are a u16
// element count followed by the packed elements. Absent columns decode to
// the field default.

func nullmapLen(n int) int { return (n + 7) / 8 }

func isNull(nullmap []byte, i int) bool { return (nullmap[i/8]>>(uint(i)&7))&1 == 1 }

// EncodeRow packs the fields of b bound to cols. fields[i] is the buffer
// field for cols[i]; NoField stores the column as absent.
func EncodeRow(cols []Column, b *Buffer, fields []FieldID) ([]byte, error) {
	if len(fields) != len(cols) {
		return nil, fmt.Errorf("%w: %d columns, %d fields", ErrBadBuffer, len(cols), len(fields))
	}
	out := make([]byte, nullmapLen(len(cols)), nullmapLen(len(cols))+b.layout.size)
	for i, col := range cols {
		id := fields[i]
		if id == NoField {
			out[i/8] |= 1 << (uint(i) & 7)
			continue
		}
		f := b.layout.fields[id]
		if !col.Vector {
			out = append(out, b.data[f.Offset:f.Offset+f.Type.Size()]...)
			continue
		}
		n := b.Len(id)
		if f.Kind == FieldArray && (n < 0 || n > f.Cap) {
			return nil, fmt.Errorf("%w: %s holds %d, capacity %d", ErrCapacityExceeded, f.Name, n, f.Cap)
		}
		if n > math.MaxUint16 {
			return nil, fmt.Errorf("%s: %w", f.Name, ErrVarTooLong)
		}
		var l [2]byte
		bx.PutU16(l[:], uint16(n))
		out = append(out, l[:]...)
		out = append(out, b.rawElems(f, n)...)
	}
	return out, nil
}

// DecodeRow unpacks buf into b. Columns whose fields[i] is NoField are
// skipped. Reading a fixed array also sets its counter, so a row whose
// counter column is not loaded still shows the right length.
func DecodeRow(cols []Column, buf []byte, b *Buffer, fields []FieldID) error {
	nb := nullmapLen(len(cols))
	if len(buf) < nb || len(fields) != len(cols) {
		return ErrBadBuffer
	}
	nullmap := buf[:nb]
	p := nb
	for i, col := range cols {
		if isNull(nullmap, i) {
			continue
		}
		sz := col.Type.Size()
		if !col.Vector {
			if p+sz > len(buf) {
				return ErrBadBuffer
			}
			if id := fields[i]; id != NoField {
				f := b.layout.fields[id]
				copy(b.data[f.Offset:f.Offset+sz], buf[p:p+sz])
			}
			p += sz
			continue
		}

		if p+2 > len(buf) {
			return ErrBadBuffer
		}
		n := int(bx.U16(buf[p : p+2]))
		p += 2
		if p+n*sz > len(buf) {
			return ErrBadBuffer
		}
		raw := buf[p : p+n*sz]
		p += n * sz

		id := fields[i]
		if id == NoField {
			continue
		}
		f := b.layout.fields[id]
		switch f.Kind {
		case FieldArray:
			if n > f.Cap {
				return fmt.Errorf("%w: %s stored with %d elements, capacity %d", ErrCapacityExceeded, f.Name, n, f.Cap)
			}
			copy(b.data[f.Offset:f.Offset+n*sz], raw)
			b.setCounter(f.Counter, n)
		case FieldGrowable:
			b.containers[f.Offset] = append(b.containers[f.Offset][:0], raw...)
			if f.Counter != NoField {
				b.setCounter(f.Counter, n)
			}
		}
	}
	return nil
}

// EncodeValues packs plain Go values, one per column. Scalars accept any
// numeric kind (bool for bool columns); vectors accept a slice of any
// numeric kind. nil stores the column as absent.
func EncodeValues(cols []Column, values []any) ([]byte, error) {
	if len(values) != len(cols) {
		return nil, fmt.Errorf("%w: %d columns, %d values", ErrValueType, len(cols), len(values))
	}
	out := make([]byte, nullmapLen(len(cols)))
	var tmp [8]byte
	for i, col := range cols {
		v := values[i]
		if v == nil {
			out[i/8] |= 1 << (uint(i) & 7)
			continue
		}
		sz := col.Type.Size()
		if !col.Vector {
			if err := encodeValue(col.Type, tmp[:sz], v); err != nil {
				return nil, fmt.Errorf("column %s: %w", col.Name, err)
			}
			out = append(out, tmp[:sz]...)
			continue
		}

		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return nil, fmt.Errorf("%w: column %s wants a slice, got %T", ErrValueType, col.Name, v)
		}
		n := rv.Len()
		if col.MaxLength > 0 && n > col.MaxLength {
			return nil, fmt.Errorf("%w: column %s got %d elements, capacity %d", ErrCapacityExceeded, col.Name, n, col.MaxLength)
		}
		if n > math.MaxUint16 {
			return nil, fmt.Errorf("column %s: %w", col.Name, ErrVarTooLong)
		}
		var l [2]byte
		bx.PutU16(l[:], uint16(n))
		out = append(out, l[:]...)
		for j := 0; j < n; j++ {
			if err := encodeValue(col.Type, tmp[:sz], rv.Index(j).Interface()); err != nil {
				return nil, fmt.Errorf("column %s[%d]: %w", col.Name, j, err)
			}
			out = append(out, tmp[:sz]...)
		}
	}
	return out, nil
}

// DecodeValues unpacks buf into Go values. Vectors come back as typed
// slices. When mask is non-nil, columns with mask[i] false are skipped and
// left nil.
func DecodeValues(cols []Column, buf []byte, mask []bool) ([]any, error) {
	nb := nullmapLen(len(cols))
	if len(buf) < nb {
		return nil, ErrBadBuffer
	}
	nullmap := buf[:nb]
	p := nb
	out := make([]any, len(cols))
	for i, col := range cols {
		if isNull(nullmap, i) {
			continue
		}
		want := mask == nil || mask[i]
		sz := col.Type.Size()
		if !col.Vector {
			if p+sz > len(buf) {
				return nil, ErrBadBuffer
			}
			if want {
				out[i] = decodeValue(col.Type, buf[p:p+sz])
			}
			p += sz
			continue
		}
		if p+2 > len(buf) {
			return nil, ErrBadBuffer
		}
		n := int(bx.U16(buf[p : p+2]))
		p += 2
		if p+n*sz > len(buf) {
			return nil, ErrBadBuffer
		}
		if want {
			out[i] = decodeSlice(col.Type, buf[p:p+n*sz], n)
		}
		p += n * sz
	}
	return out, nil
}
