// Package columnar exports heap tables as Arrow records.
package columnar

import (
	"errors"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/tuannm99/novaloop/internal/heap"
	"github.com/tuannm99/novaloop/internal/record"
)

var ErrUnsupported = errors.New("columnar: unsupported value")

// DataType maps a column type to its Arrow type.
func DataType(t record.Type) (arrow.DataType, error) {
	switch t {
	case record.TypeUint8:
		return arrow.PrimitiveTypes.Uint8, nil
	case record.TypeInt16:
		return arrow.PrimitiveTypes.Int16, nil
	case record.TypeUint16:
		return arrow.PrimitiveTypes.Uint16, nil
	case record.TypeInt32:
		return arrow.PrimitiveTypes.Int32, nil
	case record.TypeUint32:
		return arrow.PrimitiveTypes.Uint32, nil
	case record.TypeFloat32:
		return arrow.PrimitiveTypes.Float32, nil
	case record.TypeFloat64:
		return arrow.PrimitiveTypes.Float64, nil
	case record.TypeInt64:
		return arrow.PrimitiveTypes.Int64, nil
	case record.TypeUint64:
		return arrow.PrimitiveTypes.Uint64, nil
	case record.TypeBool:
		return arrow.FixedWidthTypes.Boolean, nil
	}
	return nil, fmt.Errorf("%w: type %d", ErrUnsupported, t)
}

// Schema builds the Arrow schema of cols. Vector components become lists
// and carry their counter column name as field metadata.
func Schema(cols []record.Column) (*arrow.Schema, error) {
	fields := make([]arrow.Field, len(cols))
	for i, c := range cols {
		dt, err := DataType(c.Type)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c.Name, err)
		}
		f := arrow.Field{Name: c.Name, Type: dt, Nullable: true}
		if c.Vector {
			f.Type = arrow.ListOf(dt)
			f.Metadata = arrow.NewMetadata([]string{"counter"}, []string{c.Counter})
		}
		fields[i] = f
	}
	return arrow.NewSchema(fields, nil), nil
}

// Export copies the rows of tbl into one Arrow record. columns selects by
// name or pattern as View.SetColumnActive does; none means all columns.
// Absent values become nulls. The caller releases the record.
func Export(tbl *heap.Table, alloc memory.Allocator, columns ...string) (arrow.Record, error) {
	if alloc == nil {
		alloc = memory.DefaultAllocator
	}
	v := tbl.NewView(len(columns) == 0)
	for _, name := range columns {
		if err := v.SetColumnActive(name, true); err != nil {
			return nil, err
		}
	}

	var (
		cols []record.Column
		idx  []int
	)
	for _, name := range v.ActiveColumns() {
		i, err := tbl.ColumnIndex(name)
		if err != nil {
			return nil, err
		}
		c, _ := tbl.Column(name)
		cols = append(cols, c)
		idx = append(idx, i)
	}
	schema, err := Schema(cols)
	if err != nil {
		return nil, err
	}

	builders := make([]array.Builder, len(cols))
	for i, f := range schema.Fields() {
		builders[i] = array.NewBuilder(alloc, f.Type)
	}
	defer func() {
		for _, b := range builders {
			b.Release()
		}
	}()

	err = tbl.Scan(v, func(row int, vals []any) error {
		for j, i := range idx {
			if err := appendValue(builders[j], vals[i]); err != nil {
				return fmt.Errorf("row %d column %s: %w", row, cols[j].Name, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	arrays := make([]arrow.Array, len(builders))
	for i, b := range builders {
		arrays[i] = b.NewArray()
	}
	defer func() {
		for _, a := range arrays {
			a.Release()
		}
	}()
	return array.NewRecord(schema, arrays, int64(tbl.RowCount())), nil
}

func appendValue(b array.Builder, v any) error {
	if v == nil {
		b.AppendNull()
		return nil
	}
	if lb, ok := b.(*array.ListBuilder); ok {
		lb.Append(true)
		return appendSlice(lb.ValueBuilder(), v)
	}

	switch b := b.(type) {
	case *array.Uint8Builder:
		b.Append(v.(uint8))
	case *array.Int16Builder:
		b.Append(v.(int16))
	case *array.Uint16Builder:
		b.Append(v.(uint16))
	case *array.Int32Builder:
		b.Append(v.(int32))
	case *array.Uint32Builder:
		b.Append(v.(uint32))
	case *array.Float32Builder:
		b.Append(v.(float32))
	case *array.Float64Builder:
		b.Append(v.(float64))
	case *array.Int64Builder:
		b.Append(v.(int64))
	case *array.Uint64Builder:
		b.Append(v.(uint64))
	case *array.BooleanBuilder:
		b.Append(v.(bool))
	default:
		return fmt.Errorf("%w: %T into %T", ErrUnsupported, v, b)
	}
	return nil
}

func appendSlice(b array.Builder, v any) error {
	switch s := v.(type) {
	case []uint8:
		b.(*array.Uint8Builder).AppendValues(s, nil)
	case []int16:
		b.(*array.Int16Builder).AppendValues(s, nil)
	case []uint16:
		b.(*array.Uint16Builder).AppendValues(s, nil)
	case []int32:
		b.(*array.Int32Builder).AppendValues(s, nil)
	case []uint32:
		b.(*array.Uint32Builder).AppendValues(s, nil)
	case []float32:
		b.(*array.Float32Builder).AppendValues(s, nil)
	case []float64:
		b.(*array.Float64Builder).AppendValues(s, nil)
	case []int64:
		b.(*array.Int64Builder).AppendValues(s, nil)
	case []uint64:
		b.(*array.Uint64Builder).AppendValues(s, nil)
	case []bool:
		b.(*array.BooleanBuilder).AppendValues(s, nil)
	default:
		return fmt.Errorf("%w: %T", ErrUnsupported, v)
	}
	return nil
}
