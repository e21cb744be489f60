package heap

import (
	"fmt"

	"github.com/tuannm99/novaloop/internal/record"
)

// Binding maps table columns onto the fields of one record buffer. It is
// tied to that buffer instance.
type Binding struct {
	t       *Table
	buf     *record.Buffer
	fields  []record.FieldID // per table column, NoField when unbound
	scratch []record.FieldID
}

// Bind connects columns to the same-named fields of buf. With no columns
// every table column that buf has a field for is bound.
func (t *Table) Bind(buf *record.Buffer, columns ...string) (*Binding, error) {
	b := &Binding{
		t:       t,
		buf:     buf,
		fields:  make([]record.FieldID, len(t.cols)),
		scratch: make([]record.FieldID, len(t.cols)),
	}
	for i := range b.fields {
		b.fields[i] = record.NoField
	}

	l := buf.Layout()
	if len(columns) == 0 {
		for i, c := range t.cols {
			id, err := l.Lookup(c.Name)
			if err != nil {
				continue
			}
			if err := checkField(t.name, c, l.Field(id)); err != nil {
				return nil, err
			}
			b.fields[i] = id
		}
		return b, nil
	}

	for _, name := range columns {
		i, err := t.ColumnIndex(name)
		if err != nil {
			return nil, err
		}
		id, err := l.Lookup(name)
		if err != nil {
			return nil, fmt.Errorf("%w: buffer has no field for column %q", ErrUnknownColumn, name)
		}
		if err := checkField(t.name, t.cols[i], l.Field(id)); err != nil {
			return nil, err
		}
		b.fields[i] = id
	}
	return b, nil
}

func checkField(table string, c record.Column, f record.Field) error {
	vector := f.Kind != record.FieldScalar
	if c.Type != f.Type || c.Vector != vector {
		return fmt.Errorf("%w: %s.%s is %s (vector=%v), field is %s (%s)",
			ErrColumnType, table, c.Name, c.Type, c.Vector, f.Type, f.Kind)
	}
	return nil
}

func (b *Binding) Buffer() *record.Buffer { return b.buf }

// Bound lists bound column names in table order.
func (b *Binding) Bound() []string {
	var out []string
	for i, id := range b.fields {
		if id != record.NoField {
			out = append(out, b.t.cols[i].Name)
		}
	}
	return out
}

func (b *Binding) check(t *Table) error {
	if b.t != t || len(b.fields) != len(t.cols) {
		return fmt.Errorf("%w: binding does not match table %s", ErrColumnType, t.name)
	}
	return nil
}

// ReadRow loads row into the bound buffer, skipping columns inactive in v.
// Fields of skipped columns keep whatever the buffer held.
func (t *Table) ReadRow(row int, v *View, b *Binding) error {
	if err := b.check(t); err != nil {
		return err
	}
	for i, id := range b.fields {
		if !v.isActive(i) {
			id = record.NoField
		}
		b.scratch[i] = id
	}
	return t.withTuple(row, func(data []byte) error {
		return record.DecodeRow(t.cols, data, b.buf, b.scratch)
	})
}

// AppendRow stores the current contents of the bound buffer as a new row.
// Unbound columns are stored as absent.
func (t *Table) AppendRow(b *Binding) (int, error) {
	if err := b.check(t); err != nil {
		return -1, err
	}
	data, err := record.EncodeRow(t.cols, b.buf, b.fields)
	if err != nil {
		return -1, err
	}
	return t.insert(data)
}
