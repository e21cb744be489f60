package record

import (
	"fmt"
)

// FieldID addresses one field of a Layout. IDs follow flattened column order.
type FieldID int

// NoField marks an absent field reference.
const NoField FieldID = -1

type FieldKind uint8

const (
	FieldScalar FieldKind = iota + 1
	FieldArray
	FieldGrowable
)

func (k FieldKind) String() string {
	switch k {
	case FieldScalar:
		return "scalar"
	case FieldArray:
		return "array"
	case FieldGrowable:
		return "growable"
	default:
		return "unknown"
	}
}

// Field describes where one flattened column lives inside a buffer.
//
//   - FieldScalar: Size bytes at Offset.
//   - FieldArray: Cap*Size bytes at Offset; visible length is the Counter field.
//   - FieldGrowable: Offset indexes the buffer's container slots.
type Field struct {
	Name    string
	Type    Type
	Kind    FieldKind
	Offset  int
	Cap     int
	Counter FieldID
	Default string
}

type span struct{ off, n int }

// Layout is a compiled record type: an immutable, shareable description of
// a fixed-layout buffer. Buffers are instantiated with New.
type Layout struct {
	id         string
	shape      string
	growable   bool
	columns    []Column
	fields     []Field
	index      map[string]FieldID
	size       int
	containers int

	defaults   []byte
	initSpans  []span
	definition string
}

func (l *Layout) ID() string         { return l.id }
func (l *Layout) Shape() string      { return l.shape }
func (l *Layout) Growable() bool     { return l.growable }
func (l *Layout) Size() int          { return l.size }
func (l *Layout) NumFields() int     { return len(l.fields) }
func (l *Layout) Definition() string { return l.definition }

// Columns returns the flattened columns the layout was compiled from.
func (l *Layout) Columns() []Column { return append([]Column(nil), l.columns...) }

func (l *Layout) ColumnNames() []string {
	out := make([]string, len(l.columns))
	for i, c := range l.columns {
		out[i] = c.Name
	}
	return out
}

func (l *Layout) Field(id FieldID) Field { return l.fields[id] }

func (l *Layout) Fields() []Field { return append([]Field(nil), l.fields...) }

func (l *Layout) Lookup(name string) (FieldID, error) {
	id, ok := l.index[name]
	if !ok {
		return NoField, fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	return id, nil
}

// MustLookup panics on unknown names; meant for fillers whose fields are
// known to be part of the schema.
func (l *Layout) MustLookup(name string) FieldID {
	id, err := l.Lookup(name)
	if err != nil {
		panic(err)
	}
	return id
}

// New instantiates a buffer of this layout, already initialized.
func (l *Layout) New() *Buffer {
	b := &Buffer{
		layout: l,
		data:   make([]byte, l.size),
	}
	if l.containers > 0 {
		b.containers = make([][]byte, l.containers)
	}
	b.Init()
	return b
}

// compileLayout turns flattened columns into a Layout. All problems are
// collected into one CompileError.
func compileLayout(id, shape string, cols []Column, growable bool) (*Layout, error) {
	l := &Layout{
		id:       id,
		shape:    shape,
		growable: growable,
		columns:  append([]Column(nil), cols...),
		fields:   make([]Field, 0, len(cols)),
		index:    make(map[string]FieldID, len(cols)),
	}
	var diags []string

	if len(cols) == 0 {
		diags = append(diags, "no columns")
	}

	for _, c := range cols {
		if !c.Type.Valid() {
			diags = append(diags, fmt.Sprintf("%s: invalid type %d", c.Name, c.Type))
			continue
		}
		if _, dup := l.index[c.Name]; dup {
			diags = append(diags, fmt.Sprintf("%s: duplicate field", c.Name))
			continue
		}
		f := Field{Name: c.Name, Type: c.Type, Counter: NoField, Default: c.Default}
		switch {
		case !c.Vector:
			f.Kind = FieldScalar
			f.Offset = l.size
			l.size += c.Type.Size()
		case growable:
			f.Kind = FieldGrowable
			f.Offset = l.containers
			l.containers++
		default:
			if c.MaxLength <= 0 {
				diags = append(diags, fmt.Sprintf("%s: vector needs a max length for fixed arrays", c.Name))
				continue
			}
			f.Kind = FieldArray
			f.Cap = c.MaxLength
			f.Offset = l.size
			l.size += c.MaxLength * c.Type.Size()
		}
		l.index[c.Name] = FieldID(len(l.fields))
		l.fields = append(l.fields, f)
	}

	// counters resolve after every field is known
	for i := range l.fields {
		f := &l.fields[i]
		if f.Kind == FieldScalar {
			continue
		}
		c := l.columns[l.columnIndex(f.Name)]
		cid, ok := l.index[c.Counter]
		switch {
		case ok && l.fields[cid].Kind == FieldScalar && l.fields[cid].Type.IsInteger():
			f.Counter = cid
			// an empty vector has length 0, whatever the counter's type default
			if l.fields[cid].Default == "" {
				l.fields[cid].Default = "0"
			}
		case ok:
			diags = append(diags, fmt.Sprintf("%s: counter %s must be an integer scalar", f.Name, c.Counter))
		case f.Kind == FieldArray:
			diags = append(diags, fmt.Sprintf("%s: fixed array has no counter field %s", f.Name, c.Counter))
		}
	}

	l.defaults = make([]byte, l.size)
	for _, f := range l.fields {
		if f.Kind != FieldScalar {
			continue
		}
		lit := f.Default
		if lit == "" {
			lit = f.Type.DefaultLiteral()
		}
		if err := encodeLiteral(f.Type, lit, l.defaults[f.Offset:f.Offset+f.Type.Size()]); err != nil {
			diags = append(diags, fmt.Sprintf("%s: %v", f.Name, err))
			continue
		}
		l.addInitSpan(f.Offset, f.Type.Size())
	}

	if len(diags) == 0 {
		def, err := renderDefinition(l)
		if err != nil {
			diags = append(diags, err.Error())
		}
		l.definition = def
	}
	if len(diags) > 0 {
		return nil, &CompileError{Shape: shape, Diagnostics: diags}
	}
	return l, nil
}

func (l *Layout) columnIndex(name string) int {
	for i, c := range l.columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// addInitSpan merges adjacent scalar regions so Init copies as few runs as
// possible.
func (l *Layout) addInitSpan(off, n int) {
	if k := len(l.initSpans); k > 0 {
		last := &l.initSpans[k-1]
		if last.off+last.n == off {
			last.n += n
			return
		}
	}
	l.initSpans = append(l.initSpans, span{off: off, n: n})
}
