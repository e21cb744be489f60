package record

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// DefaultMaxLength is the in-memory capacity of a vector that does not
// declare one.
const DefaultMaxLength = 100

type Kind uint8

const (
	KindScalar Kind = iota + 1
	KindVector
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindVector:
		return "vector"
	default:
		return "unknown"
	}
}

// Variable is one declared entry of a schema. A scalar flattens to a single
// column, a vector to one column per component plus its counter.
type Variable interface {
	Name() string
	Kind() Kind
	Columns(withCounter bool) []Column
	String() string
}

// FillFunc computes the value of a derived variable from the current
// contents of a bound buffer.
type FillFunc func(b *Buffer) (any, error)

// Filler marks a variable as derived. Uses lists the variables the function
// reads; readers make sure they are loaded.
type Filler struct {
	Fn   FillFunc
	Uses []Variable
}

// Column is one flattened, typed column.
type Column struct {
	Name      string `json:"name"`
	Type      Type   `json:"type"`
	Vector    bool   `json:"vector,omitempty"`
	Counter   string `json:"counter,omitempty"`
	MaxLength int    `json:"max_length,omitempty"`
	Default   string `json:"default,omitempty"`
}

func (c Column) String() string {
	if c.Vector {
		return fmt.Sprintf("%s[%s]/%s", c.Name, c.Counter, c.Type.Tag())
	}
	return c.Name + "/" + c.Type.Tag()
}

// ---- Scalar ----

var _ Variable = (*Scalar)(nil)

type Scalar struct {
	name   string
	typ    Type
	def    string
	filler *Filler
}

func NewScalar(name string, t Type) *Scalar {
	return &Scalar{name: name, typ: t}
}

// UniqueFloat returns a float32 scalar with a process-unique name.
func UniqueFloat() *Scalar { return NewScalar(uniqueName("float"), TypeFloat32) }

// UniqueInt returns an int32 scalar with a process-unique name.
func UniqueInt() *Scalar { return NewScalar(uniqueName("int"), TypeInt32) }

func uniqueName(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "_")
}

func (s *Scalar) Name() string { return s.name }
func (s *Scalar) Kind() Kind   { return KindScalar }
func (s *Scalar) Type() Type   { return s.typ }

// Default is the literal the field resets to on Init.
func (s *Scalar) Default() string {
	if s.def != "" {
		return s.def
	}
	return s.typ.DefaultLiteral()
}

func (s *Scalar) Filler() *Filler { return s.filler }
func (s *Scalar) IsDerived() bool { return s.filler != nil && s.filler.Fn != nil }

// WithDefault returns a copy of s resetting to lit instead of the type
// default.
func (s *Scalar) WithDefault(lit string) *Scalar {
	cp := *s
	cp.def = lit
	return &cp
}

// WithFiller returns a derived copy of s computed by fn from uses.
func (s *Scalar) WithFiller(fn FillFunc, uses ...Variable) *Scalar {
	cp := *s
	cp.filler = &Filler{Fn: fn, Uses: append([]Variable(nil), uses...)}
	return &cp
}

func (s *Scalar) Columns(bool) []Column {
	return []Column{{Name: s.name, Type: s.typ, Default: s.def}}
}

func (s *Scalar) String() string {
	if s.IsDerived() {
		return fmt.Sprintf("%s(scalar, type: %s, filler)", s.name, s.typ.Tag())
	}
	return fmt.Sprintf("%s(scalar, type: %s)", s.name, s.typ.Tag())
}

// ---- Vector ----

var _ Variable = (*Vector)(nil)

type Vector struct {
	name      string
	comps     []*Scalar
	maxLength int
	noCounter bool
}

// NewVector declares a vector whose components carry short names ("pt");
// they flatten to "<name>_<component>".
func NewVector(name string, comps ...*Scalar) *Vector {
	return &Vector{
		name:      name,
		comps:     append([]*Scalar(nil), comps...),
		maxLength: DefaultMaxLength,
	}
}

func (v *Vector) Name() string { return v.name }
func (v *Vector) Kind() Kind   { return KindVector }

func (v *Vector) Components() []*Scalar { return append([]*Scalar(nil), v.comps...) }
func (v *Vector) MaxLength() int        { return v.maxLength }
func (v *Vector) HasCounter() bool      { return !v.noCounter }

// CounterName is the conventional counter column "n<vector>".
func (v *Vector) CounterName() string { return "n" + v.name }

// Counter is the implicit uint32 counter variable.
func (v *Vector) Counter() *Scalar { return NewScalar(v.CounterName(), TypeUint32) }

func (v *Vector) ComponentName(c *Scalar) string { return v.name + "_" + c.name }

func (v *Vector) WithMaxLength(n int) *Vector {
	cp := *v
	cp.maxLength = n
	return &cp
}

// WithoutCounter drops the implicit counter column. A counter must then be
// declared explicitly when fixed arrays are generated.
func (v *Vector) WithoutCounter() *Vector {
	cp := *v
	cp.noCounter = true
	return &cp
}

func (v *Vector) Columns(withCounter bool) []Column {
	cols := make([]Column, 0, len(v.comps)+1)
	if withCounter && !v.noCounter {
		cols = append(cols, Column{Name: v.CounterName(), Type: TypeUint32})
	}
	for _, c := range v.comps {
		cols = append(cols, Column{
			Name:      v.ComponentName(c),
			Type:      c.typ,
			Vector:    true,
			Counter:   v.CounterName(),
			MaxLength: v.maxLength,
			Default:   c.def,
		})
	}
	return cols
}

func (v *Vector) String() string {
	parts := make([]string, len(v.comps))
	for i, c := range v.comps {
		parts[i] = c.String()
	}
	return fmt.Sprintf("%s(vector[%d], components: %s)", v.name, v.maxLength, strings.Join(parts, ","))
}
