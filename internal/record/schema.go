package record

import (
	"fmt"
	"slices"
	"strings"
)

// Schema is an ordered set of variables whose flattened column names are
// unique.
type Schema struct {
	vars []Variable
}

// NewSchema validates vars as one schema.
func NewSchema(vars ...Variable) (Schema, error) {
	s := Schema{vars: append([]Variable(nil), vars...)}
	if err := s.validate(); err != nil {
		return Schema{}, err
	}
	return s, nil
}

// Union flattens several variable lists into one schema, keeping the first
// occurrence of each name. Re-declaring a name with a different shape is an
// error.
func Union(lists ...[]Variable) (Schema, error) {
	var out []Variable
	byName := make(map[string]Variable)
	for _, list := range lists {
		for _, v := range list {
			if v == nil {
				return Schema{}, fmt.Errorf("%w: nil variable", ErrSchemaSyntax)
			}
			prev, ok := byName[v.Name()]
			if !ok {
				byName[v.Name()] = v
				out = append(out, v)
				continue
			}
			if !sameShape(prev, v) {
				return Schema{}, fmt.Errorf("%w: %q declared as %s and %s", ErrDuplicateColumn, v.Name(), prev, v)
			}
		}
	}
	return NewSchema(out...)
}

func sameShape(a, b Variable) bool {
	if a.Kind() != b.Kind() {
		return false
	}
	return slices.Equal(a.Columns(true), b.Columns(true))
}

func (s Schema) Variables() []Variable { return append([]Variable(nil), s.vars...) }
func (s Schema) Len() int              { return len(s.vars) }

// Lookup finds a declared variable by name.
func (s Schema) Lookup(name string) (Variable, bool) {
	for _, v := range s.vars {
		if v.Name() == name {
			return v, true
		}
	}
	return nil, false
}

// Columns flattens the schema. A vector's counter precedes its components;
// a scalar declared with the counter's name takes the counter's place.
func (s Schema) Columns(withCounters bool) []Column {
	explicit := make(map[string]bool, len(s.vars))
	for _, v := range s.vars {
		if v.Kind() == KindScalar {
			explicit[v.Name()] = true
		}
	}

	var cols []Column
	for _, v := range s.vars {
		vec, ok := v.(*Vector)
		if !ok {
			cols = append(cols, v.Columns(withCounters)...)
			continue
		}
		withCounter := withCounters && !explicit[vec.CounterName()]
		cols = append(cols, vec.Columns(withCounter)...)
	}
	return cols
}

// ColumnNames is Columns reduced to names.
func (s Schema) ColumnNames(withCounters bool) []string {
	cols := s.Columns(withCounters)
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}

func (s Schema) validate() error {
	seen := make(map[string]struct{})
	for _, v := range s.vars {
		if v == nil {
			return fmt.Errorf("%w: nil variable", ErrSchemaSyntax)
		}
		if err := checkIdent(v.Name()); err != nil {
			return fmt.Errorf("%w: %v", ErrSchemaSyntax, err)
		}
		if vec, ok := v.(*Vector); ok && len(vec.comps) == 0 {
			return fmt.Errorf("%w: vector %q has no components", ErrSchemaSyntax, vec.name)
		}
	}
	for _, c := range s.Columns(true) {
		if _, dup := seen[c.Name]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateColumn, c.Name)
		}
		seen[c.Name] = struct{}{}
	}
	return nil
}

func (s Schema) String() string {
	parts := make([]string, len(s.vars))
	for i, v := range s.vars {
		parts[i] = v.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
