package record

import (
	"fmt"
	"strings"
	"unicode"
)

// Parse reads one variable declaration.
//
//	scalar: "name/tag"              e.g. "met_pt/F"
//	vector: "name[c1/t1,c2/t2,...]" e.g. "Jet[pt/F,eta/F]"
//
// Whitespace is ignored. Vectors get DefaultMaxLength.
func Parse(s string) (Variable, error) {
	s = stripSpaces(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty declaration", ErrSchemaSyntax)
	}
	if strings.ContainsAny(s, "[]") {
		return parseVector(s)
	}
	return parseScalar(s)
}

// ParseAll parses every spec, stopping at the first error.
func ParseAll(specs ...string) ([]Variable, error) {
	out := make([]Variable, 0, len(specs))
	for _, s := range specs {
		v, err := Parse(s)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// MustParse is Parse for declarations fixed at compile time.
func MustParse(s string) Variable {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Uses builds a Filler from fn and dependency declarations.
func Uses(fn FillFunc, specs ...string) (*Filler, error) {
	vars, err := ParseAll(specs...)
	if err != nil {
		return nil, err
	}
	return &Filler{Fn: fn, Uses: vars}, nil
}

func parseScalar(s string) (*Scalar, error) {
	if strings.Count(s, "/") != 1 {
		return nil, fmt.Errorf("%w: %q, format is 'name/type'", ErrSchemaSyntax, s)
	}
	name, tag, _ := strings.Cut(s, "/")
	if err := checkIdent(name); err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrSchemaSyntax, s, err)
	}
	t, err := ParseType(tag)
	if err != nil {
		return nil, fmt.Errorf("variable %q: %w", s, err)
	}
	return NewScalar(name, t), nil
}

func parseVector(s string) (*Vector, error) {
	open := strings.IndexByte(s, '[')
	if open < 0 || strings.Count(s, "[") != 1 || strings.Count(s, "]") != 1 || !strings.HasSuffix(s, "]") {
		return nil, fmt.Errorf("%w: %q, format is 'name[c1/t1,c2/t2,...]'", ErrSchemaSyntax, s)
	}
	name := s[:open]
	if err := checkIdent(name); err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrSchemaSyntax, s, err)
	}
	body := s[open+1 : len(s)-1]
	if body == "" {
		return nil, fmt.Errorf("%w: %q has no components", ErrSchemaSyntax, s)
	}

	parts := strings.Split(body, ",")
	comps := make([]*Scalar, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		c, err := parseScalar(p)
		if err != nil {
			return nil, fmt.Errorf("vector %q: %w", name, err)
		}
		if _, dup := seen[c.name]; dup {
			return nil, fmt.Errorf("%w: vector %q repeats component %q", ErrDuplicateColumn, name, c.name)
		}
		seen[c.name] = struct{}{}
		comps = append(comps, c)
	}
	return NewVector(name, comps...), nil
}

// checkIdent: first char letter or '_', rest letter/digit/'_'.
func checkIdent(id string) error {
	if id == "" {
		return fmt.Errorf("missing identifier")
	}
	for i, r := range id {
		if i == 0 {
			if !unicode.IsLetter(r) && r != '_' {
				return fmt.Errorf("invalid identifier %q", id)
			}
			continue
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return fmt.Errorf("invalid identifier %q", id)
		}
	}
	return nil
}

func stripSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
