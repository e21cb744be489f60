package record

import (
	"fmt"
	"math"
	"strings"
	"text/template"
	"unicode"
)

var definitionTmpl = template.Must(template.New("record").Parse(`// Code generated by novaloop record generator. DO NOT EDIT.
// shape: {{.Shape}}

package records
{{if .NeedsMath}}
import "math"
{{end}}
// {{.Name}} has {{len .Fields}} fields, {{.Size}} fixed bytes.
type {{.Name}} struct {
{{- range .Fields}}
	{{.Ident}} {{.Decl}}{{if .Note}} // {{.Note}}{{end}}
{{- end}}
}

// Init resets scalars to their defaults and empties growable fields.
// Fixed arrays keep their contents; their counters go back to zero.
func (r *{{.Name}}) Init() {
{{- range .Fields}}{{if .Reset}}
	r.{{.Ident}} = {{.Reset}}
{{- end}}{{end}}
}
`))

type defField struct {
	Ident string
	Decl  string
	Note  string
	Reset string
}

type defData struct {
	Name      string
	Shape     string
	Size      int
	NeedsMath bool
	Fields    []defField
}

// renderDefinition prints the Go type equivalent to l. It is what a
// compiled record would look like as source; buffers never depend on it.
func renderDefinition(l *Layout) (string, error) {
	d := defData{
		Name:  "Record_" + strings.ReplaceAll(l.id, "-", ""),
		Shape: l.shape,
		Size:  l.size,
	}
	for _, f := range l.fields {
		df := defField{Ident: goIdent(f.Name)}
		switch f.Kind {
		case FieldScalar:
			df.Decl = f.Type.GoType()
			lit, usesMath := goLiteral(f.Type, decodeValue(f.Type, l.defaults[f.Offset:f.Offset+f.Type.Size()]))
			df.Reset = lit
			d.NeedsMath = d.NeedsMath || usesMath
		case FieldArray:
			df.Decl = fmt.Sprintf("[%d]%s", f.Cap, f.Type.GoType())
			df.Note = "length in " + goIdent(l.fields[f.Counter].Name)
		case FieldGrowable:
			df.Decl = "[]" + f.Type.GoType()
			df.Reset = "r." + df.Ident + "[:0]"
			if f.Counter != NoField {
				df.Note = "mirrored by " + goIdent(l.fields[f.Counter].Name)
			}
		}
		d.Fields = append(d.Fields, df)
	}

	var sb strings.Builder
	if err := definitionTmpl.Execute(&sb, d); err != nil {
		return "", fmt.Errorf("render definition: %w", err)
	}
	return sb.String(), nil
}

// goIdent exports a column name: "met_pt" -> "Met_pt", "_x" -> "X_x".
func goIdent(name string) string {
	r := []rune(name)
	switch {
	case len(r) == 0:
		return "X"
	case r[0] == '_':
		return "X" + name
	default:
		r[0] = unicode.ToUpper(r[0])
		return string(r)
	}
}

func goLiteral(t Type, v any) (string, bool) {
	switch x := v.(type) {
	case bool:
		return fmt.Sprint(x), false
	case float32:
		return floatLiteral(t, float64(x))
	case float64:
		return floatLiteral(t, x)
	default:
		return fmt.Sprintf("%s(%v)", t.GoType(), x), false
	}
}

func floatLiteral(t Type, f float64) (string, bool) {
	var expr string
	switch {
	case math.IsNaN(f):
		expr = "math.NaN()"
	case math.IsInf(f, 1):
		expr = "math.Inf(1)"
	case math.IsInf(f, -1):
		expr = "math.Inf(-1)"
	default:
		return fmt.Sprintf("%s(%v)", t.GoType(), f), false
	}
	if t == TypeFloat64 {
		return expr, true
	}
	return "float32(" + expr + ")", true
}
