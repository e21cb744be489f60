package heap

import (
	"fmt"
	"strings"

	"github.com/RoaringBitmap/roaring"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/tuannm99/novaloop/internal/record"
)

// EvaluatePredicate returns the rows for which pred holds, in ascending
// order. pred is an expr-lang boolean expression over column names, e.g.
// "met > 50 && len(Jet_pt) >= 2". An empty predicate selects every row.
// Absent values evaluate as the zero value of their column.
func (t *Table) EvaluatePredicate(pred string) (*roaring.Bitmap, error) {
	bm := roaring.New()
	if strings.TrimSpace(pred) == "" {
		bm.AddRange(0, uint64(len(t.rows)))
		return bm, nil
	}

	prog, err := t.program(pred)
	if err != nil {
		return nil, err
	}

	env := t.zeroEnv()
	err = t.Scan(nil, func(row int, vals []any) error {
		for i, c := range t.cols {
			if vals[i] != nil {
				env[c.Name] = vals[i]
			} else {
				env[c.Name] = zeroValue(c)
			}
		}
		out, err := expr.Run(prog, env)
		if err != nil {
			return fmt.Errorf("%w: %q at row %d: %v", ErrPredicate, pred, row, err)
		}
		if ok, _ := out.(bool); ok {
			bm.Add(uint32(row))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	t.log.Debug("heap: predicate evaluated", "pred", pred, "rows", len(t.rows), "selected", bm.GetCardinality())
	return bm, nil
}

// program compiles pred once per table schema.
func (t *Table) program(pred string) (*vm.Program, error) {
	t.progMu.Lock()
	defer t.progMu.Unlock()
	if p, ok := t.programs[pred]; ok {
		return p, nil
	}
	p, err := expr.Compile(pred, expr.Env(t.zeroEnv()), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrPredicate, pred, err)
	}
	t.programs[pred] = p
	return p, nil
}

// zeroEnv maps every column to a zero value of its Go type, giving the
// compiler the types to check against.
func (t *Table) zeroEnv() map[string]any {
	env := make(map[string]any, len(t.cols))
	for _, c := range t.cols {
		env[c.Name] = zeroValue(c)
	}
	return env
}

func zeroValue(c record.Column) any {
	if c.Vector {
		return c.Type.EmptySlice()
	}
	return c.Type.Zero()
}
