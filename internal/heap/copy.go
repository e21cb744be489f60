package heap

import "fmt"

// CopyRows appends the given rows of t to dst. Columns are matched by name;
// dst columns that t lacks, or that are inactive in v, are stored absent.
func (t *Table) CopyRows(dst *Table, rows []uint32, v *View) (int, error) {
	src := make([]int, len(dst.cols))
	for j, c := range dst.cols {
		i, ok := t.idx[c.Name]
		if !ok {
			src[j] = -1
			continue
		}
		if sc := t.cols[i]; sc.Type != c.Type || sc.Vector != c.Vector {
			return 0, fmt.Errorf("%w: copy %s.%s into %s", ErrColumnType, t.name, c.Name, dst.name)
		}
		src[j] = i
	}

	out := make([]any, len(dst.cols))
	n := 0
	for _, row := range rows {
		vals, err := t.Values(int(row), v)
		if err != nil {
			return n, err
		}
		for j, i := range src {
			out[j] = nil
			if i >= 0 {
				out[j] = vals[i]
			}
		}
		if _, err := dst.AppendValues(out); err != nil {
			return n, fmt.Errorf("heap: copy row %d into %s: %w", row, dst.name, err)
		}
		n++
	}
	t.log.Debug("heap: copied rows", "dst", dst.name, "rows", n)
	return n, nil
}
