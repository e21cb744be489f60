package heap

import (
	"fmt"
	"path"
)

// View is one reader's column activation state over a table. Inactive
// columns are skipped when rows are decoded. Views are cheap and
// independent: changing one never affects another.
type View struct {
	t      *Table
	active []bool
}

// NewView returns a view with every column active (all) or none.
func (t *Table) NewView(all bool) *View {
	v := &View{t: t, active: make([]bool, len(t.cols))}
	if all {
		for i := range v.active {
			v.active[i] = true
		}
	}
	return v
}

// SetColumnActive toggles the columns matching name, which may be an exact
// column name, "*" or a path.Match pattern such as "Jet_*".
func (v *View) SetColumnActive(name string, on bool) error {
	v.grow()
	if i, ok := v.t.idx[name]; ok {
		v.active[i] = on
		return nil
	}
	matched := false
	for i, c := range v.t.cols {
		ok, err := path.Match(name, c.Name)
		if err != nil {
			return fmt.Errorf("%w: pattern %q: %v", ErrUnknownColumn, name, err)
		}
		if ok {
			v.active[i] = on
			matched = true
		}
	}
	if !matched {
		return fmt.Errorf("%w: %q in table %s", ErrUnknownColumn, name, v.t.name)
	}
	return nil
}

func (v *View) Active(name string) bool {
	i, ok := v.t.idx[name]
	return ok && i < len(v.active) && v.active[i]
}

// ActiveColumns lists active column names in table order.
func (v *View) ActiveColumns() []string {
	var out []string
	for i, on := range v.active {
		if on {
			out = append(out, v.t.cols[i].Name)
		}
	}
	return out
}

func (v *View) Clone() *View {
	return &View{t: v.t, active: append([]bool(nil), v.active...)}
}

// grow covers columns declared after the view was made; they start
// inactive.
func (v *View) grow() {
	for len(v.active) < len(v.t.cols) {
		v.active = append(v.active, false)
	}
}

// mask is the decode mask; a nil view means every column.
func (v *View) mask() []bool {
	if v == nil {
		return nil
	}
	v.grow()
	return v.active
}

func (v *View) isActive(i int) bool {
	if v == nil {
		return true
	}
	return i < len(v.active) && v.active[i]
}
