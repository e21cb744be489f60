package looper

import (
	"fmt"
	"log/slog"

	"github.com/tuannm99/novaloop/internal/heap"
	"github.com/tuannm99/novaloop/internal/record"
)

type derivedField struct {
	v  *record.Scalar
	id record.FieldID
}

// Reader loads table rows into a record buffer, one row per Run. Rows come
// in storage order, or in selection order when a predicate is set, limited
// to the current event range.
//
// The selection and the event count are fixed when the reader is built.
// Start begins a new pass over them and never re-evaluates the predicate,
// so rows appended to the table afterwards are not visited; build a new
// Reader to see them.
type Reader struct {
	*Loop

	table   *heap.Table
	gen     *record.Generator
	layout  *record.Layout
	data    *record.Buffer
	binding *heap.Binding
	view    *heap.View
	derived []derivedField
	needed  []string

	selection string
	selIdx    []uint32 // nil: storage order
	nEvents   int64
	rng       EventRange

	allActive bool
	progress  int64
	held      []string
	log       *slog.Logger
}

type readCursor struct{ r *Reader }

func (c readCursor) Initialize() (int64, error)      { return c.r.rng.Lo, nil }
func (c readCursor) Advance(pos int64) (bool, error) { return c.r.advance(pos) }

// NewReader builds a buffer for vars plus the derived variables and their
// dependencies, binds it to table and materializes the selection.
func NewReader(table *heap.Table, vars []record.Variable, opts ...ReaderOption) (*Reader, error) {
	cfg := readerConfig{allActive: true, progress: DefaultProgressEvery}
	for _, o := range opts {
		o(&cfg)
	}
	if table == nil {
		return nil, fmt.Errorf("%w: nil table", ErrInvalidArgument)
	}
	if len(vars) == 0 {
		return nil, fmt.Errorf("%w: no variables to read", ErrInvalidArgument)
	}
	if cfg.gen == nil {
		cfg.gen = record.DefaultGenerator()
	}
	if cfg.log == nil {
		cfg.log = slog.Default()
	}

	for _, v := range cfg.derived {
		if s, ok := v.(*record.Scalar); !ok || !s.IsDerived() {
			return nil, fmt.Errorf("%w: derived variable %v needs a scalar with a filler", ErrInvalidArgument, v)
		}
	}
	var plain, uses, derived []record.Variable
	seen := make(map[string]bool)
	for _, v := range append(append([]record.Variable(nil), vars...), cfg.derived...) {
		if v == nil {
			return nil, fmt.Errorf("%w: nil variable", ErrInvalidArgument)
		}
		s, ok := v.(*record.Scalar)
		if !ok || !s.IsDerived() {
			plain = append(plain, v)
			continue
		}
		if seen[s.Name()] {
			continue
		}
		seen[s.Name()] = true
		derived = append(derived, s)
		uses = append(uses, s.Filler().Uses...)
	}

	readSchema, err := record.Union(plain, uses)
	if err != nil {
		return nil, err
	}
	full, err := record.Union(plain, uses, derived)
	if err != nil {
		return nil, err
	}
	layout, err := cfg.gen.Generate(full, cfg.genOpts)
	if err != nil {
		return nil, err
	}
	cfg.gen.Acquire(layout)

	r := &Reader{
		table:     table,
		gen:       cfg.gen,
		layout:    layout,
		data:      layout.New(),
		selection: cfg.selection,
		allActive: cfg.allActive,
		progress:  cfg.progress,
		held:      []string{layout.ID()},
		log:       cfg.log.With("table", table.Name()),
	}
	r.Loop = NewLoop(readCursor{r})

	// counters are left unbound: decoding a vector sets its counter
	r.needed = readSchema.ColumnNames(false)
	r.binding, err = table.Bind(r.data, r.needed...)
	if err != nil {
		_ = r.CleanUpArtifacts()
		return nil, err
	}
	for _, d := range derived {
		r.derived = append(r.derived, derivedField{v: d.(*record.Scalar), id: layout.MustLookup(d.Name())})
	}

	if err := r.materialize(); err != nil {
		_ = r.CleanUpArtifacts()
		return nil, err
	}
	return r, nil
}

// materialize evaluates the selection over every column, then narrows the
// view to what the reader loads per row.
func (r *Reader) materialize() error {
	r.selIdx = nil
	if r.selection != "" {
		bm, err := r.table.EvaluatePredicate(r.selection)
		if err != nil {
			return err
		}
		r.selIdx = append([]uint32{}, bm.ToArray()...)
	}

	r.view = r.table.NewView(r.allActive)
	if !r.allActive {
		for _, name := range r.needed {
			if err := r.view.SetColumnActive(name, true); err != nil {
				return err
			}
		}
	}

	if r.selIdx != nil {
		r.nEvents = int64(len(r.selIdx))
	} else {
		r.nEvents = int64(r.table.RowCount())
	}
	r.rng = EventRange{0, r.nEvents}
	r.log.Debug("looper: reader initialized",
		"selection", r.selection, "events", r.nEvents, "active", len(r.view.ActiveColumns()))
	return nil
}

func (r *Reader) row(pos int64) int {
	if r.selIdx != nil {
		return int(r.selIdx[pos])
	}
	return int(pos)
}

func (r *Reader) advance(pos int64) (bool, error) {
	if pos >= r.rng.Hi {
		return false, nil
	}
	if pos == 0 {
		r.log.Info("looper: reader starting", "position", pos, "events", r.nEvents)
	} else if r.progress > 0 && pos%r.progress == 0 {
		r.log.Info("looper: reader progress", "position", pos, "events", r.nEvents)
	}
	if err := r.load(pos); err != nil {
		return false, err
	}
	return true, nil
}

// load fills the buffer from the row at pos and computes derived values.
func (r *Reader) load(pos int64) error {
	r.data.Init()
	if err := r.table.ReadRow(r.row(pos), r.view, r.binding); err != nil {
		return err
	}
	for _, d := range r.derived {
		v, err := d.v.Filler().Fn(r.data)
		if err != nil {
			return fmt.Errorf("looper: derived %s at position %d: %w", d.v.Name(), pos, err)
		}
		if err := r.data.Set(d.id, v); err != nil {
			return fmt.Errorf("looper: derived %s: %w", d.v.Name(), err)
		}
	}
	return nil
}

// GoToPosition loads the row at pos directly, outside of Run.
func (r *Reader) GoToPosition(pos int64) error {
	if pos < 0 || pos >= r.nEvents {
		return fmt.Errorf("%w: position %d of %d", ErrInvalidArgument, pos, r.nEvents)
	}
	r.Loop.pos = pos
	return r.load(pos)
}

// SetEventRange limits iteration to [lo, hi), clamped to [0, nEvents].
func (r *Reader) SetEventRange(lo, hi int64) EventRange {
	old := r.rng
	hi = min(max(hi, 0), r.nEvents)
	lo = min(max(lo, 0), hi)
	r.rng = EventRange{lo, hi}
	r.log.Debug("looper: set event range", "range", r.rng, "was", old)
	return r.rng
}

// SetEventList replaces the selection with rows, iterated in the given
// order, and resets the range to cover all of them.
func (r *Reader) SetEventList(rows []uint32) error {
	n := r.table.RowCount()
	for _, row := range rows {
		if int(row) >= n {
			return fmt.Errorf("%w: row %d of %d", ErrInvalidArgument, row, n)
		}
	}
	r.selIdx = append(make([]uint32, 0, len(rows)), rows...)
	r.nEvents = int64(len(rows))
	r.rng = EventRange{0, r.nEvents}
	r.log.Debug("looper: set event list", "range", r.rng)
	return nil
}

// ReduceEventRange keeps the first 1/factor of the current range.
func (r *Reader) ReduceEventRange(factor int64) error {
	if factor <= 0 {
		return fmt.Errorf("%w: reduction factor %d", ErrInvalidArgument, factor)
	}
	old := r.rng
	r.rng.Hi = r.rng.Lo + r.rng.Len()/factor
	r.log.Debug("looper: reduced event range", "range", r.rng, "was", old)
	return nil
}

// EventRanges splits [0, nEvents). MaxBytes is measured against the table
// size scaled to the selected fraction of rows.
func (r *Reader) EventRanges(opts SplitOptions) []EventRange {
	total := r.table.SizeBytes()
	if n := int64(r.table.RowCount()); n > 0 && r.nEvents != n {
		total = total * r.nEvents / n
	}
	return SplitEventRanges(r.nEvents, total, opts)
}

// rangeRows lists the table rows of the current range in reading order.
func (r *Reader) rangeRows() []uint32 {
	out := make([]uint32, 0, r.rng.Len())
	for pos := r.rng.Lo; pos < r.rng.Hi; pos++ {
		out = append(out, uint32(r.row(pos)))
	}
	return out
}

// CloneRowSubset copies the rows of the current range, restricted to
// columns, into dst or into a new in-memory table named like the source.
// No columns means all of them. Counters of copied vector components come
// along. The reader's own active columns are left untouched.
func (r *Reader) CloneRowSubset(columns []string, dst *heap.Table) (*heap.Table, error) {
	tmp := r.table.NewView(len(columns) == 0)
	for _, name := range columns {
		if err := tmp.SetColumnActive(name, true); err != nil {
			return nil, err
		}
	}
	var cols []record.Column
	for _, name := range tmp.ActiveColumns() {
		c, _ := r.table.Column(name)
		if c.Vector && c.Counter != "" && !tmp.Active(c.Counter) {
			if _, ok := r.table.Column(c.Counter); ok {
				_ = tmp.SetColumnActive(c.Counter, true)
			}
		}
	}
	for _, name := range tmp.ActiveColumns() {
		c, _ := r.table.Column(name)
		cols = append(cols, c)
	}

	if dst == nil {
		t, err := heap.NewMemTable(r.table.Name(), cols)
		if err != nil {
			return nil, err
		}
		dst = t
	} else {
		for _, c := range cols {
			if _, ok := dst.Column(c.Name); ok {
				continue
			}
			if err := dst.DeclareColumn(c); err != nil {
				return nil, err
			}
		}
	}

	n, err := r.table.CopyRows(dst, r.rangeRows(), tmp)
	if err != nil {
		return nil, err
	}
	r.log.Debug("looper: cloned row subset", "rows", n, "columns", len(cols), "range", r.rng)
	return dst, nil
}

// Data is the buffer rows are loaded into.
func (r *Reader) Data() *record.Buffer    { return r.data }
func (r *Reader) Layout() *record.Layout  { return r.layout }
func (r *Reader) Table() *heap.Table      { return r.table }
func (r *Reader) NEvents() int64          { return r.nEvents }
func (r *Reader) Range() EventRange       { return r.rng }
func (r *Reader) ActiveColumns() []string { return r.view.ActiveColumns() }
func (r *Reader) Selection() string       { return r.selection }

// CleanUpArtifacts releases the layouts this reader holds. The buffer must
// not be used afterwards.
func (r *Reader) CleanUpArtifacts() error {
	var first error
	for _, id := range r.held {
		if err := r.gen.Release(id); err != nil && first == nil {
			first = err
		}
	}
	r.held = nil
	return first
}
