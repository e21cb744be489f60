package looper

import (
	"fmt"
	"log/slog"

	"github.com/tuannm99/novaloop/internal/heap"
	"github.com/tuannm99/novaloop/internal/record"
)

// DefaultTableName names Writer output tables unless WithTableName is set.
const DefaultTableName = "Events"

// RowFiller populates the buffer for one output row. The buffer has been
// reset to defaults before each call.
type RowFiller func(b *record.Buffer) error

// Writer appends one output row per Run, filled by a RowFiller.
type Writer struct {
	*Loop

	cfg     writerConfig
	layout  *record.Layout
	data    *record.Buffer
	table   *heap.Table
	binding *heap.Binding
	fill    RowFiller
	arrays  []record.FieldID
	held    []string
	log     *slog.Logger
}

type writeCursor struct{ w *Writer }

func (c writeCursor) Initialize() (int64, error)      { return 0, nil }
func (c writeCursor) Advance(pos int64) (bool, error) { return c.w.advance(pos) }

// NewWriter compiles a buffer for vars and creates an empty output table
// with one column per flattened field.
func NewWriter(vars []record.Variable, fill RowFiller, opts ...WriterOption) (*Writer, error) {
	cfg := writerConfig{name: DefaultTableName, factory: memTableFactory, progress: DefaultProgressEvery}
	for _, o := range opts {
		o(&cfg)
	}
	if len(vars) == 0 {
		return nil, fmt.Errorf("%w: no variables to write", ErrInvalidArgument)
	}
	if fill == nil {
		return nil, fmt.Errorf("%w: nil row filler", ErrInvalidArgument)
	}
	if cfg.gen == nil {
		cfg.gen = record.DefaultGenerator()
	}
	if cfg.log == nil {
		cfg.log = slog.Default()
	}

	s, err := record.NewSchema(vars...)
	if err != nil {
		return nil, err
	}
	layout, err := cfg.gen.Generate(s, cfg.genOpts)
	if err != nil {
		return nil, err
	}
	return newWriter(cfg, layout, fill, nil)
}

// newWriter builds a writer instance around an already compiled layout.
func newWriter(cfg writerConfig, layout *record.Layout, fill RowFiller, table *heap.Table) (*Writer, error) {
	if table == nil {
		t, err := cfg.factory(cfg.name)
		if err != nil {
			return nil, err
		}
		table = t
	}
	cfg.gen.Acquire(layout)

	w := &Writer{
		cfg:    cfg,
		layout: layout,
		data:   layout.New(),
		table:  table,
		fill:   fill,
		held:   []string{layout.ID()},
		log:    cfg.log.With("table", table.Name()),
	}
	w.Loop = NewLoop(writeCursor{w})

	// Layout columns already put each counter before its components.
	for _, c := range layout.Columns() {
		if _, ok := table.Column(c.Name); ok {
			continue
		}
		if err := table.DeclareColumn(c); err != nil {
			_ = w.CleanUpArtifacts()
			return nil, err
		}
	}
	b, err := table.Bind(w.data, layout.ColumnNames()...)
	if err != nil {
		_ = w.CleanUpArtifacts()
		return nil, err
	}
	w.binding = b

	for i, f := range layout.Fields() {
		if f.Kind == record.FieldArray {
			w.arrays = append(w.arrays, record.FieldID(i))
		}
	}
	return w, nil
}

func (w *Writer) advance(pos int64) (bool, error) {
	if w.cfg.progress > 0 && pos > 0 && pos%w.cfg.progress == 0 {
		w.log.Info("looper: writer progress", "position", pos)
	}
	w.data.Init()
	if err := w.fill(w.data); err != nil {
		return false, fmt.Errorf("looper: fill row %d: %w", pos, err)
	}
	for _, id := range w.arrays {
		f := w.layout.Field(id)
		if n := w.data.Len(id); n > f.Cap {
			return false, fmt.Errorf("%w: %s has %d elements at row %d, capacity %d",
				record.ErrCapacityExceeded, f.Name, n, pos, f.Cap)
		}
	}
	if _, err := w.table.AppendRow(w.binding); err != nil {
		return false, err
	}
	return true, nil
}

// CloneForReuse returns a writer sharing this writer's compiled layout,
// writing to external or, when nil, to a fresh table from the factory.
// An external table must carry the writer's table name; columns it lacks
// are declared and existing ones must match.
func (w *Writer) CloneForReuse(external *heap.Table) (*Writer, error) {
	if external != nil && external.Name() != w.cfg.name {
		return nil, fmt.Errorf("%w: table %q, writer writes %q", ErrInvalidArgument, external.Name(), w.cfg.name)
	}
	return newWriter(w.cfg, w.layout, w.fill, external)
}

func (w *Writer) Data() *record.Buffer   { return w.data }
func (w *Writer) Layout() *record.Layout { return w.layout }
func (w *Writer) Table() *heap.Table     { return w.table }

// Close flushes and closes the output table.
func (w *Writer) Close() error {
	w.log.Debug("looper: writer closing", "rows", w.table.RowCount())
	return w.table.Close()
}

func (w *Writer) CleanUpArtifacts() error {
	var first error
	for _, id := range w.held {
		if err := w.cfg.gen.Release(id); err != nil && first == nil {
			first = err
		}
	}
	w.held = nil
	return first
}
