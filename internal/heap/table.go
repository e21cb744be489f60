package heap

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/expr-lang/expr/vm"

	"github.com/tuannm99/novaloop/internal/bufferpool"
	"github.com/tuannm99/novaloop/internal/record"
	"github.com/tuannm99/novaloop/internal/storage"
)

// Table is an append-only heap file of typed columns. Rows are addressed by
// their insertion index. A Table is not safe for concurrent use.
type Table struct {
	name string
	cols []record.Column
	idx  map[string]int

	sm  *storage.StorageManager
	fs  storage.FileSet
	bp  bufferpool.Manager
	ovf *storage.OverflowManager

	rows      []TID
	pageCount uint32
	sizeBytes int64

	progMu   sync.Mutex
	programs map[string]*vm.Program

	onClose []func(*Table) error
	closed  bool
	log     *slog.Logger
}

// NewTable creates an empty table over fs. Pages are created lazily.
func NewTable(
	name string,
	cols []record.Column,
	sm *storage.StorageManager,
	fs storage.FileSet,
	bp bufferpool.Manager,
	ovf *storage.OverflowManager,
) (*Table, error) {
	t := &Table{
		name:     name,
		idx:      make(map[string]int),
		sm:       sm,
		fs:       fs,
		bp:       bp,
		ovf:      ovf,
		programs: make(map[string]*vm.Program),
		log:      slog.Default().With("table", name),
	}
	for _, c := range cols {
		if err := t.addColumn(c); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Open attaches to an existing heap file and rebuilds the row directory by
// scanning its pages.
func Open(
	name string,
	cols []record.Column,
	sm *storage.StorageManager,
	fs storage.FileSet,
	bp bufferpool.Manager,
	ovf *storage.OverflowManager,
) (*Table, error) {
	t, err := NewTable(name, cols, sm, fs, bp, ovf)
	if err != nil {
		return nil, err
	}
	pageCount, err := sm.CountPages(fs)
	if err != nil {
		return nil, err
	}
	t.pageCount = pageCount

	for pageID := uint32(0); pageID < pageCount; pageID++ {
		p, err := bp.GetPage(pageID)
		if err != nil {
			return nil, err
		}
		hp := HeapPage{Page: p, Overflow: ovf}
		for slot := 0; slot < p.NumSlots(); slot++ {
			n, err := hp.TupleSize(slot)
			if err != nil {
				_ = bp.Unpin(p, false)
				return nil, fmt.Errorf("heap: open %s page %d slot %d: %w", name, pageID, slot, err)
			}
			t.rows = append(t.rows, TID{PageID: pageID, Slot: uint16(slot)})
			t.sizeBytes += int64(n)
		}
		_ = bp.Unpin(p, false)
	}
	t.log.Debug("heap: opened table", "pages", pageCount, "rows", len(t.rows))
	return t, nil
}

// NewMemTable creates a table whose pages live in an in-memory filesystem.
func NewMemTable(name string, cols []record.Column) (*Table, error) {
	sm := storage.NewStorageManager()
	fs := storage.NewMemFileSet(name)
	ovf, err := storage.NewOverflowManager(storage.NewMemFileSet(name + "_ovf"))
	if err != nil {
		return nil, err
	}
	return NewTable(name, cols, sm, fs, bufferpool.NewPool(sm, fs, bufferpool.DefaultCapacity), ovf)
}

func (t *Table) Name() string      { return t.name }
func (t *Table) RowCount() int     { return len(t.rows) }
func (t *Table) PageCount() uint32 { return t.pageCount }

// SizeBytes is the total encoded size of all rows.
func (t *Table) SizeBytes() int64 { return t.sizeBytes }

func (t *Table) Columns() []record.Column { return append([]record.Column(nil), t.cols...) }

func (t *Table) Column(name string) (record.Column, bool) {
	i, ok := t.idx[name]
	if !ok {
		return record.Column{}, false
	}
	return t.cols[i], true
}

func (t *Table) ColumnIndex(name string) (int, error) {
	i, ok := t.idx[name]
	if !ok {
		return -1, fmt.Errorf("%w: %q in table %s", ErrUnknownColumn, name, t.name)
	}
	return i, nil
}

// DeclareColumn adds a column. Only allowed while the table has no rows.
func (t *Table) DeclareColumn(c record.Column) error {
	if t.closed {
		return ErrTableClosed
	}
	if len(t.rows) > 0 {
		return fmt.Errorf("%w: %s has %d rows", ErrTableNotEmpty, t.name, len(t.rows))
	}
	if err := t.addColumn(c); err != nil {
		return err
	}
	t.progMu.Lock()
	clear(t.programs)
	t.progMu.Unlock()
	return nil
}

func (t *Table) addColumn(c record.Column) error {
	if c.Name == "" || !c.Type.Valid() {
		return fmt.Errorf("%w: bad column %q of type %d", ErrColumnType, c.Name, c.Type)
	}
	if _, dup := t.idx[c.Name]; dup {
		return fmt.Errorf("%w: %q in table %s", record.ErrDuplicateColumn, c.Name, t.name)
	}
	t.idx[c.Name] = len(t.cols)
	t.cols = append(t.cols, c)
	return nil
}

// OnClose registers fn to run after the final flush in Close.
func (t *Table) OnClose(fn func(*Table) error) {
	t.onClose = append(t.onClose, fn)
}

func (t *Table) tid(row int) (TID, error) {
	if row < 0 || row >= len(t.rows) {
		return TID{}, fmt.Errorf("%w: %d of %d", ErrRowOutOfRange, row, len(t.rows))
	}
	return t.rows[row], nil
}

// insert always prefers the last page; a full page starts a new one.
func (t *Table) insert(data []byte) (int, error) {
	if t.closed {
		return -1, ErrTableClosed
	}
	var pageID uint32
	if t.pageCount == 0 {
		t.pageCount = 1
	} else {
		pageID = t.pageCount - 1
	}

	for {
		p, err := t.bp.GetPage(pageID)
		if err != nil {
			return -1, err
		}
		hp := HeapPage{Page: p, Overflow: t.ovf}
		slot, err := hp.InsertTuple(data)
		if errors.Is(err, storage.ErrNoSpace) {
			_ = t.bp.Unpin(p, false)
			pageID = t.pageCount
			t.pageCount++
			t.log.Debug("heap: new page", "pageID", pageID)
			continue
		}
		if err != nil {
			_ = t.bp.Unpin(p, false)
			return -1, err
		}
		if err := t.bp.Unpin(p, true); err != nil {
			return -1, err
		}

		t.rows = append(t.rows, TID{PageID: pageID, Slot: uint16(slot)})
		t.sizeBytes += int64(len(data))
		return len(t.rows) - 1, nil
	}
}

// withTuple calls fn with the bytes of row while its page is pinned.
func (t *Table) withTuple(row int, fn func(data []byte) error) error {
	if t.closed {
		return ErrTableClosed
	}
	id, err := t.tid(row)
	if err != nil {
		return err
	}
	p, err := t.bp.GetPage(id.PageID)
	if err != nil {
		return err
	}
	defer func() { _ = t.bp.Unpin(p, false) }()

	data, err := HeapPage{Page: p, Overflow: t.ovf}.ReadTuple(int(id.Slot))
	if err != nil {
		return fmt.Errorf("heap: %s row %d: %w", t.name, row, err)
	}
	return fn(data)
}

// AppendValues stores one row of plain values, one per column; nil stores
// the column as absent.
func (t *Table) AppendValues(vals []any) (int, error) {
	data, err := record.EncodeValues(t.cols, vals)
	if err != nil {
		return -1, err
	}
	return t.insert(data)
}

// Values decodes row. Columns inactive in v (when non-nil) are left nil.
func (t *Table) Values(row int, v *View) ([]any, error) {
	var out []any
	err := t.withTuple(row, func(data []byte) error {
		var err error
		out, err = record.DecodeValues(t.cols, data, v.mask())
		return err
	})
	return out, err
}

// Scan visits every row in insertion order.
func (t *Table) Scan(v *View, fn func(row int, vals []any) error) error {
	for row := range t.rows {
		vals, err := t.Values(row, v)
		if err != nil {
			return err
		}
		if err := fn(row, vals); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) Flush() error {
	if t.closed {
		return nil
	}
	return t.bp.FlushAll()
}

// Close flushes pages, runs close hooks and releases the overflow codec.
// Closing twice is a no-op.
func (t *Table) Close() error {
	if t.closed {
		return nil
	}
	if err := t.bp.FlushAll(); err != nil {
		return err
	}
	t.closed = true

	var errs []error
	for _, fn := range t.onClose {
		errs = append(errs, fn(t))
	}
	if t.ovf != nil {
		errs = append(errs, t.ovf.Close())
	}
	t.log.Debug("heap: closed table", "rows", len(t.rows), "bytes", t.sizeBytes)
	return errors.Join(errs...)
}
