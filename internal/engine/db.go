package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/tuannm99/novaloop/internal/bufferpool"
	"github.com/tuannm99/novaloop/internal/catalog"
	"github.com/tuannm99/novaloop/internal/heap"
	"github.com/tuannm99/novaloop/internal/record"
	"github.com/tuannm99/novaloop/internal/storage"
)

var (
	ErrDatabaseClosed = errors.New("novaloop: database is closed")
	ErrTableExists    = errors.New("novaloop: table already exists")
	ErrTableNotFound  = errors.New("novaloop: table not found")
	ErrTableOpen      = errors.New("novaloop: table is open")
)

type DatabaseOperation interface {
	CreateTable(name string, cols ...record.Column) (*heap.Table, error)
	OpenTable(name string) (*heap.Table, error)
	DropTable(name string) error
	ListTables() ([]string, error)
	Close() error
}

var _ DatabaseOperation = (*Database)(nil)

// Database is a directory of heap tables. Each table has a page fileset, an
// overflow fileset ("<table>_ovf") and a JSON meta file, all under
// <dataDir>/tables.
type Database struct {
	fs           afero.Fs
	dataDir      string
	poolCapacity int
	sm           *storage.StorageManager
	cat          *catalog.Catalog

	mu     sync.Mutex
	open   map[string]*heap.Table
	closed bool
	log    *slog.Logger
}

// NewDatabase creates a database handle without touching the filesystem.
// poolCapacity <= 0 uses bufferpool.DefaultCapacity.
func NewDatabase(fs afero.Fs, dataDir string, poolCapacity int) *Database {
	dir := path.Join(dataDir, "tables")
	return &Database{
		fs:           fs,
		dataDir:      dataDir,
		poolCapacity: poolCapacity,
		sm:           storage.NewStorageManager(),
		cat:          catalog.New(fs, dir),
		open:         make(map[string]*heap.Table),
		log:          slog.Default().With("db", dataDir),
	}
}

func (db *Database) tableFileSet(name string) storage.LocalFileSet {
	return storage.LocalFileSet{FS: db.fs, Dir: db.cat.Dir(), Base: name}
}

func (db *Database) overflowFileSet(name string) storage.LocalFileSet {
	return storage.LocalFileSet{FS: db.fs, Dir: db.cat.Dir(), Base: name + "_ovf"}
}

// CreateTable creates an empty table. Columns may also be declared later,
// while the table is still empty.
func (db *Database) CreateTable(name string, cols ...record.Column) (*heap.Table, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil, ErrDatabaseClosed
	}
	ok, err := db.cat.Exists(name)
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, fmt.Errorf("%w: %s", ErrTableExists, name)
	}

	now := time.Now()
	meta := &catalog.TableMeta{
		Name:      name,
		FileBase:  name,
		Columns:   cols,
		CreatedAt: now,
	}
	if err := db.cat.Write(meta); err != nil {
		return nil, err
	}

	tbl, err := db.attach(meta, false)
	if err != nil {
		return nil, err
	}
	db.log.Info("engine: created table", "table", name, "columns", len(cols))
	return tbl, nil
}

// OpenTable opens an existing table. Opening a table that is already open
// returns the same handle.
func (db *Database) OpenTable(name string) (*heap.Table, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil, ErrDatabaseClosed
	}
	if tbl, ok := db.open[name]; ok {
		return tbl, nil
	}
	meta, err := db.cat.Read(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrTableNotFound, name)
		}
		return nil, err
	}
	return db.attach(meta, true)
}

func (db *Database) attach(meta *catalog.TableMeta, existing bool) (*heap.Table, error) {
	fs := db.tableFileSet(meta.FileBase)
	ovf, err := storage.NewOverflowManager(db.overflowFileSet(meta.FileBase))
	if err != nil {
		return nil, err
	}
	bp := bufferpool.NewPool(db.sm, fs, db.poolCapacity)

	var tbl *heap.Table
	if existing {
		tbl, err = heap.Open(meta.Name, meta.Columns, db.sm, fs, bp, ovf)
	} else {
		tbl, err = heap.NewTable(meta.Name, meta.Columns, db.sm, fs, bp, ovf)
	}
	if err != nil {
		_ = ovf.Close()
		return nil, err
	}
	if existing && meta.RowCount != tbl.RowCount() {
		db.log.Warn("engine: row count differs from meta",
			"table", meta.Name, "meta", meta.RowCount, "pages", tbl.RowCount())
	}

	created := meta.CreatedAt
	tbl.OnClose(func(t *heap.Table) error {
		db.mu.Lock()
		delete(db.open, t.Name())
		db.mu.Unlock()
		return db.syncMeta(t, created)
	})
	db.open[meta.Name] = tbl
	return tbl, nil
}

// syncMeta rewrites the meta file from the table's current state.
func (db *Database) syncMeta(t *heap.Table, created time.Time) error {
	meta := &catalog.TableMeta{
		Name:      t.Name(),
		FileBase:  t.Name(),
		PageCount: t.PageCount(),
		RowCount:  t.RowCount(),
		Columns:   t.Columns(),
		CreatedAt: created,
	}
	if err := db.cat.Write(meta); err != nil {
		return fmt.Errorf("engine: sync meta %s: %w", t.Name(), err)
	}
	return nil
}

// DropTable removes a closed table's files and metadata.
func (db *Database) DropTable(name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrDatabaseClosed
	}
	if _, ok := db.open[name]; ok {
		return fmt.Errorf("%w: %s", ErrTableOpen, name)
	}
	ok, err := db.cat.Exists(name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	if err := db.tableFileSet(name).RemoveAllSegments(); err != nil {
		return err
	}
	if err := db.overflowFileSet(name).RemoveAllSegments(); err != nil {
		return err
	}
	db.log.Info("engine: dropped table", "table", name)
	return db.cat.Remove(name)
}

func (db *Database) ListTables() ([]string, error) {
	return db.cat.List()
}

// Close closes every open table. Their close hooks write final metadata.
func (db *Database) Close() error {
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return nil
	}
	db.closed = true
	tables := make([]*heap.Table, 0, len(db.open))
	for _, t := range db.open {
		tables = append(tables, t)
	}
	db.mu.Unlock()

	var errs []error
	for _, t := range tables {
		errs = append(errs, t.Close())
	}
	return errors.Join(errs...)
}
