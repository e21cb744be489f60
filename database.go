package novaloop

import (
	"github.com/spf13/afero"

	"github.com/tuannm99/novaloop/internal/engine"
	"github.com/tuannm99/novaloop/internal/heap"
	"github.com/tuannm99/novaloop/internal/looper"
	"github.com/tuannm99/novaloop/internal/record"
)

// NewDatabase opens a table database rooted at dataDir on the OS
// filesystem.
func NewDatabase(dataDir string) *Database {
	return engine.NewDatabase(afero.NewOsFs(), dataDir, 0)
}

// NewMemDatabase keeps every table in memory.
func NewMemDatabase() *Database {
	return engine.NewDatabase(afero.NewMemMapFs(), "/", 0)
}

// Parse reads variable declarations such as "met/F" or "Jet[pt/F,eta/F]".
func Parse(specs ...string) ([]Variable, error) {
	return record.ParseAll(specs...)
}

func NewReader(tbl *Table, vars []Variable, opts ...looper.ReaderOption) (*Reader, error) {
	return looper.NewReader(tbl, vars, opts...)
}

func NewWriter(vars []Variable, fill RowFiller, opts ...looper.WriterOption) (*Writer, error) {
	return looper.NewWriter(vars, fill, opts...)
}

// WriteTo makes writers create their output tables in db.
func WriteTo(db *Database) looper.WriterOption {
	return looper.WithTableFactory(func(name string) (*heap.Table, error) {
		return db.CreateTable(name)
	})
}
