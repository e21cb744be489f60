package engine

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novaloop/internal/record"
)

var cols = []record.Column{
	{Name: "run", Type: record.TypeUint32},
	{Name: "nMuon", Type: record.TypeUint32},
	{Name: "Muon_pt", Type: record.TypeFloat32, Vector: true, Counter: "nMuon", MaxLength: 4},
}

func TestDatabase_CreateReopen(t *testing.T) {
	fs := afero.NewMemMapFs()
	db := NewDatabase(fs, "/data", 4)

	tbl, err := db.CreateTable("Events", cols...)
	require.NoError(t, err)
	for i := 0; i < 500; i++ {
		_, err := tbl.AppendValues([]any{i, 2, []float32{1, float32(i)}})
		require.NoError(t, err)
	}
	_, err = db.CreateTable("Events")
	require.ErrorIs(t, err, ErrTableExists)
	require.ErrorIs(t, db.DropTable("Events"), ErrTableOpen)
	require.NoError(t, tbl.Close())

	meta, err := db.cat.Read("Events")
	require.NoError(t, err)
	require.Equal(t, 500, meta.RowCount)
	require.Equal(t, tbl.PageCount(), meta.PageCount)
	require.Equal(t, cols, meta.Columns)

	raw, err := afero.ReadFile(fs, "/data/tables/Events.meta.json")
	require.NoError(t, err)
	require.Contains(t, string(raw), `"type": "F"`)
	require.NoError(t, db.Close())

	db2 := NewDatabase(fs, "/data", 4)
	defer db2.Close()
	again, err := db2.OpenTable("Events")
	require.NoError(t, err)
	require.Equal(t, 500, again.RowCount())
	same, err := db2.OpenTable("Events")
	require.NoError(t, err)
	require.Same(t, again, same)

	vals, err := again.Values(321, nil)
	require.NoError(t, err)
	require.Equal(t, uint32(321), vals[0])
	require.Equal(t, []float32{1, 321}, vals[2])
}

func TestDatabase_DeclareThenSync(t *testing.T) {
	fs := afero.NewMemMapFs()
	db := NewDatabase(fs, "/data", 0)
	defer db.Close()

	tbl, err := db.CreateTable("Out")
	require.NoError(t, err)
	require.NoError(t, tbl.DeclareColumn(record.Column{Name: "x", Type: record.TypeFloat64}))
	_, err = tbl.AppendValues([]any{2.5})
	require.NoError(t, err)
	require.NoError(t, tbl.Close())

	meta, err := db.cat.Read("Out")
	require.NoError(t, err)
	require.Len(t, meta.Columns, 1)
	require.Equal(t, 1, meta.RowCount)
}

func TestDatabase_ListAndDrop(t *testing.T) {
	fs := afero.NewMemMapFs()
	db := NewDatabase(fs, "/data", 0)

	names, err := db.ListTables()
	require.NoError(t, err)
	require.Empty(t, names)

	for _, n := range []string{"b", "a"} {
		tbl, err := db.CreateTable(n, cols...)
		require.NoError(t, err)
		_, err = tbl.AppendValues([]any{1, 0, []float32{}})
		require.NoError(t, err)
		require.NoError(t, tbl.Close())
	}
	names, err = db.ListTables()
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, names)

	require.NoError(t, db.DropTable("a"))
	ok, err := afero.Exists(fs, "/data/tables/a")
	require.NoError(t, err)
	require.False(t, ok)
	require.ErrorIs(t, db.DropTable("a"), ErrTableNotFound)
	_, err = db.OpenTable("a")
	require.ErrorIs(t, err, ErrTableNotFound)

	require.NoError(t, db.Close())
	_, err = db.OpenTable("b")
	require.ErrorIs(t, err, ErrDatabaseClosed)
}
