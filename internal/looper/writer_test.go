package looper

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novaloop/internal/heap"
	"github.com/tuannm99/novaloop/internal/record"
)

func writerVars() []record.Variable {
	return []record.Variable{
		record.MustParse("i/I"),
		record.MustParse("Jet[pt/F]").(*record.Vector).WithMaxLength(4),
	}
}

// indexFiller writes the row index into "i" and i%5 jets.
func indexFiller() RowFiller {
	n := int64(0)
	return func(b *record.Buffer) error {
		l := b.Layout()
		b.SetInt64(l.MustLookup("i"), n)
		jets := l.MustLookup("Jet_pt")
		if err := b.SetLen(jets, int(n%5)); err != nil {
			return err
		}
		for j := 0; j < int(n%5); j++ {
			if err := b.SetFloat64At(jets, j, float64(j)); err != nil {
				return err
			}
		}
		n++
		return nil
	}
}

func runN(t *testing.T, w *Writer, n int) {
	t.Helper()
	require.NoError(t, w.Start())
	for range n {
		ok, err := w.Run()
		require.NoError(t, err)
		require.True(t, ok)
	}
}

func TestWriter_RoundTrip(t *testing.T) {
	w, err := NewWriter(writerVars(), indexFiller(), WithWriterGenerator(record.NewGenerator()))
	require.NoError(t, err)

	var names []string
	for _, c := range w.Table().Columns() {
		names = append(names, c.Name)
	}
	require.Equal(t, []string{"i", "nJet", "Jet_pt"}, names)
	require.Equal(t, DefaultTableName, w.Table().Name())

	runN(t, w, 25)
	tbl := w.Table()
	require.NoError(t, w.Close())
	require.Equal(t, 25, tbl.RowCount())
}

func TestWriter_ReadBack(t *testing.T) {
	w, err := NewWriter(writerVars(), indexFiller(), WithWriterGenerator(record.NewGenerator()))
	require.NoError(t, err)
	runN(t, w, 25)

	for i := 0; i < 25; i++ {
		vals, err := w.Table().Values(i, nil)
		require.NoError(t, err)
		require.Equal(t, int32(i), vals[0])
		require.EqualValues(t, i%5, vals[1])
		require.Len(t, vals[2], i%5)
	}

	// and through a reader
	r, err := NewReader(w.Table(), writerVars(), WithReaderGenerator(record.NewGenerator()))
	require.NoError(t, err)
	require.EqualValues(t, 25, r.NEvents())
	require.NoError(t, r.GoToPosition(9))
	require.Equal(t, []float32{0, 1, 2, 3}, r.Data().Values(r.Layout().MustLookup("Jet_pt")))
	require.NoError(t, w.Close())
}

func TestWriter_CapacityExceeded(t *testing.T) {
	w, err := NewWriter(writerVars(), func(b *record.Buffer) error {
		// bypass SetLen by writing the counter directly
		b.SetUint64(b.Layout().MustLookup("nJet"), 5)
		return nil
	}, WithWriterGenerator(record.NewGenerator()))
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Start())
	ok, err := w.Run()
	require.False(t, ok)
	require.ErrorIs(t, err, record.ErrCapacityExceeded)
	require.Equal(t, Finished, w.State())
	require.Equal(t, 0, w.Table().RowCount())

	_, err = w.Run()
	require.ErrorIs(t, err, record.ErrCapacityExceeded)
}

func TestWriter_CloneForReuse(t *testing.T) {
	g := record.NewGenerator()
	w1, err := NewWriter(writerVars(), indexFiller(), WithWriterGenerator(g))
	require.NoError(t, err)
	w2, err := w1.CloneForReuse(nil)
	require.NoError(t, err)
	require.Equal(t, 1, g.Compiles())
	require.Same(t, w1.Layout(), w2.Layout())
	require.NotSame(t, w1.Table(), w2.Table())
	require.NotSame(t, w1.Data(), w2.Data())

	runN(t, w1, 3)
	runN(t, w2, 7)
	require.Equal(t, 3, w1.Table().RowCount())
	require.Equal(t, 7, w2.Table().RowCount())

	// an external table with a compatible column already declared
	ext, err := heap.NewMemTable(DefaultTableName, []record.Column{{Name: "i", Type: record.TypeInt32}})
	require.NoError(t, err)
	w3, err := w1.CloneForReuse(ext)
	require.NoError(t, err)
	require.Same(t, ext, w3.Table())
	require.Len(t, ext.Columns(), 3)
	require.Equal(t, 1, g.Compiles())

	wrongName, err := heap.NewMemTable("Other", nil)
	require.NoError(t, err)
	_, err = w1.CloneForReuse(wrongName)
	require.ErrorIs(t, err, ErrInvalidArgument)

	wrongType, err := heap.NewMemTable(DefaultTableName, []record.Column{{Name: "i", Type: record.TypeFloat64}})
	require.NoError(t, err)
	_, err = w1.CloneForReuse(wrongType)
	require.ErrorIs(t, err, heap.ErrColumnType)

	id := w1.Layout().ID()
	require.Equal(t, 3, g.Refs(id))
	for _, w := range []*Writer{w1, w2, w3} {
		require.NoError(t, w.CleanUpArtifacts())
		require.NoError(t, w.Close())
	}
	require.Equal(t, 0, g.Refs(id))
}

func TestWriter_ArtifactsRemoved(t *testing.T) {
	fs := afero.NewMemMapFs()
	g := record.NewGenerator(record.WithArtifactDir(fs, "/tmp/records"))
	w, err := NewWriter(writerVars(), indexFiller(), WithWriterGenerator(g), WithTableName("Out"))
	require.NoError(t, err)
	require.Equal(t, "Out", w.Table().Name())

	p, ok := g.ArtifactPath(w.Layout().ID())
	require.True(t, ok)
	exists, err := afero.Exists(fs, p)
	require.NoError(t, err)
	require.True(t, exists)

	require.NoError(t, w.CleanUpArtifacts())
	exists, err = afero.Exists(fs, p)
	require.NoError(t, err)
	require.False(t, exists)
}

func TestWriter_InvalidArguments(t *testing.T) {
	_, err := NewWriter(nil, indexFiller())
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = NewWriter(writerVars(), nil)
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = NewWriter([]record.Variable{record.MustParse("x/F"), record.MustParse("x/D")}, indexFiller())
	require.ErrorIs(t, err, record.ErrDuplicateColumn)

	boom := func(string) (*heap.Table, error) { return nil, heap.ErrTableClosed }
	_, err = NewWriter(writerVars(), indexFiller(), WithTableFactory(boom))
	require.ErrorIs(t, err, heap.ErrTableClosed)
}

func TestWriter_ManyPagesThenChunkedRead(t *testing.T) {
	g := record.NewGenerator()
	vars := []record.Variable{
		record.MustParse("x/D"),
		record.MustParse("y/D"),
		record.MustParse("z/D"),
		record.MustParse("Jet[pt/F,eta/F]").(*record.Vector).WithMaxLength(8),
	}
	n := 0
	fill := func(b *record.Buffer) error {
		l := b.Layout()
		b.SetFloat64(l.MustLookup("x"), float64(n))
		b.SetFloat64(l.MustLookup("y"), float64(2*n))
		b.SetFloat64(l.MustLookup("z"), float64(3*n))
		pt, eta := l.MustLookup("Jet_pt"), l.MustLookup("Jet_eta")
		nj := n % 8
		if err := b.SetLen(pt, nj); err != nil {
			return err
		}
		for j := 0; j < nj; j++ {
			if err := b.SetFloat64At(pt, j, float64(n+j)); err != nil {
				return err
			}
			if err := b.SetFloat64At(eta, j, float64(-j)); err != nil {
				return err
			}
		}
		n++
		return nil
	}
	w, err := NewWriter(vars, fill, WithWriterGenerator(g), WithWriterProgress(0))
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	runN(t, w, 1000)
	require.Equal(t, 1000, w.Table().RowCount())
	require.Greater(t, w.Table().PageCount(), uint32(3))

	// x = 103, 111, ..., 999
	r, err := NewReader(w.Table(), vars,
		WithSelection("x >= 100 && len(Jet_pt) == 7"),
		WithReaderGenerator(g))
	require.NoError(t, err)
	require.EqualValues(t, 113, r.NEvents())

	ranges := r.EventRanges(SplitOptions{MaxRows: 50})
	require.Equal(t, []EventRange{{0, 50}, {50, 100}, {100, 113}}, ranges)

	l := r.Layout()
	x, pt, eta := l.MustLookup("x"), l.MustLookup("Jet_pt"), l.MustLookup("Jet_eta")
	k := 0
	for _, rng := range ranges {
		r.SetEventRange(rng.Lo, rng.Hi)
		require.NoError(t, r.Start())
		for {
			ok, err := r.Run()
			require.NoError(t, err)
			if !ok {
				break
			}
			want := float64(103 + 8*k)
			require.Equal(t, want, r.Data().Float64(x))
			require.Equal(t, 7, r.Data().Len(pt))
			require.Equal(t, want+6, r.Data().Float64At(pt, 6))
			require.Equal(t, -6.0, r.Data().Float64At(eta, 6))
			k++
		}
	}
	require.Equal(t, 113, k)
}

func TestWriter_ExplicitCounterWithEmptyVector(t *testing.T) {
	vars := []record.Variable{record.MustParse("nJet/I"), record.MustParse("Jet[pt/F]")}
	w, err := NewWriter(vars, func(*record.Buffer) error { return nil },
		WithWriterGenerator(record.NewGenerator()))
	require.NoError(t, err)
	defer w.Close()

	require.Equal(t, int32(0), w.Data().Get(w.Layout().MustLookup("nJet")))
	runN(t, w, 3)

	vals, err := w.Table().Values(2, nil)
	require.NoError(t, err)
	require.Equal(t, int32(0), vals[0])
	require.Empty(t, vals[1])
}

func TestWriter_GenerateOptions(t *testing.T) {
	g := record.NewGenerator()
	fill := func(b *record.Buffer) error {
		pt := b.Layout().MustLookup("Jet_pt")
		for j := 0; j < 6; j++ {
			if err := b.Append(pt, float32(j)); err != nil {
				return err
			}
		}
		return nil
	}
	growable := record.GenerateOptions{Growable: true}
	w, err := NewWriter(writerVars(), fill,
		WithWriterGenerator(g),
		WithWriterGenerateOptions(growable))
	require.NoError(t, err)
	defer w.Close()
	require.True(t, w.Layout().Growable())

	// more jets than the declared max length of 4
	runN(t, w, 3)
	vals, err := w.Table().Values(2, nil)
	require.NoError(t, err)
	require.EqualValues(t, 6, vals[1])
	require.Equal(t, []float32{0, 1, 2, 3, 4, 5}, vals[2])

	r, err := NewReader(w.Table(), writerVars(),
		WithReaderGenerator(g),
		WithReaderGenerateOptions(growable))
	require.NoError(t, err)
	require.NoError(t, r.GoToPosition(1))
	require.Equal(t, 6, r.Data().Len(r.Layout().MustLookup("Jet_pt")))

	fixed, err := NewReader(w.Table(), writerVars(), WithReaderGenerator(g))
	require.NoError(t, err)
	require.ErrorIs(t, fixed.GoToPosition(1), record.ErrCapacityExceeded)

	// without counters the output has no nJet column
	bare, err := NewWriter(writerVars(), indexFiller(),
		WithWriterGenerator(g),
		WithWriterGenerateOptions(record.GenerateOptions{Growable: true, NoCounters: true}))
	require.NoError(t, err)
	defer bare.Close()
	var names []string
	for _, c := range bare.Table().Columns() {
		names = append(names, c.Name)
	}
	require.Equal(t, []string{"i", "Jet_pt"}, names)
	runN(t, bare, 7)
	vals, err = bare.Table().Values(6, nil)
	require.NoError(t, err)
	require.Equal(t, []float32{0}, vals[1])

	_, err = NewWriter(writerVars(), indexFiller(),
		WithWriterGenerator(g),
		WithWriterGenerateOptions(record.GenerateOptions{NoCounters: true}))
	require.ErrorIs(t, err, record.ErrCompile)
}
