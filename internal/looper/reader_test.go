package looper

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novaloop/internal/heap"
	"github.com/tuannm99/novaloop/internal/record"
)

var eventColumns = []record.Column{
	{Name: "run", Type: record.TypeUint32},
	{Name: "pt", Type: record.TypeFloat32},
	{Name: "nJet", Type: record.TypeUint32},
	{Name: "Jet_pt", Type: record.TypeFloat32, Vector: true, Counter: "nJet", MaxLength: 10},
	{Name: "Jet_eta", Type: record.TypeFloat32, Vector: true, Counter: "nJet", MaxLength: 10},
	{Name: "weight", Type: record.TypeFloat64},
}

// eventTable has n rows; row i has run=i, pt=i and i%3 jets.
func eventTable(t *testing.T, n int) *heap.Table {
	t.Helper()
	tbl, err := heap.NewMemTable("Events", eventColumns)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tbl.Close() })
	for i := 0; i < n; i++ {
		nj := i % 3
		pts := make([]float32, nj)
		etas := make([]float32, nj)
		for j := range pts {
			pts[j] = float32(i + j)
			etas[j] = float32(j)
		}
		_, err := tbl.AppendValues([]any{i, i, nj, pts, etas, 0.5})
		require.NoError(t, err)
	}
	return tbl
}

func eventVars() []record.Variable {
	return []record.Variable{
		record.MustParse("run/i"),
		record.MustParse("pt/F"),
		record.MustParse("Jet[pt/F,eta/F]").(*record.Vector).WithMaxLength(10),
	}
}

// drain runs a full pass and returns the run numbers read.
func drain(t *testing.T, r *Reader) []uint32 {
	t.Helper()
	require.NoError(t, r.Start())
	run := r.Layout().MustLookup("run")
	var out []uint32
	for {
		ok, err := r.Run()
		require.NoError(t, err)
		if !ok {
			break
		}
		out = append(out, r.Data().Get(run).(uint32))
	}
	ok, err := r.Run()
	require.False(t, ok)
	require.NoError(t, err)
	return out
}

func TestReader_ReadsAllRows(t *testing.T) {
	tbl := eventTable(t, 50)
	r, err := NewReader(tbl, eventVars(), WithReaderGenerator(record.NewGenerator()))
	require.NoError(t, err)
	require.EqualValues(t, 50, r.NEvents())
	require.Equal(t, EventRange{0, 50}, r.Range())

	require.NoError(t, r.Start())
	l := r.Layout()
	for i := 0; i < 50; i++ {
		ok, err := r.Run()
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, float64(i), r.Data().Float64(l.MustLookup("pt")))
		require.Equal(t, i%3, r.Data().Len(l.MustLookup("Jet_pt")))
		require.EqualValues(t, i%3, r.Data().Get(l.MustLookup("nJet")))
		if i%3 == 2 {
			require.Equal(t, []float32{float32(i), float32(i + 1)}, r.Data().Values(l.MustLookup("Jet_pt")))
			require.Equal(t, []float32{0, 1}, r.Data().Values(l.MustLookup("Jet_eta")))
		}
	}
	ok, err := r.Run()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestReader_SelectionCount(t *testing.T) {
	tbl := eventTable(t, 1000)
	r, err := NewReader(tbl, eventVars(),
		WithSelection("run % 25 == 0"),
		WithReaderGenerator(record.NewGenerator()))
	require.NoError(t, err)
	require.EqualValues(t, 40, r.NEvents())

	runs := drain(t, r)
	require.Len(t, runs, 40)
	for i, run := range runs {
		require.EqualValues(t, 25*i, run)
	}
}

func TestReader_ChunkedMatchesDirect(t *testing.T) {
	tbl := eventTable(t, 1000)
	vars := []record.Variable{
		record.MustParse("pt/F"),
		record.MustParse("Jet[pt/F,eta/F]").(*record.Vector).WithMaxLength(10),
		record.MustParse("run/i"),
	}
	r, err := NewReader(tbl, vars,
		WithSelection("pt >= 500 && run % 10 == 3 && run < 900"),
		WithReaderGenerator(record.NewGenerator()))
	require.NoError(t, err)
	require.EqualValues(t, 40, r.NEvents())

	ranges := r.EventRanges(SplitOptions{MaxRows: 15})
	require.Equal(t, []EventRange{{0, 15}, {15, 30}, {30, 40}}, ranges)

	r.SetEventRange(0, 40)
	direct := drain(t, r)
	require.Len(t, direct, 40)

	var chunked []uint32
	for _, rng := range ranges {
		r.SetEventRange(rng.Lo, rng.Hi)
		chunked = append(chunked, drain(t, r)...)
	}
	require.Equal(t, direct, chunked)
}

func TestReader_SetEventRange(t *testing.T) {
	tbl := eventTable(t, 30)
	r, err := NewReader(tbl, eventVars(), WithReaderGenerator(record.NewGenerator()))
	require.NoError(t, err)

	for _, c := range []struct{ lo, hi int64 }{{0, 30}, {5, 17}, {29, 30}, {10, 10}} {
		r.SetEventRange(c.lo, c.hi)
		runs := drain(t, r)
		require.Len(t, runs, int(c.hi-c.lo))
		if len(runs) > 0 {
			require.EqualValues(t, c.lo, runs[0])
		}
	}

	require.Equal(t, EventRange{20, 30}, r.SetEventRange(20, 1000))
	require.Equal(t, EventRange{0, 5}, r.SetEventRange(-3, 5))
	require.Equal(t, EventRange{5, 5}, r.SetEventRange(8, 5))
}

func TestReader_EventListAndReduce(t *testing.T) {
	tbl := eventTable(t, 30)
	r, err := NewReader(tbl, eventVars(), WithReaderGenerator(record.NewGenerator()))
	require.NoError(t, err)

	require.NoError(t, r.SetEventList([]uint32{7, 3, 21, 4}))
	require.EqualValues(t, 4, r.NEvents())
	require.Equal(t, []uint32{7, 3, 21, 4}, drain(t, r))
	require.ErrorIs(t, r.SetEventList([]uint32{30}), ErrInvalidArgument)

	require.NoError(t, r.SetEventList(nil))
	require.EqualValues(t, 0, r.NEvents())
	require.Empty(t, drain(t, r))

	r2, err := NewReader(tbl, eventVars(), WithReaderGenerator(record.NewGenerator()))
	require.NoError(t, err)
	r2.SetEventRange(10, 30)
	require.NoError(t, r2.ReduceEventRange(4))
	require.Equal(t, EventRange{10, 15}, r2.Range())
	require.ErrorIs(t, r2.ReduceEventRange(0), ErrInvalidArgument)

	require.NoError(t, r2.GoToPosition(12))
	require.EqualValues(t, 12, r2.Data().Get(r2.Layout().MustLookup("run")))
	require.ErrorIs(t, r2.GoToPosition(30), ErrInvalidArgument)
}

func TestReader_DerivedAndActiveColumns(t *testing.T) {
	tbl := eventTable(t, 10)
	sumPt := record.NewScalar("sumJetPt", record.TypeFloat64).WithFiller(func(b *record.Buffer) (any, error) {
		id := b.Layout().MustLookup("Jet_pt")
		var s float64
		for i := 0; i < b.Len(id); i++ {
			s += b.Float64At(id, i)
		}
		return s, nil
	}, record.MustParse("Jet[pt/F]").(*record.Vector).WithMaxLength(10))

	r, err := NewReader(tbl, []record.Variable{record.MustParse("run/i")},
		WithDerived(sumPt),
		WithAllColumnsActive(false),
		WithReaderGenerator(record.NewGenerator()))
	require.NoError(t, err)
	require.Equal(t, []string{"run", "Jet_pt"}, r.ActiveColumns())

	require.NoError(t, r.GoToPosition(5))
	// row 5: jets at 5 and 6
	require.Equal(t, 11.0, r.Data().Float64(r.Layout().MustLookup("sumJetPt")))
	_, err = r.Layout().Lookup("weight")
	require.ErrorIs(t, err, record.ErrUnknownField)
}

func TestReader_InvalidArguments(t *testing.T) {
	tbl := eventTable(t, 1)
	g := record.NewGenerator()

	_, err := NewReader(nil, eventVars(), WithReaderGenerator(g))
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = NewReader(tbl, nil, WithReaderGenerator(g))
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = NewReader(tbl, eventVars(), WithDerived(record.MustParse("pt/F")), WithReaderGenerator(g))
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewReader(tbl, []record.Variable{record.MustParse("pt/D")}, WithReaderGenerator(g))
	require.ErrorIs(t, err, heap.ErrColumnType)
	_, err = NewReader(tbl, []record.Variable{record.MustParse("nope/F")}, WithReaderGenerator(g))
	require.ErrorIs(t, err, heap.ErrUnknownColumn)

	// failed construction releases its layout
	ok, err := NewReader(tbl, eventVars(), WithReaderGenerator(g))
	require.NoError(t, err)
	_, err = NewReader(tbl, eventVars(), WithSelection("pt >"), WithReaderGenerator(g))
	require.ErrorIs(t, err, heap.ErrPredicate)
	require.Equal(t, 1, g.Refs(ok.Layout().ID()))
}

func TestReader_EmptyTable(t *testing.T) {
	tbl := eventTable(t, 0)
	r, err := NewReader(tbl, eventVars(), WithSelection("pt > 1"), WithReaderGenerator(record.NewGenerator()))
	require.NoError(t, err)
	require.EqualValues(t, 0, r.NEvents())
	require.NoError(t, r.Start())
	ok, err := r.Run()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestReader_CloneRowSubsetKeepsActiveColumns(t *testing.T) {
	tbl := eventTable(t, 100)
	r, err := NewReader(tbl, []record.Variable{record.MustParse("run/i")},
		WithSelection("run % 2 == 0"),
		WithAllColumnsActive(false),
		WithReaderGenerator(record.NewGenerator()))
	require.NoError(t, err)
	before := r.ActiveColumns()
	r.SetEventRange(10, 15)

	out, err := r.CloneRowSubset([]string{"pt", "Jet_*"}, nil)
	require.NoError(t, err)
	require.Equal(t, before, r.ActiveColumns())
	require.Equal(t, "Events", out.Name())
	require.Equal(t, 5, out.RowCount())

	var names []string
	for _, c := range out.Columns() {
		names = append(names, c.Name)
	}
	require.Equal(t, []string{"pt", "nJet", "Jet_pt", "Jet_eta"}, names)

	vals, err := out.Values(0, nil)
	require.NoError(t, err)
	require.Equal(t, float32(20), vals[0])
	require.EqualValues(t, 2, vals[1])
	require.Equal(t, []float32{20, 21}, vals[2])

	// all columns into a caller table
	dst, err := heap.NewMemTable("Events", nil)
	require.NoError(t, err)
	defer dst.Close()
	got, err := r.CloneRowSubset(nil, dst)
	require.NoError(t, err)
	require.Same(t, dst, got)
	require.Len(t, dst.Columns(), len(eventColumns))
	require.Equal(t, 5, dst.RowCount())
	require.Equal(t, before, r.ActiveColumns())

	_, err = r.CloneRowSubset([]string{"Muon_*"}, nil)
	require.ErrorIs(t, err, heap.ErrUnknownColumn)
}

func TestReader_CleanUpArtifacts(t *testing.T) {
	tbl := eventTable(t, 3)
	g := record.NewGenerator()
	r1, err := NewReader(tbl, eventVars(), WithReaderGenerator(g))
	require.NoError(t, err)
	r2, err := NewReader(tbl, eventVars(), WithReaderGenerator(g))
	require.NoError(t, err)
	require.Equal(t, 1, g.Compiles())
	require.Same(t, r1.Layout(), r2.Layout())

	id := r1.Layout().ID()
	require.Equal(t, 2, g.Refs(id))
	require.NoError(t, r1.CleanUpArtifacts())
	require.Equal(t, 1, g.Refs(id))
	require.NoError(t, r2.CleanUpArtifacts())
	require.Equal(t, 0, g.Refs(id))
	require.NoError(t, r2.CleanUpArtifacts())
}

func TestReader_SelectionFixedAtConstruction(t *testing.T) {
	tbl := eventTable(t, 20)
	g := record.NewGenerator()
	r, err := NewReader(tbl, eventVars(), WithSelection("run % 5 == 0"), WithReaderGenerator(g))
	require.NoError(t, err)
	require.Equal(t, []uint32{0, 5, 10, 15}, drain(t, r))

	for i := 20; i < 30; i++ {
		_, err := tbl.AppendValues([]any{i, i, 0, []float32{}, []float32{}, 0.5})
		require.NoError(t, err)
	}

	// a new pass does not re-evaluate the selection
	require.Equal(t, []uint32{0, 5, 10, 15}, drain(t, r))
	require.EqualValues(t, 4, r.NEvents())

	fresh, err := NewReader(tbl, eventVars(), WithSelection("run % 5 == 0"), WithReaderGenerator(g))
	require.NoError(t, err)
	require.Equal(t, []uint32{0, 5, 10, 15, 20, 25}, drain(t, fresh))
}
