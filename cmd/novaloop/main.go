package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math"
	"math/rand"
	"os"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/spf13/afero"

	"github.com/tuannm99/novaloop/internal"
	"github.com/tuannm99/novaloop/internal/columnar"
	"github.com/tuannm99/novaloop/internal/engine"
	"github.com/tuannm99/novaloop/internal/heap"
	"github.com/tuannm99/novaloop/internal/looper"
	"github.com/tuannm99/novaloop/internal/record"
)

func main() {
	configPath := flag.String("config", "", "YAML config file")
	events := flag.Int("events", 5000, "number of synthetic events to write")
	selection := flag.String("select", "met > 40 && len(Jet_pt) >= 2", "selection predicate")
	flag.Parse()

	cfg, err := internal.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel()})))

	fs := afero.NewMemMapFs()
	if cfg.Storage.Mode == internal.StorageModeDisk {
		fs = afero.NewOsFs()
	}
	db := engine.NewDatabase(fs, cfg.Storage.Workdir, cfg.Storage.PoolCapacity)
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("db close error: %v", err)
		}
	}()

	var genOpts []record.GeneratorOption
	if cfg.Records.ArtifactDir != "" {
		genOpts = append(genOpts, record.WithArtifactDir(fs, cfg.Records.ArtifactDir))
	}
	gen := record.NewGenerator(genOpts...)

	vars, err := record.ParseAll("run/i", "met/F", "Jet[pt/F,eta/F]")
	if err != nil {
		log.Fatalf("schema: %v", err)
	}
	vars[2] = vars[2].(*record.Vector).WithMaxLength(16)

	if err := write(db, gen, cfg, vars, *events); err != nil {
		log.Fatalf("write: %v", err)
	}
	if err := read(db, gen, cfg, vars, *selection); err != nil {
		log.Fatalf("read: %v", err)
	}
}

func write(db *engine.Database, gen *record.Generator, cfg *internal.NovaLoopConfig, vars []record.Variable, n int) error {
	_ = db.DropTable(cfg.Looper.TableName)

	rng := rand.New(rand.NewSource(1))
	run := 0
	w, err := looper.NewWriter(vars, func(b *record.Buffer) error {
		l := b.Layout()
		b.SetUint64(l.MustLookup("run"), uint64(run))
		b.SetFloat64(l.MustLookup("met"), rng.ExpFloat64()*30)

		pt, eta := l.MustLookup("Jet_pt"), l.MustLookup("Jet_eta")
		nJet := rng.Intn(6)
		if err := b.SetLen(pt, nJet); err != nil {
			return err
		}
		for i := 0; i < nJet; i++ {
			_ = b.SetFloat64At(pt, i, 20+rng.ExpFloat64()*40)
			_ = b.SetFloat64At(eta, i, rng.NormFloat64()*2)
		}
		run++
		return nil
	},
		looper.WithTableName(cfg.Looper.TableName),
		looper.WithTableFactory(func(name string) (*heap.Table, error) { return db.CreateTable(name) }),
		looper.WithWriterGenerator(gen),
		looper.WithWriterProgress(cfg.Looper.ProgressEvery),
	)
	if err != nil {
		return err
	}
	defer func() { _ = w.CleanUpArtifacts() }()

	if err := w.Start(); err != nil {
		return err
	}
	for range n {
		if _, err := w.Run(); err != nil {
			return err
		}
	}
	slog.Info("wrote events", "table", w.Table().Name(), "rows", w.Table().RowCount(), "bytes", w.Table().SizeBytes())
	return w.Close()
}

func read(db *engine.Database, gen *record.Generator, cfg *internal.NovaLoopConfig, vars []record.Variable, selection string) error {
	tbl, err := db.OpenTable(cfg.Looper.TableName)
	if err != nil {
		return err
	}

	ht := record.NewScalar("ht", record.TypeFloat64).WithFiller(func(b *record.Buffer) (any, error) {
		pt := b.Layout().MustLookup("Jet_pt")
		var sum float64
		for i := 0; i < b.Len(pt); i++ {
			sum += b.Float64At(pt, i)
		}
		return sum, nil
	}, vars[2])

	r, err := looper.NewReader(tbl, vars[:2],
		looper.WithDerived(ht),
		looper.WithSelection(selection),
		looper.WithAllColumnsActive(false),
		looper.WithReaderGenerator(gen),
		looper.WithReaderProgress(cfg.Looper.ProgressEvery),
	)
	if err != nil {
		return err
	}
	defer func() { _ = r.CleanUpArtifacts() }()

	htID := r.Layout().MustLookup("ht")
	ranges := r.EventRanges(looper.SplitOptions{MaxRows: cfg.Looper.ChunkRows, MinChunks: 1})
	maxHT := math.Inf(-1)
	for _, rg := range ranges {
		r.SetEventRange(rg.Lo, rg.Hi)
		if err := r.Start(); err != nil {
			return err
		}
		for {
			ok, err := r.Run()
			if err != nil {
				return err
			}
			if !ok {
				break
			}
			maxHT = max(maxHT, r.Data().Float64(htID))
		}
	}
	fmt.Printf("selected %d of %d events in %d chunk(s), max HT %.1f\n", r.NEvents(), tbl.RowCount(), len(ranges), maxHT)

	r.SetEventRange(0, r.NEvents())
	skim, err := r.CloneRowSubset([]string{"run", "Jet_*"}, nil)
	if err != nil {
		return err
	}
	defer skim.Close()

	rec, err := columnar.Export(skim, memory.NewGoAllocator())
	if err != nil {
		return err
	}
	defer rec.Release()
	fmt.Printf("skim: %d rows, arrow schema %s\n", rec.NumRows(), rec.Schema())
	return tbl.Close()
}
