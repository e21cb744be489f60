package looper

import (
	"log/slog"

	"github.com/tuannm99/novaloop/internal/heap"
	"github.com/tuannm99/novaloop/internal/record"
)

// DefaultProgressEvery is how often, in rows, loops log their position.
const DefaultProgressEvery = 10000

type readerConfig struct {
	derived   []record.Variable
	selection string
	allActive bool
	gen       *record.Generator
	genOpts   record.GenerateOptions
	log       *slog.Logger
	progress  int64
}

type ReaderOption func(*readerConfig)

// WithDerived adds variables computed per row by their filler.
func WithDerived(vars ...record.Variable) ReaderOption {
	return func(c *readerConfig) { c.derived = append(c.derived, vars...) }
}

// WithSelection restricts the reader to rows matching pred.
func WithSelection(pred string) ReaderOption {
	return func(c *readerConfig) { c.selection = pred }
}

// WithAllColumnsActive controls whether every table column is loaded per
// row (the default) or only the ones the reader needs.
func WithAllColumnsActive(on bool) ReaderOption {
	return func(c *readerConfig) { c.allActive = on }
}

func WithReaderGenerator(g *record.Generator) ReaderOption {
	return func(c *readerConfig) { c.gen = g }
}

// WithReaderGenerateOptions selects the layout flavour of the reader's
// buffer, e.g. growable containers for vectors longer than their declared
// max length.
func WithReaderGenerateOptions(o record.GenerateOptions) ReaderOption {
	return func(c *readerConfig) { c.genOpts = o }
}

func WithReaderLogger(l *slog.Logger) ReaderOption {
	return func(c *readerConfig) { c.log = l }
}

// WithReaderProgress logs the position every n rows; n <= 0 disables it.
func WithReaderProgress(n int64) ReaderOption {
	return func(c *readerConfig) { c.progress = n }
}

// TableFactory creates the empty output table of a Writer.
type TableFactory func(name string) (*heap.Table, error)

type writerConfig struct {
	name     string
	factory  TableFactory
	gen      *record.Generator
	genOpts  record.GenerateOptions
	log      *slog.Logger
	progress int64
}

type WriterOption func(*writerConfig)

// WithTableName names the output table. The default is "Events".
func WithTableName(name string) WriterOption {
	return func(c *writerConfig) { c.name = name }
}

// WithTableFactory sets where output tables come from. The default is an
// in-memory table.
func WithTableFactory(f TableFactory) WriterOption {
	return func(c *writerConfig) { c.factory = f }
}

func WithWriterGenerator(g *record.Generator) WriterOption {
	return func(c *writerConfig) { c.gen = g }
}

// WithWriterGenerateOptions selects the layout flavour of the writer's
// buffer. Without counters the output table has no "n<vector>" columns.
func WithWriterGenerateOptions(o record.GenerateOptions) WriterOption {
	return func(c *writerConfig) { c.genOpts = o }
}

func WithWriterLogger(l *slog.Logger) WriterOption {
	return func(c *writerConfig) { c.log = l }
}

func WithWriterProgress(n int64) WriterOption {
	return func(c *writerConfig) { c.progress = n }
}

func memTableFactory(name string) (*heap.Table, error) {
	return heap.NewMemTable(name, nil)
}
