package record

import (
	"fmt"
	"log/slog"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	locking "github.com/tuannm99/novaloop/internal/lock"
)

// GenerateOptions selects the flavour of a compiled layout.
type GenerateOptions struct {
	// NoCounters leaves implicit "n<vector>" counters out. Fixed arrays
	// still need a counter, so this only makes sense with Growable or with
	// explicitly declared counters.
	NoCounters bool
	// Growable turns vector components into growable containers instead of
	// fixed arrays of MaxLength.
	Growable bool
}

type GeneratorOption func(*Generator)

// WithArtifactDir writes the rendered definition of every compiled layout
// to dir on fs.
func WithArtifactDir(fs afero.Fs, dir string) GeneratorOption {
	return func(g *Generator) {
		g.fs = fs
		g.dir = dir
	}
}

func WithGeneratorLogger(l *slog.Logger) GeneratorOption {
	return func(g *Generator) {
		if l != nil {
			g.log = l
		}
	}
}

type cached struct {
	layout *Layout
	refs   *locking.RefCount
	path   string
}

// Generator compiles schemas into Layouts and caches them per flattened
// shape. It is safe for concurrent use.
type Generator struct {
	mu       sync.Mutex
	fs       afero.Fs
	dir      string
	log      *slog.Logger
	byShape  map[string]*cached
	byID     map[string]*cached
	compiles int
}

func NewGenerator(opts ...GeneratorOption) *Generator {
	g := &Generator{
		log:     slog.Default(),
		byShape: make(map[string]*cached),
		byID:    make(map[string]*cached),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

var defaultGenerator = NewGenerator()

// DefaultGenerator is the process-wide generator used when none is given.
func DefaultGenerator() *Generator { return defaultGenerator }

// Generate returns the layout for schema, compiling it on first use of its
// shape. Compile problems come back as *CompileError.
func (g *Generator) Generate(s Schema, opts GenerateOptions) (*Layout, error) {
	cols := s.Columns(!opts.NoCounters)
	key := shapeKey(cols, opts.Growable)

	g.mu.Lock()
	defer g.mu.Unlock()

	if c, ok := g.byShape[key]; ok {
		return c.layout, nil
	}

	id := uuid.NewString()
	g.compiles++
	l, err := compileLayout(id, key, cols, opts.Growable)
	if err != nil {
		g.log.Warn("record: compile failed", "shape", key, "err", err)
		return nil, err
	}

	c := &cached{layout: l}
	if g.fs != nil {
		p, err := g.writeArtifact(l)
		if err != nil {
			return nil, err
		}
		c.path = p
	}
	g.byShape[key] = c
	g.byID[id] = c

	g.log.Debug("record: compiled layout",
		"id", id, "fields", len(l.fields), "size", l.size, "growable", opts.Growable)
	return l, nil
}

func (g *Generator) writeArtifact(l *Layout) (string, error) {
	if err := g.fs.MkdirAll(g.dir, 0o755); err != nil {
		return "", fmt.Errorf("record: artifact dir: %w", err)
	}
	p := path.Join(g.dir, "record_"+strings.ReplaceAll(l.id, "-", "")+".go")
	if err := afero.WriteFile(g.fs, p, []byte(l.definition), 0o644); err != nil {
		return "", fmt.Errorf("record: write artifact: %w", err)
	}
	return p, nil
}

// Compiles reports how many layouts were compiled so far, cached or not.
func (g *Generator) Compiles() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.compiles
}

// Acquire records one more holder of l. Unknown layouts (already evicted)
// are ignored.
func (g *Generator) Acquire(l *Layout) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.byID[l.id]
	if !ok {
		return
	}
	if c.refs == nil {
		c.refs = locking.NewRefCount()
		return
	}
	c.refs.Inc()
}

// Release drops one holder of layout id. The last release removes the
// artifact and evicts the layout, so the next Generate of that shape
// compiles again.
func (g *Generator) Release(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.byID[id]
	if !ok || c.refs == nil {
		return nil
	}
	if !c.refs.Dec() {
		return nil
	}
	delete(g.byID, id)
	delete(g.byShape, c.layout.shape)
	if c.path != "" && g.fs != nil {
		if err := g.fs.Remove(c.path); err != nil {
			return fmt.Errorf("record: remove artifact %s: %w", c.path, err)
		}
		g.log.Debug("record: removed artifact", "id", id, "path", c.path)
	}
	return nil
}

// Refs returns the number of holders of layout id, 0 when unknown.
func (g *Generator) Refs(id string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.byID[id]
	if !ok || c.refs == nil {
		return 0
	}
	return int(c.refs.Get())
}

// ArtifactPath is where the definition of layout id was written, if any.
func (g *Generator) ArtifactPath(id string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.byID[id]
	if !ok || c.path == "" {
		return "", false
	}
	return c.path, true
}

// shapeKey identifies a flattened shape: mode plus ordered column
// signatures, defaults included since they change the Init image.
func shapeKey(cols []Column, growable bool) string {
	var sb strings.Builder
	if growable {
		sb.WriteString("growable")
	} else {
		sb.WriteString("fixed")
	}
	for _, c := range cols {
		sb.WriteByte('|')
		sb.WriteString(c.Name)
		sb.WriteByte('/')
		sb.WriteString(c.Type.Tag())
		if c.Vector {
			sb.WriteByte('[')
			sb.WriteString(c.Counter)
			sb.WriteByte(';')
			sb.WriteString(strconv.Itoa(c.MaxLength))
			sb.WriteByte(']')
		}
		if c.Default != "" {
			sb.WriteByte('=')
			sb.WriteString(c.Default)
		}
	}
	return sb.String()
}
