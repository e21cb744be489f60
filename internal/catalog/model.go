package catalog

import (
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/tuannm99/novaloop/internal/record"
)

const metaSuffix = ".meta.json"

// TableMeta is the persisted description of one table.
type TableMeta struct {
	Name      string          `json:"name"`
	FileBase  string          `json:"file_base"`
	PageCount uint32          `json:"page_count"`
	RowCount  int             `json:"row_count"`
	Columns   []record.Column `json:"columns"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Catalog stores TableMeta files in one directory.
type Catalog struct {
	fs  afero.Fs
	dir string
}

func New(fs afero.Fs, dir string) *Catalog {
	return &Catalog{fs: fs, dir: dir}
}

func (c *Catalog) Dir() string { return c.dir }

func (c *Catalog) metaPath(name string) string {
	return path.Join(c.dir, name+metaSuffix)
}

// Write overwrites the meta file for meta.Name.
func (c *Catalog) Write(meta *TableMeta) error {
	if err := c.fs.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}
	meta.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return afero.WriteFile(c.fs, c.metaPath(meta.Name), data, 0o644)
}

func (c *Catalog) Read(name string) (*TableMeta, error) {
	data, err := afero.ReadFile(c.fs, c.metaPath(name))
	if err != nil {
		return nil, err
	}
	var meta TableMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("catalog: %s: %w", name, err)
	}
	return &meta, nil
}

func (c *Catalog) Exists(name string) (bool, error) {
	return afero.Exists(c.fs, c.metaPath(name))
}

func (c *Catalog) Remove(name string) error {
	return c.fs.Remove(c.metaPath(name))
}

// List returns table names in lexical order.
func (c *Catalog) List() ([]string, error) {
	ok, err := afero.DirExists(c.fs, c.dir)
	if err != nil || !ok {
		return nil, err
	}
	ents, err := afero.ReadDir(c.fs, c.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range ents {
		if e.IsDir() || !strings.HasSuffix(e.Name(), metaSuffix) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), metaSuffix))
	}
	sort.Strings(names)
	return names, nil
}
