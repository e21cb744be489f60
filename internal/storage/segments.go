package storage

import (
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// FileSet is a set of segment files backing one page space.
type FileSet interface {
	// OpenSegment opens segment segNo read-write, creating it if needed.
	OpenSegment(segNo int32) (afero.File, error)
	// StatSegment reports the size of segNo without creating it.
	StatSegment(segNo int32) (size int64, exists bool, err error)
}

var _ FileSet = LocalFileSet{}

// LocalFileSet is a directory + base file name on an afero filesystem.
// Segments are stored as: Base, Base.1, Base.2, ...
type LocalFileSet struct {
	FS   afero.Fs
	Dir  string
	Base string
}

// NewMemFileSet is a FileSet backed by a fresh in-memory filesystem.
func NewMemFileSet(base string) LocalFileSet {
	return LocalFileSet{FS: afero.NewMemMapFs(), Dir: "/", Base: base}
}

// SegFileName returns segment file name:
//   - seg 0: base
//   - seg N>0: base.N
func SegFileName(base string, segNo int32) string {
	if segNo <= 0 {
		return base
	}
	return fmt.Sprintf("%s.%d", base, segNo)
}

func (lfs LocalFileSet) segPath(segNo int32) string {
	return path.Join(lfs.Dir, SegFileName(lfs.Base, segNo))
}

func (lfs LocalFileSet) OpenSegment(segNo int32) (afero.File, error) {
	if err := lfs.FS.MkdirAll(lfs.Dir, FileMode0755); err != nil {
		return nil, err
	}
	// RDWR | CREATE (no truncate)
	return lfs.FS.OpenFile(lfs.segPath(segNo), os.O_RDWR|os.O_CREATE, FileMode0644)
}

func (lfs LocalFileSet) StatSegment(segNo int32) (int64, bool, error) {
	info, err := lfs.FS.Stat(lfs.segPath(segNo))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return info.Size(), true, nil
}

// ListSegments returns all segment numbers present for lfs.Base.
func (lfs LocalFileSet) ListSegments() ([]int32, error) {
	ents, err := afero.ReadDir(lfs.FS, lfs.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	segs := make([]int32, 0)
	prefix := lfs.Base + "."
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if name == lfs.Base {
			segs = append(segs, 0)
			continue
		}
		suf, ok := strings.CutPrefix(name, prefix)
		if !ok {
			continue
		}
		n64, err := strconv.ParseInt(suf, 10, 32)
		if err != nil || n64 <= 0 {
			continue
		}
		segs = append(segs, int32(n64))
	}
	sort.Slice(segs, func(i, j int) bool { return segs[i] < segs[j] })
	return segs, nil
}

// RemoveAllSegments removes Base, Base.1, Base.2, ...
func (lfs LocalFileSet) RemoveAllSegments() error {
	segs, err := lfs.ListSegments()
	if err != nil {
		return err
	}
	for _, segNo := range segs {
		if err := lfs.FS.Remove(lfs.segPath(segNo)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}
