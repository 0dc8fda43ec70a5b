package storage

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/TuSKan/emcore"
)

// OS is the local file system. Relative names are resolved against Dir,
// or the working directory when Dir is empty.
type OS struct {
	Dir string
}

func (s OS) path(name string) string {
	if s.Dir == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(s.Dir, name)
}

var osFlags = map[Mode]int{
	ReadOnly:  os.O_RDONLY,
	ReadWrite: os.O_RDWR | os.O_CREATE,
	Truncate:  os.O_RDWR | os.O_CREATE | os.O_TRUNC,
}

// Open opens a local file.
func (s OS) Open(_ context.Context, name string, mode Mode) (Handle, error) {
	flag, ok := osFlags[mode]
	if !ok {
		return nil, emcore.Errorf("open", emcore.ErrConfiguration, "unknown mode %s", mode)
	}
	f, err := os.OpenFile(s.path(name), flag, 0o644)
	if err != nil {
		return nil, emcore.NewError("open", name, emcore.ErrIO, err)
	}
	return &osFile{f: f}, nil
}

// Exists reports whether name exists.
func (s OS) Exists(_ context.Context, name string) (bool, error) {
	_, err := os.Stat(s.path(name))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	}
	return false, emcore.NewError("stat", name, emcore.ErrIO, err)
}

// Remove deletes name.
func (s OS) Remove(_ context.Context, name string) error {
	if err := os.Remove(s.path(name)); err != nil {
		return emcore.NewError("remove", name, emcore.ErrIO, err)
	}
	return nil
}

// Glob returns the files matching pattern.
func (s OS) Glob(_ context.Context, pattern string) ([]string, error) {
	matches, err := filepath.Glob(s.path(pattern))
	if err != nil {
		return nil, emcore.NewError("glob", pattern, emcore.ErrConfiguration, err)
	}
	if s.Dir != "" && !filepath.IsAbs(pattern) {
		for i, m := range matches {
			if rel, err := filepath.Rel(s.Dir, m); err == nil {
				matches[i] = rel
			}
		}
	}
	return matches, nil
}

type osFile struct {
	f      *os.File
	closed bool
}

func (h *osFile) ReadAt(p []byte, off int64) (int, error) {
	return h.f.ReadAt(p, off)
}

func (h *osFile) WriteAt(p []byte, off int64) (int, error) {
	n, err := h.f.WriteAt(p, off)
	if err != nil {
		return n, emcore.NewError("write", h.f.Name(), emcore.ErrIO, err)
	}
	return n, nil
}

func (h *osFile) Size() (int64, error) {
	fi, err := h.f.Stat()
	if err != nil {
		return 0, emcore.NewError("stat", h.f.Name(), emcore.ErrIO, err)
	}
	return fi.Size(), nil
}

func (h *osFile) Truncate(size int64) error {
	if err := h.f.Truncate(size); err != nil {
		return emcore.NewError("truncate", h.f.Name(), emcore.ErrIO, err)
	}
	return nil
}

func (h *osFile) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	if err := h.f.Close(); err != nil {
		return emcore.NewError("close", h.f.Name(), emcore.ErrIO, err)
	}
	return nil
}
