// Package storage is the file abstraction behind image and table sessions.
//
// A Storage opens named Handles: random access files on the local file
// system (OS), objects in a gocloud.dev blob bucket (Bucket) or purely
// in-memory objects (NewMemory). Open additionally decompresses and
// recompresses names ending in a known compression suffix.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/TuSKan/emcore"
)

// Mode is the access mode of a Handle.
type Mode uint8

const (
	// ReadOnly opens an existing file for reading ("rb").
	ReadOnly Mode = iota
	// ReadWrite opens a file for reading and writing, creating it when
	// missing ("r+b").
	ReadWrite
	// Truncate creates or empties a file for reading and writing ("wb").
	Truncate
)

func (m Mode) String() string {
	switch m {
	case ReadOnly:
		return "rb"
	case ReadWrite:
		return "r+b"
	case Truncate:
		return "wb"
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// Writable reports whether m allows writes.
func (m Mode) Writable() bool { return m != ReadOnly }

// ParseMode maps "r", "rw", "r+", "w" and the C style access strings to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "r", "rb", "read":
		return ReadOnly, nil
	case "rw", "r+", "r+b", "update":
		return ReadWrite, nil
	case "w", "wb", "truncate", "create":
		return Truncate, nil
	}
	return 0, emcore.Errorf("mode", emcore.ErrConfiguration, "unknown access mode %q", s)
}

// Handle is an open file.
type Handle interface {
	io.ReaderAt
	io.WriterAt
	// Size returns the current length of the file.
	Size() (int64, error)
	// Truncate changes the length of the file.
	Truncate(size int64) error
	// Close flushes pending writes and releases the file.
	Close() error
}

// Storage opens and manages named files.
type Storage interface {
	Open(ctx context.Context, name string, mode Mode) (Handle, error)
	Exists(ctx context.Context, name string) (bool, error)
	Remove(ctx context.Context, name string) error
	// Glob returns the names matching a path.Match pattern.
	Glob(ctx context.Context, pattern string) ([]string, error)
}

// Default is the Storage used when none is configured.
var Default Storage = OS{}

// Ext returns the lowercase extension of name without the dot, looking
// through a trailing compression suffix: "a.mrc.gz" gives "mrc".
func Ext(name string) string {
	base := strings.ToLower(path.Base(strings.ReplaceAll(name, "\\", "/")))
	if c := codecFor(base); c != nil {
		base = strings.TrimSuffix(base, c.suffix)
	}
	return strings.TrimPrefix(path.Ext(base), ".")
}

// ReplaceExt returns name with its extension (under any compression suffix)
// replaced by ext.
func ReplaceExt(name, ext string) string {
	suffix := ""
	if c := codecFor(name); c != nil {
		suffix = name[len(name)-len(c.suffix):]
		name = name[:len(name)-len(c.suffix)]
	}
	return strings.TrimSuffix(name, path.Ext(name)) + "." + ext + suffix
}

// Open opens name in s. Names ending in a compression suffix (".gz",
// ".zst") are decompressed into memory and compressed back on Close when
// the handle was written to.
func Open(ctx context.Context, s Storage, name string, mode Mode) (Handle, error) {
	if s == nil {
		s = Default
	}
	h, err := s.Open(ctx, name, mode)
	if err != nil {
		return nil, err
	}
	c := codecFor(name)
	if c == nil {
		return h, nil
	}
	ch, err := newCompressed(h, c, mode)
	if err != nil {
		h.Close()
		return nil, emcore.NewError("open", name, emcore.ErrIO, err)
	}
	return ch, nil
}

// ReadAll returns the whole content of h.
func ReadAll(h Handle) ([]byte, error) {
	size, err := h.Size()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	n, err := h.ReadAt(buf, 0)
	if n == len(buf) {
		return buf, nil
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return nil, err
}

// Replace makes data the whole content of h.
func Replace(h Handle, data []byte) error {
	if err := h.Truncate(0); err != nil {
		return err
	}
	_, err := h.WriteAt(data, 0)
	return err
}
