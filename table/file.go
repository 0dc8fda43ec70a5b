package table

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"

	"github.com/TuSKan/emcore"
	"github.com/TuSKan/emcore/storage"
)

// File is a session on a table file. All blocks are parsed on Open and
// kept in memory; changes are written back on Close.
type File struct {
	path    string
	info    *FormatInfo
	impl    Impl
	h       storage.Handle
	mode    storage.Mode
	blocks  []Block
	dirty   bool
	log     *slog.Logger
	cleanup runtime.Cleanup
}

// Open opens the table file path. See File.Open.
func Open(ctx context.Context, path string, mode storage.Mode, opts ...Option) (*File, error) {
	f := &File{}
	if err := f.Open(ctx, path, mode, opts...); err != nil {
		return nil, err
	}
	return f, nil
}

// Open starts a session on path, resolving the format from WithFormat or
// the extension.
func (f *File) Open(ctx context.Context, path string, mode storage.Mode, opts ...Option) error {
	if f.h != nil {
		return emcore.NewError("open", path, emcore.ErrAlreadyOpen, fmt.Errorf("session on %s still open", f.path))
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	key := o.format
	if key == "" {
		key = storage.Ext(path)
	}
	info, ok := lookup(key)
	if !ok {
		return emcore.NewError("open", path, emcore.ErrUnsupportedFormat, fmt.Errorf("no table format registered for %q", key))
	}
	if info.ReadOnly && mode.Writable() {
		return emcore.NewError("open", path, emcore.ErrUnsupportedOperation, fmt.Errorf("%s files can only be read", info.Name))
	}
	h, err := storage.Open(ctx, o.storage, path, mode)
	if err != nil {
		return err
	}
	log := o.logger.With("path", path, "format", info.Name)
	impl := info.New()

	var blocks []Block
	if mode != storage.Truncate {
		size, err := h.Size()
		if err != nil {
			h.Close()
			return withPath(err, path)
		}
		if size > 0 {
			data, err := storage.ReadAll(h)
			if err != nil {
				h.Close()
				return emcore.NewError("read", path, emcore.ErrIO, err)
			}
			if blocks, err = impl.Decode(bytes.NewReader(data), log); err != nil {
				h.Close()
				return withPath(err, path)
			}
		}
	}

	*f = File{path: path, info: info, impl: impl, h: h, mode: mode, blocks: blocks, log: log}
	f.cleanup = runtime.AddCleanup(f, func(h storage.Handle) { h.Close() }, h)
	f.log.Debug("opened table file", "mode", mode, "blocks", len(blocks))
	return nil
}

func withPath(err error, path string) error {
	var e *emcore.Error
	if errors.As(err, &e) && e.Path == "" {
		e.Path = path
	}
	return err
}

// IsOpen reports whether a session is active.
func (f *File) IsOpen() bool { return f.h != nil }

// Format returns the name of the table format.
func (f *File) Format() string {
	if f.info == nil {
		return ""
	}
	return f.info.Name
}

// Names returns the block names in file order.
func (f *File) Names() []string {
	names := make([]string, len(f.blocks))
	for i, b := range f.blocks {
		names[i] = b.Name
	}
	return names
}

// Read copies the block called name into t.
func (f *File) Read(name string, t *Table) error {
	if f.h == nil {
		return emcore.NewError("read", f.path, emcore.ErrNotOpen, nil)
	}
	i := f.index(name)
	if i < 0 {
		return emcore.NewError("read", f.path, emcore.ErrIndexOutOfRange, fmt.Errorf("no table %q", name))
	}
	t.Copy(f.blocks[i].Table)
	return nil
}

// Write stores a copy of t as the block called name, replacing a block of
// the same name. The file is updated on Close.
func (f *File) Write(name string, t *Table) error {
	if f.h == nil {
		return emcore.NewError("write", f.path, emcore.ErrNotOpen, nil)
	}
	if !f.mode.Writable() {
		return emcore.NewError("write", f.path, emcore.ErrInvalidOperation, errors.New("file is open read-only"))
	}
	b := Block{Name: name, Table: t.Clone()}
	if i := f.index(name); i >= 0 {
		f.blocks[i] = b
	} else {
		f.blocks = append(f.blocks, b)
	}
	f.dirty = true
	return nil
}

func (f *File) index(name string) int {
	return slices.IndexFunc(f.blocks, func(b Block) bool { return b.Name == name })
}

// Close writes pending changes and ends the session. Closing a closed File
// is a no-op.
func (f *File) Close() error {
	if f.h == nil {
		return nil
	}
	f.cleanup.Stop()
	var err error
	if f.dirty {
		var buf bytes.Buffer
		if err = f.impl.Encode(&buf, f.blocks); err == nil {
			if err = storage.Replace(f.h, buf.Bytes()); err != nil {
				err = emcore.NewError("write", f.path, emcore.ErrIO, err)
			}
		}
		f.log.Debug("wrote table file", "blocks", len(f.blocks), "bytes", buf.Len())
	}
	if cerr := f.h.Close(); err == nil {
		err = cerr
	}
	f.h, f.blocks, f.dirty = nil, nil, false
	return withPath(err, f.path)
}
