package imagefile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"

	"github.com/TuSKan/emcore"
	"github.com/TuSKan/emcore/storage"
)

// File is a session on one image file. The zero File is closed; it becomes
// usable after a successful Open and can be reopened after Close.
type File struct {
	path    string
	info    *FormatInfo
	impl    Impl
	s       *Stream
	h       Header
	opts    *options
	log     *slog.Logger
	cleanup runtime.Cleanup
}

// Open opens the image file path. See File.Open.
func Open(ctx context.Context, path string, mode storage.Mode, opts ...Option) (*File, error) {
	f := &File{}
	if err := f.Open(ctx, path, mode, opts...); err != nil {
		return nil, err
	}
	return f, nil
}

// Open starts a session on path. The format is taken from WithFormat or,
// by default, from the extension of path. In ReadOnly and ReadWrite mode
// the header of an existing non-empty file is parsed immediately; a file
// opened with Truncate, or an empty one opened ReadWrite, has no header
// until CreateEmpty or the first Write.
func (f *File) Open(ctx context.Context, path string, mode storage.Mode, opts ...Option) error {
	if f.s != nil {
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
	info, ok := formats.lookup(key)
	if !ok {
		return emcore.NewError("open", path, emcore.ErrUnsupportedFormat, fmt.Errorf("no image format registered for %q", key))
	}
	if info.ReadOnly && mode.Writable() {
		return emcore.NewError("open", path, emcore.ErrUnsupportedOperation, fmt.Errorf("%s files can only be read", info.Name))
	}

	impl := info.New()
	name := path
	if r, ok := impl.(Resolver); ok {
		name = r.HeaderPath(path)
	}
	h, err := storage.Open(ctx, o.storage, name, mode)
	if err != nil {
		return err
	}
	s := &Stream{
		ctx:     ctx,
		storage: o.storage,
		name:    name,
		mode:    mode,
		handle:  h,
		data:    h,
		opts:    o,
		log:     o.logger.With("path", name, "format", info.Name),
	}
	fail := func(err error) error {
		s.close()
		return withPath(err, name)
	}
	if op, ok := impl.(Opener); ok {
		if err := op.Open(s); err != nil {
			return fail(err)
		}
	}

	var hdr Header
	if mode != storage.Truncate {
		size, err := s.Size()
		if err != nil {
			return fail(err)
		}
		if size > 0 || mode == storage.ReadOnly {
			if err := impl.ReadHeader(s, &hdr); err != nil {
				return fail(err)
			}
			if err := checkHeader(s, &hdr); err != nil {
				return fail(err)
			}
		}
	}

	*f = File{path: name, info: info, impl: impl, s: s, h: hdr, opts: o, log: s.log}
	f.cleanup = runtime.AddCleanup(f, func(s *Stream) { s.close() }, s)
	f.log.Debug("opened image file", "mode", mode, "dim", hdr.Dim, "type", hdr.Type, "order", hdr.Order)
	return nil
}

func checkHeader(s *Stream, h *Header) error {
	if h.Type.IsNull() || !h.Type.IsPOD() {
		return emcore.NewError("read header", s.name, emcore.ErrUnsupportedType, fmt.Errorf("element type %s", h.Type))
	}
	if h.Dim.X <= 0 || h.Dim.Y <= 0 || h.Dim.Z <= 0 || h.Dim.N < 0 {
		return emcore.NewError("read header", s.name, emcore.ErrInvalidFormat, fmt.Errorf("dimension %s", h.Dim))
	}
	if h.Codec != nil {
		return nil
	}
	size, err := s.Data().Size()
	if err != nil {
		return err
	}
	if size < h.DataSize() {
		return emcore.NewError("read header", s.name, emcore.ErrInvalidFormat,
			fmt.Errorf("file holds %d bytes, %s %s needs %d", size, h.Dim, h.Type, h.DataSize()))
	}
	return nil
}

func withPath(err error, path string) error {
	var e *emcore.Error
	if errors.As(err, &e) && e.Path == "" {
		e.Path = path
	}
	return err
}

// Close ends the session, flushing and releasing every file it opened.
// Closing a closed File is a no-op.
func (f *File) Close() error {
	if f.s == nil {
		return nil
	}
	f.cleanup.Stop()
	err := f.s.close()
	f.log.Debug("closed image file")
	f.s, f.impl = nil, nil
	return withPath(err, f.path)
}

// IsOpen reports whether a session is active.
func (f *File) IsOpen() bool { return f.s != nil }

// Path returns the path of the header file.
func (f *File) Path() string { return f.path }

// Format returns the name of the format plugin.
func (f *File) Format() string {
	if f.info == nil {
		return ""
	}
	return f.info.Name
}

// Mode returns the access mode of the session.
func (f *File) Mode() storage.Mode {
	if f.s == nil {
		return storage.ReadOnly
	}
	return f.s.mode
}

// Header returns a copy of the parsed header.
func (f *File) Header() Header { return f.h }

// Dim returns the dimension of the whole file, EmptyDim before a header
// exists.
func (f *File) Dim() emcore.Dim {
	if f.h.Type.IsNull() {
		return emcore.EmptyDim
	}
	return f.h.Dim
}

// Type returns the element type of the file.
func (f *File) Type() emcore.Type { return f.h.Type }

// Impl returns the format plugin of the session, nil when closed.
func (f *File) Impl() Impl { return f.impl }

func (f *File) checkOpen(op string) error {
	if f.s == nil {
		return emcore.NewError(op, f.path, emcore.ErrNotOpen, nil)
	}
	return nil
}

func (f *File) checkWritable(op string) error {
	if err := f.checkOpen(op); err != nil {
		return err
	}
	if !f.s.mode.Writable() {
		return emcore.NewError(op, f.path, emcore.ErrInvalidOperation, errors.New("file is open read-only"))
	}
	return nil
}

func (f *File) checkRange(op string, first, count int) error {
	if f.h.Type.IsNull() {
		return emcore.NewError(op, f.path, emcore.ErrInvalidOperation, errors.New("file has no header"))
	}
	if first < 1 || count < 1 || first+count-1 > f.h.Dim.N {
		return emcore.NewError(op, f.path, emcore.ErrIndexOutOfRange,
			fmt.Errorf("items %d..%d of %d", first, first+count-1, f.h.Dim.N))
	}
	return nil
}

// Read reads item index (1-based) into a, resizing a to the item extent
// and file type.
func (f *File) Read(index int, a *emcore.Array) error {
	return f.ReadStack(index, 1, a)
}

// ReadStack reads count consecutive items starting at first into a as one
// stack. A count of 0 reads up to the last item.
func (f *File) ReadStack(first, count int, a *emcore.Array) error {
	if err := f.checkOpen("read"); err != nil {
		return err
	}
	if count == 0 {
		count = f.h.Dim.N - first + 1
	}
	if err := f.checkRange("read", first, count); err != nil {
		return err
	}
	dim := f.h.Dim.Item()
	dim.N = count
	a.Resize(dim, f.h.Type)
	return f.readItems(first, count, a.Bytes())
}

// ReadView reads item index into v, which must have the item extent and the
// file type.
func (f *File) ReadView(index int, v *emcore.View) error {
	if err := f.checkOpen("read"); err != nil {
		return err
	}
	if err := f.checkRange("read", index, 1); err != nil {
		return err
	}
	if !v.Valid() {
		return emcore.NewError("read", f.path, emcore.ErrStaleView, nil)
	}
	if v.Dim() != f.h.Dim.Item() || v.Type() != f.h.Type {
		return emcore.NewError("read", f.path, emcore.ErrInvalidOperation,
			fmt.Errorf("view %s %s does not match item %s %s", v.Dim(), v.Type(), f.h.Dim.Item(), f.h.Type))
	}
	return f.readItems(index, 1, v.Bytes())
}

func (f *File) readItems(first, count int, dst []byte) error {
	h := &f.h
	item := h.ItemBytes()
	if h.Codec != nil {
		for i := range count {
			if err := h.Codec.ReadItem(f.s, h, first+i, dst[int64(i)*item:int64(i+1)*item]); err != nil {
				return withPath(err, f.path)
			}
		}
		return nil
	}
	if h.Pad == 0 {
		if err := f.readAt(dst, h.ItemOffset(first)); err != nil {
			return err
		}
	} else {
		for i := range count {
			if err := f.readAt(dst[int64(i)*item:int64(i+1)*item], h.ItemOffset(first+i)); err != nil {
				return err
			}
		}
	}
	if h.Order.NeedsSwap() {
		h.Type.Swap(dst)
	}
	return nil
}

func (f *File) readAt(dst []byte, off int64) error {
	n, err := f.s.Data().ReadAt(dst, off)
	if n == len(dst) {
		return nil
	}
	if err == nil {
		err = fmt.Errorf("short read of %d bytes at %d", n, off)
	}
	return emcore.NewError("read", f.path, emcore.ErrIO, err)
}

// Write stores the items of d starting at item index. A file without a
// header is created from d's extent and type. Elements are cast to the
// file type. Writing past the last item expands stack files and fails with
// ErrInvalidOperation on single image files.
func (f *File) Write(index int, d emcore.Data) error {
	if err := f.checkWritable("write"); err != nil {
		return err
	}
	if index < 1 {
		return emcore.NewError("write", f.path, emcore.ErrIndexOutOfRange, fmt.Errorf("item %d", index))
	}
	dim := d.Dim()
	count := dim.N
	last := index + count - 1
	if f.h.Type.IsNull() {
		if index > 1 && !f.newStack() {
			return emcore.NewError("write", f.path, emcore.ErrInvalidOperation,
				fmt.Errorf("item %d of a new single image file", index))
		}
		full := dim.Item()
		full.N = last
		if err := f.CreateEmpty(full, d.Type()); err != nil {
			return err
		}
	}
	if dim.Item() != f.h.Dim.Item() {
		return emcore.NewError("write", f.path, emcore.ErrInvalidOperation,
			fmt.Errorf("item extent %s does not match file %s", dim.Item(), f.h.Dim.Item()))
	}
	if last > f.h.Dim.N {
		if !f.h.Stack {
			return emcore.NewError("write", f.path, emcore.ErrInvalidOperation,
				fmt.Errorf("item %d of a file that is not a stack", last))
		}
		if err := f.Expand(last); err != nil {
			return err
		}
	}

	src, err := f.hostBytes(d)
	if err != nil {
		return err
	}
	h := &f.h
	item := h.ItemBytes()
	if h.Codec != nil {
		for i := range count {
			if err := h.Codec.WriteItem(f.s, h, index+i, src[int64(i)*item:int64(i+1)*item]); err != nil {
				return withPath(err, f.path)
			}
		}
		return nil
	}
	if h.Order.NeedsSwap() {
		h.Type.Swap(src)
	}
	if h.Pad == 0 {
		return f.writeAt(src, h.ItemOffset(index))
	}
	for i := range count {
		if err := f.writeAt(src[int64(i)*item:int64(i+1)*item], h.ItemOffset(index+i)); err != nil {
			return err
		}
	}
	return nil
}

// hostBytes returns the elements of d as the file type in a buffer the
// caller may modify.
func (f *File) hostBytes(d emcore.Data) ([]byte, error) {
	if v, ok := d.(*emcore.View); ok && !v.Valid() {
		return nil, emcore.NewError("write", f.path, emcore.ErrStaleView, nil)
	}
	if d.Type() == f.h.Type {
		return append([]byte(nil), d.Bytes()...), nil
	}
	tmp := &emcore.Array{}
	if err := tmp.CopyAs(d, f.h.Type); err != nil {
		return nil, withPath(err, f.path)
	}
	return tmp.Bytes(), nil
}

func (f *File) writeAt(src []byte, off int64) error {
	if _, err := f.s.Data().WriteAt(src, off); err != nil {
		return emcore.NewError("write", f.path, emcore.ErrIO, err)
	}
	return nil
}

// CreateEmpty writes a fresh header for dim and t and allocates room for
// all items. The session must be writable and the format must store t.
func (f *File) CreateEmpty(dim emcore.Dim, t emcore.Type) error {
	if err := f.checkWritable("create"); err != nil {
		return err
	}
	if !hasType(f.info.Types, t) {
		return emcore.NewError("create", f.path, emcore.ErrUnsupportedType,
			fmt.Errorf("%s files cannot store %s", f.info.Name, t))
	}
	if dim.IsEmpty() {
		return emcore.NewError("create", f.path, emcore.ErrInvalidOperation, fmt.Errorf("empty dimension %s", dim))
	}
	order := f.opts.order
	if order == 0 {
		order = emcore.NativeOrder()
	}
	h := Header{Dim: dim, Type: t, Order: order, Stack: f.newStack()}
	if err := f.s.Handle().Truncate(0); err != nil {
		return withPath(err, f.path)
	}
	if err := f.impl.WriteHeader(f.s, &h); err != nil {
		return withPath(err, f.path)
	}
	if err := f.allocate(&h); err != nil {
		return err
	}
	f.h = h
	f.log.Debug("created image file", "dim", h.Dim, "type", h.Type, "order", h.Order, "stack", h.Stack)
	return nil
}

// newStack reports whether a file created in this session is a stack.
func (f *File) newStack() bool {
	return f.opts.stack || slices.Contains(f.info.StackExtensions, storage.Ext(f.path))
}

// Expand grows the file to n items, which must exceed the current count.
func (f *File) Expand(n int) error {
	if err := f.checkWritable("expand"); err != nil {
		return err
	}
	if f.h.Type.IsNull() {
		return emcore.NewError("expand", f.path, emcore.ErrInvalidOperation, errors.New("file has no header"))
	}
	if n <= f.h.Dim.N {
		return emcore.NewError("expand", f.path, emcore.ErrInvalidOperation,
			fmt.Errorf("new item count %d does not exceed %d", n, f.h.Dim.N))
	}
	if !f.h.Stack {
		return emcore.NewError("expand", f.path, emcore.ErrInvalidOperation, errors.New("file is not a stack"))
	}
	h := f.h
	h.Dim.N = n
	if err := f.impl.WriteHeader(f.s, &h); err != nil {
		return withPath(err, f.path)
	}
	if err := f.allocate(&h); err != nil {
		return err
	}
	f.log.Debug("expanded image file", "from", f.h.Dim.N, "to", n)
	f.h = h
	return nil
}

func (f *File) allocate(h *Header) error {
	if h.Codec != nil {
		return nil
	}
	size, err := f.s.Data().Size()
	if err != nil {
		return withPath(err, f.path)
	}
	if size < h.DataSize() {
		if err := f.s.Data().Truncate(h.DataSize()); err != nil {
			return withPath(err, f.path)
		}
	}
	return nil
}
