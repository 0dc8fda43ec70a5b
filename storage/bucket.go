package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"

	"gocloud.dev/blob"
	"gocloud.dev/blob/memblob"
	"gocloud.dev/gcerrors"

	"github.com/TuSKan/emcore"
)

// Bucket stores files as objects of a gocloud.dev blob bucket. Read-only
// handles fetch byte ranges on demand; writable handles are buffered in
// memory and uploaded on Close.
type Bucket struct {
	b *blob.Bucket
}

// OpenBucket opens a bucket from a gocloud URL such as "file:///data/em" or
// "mem://". The matching driver package must be imported by the caller.
func OpenBucket(ctx context.Context, url string) (*Bucket, error) {
	b, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}
	return &Bucket{b: b}, nil
}

// NewBucket wraps an already open bucket.
func NewBucket(b *blob.Bucket) *Bucket {
	return &Bucket{b: b}
}

// NewMemory returns an empty in-memory storage.
func NewMemory() *Bucket {
	return &Bucket{b: memblob.OpenBucket(nil)}
}

// Close releases the bucket.
func (s *Bucket) Close() error {
	return s.b.Close()
}

func key(name string) string {
	return strings.TrimPrefix(path.Clean("/"+strings.ReplaceAll(name, "\\", "/")), "/")
}

// Open opens the object name.
func (s *Bucket) Open(ctx context.Context, name string, mode Mode) (Handle, error) {
	k := key(name)
	switch mode {
	case ReadOnly:
		attrs, err := s.b.Attributes(ctx, k)
		if err != nil {
			return nil, s.wrap("open", name, err)
		}
		return &objectReader{ctx: ctx, b: s.b, key: k, size: attrs.Size}, nil
	case ReadWrite, Truncate:
		var data []byte
		if mode == ReadWrite {
			var err error
			data, err = s.b.ReadAll(ctx, k)
			if err != nil && gcerrors.Code(err) != gcerrors.NotFound {
				return nil, s.wrap("open", name, err)
			}
		}
		upload := func(data []byte) error {
			if err := s.b.WriteAll(ctx, k, data, nil); err != nil {
				return s.wrap("close", name, err)
			}
			return nil
		}
		f := newMemFile(data, upload)
		if mode == Truncate {
			// A truncated object exists even if nothing is written.
			f.dirty = true
		}
		return f, nil
	}
	return nil, emcore.Errorf("open", emcore.ErrConfiguration, "unknown mode %s", mode)
}

// Exists reports whether the object name exists.
func (s *Bucket) Exists(ctx context.Context, name string) (bool, error) {
	ok, err := s.b.Exists(ctx, key(name))
	if err != nil {
		return false, s.wrap("stat", name, err)
	}
	return ok, nil
}

// Remove deletes the object name.
func (s *Bucket) Remove(ctx context.Context, name string) error {
	if err := s.b.Delete(ctx, key(name)); err != nil {
		return s.wrap("remove", name, err)
	}
	return nil
}

// Glob lists the objects whose key matches pattern.
func (s *Bucket) Glob(ctx context.Context, pattern string) ([]string, error) {
	pattern = key(pattern)
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, emcore.NewError("glob", pattern, emcore.ErrConfiguration, err)
	}
	prefix := pattern
	if i := strings.IndexAny(pattern, `*?[\`); i >= 0 {
		prefix = pattern[:i]
	}
	var matches []string
	it := s.b.List(&blob.ListOptions{Prefix: prefix})
	for {
		obj, err := it.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, s.wrap("glob", pattern, err)
		}
		if ok, _ := path.Match(pattern, obj.Key); ok {
			matches = append(matches, obj.Key)
		}
	}
	return matches, nil
}

func (s *Bucket) wrap(op, name string, err error) error {
	if gcerrors.Code(err) == gcerrors.NotFound {
		err = fmt.Errorf("%w: %w", fs.ErrNotExist, err)
	}
	return emcore.NewError(op, name, emcore.ErrIO, err)
}

type objectReader struct {
	ctx  context.Context
	b    *blob.Bucket
	key  string
	size int64
}

func (r *objectReader) ReadAt(p []byte, off int64) (int, error) {
	if off >= r.size {
		return 0, io.EOF
	}
	length := min(int64(len(p)), r.size-off)
	rr, err := r.b.NewRangeReader(r.ctx, r.key, off, length, nil)
	if err != nil {
		return 0, emcore.NewError("read", r.key, emcore.ErrIO, err)
	}
	defer rr.Close()
	n, err := io.ReadFull(rr, p[:length])
	if err != nil {
		return n, emcore.NewError("read", r.key, emcore.ErrIO, err)
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (r *objectReader) WriteAt([]byte, int64) (int, error) {
	return 0, emcore.Errorf("write", emcore.ErrInvalidOperation, "%s is open read-only", r.key)
}

func (r *objectReader) Size() (int64, error) { return r.size, nil }

func (r *objectReader) Truncate(int64) error {
	return emcore.Errorf("truncate", emcore.ErrInvalidOperation, "%s is open read-only", r.key)
}

func (r *objectReader) Close() error { return nil }
