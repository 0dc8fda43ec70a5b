package storage

import (
	"bytes"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

type codec struct {
	suffix     string
	decompress func(r io.Reader) (io.ReadCloser, error)
	compress   func(w io.Writer) (io.WriteCloser, error)
}

var codecs = []*codec{
	{
		suffix: ".gz",
		decompress: func(r io.Reader) (io.ReadCloser, error) {
			return gzip.NewReader(r)
		},
		compress: func(w io.Writer) (io.WriteCloser, error) {
			return gzip.NewWriter(w), nil
		},
	},
	{
		suffix: ".zst",
		decompress: func(r io.Reader) (io.ReadCloser, error) {
			d, err := zstd.NewReader(r)
			if err != nil {
				return nil, err
			}
			return d.IOReadCloser(), nil
		},
		compress: func(w io.Writer) (io.WriteCloser, error) {
			return zstd.NewWriter(w)
		},
	},
}

func codecFor(name string) *codec {
	name = strings.ToLower(name)
	for _, c := range codecs {
		if strings.HasSuffix(name, c.suffix) {
			return c
		}
	}
	return nil
}

// IsCompressed reports whether name carries a compression suffix.
func IsCompressed(name string) bool {
	return codecFor(name) != nil
}

// newCompressed wraps h, whose content is compressed with c, into an
// in-memory handle of the decompressed bytes. Writes are compressed back
// into h on Close.
func newCompressed(h Handle, c *codec, mode Mode) (Handle, error) {
	var plain []byte
	size, err := h.Size()
	if err != nil {
		return nil, err
	}
	if mode != Truncate && size > 0 {
		r, err := c.decompress(io.NewSectionReader(h, 0, size))
		if err != nil {
			return nil, err
		}
		plain, err = io.ReadAll(r)
		r.Close()
		if err != nil {
			return nil, err
		}
	}
	flush := func(data []byte) error {
		var buf bytes.Buffer
		w, err := c.compress(&buf)
		if err != nil {
			return err
		}
		if _, err := w.Write(data); err != nil {
			w.Close()
			return err
		}
		if err := w.Close(); err != nil {
			return err
		}
		return Replace(h, buf.Bytes())
	}
	if !mode.Writable() {
		flush = nil
	}
	return &compressedFile{memFile: newMemFile(plain, flush), under: h, truncate: mode == Truncate}, nil
}

type compressedFile struct {
	*memFile
	under    Handle
	truncate bool
	closed   bool
}

func (c *compressedFile) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if c.truncate {
		c.memFile.mu.Lock()
		c.memFile.dirty = true
		c.memFile.mu.Unlock()
	}
	err := c.memFile.Close()
	if cerr := c.under.Close(); err == nil {
		err = cerr
	}
	return err
}
