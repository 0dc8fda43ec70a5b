package storage_test

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "gocloud.dev/blob/fileblob"

	"github.com/TuSKan/emcore"
	"github.com/TuSKan/emcore/storage"
)

func TestExt(t *testing.T) {
	tests := map[string]string{
		"a.mrc":             "mrc",
		"dir/b.MRCS":        "mrcs",
		"c.mrc.gz":          "mrc",
		"d.star.zst":        "star",
		`C:\data\e.spi`:     "spi",
		"noext":             "",
		"archive.tar.gz.gz": "gz",
	}
	for in, want := range tests {
		assert.Equal(t, want, storage.Ext(in), in)
	}
	assert.Equal(t, "a.img", storage.ReplaceExt("a.hed", "img"))
	assert.Equal(t, "x/a.img.gz", storage.ReplaceExt("x/a.hed.gz", "img"))
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]storage.Mode{"r": storage.ReadOnly, "r+": storage.ReadWrite, "w": storage.Truncate} {
		m, err := storage.ParseMode(in)
		require.NoError(t, err)
		require.Equal(t, want, m)
	}
	_, err := storage.ParseMode("x")
	require.ErrorIs(t, err, emcore.ErrConfiguration)
	require.Equal(t, "r+b", storage.ReadWrite.String())
}

func roundTrip(t *testing.T, s storage.Storage, name string) {
	ctx := context.Background()
	payload := []byte("0123456789abcdef")

	h, err := storage.Open(ctx, s, name, storage.Truncate)
	require.NoError(t, err)
	_, err = h.WriteAt(payload, 4)
	require.NoError(t, err)
	size, err := h.Size()
	require.NoError(t, err)
	require.EqualValues(t, 20, size)
	require.NoError(t, h.Close())
	require.NoError(t, h.Close())

	ok, err := s.Exists(ctx, name)
	require.NoError(t, err)
	require.True(t, ok)

	h, err = storage.Open(ctx, s, name, storage.ReadOnly)
	require.NoError(t, err)
	buf := make([]byte, 6)
	_, err = h.ReadAt(buf, 10)
	require.NoError(t, err)
	require.Equal(t, "6789ab", string(buf))

	n, err := h.ReadAt(make([]byte, 8), 16)
	require.Equal(t, 4, n)
	require.ErrorIs(t, err, io.EOF)
	require.NoError(t, h.Close())

	// Update in place.
	h, err = storage.Open(ctx, s, name, storage.ReadWrite)
	require.NoError(t, err)
	_, err = h.WriteAt([]byte("XY"), 0)
	require.NoError(t, err)
	require.NoError(t, h.Truncate(8))
	require.NoError(t, h.Close())

	h, err = storage.Open(ctx, s, name, storage.ReadOnly)
	require.NoError(t, err)
	all, err := storage.ReadAll(h)
	require.NoError(t, err)
	require.Equal(t, []byte{'X', 'Y', 0, 0, '0', '1', '2', '3'}, all)
	require.NoError(t, h.Close())

	require.NoError(t, s.Remove(ctx, name))
	ok, err = s.Exists(ctx, name)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStorage_RoundTrip(t *testing.T) {
	backends := map[string]func(t *testing.T) storage.Storage{
		"os": func(t *testing.T) storage.Storage { return storage.OS{Dir: t.TempDir()} },
		"memory": func(t *testing.T) storage.Storage {
			m := storage.NewMemory()
			t.Cleanup(func() { m.Close() })
			return m
		},
		"fileblob": func(t *testing.T) storage.Storage {
			b, err := storage.OpenBucket(context.Background(), "file://"+filepath.ToSlash(t.TempDir()))
			require.NoError(t, err)
			t.Cleanup(func() { b.Close() })
			return b
		},
	}
	for name, open := range backends {
		for _, file := range []string{"img.mrc", "img.mrc.gz", "img.mrc.zst"} {
			t.Run(name+"/"+file, func(t *testing.T) {
				roundTrip(t, open(t), file)
			})
		}
	}
}

func TestStorage_CompressedOnDisk(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	s := storage.OS{Dir: dir}

	plain := make([]byte, 4096)
	h, err := storage.Open(ctx, s, "zeros.spi.gz", storage.Truncate)
	require.NoError(t, err)
	_, err = h.WriteAt(plain, 0)
	require.NoError(t, err)
	require.NoError(t, h.Close())

	fi, err := os.Stat(filepath.Join(dir, "zeros.spi.gz"))
	require.NoError(t, err)
	require.Less(t, fi.Size(), int64(len(plain)))
	require.True(t, storage.IsCompressed("zeros.spi.gz"))
}

func TestStorage_MissingFile(t *testing.T) {
	ctx := context.Background()
	for _, s := range []storage.Storage{storage.OS{Dir: t.TempDir()}, storage.NewMemory()} {
		_, err := storage.Open(ctx, s, "missing.mrc", storage.ReadOnly)
		require.ErrorIs(t, err, emcore.ErrIO)
		require.ErrorIs(t, err, fs.ErrNotExist)
	}
}

func TestStorage_Glob(t *testing.T) {
	ctx := context.Background()
	m := storage.NewMemory()
	defer m.Close()
	for _, name := range []string{"mics/a.mrc", "mics/b.mrc", "mics/c.tif", "other/d.mrc"} {
		h, err := storage.Open(ctx, m, name, storage.Truncate)
		require.NoError(t, err)
		require.NoError(t, h.Close())
	}
	got, err := m.Glob(ctx, "mics/*.mrc")
	require.NoError(t, err)
	require.Equal(t, []string{"mics/a.mrc", "mics/b.mrc"}, got)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x.star"), nil, 0o644))
	got, err = storage.OS{Dir: dir}.Glob(ctx, "*.star")
	require.NoError(t, err)
	require.Equal(t, []string{"x.star"}, got)
}
