package storage

import (
	"io"
	"sync"

	"github.com/TuSKan/emcore"
)

// memFile is a growable in-memory Handle. onClose, when set, receives the
// final content if the file was modified.
type memFile struct {
	mu      sync.Mutex
	data    []byte
	dirty   bool
	closed  bool
	onClose func(data []byte) error
}

func newMemFile(data []byte, onClose func([]byte) error) *memFile {
	return &memFile{data: data, onClose: onClose}
}

func (m *memFile) ReadAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if off < 0 {
		return 0, emcore.Errorf("read", emcore.ErrIO, "negative offset %d", off)
	}
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *memFile) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if off < 0 {
		return 0, emcore.Errorf("write", emcore.ErrIO, "negative offset %d", off)
	}
	if end := off + int64(len(p)); end > int64(len(m.data)) {
		m.grow(end)
	}
	m.dirty = true
	return copy(m.data[off:], p), nil
}

func (m *memFile) grow(size int64) {
	if size <= int64(cap(m.data)) {
		m.data = m.data[:size]
		return
	}
	data := make([]byte, size, max(size, 2*int64(cap(m.data))))
	copy(data, m.data)
	m.data = data
}

func (m *memFile) Size() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.data)), nil
}

func (m *memFile) Truncate(size int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case size < 0:
		return emcore.Errorf("truncate", emcore.ErrIO, "negative size %d", size)
	case size > int64(len(m.data)):
		m.grow(size)
	default:
		// Zero the cut tail so a later grow reads zeros.
		clear(m.data[size:])
		m.data = m.data[:size]
	}
	m.dirty = true
	return nil
}

func (m *memFile) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if m.dirty && m.onClose != nil {
		return m.onClose(m.data)
	}
	return nil
}
