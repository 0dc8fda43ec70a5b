package binary

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Writer writes fixed-width values to an io.WriterAt, keeping its own
// position.
type Writer struct {
	w     io.WriterAt
	order binary.ByteOrder
	pos   int64
}

// NewWriter creates a binary writer encoding values in the given order.
func NewWriter(w io.WriterAt, order binary.ByteOrder) *Writer {
	return &Writer{w: w, order: order}
}

// At returns a new writer positioned at the given offset.
// The new writer shares the underlying io.WriterAt but has independent position.
func (w *Writer) At(offset int64) *Writer {
	return &Writer{w: w.w, order: w.order, pos: offset}
}

// WriteBytes writes the given bytes at the current position.
func (w *Writer) WriteBytes(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	n, err := w.w.WriteAt(data, w.pos)
	w.pos += int64(n)
	return err
}

// WriteStruct encodes a fixed-size struct at the current position using
// encoding/binary rules.
func (w *Writer) WriteStruct(v any) error {
	size := binary.Size(v)
	if size < 0 {
		return fmt.Errorf("%T has no fixed binary size", v)
	}
	buf := make([]byte, size)
	if _, err := binary.Encode(buf, w.order, v); err != nil {
		return err
	}
	return w.WriteBytes(buf)
}
