// Package binary provides positioned binary I/O for the image file headers
// and tag streams.
package binary

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrInvalidSize is returned when an integer width other than 1, 2, 4 or 8
// is requested.
var ErrInvalidSize = errors.New("invalid integer size: must be 1, 2, 4, or 8")

// Reader reads fixed-width values from an io.ReaderAt, keeping its own
// position.
type Reader struct {
	r     io.ReaderAt
	order binary.ByteOrder
	pos   int64
}

// NewReader creates a binary reader decoding values in the given order.
func NewReader(r io.ReaderAt, order binary.ByteOrder) *Reader {
	return &Reader{r: r, order: order}
}

// At returns a new reader positioned at the given offset.
// The new reader shares the underlying io.ReaderAt but has independent position.
func (r *Reader) At(offset int64) *Reader {
	return &Reader{r: r.r, order: r.order, pos: offset}
}

// Pos returns the current read position.
func (r *Reader) Pos() int64 {
	return r.pos
}

// ReadFull fills buf from the current position.
func (r *Reader) ReadFull(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	n, err := r.r.ReadAt(buf, r.pos)
	r.pos += int64(n)
	if n == len(buf) {
		return nil
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return err
}

// ReadBytes reads exactly n bytes from the current position.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if err := r.ReadFull(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadUint8 reads an unsigned 8-bit integer.
func (r *Reader) ReadUint8() (uint8, error) {
	buf, err := r.ReadBytes(1)
	if err != nil {
		return 0, err
	}
	return buf[0], nil
}

// ReadUint16 reads an unsigned 16-bit integer.
func (r *Reader) ReadUint16() (uint16, error) {
	buf, err := r.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return r.order.Uint16(buf), nil
}

// ReadUint32 reads an unsigned 32-bit integer.
func (r *Reader) ReadUint32() (uint32, error) {
	buf, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return r.order.Uint32(buf), nil
}

// ReadUintN reads an unsigned integer of n bytes (1, 2, 4, or 8).
func (r *Reader) ReadUintN(n int) (uint64, error) {
	switch n {
	case 1, 2, 4, 8:
	default:
		return 0, fmt.Errorf("%w: %d", ErrInvalidSize, n)
	}
	buf, err := r.ReadBytes(n)
	if err != nil {
		return 0, err
	}
	return decodeUint(r.order, buf), nil
}

// ReadStruct decodes a fixed-size struct at the current position using
// encoding/binary rules and advances past it.
func (r *Reader) ReadStruct(v any) error {
	size := binary.Size(v)
	if size < 0 {
		return fmt.Errorf("%T has no fixed binary size", v)
	}
	buf, err := r.ReadBytes(size)
	if err != nil {
		return err
	}
	_, err = binary.Decode(buf, r.order, v)
	return err
}

// Skip advances the position by n bytes.
func (r *Reader) Skip(n int64) {
	r.pos += n
}

func decodeUint(order binary.ByteOrder, buf []byte) uint64 {
	switch len(buf) {
	case 1:
		return uint64(buf[0])
	case 2:
		return uint64(order.Uint16(buf))
	case 4:
		return uint64(order.Uint32(buf))
	}
	return order.Uint64(buf)
}
