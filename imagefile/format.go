package imagefile

import (
	"context"
	"log/slog"

	"github.com/TuSKan/emcore"
	"github.com/TuSKan/emcore/internal/binary"
	"github.com/TuSKan/emcore/storage"
)

// Header is the format independent description of an image file.
//
// Item i (1-based) starts at Offset + (i-1)*(Pad+ItemBytes()). Pad is the
// size of the per-item header that precedes every item after the first
// one's, as in SPIDER stacks.
type Header struct {
	Dim    emcore.Dim
	Type   emcore.Type
	Order  emcore.ByteOrder
	Offset int64
	Pad    int64
	// Stack reports whether the file can hold more than one item.
	Stack bool
	// Codec, when set by the plugin, replaces the raw item layout.
	Codec ItemCodec
}

// ItemBytes returns the size of one item's pixel data.
func (h *Header) ItemBytes() int64 {
	return int64(h.Dim.ItemSize()) * int64(h.Type.Size())
}

// ItemOffset returns the position of item index.
func (h *Header) ItemOffset(index int) int64 {
	return h.Offset + int64(index-1)*(h.Pad+h.ItemBytes())
}

// DataSize returns the end of the last item.
func (h *Header) DataSize() int64 {
	if h.Dim.N == 0 {
		return h.Offset
	}
	return h.ItemOffset(h.Dim.N) + h.ItemBytes()
}

// Impl is a format plugin instance. A new instance is created for every
// session and may keep per-file state.
type Impl interface {
	// ReadHeader parses the header from s into h.
	ReadHeader(s *Stream, h *Header) error
	// WriteHeader serializes h into s. It is called when a file is created,
	// with h.Offset zero, and whenever the item count changes. For new files
	// it must set h.Offset, h.Pad and h.Stack.
	WriteHeader(s *Stream, h *Header) error
}

// ItemCodec transfers items of formats whose pixels are not stored as
// plain elements at Header.ItemOffset, such as 4-bit packed MRC or the
// compressed raster formats. Buffers hold h.ItemBytes() bytes of host
// order elements of h.Type.
type ItemCodec interface {
	ReadItem(s *Stream, h *Header, index int, dst []byte) error
	WriteItem(s *Stream, h *Header, index int, src []byte) error
}

// Opener is implemented by formats that need extra files next to the
// header file. Open is called right after the header file has been opened,
// before ReadHeader.
type Opener interface {
	Open(s *Stream) error
}

// Resolver maps a user supplied path to the header file of the format,
// for example "a.img" to "a.hed".
type Resolver interface {
	HeaderPath(name string) string
}

// Stream gives a format plugin access to the open files of a session.
type Stream struct {
	ctx     context.Context
	storage storage.Storage
	name    string
	mode    storage.Mode
	handle  storage.Handle
	data    storage.Handle
	extra   []storage.Handle
	opts    *options
	log     *slog.Logger
}

// Name returns the path of the header file.
func (s *Stream) Name() string { return s.name }

// Mode returns the access mode.
func (s *Stream) Mode() storage.Mode { return s.mode }

// Handle returns the header file.
func (s *Stream) Handle() storage.Handle { return s.handle }

// Data returns the file holding the pixel data, the header file unless a
// plugin attached a companion with SetData.
func (s *Stream) Data() storage.Handle { return s.data }

// Logger returns the session logger.
func (s *Stream) Logger() *slog.Logger { return s.log }

// Reader returns a binary reader on the header file.
func (s *Stream) Reader(order emcore.ByteOrder) *binary.Reader {
	return binary.NewReader(s.handle, order.Binary())
}

// Writer returns a binary writer on the header file.
func (s *Stream) Writer(order emcore.ByteOrder) *binary.Writer {
	return binary.NewWriter(s.handle, order.Binary())
}

// Size returns the size of the header file.
func (s *Stream) Size() (int64, error) { return s.handle.Size() }

// OpenCompanion opens another file of the session in the same storage and
// mode. It is closed together with the session.
func (s *Stream) OpenCompanion(name string) (storage.Handle, error) {
	h, err := storage.Open(s.ctx, s.storage, name, s.mode)
	if err != nil {
		return nil, err
	}
	s.extra = append(s.extra, h)
	return h, nil
}

// SetData makes h the file holding the pixel data.
func (s *Stream) SetData(h storage.Handle) { s.data = h }

func (s *Stream) close() error {
	var first error
	for i := len(s.extra) - 1; i >= 0; i-- {
		if err := s.extra[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	s.extra = nil
	if s.handle != nil {
		if err := s.handle.Close(); err != nil && first == nil {
			first = err
		}
	}
	s.handle, s.data = nil, nil
	return first
}
