package imagefile

import (
	"bytes"
	"fmt"
	"time"

	"github.com/TuSKan/emcore"
	"github.com/TuSKan/emcore/storage"
)

const (
	imagicHeaderSize = 1024
	imagicVersion    = 20050101

	// REALTYPE machine stamps; the byte pattern is the same in both orders.
	imagicLittleEndian = 0x02020202
	imagicBigEndian    = 0x04040404
	imagicRealTypeOff  = 68 * 4
)

// imagicHeader is one 256 word IMAGIC-5 image header of a .hed file.
type imagicHeader struct {
	IMN, IFOL, IError, NHFR                     int32
	NMonth, NDay, NYear, NHour, NMinut, NSec    int32
	NPix2, NPixel, IXLP, IYLP                   int32
	Type                                        [4]byte
	IXOld, IYOld                                int32
	AvDens, Sigma, Varian, OldAvd               float32
	DensMax, DensMin                            float32
	Complex                                     int32
	CXLength, CYLength, CZLength, CAlpha, CBeta float32
	Name                                        [80]byte
	CGamma                                      float32
	MapC, MapR, MapS, ISPG                      int32
	NXStart, NYStart, NZStart                   int32
	NXIntv, NYIntv, NZIntv                      int32
	IZLP, I4LP, I5LP, I6LP                      int32
	Alpha, Beta, Gamma                          float32
	IMAVers, RealType                           int32
	_                                           [187]int32
}

var imagicTypes = []struct {
	code string
	typ  emcore.Type
}{
	{"PACK", emcore.Uint8},
	{"INTG", emcore.Int16},
	{"REAL", emcore.Float32},
	{"COMP", emcore.Complex64},
	{"LONG", emcore.Int32},
}

var imagicFormat = FormatInfo{
	Name:            "imagic",
	Extensions:      []string{"hed", "img"},
	StackExtensions: []string{"hed", "img"},
	Types:           []emcore.Type{emcore.Uint8, emcore.Int16, emcore.Int32, emcore.Float32, emcore.Complex64},
	New:             func() Impl { return &imagic{} },
}

// imagic keeps the headers in the .hed file and the pixels of all items in
// the .img file next to it.
type imagic struct {
	hdr imagicHeader
}

func (*imagic) HeaderPath(name string) string {
	if storage.Ext(name) == "img" {
		return storage.ReplaceExt(name, "hed")
	}
	return name
}

func (*imagic) Open(s *Stream) error {
	data, err := s.OpenCompanion(storage.ReplaceExt(s.Name(), "img"))
	if err != nil {
		return err
	}
	s.SetData(data)
	return nil
}

func (p *imagic) ReadHeader(s *Stream, h *Header) error {
	stamp, err := s.Reader(emcore.NativeOrder()).At(imagicRealTypeOff).ReadUint32()
	if err != nil {
		return emcore.NewError("read header", s.Name(), emcore.ErrInvalidFormat, err)
	}
	var order emcore.ByteOrder
	switch stamp {
	case imagicLittleEndian:
		order = emcore.LittleEndian
	case imagicBigEndian:
		order = emcore.BigEndian
	default:
		// Older files: guess from the image size.
		order = emcore.NativeOrder()
		var probe imagicHeader
		if err := s.Reader(order).ReadStruct(&probe); err != nil {
			return emcore.NewError("read header", s.Name(), emcore.ErrInvalidFormat, err)
		}
		if probe.IXLP <= 0 || probe.IXLP > 1<<20 {
			order = order.Swapped()
		}
	}
	if err := s.Reader(order).ReadStruct(&p.hdr); err != nil {
		return emcore.NewError("read header", s.Name(), emcore.ErrInvalidFormat, err)
	}

	code := string(bytes.TrimRight(p.hdr.Type[:], "\x00 "))
	h.Type = emcore.NullType
	for _, it := range imagicTypes {
		if it.code == code {
			h.Type = it.typ
		}
	}
	if h.Type.IsNull() {
		return emcore.NewError("read header", s.Name(), emcore.ErrUnsupportedType, fmt.Errorf("IMAGIC type %q", code))
	}
	n := int(p.hdr.IFOL) + 1
	h.Dim = emcore.NewDim(int(p.hdr.IYLP), int(p.hdr.IXLP), max(int(p.hdr.IZLP), 1), n)
	h.Order = order
	h.Stack = true

	size, err := s.Size()
	if err != nil {
		return err
	}
	if size < int64(n)*imagicHeaderSize {
		return emcore.NewError("read header", s.Name(), emcore.ErrInvalidFormat,
			fmt.Errorf("%d images but only %d header bytes", n, size))
	}
	return nil
}

func (p *imagic) WriteHeader(s *Stream, h *Header) error {
	code := ""
	for _, it := range imagicTypes {
		if it.typ == h.Type {
			code = it.code
		}
	}
	if code == "" {
		return emcore.Errorf("write header", emcore.ErrUnsupportedType, "no IMAGIC type for %s", h.Type)
	}
	d := h.Dim
	hd := &p.hdr
	if hd.IMAVers == 0 {
		now := time.Now()
		hd.NMonth, hd.NDay, hd.NYear = int32(now.Month()), int32(now.Day()), int32(now.Year())
		hd.NHour, hd.NMinut, hd.NSec = int32(now.Hour()), int32(now.Minute()), int32(now.Second())
		hd.IMAVers = imagicVersion
	}
	layout := func(img *imagicHeader) {
		copy(img.Type[:], code)
		img.IXLP, img.IYLP, img.IZLP = int32(d.Y), int32(d.X), int32(d.Z)
		img.NPixel = int32(d.ItemSize())
		img.NPix2 = img.NPixel
		img.I4LP = int32(d.N)
		if h.Order.Resolve() == emcore.LittleEndian {
			img.RealType = imagicLittleEndian
		} else {
			img.RealType = imagicBigEndian
		}
	}
	layout(hd)
	h.Offset, h.Pad, h.Stack = 0, 0, true

	// Records already in the file keep their per-image fields; new ones
	// start from the first image's header.
	size, err := s.Size()
	if err != nil {
		return err
	}
	have := int(size / imagicHeaderSize)
	r, w := s.Reader(h.Order), s.Writer(h.Order)
	for i := 1; i <= d.N; i++ {
		off := int64(i-1) * imagicHeaderSize
		img := *hd
		if i <= have {
			if err := r.At(off).ReadStruct(&img); err != nil {
				return emcore.NewError("write header", s.Name(), emcore.ErrIO, err)
			}
			layout(&img)
		}
		img.IMN = int32(i)
		img.IFOL = 0
		if i == 1 {
			img.IFOL = int32(d.N - 1)
		}
		if err := w.At(off).WriteStruct(&img); err != nil {
			return emcore.NewError("write header", s.Name(), emcore.ErrIO, err)
		}
	}
	// The two files always describe the same number of images.
	if err := s.Handle().Truncate(int64(d.N) * imagicHeaderSize); err != nil {
		return err
	}
	return s.Data().Truncate(h.DataSize())
}
