package imagefile

import (
	"fmt"
	"time"

	"github.com/chewxy/math32"

	"github.com/TuSKan/emcore"
)

const (
	spiderHeaderSize = 1024
	// Values of nslice or iform beyond this magnitude mean the header was
	// decoded with the wrong byte order.
	spiderSwapTrigger = 65535

	spiderImage  = 1
	spiderVolume = 3
	// istack value of a stack's main header.
	spiderStack = 2
)

// spiderHeader is the fixed part of a SPIDER header; every field is a
// float32 word.
type spiderHeader struct {
	NSlice, NRow, IRec, _, IForm, IMAMI float32
	FMax, FMin, AV, Sig, _              float32
	NSam, LabRec, IAngle                float32
	Phi, Theta, Gamma                   float32
	XOff, YOff, ZOff, Scale             float32
	LabByt, LenByt, IStack, _           float32
	MaxIm, ImgNum, LastIndx             float32
	_                                   [2]float32
	KAngle                              float32
	Phi1, Theta1, Psi1                  float32
	Phi2, Theta2, Psi2                  float32
	PixSiz, EV, Proj, Mic, Num, GloNum  float32
	_                                   [168]float32
	Date                                [12]byte
	Time                                [8]byte
	Title                               [160]byte
}

var spiderFormat = FormatInfo{
	Name:       "spider",
	Extensions:      []string{"spi", "xmp", "vol", "stk", "stck", "spider"},
	StackExtensions: []string{"stk", "stck"},
	Types:           []emcore.Type{emcore.Float32},
	New:             func() Impl { return &spider{} },
}

type spider struct {
	hdr spiderHeader
}

func spiderIntegral(v float32) bool {
	return !math32.IsNaN(v) && math32.Abs(v) <= spiderSwapTrigger && math32.Trunc(v) == v
}

func (p *spider) ReadHeader(s *Stream, h *Header) error {
	order := emcore.NativeOrder()
	if err := s.Reader(order).ReadStruct(&p.hdr); err != nil {
		return emcore.NewError("read header", s.Name(), emcore.ErrInvalidFormat, err)
	}
	if !spiderIntegral(p.hdr.NSlice) || !spiderIntegral(p.hdr.IForm) {
		order = order.Swapped()
		if err := s.Reader(order).ReadStruct(&p.hdr); err != nil {
			return emcore.NewError("read header", s.Name(), emcore.ErrInvalidFormat, err)
		}
	}
	hd := &p.hdr
	switch int(hd.IForm) {
	case spiderImage, spiderVolume:
	case -11, -12, -21, -22:
		return emcore.NewError("read header", s.Name(), emcore.ErrUnsupportedType, fmt.Errorf("Fourier SPIDER file (iform %g)", hd.IForm))
	default:
		return emcore.NewError("read header", s.Name(), emcore.ErrInvalidFormat, fmt.Errorf("SPIDER iform %g", hd.IForm))
	}

	nsam, nrow, nslice := int(hd.NSam), int(hd.NRow), int(math32.Abs(hd.NSlice))
	lenbyt := nsam * 4
	labrec := (spiderHeaderSize + lenbyt - 1) / max(lenbyt, 1)
	labbyt := labrec * lenbyt
	if nsam <= 0 || int(hd.LenByt) != lenbyt || int(hd.LabRec) != labrec || int(hd.LabByt) != labbyt {
		return emcore.NewError("read header", s.Name(), emcore.ErrInvalidFormat,
			fmt.Errorf("inconsistent record sizes: nsam %g, lenbyt %g, labrec %g, labbyt %g", hd.NSam, hd.LenByt, hd.LabRec, hd.LabByt))
	}

	h.Type = emcore.Float32
	h.Order = order
	h.Offset = int64(labbyt)
	h.Stack = hd.IStack > 0
	n := 1
	if h.Stack {
		n = int(hd.MaxIm)
		h.Offset = 2 * int64(labbyt)
		h.Pad = int64(labbyt)
	}
	h.Dim = emcore.NewDim(nsam, nrow, nslice, n)
	return nil
}

func (p *spider) WriteHeader(s *Stream, h *Header) error {
	if h.Type != emcore.Float32 {
		return emcore.Errorf("write header", emcore.ErrUnsupportedType, "SPIDER stores float32, not %s", h.Type)
	}
	d := h.Dim
	lenbyt := d.X * 4
	labrec := (spiderHeaderSize + lenbyt - 1) / lenbyt
	labbyt := labrec * lenbyt
	if h.Offset == 0 {
		h.Stack = h.Stack || d.N > 1
		now := time.Now()
		hd := spiderHeader{
			NSlice: float32(d.Z),
			NRow:   float32(d.Y),
			NSam:   float32(d.X),
			IForm:  spiderImage,
			LabRec: float32(labrec),
			LabByt: float32(labbyt),
			LenByt: float32(lenbyt),
			Scale:  1,
		}
		if d.Z > 1 {
			hd.IForm = spiderVolume
		}
		copy(hd.Date[:], now.Format("02-Jan-2006"))
		copy(hd.Time[:], now.Format("15:04:05"))
		p.hdr = hd
		h.Offset, h.Pad = int64(labbyt), 0
		if h.Stack {
			h.Offset, h.Pad = 2*int64(labbyt), int64(labbyt)
		}
	}

	top := p.hdr
	top.IRec = float32(labrec + d.Y*d.Z)
	if h.Stack {
		top.IStack = spiderStack
		top.MaxIm = float32(d.N)
		top.ImgNum = float32(d.N)
	}
	w := s.Writer(h.Order)
	if err := w.WriteStruct(&top); err != nil {
		return emcore.NewError("write header", s.Name(), emcore.ErrIO, err)
	}
	if !h.Stack {
		return nil
	}
	img := top
	img.IStack, img.MaxIm = 0, 0
	for i := 1; i <= d.N; i++ {
		img.ImgNum = float32(i)
		if err := w.At(h.ItemOffset(i) - h.Pad).WriteStruct(&img); err != nil {
			return emcore.NewError("write header", s.Name(), emcore.ErrIO, err)
		}
	}
	return nil
}
