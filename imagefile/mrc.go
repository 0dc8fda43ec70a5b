package imagefile

import (
	"bytes"
	"fmt"

	"github.com/TuSKan/emcore"
)

const (
	mrcHeaderSize = 1024
	mrcVersion    = 20140

	mrcModeInt8      = 0
	mrcModeInt16     = 1
	mrcModeFloat32   = 2
	mrcModeCInt16    = 3
	mrcModeComplex64 = 4
	mrcModeUint16    = 6
	mrcModeFloat16   = 12
	mrcModePacked4   = 101

	mrcSpaceGroupStack       = 0
	mrcSpaceGroupVolume      = 1
	mrcSpaceGroupVolumeStack = 401
)

// mrcHeader is the 1024 byte MRC2014 header.
type mrcHeader struct {
	NX, NY, NZ                int32
	Mode                      int32
	NXStart, NYStart, NZStart int32
	MX, MY, MZ                int32
	CellA                     [3]float32
	CellB                     [3]float32
	MapC, MapR, MapS          int32
	DMin, DMax, DMean         float32
	ISPG                      int32
	NSymBT                    int32
	Extra1                    [8]byte
	ExtType                   [4]byte
	NVersion                  int32
	Extra2                    [84]byte
	Origin                    [3]float32
	Map                       [4]byte
	MachSt                    [4]byte
	RMS                       float32
	NLabl                     int32
	Label                     [10][80]byte
}

var mrcFormat = FormatInfo{
	Name:            "mrc",
	Extensions:      []string{"mrc", "mrcs", "map", "st", "ali", "rec", "preali"},
	StackExtensions: []string{"mrcs"},
	Types: []emcore.Type{emcore.Int8, emcore.Uint8, emcore.Int16, emcore.Uint16,
		emcore.Float32, emcore.Float16, emcore.Complex64},
	New: func() Impl { return &mrc{} },
}

type mrc struct {
	hdr mrcHeader
}

// ExtendedHeader returns the size in bytes of the extended header and its
// type tag ("FEI1", "CCP4", ...).
func (m *mrc) ExtendedHeader() (int, string) {
	return int(m.hdr.NSymBT), string(bytes.TrimRight(m.hdr.ExtType[:], "\x00 "))
}

func mrcModeType(mode, version int32) (emcore.Type, error) {
	switch mode {
	case mrcModeInt8:
		if version >= mrcVersion {
			return emcore.Int8, nil
		}
		return emcore.Uint8, nil
	case mrcModeInt16:
		return emcore.Int16, nil
	case mrcModeFloat32:
		return emcore.Float32, nil
	case mrcModeComplex64:
		return emcore.Complex64, nil
	case mrcModeUint16:
		return emcore.Uint16, nil
	case mrcModeFloat16:
		return emcore.Float16, nil
	case mrcModePacked4:
		return emcore.Uint8, nil
	}
	return emcore.NullType, emcore.Errorf("read header", emcore.ErrUnsupportedType, "MRC mode %d", mode)
}

func mrcTypeMode(t emcore.Type) (mode, version int32, err error) {
	switch t {
	case emcore.Int8:
		return mrcModeInt8, mrcVersion, nil
	case emcore.Uint8:
		return mrcModeInt8, 0, nil
	case emcore.Int16:
		return mrcModeInt16, mrcVersion, nil
	case emcore.Float32:
		return mrcModeFloat32, mrcVersion, nil
	case emcore.Complex64:
		return mrcModeComplex64, mrcVersion, nil
	case emcore.Uint16:
		return mrcModeUint16, mrcVersion, nil
	case emcore.Float16:
		return mrcModeFloat16, mrcVersion, nil
	}
	return 0, 0, emcore.Errorf("write header", emcore.ErrUnsupportedType, "no MRC mode for %s", t)
}

func mrcStampOrder(st [4]byte) emcore.ByteOrder {
	switch st[0] {
	case 0x44, 0x41:
		return emcore.LittleEndian
	case 0x11:
		return emcore.BigEndian
	}
	return 0
}

func (h *mrcHeader) plausible() bool {
	if h.NX <= 0 || h.NY <= 0 || h.NZ <= 0 || h.NX > 1<<20 || h.NY > 1<<20 || h.NZ > 1<<24 {
		return false
	}
	if h.NSymBT < 0 || h.NSymBT > 1<<30 {
		return false
	}
	_, err := mrcModeType(h.Mode, 0)
	return err == nil || h.Mode == mrcModeCInt16
}

func (m *mrc) ReadHeader(s *Stream, h *Header) error {
	stamped := emcore.NativeOrder()
	raw, err := s.Reader(stamped).At(212).ReadBytes(4)
	if err != nil {
		return emcore.NewError("read header", s.Name(), emcore.ErrInvalidFormat, err)
	}
	if o := mrcStampOrder([4]byte(raw)); o != 0 {
		stamped = o
	}

	order := stamped
	if err := s.Reader(order).ReadStruct(&m.hdr); err != nil {
		return emcore.NewError("read header", s.Name(), emcore.ErrInvalidFormat, err)
	}
	if !m.hdr.plausible() {
		order = stamped.Swapped()
		if err := s.Reader(order).ReadStruct(&m.hdr); err != nil {
			return emcore.NewError("read header", s.Name(), emcore.ErrInvalidFormat, err)
		}
		if !m.hdr.plausible() {
			return emcore.NewError("read header", s.Name(), emcore.ErrInvalidFormat,
				fmt.Errorf("implausible MRC header: size %dx%dx%d, mode %d", m.hdr.NX, m.hdr.NY, m.hdr.NZ, m.hdr.Mode))
		}
		s.Logger().Warn("MRC machine stamp disagrees with header content", "stamp", fmt.Sprintf("% x", m.hdr.MachSt), "order", order)
	}

	t, err := mrcModeType(m.hdr.Mode, m.hdr.NVersion)
	if err != nil {
		return err
	}
	nx, ny, nz := int(m.hdr.NX), int(m.hdr.NY), int(m.hdr.NZ)
	switch m.hdr.ISPG {
	case mrcSpaceGroupStack:
		h.Dim = emcore.NewDim(nx, ny, 1, nz)
	case mrcSpaceGroupVolumeStack:
		mz := max(int(m.hdr.MZ), 1)
		if nz%mz != 0 {
			return emcore.NewError("read header", s.Name(), emcore.ErrInvalidFormat,
				fmt.Errorf("volume stack with nz %d not a multiple of mz %d", nz, mz))
		}
		h.Dim = emcore.NewDim(nx, ny, mz, nz/mz)
	default:
		h.Dim = emcore.NewDim(nx, ny, nz, 1)
	}
	h.Type = t
	h.Order = order
	h.Offset = mrcHeaderSize + int64(m.hdr.NSymBT)
	h.Stack = true
	if m.hdr.Mode == mrcModePacked4 {
		h.Codec = mrcPacked{}
	}
	return nil
}

func (m *mrc) WriteHeader(s *Stream, h *Header) error {
	if h.Codec != nil {
		return emcore.Errorf("write header", emcore.ErrUnsupportedOperation, "MRC mode %d files cannot be written", m.hdr.Mode)
	}
	mode, version, err := mrcTypeMode(h.Type)
	if err != nil {
		return err
	}
	fresh := h.Offset == 0
	hdr := &m.hdr
	if fresh {
		*hdr = mrcHeader{}
		// Statistics undetermined, see MRC2014.
		hdr.DMin, hdr.DMax, hdr.DMean, hdr.RMS = 0, -1, -2, -1
		hdr.MapC, hdr.MapR, hdr.MapS = 1, 2, 3
		hdr.CellB = [3]float32{90, 90, 90}
		copy(hdr.Map[:], "MAP ")
		hdr.NVersion = version
		h.Offset = mrcHeaderSize
		h.Pad = 0
		h.Stack = true
	}
	if h.Type == emcore.Uint8 || h.Type == emcore.Int8 {
		hdr.NVersion = version
	}
	d := h.Dim
	hdr.Mode = mode
	hdr.NX, hdr.NY = int32(d.X), int32(d.Y)
	switch {
	case d.N > 1 && d.Z > 1:
		hdr.ISPG = mrcSpaceGroupVolumeStack
		hdr.NZ, hdr.MZ = int32(d.Z*d.N), int32(d.Z)
	case d.Z > 1:
		hdr.ISPG = mrcSpaceGroupVolume
		hdr.NZ, hdr.MZ = int32(d.Z), int32(d.Z)
	default:
		hdr.ISPG = mrcSpaceGroupStack
		hdr.NZ, hdr.MZ = int32(d.N), 1
	}
	hdr.MX, hdr.MY = hdr.NX, hdr.NY
	if fresh {
		hdr.CellA = [3]float32{float32(hdr.MX), float32(hdr.MY), float32(hdr.MZ)}
	}
	if h.Order.Resolve() == emcore.LittleEndian {
		hdr.MachSt = [4]byte{0x44, 0x44, 0, 0}
	} else {
		hdr.MachSt = [4]byte{0x11, 0x11, 0, 0}
	}
	if err := s.Writer(h.Order).WriteStruct(hdr); err != nil {
		return emcore.NewError("write header", s.Name(), emcore.ErrIO, err)
	}
	return nil
}

// mrcPacked reads mode 101 items: two 4-bit values per byte, low nibble
// first, every row padded to a whole byte.
type mrcPacked struct{}

func (mrcPacked) rowBytes(h *Header) int64 { return int64(h.Dim.X+1) / 2 }

func (p mrcPacked) ReadItem(s *Stream, h *Header, index int, dst []byte) error {
	rows := int64(h.Dim.Y * h.Dim.Z)
	rb := p.rowBytes(h)
	raw := make([]byte, rows*rb)
	off := h.Offset + int64(index-1)*rows*rb
	if err := s.Reader(h.Order).At(off).ReadFull(raw); err != nil {
		return emcore.NewError("read", s.Name(), emcore.ErrIO, err)
	}
	nx := h.Dim.X
	for r := range int(rows) {
		row := raw[int64(r)*rb:]
		out := dst[r*nx : (r+1)*nx]
		for x := range out {
			b := row[x/2]
			if x%2 == 0 {
				out[x] = b & 0x0F
			} else {
				out[x] = b >> 4
			}
		}
	}
	return nil
}

func (mrcPacked) WriteItem(s *Stream, _ *Header, _ int, _ []byte) error {
	return emcore.NewError("write", s.Name(), emcore.ErrUnsupportedOperation, fmt.Errorf("MRC mode %d is read only", mrcModePacked4))
}
