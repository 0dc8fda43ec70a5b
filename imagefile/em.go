package imagefile

import (
	"errors"
	"fmt"

	"github.com/TuSKan/emcore"
)

const emHeaderSize = 512

type emHeader struct {
	Machine  uint8
	General  uint8
	Unused   uint8
	DataType uint8
	NX       int32
	NY       int32
	NZ       int32
	Comment  [80]byte
	EMData   [40]int32
	UserData [256]byte
}

// Machine codes of the writing host: OS-9, VAX, Convex, SGI, Sun, Mac, PC.
var emMachineOrder = [...]emcore.ByteOrder{
	emcore.BigEndian,
	emcore.LittleEndian,
	emcore.BigEndian,
	emcore.BigEndian,
	emcore.BigEndian,
	emcore.BigEndian,
	emcore.LittleEndian,
}

var emDataTypes = map[uint8]emcore.Type{
	1: emcore.Uint8,
	2: emcore.Int16,
	4: emcore.Int32,
	5: emcore.Float32,
	8: emcore.Complex64,
	9: emcore.Float64,
}

var emFormat = FormatInfo{
	Name:       "em",
	Extensions: []string{"em"},
	Types:      []emcore.Type{emcore.Uint8, emcore.Int16, emcore.Int32, emcore.Float32, emcore.Complex64, emcore.Float64},
	ReadOnly:   true,
	New:        func() Impl { return &em{} },
}

type em struct {
	hdr emHeader
}

func (p *em) ReadHeader(s *Stream, h *Header) error {
	machine, err := s.Reader(emcore.NativeOrder()).ReadUint8()
	if err != nil {
		return emcore.NewError("read header", s.Name(), emcore.ErrInvalidFormat, err)
	}
	if int(machine) >= len(emMachineOrder) {
		return emcore.NewError("read header", s.Name(), emcore.ErrInvalidFormat, fmt.Errorf("unknown EM machine code %d", machine))
	}
	order := emMachineOrder[machine]
	if err := s.Reader(order).ReadStruct(&p.hdr); err != nil {
		return emcore.NewError("read header", s.Name(), emcore.ErrInvalidFormat, err)
	}
	t, ok := emDataTypes[p.hdr.DataType]
	if !ok {
		return emcore.NewError("read header", s.Name(), emcore.ErrUnsupportedType, fmt.Errorf("EM data type %d", p.hdr.DataType))
	}
	h.Dim = emcore.NewDim(int(p.hdr.NX), int(p.hdr.NY), int(p.hdr.NZ))
	h.Type = t
	h.Order = order
	h.Offset = emHeaderSize
	return nil
}

func (*em) WriteHeader(s *Stream, _ *Header) error {
	return emcore.NewError("write header", s.Name(), emcore.ErrUnsupportedOperation, errors.New("EM files are read only"))
}
