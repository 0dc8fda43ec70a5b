package imagefile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"unicode/utf16"

	"github.com/TuSKan/emcore"
	ebinary "github.com/TuSKan/emcore/internal/binary"
)

// DM tag entry kinds and info array type codes.
const (
	dmTagGroup = 20
	dmTagData  = 21

	dmInt16   = 2
	dmInt32   = 3
	dmUint16  = 4
	dmUint32  = 5
	dmFloat32 = 6
	dmFloat64 = 7
	dmBool    = 8
	dmChar    = 9
	dmOctet   = 10
	dmInt64   = 11
	dmUint64  = 12
	dmStruct  = 15
	dmString  = 18
	dmArray   = 20

	// Text arrays up to this many characters are decoded into strings.
	dmMaxText = 4096
)

var dmDataTypes = map[int64]emcore.Type{
	1:  emcore.Int16,
	2:  emcore.Float32,
	3:  emcore.Complex64,
	6:  emcore.Uint8,
	7:  emcore.Int32,
	9:  emcore.Int8,
	10: emcore.Uint16,
	11: emcore.Uint32,
	12: emcore.Float64,
	13: emcore.Complex128,
	14: emcore.Uint8,
}

var dmFormat = FormatInfo{
	Name:       "dm",
	Extensions: []string{"dm3", "dm4"},
	Types: []emcore.Type{emcore.Int8, emcore.Uint8, emcore.Int16, emcore.Uint16, emcore.Int32,
		emcore.Uint32, emcore.Float32, emcore.Float64, emcore.Complex64, emcore.Complex128},
	ReadOnly: true,
	New:      func() Impl { return &dm{} },
}

// DMTag is a node of the tag tree of a Digital Micrograph file. Groups
// have Tags; data entries have a Value, except for arrays, which are
// described by their position in the file.
type DMTag struct {
	Name  string
	Group bool
	Tags  []*DMTag
	// Value is the decoded scalar, string or struct ([]any) of a data entry.
	Value any
	// Offset, Count and ElemSize locate the payload of array entries.
	Offset   int64
	Count    int64
	ElemSize int
}

// Find walks down the tree by tag names and returns the addressed entry,
// or nil.
func (t *DMTag) Find(path ...string) *DMTag {
	cur := t
	for _, name := range path {
		var next *DMTag
		for _, c := range cur.Tags {
			if c.Name == name {
				next = c
				break
			}
		}
		if next == nil {
			return nil
		}
		cur = next
	}
	return cur
}

// Int returns a numeric Value as an int64.
func (t *DMTag) Int() (int64, bool) {
	switch v := t.Value.(type) {
	case int8:
		return int64(v), true
	case uint8:
		return int64(v), true
	case int16:
		return int64(v), true
	case uint16:
		return int64(v), true
	case int32:
		return int64(v), true
	case uint32:
		return int64(v), true
	case int64:
		return v, true
	case uint64:
		return int64(v), true
	case float32:
		return int64(v), true
	case float64:
		return int64(v), true
	}
	return 0, false
}

// DMTags returns the tag tree of a file opened with the DM format.
func DMTags(f *File) (*DMTag, bool) {
	p, ok := f.Impl().(*dm)
	if !ok || p.root == nil {
		return nil, false
	}
	return p.root, true
}

type dm struct {
	root *DMTag
}

type dmParser struct {
	r       *ebinary.Reader
	order   binary.ByteOrder
	width   int
	version int
}

func (p *dm) ReadHeader(s *Stream, h *Header) error {
	r := s.Reader(emcore.BigEndian)
	version, err := r.ReadUint32()
	if err != nil {
		return emcore.NewError("read header", s.Name(), emcore.ErrInvalidFormat, err)
	}
	width := 4
	switch version {
	case 3:
	case 4:
		width = 8
	default:
		return emcore.NewError("read header", s.Name(), emcore.ErrInvalidFormat, fmt.Errorf("DM version %d", version))
	}
	if _, err := r.ReadUintN(width); err != nil {
		return emcore.NewError("read header", s.Name(), emcore.ErrInvalidFormat, err)
	}
	lo, err := r.ReadUint32()
	if err != nil {
		return emcore.NewError("read header", s.Name(), emcore.ErrInvalidFormat, err)
	}
	order := emcore.BigEndian
	if lo == 1 {
		order = emcore.LittleEndian
	}

	dp := &dmParser{r: r, order: order.Binary(), width: width, version: int(version)}
	root := &DMTag{Group: true}
	if err := dp.readGroup(root); err != nil {
		return emcore.NewError("read header", s.Name(), emcore.ErrInvalidFormat, err)
	}
	p.root = root

	data, dims, dtype, err := dmImage(root)
	if err != nil {
		return emcore.NewError("read header", s.Name(), emcore.ErrInvalidFormat, err)
	}
	t, ok := dmDataTypes[dtype]
	if !ok {
		return emcore.NewError("read header", s.Name(), emcore.ErrUnsupportedType, fmt.Errorf("DM data type %d", dtype))
	}
	d := emcore.NewDim(dims[0], dims[1:]...)
	if int64(d.Size())*int64(t.Size()) != data.Count*int64(data.ElemSize) {
		return emcore.NewError("read header", s.Name(), emcore.ErrInvalidFormat,
			fmt.Errorf("image %s %s does not match %d data bytes", d, t, data.Count*int64(data.ElemSize)))
	}
	h.Dim = d
	h.Type = t
	h.Order = order
	h.Offset = data.Offset
	return nil
}

func (*dm) WriteHeader(s *Stream, _ *Header) error {
	return emcore.NewError("write header", s.Name(), emcore.ErrUnsupportedOperation, errors.New("DM files are read only"))
}

// dmImage picks the last ImageList entry carrying pixel data; the first
// one is usually the thumbnail.
func dmImage(root *DMTag) (*DMTag, []int, int64, error) {
	list := root.Find("ImageList")
	if list == nil {
		return nil, nil, 0, errors.New("no ImageList tag")
	}
	for i := len(list.Tags) - 1; i >= 0; i-- {
		img := list.Tags[i]
		data := img.Find("ImageData", "Data")
		if data == nil || data.Count == 0 {
			continue
		}
		var dims []int
		if dt := img.Find("ImageData", "Dimensions"); dt != nil {
			for _, c := range dt.Tags {
				if v, ok := c.Int(); ok {
					dims = append(dims, int(v))
				}
			}
		}
		if len(dims) == 0 || len(dims) > 3 {
			return nil, nil, 0, fmt.Errorf("image with %d dimensions", len(dims))
		}
		dtype := int64(0)
		if dt := img.Find("ImageData", "DataType"); dt != nil {
			dtype, _ = dt.Int()
		}
		return data, dims, dtype, nil
	}
	return nil, nil, 0, errors.New("no image data in ImageList")
}

func (p *dmParser) count() (int64, error) {
	v, err := p.r.ReadUintN(p.width)
	if err != nil {
		return 0, err
	}
	if v > math.MaxInt32 {
		return 0, fmt.Errorf("tag count %d out of range", v)
	}
	return int64(v), nil
}

func (p *dmParser) readGroup(g *DMTag) error {
	p.r.Skip(2) // sorted, open
	n, err := p.count()
	if err != nil {
		return err
	}
	for range n {
		t, err := p.readTag()
		if err != nil {
			return err
		}
		g.Tags = append(g.Tags, t)
	}
	return nil
}

func (p *dmParser) readTag() (*DMTag, error) {
	kind, err := p.r.ReadUint8()
	if err != nil {
		return nil, err
	}
	nl, err := p.r.ReadUint16()
	if err != nil {
		return nil, err
	}
	name, err := p.r.ReadBytes(int(nl))
	if err != nil {
		return nil, err
	}
	if p.version == 4 {
		p.r.Skip(8) // tag size
	}
	t := &DMTag{Name: string(name)}
	switch kind {
	case dmTagGroup:
		t.Group = true
		err = p.readGroup(t)
	case dmTagData:
		err = p.readData(t)
	default:
		err = fmt.Errorf("tag %q has unknown kind %d at %d", name, kind, p.r.Pos())
	}
	return t, err
}

func (p *dmParser) readData(t *DMTag) error {
	magic, err := p.r.ReadBytes(4)
	if err != nil {
		return err
	}
	if string(magic) != "%%%%" {
		return fmt.Errorf("tag %q lacks the %%%%%%%% marker", t.Name)
	}
	n, err := p.count()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("tag %q has no type info", t.Name)
	}
	info := make([]int64, n)
	for i := range info {
		if info[i], err = p.count(); err != nil {
			return err
		}
	}
	return p.readValue(t, info)
}

func dmSize(code int64) int {
	switch code {
	case dmBool, dmChar, dmOctet:
		return 1
	case dmInt16, dmUint16:
		return 2
	case dmInt32, dmUint32, dmFloat32:
		return 4
	case dmFloat64, dmInt64, dmUint64:
		return 8
	}
	return 0
}

func (p *dmParser) readValue(t *DMTag, info []int64) error {
	bad := func() error { return fmt.Errorf("tag %q has malformed type info %v", t.Name, info) }
	switch info[0] {
	case dmStruct:
		if len(info) < 3 || int64(len(info)) < 3+2*info[2] {
			return bad()
		}
		fields := make([]any, info[2])
		for i := range fields {
			v, err := p.readSimple(info[4+2*i])
			if err != nil {
				return err
			}
			fields[i] = v
		}
		t.Value = fields
	case dmString:
		if len(info) < 2 {
			return bad()
		}
		buf, err := p.r.ReadBytes(int(info[1]) * 2)
		if err != nil {
			return err
		}
		t.Value = p.text(buf)
	case dmArray:
		if len(info) < 3 {
			return bad()
		}
		elem := info[1]
		size := dmSize(elem)
		if elem == dmStruct {
			// [20, 15, namelen, nfields, (namelen, type)..., count]
			if len(info) < 4 || int64(len(info)) < 5+2*info[3] {
				return bad()
			}
			for i := range info[3] {
				size += dmSize(info[5+2*i])
			}
		}
		if size == 0 {
			return bad()
		}
		t.Count = info[len(info)-1]
		t.ElemSize = size
		t.Offset = p.r.Pos()
		if elem == dmUint16 && t.Count <= dmMaxText {
			buf, err := p.r.ReadBytes(int(t.Count) * 2)
			if err != nil {
				return err
			}
			t.Value = p.text(buf)
			return nil
		}
		p.r.Skip(t.Count * int64(size))
	default:
		v, err := p.readSimple(info[0])
		if err != nil {
			return err
		}
		t.Value = v
	}
	return nil
}

func (p *dmParser) text(buf []byte) string {
	u := make([]uint16, len(buf)/2)
	for i := range u {
		u[i] = p.order.Uint16(buf[2*i:])
	}
	return string(utf16.Decode(u))
}

func (p *dmParser) readSimple(code int64) (any, error) {
	size := dmSize(code)
	if size == 0 {
		return nil, fmt.Errorf("unknown DM value type %d", code)
	}
	buf, err := p.r.ReadBytes(size)
	if err != nil {
		return nil, err
	}
	o := p.order
	switch code {
	case dmInt16:
		return int16(o.Uint16(buf)), nil
	case dmUint16:
		return o.Uint16(buf), nil
	case dmInt32:
		return int32(o.Uint32(buf)), nil
	case dmUint32:
		return o.Uint32(buf), nil
	case dmFloat32:
		return math.Float32frombits(o.Uint32(buf)), nil
	case dmFloat64:
		return math.Float64frombits(o.Uint64(buf)), nil
	case dmBool:
		return buf[0] != 0, nil
	case dmChar:
		return int8(buf[0]), nil
	case dmOctet:
		return buf[0], nil
	case dmInt64:
		return int64(o.Uint64(buf)), nil
	}
	return o.Uint64(buf), nil
}
