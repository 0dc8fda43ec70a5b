package imagefile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"
	"golang.org/x/image/tiff"

	"github.com/TuSKan/emcore"
	"github.com/TuSKan/emcore/storage"
)

var (
	tiffFormat = FormatInfo{
		Name:       "tiff",
		Extensions: []string{"tif", "tiff"},
		Types:      []emcore.Type{emcore.Uint8, emcore.Uint16},
		New:        func() Impl { return &raster{encode: encodeTIFF} },
	}
	pngFormat = FormatInfo{
		Name:       "png",
		Extensions: []string{"png"},
		Types:      []emcore.Type{emcore.Uint8, emcore.Uint16},
		New:        func() Impl { return &raster{encode: encodePNG} },
	}
	jpegFormat = FormatInfo{
		Name:       "jpeg",
		Extensions: []string{"jpg", "jpeg"},
		Types:      []emcore.Type{emcore.Uint8},
		New:        func() Impl { return &raster{encode: encodeJPEG} },
	}
)

// raster holds a whole single image decoded in memory. Pixels are kept as
// host order elements and the file is re-encoded on every write.
type raster struct {
	encode func(io.Writer, image.Image) error
	pix    []byte
}

func encodeTIFF(w io.Writer, img image.Image) error {
	return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
}

func encodePNG(w io.Writer, img image.Image) error {
	return imaging.Encode(w, img, imaging.PNG)
}

func encodeJPEG(w io.Writer, img image.Image) error {
	return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(95))
}

func (r *raster) ReadHeader(s *Stream, h *Header) error {
	data, err := storage.ReadAll(s.Handle())
	if err != nil {
		return err
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return emcore.NewError("read header", s.Name(), emcore.ErrInvalidFormat, err)
	}
	b := img.Bounds()
	w, ht := b.Dx(), b.Dy()
	host := emcore.NativeOrder().Binary()

	switch g := img.(type) {
	case *image.Gray:
		h.Type = emcore.Uint8
		r.pix = make([]byte, 0, w*ht)
		for y := range ht {
			r.pix = append(r.pix, g.Pix[y*g.Stride:y*g.Stride+w]...)
		}
	case *image.Gray16:
		h.Type = emcore.Uint16
		r.pix = make([]byte, 2*w*ht)
		for y := range ht {
			row := g.Pix[y*g.Stride:]
			for x := range w {
				host.PutUint16(r.pix[2*(y*w+x):], binary.BigEndian.Uint16(row[2*x:]))
			}
		}
	default:
		s.Logger().Debug("converting color image to 8 bit gray", "model", fmt.Sprintf("%T", img))
		gray := imaging.Grayscale(img)
		h.Type = emcore.Uint8
		r.pix = make([]byte, w*ht)
		for i := range r.pix {
			r.pix[i] = gray.Pix[4*i]
		}
	}
	h.Dim = emcore.NewDim(w, ht)
	h.Order = emcore.NativeOrder()
	h.Codec = r
	return nil
}

func (r *raster) WriteHeader(s *Stream, h *Header) error {
	if h.Dim.Z != 1 || h.Dim.N != 1 {
		return emcore.NewError("write header", s.Name(), emcore.ErrInvalidOperation,
			fmt.Errorf("%s is not a single 2D image", h.Dim))
	}
	h.Offset, h.Pad, h.Stack = 0, 0, false
	h.Order = emcore.NativeOrder()
	h.Codec = r
	r.pix = make([]byte, h.ItemBytes())
	return r.flush(s, h)
}

func (r *raster) ReadItem(_ *Stream, _ *Header, _ int, dst []byte) error {
	copy(dst, r.pix)
	return nil
}

func (r *raster) WriteItem(s *Stream, h *Header, _ int, src []byte) error {
	copy(r.pix, src)
	return r.flush(s, h)
}

func (r *raster) image(h *Header) image.Image {
	rect := image.Rect(0, 0, h.Dim.X, h.Dim.Y)
	if h.Type == emcore.Uint16 {
		img := image.NewGray16(rect)
		host := emcore.NativeOrder().Binary()
		for i := range h.Dim.SliceSize() {
			binary.BigEndian.PutUint16(img.Pix[2*i:], host.Uint16(r.pix[2*i:]))
		}
		return img
	}
	img := image.NewGray(rect)
	copy(img.Pix, r.pix)
	return img
}

func (r *raster) flush(s *Stream, h *Header) error {
	var buf bytes.Buffer
	if err := r.encode(&buf, r.image(h)); err != nil {
		return emcore.NewError("write", s.Name(), emcore.ErrIO, err)
	}
	return storage.Replace(s.Handle(), buf.Bytes())
}
