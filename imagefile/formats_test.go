package imagefile_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TuSKan/emcore"
	"github.com/TuSKan/emcore/imagefile"
	"github.com/TuSKan/emcore/storage"
)

func TestMRC_ByteOrders(t *testing.T) {
	ctx := context.Background()
	for _, order := range []emcore.ByteOrder{emcore.LittleEndian, emcore.BigEndian} {
		t.Run(order.String(), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "vol.mrc")
			vol := ramp(t, emcore.NewDim(3, 2, 2))
			f, err := imagefile.Open(ctx, path, storage.Truncate, imagefile.WithByteOrder(order))
			require.NoError(t, err)
			require.NoError(t, f.Write(1, vol))
			require.NoError(t, f.Close())

			raw, err := os.ReadFile(path)
			require.NoError(t, err)
			require.Len(t, raw, 1024+12*4)
			require.Equal(t, uint32(3), order.Binary().Uint32(raw[0:]))
			if order == emcore.BigEndian {
				require.Equal(t, []byte{0x11, 0x11}, raw[212:214])
			} else {
				require.Equal(t, []byte{0x44, 0x44}, raw[212:214])
			}
			require.Equal(t, "MAP ", string(raw[208:212]))

			f, err = imagefile.Open(ctx, path, storage.ReadOnly)
			require.NoError(t, err)
			defer f.Close()
			require.Equal(t, order.Resolve(), f.Header().Order)
			require.Equal(t, emcore.NewDim(3, 2, 2), f.Dim())
			var got emcore.Array
			require.NoError(t, f.Read(1, &got))
			require.True(t, got.Equal(vol))
		})
	}
}

func TestMRC_VolumeStack(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vols.mrcs")
	src := ramp(t, emcore.NewDim(2, 2, 3, 2))
	f, err := imagefile.Open(ctx, path, storage.Truncate)
	require.NoError(t, err)
	require.NoError(t, f.Write(1, src))
	require.NoError(t, f.Close())

	f, err = imagefile.Open(ctx, path, storage.ReadOnly)
	require.NoError(t, err)
	defer f.Close()
	require.Equal(t, emcore.NewDim(2, 2, 3, 2), f.Dim())
	var got emcore.Array
	require.NoError(t, f.Read(2, &got))
	require.Equal(t, emcore.NewDim(2, 2, 3), got.Dim())
	require.Equal(t, float32(13), emcore.Values[float32](&got)[0])
}

func TestMRC_EightBitModes(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	signed, err := emcore.WrapArray(emcore.NewDim(4), []int8{-128, -1, 0, 127})
	require.NoError(t, err)
	unsigned, err := emcore.WrapArray(emcore.NewDim(4), []uint8{0, 1, 200, 255})
	require.NoError(t, err)

	for name, src := range map[string]*emcore.Array{"signed.mrc": signed, "unsigned.mrc": unsigned} {
		path := filepath.Join(dir, name)
		f, err := imagefile.Open(ctx, path, storage.Truncate)
		require.NoError(t, err)
		require.NoError(t, f.Write(1, src))
		require.NoError(t, f.Close())

		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Zero(t, binary.LittleEndian.Uint32(raw[12:])|binary.BigEndian.Uint32(raw[12:]), "mode of %s", name)

		f, err = imagefile.Open(ctx, path, storage.ReadOnly)
		require.NoError(t, err)
		require.Equal(t, src.Type(), f.Type(), name)
		var got emcore.Array
		require.NoError(t, f.Read(1, &got))
		require.True(t, got.Equal(src), name)
		require.NoError(t, f.Close())
	}
}

// mrcFixture returns a little endian header for an nx x ny x nz map of
// the given mode, without machine stamp when order is big endian.
func mrcFixture(order binary.ByteOrder, nx, ny, nz, mode int32) []byte {
	hdr := make([]byte, 1024)
	order.PutUint32(hdr[0:], uint32(nx))
	order.PutUint32(hdr[4:], uint32(ny))
	order.PutUint32(hdr[8:], uint32(nz))
	order.PutUint32(hdr[12:], uint32(mode))
	order.PutUint32(hdr[88:], 1)
	copy(hdr[208:], "MAP ")
	if order == binary.LittleEndian {
		copy(hdr[212:], []byte{0x44, 0x44})
	}
	return hdr
}

func TestMRC_MissingStamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.map")
	data := mrcFixture(binary.BigEndian, 2, 1, 1, 2)
	data = binary.BigEndian.AppendUint32(data, math.Float32bits(1.5))
	data = binary.BigEndian.AppendUint32(data, math.Float32bits(-2))
	require.NoError(t, os.WriteFile(path, data, 0o644))

	f, err := imagefile.Open(context.Background(), path, storage.ReadOnly)
	require.NoError(t, err)
	defer f.Close()
	require.Equal(t, emcore.BigEndian, f.Header().Order)
	var got emcore.Array
	require.NoError(t, f.Read(1, &got))
	require.Equal(t, []float32{1.5, -2}, emcore.Values[float32](&got))
}

func TestMRC_Packed4Bit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "packed.mrc")
	data := mrcFixture(binary.LittleEndian, 3, 2, 1, 101)
	data = append(data, 0x21, 0x03, 0x54, 0x06)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	f, err := imagefile.Open(context.Background(), path, storage.ReadOnly)
	require.NoError(t, err)
	defer f.Close()
	require.Equal(t, emcore.Uint8, f.Type())
	var got emcore.Array
	require.NoError(t, f.Read(1, &got))
	require.Equal(t, []uint8{1, 2, 3, 4, 5, 6}, emcore.Values[uint8](&got))
}

func TestMRC_Truncated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.mrc")
	data := mrcFixture(binary.LittleEndian, 8, 8, 1, 2)
	require.NoError(t, os.WriteFile(path, append(data, 1, 2, 3), 0o644))

	_, err := imagefile.Open(context.Background(), path, storage.ReadOnly)
	require.ErrorIs(t, err, emcore.ErrInvalidFormat)

	require.NoError(t, os.WriteFile(path, data[:100], 0o644))
	_, err = imagefile.Open(context.Background(), path, storage.ReadOnly)
	require.ErrorIs(t, err, emcore.ErrInvalidFormat)
}

func TestMRC_CompressedInMemory(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	defer mem.Close()
	src := ramp(t, emcore.NewDim(8, 8, 1, 2))

	f, err := imagefile.Open(ctx, "runs/particles.mrcs.gz", storage.Truncate, imagefile.WithStorage(mem))
	require.NoError(t, err)
	require.NoError(t, f.Write(1, src))
	require.NoError(t, f.Close())

	ok, err := mem.Exists(ctx, "runs/particles.mrcs.gz")
	require.NoError(t, err)
	require.True(t, ok)

	f, err = imagefile.Open(ctx, "runs/particles.mrcs.gz", storage.ReadOnly, imagefile.WithStorage(mem))
	require.NoError(t, err)
	defer f.Close()
	var got emcore.Array
	require.NoError(t, f.ReadStack(1, 0, &got))
	require.True(t, got.Equal(src))
}

func TestImagic_HeaderAndData(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	src, err := emcore.WrapArray(emcore.NewDim(3, 2, 1, 2), []int16{1, 2, 3, 4, 5, 6, -1, -2, -3, -4, -5, -6})
	require.NoError(t, err)

	f, err := imagefile.Open(ctx, filepath.Join(dir, "class.img"), storage.Truncate)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "class.hed"), f.Path())
	require.NoError(t, f.Write(1, src))
	require.NoError(t, f.Close())

	hed, err := os.Stat(filepath.Join(dir, "class.hed"))
	require.NoError(t, err)
	require.EqualValues(t, 2*1024, hed.Size())
	img, err := os.Stat(filepath.Join(dir, "class.img"))
	require.NoError(t, err)
	require.EqualValues(t, 12*2, img.Size())

	f, err = imagefile.Open(ctx, filepath.Join(dir, "class.hed"), storage.ReadWrite)
	require.NoError(t, err)
	require.Equal(t, emcore.NewDim(3, 2, 1, 2), f.Dim())
	require.Equal(t, emcore.Int16, f.Type())
	var got emcore.Array
	require.NoError(t, f.Read(2, &got))
	require.Equal(t, []int16{-1, -2, -3, -4, -5, -6}, emcore.Values[int16](&got))

	require.NoError(t, f.Write(3, &got))
	require.NoError(t, f.Close())
	hed, err = os.Stat(filepath.Join(dir, "class.hed"))
	require.NoError(t, err)
	require.EqualValues(t, 3*1024, hed.Size())
}

func TestImagic_ExpandKeepsRecords(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	hedPath := filepath.Join(dir, "avg.hed")
	src := ramp(t, emcore.NewDim(2, 2, 1, 2))

	f, err := imagefile.Open(ctx, hedPath, storage.Truncate, imagefile.WithByteOrder(emcore.LittleEndian))
	require.NoError(t, err)
	require.NoError(t, f.Write(1, src))
	require.NoError(t, f.Close())

	// Label the second image record by hand.
	const nameOff, i4lpOff = 29 * 4, 61 * 4
	raw, err := os.ReadFile(hedPath)
	require.NoError(t, err)
	copy(raw[1024+nameOff:], "second")
	require.NoError(t, os.WriteFile(hedPath, raw, 0o644))

	f, err = imagefile.Open(ctx, hedPath, storage.ReadWrite)
	require.NoError(t, err)
	require.Equal(t, emcore.LittleEndian, f.Header().Order)
	require.NoError(t, f.Expand(3))
	require.NoError(t, f.Write(3, ramp(t, emcore.NewDim(2, 2))))
	require.NoError(t, f.Close())

	raw, err = os.ReadFile(hedPath)
	require.NoError(t, err)
	require.Len(t, raw, 3*1024)
	img, err := os.Stat(filepath.Join(dir, "avg.img"))
	require.NoError(t, err)
	require.EqualValues(t, 3*4*4, img.Size())

	require.Equal(t, "second", string(raw[1024+nameOff:1024+nameOff+6]))
	require.Equal(t, make([]byte, 6), raw[2048+nameOff:2048+nameOff+6])
	for i := range 3 {
		rec := raw[i*1024:]
		require.EqualValues(t, i+1, binary.LittleEndian.Uint32(rec), "IMN of record %d", i+1)
		require.EqualValues(t, 3, binary.LittleEndian.Uint32(rec[i4lpOff:]), "I4LP of record %d", i+1)
	}
	require.EqualValues(t, 2, binary.LittleEndian.Uint32(raw[4:]), "IFOL of the first record")

	f, err = imagefile.Open(ctx, hedPath, storage.ReadOnly)
	require.NoError(t, err)
	defer f.Close()
	var got emcore.Array
	require.NoError(t, f.Read(2, &got))
	require.Equal(t, []float32{5, 6, 7, 8}, emcore.Values[float32](&got))
}

func TestEM_Read(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tomo.em")
	data := make([]byte, 512)
	data[0] = 6 // PC
	data[3] = 5 // float
	binary.LittleEndian.PutUint32(data[4:], 2)
	binary.LittleEndian.PutUint32(data[8:], 2)
	binary.LittleEndian.PutUint32(data[12:], 1)
	for _, v := range []float32{0.5, 1, 1.5, 2} {
		data = binary.LittleEndian.AppendUint32(data, math.Float32bits(v))
	}
	require.NoError(t, os.WriteFile(path, data, 0o644))

	f, err := imagefile.Open(ctx, path, storage.ReadOnly)
	require.NoError(t, err)
	require.Equal(t, emcore.NewDim(2, 2), f.Dim())
	var got emcore.Array
	require.NoError(t, f.Read(1, &got))
	require.Equal(t, []float32{0.5, 1, 1.5, 2}, emcore.Values[float32](&got))
	require.NoError(t, f.Close())

	_, err = imagefile.Open(ctx, path, storage.ReadWrite)
	require.ErrorIs(t, err, emcore.ErrUnsupportedOperation)
	_, err = imagefile.Open(ctx, filepath.Join(t.TempDir(), "new.em"), storage.Truncate)
	require.ErrorIs(t, err, emcore.ErrUnsupportedOperation)
}

// dmBuilder writes DM3 or DM4 tag trees: structure in big endian, values
// in little endian.
type dmBuilder struct {
	bytes.Buffer
	v4 bool
}

func (b *dmBuilder) u8(v uint8)   { b.WriteByte(v) }
func (b *dmBuilder) u16(v uint16) { b.Write(binary.BigEndian.AppendUint16(nil, v)) }
func (b *dmBuilder) u32(v uint32) { b.Write(binary.BigEndian.AppendUint32(nil, v)) }

// count writes a size or count word, 8 bytes wide in DM4.
func (b *dmBuilder) count(v uint32) {
	if b.v4 {
		b.Write(binary.BigEndian.AppendUint64(nil, uint64(v)))
		return
	}
	b.u32(v)
}

func (b *dmBuilder) header() {
	if b.v4 {
		b.u32(4)
	} else {
		b.u32(3)
	}
	b.count(0)
	b.u32(1)
}

func (b *dmBuilder) name(kind uint8, name string) {
	b.u8(kind)
	b.u16(uint16(len(name)))
	b.WriteString(name)
	if b.v4 {
		b.Write(make([]byte, 8))
	}
}

func (b *dmBuilder) group(name string, n int) {
	b.name(20, name)
	b.u8(0)
	b.u8(1)
	b.count(uint32(n))
}

func (b *dmBuilder) data(name string, info ...uint32) {
	b.name(21, name)
	b.WriteString("%%%%")
	b.count(uint32(len(info)))
	for _, v := range info {
		b.count(v)
	}
}

func (b *dmBuilder) int32(name string, v int32) {
	b.data(name, 3)
	b.Write(binary.LittleEndian.AppendUint32(nil, uint32(v)))
}

func (b *dmBuilder) image(dtype int32, elem uint32, dims []int32, payload []byte, elemSize int) {
	b.group("", 1)
	b.group("ImageData", 3)
	b.data("Data", 20, elem, uint32(len(payload)/elemSize))
	b.Write(payload)
	b.group("Dimensions", len(dims))
	for _, d := range dims {
		b.int32("", d)
	}
	b.int32("DataType", dtype)
}

func TestDM_Read(t *testing.T) {
	ctx := context.Background()
	for _, ext := range []string{"dm3", "dm4"} {
		t.Run(ext, func(t *testing.T) {
			b := dmBuilder{v4: ext == "dm4"}
			b.header()
			b.u8(0)
			b.u8(1)
			b.count(2)
			b.data("Name", 18, 2)
			b.Write([]byte{'o', 0, 'k', 0})
			b.group("ImageList", 2)
			b.image(6, 10, []int32{2, 2}, []byte{1, 2, 3, 4}, 1)
			var pix []byte
			for _, v := range []float32{1, 2, 3, 4, 5, 6} {
				pix = binary.LittleEndian.AppendUint32(pix, math.Float32bits(v))
			}
			b.image(2, 6, []int32{3, 2}, pix, 4)
			b.Write(make([]byte, 8))

			path := filepath.Join(t.TempDir(), "frame."+ext)
			require.NoError(t, os.WriteFile(path, b.Bytes(), 0o644))

			f, err := imagefile.Open(ctx, path, storage.ReadOnly)
			require.NoError(t, err)
			defer f.Close()
			require.Equal(t, "dm", f.Format())
			require.Equal(t, emcore.NewDim(3, 2), f.Dim())
			require.Equal(t, emcore.Float32, f.Type())
			var got emcore.Array
			require.NoError(t, f.Read(1, &got))
			require.Equal(t, []float32{1, 2, 3, 4, 5, 6}, emcore.Values[float32](&got))

			root, ok := imagefile.DMTags(f)
			require.True(t, ok)
			require.Equal(t, "ok", root.Find("Name").Value)
			require.Len(t, root.Find("ImageList").Tags, 2)
			dt, ok := root.Find("ImageList").Tags[0].Find("ImageData", "DataType").Int()
			require.True(t, ok)
			require.EqualValues(t, 6, dt)
			require.Nil(t, root.Find("ImageList", "Missing"))

			// DM files are never written.
			for _, mode := range []storage.Mode{storage.ReadWrite, storage.Truncate} {
				_, err = imagefile.Open(ctx, path, mode)
				require.ErrorIs(t, err, emcore.ErrUnsupportedOperation)
			}
		})
	}
}

func TestRaster_PNG(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	src, err := emcore.WrapArray(emcore.NewDim(3, 2), []uint16{0, 1, 256, 1000, 40000, 65535})
	require.NoError(t, err)

	path := filepath.Join(dir, "gain.png")
	f, err := imagefile.Open(ctx, path, storage.Truncate)
	require.NoError(t, err)
	require.NoError(t, f.Write(1, src))
	require.ErrorIs(t, f.Write(2, src), emcore.ErrInvalidOperation)
	require.NoError(t, f.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	cfg, err := png.DecodeConfig(bytes.NewReader(raw))
	require.NoError(t, err)
	require.Equal(t, color.Gray16Model, cfg.ColorModel)

	f, err = imagefile.Open(ctx, path, storage.ReadOnly)
	require.NoError(t, err)
	var got emcore.Array
	require.NoError(t, f.Read(1, &got))
	require.True(t, got.Equal(src))
	require.NoError(t, f.Close())

	// Color images are read as 8 bit gray.
	rgba := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	rgba.Set(0, 0, color.White)
	rgba.Set(1, 0, color.Black)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, rgba))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rgb.png"), buf.Bytes(), 0o644))
	f, err = imagefile.Open(ctx, filepath.Join(dir, "rgb.png"), storage.ReadOnly)
	require.NoError(t, err)
	require.Equal(t, emcore.Uint8, f.Type())
	require.NoError(t, f.Read(1, &got))
	require.Equal(t, []uint8{255, 0}, emcore.Values[uint8](&got))
	require.NoError(t, f.Close())
}

func TestRaster_TIFFAndJPEG(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	src, err := emcore.WrapArray(emcore.NewDim(4, 2), []uint8{0, 10, 20, 30, 40, 50, 60, 70})
	require.NoError(t, err)

	f, err := imagefile.Open(ctx, filepath.Join(dir, "a.tif"), storage.Truncate)
	require.NoError(t, err)
	require.NoError(t, f.Write(1, src))
	require.NoError(t, f.Close())

	f, err = imagefile.Open(ctx, filepath.Join(dir, "a.tif"), storage.ReadOnly)
	require.NoError(t, err)
	var got emcore.Array
	require.NoError(t, f.Read(1, &got))
	require.True(t, got.Equal(src))
	require.NoError(t, f.Close())

	j, err := imagefile.Open(ctx, filepath.Join(dir, "a.jpg"), storage.Truncate)
	require.NoError(t, err)
	require.ErrorIs(t, j.CreateEmpty(emcore.NewDim(4, 2), emcore.Uint16), emcore.ErrUnsupportedType)
	require.ErrorIs(t, j.CreateEmpty(emcore.NewDim(4, 2, 2), emcore.Uint8), emcore.ErrInvalidOperation)
	require.NoError(t, j.Write(1, src))
	require.NoError(t, j.Close())

	j, err = imagefile.Open(ctx, filepath.Join(dir, "a.jpg"), storage.ReadOnly)
	require.NoError(t, err)
	defer j.Close()
	require.Equal(t, emcore.NewDim(4, 2), j.Dim())
	require.Equal(t, emcore.Uint8, j.Type())
}
