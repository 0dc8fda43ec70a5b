// Package imagefile reads and writes electron microscopy image files.
//
// A File is a session on one image file: Open resolves the format plugin
// from an explicit name or from the file extension, parses the header and
// exposes the file's 4-D dimension and element type. Items (2-D images or
// 3-D volumes) are addressed with 1-based indices:
//
//	f, err := imagefile.Open(ctx, "particles.mrcs", storage.ReadOnly)
//	if err != nil {
//		return err
//	}
//	defer f.Close()
//	var img emcore.Array
//	if err := f.Read(1, &img); err != nil {
//		return err
//	}
//
// Built-in formats are MRC (mrc, mrcs, map, st, ali, rec), SPIDER (spi,
// spider, xmp, vol, stk), IMAGIC (hed, img), EM (em, read only), DM3/DM4
// (dm3, dm4, read only) and the raster formats TIFF, PNG and JPEG. More
// formats can be added with RegisterFormat.
package imagefile
