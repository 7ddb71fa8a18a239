// Package imgconv is the raster image conversion engine: decode, orient,
// resize, strip, flatten and re-encode single images.
package imgconv

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"image/png"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"zetaconvert/internal/convert"
	"zetaconvert/internal/pdfbuild"
	u "zetaconvert/internal/utils"
)

// Options controls a single conversion.
type Options struct {
	// Quality applies to lossy targets. Values outside [1,100] fall back
	// to the default.
	Quality int
	// Width and Height request a resize. One of them zero keeps the
	// aspect ratio; both zero means no resize.
	Width  int
	Height int
	// StripMetadata rebuilds the image from pixels only, dropping EXIF,
	// ICC profiles and every other auxiliary chunk.
	StripMetadata bool
}

const DefaultQuality = 90

// EffectiveQuality returns the quality to use for encoding.
func (o Options) EffectiveQuality() int {
	if o.Quality < 1 || o.Quality > 100 {
		return DefaultQuality
	}
	return o.Quality
}

var sourceExts = map[string]bool{
	"jpg": true, "jpeg": true, "png": true, "webp": true,
	"gif": true, "bmp": true, "tif": true, "tiff": true,
}

var targetExts = map[string]bool{
	"jpg": true, "jpeg": true, "png": true, "webp": true,
	"gif": true, "bmp": true, "tif": true, "tiff": true,
	"pdf": true,
}

// SupportedSource reports whether the engine can decode the extension.
func SupportedSource(ext string) bool { return sourceExts[normalizeExt(ext)] }

// SupportedTarget reports whether the engine can encode the extension.
func SupportedTarget(ext string) bool { return targetExts[normalizeExt(ext)] }

var mimeByTarget = map[string]string{
	"jpg": "image/jpeg", "jpeg": "image/jpeg",
	"png":  "image/png",
	"webp": "image/webp",
	"gif":  "image/gif",
	"bmp":  "image/bmp",
	"tif":  "image/tiff", "tiff": "image/tiff",
	"pdf": "application/pdf",
}

// MIMEForTarget returns the response content type for a target extension.
func MIMEForTarget(target string) string {
	t := normalizeExt(target)
	if m, ok := mimeByTarget[t]; ok {
		return m
	}
	return "image/" + t
}

func normalizeExt(ext string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
}

// Convert runs the full pipeline and returns the encoded output with its
// content type. srcExt is advisory; the actual decoder is chosen by content
// sniffing.
func Convert(ctx context.Context, input []byte, srcExt, target string, opts Options) ([]byte, string, error) {
	t := normalizeExt(target)
	if !SupportedTarget(t) {
		return nil, "", fmt.Errorf("%w: %q", convert.ErrUnsupportedTarget, target)
	}

	img, err := decode(input)
	if err != nil {
		return nil, "", err
	}
	img = transform(img, opts)

	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	if t == "pdf" {
		page, err := encodeJPEG(flatten(img), opts.EffectiveQuality())
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", convert.ErrEncode, err)
		}
		out, err := pdfbuild.FromImages(ctx, [][]byte{page})
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", convert.ErrEncode, err)
		}
		return out, "application/pdf", nil
	}

	out, err := encode(img, t, opts.EffectiveQuality())
	if err == nil {
		return out, MIMEForTarget(t), nil
	}

	// One fallback attempt: flatten to opaque RGB and write JPEG, the way
	// browsers expect something usable back.
	u.Warn("Encode failed, falling back to JPEG", "target", t, "error", err)
	out, ferr := encodeJPEG(flatten(img), opts.EffectiveQuality())
	if ferr != nil {
		return nil, "", fmt.Errorf("%w: %v", convert.ErrEncode, err)
	}
	return out, "image/jpeg", nil
}

// PrepareInput decodes, orients and transforms an upload, then encodes it as
// an opaque JPEG page for PDF assembly.
func PrepareInput(data []byte, opts Options) ([]byte, error) {
	img, err := decode(data)
	if err != nil {
		return nil, err
	}
	img = transform(img, opts)
	page, err := encodeJPEG(flatten(img), opts.EffectiveQuality())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", convert.ErrEncode, err)
	}
	return page, nil
}

func decode(input []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(input))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", convert.ErrDecode, err)
	}
	return normalizeOrientation(input, img), nil
}

// transform applies the resize and strip steps shared by all targets.
func transform(img image.Image, opts Options) image.Image {
	img = applyResize(img, opts.Width, opts.Height)
	if opts.StripMetadata {
		// Clone copies pixels into a fresh NRGBA; nothing else survives.
		img = imaging.Clone(img)
	}
	return img
}

// normalizeOrientation bakes the EXIF orientation into the pixels so the
// output renders upright everywhere. Inputs without EXIF pass through.
func normalizeOrientation(input []byte, img image.Image) image.Image {
	meta, err := exif.Decode(bytes.NewReader(input))
	if err != nil {
		return img
	}
	tag, err := meta.Get(exif.Orientation)
	if err != nil {
		return img
	}
	orientation, err := tag.Int(0)
	if err != nil {
		return img
	}

	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}

func applyResize(img image.Image, w, h int) image.Image {
	if w <= 0 && h <= 0 {
		return img
	}
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	// imaging keeps the aspect ratio when one dimension is zero.
	return imaging.Resize(img, w, h, imaging.Lanczos)
}

// flatten composites the image onto a white background and drops alpha.
func flatten(img image.Image) *image.NRGBA {
	bounds := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(out, out.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(out, out.Bounds(), img, bounds.Min, draw.Over)
	return out
}

func encode(img image.Image, target string, quality int) ([]byte, error) {
	var buf bytes.Buffer
	switch target {
	case "jpg", "jpeg":
		if err := jpeg.Encode(&buf, flatten(img), &jpeg.Options{Quality: quality}); err != nil {
			return nil, err
		}
	case "png":
		if err := png.Encode(&buf, img); err != nil {
			return nil, err
		}
	case "webp":
		// WEBP keeps alpha; no flattening here.
		if err := webp.Encode(&buf, img, &webp.Options{Quality: float32(quality)}); err != nil {
			return nil, err
		}
	case "gif":
		if err := gif.Encode(&buf, img, nil); err != nil {
			return nil, err
		}
	case "bmp":
		if err := bmp.Encode(&buf, img); err != nil {
			return nil, err
		}
	case "tif", "tiff":
		if err := tiff.Encode(&buf, img, &tiff.Options{Compression: tiff.Deflate}); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("no encoder for %q", target)
	}
	return buf.Bytes(), nil
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
