// Package pdfrender rasterizes PDF pages into an image archive.
package pdfrender

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"strings"

	"github.com/chai2010/webp"
	"github.com/gen2brain/go-fitz"

	"zetaconvert/internal/convert"
	"zetaconvert/internal/pagerange"
)

var rasterTargets = map[string]bool{
	"jpg": true, "jpeg": true, "png": true, "webp": true,
}

// SupportedTarget reports whether pages can be rendered to the extension.
func SupportedTarget(ext string) bool {
	return rasterTargets[strings.ToLower(strings.TrimSpace(ext))]
}

// Rasterize renders the selected pages of a PDF at the given DPI and packs
// them into a ZIP archive, one image per page. Page entries keep their
// original 1-based page numbers.
func Rasterize(ctx context.Context, pdf []byte, imageExt string, dpi, quality int, sel pagerange.Selection) ([]byte, string, string, error) {
	ext := strings.ToLower(strings.TrimSpace(imageExt))
	if !SupportedTarget(ext) {
		return nil, "", "", fmt.Errorf("%w: %q", convert.ErrUnsupportedTarget, imageExt)
	}
	if dpi <= 0 {
		dpi = 144
	}

	doc, err := fitz.NewFromMemory(pdf)
	if err != nil {
		return nil, "", "", fmt.Errorf("%w: %v", convert.ErrDecode, err)
	}
	defer doc.Close()

	pages, err := sel.Resolve(doc.NumPage())
	if err != nil {
		return nil, "", "", err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return nil, "", "", err
		}

		img, err := doc.ImageDPI(page, float64(dpi))
		if err != nil {
			return nil, "", "", fmt.Errorf("%w: page %d: %v", convert.ErrDecode, page+1, err)
		}

		data, err := encodePage(img, ext, quality)
		if err != nil {
			return nil, "", "", fmt.Errorf("%w: page %d: %v", convert.ErrEncode, page+1, err)
		}

		w, err := zw.Create(fmt.Sprintf("page-%03d.%s", page+1, ext))
		if err != nil {
			return nil, "", "", fmt.Errorf("%w: %v", convert.ErrEncode, err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, "", "", fmt.Errorf("%w: %v", convert.ErrEncode, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, "", "", fmt.Errorf("%w: %v", convert.ErrEncode, err)
	}

	return buf.Bytes(), "application/zip", "pages.zip", nil
}

func encodePage(img image.Image, ext string, quality int) ([]byte, error) {
	if quality < 1 || quality > 100 {
		quality = 90
	}

	var buf bytes.Buffer
	switch ext {
	case "jpg", "jpeg":
		if err := jpeg.Encode(&buf, opaque(img), &jpeg.Options{Quality: quality}); err != nil {
			return nil, err
		}
	case "png":
		if err := png.Encode(&buf, img); err != nil {
			return nil, err
		}
	case "webp":
		if err := webp.Encode(&buf, opaque(img), &webp.Options{Quality: float32(quality)}); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// opaque composites the page onto a white background. Pages with
// transparency would otherwise come out black in JPEG.
func opaque(img image.Image) *image.NRGBA {
	bounds := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(out, out.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(out, out.Bounds(), img, bounds.Min, draw.Over)
	return out
}
