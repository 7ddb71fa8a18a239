package pdfbuild

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zetaconvert/internal/convert"
)

func testJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: 128, G: 128, B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestFromImagesSinglePage(t *testing.T) {
	out, err := FromImages(context.Background(), [][]byte{testJPEG(t, 40, 40)})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestFromImagesMultiplePages(t *testing.T) {
	pages := [][]byte{testJPEG(t, 40, 40), testJPEG(t, 60, 30), testJPEG(t, 20, 80)}
	out, err := FromImages(context.Background(), pages)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestFromImagesEmpty(t *testing.T) {
	_, err := FromImages(context.Background(), nil)
	assert.ErrorIs(t, err, convert.ErrMissingFile)
}

func TestFromImagesCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := FromImages(ctx, [][]byte{testJPEG(t, 10, 10)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFromImagesGarbage(t *testing.T) {
	_, err := FromImages(context.Background(), [][]byte{[]byte("not an image")})
	assert.ErrorIs(t, err, convert.ErrEncode)
}
