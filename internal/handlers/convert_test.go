package handlers

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zetaconvert/internal/pdfbuild"
	u "zetaconvert/internal/utils"
)

func testConfig() u.Config {
	var cfg u.Config
	cfg.Limits.MaxUploadBytes = 20 << 20
	cfg.Limits.ConvertTimeoutSecs = 30
	cfg.Convert.DefaultQuality = 90
	cfg.Convert.DefaultDPI = 72
	return cfg
}

func newTestApp(cfg u.Config, rdb *redis.Client) *fiber.App {
	svc := NewConvertService(cfg, rdb, nil)
	app := fiber.New()
	app.Post("/api/convert", svc.HandleConvert)
	return app
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type filePart struct {
	field, name string
	data        []byte
}

func multipartRequest(t *testing.T, fields map[string]string, files ...filePart) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		fw, err := mw.CreateFormFile(f.field, f.name)
		require.NoError(t, err)
		_, err = fw.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/api/convert", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestConvertMissingFile(t *testing.T) {
	app := newTestApp(testConfig(), nil)

	resp, err := app.Test(multipartRequest(t, map[string]string{"target": "jpg"}), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestConvertMissingTarget(t *testing.T) {
	app := newTestApp(testConfig(), nil)

	req := multipartRequest(t, nil, filePart{"file", "a.png", pngBytes(t, 4, 4)})
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestConvertPNGToJPG(t *testing.T) {
	app := newTestApp(testConfig(), nil)

	req := multipartRequest(t, map[string]string{"target": "jpg"},
		filePart{"file", "photo.png", pngBytes(t, 16, 16)})
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), `filename="photo.jpg"`)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_, err = jpeg.Decode(bytes.NewReader(body))
	assert.NoError(t, err)
}

func TestConvertUnknownRoute(t *testing.T) {
	app := newTestApp(testConfig(), nil)

	req := multipartRequest(t, map[string]string{"target": "jpg", "route": "nope"},
		filePart{"file", "a.png", pngBytes(t, 4, 4)})
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestConvertPlaceholderRouteRejected(t *testing.T) {
	app := newTestApp(testConfig(), nil)

	req := multipartRequest(t, map[string]string{"target": "mp3", "route": "mp4-to-mp3"},
		filePart{"file", "a.png", pngBytes(t, 4, 4)})
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestConvertPayloadTooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.Limits.MaxUploadBytes = 64
	app := newTestApp(cfg, nil)

	req := multipartRequest(t, map[string]string{"target": "jpg"},
		filePart{"file", "a.png", pngBytes(t, 64, 64)})
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusRequestEntityTooLarge, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "payload too large")
}

func TestMapEngineErrorClientAbort(t *testing.T) {
	err := mapEngineError(fmt.Errorf("rendering: %w", context.Canceled))

	var fe *fiber.Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, statusClientClosedRequest, fe.Code)
	assert.True(t, isClientAbort(err))

	assert.False(t, isClientAbort(fiber.NewError(fiber.StatusBadRequest, "bad")))
	assert.False(t, isClientAbort(context.Canceled))
}

func TestClientAbortNotCountedAsFailure(t *testing.T) {
	svc := NewConvertService(testConfig(), nil, nil)

	svc.recordOutcome(nil)
	assert.EqualValues(t, 0, atomic.LoadInt64(&svc.totalFailures))

	svc.recordOutcome(mapEngineError(context.Canceled))
	assert.EqualValues(t, 0, atomic.LoadInt64(&svc.totalFailures))

	svc.recordOutcome(fiber.NewError(fiber.StatusBadRequest, "bad"))
	assert.EqualValues(t, 1, atomic.LoadInt64(&svc.totalFailures))
}

func TestConvertMultiNonPDFTarget(t *testing.T) {
	app := newTestApp(testConfig(), nil)

	req := multipartRequest(t, map[string]string{"target": "png"},
		filePart{"files", "a.png", pngBytes(t, 4, 4)},
		filePart{"files", "b.png", pngBytes(t, 4, 4)})
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestConvertImagesToPDF(t *testing.T) {
	app := newTestApp(testConfig(), nil)

	req := multipartRequest(t, map[string]string{"target": "pdf"},
		filePart{"files", "a.png", pngBytes(t, 10, 10)},
		filePart{"files", "b.png", pngBytes(t, 12, 12)})
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), `filename="images.pdf"`)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(body, []byte("%PDF")))
}

func TestConvertPDFToZip(t *testing.T) {
	app := newTestApp(testConfig(), nil)

	img := pngBytes(t, 30, 30)
	page, err := jpegFromPNG(img)
	require.NoError(t, err)
	pdf, err := pdfbuild.FromImages(context.Background(), [][]byte{page})
	require.NoError(t, err)

	req := multipartRequest(t, map[string]string{"target": "zip"},
		filePart{"file", "doc.pdf", pdf})
	resp, err := app.Test(req, 30*int(time.Second/time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/zip", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), `filename="pages.zip"`)
}

func jpegFromPNG(data []byte) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func TestConvertUnsupportedInput(t *testing.T) {
	app := newTestApp(testConfig(), nil)

	req := multipartRequest(t, map[string]string{"target": "jpg"},
		filePart{"file", "movie.mp4", []byte("mp4 bytes")})
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestConvertResultCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := testConfig()
	cfg.Cache.ResultCacheEnabled = true
	cfg.Cache.ResultCacheTTL = time.Minute
	app := newTestApp(cfg, rdb)

	input := pngBytes(t, 8, 8)
	do := func() []byte {
		req := multipartRequest(t, map[string]string{"target": "jpg"},
			filePart{"file", "a.png", input})
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return body
	}

	first := do()
	require.Len(t, mr.Keys(), 1, "conversion should populate the cache")
	second := do()
	assert.Equal(t, first, second)
}
