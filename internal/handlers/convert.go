package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"zetaconvert/internal/catalog"
	"zetaconvert/internal/convert"
	"zetaconvert/internal/imgconv"
	"zetaconvert/internal/pagerange"
	"zetaconvert/internal/pdfbuild"
	"zetaconvert/internal/pdfrender"
	"zetaconvert/internal/pool"
	u "zetaconvert/internal/utils"
)

// ConvertRequestParams holds validated input parameters.
type ConvertRequestParams struct {
	Target  string
	Quality int
	DPI     int
	Width   int
	Height  int
	Strip   bool
	Pages   pagerange.Selection
}

// ConvertService bundles configuration and dependencies for the conversion
// dispatcher.
type ConvertService struct {
	Config *u.Config
	Redis  *redis.Client
	Pool   *pool.Pool

	totalRequests int64
	totalFailures int64
}

// NewConvertService creates a new ConvertService instance.
func NewConvertService(cfg u.Config, rdb *redis.Client, p *pool.Pool) *ConvertService {
	return &ConvertService{
		Config: &cfg,
		Redis:  rdb,
		Pool:   p,
	}
}

// HandleConvert dispatches an upload to the matching engine and streams the
// result back as an attachment.
func (svc *ConvertService) HandleConvert(c *fiber.Ctx) error {
	atomic.AddInt64(&svc.totalRequests, 1)

	err := svc.handleConvert(c)
	svc.recordOutcome(err)
	return err
}

// recordOutcome counts failed conversions. Aborted clients are not failures;
// the work was fine, nobody stayed to collect it.
func (svc *ConvertService) recordOutcome(err error) {
	if err != nil && !isClientAbort(err) {
		atomic.AddInt64(&svc.totalFailures, 1)
	}
}

func (svc *ConvertService) handleConvert(c *fiber.Ctx) error {
	// Declared size first, before touching the body.
	if declared := int64(c.Request().Header.ContentLength()); declared > svc.Config.Limits.MaxUploadBytes {
		return mapEngineError(fmt.Errorf("%w: max %dMB",
			convert.ErrPayloadTooLarge, svc.Config.Limits.MaxUploadBytes>>20))
	}

	params, err := svc.validateAndExtractParams(c)
	if err != nil {
		return err
	}

	form, err := c.MultipartForm()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Expected multipart form data")
	}

	if batch := form.File["files"]; len(batch) > 0 {
		return svc.handleImagesToPDF(c, batch, params)
	}

	fh, err := c.FormFile("file")
	if err != nil || fh == nil {
		return mapEngineError(convert.ErrMissingFile)
	}
	return svc.handleSingleFile(c, fh, params)
}

func (svc *ConvertService) validateAndExtractParams(c *fiber.Ctx) (*ConvertRequestParams, error) {
	target := strings.ToLower(strings.TrimSpace(c.FormValue("target")))
	if target == "" {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Missing target format")
	}

	if slug := c.FormValue("route"); slug != "" {
		route, ok := catalog.Get().Lookup(slug)
		if !ok || !route.Enabled {
			return nil, fiber.NewError(fiber.StatusBadRequest, "Unknown conversion route")
		}
		if !route.Implemented {
			return nil, fiber.NewError(fiber.StatusBadRequest, "This conversion is not available yet")
		}
	}

	params := &ConvertRequestParams{
		Target:  target,
		Quality: svc.Config.Convert.DefaultQuality,
		DPI:     svc.Config.Convert.DefaultDPI,
		Strip:   true,
		Pages:   pagerange.Parse(c.FormValue("pages")),
	}

	if v := c.FormValue("quality"); v != "" {
		if q, err := strconv.Atoi(v); err == nil {
			params.Quality = q
		}
	}
	if v := c.FormValue("dpi"); v != "" {
		if d, err := strconv.Atoi(v); err == nil && d > 0 {
			params.DPI = d
		}
	}
	if v := c.FormValue("resize_w"); v != "" {
		if w, err := strconv.Atoi(v); err == nil && w > 0 {
			params.Width = w
		}
	}
	if v := c.FormValue("resize_h"); v != "" {
		if h, err := strconv.Atoi(v); err == nil && h > 0 {
			params.Height = h
		}
	}
	if v := c.FormValue("stripmeta"); v != "" {
		params.Strip = v != "0"
	}

	return params, nil
}

// Multi-file uploads accept the common web image formats only.
var batchImageExts = map[string]bool{
	"jpg": true, "jpeg": true, "png": true, "webp": true,
}

// handleImagesToPDF builds a single PDF from a multi-file upload.
func (svc *ConvertService) handleImagesToPDF(c *fiber.Ctx, batch []*multipart.FileHeader, params *ConvertRequestParams) error {
	if params.Target != "pdf" {
		return fiber.NewError(fiber.StatusBadRequest, "Multi-file uploads can only target PDF")
	}

	opts := imgconv.Options{
		Quality:       params.Quality,
		Width:         params.Width,
		Height:        params.Height,
		StripMetadata: params.Strip,
	}

	pages := make([][]byte, 0, len(batch))
	for _, fh := range batch {
		ext := uploadExt(fh.Filename)
		if !batchImageExts[ext] {
			return mapEngineError(fmt.Errorf("%w: %q", convert.ErrUnsupportedSource, ext))
		}
		data, err := readUpload(fh)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Could not read upload: "+fh.Filename)
		}
		page, err := imgconv.PrepareInput(data, opts)
		if err != nil {
			return mapEngineError(err)
		}
		pages = append(pages, page)
	}
	if len(pages) == 0 {
		return mapEngineError(convert.ErrMissingFile)
	}

	var out []byte
	err := svc.runConversion(c, func(ctx context.Context) error {
		var buildErr error
		out, buildErr = pdfbuild.FromImages(ctx, pages)
		return buildErr
	})
	if err != nil {
		return mapEngineError(err)
	}

	return sendAttachment(c, convert.Result{Data: out, MIME: "application/pdf", Filename: "images.pdf"})
}

// handleSingleFile routes one upload by its extension.
func (svc *ConvertService) handleSingleFile(c *fiber.Ctx, fh *multipart.FileHeader, params *ConvertRequestParams) error {
	ext := uploadExt(fh.Filename)

	switch {
	case imgconv.SupportedSource(ext):
		return svc.convertImage(c, fh, ext, params)
	case ext == "pdf":
		return svc.convertPDF(c, fh, params)
	default:
		return mapEngineError(fmt.Errorf("%w: %q", convert.ErrUnsupportedSource, ext))
	}
}

func (svc *ConvertService) convertImage(c *fiber.Ctx, fh *multipart.FileHeader, ext string, params *ConvertRequestParams) error {
	if !imgconv.SupportedTarget(params.Target) {
		return mapEngineError(fmt.Errorf("%w: %q", convert.ErrUnsupportedTarget, params.Target))
	}

	data, err := readUpload(fh)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Could not read upload")
	}

	opts := imgconv.Options{
		Quality:       params.Quality,
		Width:         params.Width,
		Height:        params.Height,
		StripMetadata: params.Strip,
	}

	filename := baseName(fh.Filename) + "." + params.Target
	cacheKey := computeCacheKey(data, params)

	if cached, mime := svc.getCachedResult(c, cacheKey); cached != nil {
		return sendAttachment(c, convert.Result{Data: cached, MIME: mime, Filename: filename})
	}

	var out []byte
	var mime string
	err = svc.runConversion(c, func(ctx context.Context) error {
		var convErr error
		out, mime, convErr = imgconv.Convert(ctx, data, ext, params.Target, opts)
		return convErr
	})
	if err != nil {
		return mapEngineError(err)
	}

	svc.setCachedResult(c, cacheKey, out, mime)

	requestID := c.Get("X-Request-ID")
	u.Info("Image converted", "target", params.Target, "bytes", len(out), "request_id", requestID)
	return sendAttachment(c, convert.Result{Data: out, MIME: mime, Filename: filename})
}

func (svc *ConvertService) convertPDF(c *fiber.Ctx, fh *multipart.FileHeader, params *ConvertRequestParams) error {
	// "zip" keeps the legacy meaning: all pages as JPG in a ZIP.
	imageExt := params.Target
	if imageExt == "zip" {
		imageExt = "jpg"
	}
	if !pdfrender.SupportedTarget(imageExt) {
		return mapEngineError(fmt.Errorf("%w: %q for PDF input", convert.ErrUnsupportedTarget, params.Target))
	}

	data, err := readUpload(fh)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Could not read upload")
	}

	var out []byte
	var mime, filename string
	err = svc.runConversion(c, func(ctx context.Context) error {
		var renderErr error
		out, mime, filename, renderErr = pdfrender.Rasterize(ctx, data, imageExt, params.DPI, params.Quality, params.Pages)
		return renderErr
	})
	if err != nil {
		return mapEngineError(err)
	}

	requestID := c.Get("X-Request-ID")
	u.Info("PDF rasterized", "image_ext", imageExt, "bytes", len(out), "request_id", requestID)
	return sendAttachment(c, convert.Result{Data: out, MIME: mime, Filename: filename})
}

// runConversion executes fn on the worker pool under the configured timeout.
func (svc *ConvertService) runConversion(c *fiber.Ctx, fn pool.Task) error {
	timeout := time.Duration(svc.Config.Limits.ConvertTimeoutSecs) * time.Second
	ctx, cancel := context.WithTimeout(c.Context(), timeout)
	defer cancel()

	if svc.Pool == nil {
		return fn(ctx)
	}
	return svc.Pool.Run(ctx, fn)
}

// statusClientClosedRequest mirrors nginx's code for aborted requests.
const statusClientClosedRequest = 499

func mapEngineError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		u.Error("Conversion timeout", "error", err.Error())
		return fiber.NewError(fiber.StatusRequestTimeout, "Conversion took too long")
	case errors.Is(err, context.Canceled):
		// The client went away; nobody receives the response and there is
		// nothing to alert on.
		return fiber.NewError(statusClientClosedRequest, "Client closed request")
	}
	status := convert.StatusCode(err)
	if status == fiber.StatusInternalServerError {
		u.Error("Conversion failed", "error", err.Error())
		return fiber.NewError(status, "Conversion failed")
	}
	return fiber.NewError(status, err.Error())
}

func isClientAbort(err error) bool {
	var fe *fiber.Error
	return errors.As(err, &fe) && fe.Code == statusClientClosedRequest
}

func uploadExt(name string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
}

func baseName(name string) string {
	base := filepath.Base(name)
	if base == "" || base == "." {
		return "input"
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// computeCacheKey creates a SHA256-based cache key from the input bytes and
// the parameters that influence the output.
func computeCacheKey(data []byte, params *ConvertRequestParams) string {
	h := sha256.New()
	h.Write(data)
	h.Write([]byte(params.Target))
	h.Write([]byte(strconv.Itoa(params.Quality)))
	h.Write([]byte(strconv.Itoa(params.Width)))
	h.Write([]byte(strconv.Itoa(params.Height)))
	h.Write([]byte(strconv.FormatBool(params.Strip)))
	return "convcache:" + hex.EncodeToString(h.Sum(nil))
}

// getCachedResult attempts to retrieve a converted output from Redis. The
// stored value is "mime\n" followed by the payload, so fallback encodings
// keep their content type.
func (svc *ConvertService) getCachedResult(c *fiber.Ctx, key string) ([]byte, string) {
	if svc.Redis == nil || !svc.Config.Cache.ResultCacheEnabled {
		return nil, ""
	}

	ctxRedis, cancel := context.WithTimeout(c.Context(), 1*time.Second)
	defer cancel()

	cached, err := svc.Redis.Get(ctxRedis, key).Bytes()
	if err == redis.Nil {
		return nil, ""
	}
	if err != nil {
		u.Warn("Redis read failed", "error", err)
		return nil, ""
	}

	mime, payload, ok := strings.Cut(string(cached), "\n")
	if !ok {
		return nil, ""
	}
	u.Info("Result cache hit", "key", key)
	return []byte(payload), mime
}

// setCachedResult stores a converted output in Redis.
func (svc *ConvertService) setCachedResult(c *fiber.Ctx, key string, data []byte, mime string) {
	if svc.Redis == nil || !svc.Config.Cache.ResultCacheEnabled {
		return
	}

	ctxRedis, cancel := context.WithTimeout(c.Context(), 1*time.Second)
	defer cancel()

	ttl := svc.Config.Cache.ResultCacheTTL
	if ttl <= 0 {
		ttl = 1 * time.Minute
	}

	value := append([]byte(mime+"\n"), data...)
	if err := svc.Redis.Set(ctxRedis, key, value, ttl).Err(); err != nil {
		u.Warn("Redis write failed", "error", err)
	}
}

func sendAttachment(c *fiber.Ctx, res convert.Result) error {
	c.Set("Content-Type", res.MIME)
	c.Set("Content-Disposition", `attachment; filename="`+res.Filename+`"`)
	return c.Send(res.Data)
}
