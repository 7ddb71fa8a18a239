package convert

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// Sentinel errors for the conversion pipeline. Handlers wrap these with
// context via fmt.Errorf("...: %w", err); StatusCode unwraps them to pick
// the HTTP status.
var (
	ErrPayloadTooLarge   = errors.New("payload too large")
	ErrRateLimited       = errors.New("rate limit exceeded")
	ErrMissingFile       = errors.New("no file provided")
	ErrUnsupportedSource = errors.New("unsupported source format")
	ErrUnsupportedTarget = errors.New("unsupported target format")
	ErrInvalidPageRange  = errors.New("invalid page range")
	ErrDecode            = errors.New("could not decode input")
	ErrEncode            = errors.New("could not encode output")
)

// StatusCode maps a pipeline error to its HTTP status. Unknown errors are
// internal.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, ErrPayloadTooLarge):
		return fiber.StatusRequestEntityTooLarge
	case errors.Is(err, ErrRateLimited):
		return fiber.StatusTooManyRequests
	case errors.Is(err, ErrMissingFile),
		errors.Is(err, ErrUnsupportedSource),
		errors.Is(err, ErrUnsupportedTarget),
		errors.Is(err, ErrInvalidPageRange),
		errors.Is(err, ErrDecode):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

// Result is a finished conversion ready to be written as an attachment.
type Result struct {
	Data     []byte
	MIME     string
	Filename string
}
