package convert

import (
	"errors"
	"fmt"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
)

func TestStatusCode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"payload too large", ErrPayloadTooLarge, fiber.StatusRequestEntityTooLarge},
		{"rate limited", ErrRateLimited, fiber.StatusTooManyRequests},
		{"missing file", ErrMissingFile, fiber.StatusBadRequest},
		{"unsupported source", ErrUnsupportedSource, fiber.StatusBadRequest},
		{"unsupported target", ErrUnsupportedTarget, fiber.StatusBadRequest},
		{"invalid page range", ErrInvalidPageRange, fiber.StatusBadRequest},
		{"decode", ErrDecode, fiber.StatusBadRequest},
		{"encode", ErrEncode, fiber.StatusInternalServerError},
		{"unknown", errors.New("boom"), fiber.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, StatusCode(tc.err))
		})
	}
}

func TestStatusCodeUnwrapsWrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("reading %q: %w", "a.png", ErrDecode)
	assert.Equal(t, fiber.StatusBadRequest, StatusCode(wrapped))
}
