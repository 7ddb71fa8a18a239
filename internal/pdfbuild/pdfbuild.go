// Package pdfbuild assembles uploaded images into a single PDF document.
package pdfbuild

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"zetaconvert/internal/convert"
)

// FromImages builds a PDF with one page per image, in input order. Each
// image must already be in a format pdfcpu can embed (JPEG or PNG).
func FromImages(ctx context.Context, images [][]byte) ([]byte, error) {
	if len(images) == 0 {
		return nil, convert.ErrMissingFile
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	readers := make([]io.Reader, len(images))
	for i, img := range images {
		readers[i] = bytes.NewReader(img)
	}

	var buf bytes.Buffer
	imp := pdfcpu.DefaultImportConfig()
	if err := api.ImportImages(nil, &buf, readers, imp, model.NewDefaultConfiguration()); err != nil {
		return nil, fmt.Errorf("%w: %v", convert.ErrEncode, err)
	}
	return buf.Bytes(), nil
}
