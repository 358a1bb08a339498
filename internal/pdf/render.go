package pdf

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/gen2brain/go-fitz"
)

// baseDPI is the nominal rendering resolution scale 1.0 corresponds to.
const baseDPI = 72.0

// PageRenderer rasterizes a single page (0-based index) at the given upscale
// factor, returning an encoded image suitable for OCR.
type PageRenderer interface {
	RenderPage(data []byte, pageIndex int, scale float64) ([]byte, error)
}

// fitzRenderer renders through mupdf. The document handle is opened and
// closed per call, keeping page processing free of shared state.
type fitzRenderer struct{}

func (*fitzRenderer) RenderPage(data []byte, pageIndex int, scale float64) ([]byte, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("open pdf for rasterization: %w", err)
	}
	defer doc.Close()

	img, err := doc.ImageDPI(pageIndex, baseDPI*scale)
	if err != nil {
		return nil, fmt.Errorf("rasterize page %d: %w", pageIndex, err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode raster: %w", err)
	}
	return buf.Bytes(), nil
}
