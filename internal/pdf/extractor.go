package pdf

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	ledongthuc "github.com/ledongthuc/pdf"

	"github.com/boipoka-app/boipoka-ingest/internal/logger"
)

// ParseError reports a PDF container that could not be opened at all.
// Per-page extraction failures never surface as errors; they degrade to empty
// page text.
type ParseError struct {
	Cause error
}

func (e *ParseError) Error() string { return fmt.Sprintf("open pdf container: %v", e.Cause) }
func (e *ParseError) Unwrap() error { return e.Cause }

// lineTolerance groups text fragments whose vertical positions differ by no
// more than this many PDF units onto the same output line.
const lineTolerance = 1.0

// fragment is one positioned run of text from a page's text layer.
type fragment struct {
	x, y float64
	text string
}

// document abstracts an opened PDF container. Page numbers are 1-based.
type document interface {
	NumPages() int
	PageFragments(page int) ([]fragment, error)
}

// opener turns raw bytes into a document.
type opener func(data []byte) (document, error)

// Options tunes the text-sufficiency threshold and the OCR upscale factor.
// The defaults carry over the values the original pipeline shipped with.
type Options struct {
	MinTextChars int
	OCRScale     float64
}

func (o Options) normalized() Options {
	if o.MinTextChars <= 0 {
		o.MinTextChars = 10
	}
	if o.OCRScale <= 0 {
		o.OCRScale = 2.0
	}
	return o
}

// Extractor walks PDF pages sequentially, reading the native text layer and
// escalating to OCR when a page yields too little text to be useful.
type Extractor struct {
	opts      Options
	open      opener
	render    PageRenderer
	newEngine EngineFactory
	log       logger.Logger
}

// NewExtractor builds a PDF extractor. A nil factory disables OCR escalation;
// insufficient pages then contribute empty text.
func NewExtractor(opts Options, newEngine EngineFactory, log logger.Logger) *Extractor {
	return &Extractor{
		opts:      opts.normalized(),
		open:      openContainer,
		render:    &fitzRenderer{},
		newEngine: newEngine,
		log:       logger.Ensure(log),
	}
}

// ExtractText extracts plain text from the PDF, one page at a time in order,
// and reports the page count. Pages are joined with a single newline and the
// result is trimmed. A page-level failure contributes an empty string; only
// an unopenable container raises *ParseError.
func (e *Extractor) ExtractText(data []byte) (string, int, error) {
	doc, err := e.open(data)
	if err != nil {
		return "", 0, &ParseError{Cause: err}
	}

	pageCount := doc.NumPages()
	pages := make([]string, 0, pageCount)
	for page := 1; page <= pageCount; page++ {
		pages = append(pages, e.extractPage(doc, data, page))
	}

	return strings.TrimSpace(strings.Join(pages, "\n")), pageCount, nil
}

// extractPage never fails: any native, render, or OCR error on this page is
// absorbed and the page contributes an empty string.
func (e *Extractor) extractPage(doc document, data []byte, page int) string {
	fragments, err := doc.PageFragments(page)
	if err != nil {
		e.log.WarnObj("native text extraction failed", "pdf_page_error", map[string]any{
			"page":  page,
			"error": err.Error(),
		})
		fragments = nil
	}

	text := assemblePageText(fragments)
	// Rune count, not byte length: multi-byte scripts must not skew the gate.
	if stripped := strings.Join(strings.Fields(text), ""); utf8.RuneCountInString(stripped) >= e.opts.MinTextChars {
		return text
	}

	// Image-only or near-empty text layer: escalate to OCR.
	ocrText, err := e.ocrPage(data, page)
	if err != nil {
		e.log.WarnObj("ocr escalation failed", "pdf_page_error", map[string]any{
			"page":  page,
			"error": err.Error(),
		})
		return ""
	}
	return strings.TrimSpace(ocrText)
}

// ocrPage renders the page to a raster at the configured upscale factor and
// runs a scoped OCR session over it. The session is released on every path.
func (e *Extractor) ocrPage(data []byte, page int) (string, error) {
	if e.newEngine == nil {
		return "", fmt.Errorf("ocr escalation disabled")
	}

	raster, err := e.render.RenderPage(data, page-1, e.opts.OCRScale)
	if err != nil {
		return "", fmt.Errorf("render page %d: %w", page, err)
	}

	engine, err := e.newEngine()
	if err != nil {
		return "", fmt.Errorf("acquire ocr engine: %w", err)
	}
	defer func() {
		if cerr := engine.Close(); cerr != nil {
			e.log.WarnObj("ocr engine release failed", "pdf_page_error", map[string]any{
				"page":  page,
				"error": cerr.Error(),
			})
		}
	}()

	text, err := engine.Recognize(raster)
	if err != nil {
		return "", fmt.Errorf("recognize page %d: %w", page, err)
	}
	return text, nil
}

// assemblePageText reconstructs natural reading order from positioned
// fragments: vertical position first (within lineTolerance of the same line),
// then horizontal. The renderer's emission order is not reading order.
func assemblePageText(fragments []fragment) string {
	if len(fragments) == 0 {
		return ""
	}

	// PDF user space grows upward, so higher y comes first.
	sorted := append([]fragment(nil), fragments...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].y > sorted[j].y })

	var lines [][]fragment
	for _, f := range sorted {
		if n := len(lines); n > 0 && math.Abs(lines[n-1][0].y-f.y) <= lineTolerance {
			lines[n-1] = append(lines[n-1], f)
			continue
		}
		lines = append(lines, []fragment{f})
	}

	var b strings.Builder
	for i, line := range lines {
		sort.SliceStable(line, func(a, c int) bool { return line[a].x < line[c].x })
		if i > 0 {
			b.WriteByte('\n')
		}
		for _, f := range line {
			b.WriteString(f.text)
		}
	}
	return b.String()
}

// openContainer opens the byte buffer with the pdf reader library. Malformed
// containers can panic deep inside the parser, so the recover keeps that an
// error.
func openContainer(data []byte) (doc document, err error) {
	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = fmt.Errorf("pdf reader panic: %v", r)
		}
	}()

	reader, err := ledongthuc.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	return &ledongthucDocument{reader: reader}, nil
}

// ledongthucDocument adapts the pdf reader to the document interface.
type ledongthucDocument struct {
	reader *ledongthuc.Reader
}

func (d *ledongthucDocument) NumPages() int { return d.reader.NumPage() }

func (d *ledongthucDocument) PageFragments(page int) (out []fragment, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("page %d content panic: %v", page, r)
		}
	}()

	p := d.reader.Page(page)
	if p.V.IsNull() {
		return nil, fmt.Errorf("page %d unavailable", page)
	}

	content := p.Content()
	out = make([]fragment, 0, len(content.Text))
	for _, t := range content.Text {
		out = append(out, fragment{x: t.X, y: t.Y, text: t.S})
	}
	return out, nil
}
