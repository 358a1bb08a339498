package article

import (
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	readability "github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"

	"github.com/boipoka-app/boipoka-ingest/internal/domain"
	"github.com/boipoka-app/boipoka-ingest/internal/logger"
)

// ParseError reports input that could not be accepted before any DOM work.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string { return e.Reason }

// ReadabilityError reports that the content heuristic found no extractable
// article or failed internally.
type ReadabilityError struct {
	Reason string
	Cause  error
}

func (e *ReadabilityError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("readability: %s: %v", e.Reason, e.Cause)
	}
	return "readability: " + e.Reason
}

func (e *ReadabilityError) Unwrap() error { return e.Cause }

// ContentFormat selects the representation stored in ExtractedArticle.Content
// for web sources.
type ContentFormat string

const (
	FormatHTML     ContentFormat = "html"
	FormatMarkdown ContentFormat = "markdown"
)

// Options tunes the extractor's derivations.
type Options struct {
	ContentFormat   ContentFormat
	ExcerptMaxChars int
	WordsPerMinute  int
}

func (o Options) normalized() Options {
	if o.ContentFormat == "" {
		o.ContentFormat = FormatHTML
	}
	if o.ExcerptMaxChars <= 0 {
		o.ExcerptMaxChars = 280
	}
	if o.WordsPerMinute <= 0 {
		o.WordsPerMinute = 200
	}
	return o
}

// Extractor turns raw HTML into a canonical article record: readability
// heuristic, allow-list sanitization, and metadata derivation.
type Extractor struct {
	opts      Options
	sanitizer *bluemonday.Policy
	log       logger.Logger
}

// NewExtractor constructs an extractor. The sanitizer is a UGC allow-list
// policy: anything off the list (scripts, styles, event handlers) is stripped,
// not escaped.
func NewExtractor(opts Options, log logger.Logger) *Extractor {
	return &Extractor{
		opts:      opts.normalized(),
		sanitizer: bluemonday.UGCPolicy(),
		log:       logger.Ensure(log),
	}
}

// Extract runs the readability heuristic over the HTML, scoped to originURL
// for relative-link resolution, and returns a sanitized article record.
func (e *Extractor) Extract(html, originURL string) (*domain.ExtractedArticle, error) {
	origin, err := url.Parse(strings.TrimSpace(originURL))
	if err != nil || !origin.IsAbs() || origin.Host == "" {
		return nil, &ParseError{Reason: "invalid URL provided"}
	}

	html = promoteLazyImages(html)

	art, err := e.runReadability(html, origin)
	if err != nil {
		return nil, err
	}

	content := e.sanitizer.Sanitize(art.Content)
	if e.opts.ContentFormat == FormatMarkdown {
		converter := md.NewConverter(origin.Host, true, nil)
		markdown, convErr := converter.ConvertString(content)
		if convErr != nil {
			// Markdown is a storage preference, not a correctness requirement.
			e.log.WarnObj("markdown conversion failed, keeping sanitized html", "markdown_error", map[string]any{
				"url":   originURL,
				"error": convErr.Error(),
			})
		} else {
			content = markdown
		}
	}

	out := &domain.ExtractedArticle{
		Title:             strings.TrimSpace(art.Title),
		Content:           content,
		Excerpt:           e.deriveExcerpt(art),
		Author:            strings.TrimSpace(art.Byline),
		SiteName:          deriveSiteName(art.SiteName, origin),
		Language:          strings.TrimSpace(art.Language),
		EstimatedReadTime: ReadingTime(art.TextContent, e.opts.WordsPerMinute),
		SourceType:        domain.SourceWeb,
	}
	if art.PublishedTime != nil {
		out.PublishedDate = art.PublishedTime.UTC().Format(time.RFC3339)
	}
	return out, nil
}

// runReadability isolates the heuristic so an internal panic surfaces as a
// typed error instead of unwinding the whole invocation.
func (e *Extractor) runReadability(html string, origin *url.URL) (art readability.Article, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ReadabilityError{Reason: "heuristic panicked", Cause: fmt.Errorf("%v", r)}
		}
	}()

	art, rerr := readability.FromReader(strings.NewReader(html), origin)
	if rerr != nil {
		return art, &ReadabilityError{Reason: "heuristic failed", Cause: rerr}
	}
	if strings.TrimSpace(art.Content) == "" && strings.TrimSpace(art.TextContent) == "" {
		return art, &ReadabilityError{Reason: "returned no article"}
	}
	return art, nil
}

func (e *Extractor) deriveExcerpt(art readability.Article) string {
	if excerpt := strings.TrimSpace(art.Excerpt); excerpt != "" {
		return excerpt
	}
	return ExcerptFromText(art.TextContent, e.opts.ExcerptMaxChars)
}

func deriveSiteName(siteName string, origin *url.URL) string {
	if s := strings.TrimSpace(siteName); s != "" {
		return s
	}
	return origin.Hostname()
}

// ExcerptFromText truncates plain text to roughly maxChars, breaking at a word
// boundary, with a trailing ellipsis when anything was cut.
func ExcerptFromText(text string, maxChars int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if maxChars <= 0 || len(runes) <= maxChars {
		return text
	}

	cut := string(runes[:maxChars])
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimRight(cut, " ,;:.") + "…"
}

// ReadingTime estimates reading minutes from whitespace-separated words,
// rounded up and floored at one minute.
func ReadingTime(text string, wordsPerMinute int) int {
	if wordsPerMinute <= 0 {
		wordsPerMinute = 200
	}
	words := len(strings.Fields(text))
	minutes := int(math.Ceil(float64(words) / float64(wordsPerMinute)))
	if minutes < 1 {
		return 1
	}
	return minutes
}
