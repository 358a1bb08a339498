package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/boipoka-app/boipoka-ingest/internal/article"
	"github.com/boipoka-app/boipoka-ingest/internal/domain"
	"github.com/boipoka-app/boipoka-ingest/internal/epub"
	"github.com/boipoka-app/boipoka-ingest/internal/logger"
)

// ValidationError reports a malformed source request, rejected before any
// extractor runs.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "invalid source request: " + e.Reason }

// Options tunes the derivations the façade applies to byte-buffer sources.
type Options struct {
	ExcerptMaxChars int
	WordsPerMinute  int
}

func (o Options) normalized() Options {
	if o.ExcerptMaxChars <= 0 {
		o.ExcerptMaxChars = 280
	}
	if o.WordsPerMinute <= 0 {
		o.WordsPerMinute = 200
	}
	return o
}

// Pipeline dispatches a source request to the matching extractor and returns
// the canonical article record. It holds no state between invocations;
// independent invocations may run concurrently.
type Pipeline struct {
	fetcher HTMLFetcher
	article ArticleExtractor
	pdf     PDFTextExtractor
	epub    EpubExtractor
	opts    Options
	log     logger.Logger
}

// New wires a pipeline from its four collaborators.
func New(fetcher HTMLFetcher, articleExt ArticleExtractor, pdfExt PDFTextExtractor, epubExt EpubExtractor, opts Options, log logger.Logger) *Pipeline {
	return &Pipeline{
		fetcher: fetcher,
		article: articleExt,
		pdf:     pdfExt,
		epub:    epubExt,
		opts:    opts.normalized(),
		log:     logger.Ensure(log),
	}
}

// Extract runs one pipeline invocation. The record is handed to the caller
// and not retained.
func (p *Pipeline) Extract(ctx context.Context, req domain.SourceRequest) (*domain.ExtractedArticle, error) {
	if p == nil {
		return nil, fmt.Errorf("pipeline is not initialized")
	}

	switch req.SourceType {
	case domain.SourceWeb:
		return p.extractWeb(ctx, req)
	case domain.SourcePDF:
		return p.extractPDF(req)
	case domain.SourceEPUB:
		return p.extractEPUB(req)
	default:
		return nil, &ValidationError{Reason: fmt.Sprintf("unknown source type %q", req.SourceType)}
	}
}

func (p *Pipeline) extractWeb(ctx context.Context, req domain.SourceRequest) (*domain.ExtractedArticle, error) {
	if strings.TrimSpace(req.URL) == "" {
		return nil, &ValidationError{Reason: "web source requires a URL"}
	}

	html, err := p.fetcher.FetchHTML(ctx, req.URL)
	if err != nil {
		return nil, err
	}
	return p.article.Extract(html, req.URL)
}

func (p *Pipeline) extractPDF(req domain.SourceRequest) (*domain.ExtractedArticle, error) {
	if len(req.Data) == 0 {
		return nil, &ValidationError{Reason: "pdf source requires a byte buffer"}
	}

	text, pageCount, err := p.pdf.ExtractText(req.Data)
	if err != nil {
		return nil, err
	}

	return &domain.ExtractedArticle{
		Content:           text,
		Excerpt:           article.ExcerptFromText(text, p.opts.ExcerptMaxChars),
		EstimatedReadTime: article.ReadingTime(text, p.opts.WordsPerMinute),
		PageCount:         pageCount,
		SourceType:        domain.SourcePDF,
	}, nil
}

func (p *Pipeline) extractEPUB(req domain.SourceRequest) (*domain.ExtractedArticle, error) {
	if len(req.Data) == 0 {
		return nil, &ValidationError{Reason: "epub source requires a byte buffer"}
	}
	if !epub.ValidateStructure(req.Data) {
		return nil, &epub.StructuralError{Reason: "missing or mismatched mimetype/container entries"}
	}

	meta, text, err := p.epub.Extract(req.Data)
	if err != nil {
		return nil, err
	}

	return &domain.ExtractedArticle{
		Title:             meta.Title,
		Content:           text,
		Excerpt:           article.ExcerptFromText(text, p.opts.ExcerptMaxChars),
		Author:            meta.Author,
		Language:          meta.Language,
		PublishedDate:     meta.PublishedDate,
		EstimatedReadTime: article.ReadingTime(text, p.opts.WordsPerMinute),
		Cover:             meta.Cover,
		SourceType:        domain.SourceEPUB,
	}, nil
}
