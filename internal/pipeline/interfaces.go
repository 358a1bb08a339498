package pipeline

import (
	"context"

	"github.com/boipoka-app/boipoka-ingest/internal/domain"
)

// HTMLFetcher resolves a URL to raw HTML through the fetch strategy chain.
type HTMLFetcher interface {
	FetchHTML(ctx context.Context, url string) (string, error)
}

// ArticleExtractor turns raw HTML into a canonical article record.
type ArticleExtractor interface {
	Extract(html, originURL string) (*domain.ExtractedArticle, error)
}

// PDFTextExtractor extracts plain text and a page count from a PDF buffer.
type PDFTextExtractor interface {
	ExtractText(data []byte) (string, int, error)
}

// EpubExtractor extracts package metadata and chapter text from an EPUB buffer.
type EpubExtractor interface {
	Extract(data []byte) (*domain.EpubMetadata, string, error)
}
