package domain

import "time"

// Domain contains the canonical records exchanged between the extraction
// pipeline and its collaborators.

// SourceType identifies the kind of content being ingested.
type SourceType string

const (
	SourceWeb  SourceType = "web"
	SourcePDF  SourceType = "pdf"
	SourceEPUB SourceType = "epub"
)

// Valid reports whether the source type is one the pipeline understands.
func (s SourceType) Valid() bool {
	switch s {
	case SourceWeb, SourcePDF, SourceEPUB:
		return true
	}
	return false
}

// SourceRequest is the input to a single pipeline invocation. URL is set for
// web sources, Data for pdf/epub byte buffers. OriginalURL optionally records
// where a downloaded file came from. Treated as immutable once constructed.
type SourceRequest struct {
	SourceType  SourceType
	URL         string
	Data        []byte
	OriginalURL string
}

// ExtractedArticle is the canonical output of the pipeline: one record per
// invocation, handed to the persistence collaborator and never retained,
// cached, or mutated by the pipeline afterward.
//
// Content holds sanitized HTML (or markdown, depending on the configured
// content format) for web sources and plain text for pdf/epub.
// EstimatedReadTime is always >= 1 minute.
type ExtractedArticle struct {
	Title             string     `json:"title"`
	Content           string     `json:"content"`
	Excerpt           string     `json:"excerpt"`
	Author            string     `json:"author,omitempty"`
	SiteName          string     `json:"site_name,omitempty"`
	Language          string     `json:"language,omitempty"`
	PublishedDate     string     `json:"published_date,omitempty"`
	EstimatedReadTime int        `json:"estimated_read_time"`
	PageCount         int        `json:"page_count,omitempty"`
	Cover             string     `json:"cover,omitempty"`
	SourceType        SourceType `json:"source_type"`
}

// CoverSource records which strategy produced an EPUB cover, so callers and
// tests can tell the primary path from the manual fallback.
type CoverSource string

const (
	CoverPrimary  CoverSource = "primary"
	CoverFallback CoverSource = "fallback"
	CoverNone     CoverSource = "none"
)

// EpubMetadata is the package-level metadata extracted from an EPUB archive.
// Cover, when present, is a base64 data URL.
type EpubMetadata struct {
	Title         string      `json:"title"`
	Author        string      `json:"author"`
	Publisher     string      `json:"publisher,omitempty"`
	Description   string      `json:"description,omitempty"`
	Language      string      `json:"language,omitempty"`
	PublishedDate string      `json:"published_date,omitempty"`
	Cover         string      `json:"cover,omitempty"`
	CoverSource   CoverSource `json:"cover_source"`
}

// SavedArticle is the record the persistence collaborator produces from an
// ExtractedArticle. The collaborator, not the pipeline, assigns ID, SavedAt,
// and the "Untitled" title fallback.
type SavedArticle struct {
	ID        string           `json:"id"`
	Article   ExtractedArticle `json:"article"`
	SourceURL string           `json:"source_url,omitempty"`
	SavedAt   time.Time        `json:"saved_at"`
	Read      bool             `json:"read"`
	Favorite  bool             `json:"favorite"`
	Tags      []string         `json:"tags,omitempty"`
}
