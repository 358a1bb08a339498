package epub

import (
	"archive/zip"
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"

	epublib "github.com/simp-lee/epub"

	"github.com/boipoka-app/boipoka-ingest/internal/domain"
	"github.com/boipoka-app/boipoka-ingest/internal/logger"
)

// StructuralError reports an archive missing the entries every EPUB must have.
type StructuralError struct {
	Reason string
}

func (e *StructuralError) Error() string { return "epub structure: " + e.Reason }

// ExtractionError reports an archive that could not be processed at all.
// Cover failures never surface here; they degrade to an absent cover.
type ExtractionError struct {
	Cause error
}

func (e *ExtractionError) Error() string { return fmt.Sprintf("epub extraction: %v", e.Cause) }
func (e *ExtractionError) Unwrap() error { return e.Cause }

const (
	mimetypeEntry  = "mimetype"
	containerEntry = "META-INF/container.xml"
	epubMimetype   = "application/epub+zip"

	defaultTitle  = "Unknown Title"
	defaultAuthor = "Unknown Author"
)

// ValidateStructure checks the two mandatory entries of an EPUB container: a
// mimetype entry holding exactly application/epub+zip, and the META-INF
// container file. It reports false rather than raising so callers decide how
// to react.
func ValidateStructure(data []byte) bool {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return false
	}

	var mimeOK, containerOK bool
	for _, f := range zr.File {
		switch f.Name {
		case mimetypeEntry:
			rc, err := f.Open()
			if err != nil {
				continue
			}
			content, err := io.ReadAll(rc)
			rc.Close()
			if err != nil {
				continue
			}
			mimeOK = strings.TrimSpace(string(content)) == epubMimetype
		case containerEntry:
			containerOK = true
		}
	}
	return mimeOK && containerOK
}

// Extractor reads EPUB package metadata, cover, and chapter text through a
// packaging-aware reader, with a manual container/OPF fallback for covers.
type Extractor struct {
	log         logger.Logger
	coverLookup func(book *epublib.Book) ([]byte, error)
}

func NewExtractor(log logger.Logger) *Extractor {
	return &Extractor{
		log:         logger.Ensure(log),
		coverLookup: readerCover,
	}
}

// readerCover asks the packaging-aware reader for the cover resource.
func readerCover(book *epublib.Book) ([]byte, error) {
	cover, err := book.Cover()
	if err != nil {
		return nil, err
	}
	if len(cover.Data) == 0 {
		return nil, nil
	}
	return cover.Data, nil
}

// ExtractMetadata returns the package metadata and cover for the archive.
func (e *Extractor) ExtractMetadata(data []byte) (*domain.EpubMetadata, error) {
	meta, _, err := e.extract(data, false)
	return meta, err
}

// Extract returns the package metadata plus spine-ordered plain text content.
func (e *Extractor) Extract(data []byte) (*domain.EpubMetadata, string, error) {
	return e.extract(data, true)
}

func (e *Extractor) extract(data []byte, withText bool) (*domain.EpubMetadata, string, error) {
	book, err := epublib.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, "", &ExtractionError{Cause: fmt.Errorf("open epub archive: %w", err)}
	}
	defer func() {
		if cerr := book.Close(); cerr != nil {
			e.log.WarnObj("epub reader close failed", "epub_error", cerr.Error())
		}
	}()

	meta := mapMetadata(book.Metadata())

	cover, source := e.extractCover(book, data)
	meta.Cover = cover
	meta.CoverSource = source
	if source == domain.CoverNone {
		e.log.DebugObj("no cover found in epub", "epub_cover", "both tiers empty")
	}

	var text string
	if withText {
		text = e.chaptersText(book)
	}
	return meta, text, nil
}

// mapMetadata flattens the reader's metadata into the canonical record,
// defaulting title and author when the package declares none.
func mapMetadata(meta epublib.Metadata) *domain.EpubMetadata {
	out := &domain.EpubMetadata{
		Title:         defaultTitle,
		Author:        defaultAuthor,
		Publisher:     strings.TrimSpace(meta.Publisher),
		Description:   strings.TrimSpace(meta.Description),
		PublishedDate: strings.TrimSpace(meta.Date),
	}
	if len(meta.Language) > 0 {
		out.Language = strings.TrimSpace(meta.Language[0])
	}
	if len(meta.Titles) > 0 && strings.TrimSpace(meta.Titles[0]) != "" {
		out.Title = strings.TrimSpace(meta.Titles[0])
	}
	if len(meta.Authors) > 0 && strings.TrimSpace(meta.Authors[0].Name) != "" {
		out.Author = strings.TrimSpace(meta.Authors[0].Name)
	}
	return out
}

// extractCover tries the reader's multi-strategy lookup first and only then
// the manual container/OPF parse. Both failing leaves the cover absent; that
// is not fatal to metadata extraction.
func (e *Extractor) extractCover(book *epublib.Book, data []byte) (string, domain.CoverSource) {
	if dataURL, ok := e.primaryCover(book); ok {
		return dataURL, domain.CoverPrimary
	}
	if dataURL, ok := fallbackCover(data); ok {
		return dataURL, domain.CoverFallback
	}
	return "", domain.CoverNone
}

// primaryCover asks the packaging-aware reader for a cover resource. A panic
// or error inside the reader only routes us to the fallback tier.
func (e *Extractor) primaryCover(book *epublib.Book) (dataURL string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.log.WarnObj("primary cover lookup panicked", "epub_cover", fmt.Sprintf("%v", r))
			dataURL, ok = "", false
		}
	}()

	lookup := e.coverLookup
	if lookup == nil {
		lookup = readerCover
	}
	data, err := lookup(book)
	if err != nil || len(data) == 0 {
		return "", false
	}
	return encodeDataURL("", data), true
}

// chaptersText assembles spine-ordered plain text. Chapter-level failures are
// skipped, not fatal.
func (e *Extractor) chaptersText(book *epublib.Book) (out string) {
	defer func() {
		if r := recover(); r != nil {
			e.log.WarnObj("chapter text extraction panicked", "epub_error", fmt.Sprintf("%v", r))
			out = ""
		}
	}()

	var parts []string
	for _, ch := range book.Chapters() {
		text, err := ch.TextContent()
		if err != nil {
			e.log.WarnObj("chapter text extraction failed", "epub_error", err.Error())
			continue
		}
		if t := strings.TrimSpace(text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n\n")
}

// encodeDataURL base64-encodes the bytes as a data URL, sniffing the media
// type when the caller has none to declare.
func encodeDataURL(mediaType string, data []byte) string {
	mediaType = strings.TrimSpace(mediaType)
	if mediaType == "" {
		mediaType = http.DetectContentType(data)
	}
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
