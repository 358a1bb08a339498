package app

import (
	"context"
	"errors"
	"testing"

	"github.com/boipoka-app/boipoka-ingest/internal/domain"
	"github.com/boipoka-app/boipoka-ingest/internal/logger"
	"github.com/boipoka-app/boipoka-ingest/internal/pipeline"
	"github.com/boipoka-app/boipoka-ingest/pkg/publishers"
)

type stubFetcher struct{ html string }

func (s *stubFetcher) FetchHTML(context.Context, string) (string, error) { return s.html, nil }

type stubArticleExtractor struct{ record *domain.ExtractedArticle }

func (s *stubArticleExtractor) Extract(string, string) (*domain.ExtractedArticle, error) {
	return s.record, nil
}

type stubPDFExtractor struct{}

func (stubPDFExtractor) ExtractText([]byte) (string, int, error) { return "", 0, nil }

type stubEpubExtractor struct{}

func (stubEpubExtractor) Extract([]byte) (*domain.EpubMetadata, string, error) {
	return &domain.EpubMetadata{}, "", nil
}

type memoryStore struct {
	saved   []*domain.SavedArticle
	sources map[string]bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{sources: make(map[string]bool)}
}

func (m *memoryStore) Close() error { return nil }
func (m *memoryStore) SaveArticle(record *domain.SavedArticle) error {
	m.saved = append(m.saved, record)
	return nil
}
func (m *memoryStore) GetArticle(id string) (*domain.SavedArticle, error) {
	for _, r := range m.saved {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, errors.New("not found")
}
func (m *memoryStore) ListArticles() ([]*domain.SavedArticle, error) { return m.saved, nil }
func (m *memoryStore) SeenSource(fp string) (bool, error)            { return m.sources[fp], nil }
func (m *memoryStore) MarkSource(fp string) error {
	m.sources[fp] = true
	return nil
}

func newTestIngestor(extracted *domain.ExtractedArticle, store *memoryStore) *Ingestor {
	pipe := pipeline.New(
		&stubFetcher{html: "<html></html>"},
		&stubArticleExtractor{record: extracted},
		stubPDFExtractor{},
		stubEpubExtractor{},
		pipeline.Options{},
		nil,
	)
	return &Ingestor{
		pipeline: pipe,
		fanout:   publishers.NewFanout(nil),
		store:    store,
		log:      &logger.NopLogger{},
	}
}

func TestIngestAssignsIdentityAndSaves(t *testing.T) {
	store := newMemoryStore()
	ing := newTestIngestor(&domain.ExtractedArticle{Title: "A Post", SourceType: domain.SourceWeb}, store)

	record, err := ing.Ingest(context.Background(), domain.SourceRequest{
		SourceType: domain.SourceWeb,
		URL:        "https://example.com/post",
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if record.ID == "" {
		t.Fatalf("expected generated article ID")
	}
	if record.SavedAt.IsZero() {
		t.Fatalf("expected SavedAt to be set")
	}
	if record.SourceURL != "https://example.com/post" {
		t.Fatalf("SourceURL = %q", record.SourceURL)
	}
	if len(store.saved) != 1 {
		t.Fatalf("expected record persisted, got %d", len(store.saved))
	}
}

func TestIngestFallsBackToUntitled(t *testing.T) {
	store := newMemoryStore()
	ing := newTestIngestor(&domain.ExtractedArticle{Title: "   ", SourceType: domain.SourceWeb}, store)

	record, err := ing.Ingest(context.Background(), domain.SourceRequest{
		SourceType: domain.SourceWeb,
		URL:        "https://example.com/untitled",
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if record.Article.Title != "Untitled" {
		t.Fatalf("title = %q, want Untitled", record.Article.Title)
	}
}

func TestIngestRejectsDuplicateSource(t *testing.T) {
	store := newMemoryStore()
	ing := newTestIngestor(&domain.ExtractedArticle{Title: "A Post", SourceType: domain.SourceWeb}, store)

	req := domain.SourceRequest{SourceType: domain.SourceWeb, URL: "https://example.com/post"}
	if _, err := ing.Ingest(context.Background(), req); err != nil {
		t.Fatalf("first Ingest: %v", err)
	}
	if _, err := ing.Ingest(context.Background(), req); !errors.Is(err, ErrDuplicateSource) {
		t.Fatalf("second Ingest: %v, want ErrDuplicateSource", err)
	}
}

func TestSourceFingerprintDistinguishesKinds(t *testing.T) {
	webA := sourceFingerprint(domain.SourceRequest{SourceType: domain.SourceWeb, URL: "https://a.example"})
	webB := sourceFingerprint(domain.SourceRequest{SourceType: domain.SourceWeb, URL: "https://b.example"})
	if webA == "" || webA == webB {
		t.Fatalf("web fingerprints should be distinct and non-empty")
	}

	data := []byte("%PDF-1.7 content")
	pdfFP := sourceFingerprint(domain.SourceRequest{SourceType: domain.SourcePDF, Data: data})
	epubFP := sourceFingerprint(domain.SourceRequest{SourceType: domain.SourceEPUB, Data: data})
	if pdfFP == epubFP {
		t.Fatalf("same bytes under different source types should not collide")
	}

	if fp := sourceFingerprint(domain.SourceRequest{SourceType: domain.SourceWeb}); fp != "" {
		t.Fatalf("empty request should have empty fingerprint, got %q", fp)
	}
}
