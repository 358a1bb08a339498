package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/boipoka-app/boipoka-ingest/internal/domain"
)

// Package storage provides the local library DB abstraction.

// ErrNotFound reports a lookup for an article ID the library does not hold.
var ErrNotFound = fmt.Errorf("article not found")

// ArticleStore persists saved articles and tracks which sources have already
// been ingested.
type ArticleStore interface {
	Close() error
	SaveArticle(record *domain.SavedArticle) error
	GetArticle(id string) (*domain.SavedArticle, error)
	ListArticles() ([]*domain.SavedArticle, error)
	SeenSource(fingerprint string) (bool, error)
	MarkSource(fingerprint string) error
}

// Options controls retention characteristics for concrete store implementations.
type Options struct {
	SourceTTL       time.Duration
	CleanupInterval time.Duration
}

const (
	defaultSourceTTL       = 30 * 24 * time.Hour
	defaultCleanupInterval = 12 * time.Hour
)

// NewStore creates the configured storage backend.
func NewStore(typ, path string, opts Options) (ArticleStore, error) {
	typ = strings.TrimSpace(strings.ToLower(typ))
	opts = normalizeOptions(opts)

	switch typ {
	case "", "none", "disabled":
		return noopStore{}, nil
	case "bbolt":
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("bbolt storage requires a path")
		}
		return openBolt(path, opts)
	default:
		return nil, fmt.Errorf("unsupported storage type %q", typ)
	}
}

func normalizeOptions(opts Options) Options {
	if opts.SourceTTL <= 0 {
		opts.SourceTTL = defaultSourceTTL
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = defaultCleanupInterval
	}
	return opts
}

type noopStore struct{}

func (noopStore) Close() error                            { return nil }
func (noopStore) SaveArticle(*domain.SavedArticle) error  { return nil }
func (noopStore) GetArticle(string) (*domain.SavedArticle, error) {
	return nil, ErrNotFound
}
func (noopStore) ListArticles() ([]*domain.SavedArticle, error) { return nil, nil }
func (noopStore) SeenSource(string) (bool, error)               { return false, nil }
func (noopStore) MarkSource(string) error                       { return nil }
