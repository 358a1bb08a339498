package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/boipoka-app/boipoka-ingest/internal/article"
	"github.com/boipoka-app/boipoka-ingest/internal/config"
	"github.com/boipoka-app/boipoka-ingest/internal/domain"
	"github.com/boipoka-app/boipoka-ingest/internal/epub"
	"github.com/boipoka-app/boipoka-ingest/internal/fetch"
	"github.com/boipoka-app/boipoka-ingest/internal/logger"
	"github.com/boipoka-app/boipoka-ingest/internal/pdf"
	"github.com/boipoka-app/boipoka-ingest/internal/pipeline"
	"github.com/boipoka-app/boipoka-ingest/internal/storage"
	"github.com/boipoka-app/boipoka-ingest/pkg/publishers"
)

// ErrDuplicateSource reports that the requested source was already ingested
// within the dedupe window.
var ErrDuplicateSource = errors.New("source already ingested")

const untitledFallback = "Untitled"

// Ingestor represents the ingestion runtime. It coordinates the extraction
// pipeline, the article library, and downstream publishers.
type Ingestor struct {
	cfg      *config.Config
	pipeline *pipeline.Pipeline
	fanout   *publishers.Fanout
	store    storage.ArticleStore
	log      logger.Logger
}

// NewIngestor builds an ingestion runtime from config.
func NewIngestor(ctx context.Context, cfg *config.Config, log logger.Logger) (*Ingestor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	log = logger.Ensure(log)
	if ctx == nil {
		ctx = context.Background()
	}

	engine := fetch.NewEngine(nil, cfg.FetchProxies, cfg.FetchTimeout, cfg.FetchUserAgent, log)

	articleExt := article.NewExtractor(article.Options{
		ContentFormat:   article.ContentFormat(cfg.ContentFormat),
		ExcerptMaxChars: cfg.ExcerptMaxChars,
		WordsPerMinute:  cfg.WordsPerMinute,
	}, log)

	var ocrFactory pdf.EngineFactory
	if cfg.OCREnabled {
		ocrFactory = pdf.GosseractFactory(cfg.OCRLanguages...)
	}
	pdfExt := pdf.NewExtractor(pdf.Options{
		MinTextChars: cfg.PDFMinTextChars,
		OCRScale:     cfg.PDFOCRScale,
	}, ocrFactory, log)

	epubExt := epub.NewExtractor(log)

	pipe := pipeline.New(engine, articleExt, pdfExt, epubExt, pipeline.Options{
		ExcerptMaxChars: cfg.ExcerptMaxChars,
		WordsPerMinute:  cfg.WordsPerMinute,
	}, log)

	fanout, err := buildFanout(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	store, err := storage.NewStore(cfg.StorageType, cfg.BBoltPath, storage.Options{
		SourceTTL:       cfg.SourceTTL,
		CleanupInterval: cfg.StorageCleanupInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	log.InfoObj("storage initialized", "storage_config", map[string]any{
		"type":                     cfg.StorageType,
		"path":                     cfg.BBoltPath,
		"source_ttl_seconds":       int(cfg.SourceTTL.Seconds()),
		"cleanup_interval_seconds": int(cfg.StorageCleanupInterval.Seconds()),
	})

	return &Ingestor{
		cfg:      cfg,
		pipeline: pipe,
		fanout:   fanout,
		store:    store,
		log:      log,
	}, nil
}

// buildFanout assembles downstream publishers when a publishers file is
// configured. Publishing is optional; ingestion works standalone.
func buildFanout(ctx context.Context, cfg *config.Config, log logger.Logger) (*publishers.Fanout, error) {
	if strings.TrimSpace(cfg.PublishersFile) == "" {
		return publishers.NewFanout(nil), nil
	}

	publisherReg, err := publishers.LoadRegistry(cfg.PublishersFile)
	if err != nil {
		return nil, fmt.Errorf("load publishers registry: %w", err)
	}

	enabled := publisherReg.Enabled()
	pubClients, err := publishers.BuildAll(ctx, publishers.DefaultRegistry(), enabled, log)
	if err != nil {
		return nil, fmt.Errorf("build publishers: %w", err)
	}

	publisherSummaries := make([]map[string]string, 0, len(enabled))
	for _, pubCfg := range enabled {
		publisherSummaries = append(publisherSummaries, map[string]string{
			"id":   pubCfg.ID,
			"type": pubCfg.Type,
		})
	}
	log.InfoObj("publishers registry loaded", "publishers_meta", map[string]any{
		"count":      len(publisherSummaries),
		"publishers": publisherSummaries,
	})

	return publishers.NewFanout(pubClients), nil
}

// Ingest runs the pipeline for one source and saves the result to the library.
func (i *Ingestor) Ingest(ctx context.Context, req domain.SourceRequest) (*domain.SavedArticle, error) {
	if i == nil || i.pipeline == nil {
		return nil, fmt.Errorf("ingestor is not initialized")
	}

	fingerprint := sourceFingerprint(req)
	if fingerprint != "" {
		seen, err := i.store.SeenSource(fingerprint)
		if err != nil {
			return nil, fmt.Errorf("check source dedupe: %w", err)
		}
		if seen {
			return nil, ErrDuplicateSource
		}
	}

	start := time.Now()
	extracted, err := i.pipeline.Extract(ctx, req)
	if err != nil {
		return nil, err
	}

	record := &domain.SavedArticle{
		ID:        uuid.NewString(),
		Article:   *extracted,
		SourceURL: sourceURL(req),
		SavedAt:   time.Now().UTC(),
	}
	if strings.TrimSpace(record.Article.Title) == "" {
		record.Article.Title = untitledFallback
	}

	if err := i.store.SaveArticle(record); err != nil {
		return nil, fmt.Errorf("save article: %w", err)
	}
	if fingerprint != "" {
		if err := i.store.MarkSource(fingerprint); err != nil {
			i.log.WarnObj("source dedupe mark failed", "dedupe_error", map[string]any{
				"article_id": record.ID,
				"error":      err.Error(),
			})
		}
	}

	i.log.InfoObj("article ingested", "ingest_result", map[string]any{
		"article_id":  record.ID,
		"source_type": string(req.SourceType),
		"title":       record.Article.Title,
		"elapsed_ms":  time.Since(start).Milliseconds(),
	})

	i.publish(ctx, record)
	return record, nil
}

// publish fans the saved article out to downstream sinks. Delivery failures
// do not fail the ingest; the article is already in the library.
func (i *Ingestor) publish(ctx context.Context, record *domain.SavedArticle) {
	if i.fanout == nil || i.fanout.Size() == 0 {
		return
	}

	delivered, err := i.fanout.Publish(ctx, publishers.NewEvent(record))
	if err != nil {
		i.log.ErrorObj("publish fanout partial failure", "publish_error", map[string]any{
			"article_id": record.ID,
			"delivered":  delivered,
			"error":      err.Error(),
		})
		return
	}
	i.log.DebugObj("publish fanout completed", "publish_result", map[string]any{
		"article_id": record.ID,
		"delivered":  delivered,
	})
}

// Close releases the storage backend.
func (i *Ingestor) Close() error {
	if i == nil || i.store == nil {
		return nil
	}
	return i.store.Close()
}

// sourceFingerprint derives the dedupe key for a request: the URL for web
// sources, a content digest for uploaded buffers.
func sourceFingerprint(req domain.SourceRequest) string {
	switch {
	case req.SourceType == domain.SourceWeb && strings.TrimSpace(req.URL) != "":
		sum := sha256.Sum256([]byte(strings.TrimSpace(req.URL)))
		return "url:" + hex.EncodeToString(sum[:])
	case len(req.Data) > 0:
		sum := sha256.Sum256(req.Data)
		return string(req.SourceType) + ":" + hex.EncodeToString(sum[:])
	default:
		return ""
	}
}

// sourceURL picks the URL recorded alongside the saved article.
func sourceURL(req domain.SourceRequest) string {
	if req.SourceType == domain.SourceWeb {
		return req.URL
	}
	return req.OriginalURL
}
