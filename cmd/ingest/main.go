package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/boipoka-app/boipoka-ingest/internal/app"
	"github.com/boipoka-app/boipoka-ingest/internal/article"
	"github.com/boipoka-app/boipoka-ingest/internal/config"
	"github.com/boipoka-app/boipoka-ingest/internal/domain"
	"github.com/boipoka-app/boipoka-ingest/internal/epub"
	"github.com/boipoka-app/boipoka-ingest/internal/fetch"
	"github.com/boipoka-app/boipoka-ingest/internal/logger"
	"github.com/boipoka-app/boipoka-ingest/internal/pdf"
	"github.com/boipoka-app/boipoka-ingest/internal/pipeline"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ingest failed: %s\n", friendlyMessage(err))
		os.Exit(1)
	}
}

func run() error {
	var (
		rawURL     = flag.String("url", "", "URL of the web article to save")
		filePath   = flag.String("file", "", "path to a local PDF or EPUB file")
		sourceType = flag.String("type", "", "source type: web, pdf, or epub (inferred when omitted)")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.Init(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()

	req, err := buildRequest(*rawURL, *filePath, *sourceType)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ingestor, err := app.NewIngestor(ctx, cfg, log)
	if err != nil {
		log.ErrorObj("failed to initialize ingestor", "error", err)
		return err
	}
	defer ingestor.Close()

	record, err := ingestor.Ingest(ctx, req)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("encode saved article: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

// buildRequest assembles the source request from CLI flags, inferring the
// source type from the file extension when not given.
func buildRequest(rawURL, filePath, sourceType string) (domain.SourceRequest, error) {
	typ := domain.SourceType(strings.ToLower(strings.TrimSpace(sourceType)))

	switch {
	case rawURL != "" && filePath != "":
		return domain.SourceRequest{}, fmt.Errorf("pass either -url or -file, not both")
	case rawURL != "":
		if typ == "" {
			typ = domain.SourceWeb
		}
		return domain.SourceRequest{SourceType: typ, URL: rawURL}, nil
	case filePath != "":
		if typ == "" {
			typ = inferType(filePath)
		}
		if typ == "" {
			return domain.SourceRequest{}, fmt.Errorf("cannot infer source type from %q; pass -type", filePath)
		}
		data, err := os.ReadFile(filePath)
		if err != nil {
			return domain.SourceRequest{}, fmt.Errorf("read %s: %w", filePath, err)
		}
		return domain.SourceRequest{SourceType: typ, Data: data}, nil
	default:
		return domain.SourceRequest{}, fmt.Errorf("pass -url or -file")
	}
}

func inferType(path string) domain.SourceType {
	switch {
	case strings.HasSuffix(strings.ToLower(path), ".pdf"):
		return domain.SourcePDF
	case strings.HasSuffix(strings.ToLower(path), ".epub"):
		return domain.SourceEPUB
	default:
		return ""
	}
}

// friendlyMessage maps pipeline error types to actionable CLI messages.
func friendlyMessage(err error) string {
	var (
		fetchValidation *fetch.ValidationError
		fetchErr        *fetch.Error
		parseErr        *article.ParseError
		readabilityErr  *article.ReadabilityError
		pdfErr          *pdf.ParseError
		structuralErr   *epub.StructuralError
		extractionErr   *epub.ExtractionError
		requestErr      *pipeline.ValidationError
	)

	switch {
	case errors.Is(err, app.ErrDuplicateSource):
		return "this source was already saved to the library"
	case errors.As(err, &fetchValidation):
		return fmt.Sprintf("the URL is not fetchable: %v", err)
	case errors.As(err, &fetchErr):
		return fmt.Sprintf("the page could not be downloaded: %v", err)
	case errors.As(err, &parseErr), errors.As(err, &readabilityErr):
		return fmt.Sprintf("no readable article could be extracted: %v", err)
	case errors.As(err, &pdfErr):
		return fmt.Sprintf("the PDF could not be opened: %v", err)
	case errors.As(err, &structuralErr):
		return fmt.Sprintf("the file is not a valid EPUB: %v", err)
	case errors.As(err, &extractionErr):
		return fmt.Sprintf("the EPUB could not be read: %v", err)
	case errors.As(err, &requestErr):
		return err.Error()
	default:
		return err.Error()
	}
}
