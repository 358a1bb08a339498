package pdf

import (
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

// OCREngine is one optical-recognition session. Engines are acquired per page
// and must be closed before the next page is processed.
type OCREngine interface {
	Recognize(image []byte) (string, error)
	Close() error
}

// EngineFactory produces a fresh engine for each scoped OCR pass.
type EngineFactory func() (OCREngine, error)

// GosseractFactory returns a factory backed by tesseract sessions. Each call
// creates a new client so one live engine exists at a time.
func GosseractFactory(languages ...string) EngineFactory {
	return func() (OCREngine, error) {
		client := gosseract.NewClient()
		if len(languages) > 0 {
			if err := client.SetLanguage(languages...); err != nil {
				client.Close()
				return nil, fmt.Errorf("set ocr languages: %w", err)
			}
		}
		return &gosseractEngine{client: client}, nil
	}
}

type gosseractEngine struct {
	client *gosseract.Client
}

func (g *gosseractEngine) Recognize(image []byte) (string, error) {
	if err := g.client.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("load raster: %w", err)
	}
	text, err := g.client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract: %w", err)
	}
	return text, nil
}

func (g *gosseractEngine) Close() error { return g.client.Close() }
