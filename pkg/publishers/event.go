package publishers

import (
	"time"

	"github.com/boipoka-app/boipoka-ingest/internal/domain"
)

// Event represents the payload published downstream after an article is
// saved to the library.
type Event struct {
	ArticleID  string            `json:"article_id"`
	SourceType domain.SourceType `json:"source_type"`
	Title      string            `json:"title"`
	SourceURL  string            `json:"source_url,omitempty"`
	Excerpt    string            `json:"excerpt,omitempty"`
	IngestedAt time.Time         `json:"ingested_at"`
}

// NewEvent constructs an Event for the given saved article.
func NewEvent(record *domain.SavedArticle) Event {
	if record == nil {
		return Event{IngestedAt: time.Now().UTC()}
	}
	return Event{
		ArticleID:  record.ID,
		SourceType: record.Article.SourceType,
		Title:      record.Article.Title,
		SourceURL:  record.SourceURL,
		Excerpt:    record.Article.Excerpt,
		IngestedAt: time.Now().UTC(),
	}
}
