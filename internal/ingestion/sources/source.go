package sources

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/yungbote/mensa-backend/internal/domain/menu"
	"github.com/yungbote/mensa-backend/internal/ingestion/extractor"
	"github.com/yungbote/mensa-backend/internal/platform/gcp"
	"github.com/yungbote/mensa-backend/internal/platform/logger"
)

// Source is one upstream menu provider. Every error returned by Fetch
// matches ingesterr.ErrFetch.
type Source interface {
	Name() string
	Fetch(ctx context.Context, day time.Time) ([]menu.RawMealEntry, error)
}

type Deps struct {
	Client          *http.Client
	FeedTimeout     time.Duration
	DocumentTimeout time.Duration
	Backoff         time.Duration

	Extractor extractor.Extractor // nil disables document sources
	Archive   gcp.Archive         // optional
	Browser   Browser             // optional JS-redirect fallback
}

// Build instantiates every enabled source in config order.
func Build(log *logger.Logger, cfg *Config, deps Deps) ([]Source, error) {
	if cfg == nil {
		return nil, fmt.Errorf("sources config required")
	}
	if log == nil {
		log = logger.Nop()
	}
	if deps.Client == nil {
		deps.Client = &http.Client{}
	}
	var out []Source
	for _, sc := range cfg.Enabled() {
		switch sc.Kind {
		case KindFeed:
			out = append(out, NewFeed(log, sc, deps))
		case KindDocument:
			if deps.Extractor == nil {
				log.Warn("Document source disabled: no text extractor configured", "source", sc.Name)
				continue
			}
			resolver := NewResolver(log, deps.Client, deps.DocumentTimeout, deps.Backoff)
			if sc.BrowserFallback && deps.Browser != nil {
				resolver.Browser = deps.Browser
			}
			archive := deps.Archive
			if !sc.Archive {
				archive = nil
			}
			out = append(out, NewDocument(log, sc, resolver, deps.Extractor, archive))
		}
	}
	return out, nil
}
