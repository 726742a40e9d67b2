package sources

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/mensa-backend/internal/domain/menu"
	"github.com/yungbote/mensa-backend/internal/ingestion/extractor"
	"github.com/yungbote/mensa-backend/internal/ingestion/ingesterr"
	"github.com/yungbote/mensa-backend/internal/platform/gcp"
	"github.com/yungbote/mensa-backend/internal/platform/logger"
)

// DocumentResolver is satisfied by *Resolver.
type DocumentResolver interface {
	Resolve(ctx context.Context, landing string) (*Resolved, error)
}

// Document reads one venue's menu from a scanned PDF flyer.
type Document struct {
	log       *logger.Logger
	cfg       SourceConfig
	tier      menu.Tier
	resolver  DocumentResolver
	extractor extractor.Extractor
	archive   gcp.Archive
}

func NewDocument(log *logger.Logger, sc SourceConfig, resolver DocumentResolver, ex extractor.Extractor, archive gcp.Archive) *Document {
	tier, ok := menu.ParseTier(sc.PriceTier)
	if !ok {
		tier = menu.TierStudent
	}
	if sc.MinBytes <= 0 {
		sc.MinBytes = defaultMinBytes
	}
	return &Document{
		log:       log.With("source", sc.Name, "kind", KindDocument),
		cfg:       sc,
		tier:      tier,
		resolver:  resolver,
		extractor: ex,
		archive:   archive,
	}
}

func (d *Document) Name() string { return d.cfg.Name }

func (d *Document) Fetch(ctx context.Context, day time.Time) ([]menu.RawMealEntry, error) {
	day = menu.DayOf(day)
	doc, err := d.resolver.Resolve(ctx, d.cfg.URL)
	if err != nil {
		return nil, ingesterr.Fetch(d.cfg.Name, "resolve", err)
	}
	if int64(len(doc.Data)) < d.cfg.MinBytes {
		return nil, ingesterr.Fetch(d.cfg.Name, "validate",
			fmt.Errorf("document from %s is %d bytes, below minimum %d", doc.URL, len(doc.Data), d.cfg.MinBytes))
	}

	if d.archive != nil {
		key := gcp.ArchiveKey(d.cfg.Name, day.Format(menu.DayLayout), "document.pdf")
		if err := d.archive.Put(ctx, key, doc.Data, doc.ContentType); err != nil {
			d.log.Warn("Archiving menu document failed", "key", key, "error", err)
		}
	}

	res, err := d.extractor.Extract(ctx, doc.Data)
	if err != nil {
		return nil, ingesterr.Extraction(d.cfg.Name, "extract", err)
	}
	for _, w := range res.Warnings {
		d.log.Warn("Extraction warning", "warning", w)
	}
	text := res.Text()
	if strings.TrimSpace(text) == "" {
		return nil, ingesterr.Extraction(d.cfg.Name, "extract", errors.New("no text recovered from document"))
	}

	parsed := ParseMenuText(text, MenuTextOptions{
		Section:  d.cfg.Section,
		Headings: d.cfg.Headings,
		MaxItems: d.cfg.MaxItems,
	})
	if parsed.DateFound && !parsed.Date.Equal(day) {
		d.log.Info("Menu document is for another date",
			"menu_date", parsed.Date.Format(menu.DayLayout),
			"target_date", day.Format(menu.DayLayout),
		)
		return []menu.RawMealEntry{}, nil
	}

	out := make([]menu.RawMealEntry, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		prices := map[menu.Tier]string{}
		if item.Price != "" {
			prices[d.tier] = item.Price
		}
		out = append(out, menu.RawMealEntry{
			Source:      d.cfg.Name,
			Venue:       d.cfg.Venue,
			Date:        day,
			Description: item.Description,
			Category:    d.cfg.Section,
			Prices:      prices,
		})
	}
	d.log.Info("Menu document parsed",
		"url", doc.URL,
		"bytes", len(doc.Data),
		"provider", res.Provider,
		"date_found", parsed.DateFound,
		"items", len(out),
	)
	return out, nil
}
