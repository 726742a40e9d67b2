package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/yungbote/mensa-backend/internal/data/db"
	"github.com/yungbote/mensa-backend/internal/ingestion/extractor"
	"github.com/yungbote/mensa-backend/internal/ingestion/scoring"
	"github.com/yungbote/mensa-backend/internal/ingestion/sources"
	"github.com/yungbote/mensa-backend/internal/platform/chatcompletion"
	"github.com/yungbote/mensa-backend/internal/platform/gcp"
	"github.com/yungbote/mensa-backend/internal/platform/localmedia"
	"github.com/yungbote/mensa-backend/internal/platform/locking"
	"github.com/yungbote/mensa-backend/internal/platform/logger"
	"github.com/yungbote/mensa-backend/internal/platform/openai"
)

type Clients struct {
	HTTP      *http.Client
	Locker    locking.Locker
	Vision    gcp.Vision
	Document  gcp.Document
	Archive   gcp.Archive
	Extractor extractor.Extractor
	Browser   sources.Browser
	Generator scoring.Generator
}

// wireClients builds the external clients. Optional providers that are not
// configured are left nil and the features that need them are disabled.
func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")
	var c Clients
	c.HTTP = &http.Client{}

	locker, err := locking.New(ctx, log, locking.Config{
		Backend:       cfg.LockBackend,
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
		PostgresDSN:   db.DSNFromEnv(log),
	})
	if err != nil {
		return Clients{}, fmt.Errorf("init locker: %w", err)
	}
	c.Locker = locker

	if gcpConfigured() {
		vision, err := gcp.NewVision(log)
		if err != nil {
			log.Warn("Vision OCR unavailable", "error", err)
		} else {
			c.Vision = vision
		}
	}
	if docCfg := gcp.DocAIConfigFromEnv(); docCfg.ProjectID != "" && docCfg.ProcessorID != "" {
		doc, err := gcp.NewDocument(log, docCfg)
		if err != nil {
			log.Warn("Document AI unavailable", "error", err)
		} else {
			c.Document = doc
		}
	}

	var media localmedia.Tools
	if c.Vision != nil {
		media = localmedia.New(log)
		if err := media.AssertReady(ctx); err != nil {
			log.Warn("PDF rendering unavailable, vision OCR disabled", "error", err)
			media = nil
		}
	}
	if c.Document != nil || (c.Vision != nil && media != nil) {
		mode := cfg.ExtractorMode
		if mode == extractor.ModeAuto || mode == "" {
			mode = pickExtractorMode(c.Document != nil, c.Vision != nil && media != nil)
		}
		ex, err := extractor.New(log, extractor.Config{
			Mode:         mode,
			DPI:          cfg.OCRDPI,
			FirstPage:    cfg.OCRFirstPage,
			LastPage:     cfg.OCRLastPage,
			MaxImageSide: cfg.OCRMaxImageSide,
			Timeout:      cfg.OCRTimeout,
			Backoff:      cfg.RetryBackoff,
		}, c.Vision, c.Document, media)
		if err != nil {
			c.Close()
			return Clients{}, fmt.Errorf("init extractor: %w", err)
		}
		c.Extractor = ex
	} else {
		log.Warn("No text extractor configured; document sources are disabled")
	}

	if cfg.ArchiveDocuments {
		storageCfg, err := gcp.ResolveObjectStorageConfigFromEnv()
		if err != nil {
			c.Close()
			return Clients{}, fmt.Errorf("object storage config: %w", err)
		}
		archive, err := gcp.NewArchive(log, storageCfg)
		if err != nil {
			c.Close()
			return Clients{}, fmt.Errorf("init archive: %w", err)
		}
		c.Archive = archive
	}

	if cfg.BrowserFallback {
		c.Browser = sources.NewChromeBrowser(log, cfg.DocumentTimeout)
	}

	gen, err := newGenerator(log, cfg.AIProvider)
	if err != nil {
		c.Close()
		return Clients{}, err
	}
	c.Generator = gen
	return c, nil
}

// pickExtractorMode resolves "auto" against the providers that came up.
func pickExtractorMode(hasDoc, hasVision bool) string {
	switch {
	case hasDoc && hasVision:
		return extractor.ModeAuto
	case hasDoc:
		return extractor.ModeDocumentAI
	default:
		return extractor.ModeVision
	}
}

func newGenerator(log *logger.Logger, provider string) (scoring.Generator, error) {
	switch provider {
	case "none", "off", "":
		log.Info("Tertiary scoring disabled")
		return nil, nil
	case "chat", "mistral":
		cfg := chatcompletion.ConfigFromEnv()
		if cfg.APIKey == "" {
			log.Warn("CHAT_API_KEY not set; tertiary scoring disabled")
			return nil, nil
		}
		return chatcompletion.NewClient(log, cfg)
	case "openai":
		cfg := openai.ConfigFromEnv()
		if cfg.APIKey == "" {
			log.Warn("OPENAI_API_KEY not set; tertiary scoring disabled")
			return nil, nil
		}
		return openai.NewClient(log, cfg)
	default:
		return nil, fmt.Errorf("unknown AI_PROVIDER %q", provider)
	}
}

func gcpConfigured() bool {
	for _, k := range []string{"GOOGLE_APPLICATION_CREDENTIALS", "GOOGLE_APPLICATION_CREDENTIALS_JSON", "GCP_VISION_ENABLED"} {
		if strings.TrimSpace(os.Getenv(k)) != "" {
			return true
		}
	}
	return false
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Archive != nil {
		_ = c.Archive.Close()
	}
	if c.Document != nil {
		_ = c.Document.Close()
	}
	if c.Vision != nil {
		_ = c.Vision.Close()
	}
	if c.Locker != nil {
		_ = c.Locker.Close()
	}
}
