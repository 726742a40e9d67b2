package extractor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/mensa-backend/internal/platform/ctxutil"
	"github.com/yungbote/mensa-backend/internal/platform/gcp"
	"github.com/yungbote/mensa-backend/internal/platform/httpx"
	"github.com/yungbote/mensa-backend/internal/platform/localmedia"
	"github.com/yungbote/mensa-backend/internal/platform/logger"
)

const (
	ModeVision     = "vision"
	ModeDocumentAI = "documentai"
	// ModeAuto tries Document AI on the whole PDF and falls back to
	// rendered-page OCR when the text signal is weak.
	ModeAuto = "auto"
)

// Result is the extracted text of a menu document, one block per page.
type Result struct {
	Provider string
	Pages    []string
	Warnings []string
}

func (r *Result) Text() string {
	if r == nil {
		return ""
	}
	return strings.Join(r.Pages, "\n")
}

type Config struct {
	Mode         string
	DPI          int
	FirstPage    int
	LastPage     int
	MaxImageSide int
	Timeout      time.Duration
	Backoff      time.Duration
}

// Extractor turns a PDF into page text.
type Extractor interface {
	Extract(ctx context.Context, pdf []byte) (*Result, error)
	Mode() string
}

type extractor struct {
	log    *logger.Logger
	cfg    Config
	vision gcp.Vision
	doc    gcp.Document
	media  localmedia.Tools
}

// New wires the providers a mode needs; nil providers are allowed only for
// paths the mode never takes.
func New(log *logger.Logger, cfg Config, vision gcp.Vision, doc gcp.Document, media localmedia.Tools) (Extractor, error) {
	if log == nil {
		log = logger.Nop()
	}
	cfg.Mode = strings.ToLower(strings.TrimSpace(cfg.Mode))
	if cfg.Mode == "" {
		cfg.Mode = ModeVision
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 150
	}
	if cfg.FirstPage <= 0 {
		cfg.FirstPage = 1
	}
	if cfg.LastPage <= 0 {
		cfg.LastPage = cfg.FirstPage
	}
	if cfg.MaxImageSide <= 0 {
		cfg.MaxImageSide = 3000
	}
	switch cfg.Mode {
	case ModeVision:
		if vision == nil || media == nil {
			return nil, fmt.Errorf("extractor %s requires vision and media tools", cfg.Mode)
		}
	case ModeDocumentAI:
		if doc == nil {
			return nil, fmt.Errorf("extractor %s requires a document ai client", cfg.Mode)
		}
	case ModeAuto:
		if doc == nil && (vision == nil || media == nil) {
			return nil, fmt.Errorf("extractor auto requires document ai or vision")
		}
	default:
		return nil, fmt.Errorf("unknown extractor mode %q", cfg.Mode)
	}
	return &extractor{
		log:    log.With("component", "MenuExtractor", "mode", cfg.Mode),
		cfg:    cfg,
		vision: vision,
		doc:    doc,
		media:  media,
	}, nil
}

func (e *extractor) Mode() string { return e.cfg.Mode }

func (e *extractor) Extract(ctx context.Context, pdf []byte) (*Result, error) {
	ctx = ctxutil.Default(ctx)
	switch e.cfg.Mode {
	case ModeDocumentAI:
		return e.documentAI(ctx, pdf)
	case ModeVision:
		return e.renderAndOCR(ctx, pdf)
	}

	var warnings []string
	var docRes *Result
	if e.doc != nil {
		res, err := e.documentAI(ctx, pdf)
		if err == nil && !TextSignalWeak(res.Pages) {
			return res, nil
		}
		if err != nil {
			warnings = append(warnings, "documentai failed: "+err.Error())
		} else {
			docRes = res
			warnings = append(warnings, "documentai text signal weak")
		}
	}
	if e.vision == nil || e.media == nil {
		if docRes != nil {
			docRes.Warnings = append(warnings, docRes.Warnings...)
			return docRes, nil
		}
		return &Result{Provider: "none", Warnings: warnings}, nil
	}
	res, err := e.renderAndOCR(ctx, pdf)
	if err != nil {
		return nil, err
	}
	res.Warnings = append(warnings, res.Warnings...)
	return res, nil
}

func (e *extractor) documentAI(ctx context.Context, pdf []byte) (*Result, error) {
	var out *gcp.DocAIResult
	err := httpx.Retry(ctx, e.log, httpx.Once("documentai", e.cfg.Timeout, e.cfg.Backoff), func(ctx context.Context) error {
		r, err := e.doc.ProcessBytes(ctx, gcp.DocAIProcessBytesRequest{MimeType: "application/pdf", Data: pdf})
		if err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("documentai: %w", err)
	}
	pages := make([]string, 0, len(out.Pages))
	for _, p := range out.Pages {
		pages = append(pages, CleanText(p))
	}
	return &Result{Provider: out.Provider, Pages: pages}, nil
}

func (e *extractor) renderAndOCR(ctx context.Context, pdf []byte) (*Result, error) {
	images, err := e.media.RenderPDF(ctx, pdf, localmedia.PDFRenderOptions{
		DPI:       e.cfg.DPI,
		FirstPage: e.cfg.FirstPage,
		LastPage:  e.cfg.LastPage,
		MaxSide:   e.cfg.MaxImageSide,
	})
	if err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	res := &Result{Provider: "gcp_vision"}
	for _, img := range images {
		var ocr *gcp.VisionOCRResult
		err := httpx.Retry(ctx, e.log, httpx.Once("vision", e.cfg.Timeout, e.cfg.Backoff), func(ctx context.Context) error {
			r, err := e.vision.OCRImageBytes(ctx, img.Data, img.MimeType)
			if err != nil {
				return err
			}
			ocr = r
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("ocr page %d: %w", img.Number, err)
		}
		res.Pages = append(res.Pages, CleanText(ocr.Text))
		e.log.Debug("OCR page done", "page", img.Number, "chars", len(ocr.Text), "confidence", ocr.Confidence, "width", img.Width, "height", img.Height)
	}
	return res, nil
}
