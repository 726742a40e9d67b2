package localmedia

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/mensa-backend/internal/platform/ctxutil"
	"github.com/yungbote/mensa-backend/internal/platform/logger"
)

// Tools wraps the system binaries used to turn menu PDFs into images.
//
// REQUIRED BINARIES: pdftoppm (poppler-utils).
type Tools interface {
	AssertReady(ctx context.Context) error
	RenderPDF(ctx context.Context, pdf []byte, opts PDFRenderOptions) ([]PageImage, error)
}

type PDFRenderOptions struct {
	DPI       int
	FirstPage int // 1-based, 0 means default
	LastPage  int // 1-based, 0 means default
	// MaxSide bounds the longest edge in pixels; larger pages are scaled
	// down before being handed to OCR. 0 disables.
	MaxSide int
}

type PageImage struct {
	Number   int
	MimeType string
	Data     []byte
	Width    int
	Height   int
}

type tools struct {
	log          *logger.Logger
	pdftoppmPath string
	workRoot     string
	timeout      time.Duration
}

func New(log *logger.Logger) Tools {
	return &tools{
		log:          log.With("service", "MediaTools"),
		pdftoppmPath: "pdftoppm",
		workRoot:     filepath.Join(os.TempDir(), "mensa-media"),
		timeout:      2 * time.Minute,
	}
}

func (m *tools) AssertReady(ctx context.Context) error {
	if _, err := exec.LookPath(m.pdftoppmPath); err != nil {
		return fmt.Errorf("missing required binary %q in PATH: %w", m.pdftoppmPath, err)
	}
	if err := os.MkdirAll(m.workRoot, 0o755); err != nil {
		return fmt.Errorf("create workRoot: %w", err)
	}
	return nil
}

func (m *tools) RenderPDF(ctx context.Context, pdf []byte, opts PDFRenderOptions) ([]PageImage, error) {
	ctx = ctxutil.Default(ctx)
	if len(pdf) == 0 {
		return nil, fmt.Errorf("empty pdf")
	}
	if err := m.AssertReady(ctx); err != nil {
		return nil, err
	}
	dir, err := os.MkdirTemp(m.workRoot, "render-*")
	if err != nil {
		return nil, fmt.Errorf("mkdir render dir: %w", err)
	}
	defer os.RemoveAll(dir)

	pdfPath := filepath.Join(dir, "menu.pdf")
	if err := os.WriteFile(pdfPath, pdf, 0o644); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, m.pdftoppmPath, renderArgs(pdfPath, filepath.Join(dir, "page"), opts)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("pdftoppm failed: %w; out=%s", err, string(out))
	}

	paths, err := globSorted(dir, `^page-\d+\.png$`)
	if err != nil || len(paths) == 0 {
		return nil, fmt.Errorf("no images produced by pdftoppm; out=%s", string(out))
	}

	pages := make([]PageImage, 0, len(paths))
	for i, p := range paths {
		raw, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read page %d: %w", i+1, err)
		}
		img, w, h, err := Downscale(raw, opts.MaxSide)
		if err != nil {
			return nil, fmt.Errorf("downscale page %d: %w", i+1, err)
		}
		first := opts.FirstPage
		if first <= 0 {
			first = 1
		}
		pages = append(pages, PageImage{Number: first + i, MimeType: "image/png", Data: img, Width: w, Height: h})
	}
	m.log.Debug("Rendered PDF", "pages", len(pages), "dpi", opts.DPI)
	return pages, nil
}

func renderArgs(pdfPath, prefix string, opts PDFRenderOptions) []string {
	dpi := opts.DPI
	if dpi <= 0 {
		dpi = 150
	}
	args := []string{"-r", strconv.Itoa(dpi), "-png"}
	if opts.FirstPage > 0 {
		args = append(args, "-f", strconv.Itoa(opts.FirstPage))
	}
	if opts.LastPage > 0 {
		args = append(args, "-l", strconv.Itoa(opts.LastPage))
	}
	return append(args, pdfPath, prefix)
}

func globSorted(dir string, pattern string) ([]string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := []string{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if re.MatchString(strings.ToLower(e.Name())) {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}
