package gcp

import (
	"context"
	"fmt"
	"os"
	"strings"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/types/known/fieldmaskpb"

	"github.com/yungbote/mensa-backend/internal/platform/ctxutil"
	"github.com/yungbote/mensa-backend/internal/platform/logger"
)

type Document interface {
	ProcessBytes(ctx context.Context, req DocAIProcessBytesRequest) (*DocAIResult, error)
	Close() error
}

type DocAIProcessBytesRequest struct {
	MimeType  string
	Data      []byte
	FieldMask []string
}

// DocAIResult holds one text block per page. Table rows are flattened to a
// single line each with cells joined by spaces, so a dish and its price stay
// on one line.
type DocAIResult struct {
	Provider  string   `json:"provider"`
	Processor string   `json:"processor"`
	Pages     []string `json:"pages"`
}

type DocAIConfig struct {
	ProjectID        string
	Location         string
	ProcessorID      string
	ProcessorVersion string
}

func DocAIConfigFromEnv() DocAIConfig {
	cfg := DocAIConfig{
		ProjectID:        strings.TrimSpace(os.Getenv("DOCUMENTAI_PROJECT_ID")),
		Location:         strings.TrimSpace(os.Getenv("DOCUMENTAI_LOCATION")),
		ProcessorID:      strings.TrimSpace(os.Getenv("DOCUMENTAI_PROCESSOR_ID")),
		ProcessorVersion: strings.TrimSpace(os.Getenv("DOCUMENTAI_PROCESSOR_VERSION")),
	}
	if cfg.Location == "" {
		cfg.Location = "eu"
	}
	return cfg
}

type documentService struct {
	log    *logger.Logger
	client *documentai.DocumentProcessorClient
	name   string
}

func NewDocument(log *logger.Logger, cfg DocAIConfig) (Document, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	name := processorName(cfg.ProjectID, cfg.Location, cfg.ProcessorID, cfg.ProcessorVersion)
	if name == "" {
		return nil, fmt.Errorf("documentai: DOCUMENTAI_PROJECT_ID and DOCUMENTAI_PROCESSOR_ID are required")
	}
	endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", cfg.Location)
	opts := append([]option.ClientOption{option.WithEndpoint(endpoint)}, ClientOptionsFromEnv()...)
	c, err := documentai.NewDocumentProcessorClient(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("documentai client: %w", err)
	}
	slog := log.With("service", "gcp.Document")
	slog.Info("Document AI initialized", "endpoint", endpoint, "processor", name)
	return &documentService{log: slog, client: c, name: name}, nil
}

func (s *documentService) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *documentService) ProcessBytes(ctx context.Context, req DocAIProcessBytesRequest) (*DocAIResult, error) {
	out := &DocAIResult{Provider: "gcp_documentai", Processor: s.name}
	if len(req.Data) == 0 {
		return out, nil
	}
	if req.MimeType == "" {
		req.MimeType = "application/pdf"
	}
	r := &documentaipb.ProcessRequest{
		Name: s.name,
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{Content: req.Data, MimeType: req.MimeType},
		},
	}
	if len(req.FieldMask) > 0 {
		r.FieldMask = &fieldmaskpb.FieldMask{Paths: req.FieldMask}
	}
	resp, err := s.client.ProcessDocument(ctxutil.Default(ctx), r)
	if err != nil {
		return nil, fmt.Errorf("documentai ProcessDocument: %w", err)
	}
	if resp == nil || resp.Document == nil {
		return out, nil
	}
	out.Pages = pagesText(resp.Document)
	return out, nil
}

func pagesText(doc *documentaipb.Document) []string {
	full := doc.GetText()
	if len(doc.GetPages()) == 0 {
		if t := normalizeLines(full); t != "" {
			return []string{t}
		}
		return nil
	}
	out := make([]string, 0, len(doc.GetPages()))
	for _, pg := range doc.GetPages() {
		var b strings.Builder
		for _, ln := range pg.GetLines() {
			b.WriteString(textFromAnchor(full, ln.GetLayout().GetTextAnchor()))
			b.WriteByte('\n')
		}
		for _, t := range pg.GetTables() {
			for _, row := range append(append([]*documentaipb.Document_Page_Table_TableRow{}, t.GetHeaderRows()...), t.GetBodyRows()...) {
				cells := tableRowToCells(full, row)
				b.WriteString(strings.Join(cells, " "))
				b.WriteByte('\n')
			}
		}
		out = append(out, normalizeLines(b.String()))
	}
	return out
}

func textFromAnchor(full string, anchor *documentaipb.Document_TextAnchor) string {
	if anchor == nil || full == "" {
		return ""
	}
	var b strings.Builder
	for _, seg := range anchor.GetTextSegments() {
		start, end := int(seg.GetStartIndex()), int(seg.GetEndIndex())
		if end > len(full) {
			end = len(full)
		}
		if start < 0 || start >= end {
			continue
		}
		b.WriteString(full[start:end])
	}
	return b.String()
}

func tableRowToCells(full string, r *documentaipb.Document_Page_Table_TableRow) []string {
	out := make([]string, 0, len(r.GetCells()))
	for _, c := range r.GetCells() {
		txt := strings.TrimSpace(textFromAnchor(full, c.GetLayout().GetTextAnchor()))
		if txt != "" {
			out = append(out, strings.Join(strings.Fields(txt), " "))
		}
	}
	return out
}

func processorName(project, location, processorID, version string) string {
	if project == "" || location == "" || processorID == "" {
		return ""
	}
	base := fmt.Sprintf("projects/%s/locations/%s/processors/%s", project, location, processorID)
	if version != "" {
		return base + "/processorVersions/" + version
	}
	return base
}
