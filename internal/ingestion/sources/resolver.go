package sources

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/yungbote/mensa-backend/internal/platform/httpx"
	"github.com/yungbote/mensa-backend/internal/platform/logger"
)

const documentMaxBytes = 32 << 20

// Resolved is a downloaded menu document.
type Resolved struct {
	URL         string
	ContentType string
	Data        []byte
}

// Resolver follows a landing URL to the PDF behind it. Landing pages may
// serve the PDF directly, link or embed it, redirect via meta refresh, or
// only reach it through script; the last case needs Browser.
type Resolver struct {
	log     *logger.Logger
	client  *http.Client
	policy  httpx.Policy
	Browser Browser
}

func NewResolver(log *logger.Logger, client *http.Client, timeout, backoff time.Duration) *Resolver {
	if client == nil {
		client = &http.Client{}
	}
	return &Resolver{
		log:    log.With("component", "DocumentResolver"),
		client: client,
		policy: httpx.Once("document", timeout, backoff),
	}
}

func (r *Resolver) Resolve(ctx context.Context, landing string) (*Resolved, error) {
	first, err := r.get(ctx, landing)
	if err != nil {
		return nil, err
	}
	if isPDF(first.ContentType, first.Body) {
		return &Resolved{URL: first.URL, ContentType: "application/pdf", Data: first.Body}, nil
	}

	if link := findDocumentLink(first.Body, first.URL); link != "" {
		r.log.Debug("Following document link", "from", first.URL, "to", link)
		next, err := r.get(ctx, link)
		if err == nil && isPDF(next.ContentType, next.Body) {
			return &Resolved{URL: next.URL, ContentType: "application/pdf", Data: next.Body}, nil
		}
		if err != nil {
			r.log.Warn("Document link fetch failed", "url", link, "error", err)
		}
	}

	if r.Browser != nil {
		final, err := r.Browser.FinalURL(ctx, landing)
		if err != nil {
			return nil, fmt.Errorf("browser resolve: %w", err)
		}
		r.log.Debug("Browser resolved document", "from", landing, "to", final)
		doc, err := r.get(ctx, final)
		if err != nil {
			return nil, err
		}
		if isPDF(doc.ContentType, doc.Body) {
			return &Resolved{URL: doc.URL, ContentType: "application/pdf", Data: doc.Body}, nil
		}
	}
	return nil, fmt.Errorf("no pdf document reachable from %s", landing)
}

func (r *Resolver) get(ctx context.Context, u string) (*httpx.Response, error) {
	var out *httpx.Response
	err := httpx.Retry(ctx, r.log, r.policy, func(ctx context.Context) error {
		resp, err := httpx.Get(ctx, r.client, u, documentMaxBytes)
		if err != nil {
			return err
		}
		out = resp
		return nil
	})
	return out, err
}

func isPDF(contentType string, body []byte) bool {
	if bytes.HasPrefix(bytes.TrimLeft(body, " \t\r\n"), []byte("%PDF")) {
		return true
	}
	return strings.Contains(strings.ToLower(contentType), "application/pdf") && len(body) > 0
}

// findDocumentLink looks for a PDF reference in an HTML page and returns it
// as an absolute URL, or "" when none is found.
func findDocumentLink(html []byte, base string) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return ""
	}
	var candidates []string
	doc.Find(`a[href]`).Each(func(_ int, s *goquery.Selection) {
		href := s.AttrOr("href", "")
		if strings.Contains(strings.ToLower(href), ".pdf") {
			candidates = append(candidates, href)
		}
	})
	doc.Find(`iframe[src], embed[src]`).Each(func(_ int, s *goquery.Selection) {
		candidates = append(candidates, s.AttrOr("src", ""))
	})
	doc.Find(`object[data]`).Each(func(_ int, s *goquery.Selection) {
		candidates = append(candidates, s.AttrOr("data", ""))
	})
	doc.Find(`meta[http-equiv]`).Each(func(_ int, s *goquery.Selection) {
		if strings.EqualFold(s.AttrOr("http-equiv", ""), "refresh") {
			candidates = append(candidates, metaRefreshTarget(s.AttrOr("content", "")))
		}
	})
	for _, c := range candidates {
		if abs := absoluteURL(base, c); abs != "" {
			return abs
		}
	}
	return ""
}

// metaRefreshTarget extracts the URL of a `content="0; url=..."` value.
func metaRefreshTarget(content string) string {
	_, after, ok := strings.Cut(content, ";")
	if !ok {
		return ""
	}
	after = strings.TrimSpace(after)
	if len(after) >= 4 && strings.EqualFold(after[:4], "url=") {
		after = after[4:]
	}
	return strings.Trim(strings.TrimSpace(after), `'"`)
}

func absoluteURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") || strings.HasPrefix(strings.ToLower(ref), "javascript:") {
		return ""
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return r.String()
	}
	return b.ResolveReference(r).String()
}
