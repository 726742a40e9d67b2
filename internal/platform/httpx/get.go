package httpx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
)

const defaultUserAgent = "mensa-backend/1.0 (+menu ingestion)"

// ErrBodyTooLarge is returned when a successful response exceeds maxBytes.
// It is not retryable.
var ErrBodyTooLarge = errors.New("response body too large")

// Response is a fully read upstream response.
type Response struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
}

// Get performs one GET and reads the whole body. A 2xx body longer than
// maxBytes fails with ErrBodyTooLarge instead of being cut short; non-2xx
// statuses come back as *StatusError carrying at most maxBytes of body.
func Get(ctx context.Context, client *http.Client, url string, maxBytes int64) (*Response, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var r io.Reader = resp.Body
	if maxBytes > 0 {
		r = io.LimitReader(resp.Body, maxBytes+1)
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	tooLarge := maxBytes > 0 && int64(len(body)) > maxBytes
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if tooLarge {
			body = body[:maxBytes]
		}
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode, Body: string(body)}
	}
	if tooLarge {
		return nil, fmt.Errorf("%s: %w (limit %d bytes)", url, ErrBodyTooLarge, maxBytes)
	}
	final := url
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}
	return &Response{
		URL:         final,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}
