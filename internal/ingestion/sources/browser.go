package sources

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/yungbote/mensa-backend/internal/platform/logger"
)

// Browser loads a page in a real browser and reports where it ended up.
type Browser interface {
	FinalURL(ctx context.Context, landing string) (string, error)
}

type chromeBrowser struct {
	log     *logger.Logger
	timeout time.Duration
	settle  time.Duration
}

// NewChromeBrowser drives a headless Chrome found on PATH.
func NewChromeBrowser(log *logger.Logger, timeout time.Duration) Browser {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &chromeBrowser{log: log.With("component", "ChromeBrowser"), timeout: timeout, settle: 5 * time.Second}
}

func (b *chromeBrowser) FinalURL(ctx context.Context, landing string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(1920, 1080),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	cctx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()
	cctx, cancelTimeout := context.WithTimeout(cctx, b.timeout)
	defer cancelTimeout()

	// A PDF response aborts navigation in headless mode, so track the last
	// document request as well as the final location.
	var mu sync.Mutex
	var lastDoc string
	chromedp.ListenTarget(cctx, func(ev interface{}) {
		if e, ok := ev.(*network.EventRequestWillBeSent); ok && e.Type == network.ResourceTypeDocument {
			mu.Lock()
			lastDoc = e.Request.URL
			mu.Unlock()
		}
	})

	var location string
	err := chromedp.Run(cctx,
		chromedp.Navigate(landing),
		chromedp.Sleep(b.settle),
		chromedp.Location(&location),
	)
	mu.Lock()
	tracked := lastDoc
	mu.Unlock()
	if err != nil {
		if tracked != "" && strings.Contains(err.Error(), "ERR_ABORTED") {
			return tracked, nil
		}
		return "", fmt.Errorf("navigate %s: %w", landing, err)
	}
	if location == "" || location == "about:blank" {
		location = tracked
	}
	if location == "" {
		return "", fmt.Errorf("browser reported no location for %s", landing)
	}
	return location, nil
}
