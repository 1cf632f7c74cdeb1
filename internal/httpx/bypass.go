package httpx

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"streamgate/internal/metrics"
)

// Bypass drives a single headless browser to fetch JSON from hosts that
// gate responses behind an interactive challenge. The browser is started
// lazily on first use and shared by all callers.
type Bypass struct {
	mu        sync.Mutex
	allocCtx  context.Context
	allocStop context.CancelFunc
	logger    *slog.Logger
}

func NewBypass(logger *slog.Logger) *Bypass {
	return &Bypass{logger: logger}
}

// challengeWaits are the successive waits applied while the challenge page
// settles before giving up.
var challengeWaits = []time.Duration{5 * time.Second, 10 * time.Second, 15 * time.Second}

func (b *Bypass) ensureBrowser() context.Context {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.allocCtx != nil {
		return b.allocCtx
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(browserUserAgent),
	)
	b.allocCtx, b.allocStop = chromedp.NewExecAllocator(context.Background(), opts...)
	return b.allocCtx
}

// Close tears down the shared browser if it was ever started.
func (b *Bypass) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.allocStop != nil {
		b.allocStop()
		b.allocCtx = nil
		b.allocStop = nil
	}
}

// FetchJSON navigates to the URL in the headless browser, waits out the
// challenge, and returns the page's JSON payload. Responses rendered as a
// document wrap the JSON in a <pre> tag, so that is extracted first.
func (b *Bypass) FetchJSON(ctx context.Context, rawURL string) ([]byte, error) {
	metrics.BypassFallbacksTotal.Inc()

	tabCtx, cancel := chromedp.NewContext(b.ensureBrowser())
	defer cancel()

	deadline, cancelDeadline := context.WithTimeout(tabCtx, 60*time.Second)
	defer cancelDeadline()

	if err := chromedp.Run(deadline, chromedp.Navigate(rawURL)); err != nil {
		return nil, err
	}

	var body string
	for _, wait := range challengeWaits {
		if err := chromedp.Run(deadline,
			chromedp.Text("body", &body, chromedp.ByQuery),
		); err != nil {
			return nil, err
		}
		if !isChallengeText(body) {
			break
		}
		b.logger.Debug("challenge page still up, waiting",
			slog.String("url", rawURL), slog.Duration("wait", wait))
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.Done():
			return nil, deadline.Err()
		}
	}
	if isChallengeText(body) {
		return nil, errors.New("challenge did not clear: " + rawURL)
	}

	// Prefer the <pre> payload when the browser rendered raw JSON.
	var pre string
	if err := chromedp.Run(deadline,
		chromedp.Text("pre", &pre, chromedp.ByQuery, chromedp.AtLeast(0)),
	); err == nil && strings.TrimSpace(pre) != "" {
		return []byte(pre), nil
	}
	return []byte(body), nil
}

func isChallengeText(body string) bool {
	lower := strings.ToLower(body)
	return strings.Contains(lower, "just a moment") || strings.Contains(lower, "cloudflare")
}
