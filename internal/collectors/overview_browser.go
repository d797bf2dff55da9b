package collectors

import (
	"context"
	"fmt"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/sonar/internal/common"
	"github.com/ternarybob/sonar/internal/models"
)

// OverviewBrowserProvider services the ai_overview engine with a headless
// browser so JavaScript-rendered overview blocks are captured. Slower and
// heavier than the scrape provider, so it normally sits later in the chain.
type OverviewBrowserProvider struct {
	baseURL   string
	userAgent string
	wait      time.Duration
	converter *md.Converter
}

// NewOverviewBrowserProvider creates a browser provider from application config
func NewOverviewBrowserProvider(config common.OverviewConfig) (*OverviewBrowserProvider, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("overview base url not configured")
	}

	return &OverviewBrowserProvider{
		baseURL:   config.BaseURL,
		userAgent: config.UserAgent,
		wait:      common.ParseDuration(config.BrowserWait, 3*time.Second),
		converter: md.NewConverter("", true, nil),
	}, nil
}

func (p *OverviewBrowserProvider) Name() string {
	return models.ProviderOverviewBrowser
}

// Execute renders the results page in a headless browser, waits for the page
// to settle, and extracts the overview block from the rendered DOM.
func (p *OverviewBrowserProvider) Execute(ctx context.Context, req *Request) (*Response, error) {
	searchURL := buildSearchURL(p.baseURL, req.QueryText, req.Country)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
	)
	if p.userAgent != "" {
		opts = append(opts, chromedp.UserAgent(p.userAgent))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	var pageHTML string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(searchURL),
		chromedp.Sleep(p.wait),
		chromedp.OuterHTML("html", &pageHTML),
	)
	if err != nil {
		return nil, Transient(p.Name(), fmt.Errorf("browser navigation failed: %w", err))
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return nil, Transient(p.Name(), fmt.Errorf("failed to parse rendered page: %w", err))
	}

	overviewHTML := findOverviewHTML(doc)
	if overviewHTML == "" {
		return nil, Transient(p.Name(), fmt.Errorf("no overview block found in rendered page"))
	}

	markdown, err := p.converter.ConvertString(overviewHTML)
	if err != nil {
		return nil, Transient(p.Name(), fmt.Errorf("failed to convert overview to markdown: %w", err))
	}

	markdown = strings.TrimSpace(markdown)
	if markdown == "" {
		return nil, Transient(p.Name(), fmt.Errorf("overview block was empty after conversion"))
	}

	return &Response{RawAnswer: markdown}, nil
}
