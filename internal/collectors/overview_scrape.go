package collectors

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/sonar/internal/common"
	"github.com/ternarybob/sonar/internal/models"
)

// Selectors the overview block has been observed under. Checked in order;
// first non-empty match wins.
var overviewSelectors = []string{
	"div[data-attrid='ai-overview']",
	"div.ai-overview",
	"div[jsname='ZGICvc']",
	"div#m-x-content",
}

// OverviewScrapeProvider services the ai_overview engine by fetching the
// search results page over plain HTTP and extracting the overview block.
// Pages that render the overview with JavaScript need the browser provider.
type OverviewScrapeProvider struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	converter  *md.Converter
}

// NewOverviewScrapeProvider creates a scrape provider from application config
func NewOverviewScrapeProvider(config common.OverviewConfig) (*OverviewScrapeProvider, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("overview base url not configured")
	}

	return &OverviewScrapeProvider{
		baseURL:    config.BaseURL,
		userAgent:  config.UserAgent,
		httpClient: &http.Client{Timeout: common.ParseDuration(config.RequestTimeout, 30*time.Second)},
		converter:  md.NewConverter("", true, nil),
	}, nil
}

func (p *OverviewScrapeProvider) Name() string {
	return models.ProviderOverviewScrape
}

// Execute fetches the results page for the query and converts the overview
// block to markdown. A page with no overview block is a transient failure so
// the chain can fall through to the browser provider.
func (p *OverviewScrapeProvider) Execute(ctx context.Context, req *Request) (*Response, error) {
	searchURL := buildSearchURL(p.baseURL, req.QueryText, req.Country)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, Hard(p.Name(), fmt.Errorf("failed to create request: %w", err))
	}
	if p.userAgent != "" {
		httpReq.Header.Set("User-Agent", p.userAgent)
	}
	httpReq.Header.Set("Accept-Language", "en")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, Transient(p.Name(), fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, ClassifyStatus(p.Name(), resp.StatusCode, string(body))
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, Transient(p.Name(), fmt.Errorf("failed to parse page: %w", err))
	}

	overviewHTML := findOverviewHTML(doc)
	if overviewHTML == "" {
		return nil, Transient(p.Name(), fmt.Errorf("no overview block found for query"))
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

// buildSearchURL composes the results page URL for a query
func buildSearchURL(baseURL, query, country string) string {
	params := url.Values{}
	params.Set("q", query)
	if country != "" {
		params.Set("gl", strings.ToLower(country))
	}
	sep := "?"
	if strings.Contains(baseURL, "?") {
		sep = "&"
	}
	return baseURL + sep + params.Encode()
}

// findOverviewHTML returns the inner HTML of the first matching overview block
func findOverviewHTML(doc *goquery.Document) string {
	for _, selector := range overviewSelectors {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			continue
		}
		html, err := sel.Html()
		if err != nil || strings.TrimSpace(html) == "" {
			continue
		}
		return html
	}
	return ""
}
