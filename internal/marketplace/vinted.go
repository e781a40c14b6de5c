package marketplace

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/guarzo/olxbuddy/internal/model"
	"github.com/guarzo/olxbuddy/internal/ratelimit"
)

// VintedClient searches the Vinted catalog with a colly collector
type VintedClient struct {
	baseURL *url.URL
	timeout time.Duration
	limiter *ratelimit.Limiter
	debug   bool
}

// NewVintedClient creates a Vinted client. An empty baseURL uses the public site.
func NewVintedClient(baseURL string, timeout time.Duration, limiter *ratelimit.Limiter) (*VintedClient, error) {
	if baseURL == "" {
		baseURL = DefaultVintedBaseURL
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing Vinted base URL: %w", err)
	}
	if limiter == nil {
		limiter = ratelimit.NewLimiter(0)
	}
	return &VintedClient{
		baseURL: base,
		timeout: timeout,
		limiter: limiter,
	}, nil
}

// SetDebug enables debug logging
func (c *VintedClient) SetDebug(debug bool) {
	c.debug = debug
}

func (c *VintedClient) Source() model.Source {
	return model.SourceVinted
}

// Search fetches one catalog page for the query, filtered by brand when given
func (c *VintedClient) Search(ctx context.Context, q Query) ([]model.CandidateItem, error) {
	if q.MaxResults <= 0 || strings.TrimSpace(q.Text) == "" {
		return []model.CandidateItem{}, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		log.Printf("Vinted: %v", err)
		return []model.CandidateItem{}, nil
	}

	items := make([]model.CandidateItem, 0, q.MaxResults)
	seen := 0

	// A fresh collector per search; colly refuses to revisit a URL it has
	// already seen on the same collector.
	collector := colly.NewCollector(
		colly.UserAgent(userAgent),
		colly.MaxDepth(1),
	)
	collector.WithTransport(contextTransport{ctx: ctx, base: http.DefaultTransport})
	collector.SetRequestTimeout(c.timeout)

	collector.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "pl-PL,pl;q=0.9,en-US;q=0.8,en;q=0.7")
		if c.debug {
			log.Printf("Vinted: visiting %s", r.URL)
		}
	})

	collector.OnHTML(`div[class*="feed-grid__item"]`, func(e *colly.HTMLElement) {
		if seen >= q.MaxResults {
			return
		}
		seen++

		href, ok := e.DOM.Find("a[href]").First().Attr("href")
		if !ok {
			return
		}

		title := strings.TrimSpace(e.DOM.Find(`[class*="ItemBox_title"]`).First().Text())
		if title == "" {
			return
		}

		priceText := strings.TrimSpace(e.DOM.Find(`[class*="ItemBox_price"]`).First().Text())
		price := ParsePrice(priceText)
		if price <= 0 {
			if c.debug {
				log.Printf("Vinted: skipping %q, unusable price %q", title, priceText)
			}
			return
		}

		items = append(items, model.CandidateItem{
			Source: model.SourceVinted,
			Title:  title,
			Price:  price,
			URL:    absoluteURL(c.baseURL, href),
		})
	})

	searchURL := c.searchURL(q)
	if err := collector.Visit(searchURL); err != nil {
		log.Printf("Vinted: search failed: %v", err)
		return []model.CandidateItem{}, nil
	}
	if ctx.Err() != nil {
		log.Printf("Vinted: search cancelled: %v", ctx.Err())
		return []model.CandidateItem{}, nil
	}

	log.Printf("Vinted: found %d items for %q", len(items), q.Text)
	return items, nil
}

// contextTransport binds every request a collector makes to ctx, so an
// in-flight request is aborted on cancellation.
type contextTransport struct {
	ctx  context.Context
	base http.RoundTripper
}

func (t contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.base.RoundTrip(req.WithContext(t.ctx))
}

func (c *VintedClient) searchURL(q Query) string {
	params := url.Values{}
	params.Set("search_text", q.Text)
	if q.Brand != "" {
		params.Set("brand_ids[]", q.Brand)
	}
	return strings.TrimRight(c.baseURL.String(), "/") + "/catalog?" + params.Encode()
}
