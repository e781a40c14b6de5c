package marketplace

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/guarzo/olxbuddy/internal/model"
	"github.com/guarzo/olxbuddy/internal/ratelimit"
)

// OLXClient searches OLX result pages
type OLXClient struct {
	baseURL *url.URL
	client  *http.Client
	limiter *ratelimit.Limiter
	debug   bool
}

// NewOLXClient creates an OLX client. An empty baseURL uses the public site.
func NewOLXClient(baseURL string, timeout time.Duration, limiter *ratelimit.Limiter) (*OLXClient, error) {
	if baseURL == "" {
		baseURL = DefaultOLXBaseURL
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing OLX base URL: %w", err)
	}
	if limiter == nil {
		limiter = ratelimit.NewLimiter(0)
	}
	return &OLXClient{
		baseURL: base,
		client:  NewHTTPClient(timeout),
		limiter: limiter,
	}, nil
}

// SetDebug enables debug logging
func (c *OLXClient) SetDebug(debug bool) {
	c.debug = debug
}

func (c *OLXClient) Source() model.Source {
	return model.SourceOLX
}

// Search fetches one page of OLX results for the query
func (c *OLXClient) Search(ctx context.Context, q Query) ([]model.CandidateItem, error) {
	if q.MaxResults <= 0 || strings.TrimSpace(q.Text) == "" {
		return []model.CandidateItem{}, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		log.Printf("OLX: %v", err)
		return []model.CandidateItem{}, nil
	}

	searchURL := c.searchURL(q.Text)
	if c.debug {
		log.Printf("OLX: searching %s", searchURL)
	}

	body, err := FetchPage(ctx, c.client, searchURL)
	if err != nil {
		log.Printf("OLX: search failed: %v", err)
		return []model.CandidateItem{}, nil
	}

	items, err := c.parseResults(body, q.MaxResults)
	if err != nil {
		log.Printf("OLX: parsing results failed: %v", err)
		return []model.CandidateItem{}, nil
	}

	log.Printf("OLX: found %d items for %q", len(items), q.Text)
	return items, nil
}

func (c *OLXClient) searchURL(text string) string {
	return strings.TrimRight(c.baseURL.String(), "/") + "/oferty/q-" + url.QueryEscape(text) + "/"
}

// parseResults walks result cards in page order. Cards missing a title,
// link or positive price are skipped.
func (c *OLXClient) parseResults(body []byte, maxResults int) ([]model.CandidateItem, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}

	items := make([]model.CandidateItem, 0, maxResults)
	doc.Find(`div[data-cy="l-card"]`).EachWithBreak(func(i int, card *goquery.Selection) bool {
		if i >= maxResults {
			return false
		}

		title := strings.TrimSpace(card.Find("h4, h6").First().Text())
		if title == "" {
			return true
		}

		href, ok := card.Find("a[href]").First().Attr("href")
		if !ok {
			return true
		}

		priceText := strings.TrimSpace(card.Find(`p[data-testid="ad-price"]`).First().Text())
		price := ParsePrice(priceText)
		if price <= 0 {
			if c.debug {
				log.Printf("OLX: skipping %q, unusable price %q", title, priceText)
			}
			return true
		}

		items = append(items, model.CandidateItem{
			Source: model.SourceOLX,
			Title:  title,
			Price:  price,
			URL:    absoluteURL(c.baseURL, href),
		})
		return true
	})

	return items, nil
}
