package scrape

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/guarzo/olxbuddy/internal/marketplace"
	"github.com/guarzo/olxbuddy/internal/model"
	"github.com/guarzo/olxbuddy/internal/ratelimit"
	"github.com/guarzo/olxbuddy/internal/urlguard"
)

// Malformed page errors. Each is distinct so callers can tell the user
// exactly what was wrong with the page they pasted.
var (
	ErrNoJSONLD      = errors.New("no JSON-LD data found")
	ErrInvalidJSON   = errors.New("invalid JSON data")
	ErrMissingTitle  = errors.New("missing title in JSON-LD data")
	ErrInvalidOffers = errors.New("missing or invalid offers in JSON-LD data")
)

// Scraper extracts a normalized listing from a marketplace listing page
type Scraper struct {
	client  *http.Client
	limiter *ratelimit.Limiter
	guard   bool
}

// Option configures a Scraper
type Option func(*Scraper)

// WithoutURLGuard allows fetching any host; meant for tests against local servers
func WithoutURLGuard() Option {
	return func(s *Scraper) { s.guard = false }
}

// WithLimiter makes every fetch wait on the given limiter
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(s *Scraper) { s.limiter = l }
}

// NewScraper creates a detail page scraper
func NewScraper(timeout time.Duration, opts ...Option) *Scraper {
	s := &Scraper{
		client:  marketplace.NewHTTPClient(timeout),
		limiter: ratelimit.NewLimiter(0),
		guard:   true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScrapeListing fetches pageURL and parses its JSON-LD Product block.
// Transport failures are returned as *marketplace.FetchError.
func (s *Scraper) ScrapeListing(ctx context.Context, pageURL string) (*model.NormalizedListing, error) {
	if s.guard {
		if err := urlguard.Validate(pageURL); err != nil {
			return nil, err
		}
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := marketplace.FetchPage(ctx, s.client, pageURL)
	if err != nil {
		return nil, fmt.Errorf("scraping listing: %w", err)
	}

	listing, err := ParseListing(body)
	if err != nil {
		log.Printf("Scraper: %s: %v", pageURL, err)
		return nil, err
	}
	listing.URL = pageURL
	listing.Platform = PlatformFromURL(pageURL)
	return listing, nil
}

// ParseListing extracts a listing from page HTML
func ParseListing(html []byte) (*model.NormalizedListing, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}

	var blocks []string
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, sel *goquery.Selection) {
		if text := strings.TrimSpace(sel.Text()); text != "" {
			blocks = append(blocks, text)
		}
	})
	if len(blocks) == 0 {
		return nil, ErrNoJSONLD
	}

	product, err := findProduct(blocks)
	if err != nil {
		return nil, err
	}
	return normalize(product)
}

// findProduct returns the first Product object across all blocks, falling
// back to the first decoded object.
func findProduct(blocks []string) (map[string]interface{}, error) {
	var first map[string]interface{}
	var decodeErr error

	for _, block := range blocks {
		var data interface{}
		if err := json.Unmarshal([]byte(block), &data); err != nil {
			if decodeErr == nil {
				decodeErr = err
			}
			continue
		}

		for _, obj := range objects(data) {
			if first == nil {
				first = obj
			}
			if isProduct(obj) {
				return obj, nil
			}
		}
	}

	if first == nil {
		if decodeErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, decodeErr)
		}
		return nil, ErrInvalidJSON
	}
	return first, nil
}

// objects flattens a decoded JSON-LD value, including @graph members
func objects(data interface{}) []map[string]interface{} {
	var out []map[string]interface{}
	switch v := data.(type) {
	case map[string]interface{}:
		out = append(out, v)
		if graph, ok := v["@graph"]; ok {
			out = append(out, objects(graph)...)
		}
	case []interface{}:
		for _, el := range v {
			out = append(out, objects(el)...)
		}
	}
	return out
}

func isProduct(obj map[string]interface{}) bool {
	switch t := obj["@type"].(type) {
	case string:
		return t == "Product"
	case []interface{}:
		for _, v := range t {
			if s, ok := v.(string); ok && s == "Product" {
				return true
			}
		}
	}
	return false
}

func normalize(product map[string]interface{}) (*model.NormalizedListing, error) {
	title := strings.TrimSpace(stringField(product, "name"))
	if title == "" {
		return nil, ErrMissingTitle
	}

	offer, ok := offerObject(product["offers"])
	if !ok {
		return nil, ErrInvalidOffers
	}
	price, ok := numberField(offer["price"])
	if !ok {
		return nil, ErrInvalidOffers
	}
	currency := strings.TrimSpace(stringField(offer, "priceCurrency"))
	if currency == "" {
		return nil, ErrInvalidOffers
	}

	conditionURL := stringField(offer, "itemCondition")
	if conditionURL == "" {
		conditionURL = stringField(product, "itemCondition")
	}

	return &model.NormalizedListing{
		Title:       title,
		Description: strings.TrimSpace(stringField(product, "description")),
		Price:       price,
		Currency:    currency,
		Condition:   MapCondition(conditionURL),
		Category:    CategoryFromURL(stringField(product, "category")),
		Brand:       brandName(product["brand"]),
		ExternalID:  skuField(product["sku"]),
		Images:      imageMap(product["image"]),
	}, nil
}

// offerObject accepts an Offer object or a list whose first element is one
func offerObject(v interface{}) (map[string]interface{}, bool) {
	switch o := v.(type) {
	case map[string]interface{}:
		return o, true
	case []interface{}:
		if len(o) > 0 {
			first, ok := o[0].(map[string]interface{})
			return first, ok
		}
	}
	return nil, false
}

func stringField(obj map[string]interface{}, key string) string {
	s, _ := obj[key].(string)
	return s
}

func numberField(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		// schema.org prices use a dot decimal; locale text like "1 234,56 zł" falls through
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil && f >= 0 && !math.IsInf(f, 0) {
			return f, true
		}
		if p := marketplace.ParsePrice(n); p > 0 || strings.TrimSpace(n) == "0" {
			return p, true
		}
	}
	return 0, false
}

func skuField(v interface{}) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return fmt.Sprintf("%.0f", s)
	}
	return ""
}

func brandName(v interface{}) string {
	switch b := v.(type) {
	case string:
		return strings.TrimSpace(b)
	case map[string]interface{}:
		return strings.TrimSpace(stringField(b, "name"))
	}
	return ""
}

// imageMap keys image URLs image_0, image_1, ... in page order
func imageMap(v interface{}) map[string]string {
	var urls []string
	switch img := v.(type) {
	case string:
		urls = append(urls, img)
	case []interface{}:
		for _, el := range img {
			switch e := el.(type) {
			case string:
				urls = append(urls, e)
			case map[string]interface{}:
				if u := stringField(e, "url"); u != "" {
					urls = append(urls, u)
				} else if u := stringField(e, "contentUrl"); u != "" {
					urls = append(urls, u)
				}
			}
		}
	case map[string]interface{}:
		if u := stringField(img, "url"); u != "" {
			urls = append(urls, u)
		}
	}

	if len(urls) == 0 {
		return nil
	}
	images := make(map[string]string, len(urls))
	for i, u := range urls {
		images[fmt.Sprintf("image_%d", i)] = u
	}
	return images
}

// conditionMapping is checked in order; first substring match wins
var conditionMapping = []struct {
	fragment  string
	condition model.Condition
}{
	{"NewCondition", model.ConditionNew},
	{"RefurbishedCondition", model.ConditionLikeNew},
	{"DamagedCondition", model.ConditionPoor},
	{"UsedCondition", model.ConditionGood},
}

// MapCondition maps a schema.org itemCondition URL to a Condition.
// Absent or unrecognized conditions are good.
func MapCondition(schemaCondition string) model.Condition {
	for _, m := range conditionMapping {
		if strings.Contains(schemaCondition, m.fragment) {
			return m.condition
		}
	}
	return model.ConditionGood
}

// CategoryFromURL humanizes the last path segment of a taxonomy URL,
// e.g. ".../klocki/klocki-plastikowe/" becomes "Klocki Plastikowe".
func CategoryFromURL(category string) string {
	category = strings.TrimSpace(category)
	if category == "" {
		return ""
	}

	segment := category
	if u, err := url.Parse(category); err == nil && u.Host != "" {
		segment = lastSegment(u.Path)
	} else if strings.Contains(category, "/") {
		segment = lastSegment(category)
	}
	return humanize(segment)
}

func lastSegment(path string) string {
	parts := strings.Split(path, "/")
	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i] != "" {
			return parts[i]
		}
	}
	return ""
}

func humanize(slug string) string {
	words := strings.FieldsFunc(slug, func(r rune) bool {
		return r == '-' || r == '_' || r == ' '
	})
	for i, w := range words {
		runes := []rune(strings.ToLower(w))
		runes[0] = []rune(strings.ToUpper(string(runes[0])))[0]
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

// PlatformFromURL guesses the marketplace from the listing host
func PlatformFromURL(pageURL string) model.Source {
	u, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	switch {
	case strings.Contains(host, "vinted"):
		return model.SourceVinted
	case strings.Contains(host, "olx"):
		return model.SourceOLX
	}
	return ""
}

// DeriveExternalID returns the last path segment of a listing URL, used
// when the page carries no SKU.
func DeriveExternalID(pageURL string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("parsing URL: %w", err)
	}
	if u.Path == "" || u.Path == "/" {
		return "", fmt.Errorf("invalid URL: missing path")
	}
	id := u.Path[strings.LastIndex(u.Path, "/")+1:]
	if id == "" {
		return "", fmt.Errorf("invalid URL: cannot extract listing ID")
	}
	return id, nil
}
