package testutil

import (
	"encoding/json"
	"fmt"
	"html"
	"math/rand"
	"strings"
	"time"

	"github.com/guarzo/olxbuddy/internal/model"
)

// TestDataFactory provides methods for generating dynamic test data
type TestDataFactory struct {
	rand *rand.Rand
}

// NewTestDataFactory creates a new test data factory with a seeded random generator
func NewTestDataFactory(seed int64) *TestDataFactory {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &TestDataFactory{
		rand: rand.New(rand.NewSource(seed)),
	}
}

// GenerateTestURL generates a listing URL on the given platform
func (f *TestDataFactory) GenerateTestURL(source model.Source, slug string) string {
	return fmt.Sprintf("https://%s.test.local/%s-ID%d.html", source, slug, f.rand.Int63())
}

// GenerateTestTitle generates a random listing title
func (f *TestDataFactory) GenerateTestTitle() string {
	titles := []string{"Lego Star Wars X-Wing", "Lego Technic Porsche", "Rower gorski Kross", "Kurtka zimowa Zara", "iPhone 12 64GB"}
	return titles[f.rand.Intn(len(titles))]
}

// GenerateTestPrice generates a random price between 5 and 500 with two decimals
func (f *TestDataFactory) GenerateTestPrice() float64 {
	return float64(f.rand.Intn(49500)+500) / 100
}

// GenerateTestDate generates a random date within the last year
func (f *TestDataFactory) GenerateTestDate() time.Time {
	days := f.rand.Intn(365)
	return time.Now().AddDate(0, 0, -days)
}

// GenerateTestCondition generates a random condition
func (f *TestDataFactory) GenerateTestCondition() model.Condition {
	return model.AllConditions[f.rand.Intn(len(model.AllConditions))]
}

// GenerateCandidates generates n candidate items on the given platform
func (f *TestDataFactory) GenerateCandidates(source model.Source, n int) []model.CandidateItem {
	items := make([]model.CandidateItem, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, model.CandidateItem{
			Source: source,
			Title:  f.GenerateTestTitle(),
			Price:  f.GenerateTestPrice(),
			URL:    f.GenerateTestURL(source, "item"),
		})
	}
	return items
}

// Card is one search result rendered into a fixture page. A zero Price
// omits the price element and an empty Title omits the title element.
type Card struct {
	Title string
	Href  string
	Price string
}

// OLXSearchPage renders cards the way the OLX search results page does
func OLXSearchPage(cards ...Card) string {
	var b strings.Builder
	b.WriteString("<html><body>\n")
	for _, c := range cards {
		b.WriteString(`<div data-cy="l-card">`)
		if c.Title != "" {
			fmt.Fprintf(&b, "<h4>%s</h4>", html.EscapeString(c.Title))
		}
		if c.Href != "" {
			fmt.Fprintf(&b, `<a href="%s">Link</a>`, html.EscapeString(c.Href))
		}
		if c.Price != "" {
			fmt.Fprintf(&b, `<p data-testid="ad-price">%s</p>`, html.EscapeString(c.Price))
		}
		b.WriteString("</div>\n")
	}
	b.WriteString("</body></html>")
	return b.String()
}

// VintedSearchPage renders cards the way the Vinted catalog grid does
func VintedSearchPage(cards ...Card) string {
	var b strings.Builder
	b.WriteString("<html><body>\n")
	for _, c := range cards {
		b.WriteString(`<div class="feed-grid__item">`)
		fmt.Fprintf(&b, `<a href="%s">`, html.EscapeString(c.Href))
		if c.Title != "" {
			fmt.Fprintf(&b, `<div class="web_ui__ItemBox_title">%s</div>`, html.EscapeString(c.Title))
		}
		if c.Price != "" {
			fmt.Fprintf(&b, `<div class="web_ui__ItemBox_price">%s</div>`, html.EscapeString(c.Price))
		}
		b.WriteString("</a></div>\n")
	}
	b.WriteString("</body></html>")
	return b.String()
}

// ProductPage wraps raw JSON-LD blocks in a listing page
func ProductPage(jsonLD ...string) string {
	var b strings.Builder
	b.WriteString("<html><head>\n")
	for _, block := range jsonLD {
		fmt.Fprintf(&b, "<script type=\"application/ld+json\">\n%s\n</script>\n", block)
	}
	b.WriteString("</head><body><h1>listing</h1></body></html>")
	return b.String()
}

// ProductJSON encodes a JSON-LD Product from a plain map
func ProductJSON(fields map[string]interface{}) string {
	product := map[string]interface{}{
		"@context": "https://schema.org",
		"@type":    "Product",
	}
	for k, v := range fields {
		product[k] = v
	}
	data, _ := json.Marshal(product)
	return string(data)
}

// LegoProduct is a real OLX listing's JSON-LD used across tests
const LegoProduct = `{
  "@context": "https://schema.org",
  "@type": "Product",
  "name": "Lego minifigurki spiderman Spider-Man",
  "image": [
    "https://example.com/image1.jpg",
    "https://example.com/image2.jpg"
  ],
  "url": "https://www.olx.pl/d/oferta/lego-CID88-ID18PrbS.html",
  "description": "Lego minifigurki spiderman",
  "category": "https://www.olx.pl/dla-dzieci/zabawki/klocki/klocki-plastikowe/",
  "sku": "1046602772",
  "offers": {
    "@type": "Offer",
    "priceCurrency": "PLN",
    "price": 10,
    "itemCondition": "https://schema.org/UsedCondition"
  }
}`
