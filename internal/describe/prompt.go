package describe

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"

	"github.com/guarzo/olxbuddy/internal/marketplace"
	"github.com/guarzo/olxbuddy/internal/urlguard"
)

const (
	// MaxImageSize is the largest image file LoadImage accepts
	MaxImageSize = 2 * 1024 * 1024
	// maxPageContext caps how much product page text goes into a prompt
	maxPageContext = 3000
)

// SupportedCategories are the categories SuggestCategory may return
var SupportedCategories = []string{
	"womens_fashion", "mens_fashion", "kids_clothing", "shoes", "bags_accessories",
	"jewelry_watches", "electronics", "home_garden", "sports_hobby", "toys_games",
	"books_media", "beauty_health", "vehicles_parts", "animals_pet_supplies",
	"music_instruments", "collectibles_art", "other",
}

// categoryFocus lists what a description should cover per category
var categoryFocus = map[string]string{
	"womens_fashion":   "material, fit, style, brand reputation, condition details, care instructions",
	"mens_fashion":     "material, fit, style, brand, condition, care instructions",
	"kids_clothing":    "material, comfort, size/age, condition, safety, brand",
	"shoes":            "brand, size, condition (sole wear, material), style, comfort features",
	"bags_accessories": "brand, material, dimensions, condition, pockets and compartments, style",
	"jewelry_watches":  "material, authenticity, condition, mechanism or stones, original packaging",
	"electronics":      "model, specifications, battery and screen condition, accessories included, warranty",
	"toys_games":       "completeness, age range, condition, original box, safety",
	"books_media":      "title, author or artist, edition, condition of cover and pages",
	"default":          "key features, condition, brand, what is included",
}

// Request describes the item to write a description for
type Request struct {
	Category  string
	Brand     string
	Condition string
	Size      string
	Details   string
	Language  string // "pl" or "en", default "pl"
	// PageContext is text from the product's original page, if any
	PageContext string
}

// BuildPrompt composes a category-specific description prompt
func BuildPrompt(req Request) string {
	brand := req.Brand
	if brand == "" {
		brand = "unknown"
	}
	condition := req.Condition
	if condition == "" {
		condition = "good"
	}
	focus, ok := categoryFocus[req.Category]
	if !ok {
		focus = categoryFocus["default"]
	}

	var b strings.Builder
	if req.Language == "en" {
		b.WriteString("Generate an engaging marketplace listing description.\n\n")
		fmt.Fprintf(&b, "Brand: %s\nCondition: %s\n", brand, condition)
		if req.Size != "" {
			fmt.Fprintf(&b, "Size: %s\n", req.Size)
		}
		fmt.Fprintf(&b, "\nFocus on: %s.\nWrite in a casual, friendly tone. SEO-friendly. Max 200 words.", focus)
		if req.Details != "" {
			fmt.Fprintf(&b, "\n\nAdditional details: %s", req.Details)
		}
		if req.PageContext != "" {
			fmt.Fprintf(&b, "\n\nInfo from product page (use to enrich with details):\n%s", req.PageContext)
		}
		return b.String()
	}

	b.WriteString("Napisz atrakcyjny opis ogłoszenia na portal sprzedażowy.\n\n")
	fmt.Fprintf(&b, "Marka: %s\nStan: %s\n", brand, condition)
	if req.Size != "" {
		fmt.Fprintf(&b, "Rozmiar: %s\n", req.Size)
	}
	fmt.Fprintf(&b, "\nSkup się na: %s.\nPisz swobodnie i przyjaźnie, po polsku. Maksymalnie 200 słów.", focus)
	if req.Details != "" {
		fmt.Fprintf(&b, "\n\nDodatkowe szczegóły: %s", req.Details)
	}
	if req.PageContext != "" {
		fmt.Fprintf(&b, "\n\nInfo z oryginalnej strony (użyj do wzbogacenia o szczegóły):\n%s", req.PageContext)
	}
	return b.String()
}

// CategoryPrompt asks a model to classify images into SupportedCategories
func CategoryPrompt(language string) string {
	list := strings.Join(SupportedCategories, ", ")
	if language == "en" {
		return "Analyze the images and determine the item category.\n\nAvailable categories: " + list +
			"\n\nRespond with ONLY the category name (one word), without any additional explanations."
	}
	return "Przeanalizuj zdjęcia i określ kategorię przedmiotu.\n\nDostępne kategorie: " + list +
		"\n\nOdpowiedz TYLKO nazwą kategorii (jednym słowem), bez żadnych dodatkowych wyjaśnień."
}

// ExtractCategory takes the first word of a model response and validates
// it; anything unsupported is "other".
func ExtractCategory(response string) string {
	fields := strings.Fields(strings.ToLower(response))
	if len(fields) == 0 {
		return "other"
	}
	category := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			return r
		}
		return -1
	}, fields[0])

	for _, c := range SupportedCategories {
		if c == category {
			return c
		}
	}
	return "other"
}

// LoadImage reads an image file, rejecting files over MaxImageSize
func LoadImage(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("image not found: %w", err)
	}
	if info.Size() > MaxImageSize {
		return nil, fmt.Errorf("image too large: %d bytes (max %d bytes)", info.Size(), MaxImageSize)
	}
	return os.ReadFile(path)
}

// Describer writes descriptions and suggests categories with a Generator
type Describer struct {
	gen    Generator
	client *http.Client
	guard  bool
}

// NewDescriber creates a describer. Product page fetches use client.
func NewDescriber(gen Generator, client *http.Client) *Describer {
	return &Describer{gen: gen, client: client, guard: true}
}

// AllowPrivateHosts disables the URL guard for product page fetches
func (d *Describer) AllowPrivateHosts() *Describer {
	d.guard = false
	return d
}

// Describe generates a description. When productURL is set its page text
// enriches the prompt; a failed fetch only drops that context.
func (d *Describer) Describe(ctx context.Context, req Request, productURL string, images [][]byte) (string, error) {
	if productURL != "" && req.PageContext == "" {
		text, err := d.PageContext(ctx, productURL)
		if err != nil {
			log.Printf("Describe: fetching page context: %v", err)
		}
		req.PageContext = text
	}
	return d.gen.Generate(ctx, BuildPrompt(req), images)
}

// SuggestCategory classifies item images into one of SupportedCategories
func (d *Describer) SuggestCategory(ctx context.Context, images [][]byte, language string) (string, error) {
	text, err := d.gen.Generate(ctx, CategoryPrompt(language), images)
	if err != nil {
		return "", err
	}
	return ExtractCategory(text), nil
}

// PageContext fetches a product page and returns its visible text without
// scripts, styles and page chrome.
func (d *Describer) PageContext(ctx context.Context, pageURL string) (string, error) {
	doc, err := d.fetchDocument(ctx, pageURL)
	if err != nil {
		return "", err
	}
	return pageText(doc, maxPageContext), nil
}

// fetchDocument loads pageURL through the URL guard and parses it
func (d *Describer) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	if d.guard {
		if err := urlguard.Validate(pageURL); err != nil {
			return nil, err
		}
	}

	body, err := marketplace.FetchPage(ctx, d.client, pageURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing page: %w", err)
	}
	return doc, nil
}

// pageText strips scripts, styles and page chrome from doc and returns at
// most limit runes of its collapsed text.
func pageText(doc *goquery.Document, limit int) string {
	doc.Find("script, style, nav, footer, header").Remove()

	text := strings.Join(strings.Fields(doc.Text()), " ")
	if runes := []rune(text); len(runes) > limit {
		text = string(runes[:limit])
	}
	return text
}
