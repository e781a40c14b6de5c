package describe

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/guarzo/olxbuddy/internal/marketplace"
	"github.com/guarzo/olxbuddy/internal/model"
)

const (
	// maxExtractContext caps how much page text goes into an extraction prompt
	maxExtractContext = 10000
	// maxExtractImages caps how many image URLs are kept from a page
	maxExtractImages = 10
)

// Product is what an AI provider read off a product page
type Product struct {
	Title          string                 `json:"title,omitempty"`
	Brand          string                 `json:"brand,omitempty"`
	Description    string                 `json:"description,omitempty"`
	Price          *float64               `json:"price"`
	Currency       string                 `json:"currency,omitempty"`
	Category       string                 `json:"category,omitempty"`
	Condition      model.Condition        `json:"condition,omitempty"`
	Size           string                 `json:"size,omitempty"`
	Specifications map[string]interface{} `json:"specifications,omitempty"`
	Images         []string               `json:"images"`
}

// ExtractFromURL fetches a product page, asks the generator to read the
// product off its text and attaches the page's absolute image URLs.
func (d *Describer) ExtractFromURL(ctx context.Context, pageURL, language string) (*Product, error) {
	doc, err := d.fetchDocument(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("fetching product page: %w", err)
	}

	images := pageImages(doc)
	text := pageText(doc, maxExtractContext)

	reply, err := d.gen.Generate(ctx, ExtractPrompt(text, language), nil)
	if err != nil {
		return nil, err
	}

	product, err := ParseProduct(reply)
	if err != nil {
		log.Printf("Describe: %s: %v", pageURL, err)
		product = &Product{}
	}
	product.Images = images
	return product, nil
}

// pageImages returns up to maxExtractImages absolute http(s) image sources
// in page order. Must run before pageText strips the page chrome.
func pageImages(doc *goquery.Document) []string {
	images := []string{}
	doc.Find("img[src]").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		if len(images) >= maxExtractImages {
			return false
		}
		src := strings.TrimSpace(img.AttrOr("src", ""))
		if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
			images = append(images, src)
		}
		return true
	})
	return images
}

// ExtractPrompt asks for the product fields as a bare JSON object
func ExtractPrompt(pageText, language string) string {
	categories := strings.Join(SupportedCategories, ", ")
	if language == "en" {
		return `Analyze product page content and extract information in JSON format.

Page content:
` + pageText + `

Extract the following information (if available):
- title: product name
- brand: brand name
- description: product description (brief, max 200 words)
- price: price (number only, no currency)
- currency: currency code (PLN, EUR, USD, etc.)
- category: category from: ` + categories + `
- condition: condition (new, like_new, good, fair, poor)
- size: size
- specifications: key specifications as object

Respond with ONLY valid JSON, no additional explanations.`
	}
	return `Przeanalizuj treść strony produktu i wyodrębnij informacje w formacie JSON.

Treść strony:
` + pageText + `

Wyodrębnij następujące informacje (jeśli dostępne):
- title: nazwa produktu
- brand: marka
- description: opis produktu (krótki, max 200 słów)
- price: cena (tylko liczba, bez waluty)
- currency: waluta (PLN, EUR, USD, itp.)
- category: kategoria z listy: ` + categories + `
- condition: stan (new, like_new, good, fair, poor)
- size: rozmiar
- specifications: kluczowe specyfikacje jako obiekt

Odpowiedz TYLKO poprawnym JSON-em bez dodatkowych wyjaśnień.`
}

// rawProduct accepts the loose types models tend to produce
type rawProduct struct {
	Title          string                 `json:"title"`
	Brand          string                 `json:"brand"`
	Description    string                 `json:"description"`
	Price          interface{}            `json:"price"`
	Currency       string                 `json:"currency"`
	Category       string                 `json:"category"`
	Condition      string                 `json:"condition"`
	Size           interface{}            `json:"size"`
	Specifications map[string]interface{} `json:"specifications"`
}

// ParseProduct decodes a model reply, tolerating a markdown code fence
// around the JSON. Unknown categories become "other" and unknown
// conditions are dropped.
func ParseProduct(reply string) (*Product, error) {
	var raw rawProduct
	if err := json.Unmarshal([]byte(stripCodeFence(reply)), &raw); err != nil {
		return nil, fmt.Errorf("decoding extracted product: %w", err)
	}

	p := &Product{
		Title:          strings.TrimSpace(raw.Title),
		Brand:          strings.TrimSpace(raw.Brand),
		Description:    strings.TrimSpace(raw.Description),
		Price:          looseNumber(raw.Price),
		Currency:       strings.ToUpper(strings.TrimSpace(raw.Currency)),
		Size:           looseString(raw.Size),
		Specifications: raw.Specifications,
	}
	if raw.Category != "" {
		p.Category = ExtractCategory(raw.Category)
	}
	if c := model.Condition(strings.ToLower(strings.TrimSpace(raw.Condition))); c.Valid() {
		p.Condition = c
	}
	return p, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	end := len(lines)
	for i := 1; i < len(lines); i++ {
		if strings.HasPrefix(strings.TrimSpace(lines[i]), "```") {
			end = i
			break
		}
	}
	if end <= 1 {
		return ""
	}
	return strings.Join(lines[1:end], "\n")
}

func looseNumber(v interface{}) *float64 {
	switch n := v.(type) {
	case float64:
		return &n
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return &f
		}
		if f := marketplace.ParsePrice(n); f > 0 {
			return &f
		}
	}
	return nil
}

func looseString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	}
	return ""
}
