package testutil

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/guarzo/olxbuddy/internal/model"
)

func TestNewTestDataFactory(t *testing.T) {
	factory1 := NewTestDataFactory(12345)
	factory2 := NewTestDataFactory(12345)

	// Should generate same values with same seed
	url1 := factory1.GenerateTestURL(model.SourceOLX, "lego")
	url2 := factory2.GenerateTestURL(model.SourceOLX, "lego")
	if url1 != url2 {
		t.Errorf("factories with same seed should generate same values, got %s and %s", url1, url2)
	}

	factory3 := NewTestDataFactory(54321)
	if url3 := factory3.GenerateTestURL(model.SourceOLX, "lego"); url1 == url3 {
		t.Error("factories with different seeds should generate different values")
	}
}

func TestGenerateTestURL(t *testing.T) {
	factory := NewTestDataFactory(0)
	url := factory.GenerateTestURL(model.SourceVinted, "kurtka")

	if !strings.HasPrefix(url, "https://vinted.test.local/kurtka-ID") {
		t.Errorf("unexpected URL %s", url)
	}
}

func TestGenerateTestPrice(t *testing.T) {
	factory := NewTestDataFactory(0)
	for i := 0; i < 100; i++ {
		price := factory.GenerateTestPrice()
		if price < 5 || price > 500 {
			t.Errorf("price should be between 5 and 500, got %v", price)
		}
	}
}

func TestGenerateTestDate(t *testing.T) {
	factory := NewTestDataFactory(0)
	date := factory.GenerateTestDate()

	now := time.Now()
	if date.After(now) {
		t.Error("date should not be in the future")
	}
	if date.Before(now.AddDate(-1, 0, -1)) {
		t.Error("date should be within the last year")
	}
}

func TestGenerateTestCondition(t *testing.T) {
	factory := NewTestDataFactory(0)
	for i := 0; i < 20; i++ {
		if c := factory.GenerateTestCondition(); !c.Valid() {
			t.Errorf("invalid condition %q", c)
		}
	}
}

func TestGenerateCandidates(t *testing.T) {
	factory := NewTestDataFactory(7)
	items := factory.GenerateCandidates(model.SourceOLX, 4)

	if len(items) != 4 {
		t.Fatalf("expected 4 items, got %d", len(items))
	}
	for _, it := range items {
		if it.Source != model.SourceOLX || it.Title == "" || it.Price <= 0 || it.URL == "" {
			t.Errorf("incomplete candidate %+v", it)
		}
	}
}

func TestOLXSearchPage(t *testing.T) {
	page := OLXSearchPage(
		Card{Title: "A & B", Href: "/item/1", Price: "100 zł"},
		Card{Title: "No price", Href: "/item/2"},
	)

	if strings.Count(page, `data-cy="l-card"`) != 2 {
		t.Errorf("expected 2 cards in %s", page)
	}
	if !strings.Contains(page, "<h4>A &amp; B</h4>") {
		t.Error("title should be escaped")
	}
	if strings.Count(page, "ad-price") != 1 {
		t.Error("card without price should omit the price element")
	}
}

func TestVintedSearchPage(t *testing.T) {
	page := VintedSearchPage(Card{Title: "Kurtka", Href: "/items/1", Price: "50 zł"})

	for _, want := range []string{"feed-grid__item", "ItemBox_title", "ItemBox_price", `href="/items/1"`} {
		if !strings.Contains(page, want) {
			t.Errorf("expected %s in %s", want, page)
		}
	}
}

func TestProductJSON(t *testing.T) {
	raw := ProductJSON(map[string]interface{}{"name": "Test Item"})

	var decoded map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded["@type"] != "Product" || decoded["name"] != "Test Item" {
		t.Errorf("unexpected product %v", decoded)
	}

	page := ProductPage(raw)
	if !strings.Contains(page, `<script type="application/ld+json">`) {
		t.Error("page should contain a JSON-LD script block")
	}
}

func TestLegoProductIsValidJSON(t *testing.T) {
	var decoded map[string]interface{}
	if err := json.Unmarshal([]byte(LegoProduct), &decoded); err != nil {
		t.Fatalf("LegoProduct fixture is not valid JSON: %v", err)
	}
}
