package scrape

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/guarzo/olxbuddy/internal/marketplace"
	"github.com/guarzo/olxbuddy/internal/model"
	"github.com/guarzo/olxbuddy/internal/testutil"
	"github.com/guarzo/olxbuddy/internal/urlguard"
)

func servePage(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestScrapeListing_Success(t *testing.T) {
	server := servePage(t, http.StatusOK, testutil.ProductPage(testutil.LegoProduct))
	scraper := NewScraper(5*time.Second, WithoutURLGuard())

	listing, err := scraper.ScrapeListing(context.Background(), server.URL+"/d/oferta/lego-test.html")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if listing.Title != "Lego minifigurki spiderman Spider-Man" {
		t.Errorf("Unexpected title %q", listing.Title)
	}
	if listing.Description != "Lego minifigurki spiderman" {
		t.Errorf("Unexpected description %q", listing.Description)
	}
	if listing.Price != 10.0 {
		t.Errorf("Expected price 10, got %v", listing.Price)
	}
	if listing.Currency != "PLN" {
		t.Errorf("Expected PLN, got %q", listing.Currency)
	}
	if listing.Category != "Klocki Plastikowe" {
		t.Errorf("Expected category Klocki Plastikowe, got %q", listing.Category)
	}
	if listing.Condition != model.ConditionGood {
		t.Errorf("Expected good condition, got %q", listing.Condition)
	}
	if listing.ExternalID != "1046602772" {
		t.Errorf("Expected sku as external id, got %q", listing.ExternalID)
	}
	if listing.Images["image_0"] != "https://example.com/image1.jpg" || listing.Images["image_1"] != "https://example.com/image2.jpg" {
		t.Errorf("Unexpected images %v", listing.Images)
	}
	if listing.URL != server.URL+"/d/oferta/lego-test.html" {
		t.Errorf("Expected page URL to be recorded, got %q", listing.URL)
	}
}

func TestParseListing_Errors(t *testing.T) {
	tests := []struct {
		name    string
		page    string
		wantErr error
	}{
		{"no JSON-LD", "<html><body>No JSON-LD data</body></html>", ErrNoJSONLD},
		{"empty script", testutil.ProductPage("   "), ErrNoJSONLD},
		{"invalid JSON", testutil.ProductPage("{invalid json}"), ErrInvalidJSON},
		{"missing title", testutil.ProductPage(`{"offers": {"price": 100, "priceCurrency": "PLN"}}`), ErrMissingTitle},
		{"blank title", testutil.ProductPage(`{"@type": "Product", "name": "  ", "offers": {"price": 1, "priceCurrency": "PLN"}}`), ErrMissingTitle},
		{"missing offers", testutil.ProductPage(`{"name": "Test Item"}`), ErrInvalidOffers},
		{"offers not an object", testutil.ProductPage(`{"name": "Test Item", "offers": "10 PLN"}`), ErrInvalidOffers},
		{"empty offers list", testutil.ProductPage(`{"name": "Test Item", "offers": []}`), ErrInvalidOffers},
		{"missing price", testutil.ProductPage(`{"name": "Test Item", "offers": {"priceCurrency": "PLN"}}`), ErrInvalidOffers},
		{"missing currency", testutil.ProductPage(`{"name": "Test Item", "offers": {"price": 5}}`), ErrInvalidOffers},
		{"unparseable price", testutil.ProductPage(`{"name": "Test Item", "offers": {"price": "free", "priceCurrency": "PLN"}}`), ErrInvalidOffers},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			listing, err := ParseListing([]byte(tt.page))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
			if listing != nil {
				t.Errorf("Expected no listing on error, got %+v", listing)
			}
		})
	}
}

func TestParseListing_Conditions(t *testing.T) {
	tests := []struct {
		schema string
		want   model.Condition
	}{
		{"https://schema.org/NewCondition", model.ConditionNew},
		{"https://schema.org/UsedCondition", model.ConditionGood},
		{"https://schema.org/RefurbishedCondition", model.ConditionLikeNew},
		{"https://schema.org/DamagedCondition", model.ConditionPoor},
		{"https://schema.org/SomethingElse", model.ConditionGood},
		{"", model.ConditionGood},
	}

	for _, tt := range tests {
		t.Run(tt.schema, func(t *testing.T) {
			offer := map[string]interface{}{"priceCurrency": "PLN", "price": 100}
			if tt.schema != "" {
				offer["itemCondition"] = tt.schema
			}
			page := testutil.ProductPage(testutil.ProductJSON(map[string]interface{}{
				"name":   "Test Item",
				"offers": offer,
			}))

			listing, err := ParseListing([]byte(page))
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if listing.Condition != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, listing.Condition)
			}
		})
	}
}

func TestParseListing_Variants(t *testing.T) {
	t.Run("offers array and string price", func(t *testing.T) {
		page := testutil.ProductPage(`{"@type": "Product", "name": "Rower", "offers": [{"price": "1 234,56", "priceCurrency": "PLN"}]}`)
		listing, err := ParseListing([]byte(page))
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if listing.Price != 1234.56 {
			t.Errorf("Expected 1234.56, got %v", listing.Price)
		}
	})

	t.Run("dot decimal string price", func(t *testing.T) {
		page := testutil.ProductPage(`{"@type": "Product", "name": "Lego", "offers": {"price": "10.50", "priceCurrency": "PLN"}}`)
		listing, err := ParseListing([]byte(page))
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if listing.Price != 10.5 {
			t.Errorf("Expected 10.5, got %v", listing.Price)
		}
	})

	t.Run("product after breadcrumb block", func(t *testing.T) {
		page := testutil.ProductPage(
			`{"@type": "BreadcrumbList", "itemListElement": []}`,
			`{"@type": "Product", "name": "Kurtka", "offers": {"price": 50, "priceCurrency": "PLN"}}`,
		)
		listing, err := ParseListing([]byte(page))
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if listing.Title != "Kurtka" {
			t.Errorf("Expected the Product block, got %q", listing.Title)
		}
	})

	t.Run("graph", func(t *testing.T) {
		page := testutil.ProductPage(`{"@graph": [{"@type": "WebPage"}, {"@type": "Product", "name": "Buty", "offers": {"price": 80, "priceCurrency": "PLN"}}]}`)
		listing, err := ParseListing([]byte(page))
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if listing.Title != "Buty" {
			t.Errorf("Expected Buty, got %q", listing.Title)
		}
	})

	t.Run("brand object, single image and numeric sku", func(t *testing.T) {
		page := testutil.ProductPage(`{"@type": "Product", "name": "Klocki", "brand": {"@type": "Brand", "name": "LEGO"},
			"image": "https://example.com/a.jpg", "sku": 12345, "offers": {"price": 10, "priceCurrency": "PLN"}}`)
		listing, err := ParseListing([]byte(page))
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if listing.Brand != "LEGO" {
			t.Errorf("Expected brand LEGO, got %q", listing.Brand)
		}
		if len(listing.Images) != 1 || listing.Images["image_0"] != "https://example.com/a.jpg" {
			t.Errorf("Unexpected images %v", listing.Images)
		}
		if listing.ExternalID != "12345" {
			t.Errorf("Expected external id 12345, got %q", listing.ExternalID)
		}
		if listing.Category != "" {
			t.Errorf("Expected empty category, got %q", listing.Category)
		}
	})
}

func TestScrapeListing_HTTPError(t *testing.T) {
	server := servePage(t, http.StatusNotFound, "gone")
	scraper := NewScraper(5*time.Second, WithoutURLGuard())

	_, err := scraper.ScrapeListing(context.Background(), server.URL+"/d/oferta/x.html")

	var fetchErr *marketplace.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Expected FetchError, got %v", err)
	}
	if fetchErr.StatusCode != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", fetchErr.StatusCode)
	}
}

func TestScrapeListing_ConnectionRefused(t *testing.T) {
	server := servePage(t, http.StatusOK, "")
	url := server.URL + "/x.html"
	server.Close()

	_, err := NewScraper(time.Second, WithoutURLGuard()).ScrapeListing(context.Background(), url)

	var fetchErr *marketplace.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Expected FetchError, got %v", err)
	}
}

func TestScrapeListing_GuardBlocksPrivateHosts(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))
	defer server.Close()

	scraper := NewScraper(time.Second)
	for _, u := range []string{server.URL + "/x", "http://169.254.169.254/latest", "file:///etc/passwd"} {
		if _, err := scraper.ScrapeListing(context.Background(), u); err == nil {
			t.Errorf("Expected %s to be rejected", u)
		}
	}
	_, err := scraper.ScrapeListing(context.Background(), server.URL)
	if !errors.Is(err, urlguard.ErrForbidden) {
		t.Errorf("Expected ErrForbidden, got %v", err)
	}
	if requests != 0 {
		t.Errorf("Guarded URLs must not be fetched, got %d requests", requests)
	}
}

func TestCategoryFromURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://www.olx.pl/dla-dzieci/zabawki/klocki/klocki-plastikowe/", "Klocki Plastikowe"},
		{"https://www.olx.pl/elektronika/telefony", "Telefony"},
		{"/moda/ubrania_damskie/", "Ubrania Damskie"},
		{"rowery", "Rowery"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := CategoryFromURL(tt.in); got != tt.want {
			t.Errorf("CategoryFromURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPlatformFromURL(t *testing.T) {
	tests := []struct {
		in   string
		want model.Source
	}{
		{"https://www.olx.pl/d/oferta/x.html", model.SourceOLX},
		{"https://www.vinted.pl/items/123-kurtka", model.SourceVinted},
		{"https://example.com/x", ""},
	}
	for _, tt := range tests {
		if got := PlatformFromURL(tt.in); got != tt.want {
			t.Errorf("PlatformFromURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDeriveExternalID(t *testing.T) {
	id, err := DeriveExternalID("https://www.olx.pl/d/oferta/lego-CID88-ID18PrbS.html")
	if err != nil || id != "lego-CID88-ID18PrbS.html" {
		t.Errorf("Unexpected id %q err %v", id, err)
	}

	for _, bad := range []string{"https://www.olx.pl", "https://www.olx.pl/", "https://www.olx.pl/oferty/"} {
		if _, err := DeriveExternalID(bad); err == nil {
			t.Errorf("Expected error for %s", bad)
		}
	}
}
