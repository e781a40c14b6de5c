package marketplace

import (
	"context"

	"github.com/guarzo/olxbuddy/internal/model"
)

// Client searches a single marketplace for candidate items.
//
// Search never fails because the marketplace is unreachable: network errors,
// timeouts and non-2xx responses yield an empty result and a nil error.
// A non-nil error means the client itself is misconfigured.
type Client interface {
	Source() model.Source
	Search(ctx context.Context, q Query) ([]model.CandidateItem, error)
}

// Query is a marketplace search request
type Query struct {
	Text       string
	Category   string
	Brand      string // only used by sources supporting brand filters
	MaxResults int
}

const (
	DefaultOLXBaseURL    = "https://www.olx.pl"
	DefaultVintedBaseURL = "https://www.vinted.pl"

	userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
)
