// Package volatility measures how much a tracked listing's price moved.
package volatility

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/guarzo/olxbuddy/internal/model"
	"github.com/guarzo/olxbuddy/internal/store"
)

// DefaultWindow is how far back Stats looks
const DefaultWindow = 30 * 24 * time.Hour

// Stats summarizes the price history of one listing within a window
type Stats struct {
	ListingID  int64   `json:"listing_id"`
	Points     int     `json:"points"`
	Min        float64 `json:"min_price"`
	Max        float64 `json:"max_price"`
	Mean       float64 `json:"mean_price"`
	Change     float64 `json:"change"`
	Volatility float64 `json:"volatility"`
}

// Calculate summarizes the points recorded after now-window. Order of
// history does not matter. Volatility is the coefficient of variation and
// is 0 with fewer than two points.
func Calculate(listingID int64, history []*model.PriceHistory, now time.Time, window time.Duration) Stats {
	cutoff := now.Add(-window)
	stats := Stats{ListingID: listingID}

	var prices []float64
	var first, last *model.PriceHistory
	for _, h := range history {
		if !h.RecordedAt.After(cutoff) {
			continue
		}
		prices = append(prices, h.Price)
		if first == nil || h.RecordedAt.Before(first.RecordedAt) {
			first = h
		}
		if last == nil || !h.RecordedAt.Before(last.RecordedAt) {
			last = h
		}
	}
	if len(prices) == 0 {
		return stats
	}

	stats.Points = len(prices)
	stats.Min, stats.Max = prices[0], prices[0]
	var sum float64
	for _, p := range prices {
		sum += p
		stats.Min = math.Min(stats.Min, p)
		stats.Max = math.Max(stats.Max, p)
	}
	stats.Mean = round4(sum / float64(len(prices)))
	stats.Change = round4(last.Price - first.Price)
	stats.Volatility = round4(coefficientOfVariation(prices))
	return stats
}

// coefficientOfVariation is sample standard deviation over mean
func coefficientOfVariation(prices []float64) float64 {
	if len(prices) < 2 {
		return 0
	}

	var sum float64
	for _, p := range prices {
		sum += p
	}
	mean := sum / float64(len(prices))
	if mean == 0 {
		return 0
	}

	var varianceSum float64
	for _, p := range prices {
		diff := p - mean
		varianceSum += diff * diff
	}
	variance := varianceSum / float64(len(prices)-1)
	return math.Sqrt(variance) / mean
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// Tracker reads price history from the store
type Tracker struct {
	store  store.ListingStore
	window time.Duration
	now    func() time.Time
}

// NewTracker creates a tracker; a non-positive window uses DefaultWindow
func NewTracker(st store.ListingStore, window time.Duration) *Tracker {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Tracker{store: st, window: window, now: time.Now}
}

// ListingStats returns the price statistics of a tracked listing
func (t *Tracker) ListingStats(ctx context.Context, listingID int64) (Stats, error) {
	if _, err := t.store.GetListing(ctx, listingID); err != nil {
		return Stats{}, fmt.Errorf("loading listing %d: %w", listingID, err)
	}
	history, err := t.store.PriceHistory(ctx, listingID, 0)
	if err != nil {
		return Stats{}, fmt.Errorf("loading price history: %w", err)
	}
	return Calculate(listingID, history, t.now(), t.window), nil
}
