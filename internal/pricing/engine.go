package pricing

import (
	"context"
	"log"
	"math"
	"sort"
	"time"

	"github.com/guarzo/olxbuddy/internal/cache"
	"github.com/guarzo/olxbuddy/internal/competitors"
	"github.com/guarzo/olxbuddy/internal/model"
)

const (
	// SampleSize is how many similar items a suggestion is drawn from
	SampleSize = 20
	// TopItems is how many similar items are returned with a suggestion
	TopItems = 5

	suggestionCacheSize = 256
)

// Request describes the item to price
type Request struct {
	Query     string
	Category  string
	Brand     string
	Condition model.Condition // empty means good
}

// Engine turns a ranked sample of similar items into a price suggestion
type Engine struct {
	finder   competitors.Finder
	cache    *cache.MemoryCache[model.PriceSuggestion]
	cacheTTL time.Duration
}

// NewEngine creates an engine. A positive cacheTTL caches non-empty
// suggestions per request.
func NewEngine(finder competitors.Finder, cacheTTL time.Duration) *Engine {
	e := &Engine{finder: finder, cacheTTL: cacheTTL}
	if cacheTTL > 0 {
		e.cache = cache.NewMemoryCache[model.PriceSuggestion](suggestionCacheSize, cacheTTL)
	}
	return e
}

// SuggestPrice samples similar items and derives a condition-weighted price.
// No similar items is not an error: the result is the empty suggestion.
func (e *Engine) SuggestPrice(ctx context.Context, req Request) model.PriceSuggestion {
	condition := model.ParseCondition(string(req.Condition))

	key := cache.BuildKey(req.Query, req.Category, req.Brand, string(condition))
	if e.cache != nil {
		if cached, ok := e.cache.Get(key); ok {
			return cached.Clone()
		}
	}

	items := e.finder.FindSimilarItems(ctx, req.Query, req.Category, req.Brand, SampleSize)
	suggestion := Suggest(items, condition)

	if e.cache != nil && !suggestion.Empty() {
		e.cache.Set(key, suggestion.Clone(), e.cacheTTL)
	}
	log.Printf("Pricing: %q (%s) -> %d samples", req.Query, condition, suggestion.SampleSize)
	return suggestion
}

// Suggest computes a suggestion from items already sorted by similarity.
//
// The median is the upper median sorted[N/2] and the suggested price is
// sorted[floor(w*(N-1))] where w is the condition weight. Both are index
// picks, not interpolated values.
func Suggest(items []model.CandidateItem, condition model.Condition) model.PriceSuggestion {
	if len(items) == 0 {
		return EmptySuggestion()
	}

	prices := make([]float64, len(items))
	for i, it := range items {
		prices[i] = it.Price
	}
	sort.Float64s(prices)

	n := len(prices)
	idx := PercentileIndex(condition.Weight(), n)

	top := items
	if len(top) > TopItems {
		top = top[:TopItems]
	}
	similar := make([]model.CandidateItem, len(top))
	for i, it := range top {
		it.SimilarityScore = round2(it.SimilarityScore)
		similar[i] = it
	}

	return model.PriceSuggestion{
		SuggestedPrice:  ptr(round2(prices[idx])),
		MinPrice:        ptr(round2(prices[0])),
		MaxPrice:        ptr(round2(prices[n-1])),
		MedianPrice:     ptr(round2(prices[n/2])),
		SampleSize:      n,
		TopSimilarItems: similar,
	}
}

// PercentileIndex returns floor(weight*(n-1)) clamped to [0, n-1]
func PercentileIndex(weight float64, n int) int {
	if n <= 0 {
		return 0
	}
	idx := int(weight * float64(n-1))
	if idx < 0 {
		return 0
	}
	if idx > n-1 {
		return n - 1
	}
	return idx
}

// EmptySuggestion is the suggestion returned when no similar items exist
func EmptySuggestion() model.PriceSuggestion {
	return model.PriceSuggestion{
		SampleSize:      0,
		TopSimilarItems: []model.CandidateItem{},
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func ptr(v float64) *float64 {
	return &v
}
