package competitors

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/guarzo/olxbuddy/internal/marketplace"
	"github.com/guarzo/olxbuddy/internal/model"
)

// Finder finds similar items across marketplaces. Implemented by Aggregator.
type Finder interface {
	FindSimilarItems(ctx context.Context, query, category, brand string, maxResults int) []model.CandidateItem
}

// Aggregator fans a search out to every marketplace client and ranks the
// merged results by similarity to the query.
type Aggregator struct {
	clients []marketplace.Client
	debug   bool
}

// NewAggregator creates an aggregator over the given clients. Results are
// merged in the order the clients are given.
func NewAggregator(clients ...marketplace.Client) *Aggregator {
	return &Aggregator{clients: clients}
}

// SetDebug enables debug logging
func (a *Aggregator) SetDebug(debug bool) {
	a.debug = debug
}

var _ Finder = (*Aggregator)(nil)

// sourceResult holds one client's outcome
type sourceResult struct {
	items []model.CandidateItem
	err   error
}

// FindSimilarItems queries all sources concurrently, each capped at
// maxResults/2, scores every item against query and returns at most
// maxResults items ordered by descending similarity. A failing source
// contributes no items and never fails the call.
func (a *Aggregator) FindSimilarItems(ctx context.Context, query, category, brand string, maxResults int) []model.CandidateItem {
	perSource := maxResults / 2
	q := marketplace.Query{
		Text:       query,
		Category:   category,
		Brand:      brand,
		MaxResults: perSource,
	}

	start := time.Now()
	results := make([]sourceResult, len(a.clients))

	var wg sync.WaitGroup
	for i, client := range a.clients {
		wg.Add(1)
		go func(i int, client marketplace.Client) {
			defer wg.Done()
			results[i] = searchSource(ctx, client, q)
		}(i, client)
	}
	wg.Wait()

	merged := make([]model.CandidateItem, 0, perSource*len(a.clients))
	for i, res := range results {
		if res.err != nil {
			log.Printf("Aggregator: %s search failed: %v", a.clients[i].Source(), res.err)
			continue
		}
		merged = append(merged, res.items...)
	}

	for i := range merged {
		merged[i].SimilarityScore = Similarity(query, merged[i].Title)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].SimilarityScore > merged[j].SimilarityScore
	})

	if maxResults < 0 {
		maxResults = 0
	}
	if len(merged) > maxResults {
		merged = merged[:maxResults]
	}

	if a.debug {
		log.Printf("Aggregator: %d items for %q in %v", len(merged), query, time.Since(start))
	}
	return merged
}

// searchSource isolates one client call so an error or panic stays local
func searchSource(ctx context.Context, client marketplace.Client, q marketplace.Query) (res sourceResult) {
	defer func() {
		if r := recover(); r != nil {
			res = sourceResult{err: fmt.Errorf("panic: %v", r)}
		}
	}()

	items, err := client.Search(ctx, q)
	if err != nil {
		return sourceResult{err: err}
	}
	if len(items) > q.MaxResults {
		items = items[:q.MaxResults]
	}
	// Clients own their slices; copy so scoring never writes into them
	out := make([]model.CandidateItem, len(items))
	copy(out, items)
	return sourceResult{items: out}
}
