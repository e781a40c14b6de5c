// Package memory is an in-memory implementation of store.Store, used in
// tests and when no database is configured.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/guarzo/olxbuddy/internal/model"
	"github.com/guarzo/olxbuddy/internal/store"
)

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu  sync.RWMutex
	now func() time.Time

	nextID      int64
	listings    map[int64]*model.Listing
	history     map[int64]*model.PriceHistory
	competitors map[int64]*model.CompetitorPrice
	executions  map[int64]*model.JobExecution
}

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		now:         time.Now,
		listings:    make(map[int64]*model.Listing),
		history:     make(map[int64]*model.PriceHistory),
		competitors: make(map[int64]*model.CompetitorPrice),
		executions:  make(map[int64]*model.JobExecution),
	}
}

// SetClock replaces the time source used for timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Close is a no-op.
func (s *Store) Close() {}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Store) CreateListing(_ context.Context, l *model.Listing) error {
	if l == nil || l.Title == "" || l.Platform == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if l.ExternalID != "" {
		for _, existing := range s.listings {
			if existing.Platform == l.Platform && existing.ExternalID == l.ExternalID {
				return store.ErrDuplicateKey
			}
		}
	}

	now := s.now()
	l.ID = s.id()
	l.CreatedAt, l.UpdatedAt = now, now
	if l.Status == "" {
		l.Status = model.ListingActive
	}

	listingCopy := *l
	s.listings[l.ID] = &listingCopy

	if l.Price != nil {
		s.addHistory(l.ID, *l.Price, now)
	}
	return nil
}

func (s *Store) GetListing(_ context.Context, id int64) (*model.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.listings[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	listingCopy := *l
	return &listingCopy, nil
}

func (s *Store) ActiveListings(ctx context.Context) ([]*model.Listing, error) {
	return s.ListingsByStatus(ctx, model.ListingActive)
}

func (s *Store) ListingsByStatus(_ context.Context, status model.ListingStatus) ([]*model.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*model.Listing
	for _, l := range s.listings {
		if status == "" || l.Status == status {
			listingCopy := *l
			result = append(result, &listingCopy)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *Store) UpdateListingPrice(_ context.Context, id int64, price float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.listings[id]
	if !ok {
		return store.ErrNotFound
	}
	now := s.now()
	p := price
	l.Price = &p
	l.UpdatedAt = now
	s.addHistory(id, price, now)
	return nil
}

func (s *Store) MarkListingSold(_ context.Context, id int64, salePrice float64, soldAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.listings[id]
	if !ok {
		return store.ErrNotFound
	}
	if soldAt.IsZero() {
		soldAt = s.now()
	}
	sp := salePrice
	l.Status = model.ListingSold
	l.SalePrice = &sp
	l.SoldAt = &soldAt
	l.UpdatedAt = s.now()
	return nil
}

// addHistory must be called with mu held.
func (s *Store) addHistory(listingID int64, price float64, at time.Time) {
	id := s.id()
	s.history[id] = &model.PriceHistory{ID: id, ListingID: listingID, Price: price, RecordedAt: at}
}

func (s *Store) PriceHistory(_ context.Context, listingID int64, limit int) ([]*model.PriceHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*model.PriceHistory
	for _, h := range s.history {
		if h.ListingID == listingID {
			historyCopy := *h
			result = append(result, &historyCopy)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].RecordedAt.Equal(result[j].RecordedAt) {
			return result[i].RecordedAt.After(result[j].RecordedAt)
		}
		return result[i].ID > result[j].ID
	})
	return limitSlice(result, limit), nil
}

func (s *Store) DeleteSoldListingsOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, l := range s.listings {
		if l.Status != model.ListingSold || l.SoldAt == nil || !l.SoldAt.Before(cutoff) {
			continue
		}
		delete(s.listings, id)
		deleted++

		for hid, h := range s.history {
			if h.ListingID == id {
				delete(s.history, hid)
			}
		}
		for cid, c := range s.competitors {
			if c.ListingID == id {
				delete(s.competitors, cid)
			}
		}
	}
	return deleted, nil
}

func (s *Store) DeletePriceHistoryOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, h := range s.history {
		if h.RecordedAt.Before(cutoff) {
			delete(s.history, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *Store) InsertCompetitorPrice(_ context.Context, p *model.CompetitorPrice) error {
	if p == nil || p.URL == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.listings[p.ListingID]; !ok {
		return store.ErrNotFound
	}

	p.ID = s.id()
	if p.ScrapedAt.IsZero() {
		p.ScrapedAt = s.now()
	}
	priceCopy := *p
	s.competitors[p.ID] = &priceCopy
	return nil
}

func (s *Store) CompetitorPrices(_ context.Context, listingID int64, limit int) ([]*model.CompetitorPrice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*model.CompetitorPrice
	for _, c := range s.competitors {
		if c.ListingID == listingID {
			priceCopy := *c
			result = append(result, &priceCopy)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].ScrapedAt.Equal(result[j].ScrapedAt) {
			return result[i].ScrapedAt.After(result[j].ScrapedAt)
		}
		return result[i].ID > result[j].ID
	})
	return limitSlice(result, limit), nil
}

func (s *Store) DeleteCompetitorPricesOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, c := range s.competitors {
		if c.ScrapedAt.Before(cutoff) {
			delete(s.competitors, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *Store) CreateJobExecution(_ context.Context, jobID, jobName string) (*model.JobExecution, error) {
	if jobID == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	exec := &model.JobExecution{
		ID:        s.id(),
		JobID:     jobID,
		JobName:   jobName,
		Status:    model.JobRunning,
		StartedAt: s.now(),
	}
	s.executions[exec.ID] = exec

	execCopy := *exec
	return &execCopy, nil
}

func (s *Store) FinishJobExecution(_ context.Context, id int64, status model.JobStatus, errMsg string, result map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exec, ok := s.executions[id]
	if !ok {
		return store.ErrNotFound
	}
	completed := s.now()
	exec.Status = status
	exec.CompletedAt = &completed
	if errMsg != "" {
		exec.ErrorMessage = errMsg
	}
	if len(result) > 0 {
		data := make(map[string]interface{}, len(result))
		for k, v := range result {
			data[k] = v
		}
		exec.ResultData = data
	}
	return nil
}

func (s *Store) JobExecutions(_ context.Context, jobID string, limit int) ([]*model.JobExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*model.JobExecution
	for _, e := range s.executions {
		if jobID == "" || e.JobID == jobID {
			execCopy := *e
			result = append(result, &execCopy)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].StartedAt.Equal(result[j].StartedAt) {
			return result[i].StartedAt.After(result[j].StartedAt)
		}
		return result[i].ID > result[j].ID
	})
	return limitSlice(result, limit), nil
}

func limitSlice[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
