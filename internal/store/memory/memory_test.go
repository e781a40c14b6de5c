package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guarzo/olxbuddy/internal/model"
	"github.com/guarzo/olxbuddy/internal/store"
)

func price(v float64) *float64 { return &v }

// fakeClock is advanced manually so ordering and retention are deterministic
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore() (*Store, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	s := NewStore()
	s.SetClock(clock.Now)
	return s, clock
}

func newListing(externalID string) *model.Listing {
	return &model.Listing{
		Platform:   model.SourceOLX,
		ExternalID: externalID,
		URL:        "https://www.olx.pl/d/oferta/" + externalID + ".html",
		Title:      "Lego " + externalID,
		Price:      price(100),
		Currency:   "PLN",
		Condition:  model.ConditionGood,
	}
}

func TestStore_CreateAndGetListing(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	l := newListing("a1")
	require.NoError(t, s.CreateListing(ctx, l))
	assert.NotZero(t, l.ID)
	assert.Equal(t, model.ListingActive, l.Status)

	got, err := s.GetListing(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, "Lego a1", got.Title)
	assert.Equal(t, 100.0, *got.Price)

	history, err := s.PriceHistory(ctx, l.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 1, "initial price should be recorded")
	assert.Equal(t, 100.0, history[0].Price)
}

func TestStore_CreateListingValidation(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	assert.ErrorIs(t, s.CreateListing(ctx, nil), store.ErrInvalidInput)
	assert.ErrorIs(t, s.CreateListing(ctx, &model.Listing{Platform: model.SourceOLX}), store.ErrInvalidInput)

	require.NoError(t, s.CreateListing(ctx, newListing("dup")))
	assert.ErrorIs(t, s.CreateListing(ctx, newListing("dup")), store.ErrDuplicateKey)

	other := newListing("dup")
	other.Platform = model.SourceVinted
	assert.NoError(t, s.CreateListing(ctx, other), "same external id on another platform is allowed")
}

func TestStore_GetListingNotFound(t *testing.T) {
	s, _ := newTestStore()
	_, err := s.GetListing(context.Background(), 42)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_ReturnsCopies(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	l := newListing("copy")
	require.NoError(t, s.CreateListing(ctx, l))

	got, err := s.GetListing(ctx, l.ID)
	require.NoError(t, err)
	got.Title = "mutated"

	again, err := s.GetListing(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, "Lego copy", again.Title)
}

func TestStore_ActiveListings(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	a, b, c := newListing("a"), newListing("b"), newListing("c")
	for _, l := range []*model.Listing{a, b, c} {
		require.NoError(t, s.CreateListing(ctx, l))
	}
	require.NoError(t, s.MarkListingSold(ctx, b.ID, 90, time.Time{}))

	active, err := s.ActiveListings(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, a.ID, active[0].ID)
	assert.Equal(t, c.ID, active[1].ID)

	sold, err := s.ListingsByStatus(ctx, model.ListingSold)
	require.NoError(t, err)
	require.Len(t, sold, 1)
	assert.Equal(t, b.ID, sold[0].ID)

	all, err := s.ListingsByStatus(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestStore_UpdateListingPriceRecordsHistory(t *testing.T) {
	s, clock := newTestStore()
	ctx := context.Background()

	l := newListing("p")
	require.NoError(t, s.CreateListing(ctx, l))

	clock.Advance(time.Hour)
	require.NoError(t, s.UpdateListingPrice(ctx, l.ID, 80))
	clock.Advance(time.Hour)
	require.NoError(t, s.UpdateListingPrice(ctx, l.ID, 75.5))

	got, err := s.GetListing(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, 75.5, *got.Price)
	assert.True(t, got.UpdatedAt.After(got.CreatedAt))

	history, err := s.PriceHistory(ctx, l.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, []float64{75.5, 80, 100}, []float64{history[0].Price, history[1].Price, history[2].Price})

	limited, err := s.PriceHistory(ctx, l.ID, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	assert.ErrorIs(t, s.UpdateListingPrice(ctx, 999, 1), store.ErrNotFound)
}

func TestStore_MarkListingSold(t *testing.T) {
	s, clock := newTestStore()
	ctx := context.Background()

	l := newListing("sold")
	require.NoError(t, s.CreateListing(ctx, l))
	require.NoError(t, s.MarkListingSold(ctx, l.ID, 95, time.Time{}))

	got, err := s.GetListing(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ListingSold, got.Status)
	assert.Equal(t, 95.0, *got.SalePrice)
	require.NotNil(t, got.SoldAt)
	assert.Equal(t, clock.Now(), *got.SoldAt)

	assert.ErrorIs(t, s.MarkListingSold(ctx, 999, 1, time.Time{}), store.ErrNotFound)
}

func TestStore_CompetitorPrices(t *testing.T) {
	s, clock := newTestStore()
	ctx := context.Background()

	l := newListing("comp")
	require.NoError(t, s.CreateListing(ctx, l))

	for i, title := range []string{"first", "second", "third"} {
		require.NoError(t, s.InsertCompetitorPrice(ctx, &model.CompetitorPrice{
			ListingID:       l.ID,
			Platform:        model.SourceVinted,
			URL:             "https://www.vinted.pl/items/" + title,
			Title:           title,
			Price:           float64(10 * (i + 1)),
			SimilarityScore: 0.5,
		}))
		clock.Advance(time.Minute)
	}

	prices, err := s.CompetitorPrices(ctx, l.ID, 2)
	require.NoError(t, err)
	require.Len(t, prices, 2)
	assert.Equal(t, "third", prices[0].Title)
	assert.Equal(t, "second", prices[1].Title)

	assert.ErrorIs(t, s.InsertCompetitorPrice(ctx, &model.CompetitorPrice{ListingID: 999, URL: "x"}), store.ErrNotFound)
	assert.ErrorIs(t, s.InsertCompetitorPrice(ctx, &model.CompetitorPrice{ListingID: l.ID}), store.ErrInvalidInput)
}

func TestStore_Retention(t *testing.T) {
	s, clock := newTestStore()
	ctx := context.Background()
	start := clock.Now()

	old := newListing("old")
	require.NoError(t, s.CreateListing(ctx, old))
	require.NoError(t, s.InsertCompetitorPrice(ctx, &model.CompetitorPrice{ListingID: old.ID, URL: "u1", Price: 1}))
	require.NoError(t, s.MarkListingSold(ctx, old.ID, 50, start))

	keep := newListing("keep")
	require.NoError(t, s.CreateListing(ctx, keep))

	clock.Advance(40 * 24 * time.Hour)
	require.NoError(t, s.InsertCompetitorPrice(ctx, &model.CompetitorPrice{ListingID: keep.ID, URL: "u2", Price: 2}))
	require.NoError(t, s.UpdateListingPrice(ctx, keep.ID, 90))

	cutoff := clock.Now().Add(-30 * 24 * time.Hour)

	n, err := s.DeleteCompetitorPricesOlderThan(ctx, cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = s.DeletePriceHistoryOlderThan(ctx, cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n, "initial prices of both listings are older than the cutoff")

	n, err = s.DeleteSoldListingsOlderThan(ctx, cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = s.GetListing(ctx, old.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	remaining, err := s.CompetitorPrices(ctx, keep.ID, 0)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)

	history, err := s.PriceHistory(ctx, keep.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 90.0, history[0].Price)
}

func TestStore_DeleteSoldListingsCascades(t *testing.T) {
	s, clock := newTestStore()
	ctx := context.Background()

	l := newListing("cascade")
	require.NoError(t, s.CreateListing(ctx, l))
	require.NoError(t, s.InsertCompetitorPrice(ctx, &model.CompetitorPrice{ListingID: l.ID, URL: "u", Price: 1}))
	require.NoError(t, s.MarkListingSold(ctx, l.ID, 10, clock.Now()))

	clock.Advance(time.Hour)
	n, err := s.DeleteSoldListingsOlderThan(ctx, clock.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	history, _ := s.PriceHistory(ctx, l.ID, 0)
	prices, _ := s.CompetitorPrices(ctx, l.ID, 0)
	assert.Empty(t, history)
	assert.Empty(t, prices)
}

func TestStore_JobExecutions(t *testing.T) {
	s, clock := newTestStore()
	ctx := context.Background()

	first, err := s.CreateJobExecution(ctx, "cleanup", "Cleanup old data")
	require.NoError(t, err)
	assert.Equal(t, model.JobRunning, first.Status)
	assert.Nil(t, first.CompletedAt)

	clock.Advance(time.Minute)
	require.NoError(t, s.FinishJobExecution(ctx, first.ID, model.JobSuccess, "", map[string]interface{}{"listings_deleted": 3}))

	clock.Advance(time.Minute)
	second, err := s.CreateJobExecution(ctx, "cleanup", "Cleanup old data")
	require.NoError(t, err)
	require.NoError(t, s.FinishJobExecution(ctx, second.ID, model.JobError, "boom", nil))

	_, err = s.CreateJobExecution(ctx, "refresh_listings", "Refresh active listings")
	require.NoError(t, err)

	execs, err := s.JobExecutions(ctx, "cleanup", 10)
	require.NoError(t, err)
	require.Len(t, execs, 2)
	assert.Equal(t, second.ID, execs[0].ID, "newest first")
	assert.Equal(t, model.JobError, execs[0].Status)
	assert.Equal(t, "boom", execs[0].ErrorMessage)
	assert.Nil(t, execs[0].ResultData)

	assert.Equal(t, model.JobSuccess, execs[1].Status)
	require.NotNil(t, execs[1].CompletedAt)
	assert.Equal(t, 3, execs[1].ResultData["listings_deleted"])

	all, err := s.JobExecutions(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	limited, err := s.JobExecutions(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	assert.ErrorIs(t, s.FinishJobExecution(ctx, 999, model.JobSuccess, "", nil), store.ErrNotFound)
	_, err = s.CreateJobExecution(ctx, "", "")
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	l := newListing("concurrent")
	require.NoError(t, s.CreateListing(ctx, l))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.UpdateListingPrice(ctx, l.ID, float64(i))
			_ = s.InsertCompetitorPrice(ctx, &model.CompetitorPrice{ListingID: l.ID, URL: "u", Price: float64(i)})
			_, _ = s.ActiveListings(ctx)
		}(i)
	}
	wg.Wait()

	history, err := s.PriceHistory(ctx, l.ID, 0)
	require.NoError(t, err)
	assert.Len(t, history, 51)
}
