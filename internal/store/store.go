// Package store persists tracked listings, their price history, competitor
// prices and background job executions.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/guarzo/olxbuddy/internal/model"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when a listing with the same platform and
	// external ID is already tracked.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)

// ListingStore manages tracked listings and their price history.
type ListingStore interface {
	// CreateListing stores l and sets its ID and timestamps. An initial
	// price is recorded in the price history.
	CreateListing(ctx context.Context, l *model.Listing) error
	GetListing(ctx context.Context, id int64) (*model.Listing, error)
	// ActiveListings returns listings with status active, oldest first.
	ActiveListings(ctx context.Context) ([]*model.Listing, error)
	// ListingsByStatus returns listings with the given status, oldest
	// first. An empty status matches every listing.
	ListingsByStatus(ctx context.Context, status model.ListingStatus) ([]*model.Listing, error)
	// UpdateListingPrice sets the current price and appends a history entry.
	UpdateListingPrice(ctx context.Context, id int64, price float64) error
	MarkListingSold(ctx context.Context, id int64, salePrice float64, soldAt time.Time) error
	// PriceHistory returns the newest entries first.
	PriceHistory(ctx context.Context, listingID int64, limit int) ([]*model.PriceHistory, error)
	// DeleteSoldListingsOlderThan removes sold listings whose sale happened
	// before cutoff, together with their history and competitor prices.
	DeleteSoldListingsOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	DeletePriceHistoryOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// CompetitorStore manages competitor prices scraped for tracked listings.
type CompetitorStore interface {
	InsertCompetitorPrice(ctx context.Context, p *model.CompetitorPrice) error
	// CompetitorPrices returns the newest entries first.
	CompetitorPrices(ctx context.Context, listingID int64, limit int) ([]*model.CompetitorPrice, error)
	DeleteCompetitorPricesOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// JobStore records background job executions.
type JobStore interface {
	// CreateJobExecution stores a new execution in the running state.
	CreateJobExecution(ctx context.Context, jobID, jobName string) (*model.JobExecution, error)
	// FinishJobExecution sets the final status and completion time.
	FinishJobExecution(ctx context.Context, id int64, status model.JobStatus, errMsg string, result map[string]interface{}) error
	// JobExecutions returns the newest executions first. An empty jobID
	// matches every job.
	JobExecutions(ctx context.Context, jobID string, limit int) ([]*model.JobExecution, error)
}

// Store is the full persistence surface used by the jobs and the CLI.
type Store interface {
	ListingStore
	CompetitorStore
	JobStore
	Close()
}
