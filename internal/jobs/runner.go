// Package jobs schedules and runs the background maintenance jobs: listing
// refresh, competitor price collection and data cleanup.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/guarzo/olxbuddy/internal/competitors"
	"github.com/guarzo/olxbuddy/internal/concurrent"
	"github.com/guarzo/olxbuddy/internal/marketplace"
	"github.com/guarzo/olxbuddy/internal/model"
	"github.com/guarzo/olxbuddy/internal/store"
)

// Job identifiers
const (
	RefreshListingsJob  = "refresh_listings"
	CompetitorPricesJob = "competitor_prices"
	CleanupJob          = "cleanup"
)

// Default schedules in standard cron syntax
const (
	RefreshListingsSchedule  = "@every 30m"
	CompetitorPricesSchedule = "0 3 * * *"
	CleanupSchedule          = "0 4 * * 0"
)

var (
	ErrUnknownJob = errors.New("job not found")
	ErrJobRunning = errors.New("job already running")
)

// ListingScraper re-reads a tracked listing from its page
type ListingScraper interface {
	ScrapeListing(ctx context.Context, url string) (*model.NormalizedListing, error)
}

// Retention configures how long cleanup keeps data
type Retention struct {
	CompetitorPrices time.Duration
	PriceHistory     time.Duration
	SoldListings     time.Duration
}

// DefaultRetention keeps competitor prices 30 days, price history 90 days
// and sold listings a year.
func DefaultRetention() Retention {
	return Retention{
		CompetitorPrices: 30 * 24 * time.Hour,
		PriceHistory:     90 * 24 * time.Hour,
		SoldListings:     365 * 24 * time.Hour,
	}
}

// Config holds runner settings
type Config struct {
	Retention Retention
	// CompetitorResults is how many similar items are stored per listing
	CompetitorResults int
	// Workers bounds how many listings are processed at once
	Workers int
	// ListingTimeout bounds the work done for one listing
	ListingTimeout time.Duration
	// MaxAttempts is how often a listing is tried when its page fetch fails
	// with a transport error or a 5xx response. Default 3.
	MaxAttempts int
}

// JobInfo describes a registered job
type JobInfo struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Schedule string     `json:"trigger"`
	NextRun  *time.Time `json:"next_run_time"`
}

type jobFunc func(ctx context.Context) (map[string]interface{}, error)

type job struct {
	id       string
	name     string
	schedule string
	run      jobFunc
	entryID  cron.EntryID
	running  sync.Mutex
}

// Runner owns the cron scheduler and the dependencies the jobs need
type Runner struct {
	store     store.Store
	finder    competitors.Finder
	scraper   ListingScraper
	retention Retention
	results   int
	poolCfg   concurrent.Config

	cron  *cron.Cron
	jobs  map[string]*job
	order []string
	now   func() time.Time

	mu      sync.Mutex
	baseCtx context.Context
	cancel  context.CancelFunc
}

// NewRunner registers the jobs on a new cron scheduler. Call Start to begin
// scheduled execution; RunNow works without it.
func NewRunner(st store.Store, finder competitors.Finder, scraper ListingScraper, cfg Config) (*Runner, error) {
	if cfg.Retention == (Retention{}) {
		cfg.Retention = DefaultRetention()
	}
	if cfg.CompetitorResults <= 0 {
		cfg.CompetitorResults = 10
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.ListingTimeout <= 0 {
		cfg.ListingTimeout = 2 * time.Minute
	}

	r := &Runner{
		store:     st,
		finder:    finder,
		scraper:   scraper,
		retention: cfg.Retention,
		results:   cfg.CompetitorResults,
		poolCfg: concurrent.Config{
			Workers:      cfg.Workers,
			Timeout:      cfg.ListingTimeout,
			MaxRetries:   cfg.MaxAttempts,
			ErrorHandler: retryableFetch,
		},
		cron: cron.New(cron.WithChain(
			cron.Recover(cron.PrintfLogger(log.Default())),
		)),
		jobs:    make(map[string]*job),
		now:     time.Now,
		baseCtx: context.Background(),
	}

	defs := []struct {
		id, name, schedule string
		run                jobFunc
	}{
		{RefreshListingsJob, "Refresh active listings", RefreshListingsSchedule, r.refreshListings},
		{CompetitorPricesJob, "Scrape competitor prices", CompetitorPricesSchedule, r.scrapeCompetitorPrices},
		{CleanupJob, "Cleanup old data", CleanupSchedule, r.cleanup},
	}

	for _, d := range defs {
		j := &job{id: d.id, name: d.name, schedule: d.schedule, run: d.run}
		id, err := r.cron.AddFunc(d.schedule, func() { r.scheduled(j) })
		if err != nil {
			return nil, fmt.Errorf("scheduling %s: %w", d.id, err)
		}
		j.entryID = id
		r.jobs[d.id] = j
		r.order = append(r.order, d.id)
	}
	return r, nil
}

// Start begins scheduled execution. Scheduled runs use ctx.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	r.baseCtx, r.cancel = context.WithCancel(ctx)
	r.mu.Unlock()

	r.cron.Start()
	log.Printf("Jobs: scheduler started with %d jobs", len(r.jobs))
}

// Stop halts scheduling, cancels running jobs and waits for them to return.
func (r *Runner) Stop() {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.mu.Unlock()

	<-r.cron.Stop().Done()
	log.Printf("Jobs: scheduler stopped")
}

// Jobs lists the registered jobs with their next run time. Next run times
// are only known while the scheduler is started.
func (r *Runner) Jobs() []JobInfo {
	infos := make([]JobInfo, 0, len(r.order))
	for _, id := range r.order {
		j := r.jobs[id]
		info := JobInfo{ID: j.id, Name: j.name, Schedule: j.schedule}
		if next := r.cron.Entry(j.entryID).Next; !next.IsZero() {
			info.NextRun = &next
		}
		infos = append(infos, info)
	}
	return infos
}

// History returns past executions of jobID, newest first. An empty jobID
// returns every job's history.
func (r *Runner) History(ctx context.Context, jobID string, limit int) ([]*model.JobExecution, error) {
	if jobID != "" {
		if _, ok := r.jobs[jobID]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownJob, jobID)
		}
	}
	return r.store.JobExecutions(ctx, jobID, limit)
}

// RunNow runs a job immediately and returns its recorded execution. A job
// failure is recorded on the execution, not returned as an error.
func (r *Runner) RunNow(ctx context.Context, jobID string) (*model.JobExecution, error) {
	j, ok := r.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, jobID)
	}
	log.Printf("Jobs: manually triggered %s", jobID)
	return r.execute(ctx, j)
}

func (r *Runner) scheduled(j *job) {
	r.mu.Lock()
	ctx := r.baseCtx
	r.mu.Unlock()

	if _, err := r.execute(ctx, j); err != nil {
		log.Printf("Jobs: %s: %v", j.id, err)
	}
}

// execute records a JobExecution around one run of j. Overlapping runs of
// the same job are rejected.
func (r *Runner) execute(ctx context.Context, j *job) (*model.JobExecution, error) {
	if !j.running.TryLock() {
		return nil, fmt.Errorf("%w: %s", ErrJobRunning, j.id)
	}
	defer j.running.Unlock()

	exec, err := r.store.CreateJobExecution(ctx, j.id, j.name)
	if err != nil {
		return nil, fmt.Errorf("recording %s start: %w", j.id, err)
	}

	start := time.Now()
	result, runErr := j.run(ctx)

	status, errMsg := model.JobSuccess, ""
	if runErr != nil {
		status, errMsg = model.JobError, runErr.Error()
		log.Printf("Jobs: %s failed after %s: %v", j.id, time.Since(start).Round(time.Millisecond), runErr)
	} else {
		log.Printf("Jobs: %s completed in %s: %v", j.id, time.Since(start).Round(time.Millisecond), result)
	}

	// Record the outcome even when ctx was cancelled mid-run.
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := r.store.FinishJobExecution(finishCtx, exec.ID, status, errMsg, result); err != nil {
		return nil, fmt.Errorf("recording %s outcome: %w", j.id, err)
	}

	history, err := r.store.JobExecutions(finishCtx, j.id, 0)
	if err != nil {
		return nil, err
	}
	for _, e := range history {
		if e.ID == exec.ID {
			return e, nil
		}
	}
	return exec, nil
}

// refreshListings re-scrapes every active listing and records price changes.
func (r *Runner) refreshListings(ctx context.Context) (map[string]interface{}, error) {
	listings, err := r.store.ActiveListings(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading active listings: %w", err)
	}

	var mu sync.Mutex
	refreshed, changed := 0, 0

	pool := concurrent.NewPool(r.poolCfg)
	results := concurrent.Run(ctx, pool, listings, func(ctx context.Context, l *model.Listing) error {
		if l.URL == "" {
			return fmt.Errorf("listing %d has no URL", l.ID)
		}
		scraped, err := r.scraper.ScrapeListing(ctx, l.URL)
		if err != nil {
			return fmt.Errorf("listing %d: %w", l.ID, err)
		}

		priceChanged := l.Price == nil || *l.Price != scraped.Price
		if priceChanged {
			if err := r.store.UpdateListingPrice(ctx, l.ID, scraped.Price); err != nil {
				return fmt.Errorf("listing %d: updating price: %w", l.ID, err)
			}
		}

		mu.Lock()
		refreshed++
		if priceChanged {
			changed++
		}
		mu.Unlock()
		return nil
	})

	failed := concurrent.Errors(results)
	for _, f := range failed {
		log.Printf("Jobs: refresh: %v", f.Error)
	}

	data := map[string]interface{}{
		"total_listings": len(listings),
		"refreshed":      refreshed,
		"price_changes":  changed,
		"errors":         len(failed),
	}
	addPoolMetrics(data, pool.GetMetrics())
	return data, nil
}

// scrapeCompetitorPrices stores the most similar items found for every
// active listing with a title.
func (r *Runner) scrapeCompetitorPrices(ctx context.Context) (map[string]interface{}, error) {
	listings, err := r.store.ActiveListings(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading active listings: %w", err)
	}

	var titled []*model.Listing
	for _, l := range listings {
		if l.Title != "" {
			titled = append(titled, l)
		}
	}

	var mu sync.Mutex
	found := 0

	pool := concurrent.NewPool(r.poolCfg)
	results := concurrent.Run(ctx, pool, titled, func(_ context.Context, l *model.Listing) error {
		// Searches queue on limiters shared with the refresh job, so they are
		// bounded by the job context and the HTTP timeout, not the listing deadline.
		items := r.finder.FindSimilarItems(ctx, l.Title, l.Category, l.Brand, r.results)

		storeCtx, cancel := context.WithTimeout(ctx, r.poolCfg.Timeout)
		defer cancel()

		scrapedAt := r.now()
		stored := 0
		for _, item := range items {
			err := r.store.InsertCompetitorPrice(storeCtx, &model.CompetitorPrice{
				ListingID:       l.ID,
				Platform:        item.Source,
				URL:             item.URL,
				Title:           item.Title,
				Price:           item.Price,
				SimilarityScore: item.SimilarityScore,
				ScrapedAt:       scrapedAt,
			})
			if err != nil {
				return fmt.Errorf("listing %d: storing competitor price: %w", l.ID, err)
			}
			stored++
		}

		mu.Lock()
		found += stored
		mu.Unlock()
		return nil
	})

	failed := concurrent.Errors(results)
	for _, f := range failed {
		log.Printf("Jobs: competitor prices: %v", f.Error)
	}

	data := map[string]interface{}{
		"total_listings":          len(listings),
		"total_competitors_found": found,
		"errors":                  len(failed),
	}
	addPoolMetrics(data, pool.GetMetrics())
	return data, nil
}

// retryableFetch retries transport failures and 5xx responses. Cancellation
// and client errors are final.
func retryableFetch(err error, _ int) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var fe *marketplace.FetchError
	if !errors.As(err, &fe) {
		return false
	}
	return fe.StatusCode == 0 || fe.StatusCode >= 500
}

func addPoolMetrics(data map[string]interface{}, m concurrent.Metrics) {
	data["retries"] = m.Retries
	data["avg_item_ms"] = m.AverageLatency().Milliseconds()
}

// cleanup deletes data older than the configured retention.
func (r *Runner) cleanup(ctx context.Context) (map[string]interface{}, error) {
	now := r.now()

	competitorsDeleted, err := r.store.DeleteCompetitorPricesOlderThan(ctx, now.Add(-r.retention.CompetitorPrices))
	if err != nil {
		return nil, fmt.Errorf("deleting competitor prices: %w", err)
	}

	historyDeleted, err := r.store.DeletePriceHistoryOlderThan(ctx, now.Add(-r.retention.PriceHistory))
	if err != nil {
		return nil, fmt.Errorf("deleting price history: %w", err)
	}

	listingsDeleted, err := r.store.DeleteSoldListingsOlderThan(ctx, now.Add(-r.retention.SoldListings))
	if err != nil {
		return nil, fmt.Errorf("deleting sold listings: %w", err)
	}

	return map[string]interface{}{
		"competitor_prices_deleted": competitorsDeleted,
		"price_history_deleted":     historyDeleted,
		"listings_deleted":          listingsDeleted,
	}, nil
}

// JobIDs returns the registered job IDs, sorted
func (r *Runner) JobIDs() []string {
	ids := append([]string(nil), r.order...)
	sort.Strings(ids)
	return ids
}
