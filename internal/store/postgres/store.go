package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/guarzo/olxbuddy/internal/model"
	"github.com/guarzo/olxbuddy/internal/store"
)

// Store implements store.Store using PostgreSQL.
type Store struct {
	pool *Pool
}

// NewStore creates a new Store.
func NewStore(pool *Pool) *Store {
	return &Store{pool: pool}
}

// Open connects to dsn, applies migrations and returns a ready store.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := NewPool(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return NewStore(pool), nil
}

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Close closes the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

const listingColumns = `id, platform, COALESCE(external_id, ''), url, title, description, price, currency,
	category, brand, condition, status, sale_price, initial_cost, posted_at, sold_at, created_at, updated_at`

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// CreateListing inserts the listing and records its initial price.
// Returns ErrDuplicateKey if the platform and external ID are already tracked.
func (s *Store) CreateListing(ctx context.Context, l *model.Listing) error {
	if l == nil || l.Title == "" || l.Platform == "" {
		return store.ErrInvalidInput
	}
	if l.Status == "" {
		l.Status = model.ListingActive
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create listing: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO listings (
			platform, external_id, url, title, description, price, currency, category,
			brand, condition, status, sale_price, initial_cost, posted_at, sold_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id, created_at, updated_at
	`
	err = tx.QueryRow(ctx, query,
		string(l.Platform),
		nullable(l.ExternalID),
		l.URL,
		l.Title,
		l.Description,
		l.Price,
		l.Currency,
		l.Category,
		l.Brand,
		string(l.Condition),
		string(l.Status),
		l.SalePrice,
		l.InitialCost,
		l.PostedAt,
		l.SoldAt,
	).Scan(&l.ID, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return store.ErrDuplicateKey
		}
		return fmt.Errorf("insert listing: %w", err)
	}

	if l.Price != nil {
		if _, err := tx.Exec(ctx, `INSERT INTO price_history (listing_id, price) VALUES ($1, $2)`, l.ID, *l.Price); err != nil {
			return fmt.Errorf("insert initial price history: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create listing: %w", err)
	}
	return nil
}

// GetListing retrieves a listing by its ID. Returns ErrNotFound if not exists.
func (s *Store) GetListing(ctx context.Context, id int64) (*model.Listing, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = $1`, id)
	l, err := scanListing(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get listing: %w", err)
	}
	return l, nil
}

func (s *Store) ActiveListings(ctx context.Context) ([]*model.Listing, error) {
	return s.ListingsByStatus(ctx, model.ListingActive)
}

// ListingsByStatus treats an empty status as "any".
func (s *Store) ListingsByStatus(ctx context.Context, status model.ListingStatus) ([]*model.Listing, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+listingColumns+` FROM listings WHERE ($1 = '' OR status = $1) ORDER BY id ASC`,
		string(status))
	if err != nil {
		return nil, fmt.Errorf("get listings: %w", err)
	}
	defer rows.Close()

	var result []*model.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		result = append(result, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate listings: %w", err)
	}
	return result, nil
}

// UpdateListingPrice sets the price and appends a history entry in one transaction.
func (s *Store) UpdateListingPrice(ctx context.Context, id int64, price float64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin update price: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `UPDATE listings SET price = $2, updated_at = now() WHERE id = $1`, id, price)
	if err != nil {
		return fmt.Errorf("update listing price: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}

	if _, err := tx.Exec(ctx, `INSERT INTO price_history (listing_id, price) VALUES ($1, $2)`, id, price); err != nil {
		return fmt.Errorf("insert price history: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit update price: %w", err)
	}
	return nil
}

func (s *Store) MarkListingSold(ctx context.Context, id int64, salePrice float64, soldAt time.Time) error {
	var soldAtArg interface{}
	if !soldAt.IsZero() {
		soldAtArg = soldAt
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE listings
		SET status = $2, sale_price = $3, sold_at = COALESCE($4, now()), updated_at = now()
		WHERE id = $1
	`, id, string(model.ListingSold), salePrice, soldAtArg)
	if err != nil {
		return fmt.Errorf("mark listing sold: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) PriceHistory(ctx context.Context, listingID int64, limit int) ([]*model.PriceHistory, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, listing_id, price, recorded_at
		FROM price_history
		WHERE listing_id = $1
		ORDER BY recorded_at DESC, id DESC
		LIMIT $2
	`, listingID, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("get price history: %w", err)
	}
	defer rows.Close()

	var result []*model.PriceHistory
	for rows.Next() {
		var h model.PriceHistory
		if err := rows.Scan(&h.ID, &h.ListingID, &h.Price, &h.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan price history: %w", err)
		}
		result = append(result, &h)
	}
	return result, rows.Err()
}

// DeleteSoldListingsOlderThan relies on ON DELETE CASCADE for history and competitor prices.
func (s *Store) DeleteSoldListingsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM listings WHERE status = $1 AND sold_at < $2`,
		string(model.ListingSold), cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete sold listings: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) DeletePriceHistoryOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM price_history WHERE recorded_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete price history: %w", err)
	}
	return tag.RowsAffected(), nil
}

// InsertCompetitorPrice returns ErrNotFound if the listing does not exist.
func (s *Store) InsertCompetitorPrice(ctx context.Context, p *model.CompetitorPrice) error {
	if p == nil || p.URL == "" {
		return store.ErrInvalidInput
	}

	var scrapedAt interface{}
	if !p.ScrapedAt.IsZero() {
		scrapedAt = p.ScrapedAt
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO competitor_prices (
			listing_id, platform, competitor_url, competitor_title, price, similarity_score, scraped_at
		) VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, now()))
		RETURNING id, scraped_at
	`,
		p.ListingID,
		string(p.Platform),
		p.URL,
		p.Title,
		p.Price,
		p.SimilarityScore,
		scrapedAt,
	).Scan(&p.ID, &p.ScrapedAt)
	if err != nil {
		if isForeignKeyError(err) {
			return store.ErrNotFound
		}
		return fmt.Errorf("insert competitor price: %w", err)
	}
	return nil
}

func (s *Store) CompetitorPrices(ctx context.Context, listingID int64, limit int) ([]*model.CompetitorPrice, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, listing_id, platform, competitor_url, competitor_title, price, similarity_score, scraped_at
		FROM competitor_prices
		WHERE listing_id = $1
		ORDER BY scraped_at DESC, id DESC
		LIMIT $2
	`, listingID, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("get competitor prices: %w", err)
	}
	defer rows.Close()

	var result []*model.CompetitorPrice
	for rows.Next() {
		var c model.CompetitorPrice
		var platform string
		if err := rows.Scan(&c.ID, &c.ListingID, &platform, &c.URL, &c.Title, &c.Price, &c.SimilarityScore, &c.ScrapedAt); err != nil {
			return nil, fmt.Errorf("scan competitor price: %w", err)
		}
		c.Platform = model.Source(platform)
		result = append(result, &c)
	}
	return result, rows.Err()
}

func (s *Store) DeleteCompetitorPricesOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM competitor_prices WHERE scraped_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete competitor prices: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) CreateJobExecution(ctx context.Context, jobID, jobName string) (*model.JobExecution, error) {
	if jobID == "" {
		return nil, store.ErrInvalidInput
	}

	exec := &model.JobExecution{JobID: jobID, JobName: jobName, Status: model.JobRunning}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO job_executions (job_id, job_name, status)
		VALUES ($1, $2, $3)
		RETURNING id, started_at
	`, jobID, jobName, string(model.JobRunning)).Scan(&exec.ID, &exec.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("insert job execution: %w", err)
	}
	return exec, nil
}

func (s *Store) FinishJobExecution(ctx context.Context, id int64, status model.JobStatus, errMsg string, result map[string]interface{}) error {
	var resultArg interface{}
	if len(result) > 0 {
		resultArg = result
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE job_executions
		SET status = $2,
		    completed_at = now(),
		    error_message = CASE WHEN $3 = '' THEN error_message ELSE $3 END,
		    result_data = COALESCE($4::jsonb, result_data)
		WHERE id = $1
	`, id, string(status), errMsg, resultArg)
	if err != nil {
		return fmt.Errorf("finish job execution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) JobExecutions(ctx context.Context, jobID string, limit int) ([]*model.JobExecution, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, job_id, job_name, status, started_at, completed_at, error_message, result_data
		FROM job_executions
		WHERE $1 = '' OR job_id = $1
		ORDER BY started_at DESC, id DESC
		LIMIT $2
	`, jobID, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("get job executions: %w", err)
	}
	defer rows.Close()

	var result []*model.JobExecution
	for rows.Next() {
		var e model.JobExecution
		var status string
		if err := rows.Scan(&e.ID, &e.JobID, &e.JobName, &status, &e.StartedAt, &e.CompletedAt, &e.ErrorMessage, &e.ResultData); err != nil {
			return nil, fmt.Errorf("scan job execution: %w", err)
		}
		e.Status = model.JobStatus(status)
		result = append(result, &e)
	}
	return result, rows.Err()
}

func scanListing(row pgx.Row) (*model.Listing, error) {
	var l model.Listing
	var platform, condition, status string
	err := row.Scan(
		&l.ID,
		&platform,
		&l.ExternalID,
		&l.URL,
		&l.Title,
		&l.Description,
		&l.Price,
		&l.Currency,
		&l.Category,
		&l.Brand,
		&condition,
		&status,
		&l.SalePrice,
		&l.InitialCost,
		&l.PostedAt,
		&l.SoldAt,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	l.Platform = model.Source(platform)
	l.Condition = model.Condition(condition)
	l.Status = model.ListingStatus(status)
	return &l, nil
}

// sqlLimit maps "no limit" (<= 0) to NULL, which LIMIT treats as ALL
func sqlLimit(limit int) interface{} {
	if limit <= 0 {
		return nil
	}
	return limit
}
