package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/guarzo/olxbuddy/internal/model"
	"github.com/guarzo/olxbuddy/internal/store"
)

// Period is the bucket size of a time series
type Period string

const (
	Daily   Period = "daily"
	Weekly  Period = "weekly"
	Monthly Period = "monthly"
)

// MaxTrendDays bounds how far back a time series may look
const MaxTrendDays = 365

// ParsePeriod accepts daily, weekly or monthly
func ParsePeriod(s string) (Period, error) {
	switch p := Period(s); p {
	case Daily, Weekly, Monthly:
		return p, nil
	}
	return "", fmt.Errorf("unknown period %q (want daily, weekly or monthly)", s)
}

// label names the bucket t falls in. Weeks start on Monday and are labelled
// by that date; months are labelled YYYY-MM.
func (p Period) label(t time.Time) string {
	t = t.UTC()
	switch p {
	case Weekly:
		offset := (int(t.Weekday()) + 6) % 7
		return t.AddDate(0, 0, -offset).Format("2006-01-02")
	case Monthly:
		return t.Format("2006-01")
	default:
		return t.Format("2006-01-02")
	}
}

// SalesPoint is the sales of one period
type SalesPoint struct {
	Period  string  `json:"period"`
	Sales   int     `json:"sales_count"`
	Revenue float64 `json:"revenue"`
}

// CreatedPoint is the number of listings created in one period
type CreatedPoint struct {
	Period   string `json:"period"`
	Listings int    `json:"listings_count"`
}

// Trends holds both series over the same window
type Trends struct {
	Period          Period         `json:"period"`
	Days            int            `json:"days"`
	Sales           []SalesPoint   `json:"sales"`
	ListingsCreated []CreatedPoint `json:"listings_created"`
}

// SalesOverTime buckets sold listings by SoldAt, oldest period first.
// Only sales within the last days days count.
func SalesOverTime(listings []*model.Listing, period Period, days int, now time.Time) []SalesPoint {
	cutoff := now.AddDate(0, 0, -days)
	buckets := make(map[string]*SalesPoint)

	for _, l := range listings {
		if l.Status != model.ListingSold || l.SoldAt == nil || l.SoldAt.Before(cutoff) {
			continue
		}
		key := period.label(*l.SoldAt)
		b, ok := buckets[key]
		if !ok {
			b = &SalesPoint{Period: key}
			buckets[key] = b
		}
		b.Sales++
		if l.SalePrice != nil {
			b.Revenue += *l.SalePrice
		}
	}

	points := make([]SalesPoint, 0, len(buckets))
	for _, b := range buckets {
		b.Revenue = round2(b.Revenue)
		points = append(points, *b)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Period < points[j].Period })
	return points
}

// ListingsCreatedOverTime buckets listings by CreatedAt, oldest period first
func ListingsCreatedOverTime(listings []*model.Listing, period Period, days int, now time.Time) []CreatedPoint {
	cutoff := now.AddDate(0, 0, -days)
	counts := make(map[string]int)

	for _, l := range listings {
		if l.CreatedAt.IsZero() || l.CreatedAt.Before(cutoff) {
			continue
		}
		counts[period.label(l.CreatedAt)]++
	}

	points := make([]CreatedPoint, 0, len(counts))
	for key, n := range counts {
		points = append(points, CreatedPoint{Period: key, Listings: n})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Period < points[j].Period })
	return points
}

// BuildTrends loads every listing and computes both series. days must be
// between 1 and MaxTrendDays.
func BuildTrends(ctx context.Context, st store.ListingStore, period Period, days int, now time.Time) (*Trends, error) {
	if days < 1 || days > MaxTrendDays {
		return nil, fmt.Errorf("days must be between 1 and %d, got %d", MaxTrendDays, days)
	}
	listings, err := st.ListingsByStatus(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("loading listings: %w", err)
	}
	return &Trends{
		Period:          period,
		Days:            days,
		Sales:           SalesOverTime(listings, period, days, now),
		ListingsCreated: ListingsCreatedOverTime(listings, period, days, now),
	}, nil
}
