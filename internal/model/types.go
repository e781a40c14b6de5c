package model

import (
	"strings"
	"time"
)

// Source identifies the marketplace a candidate item came from.
type Source string

const (
	SourceOLX    Source = "olx"
	SourceVinted Source = "vinted"
)

// CandidateItem is one marketplace search result considered as a price comparable.
// Values are built fresh per search and never mutated after scoring.
type CandidateItem struct {
	Source          Source  `json:"platform"`
	Title           string  `json:"title"`
	Price           float64 `json:"price"`
	URL             string  `json:"url"`
	SimilarityScore float64 `json:"similarity_score"`
}

// Condition is the physical condition of an item being priced.
type Condition string

const (
	ConditionNew     Condition = "new"
	ConditionLikeNew Condition = "like_new"
	ConditionGood    Condition = "good"
	ConditionFair    Condition = "fair"
	ConditionPoor    Condition = "poor"
)

// conditionWeights maps a condition to the fraction of the sorted price
// sample used as the suggested price.
var conditionWeights = map[Condition]float64{
	ConditionNew:     0.9,
	ConditionLikeNew: 0.8,
	ConditionGood:    0.6,
	ConditionFair:    0.4,
	ConditionPoor:    0.2,
}

// AllConditions lists conditions from best to worst.
var AllConditions = []Condition{
	ConditionNew,
	ConditionLikeNew,
	ConditionGood,
	ConditionFair,
	ConditionPoor,
}

// ParseCondition maps free text to a Condition. Unknown or empty input is good.
func ParseCondition(s string) Condition {
	c := Condition(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := conditionWeights[c]; ok {
		return c
	}
	return ConditionGood
}

// Weight returns the percentile weight for the condition.
func (c Condition) Weight() float64 {
	if w, ok := conditionWeights[c]; ok {
		return w
	}
	return conditionWeights[ConditionGood]
}

// Valid reports whether c is one of the known conditions.
func (c Condition) Valid() bool {
	_, ok := conditionWeights[c]
	return ok
}

// PriceSuggestion is the result of the price suggestion pipeline.
// A zero sample leaves every price nil so callers can tell "not enough data"
// apart from a real price.
type PriceSuggestion struct {
	SuggestedPrice  *float64        `json:"suggested_price"`
	MinPrice        *float64        `json:"min_price"`
	MaxPrice        *float64        `json:"max_price"`
	MedianPrice     *float64        `json:"median_price"`
	SampleSize      int             `json:"sample_size"`
	TopSimilarItems []CandidateItem `json:"similar_items"`
}

// Clone returns a deep copy that shares no pointers or backing arrays with p.
func (p PriceSuggestion) Clone() PriceSuggestion {
	c := p
	c.SuggestedPrice = cloneFloat(p.SuggestedPrice)
	c.MinPrice = cloneFloat(p.MinPrice)
	c.MaxPrice = cloneFloat(p.MaxPrice)
	c.MedianPrice = cloneFloat(p.MedianPrice)
	if p.TopSimilarItems != nil {
		c.TopSimilarItems = append(make([]CandidateItem, 0, len(p.TopSimilarItems)), p.TopSimilarItems...)
	}
	return c
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

// Empty reports whether the suggestion was built from no samples.
func (p PriceSuggestion) Empty() bool {
	return p.SampleSize == 0
}

// NormalizedListing is a single marketplace listing extracted from its detail page.
type NormalizedListing struct {
	Platform    Source            `json:"platform"`
	URL         string            `json:"url"`
	ExternalID  string            `json:"external_id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Price       float64           `json:"price"`
	Currency    string            `json:"currency"`
	Condition   Condition         `json:"condition"`
	Category    string            `json:"category,omitempty"`
	Brand       string            `json:"brand,omitempty"`
	Images      map[string]string `json:"images,omitempty"`
}

// ListingStatus is the lifecycle state of a tracked listing.
type ListingStatus string

const (
	ListingActive ListingStatus = "active"
	ListingSold   ListingStatus = "sold"
)

// Listing is an item the user is reselling.
type Listing struct {
	ID          int64         `json:"id"`
	Platform    Source        `json:"platform"`
	ExternalID  string        `json:"external_id"`
	URL         string        `json:"url"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Price       *float64      `json:"price,omitempty"`
	Currency    string        `json:"currency"`
	Category    string        `json:"category"`
	Brand       string        `json:"brand"`
	Condition   Condition     `json:"condition"`
	Status      ListingStatus `json:"status"`
	SalePrice   *float64      `json:"sale_price,omitempty"`
	InitialCost *float64      `json:"initial_cost,omitempty"`
	PostedAt    *time.Time    `json:"posted_at,omitempty"`
	SoldAt      *time.Time    `json:"sold_at,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// PriceHistory records one observed price of a listing.
type PriceHistory struct {
	ID         int64     `json:"id"`
	ListingID  int64     `json:"listing_id"`
	Price      float64   `json:"price"`
	RecordedAt time.Time `json:"recorded_at"`
}

// CompetitorPrice is a candidate item persisted against one of our listings.
type CompetitorPrice struct {
	ID              int64     `json:"id"`
	ListingID       int64     `json:"listing_id"`
	Platform        Source    `json:"platform"`
	URL             string    `json:"url"`
	Title           string    `json:"title"`
	Price           float64   `json:"price"`
	SimilarityScore float64   `json:"similarity_score"`
	ScrapedAt       time.Time `json:"scraped_at"`
}

// JobStatus is the outcome of a background job execution.
type JobStatus string

const (
	JobRunning JobStatus = "running"
	JobSuccess JobStatus = "success"
	JobError   JobStatus = "error"
)

// JobExecution is one run of a scheduled job.
type JobExecution struct {
	ID           int64                  `json:"id"`
	JobID        string                 `json:"job_id"`
	JobName      string                 `json:"job_name"`
	Status       JobStatus              `json:"status"`
	StartedAt    time.Time              `json:"started_at"`
	CompletedAt  *time.Time             `json:"completed_at,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	ResultData   map[string]interface{} `json:"result_data,omitempty"`
}
