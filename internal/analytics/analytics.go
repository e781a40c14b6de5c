// Package analytics summarizes sales and inventory across tracked listings.
package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/guarzo/olxbuddy/internal/model"
	"github.com/guarzo/olxbuddy/internal/store"
)

// Summary is the overall sales picture
type Summary struct {
	TotalListings  int     `json:"total_listings"`
	ActiveListings int     `json:"active_listings"`
	SoldListings   int     `json:"sold_listings"`
	TotalRevenue   float64 `json:"total_revenue"`
	AvgSalePrice   float64 `json:"avg_sale_price"`
	TotalProfit    float64 `json:"total_profit"`
	InventoryValue float64 `json:"inventory_value"`
}

// CategoryValue is the active inventory of one category
type CategoryValue struct {
	Category   string  `json:"category"`
	TotalValue float64 `json:"total_value"`
	Items      int     `json:"items_count"`
	AvgPrice   float64 `json:"avg_price"`
}

// Inventory is the value of what is still for sale
type Inventory struct {
	TotalValue float64 `json:"total_value"`
	TotalItems int     `json:"total_items"`
	// AvgDaysToSell is nil when nothing has sold yet
	AvgDaysToSell *float64        `json:"avg_time_to_sell_days"`
	ByCategory    []CategoryValue `json:"by_category"`
}

// GroupSales counts sales of one category or brand
type GroupSales struct {
	Name    string  `json:"name"`
	Sales   int     `json:"sales_count"`
	Revenue float64 `json:"total_revenue"`
}

// ItemProfit is one sold listing with a known cost
type ItemProfit struct {
	ListingID int64   `json:"id"`
	Title     string  `json:"title"`
	Category  string  `json:"category,omitempty"`
	Brand     string  `json:"brand,omitempty"`
	SalePrice float64 `json:"sale_price"`
	Cost      float64 `json:"initial_cost"`
	Profit    float64 `json:"profit"`
}

// FastSale is one sold listing with a known posting date
type FastSale struct {
	ListingID  int64     `json:"id"`
	Title      string    `json:"title"`
	Category   string    `json:"category,omitempty"`
	Brand      string    `json:"brand,omitempty"`
	PostedAt   time.Time `json:"posted_at"`
	SoldAt     time.Time `json:"sold_at"`
	DaysToSell float64   `json:"days_to_sell"`
}

// BestSellers ranks what sells
type BestSellers struct {
	Categories []GroupSales `json:"best_categories"`
	Brands     []GroupSales `json:"best_brands"`
	Profitable []ItemProfit `json:"most_profitable"`
	Fastest    []FastSale   `json:"fastest_selling"`
}

// Report bundles every view
type Report struct {
	Summary     Summary     `json:"summary"`
	Inventory   Inventory   `json:"inventory"`
	BestSellers BestSellers `json:"best_sellers"`
}

// Summarize totals listings by status. Profit counts only sold listings
// with both a sale price and an initial cost.
func Summarize(listings []*model.Listing) Summary {
	var s Summary
	sold := 0
	for _, l := range listings {
		switch l.Status {
		case model.ListingActive:
			s.ActiveListings++
			if l.Price != nil {
				s.InventoryValue += *l.Price
			}
		case model.ListingSold:
			s.SoldListings++
			if l.SalePrice == nil {
				continue
			}
			sold++
			s.TotalRevenue += *l.SalePrice
			if l.InitialCost != nil {
				s.TotalProfit += *l.SalePrice - *l.InitialCost
			}
		}
	}
	s.TotalListings = s.ActiveListings + s.SoldListings
	if sold > 0 {
		s.AvgSalePrice = s.TotalRevenue / float64(sold)
	}

	s.TotalRevenue = round2(s.TotalRevenue)
	s.AvgSalePrice = round2(s.AvgSalePrice)
	s.TotalProfit = round2(s.TotalProfit)
	s.InventoryValue = round2(s.InventoryValue)
	return s
}

// InventoryValue breaks active, priced listings down by category, most
// valuable first. Time to sell runs from PostedAt, or CreatedAt when the
// posting date is unknown.
func InventoryValue(listings []*model.Listing) Inventory {
	inv := Inventory{ByCategory: []CategoryValue{}}
	byCategory := make(map[string]*CategoryValue)

	var sellDays float64
	soldCount := 0

	for _, l := range listings {
		switch {
		case l.Status == model.ListingActive && l.Price != nil:
			inv.TotalValue += *l.Price
			inv.TotalItems++
			if l.Category == "" {
				continue
			}
			cv, ok := byCategory[l.Category]
			if !ok {
				cv = &CategoryValue{Category: l.Category}
				byCategory[l.Category] = cv
			}
			cv.TotalValue += *l.Price
			cv.Items++

		case l.Status == model.ListingSold && l.SoldAt != nil:
			posted := l.CreatedAt
			if l.PostedAt != nil {
				posted = *l.PostedAt
			}
			if posted.IsZero() {
				continue
			}
			sellDays += l.SoldAt.Sub(posted).Hours() / 24
			soldCount++
		}
	}

	for _, cv := range byCategory {
		cv.AvgPrice = round2(cv.TotalValue / float64(cv.Items))
		cv.TotalValue = round2(cv.TotalValue)
		inv.ByCategory = append(inv.ByCategory, *cv)
	}
	sort.Slice(inv.ByCategory, func(i, j int) bool {
		if inv.ByCategory[i].TotalValue != inv.ByCategory[j].TotalValue {
			return inv.ByCategory[i].TotalValue > inv.ByCategory[j].TotalValue
		}
		return inv.ByCategory[i].Category < inv.ByCategory[j].Category
	})

	inv.TotalValue = round2(inv.TotalValue)
	if soldCount > 0 {
		avg := math.Round(sellDays/float64(soldCount)*10) / 10
		inv.AvgDaysToSell = &avg
	}
	return inv
}

// Best ranks sold categories and brands by sales count, items by profit
// and items by how quickly they sold, keeping at most limit entries of
// each. Only listings with a posting date take part in the speed ranking.
func Best(listings []*model.Listing, limit int) BestSellers {
	categories := make(map[string]*GroupSales)
	brands := make(map[string]*GroupSales)
	profitable := []ItemProfit{}
	fastest := []FastSale{}

	add := func(groups map[string]*GroupSales, name string, revenue float64) {
		if name == "" {
			return
		}
		g, ok := groups[name]
		if !ok {
			g = &GroupSales{Name: name}
			groups[name] = g
		}
		g.Sales++
		g.Revenue += revenue
	}

	for _, l := range listings {
		if l.Status != model.ListingSold {
			continue
		}
		revenue := 0.0
		if l.SalePrice != nil {
			revenue = *l.SalePrice
		}
		add(categories, l.Category, revenue)
		add(brands, l.Brand, revenue)

		if l.SalePrice != nil && l.InitialCost != nil {
			profitable = append(profitable, ItemProfit{
				ListingID: l.ID,
				Title:     l.Title,
				Category:  l.Category,
				Brand:     l.Brand,
				SalePrice: *l.SalePrice,
				Cost:      *l.InitialCost,
				Profit:    round2(*l.SalePrice - *l.InitialCost),
			})
		}

		if l.PostedAt != nil && l.SoldAt != nil {
			fastest = append(fastest, FastSale{
				ListingID:  l.ID,
				Title:      l.Title,
				Category:   l.Category,
				Brand:      l.Brand,
				PostedAt:   *l.PostedAt,
				SoldAt:     *l.SoldAt,
				DaysToSell: math.Round(l.SoldAt.Sub(*l.PostedAt).Hours()/24*10) / 10,
			})
		}
	}

	sort.SliceStable(profitable, func(i, j int) bool { return profitable[i].Profit > profitable[j].Profit })
	sort.SliceStable(fastest, func(i, j int) bool {
		return fastest[i].SoldAt.Sub(fastest[i].PostedAt) < fastest[j].SoldAt.Sub(fastest[j].PostedAt)
	})
	return BestSellers{
		Categories: rankGroups(categories, limit),
		Brands:     rankGroups(brands, limit),
		Profitable: truncate(profitable, limit),
		Fastest:    truncate(fastest, limit),
	}
}

func rankGroups(groups map[string]*GroupSales, limit int) []GroupSales {
	ranked := make([]GroupSales, 0, len(groups))
	for _, g := range groups {
		g.Revenue = round2(g.Revenue)
		ranked = append(ranked, *g)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Sales != ranked[j].Sales {
			return ranked[i].Sales > ranked[j].Sales
		}
		return ranked[i].Name < ranked[j].Name
	})
	return truncate(ranked, limit)
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Build loads every listing and computes all views
func Build(ctx context.Context, st store.ListingStore, limit int) (*Report, error) {
	listings, err := st.ListingsByStatus(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("loading listings: %w", err)
	}
	return &Report{
		Summary:     Summarize(listings),
		Inventory:   InventoryValue(listings),
		BestSellers: Best(listings, limit),
	}, nil
}
