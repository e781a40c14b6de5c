// Command olxbuddy prices second-hand items against OLX and Vinted,
// imports listings and runs the background refresh jobs.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/guarzo/olxbuddy/internal/analytics"
	"github.com/guarzo/olxbuddy/internal/competitors"
	"github.com/guarzo/olxbuddy/internal/config"
	"github.com/guarzo/olxbuddy/internal/describe"
	"github.com/guarzo/olxbuddy/internal/jobs"
	"github.com/guarzo/olxbuddy/internal/marketplace"
	"github.com/guarzo/olxbuddy/internal/model"
	"github.com/guarzo/olxbuddy/internal/pricing"
	"github.com/guarzo/olxbuddy/internal/progress"
	"github.com/guarzo/olxbuddy/internal/ratelimit"
	"github.com/guarzo/olxbuddy/internal/report"
	"github.com/guarzo/olxbuddy/internal/scrape"
	"github.com/guarzo/olxbuddy/internal/store"
	"github.com/guarzo/olxbuddy/internal/store/memory"
	"github.com/guarzo/olxbuddy/internal/store/postgres"
	"github.com/guarzo/olxbuddy/internal/volatility"
)

const usage = `usage: olxbuddy <command> [flags]

commands:
  suggest   suggest a price for an item
  similar   list similar items on OLX and Vinted
  import    scrape listing pages and start tracking them
  listings  list tracked active listings
  history   show a listing's price history and volatility
  sold      mark a listing as sold
  analytics sales and inventory summary
  describe  generate a listing description
  extract   read product details off a product page with AI
  jobs      list background jobs or show their history
  run       run one background job now
  serve     run the background jobs on their schedules
`

// app holds the wired dependencies shared by all commands
type app struct {
	cfg        *config.Config
	store      store.Store
	aggregator *competitors.Aggregator
	engine     *pricing.Engine
	scraper    *scrape.Scraper
	runner     *jobs.Runner
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		log.Fatalf("Startup failed: %v", err)
	}
	defer a.store.Close()

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "suggest":
		err = a.suggest(ctx, args)
	case "similar":
		err = a.similar(ctx, args)
	case "import":
		err = a.importListings(ctx, args)
	case "listings":
		err = a.listings(ctx, args)
	case "history":
		err = a.history(ctx, args)
	case "sold":
		err = a.markSold(ctx, args)
	case "analytics":
		err = a.analytics(ctx, args)
	case "describe":
		err = a.describe(ctx, args)
	case "extract":
		err = a.extract(ctx, args)
	case "jobs":
		err = a.jobs(ctx, args)
	case "run":
		err = a.run(ctx, args)
	case "serve":
		err = a.serve(ctx)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	limiters := ratelimit.NewSet(cfg.ScrapeRateLimit)
	olx, err := marketplace.NewOLXClient(cfg.OLXBaseURL, cfg.ScrapeTimeout, limiters.OLX)
	if err != nil {
		st.Close()
		return nil, err
	}
	vinted, err := marketplace.NewVintedClient(cfg.VintedBaseURL, cfg.ScrapeTimeout, limiters.Vinted)
	if err != nil {
		st.Close()
		return nil, err
	}
	olx.SetDebug(cfg.Debug)
	vinted.SetDebug(cfg.Debug)

	agg := competitors.NewAggregator(olx, vinted)
	agg.SetDebug(cfg.Debug)

	// Detail pages share the OLX limiter so re-scrapes never outpace searches.
	scraper := scrape.NewScraper(cfg.ScrapeTimeout, scrape.WithLimiter(limiters.OLX))

	runner, err := jobs.NewRunner(st, agg, scraper, jobs.Config{
		Retention: jobs.Retention{
			CompetitorPrices: days(cfg.CompetitorRetentionDays),
			PriceHistory:     days(cfg.PriceHistoryRetentionDays),
			SoldListings:     days(cfg.SoldListingRetentionDays),
		},
		ListingTimeout: 2 * cfg.ScrapeTimeout,
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	return &app{
		cfg:        cfg,
		store:      st,
		aggregator: agg,
		engine:     pricing.NewEngine(agg, cfg.SuggestionCacheTTL),
		scraper:    scraper,
		runner:     runner,
	}, nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		log.Println("Store: DATABASE_URL not set, using in-memory store")
		return memory.NewStore(), nil
	}
	st, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	return st, nil
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) suggest(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("suggest", flag.ExitOnError)
	query := fs.String("q", "", "search query")
	category := fs.String("category", "", "category filter")
	brand := fs.String("brand", "", "brand filter")
	condition := fs.String("condition", "good", "new, like_new, good, fair or poor")
	fs.Parse(args)

	if strings.TrimSpace(*query) == "" {
		return errors.New("-q is required")
	}
	suggestion := a.engine.SuggestPrice(ctx, pricing.Request{
		Query:     *query,
		Category:  *category,
		Brand:     *brand,
		Condition: model.ParseCondition(*condition),
	})
	return printJSON(suggestion)
}

func (a *app) similar(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("similar", flag.ExitOnError)
	query := fs.String("q", "", "search query")
	category := fs.String("category", "", "category filter")
	brand := fs.String("brand", "", "brand filter")
	limit := fs.Int("n", 20, "maximum results")
	asCSV := fs.Bool("csv", false, "write CSV instead of JSON")
	fs.Parse(args)

	if strings.TrimSpace(*query) == "" {
		return errors.New("-q is required")
	}
	items := a.aggregator.FindSimilarItems(ctx, *query, *category, *brand, *limit)
	if *asCSV {
		return report.WriteCandidates(os.Stdout, items)
	}
	if items == nil {
		items = []model.CandidateItem{}
	}
	return printJSON(items)
}

func (a *app) importListings(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	pageURL := fs.String("url", "", "listing page URL")
	file := fs.String("file", "", "file with one listing URL per line")
	cost := fs.Float64("cost", 0, "what you paid for the item")
	fs.Parse(args)

	if *file == "" {
		if *pageURL == "" {
			return errors.New("-url or -file is required")
		}
		listing, err := a.importListing(ctx, *pageURL, *cost)
		if err != nil {
			return err
		}
		return printJSON(listing)
	}

	urls, err := readURLs(*file)
	if err != nil {
		return err
	}
	bar := progress.New(os.Stderr, "Importing listings", len(urls))
	bar.Start()
	for _, u := range urls {
		if ctx.Err() != nil {
			break
		}
		_, err := a.importListing(ctx, u, 0)
		if err != nil {
			log.Printf("Import: %s: %v", u, err)
		}
		bar.Done(err)
	}
	bar.Finish()

	if _, failed := bar.Counts(); failed > 0 {
		return fmt.Errorf("%d of %d listings failed", failed, len(urls))
	}
	return ctx.Err()
}

// readURLs returns the non-empty, non-comment lines of path
func readURLs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening URL list: %w", err)
	}
	defer f.Close()

	var urls []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			urls = append(urls, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading URL list: %w", err)
	}
	return urls, nil
}

func (a *app) importListing(ctx context.Context, pageURL string, cost float64) (*model.Listing, error) {
	scraped, err := a.scraper.ScrapeListing(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	externalID := scraped.ExternalID
	if externalID == "" {
		if externalID, err = scrape.DeriveExternalID(pageURL); err != nil {
			return nil, err
		}
	}
	platform := scraped.Platform
	if platform == "" {
		platform = model.SourceOLX
	}

	price := scraped.Price
	listing := &model.Listing{
		Platform:    platform,
		ExternalID:  externalID,
		URL:         scraped.URL,
		Title:       scraped.Title,
		Description: scraped.Description,
		Price:       &price,
		Currency:    scraped.Currency,
		Category:    scraped.Category,
		Brand:       scraped.Brand,
		Condition:   scraped.Condition,
		Status:      model.ListingActive,
	}
	if cost > 0 {
		listing.InitialCost = &cost
	}

	if err := a.store.CreateListing(ctx, listing); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil, fmt.Errorf("listing %s/%s is already tracked", platform, externalID)
		}
		return nil, err
	}
	return listing, nil
}

func (a *app) listings(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("listings", flag.ExitOnError)
	asCSV := fs.Bool("csv", false, "write CSV instead of JSON")
	fs.Parse(args)

	active, err := a.store.ActiveListings(ctx)
	if err != nil {
		return err
	}
	if *asCSV {
		return report.WriteListings(os.Stdout, active)
	}
	if active == nil {
		active = []*model.Listing{}
	}
	return printJSON(active)
}

func (a *app) history(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	id := fs.Int64("id", 0, "listing id")
	window := fs.Duration("window", volatility.DefaultWindow, "volatility window")
	limit := fs.Int("n", 50, "maximum history entries")
	fs.Parse(args)

	stats, err := volatility.NewTracker(a.store, *window).ListingStats(ctx, *id)
	if err != nil {
		return err
	}
	history, err := a.store.PriceHistory(ctx, *id, *limit)
	if err != nil {
		return err
	}
	rivals, err := a.store.CompetitorPrices(ctx, *id, *limit)
	if err != nil {
		return err
	}
	return printJSON(map[string]interface{}{
		"stats":       stats,
		"history":     history,
		"competitors": rivals,
	})
}

func (a *app) markSold(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sold", flag.ExitOnError)
	id := fs.Int64("id", 0, "listing id")
	salePrice := fs.Float64("price", 0, "final sale price")
	fs.Parse(args)

	if *salePrice <= 0 {
		return errors.New("-price must be positive")
	}
	if err := a.store.MarkListingSold(ctx, *id, *salePrice, time.Time{}); err != nil {
		return err
	}
	listing, err := a.store.GetListing(ctx, *id)
	if err != nil {
		return err
	}
	return printJSON(listing)
}

func (a *app) analytics(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("analytics", flag.ExitOnError)
	limit := fs.Int("n", 10, "entries per ranking")
	period := fs.String("period", "daily", "time series bucket: daily, weekly or monthly")
	days := fs.Int("days", 30, "time series window in days")
	fs.Parse(args)

	p, err := analytics.ParsePeriod(*period)
	if err != nil {
		return err
	}

	r, err := analytics.Build(ctx, a.store, *limit)
	if err != nil {
		return err
	}
	trends, err := analytics.BuildTrends(ctx, a.store, p, *days, time.Now())
	if err != nil {
		return err
	}
	return printJSON(struct {
		*analytics.Report
		Trends *analytics.Trends `json:"trends"`
	}{r, trends})
}

func (a *app) describe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("describe", flag.ExitOnError)
	category := fs.String("category", "", "item category; suggested from images when empty")
	brand := fs.String("brand", "", "brand")
	condition := fs.String("condition", "good", "item condition")
	size := fs.String("size", "", "size")
	details := fs.String("details", "", "extra details")
	lang := fs.String("lang", "pl", "pl or en")
	productURL := fs.String("url", "", "original product page for extra context")
	fs.Parse(args)

	var images [][]byte
	for _, path := range fs.Args() {
		img, err := describe.LoadImage(path)
		if err != nil {
			return err
		}
		images = append(images, img)
	}

	d := a.describer()

	if *category == "" && len(images) > 0 {
		suggested, err := d.SuggestCategory(ctx, images, *lang)
		if err != nil {
			return err
		}
		*category = suggested
	}

	text, err := d.Describe(ctx, describe.Request{
		Category:  *category,
		Brand:     *brand,
		Condition: *condition,
		Size:      *size,
		Details:   *details,
		Language:  *lang,
	}, *productURL, images)
	if err != nil {
		return err
	}
	return printJSON(map[string]string{"category": *category, "description": text})
}

func (a *app) extract(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	pageURL := fs.String("url", "", "product page URL")
	lang := fs.String("lang", "pl", "pl or en")
	fs.Parse(args)

	if *pageURL == "" {
		return errors.New("-url is required")
	}
	product, err := a.describer().ExtractFromURL(ctx, *pageURL, *lang)
	if err != nil {
		return err
	}
	return printJSON(product)
}

// describer builds the provider chain from the configured API keys
func (a *app) describer() *describe.Describer {
	chain := describe.NewChainFromConfig(describe.ProviderConfig{
		OpenAIAPIKey:    a.cfg.OpenAIAPIKey,
		AnthropicAPIKey: a.cfg.AnthropicAPIKey,
		OllamaBaseURL:   a.cfg.OllamaBaseURL,
	})
	return describe.NewDescriber(chain, marketplace.NewHTTPClient(a.cfg.ScrapeTimeout))
}

func (a *app) jobs(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("jobs", flag.ExitOnError)
	history := fs.String("history", "", "show executions of this job (\"all\" for every job)")
	limit := fs.Int("n", 20, "maximum executions")
	asCSV := fs.Bool("csv", false, "write history as CSV instead of JSON")
	fs.Parse(args)

	if *history == "" {
		// Next run times are only known once the scheduler runs
		a.runner.Start(ctx)
		defer a.runner.Stop()

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSCHEDULE\tNEXT RUN")
		for _, j := range a.runner.Jobs() {
			next := "-"
			if j.NextRun != nil {
				next = j.NextRun.Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", j.ID, j.Name, j.Schedule, next)
		}
		return w.Flush()
	}

	jobID := *history
	if jobID == "all" {
		jobID = ""
	}
	execs, err := a.runner.History(ctx, jobID, *limit)
	if err != nil {
		return err
	}
	if *asCSV {
		return report.WriteJobExecutions(os.Stdout, execs)
	}
	return printJSON(execs)
}

func (a *app) run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	jobID := fs.String("job", "", "job id: "+strings.Join(a.runner.JobIDs(), ", "))
	fs.Parse(args)

	exec, err := a.runner.RunNow(ctx, *jobID)
	if err != nil {
		return err
	}
	return printJSON(exec)
}

func (a *app) serve(ctx context.Context) error {
	a.runner.Start(ctx)
	<-ctx.Done()
	log.Println("Jobs: shutting down")
	a.runner.Stop()
	return nil
}
