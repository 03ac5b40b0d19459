// Package property fetches valuation and attribute data for resolved
// location ids by running one batch scrape job per group of ids.
package property

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/sells-group/address-resolver/internal/model"
	"github.com/sells-group/address-resolver/internal/resilience"
	"github.com/sells-group/address-resolver/pkg/apify"
)

// Config controls job submission and polling.
type Config struct {
	Actor        string
	ListingBase  string
	PollInterval time.Duration
	MaxPolls     int
}

const defaultListingBase = "https://www.realtor.com/realestateandhomes-detail"

// Fetcher resolves location ids to property details.
type Fetcher struct {
	client  apify.Client
	breaker *resilience.CircuitBreaker
	cfg     Config
}

// NewFetcher creates a Fetcher. breaker may be nil.
func NewFetcher(client apify.Client, breaker *resilience.CircuitBreaker, cfg Config) *Fetcher {
	if cfg.ListingBase == "" {
		cfg.ListingBase = defaultListingBase
	}
	cfg.ListingBase = strings.TrimRight(cfg.ListingBase, "/")
	return &Fetcher{client: client, breaker: breaker, cfg: cfg}
}

// DetailURL returns the listing page for id.
func (f *Fetcher) DetailURL(id model.LocationID) string {
	return f.cfg.ListingBase + "/M" + string(id)
}

// Fetch submits one job covering ids and returns the details it produced.
// Ids with no usable item are absent from the map. An error means the job
// itself could not be run or read; the map is then empty.
func (f *Fetcher) Fetch(ctx context.Context, ids []model.LocationID) (map[model.LocationID]model.PropertyDetail, error) {
	out := make(map[model.LocationID]model.PropertyDetail, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	urls := make([]string, 0, len(ids))
	wanted := make(map[model.LocationID]bool, len(ids))
	for _, id := range ids {
		if id == "" || wanted[id] {
			continue
		}
		wanted[id] = true
		urls = append(urls, f.DetailURL(id))
	}

	items, err := f.runJob(ctx, urls)
	if err != nil {
		return out, err
	}

	for _, raw := range items {
		d, ok := decodeItem(raw)
		if !ok || !wanted[d.LocationID] {
			continue
		}
		if _, dup := out[d.LocationID]; dup {
			continue
		}
		if d.URL == "" {
			d.URL = f.DetailURL(d.LocationID)
		}
		out[d.LocationID] = d
	}

	zap.L().Info("property: job finished",
		zap.Int("requested", len(urls)),
		zap.Int("items", len(items)),
		zap.Int("matched", len(out)),
	)
	return out, nil
}

func (f *Fetcher) runJob(ctx context.Context, urls []string) ([]json.RawMessage, error) {
	start := func(ctx context.Context) (*apify.Run, error) {
		return f.client.StartRun(ctx, f.cfg.Actor, apify.NewURLInput(urls))
	}
	var (
		run *apify.Run
		err error
	)
	if f.breaker != nil {
		run, err = resilience.ExecuteVal(ctx, f.breaker, start)
	} else {
		run, err = start(ctx)
	}
	if err != nil {
		return nil, eris.Wrap(err, "property: start job")
	}

	var opts []apify.PollOption
	if f.cfg.PollInterval > 0 {
		opts = append(opts, apify.WithPollInterval(f.cfg.PollInterval))
	}
	if f.cfg.MaxPolls > 0 {
		opts = append(opts, apify.WithMaxPolls(f.cfg.MaxPolls))
	}

	final, err := apify.PollRun(ctx, f.client, run.ID, opts...)
	switch {
	case errors.Is(err, apify.ErrPollsExhausted):
		// Whatever the job produced so far is still usable.
		zap.L().Warn("property: job still running after max polls, reading partial dataset",
			zap.String("run", run.ID))
	case err != nil:
		return nil, eris.Wrap(err, "property: poll job")
	case final.Status != apify.StatusSucceeded:
		zap.L().Warn("property: job ended without success, reading partial dataset",
			zap.String("run", run.ID),
			zap.String("status", final.Status))
	}

	datasetID := run.DefaultDatasetID
	if final != nil && final.DefaultDatasetID != "" {
		datasetID = final.DefaultDatasetID
	}
	if datasetID == "" {
		return nil, eris.Errorf("property: run %s has no dataset", run.ID)
	}

	items, err := f.client.DatasetItems(ctx, datasetID)
	if err != nil {
		return nil, eris.Wrap(err, "property: read dataset")
	}
	return items, nil
}

var idInURLRe = regexp.MustCompile(`(?i)/M(\d{5,})(?:[/?#-]|$)`)

// Item fields vary between scraper versions; each attribute is read from the
// first path that exists.
var (
	idPaths        = []string{"property_id", "mpr_id", "id"}
	urlPaths       = []string{"url", "href", "permalink"}
	valuationPaths = []string{"estimate.estimate", "current_estimate", "estimate", "price", "list_price", "last_sold_price"}
	bedsPaths      = []string{"beds", "description.beds", "bedrooms"}
	bathsPaths     = []string{"baths", "description.baths", "bathrooms"}
	sqftPaths      = []string{"sqft", "description.sqft", "living_area"}
	yearPaths      = []string{"year_built", "description.year_built", "yearBuilt"}
	typePaths      = []string{"property_type", "description.type", "type"}
)

func first(item gjson.Result, paths []string) gjson.Result {
	for _, p := range paths {
		if r := item.Get(p); r.Exists() && r.Type != gjson.Null && !r.IsObject() && !r.IsArray() {
			return r
		}
	}
	return gjson.Result{}
}

// decodeItem maps one dataset item onto a PropertyDetail. Items carry their
// location id either directly or inside their url.
func decodeItem(raw json.RawMessage) (model.PropertyDetail, bool) {
	if !gjson.ValidBytes(raw) {
		return model.PropertyDetail{}, false
	}
	item := gjson.ParseBytes(raw)

	d := model.PropertyDetail{URL: first(item, urlPaths).String()}
	if m := idInURLRe.FindStringSubmatch(d.URL); m != nil {
		d.LocationID = model.LocationID(m[1])
	}
	if d.LocationID == "" {
		d.LocationID = model.LocationID(strings.TrimPrefix(first(item, idPaths).String(), "M"))
	}
	if d.LocationID == "" {
		return d, false
	}

	d.Valuation = first(item, valuationPaths).Float()
	d.Beds = first(item, bedsPaths).Float()
	d.Baths = first(item, bathsPaths).Float()
	d.Sqft = int(first(item, sqftPaths).Int())
	d.YearBuilt = int(first(item, yearPaths).Int())
	d.PropertyType = first(item, typePaths).String()

	if d.Valuation == 0 && d.Beds == 0 && d.Sqft == 0 && d.PropertyType == "" {
		return d, false
	}
	return d, true
}
