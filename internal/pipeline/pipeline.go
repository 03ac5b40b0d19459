// Package pipeline drives ResolutionRecords through search, detail,
// verification, geocoding and property lookup. Each stage runs under its
// own bounded worker pool and every transition is persisted as it happens.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/address-resolver/internal/fetcher"
	"github.com/sells-group/address-resolver/internal/model"
	"github.com/sells-group/address-resolver/internal/oracle"
	"github.com/sells-group/address-resolver/internal/pool"
	"github.com/sells-group/address-resolver/internal/resilience"
	"github.com/sells-group/address-resolver/internal/store"
)

// PageFetcher fetches people-search pages.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*fetcher.Response, error)
}

// GeoResolver maps a verified address to a location id.
type GeoResolver interface {
	Resolve(ctx context.Context, address string) (id string, found bool, err error)
}

// PropertyFetcher returns property details for a batch of location ids.
type PropertyFetcher interface {
	Fetch(ctx context.Context, ids []model.LocationID) (map[model.LocationID]model.PropertyDetail, error)
}

// Pools sets the worker count of each stage. VerifyRate and PropertyRate
// cap oracle calls and property job submissions per second; zero means
// unlimited. Search pacing lives in the fetcher and geocode pacing in the
// autocomplete client.
type Pools struct {
	Search       int
	Detail       int
	Verify       int
	Geocode      int
	Property     int
	VerifyRate   float64
	PropertyRate float64
}

// Options configures a Pipeline.
type Options struct {
	// SearchBase is the people-search site root.
	SearchBase string
	// MaxResults caps candidates read from a search page. Default 10.
	MaxResults int
	// DetailTopN is how many top-ranked candidates get a detail fetch. Default 3.
	DetailTopN int
	// Threshold is the minimum accepted confidence. Default medium.
	Threshold model.Confidence
	// BatchSize is the number of location ids per property job. Default 20.
	BatchSize int
	Pools     Pools
	// Retry is the per-task retry policy shared by the stage pools.
	Retry resilience.RetryConfig
	// AttemptTimeout bounds each stage call. Zero leaves it to the clients.
	AttemptTimeout time.Duration
	// RetryRejected re-enters rejected and no_candidates records at searching.
	RetryRejected bool
	// Now is the clock. Default time.Now in UTC.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.MaxResults <= 0 {
		o.MaxResults = 10
	}
	if o.DetailTopN <= 0 {
		o.DetailTopN = 3
	}
	if o.Threshold == "" {
		o.Threshold = model.ConfidenceMedium
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 20
	}
	def := Pools{Search: 3, Detail: 3, Verify: 20, Geocode: 4, Property: 2}
	if o.Pools.Search <= 0 {
		o.Pools.Search = def.Search
	}
	if o.Pools.Detail <= 0 {
		o.Pools.Detail = def.Detail
	}
	if o.Pools.Verify <= 0 {
		o.Pools.Verify = def.Verify
	}
	if o.Pools.Geocode <= 0 {
		o.Pools.Geocode = def.Geocode
	}
	if o.Pools.Property <= 0 {
		o.Pools.Property = def.Property
	}
	if o.Retry.MaxAttempts <= 0 {
		o.Retry = resilience.DefaultRetryConfig()
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	return o
}

// Pipeline resolves people to addresses and properties.
type Pipeline struct {
	store  store.Store
	pages  PageFetcher
	oracle oracle.MatchOracle
	geo    GeoResolver
	props  PropertyFetcher
	opts   Options
}

// New creates a Pipeline. The oracle is wrapped so it can never return an
// out-of-range index.
func New(
	st store.Store,
	pages PageFetcher,
	o oracle.MatchOracle,
	geo GeoResolver,
	props PropertyFetcher,
	opts Options,
) *Pipeline {
	return &Pipeline{
		store:  st,
		pages:  pages,
		oracle: oracle.Bounded(o),
		geo:    geo,
		props:  props,
		opts:   opts.withDefaults(),
	}
}

// Summary counts per-outcome results of a run. Errors are records left
// non-terminal by a stage failure; they resume on the next run.
type Summary struct {
	Total        int `json:"total"`
	Resolved     int `json:"resolved"`
	AddressOnly  int `json:"address_only"`
	Rejected     int `json:"rejected"`
	NoCandidates int `json:"no_candidates"`
	Errors       int `json:"errors"`
	Skipped      int `json:"skipped"`
}

func (s *Summary) count(st model.Status) {
	switch st {
	case model.StatusResolved:
		s.Resolved++
	case model.StatusAddressOnly:
		s.AddressOnly++
	case model.StatusRejected:
		s.Rejected++
	case model.StatusNoCandidates:
		s.NoCandidates++
	default:
		s.Errors++
	}
}

// task is one record in flight. A task is owned by exactly one stage
// worker at a time. retry marks a terminal record re-admitted by retry
// mode.
type task struct {
	rec        *model.ResolutionRecord
	profile    model.PersonProfile
	candidates []model.Candidate
	failed     bool
	retry      bool
	log        *zap.Logger
}

// Run processes inputs to completion and reports per-outcome counts. Stage
// failures never abort the run; the returned error is non-nil only when
// ctx ends first.
func (p *Pipeline) Run(ctx context.Context, inputs []model.Input) (Summary, error) {
	_, sum := p.run(ctx, inputs)
	return sum, ctx.Err()
}

// Resolve processes a single input and returns its record. A record that
// is already terminal is returned as stored.
func (p *Pipeline) Resolve(ctx context.Context, in model.Input) (*model.ResolutionRecord, error) {
	recs, _ := p.run(ctx, []model.Input{in})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if recs[0] == nil {
		return nil, eris.New("pipeline: record could not be loaded")
	}
	return recs[0], nil
}

func (p *Pipeline) run(ctx context.Context, inputs []model.Input) ([]*model.ResolutionRecord, Summary) {
	start := time.Now()
	sum := Summary{Total: len(inputs)}

	tasks, recs := p.prepare(ctx, inputs, &sum)

	p.timed("search", func() { p.searchStage(ctx, tasks) })
	p.timed("detail", func() { p.detailStage(ctx, tasks) })
	p.timed("verify", func() { p.verifyStage(ctx, tasks) })
	p.timed("geocode", func() { p.geocodeStage(ctx, tasks) })
	p.timed("property", func() { p.propertyStage(ctx, tasks) })

	for _, t := range tasks {
		sum.count(t.rec.Status)
	}

	zap.L().Info("pipeline: run complete",
		zap.Int("total", sum.Total),
		zap.Int("resolved", sum.Resolved),
		zap.Int("address_only", sum.AddressOnly),
		zap.Int("rejected", sum.Rejected),
		zap.Int("no_candidates", sum.NoCandidates),
		zap.Int("errors", sum.Errors),
		zap.Int("skipped", sum.Skipped),
		zap.Duration("elapsed", time.Since(start)),
	)
	return recs, sum
}

// prepare loads or creates a record per input. Terminal records are
// skipped unless retry mode applies to them; queries without a location
// terminate immediately.
func (p *Pipeline) prepare(ctx context.Context, inputs []model.Input, sum *Summary) ([]*task, []*model.ResolutionRecord) {
	recs := make([]*model.ResolutionRecord, len(inputs))
	byKey := make(map[string]*model.ResolutionRecord, len(inputs))
	var tasks []*task

	for i, in := range inputs {
		key := in.Query.Key()
		log := zap.L().With(zap.String("record", key))

		if rec, dup := byKey[key]; dup {
			recs[i] = rec
			sum.Skipped++
			continue
		}

		rec, err := p.store.GetRecord(ctx, key)
		switch {
		case errors.Is(err, store.ErrNotFound):
			rec = model.NewRecord("", in.Query, p.opts.Now())
		case err != nil:
			log.Warn("pipeline: load record failed", zap.Error(err))
			sum.Errors++
			continue
		}
		recs[i] = rec
		byKey[key] = rec

		if rec.Status.Terminal() && !(p.opts.RetryRejected && rec.Status.Retryable()) {
			log.Debug("pipeline: record already terminal", zap.String("status", string(rec.Status)))
			sum.Skipped++
			continue
		}

		t := &task{rec: rec, profile: in.Profile, retry: rec.Status.Terminal(), log: log}
		if reason := missingField(rec.Query); reason != "" {
			if rec.Status != model.StatusNew {
				// Retry mode cannot help a query that was never searchable.
				sum.Skipped++
				continue
			}
			p.step(ctx, t, "prepare", func(now time.Time) error { return rec.NoCandidates(reason, now) })
		}
		tasks = append(tasks, t)
	}
	return tasks, recs
}

// missingField returns the reason a query cannot be searched, or "".
func missingField(q model.PersonQuery) string {
	switch {
	case !q.HasLocation():
		return model.ReasonNoLocation
	case !q.HasName():
		return model.ReasonNoName
	}
	return ""
}

// step applies a transition and persists the record. A false return means
// the task stopped for this run.
func (p *Pipeline) step(ctx context.Context, t *task, stage string, fn func(now time.Time) error) bool {
	if err := fn(p.opts.Now()); err != nil {
		t.failed = true
		t.log.Error("pipeline: transition refused",
			zap.String("stage", stage),
			zap.String("status", string(t.rec.Status)),
			zap.Error(err),
		)
		return false
	}
	if !p.save(ctx, t, stage) {
		return false
	}
	if t.rec.Status.Terminal() {
		t.log.Info("pipeline: record finished",
			zap.String("status", string(t.rec.Status)),
			zap.String("reason", t.rec.Reason),
			zap.String("confidence", string(t.rec.Confidence)),
		)
	}
	return true
}

// fail records a stage-local failure. The record keeps its status and
// resumes on a later run.
func (p *Pipeline) fail(ctx context.Context, t *task, stage, reason string, cause error) {
	t.failed = true
	t.rec.Fail(reason, cause, p.opts.Now())
	t.log.Warn("pipeline: stage failed",
		zap.String("stage", stage),
		zap.String("status", string(t.rec.Status)),
		zap.String("class", resilience.ClassifyError(cause)),
		zap.Error(cause),
	)
	p.save(ctx, t, stage)
}

func (p *Pipeline) save(ctx context.Context, t *task, stage string) bool {
	if err := p.store.SaveRecord(ctx, t.rec); err != nil {
		t.failed = true
		t.log.Error("pipeline: save record failed",
			zap.String("stage", stage),
			zap.String("status", string(t.rec.Status)),
			zap.Error(err),
		)
		return false
	}
	return true
}

func (p *Pipeline) policy(stage string, workers int, rate float64) pool.Policy {
	return pool.Policy{
		Stage:          stage,
		Workers:        workers,
		Retry:          p.opts.Retry,
		AttemptTimeout: p.opts.AttemptTimeout,
		RateLimit:      rate,
	}
}

// pick returns the live tasks whose status is one of statuses.
func pick(tasks []*task, statuses ...model.Status) []*task {
	var out []*task
	for _, t := range tasks {
		if t.failed {
			continue
		}
		for _, s := range statuses {
			if t.rec.Status == s {
				out = append(out, t)
				break
			}
		}
	}
	return out
}

func (p *Pipeline) timed(stage string, fn func()) {
	start := time.Now()
	fn()
	zap.L().Debug("pipeline: stage complete",
		zap.String("stage", stage),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
}
