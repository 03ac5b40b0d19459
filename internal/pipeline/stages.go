package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/address-resolver/internal/model"
	"github.com/sells-group/address-resolver/internal/parse"
	"github.com/sells-group/address-resolver/internal/people"
	"github.com/sells-group/address-resolver/internal/pool"
	"github.com/sells-group/address-resolver/internal/resilience"
)

// searchStage runs every resumable record through a fresh search. Records
// resuming from candidates_found or verifying search again because
// candidates are not persisted. Terminal records search only when retry
// mode re-admitted them.
func (p *Pipeline) searchStage(ctx context.Context, tasks []*task) {
	var ready []*task
	for _, t := range pick(tasks,
		model.StatusNew, model.StatusSearching, model.StatusCandidatesFound,
		model.StatusVerifying, model.StatusRejected, model.StatusNoCandidates,
	) {
		if t.rec.Status.Terminal() && !t.retry {
			continue
		}
		if p.step(ctx, t, "search", t.rec.StartSearch) {
			ready = append(ready, t)
		}
	}

	pool.RunEach(ctx, ready, p.search, func(r pool.Result[*task, []model.Candidate]) {
		t := r.Input
		if r.Err != nil {
			reason := model.ReasonSearchFailed
			if resilience.IsBlocked(r.Err) {
				reason = model.ReasonBlocked
			}
			p.fail(ctx, t, "search", reason, r.Err)
			return
		}
		t.candidates = r.Output
		if len(t.candidates) == 0 {
			p.step(ctx, t, "search", func(now time.Time) error {
				return t.rec.NoCandidates(model.ReasonNoResults, now)
			})
			return
		}
		p.step(ctx, t, "search", t.rec.CandidatesFound)
	}, p.policy("search", p.opts.Pools.Search, 0))
}

func (p *Pipeline) search(ctx context.Context, t *task) ([]model.Candidate, error) {
	u := people.SearchURL(p.opts.SearchBase, t.rec.Query)
	body, err := p.page(ctx, u)
	if err != nil {
		return nil, err
	}
	return parse.ParseSearch(body, p.opts.MaxResults), nil
}

// page fetches u. A 404 is an empty page; other client errors are
// permanent.
func (p *Pipeline) page(ctx context.Context, u string) ([]byte, error) {
	resp, err := p.pages.Fetch(ctx, u)
	if err != nil {
		return nil, err
	}
	switch {
	case resp.Status == http.StatusNotFound:
		return nil, nil
	case resp.Status >= http.StatusBadRequest:
		return nil, eris.Errorf("pipeline: status %d from %s", resp.Status, u)
	}
	return resp.Body, nil
}

// detailJob enriches one candidate of a task.
type detailJob struct {
	t   *task
	idx int
}

// detailStage fetches detail pages for the top-ranked candidates. A failed
// or unparseable page leaves the stub candidate in place.
func (p *Pipeline) detailStage(ctx context.Context, tasks []*task) {
	var jobs []detailJob
	for _, t := range pick(tasks, model.StatusCandidatesFound) {
		for i := range t.candidates {
			if i >= p.opts.DetailTopN {
				break
			}
			if t.candidates[i].DetailRef != "" {
				jobs = append(jobs, detailJob{t: t, idx: i})
			}
		}
	}

	// Each job writes a distinct slice element, so no locking is needed.
	pool.RunEach(ctx, jobs, p.detail, func(r pool.Result[detailJob, model.Candidate]) {
		j := r.Input
		if r.Err != nil {
			j.t.log.Warn("pipeline: detail fetch failed, keeping stub",
				zap.String("ref", j.t.candidates[j.idx].DetailRef),
				zap.Error(r.Err),
			)
			return
		}
		j.t.candidates[j.idx] = j.t.candidates[j.idx].Merge(r.Output)
	}, p.policy("detail", p.opts.Pools.Detail, 0))
}

func (p *Pipeline) detail(ctx context.Context, j detailJob) (model.Candidate, error) {
	ref := j.t.candidates[j.idx].DetailRef
	u, err := p.detailURL(ref)
	if err != nil {
		return model.Candidate{}, err
	}
	body, err := p.page(ctx, u)
	if err != nil {
		return model.Candidate{}, err
	}
	c, err := parse.ParseDetail(body)
	if errors.Is(err, parse.ErrNotParseable) {
		j.t.log.Debug("pipeline: detail page not parseable", zap.String("ref", ref))
		return model.Candidate{}, nil
	}
	return c, err
}

// detailURL resolves a detail ref against the search site root.
func (p *Pipeline) detailURL(ref string) (string, error) {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref, nil
	}
	base, err := url.Parse(strings.TrimRight(p.opts.SearchBase, "/") + "/")
	if err != nil {
		return "", eris.Wrap(err, "pipeline: parse search base")
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", eris.Wrapf(err, "pipeline: parse detail ref %q", ref)
	}
	return base.ResolveReference(r).String(), nil
}

// verifyStage asks the oracle to pick a candidate. Oracle errors step the
// record back to candidates_found so a later run can retry.
func (p *Pipeline) verifyStage(ctx context.Context, tasks []*task) {
	var ready []*task
	for _, t := range pick(tasks, model.StatusCandidatesFound) {
		if p.step(ctx, t, "verify", t.rec.StartVerify) {
			ready = append(ready, t)
		}
	}

	pool.RunEach(ctx, ready, p.verify, func(r pool.Result[*task, model.MatchDecision]) {
		t := r.Input
		if r.Err != nil {
			p.step(ctx, t, "verify", func(now time.Time) error { return t.rec.Unverified(r.Err, now) })
			t.failed = true
			t.log.Warn("pipeline: oracle failed, record left for retry",
				zap.String("class", resilience.ClassifyError(r.Err)),
				zap.Error(r.Err),
			)
			return
		}

		d := r.Output
		if !d.Accepted(p.opts.Threshold) {
			p.step(ctx, t, "verify", func(now time.Time) error {
				return t.rec.Reject(d.Confidence, model.ReasonLowConfidence, now)
			})
			return
		}
		c := t.candidates[*d.Index]
		if c.FullAddress() == "" {
			p.step(ctx, t, "verify", func(now time.Time) error {
				return t.rec.Reject(d.Confidence, model.ReasonNoAddress, now)
			})
			return
		}
		p.step(ctx, t, "verify", func(now time.Time) error { return t.rec.Verify(c, d.Confidence, now) })
	}, p.policy("verify", p.opts.Pools.Verify, p.opts.Pools.VerifyRate))
}

func (p *Pipeline) verify(ctx context.Context, t *task) (model.MatchDecision, error) {
	return p.oracle.Decide(ctx, t.profile, t.candidates)
}

// geoResult is the outcome of one autocomplete lookup.
type geoResult struct {
	id    string
	found bool
}

// geocodeStage maps verified addresses to location ids. Lookups are not
// retried within a run; a failure or empty result ends the record as
// address_only.
func (p *Pipeline) geocodeStage(ctx context.Context, tasks []*task) {
	var ready []*task
	for _, t := range pick(tasks, model.StatusVerified, model.StatusGeocoding) {
		if p.step(ctx, t, "geocode", t.rec.StartGeocode) {
			ready = append(ready, t)
		}
	}

	policy := p.policy("geocode", p.opts.Pools.Geocode, 0)
	policy.Retry.MaxAttempts = 1
	policy.Retry.MaxFreeRetries = 0

	pool.RunEach(ctx, ready, func(ctx context.Context, t *task) (geoResult, error) {
		id, found, err := p.geo.Resolve(ctx, t.rec.Address)
		return geoResult{id: id, found: found}, err
	}, func(r pool.Result[*task, geoResult]) {
		t := r.Input
		switch {
		case r.Err != nil && ctx.Err() != nil:
			p.fail(ctx, t, "geocode", "", r.Err)
		case r.Err != nil:
			t.log.Warn("pipeline: geocode failed", zap.String("class", resilience.ClassifyError(r.Err)), zap.Error(r.Err))
			p.step(ctx, t, "geocode", func(now time.Time) error {
				t.rec.Fail("", r.Err, now)
				return t.rec.AddressOnly(model.ReasonNoLocationID, now)
			})
		case !r.Output.found || r.Output.id == "":
			p.step(ctx, t, "geocode", func(now time.Time) error {
				return t.rec.AddressOnly(model.ReasonNoLocationID, now)
			})
		default:
			p.step(ctx, t, "geocode", func(now time.Time) error {
				return t.rec.Geocoded(model.LocationID(r.Output.id), now)
			})
		}
	}, policy)
}

// propertyStage batches geocoded records into property jobs. Ids missing
// from a job's results end as address_only; a job that fails outright
// leaves its records in detail_fetching for a later run.
func (p *Pipeline) propertyStage(ctx context.Context, tasks []*task) {
	var ready []*task
	for _, t := range pick(tasks, model.StatusGeocoded, model.StatusDetailFetching) {
		if p.step(ctx, t, "property", t.rec.StartDetail) {
			ready = append(ready, t)
		}
	}

	batches := chunk(ready, p.opts.BatchSize)
	pool.RunEach(ctx, batches, func(ctx context.Context, batch []*task) (map[model.LocationID]model.PropertyDetail, error) {
		ids := make([]model.LocationID, len(batch))
		for i, t := range batch {
			ids[i] = t.rec.LocationID
		}
		return p.props.Fetch(ctx, ids)
	}, func(r pool.Result[[]*task, map[model.LocationID]model.PropertyDetail]) {
		for _, t := range r.Input {
			if r.Err != nil {
				p.fail(ctx, t, "property", "", r.Err)
				continue
			}
			if d, ok := r.Output[t.rec.LocationID]; ok {
				p.step(ctx, t, "property", func(now time.Time) error { return t.rec.Resolve(d, now) })
				continue
			}
			p.step(ctx, t, "property", func(now time.Time) error {
				return t.rec.AddressOnly(model.ReasonNoProperty, now)
			})
		}
	}, p.policy("property", p.opts.Pools.Property, p.opts.Pools.PropertyRate))
}

func chunk[T any](items []T, size int) [][]T {
	var out [][]T
	for size < len(items) {
		items, out = items[size:], append(out, items[:size:size])
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}
