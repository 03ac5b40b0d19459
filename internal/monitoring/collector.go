package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/address-resolver/internal/model"
	"github.com/sells-group/address-resolver/internal/store"
)

// scanLimit bounds how many stuck records are inspected for reason tags.
const scanLimit = 10000

// MetricsSnapshot holds a point-in-time view of record outcomes.
type MetricsSnapshot struct {
	Total        int `json:"total"`
	Resolved     int `json:"resolved"`
	AddressOnly  int `json:"address_only"`
	Rejected     int `json:"rejected"`
	NoCandidates int `json:"no_candidates"`
	// InFlight counts records in a non-terminal status.
	InFlight int `json:"in_flight"`

	// Stage failures left for a later run, by reason tag.
	Blocked      int `json:"blocked"`
	SearchFailed int `json:"search_failed"`
	OracleErrors int `json:"oracle_errors"`

	// RejectRate is rejected / terminal records.
	RejectRate float64 `json:"reject_rate"`
	// HitRate is (resolved + address_only) / terminal records.
	HitRate float64 `json:"hit_rate"`

	CollectedAt time.Time `json:"collected_at"`
}

// Terminal returns the number of records in a terminal status.
func (s *MetricsSnapshot) Terminal() int {
	return s.Resolved + s.AddressOnly + s.Rejected + s.NoCandidates
}

// Collector gathers metrics from the record store.
type Collector struct {
	store store.Store
}

// NewCollector creates a new metrics collector.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st}
}

// Collect gathers a snapshot of record metrics.
func (c *Collector) Collect(ctx context.Context) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{CollectedAt: time.Now().UTC()}

	counts, err := c.store.CountByStatus(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count records")
	}
	for st, n := range counts {
		snap.Total += n
		switch st {
		case model.StatusResolved:
			snap.Resolved = n
		case model.StatusAddressOnly:
			snap.AddressOnly = n
		case model.StatusRejected:
			snap.Rejected = n
		case model.StatusNoCandidates:
			snap.NoCandidates = n
		default:
			snap.InFlight += n
		}
	}

	// Failed searches stay in searching; oracle failures step back to
	// candidates_found. Both carry a reason tag.
	for _, st := range []model.Status{model.StatusSearching, model.StatusCandidatesFound} {
		if counts[st] == 0 {
			continue
		}
		recs, err := c.store.ListRecords(ctx, store.RecordFilter{Status: st, Limit: scanLimit})
		if err != nil {
			return nil, eris.Wrapf(err, "monitoring: list %s records", st)
		}
		for _, r := range recs {
			switch r.Reason {
			case model.ReasonBlocked:
				snap.Blocked++
			case model.ReasonSearchFailed:
				snap.SearchFailed++
			case model.ReasonOracleError:
				snap.OracleErrors++
			}
		}
	}

	if terminal := snap.Terminal(); terminal > 0 {
		snap.RejectRate = float64(snap.Rejected) / float64(terminal)
		snap.HitRate = float64(snap.Resolved+snap.AddressOnly) / float64(terminal)
	}
	return snap, nil
}
