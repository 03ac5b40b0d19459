package monitoring

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/address-resolver/internal/model"
	"github.com/sells-group/address-resolver/internal/store"
)

var now = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func newStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "monitor.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// record builds a record for first and applies steps in order.
func record(t *testing.T, first string, steps ...func(r *model.ResolutionRecord) error) *model.ResolutionRecord {
	t.Helper()
	r := model.NewRecord("", model.NewPersonQuery(first, "Doe", "Austin", "TX"), now)
	for _, step := range steps {
		require.NoError(t, step(r))
	}
	return r
}

func search(r *model.ResolutionRecord) error { return r.StartSearch(now) }
func found(r *model.ResolutionRecord) error  { return r.CandidatesFound(now) }
func verify(r *model.ResolutionRecord) error { return r.StartVerify(now) }

func reject(r *model.ResolutionRecord) error {
	return r.Reject(model.ConfidenceLow, model.ReasonLowConfidence, now)
}

func noResults(r *model.ResolutionRecord) error {
	return r.NoCandidates(model.ReasonNoResults, now)
}

func failWith(reason string) func(r *model.ResolutionRecord) error {
	return func(r *model.ResolutionRecord) error {
		r.Fail(reason, eris.New("boom"), now)
		return nil
	}
}

func oracleDown(r *model.ResolutionRecord) error {
	return r.Unverified(eris.New("overloaded"), now)
}

func TestCollector_Collect(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()

	recs := []*model.ResolutionRecord{
		record(t, "A", search, failWith(model.ReasonBlocked)),
		record(t, "B", search, failWith(model.ReasonBlocked)),
		record(t, "C", search, failWith(model.ReasonSearchFailed)),
		record(t, "D", search, found, verify, oracleDown),
		record(t, "E", search, found, verify, reject),
		record(t, "F", search, noResults),
		record(t, "G"),
	}
	for _, r := range recs {
		require.NoError(t, st.SaveRecord(ctx, r))
	}

	snap, err := NewCollector(st).Collect(ctx)
	require.NoError(t, err)

	assert.Equal(t, 7, snap.Total)
	assert.Equal(t, 5, snap.InFlight)
	assert.Equal(t, 1, snap.Rejected)
	assert.Equal(t, 1, snap.NoCandidates)
	assert.Equal(t, 2, snap.Blocked)
	assert.Equal(t, 1, snap.SearchFailed)
	assert.Equal(t, 1, snap.OracleErrors)
	assert.Equal(t, 2, snap.Terminal())
	assert.InDelta(t, 0.5, snap.RejectRate, 0.001)
	assert.InDelta(t, 0.0, snap.HitRate, 0.001)
	assert.False(t, snap.CollectedAt.IsZero())
}

func TestCollector_EmptyStore(t *testing.T) {
	snap, err := NewCollector(newStore(t)).Collect(context.Background())
	require.NoError(t, err)

	assert.Zero(t, snap.Total)
	assert.Zero(t, snap.RejectRate)
	assert.Zero(t, snap.HitRate)
}

func TestCollector_StoreClosed(t *testing.T) {
	st := newStore(t)
	require.NoError(t, st.Close())

	_, err := NewCollector(st).Collect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring: count records")
}
