package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func verifiedCandidate() Candidate {
	return Candidate{
		DisplayName:   "Jane Doe",
		DetailRef:     "/find/person/abc",
		Rank:          2,
		StreetAddress: "100 Congress Ave",
		Locality:      "Austin",
		Region:        "TX",
		PostalCode:    "78701",
	}
}

func TestRecord_HappyPath(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r := NewRecord("id-1", NewPersonQuery("Jane", "Doe", "Austin", "TX"), now)

	require.NoError(t, r.StartSearch(now))
	require.NoError(t, r.CandidatesFound(now))
	require.NoError(t, r.StartVerify(now))
	require.NoError(t, r.Verify(verifiedCandidate(), ConfidenceHigh, now))
	assert.Equal(t, "100 Congress Ave, Austin, TX 78701", r.Address)
	require.NoError(t, r.Validate())

	require.NoError(t, r.StartGeocode(now))
	require.NoError(t, r.Geocoded("123", now))
	require.NoError(t, r.StartDetail(now))
	require.NoError(t, r.Resolve(PropertyDetail{LocationID: "123", Valuation: 450000}, now))

	assert.Equal(t, StatusResolved, r.Status)
	assert.True(t, r.Status.Terminal())
	assert.Equal(t, 1, r.Attempts)
	require.NoError(t, r.Validate())
}

func TestRecord_CannotSkipVerification(t *testing.T) {
	t.Parallel()

	now := time.Now()
	r := NewRecord("id-2", NewPersonQuery("Jane", "Doe", "Austin", "TX"), now)
	require.NoError(t, r.StartSearch(now))
	require.NoError(t, r.CandidatesFound(now))

	err := r.StartGeocode(now)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIllegalTransition))
	assert.Equal(t, StatusCandidatesFound, r.Status)
}

func TestRecord_NoLocationNeverSearches(t *testing.T) {
	t.Parallel()

	now := time.Now()
	r := NewRecord("id-3", NewPersonQuery("Jane", "Doe", "", ""), now)
	require.NoError(t, r.NoCandidates(ReasonNoLocation, now))
	assert.Equal(t, StatusNoCandidates, r.Status)
	assert.Equal(t, 0, r.Attempts)
	require.NoError(t, r.Validate())
}

func TestRecord_RejectedOnlyReentersAtSearching(t *testing.T) {
	t.Parallel()

	now := time.Now()
	r := NewRecord("id-4", NewPersonQuery("Jane", "Doe", "Austin", "TX"), now)
	require.NoError(t, r.StartSearch(now))
	require.NoError(t, r.CandidatesFound(now))
	require.NoError(t, r.StartVerify(now))
	require.NoError(t, r.Reject(ConfidenceLow, ReasonLowConfidence, now))
	assert.True(t, r.Status.Terminal())
	assert.True(t, r.Status.Retryable())

	assert.Error(t, r.StartVerify(now))
	assert.Error(t, r.StartGeocode(now))

	require.NoError(t, r.StartSearch(now))
	assert.Equal(t, StatusSearching, r.Status)
	assert.Empty(t, r.Reason)
	assert.Empty(t, r.Confidence)
	assert.Equal(t, 2, r.Attempts)
}

func TestRecord_OracleErrorStaysNonTerminal(t *testing.T) {
	t.Parallel()

	now := time.Now()
	r := NewRecord("id-5", NewPersonQuery("Jane", "Doe", "Austin", "TX"), now)
	require.NoError(t, r.StartSearch(now))
	require.NoError(t, r.CandidatesFound(now))
	require.NoError(t, r.StartVerify(now))
	require.NoError(t, r.Unverified(errors.New("model overloaded"), now))

	assert.Equal(t, StatusCandidatesFound, r.Status)
	assert.False(t, r.Status.Terminal())
	assert.Equal(t, "model overloaded", r.LastError)
}

func TestRecord_VerifyRequiresAddress(t *testing.T) {
	t.Parallel()

	now := time.Now()
	r := NewRecord("id-6", NewPersonQuery("Jane", "Doe", "Austin", "TX"), now)
	require.NoError(t, r.StartSearch(now))
	require.NoError(t, r.CandidatesFound(now))
	require.NoError(t, r.StartVerify(now))

	err := r.Verify(Candidate{DisplayName: "Jane Doe"}, ConfidenceHigh, now)
	require.Error(t, err)
	assert.Equal(t, StatusVerifying, r.Status)
}

func TestRecord_ValidateRejectsInconsistentPayload(t *testing.T) {
	t.Parallel()

	r := &ResolutionRecord{ID: "x", Status: StatusSearching, Address: "1 Main St"}
	assert.Error(t, r.Validate())

	r = &ResolutionRecord{ID: "x", Status: StatusResolved, Address: "1 Main St", LocationID: "9"}
	assert.Error(t, r.Validate())

	r = &ResolutionRecord{ID: "x", Status: "bogus"}
	assert.Error(t, r.Validate())

	r = &ResolutionRecord{ID: "x", Status: StatusAddressOnly, Address: "1 Main St"}
	assert.NoError(t, r.Validate())
}

func TestCanTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusNew, StatusSearching, true},
		{StatusNew, StatusNoCandidates, true},
		{StatusNew, StatusVerified, false},
		{StatusSearching, StatusSearching, true},
		{StatusVerifying, StatusCandidatesFound, true},
		{StatusVerified, StatusGeocoding, true},
		{StatusCandidatesFound, StatusGeocoding, false},
		{StatusCandidatesFound, StatusSearching, true},
		{StatusVerifying, StatusSearching, true},
		{StatusVerified, StatusSearching, false},
		{StatusResolved, StatusSearching, false},
		{StatusAddressOnly, StatusSearching, false},
		{StatusRejected, StatusSearching, true},
		{StatusNoCandidates, StatusSearching, true},
		{StatusResolved, StatusResolved, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestFail_KeepsStatus(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r := NewRecord("id-f", NewPersonQuery("Jane", "Doe", "Austin", "TX"), now)
	require.NoError(t, r.StartSearch(now))

	later := now.Add(time.Minute)
	r.Fail(ReasonBlocked, errors.New("blocked twice"), later)
	assert.Equal(t, StatusSearching, r.Status)
	assert.Equal(t, ReasonBlocked, r.Reason)
	assert.Equal(t, "blocked twice", r.LastError)
	assert.Equal(t, later, r.LastChecked)
	assert.NoError(t, r.Validate())

	// A retry clears the failure.
	require.NoError(t, r.StartSearch(later))
	assert.Empty(t, r.Reason)
	assert.Empty(t, r.LastError)
}
