package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// Status is the lifecycle state of a ResolutionRecord.
type Status string

const (
	StatusNew             Status = "new"
	StatusSearching       Status = "searching"
	StatusNoCandidates    Status = "no_candidates"
	StatusCandidatesFound Status = "candidates_found"
	StatusVerifying       Status = "verifying"
	StatusRejected        Status = "rejected"
	StatusVerified        Status = "verified"
	StatusGeocoding       Status = "geocoding"
	StatusAddressOnly     Status = "address_only"
	StatusGeocoded        Status = "geocoded"
	StatusDetailFetching  Status = "detail_fetching"
	StatusResolved        Status = "resolved"
)

// Reason tags explain why a record stopped where it did.
const (
	ReasonNoLocation    = "no_location"
	ReasonNoName        = "no_name"
	ReasonNoResults     = "no_results"
	ReasonSearchFailed  = "search_failed"
	ReasonBlocked       = "blocked"
	ReasonOracleError   = "oracle_error"
	ReasonLowConfidence = "low_confidence"
	ReasonNoAddress     = "no_address"
	ReasonNoLocationID  = "no_location_id"
	ReasonNoProperty    = "no_property_detail"
)

// allStatuses lists every legal status.
var allStatuses = []Status{
	StatusNew, StatusSearching, StatusNoCandidates, StatusCandidatesFound,
	StatusVerifying, StatusRejected, StatusVerified, StatusGeocoding,
	StatusAddressOnly, StatusGeocoded, StatusDetailFetching, StatusResolved,
}

// transitions lists the legal edges of the state machine. Candidates are
// not persisted, so resuming from candidates_found or verifying searches
// again.
var transitions = map[Status][]Status{
	StatusNew:             {StatusSearching, StatusNoCandidates},
	StatusSearching:       {StatusNoCandidates, StatusCandidatesFound},
	StatusCandidatesFound: {StatusVerifying, StatusSearching},
	StatusVerifying:       {StatusRejected, StatusVerified, StatusCandidatesFound, StatusSearching},
	StatusVerified:        {StatusGeocoding},
	StatusGeocoding:       {StatusAddressOnly, StatusGeocoded},
	StatusGeocoded:        {StatusDetailFetching},
	StatusDetailFetching:  {StatusResolved, StatusAddressOnly},
	// Explicit retry mode only.
	StatusRejected:     {StatusSearching},
	StatusNoCandidates: {StatusSearching},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, v := range allStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// Terminal reports whether a normal run leaves the record alone.
func (s Status) Terminal() bool {
	switch s {
	case StatusNoCandidates, StatusRejected, StatusAddressOnly, StatusResolved:
		return true
	}
	return false
}

// Retryable reports whether retry mode may re-enter the record at searching.
func (s Status) Retryable() bool {
	return s == StatusRejected || s == StatusNoCandidates
}

// HasAddress reports whether records in this status carry a verified address.
func (s Status) HasAddress() bool {
	switch s {
	case StatusVerified, StatusGeocoding, StatusAddressOnly, StatusGeocoded,
		StatusDetailFetching, StatusResolved:
		return true
	}
	return false
}

// HasLocationID reports whether records in this status carry a location id.
func (s Status) HasLocationID() bool {
	switch s {
	case StatusGeocoded, StatusDetailFetching, StatusResolved:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is a legal edge. Re-entering an
// in-flight status is allowed so an interrupted run can resume.
func CanTransition(from, to Status) bool {
	if from == to && !from.Terminal() && from != StatusNew {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// LocationID is the opaque identifier returned by the autocomplete service.
type LocationID string

// ResolutionRecord is the persisted per-query state. Mutate it only through
// its transition methods so payload and status stay consistent.
type ResolutionRecord struct {
	ID          string          `json:"id"`
	Query       PersonQuery     `json:"query"`
	Status      Status          `json:"status"`
	Reason      string          `json:"reason,omitempty"`
	Address     string          `json:"address,omitempty"`
	Candidate   *Candidate      `json:"candidate,omitempty"`
	LocationID  LocationID      `json:"location_id,omitempty"`
	Property    *PropertyDetail `json:"property,omitempty"`
	Confidence  Confidence      `json:"confidence,omitempty"`
	Attempts    int             `json:"attempts"`
	LastError   string          `json:"last_error,omitempty"`
	LastChecked time.Time       `json:"last_checked"`
	CreatedAt   time.Time       `json:"created_at"`
}

// NewRecord creates a record in StatusNew.
func NewRecord(id string, q PersonQuery, now time.Time) *ResolutionRecord {
	return &ResolutionRecord{
		ID:          id,
		Query:       q,
		Status:      StatusNew,
		LastChecked: now,
		CreatedAt:   now,
	}
}

// ErrIllegalTransition is returned for edges the state machine forbids.
var ErrIllegalTransition = eris.New("illegal status transition")

func (r *ResolutionRecord) move(to Status, now time.Time) error {
	if !CanTransition(r.Status, to) {
		return eris.Wrapf(ErrIllegalTransition, "%s -> %s", r.Status, to)
	}
	r.Status = to
	r.LastChecked = now
	return nil
}

// StartSearch enters searching and clears any payload left by a previous
// attempt.
func (r *ResolutionRecord) StartSearch(now time.Time) error {
	if err := r.move(StatusSearching, now); err != nil {
		return err
	}
	r.Reason = ""
	r.Address = ""
	r.Candidate = nil
	r.LocationID = ""
	r.Property = nil
	r.Confidence = ""
	r.Attempts++
	r.LastError = ""
	return nil
}

// NoCandidates terminates the record with a reason tag.
func (r *ResolutionRecord) NoCandidates(reason string, now time.Time) error {
	if err := r.move(StatusNoCandidates, now); err != nil {
		return err
	}
	r.Reason = reason
	return nil
}

// CandidatesFound records a successful search.
func (r *ResolutionRecord) CandidatesFound(now time.Time) error {
	return r.move(StatusCandidatesFound, now)
}

// StartVerify enters verifying.
func (r *ResolutionRecord) StartVerify(now time.Time) error {
	return r.move(StatusVerifying, now)
}

// Unverified steps back to candidates_found after an oracle failure so a
// later run can retry.
func (r *ResolutionRecord) Unverified(cause error, now time.Time) error {
	if err := r.move(StatusCandidatesFound, now); err != nil {
		return err
	}
	r.Reason = ReasonOracleError
	if cause != nil {
		r.LastError = cause.Error()
	}
	return nil
}

// Reject terminates the record without accepting a candidate.
func (r *ResolutionRecord) Reject(conf Confidence, reason string, now time.Time) error {
	if err := r.move(StatusRejected, now); err != nil {
		return err
	}
	r.Confidence = conf
	r.Reason = reason
	return nil
}

// Verify accepts a candidate and its address.
func (r *ResolutionRecord) Verify(c Candidate, conf Confidence, now time.Time) error {
	addr := c.FullAddress()
	if addr == "" {
		return eris.New("verify: candidate has no address")
	}
	if err := r.move(StatusVerified, now); err != nil {
		return err
	}
	cc := c
	r.Candidate = &cc
	r.Address = addr
	r.Confidence = conf
	r.Reason = ""
	return nil
}

// StartGeocode enters geocoding.
func (r *ResolutionRecord) StartGeocode(now time.Time) error {
	return r.move(StatusGeocoding, now)
}

// Geocoded stores the resolved location id.
func (r *ResolutionRecord) Geocoded(id LocationID, now time.Time) error {
	if id == "" {
		return eris.New("geocoded: empty location id")
	}
	if err := r.move(StatusGeocoded, now); err != nil {
		return err
	}
	r.LocationID = id
	return nil
}

// AddressOnly terminates the record with an address but no property data.
func (r *ResolutionRecord) AddressOnly(reason string, now time.Time) error {
	if err := r.move(StatusAddressOnly, now); err != nil {
		return err
	}
	r.Reason = reason
	r.Property = nil
	return nil
}

// StartDetail enters detail_fetching.
func (r *ResolutionRecord) StartDetail(now time.Time) error {
	return r.move(StatusDetailFetching, now)
}

// Resolve stores the property detail and terminates the record.
func (r *ResolutionRecord) Resolve(p PropertyDetail, now time.Time) error {
	if err := r.move(StatusResolved, now); err != nil {
		return err
	}
	pp := p
	r.Property = &pp
	r.Reason = ""
	return nil
}

// Fail records a stage-local error without changing status. The record
// stays resumable; reason tags the failure for reporting.
func (r *ResolutionRecord) Fail(reason string, cause error, now time.Time) {
	if reason != "" {
		r.Reason = reason
	}
	if cause != nil {
		r.LastError = cause.Error()
	}
	r.LastChecked = now
}

// Validate checks that the payload matches the status.
func (r *ResolutionRecord) Validate() error {
	if !r.Status.Valid() {
		return eris.Errorf("record %s: unknown status %q", r.ID, r.Status)
	}
	if r.Status.HasAddress() != (r.Address != "") {
		return eris.Errorf("record %s: status %s with address=%q", r.ID, r.Status, r.Address)
	}
	if r.Status.HasLocationID() != (r.LocationID != "") && r.Status != StatusAddressOnly {
		return eris.Errorf("record %s: status %s with location_id=%q", r.ID, r.Status, r.LocationID)
	}
	if (r.Status == StatusResolved) != (r.Property != nil) {
		return eris.Errorf("record %s: status %s with property=%v", r.ID, r.Status, r.Property != nil)
	}
	if r.Status == StatusNoCandidates && r.Reason == "" {
		return eris.Errorf("record %s: no_candidates without reason", r.ID)
	}
	return nil
}
