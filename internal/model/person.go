// Package model defines the domain types shared by the resolver pipeline.
package model

import (
	"strings"
)

// PersonQuery identifies a person by name and approximate location. State is
// always a normalized two-letter code or empty.
type PersonQuery struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	City      string `json:"city,omitempty"`
	State     string `json:"state,omitempty"`
}

// NewPersonQuery trims its inputs and normalizes the state.
func NewPersonQuery(first, last, city, state string) PersonQuery {
	return PersonQuery{
		FirstName: strings.TrimSpace(first),
		LastName:  strings.TrimSpace(last),
		City:      strings.Join(strings.Fields(city), " "),
		State:     NormalizeState(state),
	}
}

// HasLocation reports whether the query carries enough location to search.
func (q PersonQuery) HasLocation() bool {
	return q.City != "" || q.State != ""
}

// HasName reports whether both name parts are present.
func (q PersonQuery) HasName() bool {
	return q.FirstName != "" && q.LastName != ""
}

// Key returns the stable identifier used to persist the query's record.
func (q PersonQuery) Key() string {
	return strings.Join([]string{
		strings.ToLower(q.FirstName),
		strings.ToLower(q.LastName),
		strings.ToLower(q.City),
		q.State,
	}, "|")
}

// String renders the query for logs.
func (q PersonQuery) String() string {
	name := strings.TrimSpace(q.FirstName + " " + q.LastName)
	switch {
	case q.City != "" && q.State != "":
		return name + " (" + q.City + ", " + q.State + ")"
	case q.City != "":
		return name + " (" + q.City + ")"
	case q.State != "":
		return name + " (" + q.State + ")"
	}
	return name
}

// PersonProfile is read-only context about the person supplied by the
// caller. The pipeline never mutates it.
type PersonProfile struct {
	Employment string `json:"employment,omitempty"`
	Education  string `json:"education,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
}

// Input pairs a query with its profile for batch processing.
type Input struct {
	Query   PersonQuery   `json:"query"`
	Profile PersonProfile `json:"profile"`
}
