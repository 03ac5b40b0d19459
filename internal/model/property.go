package model

import (
	"regexp"
	"strings"
	"time"
)

// PropertyDetail holds valuation and attribute data for a location.
type PropertyDetail struct {
	LocationID   LocationID `json:"location_id"`
	URL          string     `json:"url,omitempty"`
	Valuation    float64    `json:"valuation,omitempty"`
	Beds         float64    `json:"beds,omitempty"`
	Baths        float64    `json:"baths,omitempty"`
	Sqft         int        `json:"sqft,omitempty"`
	YearBuilt    int        `json:"year_built,omitempty"`
	PropertyType string     `json:"property_type,omitempty"`
}

// Ownership likelihood grades.
const (
	OwnershipHigh   = "high"
	OwnershipMedium = "medium"
	OwnershipLow    = "low"
)

var unitDesignatorRe = regexp.MustCompile(`(?i)(\b(apt|apartment|unit|ste|suite|floor|rm|room|lot|trlr|bldg)\b\.?\s*[\w-]+|#\s*[\w-]+)`)

// HasUnitDesignator reports whether the street line of address names a unit
// within a building. Only the text before the first comma is inspected.
func HasUnitDesignator(address string) bool {
	street, _, _ := strings.Cut(address, ",")
	return unitDesignatorRe.MatchString(street)
}

// OwnershipLikelihood estimates whether the person owns the property from
// its type and whether the address carries a unit designator.
func OwnershipLikelihood(propertyType, address string) string {
	t := strings.ToLower(strings.NewReplacer("_", " ", "-", " ").Replace(propertyType))
	unit := HasUnitDesignator(address)

	switch {
	case strings.Contains(t, "apartment") || strings.Contains(t, "multi family") || strings.Contains(t, "multifamily"):
		return OwnershipLow
	case strings.Contains(t, "condo") || strings.Contains(t, "co op") || strings.Contains(t, "cooperative"):
		return OwnershipMedium
	case strings.Contains(t, "single family") || strings.Contains(t, "townhouse") || strings.Contains(t, "manufactured"):
		if unit {
			return OwnershipMedium
		}
		return OwnershipHigh
	}
	if unit {
		return OwnershipLow
	}
	return OwnershipMedium
}

// Export is the record shape exchanged with the surrounding CRM. Unknown
// fields are omitted.
type Export struct {
	Address             string     `json:"address,omitempty"`
	Valuation           float64    `json:"valuation,omitempty"`
	Beds                float64    `json:"beds,omitempty"`
	Baths               float64    `json:"baths,omitempty"`
	Sqft                int        `json:"sqft,omitempty"`
	YearBuilt           int        `json:"year_built,omitempty"`
	PropertyType        string     `json:"property_type,omitempty"`
	OwnershipLikelihood string     `json:"ownership_likelihood,omitempty"`
	Confidence          Confidence `json:"confidence,omitempty"`
	Source              string     `json:"source,omitempty"`
	LastChecked         *time.Time `json:"last_checked,omitempty"`
}

// ExportSource tags exported records.
const ExportSource = "people_search"

// ToExport converts a record into the CRM shape.
func (r *ResolutionRecord) ToExport() Export {
	e := Export{
		Address:    r.Address,
		Confidence: r.Confidence,
	}
	if r.Address != "" {
		e.Source = ExportSource
	}
	if !r.LastChecked.IsZero() {
		t := r.LastChecked.UTC()
		e.LastChecked = &t
	}
	if r.Property != nil {
		p := r.Property
		e.Valuation = p.Valuation
		e.Beds = p.Beds
		e.Baths = p.Baths
		e.Sqft = p.Sqft
		e.YearBuilt = p.YearBuilt
		e.PropertyType = p.PropertyType
		e.OwnershipLikelihood = OwnershipLikelihood(p.PropertyType, r.Address)
	}
	return e
}
