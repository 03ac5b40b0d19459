package model

import "strings"

// Relative is a person listed alongside a candidate on a detail page.
type Relative struct {
	Name     string `json:"name"`
	Age      string `json:"age,omitempty"`
	Location string `json:"location,omitempty"`
}

// Candidate is a single person-search hit. Search parsing fills the stub
// fields; detail parsing fills the enrichment fields.
type Candidate struct {
	DisplayName string `json:"display_name"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	AgeBracket  string `json:"age_bracket,omitempty"`
	City        string `json:"city,omitempty"`
	State       string `json:"state,omitempty"`
	DetailRef   string `json:"detail_ref"`
	Rank        int    `json:"rank"`

	StreetAddress     string     `json:"street_address,omitempty"`
	Locality          string     `json:"locality,omitempty"`
	Region            string     `json:"region,omitempty"`
	PostalCode        string     `json:"postal_code,omitempty"`
	Phones            []string   `json:"phones,omitempty"`
	Relatives         []Relative `json:"relatives,omitempty"`
	PreviousAddresses []string   `json:"previous_addresses,omitempty"`
}

// Enriched reports whether detail parsing produced a street address.
func (c Candidate) Enriched() bool {
	return c.StreetAddress != ""
}

// Merge returns c with the non-empty fields of detail applied. Rank and
// DetailRef always come from c.
func (c Candidate) Merge(detail Candidate) Candidate {
	out := c
	if detail.DisplayName != "" && out.DisplayName == "" {
		out.DisplayName = detail.DisplayName
	}
	if detail.FirstName != "" && out.FirstName == "" {
		out.FirstName = detail.FirstName
	}
	if detail.LastName != "" && out.LastName == "" {
		out.LastName = detail.LastName
	}
	if detail.AgeBracket != "" {
		out.AgeBracket = detail.AgeBracket
	}
	if detail.StreetAddress != "" {
		out.StreetAddress = detail.StreetAddress
	}
	if detail.Locality != "" {
		out.Locality = detail.Locality
	}
	if detail.Region != "" {
		out.Region = detail.Region
	}
	if detail.PostalCode != "" {
		out.PostalCode = detail.PostalCode
	}
	if len(detail.Phones) > 0 {
		out.Phones = append([]string(nil), detail.Phones...)
	}
	if len(detail.Relatives) > 0 {
		out.Relatives = append([]Relative(nil), detail.Relatives...)
	}
	if len(detail.PreviousAddresses) > 0 {
		out.PreviousAddresses = append([]string(nil), detail.PreviousAddresses...)
	}
	return out
}

// FullAddress renders "street, locality, region postal". Empty when no
// street address is known.
func (c Candidate) FullAddress() string {
	if c.StreetAddress == "" {
		return ""
	}
	parts := []string{c.StreetAddress}
	if c.Locality != "" {
		parts = append(parts, c.Locality)
	}
	tail := strings.TrimSpace(c.Region + " " + c.PostalCode)
	if tail != "" {
		parts = append(parts, tail)
	}
	return strings.Join(parts, ", ")
}
