package oracle

import (
	"context"
	"fmt"
	"math"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/address-resolver/internal/model"
)

// Weights configures RuleOracle. Each signal adds its weight to a
// candidate's score when present; RankPrior is divided by the candidate's
// search rank.
type Weights struct {
	CityMatch     float64 `yaml:"city_match"`
	StateMatch    float64 `yaml:"state_match"`
	EmployerCity  float64 `yaml:"employer_city"`
	EducationCity float64 `yaml:"education_city"`
	Relatives     float64 `yaml:"relatives"`
	AgePlausible  float64 `yaml:"age_plausible"`
	HasAddress    float64 `yaml:"has_address"`
	RankPrior     float64 `yaml:"rank_prior"`

	// Score bands. A best score at or above High is high confidence, at or
	// above Medium is medium, anything else low.
	High   float64 `yaml:"high"`
	Medium float64 `yaml:"medium"`
}

// DefaultWeights returns the built-in weights.
func DefaultWeights() Weights {
	return Weights{
		CityMatch:     3,
		StateMatch:    2,
		EmployerCity:  1.5,
		EducationCity: 1,
		Relatives:     0.5,
		AgePlausible:  0.5,
		HasAddress:    1,
		RankPrior:     1,
		High:          7,
		Medium:        5,
	}
}

// Validate checks that weights are non-negative and bands ordered.
func (w Weights) Validate() error {
	var errs []string
	for name, v := range map[string]float64{
		"city_match": w.CityMatch, "state_match": w.StateMatch,
		"employer_city": w.EmployerCity, "education_city": w.EducationCity,
		"relatives": w.Relatives, "age_plausible": w.AgePlausible,
		"has_address": w.HasAddress, "rank_prior": w.RankPrior,
	} {
		if v < 0 || math.IsNaN(v) {
			errs = append(errs, fmt.Sprintf("%s must be >= 0, got %v", name, v))
		}
	}
	if w.Medium <= 0 || w.High < w.Medium {
		errs = append(errs, fmt.Sprintf("bands must satisfy 0 < medium (%v) <= high (%v)", w.Medium, w.High))
	}
	if len(errs) > 0 {
		sort.Strings(errs)
		return eris.Errorf("oracle: invalid weights: %s", strings.Join(errs, "; "))
	}
	return nil
}

// LoadWeights reads weights from a YAML file with a top-level "weights" key.
// Keys missing from the file keep their defaults.
func LoadWeights(path string) (Weights, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Weights{}, eris.Wrapf(err, "oracle: read weights %s", path)
	}

	wrapper := struct {
		Weights Weights `yaml:"weights"`
	}{Weights: DefaultWeights()}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return Weights{}, eris.Wrap(err, "oracle: parse weights")
	}
	if err := wrapper.Weights.Validate(); err != nil {
		return Weights{}, err
	}
	return wrapper.Weights, nil
}

// RuleOracle scores candidates with a weighted sum of match signals.
type RuleOracle struct {
	w Weights
}

// NewRuleOracle creates a RuleOracle.
func NewRuleOracle(w Weights) *RuleOracle {
	return &RuleOracle{w: w}
}

// Decide picks the highest scoring candidate. Equal best scores are a tie
// and select nothing.
func (r *RuleOracle) Decide(_ context.Context, profile model.PersonProfile, candidates []model.Candidate) (model.MatchDecision, error) {
	if len(candidates) == 0 {
		return model.NoMatch("no candidates"), nil
	}

	best, second := -1, -1
	scores := make([]float64, len(candidates))
	for i, c := range candidates {
		scores[i] = r.Score(profile, c)
		switch {
		case best < 0 || scores[i] > scores[best]:
			second = best
			best = i
		case second < 0 || scores[i] > scores[second]:
			second = i
		}
	}

	if second >= 0 && math.Abs(scores[best]-scores[second]) < 1e-9 {
		return model.NoMatch(fmt.Sprintf("tie between candidates %d and %d at %.2f", second+1, best+1, scores[best])), nil
	}

	conf := model.ConfidenceLow
	switch {
	case scores[best] >= r.w.High:
		conf = model.ConfidenceHigh
	case scores[best] >= r.w.Medium:
		conf = model.ConfidenceMedium
	}
	return model.Pick(best, conf, fmt.Sprintf("score %.2f", scores[best])), nil
}

// Score computes the weighted signal sum for one candidate.
func (r *RuleOracle) Score(profile model.PersonProfile, c model.Candidate) float64 {
	city := firstNonEmpty(c.Locality, c.City)
	state := model.NormalizeState(firstNonEmpty(c.Region, c.State))

	var s float64
	if city != "" && strings.EqualFold(city, strings.TrimSpace(profile.City)) {
		s += r.w.CityMatch
	}
	if state != "" && state == model.NormalizeState(profile.State) {
		s += r.w.StateMatch
	}
	if mentions(profile.Employment, city) {
		s += r.w.EmployerCity
	}
	if mentions(profile.Education, city) || mentions(profile.Education, model.StateName(state)) {
		s += r.w.EducationCity
	}
	if len(c.Relatives) > 0 {
		s += r.w.Relatives
	}
	if agePlausible(c.AgeBracket) {
		s += r.w.AgePlausible
	}
	if c.Enriched() {
		s += r.w.HasAddress
	}
	if c.Rank > 0 {
		s += r.w.RankPrior / float64(c.Rank)
	}
	return s
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// mentions reports whether needle occurs in text as whole words.
func mentions(text, needle string) bool {
	if text == "" || needle == "" {
		return false
	}
	re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(needle) + `\b`)
	if err != nil {
		return false
	}
	return re.MatchString(text)
}

var twoDigitsRe = regexp.MustCompile(`\d{2}`)

// agePlausible reports whether a bracket like "47" or "50s" is an adult age.
func agePlausible(bracket string) bool {
	m := twoDigitsRe.FindString(bracket)
	if m == "" {
		return false
	}
	n, _ := strconv.Atoi(m)
	return n >= 18 && n <= 99
}
