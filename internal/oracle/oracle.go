// Package oracle decides which, if any, of a person's search candidates is
// the person. Implementations are interchangeable behind MatchOracle.
package oracle

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sells-group/address-resolver/internal/model"
)

// MatchOracle picks the candidate matching profile. Index in the returned
// decision is 0-based into candidates, or nil when none matches.
type MatchOracle interface {
	Decide(ctx context.Context, profile model.PersonProfile, candidates []model.Candidate) (model.MatchDecision, error)
}

// Func adapts a function to MatchOracle.
type Func func(ctx context.Context, profile model.PersonProfile, candidates []model.Candidate) (model.MatchDecision, error)

// Decide calls f.
func (f Func) Decide(ctx context.Context, profile model.PersonProfile, candidates []model.Candidate) (model.MatchDecision, error) {
	return f(ctx, profile, candidates)
}

type bounded struct {
	inner MatchOracle
}

// Bounded guards o so that callers never see an index outside candidates.
// An out-of-range pick becomes no match with low confidence. An empty
// candidate list is answered without consulting o.
func Bounded(o MatchOracle) MatchOracle {
	if b, ok := o.(bounded); ok {
		return b
	}
	return bounded{inner: o}
}

func (b bounded) Decide(ctx context.Context, profile model.PersonProfile, candidates []model.Candidate) (model.MatchDecision, error) {
	if len(candidates) == 0 {
		return model.NoMatch("no candidates"), nil
	}
	d, err := b.inner.Decide(ctx, profile, candidates)
	if err != nil {
		return model.MatchDecision{}, err
	}
	if d.Index != nil && (*d.Index < 0 || *d.Index >= len(candidates)) {
		zap.L().Warn("oracle: index out of range",
			zap.Int("index", *d.Index),
			zap.Int("candidates", len(candidates)),
		)
		return model.NoMatch(fmt.Sprintf("index %d out of range: %s", *d.Index, d.Reasoning)), nil
	}
	if d.Confidence == "" {
		d.Confidence = model.ConfidenceLow
	}
	return d, nil
}
