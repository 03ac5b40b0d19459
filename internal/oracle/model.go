package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/address-resolver/internal/model"
	"github.com/sells-group/address-resolver/internal/resilience"
	"github.com/sells-group/address-resolver/pkg/anthropic"
)

const (
	defaultModel     = "claude-haiku-4-5-20251001"
	defaultMaxTokens = 512
)

const systemPrompt = `You match a known person to people-search results.
You are given what is known about the person and a numbered list of candidates.
Reply with one JSON object and nothing else:
{"best_candidate_index": <1-based number, or 0 or null if none match>, "confidence": "high" | "medium" | "low", "reasoning": "<one sentence>"}`

// ErrUnparseable is returned when the model reply has no decision object.
var ErrUnparseable = eris.New("oracle: unparseable model reply")

// ModelConfig configures ModelOracle.
type ModelConfig struct {
	Model     string
	MaxTokens int64
}

// ModelOracle asks a language model to pick the candidate.
type ModelOracle struct {
	client  anthropic.Client
	breaker *resilience.CircuitBreaker
	cfg     ModelConfig
}

// NewModelOracle creates a ModelOracle. breaker may be nil.
func NewModelOracle(client anthropic.Client, breaker *resilience.CircuitBreaker, cfg ModelConfig) *ModelOracle {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	return &ModelOracle{client: client, breaker: breaker, cfg: cfg}
}

// Decide sends the profile and candidates to the model and parses its reply.
func (o *ModelOracle) Decide(ctx context.Context, profile model.PersonProfile, candidates []model.Candidate) (model.MatchDecision, error) {
	if len(candidates) == 0 {
		return model.NoMatch("no candidates"), nil
	}

	temp := 0.0
	req := anthropic.MessageRequest{
		Model:       o.cfg.Model,
		MaxTokens:   o.cfg.MaxTokens,
		System:      anthropic.CachedSystem(systemPrompt),
		Messages:    []anthropic.Message{{Role: "user", Content: BuildPrompt(profile, candidates)}},
		Temperature: &temp,
	}

	call := func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return o.client.CreateMessage(ctx, req)
	}
	var (
		resp *anthropic.MessageResponse
		err  error
	)
	if o.breaker != nil {
		resp, err = resilience.ExecuteVal(ctx, o.breaker, call)
	} else {
		resp, err = call(ctx)
	}
	if err != nil {
		return model.MatchDecision{}, eris.Wrap(err, "oracle: model call")
	}
	resp.Usage.LogCost(o.cfg.Model, "verify")

	return ParseReply(resp.Text())
}

// BuildPrompt renders the user message: the profile followed by candidates
// numbered from 1.
func BuildPrompt(profile model.PersonProfile, candidates []model.Candidate) string {
	var b strings.Builder
	b.WriteString("Person:\n")
	writeField(&b, "Employment", profile.Employment)
	writeField(&b, "Education", profile.Education)
	writeField(&b, "City", profile.City)
	writeField(&b, "State", profile.State)

	b.WriteString("\nCandidates:\n")
	for i, c := range candidates {
		fmt.Fprintf(&b, "%d. %s", i+1, c.DisplayName)
		if c.AgeBracket != "" {
			fmt.Fprintf(&b, ", age %s", c.AgeBracket)
		}
		if loc := strings.Trim(c.City+", "+c.State, ", "); loc != "" {
			fmt.Fprintf(&b, ", %s", loc)
		}
		b.WriteByte('\n')
		writeField(&b, "   Address", c.FullAddress())
		if len(c.PreviousAddresses) > 0 {
			writeField(&b, "   Previous", strings.Join(c.PreviousAddresses, "; "))
		}
		if len(c.Relatives) > 0 {
			names := make([]string, 0, len(c.Relatives))
			for _, r := range c.Relatives {
				names = append(names, r.Name)
			}
			writeField(&b, "   Relatives", strings.Join(names, ", "))
		}
	}
	return b.String()
}

func writeField(b *strings.Builder, label, value string) {
	if value = strings.TrimSpace(value); value != "" {
		fmt.Fprintf(b, "%s: %s\n", label, value)
	}
}

type reply struct {
	Index      *int   `json:"best_candidate_index"`
	Confidence string `json:"confidence"`
	Reasoning  string `json:"reasoning"`
}

// ParseReply extracts the decision object from a model reply and converts
// the 1-based index to 0-based. An index of 0 or null selects nothing.
func ParseReply(text string) (model.MatchDecision, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return model.MatchDecision{}, eris.Wrapf(ErrUnparseable, "no object in %q", truncate(text, 120))
	}

	var r reply
	if err := json.Unmarshal([]byte(text[start:end+1]), &r); err != nil {
		return model.MatchDecision{}, eris.Wrapf(ErrUnparseable, "%v", err)
	}

	d := model.MatchDecision{
		Confidence: model.ParseConfidence(r.Confidence),
		Reasoning:  r.Reasoning,
	}
	if r.Index != nil && *r.Index != 0 {
		idx := *r.Index - 1
		d.Index = &idx
	}
	return d, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
