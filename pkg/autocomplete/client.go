// Package autocomplete resolves a free-text address to a listing site's
// location id through its address autocomplete endpoint.
package autocomplete

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/address-resolver/internal/resilience"
)

const defaultBaseURL = "https://parser-external.geo.moveaws.com/suggest"

// Client resolves addresses to location ids.
type Client interface {
	// Resolve returns the location id of the top-ranked suggestion for
	// address. found is false when the endpoint returns no usable result.
	Resolve(ctx context.Context, address string) (id string, found bool, err error)
}

// Suggestion is one autocomplete result.
type Suggestion struct {
	ID          string   `json:"mpr_id"`
	AreaType    string   `json:"area_type"`
	FullAddress []string `json:"full_address"`
	Line        string   `json:"line"`
	City        string   `json:"city"`
	StateCode   string   `json:"state_code"`
	PostalCode  string   `json:"postal_code"`
	Score       float64  `json:"score"`
}

type suggestResponse struct {
	Autocomplete []Suggestion `json:"autocomplete"`
}

// Option configures the client.
type Option func(*client)

// WithBaseURL overrides the autocomplete endpoint.
func WithBaseURL(u string) Option {
	return func(c *client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) { c.http = hc }
}

// WithRateLimit sets the requests-per-second ceiling.
func WithRateLimit(rps float64) Option {
	return func(c *client) {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithCacheTTL sets how long lookups (hits and misses) are memoized.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *client) { c.cache = cache.New(ttl, 2*ttl) }
}

// WithClientID sets the client_id query parameter.
func WithClientID(id string) Option {
	return func(c *client) { c.clientID = id }
}

type client struct {
	baseURL  string
	clientID string
	http     *http.Client
	limiter  *rate.Limiter
	cache    *cache.Cache
}

type cached struct {
	id    string
	found bool
}

// NewClient creates an autocomplete Client.
func NewClient(opts ...Option) Client {
	c := &client{
		baseURL:  defaultBaseURL,
		clientID: "rdc-home",
		http:     &http.Client{Timeout: 15 * time.Second},
		limiter:  rate.NewLimiter(2, 2),
		cache:    cache.New(24*time.Hour, 48*time.Hour),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func cacheKey(address string) string {
	return strings.ToLower(strings.Join(strings.Fields(address), " "))
}

// Resolve looks up address and takes only the first suggestion. Errors are
// not cached, so a later call retries the endpoint.
func (c *client) Resolve(ctx context.Context, address string) (string, bool, error) {
	key := cacheKey(address)
	if key == "" {
		return "", false, nil
	}
	if v, ok := c.cache.Get(key); ok {
		hit := v.(cached)
		return hit.id, hit.found, nil
	}

	suggestions, err := c.suggest(ctx, address)
	if err != nil {
		return "", false, err
	}

	var res cached
	if len(suggestions) > 0 && suggestions[0].ID != "" {
		res = cached{id: suggestions[0].ID, found: true}
	}
	c.cache.Set(key, res, cache.DefaultExpiration)

	zap.L().Debug("autocomplete: resolved",
		zap.String("address", address),
		zap.Bool("found", res.found),
		zap.Int("suggestions", len(suggestions)),
	)
	return res.id, res.found, nil
}

func (c *client) suggest(ctx context.Context, address string) ([]Suggestion, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "autocomplete: rate limit")
	}

	params := url.Values{
		"input":      {address},
		"client_id":  {c.clientID},
		"limit":      {"5"},
		"area_types": {"address"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "autocomplete: build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "autocomplete: request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "autocomplete: read body"), resp.StatusCode)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &resilience.RateLimitError{URL: c.baseURL}
	case resilience.IsTransientHTTPStatus(resp.StatusCode):
		return nil, resilience.NewTransientError(
			eris.Errorf("autocomplete: status %d", resp.StatusCode), resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, eris.Errorf("autocomplete: status %d: %s", resp.StatusCode, truncate(body, 200))
	}

	var out suggestResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "autocomplete: decode response")
	}
	return out.Autocomplete, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return fmt.Sprintf("%s...", b[:n])
}
