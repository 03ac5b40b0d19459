// Package fetcher issues page requests to the people-search source with
// rotating browser sessions, shared pacing and block/rate-limit recovery.
package fetcher

import (
	"context"
	"io"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/address-resolver/internal/resilience"
)

// Options configures workers created by a Pool.
type Options struct {
	// Cooldown is how long to wait after a 429 before the single retry.
	Cooldown time.Duration
	// RotateBackoffMin and RotateBackoffMax bound the random pause before
	// retrying on a fresh session after a block.
	RotateBackoffMin time.Duration
	RotateBackoffMax time.Duration
	// RequestTimeout bounds each HTTP round trip including the body read.
	RequestTimeout time.Duration
	// MaxBodyBytes caps how much of a page is read. Default: 4 MiB.
	MaxBodyBytes int64
	// Transport overrides the per-session transport. Tests only.
	Transport http.RoundTripper
}

func (o Options) withDefaults() Options {
	if o.Cooldown <= 0 {
		o.Cooldown = 30 * time.Second
	}
	if o.RotateBackoffMin <= 0 {
		o.RotateBackoffMin = 2 * time.Second
	}
	if o.RotateBackoffMax < o.RotateBackoffMin {
		o.RotateBackoffMax = o.RotateBackoffMin * 3
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 20 * time.Second
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = 4 << 20
	}
	return o
}

// Response is a fetched page.
type Response struct {
	URL       string
	Status    int
	Header    http.Header
	Body      []byte
	SessionID int64
}

// Worker fetches pages on one session at a time. A Worker must not be used
// by more than one goroutine; obtain one per task from Pool.Acquire.
type Worker struct {
	opts  Options
	pacer *Pacer
	sess  *Session
}

// Session returns the worker's current session, creating it if needed.
func (w *Worker) Session() (*Session, error) {
	if w.sess == nil {
		s, err := newSession(w.opts.RequestTimeout, w.opts.Transport, "")
		if err != nil {
			return nil, err
		}
		w.sess = s
	}
	return w.sess, nil
}

// Fetch GETs rawURL. A 429 is retried once on the same session after the
// cooldown; a second one returns a RateLimitError. A 403 or challenge page
// is retried once on a fresh session; a second one returns a BlockError.
// Network failures, timeouts and 5xx responses return a TransientError.
// Any other status (including 404) is returned to the caller as is.
func (w *Worker) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	rateRetried, rotated := false, false
	for {
		resp, err := w.do(ctx, rawURL)
		if err != nil {
			return nil, err
		}

		if resp.Status == http.StatusTooManyRequests {
			w.pacer.OnRateLimit()
			wait := w.opts.Cooldown
			if ra := retryAfter(resp.Header); ra > wait {
				wait = ra
			}
			if rateRetried {
				return nil, &resilience.RateLimitError{URL: rawURL, RetryAfter: wait}
			}
			rateRetried = true
			zap.L().Warn("fetcher: rate limited, cooling down",
				zap.String("url", rawURL),
				zap.Int64("session", resp.SessionID),
				zap.Duration("cooldown", wait),
			)
			if err := sleepCtx(ctx, wait); err != nil {
				return nil, eris.Wrap(err, "fetcher: cooldown")
			}
			continue
		}

		if kind := DetectBlock(resp.Status, resp.Header, resp.Body); kind != BlockNone {
			if rotated {
				return nil, &resilience.BlockError{URL: rawURL, StatusCode: resp.Status, Kind: string(kind)}
			}
			rotated = true
			zap.L().Warn("fetcher: blocked, rotating session",
				zap.String("url", rawURL),
				zap.String("kind", string(kind)),
				zap.Int64("session", resp.SessionID),
			)
			if err := w.rotate(ctx); err != nil {
				return nil, err
			}
			continue
		}

		if resilience.IsTransientHTTPStatus(resp.Status) {
			return nil, resilience.NewTransientError(
				eris.Errorf("fetcher: status %d from %s", resp.Status, rawURL), resp.Status)
		}

		w.pacer.OnSuccess()
		return resp, nil
	}
}

func (w *Worker) do(ctx context.Context, rawURL string) (*Response, error) {
	sess, err := w.Session()
	if err != nil {
		return nil, err
	}
	if err := w.pacer.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "fetcher: pacer wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: create request")
	}
	sess.Fingerprint.apply(req)
	sess.Requests++

	resp, err := sess.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "fetcher: request")
		}
		return nil, resilience.NewTransientError(eris.Wrapf(err, "fetcher: get %s", rawURL), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, w.opts.MaxBodyBytes))
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrapf(err, "fetcher: read body %s", rawURL), resp.StatusCode)
	}

	return &Response{
		URL:       rawURL,
		Status:    resp.StatusCode,
		Header:    resp.Header,
		Body:      body,
		SessionID: sess.ID,
	}, nil
}

// rotate discards the current session and opens one with a different
// fingerprint after a short random pause.
func (w *Worker) rotate(ctx context.Context) error {
	prev := ""
	if w.sess != nil {
		prev = w.sess.Fingerprint.Name
		w.sess.close()
		w.sess = nil
	}

	lo, hi := w.opts.RotateBackoffMin, w.opts.RotateBackoffMax
	wait := lo
	if hi > lo {
		wait += time.Duration(rand.Int64N(int64(hi - lo)))
	}
	if err := sleepCtx(ctx, wait); err != nil {
		return eris.Wrap(err, "fetcher: rotate backoff")
	}

	s, err := newSession(w.opts.RequestTimeout, w.opts.Transport, prev)
	if err != nil {
		return err
	}
	w.sess = s
	return nil
}

func retryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
