package apify

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/address-resolver/internal/resilience"
)

const (
	defaultPollInterval = 10 * time.Second
	defaultMaxPolls     = 60
)

// ErrPollsExhausted is returned by PollRun when the run is still going after
// the last allowed poll. The returned Run is the last status seen, so the
// caller can still read whatever the dataset holds so far.
var ErrPollsExhausted = eris.New("apify: run still active after max polls")

// PollOption configures polling behavior.
type PollOption func(*pollConfig)

type pollConfig struct {
	interval time.Duration
	maxPolls int
}

// WithPollInterval sets the fixed delay between polls.
func WithPollInterval(d time.Duration) PollOption {
	return func(c *pollConfig) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithMaxPolls bounds the number of status requests.
func WithMaxPolls(n int) PollOption {
	return func(c *pollConfig) {
		if n > 0 {
			c.maxPolls = n
		}
	}
}

// PollRun polls GetRun at a fixed interval until the run reaches a terminal
// status or maxPolls is spent. A transient error on one poll uses up that
// poll and polling continues; any other error stops polling.
func PollRun(ctx context.Context, client Client, runID string, opts ...PollOption) (*Run, error) {
	cfg := pollConfig{interval: defaultPollInterval, maxPolls: defaultMaxPolls}
	for _, opt := range opts {
		opt(&cfg)
	}

	var last *Run
	for poll := 1; poll <= cfg.maxPolls; poll++ {
		run, err := client.GetRun(ctx, runID)
		switch {
		case err == nil:
			last = run
			if run.Terminal() {
				return run, nil
			}
		case resilience.Retryable(err):
			zap.L().Warn("apify: poll failed, will poll again",
				zap.String("run", runID),
				zap.Int("poll", poll),
				zap.Error(err),
			)
		default:
			return last, eris.Wrapf(err, "apify: poll run %s", runID)
		}

		if poll == cfg.maxPolls {
			break
		}
		t := time.NewTimer(cfg.interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return last, eris.Wrapf(ctx.Err(), "apify: poll run %s", runID)
		case <-t.C:
		}
	}

	if last == nil {
		last = &Run{ID: runID}
	}
	return last, ErrPollsExhausted
}
