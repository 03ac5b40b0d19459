package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/address-resolver/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertBlocked      AlertType = "search_blocked"
	AlertOracleErrors AlertType = "oracle_errors"
	AlertRejectRate   AlertType = "reject_rate"
)

// minTerminal is the number of finished records needed before the reject
// rate is judged.
const minTerminal = 5

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
// A zero threshold disables its check.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	// Blocked searches usually mean the site fingerprinted us.
	if a.cfg.BlockedThreshold > 0 && snap.Blocked >= a.cfg.BlockedThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertBlocked,
			Severity: "high",
			Message:  fmt.Sprintf("%d record(s) stuck in searching after a block", snap.Blocked),
			Details: map[string]any{
				"blocked":       snap.Blocked,
				"search_failed": snap.SearchFailed,
				"threshold":     a.cfg.BlockedThreshold,
			},
			Timestamp: now,
		})
	}

	if a.cfg.OracleErrorThreshold > 0 && snap.OracleErrors >= a.cfg.OracleErrorThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertOracleErrors,
			Severity: "high",
			Message:  fmt.Sprintf("%d record(s) waiting on a failed match decision", snap.OracleErrors),
			Details: map[string]any{
				"oracle_errors": snap.OracleErrors,
				"threshold":     a.cfg.OracleErrorThreshold,
			},
			Timestamp: now,
		})
	}

	terminal := snap.Terminal()
	if a.cfg.RejectRateThreshold > 0 && terminal >= minTerminal && snap.RejectRate > a.cfg.RejectRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertRejectRate,
			Severity: "medium",
			Message: fmt.Sprintf(
				"Reject rate %.1f%% exceeds threshold %.1f%% (%d rejected / %d finished)",
				snap.RejectRate*100, a.cfg.RejectRateThreshold*100, snap.Rejected, terminal,
			),
			Details: map[string]any{
				"reject_rate": snap.RejectRate,
				"threshold":   a.cfg.RejectRateThreshold,
				"rejected":    snap.Rejected,
				"finished":    terminal,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
