package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/address-resolver/internal/config"
)

func defaultMonitoring() config.MonitoringConfig {
	return config.MonitoringConfig{
		BlockedThreshold:     5,
		OracleErrorThreshold: 5,
		RejectRateThreshold:  0.5,
	}
}

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	a := NewAlerter(defaultMonitoring())

	snap := &MetricsSnapshot{
		Total:      100,
		Resolved:   60,
		Rejected:   20,
		InFlight:   20,
		Blocked:    2,
		RejectRate: 0.25,
	}

	assert.Empty(t, a.Evaluate(snap))
}

func TestAlerter_Evaluate_Blocked(t *testing.T) {
	a := NewAlerter(defaultMonitoring())

	snap := &MetricsSnapshot{Blocked: 7, SearchFailed: 1, InFlight: 8}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertBlocked, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "7 record(s)")
	assert.Equal(t, 1, alerts[0].Details["search_failed"])
}

func TestAlerter_Evaluate_OracleErrors(t *testing.T) {
	a := NewAlerter(defaultMonitoring())

	alerts := a.Evaluate(&MetricsSnapshot{OracleErrors: 5})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertOracleErrors, alerts[0].Type)
}

func TestAlerter_Evaluate_RejectRate(t *testing.T) {
	a := NewAlerter(defaultMonitoring())

	snap := &MetricsSnapshot{
		Total:      10,
		Resolved:   3,
		Rejected:   7,
		RejectRate: 0.7,
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertRejectRate, alerts[0].Type)
	assert.Equal(t, "medium", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "70.0%")
}

func TestAlerter_Evaluate_MultipleAlerts(t *testing.T) {
	a := NewAlerter(defaultMonitoring())

	snap := &MetricsSnapshot{
		Rejected:     9,
		Resolved:     1,
		RejectRate:   0.9,
		Blocked:      10,
		OracleErrors: 6,
	}

	alerts := a.Evaluate(snap)
	assert.Len(t, alerts, 3)

	types := make(map[AlertType]bool)
	for _, a := range alerts {
		types[a.Type] = true
	}
	assert.True(t, types[AlertBlocked])
	assert.True(t, types[AlertOracleErrors])
	assert.True(t, types[AlertRejectRate])
}

func TestAlerter_Evaluate_MinimumFinishedRequired(t *testing.T) {
	a := NewAlerter(defaultMonitoring())

	// Only 3 finished records, below the minimum for a reject rate alert.
	snap := &MetricsSnapshot{
		Resolved:   1,
		Rejected:   2,
		RejectRate: 0.666,
	}

	assert.Empty(t, a.Evaluate(snap))
}

func TestAlerter_Evaluate_ZeroThresholdsDisable(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})

	snap := &MetricsSnapshot{
		Rejected:     10,
		RejectRate:   1,
		Blocked:      50,
		OracleErrors: 50,
	}

	assert.Empty(t, a.Evaluate(snap))
}

func TestAlerter_SendAlerts_Webhook(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var alert Alert
		err := json.NewDecoder(r.Body).Decode(&alert)
		require.NoError(t, err)
		assert.NotEmpty(t, alert.Type)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{
		WebhookURL: ts.URL,
	})

	alerts := []Alert{
		{Type: AlertBlocked, Severity: "high", Message: "test alert 1"},
		{Type: AlertRejectRate, Severity: "medium", Message: "test alert 2"},
	}

	sent := a.SendAlerts(context.Background(), alerts)
	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(2), received.Load())
}

func TestAlerter_SendAlerts_EmptyURL(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{
		WebhookURL: "",
	})

	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertBlocked, Message: "test"},
	})
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_EmptyAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{
		WebhookURL: "http://example.com",
	})

	sent := a.SendAlerts(context.Background(), nil)
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{
		WebhookURL: ts.URL,
	})

	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertBlocked, Message: "test"}})
	assert.Equal(t, 0, sent)
}
