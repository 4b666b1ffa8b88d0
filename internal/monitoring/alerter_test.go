package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fundflow/fundflow/internal/config"
)

func testMonitoringConfig() config.MonitoringConfig {
	return config.MonitoringConfig{
		FailureRateThreshold:  0.5,
		ConflictRateThreshold: 0.3,
	}
}

func TestEvaluateQuietBelowThresholds(t *testing.T) {
	a := NewAlerter(testMonitoringConfig())
	alerts := a.Evaluate(&MetricsSnapshot{
		JobsTotal:    10,
		JobsFailed:   2,
		FailureRate:  0.2,
		ConflictRate: 0.1,
	})
	assert.Empty(t, alerts)
}

func TestEvaluateSmallWindowNeverAlerts(t *testing.T) {
	a := NewAlerter(testMonitoringConfig())
	alerts := a.Evaluate(&MetricsSnapshot{
		JobsTotal:      3,
		JobsFailed:     3,
		FailureRate:    1.0,
		ConflictRate:   1.0,
		SourceFailures: map[string]int{"github": 3},
	})
	assert.Empty(t, alerts)
}

func TestEvaluateFailureRate(t *testing.T) {
	a := NewAlerter(testMonitoringConfig())
	alerts := a.Evaluate(&MetricsSnapshot{
		JobsTotal:   10,
		JobsFailed:  7,
		FailureRate: 0.7,
	})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertFailureRate, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "70.0%")
}

func TestEvaluateConflictRate(t *testing.T) {
	a := NewAlerter(testMonitoringConfig())
	alerts := a.Evaluate(&MetricsSnapshot{
		JobsTotal:    10,
		ConflictRate: 0.4,
	})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertConflictRate, alerts[0].Type)
	assert.Equal(t, "medium", alerts[0].Severity)
}

func TestEvaluateConflictRateDisabled(t *testing.T) {
	cfg := testMonitoringConfig()
	cfg.ConflictRateThreshold = 0
	a := NewAlerter(cfg)
	alerts := a.Evaluate(&MetricsSnapshot{JobsTotal: 10, ConflictRate: 0.9})
	assert.Empty(t, alerts)
}

func TestEvaluateSourceDown(t *testing.T) {
	a := NewAlerter(testMonitoringConfig())
	alerts := a.Evaluate(&MetricsSnapshot{
		JobsTotal: 10,
		SourceFailures: map[string]int{
			"github":    6, // down: failed on more than half
			"defillama": 2, // flaky but alive
		},
	})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertSourceDown, alerts[0].Type)
	assert.Equal(t, "github", alerts[0].Details["source"])
}

func TestSendAlertsPostsWebhook(t *testing.T) {
	var received []Alert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var alert Alert
		require.NoError(t, json.NewDecoder(r.Body).Decode(&alert))
		received = append(received, alert)
	}))
	defer srv.Close()

	cfg := testMonitoringConfig()
	cfg.WebhookURL = srv.URL
	a := NewAlerter(cfg)

	sent := a.SendAlerts(context.Background(), a.Evaluate(&MetricsSnapshot{
		JobsTotal:   10,
		JobsFailed:  8,
		FailureRate: 0.8,
	}))
	assert.Equal(t, 1, sent)
	require.Len(t, received, 1)
	assert.Equal(t, AlertFailureRate, received[0].Type)
}

func TestSendAlertsWebhookFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := testMonitoringConfig()
	cfg.WebhookURL = srv.URL
	a := NewAlerter(cfg)

	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertFailureRate}})
	assert.Equal(t, 0, sent)
}

func TestSendAlertsNoWebhookConfigured(t *testing.T) {
	a := NewAlerter(testMonitoringConfig())
	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertFailureRate}})
	assert.Equal(t, 0, sent)
}
