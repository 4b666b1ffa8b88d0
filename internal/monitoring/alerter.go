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

	"github.com/fundflow/fundflow/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertFailureRate  AlertType = "failure_rate"
	AlertConflictRate AlertType = "conflict_rate"
	AlertSourceDown   AlertType = "source_down"
	AlertCircuitOpen  AlertType = "circuit_open"
)

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
// Rates are evaluated only once the window holds enough jobs to be meaningful.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	if snap.JobsTotal >= 5 && snap.FailureRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Discovery failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d jobs)",
				snap.FailureRate*100, a.cfg.FailureRateThreshold*100,
				snap.JobsFailed, snap.JobsTotal,
			),
			Details: map[string]any{
				"failure_rate": snap.FailureRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.JobsFailed,
				"total":        snap.JobsTotal,
			},
			Timestamp: now,
		})
	}

	if snap.JobsTotal >= 5 && a.cfg.ConflictRateThreshold > 0 && snap.ConflictRate > a.cfg.ConflictRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertConflictRate,
			Severity: "medium",
			Message: fmt.Sprintf(
				"Conflict rate %.1f%% exceeds threshold %.1f%% over last %d jobs",
				snap.ConflictRate*100, a.cfg.ConflictRateThreshold*100, snap.JobsTotal,
			),
			Details: map[string]any{
				"conflict_rate": snap.ConflictRate,
				"threshold":     a.cfg.ConflictRateThreshold,
			},
			Timestamp: now,
		})
	}

	// A source failing on more than half the jobs in the window is effectively down.
	for src, failures := range snap.SourceFailures {
		if snap.JobsTotal >= 5 && failures*2 > snap.JobsTotal {
			alerts = append(alerts, Alert{
				Type:     AlertSourceDown,
				Severity: "high",
				Message: fmt.Sprintf(
					"Source %s failed on %d of %d recent jobs",
					src, failures, snap.JobsTotal,
				),
				Details: map[string]any{
					"source":   src,
					"failures": failures,
					"total":    snap.JobsTotal,
				},
				Timestamp: now,
			})
		}
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
