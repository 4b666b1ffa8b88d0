package monitoring

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fundflow/fundflow/internal/config"
	"github.com/fundflow/fundflow/internal/resilience"
)

// Checker runs periodic health checks in the background. Each tick it
// evaluates the audit window against the alerter's thresholds and, when
// wired to the fan-out's breakers, raises an alert for every circuit that
// is currently open. A condition alerts once when it fires and again only
// after it has cleared for a tick, so a source that stays down does not
// page on every interval.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig

	breakerStates func() map[string]resilience.CircuitState
	active        map[string]bool
}

// NewChecker creates a background health checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
		active:    map[string]bool{},
	}
}

// WithBreakers adds the fan-out's circuit breakers to the per-tick checks.
func (c *Checker) WithBreakers(sb *resilience.SourceBreakers) *Checker {
	c.breakerStates = sb.States
	return c
}

// Run starts the periodic check loop. It blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting health checker",
		zap.Duration("interval", interval),
		zap.Int("lookback_entries", c.cfg.LookbackEntries),
		zap.Bool("breakers_wired", c.breakerStates != nil),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("health checker stopped")
			return
		case <-ticker.C:
			c.check(ctx, log)
		}
	}
}

func (c *Checker) check(ctx context.Context, log *zap.Logger) {
	snap, err := c.collector.Collect(ctx, c.cfg.LookbackEntries)
	if err != nil {
		log.Error("monitoring: failed to collect metrics", zap.Error(err))
		return
	}

	alerts := append(c.alerter.Evaluate(snap), c.breakerAlerts()...)
	fresh := c.suppressRepeats(alerts)
	if len(fresh) == 0 {
		log.Debug("monitoring: no new alerts", zap.Int("still_active", len(alerts)))
		return
	}

	sent := c.alerter.SendAlerts(ctx, fresh)
	log.Info("monitoring: health check complete",
		zap.Int("alerts_triggered", len(fresh)),
		zap.Int("alerts_sent", sent),
	)
}

// breakerAlerts reports every source whose circuit is currently open. Open
// circuits surface outages faster than the audit window, which only moves
// when discovery jobs run.
func (c *Checker) breakerAlerts() []Alert {
	if c.breakerStates == nil {
		return nil
	}
	var alerts []Alert
	for src, state := range c.breakerStates() {
		if state != resilience.CircuitOpen {
			continue
		}
		alerts = append(alerts, Alert{
			Type:     AlertCircuitOpen,
			Severity: "high",
			Message:  fmt.Sprintf("Source %s circuit is open, calls are being rejected", src),
			Details: map[string]any{
				"source": src,
				"state":  state.String(),
			},
			Timestamp: time.Now().UTC(),
		})
	}
	return alerts
}

// suppressRepeats keeps only alerts whose condition was not already firing
// on the previous tick and records the current set for the next one.
func (c *Checker) suppressRepeats(alerts []Alert) []Alert {
	current := make(map[string]bool, len(alerts))
	var fresh []Alert
	for _, a := range alerts {
		key := alertKey(a)
		current[key] = true
		if !c.active[key] {
			fresh = append(fresh, a)
		}
	}
	c.active = current
	return fresh
}

func alertKey(a Alert) string {
	src, _ := a.Details["source"].(string)
	return string(a.Type) + "/" + src
}
