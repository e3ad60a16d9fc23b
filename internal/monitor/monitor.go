// Package monitor drives the periodic collect-evaluate-alert loop and
// dispatches remediation for newly fired alerts.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/goshops-com/opsagent/internal/agent"
	"github.com/goshops-com/opsagent/internal/alerts"
	"github.com/goshops-com/opsagent/internal/metrics"
	"github.com/goshops-com/opsagent/internal/rules"
	"github.com/goshops-com/opsagent/internal/storage"
	"github.com/rs/zerolog/log"
)

// MetricSource produces one snapshot per cycle. Satisfied by
// metrics.Collector.
type MetricSource interface {
	Collect(ctx context.Context) metrics.Snapshot
}

// Remediator handles one alert end to end and returns its terminal
// record. Satisfied by agent.Orchestrator.
type Remediator interface {
	Handle(ctx context.Context, alert *alerts.Alert) *agent.Result
}

// EventNotifier receives alert lifecycle events.
type EventNotifier interface {
	AlertFired(alert *alerts.Alert)
	AlertResolved(alert *alerts.Alert)
}

// remediationTimeout bounds one alert's full remediation flow: the
// analysis call plus every action, each of which has its own timeout.
const remediationTimeout = 10 * time.Minute

// Monitor runs the evaluation loop. Collection, evaluation, and alert
// processing happen sequentially within a cycle; remediation runs
// asynchronously per alert so a slow AI call never stalls the loop.
type Monitor struct {
	collector MetricSource
	engine    *rules.Engine
	manager   *alerts.Manager
	agent     Remediator
	store     storage.Store
	notifier  EventNotifier

	interval time.Duration
	wg       sync.WaitGroup
}

// New wires the monitor. agent, store, and notifier may be nil.
func New(collector MetricSource, engine *rules.Engine, manager *alerts.Manager, remediator Remediator, store storage.Store, notifier EventNotifier, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	m := &Monitor{
		collector: collector,
		engine:    engine,
		manager:   manager,
		agent:     remediator,
		store:     store,
		notifier:  notifier,
		interval:  interval,
	}

	manager.OnAlert(func(alert *alerts.Alert) {
		alertsFiredTotal.WithLabelValues(string(alert.Severity)).Inc()
		m.persistAlert(alert)
		if m.notifier != nil {
			m.notifier.AlertFired(alert)
		}
	})
	manager.OnResolved(func(alert *alerts.Alert) {
		alertsResolvedTotal.Inc()
		m.persistAlert(alert)
		if m.notifier != nil {
			m.notifier.AlertResolved(alert)
		}
	})
	manager.OnAcknowledged(func(alert *alerts.Alert) {
		m.persistAlert(alert)
	})

	return m
}

// Run executes evaluation cycles until ctx is cancelled, then waits for
// any in-flight remediation to finish.
func (m *Monitor) Run(ctx context.Context) error {
	log.Info().Dur("interval", m.interval).Msg("monitor started")

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.RunCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("monitor stopping, waiting for in-flight remediation")
			m.wg.Wait()
			return nil
		case <-ticker.C:
			m.RunCycle(ctx)
		}
	}
}

// RunCycle performs one collect-evaluate-alert pass and dispatches
// remediation for every alert the cycle created.
func (m *Monitor) RunCycle(ctx context.Context) {
	snapshot := m.collector.Collect(ctx)
	violations := m.engine.Evaluate(snapshot)
	created := m.manager.ProcessViolations(violations)

	cyclesTotal.Inc()
	for _, v := range violations {
		violationsTotal.WithLabelValues(string(v.Rule.Severity)).Inc()
	}
	activeAlerts.Set(float64(len(m.manager.GetActiveAlerts())))

	log.Debug().
		Int("violations", len(violations)).
		Int("newAlerts", len(created)).
		Msg("evaluation cycle complete")

	if m.agent == nil {
		return
	}
	for _, alert := range created {
		m.wg.Add(1)
		go func(alert *alerts.Alert) {
			defer m.wg.Done()
			// Started remediations run to completion even when the loop
			// shuts down, bounded by their own timeout.
			handleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), remediationTimeout)
			defer cancel()
			result := m.agent.Handle(handleCtx, alert)
			for _, r := range result.ExecutionResults {
				remediationActionsTotal.WithLabelValues(string(r.Status())).Inc()
			}
		}(alert)
	}
}

func (m *Monitor) persistAlert(alert *alerts.Alert) {
	if m.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.store.SaveAlert(ctx, alert); err != nil {
		log.Error().Err(err).Str("alertID", alert.ID).Msg("failed to persist alert")
	}
}
