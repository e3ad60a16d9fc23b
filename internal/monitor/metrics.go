package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "opsagent",
		Name:      "evaluation_cycles_total",
		Help:      "Completed metric evaluation cycles.",
	})

	violationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "opsagent",
		Name:      "rule_violations_total",
		Help:      "Rule violations produced by the engine, per severity.",
	}, []string{"severity"})

	alertsFiredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "opsagent",
		Name:      "alerts_fired_total",
		Help:      "Alerts created after dedup and cooldown, per severity.",
	}, []string{"severity"})

	alertsResolvedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "opsagent",
		Name:      "alerts_resolved_total",
		Help:      "Alerts resolved by condition absence.",
	})

	remediationActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "opsagent",
		Name:      "remediation_actions_total",
		Help:      "Remediation action outcomes, per status.",
	}, []string{"status"})

	activeAlerts = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "opsagent",
		Name:      "active_alerts",
		Help:      "Currently active alerts.",
	})
)
