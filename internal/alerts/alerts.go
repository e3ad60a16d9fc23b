// Package alerts owns alert identity, deduplication, cooldown, and
// lifecycle across evaluation cycles.
package alerts

import (
	"sort"
	"sync"
	"time"

	"github.com/goshops-com/opsagent/internal/rules"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Alert represents one alerting condition from creation to resolution.
// Its ID is globally unique and stable for the whole lifecycle; its
// dedup identity is the derived key, not the ID.
type Alert struct {
	ID            string         `json:"id"`
	Severity      rules.Severity `json:"severity"`
	Message       string         `json:"message"`
	Metric        string         `json:"metric"`
	CurrentValue  float64        `json:"currentValue"`
	Threshold     float64        `json:"threshold"`
	Timestamp     time.Time      `json:"timestamp"`
	Acknowledged  bool           `json:"acknowledged"`
	ResolvedAt    *time.Time     `json:"resolvedAt,omitempty"`
	AgentResponse string         `json:"agentResponse,omitempty"`
	AgentActions  []string       `json:"agentActions,omitempty"`
}

// Key derives the dedup identity: identical (metric, severity, message)
// always map to the same key regardless of the current value.
func (a *Alert) Key() string {
	return a.Metric + "|" + string(a.Severity) + "|" + a.Message
}

// KeyFor derives the dedup key for a violation.
func KeyFor(v rules.Violation) string {
	return v.Metric + "|" + string(v.Rule.Severity) + "|" + v.Rule.Message
}

// Clone returns a deep copy of the alert so it can be safely shared
// across goroutines.
func (a *Alert) Clone() *Alert {
	if a == nil {
		return nil
	}

	clone := *a
	if a.ResolvedAt != nil {
		t := *a.ResolvedAt
		clone.ResolvedAt = &t
	}
	if len(a.AgentActions) > 0 {
		clone.AgentActions = append([]string(nil), a.AgentActions...)
	}
	return &clone
}

// Config controls manager bookkeeping.
type Config struct {
	// MaxHistory bounds the history buffer; oldest entries are evicted
	// first once the capacity is reached.
	MaxHistory int
	// Cooldown is the minimum elapsed time after a key last fired
	// before it may fire again.
	Cooldown time.Duration
}

// Manager consumes violations each cycle and tracks alert lifecycle.
// The active map, cooldown map, and history buffer are owned
// exclusively by the manager; mutating calls are serialized by m.mu.
type Manager struct {
	mu sync.RWMutex

	active    map[string]*Alert    // keyed by alert key
	cooldowns map[string]time.Time // alert key -> last fired
	history   []*Alert             // insertion order, oldest first

	maxHistory int
	cooldown   time.Duration

	onAlert        []func(*Alert)
	onResolved     []func(*Alert)
	onAcknowledged []func(*Alert)

	now func() time.Time
}

// NewManager creates an alert manager.
func NewManager(cfg Config) *Manager {
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = 100
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}

	return &Manager{
		active:     make(map[string]*Alert),
		cooldowns:  make(map[string]time.Time),
		maxHistory: cfg.MaxHistory,
		cooldown:   cfg.Cooldown,
		now:        time.Now,
	}
}

// OnAlert registers a callback for newly created alerts. Callbacks run
// outside the manager lock.
func (m *Manager) OnAlert(cb func(*Alert)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onAlert = append(m.onAlert, cb)
}

// OnResolved registers a callback for resolved alerts.
func (m *Manager) OnResolved(cb func(*Alert)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onResolved = append(m.onResolved, cb)
}

// OnAcknowledged registers a callback for acknowledged alerts.
func (m *Manager) OnAcknowledged(cb func(*Alert)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onAcknowledged = append(m.onAcknowledged, cb)
}

// ProcessViolations reconciles one cycle's violations against the
// active set. For each violation: skip when its key is cooling down or
// already active, otherwise create a new alert, stamp the cooldown, and
// append to history. Once every violation has been registered, any
// active alert whose key was absent this cycle is resolved; resolution
// is purely a function of absence. Returns the newly created alerts.
func (m *Manager) ProcessViolations(violations []rules.Violation) []*Alert {
	m.mu.Lock()

	now := m.now()
	seen := make(map[string]struct{}, len(violations))
	var created []*Alert

	for _, v := range violations {
		key := KeyFor(v)
		seen[key] = struct{}{}

		if _, active := m.active[key]; active {
			continue
		}
		if fired, ok := m.cooldowns[key]; ok && now.Sub(fired) < m.cooldown {
			log.Debug().Str("key", key).Msg("violation suppressed by cooldown")
			continue
		}

		alert := &Alert{
			ID:           uuid.NewString(),
			Severity:     v.Rule.Severity,
			Message:      v.Rule.Message,
			Metric:       v.Metric,
			CurrentValue: v.CurrentValue,
			Threshold:    v.Rule.Value,
			Timestamp:    now,
		}

		m.active[key] = alert
		m.cooldowns[key] = now
		m.appendHistory(alert)
		created = append(created, alert)
	}

	// Resolution decisions are made only after the full cycle's keys
	// are registered; partial views are not permitted.
	var resolved []*Alert
	for key, alert := range m.active {
		if _, ok := seen[key]; ok {
			continue
		}
		resolvedAt := now
		alert.ResolvedAt = &resolvedAt
		delete(m.active, key)
		resolved = append(resolved, alert)
	}

	onAlert := append([]func(*Alert){}, m.onAlert...)
	onResolved := append([]func(*Alert){}, m.onResolved...)

	createdCopies := cloneAll(created)
	resolvedCopies := cloneAll(resolved)
	m.mu.Unlock()

	for _, alert := range createdCopies {
		log.Info().
			Str("alertID", alert.ID).
			Str("metric", alert.Metric).
			Str("severity", string(alert.Severity)).
			Float64("value", alert.CurrentValue).
			Msg("alert fired")
		for _, cb := range onAlert {
			cb(alert.Clone())
		}
	}
	for _, alert := range resolvedCopies {
		log.Info().
			Str("alertID", alert.ID).
			Str("metric", alert.Metric).
			Msg("alert resolved")
		for _, cb := range onResolved {
			cb(alert.Clone())
		}
	}

	return createdCopies
}

// AcknowledgeAlert marks an active alert as acknowledged by ID. Returns
// false when no active alert carries the ID; acknowledging resolved or
// historical alerts is not supported.
func (m *Manager) AcknowledgeAlert(alertID string) bool {
	m.mu.Lock()

	var target *Alert
	for _, alert := range m.active {
		if alert.ID == alertID {
			target = alert
			break
		}
	}
	if target == nil {
		m.mu.Unlock()
		return false
	}

	target.Acknowledged = true
	callbacks := append([]func(*Alert){}, m.onAcknowledged...)
	clone := target.Clone()
	m.mu.Unlock()

	log.Info().Str("alertID", alertID).Msg("alert acknowledged")
	for _, cb := range callbacks {
		cb(clone.Clone())
	}
	return true
}

// UpdateAlertWithAgentResponse attaches orchestrator output to the
// alert. The historical record is updated even when the alert has
// already resolved, so completed remediations are never lost.
func (m *Manager) UpdateAlertWithAgentResponse(alertID, response string, actions []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	updated := false
	for i := len(m.history) - 1; i >= 0; i-- {
		if m.history[i].ID == alertID {
			m.history[i].AgentResponse = response
			m.history[i].AgentActions = append([]string(nil), actions...)
			updated = true
			break
		}
	}

	// The active entry shares the history object, but cover the case
	// where a small history buffer already evicted it.
	if !updated {
		for _, alert := range m.active {
			if alert.ID == alertID {
				alert.AgentResponse = response
				alert.AgentActions = append([]string(nil), actions...)
				updated = true
				break
			}
		}
	}

	if !updated {
		log.Warn().Str("alertID", alertID).Msg("agent response for unknown alert dropped")
	}
}

// GetActiveAlerts returns copies of all active alerts, oldest first.
func (m *Manager) GetActiveAlerts() []*Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()

	alerts := make([]*Alert, 0, len(m.active))
	for _, alert := range m.active {
		alerts = append(alerts, alert.Clone())
	}
	sort.Slice(alerts, func(i, j int) bool {
		if alerts[i].Timestamp.Equal(alerts[j].Timestamp) {
			return alerts[i].Metric < alerts[j].Metric
		}
		return alerts[i].Timestamp.Before(alerts[j].Timestamp)
	})
	return alerts
}

// GetAlertHistory returns copies of the bounded history buffer in
// insertion order, oldest first.
func (m *Manager) GetAlertHistory() []*Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneAll(m.history)
}

// GetAlertByID looks an alert up by ID, checking active alerts first
// and then history. Returns nil when not found.
func (m *Manager) GetAlertByID(alertID string) *Alert {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, alert := range m.active {
		if alert.ID == alertID {
			return alert.Clone()
		}
	}
	for i := len(m.history) - 1; i >= 0; i-- {
		if m.history[i].ID == alertID {
			return m.history[i].Clone()
		}
	}
	return nil
}

// appendHistory appends with strict FIFO eviction. Must be called with
// m.mu held.
func (m *Manager) appendHistory(alert *Alert) {
	m.history = append(m.history, alert)
	if len(m.history) > m.maxHistory {
		evicted := len(m.history) - m.maxHistory
		m.history = append([]*Alert(nil), m.history[evicted:]...)
	}
}

func cloneAll(alerts []*Alert) []*Alert {
	if alerts == nil {
		return nil
	}
	copies := make([]*Alert, len(alerts))
	for i, alert := range alerts {
		copies[i] = alert.Clone()
	}
	return copies
}
