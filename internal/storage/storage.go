// Package storage provides durable persistence for alerts and
// remediation records, with a local SQLite backend and a remote API
// backend selected once at startup.
package storage

import (
	"context"

	"github.com/goshops-com/opsagent/internal/agent"
	"github.com/goshops-com/opsagent/internal/alerts"
)

// Store is the persistence contract the core consumes. Writes are
// fire-and-forget from the core's perspective: a failed write is
// logged by the caller, not retried.
type Store interface {
	// SaveAlert records an alert creation or lifecycle update.
	SaveAlert(ctx context.Context, alert *alerts.Alert) error

	// SaveAgentResult records one complete remediation attempt,
	// including per-action execution records.
	SaveAgentResult(ctx context.Context, result *agent.Result) error

	Close() error
}

// Config selects and configures the backend.
type Config struct {
	// DataDir is where the local SQLite database lives.
	DataDir string
	// APIURL, when set, selects the remote backend instead.
	APIURL   string
	APIToken string
}

// Open selects the backend: remote API when APIURL is configured,
// local SQLite otherwise. The core only ever calls the Store
// interface and never branches on which variant is active.
func Open(cfg Config) (Store, error) {
	if cfg.APIURL != "" {
		return NewRemoteStore(cfg.APIURL, cfg.APIToken), nil
	}
	return NewSQLiteStore(cfg.DataDir)
}
