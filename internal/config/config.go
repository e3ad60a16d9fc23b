// Package config loads agent configuration from the environment and
// the rules file from disk.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goshops-com/opsagent/internal/agent"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config is the full agent configuration. Rule thresholds live in a
// separate JSON file (RulesPath) so they can be hot-reloaded; everything
// here requires a restart.
type Config struct {
	// Interval between evaluation cycles.
	Interval time.Duration
	// DataDir holds the local database and, by default, the rules file.
	DataDir string
	// RulesPath is the JSON rules file. Missing file means defaults.
	RulesPath string

	// MaxHistory bounds the in-memory alert history buffer.
	MaxHistory int
	// Cooldown suppresses re-firing of an alert key after it fires.
	Cooldown time.Duration

	// APIURL switches persistence to a central API when set.
	APIURL   string
	APIToken string

	// WebhookURL receives alert and remediation notifications.
	WebhookURL string

	// MetricsListenAddr serves Prometheus metrics when set.
	MetricsListenAddr string

	LogLevel  string
	LogFormat string

	Agent agent.Policy
}

// Load reads configuration from the environment, honoring a .env file
// in the working directory when present.
func Load() Config {
	if err := godotenv.Load(); err == nil {
		log.Debug().Msg("loaded environment from .env")
	}

	cfg := Config{
		Interval:          envDuration("OPSAGENT_INTERVAL", 30*time.Second),
		DataDir:           envString("OPSAGENT_DATA_DIR", defaultDataDir()),
		MaxHistory:        envInt("OPSAGENT_MAX_HISTORY", 100),
		Cooldown:          envDuration("OPSAGENT_ALERT_COOLDOWN", 5*time.Minute),
		APIURL:            os.Getenv("OPSAGENT_API_URL"),
		APIToken:          os.Getenv("OPSAGENT_API_TOKEN"),
		WebhookURL:        os.Getenv("OPSAGENT_WEBHOOK_URL"),
		MetricsListenAddr: envString("OPSAGENT_METRICS_ADDR", ""),
		LogLevel:          envString("OPSAGENT_LOG_LEVEL", "info"),
		LogFormat:         envString("OPSAGENT_LOG_FORMAT", "auto"),
		Agent: agent.Policy{
			Enabled:       envBool("OPSAGENT_AGENT_ENABLED", true),
			AutoRemediate: envBool("OPSAGENT_AUTO_REMEDIATE", false),
			Provider:      envString("OPSAGENT_AI_PROVIDER", "anthropic"),
			Model:         os.Getenv("OPSAGENT_AI_MODEL"),
			MaxAutoRisk:   agent.RiskLevel(envString("OPSAGENT_MAX_AUTO_RISK", string(agent.RiskLow))),
			ActionTimeout: envDuration("OPSAGENT_ACTION_TIMEOUT", 2*time.Minute),
		},
	}
	cfg.RulesPath = envString("OPSAGENT_RULES_FILE", filepath.Join(cfg.DataDir, "rules.json"))

	return cfg
}

// AIAPIKey returns the provider API key from the environment, checking
// the generic variable first and the provider-native one second.
func (c Config) AIAPIKey() string {
	if key := os.Getenv("OPSAGENT_AI_API_KEY"); key != "" {
		return key
	}
	switch strings.ToLower(c.Agent.Provider) {
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	}
	return ""
}

// AIBaseURL returns an optional override for the provider endpoint,
// used with OpenAI-compatible servers.
func (c Config) AIBaseURL() string {
	return os.Getenv("OPSAGENT_AI_BASE_URL")
}

// Validate rejects configurations the agent cannot run with.
func (c Config) Validate() error {
	if c.Interval < time.Second {
		return fmt.Errorf("interval %s is below the 1s minimum", c.Interval)
	}
	if c.MaxHistory <= 0 {
		return fmt.Errorf("max history must be positive, got %d", c.MaxHistory)
	}
	switch c.Agent.MaxAutoRisk {
	case agent.RiskLow, agent.RiskMedium, agent.RiskHigh:
	default:
		return fmt.Errorf("unknown max auto risk %q", c.Agent.MaxAutoRisk)
	}
	return nil
}

func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".opsagent")
	}
	return "/var/lib/opsagent"
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("invalid integer in environment, using default")
		return fallback
	}
	return n
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("invalid boolean in environment, using default")
		return fallback
	}
	return b
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	// Bare numbers are seconds.
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("invalid duration in environment, using default")
		return fallback
	}
	return d
}

// unmarshalStrict decodes JSON while rejecting unknown fields, so a
// typoed rule name fails loudly instead of silently disabling the rule.
func unmarshalStrict(data []byte, v any) error {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
