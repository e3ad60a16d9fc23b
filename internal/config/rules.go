package config

import (
	"fmt"
	"os"

	"github.com/goshops-com/opsagent/internal/rules"
	"github.com/rs/zerolog/log"
)

// LoadRulesFile reads the JSON rule set from path. A missing file is
// not an error: the built-in defaults are returned so a fresh install
// monitors sensibly out of the box. A malformed file is an error, so
// the caller can keep the previous rule set instead of degrading.
func LoadRulesFile(path string) (rules.Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		log.Info().Str("path", path).Msg("no rules file, using default rule set")
		return rules.DefaultConfig(), nil
	}
	if err != nil {
		return rules.Config{}, fmt.Errorf("read rules file %s: %w", path, err)
	}

	var cfg rules.Config
	if err := unmarshalStrict(data, &cfg); err != nil {
		return rules.Config{}, fmt.Errorf("parse rules file %s: %w", path, err)
	}

	log.Info().Str("path", path).Msg("loaded rules file")
	return cfg, nil
}
