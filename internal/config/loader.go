package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if VERSUS_CONFIG is set
//  3. env (prefix VERSUS_)
func Load(ctx context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("VERSUS_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
		}
	}

	// Environment variables: VERSUS_ADDR, VERSUS_GROUP_SIZE, ...
	// Underscores are preserved to match koanf tags on the struct.
	envProvider := env.Provider("VERSUS_", ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, "versus_")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the engine must refuse to start with.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if c.GroupSize != 2 && c.GroupSize != 3 {
		return fmt.Errorf("%w: group_size must be 2 or 3, got %d", ErrInvalidConfig, c.GroupSize)
	}
	if c.TierSize <= 0 {
		return fmt.Errorf("%w: tier_size must be positive, got %d", ErrInvalidConfig, c.TierSize)
	}
	if c.DefaultUncertainty <= 0 {
		return fmt.Errorf("%w: default_uncertainty must be positive", ErrInvalidConfig)
	}
	if c.UncertaintyFloor < 0 || c.UncertaintyFloor > c.DefaultUncertainty {
		return fmt.Errorf("%w: uncertainty_floor must be in [0, default_uncertainty]", ErrInvalidConfig)
	}
	if c.ConservativeK < 0 {
		return fmt.Errorf("%w: conservative_k must not be negative", ErrInvalidConfig)
	}
	if len(c.Milestones) == 0 || c.MilestoneStep <= 0 {
		return fmt.Errorf("%w: milestone sequence must not be empty and milestone_step must be positive", ErrInvalidConfig)
	}
	prev := 0
	for _, m := range c.Milestones {
		if m <= prev {
			return fmt.Errorf("%w: milestones must be strictly increasing and positive", ErrInvalidConfig)
		}
		prev = m
	}
	total := c.WeightIntroduceUnrated + c.WeightRefineTopN +
		c.WeightBubbleChallenge + c.WeightBottomConfirmation
	if total != 100 {
		return fmt.Errorf("%w: strategy weights must sum to 100, got %d", ErrInvalidConfig, total)
	}
	if c.BootstrapComparisons < 0 || c.BootstrapSubsetSize < c.GroupSize {
		return fmt.Errorf("%w: bootstrap subset must hold at least one group", ErrInvalidConfig)
	}
	if c.RecentIDCap <= 0 || c.RecentPairCap <= 0 {
		return fmt.Errorf("%w: recency capacities must be positive", ErrInvalidConfig)
	}
	if c.FreezeMinComparisons < 0 || c.FreezeMinConfidence < 0 || c.FreezeMinConfidence > 100 {
		return fmt.Errorf("%w: freeze thresholds out of range", ErrInvalidConfig)
	}
	return nil
}
