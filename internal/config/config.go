// Package config defines engine configuration structures and loading hooks.
//
// Conventions:
// - Provide New() defaults and Load(ctx) for layered loading.
// - External errors must be wrapped via this package's sentinel errors.
package config

// Config contains process and engine configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// GroupSize is the number of entities per comparison group (2 or 3).
	GroupSize int `koanf:"group_size"`

	// TierSize is the active top-N tier scope.
	TierSize int `koanf:"tier_size"`

	// DefaultMean and DefaultUncertainty form the rating prior.
	DefaultMean        float64 `koanf:"default_mean"`
	DefaultUncertainty float64 `koanf:"default_uncertainty"`

	// UncertaintyFloor clamps how far uncertainty may shrink.
	UncertaintyFloor float64 `koanf:"uncertainty_floor"`

	// ConservativeK is the multiplier in mean - k*uncertainty.
	ConservativeK float64 `koanf:"conservative_k"`

	// Milestones is the leading milestone sequence; beyond the last value
	// every MilestoneStep comparisons is a milestone.
	Milestones    []int `koanf:"milestones"`
	MilestoneStep int   `koanf:"milestone_step"`

	// BootstrapComparisons restricts the first N selections to a fixed
	// random subset of BootstrapSubsetSize entities.
	BootstrapComparisons int `koanf:"bootstrap_comparisons"`
	BootstrapSubsetSize  int `koanf:"bootstrap_subset_size"`

	// RecentIDCap and RecentPairCap bound the anti-repeat memory.
	RecentIDCap   int `koanf:"recent_id_cap"`
	RecentPairCap int `koanf:"recent_pair_cap"`

	// Strategy weights (percent, summing to 100).
	WeightIntroduceUnrated   int `koanf:"weight_introduce_unrated"`
	WeightRefineTopN         int `koanf:"weight_refine_top_n"`
	WeightBubbleChallenge    int `koanf:"weight_bubble_challenge"`
	WeightBottomConfirmation int `koanf:"weight_bottom_confirmation"`

	// Freeze policy thresholds.
	FreezeMinComparisons int     `koanf:"freeze_min_comparisons"`
	FreezeMinConfidence  float64 `koanf:"freeze_min_confidence"`

	// Persistence configuration. StatePath selects the JSON file backend;
	// PostgresDSN, when set, selects the Postgres backend instead.
	StatePath    string `koanf:"state_path"`
	PostgresDSN  string `koanf:"postgres_dsn"`
	FlushDelayMS int    `koanf:"flush_delay_ms"`

	// CatalogPath points at the JSON entity catalog served by the HTTP
	// entrypoint. Library embedders supply their own catalog provider.
	CatalogPath string `koanf:"catalog_path"`
}

// New creates a Config with engine defaults.
func New() *Config {
	return &Config{
		LogLevel:                 "info",
		Addr:                     ":9080",
		GroupSize:                2,
		TierSize:                 50,
		DefaultMean:              25.0,
		DefaultUncertainty:       25.0 / 3.0,
		UncertaintyFloor:         0.5,
		ConservativeK:            3.0,
		Milestones:               []int{10, 25, 50, 100, 150, 200},
		MilestoneStep:            100,
		BootstrapComparisons:     25,
		BootstrapSubsetSize:      15,
		RecentIDCap:              50,
		RecentPairCap:            100,
		WeightIntroduceUnrated:   15,
		WeightRefineTopN:         50,
		WeightBubbleChallenge:    20,
		WeightBottomConfirmation: 15,
		FreezeMinComparisons:     5,
		FreezeMinConfidence:      60.0,
		StatePath:                "versus-state.json",
		FlushDelayMS:             500,
		CatalogPath:              "catalog.json",
	}
}
