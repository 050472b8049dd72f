package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// AppConfig holds configuration values parsed from environment variables.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	// LogLevel controls log verbosity: "debug", "info", "warn", or "error".
	LogLevel string `koanf:"log_level" validate:"required,oneof=debug info warn error"`

	// ConfigFile is the declarative document listing predictors and rule sources.
	ConfigFile string `koanf:"config_file" validate:"required"`

	// RulesDir is the directory holding local rule list files. Empty disables
	// directory loading; sources then come from the snapshot store only.
	RulesDir string `koanf:"rules_dir"`

	// StorePath is the bolt database used to persist ruleset snapshots across
	// restarts. Empty disables persistence.
	StorePath string `koanf:"store_path"`

	// CacheSize bounds the rule match cache. Zero disables caching.
	CacheSize int `koanf:"cache_size" validate:"gte=0"`

	// PredictTimeout caps each predictor call, in seconds.
	PredictTimeout int `koanf:"predict_timeout" validate:"required,gte=1,lte=120"`

	// ReloadDebounce is the quiet window after a config file change before
	// the registry reloads, in seconds.
	ReloadDebounce int `koanf:"reload_debounce" validate:"required,gte=1,lte=300"`

	// MaxFailures demotes a predictor to unhealthy after this many
	// consecutive prediction failures. Zero disables demotion.
	MaxFailures int `koanf:"max_failures" validate:"gte=0"`

	// Dataset is a labeled CSV of url,label rows. When set, the daemon runs
	// one evaluation over it and exits instead of scanning stdin.
	Dataset string `koanf:"dataset"`

	// Strategy is the default aggregation strategy for scans.
	Strategy string `koanf:"strategy" validate:"required,strategy_name"`

	// Threshold is the default label cutoff applied by strategies.
	Threshold float64 `koanf:"threshold" validate:"gte=0,lte=1"`

	// Sources restricts scans to these rule sources. Empty means all.
	Sources []string `koanf:"sources"`

	// Predictors restricts scans to these predictors. Empty means all healthy.
	Predictors []string `koanf:"predictors"`
}

// DEFAULT_APP_CONFIG defines the default application configuration for the
// decision pipeline: prod logging, the stock config document location, a
// bounded match cache, and the "any" strategy at the usual cutoff.
var DEFAULT_APP_CONFIG = AppConfig{
	Env:            "prod",
	LogLevel:       "info",
	ConfigFile:     "/etc/phishagg/phishagg.yaml",
	RulesDir:       "",
	StorePath:      "",
	CacheSize:      4096,
	PredictTimeout: 30,
	ReloadDebounce: 5,
	MaxFailures:    0,
	Dataset:        "",
	Strategy:       "any",
	Threshold:      0.5,
}

// validStrategyName validates that the field is a lowercase identifier:
// a letter followed by letters, digits, or underscores. The strategy set is
// open, so only the token shape is enforced here.
func validStrategyName(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case i > 0 && (r == '_' || (r >= '0' && r <= '9')):
		default:
			return false
		}
	}
	return true
}

// envLoader loads environment variables with the prefix "PHISH_".
// It lowercases keys, strips the prefix, and splits list values on spaces or
// commas. It can be mocked in tests.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: "PHISH_",
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, "PHISH_"))
			value = strings.TrimSpace(value)

			if value == "" {
				return key, value
			}

			if strings.Contains(value, " ") || strings.Contains(value, ",") {
				parts := strings.FieldsFunc(value, func(r rune) bool {
					return r == ' ' || r == ','
				})
				return key, parts
			}

			return key, value
		},
	}), nil)
}

// defaultLoader loads DEFAULT_APP_CONFIG into the provided Koanf instance
// using the structs provider. It can be mocked in tests.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

// registerValidation registers the custom "strategy_name" rule with the
// provided validator. It can be mocked in tests.
var registerValidation = func(v *validator.Validate) error {
	return v.RegisterValidation("strategy_name", validStrategyName)
}

// Load parses environment variables and returns an AppConfig instance.
// It applies default values and runs validation automatically.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	err := defaultLoader(k)
	if err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}

	err = envLoader(k)
	if err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig

	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	err = registerValidation(validate)
	if err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}

	err = validate.Struct(&cfg)
	if err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}
