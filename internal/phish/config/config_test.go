package config

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/v2"
)

func TestLoad_Defaults(t *testing.T) {
	// No env overrides
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Env != "prod" {
		t.Errorf("expected Env=prod, got %q", cfg.Env)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected LogLevel=info, got %q", cfg.LogLevel)
	}
	if cfg.ConfigFile != "/etc/phishagg/phishagg.yaml" {
		t.Errorf("expected ConfigFile=/etc/phishagg/phishagg.yaml, got %q", cfg.ConfigFile)
	}
	if cfg.RulesDir != "" {
		t.Errorf("expected RulesDir empty by default, got %q", cfg.RulesDir)
	}
	if cfg.StorePath != "" {
		t.Errorf("expected StorePath empty by default, got %q", cfg.StorePath)
	}
	if cfg.CacheSize != 4096 {
		t.Errorf("expected CacheSize=4096, got %d", cfg.CacheSize)
	}
	if cfg.PredictTimeout != 30 {
		t.Errorf("expected PredictTimeout=30, got %d", cfg.PredictTimeout)
	}
	if cfg.ReloadDebounce != 5 {
		t.Errorf("expected ReloadDebounce=5, got %d", cfg.ReloadDebounce)
	}
	if cfg.MaxFailures != 0 {
		t.Errorf("expected MaxFailures=0, got %d", cfg.MaxFailures)
	}
	if cfg.Dataset != "" {
		t.Errorf("expected Dataset empty by default, got %q", cfg.Dataset)
	}
	if cfg.Strategy != "any" {
		t.Errorf("expected Strategy=any, got %q", cfg.Strategy)
	}
	if cfg.Threshold != 0.5 {
		t.Errorf("expected Threshold=0.5, got %v", cfg.Threshold)
	}
	if len(cfg.Sources) != 0 {
		t.Errorf("expected Sources empty by default, got %v", cfg.Sources)
	}
	if len(cfg.Predictors) != 0 {
		t.Errorf("expected Predictors empty by default, got %v", cfg.Predictors)
	}
}

func TestLoad_ValidOverrides(t *testing.T) {
	t.Setenv("PHISH_ENV", "dev")
	t.Setenv("PHISH_LOG_LEVEL", "debug")
	t.Setenv("PHISH_CONFIG_FILE", "/tmp/phishagg.yaml")
	t.Setenv("PHISH_RULES_DIR", "/tmp/rules.d/")
	t.Setenv("PHISH_STORE_PATH", "/tmp/rulesets.db")
	t.Setenv("PHISH_CACHE_SIZE", "128")
	t.Setenv("PHISH_PREDICT_TIMEOUT", "10")
	t.Setenv("PHISH_RELOAD_DEBOUNCE", "2")
	t.Setenv("PHISH_MAX_FAILURES", "3")
	t.Setenv("PHISH_DATASET", "/tmp/labeled.csv")
	t.Setenv("PHISH_STRATEGY", "weighted")
	t.Setenv("PHISH_THRESHOLD", "0.7")
	t.Setenv("PHISH_SOURCES", "metamask,polkadot")
	t.Setenv("PHISH_PREDICTORS", "heuristic_baseline dns_probe")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Env != "dev" {
		t.Errorf("expected Env=dev, got %q", cfg.Env)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected LogLevel=debug, got %q", cfg.LogLevel)
	}
	if cfg.ConfigFile != "/tmp/phishagg.yaml" {
		t.Errorf("expected ConfigFile=/tmp/phishagg.yaml, got %q", cfg.ConfigFile)
	}
	if cfg.RulesDir != "/tmp/rules.d/" {
		t.Errorf("expected RulesDir=/tmp/rules.d/, got %q", cfg.RulesDir)
	}
	if cfg.StorePath != "/tmp/rulesets.db" {
		t.Errorf("expected StorePath=/tmp/rulesets.db, got %q", cfg.StorePath)
	}
	if cfg.CacheSize != 128 {
		t.Errorf("expected CacheSize=128, got %d", cfg.CacheSize)
	}
	if cfg.PredictTimeout != 10 {
		t.Errorf("expected PredictTimeout=10, got %d", cfg.PredictTimeout)
	}
	if cfg.ReloadDebounce != 2 {
		t.Errorf("expected ReloadDebounce=2, got %d", cfg.ReloadDebounce)
	}
	if cfg.MaxFailures != 3 {
		t.Errorf("expected MaxFailures=3, got %d", cfg.MaxFailures)
	}
	if cfg.Dataset != "/tmp/labeled.csv" {
		t.Errorf("expected Dataset=/tmp/labeled.csv, got %q", cfg.Dataset)
	}
	if cfg.Strategy != "weighted" {
		t.Errorf("expected Strategy=weighted, got %q", cfg.Strategy)
	}
	if cfg.Threshold != 0.7 {
		t.Errorf("expected Threshold=0.7, got %v", cfg.Threshold)
	}
	if want := []string{"metamask", "polkadot"}; !reflect.DeepEqual(cfg.Sources, want) {
		t.Errorf("expected Sources=%v, got %v", want, cfg.Sources)
	}
	if want := []string{"heuristic_baseline", "dns_probe"}; !reflect.DeepEqual(cfg.Predictors, want) {
		t.Errorf("expected Predictors=%v, got %v", want, cfg.Predictors)
	}
}

func TestLoad_WhenKoanfDefaultLoadFails(t *testing.T) {
	orig := defaultLoader
	defaultLoader = func(k *koanf.Koanf) error { return errors.New("mocked error") }
	defer func() { defaultLoader = orig }()

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "mocked error") {
		t.Fatal("expected error when loading defaults, got nil")
	}
}

func TestLoad_WhenKoanfEnvLoadFails(t *testing.T) {
	orig := envLoader
	envLoader = func(k *koanf.Koanf) error { return errors.New("mocked error") }
	defer func() { envLoader = orig }()

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "mocked error") {
		t.Fatal("expected error when loading env, got nil")
	}
}

func TestLoad_RegisterValidationFails(t *testing.T) {
	orig := registerValidation
	registerValidation = func(v *validator.Validate) error { return errors.New("mocked validation error") }
	defer func() { registerValidation = orig }()

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "mocked validation error") {
		t.Fatal("expected error when registering validation, got nil")
	}
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Setenv("PHISH_ENV", "staging")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for invalid PHISH_ENV, got nil")
	}
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	t.Setenv("PHISH_LOG_LEVEL", "trace")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for invalid LOG_LEVEL, got nil")
	}
}

func TestLoad_EmptyConfigFile(t *testing.T) {
	t.Setenv("PHISH_CONFIG_FILE", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for empty CONFIG_FILE, got nil")
	}
}

func TestLoad_InvalidCacheSize(t *testing.T) {
	t.Setenv("PHISH_CACHE_SIZE", "-1")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for negative CACHE_SIZE, got nil")
	}
}

func TestLoad_InvalidPredictTimeout(t *testing.T) {
	t.Setenv("PHISH_PREDICT_TIMEOUT", "0")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for PREDICT_TIMEOUT below 1, got nil")
	}

	t.Setenv("PHISH_PREDICT_TIMEOUT", "600")
	_, err = Load()
	if err == nil {
		t.Fatal("expected error for PREDICT_TIMEOUT above 120, got nil")
	}
}

func TestLoad_PredictTimeoutNaN(t *testing.T) {
	t.Setenv("PHISH_PREDICT_TIMEOUT", "not_a_number")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for non-numeric PREDICT_TIMEOUT, got nil")
	}
}

func TestLoad_InvalidReloadDebounce(t *testing.T) {
	t.Setenv("PHISH_RELOAD_DEBOUNCE", "0")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for RELOAD_DEBOUNCE below 1, got nil")
	}
}

func TestLoad_InvalidThreshold(t *testing.T) {
	t.Setenv("PHISH_THRESHOLD", "1.5")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for THRESHOLD above 1, got nil")
	}
}

func TestLoad_InvalidStrategyName(t *testing.T) {
	t.Setenv("PHISH_STRATEGY", "Weighted-Vote")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for malformed STRATEGY, got nil")
	}
}

func TestValidStrategyName(t *testing.T) {
	v := validator.New()
	if err := v.RegisterValidation("strategy_name", validStrategyName); err != nil {
		t.Fatalf("failed to register validation: %v", err)
	}

	type probe struct {
		Name string `validate:"strategy_name"`
	}

	cases := []struct {
		name  string
		value string
		valid bool
	}{
		{"simple", "any", true},
		{"with underscore", "weighted_vote", true},
		{"with digits", "top3", true},
		{"empty", "", false},
		{"leading digit", "3top", false},
		{"leading underscore", "_any", false},
		{"uppercase", "Any", false},
		{"space", "weighted vote", false},
		{"dash", "weighted-vote", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := v.Struct(probe{Name: tc.value})
			if tc.valid && err != nil {
				t.Errorf("expected %q valid, got %v", tc.value, err)
			}
			if !tc.valid && err == nil {
				t.Errorf("expected %q invalid, got nil", tc.value)
			}
		})
	}
}
