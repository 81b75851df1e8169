// Package config loads memory engine configuration from environment variables and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/easeaico/her-memory/internal/types"
)

// ErrInvalidConfig is returned when a configuration fails validation.
var ErrInvalidConfig = errors.New("invalid memory configuration")

// TierFailurePolicy decides how the read path treats a failed tier.
type TierFailurePolicy string

const (
	// PolicyDegrade treats a failed tier as empty and fuses the rest.
	PolicyDegrade TierFailurePolicy = "degrade"
	// PolicyFailClosed returns a zero-valued fused result when any tier fails.
	PolicyFailClosed TierFailurePolicy = "fail_closed"
)

// Config holds runtime settings.
type Config struct {
	// Version increases on every Holder update.
	Version uint64 `yaml:"-"`

	L1MaxTurns  int `yaml:"l1_max_turns"`
	L1MaxTokens int `yaml:"l1_max_tokens"`

	L2SignificanceThreshold   float64 `yaml:"l2_significance_threshold"`
	EmotionalDeltaThreshold   float64 `yaml:"emotional_delta_threshold"`
	VerySignificantMultiplier float64 `yaml:"very_significant_multiplier"`

	FusionWeights       types.FusionWeights `yaml:"fusion_weights"`
	ImportanceDecayRate float64             `yaml:"importance_decay_rate"`
	AccessBoostFactor   float64             `yaml:"access_boost_factor"`
	RecencyBoostFactor  float64             `yaml:"recency_boost_factor"`
	MaxContextTokens    int                 `yaml:"max_context_tokens"`

	MaxFragments        int               `yaml:"max_fragments"`
	StoreTimeout        time.Duration     `yaml:"store_timeout"`
	TierFailurePolicy   TierFailurePolicy `yaml:"tier_failure_policy"`
	SessionMaxAge       time.Duration     `yaml:"session_max_age"`
	MaintenanceInterval time.Duration     `yaml:"maintenance_interval"`

	DatabaseURL string `yaml:"database_url" json:"-"`
	SQLitePath  string `yaml:"sqlite_path"`

	EmbeddingBackend    string `yaml:"embedding_backend"`
	EmbeddingModel      string `yaml:"embedding_model"`
	EmbeddingDimensions int    `yaml:"embedding_dimensions"`
	EmbeddingCacheSize  int64  `yaml:"embedding_cache_size"`
	GoogleAPIKey        string `yaml:"-" json:"-"`
	OpenAIAPIKey        string `yaml:"-" json:"-"`

	VectorBackend string `yaml:"vector_backend"`
	ChromemPath   string `yaml:"chromem_path"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		L1MaxTurns:                20,
		L1MaxTokens:               4000,
		L2SignificanceThreshold:   3.0,
		EmotionalDeltaThreshold:   0.3,
		VerySignificantMultiplier: 1.5,
		FusionWeights:             types.FusionWeights{L1: 0.3, L2: 0.4, L3: 0.3},
		ImportanceDecayRate:       0.05,
		AccessBoostFactor:         1.5,
		RecencyBoostFactor:        1.2,
		MaxContextTokens:          2000,
		MaxFragments:              1000,
		StoreTimeout:              5 * time.Second,
		TierFailurePolicy:         PolicyDegrade,
		SessionMaxAge:             24 * time.Hour,
		MaintenanceInterval:       10 * time.Minute,
		SQLitePath:                "her-memory.db",
		EmbeddingBackend:          "hash",
		EmbeddingModel:            "text-embedding-004",
		EmbeddingDimensions:       384,
		EmbeddingCacheSize:        1 << 20,
		VectorBackend:             "chromem",
	}
}

// Load reads MEMORY_CONFIG_FILE (if set), then env vars, applies defaults, and validates.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("MEMORY_CONFIG_FILE"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	cfg.L1MaxTurns = getEnvInt("L1_MAX_TURNS", cfg.L1MaxTurns)
	cfg.L1MaxTokens = getEnvInt("L1_MAX_TOKENS", cfg.L1MaxTokens)
	cfg.L2SignificanceThreshold = getEnvFloat("L2_SIGNIFICANCE_THRESHOLD", cfg.L2SignificanceThreshold)
	cfg.EmotionalDeltaThreshold = getEnvFloat("EMOTIONAL_DELTA_THRESHOLD", cfg.EmotionalDeltaThreshold)
	cfg.FusionWeights.L1 = getEnvFloat("FUSION_WEIGHT_L1", cfg.FusionWeights.L1)
	cfg.FusionWeights.L2 = getEnvFloat("FUSION_WEIGHT_L2", cfg.FusionWeights.L2)
	cfg.FusionWeights.L3 = getEnvFloat("FUSION_WEIGHT_L3", cfg.FusionWeights.L3)
	cfg.ImportanceDecayRate = getEnvFloat("IMPORTANCE_DECAY_RATE", cfg.ImportanceDecayRate)
	cfg.MaxContextTokens = getEnvInt("MAX_CONTEXT_TOKENS", cfg.MaxContextTokens)
	cfg.MaxFragments = getEnvInt("MAX_FRAGMENTS", cfg.MaxFragments)
	cfg.StoreTimeout = getEnvDuration("STORE_TIMEOUT", cfg.StoreTimeout)
	cfg.SessionMaxAge = getEnvDuration("SESSION_MAX_AGE", cfg.SessionMaxAge)
	cfg.MaintenanceInterval = getEnvDuration("MAINTENANCE_INTERVAL", cfg.MaintenanceInterval)
	if v := os.Getenv("TIER_FAILURE_POLICY"); v != "" {
		cfg.TierFailurePolicy = TierFailurePolicy(v)
	}

	cfg.DatabaseURL = getEnvString("DATABASE_URL", cfg.DatabaseURL)
	cfg.SQLitePath = getEnvString("SQLITE_PATH", cfg.SQLitePath)
	cfg.EmbeddingBackend = getEnvString("EMBEDDING_BACKEND", cfg.EmbeddingBackend)
	cfg.EmbeddingModel = getEnvString("EMBEDDING_MODEL", cfg.EmbeddingModel)
	cfg.EmbeddingDimensions = getEnvInt("EMBEDDING_DIMENSIONS", cfg.EmbeddingDimensions)
	cfg.GoogleAPIKey = os.Getenv("GOOGLE_API_KEY")
	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.VectorBackend = getEnvString("VECTOR_BACKEND", cfg.VectorBackend)
	cfg.ChromemPath = getEnvString("CHROMEM_PATH", cfg.ChromemPath)

	if cfg.EmbeddingBackend == "genai" && cfg.GoogleAPIKey == "" {
		return Config{}, fmt.Errorf("%w: GOOGLE_API_KEY is required for the genai embedding backend", ErrInvalidConfig)
	}
	if cfg.EmbeddingBackend == "openai" && cfg.OpenAIAPIKey == "" {
		return Config{}, fmt.Errorf("%w: OPENAI_API_KEY is required for the openai embedding backend", ErrInvalidConfig)
	}
	if cfg.VectorBackend == "pgvector" && cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("%w: DATABASE_URL is required for the pgvector backend", ErrInvalidConfig)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// Validate rejects out-of-range thresholds and weights.
func (c Config) Validate() error {
	if c.L1MaxTurns <= 0 {
		return fmt.Errorf("%w: l1_max_turns must be positive", ErrInvalidConfig)
	}
	if c.L1MaxTokens <= 0 {
		return fmt.Errorf("%w: l1_max_tokens must be positive", ErrInvalidConfig)
	}
	if c.L2SignificanceThreshold < 0 || c.L2SignificanceThreshold > 10 {
		return fmt.Errorf("%w: l2_significance_threshold must be within [0,10]", ErrInvalidConfig)
	}
	if c.EmotionalDeltaThreshold < 0 {
		return fmt.Errorf("%w: emotional_delta_threshold must be non-negative", ErrInvalidConfig)
	}
	if c.VerySignificantMultiplier < 1 {
		return fmt.Errorf("%w: very_significant_multiplier must be at least 1", ErrInvalidConfig)
	}
	if err := ValidateWeights(c.FusionWeights); err != nil {
		return err
	}
	if c.ImportanceDecayRate < 0 {
		return fmt.Errorf("%w: importance_decay_rate must be non-negative", ErrInvalidConfig)
	}
	if c.AccessBoostFactor < 1 || c.RecencyBoostFactor < 1 {
		return fmt.Errorf("%w: boost factors must be at least 1", ErrInvalidConfig)
	}
	if c.MaxFragments <= 0 {
		return fmt.Errorf("%w: max_fragments must be positive", ErrInvalidConfig)
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("%w: store_timeout must be positive", ErrInvalidConfig)
	}
	switch c.TierFailurePolicy {
	case PolicyDegrade, PolicyFailClosed:
	default:
		return fmt.Errorf("%w: unknown tier_failure_policy %q", ErrInvalidConfig, c.TierFailurePolicy)
	}
	return nil
}

// ValidateWeights requires non-negative weights summing to 1.
func ValidateWeights(w types.FusionWeights) error {
	if w.L1 < 0 || w.L2 < 0 || w.L3 < 0 {
		return fmt.Errorf("%w: fusion weights must be non-negative", ErrInvalidConfig)
	}
	if math.Abs(w.Sum()-1) > 1e-6 {
		return fmt.Errorf("%w: fusion weights must sum to 1, got %.4f", ErrInvalidConfig, w.Sum())
	}
	return nil
}

// VerySignificantThreshold is the score at which a turn is promoted to L3.
func (c Config) VerySignificantThreshold() float64 {
	return c.L2SignificanceThreshold * c.VerySignificantMultiplier
}

func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}
