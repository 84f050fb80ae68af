// Package config loads the engine's two configuration surfaces: the
// process-level Config (server address, environment, storage backend,
// AWS/SQLite settings, logging) read from environment variables, and the
// governance Document (thresholds, ranking weights, source trust caps,
// disclosure budget, feature flag overrides) read from a YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	domainconfig "groundedmemory/domain/config"
)

// StorageBackend selects which infrastructure/persistence implementation
// the DI layer wires the orchestrator's MemoryStore/Ledger to.
type StorageBackend string

const (
	StorageBackendMemory   StorageBackend = "memory"
	StorageBackendDynamoDB StorageBackend = "dynamodb"
	StorageBackendSQLite   StorageBackend = "sqlite"
)

// Config holds process-level settings scoped to this engine's concerns;
// the storage backend is selectable rather than assumed.
type Config struct {
	ServerAddress string
	Environment   string

	StorageBackend StorageBackend

	AWSRegion       string
	MemoryTableName string
	LedgerTableName string

	SQLitePath string

	EventBusName string

	ConfigDocumentPath string

	LogLevel string

	EnableTracing bool
	EnableCORS    bool

	// MaxTurnsPerMinute throttles IngestTurn per thread id (pkg/auth rate
	// limiter), guarding the embedder/generator calls a flood of turns on
	// one thread would otherwise hammer.
	MaxTurnsPerMinute int

	// JWT auth for the demo HTTP shim. The HTTP surface is external
	// plumbing, not core governance logic.
	JWTSecret string
	JWTIssuer string
}

// LoadConfig loads process-level configuration from environment
// variables, with defaults for anything unset.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		ServerAddress: getEnv("SERVER_ADDRESS", ":8080"),
		Environment:   getEnv("ENVIRONMENT", "development"),

		StorageBackend: StorageBackend(getEnv("STORAGE_BACKEND", string(StorageBackendMemory))),

		AWSRegion:       getEnv("AWS_REGION", "us-west-2"),
		MemoryTableName: getEnv("MEMORY_TABLE_NAME", "groundedmemory-memories"),
		LedgerTableName: getEnv("LEDGER_TABLE_NAME", "groundedmemory-ledger"),

		SQLitePath: getEnv("SQLITE_PATH", "groundedmemory.db"),

		EventBusName: getEnv("EVENT_BUS_NAME", "groundedmemory-events"),

		ConfigDocumentPath: getEnv("CONFIG_DOCUMENT_PATH", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		EnableTracing: getEnvBool("ENABLE_TRACING", false),
		EnableCORS:    getEnvBool("ENABLE_CORS", true),

		MaxTurnsPerMinute: getEnvInt("MAX_TURNS_PER_MINUTE", 30),

		JWTSecret: getEnv("JWT_SECRET", "development-secret-change-in-production"),
		JWTIssuer: getEnv("JWT_ISSUER", "groundedmemory"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load is an alias for LoadConfig for backwards compatibility.
func Load() (*Config, error) {
	return LoadConfig()
}

// Validate checks that process-level configuration is internally
// consistent before the DI layer tries to build collaborators from it.
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case StorageBackendMemory, StorageBackendDynamoDB, StorageBackendSQLite:
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.StorageBackend)
	}
	if c.StorageBackend == StorageBackendDynamoDB {
		if c.MemoryTableName == "" || c.LedgerTableName == "" {
			return fmt.Errorf("config: memory and ledger table names are required for the dynamodb backend")
		}
	}
	if c.StorageBackend == StorageBackendSQLite && c.SQLitePath == "" {
		return fmt.Errorf("config: sqlite path is required for the sqlite backend")
	}
	return nil
}

// IsDevelopment checks if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Document is the YAML shape of the governance configuration:
// thresholds, ranking weights, source trust caps, and the disclosure
// budget. Every field is a pointer so an absent key in the document
// leaves the corresponding DomainConfig default untouched - the document
// is an overlay, not a full replacement.
type Document struct {
	ThetaContra    *float64 `yaml:"theta_contra"`
	ThetaMin       *float64 `yaml:"theta_min"`
	ThetaDrop      *float64 `yaml:"theta_drop"`
	ThetaFallback  *float64 `yaml:"theta_fallback"`
	ThetaGround    *float64 `yaml:"theta_ground"`
	ThetaConfDelta *float64 `yaml:"theta_conf_delta"`

	ParaphraseDriftLow  *float64 `yaml:"paraphrase_drift_low"`
	ParaphraseDriftHigh *float64 `yaml:"paraphrase_drift_high"`
	ParaphraseOverlap   *float64 `yaml:"paraphrase_overlap"`

	LowTrustCeiling   *float64 `yaml:"low_trust_ceiling"`
	LowTrustDeltaGate *float64 `yaml:"low_trust_delta_gate"`

	WeightSimilarity *float64      `yaml:"weight_similarity"`
	WeightTrust      *float64      `yaml:"weight_trust"`
	WeightConfidence *float64      `yaml:"weight_confidence"`
	WeightRecency    *float64      `yaml:"weight_recency"`
	WeightDeprecated *float64      `yaml:"weight_deprecated"`
	RecencyHalfLife  *yamlDuration `yaml:"recency_half_life"`

	LLMOutputTrustCap *float64 `yaml:"llm_output_trust_cap"`
	FallbackTrustCap  *float64 `yaml:"fallback_trust_cap"`

	MaxClarifyingQuestionsPerWindow *int `yaml:"max_clarifying_questions_per_window"`
	ClarifyingQuestionWindowTurns   *int `yaml:"clarifying_question_window_turns"`

	DefaultRetrievalK *int     `yaml:"default_retrieval_k"`
	MinTrustFloor     *float64 `yaml:"min_trust_floor"`

	ArchiveAfter *yamlDuration `yaml:"archive_after"`

	// FlagOverrides layers onto flags.New's WithOverride options; keys are
	// flag name strings, validated against the registry's definitions at
	// the DI wiring step rather than here (this package does not import
	// application/flags, to keep the dependency direction config -> domain
	// only).
	FlagOverrides map[string]bool `yaml:"flags"`
}

// yamlDuration lets the document express durations as "720h" strings
// while the in-memory field stays a time.Duration.
type yamlDuration struct {
	time.Duration
}

func (d *yamlDuration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// LoadDocument reads and parses a YAML configuration document from path.
// An empty path is not an error: callers fall back to DomainConfig
// defaults entirely (document-less deployments, most tests).
func LoadDocument(path string) (*Document, error) {
	if path == "" {
		return &Document{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading document %s: %w", path, err)
	}
	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("config: parsing document %s: %w", path, err)
	}
	return &doc, nil
}

// Merge layers the document's present fields onto base, returning a new
// DomainConfig. base is never mutated in place (domain/config.DomainConfig
// is documented as immutable after load).
func (d *Document) Merge(base *domainconfig.DomainConfig) *domainconfig.DomainConfig {
	merged := *base

	setFloat := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}
	setInt := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}

	setFloat(&merged.ThetaContra, d.ThetaContra)
	setFloat(&merged.ThetaMin, d.ThetaMin)
	setFloat(&merged.ThetaDrop, d.ThetaDrop)
	setFloat(&merged.ThetaFallback, d.ThetaFallback)
	setFloat(&merged.ThetaGround, d.ThetaGround)
	setFloat(&merged.ThetaConfDelta, d.ThetaConfDelta)

	setFloat(&merged.ParaphraseDriftLow, d.ParaphraseDriftLow)
	setFloat(&merged.ParaphraseDriftHigh, d.ParaphraseDriftHigh)
	setFloat(&merged.ParaphraseOverlap, d.ParaphraseOverlap)

	setFloat(&merged.LowTrustCeiling, d.LowTrustCeiling)
	setFloat(&merged.LowTrustDeltaGate, d.LowTrustDeltaGate)

	setFloat(&merged.WeightSimilarity, d.WeightSimilarity)
	setFloat(&merged.WeightTrust, d.WeightTrust)
	setFloat(&merged.WeightConfidence, d.WeightConfidence)
	setFloat(&merged.WeightRecency, d.WeightRecency)
	setFloat(&merged.WeightDeprecated, d.WeightDeprecated)
	if d.RecencyHalfLife != nil {
		merged.RecencyHalfLife = d.RecencyHalfLife.Duration
	}

	setFloat(&merged.LLMOutputTrustCap, d.LLMOutputTrustCap)
	setFloat(&merged.FallbackTrustCap, d.FallbackTrustCap)

	setInt(&merged.MaxClarifyingQuestionsPerWindow, d.MaxClarifyingQuestionsPerWindow)
	setInt(&merged.ClarifyingQuestionWindowTurns, d.ClarifyingQuestionWindowTurns)

	setInt(&merged.DefaultRetrievalK, d.DefaultRetrievalK)
	setFloat(&merged.MinTrustFloor, d.MinTrustFloor)

	if d.ArchiveAfter != nil {
		merged.ArchiveAfter = d.ArchiveAfter.Duration
	}

	return &merged
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
