package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/crmrag/internal/analyze"
	"github.com/Aman-CERP/crmrag/internal/corpus"
	"github.com/Aman-CERP/crmrag/internal/embed"
	"github.com/Aman-CERP/crmrag/internal/errors"
	"github.com/Aman-CERP/crmrag/internal/logging"
	"github.com/Aman-CERP/crmrag/internal/resilience"
	"github.com/Aman-CERP/crmrag/internal/retrieval"
	"github.com/Aman-CERP/crmrag/internal/store"
)

// File names searched in the working directory.
const (
	ProjectConfigFile    = ".crmrag.yaml"
	ProjectConfigFileAlt = ".crmrag.yml"
	envPrefix            = "CRMRAG_"
)

// Analyzer modes.
const (
	AnalyzerNone    = "none"
	AnalyzerPattern = "pattern"
	AnalyzerLLM     = "llm"
)

// Config represents the complete crmrag configuration.
type Config struct {
	Artifact   ArtifactConfig   `yaml:"artifact" json:"artifact"`
	Retrieval  RetrievalConfig  `yaml:"retrieval" json:"retrieval"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Analyzer   AnalyzerConfig   `yaml:"analyzer" json:"analyzer"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics" json:"metrics"`
}

// ArtifactConfig locates the artifact and tunes the indices built from it.
type ArtifactConfig struct {
	Path          string        `yaml:"path" json:"path"`
	Watch         bool          `yaml:"watch" json:"watch"`
	WatchDebounce time.Duration `yaml:"watch_debounce" json:"watch_debounce"`

	HNSWM          int `yaml:"hnsw_m" json:"hnsw_m"`
	HNSWEfSearch   int `yaml:"hnsw_ef_search" json:"hnsw_ef_search"`
	ExactThreshold int `yaml:"exact_threshold" json:"exact_threshold"`
}

// RetrievalConfig mirrors retrieval.Config in YAML form.
// Category modifiers and predicate weights are keyed by label.
type RetrievalConfig struct {
	RRFConstant    int `yaml:"rrf_constant" json:"rrf_constant"`
	PoolMultiplier int `yaml:"pool_multiplier" json:"pool_multiplier"`
	MaxPoolSize    int `yaml:"max_pool_size" json:"max_pool_size"`
	SpecificK      int `yaml:"specific_k" json:"specific_k"`
	EnumerationK   int `yaml:"enumeration_k" json:"enumeration_k"`

	TypeFractionSpecific    float64 `yaml:"type_fraction_specific" json:"type_fraction_specific"`
	TypeFractionEnumeration float64 `yaml:"type_fraction_enumeration" json:"type_fraction_enumeration"`
	NonInformativeCap       float64 `yaml:"non_informative_cap" json:"non_informative_cap"`

	Alpha             float64            `yaml:"alpha" json:"alpha"`
	DiversityWeight   float64            `yaml:"diversity_weight" json:"diversity_weight"`
	CategoryModifiers map[string]float64 `yaml:"category_modifiers" json:"category_modifiers"`

	MegaEntityThreshold  int     `yaml:"mega_entity_threshold" json:"mega_entity_threshold"`
	MegaEntityPenalty    float64 `yaml:"mega_entity_penalty" json:"mega_entity_penalty"`
	CategoryBoost        float64 `yaml:"category_boost" json:"category_boost"`
	CategoryBoostEnabled bool    `yaml:"category_boost_enabled" json:"category_boost_enabled"`

	DefaultPredicateWeight float64            `yaml:"default_predicate_weight" json:"default_predicate_weight"`
	PredicateWeights       map[string]float64 `yaml:"predicate_weights" json:"predicate_weights"`

	ContextTurns   int `yaml:"context_turns" json:"context_turns"`
	VagueMaxTokens int `yaml:"vague_max_tokens" json:"vague_max_tokens"`

	ConnectivityDecay        float64 `yaml:"connectivity_decay" json:"connectivity_decay"`
	ConnectivityMinRelevance float64 `yaml:"connectivity_min_relevance" json:"connectivity_min_relevance"`

	ChannelTimeout time.Duration `yaml:"channel_timeout" json:"channel_timeout"`
}

// EmbeddingsConfig configures the query embedder.
type EmbeddingsConfig struct {
	Provider   string        `yaml:"provider" json:"provider"`
	Model      string        `yaml:"model" json:"model"`
	OllamaHost string        `yaml:"ollama_host" json:"ollama_host"`
	Dimensions int           `yaml:"dimensions" json:"dimensions"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
	CacheSize  int           `yaml:"cache_size" json:"cache_size"`
}

// AnalyzerConfig selects the query analyzer.
type AnalyzerConfig struct {
	// Mode is none, pattern or llm. llm falls back to pattern analysis.
	Mode       string        `yaml:"mode" json:"mode"`
	Model      string        `yaml:"model" json:"model"`
	OllamaHost string        `yaml:"ollama_host" json:"ollama_host"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
	CacheSize  int           `yaml:"cache_size" json:"cache_size"`
}

// LoggingConfig configures the structured log.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	FilePath  string `yaml:"file_path" json:"file_path"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
	Stderr    bool   `yaml:"stderr" json:"stderr"`
}

// MetricsConfig enables the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Address string `yaml:"address" json:"address"`
}

// NewConfig returns a Config with every default applied.
func NewConfig() *Config {
	rc := retrieval.DefaultConfig()
	modifiers := make(map[string]float64, len(rc.CategoryModifiers))
	for cat, v := range rc.CategoryModifiers {
		modifiers[cat.String()] = v
	}
	dense := store.DefaultDenseConfig()
	llm := analyze.DefaultConfig()
	logs := logging.DefaultConfig()

	return &Config{
		Artifact: ArtifactConfig{
			Path:           "crmrag.db",
			WatchDebounce:  500 * time.Millisecond,
			HNSWM:          dense.M,
			HNSWEfSearch:   dense.EfSearch,
			ExactThreshold: dense.ExactThreshold,
		},
		Retrieval: RetrievalConfig{
			RRFConstant:              rc.RRFConstant,
			PoolMultiplier:           rc.PoolMultiplier,
			MaxPoolSize:              rc.MaxPoolSize,
			SpecificK:                rc.SpecificK,
			EnumerationK:             rc.EnumerationK,
			TypeFractionSpecific:     rc.TypeFractionSpecific,
			TypeFractionEnumeration:  rc.TypeFractionEnumeration,
			NonInformativeCap:        rc.NonInformativeCap,
			Alpha:                    rc.Alpha,
			DiversityWeight:          rc.DiversityWeight,
			CategoryModifiers:        modifiers,
			MegaEntityThreshold:      rc.MegaEntityThreshold,
			MegaEntityPenalty:        rc.MegaEntityPenalty,
			CategoryBoost:            rc.CategoryBoost,
			CategoryBoostEnabled:     rc.CategoryBoostEnabled,
			DefaultPredicateWeight:   rc.DefaultPredicateWeight,
			ContextTurns:             rc.ContextTurns,
			VagueMaxTokens:           rc.VagueMaxTokens,
			ConnectivityDecay:        rc.ConnectivityDecay,
			ConnectivityMinRelevance: rc.ConnectivityMinRelevance,
			ChannelTimeout:           rc.ChannelTimeout,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   embed.ProviderStatic,
			Model:      embed.DefaultOllamaConfig().Model,
			OllamaHost: embed.DefaultOllamaConfig().Host,
			Dimensions: 256,
			Timeout:    30 * time.Second,
			CacheSize:  1000,
		},
		Analyzer: AnalyzerConfig{
			Mode:       AnalyzerPattern,
			Model:      llm.Model,
			OllamaHost: llm.OllamaHost,
			Timeout:    llm.Timeout,
			CacheSize:  llm.CacheSize,
		},
		Logging: LoggingConfig{
			Level:     logs.Level,
			MaxSizeMB: logs.MaxSizeMB,
			MaxFiles:  logs.MaxFiles,
			Stderr:    logs.WriteToStderr,
		},
		Metrics: MetricsConfig{
			Address: "127.0.0.1:9464",
		},
	}
}

// GetUserConfigPath returns the path to the user configuration file:
// $XDG_CONFIG_HOME/crmrag/config.yaml, else ~/.config/crmrag/config.yaml.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "crmrag", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "crmrag", "config.yaml")
	}
	return filepath.Join(home, ".config", "crmrag", "config.yaml")
}

// Load builds the configuration in order of increasing precedence:
//  1. Defaults
//  2. User config (GetUserConfigPath)
//  3. explicitPath if set, else .crmrag.yaml in dir
//  4. Environment variables (CRMRAG_*)
func Load(dir, explicitPath string) (*Config, error) {
	cfg := NewConfig()

	if userPath := GetUserConfigPath(); fileExists(userPath) {
		if err := cfg.loadYAML(userPath); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if explicitPath != "" {
		if err := cfg.loadYAML(explicitPath); err != nil {
			return nil, err
		}
	} else if err := cfg.loadFromDir(dir); err != nil {
		return nil, err
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFromDir(dir string) error {
	for _, name := range []string{ProjectConfigFile, ProjectConfigFileAlt} {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			return c.loadYAML(path)
		}
	}
	return nil
}

// loadYAML decodes path over the current values, so keys absent from the
// file keep their earlier value and explicit zeros are honoured.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.New(errors.ErrCodeConfigNotFound,
			fmt.Sprintf("failed to read config file %s", path), err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("failed to parse config file %s", path), err)
	}
	return nil
}

// applyEnvOverrides applies CRMRAG_* variables. Malformed values are errors
// rather than silently ignored.
func (c *Config) applyEnvOverrides() error {
	var problems []string
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(envPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	integer := func(name string, dst *int) {
		if v, ok := os.LookupEnv(envPrefix + name); ok && v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				problems = append(problems, fmt.Sprintf("%s%s=%q is not an integer", envPrefix, name, v))
				return
			}
			*dst = n
		}
	}
	float := func(name string, dst *float64) {
		if v, ok := os.LookupEnv(envPrefix + name); ok && v != "" {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				problems = append(problems, fmt.Sprintf("%s%s=%q is not a number", envPrefix, name, v))
				return
			}
			*dst = f
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := os.LookupEnv(envPrefix + name); ok && v != "" {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				problems = append(problems, fmt.Sprintf("%s%s=%q is not a boolean", envPrefix, name, v))
				return
			}
			*dst = b
		}
	}

	str("ARTIFACT", &c.Artifact.Path)
	boolean("WATCH", &c.Artifact.Watch)

	integer("RRF_CONSTANT", &c.Retrieval.RRFConstant)
	integer("SPECIFIC_K", &c.Retrieval.SpecificK)
	integer("ENUMERATION_K", &c.Retrieval.EnumerationK)
	integer("MAX_POOL_SIZE", &c.Retrieval.MaxPoolSize)
	float("ALPHA", &c.Retrieval.Alpha)
	float("DIVERSITY_WEIGHT", &c.Retrieval.DiversityWeight)
	integer("CONTEXT_TURNS", &c.Retrieval.ContextTurns)
	boolean("CATEGORY_BOOST", &c.Retrieval.CategoryBoostEnabled)

	str("EMBEDDINGS_PROVIDER", &c.Embeddings.Provider)
	str("EMBEDDINGS_MODEL", &c.Embeddings.Model)
	integer("EMBEDDINGS_DIMENSIONS", &c.Embeddings.Dimensions)
	str("OLLAMA_HOST", &c.Embeddings.OllamaHost)
	str("OLLAMA_HOST", &c.Analyzer.OllamaHost)

	str("ANALYZER", &c.Analyzer.Mode)
	str("ANALYZER_MODEL", &c.Analyzer.Model)

	str("LOG_LEVEL", &c.Logging.Level)
	boolean("METRICS", &c.Metrics.Enabled)
	str("METRICS_ADDRESS", &c.Metrics.Address)

	if len(problems) > 0 {
		return errors.ConfigError("invalid environment override: "+strings.Join(problems, "; "), nil)
	}
	return nil
}

// Validate checks every section and returns ERR_102_CONFIG_INVALID listing
// the problems found.
func (c *Config) Validate() error {
	var problems []string
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	check(strings.TrimSpace(c.Artifact.Path) != "", "artifact.path must be set")
	check(c.Artifact.WatchDebounce >= 0, "artifact.watch_debounce must not be negative")
	check(c.Artifact.HNSWM > 0, "artifact.hnsw_m must be positive, got %d", c.Artifact.HNSWM)
	check(c.Artifact.HNSWEfSearch > 0, "artifact.hnsw_ef_search must be positive, got %d", c.Artifact.HNSWEfSearch)

	switch strings.ToLower(c.Embeddings.Provider) {
	case embed.ProviderStatic, embed.ProviderOllama:
	default:
		problems = append(problems, fmt.Sprintf("embeddings.provider must be %q or %q, got %q",
			embed.ProviderStatic, embed.ProviderOllama, c.Embeddings.Provider))
	}
	check(c.Embeddings.Dimensions >= 0, "embeddings.dimensions must not be negative")
	check(c.Embeddings.CacheSize >= 0, "embeddings.cache_size must not be negative")

	switch strings.ToLower(c.Analyzer.Mode) {
	case AnalyzerNone, AnalyzerPattern, AnalyzerLLM:
	default:
		problems = append(problems, fmt.Sprintf("analyzer.mode must be none, pattern or llm, got %q", c.Analyzer.Mode))
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level))
	}

	check(!c.Metrics.Enabled || c.Metrics.Address != "", "metrics.address must be set when metrics are enabled")

	if len(problems) > 0 {
		return errors.ConfigError("invalid configuration: "+strings.Join(problems, "; "), nil)
	}

	rc, err := c.RetrievalConfig()
	if err != nil {
		return err
	}
	return rc.Validate()
}

// RetrievalConfig converts the retrieval section into the engine's form.
func (c *Config) RetrievalConfig() (retrieval.Config, error) {
	r := c.Retrieval
	out := retrieval.Config{
		RRFConstant:              r.RRFConstant,
		PoolMultiplier:           r.PoolMultiplier,
		MaxPoolSize:              r.MaxPoolSize,
		SpecificK:                r.SpecificK,
		EnumerationK:             r.EnumerationK,
		TypeFractionSpecific:     r.TypeFractionSpecific,
		TypeFractionEnumeration:  r.TypeFractionEnumeration,
		NonInformativeCap:        r.NonInformativeCap,
		Alpha:                    r.Alpha,
		DiversityWeight:          r.DiversityWeight,
		MegaEntityThreshold:      r.MegaEntityThreshold,
		MegaEntityPenalty:        r.MegaEntityPenalty,
		CategoryBoost:            r.CategoryBoost,
		CategoryBoostEnabled:     r.CategoryBoostEnabled,
		DefaultPredicateWeight:   r.DefaultPredicateWeight,
		ContextTurns:             r.ContextTurns,
		VagueMaxTokens:           r.VagueMaxTokens,
		ConnectivityDecay:        r.ConnectivityDecay,
		ConnectivityMinRelevance: r.ConnectivityMinRelevance,
		ChannelTimeout:           r.ChannelTimeout,
	}

	if len(r.CategoryModifiers) > 0 {
		out.CategoryModifiers = make(map[corpus.Category]float64, len(r.CategoryModifiers))
		for label, v := range r.CategoryModifiers {
			cat, err := corpus.ParseCategory(label)
			if err != nil {
				return retrieval.Config{}, errors.ConfigError("retrieval.category_modifiers", err)
			}
			out.CategoryModifiers[cat] = v
		}
	}
	if len(r.PredicateWeights) > 0 {
		out.PredicateWeights = make(map[string]float64, len(r.PredicateWeights))
		for k, v := range r.PredicateWeights {
			out.PredicateWeights[k] = v
		}
	}
	return out, nil
}

// DenseConfig returns the HNSW settings.
func (c *Config) DenseConfig() store.DenseConfig {
	d := store.DefaultDenseConfig()
	d.M = c.Artifact.HNSWM
	d.EfSearch = c.Artifact.HNSWEfSearch
	d.ExactThreshold = c.Artifact.ExactThreshold
	return d
}

// EmbedConfig returns the embedder settings.
func (c *Config) EmbedConfig() embed.Config {
	guard := resilience.DefaultConfig()
	guard.CallTimeout = c.Embeddings.Timeout
	return embed.Config{
		Provider:   strings.ToLower(c.Embeddings.Provider),
		Model:      c.Embeddings.Model,
		Host:       c.Embeddings.OllamaHost,
		Dimensions: c.Embeddings.Dimensions,
		Timeout:    c.Embeddings.Timeout,
		CacheSize:  c.Embeddings.CacheSize,
		Guard:      guard,
	}
}

// AnalyzerLLMConfig returns the settings for the LLM analyzer.
func (c *Config) AnalyzerLLMConfig() analyze.Config {
	return analyze.Config{
		Model:      c.Analyzer.Model,
		Timeout:    c.Analyzer.Timeout,
		CacheSize:  c.Analyzer.CacheSize,
		OllamaHost: c.Analyzer.OllamaHost,
	}
}

// LoggingConfig returns the logging settings.
func (c *Config) LoggingConfig() logging.Config {
	return logging.Config{
		Level:         c.Logging.Level,
		FilePath:      c.Logging.FilePath,
		MaxSizeMB:     c.Logging.MaxSizeMB,
		MaxFiles:      c.Logging.MaxFiles,
		WriteToStderr: c.Logging.Stderr,
	}
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
