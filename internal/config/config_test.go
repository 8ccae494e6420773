package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/crmrag/internal/corpus"
	"github.com/Aman-CERP/crmrag/internal/errors"
	"github.com/Aman-CERP/crmrag/internal/retrieval"
)

// isolate points the user config at an empty directory so the developer's
// own config never leaks into a test.
func isolate(t *testing.T) string {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	return t.TempDir()
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestNewConfig_MatchesRetrievalDefaults(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, cfg.Validate())

	rc, err := cfg.RetrievalConfig()
	require.NoError(t, err)
	assert.Equal(t, retrieval.DefaultConfig(), rc)
}

func TestLoad_DefaultsWithoutFiles(t *testing.T) {
	dir := isolate(t)

	cfg, err := Load(dir, "")
	require.NoError(t, err)
	assert.Equal(t, NewConfig(), cfg)
}

func TestLoad_Precedence(t *testing.T) {
	// Given user config, project config and an env override
	dir := isolate(t)
	writeFile(t, GetUserConfigPath(), `
retrieval:
  specific_k: 5
  enumeration_k: 30
analyzer:
  mode: none
`)
	writeFile(t, filepath.Join(dir, ProjectConfigFile), `
retrieval:
  specific_k: 7
  alpha: 0
  predicate_weights:
    P14: 0.9
artifact:
  watch_debounce: 2s
`)
	t.Setenv("CRMRAG_ENUMERATION_K", "40")

	// When loading
	cfg, err := Load(dir, "")
	require.NoError(t, err)

	// Then project beats user, env beats both, and untouched keys keep defaults
	assert.Equal(t, 7, cfg.Retrieval.SpecificK)
	assert.Equal(t, 40, cfg.Retrieval.EnumerationK)
	assert.Equal(t, AnalyzerNone, cfg.Analyzer.Mode)
	assert.Equal(t, 0.0, cfg.Retrieval.Alpha, "explicit zero is honoured")
	assert.Equal(t, 2*time.Second, cfg.Artifact.WatchDebounce)
	assert.Equal(t, retrieval.DefaultRRFConstant, cfg.Retrieval.RRFConstant)

	rc, err := cfg.RetrievalConfig()
	require.NoError(t, err)
	assert.Equal(t, 0.9, rc.PredicateWeights["P14"])
	assert.Equal(t, -0.10, rc.CategoryModifiers[corpus.CategoryAppellation])
}

func TestLoad_ExplicitPathSkipsProjectFile(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, ProjectConfigFile), "retrieval:\n  specific_k: 7\n")
	explicit := filepath.Join(t.TempDir(), "custom.yaml")
	writeFile(t, explicit, "retrieval:\n  specific_k: 3\n")

	cfg, err := Load(dir, explicit)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Retrieval.SpecificK)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name     string
		yaml     string
		env      map[string]string
		explicit string
		code     string
		message  string
	}{
		{
			name:    "malformed yaml",
			yaml:    "retrieval: [",
			code:    errors.ErrCodeConfigInvalid,
			message: "failed to parse",
		},
		{
			name:    "alpha out of range",
			yaml:    "retrieval:\n  alpha: 1.5\n",
			code:    errors.ErrCodeConfigInvalid,
			message: "alpha",
		},
		{
			name:    "unknown category modifier",
			yaml:    "retrieval:\n  category_modifiers:\n    Painting: -0.1\n",
			code:    errors.ErrCodeConfigInvalid,
			message: "category_modifiers",
		},
		{
			name:    "unknown provider",
			yaml:    "embeddings:\n  provider: mlx\n",
			code:    errors.ErrCodeConfigInvalid,
			message: "embeddings.provider",
		},
		{
			name:    "unknown analyzer mode",
			yaml:    "analyzer:\n  mode: magic\n",
			code:    errors.ErrCodeConfigInvalid,
			message: "analyzer.mode",
		},
		{
			name:    "bad env integer",
			env:     map[string]string{"CRMRAG_SPECIFIC_K": "ten"},
			code:    errors.ErrCodeConfigInvalid,
			message: "CRMRAG_SPECIFIC_K",
		},
		{
			name:     "missing explicit file",
			explicit: "does-not-exist.yaml",
			code:     errors.ErrCodeConfigNotFound,
			message:  "failed to read",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := isolate(t)
			if tt.yaml != "" {
				writeFile(t, filepath.Join(dir, ProjectConfigFile), tt.yaml)
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			explicit := ""
			if tt.explicit != "" {
				explicit = filepath.Join(dir, tt.explicit)
			}

			_, err := Load(dir, explicit)
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.GetCode(err))
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestConfig_Conversions(t *testing.T) {
	cfg := NewConfig()
	cfg.Artifact.HNSWM = 8
	cfg.Embeddings.Provider = "OLLAMA"
	cfg.Embeddings.Timeout = 3 * time.Second
	cfg.Logging.Level = "debug"

	assert.Equal(t, 8, cfg.DenseConfig().M)

	ec := cfg.EmbedConfig()
	assert.Equal(t, "ollama", ec.Provider)
	assert.Equal(t, 3*time.Second, ec.Guard.CallTimeout)

	assert.Equal(t, "debug", cfg.LoggingConfig().Level)
	assert.Equal(t, cfg.Analyzer.Model, cfg.AnalyzerLLMConfig().Model)
}

func TestWriteYAML_RoundTrips(t *testing.T) {
	dir := isolate(t)
	cfg := NewConfig()
	cfg.Retrieval.SpecificK = 12
	cfg.Retrieval.PredicateWeights = map[string]float64{"P89": 0.8}

	path := filepath.Join(dir, ProjectConfigFile)
	require.NoError(t, cfg.WriteYAML(path))

	loaded, err := Load(dir, "")
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
