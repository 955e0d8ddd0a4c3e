package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("GEMINI_API_KEY", "from-env")

	cfg, err := Load("")
	require.NoError(t, err)

	name, prov := cfg.Provider()
	assert.Equal(t, "gemini", name)
	assert.Equal(t, DefaultModel, prov.Model)
	assert.Equal(t, "from-env", prov.APIKey)
	assert.Equal(t, "islamic banking.pdf", cfg.BasicConfig.DocumentPath)
}

func TestLoadExplicitMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestLoadResolvesRelativePaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{
		"basic_config": {"document_path": "docs/guide.pdf", "feedback_path": "out/feedback.csv"},
		"generation": {"provider": "openai"},
		"providers": {"openai": {"model": "gpt-x", "api_key": "inline"}}
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "docs/guide.pdf"), cfg.BasicConfig.DocumentPath)
	assert.Equal(t, filepath.Join(dir, "out/feedback.csv"), cfg.BasicConfig.FeedbackPath)
	name, prov := cfg.Provider()
	assert.Equal(t, "openai", name)
	assert.Equal(t, "inline", prov.APIKey)
	assert.Equal(t, "OPENAI_API_KEY", prov.APIKeyEnv)
	// untouched providers keep their defaults
	assert.Contains(t, cfg.Providers, "gemini")
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"generation": {"provider": "mystery"}}`), 0o600))

	_, err := Load(path)
	assert.ErrorContains(t, err, "provider mystery not configured")
}

func TestLoadAboutSection(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{"about": {"name": "Maria Hameed", "linkedin": "www.linkedin.com/in/maria-hameed1987"}}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Maria Hameed", cfg.About.Name)
	assert.Equal(t, "www.linkedin.com/in/maria-hameed1987", cfg.About.LinkedIn)
	assert.Empty(t, Default().About.Name)
}
