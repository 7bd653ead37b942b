package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Connection.MaxRetries)
	assert.Equal(t, 20*time.Second, cfg.Connection.BaseDelay)
	assert.Equal(t, 5*time.Minute, cfg.Connection.MaxDelay)
	assert.Equal(t, 20*time.Minute, cfg.Connection.Timeout)

	assert.Equal(t, 5, cfg.Research.Standard.DiscussionTurns)
	assert.Equal(t, 40, cfg.Research.Standard.CollectionIterations)
	assert.Equal(t, 40, cfg.Research.Standard.PreResearchIterations)
	assert.False(t, cfg.Research.Standard.SinglePass)
	assert.Equal(t, 3, cfg.Research.Summary.DiscussionTurns)
	assert.Equal(t, 10, cfg.Research.Summary.CollectionIterations)
	assert.True(t, cfg.Research.Summary.SinglePass)
	assert.Equal(t, "image_search", cfg.Research.MustUseTool)

	assert.Len(t, cfg.Report.CompletionMarkers, 6)
	assert.Contains(t, cfg.Report.CompletionMarkers, "レポートの終了")
	assert.Equal(t, 20, cfg.Report.TailWindow)
	assert.Equal(t, 8192, cfg.Report.MaxTokens)
	assert.Equal(t, 0.8, cfg.Report.Temperature)

	assert.Equal(t, int64(4_500_000), cfg.Tools.MaxDocumentBytes)
	assert.Contains(t, cfg.Tools.Enabled, "get_content")

	// A default credential profile is always present so env injection has
	// somewhere to land.
	require.Len(t, cfg.Models.Profiles, 1)
	assert.Equal(t, "default", cfg.Models.Profiles[0].Name)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
models:
  primary: nova-pro
  profiles:
    - name: main
      api_key: key-one
    - name: backup
      api_key: key-two
connection:
  max_retries: 3
research:
  standard:
    discussion_turns: 2
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "nova-pro", cfg.Models.Primary)
	assert.Equal(t, "us.amazon.nova-pro-v1:0", cfg.ModelID(cfg.Models.Primary))
	assert.Equal(t, 3, cfg.Connection.MaxRetries)
	assert.Equal(t, 2, cfg.Research.Standard.DiscussionTurns)
	// Untouched settings keep their defaults.
	assert.Equal(t, 40, cfg.Research.Standard.CollectionIterations)

	require.Len(t, cfg.Models.Profiles, 2)
	assert.Equal(t, "key-two", cfg.Models.Profiles[1].APIKey)
}

func TestLoadMissingExplicitFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadEnvironmentCredentials(t *testing.T) {
	t.Setenv("DEEPRESEARCH_API_KEY", "env-model-key")
	t.Setenv("SEARCH_API_KEY", "env-search-key")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "env-model-key", cfg.Models.Profiles[0].APIKey)
	assert.Equal(t, "env-search-key", cfg.Search.APIKey)
}

func TestValidateRejectsBrokenConfig(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	t.Run("missing endpoint", func(t *testing.T) {
		cfg := base()
		cfg.Models.Endpoint = ""
		var vErr *ValidationError
		require.ErrorAs(t, cfg.Validate(), &vErr)
		assert.Equal(t, "models.endpoint", vErr.Field)
	})

	t.Run("negative retries", func(t *testing.T) {
		cfg := base()
		cfg.Connection.MaxRetries = -1
		require.Error(t, cfg.Validate())
	})

	t.Run("valid default passes", func(t *testing.T) {
		require.NoError(t, base().Validate())
	})
}

func TestModelIDPassesThroughUnknownNames(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "custom.model-v1:0", cfg.ModelID("custom.model-v1:0"))
}

func TestPresetSelection(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, cfg.Research.Summary, cfg.Preset(ModeSummary))
	assert.Equal(t, cfg.Research.Standard, cfg.Preset(ModeStandard))
	assert.Equal(t, cfg.Research.Standard, cfg.Preset(Mode("bogus")))
}
