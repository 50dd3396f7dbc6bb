package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("TEST_ANTHROPIC_KEY", "from-env")

	raw := `
server:
  port: 9090
mcp:
  endpoint: http://localhost:3000/mcp
llm:
  providers:
    - name: anthropic
      api_key_env: TEST_ANTHROPIC_KEY
      model: claude-3-5-sonnet-20241022
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "0.0.0.0", cfg.Server.Host)
	require.Equal(t, "anthropic", cfg.LLM.DefaultProvider)
	require.Equal(t, "from-env", cfg.Provider("anthropic").APIKey)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidateRequiresEndpointAndProviders(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()
	require.Error(t, cfg.Validate())

	cfg.MCP.Endpoint = "http://localhost:3000/mcp"
	require.Error(t, cfg.Validate())

	cfg.LLM.Providers = []ProviderConfig{{Name: "anthropic"}}
	require.Error(t, cfg.Validate())

	cfg.LLM.Providers[0].APIKeyEnv = "ANTHROPIC_API_KEY"
	require.NoError(t, cfg.Validate())
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	require.NotNil(t, cfg.Provider("anthropic"))
	require.Nil(t, cfg.Provider("unknown"))
}
