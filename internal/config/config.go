package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the bridge configuration
type Config struct {
	Server Server `yaml:"server"`
	MCP    MCP    `yaml:"mcp"`
	LLM    LLM    `yaml:"llm"`
	Auth   Auth   `yaml:"auth"`
}

// Server holds HTTP server configuration
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// MCP holds tool-server connection configuration
type MCP struct {
	Endpoint string `yaml:"endpoint"`
}

// LLM holds LLM provider configurations
type LLM struct {
	DefaultProvider string           `yaml:"default_provider"`
	Providers       []ProviderConfig `yaml:"providers"`
}

// ProviderConfig holds individual provider configuration
type ProviderConfig struct {
	Name        string  `yaml:"name"`
	APIKey      string  `yaml:"api_key,omitempty"`
	APIKeyEnv   string  `yaml:"api_key_env,omitempty"`
	Model       string  `yaml:"model,omitempty"`
	BaseURL     string  `yaml:"base_url,omitempty"`
	MaxTokens   int     `yaml:"max_tokens,omitempty"`
	Temperature float64 `yaml:"temperature,omitempty"`
}

// Auth holds JWT exchange configuration
type Auth struct {
	JWTSecret        string `yaml:"jwt_secret,omitempty"`
	JWTSecretEnv     string `yaml:"jwt_secret_env,omitempty"`
	ExchangeEndpoint string `yaml:"exchange_endpoint,omitempty"`
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Resolve secrets from environment variables
	for i := range config.LLM.Providers {
		if config.LLM.Providers[i].APIKeyEnv != "" {
			config.LLM.Providers[i].APIKey = os.Getenv(config.LLM.Providers[i].APIKeyEnv)
		}
	}
	if config.Auth.JWTSecretEnv != "" {
		config.Auth.JWTSecret = os.Getenv(config.Auth.JWTSecretEnv)
	}

	config.SetDefaults()

	return &config, nil
}

// SetDefaults sets default values for configuration
func (c *Config) SetDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.LLM.DefaultProvider == "" {
		c.LLM.DefaultProvider = "anthropic"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.MCP.Endpoint == "" {
		return fmt.Errorf("mcp.endpoint is required")
	}

	if len(c.LLM.Providers) == 0 {
		return fmt.Errorf("at least one LLM provider must be configured")
	}

	for _, provider := range c.LLM.Providers {
		if provider.Name == "" {
			return fmt.Errorf("LLM provider name is required")
		}
		if provider.APIKey == "" && provider.APIKeyEnv == "" {
			return fmt.Errorf("LLM provider %s requires api_key or api_key_env", provider.Name)
		}
	}

	return nil
}

// Provider returns the configuration for a named provider, or nil when the
// provider is not configured.
func (c *Config) Provider(name string) *ProviderConfig {
	for i := range c.LLM.Providers {
		if c.LLM.Providers[i].Name == name {
			return &c.LLM.Providers[i]
		}
	}
	return nil
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: Server{
			Host: "0.0.0.0",
			Port: 8080,
		},
		MCP: MCP{
			Endpoint: "http://localhost:3000/mcp",
		},
		LLM: LLM{
			DefaultProvider: "anthropic",
			Providers: []ProviderConfig{
				{
					Name:      "anthropic",
					APIKeyEnv: "ANTHROPIC_API_KEY",
				},
				{
					Name:      "openai",
					APIKeyEnv: "OPENAI_API_KEY",
				},
				{
					Name:      "gemini",
					APIKeyEnv: "GEMINI_API_KEY",
				},
			},
		},
	}
}
