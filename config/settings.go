// Package config provides application settings from an optional YAML
// file with environment variable overrides.
//
// Settings are created via Load() which handles:
// - YAML file parsing when a path is given
// - Environment variable overrides with validation
// - Default value application
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Settings holds all application configuration.
type Settings struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	LLM      LLMConfig      `yaml:"llm"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// DatabaseConfig holds storage backend configuration.
type DatabaseConfig struct {
	Type string `yaml:"type"`
	Path string `yaml:"path"`
}

// LLMConfig holds runtime configuration.
type LLMConfig struct {
	Runtime      string `yaml:"runtime"`
	OllamaHost   string `yaml:"ollama_host"`
	OllamaPort   int    `yaml:"ollama_port"`
	BaseURL      string `yaml:"base_url"`
	DefaultModel string `yaml:"default_model"`
	Workers      int    `yaml:"workers"`
	APIKey       string `yaml:"api_key"`
}

func defaults() Settings {
	return Settings{
		Server: ServerConfig{Port: 8000},
		Database: DatabaseConfig{
			Type: "sqlite",
			Path: "data/conversations.db",
		},
		LLM: LLMConfig{
			Runtime:      "ollama",
			OllamaHost:   "localhost",
			OllamaPort:   11434,
			DefaultModel: "phi3:mini",
			Workers:      4,
		},
	}
}

// Load builds settings from defaults, an optional YAML file, and
// environment variable overrides, in that order of precedence.
func Load(path string) (Settings, error) {
	settings := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Settings{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &settings); err != nil {
			return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := settings.applyEnv(); err != nil {
		return Settings{}, err
	}
	if err := settings.validate(); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

func (s *Settings) applyEnv() error {
	var err error

	setEnvString("DATABASE_TYPE", &s.Database.Type)
	setEnvString("DATABASE_PATH", &s.Database.Path)
	setEnvString("LLM_RUNTIME", &s.LLM.Runtime)
	setEnvString("OLLAMA_HOST", &s.LLM.OllamaHost)
	setEnvString("OLLAMA_BASE_URL", &s.LLM.BaseURL)
	setEnvString("DEFAULT_MODEL", &s.LLM.DefaultModel)
	setEnvString("LLM_API_KEY", &s.LLM.APIKey)

	if s.Server.Port, err = getEnvInt("PORT", s.Server.Port); err != nil {
		return err
	}
	if s.LLM.OllamaPort, err = getEnvInt("OLLAMA_PORT", s.LLM.OllamaPort); err != nil {
		return err
	}
	if s.LLM.Workers, err = getEnvInt("LLM_WORKERS", s.LLM.Workers); err != nil {
		return err
	}
	return nil
}

func (s *Settings) validate() error {
	if s.Server.Port < 1 || s.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", s.Server.Port)
	}
	if s.LLM.Workers < 1 {
		return fmt.Errorf("invalid worker count: %d", s.LLM.Workers)
	}
	if s.Database.Type == "" {
		return fmt.Errorf("database type must not be empty")
	}
	return nil
}

// RuntimeBaseURL returns the runtime server address: the explicit base
// URL when set, otherwise assembled from the Ollama host and port.
func (s Settings) RuntimeBaseURL() string {
	if s.LLM.BaseURL != "" {
		return s.LLM.BaseURL
	}
	return fmt.Sprintf("http://%s:%d", s.LLM.OllamaHost, s.LLM.OllamaPort)
}

// Environment variable helpers with proper error handling

func setEnvString(key string, target *string) {
	if val := os.Getenv(key); val != "" {
		*target = val
	}
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return i, nil
}
