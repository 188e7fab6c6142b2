package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the full application configuration. Values resolve as
// defaults, then the yaml file, then environment overrides.
type Config struct {
	NATS struct {
		URL    string `yaml:"url"`
		Bucket string `yaml:"bucket"`
	} `yaml:"nats"`
	Trivia struct {
		BaseURL    string `yaml:"base_url"`
		TimeoutSec int    `yaml:"timeout_sec"`
	} `yaml:"trivia"`
	Gateway struct {
		Addr string `yaml:"addr"`
	} `yaml:"gateway"`
	Identity struct {
		Path string `yaml:"path"`
	} `yaml:"identity"`
}

// Default returns the built-in configuration.
func Default() *Config {
	var c Config
	c.NATS.URL = "nats://127.0.0.1:4222"
	c.NATS.Bucket = "quizwar-rooms"
	c.Trivia.BaseURL = "https://opentdb.com"
	c.Trivia.TimeoutSec = 15
	c.Gateway.Addr = ":8090"
	return &c
}

// Load reads configuration from an optional yaml file and applies
// environment overrides. An empty path skips the file; a missing file
// at an explicit path is an error.
func Load(path string) (*Config, error) {
	c := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	c.NATS.URL = getEnv("QUIZWAR_NATS_URL", c.NATS.URL)
	c.NATS.Bucket = getEnv("QUIZWAR_BUCKET", c.NATS.Bucket)
	c.Trivia.BaseURL = getEnv("QUIZWAR_TRIVIA_URL", c.Trivia.BaseURL)
	c.Trivia.TimeoutSec = getEnvAsInt("QUIZWAR_TRIVIA_TIMEOUT_SEC", c.Trivia.TimeoutSec)
	c.Gateway.Addr = getEnv("QUIZWAR_GATEWAY_ADDR", c.Gateway.Addr)
	c.Identity.Path = getEnv("QUIZWAR_IDENTITY_PATH", c.Identity.Path)

	return c, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
