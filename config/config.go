// Package config loads habitat settings from the environment.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the settings a host process can tune without code changes.
type Config struct {
	Log     LogConfig
	Request RequestConfig
	Binding BindingConfig
}

type LogConfig struct {
	Level  string // off | error | warn | info | debug | trace
	Format string // json | text
}

type RequestConfig struct {
	// IDHeader carries the request id into and out of request scopes.
	IDHeader string
}

type BindingConfig struct {
	// Timeout bounds loading one document.
	Timeout time.Duration
}

// Load reads the given .env files (".env" when none are given) if present
// and builds a Config from environment variables. Variables already set in
// the environment take precedence over the files.
func Load(envFiles ...string) *Config {
	files := envFiles
	if len(files) == 0 {
		files = []string{".env"}
	}
	// .env is optional
	_ = godotenv.Load(files...)

	return &Config{
		Log: LogConfig{
			Level:  env("HABITAT_LOG_LEVEL", "info"),
			Format: env("HABITAT_LOG_FORMAT", "json"),
		},
		Request: RequestConfig{
			IDHeader: env("HABITAT_REQUEST_ID_HEADER", "X-Request-ID"),
		},
		Binding: BindingConfig{
			Timeout: time.Duration(envInt("HABITAT_BINDING_TIMEOUT", 30)) * time.Second,
		},
	}
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Log:     LogConfig{Level: "info", Format: "json"},
		Request: RequestConfig{IDHeader: "X-Request-ID"},
		Binding: BindingConfig{Timeout: 30 * time.Second},
	}
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil || i <= 0 {
		return fallback
	}
	return i
}
