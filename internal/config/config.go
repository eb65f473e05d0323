package config

import (
	_ "embed"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/facegate/internal/identity"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Storage   StorageConfig
	Extractor ExtractorConfig
	Match     MatchConfig
	Database  DatabaseConfig
	Defaults  DefaultsConfig
}

type StorageConfig struct {
	Root string // Root directory for Registration/, Authentication/ and Auth_Logs/
}

type ExtractorConfig struct {
	URL       string // Face extraction service URL (defaults to http://localhost:8000)
	Dim       int    // Signature dimensionality produced by the extractor (defaults to 128)
	Selection string // Policy when an image contains multiple faces: first, largest or reject
}

type MatchConfig struct {
	Threshold float64 // Maximum distance for a match; strict less-than decision
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL; empty means filesystem backend
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type DefaultsConfig struct {
	Roles []string `yaml:"roles"`
	Match struct {
		Threshold float64 `yaml:"threshold"`
	} `yaml:"match"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a positive float.
// Returns the default value if the env var is unset, empty, or invalid.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// envString reads an environment variable with a fallback default.
func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func Load() *Config {
	var defaults DefaultsConfig
	if err := yaml.Unmarshal(defaultsYAML, &defaults); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}

	return &Config{
		Storage: StorageConfig{
			Root: envString("FACEGATE_STORAGE_ROOT", "."),
		},
		Extractor: ExtractorConfig{
			URL:       os.Getenv("EXTRACTOR_URL"),
			Dim:       envInt("FACE_DIM", 128),
			Selection: envString("FACE_SELECTION", "first"),
		},
		Match: MatchConfig{
			Threshold: envFloat("FACE_MATCH_THRESHOLD", defaults.Match.Threshold),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Defaults: defaults,
	}
}

// Roles returns the enrollable role set from the embedded defaults.
func (c *Config) Roles() []identity.Role {
	roles := make([]identity.Role, len(c.Defaults.Roles))
	for i, r := range c.Defaults.Roles {
		roles[i] = identity.Role(r)
	}
	return roles
}
