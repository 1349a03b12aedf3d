// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// PlaceholderEmail is the sample address shipped in documentation. NCBI
// requires a real contact address on every eUtils request, so it is rejected.
const PlaceholderEmail = "you@example.com"

// DBFile is the SQLite database filename under the data directory.
const DBFile = "newsroom.db"

// Config holds the service configuration. The PubMed, OpenAI, and admin
// credentials keep their original unprefixed variable names; service-level
// settings use the NEWSROOM_ prefix.
type Config struct {
	PubMedEmail  string `envconfig:"PUBMED_EMAIL"`
	PubMedAPIKey string `envconfig:"PUBMED_API_KEY"`
	OpenAIAPIKey string `envconfig:"OPENAI_API_KEY"`

	AdminPassword      string `envconfig:"ADMIN_PASSWORD"`
	AdminPasswordHash  string `envconfig:"ADMIN_PASSWORD_HASH"`
	AdminSessionSecret string `envconfig:"ADMIN_SESSION_SECRET"`

	Addr            string        `envconfig:"NEWSROOM_ADDR" default:"127.0.0.1:8000"`
	DataDir         string        `envconfig:"NEWSROOM_DATA_DIR" default:"data"`
	Model           string        `envconfig:"NEWSROOM_MODEL"`
	PromptPath      string        `envconfig:"NEWSROOM_PROMPT_PATH"`
	FilterProfile   string        `envconfig:"NEWSROOM_FILTER_PROFILE"`
	LogLevel        string        `envconfig:"NEWSROOM_LOG_LEVEL" default:"info"`
	PrettyLog       bool          `envconfig:"NEWSROOM_PRETTY_LOG" default:"false"`
	ShutdownTimeout time.Duration `envconfig:"NEWSROOM_SHUTDOWN_TIMEOUT" default:"10s"`
}

// Load reads configuration from the environment. Defaults apply to unset
// variables; an invalid value (bad duration, bad bool) is an error.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}
	return &cfg, nil
}

// DBPath returns the SQLite database path under the data directory.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, DBFile)
}

// ValidateEmail checks that PUBMED_EMAIL is set to a real contact address,
// not left empty or on the documentation placeholder.
func (c *Config) ValidateEmail() error {
	email := strings.TrimSpace(c.PubMedEmail)
	if email == "" || email == PlaceholderEmail {
		return fmt.Errorf("PUBMED_EMAIL must be set to a real contact email for PubMed eUtils")
	}
	return nil
}
