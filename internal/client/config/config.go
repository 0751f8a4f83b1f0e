package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/Sato-Isolated/uploadhaven-sub006/internal/common"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/cryptox"
)

// Config holds runtime settings for the CLI.
//
// KDF and Iterations select the key derivation for new password-protected
// shares; Iterations 0 means the KDF's default cost. An empty HistoryDB
// disables the local upload history.
type Config struct {
	ServerURL  string
	Token      string
	Timeout    time.Duration
	OutDir     string
	KDF        string
	Iterations int
	LogLevel   string
	HistoryDB  string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.Timeout = 30 * time.Second
	c.OutDir = "."
	c.KDF = cryptox.KDFPBKDF2SHA512
	c.LogLevel = "warn"
	c.HistoryDB = defaultHistoryDB()
}

func defaultHistoryDB() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "uploadhaven", "history.db")
}

// LoadConfig builds a Config from defaults, the optional config file, the
// environment and args, in that order.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if err := parseFile(cfg, args); err != nil {
		return nil, err
	}
	if err := parseEnv(cfg); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("server url %q must be an absolute http(s) url: %w", c.ServerURL, common.ErrInvalidInput)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive: %w", common.ErrInvalidInput)
	}
	if c.KDF != cryptox.KDFPBKDF2SHA512 && c.KDF != cryptox.KDFArgon2id {
		return fmt.Errorf("unsupported kdf %q: %w", c.KDF, common.ErrInvalidInput)
	}
	return nil
}
