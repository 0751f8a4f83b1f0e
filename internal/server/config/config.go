// Package config handles configuration for the server component. Values are
// layered: defaults, then an optional JSON or YAML file, then environment
// variables, then command-line flags.
package config

import (
	"encoding/hex"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/Sato-Isolated/uploadhaven-sub006/internal/common"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/server/models"
)

const (
	StorageFS = "fs"
	StorageS3 = "s3"

	LimiterMemory = "memory"
	LimiterRedis  = "redis"
)

// Config holds runtime settings for the server.
//
// An empty DatabaseDSN selects the in-memory repositories, which is only
// suitable for development and tests.
type Config struct {
	HTTPAddr        string
	BaseURL         string
	DatabaseDSN     string
	SecretKey       string
	ShutdownTimeout time.Duration

	StorageType    string
	StorageDir     string
	S3AccessKey    string
	S3SecretKey    string
	S3Bucket       string
	S3Region       string
	S3BaseEndpoint string

	LimiterType       string
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	RequestsPerMinute int
	PasswordAttempts  int
	PasswordWindow    time.Duration
	// TrustedProxies lists addresses or CIDRs of reverse proxies whose
	// X-Real-IP and X-Forwarded-For headers are believed. Empty trusts none.
	TrustedProxies    []string

	DefaultExpiry  time.Duration
	MaxExpiry      time.Duration
	MaxUploadSize  int64
	SweepInterval  time.Duration
	ExhaustedGrace time.Duration

	AuditIPSalt    string
	AuditFieldKey  string
	AuditRetention map[models.AuditCategory]time.Duration

	LogFormat string
	LogLevel  string
}

// LoadDefaults populates Config with development defaults.
// NOTE: the secrets below are placeholders and must be overridden in production.
func (c *Config) LoadDefaults() {
	c.HTTPAddr = ":8080"
	c.BaseURL = "http://localhost:8080"
	c.DatabaseDSN = ""
	c.SecretKey = "secretKey"
	c.ShutdownTimeout = 10 * time.Second

	c.StorageType = StorageFS
	c.StorageDir = "./data/blobs"
	c.S3AccessKey = "admin"
	c.S3SecretKey = "secretpassword"
	c.S3Bucket = "uploadhaven"
	c.S3Region = "us-east-1"
	c.S3BaseEndpoint = "http://127.0.0.1:9000/"

	c.LimiterType = LimiterMemory
	c.RedisAddr = "127.0.0.1:6379"
	c.RequestsPerMinute = 60
	c.PasswordAttempts = 5
	c.PasswordWindow = 15 * time.Minute

	c.DefaultExpiry = 24 * time.Hour
	c.MaxExpiry = 7 * 24 * time.Hour
	c.MaxUploadSize = 100 << 20
	c.SweepInterval = 5 * time.Minute
	c.ExhaustedGrace = time.Minute

	c.AuditIPSalt = "dev-ip-salt"
	c.AuditFieldKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

	c.LogFormat = "json"
	c.LogLevel = "info"
}

// LoadConfig builds a Config from defaults, the file named by -c/-config,
// the environment and finally args.
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

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch {
	case c.HTTPAddr == "":
		return fmt.Errorf("http address is empty: %w", common.ErrInvalidInput)
	case c.BaseURL == "":
		return fmt.Errorf("base url is empty: %w", common.ErrInvalidInput)
	case c.StorageType != StorageFS && c.StorageType != StorageS3:
		return fmt.Errorf("unknown storage type %q: %w", c.StorageType, common.ErrInvalidInput)
	case c.LimiterType != LimiterMemory && c.LimiterType != LimiterRedis:
		return fmt.Errorf("unknown limiter type %q: %w", c.LimiterType, common.ErrInvalidInput)
	case c.PasswordAttempts < 1 || c.RequestsPerMinute < 1:
		return fmt.Errorf("rate limits must be positive: %w", common.ErrInvalidInput)
	case c.PasswordWindow <= 0:
		return fmt.Errorf("password window must be positive: %w", common.ErrInvalidInput)
	case c.DefaultExpiry <= 0 || c.MaxExpiry < c.DefaultExpiry:
		return fmt.Errorf("expiry settings out of order: %w", common.ErrInvalidInput)
	case c.SweepInterval <= 0:
		return fmt.Errorf("sweep interval must be positive: %w", common.ErrInvalidInput)
	}
	if _, err := c.FieldKey(); err != nil {
		return err
	}
	if _, err := c.TrustedProxyPrefixes(); err != nil {
		return err
	}
	return nil
}

// TrustedProxyPrefixes parses TrustedProxies. A bare address becomes a
// single-host prefix.
func (c *Config) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(c.TrustedProxies))
	for _, raw := range c.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			p, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", raw, common.ErrInvalidInput)
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		a, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", raw, common.ErrInvalidInput)
		}
		a = a.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(a, a.BitLen()))
	}
	return prefixes, nil
}

// FieldKey decodes the hex audit field encryption key.
func (c *Config) FieldKey() ([]byte, error) {
	key, err := hex.DecodeString(c.AuditFieldKey)
	if err != nil || len(key) != 32 {
		return nil, fmt.Errorf("audit field key must be 64 hex characters: %w", common.ErrInvalidInput)
	}
	return key, nil
}

func hours(n int) time.Duration {
	return time.Duration(n) * time.Hour
}
