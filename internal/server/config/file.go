package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Sato-Isolated/uploadhaven-sub006/internal/flagx"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/server/models"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/timex"
	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk shape of the configuration. Zero values leave
// the current setting untouched.
type FileConfig struct {
	HTTPAddr        string         `json:"http_addr" yaml:"http_addr"`
	BaseURL         string         `json:"base_url" yaml:"base_url"`
	DatabaseDSN     string         `json:"database_dsn" yaml:"database_dsn"`
	SecretKey       string         `json:"secret_key" yaml:"secret_key"`
	ShutdownTimeout timex.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`

	StorageType    string `json:"storage_type" yaml:"storage_type"`
	StorageDir     string `json:"storage_dir" yaml:"storage_dir"`
	S3AccessKey    string `json:"s3_access_key" yaml:"s3_access_key"`
	S3SecretKey    string `json:"s3_secret_key" yaml:"s3_secret_key"`
	S3Bucket       string `json:"s3_bucket" yaml:"s3_bucket"`
	S3Region       string `json:"s3_region" yaml:"s3_region"`
	S3BaseEndpoint string `json:"s3_base_endpoint" yaml:"s3_base_endpoint"`

	LimiterType       string         `json:"limiter_type" yaml:"limiter_type"`
	RedisAddr         string         `json:"redis_addr" yaml:"redis_addr"`
	RedisPassword     string         `json:"redis_password" yaml:"redis_password"`
	RedisDB           int            `json:"redis_db" yaml:"redis_db"`
	RequestsPerMinute int            `json:"requests_per_minute" yaml:"requests_per_minute"`
	PasswordAttempts  int            `json:"password_attempts" yaml:"password_attempts"`
	PasswordWindow    timex.Duration `json:"password_window" yaml:"password_window"`
	TrustedProxies    []string       `json:"trusted_proxies" yaml:"trusted_proxies"`

	DefaultExpiry  timex.Duration `json:"default_expiry" yaml:"default_expiry"`
	MaxExpiry      timex.Duration `json:"max_expiry" yaml:"max_expiry"`
	MaxUploadSize  int64          `json:"max_upload_size" yaml:"max_upload_size"`
	SweepInterval  timex.Duration `json:"sweep_interval" yaml:"sweep_interval"`
	ExhaustedGrace timex.Duration `json:"exhausted_grace" yaml:"exhausted_grace"`

	AuditIPSalt        string         `json:"audit_ip_salt" yaml:"audit_ip_salt"`
	AuditFieldKey      string         `json:"audit_field_key" yaml:"audit_field_key"`
	AuditRetentionDays map[string]int `json:"audit_retention_days" yaml:"audit_retention_days"`

	LogFormat string `json:"log_format" yaml:"log_format"`
	LogLevel  string `json:"log_level" yaml:"log_level"`
}

// parseFile overlays the file named by -c/-config. The format follows the
// extension: .yaml and .yml are YAML, anything else JSON.
func parseFile(cfg *Config, args []string) error {
	path := flagx.ConfigFileFlag(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	fc := &FileConfig{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, fc)
	default:
		err = json.Unmarshal(data, fc)
	}
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	fc.apply(cfg)
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}

func setInt[T int | int64](dst *T, v T) {
	if v != 0 {
		*dst = v
	}
}

func (fc *FileConfig) apply(c *Config) {
	setString(&c.HTTPAddr, fc.HTTPAddr)
	setString(&c.BaseURL, fc.BaseURL)
	setString(&c.DatabaseDSN, fc.DatabaseDSN)
	setString(&c.SecretKey, fc.SecretKey)
	setDuration(&c.ShutdownTimeout, fc.ShutdownTimeout)

	setString(&c.StorageType, fc.StorageType)
	setString(&c.StorageDir, fc.StorageDir)
	setString(&c.S3AccessKey, fc.S3AccessKey)
	setString(&c.S3SecretKey, fc.S3SecretKey)
	setString(&c.S3Bucket, fc.S3Bucket)
	setString(&c.S3Region, fc.S3Region)
	setString(&c.S3BaseEndpoint, fc.S3BaseEndpoint)

	setString(&c.LimiterType, fc.LimiterType)
	setString(&c.RedisAddr, fc.RedisAddr)
	setString(&c.RedisPassword, fc.RedisPassword)
	setInt(&c.RedisDB, fc.RedisDB)
	setInt(&c.RequestsPerMinute, fc.RequestsPerMinute)
	setInt(&c.PasswordAttempts, fc.PasswordAttempts)
	setDuration(&c.PasswordWindow, fc.PasswordWindow)
	if len(fc.TrustedProxies) > 0 {
		c.TrustedProxies = append([]string(nil), fc.TrustedProxies...)
	}

	setDuration(&c.DefaultExpiry, fc.DefaultExpiry)
	setDuration(&c.MaxExpiry, fc.MaxExpiry)
	setInt(&c.MaxUploadSize, fc.MaxUploadSize)
	setDuration(&c.SweepInterval, fc.SweepInterval)
	setDuration(&c.ExhaustedGrace, fc.ExhaustedGrace)

	setString(&c.AuditIPSalt, fc.AuditIPSalt)
	setString(&c.AuditFieldKey, fc.AuditFieldKey)
	if len(fc.AuditRetentionDays) > 0 {
		c.AuditRetention = make(map[models.AuditCategory]time.Duration, len(fc.AuditRetentionDays))
		for category, days := range fc.AuditRetentionDays {
			c.AuditRetention[models.AuditCategory(category)] = time.Duration(days) * 24 * time.Hour
		}
	}

	setString(&c.LogFormat, fc.LogFormat)
	setString(&c.LogLevel, fc.LogLevel)
}
