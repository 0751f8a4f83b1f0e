package config

import (
	"errors"
	"os"
	"strings"

	"github.com/Sato-Isolated/uploadhaven-sub006/internal/flagx"
)

const envPrefix = "UPLOADHAVEN_"

// parseEnv applies UPLOADHAVEN_* variables. Secrets are usually supplied
// this way in containers.
func parseEnv(c *Config) error {
	flagx.EnvString(&c.HTTPAddr, envPrefix+"HTTP_ADDR")
	flagx.EnvString(&c.BaseURL, envPrefix+"BASE_URL")
	flagx.EnvString(&c.DatabaseDSN, envPrefix+"DATABASE_DSN")
	flagx.EnvString(&c.SecretKey, envPrefix+"SECRET_KEY")

	flagx.EnvString(&c.StorageType, envPrefix+"STORAGE_TYPE")
	flagx.EnvString(&c.StorageDir, envPrefix+"STORAGE_DIR")
	flagx.EnvString(&c.S3AccessKey, envPrefix+"S3_ACCESS_KEY")
	flagx.EnvString(&c.S3SecretKey, envPrefix+"S3_SECRET_KEY")
	flagx.EnvString(&c.S3Bucket, envPrefix+"S3_BUCKET")
	flagx.EnvString(&c.S3Region, envPrefix+"S3_REGION")
	flagx.EnvString(&c.S3BaseEndpoint, envPrefix+"S3_BASE_ENDPOINT")

	flagx.EnvString(&c.LimiterType, envPrefix+"LIMITER_TYPE")
	flagx.EnvString(&c.RedisAddr, envPrefix+"REDIS_ADDR")
	flagx.EnvString(&c.RedisPassword, envPrefix+"REDIS_PASSWORD")
	if v, ok := os.LookupEnv(envPrefix + "TRUSTED_PROXIES"); ok {
		c.TrustedProxies = splitList(v)
	}

	flagx.EnvString(&c.AuditIPSalt, envPrefix+"AUDIT_IP_SALT")
	flagx.EnvString(&c.AuditFieldKey, envPrefix+"AUDIT_FIELD_KEY")
	flagx.EnvString(&c.LogFormat, envPrefix+"LOG_FORMAT")
	flagx.EnvString(&c.LogLevel, envPrefix+"LOG_LEVEL")

	return errors.Join(
		flagx.EnvInt(&c.RedisDB, envPrefix+"REDIS_DB"),
		flagx.EnvInt(&c.RequestsPerMinute, envPrefix+"REQUESTS_PER_MINUTE"),
		flagx.EnvInt(&c.PasswordAttempts, envPrefix+"PASSWORD_ATTEMPTS"),
		flagx.EnvInt64(&c.MaxUploadSize, envPrefix+"MAX_UPLOAD_SIZE"),
		flagx.EnvDuration(&c.DefaultExpiry, envPrefix+"DEFAULT_EXPIRY"),
		flagx.EnvDuration(&c.MaxExpiry, envPrefix+"MAX_EXPIRY"),
		flagx.EnvDuration(&c.SweepInterval, envPrefix+"SWEEP_INTERVAL"),
		flagx.EnvDuration(&c.PasswordWindow, envPrefix+"PASSWORD_WINDOW"),
	)
}

// splitList splits a comma separated value, dropping empty items.
func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
