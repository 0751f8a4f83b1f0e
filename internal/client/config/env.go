package config

import (
	"errors"

	"github.com/Sato-Isolated/uploadhaven-sub006/internal/flagx"
)

const envPrefix = "UPLOADHAVEN_CLIENT_"

func parseEnv(c *Config) error {
	flagx.EnvString(&c.ServerURL, envPrefix+"SERVER_URL")
	flagx.EnvString(&c.Token, envPrefix+"TOKEN")
	flagx.EnvString(&c.OutDir, envPrefix+"OUT_DIR")
	flagx.EnvString(&c.KDF, envPrefix+"KDF")
	flagx.EnvString(&c.LogLevel, envPrefix+"LOG_LEVEL")
	flagx.EnvString(&c.HistoryDB, envPrefix+"HISTORY_DB")

	return errors.Join(
		flagx.EnvDuration(&c.Timeout, envPrefix+"TIMEOUT"),
		flagx.EnvInt(&c.Iterations, envPrefix+"ITERATIONS"),
	)
}
