package flagx

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// The Env* helpers overwrite *dst only when the variable is set and
// non-empty. A malformed value is an error naming the variable.

func EnvString(dst *string, name string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

func EnvInt(dst *int, name string) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = n
	return nil
}

func EnvInt64(dst *int64, name string) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = n
	return nil
}

func EnvDuration(dst *time.Duration, name string) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = d
	return nil
}
