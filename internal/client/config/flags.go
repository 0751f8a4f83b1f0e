package config

import (
	"flag"
	"io"
	"time"

	"github.com/Sato-Isolated/uploadhaven-sub006/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
// Subcommand flags share the argument list, so only -a, -k, -i and -o are
// looked at here.
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-k", "-i", "-o"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.ServerURL, "a", cfg.ServerURL, "server base url")
	fs.StringVar(&cfg.Token, "k", cfg.Token, "bearer token")
	fs.StringVar(&cfg.OutDir, "o", cfg.OutDir, "download directory")
	timeout := fs.Int("i", int(cfg.Timeout.Seconds()), "response header timeout (in seconds)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg.Timeout = time.Duration(*timeout) * time.Second
	return nil
}
