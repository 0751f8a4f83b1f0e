package config

import (
	"flag"
	"io"
	"strings"

	"github.com/Sato-Isolated/uploadhaven-sub006/internal/flagx"
)

// parseFlags applies the short command-line flags:
//
//	-a string   HTTP bind address (e.g. ":8080")
//	-u string   public base URL used in share links
//	-d string   PostgreSQL DSN; empty keeps the in-memory store
//	-s string   JWT HMAC secret key
//	-t string   blob storage: fs or s3
//	-f string   blob directory for fs storage
//	-b string   S3 bucket
//	-g string   S3 region
//	-e string   S3 base endpoint
//	-l string   rate limiter: memory or redis
//	-r string   Redis address
//	-p string   trusted proxies, comma separated addresses or CIDRs
//	-m int      max upload size in MiB
//	-x int      max expiry in hours
//
// Flags not in this list are ignored.
func parseFlags(c *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-u", "-d", "-s", "-t", "-f", "-b", "-g", "-e", "-l", "-r", "-p", "-m", "-x"})

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&c.HTTPAddr, "a", c.HTTPAddr, "address and port to run server")
	fs.StringVar(&c.BaseURL, "u", c.BaseURL, "public base url")
	fs.StringVar(&c.DatabaseDSN, "d", c.DatabaseDSN, "database DSN")
	fs.StringVar(&c.SecretKey, "s", c.SecretKey, "secret key")
	fs.StringVar(&c.StorageType, "t", c.StorageType, "blob storage type")
	fs.StringVar(&c.StorageDir, "f", c.StorageDir, "blob directory")
	fs.StringVar(&c.S3Bucket, "b", c.S3Bucket, "S3 bucket")
	fs.StringVar(&c.S3Region, "g", c.S3Region, "S3 region")
	fs.StringVar(&c.S3BaseEndpoint, "e", c.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&c.LimiterType, "l", c.LimiterType, "rate limiter type")
	fs.StringVar(&c.RedisAddr, "r", c.RedisAddr, "redis address")

	proxies := fs.String("p", strings.Join(c.TrustedProxies, ","), "trusted proxies")
	maxUpload := fs.Int64("m", c.MaxUploadSize>>20, "max upload size (MiB)")
	maxExpiry := fs.Int("x", int(c.MaxExpiry.Hours()), "max expiry (hours)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "m":
			c.MaxUploadSize = *maxUpload << 20
		case "x":
			c.MaxExpiry = hours(*maxExpiry)
		case "p":
			c.TrustedProxies = splitList(*proxies)
		}
	})
	return nil
}
