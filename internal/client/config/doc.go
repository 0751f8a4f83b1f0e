// Package config loads runtime configuration for the uploadhaven CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON or YAML file selected via -c or -config.
//  3. UPLOADHAVEN_CLIENT_* environment variables.
//  4. Command-line flags, which override earlier values.
//
// Supported flags
//
//	-a string   base URL of the server
//	-k string   bearer token sent with every request
//	-i int      response header timeout (seconds)
//	-o string   directory downloads are written to
//
// # File schema
//
// Durations use timex.Duration, so they can be strings like "30s" or
// integer nanoseconds:
//
//	{
//	  "server_url": "https://haven.example",
//	  "timeout": "30s",
//	  "out_dir": "downloads",
//	  "kdf": "argon2id",
//	  "history_db": "/home/me/.config/uploadhaven/history.db"
//	}
//
// Setting history_db to "" turns the local upload history off.
package config
