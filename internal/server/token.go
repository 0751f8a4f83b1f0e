package server

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/Sato-Isolated/uploadhaven-sub006/internal/common"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/server/auth"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/server/config"
)

// IssueToken implements the "token" command: it prints a bearer token for
// -user with -role, signed with the configured secret.
func IssueToken(cfg *config.Config, args []string, w io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	userID := fs.String("user", "", "user id (token subject)")
	role := fs.String("role", string(auth.RoleUser), "user or admin")
	ttl := fs.Duration("ttl", 24*time.Hour, "token validity")

	// Server flags may be mixed in; only ours are parsed here.
	if err := fs.Parse(filterTokenArgs(args)); err != nil {
		return err
	}

	if *userID == "" {
		return fmt.Errorf("-user is required: %w", common.ErrInvalidInput)
	}
	if r := auth.Role(*role); r != auth.RoleUser && r != auth.RoleAdmin {
		return fmt.Errorf("unknown role %q: %w", *role, common.ErrInvalidInput)
	}
	if *ttl <= 0 {
		return fmt.Errorf("-ttl must be positive: %w", common.ErrInvalidInput)
	}

	token, err := auth.GenerateToken(*userID, auth.Role(*role), []byte(cfg.SecretKey), *ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, token)
	return err
}

func filterTokenArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-user", "-role", "-ttl":
			out = append(out, args[i])
			if i+1 < len(args) {
				out = append(out, args[i+1])
				i++
			}
		}
	}
	return out
}
