package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/Sato-Isolated/uploadhaven-sub006/internal/client/services"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/client/transport"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/common"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/filex"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/shared"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/sharelink"
)

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

// parse parses fs and requires exactly one positional argument.
func parse(fs *flag.FlagSet, args []string, what string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() != 1 {
		return "", fmt.Errorf("%w: expected one %s", errUsage, what)
	}
	return fs.Arg(0), nil
}

func (a *App) upload(ctx context.Context, args []string) error {
	fs := newFlagSet("upload")
	protect := fs.Bool("p", false, "protect the share with a password")
	expires := fs.Duration("e", 0, "expiry, e.g. 24h (server default when 0)")
	maxDownloads := fs.Int("n", 0, "maximum number of downloads (unlimited when 0)")

	path, err := parse(fs, args, "FILE")
	if err != nil {
		return err
	}
	if *maxDownloads < 0 || *expires < 0 {
		return fmt.Errorf("%w: -n and -e must not be negative", errUsage)
	}

	opts := services.UploadOptions{
		ExpiresIn:  *expires,
		KDF:        a.config.KDF,
		Iterations: a.config.Iterations,
	}
	if *maxDownloads > 0 {
		opts.MaxDownloads = maxDownloads
	}
	if *protect {
		pw, err := GetNewPassword(a.errOut)
		if err != nil {
			return err
		}
		opts.Password = string(pw)
		clear(pw)
	}

	res, err := a.shares.Upload(ctx, path, opts)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "link:         %s\n", res.Link)
	fmt.Fprintf(a.out, "share id:     %s\n", res.ShareID)
	fmt.Fprintf(a.out, "expires:      %s\n", res.ExpiresAt.Local().Format(time.RFC1123))
	fmt.Fprintf(a.out, "delete token: %s\n", res.DeleteToken)
	if res.PasswordProtected {
		fmt.Fprintln(a.out, "The link does not contain the key. Share the password separately.")
	}
	return nil
}

func (a *App) download(ctx context.Context, args []string) error {
	fs := newFlagSet("download")
	forcePrompt := fs.Bool("p", false, "ask for the password without checking the share first")
	outPath := fs.String("f", "", "output file (default: OUT_DIR/SHARE_ID)")

	link, err := parse(fs, args, "LINK")
	if err != nil {
		return err
	}

	l, err := sharelink.Decode(link)
	if err != nil {
		return err
	}

	needPassword := *forcePrompt
	if !needPassword {
		info, err := a.shares.Info(ctx, link)
		if err != nil {
			return err
		}
		needPassword = info.PasswordProtected
	}

	var password string
	if needPassword {
		pw, err := GetPassword(a.errOut, "Share password: ")
		if err != nil {
			return err
		}
		password = string(pw)
		clear(pw)
	}

	dst := *outPath
	if dst == "" {
		dir, err := filex.EnsureDir(a.config.OutDir)
		if err != nil {
			return err
		}
		dst = filepath.Join(dir, l.ShareID)
	}

	res, err := a.shares.Download(ctx, link, password, dst)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "saved %d bytes to %s\n", res.Size, res.Path)
	return nil
}

func formatLimit(info *shared.FileInfo) string {
	if info.MaxDownloads == nil {
		return "unlimited"
	}
	remaining := 0
	if info.RemainingDownloads != nil {
		remaining = *info.RemainingDownloads
	}
	return fmt.Sprintf("%d of %d remaining", remaining, *info.MaxDownloads)
}

func (a *App) info(ctx context.Context, args []string) error {
	link, err := parse(newFlagSet("info"), args, "LINK")
	if err != nil {
		return err
	}

	info, err := a.shares.Info(ctx, link)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "share id:   %s\n", info.ShareID)
	fmt.Fprintf(a.out, "size:       %d bytes\n", info.Size)
	fmt.Fprintf(a.out, "created:    %s\n", info.CreatedAt.Local().Format(time.RFC1123))
	fmt.Fprintf(a.out, "expires:    %s\n", info.ExpiresAt.Local().Format(time.RFC1123))
	fmt.Fprintf(a.out, "downloads:  %s\n", formatLimit(info))
	fmt.Fprintf(a.out, "password:   %t\n", info.PasswordProtected)
	return nil
}

func (a *App) verify(ctx context.Context, args []string) error {
	link, err := parse(newFlagSet("verify"), args, "LINK")
	if err != nil {
		return err
	}

	pw, err := GetPassword(a.errOut, "Share password: ")
	if err != nil {
		return err
	}
	password := string(pw)
	clear(pw)

	if err := a.shares.VerifyPassword(ctx, link, password); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "password accepted")
	return nil
}

func (a *App) delete(ctx context.Context, args []string) error {
	fs := newFlagSet("delete")
	token := fs.String("t", "", "delete token returned by upload (default: from the upload history)")
	yes := fs.Bool("y", false, "do not ask for confirmation")

	link, err := parse(fs, args, "LINK")
	if err != nil {
		return err
	}

	if !*yes {
		answer, err := GetSimpleText(a.in, "Delete this share for everyone? [y/N]", a.errOut)
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		if !strings.EqualFold(answer, "y") && !strings.EqualFold(answer, "yes") {
			fmt.Fprintln(a.out, "aborted")
			return nil
		}
	}

	if err := a.shares.Delete(ctx, link, *token); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "deleted")
	return nil
}

func (a *App) list(ctx context.Context, args []string) error {
	fs := newFlagSet("list")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	history, err := a.shares.History(ctx)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		fmt.Fprintln(a.out, "no active uploads")
		return nil
	}

	for _, u := range history {
		protected := ""
		if u.PasswordProtected {
			protected = "  [password]"
		}
		fmt.Fprintf(a.out, "%s  %10d bytes  expires %s%s\n",
			u.URL, u.Size, u.ExpiresAt.Local().Format(time.RFC1123), protected)
	}
	return nil
}

// describe turns the error taxonomy into messages for people.
func describe(err error) string {
	switch {
	case errors.Is(err, common.ErrExpired):
		return "this share has expired"
	case errors.Is(err, common.ErrDownloadLimitExceeded):
		return "this share has reached its download limit"
	case errors.Is(err, common.ErrorNotFound):
		return "share not found"
	case errors.Is(err, common.ErrPasswordRequired):
		return "this share is password protected; pass -p to enter the password"
	case errors.Is(err, common.ErrInvalidPassword):
		return "wrong password"
	case errors.Is(err, common.ErrRateLimitExceeded):
		return "too many attempts, try again later"
	case errors.Is(err, common.ErrIntegrity):
		return "decryption failed: wrong key or corrupted data, nothing was written"
	case errors.Is(err, common.ErrorForbidden):
		return "not allowed: wrong or missing delete token"
	case errors.Is(err, transport.ErrUnavailable):
		return "server unavailable"
	default:
		return err.Error()
	}
}
