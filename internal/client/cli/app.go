package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Sato-Isolated/uploadhaven-sub006/internal/client/config"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/client/repositories/uploads"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/client/services"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/client/storage"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/client/transport"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/logging"
	"github.com/Sato-Isolated/uploadhaven-sub006/internal/netx"
)

// Exit codes returned by Run.
const (
	ExitOK    = 0
	ExitError = 1
	ExitUsage = 2
)

type App struct {
	config *config.Config
	shares services.ShareService
	in     *bufio.Reader
	out    io.Writer
	errOut io.Writer
	closer io.Closer
}

// NewApp wires the HTTP transport and, unless disabled, the local upload
// history. Call Close when done.
func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	var (
		history uploads.Repository
		closer  io.Closer
	)
	if c.HistoryDB != "" {
		repos, err := storage.InitDatabase(ctx, c.HistoryDB)
		if err != nil {
			return nil, fmt.Errorf("open upload history: %w", err)
		}
		history, closer = repos.Uploads, repos
	}

	client := transport.New(c.ServerURL, netx.NewHTTPClient(c.Timeout), c.Token)
	app := newApp(c, services.NewShareService(client, history, logger), os.Stdin, os.Stdout, os.Stderr)
	app.closer = closer
	return app, nil
}

func (a *App) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}

func newApp(c *config.Config, shares services.ShareService, in io.Reader, out, errOut io.Writer) *App {
	return &App{config: c, shares: shares, in: bufio.NewReader(in), out: out, errOut: errOut}
}

// globalFlags take a value and belong to the config loader.
var globalFlags = map[string]struct{}{
	"-a": {}, "-k": {}, "-i": {}, "-o": {}, "-c": {}, "-config": {}, "--config": {},
}

// splitCommand skips the global flags and returns the subcommand with its
// own arguments.
func splitCommand(args []string) (string, []string) {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if _, ok := globalFlags[arg]; ok {
			i++
			continue
		}
		if strings.HasPrefix(arg, "-") {
			continue
		}
		return arg, args[i+1:]
	}
	return "", nil
}

type command struct {
	usage string
	run   func(a *App, ctx context.Context, args []string) error
}

var commands = map[string]command{
	"upload":   {"upload [-p] [-e 24h] [-n 3] FILE", (*App).upload},
	"download": {"download [-p] [-f OUT] LINK", (*App).download},
	"info":     {"info LINK", (*App).info},
	"verify":   {"verify LINK", (*App).verify},
	"delete":   {"delete [-t TOKEN] [-y] LINK", (*App).delete},
	"list":     {"list", (*App).list},
}

var commandOrder = []string{"upload", "download", "info", "verify", "delete", "list"}

func (a *App) printUsage() {
	fmt.Fprintln(a.errOut, "usage: uploadhaven [-a URL] [-k TOKEN] [-c FILE] COMMAND [ARGS]")
	fmt.Fprintln(a.errOut, "commands:")
	for _, name := range commandOrder {
		fmt.Fprintln(a.errOut, "  "+commands[name].usage)
	}
}

// errUsage marks errors that should be followed by the command's usage line.
var errUsage = errors.New("usage")

// Run executes the subcommand found in args and returns the process exit
// code.
func (a *App) Run(ctx context.Context, args []string) int {
	name, rest := splitCommand(args)
	if name == "" || name == "help" {
		a.printUsage()
		if name == "help" {
			return ExitOK
		}
		return ExitUsage
	}

	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(a.errOut, "unknown command %q\n", name)
		a.printUsage()
		return ExitUsage
	}

	if err := cmd.run(a, ctx, rest); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintf(a.errOut, "%v\nusage: uploadhaven %s\n", err, cmd.usage)
			return ExitUsage
		}
		fmt.Fprintf(a.errOut, "error: %s\n", describe(err))
		return ExitError
	}
	return ExitOK
}
