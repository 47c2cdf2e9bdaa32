// Command elida is the terminal client for the ELIDA portal. It shares the
// daemon's config and store, so it must not run against the same store path
// while elida-portal is running.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/bobmcallan/elida-portal/internal/app"
	"github.com/bobmcallan/elida-portal/internal/client"
	"github.com/bobmcallan/elida-portal/internal/common"
	"github.com/bobmcallan/elida-portal/internal/config"
	"github.com/bobmcallan/elida-portal/internal/interfaces"
	"github.com/bobmcallan/elida-portal/internal/render"
	"github.com/bobmcallan/elida-portal/internal/scan"
	"github.com/google/subcommands"
)

// configPaths is a custom flag type that allows multiple -config flags.
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

// cli is the state shared by every subcommand.
type cli struct {
	configFiles configPaths
	verbose     bool
	raw         bool
	width       int

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	logger *common.Logger
	app    *app.App
}

func newCLI() *cli {
	return &cli{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr, width: 100}
}

func (c *cli) setGlobalFlags(fs *flag.FlagSet) {
	fs.Var(&c.configFiles, "config", "Configuration file path (can be specified multiple times)")
	fs.BoolVar(&c.verbose, "v", false, "Log to stderr at debug level")
	fs.BoolVar(&c.raw, "raw", false, "Print markdown without terminal styling")
	fs.IntVar(&c.width, "width", 100, "Word-wrap width for styled output")
}

// open loads config and opens the shared store on first use.
func (c *cli) open() (*app.App, error) {
	if c.app != nil {
		return c.app, nil
	}

	paths := c.configFiles
	if len(paths) == 0 {
		if p := config.FindFile(); p != "" {
			paths = configPaths{p}
		}
	}
	cfg, err := config.LoadFromFiles(paths...)
	if err != nil {
		return nil, err
	}
	if issues := cfg.Validate(); len(issues) > 0 {
		return nil, fmt.Errorf("invalid configuration:\n  - %s", strings.Join(issues, "\n  - "))
	}

	a, err := app.New(cfg, c.loggerFor(cfg))
	if err != nil {
		return nil, err
	}
	c.app = a
	return a, nil
}

// loggerFor keeps the terminal clean unless -v is set.
func (c *cli) loggerFor(cfg *config.Config) *common.Logger {
	if c.logger != nil {
		return c.logger
	}
	logCfg := cfg.Logging
	if c.verbose {
		logCfg.Level = "debug"
		logCfg.Outputs = []string{"console"}
	} else {
		logCfg.Outputs = []string{"file"}
	}
	return common.NewLoggerFromConfig(logCfg)
}

func (c *cli) close() {
	if c.app != nil {
		c.app.Close()
		c.app = nil
	}
}

// printMarkdown styles md for the terminal unless -raw is set.
func (c *cli) printMarkdown(md string) {
	if !c.raw {
		if out, err := render.Terminal(md, c.width); err == nil {
			fmt.Fprint(c.stdout, out)
			return
		}
	}
	fmt.Fprint(c.stdout, md)
}

func (c *cli) printf(format string, args ...interface{}) {
	fmt.Fprintf(c.stdout, format, args...)
}

// fail reports err and drops the session if the backend rejected it.
func (c *cli) fail(ctx context.Context, op string, err error) subcommands.ExitStatus {
	switch {
	case errors.Is(err, client.ErrUnauthenticated):
		fmt.Fprintf(c.stderr, "Error %s: not signed in, run `elida login` first\n", op)
	case errors.Is(err, interfaces.ErrNotFound):
		fmt.Fprintf(c.stderr, "Error %s: not found\n", op)
	case errors.Is(err, scan.ErrScanInFlight):
		fmt.Fprintf(c.stderr, "Error %s: a scan is already running\n", op)
	default:
		fmt.Fprintf(c.stderr, "Error %s: %v\n", op, err)
	}
	if c.app != nil && c.app.Sessions.HandleAuthFailure(ctx, err) {
		fmt.Fprintln(c.stderr, "The session was rejected and has been cleared. Run `elida login` again.")
	}
	return subcommands.ExitFailure
}

// usageError prints a usage problem for a subcommand.
func (c *cli) usageError(f *flag.FlagSet, msg string) subcommands.ExitStatus {
	fmt.Fprintf(c.stderr, "Error: %s\n", msg)
	f.Usage()
	return subcommands.ExitUsageError
}

// withApp opens the app, runs fn and closes the app again.
func (c *cli) withApp(ctx context.Context, op string, fn func(a *app.App) subcommands.ExitStatus) subcommands.ExitStatus {
	a, err := c.open()
	if err != nil {
		return c.fail(ctx, op, err)
	}
	defer c.close()
	return fn(a)
}

func register(cdr *subcommands.Commander, c *cli) {
	cdr.Register(cdr.HelpCommand(), "")
	cdr.Register(cdr.FlagsCommand(), "")
	cdr.Register(cdr.CommandsCommand(), "")

	cdr.Register(&loginCmd{cli: c}, "session")
	cdr.Register(&registerCmd{cli: c}, "session")
	cdr.Register(&logoutCmd{cli: c}, "session")
	cdr.Register(&whoamiCmd{cli: c}, "session")

	cdr.Register(&portfolioCmd{cli: c}, "portfolio")
	cdr.Register(&addCmd{cli: c}, "portfolio")
	cdr.Register(&removeCmd{cli: c}, "portfolio")
	cdr.Register(&watchlistCmd{cli: c}, "portfolio")
	cdr.Register(&watchCmd{cli: c}, "portfolio")
	cdr.Register(&unwatchCmd{cli: c}, "portfolio")
	cdr.Register(&scanCmd{cli: c}, "portfolio")

	cdr.Register(&analyzeCmd{cli: c}, "research")
	cdr.Register(&quoteCmd{cli: c}, "research")
	cdr.Register(&compareCmd{cli: c}, "research")
	cdr.Register(&chatCmd{cli: c}, "research")

	cdr.Register(&historyCmd{cli: c}, "account")
	cdr.Register(&profileCmd{cli: c}, "account")
	cdr.Register(&settingsCmd{cli: c}, "account")
	cdr.Register(&versionCmd{cli: c}, "")
}

func main() {
	common.LoadVersionFromFile()

	c := newCLI()
	c.setGlobalFlags(flag.CommandLine)
	cdr := subcommands.NewCommander(flag.CommandLine, "elida")
	register(cdr, c)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	status := cdr.Execute(ctx)
	stop()
	c.close()
	os.Exit(int(status))
}
