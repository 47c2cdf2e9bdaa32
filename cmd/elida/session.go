package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/bobmcallan/elida-portal/internal/app"
	"github.com/bobmcallan/elida-portal/internal/models"
	"github.com/google/subcommands"
	"golang.org/x/term"
)

// readPassword takes the password from the flag, ELIDA_PASSWORD, or stdin, in
// that order. A terminal is read without echo; piped input is read as one line.
func (c *cli) readPassword(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if env := os.Getenv("ELIDA_PASSWORD"); env != "" {
		return env, nil
	}
	fmt.Fprint(c.stderr, "Password: ")
	if f, ok := c.stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(c.stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(c.stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (c *cli) printSession(sess *models.Session) {
	c.printf("Signed in as %s", sess.User.Username)
	if sess.User.Email != "" {
		c.printf(" <%s>", sess.User.Email)
	}
	c.printf("\n")
}

type loginCmd struct {
	*cli
	password string
}

func (*loginCmd) Name() string     { return "login" }
func (*loginCmd) Synopsis() string { return "sign in to the ELIDA backend" }
func (*loginCmd) Usage() string {
	return "login [-password P] <username>\n  Signs in and stores the session for later commands.\n"
}
func (cmd *loginCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&cmd.password, "password", "", "Password (default: ELIDA_PASSWORD or prompt)")
}

func (cmd *loginCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		return cmd.usageError(f, "a username is required")
	}
	return cmd.withApp(ctx, "login", func(a *app.App) subcommands.ExitStatus {
		password, err := cmd.readPassword(cmd.password)
		if err != nil {
			return cmd.fail(ctx, "login", err)
		}
		sess, err := a.Sessions.Login(ctx, f.Arg(0), password)
		if err != nil {
			return cmd.fail(ctx, "login", err)
		}
		cmd.printSession(sess)
		return subcommands.ExitSuccess
	})
}

type registerCmd struct {
	*cli
	email    string
	password string
}

func (*registerCmd) Name() string     { return "register" }
func (*registerCmd) Synopsis() string { return "create an ELIDA account and sign in" }
func (*registerCmd) Usage() string {
	return "register -email E [-password P] <username>\n"
}
func (cmd *registerCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&cmd.email, "email", "", "Email address")
	f.StringVar(&cmd.password, "password", "", "Password (default: ELIDA_PASSWORD or prompt)")
}

func (cmd *registerCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		return cmd.usageError(f, "a username is required")
	}
	if cmd.email == "" {
		return cmd.usageError(f, "-email is required")
	}
	return cmd.withApp(ctx, "register", func(a *app.App) subcommands.ExitStatus {
		password, err := cmd.readPassword(cmd.password)
		if err != nil {
			return cmd.fail(ctx, "register", err)
		}
		sess, err := a.Sessions.Register(ctx, f.Arg(0), cmd.email, password)
		if err != nil {
			return cmd.fail(ctx, "register", err)
		}
		cmd.printSession(sess)
		return subcommands.ExitSuccess
	})
}

type logoutCmd struct{ *cli }

func (*logoutCmd) Name() string             { return "logout" }
func (*logoutCmd) Synopsis() string         { return "forget the stored session" }
func (*logoutCmd) Usage() string            { return "logout\n" }
func (*logoutCmd) SetFlags(_ *flag.FlagSet) {}

func (cmd *logoutCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return cmd.withApp(ctx, "logout", func(a *app.App) subcommands.ExitStatus {
		if err := a.Sessions.Logout(ctx); err != nil {
			return cmd.fail(ctx, "logout", err)
		}
		cmd.printf("Signed out.\n")
		return subcommands.ExitSuccess
	})
}

type whoamiCmd struct{ *cli }

func (*whoamiCmd) Name() string             { return "whoami" }
func (*whoamiCmd) Synopsis() string         { return "show the signed-in user" }
func (*whoamiCmd) Usage() string            { return "whoami\n" }
func (*whoamiCmd) SetFlags(_ *flag.FlagSet) {}

func (cmd *whoamiCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return cmd.withApp(ctx, "whoami", func(a *app.App) subcommands.ExitStatus {
		sess, err := a.Sessions.Current(ctx)
		if err != nil {
			return cmd.fail(ctx, "whoami", err)
		}
		if !sess.Valid() {
			cmd.printf("Not signed in.\n")
			return subcommands.ExitSuccess
		}
		cmd.printSession(sess)
		return subcommands.ExitSuccess
	})
}
