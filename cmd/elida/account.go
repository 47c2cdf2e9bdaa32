package main

import (
	"context"
	"flag"
	"fmt"
	"sort"
	"strings"

	"github.com/bobmcallan/elida-portal/internal/app"
	"github.com/bobmcallan/elida-portal/internal/common"
	"github.com/bobmcallan/elida-portal/internal/models"
	"github.com/bobmcallan/elida-portal/internal/render"
	"github.com/google/subcommands"
)

type historyCmd struct {
	*cli
	delete bool
}

func (*historyCmd) Name() string     { return "history" }
func (*historyCmd) Synopsis() string { return "list, show or delete saved analyses" }
func (*historyCmd) Usage() string {
	return "history [-delete] [id]\n  Without an id lists saved analyses.\n"
}
func (cmd *historyCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&cmd.delete, "delete", false, "Delete the analysis with the given id")
}

func (cmd *historyCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() > 1 || (cmd.delete && f.NArg() != 1) {
		return cmd.usageError(f, "expected at most one id, and exactly one with -delete")
	}
	return cmd.withApp(ctx, "history", func(a *app.App) subcommands.ExitStatus {
		if f.NArg() == 0 {
			entries, err := a.Client.ListHistory(ctx)
			if err != nil {
				return cmd.fail(ctx, "history", err)
			}
			cmd.printMarkdown(render.HistoryMarkdown(entries))
			return subcommands.ExitSuccess
		}

		id := f.Arg(0)
		if cmd.delete {
			if err := a.Client.DeleteHistory(ctx, id); err != nil {
				return cmd.fail(ctx, "delete history "+id, err)
			}
			cmd.printf("Deleted %s.\n", id)
			return subcommands.ExitSuccess
		}

		entry, err := a.Client.GetHistory(ctx, id)
		if err != nil {
			return cmd.fail(ctx, "history "+id, err)
		}
		md := render.HistoryMarkdown([]models.HistoryEntry{*entry})
		if len(entry.Payload) > 0 {
			md += "\n```json\n" + string(entry.Payload) + "\n```\n"
		}
		cmd.printMarkdown(md)
		return subcommands.ExitSuccess
	})
}

type profileCmd struct {
	*cli
	risk    string
	horizon string
	goals   string
	sectors string
	ethical string
}

func (*profileCmd) Name() string     { return "profile" }
func (*profileCmd) Synopsis() string { return "show or update the investor profile" }
func (*profileCmd) Usage() string {
	return `profile [-risk R] [-horizon H] [-goals a,b] [-exclude-sectors a,b] [-ethical a,b]
  Shows the profile. Any flag updates that field; list flags take comma
  separated values and an empty value clears the list.
`
}
func (cmd *profileCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&cmd.risk, "risk", "", "Risk tolerance, e.g. low, moderate, high")
	f.StringVar(&cmd.horizon, "horizon", "", "Investment horizon, e.g. short, medium, long")
	f.StringVar(&cmd.goals, "goals", "", "Comma separated investment goals")
	f.StringVar(&cmd.sectors, "exclude-sectors", "", "Comma separated sectors to avoid")
	f.StringVar(&cmd.ethical, "ethical", "", "Comma separated ethical exclusions")
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (cmd *profileCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() > 0 {
		return cmd.usageError(f, "profile takes no arguments")
	}
	set := map[string]bool{}
	f.Visit(func(fl *flag.Flag) { set[fl.Name] = true })

	return cmd.withApp(ctx, "profile", func(a *app.App) subcommands.ExitStatus {
		p, err := a.Client.GetProfile(ctx)
		if err != nil {
			return cmd.fail(ctx, "profile", err)
		}
		if len(set) > 0 {
			if set["risk"] {
				p.RiskTolerance = cmd.risk
			}
			if set["horizon"] {
				p.InvestmentHorizon = cmd.horizon
			}
			if set["goals"] {
				p.Goals = splitList(cmd.goals)
			}
			if set["exclude-sectors"] {
				p.ExcludedSectors = splitList(cmd.sectors)
			}
			if set["ethical"] {
				p.EthicalExclusions = splitList(cmd.ethical)
			}
			if err := a.Client.SaveProfile(ctx, p); err != nil {
				return cmd.fail(ctx, "save profile", err)
			}
		}
		cmd.printMarkdown(render.ProfileMarkdown(p))
		return subcommands.ExitSuccess
	})
}

type settingsCmd struct{ *cli }

func (*settingsCmd) Name() string     { return "settings" }
func (*settingsCmd) Synopsis() string { return "show or change local settings" }
func (*settingsCmd) Usage() string {
	return "settings [key=value...]\n  Sets each key, or removes it when the value is empty.\n"
}
func (*settingsCmd) SetFlags(_ *flag.FlagSet) {}

func (cmd *settingsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	updates := make(map[string]string, f.NArg())
	for _, arg := range f.Args() {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return cmd.usageError(f, fmt.Sprintf("%q is not key=value", arg))
		}
		updates[strings.TrimSpace(k)] = v
	}

	return cmd.withApp(ctx, "settings", func(a *app.App) subcommands.ExitStatus {
		sess, err := a.Sessions.Current(ctx)
		if err != nil {
			return cmd.fail(ctx, "settings", err)
		}
		uid := sess.SettingsKey()
		store := a.Storage.SettingsStorage()

		values, err := store.GetSettings(ctx, uid)
		if err != nil {
			return cmd.fail(ctx, "settings", err)
		}
		if values == nil {
			values = map[string]string{}
		}
		if len(updates) > 0 {
			for k, v := range updates {
				if v == "" {
					delete(values, k)
				} else {
					values[k] = v
				}
			}
			if err := store.SaveSettings(ctx, uid, values); err != nil {
				return cmd.fail(ctx, "save settings", err)
			}
		}

		keys := make([]string, 0, len(values))
		for k := range values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			cmd.printf("%s=%s\n", k, values[k])
		}
		return subcommands.ExitSuccess
	})
}

type versionCmd struct{ *cli }

func (*versionCmd) Name() string             { return "version" }
func (*versionCmd) Synopsis() string         { return "print version and backend reachability" }
func (*versionCmd) Usage() string            { return "version\n" }
func (*versionCmd) SetFlags(_ *flag.FlagSet) {}

func (cmd *versionCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cmd.printf("elida %s\n", common.GetFullVersion())
	return cmd.withApp(ctx, "version", func(a *app.App) subcommands.ExitStatus {
		if err := a.Client.Health(ctx); err != nil {
			cmd.printf("Backend %s: unreachable (%v)\n", a.Client.BaseURL(), err)
			return subcommands.ExitFailure
		}
		cmd.printf("Backend %s: ok\n", a.Client.BaseURL())
		return subcommands.ExitSuccess
	})
}
