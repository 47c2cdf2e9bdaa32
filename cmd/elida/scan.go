package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/bobmcallan/elida-portal/internal/app"
	"github.com/bobmcallan/elida-portal/internal/render"
	"github.com/bobmcallan/elida-portal/internal/scan"
	"github.com/google/subcommands"
)

type scanCmd struct {
	*cli
	wait    bool
	resume  bool
	status  bool
	discard bool
}

func (*scanCmd) Name() string     { return "scan" }
func (*scanCmd) Synopsis() string { return "run an AI scan over portfolio tickers" }
func (*scanCmd) Usage() string {
	return `scan [-wait] [ticker...]
scan -resume | -status | -discard
  Starts a scan of the given tickers, or every portfolio ticker. Without
  -wait the request is stored and followed by elida-portal or scan -resume.
`
}
func (cmd *scanCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&cmd.wait, "wait", false, "Follow the scan until it finishes")
	f.BoolVar(&cmd.resume, "resume", false, "Follow a stored scan until it finishes")
	f.BoolVar(&cmd.status, "status", false, "Show the stored scan request")
	f.BoolVar(&cmd.discard, "discard", false, "Forget the stored scan request")
}

func (cmd *scanCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	modes := 0
	for _, on := range []bool{cmd.resume, cmd.status, cmd.discard} {
		if on {
			modes++
		}
	}
	if modes > 1 || (modes == 1 && f.NArg() > 0) {
		return cmd.usageError(f, "-resume, -status and -discard take no tickers and exclude each other")
	}

	return cmd.withApp(ctx, "scan", func(a *app.App) subcommands.ExitStatus {
		switch {
		case cmd.status:
			return cmd.showPending(ctx, a)
		case cmd.discard:
			if err := a.Scans.Discard(ctx); err != nil {
				return cmd.fail(ctx, "discard scan", err)
			}
			cmd.printf("Stored scan request discarded.\n")
			return subcommands.ExitSuccess
		case cmd.resume:
			task, ok, err := a.Scans.Resume(ctx)
			if err != nil {
				return cmd.fail(ctx, "resume scan", err)
			}
			if !ok {
				cmd.printf("No scan to resume.\n")
				return subcommands.ExitSuccess
			}
			return cmd.follow(ctx, task)
		}

		tickers := f.Args()
		if len(tickers) == 0 {
			var err error
			if tickers, err = a.Portfolio.Tickers(ctx); err != nil {
				return cmd.fail(ctx, "scan", err)
			}
		}
		task, err := a.Scans.Start(ctx, tickers)
		if err != nil {
			return cmd.fail(ctx, "scan", err)
		}
		if !cmd.wait {
			cmd.printf("Scan %s started for %s.\nRun `elida scan -resume` or start elida-portal to follow it.\n",
				task.RequestID(), strings.Join(task.Tickers(), ", "))
			return subcommands.ExitSuccess
		}
		return cmd.follow(ctx, task)
	})
}

func (cmd *scanCmd) showPending(ctx context.Context, a *app.App) subcommands.ExitStatus {
	req, err := a.Scans.Pending(ctx)
	if err != nil {
		return cmd.fail(ctx, "scan status", err)
	}
	if req == nil {
		cmd.printf("No scan stored.\n")
		return subcommands.ExitSuccess
	}
	cmd.printf("Scan %s for %s, started %s.\n", req.RequestID, strings.Join(req.Tickers, ", "),
		req.StartedAt.Local().Format(time.RFC1123))
	return subcommands.ExitSuccess
}

// follow prints progress to stderr until the task ends or ctx is cancelled.
func (cmd *scanCmd) follow(ctx context.Context, task *scan.Task) subcommands.ExitStatus {
	tick := time.NewTicker(time.Second)
	defer tick.Stop()

	last := -1
	for {
		select {
		case <-task.Done():
			fmt.Fprintln(cmd.stderr)
			outcome, err := task.Wait(ctx)
			if err != nil {
				if errors.Is(err, scan.ErrCanceled) {
					cmd.printf("Scan %s stopped; the request is stored and can be resumed.\n", task.RequestID())
					return subcommands.ExitFailure
				}
				return cmd.fail(ctx, "scan "+task.RequestID(), err)
			}
			cmd.printMarkdown(render.ScanOutcomeMarkdown(task.State(), outcome.Updated, outcome.Failed))
			return subcommands.ExitSuccess
		case <-ctx.Done():
			fmt.Fprintln(cmd.stderr)
			cmd.printf("Interrupted; scan %s is stored and can be resumed.\n", task.RequestID())
			return subcommands.ExitFailure
		case <-tick.C:
			if p := task.Progress(); p != last {
				last = p
				fmt.Fprintf(cmd.stderr, "\rScan %s: %d%%", task.RequestID(), p)
			}
		}
	}
}
