package main

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/bobmcallan/elida-portal/internal/app"
	"github.com/bobmcallan/elida-portal/internal/models"
	"github.com/bobmcallan/elida-portal/internal/render"
	"github.com/google/subcommands"
)

type analyzeCmd struct {
	*cli
	save   bool
	legacy bool
}

func (*analyzeCmd) Name() string     { return "analyze" }
func (*analyzeCmd) Synopsis() string { return "run the multi-agent analysis for a symbol" }
func (*analyzeCmd) Usage() string {
	return `analyze [-save] [-legacy] <symbol>
  Runs a full analysis. -save stores it in the backend history. -legacy uses
  the older ingest-then-retrieve flow.
`
}
func (cmd *analyzeCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&cmd.save, "save", false, "Save the analysis to history")
	f.BoolVar(&cmd.legacy, "legacy", false, "Use the ingest and retrieve endpoints")
}

func (cmd *analyzeCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		return cmd.usageError(f, "exactly one symbol is required")
	}
	symbol := models.NormalizeTicker(f.Arg(0))
	if symbol == "" {
		return cmd.usageError(f, "the symbol is empty")
	}

	return cmd.withApp(ctx, "analyze "+symbol, func(a *app.App) subcommands.ExitStatus {
		analyze := a.Client.Analyze
		if cmd.legacy {
			analyze = a.Client.AnalyzeLegacy
		}
		analysis, err := analyze(ctx, symbol)
		if err != nil {
			return cmd.fail(ctx, "analyze "+symbol, err)
		}
		cmd.printMarkdown(render.AnalysisMarkdown(analysis))

		if cmd.save {
			entry, err := a.Client.SaveHistory(ctx, analysis)
			if err != nil {
				return cmd.fail(ctx, "save analysis", err)
			}
			cmd.printf("Saved to history as %s.\n", entry.ID)
		}
		return subcommands.ExitSuccess
	})
}

type quoteCmd struct{ *cli }

func (*quoteCmd) Name() string             { return "quote" }
func (*quoteCmd) Synopsis() string         { return "show current prices" }
func (*quoteCmd) Usage() string            { return "quote <ticker>...\n" }
func (*quoteCmd) SetFlags(_ *flag.FlagSet) {}

func (cmd *quoteCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		return cmd.usageError(f, "at least one ticker is required")
	}
	return cmd.withApp(ctx, "quote", func(a *app.App) subcommands.ExitStatus {
		var b strings.Builder
		failed := 0
		results := a.Market.Quotes(ctx, f.Args())
		for _, r := range results {
			if r.Quote == nil {
				failed++
				fmt.Fprintf(&b, "# %s\n\nQuote unavailable: %s\n\n", r.Ticker, r.Error)
				continue
			}
			b.WriteString(render.QuoteMarkdown(r.Quote))
			b.WriteString("\n")
		}
		cmd.printMarkdown(b.String())
		if failed == len(results) {
			return subcommands.ExitFailure
		}
		return subcommands.ExitSuccess
	})
}

type compareCmd struct{ *cli }

func (*compareCmd) Name() string             { return "compare" }
func (*compareCmd) Synopsis() string         { return "compare two stocks" }
func (*compareCmd) Usage() string            { return "compare <ticker-a> <ticker-b>\n" }
func (*compareCmd) SetFlags(_ *flag.FlagSet) {}

func (cmd *compareCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 2 {
		return cmd.usageError(f, "exactly two tickers are required")
	}
	tickerA, tickerB := models.NormalizeTicker(f.Arg(0)), models.NormalizeTicker(f.Arg(1))
	for _, t := range []string{tickerA, tickerB} {
		if t == "" {
			return cmd.usageError(f, "tickers must not be empty")
		}
	}
	return cmd.withApp(ctx, "compare", func(a *app.App) subcommands.ExitStatus {
		c, err := a.Client.Compare(ctx, tickerA, tickerB)
		if err != nil {
			return cmd.fail(ctx, "compare", err)
		}
		cmd.printMarkdown(render.ComparisonMarkdown(c))
		return subcommands.ExitSuccess
	})
}

type chatCmd struct{ *cli }

func (*chatCmd) Name() string             { return "chat" }
func (*chatCmd) Synopsis() string         { return "ask the ELIDA assistant a question" }
func (*chatCmd) Usage() string            { return "chat <message>...\n" }
func (*chatCmd) SetFlags(_ *flag.FlagSet) {}

func (cmd *chatCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	message := strings.TrimSpace(strings.Join(f.Args(), " "))
	if message == "" {
		return cmd.usageError(f, "a message is required")
	}
	return cmd.withApp(ctx, "chat", func(a *app.App) subcommands.ExitStatus {
		reply, err := a.Client.Chat(ctx, message, nil)
		if err != nil {
			return cmd.fail(ctx, "chat", err)
		}
		cmd.printMarkdown(render.ChatMarkdown(reply))
		return subcommands.ExitSuccess
	})
}
