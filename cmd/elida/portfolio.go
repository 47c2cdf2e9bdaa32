package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/bobmcallan/elida-portal/internal/app"
	"github.com/bobmcallan/elida-portal/internal/market"
	"github.com/bobmcallan/elida-portal/internal/models"
	"github.com/bobmcallan/elida-portal/internal/portfolio"
	"github.com/bobmcallan/elida-portal/internal/render"
	"github.com/google/subcommands"
	"github.com/shopspring/decimal"
)

type portfolioCmd struct {
	*cli
	offline bool
}

func (*portfolioCmd) Name() string     { return "portfolio" }
func (*portfolioCmd) Synopsis() string { return "show the portfolio with analysis and value" }
func (*portfolioCmd) Usage() string {
	return "portfolio [-offline]\n  Lists tracked tickers. Positions are valued at current prices unless -offline.\n"
}
func (cmd *portfolioCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&cmd.offline, "offline", false, "Skip fetching quotes")
}

func (cmd *portfolioCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return cmd.withApp(ctx, "portfolio", func(a *app.App) subcommands.ExitStatus {
		entries, err := a.Portfolio.List(ctx)
		if err != nil {
			return cmd.fail(ctx, "portfolio", err)
		}
		if cmd.offline || len(entries) == 0 {
			cmd.printMarkdown(render.EntriesMarkdown(entries))
			return subcommands.ExitSuccess
		}
		tickers := make([]string, len(entries))
		for i, e := range entries {
			tickers[i] = e.Ticker
		}
		cmd.printMarkdown(render.PortfolioMarkdown(market.Value(entries, a.Market.Quotes(ctx, tickers))))
		return subcommands.ExitSuccess
	})
}

type addCmd struct {
	*cli
	shares string
	price  string
}

func (*addCmd) Name() string     { return "add" }
func (*addCmd) Synopsis() string { return "add a ticker to the portfolio" }
func (*addCmd) Usage() string {
	return "add [-shares N] [-price P] <ticker>\n  Adds a ticker, or updates shares and buy price of one already tracked.\n"
}
func (cmd *addCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&cmd.shares, "shares", "", "Number of shares held")
	f.StringVar(&cmd.price, "price", "", "Average buy price per share")
}

func parseDecimal(name, value string) (*decimal.Decimal, error) {
	if value == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("-%s %q is not a number", name, value)
	}
	return &d, nil
}

func (cmd *addCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		return cmd.usageError(f, "exactly one ticker is required")
	}
	shares, err := parseDecimal("shares", cmd.shares)
	if err != nil {
		return cmd.usageError(f, err.Error())
	}
	price, err := parseDecimal("price", cmd.price)
	if err != nil {
		return cmd.usageError(f, err.Error())
	}

	return cmd.withApp(ctx, "add", func(a *app.App) subcommands.ExitStatus {
		entry, err := a.Portfolio.Add(ctx, portfolio.AddInput{Ticker: f.Arg(0), Shares: shares, BuyPrice: price})
		if err != nil {
			return cmd.fail(ctx, "add", err)
		}
		cmd.printf("%s saved (status: %s).\n", entry.Ticker, entry.Status)
		return subcommands.ExitSuccess
	})
}

type removeCmd struct{ *cli }

func (*removeCmd) Name() string             { return "remove" }
func (*removeCmd) Synopsis() string         { return "remove a ticker from the portfolio" }
func (*removeCmd) Usage() string            { return "remove <ticker>\n" }
func (*removeCmd) SetFlags(_ *flag.FlagSet) {}

func (cmd *removeCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		return cmd.usageError(f, "exactly one ticker is required")
	}
	ticker := models.NormalizeTicker(f.Arg(0))
	return cmd.withApp(ctx, "remove", func(a *app.App) subcommands.ExitStatus {
		if err := a.Portfolio.Remove(ctx, ticker); err != nil {
			return cmd.fail(ctx, "remove "+ticker, err)
		}
		cmd.printf("%s removed.\n", ticker)
		return subcommands.ExitSuccess
	})
}

type watchlistCmd struct{ *cli }

func (*watchlistCmd) Name() string             { return "watchlist" }
func (*watchlistCmd) Synopsis() string         { return "show the watchlist with prices" }
func (*watchlistCmd) Usage() string            { return "watchlist\n" }
func (*watchlistCmd) SetFlags(_ *flag.FlagSet) {}

func (cmd *watchlistCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return cmd.withApp(ctx, "watchlist", func(a *app.App) subcommands.ExitStatus {
		list, err := a.Portfolio.Watchlist(ctx)
		if err != nil {
			return cmd.fail(ctx, "watchlist", err)
		}
		var quotes []market.QuoteResult
		if len(list.Tickers) > 0 {
			quotes = a.Market.Quotes(ctx, list.Tickers)
		}
		cmd.printMarkdown(render.WatchlistMarkdown(list, quotes))
		return subcommands.ExitSuccess
	})
}

type watchCmd struct{ *cli }

func (*watchCmd) Name() string             { return "watch" }
func (*watchCmd) Synopsis() string         { return "add tickers to the watchlist" }
func (*watchCmd) Usage() string            { return "watch <ticker>...\n" }
func (*watchCmd) SetFlags(_ *flag.FlagSet) {}

func (cmd *watchCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		return cmd.usageError(f, "at least one ticker is required")
	}
	return cmd.withApp(ctx, "watch", func(a *app.App) subcommands.ExitStatus {
		var list *models.Watchlist
		for _, t := range f.Args() {
			var err error
			if list, err = a.Portfolio.Watch(ctx, t); err != nil {
				return cmd.fail(ctx, "watch "+t, err)
			}
		}
		cmd.printMarkdown(render.WatchlistMarkdown(list, nil))
		return subcommands.ExitSuccess
	})
}

type unwatchCmd struct{ *cli }

func (*unwatchCmd) Name() string             { return "unwatch" }
func (*unwatchCmd) Synopsis() string         { return "remove tickers from the watchlist" }
func (*unwatchCmd) Usage() string            { return "unwatch <ticker>...\n" }
func (*unwatchCmd) SetFlags(_ *flag.FlagSet) {}

func (cmd *unwatchCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		return cmd.usageError(f, "at least one ticker is required")
	}
	return cmd.withApp(ctx, "unwatch", func(a *app.App) subcommands.ExitStatus {
		var list *models.Watchlist
		for _, t := range f.Args() {
			var err error
			if list, err = a.Portfolio.Unwatch(ctx, t); err != nil {
				return cmd.fail(ctx, "unwatch "+t, err)
			}
		}
		cmd.printMarkdown(render.WatchlistMarkdown(list, nil))
		return subcommands.ExitSuccess
	})
}
