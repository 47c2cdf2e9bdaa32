package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/bobmcallan/elida-portal/internal/auth"
	"github.com/bobmcallan/elida-portal/internal/client"
	"github.com/bobmcallan/elida-portal/internal/common"
	"github.com/bobmcallan/elida-portal/internal/config"
	"github.com/bobmcallan/elida-portal/internal/handlers"
	"github.com/bobmcallan/elida-portal/internal/interfaces"
	"github.com/bobmcallan/elida-portal/internal/market"
	"github.com/bobmcallan/elida-portal/internal/mcp"
	"github.com/bobmcallan/elida-portal/internal/models"
	"github.com/bobmcallan/elida-portal/internal/portfolio"
	"github.com/bobmcallan/elida-portal/internal/scan"
	"github.com/bobmcallan/elida-portal/internal/storage"
	"github.com/robfig/cron/v3"
)

// App holds all application components and dependencies.
type App struct {
	Config *config.Config
	Logger *common.Logger

	Storage   interfaces.StorageManager
	Sessions  *auth.SessionManager
	Client    *client.Client
	Portfolio *portfolio.Service
	Scans     *scan.Runner
	Market    *market.Service

	// HTTP handlers
	HealthHandler       *handlers.HealthHandler
	VersionHandler      *handlers.VersionHandler
	ServerHealthHandler *handlers.ServerHealthHandler
	AuthHandler         *handlers.AuthHandler
	PortfolioHandler    *handlers.PortfolioHandler
	ScanHandler         *handlers.ScanHandler
	MarketHandler       *handlers.MarketHandler
	DashboardHandler    *handlers.DashboardHandler
	SettingsHandler     *handlers.SettingsHandler
	ProfileHandler      *handlers.ProfileHandler
	MCPHandler          *mcp.Handler

	cron        *cron.Cron
	unsubscribe func()
	watchers    sync.WaitGroup
	closeOnce   sync.Once
}

// New initializes the application with all dependencies.
func New(cfg *config.Config, logger *common.Logger) (*App, error) {
	logger = logger.OrSilent()
	a := &App{
		Config: cfg,
		Logger: logger,
	}

	env := strings.ToLower(strings.TrimSpace(cfg.Environment))
	if cfg.IsDevMode() {
		logger.Warn().Msg("RUNNING IN DEV MODE: debug logging enabled, do not use in production")
	} else if env != "prod" && env != "" {
		logger.Warn().
			Str("environment", cfg.Environment).
			Msg("unrecognized environment value, defaulting to prod behavior")
	}

	if err := a.initServices(); err != nil {
		return nil, err
	}
	a.initHandlers()

	logger.Info().Msg("application initialization complete")

	return a, nil
}

// initServices opens the store and builds the services on top of it.
func (a *App) initServices() error {
	store, err := storage.NewStorageManager(a.Logger, a.Config)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	a.Storage = store

	a.Sessions = auth.NewSessionManager(store.SessionStorage(), nil, a.Logger)
	a.Client = client.NewElidaClient(a.Config.API.URL,
		client.WithTokenSource(a.Sessions),
		client.WithTimeout(a.Config.API.GetTimeout()),
		client.WithAnalyzeTimeout(a.Config.API.GetAnalyzeTimeout()),
		client.WithLogger(a.Logger),
	)
	a.Sessions.SetAuthenticator(a.Client)

	a.Portfolio = portfolio.NewService(store.PortfolioStorage(), store.ScanStorage(), a.Logger)
	a.Scans = scan.NewRunner(a.Client, a.Portfolio, store.ScanStorage(), a.Logger, scan.Options{
		PollInterval: a.Config.Scan.GetPollInterval(),
		MaxBackoff:   a.Config.Scan.GetMaxBackoff(),
		MaxAttempts:  a.Config.Scan.MaxAttempts,
		MaxDuration:  a.Config.Scan.GetMaxDuration(),
		OnUpdate: func(state models.ScanState) {
			a.Logger.Debug().
				Str("request_id", state.RequestID).
				Str("status", string(state.Status)).
				Int("progress", state.Progress).
				Msg("scan progress")
		},
	})
	a.Market = market.NewService(a.Client, a.Config.API.GetQuoteTTL(), a.Logger)

	a.Logger.Debug().Str("backend", a.Client.BaseURL()).Msg("services initialized")
	return nil
}

// initHandlers initializes all HTTP handlers.
func (a *App) initHandlers() {
	a.HealthHandler = handlers.NewHealthHandler(a.Logger, a.Storage.KeyValueStorage())
	a.VersionHandler = handlers.NewVersionHandler(a.Logger, a.Client.BaseURL())
	a.ServerHealthHandler = handlers.NewServerHealthHandler(a.Logger, a.Client)
	a.AuthHandler = handlers.NewAuthHandler(a.Logger, a.Sessions)
	a.PortfolioHandler = handlers.NewPortfolioHandler(a.Logger, a.Portfolio)
	a.ScanHandler = handlers.NewScanHandler(a.Logger, a.Scans, a.Portfolio, a.Sessions)
	a.MarketHandler = handlers.NewMarketHandler(a.Logger, a.Client, a.Market, a.Sessions)
	a.DashboardHandler = handlers.NewDashboardHandler(a.Logger, a.Portfolio, a.Market)
	a.SettingsHandler = handlers.NewSettingsHandler(a.Logger, a.Storage.SettingsStorage(), a.Sessions)
	a.ProfileHandler = handlers.NewProfileHandler(a.Logger, a.Client, a.Sessions)

	a.MCPHandler = mcp.NewHandler(a.MCPDeps(), a.Logger)

	a.Logger.Debug().Msg("HTTP handlers initialized")
}

// MCPDeps returns the services the MCP tools run against.
func (a *App) MCPDeps() mcp.Deps {
	return mcp.Deps{
		Portfolio: a.Portfolio,
		Scans:     a.Scans,
		Market:    a.Market,
		Research:  a.Client,
	}
}

// StartBackground resumes an unfinished scan, starts scheduled rescans and
// begins watching store changes. It is only called by the daemon.
func (a *App) StartBackground(ctx context.Context) error {
	events, unsubscribe := a.Storage.Subscribe(32)
	a.unsubscribe = unsubscribe
	a.watchers.Add(1)
	go a.watchStore(events)

	if task, ok, err := a.Scans.Resume(ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("failed to resume stored scan")
	} else if ok {
		a.Logger.Info().Str("request_id", task.RequestID()).Msg("resumed stored scan")
	}

	spec := strings.TrimSpace(a.Config.Scan.Schedule)
	if spec == "" {
		return nil
	}
	a.cron = cron.New()
	if _, err := a.cron.AddFunc(spec, a.scheduledScan); err != nil {
		return fmt.Errorf("invalid scan schedule %q: %w", spec, err)
	}
	a.cron.Start()
	a.Logger.Info().Str("schedule", spec).Msg("scheduled rescans enabled")
	return nil
}

// scheduledScan rescans every portfolio ticker.
func (a *App) scheduledScan() {
	ctx := context.Background()
	tickers, err := a.Portfolio.Tickers(ctx)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("scheduled scan: failed to list tickers")
		return
	}
	if len(tickers) == 0 {
		a.Logger.Debug().Msg("scheduled scan: portfolio is empty")
		return
	}

	task, err := a.Scans.Start(ctx, tickers)
	switch {
	case errors.Is(err, scan.ErrScanInFlight):
		a.Logger.Info().Msg("scheduled scan skipped, a scan is already running")
	case errors.Is(err, client.ErrUnauthenticated):
		a.Logger.Warn().Msg("scheduled scan skipped, not signed in")
	case err != nil:
		a.Logger.Warn().Err(err).Msg("scheduled scan failed to start")
	default:
		a.Logger.Info().Str("request_id", task.RequestID()).Int("tickers", len(tickers)).Msg("scheduled scan started")
	}
}

// watchStore logs committed store changes. Cached quotes are dropped for a
// ticker leaving the portfolio, and entirely when the session changes.
func (a *App) watchStore(events <-chan models.StoreEvent) {
	defer a.watchers.Done()
	for evt := range events {
		a.Logger.Debug().Str("topic", string(evt.Topic)).Str("key", evt.Key).Msg("store changed")
		switch {
		case evt.Topic == models.TopicSession:
			a.Market.Invalidate("")
		case evt.Topic == models.TopicPortfolio && evt.Key != "":
			a.Market.Invalidate(evt.Key)
		}
	}
}

// Close closes all application resources.
func (a *App) Close() error {
	var err error
	a.closeOnce.Do(func() {
		if a.cron != nil {
			<-a.cron.Stop().Done()
		}
		if a.Scans != nil {
			a.Scans.Close()
		}
		if a.unsubscribe != nil {
			a.unsubscribe()
			a.watchers.Wait()
		}
		if a.Storage != nil {
			err = a.Storage.Close()
		}
	})
	return err
}
