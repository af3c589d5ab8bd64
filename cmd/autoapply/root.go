package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/amishk599/autoapply/internal/adapter"
	"github.com/amishk599/autoapply/internal/ai"
	"github.com/amishk599/autoapply/internal/budget"
	"github.com/amishk599/autoapply/internal/cache"
	"github.com/amishk599/autoapply/internal/config"
	"github.com/amishk599/autoapply/internal/filter"
	"github.com/amishk599/autoapply/internal/lifecycle"
	"github.com/amishk599/autoapply/internal/model"
	"github.com/amishk599/autoapply/internal/notifier"
	"github.com/amishk599/autoapply/internal/pipeline"
	"github.com/amishk599/autoapply/internal/ratelimit"
	"github.com/amishk599/autoapply/internal/render"
	"github.com/amishk599/autoapply/internal/retry"
	"github.com/amishk599/autoapply/internal/scraper"
	"github.com/amishk599/autoapply/internal/secrets"
	"github.com/amishk599/autoapply/internal/store"
	"github.com/spf13/cobra"
)

var (
	cfgPath string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "autoapply",
	Short: "Scrape job boards and prepare tailored applications",
	Long: "autoapply scrapes job postings from configured boards, enriches them with AI analysis,\n" +
		"tailored resumes and cover letters under a usage budget, and tracks each application.",
	SilenceUsage:  true,
	SilenceErrors: true,
	// Without a subcommand autoapply runs the scheduler, like `autoapply start`.
	RunE: runStart,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (default: AUTOAPPLY_CONFIG env var or ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

func loadConfig(path string) (*config.Config, error) {
	return config.Load(config.ResolvePath(path))
}

func setupLogger(dbg bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if dbg {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}

func setupNotifier(cfg *config.Config, httpClient *http.Client, logger *slog.Logger) model.Notifier {
	switch cfg.Notification.Type {
	case "slack":
		logger.Info("using slack notifier")
		return notifier.NewSlackNotifier(cfg.Notification.WebhookURL, httpClient, logger)
	default:
		return notifier.NewLogNotifier(logger)
	}
}

// defaultFilter narrows notifications and the default `jobs` listing.
func defaultFilter(cfg *config.Config) model.PostingFilter {
	return filter.NewTitleAndLocationFilter(cfg.Filters.TitleKeywords, cfg.Filters.Locations)
}

func createAdapter(site config.SiteConfig, httpClient *http.Client, creds adapter.Credentials, renderer adapter.Renderer, logger *slog.Logger) (model.Adapter, bool) {
	switch site.Kind {
	case config.KindGreenhouse:
		return adapter.NewGreenhouseAdapter(site.Name, site.BoardToken, site.Company, httpClient), true
	case config.KindLever:
		return adapter.NewLeverAdapter(site.Name, site.BoardToken, site.Company, httpClient), true
	case config.KindWorkday:
		return adapter.NewWorkdayAdapter(site.Name, site.BaseURL, site.Company, httpClient), true
	case config.KindHTMLBoard:
		var r adapter.Renderer
		if site.Render {
			r = renderer
		}
		return adapter.NewHTMLBoardAdapter(adapter.HTMLBoardConfig{
			Site:         site.Name,
			Company:      site.Company,
			SearchURL:    site.SearchURL,
			LoginURL:     site.LoginURL,
			UserField:    site.UserField,
			PassField:    site.PassField,
			RequireLogin: site.RequireLogin,
			Selectors: adapter.Selectors{
				Item:        site.Selectors.Item,
				Title:       site.Selectors.Title,
				Company:     site.Selectors.Company,
				Location:    site.Selectors.Location,
				Link:        site.Selectors.Link,
				Description: site.Selectors.Description,
			},
		}, httpClient, creds, r), true
	default:
		logger.Warn("unsupported site kind, skipping", "site", site.Name, "kind", site.Kind)
		return nil, false
	}
}

// app is the fully wired process. close releases everything it opened.
type app struct {
	cfg      *config.Config
	store    *store.SQLiteStore
	pipeline *pipeline.Pipeline
	logger   *slog.Logger
	closers  []func() error
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
}

// buildApp opens the store and wires every component from cfg. The AI
// gateway, budget and cache are left nil when ai.enabled is false.
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	sqlStore, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a := &app{cfg: cfg, store: sqlStore, logger: logger}
	a.closers = append(a.closers, sqlStore.Close)

	httpClient := &http.Client{Timeout: 30 * time.Second}

	var browser *render.Browser
	for _, s := range cfg.EnabledSites() {
		if s.Render {
			browser = render.NewBrowser(render.Config{}, logger)
			a.closers = append(a.closers, browser.Close)
			break
		}
	}
	var renderer adapter.Renderer
	if browser != nil {
		renderer = browser
	}

	keyring := secrets.NewKeyring()
	var adapters []model.Adapter
	for _, s := range cfg.EnabledSites() {
		ad, ok := createAdapter(s, httpClient, keyring, renderer, logger)
		if !ok {
			continue
		}
		adapters = append(adapters, ad)
		logger.Debug("registered site", "site", s.Name, "kind", s.Kind)
	}

	limiter := ratelimit.NewSiteLimiter(cfg.RateLimit.Interval(), cfg.RateLimit.Burst, cfg.RateLimit.Overrides())
	orch := scraper.NewOrchestrator(adapters, limiter, sqlStore, scraper.Config{
		MaxPages: cfg.Scrape.MaxPages,
		DelayMin: cfg.Scrape.DelayMin,
		DelayMax: cfg.Scrape.DelayMax,
		Workers:  cfg.Scrape.Workers,
		Retry: retry.Policy{
			MaxRetries: cfg.Scrape.MaxRetries,
			BaseDelay:  cfg.Scrape.RetryBaseDelay,
			MaxDelay:   time.Minute,
			Logger:     logger,
		},
	}, logger)

	n := notifier.NewFiltered(setupNotifier(cfg, httpClient, logger), defaultFilter(cfg))

	a.pipeline = &pipeline.Pipeline{
		Store:   sqlStore,
		Scrapes: scraper.NewTracker(orch, n, logger),
		Machine: lifecycle.NewMachine(sqlStore, logger),
		Logger:  logger,
	}

	if cfg.AI.Enabled {
		if err := a.wireAI(ctx); err != nil {
			a.close()
			return nil, err
		}
	}
	return a, nil
}

func (a *app) wireAI(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger

	if cfg.Candidate.ProfilePath != "" {
		profile, err := config.LoadProfile(cfg.Candidate.ProfilePath)
		if err != nil {
			return err
		}
		a.pipeline.Profile = profile
	} else {
		logger.Warn("candidate.profile not set, only jd_analysis is available")
	}

	provider := ai.NewOpenAIProvider(cfg.AI.BaseURL, cfg.AI.APIKey, cfg.AI.Model, &http.Client{Timeout: cfg.AI.Timeout})

	tracker, err := budget.NewTracker(ctx, a.store, budget.Ceilings{
		PerMinuteCalls: cfg.Budget.PerMinuteCalls,
		PerDayCalls:    cfg.Budget.PerDayCalls,
		DailySpendUSD:  cfg.Budget.DailySpendUSD,
	}, logger, budget.WithAlertThreshold(cfg.Budget.AlertThreshold))
	if err != nil {
		return fmt.Errorf("load budget: %w", err)
	}

	var index cache.Index = a.store
	switch cfg.Cache.Backend {
	case "redis":
		redisIndex, err := cache.NewRedisIndex(ctx, cfg.Cache.RedisURL, logger)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, redisIndex.Close)
		index = redisIndex
		logger.Info("using redis cache index")
	default:
		retired, err := a.store.RetireCacheEntries(ctx, provider.Model())
		if err != nil {
			return err
		}
		if retired > 0 {
			logger.Info("retired cache entries of previous model", "count", retired, "model", provider.Model())
		}
	}
	artifactCache := cache.New(index, a.store, provider.Model(), logger)

	pricing := make(budget.Pricing, len(cfg.AI.Pricing))
	for name, p := range cfg.AI.Pricing {
		pricing[name] = budget.Price{InputPer1K: p.InputPer1K, OutputPer1K: p.OutputPer1K}
	}

	gateway, err := ai.NewGateway(provider, artifactCache, tracker, a.store, ai.GatewayConfig{
		Pricing: pricing,
		Retry: retry.Policy{
			MaxRetries: cfg.AI.MaxRetries,
			BaseDelay:  cfg.AI.RetryBaseDelay,
			MaxDelay:   30 * time.Second,
			Logger:     logger,
		},
		CacheHitsConsumeQuota: cfg.Budget.CacheHitsConsumeQuota,
		MaxTokens:             cfg.AI.MaxTokens,
	}, logger)
	if err != nil {
		return err
	}

	a.pipeline.Gateway = gateway
	a.pipeline.Budget = tracker
	a.pipeline.Cache = artifactCache
	logger.Debug("ai enabled", "model", provider.Model(), "cache", cfg.Cache.Backend)
	return nil
}

// setup is the common prologue of commands that need the wired app.
func setup(ctx context.Context) (*app, error) {
	logger := setupLogger(debug)
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return nil, err
	}
	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		return nil, err
	}
	return a, nil
}

// shortID is the posting id prefix printed in listings and accepted as an argument.
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
