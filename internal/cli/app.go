package cli

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"course-workbench/internal/cache"
	"course-workbench/internal/catalog"
	"course-workbench/internal/compose"
	"course-workbench/internal/config"
	"course-workbench/internal/httpx"
	"course-workbench/internal/lifecycle"
	"course-workbench/internal/logging"
	"course-workbench/internal/providers/sheet"
)

// App holds everything the commands share. It is wired lazily so commands
// that need no remote store (fake-sheet, help) never open the cache.
type App struct {
	ConfigPath string

	Config  config.Config
	Logger  *zap.Logger
	Client  *sheet.Client
	Cache   *cache.Store
	Engine  *lifecycle.Engine
	Syncer  *catalog.Syncer
	Builder *compose.Builder
	Now     func() time.Time
}

func (a *App) ensure() error {
	if a.Engine != nil {
		return nil
	}
	cfg, err := config.Load(a.ConfigPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		return err
	}
	return a.Wire(cfg, logger)
}

// ensureSheet is ensure for commands that cannot work from the cache alone.
func (a *App) ensureSheet() error {
	if err := a.ensure(); err != nil {
		return err
	}
	if !a.Config.SheetConfigured() {
		return errNoSheet
	}
	return nil
}

var errNoSheet = errors.New("no course endpoint configured; set WORKBENCH_COURSE_API or course_api in the config file")

// Wire builds the client, cache and services from cfg.
func (a *App) Wire(cfg config.Config, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	store, err := cache.Open(cfg.CachePath)
	if err != nil {
		return err
	}

	retry := httpx.WithAttempts(cfg.HTTPMaxAttempts)
	client := sheet.New(cfg.CourseAPI, cfg.ToolsAPI,
		sheet.WithRetry(retry),
		sheet.WithListLimit(cfg.ListLimit),
		sheet.WithLogger(logger.Named("sheet")),
	)

	client.HTTP.Timeout = cfg.HTTPTimeout

	policy := lifecycle.DefaultPolicy()
	policy.RequirePrimaryTool = cfg.RequirePrimaryTool

	a.Config = cfg
	a.Logger = logger
	a.Client = client
	a.Cache = store
	a.Engine = lifecycle.NewEngine(client,
		lifecycle.WithPolicy(policy),
		lifecycle.WithListCache(store),
		lifecycle.WithLogger(logger.Named("lifecycle")),
	)
	a.Syncer = catalog.NewSyncer(client, store,
		catalog.WithLogger(logger.Named("catalog")),
		catalog.WithSyncTimeout(cfg.HTTPTimeout*time.Duration(cfg.HTTPMaxAttempts)),
	)
	a.Builder = compose.NewBuilder(a.Engine, compose.WithLogger(logger.Named("compose")))
	if a.Now == nil {
		a.Now = time.Now
	}
	return nil
}

// Close releases the cache and flushes the logger.
func (a *App) Close() error {
	var errs []error
	if a.Cache != nil {
		errs = append(errs, a.Cache.Close())
		a.Cache = nil
	}
	if a.Logger != nil {
		// stderr sync fails on some terminals; nothing useful to report
		_ = a.Logger.Sync()
	}
	return errors.Join(errs...)
}
