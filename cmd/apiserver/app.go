package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ramonehamilton/CHUNI-Companion/internal/api"
	"github.com/ramonehamilton/CHUNI-Companion/internal/chunirec"
	"github.com/ramonehamilton/CHUNI-Companion/internal/config"
	"github.com/ramonehamilton/CHUNI-Companion/internal/events"
	"github.com/ramonehamilton/CHUNI-Companion/internal/metrics"
	"github.com/ramonehamilton/CHUNI-Companion/internal/planner"
	"github.com/ramonehamilton/CHUNI-Companion/internal/simulation"
	"github.com/ramonehamilton/CHUNI-Companion/internal/storage"
)

// app owns every long-lived component of the server process.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	dispatcher *events.Dispatcher
	store      *storage.Service
	data       *config.DataStore
	runner     *simulation.Runner
	planner    *planner.Service
	server     *api.Server
	sweeper    *storage.Sweeper
	watcher    *config.Watcher
}

func newApp(cfg *config.Config) (*app, error) {
	logger := config.SetupLogging(cfg.Log)

	dispatcher := events.NewDispatcher()
	dispatcher.Register(events.NewLoggingObserver(logger, cfg.Log.VerboseEvents))

	dbPath := cfg.Cache.DBPath
	if dbPath == "" {
		var err error
		if dbPath, err = storage.DefaultPath(); err != nil {
			return nil, err
		}
	}
	db, err := storage.Open(storage.DefaultConfig(dbPath))
	if err != nil {
		return nil, err
	}
	store := storage.NewService(db)
	logger.Info("Database opened", "path", dbPath)

	if cfg.Chunirec.Token == "" {
		cfg.Chunirec.Token = loadStoredToken(store, logger)
	}
	if cfg.Chunirec.Token == "" {
		logger.Warn("No chunirec token configured; player lookups will fail until one is set",
			"env", config.EnvAPIToken)
	}

	data := config.NewDataStoreFromConfig(cfg.Data)
	if snap, err := data.Reload(); err != nil {
		logger.Warn("Failed to load data files", "error", err)
	} else {
		logger.Info("Data files loaded", "newSongs", len(snap.NewSongs.All()), "overrides", len(snap.Overrides))
	}

	m := metrics.NewPlannerMetrics()
	client := chunirec.NewClient(chunirec.Config{
		BaseURL:    cfg.Chunirec.BaseURL,
		Token:      cfg.Chunirec.Token,
		Region:     cfg.Chunirec.Region,
		Timeout:    cfg.GetChunirecTimeout(),
		RateDelay:  cfg.GetRateDelay(),
		MaxRetries: cfg.Chunirec.MaxRetries,
		OnResponse: m.RecordUpstream,
	})

	runner := simulation.NewRunner(simulation.RunnerConfig{
		Workers:    cfg.Simulation.Workers,
		QueueSize:  cfg.Simulation.QueueSize,
		Dispatcher: dispatcher,
		Logger:     logger,
	})

	svc, err := planner.NewService(planner.Config{
		Client:            client,
		Data:              data,
		Store:             store,
		NoCache:           !cfg.Cache.Enabled,
		Runner:            runner,
		Dispatcher:        dispatcher,
		Metrics:           m,
		CacheTTL:          cfg.GetCacheTTL(),
		MusicTTL:          cfg.GetMusicTTL(),
		ResultTTL:         cfg.GetResultTTL(),
		DefaultMode:       simulation.Mode(cfg.Simulation.DefaultMode),
		DefaultPreference: simulation.Preference(cfg.Simulation.DefaultPreference),
		Logger:            logger,
	})
	if err != nil {
		runner.Stop()
		_ = store.Close()
		return nil, err
	}

	server := api.NewServer(&api.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		CORSOrigins:    cfg.Server.CORSOrigins,
		RequestTimeout: cfg.GetRequestTimeout(),
		ProxyTimeout:   cfg.GetProxyTimeout(),
		Logger:         logger,
	}, api.Deps{
		Planner:       svc,
		Client:        client,
		Runner:        runner,
		Metrics:       m,
		TokenResolver: cfg.ResolveToken,
	})
	dispatcher.Register(server.NewWebSocketObserver())

	a := &app{
		cfg:        cfg,
		logger:     logger,
		dispatcher: dispatcher,
		store:      store,
		data:       data,
		runner:     runner,
		planner:    svc,
		server:     server,
	}

	a.sweeper = storage.NewSweeper(store, &storage.SweeperConfig{
		Interval: cfg.GetSweepInterval(),
		Logger:   logger,
		OnSweep: func(res storage.SweepResult, err error) {
			if err == nil && (res.Payloads > 0 || res.Simulations > 0) {
				dispatcher.Dispatch(events.NewTypedEvent(events.CacheSwept, events.CacheSweptEvent{
					Payloads:    res.Payloads,
					Simulations: res.Simulations,
				}, context.Background()))
			}
		},
	})

	if cfg.Data.Watch {
		a.watcher = config.NewWatcher(data, config.WatcherConfig{
			Logger:   logger,
			OnReload: a.onDataReload,
		})
	}
	return a, nil
}

func (a *app) onDataReload(snap config.DataSnapshot, err error) {
	ev := events.DataReloadedEvent{
		File:      strings.Join(a.data.Paths(), ","),
		NewSongs:  len(snap.NewSongs.All()),
		Overrides: len(snap.Overrides),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	a.dispatcher.Dispatch(events.NewTypedEvent(events.DataReloaded, ev, context.Background()))
}

// loadStoredToken decrypts the token saved by "apiserver store-token".
func loadStoredToken(store *storage.Service, logger *slog.Logger) string {
	passphrase := os.Getenv(passphraseEnv)
	if passphrase == "" {
		return ""
	}
	token, err := store.LoadSecret(context.Background(), tokenSecret, storage.DefaultEncryptionConfig(passphrase))
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return ""
	case err != nil:
		logger.Warn("Failed to load stored chunirec token", "error", err)
		return ""
	}
	logger.Info("Using stored chunirec token")
	return token
}

// Start launches background workers and the HTTP listener.
func (a *app) Start() error {
	if err := a.sweeper.Start(); err != nil {
		return fmt.Errorf("failed to start sweeper: %w", err)
	}
	if a.watcher != nil {
		if err := a.watcher.Start(context.Background()); err != nil {
			a.logger.Warn("Data file watching disabled", "error", err)
			a.watcher = nil
		}
	}
	return a.server.Start()
}

// Stop shuts everything down in reverse start order.
func (a *app) Stop(ctx context.Context) {
	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Error("Error during server shutdown", "error", err)
	}
	a.Close()
}

// Close releases the workers and the database.
func (a *app) Close() {
	if a.watcher != nil {
		a.watcher.Stop()
	}
	if a.sweeper.IsRunning() {
		_ = a.sweeper.Stop()
	}
	a.planner.Close()
	a.runner.Stop()
	if err := a.store.Close(); err != nil {
		a.logger.Error("Error closing database", "error", err)
	}
}
