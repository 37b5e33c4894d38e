// Package app wires configuration, storage, push transport, dispatcher,
// scheduler and the HTTP server into a running service.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"fridgemind/internal/adapter/external/vision"
	"fridgemind/internal/adapter/push"
	"fridgemind/internal/adapter/scheduler"
	"fridgemind/internal/api"
	"fridgemind/internal/config"
	"fridgemind/internal/notify"
	"fridgemind/internal/platform/logger"
	"fridgemind/internal/platform/pg"
	platformsqlite "fridgemind/internal/platform/sqlite"
	"fridgemind/internal/shared"
	"fridgemind/internal/store"
)

// App wires application components.
type App struct {
	cfg config.Config
	log *slog.Logger
}

// New creates a new App instance and loads configuration.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.New(logger.Options{
		Env:          cfg.Env,
		ConsoleLevel: cfg.Log.ConsoleLevel,
		FileLevel:    cfg.Log.FileLevel,
		File:         cfg.Log.File,
		App:          "fridgemind",
	})
	return &App{cfg: cfg, log: log}, nil
}

// Run starts the application and blocks until SIGINT/SIGTERM.
func (a *App) Run() error {
	a.log.Info("starting")
	defer func() { _ = logger.Close(a.log) }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	pubKey, privKey, err := push.EnsureVAPIDKeys(a.cfg.Push.VAPIDPublicKey, a.cfg.Push.VAPIDPrivateKey, a.log)
	if err != nil {
		return err
	}
	transport := push.NewWebPush(push.VAPIDConfig{
		Subscriber: a.cfg.Push.Subscriber,
		PublicKey:  pubKey,
		PrivateKey: privKey,
		TTL:        a.cfg.Push.TTL,
	})

	loc, err := time.LoadLocation(a.cfg.Schedule.Timezone)
	if err != nil {
		return shared.Wrapf(err, "load timezone %q", a.cfg.Schedule.Timezone)
	}

	dispatcher := notify.NewDispatcher(notify.Options{
		Store:         st,
		Transport:     transport,
		Logger:        a.log,
		ThresholdDays: a.cfg.Notify.ThresholdDays,
		Location:      loc,
	})

	var labeler api.Labeler
	if a.cfg.Vision.APIKey != "" {
		labeler = vision.NewClient(a.cfg.Vision.BaseURL, a.cfg.Vision.APIKey, vision.WithLogger(a.log))
	} else {
		a.log.Warn("GOOGLE_VISION_API_KEY not set, /vision disabled")
	}

	sched := scheduler.NewWithContext(ctx, scheduler.Config{
		Logger:   a.log,
		Location: loc,
	})
	// Overlapping scan runs are tolerated: per-user dispatch is
	// independent, so a slow run and the next one cannot corrupt state.
	_, err = sched.AddJobWithOptions(a.cfg.Schedule.Cron, func(ctx context.Context) error {
		a.log.Info("running scheduled expiry scan", slog.String("timezone", loc.String()))
		sent, err := dispatcher.SendAll(ctx)
		if err != nil {
			return err
		}
		a.log.Info("scheduled expiry scan complete", slog.Int("sent", sent))
		return nil
	}, scheduler.JobOptions{
		Name:    "expiry-scan",
		Timeout: 10 * time.Minute,
	})
	if err != nil {
		return shared.Wrap(err, "register expiry scan")
	}
	sched.Start()

	router := api.NewRouter(api.Options{
		Logger:         a.log,
		Store:          st,
		Dispatcher:     dispatcher,
		Labeler:        labeler,
		VAPIDPublicKey: pubKey,
		RateInterval:   a.cfg.HTTP.RateInterval,
	})

	srv := &http.Server{Addr: a.cfg.HTTP.Addr, Handler: router}
	go func() {
		a.log.Info("http server listening", slog.String("addr", a.cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Error("server", slog.Any("err", err))
		}
	}()

	<-ctx.Done()
	a.log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sched.StopContext(shutdownCtx); err != nil {
		a.log.Warn("scheduler shutdown", slog.Any("err", err))
	}
	return srv.Shutdown(shutdownCtx)
}

// openStore builds the Store backend selected by configuration.
func (a *App) openStore(ctx context.Context) (store.Store, func(), error) {
	switch a.cfg.Store.Driver {
	case "postgres":
		if err := pg.WaitForDB(ctx, a.cfg.Store.PostgresDSN, pg.DefaultHealthCheckOptions()); err != nil {
			return nil, nil, shared.Wrap(err, "wait for postgres")
		}
		pool, err := pg.NewPool(ctx, a.cfg.Store.PostgresDSN)
		if err != nil {
			return nil, nil, shared.Wrap(err, "open postgres pool")
		}
		st, err := store.NewPostgres(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		a.log.Info("store ready", slog.String("driver", "postgres"))
		return st, pool.Close, nil

	case "sqlite":
		db, err := platformsqlite.NewDB(ctx, a.cfg.Store.SQLitePath)
		if err != nil {
			return nil, nil, shared.Wrap(err, "open sqlite")
		}
		if err := platformsqlite.ApplyMigrations(a.cfg.Store.SQLitePath, a.cfg.Store.MigrationsPath); err != nil {
			_ = db.Close()
			return nil, nil, shared.Wrap(err, "apply migrations")
		}
		a.log.Info("store ready",
			slog.String("driver", "sqlite"), slog.String("path", a.cfg.Store.SQLitePath))
		return store.NewSQLite(db), func() { _ = db.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", a.cfg.Store.Driver)
	}
}
