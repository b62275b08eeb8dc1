package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bryanwahyu/lucy-scan/internal/application"
	apphistory "github.com/bryanwahyu/lucy-scan/internal/application/history"
	appprojects "github.com/bryanwahyu/lucy-scan/internal/application/projects"
	appreports "github.com/bryanwahyu/lucy-scan/internal/application/reports"
	appscans "github.com/bryanwahyu/lucy-scan/internal/application/scans"
	appschedules "github.com/bryanwahyu/lucy-scan/internal/application/schedules"
	"github.com/bryanwahyu/lucy-scan/internal/config"
	"github.com/bryanwahyu/lucy-scan/internal/domain/documents"
	"github.com/bryanwahyu/lucy-scan/internal/domain/history"
	"github.com/bryanwahyu/lucy-scan/internal/domain/projects"
	"github.com/bryanwahyu/lucy-scan/internal/domain/scanerrors"
	"github.com/bryanwahyu/lucy-scan/internal/domain/scans"
	"github.com/bryanwahyu/lucy-scan/internal/domain/schedules"
	"github.com/bryanwahyu/lucy-scan/internal/infra/browser"
	"github.com/bryanwahyu/lucy-scan/internal/infra/db/memory"
	mysqlp "github.com/bryanwahyu/lucy-scan/internal/infra/db/mysql"
	"github.com/bryanwahyu/lucy-scan/internal/infra/db/postgres"
	"github.com/bryanwahyu/lucy-scan/internal/infra/db/sqlite"
	"github.com/bryanwahyu/lucy-scan/internal/infra/engine/axe"
	"github.com/bryanwahyu/lucy-scan/internal/infra/httpserver"
	"github.com/bryanwahyu/lucy-scan/internal/infra/notify"
	"github.com/bryanwahyu/lucy-scan/internal/infra/render"
	minioStore "github.com/bryanwahyu/lucy-scan/internal/infra/storage"
	"github.com/bryanwahyu/lucy-scan/internal/middleware"
)

// store is every repository port; sqlstore.Store and memory.Store both satisfy it.
type store interface {
	scans.Repository
	projects.Repository
	history.Repository
	schedules.Repository
	scanerrors.Repository
	documents.Repository
}

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	// load config
	cfg, err := config.Load(path)
	if err != nil {
		slog.Error("config load error", "path", path, "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// init repo
	repo, sqlDB, err := openStore(ctx, cfg)
	if err != nil {
		fatal(logger, "database init error", err)
	}
	if sqlDB != nil {
		defer sqlDB.Close()
	}
	logger.Info("database ready", "driver", cfg.Database.Driver)

	clock := application.SystemClock{}
	health := map[string]middleware.HealthChecker{}
	if sqlDB != nil {
		health["database"] = &middleware.DatabaseHealthChecker{DB: sqlDB}
	}

	// seed owners
	projectsSvc := &appprojects.Service{Repo: repo, Scans: repo, Documents: repo, Clock: clock}
	for _, o := range cfg.Owners {
		notifications := o.Notifications == nil || *o.Notifications
		_, created, err := projectsSvc.EnsureOwner(ctx, projects.Owner{
			ID:                        o.ID,
			Name:                      o.Name,
			Email:                     o.Email,
			APIKey:                    o.APIKey,
			NotificationEmail:         o.NotificationEmail,
			ReceiveEmailNotifications: notifications,
			NotifyOnScanComplete:      notifications,
			NotifyOnScanError:         notifications,
			NotifyOnScheduledScan:     notifications,
		})
		if err != nil {
			fatal(logger, "seed owner error", err)
		}
		if created {
			logger.Info("owner seeded", "owner_id", o.ID)
		}
	}

	// init minio (opsional)
	var artifacts scans.ArtifactStore
	if cfg.Minio.Enabled {
		ms, err := minioStore.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			fatal(logger, "minio init error", err)
		}
		artifacts = ms
		health["storage"] = middleware.CheckFunc(ms.Ping)
	}

	// init browser + engine
	chrome := browser.New(browser.Options{
		ExecPath:          cfg.Browser.ExecPath,
		Headless:          cfg.Browser.Headless,
		NoSandbox:         cfg.Browser.NoSandbox,
		UserAgent:         cfg.Browser.UserAgent,
		NavigationTimeout: cfg.Browser.NavigationTimeout,
		SettleDelay:       cfg.Browser.SettleDelay,
		Logger:            logger,
	})
	engine, err := axe.Load(cfg.Engine.AxeScriptPath, cfg.Engine.Tags, cfg.Engine.Timeout)
	if err != nil {
		fatal(logger, "axe engine init error", err)
	}

	// init notifier
	var notifier scans.Notifier = notify.LogNotifier{Logger: logger}
	if cfg.SMTP.Host != "" {
		mailer, err := notify.NewMailer(notify.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			Timeout:  cfg.SMTP.Timeout,
		})
		if err != nil {
			fatal(logger, "smtp init error", err)
		}
		notifier = mailer
	}

	metrics := middleware.NewMetrics()
	hub := httpserver.NewHub(cfg.Server.CORSOrigins, logger)
	pool := appscans.NewPool(cfg.Scanner.Workers, cfg.Scanner.QueueSize, logger)

	// init service
	historySvc := &apphistory.Service{
		Scans:    repo,
		History:  repo,
		Projects: repo,
		Clock:    clock,
		Logger:   logger,
	}
	scansSvc := &appscans.Service{
		Repo:      repo,
		Projects:  repo,
		Errors:    repo,
		History:   historySvc,
		Browser:   chrome,
		Engine:    engine,
		Pool:      pool,
		Artifacts: artifacts,
		Notifier:  notifier,
		Events:    hub,
		Metrics:   metrics,
		Clock:     clock,
		Logger:    logger,
		BaseURL:   cfg.Server.BaseURL,
	}
	reportsSvc := &appreports.Service{
		Scans:         repo,
		Projects:      repo,
		Documents:     repo,
		Analytics:     historySvc,
		Artifacts:     artifacts,
		Notifier:      notifier,
		Renderer:      render.Renderer{Brand: cfg.Reports.Brand},
		Clock:         clock,
		Logger:        logger,
		LinkExpiry:    cfg.Reports.LinkExpiry,
		AnalyticsDays: cfg.Reports.AnalyticsDays,
	}
	schedulesSvc := &appschedules.Service{
		Repo:       repo,
		Scans:      repo,
		Projects:   repo,
		Runner:     scansSvc,
		Reports:    reportsSvc,
		Clock:      clock,
		Logger:     logger,
		Interval:   cfg.Scheduler.Interval,
		RunTimeout: cfg.Scheduler.RunTimeout,
	}

	// scans left running by a previous process
	if _, err := scansSvc.RecoverInterrupted(ctx); err != nil {
		fatal(logger, "recover interrupted scans error", err)
	}

	limiter := middleware.NewRateLimiter(cfg.Server.RateLimit.Capacity, cfg.Server.RateLimit.RefillPerSecond)
	go limiter.Run(ctx, time.Minute)

	schedulerDone := make(chan struct{})
	if cfg.Scheduler.Enabled {
		go func() {
			defer close(schedulerDone)
			schedulesSvc.Start(ctx)
		}()
	} else {
		close(schedulerDone)
	}

	// init router
	handler := httpserver.NewRouter(httpserver.Deps{
		Scans:       scansSvc,
		Projects:    projectsSvc,
		History:     historySvc,
		Schedules:   schedulesSvc,
		Owners:      repo,
		Hub:         hub,
		Metrics:     metrics,
		Limiter:     limiter,
		Health:      health,
		Ready:       map[string]middleware.HealthChecker{"scan_queue": pool},
		URLs:        middleware.URLPolicy{AllowPrivate: cfg.Server.AllowPrivateTargets},
		CORSOrigins: cfg.Server.CORSOrigins,
		Logger:      logger,
	})
	srv := httpserver.Server(cfg.Addr(), handler)

	// run server
	go func() {
		logger.Info("server listening", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	// graceful shutdown
	<-ctx.Done()
	logger.Info("shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	<-schedulerDone
	if err := pool.Shutdown(ctx2); err != nil {
		logger.Warn("scan pool shutdown cut short", "error", err)
	}
	logger.Info("bye")
}

func openStore(ctx context.Context, cfg *config.Config) (store, *sql.DB, error) {
	switch cfg.Database.Driver {
	case "mysql":
		s, err := mysqlp.Open(ctx, cfg.MySQLDSN())
		if err != nil {
			return nil, nil, err
		}
		return s, s.DB(), nil
	case "postgres":
		s, err := postgres.Open(ctx, cfg.PostgresDSN())
		if err != nil {
			return nil, nil, err
		}
		return s, s.DB(), nil
	case "sqlite":
		s, err := sqlite.Open(cfg.SQLiteDSN())
		if err != nil {
			return nil, nil, err
		}
		return s, s.DB(), nil
	default:
		return memory.New(), nil, nil
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}
