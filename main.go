package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"hubrunner/app"
	"hubrunner/config"
	"hubrunner/config/appconf"
	"hubrunner/internal/dbconn"
	"hubrunner/internal/remotejob"
	"hubrunner/internal/validator"
	"hubrunner/version"

	_ "github.com/joho/godotenv/autoload"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	gommonlog "github.com/labstack/gommon/log"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	setupLogging(appconf.LogLevel(), appconf.LogFormat())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop := WatchSignals(cancel)
	defer stop()

	if err := run(ctx); err != nil {
		log.WithError(err).Fatal("hubrunner stopped")
	}
}

func run(ctx context.Context) error {
	db, err := dbconn.GetConn(
		dbconn.WithURL(appconf.DBURL()),
		dbconn.WithLogLevel(gormLogLevel(appconf.LogLevel())),
	)
	if err != nil {
		return fmt.Errorf("db connection failed: %w", err)
	}
	defer dbconn.Close()

	client, err := remotejob.NewClient(remotejob.Config{
		BaseURL:           appconf.APIBaseURL(),
		Timeout:           30 * time.Second,
		MaxRetries:        2,
		RequestsPerSecond: appconf.APIRequestsPerSecond(),
	})
	if err != nil {
		return fmt.Errorf("remote client: %w", err)
	}

	container, err := app.NewContainer(db, client, app.Options{
		MaxConcurrent:     appconf.MaxConcurrent(),
		PollInterval:      appconf.PollInterval(),
		TaskTimeout:       appconf.TaskTimeout(),
		BatchStagger:      appconf.BatchStagger(),
		PromoteDebounce:   appconf.PromoteDebounce(),
		CatalogTTL:        appconf.CatalogTTL(),
		UploadConcurrency: appconf.UploadConcurrency(),
	})
	if err != nil {
		return err
	}

	if err := container.Migrate(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	if err := container.Start(ctx); err != nil {
		return err
	}
	defer container.Shutdown()

	e := echo.New()
	e.HideBanner = true
	e.Logger.SetLevel(echoLogLevel(appconf.LogLevel()))
	e.Validator = validator.New()

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	config.AddRoutes(e, container, appconf.DefaultAPIKey())

	errCh := make(chan error, 1)
	go func() {
		log.WithField("port", appconf.Port()).WithField("version", version.Version).Info("hubrunner listening")
		errCh <- e.Start(fmt.Sprintf(":%s", appconf.Port()))
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func setupLogging(level, format string) {
	log.SetOutput(os.Stdout)
	if format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	lvl, err := log.ParseLevel(level)
	if err != nil {
		log.WithField("level", level).Warn("unknown log level, using info")
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}

func echoLogLevel(level string) gommonlog.Lvl {
	switch strings.ToLower(level) {
	case "debug", "trace":
		return gommonlog.DEBUG
	case "warn", "warning":
		return gommonlog.WARN
	case "error", "fatal", "panic":
		return gommonlog.ERROR
	}
	return gommonlog.INFO
}

func gormLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "debug", "trace":
		return logger.Info
	case "error", "fatal", "panic":
		return logger.Error
	}
	return logger.Warn
}
