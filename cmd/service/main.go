package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"gitlab.com/dirk.krummacker/person-service/internal/clock"
	"gitlab.com/dirk.krummacker/person-service/internal/config"
	"gitlab.com/dirk.krummacker/person-service/internal/logging"
	"gitlab.com/dirk.krummacker/person-service/internal/metrics"
	"gitlab.com/dirk.krummacker/person-service/internal/person"
	"gitlab.com/dirk.krummacker/person-service/internal/personalid"
	"gitlab.com/dirk.krummacker/person-service/internal/service"
	"gitlab.com/dirk.krummacker/person-service/internal/store"
)

// Usage example on the command line:
// > PORT=8080 DBUSER=dirk DBPWD=bullo92 GIN_MODE=release GIN_LOGGING=OFF go run main.go
func main() {
	if err := config.LoadDotEnv(); err != nil {
		logrus.WithError(err).Fatal("could not load .env file")
	}
	cfg, err := config.FromEnv()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Fatal("person service failed")
	}
}

// run serves the person API until ctx is cancelled or the server fails. All resources are
// released before it returns.
func run(ctx context.Context, cfg config.Config, logger logrus.FieldLogger) error {
	sqlDB, err := store.CreateDatabase(ctx, cfg)
	if err != nil {
		return fmt.Errorf("could not connect to database: %w", err)
	}
	defer sqlDB.Close()
	st, err := store.New(ctx, sqlDB, cfg.DBDriver)
	if err != nil {
		return fmt.Errorf("could not prepare statements: %w", err)
	}
	defer st.Close()

	m := metrics.New()
	persons := person.NewService(st,
		personalid.NewGenerator(nil),
		clock.NewFixedOffset(cfg.ClockOffset),
		person.WithAttempts(cfg.PersonalIdAttempts),
		person.WithRecorder(m),
		person.WithLogger(logger))
	router := service.SetupHttpRouter(persons, st, m, logger, cfg.GinLogging)

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.WithFields(logrus.Fields{
		"addr":   server.Addr,
		"driver": cfg.DBDriver,
	}).Info("person service listening")
	return serve(ctx, server, cfg.ShutdownTimeout, logger)
}

// serve runs server until ctx is cancelled, then shuts it down gracefully. A server that
// fails to listen or stops on its own is reported to the caller.
func serve(ctx context.Context, server *http.Server, shutdownTimeout time.Duration, logger logrus.FieldLogger) error {
	errs := make(chan error, 1)
	go func() {
		errs <- server.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	if err := <-errs; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}
