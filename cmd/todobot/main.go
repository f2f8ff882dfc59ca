// Command todobot runs the TODOList Telegram bot: database migrations, the
// update dispatch loop and the verification HTTP endpoint shared with the
// web application.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/joho/godotenv"

	"github.com/mrodionov/todobot/bot/dispatcher"
	"github.com/mrodionov/todobot/bot/fsm"
	"github.com/mrodionov/todobot/bot/session"
	"github.com/mrodionov/todobot/bot/transport"
	"github.com/mrodionov/todobot/core/buildinfo"
	"github.com/mrodionov/todobot/core/config"
	"github.com/mrodionov/todobot/core/database"
	"github.com/mrodionov/todobot/core/logger"
	"github.com/mrodionov/todobot/goals"
	"github.com/mrodionov/todobot/verify"
)

const defaultConfigPath = "config.yaml"

func main() {
	if err := run(); err != nil {
		log.Fatalf("todobot: %v", err)
	}
}

func run() error {
	// Missing .env is fine; real deployments pass environment directly.
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = defaultConfigPath
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	if err := logger.InitLogger(cfg); err != nil {
		return err
	}
	defer func() {
		if err := logger.Shutdown(); err != nil {
			log.Printf("logger shutdown error: %v", err)
		}
	}()

	logger.L.With("component", "app").Info("todobot starting",
		slog.String("event", "boot"),
		slog.String("version", buildinfo.Version),
	)

	if err := database.RunMigrations(cfg.Database); err != nil {
		return err
	}
	db, err := database.Connect(cfg.Database)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	sessions := session.NewPostgresStore(db)
	goalStore := goals.NewPostgresStore(db)

	tg, err := transport.New(transport.Options{
		Token:                  cfg.Telegram.Token,
		LongPollTimeoutSeconds: cfg.Telegram.LongPollTimeoutSeconds,
	})
	if err != nil {
		return err
	}

	engine := fsm.NewEngine(goalStore, cfg.Webapp.BaseURL)
	disp := dispatcher.New(dispatcher.Options{
		Transport:        tg,
		Sessions:         sessions,
		Offsets:          sessions,
		Engine:           engine,
		PollRetryBackoff: time.Duration(cfg.Telegram.PollRetryBackoffMS) * time.Millisecond,
	})

	verifySrv := &http.Server{
		Addr:              cfg.Verify.Listen,
		Handler:           verify.Router(verify.NewService(sessions), nil),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)

	go func() {
		logger.VERIFY.Info("verify listener started",
			slog.String("event", "http.start"),
			slog.String("listen", cfg.Verify.Listen),
		)
		if err := verifySrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	go func() {
		errCh <- disp.Run(ctx)
	}()

	var firstErr error
	select {
	case <-ctx.Done():
	case firstErr = <-errCh:
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := verifySrv.Shutdown(shutdownCtx); err != nil && firstErr == nil {
		firstErr = err
	}

	// Drain the remaining goroutine so its error is not lost.
	if err := <-errCh; err != nil && firstErr == nil {
		firstErr = err
	}

	logger.L.With("component", "app").Info("todobot stopped",
		slog.String("event", "shutdown"),
	)
	return firstErr
}
