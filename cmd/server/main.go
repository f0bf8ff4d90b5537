package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/rezkam/greet/internal/config"
	greethttp "github.com/rezkam/greet/internal/http"
	"github.com/rezkam/greet/internal/http/handler"
	"github.com/rezkam/greet/internal/materializer"
	"github.com/rezkam/greet/internal/occurrence"
	"github.com/rezkam/greet/internal/owner"
	"github.com/rezkam/greet/internal/storage/postgres"
	"github.com/rezkam/greet/pkg/observability"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Webhook.URL == "" {
		return fmt.Errorf("GREET_WEBHOOK_URL is required")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	providers, err := observability.Init(ctx, cfg.Observability.ServiceName, cfg.Observability.Enabled)
	if err != nil {
		return fmt.Errorf("failed to init observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "failed to shutdown observability providers", "error", err)
		}
	}()
	slog.SetDefault(providers.Logger)

	store, err := postgres.NewStore(ctx, postgres.DBConfig{
		DSN:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}
	defer store.Close()

	slog.InfoContext(ctx, "storage initialized", "url", maskPassword(cfg.Database.URL))

	clock := clockwork.NewRealClock()
	deliveryTime := occurrence.DefaultDeliveryTime
	if cfg.DeliveryTimeOverride != "" {
		deliveryTime, err = occurrence.ParseTimeOfDay(cfg.DeliveryTimeOverride)
		if err != nil {
			return fmt.Errorf("invalid GREET_DELIVERY_TIME_OVERRIDE: %w", err)
		}
	}

	registry := materializer.NewRegistry(
		materializer.NewBirthdayStrategy(deliveryTime, cfg.Webhook.URL))
	svc := owner.NewService(
		owner.PostgresStore{Store: store},
		materializer.New(registry, clock),
		clock,
	)

	router := greethttp.NewRouter(handler.NewServer(svc))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "HTTP server listening", "port", cfg.HTTPPort)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	slog.Info("server shut down cleanly")
	return nil
}

// maskPassword hides credentials in a DSN for logging.
func maskPassword(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "invalid-url"
	}
	if _, has := u.User.Password(); has {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
