package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jonboulle/clockwork"

	"github.com/rezkam/greet/internal/config"
	"github.com/rezkam/greet/internal/executor"
	"github.com/rezkam/greet/internal/materializer"
	"github.com/rezkam/greet/internal/occurrence"
	"github.com/rezkam/greet/internal/queue"
	"github.com/rezkam/greet/internal/scheduler"
	"github.com/rezkam/greet/internal/storage/postgres"
	"github.com/rezkam/greet/internal/webhook"
	"github.com/rezkam/greet/pkg/observability"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadWorkerConfig()
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

	slog.InfoContext(ctx, "starting greet worker",
		"poll_interval", cfg.PollInterval,
		"executor_concurrency", cfg.ExecutorConcurrency,
		"queue_kind", cfg.Queue.Kind)

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

	clock := clockwork.NewRealClock()

	q, err := buildQueue(ctx, cfg.Queue, clock)
	if err != nil {
		return fmt.Errorf("failed to build work queue: %w", err)
	}

	deliveryTime := occurrence.DefaultDeliveryTime
	if cfg.DeliveryTimeOverride != "" {
		deliveryTime, err = occurrence.ParseTimeOfDay(cfg.DeliveryTimeOverride)
		if err != nil {
			return fmt.Errorf("invalid GREET_DELIVERY_TIME_OVERRIDE: %w", err)
		}
	}

	registry := materializer.NewRegistry(
		materializer.NewBirthdayStrategy(deliveryTime, cfg.Webhook.URL))
	mat := materializer.New(registry, clock)

	sched := scheduler.New(store, q, scheduler.Config{
		PollInterval:        cfg.PollInterval,
		ClaimBatchLimit:     cfg.ClaimBatchLimit,
		RecoveryBatchLimit:  cfg.RecoveryBatchLimit,
		StuckClaimThreshold: cfg.StuckClaimThreshold,
	}, clock)

	exec := executor.New(
		store,
		executor.NewTxFinalizer(store, mat, clock),
		webhook.NewClient(cfg.Webhook.Timeout),
		q,
		executor.Config{
			Concurrency:        cfg.ExecutorConcurrency,
			RetryBackoffs:      cfg.Webhook.RetryBackoffs,
			LateExecutionGrace: cfg.Webhook.LateGraceAfter,
			ReceiveWait:        20 * time.Second,
		},
		clock,
	)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		exec.Run(ctx)
	}()

	err = sched.Start(ctx)
	wg.Wait()
	if errors.Is(err, context.Canceled) {
		slog.Info("worker shut down cleanly")
		return nil
	}
	return err
}

// buildQueue selects the queue backend. The in-memory queue only makes
// sense when scheduler and executor share a process, which they do here.
func buildQueue(ctx context.Context, cfg config.QueueConfig, clock clockwork.Clock) (queue.Queue, error) {
	switch cfg.Kind {
	case "memory":
		return queue.NewMemoryQueue(clock, cfg.VisibilityTimeout, cfg.MaxReceiveCount), nil
	case "sqs":
		var opts []func(*awsconfig.LoadOptions) error
		if cfg.AWSRegion != "" {
			opts = append(opts, awsconfig.WithRegion(cfg.AWSRegion))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		return queue.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.URL), nil
	default:
		return nil, fmt.Errorf("unknown queue kind: %s", cfg.Kind)
	}
}
