// Package commands implements the harvester CLI.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ammobase/harvester/internal/alerter"
	"github.com/ammobase/harvester/internal/config"
	"github.com/ammobase/harvester/internal/extractor"
	"github.com/ammobase/harvester/internal/fetcher"
	"github.com/ammobase/harvester/internal/metrics"
	"github.com/ammobase/harvester/internal/normalizer"
	"github.com/ammobase/harvester/internal/notify"
	"github.com/ammobase/harvester/internal/queue"
	"github.com/ammobase/harvester/internal/scheduler"
	"github.com/ammobase/harvester/internal/server"
	"github.com/ammobase/harvester/internal/store/postgres"
	"github.com/ammobase/harvester/internal/worker"
	"github.com/ammobase/harvester/internal/writer"
	"github.com/ammobase/harvester/pkg/types"
)

// NewRunCmd creates the run command: the full pipeline in one process.
func NewRunCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the harvesting pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "harvester.yaml", "path to config file")
	return cmd
}

func runPipeline(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownMetrics, err := metrics.Setup(ctx, cfg.Metrics)
	if err != nil {
		return fmt.Errorf("setting up metrics: %w", err)
	}
	defer func() { _ = shutdownMetrics(context.Background()) }()

	st, err := postgres.New(ctx, cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer st.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() { _ = rdb.Close() }()

	var q queue.Queue
	switch cfg.Queue.Backend {
	case "sqs":
		q, err = queue.NewSQS(ctx, cfg.Queue.Region, cfg.Queue.QueueURLs)
		if err != nil {
			return fmt.Errorf("connecting to SQS: %w", err)
		}
	default:
		q = queue.NewMemory()
	}

	sink, err := notify.NewSink(cfg.Notify)
	if err != nil {
		return fmt.Errorf("creating notification sink: %w", err)
	}
	dispatcher := notify.NewDispatcher(sink, logger)

	variance, err := metrics.NewVariance()
	if err != nil {
		return fmt.Errorf("creating variance instruments: %w", err)
	}

	limiter := alerter.NewRedisLimiter(rdb,
		cfg.Alert.RateCapShort, cfg.Alert.RateWindowShort,
		cfg.Alert.RateCapLong, cfg.Alert.RateWindowLong)

	// Stage handlers
	fetch := fetcher.New(st, q, cfg.Fetch, logger)
	extract := extractor.NewRunner(st, q, nil, cfg.Fetch.MaxItems, logger)
	normalize := normalizer.New(st, q, logger)
	write := writer.New(st, q, cfg.Write, variance, logger)
	alert := alerter.New(st, q, limiter, dispatcher, cfg.Alert, logger)

	retry := cfg.Queue.Retry
	pools := []*worker.Pool{
		worker.NewPool(q, st, types.StageFetch,
			worker.JobFunc(func(j types.FetchJob) string { return j.ExecutionID }, fetch.Handle),
			retry, cfg.Workers.FetchConcurrency, logger),
		worker.NewPool(q, st, types.StageExtract,
			worker.JobFunc(func(j types.ExtractJob) string { return j.ExecutionID }, extract.Handle),
			retry, cfg.Workers.OtherConcurrency, logger),
		worker.NewPool(q, st, types.StageNormalize,
			worker.JobFunc(func(j types.NormalizeJob) string { return j.ExecutionID }, normalize.Handle),
			retry, cfg.Workers.OtherConcurrency, logger),
		worker.NewPool(q, st, types.StageWrite,
			worker.JobFunc(func(j types.WriteJob) string { return j.ExecutionID }, write.Handle),
			retry, cfg.Workers.WriteConcurrency, logger),
		worker.NewPool(q, st, types.StageAlert,
			worker.JobFunc(func(j types.AlertJob) string { return j.Change.ExecutionID }, alert.Handle),
			retry, cfg.Workers.AlertConcurrency, logger),
		worker.NewPool(q, st, types.StageDeliver,
			worker.JobFunc(func(j types.DeliverJob) string { return j.ExecutionID }, alert.HandleDelivery),
			retry, cfg.Workers.AlertConcurrency, logger),
	}

	sched := scheduler.New(st, q, scheduler.NewRedisLocker(rdb), cfg.Scheduler, logger)
	ops := server.New(cfg.Server.Addr, st, logger)

	g, ctx := errgroup.WithContext(ctx)
	for _, p := range pools {
		p := p
		g.Go(func() error { return p.Run(ctx) })
	}
	g.Go(func() error { return sched.Run(ctx) })
	g.Go(func() error {
		if err := ops.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		return ops.Stop(context.Background())
	})

	logger.Info("harvester started", "queueBackend", cfg.Queue.Backend, "opsAddr", cfg.Server.Addr)
	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
