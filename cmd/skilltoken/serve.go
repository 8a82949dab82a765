package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc"

	"github.com/MasterChonk/SkillToken-V2/internal/archive"
	"github.com/MasterChonk/SkillToken-V2/internal/config"
	"github.com/MasterChonk/SkillToken-V2/internal/ledger"
	"github.com/MasterChonk/SkillToken-V2/internal/ledger/physical"
	_ "github.com/MasterChonk/SkillToken-V2/internal/ledger/physical/badger"
	_ "github.com/MasterChonk/SkillToken-V2/internal/ledger/physical/memory"
	_ "github.com/MasterChonk/SkillToken-V2/internal/ledger/physical/redis"
	_ "github.com/MasterChonk/SkillToken-V2/internal/ledger/physical/sqlite"
	"github.com/MasterChonk/SkillToken-V2/internal/observability"
	"github.com/MasterChonk/SkillToken-V2/internal/server"
	"github.com/MasterChonk/SkillToken-V2/pkg/logging"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the registry server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, v)
		},
	}
	config.BindServeFlags(cmd, v)
	return cmd
}

func runServe(cmd *cobra.Command, v *viper.Viper) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(v, configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	admin, _ := cfg.Admin()
	policy, _ := ledger.ParseBackpressure(cfg.Events.Backpressure)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	obs, err := observability.New(ctx, observability.ObsConfig{
		LogLevel:       cfg.Observability.LogLevel,
		LogFormat:      cfg.Observability.LogFormat,
		OTLPEndpoint:   cfg.Observability.OTLPEndpoint,
		OTLPProtocol:   cfg.Observability.OTLPProtocol,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
	}, os.Stderr)
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}
	slog.SetDefault(obs.Logger)
	log := logging.New(obs.Logger)

	backend, err := physical.New(ctx, cfg.Storage.Backend, cfg.Storage.Config, cfg.DataDir, obs.Metrics)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	l, err := ledger.Open(ctx, backend, ledger.Options{
		Admin:   admin,
		Metrics: obs.Metrics,
		Logger:  log,
		Subscriptions: ledger.SubscriptionConfig{
			IntakeBufferSize: cfg.Events.IntakeSize,
			WorkerCount:      cfg.Events.Workers,
		},
		Watch: ledger.SubscriptionOptions{
			BufferSize:         cfg.Events.BufferSize,
			BackpressurePolicy: policy,
		},
	})
	if err != nil {
		_ = backend.Close()
		return fmt.Errorf("open ledger: %w", err)
	}
	// Handlers run LIFO: the gRPC server stops first, then the archiver
	// writes its final snapshot, then the ledger closes.
	obs.Shutdown.Register(observability.StageLedger, func(context.Context) error {
		return l.Close()
	})

	slog.Info("ledger opened",
		"backend", cfg.Storage.Backend,
		"last_seq", l.LastSeq(),
		"admin", admin.Short(),
	)

	obs.ServeMetrics(ctx, cfg.Observability.MetricsAddr, l.Ping)

	if cfg.Archive.Backend != "" {
		if err := startArchiver(ctx, cfg, obs, log, l); err != nil {
			_ = obs.Close(context.Background())
			return err
		}
	}

	srv, err := server.New(cfg.GRPC.Addr, obs, l,
		grpc.MaxRecvMsgSize(cfg.GRPC.MaxRecvMsgSize),
		grpc.MaxSendMsgSize(cfg.GRPC.MaxSendMsgSize),
	)
	if err != nil {
		_ = obs.Close(context.Background())
		return fmt.Errorf("create server: %w", err)
	}
	obs.Shutdown.Register(observability.StageGRPC, func(ctx context.Context) error {
		l.StopWatches()
		srv.Stop(ctx)
		return nil
	})

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("serving", "addr", srv.Addr(), "metrics", cfg.Observability.MetricsAddr)
		serveErr <- srv.Serve()
	}()

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-sigCtx.Done():
		slog.Info("shutdown signal received")
	case err = <-serveErr:
		if err != nil {
			slog.Error("grpc server stopped", "error", err)
		}
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if cerr := obs.Close(shutdownCtx); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// startArchiver opens the configured sink and runs the archiver until ctx
// ends. Its shutdown handler waits for the final snapshot.
func startArchiver(ctx context.Context, cfg config.Config, obs *observability.Observability, log *logging.Logger, l *ledger.Ledger) error {
	format, err := archive.ParseFormat(cfg.Archive.Format)
	if err != nil {
		return err
	}
	sink, err := archive.New(ctx, cfg.Archive.Backend, cfg.Archive.Config, cfg.DataDir)
	if err != nil {
		return fmt.Errorf("init archive sink: %w", err)
	}

	a := archive.NewArchiver(l, sink, archive.ArchiverConfig{
		SinkName: cfg.Archive.Backend,
		Format:   format,
		Interval: cfg.Archive.Interval,
		Metrics:  obs.Metrics,
		Logger:   log,
	})

	runCtx, stopRun := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.Run(runCtx)
	}()

	obs.Shutdown.Register(observability.StageArchiver, func(ctx context.Context) error {
		stopRun()
		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		return sink.Close()
	})

	slog.Info("snapshot archive enabled",
		"sink", cfg.Archive.Backend,
		"interval", cfg.Archive.Interval,
		"format", format,
	)
	return nil
}
