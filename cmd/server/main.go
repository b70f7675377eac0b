package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kwant-dbg/codejudge/internal/cache"
	"github.com/kwant-dbg/codejudge/internal/compiler"
	"github.com/kwant-dbg/codejudge/internal/config"
	"github.com/kwant-dbg/codejudge/internal/httpapi"
	"github.com/kwant-dbg/codejudge/internal/logging"
	"github.com/kwant-dbg/codejudge/internal/metrics"
	"github.com/kwant-dbg/codejudge/internal/model"
	"github.com/kwant-dbg/codejudge/internal/pipeline"
	"github.com/kwant-dbg/codejudge/internal/queue"
	"github.com/kwant-dbg/codejudge/internal/sandbox"
	"github.com/kwant-dbg/codejudge/internal/store"
	"github.com/kwant-dbg/codejudge/internal/worker"
	"github.com/kwant-dbg/codejudge/pkg/snowflake"
	"go.uber.org/zap"
)

func main() {
	// The worker binary re-execs itself into this hidden subcommand to run
	// as a sandboxed child; this must be checked before anything else
	// starts touching the database, the queue, or any file beyond what the
	// trampoline itself reads from its environment.
	if len(os.Args) >= 3 && os.Args[1] == sandbox.ReexecTrampolineArg {
		sandbox.TrampolineMain(os.Args[2])
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("load config failed: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		fmt.Printf("init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	snowflake.MustInit(cfg.SnowflakeStartTime, cfg.SnowflakeMachineID)

	db, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to store", zap.Error(err))
	}

	q, err := queue.Dial(cfg.RedisHost, cfg.RedisPort, cfg.RedisPassword)
	if err != nil {
		logger.Fatal("failed to connect to queue", zap.Error(err))
	}

	testCaseCache := cache.New(
		cfg.CacheDir,
		time.Duration(cfg.CacheTTLSeconds)*time.Second,
		2*1024*1024*1024,
		logger,
	)

	compilerDriver := compiler.NewDriver("", logger)

	selfPath, err := os.Executable()
	if err != nil {
		logger.Fatal("failed to resolve own executable path", zap.Error(err))
	}

	var sb sandbox.Sandbox
	switch cfg.SandboxBackend {
	case "nsjail":
		sb = sandbox.NewNsJailExecutor("nsjail", logger)
	default:
		sb = sandbox.NewExecutor(selfPath, logger)
	}

	m := metrics.New()

	sandboxConfig := model.DefaultSandboxConfig()
	sandboxConfig.CPUTimeLimitSeconds = cfg.CPUTimeLimitSeconds
	sandboxConfig.MemoryLimitMB = cfg.MemoryLimitMB

	p := &pipeline.Pipeline{
		Store:         db,
		Cache:         testCaseCache,
		Compiler:      compilerDriver,
		Sandbox:       sb,
		Metrics:       m,
		Logger:        logger,
		WorkDir:       cfg.SubmissionWorkDir,
		SandboxConfig: sandboxConfig,
	}

	if err := os.MkdirAll(cfg.SubmissionWorkDir, 0700); err != nil {
		logger.Fatal("failed to create submission work dir", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	router := httpapi.NewRouter(logger, m, func() bool { return true })
	go func() {
		if err := router.Run(cfg.MetricsAddr); err != nil {
			logger.Error("operational http surface exited", zap.Error(err))
		}
	}()

	loop := &worker.Loop{Queue: q, Pipeline: p, Logger: logger}
	logger.Info("worker starting", zap.String("sandbox_backend", cfg.SandboxBackend), zap.String("metrics_addr", cfg.MetricsAddr))
	loop.Run(ctx)
	logger.Info("worker shutting down")
}
