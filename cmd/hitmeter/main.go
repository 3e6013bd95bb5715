package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hitmeter/internal/api"
	"hitmeter/internal/audit"
	"hitmeter/internal/command"
	"hitmeter/internal/config"
	"hitmeter/internal/engine"
	"hitmeter/internal/ingest"
	"hitmeter/internal/logging"
	"hitmeter/internal/model"
	"hitmeter/internal/snapshot"
	"hitmeter/internal/storage"
)

const version = "0.3.0"

func main() {
	configPath := flag.String("config", "", "path to YAML or JSON config file")
	scriptPath := flag.String("script", "", "run a command script ('-' for stdin) and exit")
	flag.Parse()

	var mgr *config.Manager
	if *configPath != "" {
		m, err := config.NewManager(config.ResolvePath(*configPath))
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
		mgr = m
	} else {
		mgr = config.NewStaticManager(config.DefaultConfig())
	}
	cfg := mgr.Get()
	logger := logging.NewLogger(cfg.LogLevel)

	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		logger.Error("open storage", "err", err)
		os.Exit(1)
	}
	if store != nil {
		initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := store.Init(initCtx); err != nil {
			cancel()
			logger.Error("init storage", "err", err)
			os.Exit(1)
		}
		cancel()
		defer store.Close()
	}

	snapshots := snapshot.NewStore(cfg.Snapshots.StoreLimit)
	auditStore := audit.NewStore(cfg.Audit.StoreLimit)
	eng := engine.NewEngine(cfg, logger, snapshots, auditStore, store)

	if *scriptPath != "" {
		if err := runScript(*scriptPath, eng, cfg, logger); err != nil {
			logger.Error("script failed", "err", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	hits := make(chan model.Hit, cfg.Ingest.ChannelBuffer)
	eng.Start(ctx, hits)
	ingest.StartUDP(ctx, mgr, hits, logger)
	ingest.StartKafka(ctx, mgr, hits, logger)
	ingest.StartFileReplay(ctx, mgr, hits, logger)
	ingest.StartTCP(ctx, mgr, eng, logger)
	api.Start(ctx, mgr, eng, snapshots, auditStore, logger, version)

	if mgr.Path() != "" {
		go mgr.Watch(3*time.Second,
			func(next *config.Config) {
				logger.Info("config reloaded", "window_sec", next.Window.Seconds)
				eng.UpdateConfig(next)
			},
			func(err error) {
				logger.Warn("config reload failed", "err", err)
			},
			ctx.Done())
	}

	logger.Info("hitmeter started", "version", version, "window_sec", eng.WindowSec())
	<-ctx.Done()
	logger.Info("shutting down")
}

// runScript executes a command file (or stdin) against the engine, writing
// query results to stdout. Logs stay on stderr so piped output is clean.
func runScript(path string, eng *engine.Engine, cfg *config.Config, logger *slog.Logger) error {
	var in io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	runner := command.NewRunner(eng, os.Stdout, logger, cfg.Runner)
	return runner.Run(in)
}
