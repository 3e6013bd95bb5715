package ingest

import (
	"context"
	"errors"
	"log/slog"
	"net"

	"hitmeter/internal/command"
	"hitmeter/internal/config"
	"hitmeter/internal/engine"
)

// StartTCP serves the full line protocol over TCP: hits are recorded and
// query results are written back on the same connection, one Runner per
// client.
func StartTCP(ctx context.Context, cfg *config.Manager, eng *engine.Engine, logger *slog.Logger) {
	current := cfg.Get().Ingest.TCP
	if !current.Enabled {
		if logger != nil {
			logger.Info("tcp ingest disabled")
		}
		return
	}
	if logger != nil {
		logger.Info("tcp ingest enabled", "addr", current.Addr)
	}
	ln, err := net.Listen("tcp", current.Addr)
	if err != nil {
		if logger != nil {
			logger.Error("tcp listen error", "err", err)
		}
		return
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				if logger != nil {
					logger.Warn("tcp accept error", "err", err)
				}
				continue
			}
			go handleConn(ctx, conn, cfg, eng, logger)
		}
	}()
}

func handleConn(ctx context.Context, conn net.Conn, cfg *config.Manager, eng *engine.Engine, logger *slog.Logger) {
	defer conn.Close()
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()
	runner := command.NewRunner(eng, conn, logger, cfg.Get().Runner).WithSource("tcp")
	if err := runner.Run(conn); err != nil && logger != nil {
		logger.Warn("tcp session error", "remote", conn.RemoteAddr().String(), "err", err)
	}
}
