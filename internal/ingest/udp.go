package ingest

import (
	"context"
	"log/slog"
	"net"
	"strings"
	"time"

	"hitmeter/internal/config"
	"hitmeter/internal/model"
)

// StartUDP accepts fire-and-forget hit lines or JSON hits, one or more per
// datagram.
func StartUDP(ctx context.Context, cfg *config.Manager, out chan<- model.Hit, logger *slog.Logger) {
	current := cfg.Get().Ingest.UDP
	if !current.Enabled {
		if logger != nil {
			logger.Info("udp ingest disabled")
		}
		return
	}
	if logger != nil {
		logger.Info("udp ingest enabled", "addr", current.Addr)
	}
	go listenUDP(ctx, current.Addr, out, logger)
}

func listenUDP(ctx context.Context, addr string, out chan<- model.Hit, logger *slog.Logger) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		if logger != nil {
			logger.Error("udp resolve error", "err", err)
		}
		return
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		if logger != nil {
			logger.Error("udp listen error", "err", err)
		}
		return
	}
	defer conn.Close()
	buf := make([]byte, 8192)
	for {
		select {
		case <-ctx.Done():
			return
		default:
			conn.SetReadDeadline(time.Now().Add(1 * time.Second))
			n, _, err := conn.ReadFromUDP(buf)
			if err != nil {
				if ne, ok := err.(net.Error); ok && ne.Timeout() {
					continue
				}
				if logger != nil {
					logger.Warn("udp read error", "err", err)
				}
				continue
			}
			for _, line := range strings.Split(string(buf[:n]), "\n") {
				if hit, ok := hitFromLine(line, "udp", logger); ok {
					SendNonBlocking(ctx, out, hit, logger)
				}
			}
		}
	}
}
