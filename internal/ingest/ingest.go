package ingest

import (
	"context"
	"log/slog"
	"time"

	"hitmeter/internal/command"
	"hitmeter/internal/model"
)

// SendNonBlocking drops the hit instead of stalling a source when the
// pipeline is full.
func SendNonBlocking(ctx context.Context, out chan<- model.Hit, hit model.Hit, logger *slog.Logger) bool {
	select {
	case out <- hit:
		return true
	case <-ctx.Done():
		return false
	default:
		if logger != nil {
			logger.Warn("hit channel full, dropping hit", "group", hit.Group, "ts", hit.Timestamp)
		}
		return false
	}
}

func BackoffSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = 200 * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// hitFromLine parses one line from a record-only source. Query verbs have
// nowhere to answer on these transports, so they are rejected like any other
// malformed line and the caller logs them.
func hitFromLine(line, source string, logger *slog.Logger) (model.Hit, bool) {
	cmd, err := command.ParseAny(line)
	if err != nil {
		if logger != nil {
			logger.Warn("discarding line", "source", source, "err", err)
		}
		return model.Hit{}, false
	}
	switch cmd.Kind {
	case command.KindNone:
		return model.Hit{}, false
	case command.KindHit:
		return model.Hit{Timestamp: cmd.TS, Group: cmd.Group, User: cmd.User, Source: source}, true
	default:
		if logger != nil {
			logger.Warn("query command on record-only source", "source", source)
		}
		return model.Hit{}, false
	}
}
