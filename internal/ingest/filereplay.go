package ingest

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"hitmeter/internal/config"
	"hitmeter/internal/model"
)

// StartFileReplay feeds hit commands from files. Without follow it replays
// each file once from the start; with follow it keeps tailing for appended
// lines and reopens on truncation.
func StartFileReplay(ctx context.Context, cfg *config.Manager, out chan<- model.Hit, logger *slog.Logger) {
	current := cfg.Get().Ingest.FileReplay
	if !current.Enabled {
		if logger != nil {
			logger.Info("file replay ingest disabled")
		}
		return
	}
	for _, path := range current.Files {
		path := path
		if logger != nil {
			logger.Info("file replay ingest enabled", "path", path, "follow", current.Follow)
		}
		if current.Follow {
			go tailFile(ctx, path, out, logger)
		} else {
			go replayFile(ctx, path, out, logger)
		}
	}
}

func replayFile(ctx context.Context, path string, out chan<- model.Hit, logger *slog.Logger) {
	f, err := os.Open(path)
	if err != nil {
		if logger != nil {
			logger.Warn("replay open failed", "path", path, "err", err)
		}
		return
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 8192), 1024*1024)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if hit, ok := hitFromLine(scanner.Text(), "file", logger); ok {
			SendNonBlocking(ctx, out, hit, logger)
		}
	}
	if err := scanner.Err(); err != nil && logger != nil {
		logger.Warn("replay read error", "path", path, "err", err)
	}
}

func tailFile(ctx context.Context, path string, out chan<- model.Hit, logger *slog.Logger) {
	var file *os.File
	var offset int64
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if file == nil {
			f, err := os.Open(path)
			if err != nil {
				if logger != nil {
					logger.Warn("tail open failed", "path", path, "err", err)
				}
				if !BackoffSleep(ctx, 500*time.Millisecond) {
					return
				}
				continue
			}
			file = f
			offset = 0
		}

		reader := bufio.NewReader(file)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if err == io.EOF {
					if !BackoffSleep(ctx, 200*time.Millisecond) {
						_ = file.Close()
						return
					}
					info, statErr := os.Stat(path)
					if statErr == nil && info.Size() < offset {
						_ = file.Close()
						file = nil
						break
					}
					continue
				}
				if logger != nil {
					logger.Warn("tail read error", "path", path, "err", err)
				}
				_ = file.Close()
				file = nil
				break
			}
			offset += int64(len(line))
			if hit, ok := hitFromLine(line, "file", logger); ok {
				SendNonBlocking(ctx, out, hit, logger)
			}
		}
	}
}
