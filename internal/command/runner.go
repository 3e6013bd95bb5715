package command

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"hitmeter/internal/config"
	"hitmeter/internal/engine"
	"hitmeter/internal/model"
)

// Runner executes a command script against the engine and writes query
// results to out. It serves both the pipe mode of the binary and each TCP
// connection of the command ingest.
type Runner struct {
	engine  *engine.Engine
	out     io.Writer
	logger  *slog.Logger
	format  string
	onError string
	source  string
}

func NewRunner(eng *engine.Engine, out io.Writer, logger *slog.Logger, cfg config.RunnerConfig) *Runner {
	format := cfg.Format
	if format == "" {
		format = "text"
	}
	onError := cfg.OnError
	if onError == "" {
		onError = "skip"
	}
	return &Runner{
		engine:  eng,
		out:     out,
		logger:  logger,
		format:  format,
		onError: onError,
		source:  "script",
	}
}

// WithSource tags recorded hits with a source label.
func (r *Runner) WithSource(source string) *Runner {
	r.source = source
	return r
}

// Run reads one command per line until EOF. Malformed lines are logged and
// skipped, or abort the run, per the configured error policy.
func (r *Runner) Run(in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 8192), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		cmd, err := ParseAny(scanner.Text())
		if err != nil {
			if r.onError == "fail" {
				return fmt.Errorf("line %d: %w", lineNo, err)
			}
			if r.logger != nil {
				r.logger.Warn("skipping malformed line", "line", lineNo, "err", err)
			}
			continue
		}
		if cmd.Kind == KindNone {
			continue
		}
		if err := r.Apply(cmd); err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	return scanner.Err()
}

// Apply executes one command. Only the write to out can fail; the engine
// operations themselves are total.
func (r *Runner) Apply(cmd Command) error {
	switch cmd.Kind {
	case KindHit:
		r.engine.Record(model.Hit{
			Timestamp: cmd.TS,
			Group:     cmd.Group,
			User:      cmd.User,
			Source:    r.source,
		})
		return nil
	case KindTotal:
		total := r.engine.Total(cmd.TS)
		if r.format == "json" {
			return r.writeJSON(totalResult{Total: total})
		}
		return r.writeLine(strconv.Itoa(total))
	case KindGroup:
		count := r.engine.Group(cmd.TS, cmd.Group)
		if r.format == "json" {
			return r.writeJSON(groupResult{Group: cmd.Group, Total: count})
		}
		return r.writeLine(strconv.Itoa(count))
	case KindUsers:
		breakdown := r.engine.Users(cmd.TS, cmd.Group)
		if r.format == "json" {
			totals := make(map[string]int, len(breakdown))
			for _, uc := range breakdown {
				totals[uc.User] = uc.Count
			}
			return r.writeJSON(usersResult{
				Group:  cmd.Group,
				Window: fmt.Sprintf("last_%d_seconds", r.engine.WindowSec()),
				Totals: totals,
			})
		}
		for _, uc := range breakdown {
			if err := r.writeLine(uc.User + " " + strconv.Itoa(uc.Count)); err != nil {
				return err
			}
		}
		return nil
	default:
		return nil
	}
}

type totalResult struct {
	Total int `json:"total"`
}

type groupResult struct {
	Group string `json:"group"`
	Total int    `json:"total"`
}

// Totals marshals with keys in ascending user order; encoding/json sorts
// string map keys.
type usersResult struct {
	Group  string         `json:"group"`
	Window string         `json:"window"`
	Totals map[string]int `json:"totals"`
}

func (r *Runner) writeLine(s string) error {
	_, err := fmt.Fprintln(r.out, s)
	return err
}

func (r *Runner) writeJSON(payload any) error {
	return json.NewEncoder(r.out).Encode(payload)
}
