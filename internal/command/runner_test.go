package command

import (
	"bytes"
	"strings"
	"testing"

	"hitmeter/internal/audit"
	"hitmeter/internal/config"
	"hitmeter/internal/engine"
	"hitmeter/internal/snapshot"
)

const scenarioScript = `hit 1 trip alice
hit 2 trip alice
hit 60 trip bob
total 60
group 60 trip
total 61
users 61 trip
total 62
`

func newTestEngine() *engine.Engine {
	return engine.NewEngine(config.DefaultConfig(), nil, snapshot.NewStore(100), audit.NewStore(100), nil)
}

func TestRunnerTextOutput(t *testing.T) {
	var out bytes.Buffer
	runner := NewRunner(newTestEngine(), &out, nil, config.RunnerConfig{Format: "text", OnError: "skip"})
	if err := runner.Run(strings.NewReader(scenarioScript)); err != nil {
		t.Fatalf("run: %v", err)
	}
	want := "3\n3\n2\nalice 1\nbob 1\n1\n"
	if out.String() != want {
		t.Fatalf("output:\n%q\nwant:\n%q", out.String(), want)
	}
}

func TestRunnerJSONOutput(t *testing.T) {
	script := `hit 1 trip alice
hit 2 trip alice
hit 60 trip bob
group 60 trip
group 61 trip
users 61 trip
total 62
`
	var out bytes.Buffer
	runner := NewRunner(newTestEngine(), &out, nil, config.RunnerConfig{Format: "json", OnError: "skip"})
	if err := runner.Run(strings.NewReader(script)); err != nil {
		t.Fatalf("run: %v", err)
	}
	want := `{"group":"trip","total":3}
{"group":"trip","total":2}
{"group":"trip","window":"last_60_seconds","totals":{"alice":1,"bob":1}}
{"total":1}
`
	if out.String() != want {
		t.Fatalf("output:\n%s\nwant:\n%s", out.String(), want)
	}
}

func TestRunnerSkipPolicy(t *testing.T) {
	script := "hit 1 trip alice\nbogus line here\ntotal 1\n"
	var out bytes.Buffer
	runner := NewRunner(newTestEngine(), &out, nil, config.RunnerConfig{Format: "text", OnError: "skip"})
	if err := runner.Run(strings.NewReader(script)); err != nil {
		t.Fatalf("skip policy should not fail: %v", err)
	}
	if out.String() != "1\n" {
		t.Fatalf("output=%q, want %q", out.String(), "1\n")
	}
}

func TestRunnerFailPolicy(t *testing.T) {
	script := "hit 1 trip alice\nbogus line here\ntotal 1\n"
	var out bytes.Buffer
	runner := NewRunner(newTestEngine(), &out, nil, config.RunnerConfig{Format: "text", OnError: "fail"})
	err := runner.Run(strings.NewReader(script))
	if err == nil {
		t.Fatalf("fail policy should surface the parse error")
	}
	if !strings.Contains(err.Error(), "line 2") {
		t.Fatalf("error should name the line: %v", err)
	}
	if out.String() != "" {
		t.Fatalf("no output expected before the failure, got %q", out.String())
	}
}

func TestRunnerEmptyUsersPrintsNothing(t *testing.T) {
	script := "hit 1 trip\nusers 1 trip\nusers 1 nope\n"
	var out bytes.Buffer
	runner := NewRunner(newTestEngine(), &out, nil, config.RunnerConfig{Format: "text", OnError: "skip"})
	if err := runner.Run(strings.NewReader(script)); err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.String() != "" {
		t.Fatalf("expected zero output lines, got %q", out.String())
	}
}

func TestRunnerAcceptsJSONHits(t *testing.T) {
	script := `{"ts":1,"group":"trip","user":"alice"}
total 1
`
	var out bytes.Buffer
	runner := NewRunner(newTestEngine(), &out, nil, config.RunnerConfig{Format: "text", OnError: "fail"})
	if err := runner.Run(strings.NewReader(script)); err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.String() != "1\n" {
		t.Fatalf("output=%q, want %q", out.String(), "1\n")
	}
}
