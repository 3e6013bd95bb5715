package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeTempConfig(t, "config.yaml", `
log_level: debug
window:
  seconds: 120
runner:
  format: json
ingest:
  tcp:
    enabled: true
    addr: ":9100"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log_level=%q", cfg.LogLevel)
	}
	if cfg.Window.Seconds != 120 {
		t.Fatalf("window=%d, want 120", cfg.Window.Seconds)
	}
	if cfg.Runner.Format != "json" || cfg.Runner.OnError != "skip" {
		t.Fatalf("runner=%+v", cfg.Runner)
	}
	if !cfg.Ingest.TCP.Enabled || cfg.Ingest.TCP.Addr != ":9100" {
		t.Fatalf("tcp=%+v", cfg.Ingest.TCP)
	}
	if cfg.Ingest.ChannelBuffer != 10000 {
		t.Fatalf("channel buffer default missing: %d", cfg.Ingest.ChannelBuffer)
	}
}

func TestLoadJSON(t *testing.T) {
	path := writeTempConfig(t, "config.json", `{"window":{"seconds":30}}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Window.Seconds != 30 {
		t.Fatalf("window=%d, want 30", cfg.Window.Seconds)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Runner.Format = "xml"
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for runner.format=xml")
	}

	cfg = DefaultConfig()
	cfg.Runner.OnError = "explode"
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for runner.on_error=explode")
	}

	cfg = DefaultConfig()
	cfg.Ingest.Kafka.Enabled = true
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for kafka without brokers")
	}

	cfg = DefaultConfig()
	cfg.API.Enabled = true
	cfg.API.Addr = ""
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for api without addr")
	}
}

func TestLoadRejectsEmptyFile(t *testing.T) {
	path := writeTempConfig(t, "empty.yaml", "   \n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for empty config")
	}
}

func TestStaticManager(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Window.Seconds = 15
	m := NewStaticManager(cfg)
	if m.Get().Window.Seconds != 15 {
		t.Fatalf("window=%d", m.Get().Window.Seconds)
	}
	if needs, err := m.NeedsReload(); err != nil || needs {
		t.Fatalf("static manager should never need reload: %v %v", needs, err)
	}
}
