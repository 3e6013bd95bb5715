package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel  string          `json:"log_level" yaml:"log_level"`
	Window    WindowConfig    `json:"window" yaml:"window"`
	Runner    RunnerConfig    `json:"runner" yaml:"runner"`
	Ingest    IngestConfig    `json:"ingest" yaml:"ingest"`
	API       APIConfig       `json:"api" yaml:"api"`
	Storage   StorageConfig   `json:"storage" yaml:"storage"`
	Snapshots SnapshotsConfig `json:"snapshots" yaml:"snapshots"`
	Audit     AuditConfig     `json:"audit" yaml:"audit"`
}

type WindowConfig struct {
	Seconds int64 `json:"seconds" yaml:"seconds"`
}

// RunnerConfig controls the command script executor. Format is "text" (bare
// integers, "user count" lines) or "json". OnError is "skip" to log and
// continue past malformed lines, or "fail" to stop at the first one.
type RunnerConfig struct {
	Format  string `json:"format" yaml:"format"`
	OnError string `json:"on_error" yaml:"on_error"`
}

type IngestConfig struct {
	ChannelBuffer int              `json:"channel_buffer" yaml:"channel_buffer"`
	TCP           TCPConfig        `json:"tcp" yaml:"tcp"`
	UDP           UDPConfig        `json:"udp" yaml:"udp"`
	Kafka         KafkaConfig      `json:"kafka" yaml:"kafka"`
	FileReplay    FileReplayConfig `json:"file_replay" yaml:"file_replay"`
}

type TCPConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type UDPConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`
}

type FileReplayConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Follow  bool     `json:"follow" yaml:"follow"`
	Files   []string `json:"files" yaml:"files"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type StorageConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver" yaml:"driver"`
	DSN     string `json:"dsn" yaml:"dsn"`
}

type SnapshotsConfig struct {
	StoreLimit int `json:"store_limit" yaml:"store_limit"`
}

type AuditConfig struct {
	StoreLimit int `json:"store_limit" yaml:"store_limit"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Window:   WindowConfig{Seconds: 60},
		Runner:   RunnerConfig{Format: "text", OnError: "skip"},
		Ingest: IngestConfig{
			ChannelBuffer: 10000,
			TCP:           TCPConfig{Enabled: false, Addr: ":9000"},
			UDP:           UDPConfig{Enabled: false, Addr: ":9001"},
			Kafka:         KafkaConfig{Enabled: false},
			FileReplay:    FileReplayConfig{Enabled: false, Follow: false},
		},
		API:       APIConfig{Enabled: true, Addr: ":8080"},
		Storage:   StorageConfig{Enabled: false, Driver: "sqlite", DSN: "file:hitmeter.db?_pragma=busy_timeout(5000)"},
		Snapshots: SnapshotsConfig{StoreLimit: 5000},
		Audit:     AuditConfig{StoreLimit: 1000},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	if cfg.Window.Seconds <= 0 {
		cfg.Window.Seconds = 60
	}
	if cfg.Runner.Format == "" {
		cfg.Runner.Format = "text"
	}
	if cfg.Runner.OnError == "" {
		cfg.Runner.OnError = "skip"
	}
	if cfg.Ingest.ChannelBuffer <= 0 {
		cfg.Ingest.ChannelBuffer = 10000
	}
	if cfg.Snapshots.StoreLimit <= 0 {
		cfg.Snapshots.StoreLimit = 5000
	}
	if cfg.Audit.StoreLimit <= 0 {
		cfg.Audit.StoreLimit = 1000
	}
}

func Validate(cfg *Config) error {
	if cfg.Window.Seconds <= 0 {
		return errors.New("window.seconds must be > 0")
	}
	switch cfg.Runner.Format {
	case "text", "json":
	default:
		return fmt.Errorf("runner.format must be text or json, got %q", cfg.Runner.Format)
	}
	switch cfg.Runner.OnError {
	case "skip", "fail":
	default:
		return fmt.Errorf("runner.on_error must be skip or fail, got %q", cfg.Runner.OnError)
	}
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	if cfg.Ingest.TCP.Enabled && cfg.Ingest.TCP.Addr == "" {
		return errors.New("ingest.tcp.addr required when ingest.tcp.enabled is true")
	}
	if cfg.Ingest.UDP.Enabled && cfg.Ingest.UDP.Addr == "" {
		return errors.New("ingest.udp.addr required when ingest.udp.enabled is true")
	}
	if cfg.Ingest.Kafka.Enabled {
		if len(cfg.Ingest.Kafka.Brokers) == 0 || cfg.Ingest.Kafka.Topic == "" || cfg.Ingest.Kafka.GroupID == "" {
			return errors.New("ingest.kafka requires brokers, topic, group_id")
		}
	}
	if cfg.Ingest.FileReplay.Enabled && len(cfg.Ingest.FileReplay.Files) == 0 {
		return errors.New("ingest.file_replay.files required when ingest.file_replay.enabled is true")
	}
	return nil
}

type Manager struct {
	path    string
	cfg     atomic.Value
	modTime time.Time
}

func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	info, err := os.Stat(path)
	if err == nil {
		m.modTime = info.ModTime()
	}
	return m, nil
}

// NewStaticManager wraps a fixed config with no backing file, for tests and
// the script mode.
func NewStaticManager(cfg *Config) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	m := &Manager{}
	m.cfg.Store(cfg)
	return m
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	if m.path == "" {
		return m.Get(), nil
	}
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return cfg, nil
}

func (m *Manager) Update(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if m.path != "" {
		if err := Save(m.path, cfg); err != nil {
			return err
		}
	}
	m.cfg.Store(cfg)
	if m.path != "" {
		if info, err := os.Stat(m.path); err == nil {
			m.modTime = info.ModTime()
		}
	}
	return nil
}

func (m *Manager) NeedsReload() (bool, error) {
	if m.path == "" {
		return false, nil
	}
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	return info.ModTime().After(m.modTime), nil
}

func (m *Manager) Watch(interval time.Duration, onReload func(*Config), onError func(error), stop <-chan struct{}) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			needs, err := m.NeedsReload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if !needs {
				continue
			}
			cfg, err := m.Reload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onReload != nil {
				onReload(cfg)
			}
		case <-stop:
			return
		}
	}
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
