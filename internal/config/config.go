package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"dsync-go/internal/partition"
)

// Config represents the main configuration for dsync.
type Config struct {
	BaseDir     string            `toml:"base_dir"`
	SyncDir     string            `toml:"sync_dir"`
	LogDir      string            `toml:"log_dir"`
	Index       IndexConfig       `toml:"index"`
	Transport   TransportConfig   `toml:"transport"`
	Encryption  EncryptionConfig  `toml:"encryption"`
	Compression CompressionConfig `toml:"compression"`
	Chunking    ChunkingConfig    `toml:"chunking"`
	Journal     JournalConfig     `toml:"journal"`
	Watch       WatchConfig       `toml:"watch"`
	Web         WebConfig         `toml:"web"`
	Filesystem  FilesystemConfig  `toml:"filesystem"`
}

// IndexConfig holds the locations of the local JSON documents.
type IndexConfig struct {
	FilesPath   string `toml:"files_path"`
	FoldersPath string `toml:"folders_path"`
	PointerPath string `toml:"pointer_path"` // record of the live remote index copy
}

// TransportConfig selects and tunes the chunk transport.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type TransportConfig struct {
	Type          string `toml:"type"` // "webhook" (default), "s3", "filesystem" or "memory"
	EndpointsFile string `toml:"endpoints_file"`

	TransferTimeoutSeconds int `toml:"transfer_timeout_seconds"`
	ProbeTimeoutSeconds    int `toml:"probe_timeout_seconds"`
	ProbeCacheTTLSeconds   int `toml:"probe_cache_ttl_seconds"`
	Concurrency            int `toml:"concurrency"` // parallel chunk uploads per file

	// S3-specific fields (only used when Type == "s3")
	S3Region          string `toml:"s3_region,omitempty"`
	S3Endpoint        string `toml:"s3_endpoint,omitempty"` // custom endpoint for S3-compatible stores
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`
}

const (
	defaultTransferTimeout = 60 * time.Second
	defaultProbeTimeout    = 5 * time.Second
	defaultProbeCacheTTL   = 10 * time.Minute
)

func (c TransportConfig) TransferTimeout() time.Duration {
	return secondsOr(c.TransferTimeoutSeconds, defaultTransferTimeout)
}

func (c TransportConfig) ProbeTimeout() time.Duration {
	return secondsOr(c.ProbeTimeoutSeconds, defaultProbeTimeout)
}

func (c TransportConfig) ProbeCacheTTL() time.Duration {
	return secondsOr(c.ProbeCacheTTLSeconds, defaultProbeCacheTTL)
}

// EncryptionConfig holds the key file used for chunk encryption.
type EncryptionConfig struct {
	Type    string `toml:"type"` // "age" (default) or "test"
	KeyPath string `toml:"key_path"`
}

// CompressionConfig tunes the zlib transform. A nil Level means the default.
type CompressionConfig struct {
	Level     *int  `toml:"level,omitempty"`
	Threshold int64 `toml:"threshold"` // original size in bytes a file must exceed
}

// ChunkingConfig sets the partition size.
type ChunkingConfig struct {
	MaxChunkSize int `toml:"max_chunk_size"`
}

// JournalConfig represents configuration for the operation journal.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type JournalConfig struct {
	Type string `toml:"type"`           // "sqlite" or "memory"
	Path string `toml:"path,omitempty"` // only used for type=sqlite
}

// WatchConfig tunes the scan loop.
type WatchConfig struct {
	IntervalSeconds int    `toml:"interval_seconds"`
	DebounceMillis  int    `toml:"debounce_millis"`
	MetricsAddr     string `toml:"metrics_addr,omitempty"` // serve /metrics while watching
}

func (c WatchConfig) Interval() time.Duration {
	return secondsOr(c.IntervalSeconds, 60*time.Second)
}

func (c WatchConfig) Debounce() time.Duration {
	if c.DebounceMillis <= 0 {
		return time.Second
	}
	return time.Duration(c.DebounceMillis) * time.Millisecond
}

// WebConfig holds the dashboard API listener.
type WebConfig struct {
	Addr string `toml:"addr"`
}

// FilesystemConfig holds filesystem-related settings.
type FilesystemConfig struct {
	Ignore []string `toml:"ignore"`
}

func secondsOr(seconds int, fallback time.Duration) time.Duration {
	if seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

// NewConfig creates a Config rooted at baseDir with default locations.
func NewConfig(baseDir string) *Config {
	level := 6
	return &Config{
		BaseDir: baseDir,
		SyncDir: filepath.Join(baseDir, "d-synced"),
		LogDir:  filepath.Join(baseDir, "log"),
		Index: IndexConfig{
			FilesPath:   filepath.Join(baseDir, "files.json"),
			FoldersPath: filepath.Join(baseDir, "folders.json"),
			PointerPath: filepath.Join(baseDir, "files_json_remote.json"),
		},
		Transport: TransportConfig{
			Type:                   "webhook",
			EndpointsFile:          filepath.Join(baseDir, "webhooks.txt"),
			TransferTimeoutSeconds: 60,
			ProbeTimeoutSeconds:    5,
			ProbeCacheTTLSeconds:   600,
			Concurrency:            1,
		},
		Encryption: EncryptionConfig{
			Type:    "age",
			KeyPath: filepath.Join(baseDir, "keys", "dsync.key"),
		},
		Compression: CompressionConfig{
			Level:     &level,
			Threshold: 100 * 1024,
		},
		Chunking: ChunkingConfig{MaxChunkSize: partition.DefaultMaxChunkSize},
		Journal: JournalConfig{
			Type: "sqlite",
			Path: filepath.Join(baseDir, "journal.db"),
		},
		Watch: WatchConfig{IntervalSeconds: 60, DebounceMillis: 1000},
		Web:   WebConfig{Addr: "127.0.0.1:5000"},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init writes cfg to path. It refuses to overwrite an existing file.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
