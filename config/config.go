package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"
)

const (
	// NominalMaxBlockSize is the block size the default buffer ceiling is
	// derived from.
	NominalMaxBlockSize = 2_000_000

	DefaultLogLevel = "info"

	LogFormatPlain = "plain"
	LogFormatJSON  = "json"
)

var (
	DefaultConfigDir      = "config"
	DefaultDataDir        = "data"
	DefaultConfigFileName = "config.toml"

	defaultConfigFilePath = filepath.Join(DefaultConfigDir, DefaultConfigFileName)
)

// Config defines the top level configuration for a fullnode.
type Config struct {
	// Top level options use an anonymous struct
	BaseConfig `mapstructure:",squash"`

	// Options for services
	BlockPull       *BlockPullConfig       `mapstructure:"blockpull"`
	Download        *DownloadConfig        `mapstructure:"download"`
	Instrumentation *InstrumentationConfig `mapstructure:"instrumentation"`
}

// DefaultConfig returns a default configuration for a fullnode.
func DefaultConfig() *Config {
	return &Config{
		BaseConfig:      DefaultBaseConfig(),
		BlockPull:       DefaultBlockPullConfig(),
		Download:        DefaultDownloadConfig(),
		Instrumentation: DefaultInstrumentationConfig(),
	}
}

// TestConfig returns a configuration that can be used for testing.
func TestConfig() *Config {
	return &Config{
		BaseConfig:      TestBaseConfig(),
		BlockPull:       TestBlockPullConfig(),
		Download:        TestDownloadConfig(),
		Instrumentation: TestInstrumentationConfig(),
	}
}

// SetRoot sets the RootDir for all Config structs.
func (cfg *Config) SetRoot(root string) *Config {
	cfg.BaseConfig.RootDir = root
	return cfg
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *Config) ValidateBasic() error {
	if err := cfg.BaseConfig.ValidateBasic(); err != nil {
		return err
	}
	if err := cfg.BlockPull.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [blockpull] section: %w", err)
	}
	if err := cfg.Download.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [download] section: %w", err)
	}
	if err := cfg.Instrumentation.ValidateBasic(); err != nil {
		return fmt.Errorf("error in [instrumentation] section: %w", err)
	}
	return nil
}

//-----------------------------------------------------------------------------
// BaseConfig

// BaseConfig defines the base configuration for a fullnode.
type BaseConfig struct {
	// The root directory for all data.
	// This should be set in viper so it can unmarshal into this struct
	RootDir string `mapstructure:"home"`

	// Output level for logging
	LogLevel string `mapstructure:"log_level"`

	// Output format: 'plain' (colored text) or 'json'
	LogFormat string `mapstructure:"log_format"`

	// Database backend: goleveldb | memdb | ...
	DBBackend string `mapstructure:"db_backend"`

	// Database directory
	DBPath string `mapstructure:"db_dir"`

	// Height at which the node stops pulling blocks; 0 pulls to the tip.
	StopHeight int64 `mapstructure:"stop_height"`
}

// DefaultBaseConfig returns a default base configuration for a fullnode.
func DefaultBaseConfig() BaseConfig {
	return BaseConfig{
		LogLevel:  DefaultLogLevel,
		LogFormat: LogFormatPlain,
		DBBackend: "goleveldb",
		DBPath:    DefaultDataDir,
	}
}

// TestBaseConfig returns a base configuration for testing a fullnode.
func TestBaseConfig() BaseConfig {
	cfg := DefaultBaseConfig()
	cfg.DBBackend = "memdb"
	return cfg
}

// DBDir returns the full path to the database directory.
func (cfg BaseConfig) DBDir() string {
	return rootify(cfg.DBPath, cfg.RootDir)
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg BaseConfig) ValidateBasic() error {
	switch cfg.LogFormat {
	case LogFormatPlain, LogFormatJSON:
	default:
		return errors.New("unknown log_format (must be 'plain' or 'json')")
	}
	if cfg.StopHeight < 0 {
		return errors.New("stop_height can't be negative")
	}
	return nil
}

//-----------------------------------------------------------------------------
// BlockPullConfig

// BlockPullConfig defines the configuration of the lookahead block puller.
type BlockPullConfig struct {
	// Number of headers requested ahead of the last delivered block.
	Lookahead int64 `mapstructure:"lookahead"`

	// Ceiling on the bytes held by downloaded but unconsumed blocks. The
	// block the consumer needs next is admitted even above it.
	MaxBufferedBytes int64 `mapstructure:"max_buffered_bytes"`

	// How long a stalled consumer or a full producer sleeps before
	// re-checking its condition.
	WaitTimeout time.Duration `mapstructure:"wait_timeout"`
}

// DefaultBlockPullConfig returns a default configuration for the block
// puller.
func DefaultBlockPullConfig() *BlockPullConfig {
	return &BlockPullConfig{
		Lookahead:        5,
		MaxBufferedBytes: 10 * NominalMaxBlockSize,
		WaitTimeout:      time.Second,
	}
}

// TestBlockPullConfig returns a block puller configuration for testing.
func TestBlockPullConfig() *BlockPullConfig {
	cfg := DefaultBlockPullConfig()
	cfg.WaitTimeout = 50 * time.Millisecond
	return cfg
}

// ValidateBasic performs basic validation.
func (cfg *BlockPullConfig) ValidateBasic() error {
	if cfg.Lookahead <= 0 {
		return errors.New("lookahead must be positive")
	}
	if cfg.MaxBufferedBytes <= 0 {
		return errors.New("max_buffered_bytes must be positive")
	}
	if cfg.WaitTimeout <= 0 {
		return errors.New("wait_timeout must be positive")
	}
	return nil
}

//-----------------------------------------------------------------------------
// DownloadConfig

// DownloadConfig defines the configuration of the block downloader that
// serves the puller's requests.
type DownloadConfig struct {
	// Number of concurrent fetches.
	Workers int `mapstructure:"workers"`

	// Attempts made after the first failed fetch of a block.
	MaxRetries uint64 `mapstructure:"max_retries"`

	// Initial delay between retries; it grows exponentially.
	RetryInterval time.Duration `mapstructure:"retry_interval"`

	// Upper bound of a random delay added to every fetch, to reproduce out
	// of order delivery when serving from a local store.
	SimulatedLatency time.Duration `mapstructure:"simulated_latency"`
}

// DefaultDownloadConfig returns a default configuration for the downloader.
func DefaultDownloadConfig() *DownloadConfig {
	return &DownloadConfig{
		Workers:          4,
		MaxRetries:       5,
		RetryInterval:    100 * time.Millisecond,
		SimulatedLatency: 20 * time.Millisecond,
	}
}

// TestDownloadConfig returns a downloader configuration for testing.
func TestDownloadConfig() *DownloadConfig {
	cfg := DefaultDownloadConfig()
	cfg.RetryInterval = 5 * time.Millisecond
	cfg.SimulatedLatency = 2 * time.Millisecond
	return cfg
}

// ValidateBasic performs basic validation.
func (cfg *DownloadConfig) ValidateBasic() error {
	if cfg.Workers <= 0 {
		return errors.New("workers must be positive")
	}
	if cfg.RetryInterval <= 0 {
		return errors.New("retry_interval must be positive")
	}
	if cfg.SimulatedLatency < 0 {
		return errors.New("simulated_latency can't be negative")
	}
	return nil
}

//-----------------------------------------------------------------------------
// InstrumentationConfig

// InstrumentationConfig defines the configuration for metrics reporting.
type InstrumentationConfig struct {
	// When true, Prometheus metrics are served under /metrics on
	// PrometheusListenAddr.
	Prometheus bool `mapstructure:"prometheus"`

	// Address to listen for Prometheus collector(s) connections.
	PrometheusListenAddr string `mapstructure:"prometheus_listen_addr"`

	// Maximum number of simultaneous connections to the metrics endpoint.
	// 0 - unlimited.
	MaxOpenConnections int `mapstructure:"max_open_connections"`

	// Instrumentation namespace.
	Namespace string `mapstructure:"namespace"`

	// Prometheus push gateway; metrics are pushed every PushInterval when
	// set.
	PushGatewayURL string        `mapstructure:"push_gateway_url"`
	PushInterval   time.Duration `mapstructure:"push_interval"`

	// When true, finished spans of block pulls and downloads are written
	// to stdout.
	TraceStdout bool `mapstructure:"trace_stdout"`

	// Pyroscope server for continuous profiling; empty disables it.
	PyroscopeURL string `mapstructure:"pyroscope_url"`

	// When true, spans are linked to pyroscope profiles. Requires
	// PyroscopeURL.
	PyroscopeTrace bool `mapstructure:"pyroscope_trace"`

	// Profile types collected by pyroscope.
	PyroscopeProfileTypes []string `mapstructure:"pyroscope_profile_types"`
}

// DefaultInstrumentationConfig returns a default configuration for metrics
// reporting.
func DefaultInstrumentationConfig() *InstrumentationConfig {
	return &InstrumentationConfig{
		Prometheus:            false,
		PrometheusListenAddr:  ":26660",
		MaxOpenConnections:    3,
		Namespace:             "fullnode",
		PushInterval:          5 * time.Second,
		PyroscopeProfileTypes: []string{"cpu", "alloc_objects", "inuse_objects", "goroutines"},
	}
}

// TestInstrumentationConfig returns a default configuration for metrics
// reporting.
func TestInstrumentationConfig() *InstrumentationConfig {
	return DefaultInstrumentationConfig()
}

// ValidateBasic performs basic validation.
func (cfg *InstrumentationConfig) ValidateBasic() error {
	if cfg.MaxOpenConnections < 0 {
		return errors.New("max_open_connections can't be negative")
	}
	if cfg.PushGatewayURL != "" && cfg.PushInterval <= 0 {
		return errors.New("push_interval must be positive when push_gateway_url is set")
	}
	if cfg.PyroscopeTrace && cfg.PyroscopeURL == "" {
		return errors.New("pyroscope_trace requires pyroscope_url")
	}
	return nil
}

//-----------------------------------------------------------------------------
// Utils

// helper function to make config creation independent of root dir
func rootify(path, root string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}
