package config

import (
	"bytes"
	"path/filepath"
	"text/template"

	cmtos "github.com/stratis-go/fullnode/libs/os"
)

// DefaultDirPerm is the default permissions used when creating directories.
const DefaultDirPerm = 0o700

var configTemplate *template.Template

func init() {
	var err error
	tmpl := template.New("configFileTemplate")
	if configTemplate, err = tmpl.Parse(defaultConfigTemplate); err != nil {
		panic(err)
	}
}

/****** these are for production settings ***********/

// EnsureRoot creates the root, config, and data directories if they don't
// exist, and writes the default config file if it is missing.
func EnsureRoot(rootDir string) {
	if err := cmtos.EnsureDir(rootDir, DefaultDirPerm); err != nil {
		panic(err.Error())
	}
	if err := cmtos.EnsureDir(filepath.Join(rootDir, DefaultConfigDir), DefaultDirPerm); err != nil {
		panic(err.Error())
	}
	if err := cmtos.EnsureDir(filepath.Join(rootDir, DefaultDataDir), DefaultDirPerm); err != nil {
		panic(err.Error())
	}

	configFilePath := filepath.Join(rootDir, defaultConfigFilePath)

	// Write default config file if missing.
	if !cmtos.FileExists(configFilePath) {
		WriteConfigFile(configFilePath, DefaultConfig())
	}
}

// WriteConfigFile renders config using the template and writes it to
// configFilePath.
func WriteConfigFile(configFilePath string, config *Config) {
	var buffer bytes.Buffer

	if err := configTemplate.Execute(&buffer, config); err != nil {
		panic(err)
	}

	cmtos.MustWriteFile(configFilePath, buffer.Bytes(), 0o644)
}

// Note: any changes to the comments/variables/mapstructure
// must be reflected in the appropriate struct in config/config.go
const defaultConfigTemplate = `# This is a TOML config file.
# For more information, see https://github.com/toml-lang/toml

# NOTE: Any path below can be absolute (e.g. "/var/myawesomeapp/data") or
# relative to the home directory (e.g. "data"). The home directory is
# "$HOME/.fullnode" by default, but could be changed via $FULLNODE_HOME env
# variable or --home cmd flag.

#######################################################################
###                   Main Base Config Options                      ###
#######################################################################

# Output level for logging: "debug", "info", "error" or "none"
log_level = "{{ .BaseConfig.LogLevel }}"

# Output format: 'plain' (colored text) or 'json'
log_format = "{{ .BaseConfig.LogFormat }}"

# Database backend: goleveldb | memdb
db_backend = "{{ .BaseConfig.DBBackend }}"

# Database directory
db_dir = "{{ .BaseConfig.DBPath }}"

# Height at which to stop pulling blocks; 0 pulls to the chain tip
stop_height = {{ .BaseConfig.StopHeight }}

#######################################################
###          Block Puller Configuration Options     ###
#######################################################
[blockpull]

# Number of headers requested ahead of the last delivered block.
# Up to twice this many blocks are in flight at any time.
lookahead = {{ .BlockPull.Lookahead }}

# Ceiling, in bytes, on downloaded blocks waiting to be consumed.
max_buffered_bytes = {{ .BlockPull.MaxBufferedBytes }}

# How long a stalled consumer or a full producer waits before re-checking.
wait_timeout = "{{ .BlockPull.WaitTimeout }}"

#######################################################
###          Downloader Configuration Options       ###
#######################################################
[download]

# Number of concurrent block fetches
workers = {{ .Download.Workers }}

# Retries after a failed fetch, with exponential backoff
max_retries = {{ .Download.MaxRetries }}
retry_interval = "{{ .Download.RetryInterval }}"

# Upper bound of a random delay added to each fetch
simulated_latency = "{{ .Download.SimulatedLatency }}"

#######################################################
###       Instrumentation Configuration Options     ###
#######################################################
[instrumentation]

# When true, Prometheus metrics are served under /metrics on
# PrometheusListenAddr.
prometheus = {{ .Instrumentation.Prometheus }}

# Address to listen for Prometheus collector(s) connections
prometheus_listen_addr = "{{ .Instrumentation.PrometheusListenAddr }}"

# Maximum number of simultaneous connections to the metrics endpoint.
# If you want to accept a larger number than the default, make sure
# you increase your OS limits.
# 0 - unlimited.
max_open_connections = {{ .Instrumentation.MaxOpenConnections }}

# Instrumentation namespace
namespace = "{{ .Instrumentation.Namespace }}"

# Prometheus push gateway; leave empty to disable pushing
push_gateway_url = "{{ .Instrumentation.PushGatewayURL }}"
push_interval = "{{ .Instrumentation.PushInterval }}"

# Write finished spans of block pulls and downloads to stdout
trace_stdout = {{ .Instrumentation.TraceStdout }}

# Pyroscope server for continuous profiling; leave empty to disable
pyroscope_url = "{{ .Instrumentation.PyroscopeURL }}"

# Link spans to pyroscope profiles; requires pyroscope_url
pyroscope_trace = {{ .Instrumentation.PyroscopeTrace }}

# Profile types collected by pyroscope
pyroscope_profile_types = [{{ range .Instrumentation.PyroscopeProfileTypes }}{{ printf "%q, " . }}{{ end }}]
`
