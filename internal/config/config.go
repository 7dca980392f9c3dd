// Package config loads the workspace-wide configuration for the IDE
// backend: where to find the workspace, how to reach the LLM backend,
// and the resource limits each subsystem enforces. Loaded via viper with
// the usual precedence order (config file, then environment, then
// defaults) but reduced to this process's single-backend shape — no
// vendor API keys, no multi-provider precedence chain.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/maeum-labs/maeum-ide/internal/permission"
	"github.com/spf13/viper"
)

const (
	// EnvConfig points at an explicit config file, overriding the
	// workspace-root default.
	EnvConfig = "MAEUM_IDE_CONFIG"
	// envPrefix is the prefix viper strips from MAEUM_IDE_* environment
	// variables when binding them onto config keys.
	envPrefix = "MAEUM_IDE"
	// configFileName is the JSON config file viper looks for in the
	// workspace root.
	configFileName = ".maeum-ide"
)

// WorkspaceConfig locates the project this session operates on.
type WorkspaceConfig struct {
	Root string `mapstructure:"root"`
}

// ServerConfig controls the IDE's HTTP/WebSocket listener.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// TransportConfig addresses the single LLM backend this process talks to.
type TransportConfig struct {
	BaseURL              string        `mapstructure:"base_url"`
	StreamConnectTimeout time.Duration `mapstructure:"stream_connect_timeout"`
	StreamIdleTimeout    time.Duration `mapstructure:"stream_idle_timeout"`
	MaxRetryAttempts     int           `mapstructure:"max_retry_attempts"`
}

// ToolsConfig bounds how long tool subprocesses are allowed to run.
type ToolsConfig struct {
	BashTimeout      time.Duration `mapstructure:"bash_timeout"`
	GitReadTimeout   time.Duration `mapstructure:"git_read_timeout"`
	GitCommitTimeout time.Duration `mapstructure:"git_commit_timeout"`
	WebTimeout       time.Duration `mapstructure:"web_timeout"`
}

// LoopConfig bounds the agentic loop's iteration and exploration budgets.
type LoopConfig struct {
	MaxIterations  int `mapstructure:"max_iterations"`
	MaxExploration int `mapstructure:"max_exploration"`
}

// CompactionConfig controls when and how much history gets pruned.
type CompactionConfig struct {
	TokenThreshold int `mapstructure:"token_threshold"`
	KeepLastTurns  int `mapstructure:"keep_last_turns"`
}

// IndexConfig sizes the workspace index's worker pool and caches.
type IndexConfig struct {
	MaxFileSize   int64 `mapstructure:"max_file_size"`
	WorkerPoolMax int   `mapstructure:"worker_pool_max"`
	CacheSize     int   `mapstructure:"cache_size"`
}

// TxnConfig bounds the undo/redo ledger's retention.
type TxnConfig struct {
	MaxTransactions int   `mapstructure:"max_transactions"`
	MaxBytes        int64 `mapstructure:"max_bytes"`
}

// Config holds all configuration for the IDE backend process.
type Config struct {
	Workspace  WorkspaceConfig     `mapstructure:"workspace"`
	Server     ServerConfig        `mapstructure:"server"`
	Transport  TransportConfig     `mapstructure:"transport"`
	Tools      ToolsConfig         `mapstructure:"tools"`
	Loop       LoopConfig          `mapstructure:"loop"`
	Compaction CompactionConfig    `mapstructure:"compaction"`
	Index      IndexConfig         `mapstructure:"index"`
	Txn        TxnConfig           `mapstructure:"txn"`
	Permission permission.Config `mapstructure:"-"` // built separately; viper can't bind func/regex fields
	LogLevel   string            `mapstructure:"log_level"`
}

// Load reads configuration from, in increasing precedence: built-in
// defaults, a `.maeum-ide.json` file in the workspace root (or the path
// named by $MAEUM_IDE_CONFIG), then MAEUM_IDE_* environment variables.
func Load(workspaceRoot string) (*Config, error) {
	v := viper.New()
	setDefaults(v, workspaceRoot)

	v.SetConfigType("json")
	if custom := os.Getenv(EnvConfig); custom != "" {
		v.SetConfigFile(custom)
	} else {
		v.SetConfigName(configFileName)
		v.AddConfigPath(workspaceRoot)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHook)); err != nil {
		return nil, err
	}
	if cfg.Workspace.Root == "" {
		cfg.Workspace.Root = workspaceRoot
	}
	cfg.Permission = *permission.DefaultConfig(cfg.Workspace.Root)

	return &cfg, nil
}

func setDefaults(v *viper.Viper, workspaceRoot string) {
	v.SetDefault("workspace.root", workspaceRoot)

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 4096)

	v.SetDefault("transport.base_url", "http://localhost:8080")
	v.SetDefault("transport.stream_connect_timeout", 10*time.Second)
	v.SetDefault("transport.stream_idle_timeout", 30*time.Minute)
	v.SetDefault("transport.max_retry_attempts", 3)

	v.SetDefault("tools.bash_timeout", 30*time.Second)
	v.SetDefault("tools.git_read_timeout", 10*time.Second)
	v.SetDefault("tools.git_commit_timeout", 30*time.Second)
	v.SetDefault("tools.web_timeout", 30*time.Second)

	v.SetDefault("loop.max_iterations", 99)
	v.SetDefault("loop.max_exploration", 20)

	v.SetDefault("compaction.token_threshold", 30000)
	v.SetDefault("compaction.keep_last_turns", 10)

	v.SetDefault("index.max_file_size", 10*1024*1024)
	v.SetDefault("index.worker_pool_max", 32)
	v.SetDefault("index.cache_size", 256)

	v.SetDefault("txn.max_transactions", 1000)
	v.SetDefault("txn.max_bytes", 3*1024*1024*1024)

	v.SetDefault("log_level", "info")
}

// ConfigFilePath returns the path Load would read a config file from for
// the given workspace root, absent an $MAEUM_IDE_CONFIG override — useful
// for `maeum-ide init` style tooling and diagnostics.
func ConfigFilePath(workspaceRoot string) string {
	return filepath.Join(workspaceRoot, configFileName+".json")
}
