// Package config loads server settings the way nasa-jpl-golaborate's
// cmd/multiserver loads machine configs: seed a koanf instance with struct
// defaults, then layer a YAML file and the environment on top, so every
// field has a sane default and nothing requires a config file to exist.
package config

import (
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
)

// Config holds every CLI/environment knob the external interfaces section
// names: port, worker thread count, SQL pool size, log level, async log
// queue size, and the idle keep-alive timeout.
type Config struct {
	Port               int    `koanf:"port" yaml:"port"`
	ThreadNum          int    `koanf:"thread_num" yaml:"thread_num"`
	ConnectionPoolSize int    `koanf:"connection_pool_size" yaml:"connection_pool_size"`
	LogLevel           string `koanf:"log_level" yaml:"log_level"`
	LogDir             string `koanf:"log_dir" yaml:"log_dir"`
	LogAsyncQueueSize  int    `koanf:"log_async_queue_size" yaml:"log_async_queue_size"`
	KeepAliveMS        int64  `koanf:"keepalive_ms" yaml:"keepalive_ms"`
	DocRoot            string `koanf:"doc_root" yaml:"doc_root"`
	MySQLDSN           string `koanf:"mysql_dsn" yaml:"mysql_dsn"`
}

// Default returns the configuration baseline every Load call starts from.
func Default() Config {
	return Config{
		Port:               1316,
		ThreadNum:          8,
		ConnectionPoolSize: 8,
		LogLevel:           "INFO",
		LogDir:             "./logs",
		LogAsyncQueueSize:  1024,
		KeepAliveMS:        120_000,
		DocRoot:            "./resources",
		MySQLDSN:           "user:password@tcp(127.0.0.1:3306)/emberdb",
	}
}

// Load builds a Config from, in increasing priority: built-in defaults, the
// YAML file at path (silently skipped if absent), then EMBER_-prefixed
// environment variables (EMBER_PORT, EMBER_LOG_LEVEL, ...).
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return Config{}, err
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !strings.Contains(err.Error(), "no such file") {
			return Config{}, err
		}
	}

	if err := k.Load(env.Provider("EMBER_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "EMBER_"))
	}), nil); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
