// Package appconfig loads cluster and runtime configuration from a TOML
// file, overlaid with environment variables, the same two-stage pattern the
// ancestor indexer used for its own chain configuration.
package appconfig

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the runtime configuration for every shepherd subcommand.
type Config struct {
	RPCURL      string `koanf:"rpc_url"`
	WSURL       string `koanf:"ws_url"`
	LogLevel    string `koanf:"log_level"`
	MetricsAddr string `koanf:"metrics_addr"`

	FanoutSlots       uint64        `koanf:"fanout_slots"`
	BlockhashInterval time.Duration `koanf:"blockhash_interval"`

	RPCFailureRetryDelay    time.Duration `koanf:"rpc_failure_retry_delay"`
	StatusFailureRetryDelay time.Duration `koanf:"status_failure_retry_delay"`
	RetryCount              uint32        `koanf:"retry_count"`

	RPCCallsPerSecond float64 `koanf:"rpc_calls_per_second"`
	RPCBurst          float64 `koanf:"rpc_burst"`
}

// Default returns the baseline configuration applied before any file or
// environment overlay.
func Default() Config {
	return Config{
		RPCURL:                  "http://127.0.0.1:8899",
		WSURL:                   "ws://127.0.0.1:8900",
		LogLevel:                "info",
		FanoutSlots:             100,
		BlockhashInterval:       400 * time.Millisecond,
		RPCFailureRetryDelay:    400 * time.Millisecond,
		StatusFailureRetryDelay: 1200 * time.Millisecond,
		RetryCount:              3,
		RPCCallsPerSecond:       50,
		RPCBurst:                100,
	}
}

// Load reads path (a TOML file, optional) and overlays SHEPHERD_-prefixed
// environment variables, e.g. SHEPHERD_RPC_URL overrides rpc_url.
func Load(path string) (Config, error) {
	cfg := Default()

	ko := koanf.New(".")
	if err := ko.Load(structProvider(cfg), nil); err != nil {
		return cfg, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		if err := ko.Load(file.Provider(path), toml.Parser()); err != nil {
			return cfg, fmt.Errorf("loading config file %q: %w", path, err)
		}
	}

	if err := ko.Load(env.Provider("SHEPHERD_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "SHEPHERD_"))
	}), nil); err != nil {
		return cfg, fmt.Errorf("loading environment overrides: %w", err)
	}

	var out Config
	unmarshalConf := koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &out,
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
			),
		},
	}
	if err := ko.UnmarshalWithConf("", &out, unmarshalConf); err != nil {
		return cfg, fmt.Errorf("unmarshalling config: %w", err)
	}
	return out, nil
}

// structProvider seeds koanf with the Default() values so file/env
// overlays only need to set the keys they actually want to change.
func structProvider(cfg Config) koanf.Provider {
	return koanfStructProvider{cfg}
}

type koanfStructProvider struct{ cfg Config }

func (p koanfStructProvider) ReadBytes() ([]byte, error) { return nil, fmt.Errorf("unsupported") }

func (p koanfStructProvider) Read() (map[string]interface{}, error) {
	return map[string]interface{}{
		"rpc_url":                    p.cfg.RPCURL,
		"ws_url":                     p.cfg.WSURL,
		"log_level":                  p.cfg.LogLevel,
		"metrics_addr":               p.cfg.MetricsAddr,
		"fanout_slots":               p.cfg.FanoutSlots,
		"blockhash_interval":         p.cfg.BlockhashInterval,
		"rpc_failure_retry_delay":    p.cfg.RPCFailureRetryDelay,
		"status_failure_retry_delay": p.cfg.StatusFailureRetryDelay,
		"retry_count":                p.cfg.RetryCount,
		"rpc_calls_per_second":       p.cfg.RPCCallsPerSecond,
		"rpc_burst":                  p.cfg.RPCBurst,
	}, nil
}
