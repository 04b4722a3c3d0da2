package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/native-bridge/errors"
)

// Backend selects the native service implementation
type Backend string

const (
	BackendLoopback Backend = "loopback" // in-process Go service
	BackendDylib    Backend = "dylib"    // shared library via purego
	BackendWasm     Backend = "wasm"     // WebAssembly guest via wazero
)

// Duration is a time.Duration that decodes from strings like "250ms"
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// QueueConfiguration controls the completion loop
type QueueConfiguration struct {
	Size         int      `toml:"size"`
	OfferTimeout Duration `toml:"offer_timeout"` // negative drops immediately when full
}

// LogConfiguration controls logging
type LogConfiguration struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // "console" or "json"
}

// MetricsConfiguration controls the Prometheus endpoint
type MetricsConfiguration struct {
	Listen    string `toml:"listen"` // empty disables the endpoint
	Namespace string `toml:"namespace"`
}

// WasmConfiguration controls the WebAssembly backend
type WasmConfiguration struct {
	MemoryLimitPages uint32   `toml:"memory_limit_pages"`
	PollInterval     Duration `toml:"poll_interval"`
	DisableWASI      bool     `toml:"disable_wasi"`
}

// Config is the bridgectl configuration
type Config struct {
	Backend       Backend              `toml:"backend"`
	Library       string               `toml:"library"` // dylib path; empty searches
	Module        string               `toml:"module"`  // wasm file
	ContextConfig string               `toml:"context_config"`
	Queue         QueueConfiguration   `toml:"queue"`
	Log           LogConfiguration     `toml:"log"`
	Metrics       MetricsConfiguration `toml:"metrics"`
	Wasm          WasmConfiguration    `toml:"wasm"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Backend:       BackendLoopback,
		ContextConfig: "{}",
		Queue: QueueConfiguration{
			Size: 1024,
		},
		Log: LogConfiguration{
			Level:  "info",
			Format: "console",
		},
		Metrics: MetricsConfiguration{
			Namespace: "native_bridge",
		},
	}
}

// Load decodes path over Default. An empty or missing path yields Default.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, errors.Config("stat "+path, err)
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, errors.Config("decode "+path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, errors.Config(fmt.Sprintf("unknown key %q in %s", undecoded[0].String(), path), nil)
	}
	return cfg, nil
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendLoopback, BackendDylib:
	case BackendWasm:
		if c.Module == "" {
			return errors.Config("wasm backend requires module", nil)
		}
	default:
		return errors.Config(fmt.Sprintf("unknown backend %q", c.Backend), nil)
	}

	if c.Queue.Size < 1 {
		return errors.Config(fmt.Sprintf("queue size must be >= 1, got %d", c.Queue.Size), nil)
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return errors.Config("log level", err)
	}

	switch c.Log.Format {
	case "console", "json":
	default:
		return errors.Config(fmt.Sprintf("invalid log format: %s", c.Log.Format), nil)
	}

	if c.Metrics.Listen != "" && c.Metrics.Namespace == "" {
		return errors.Config("metrics namespace must not be empty", nil)
	}

	return nil
}

// Logger builds a zap logger from the log section
func (c LogConfiguration) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, errors.Config("log level", err)
	}

	var zc zap.Config
	if c.Format == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}
