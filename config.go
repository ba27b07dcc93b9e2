package lum

import (
	"encoding"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/golobby/cast"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to env tag names when applying the environment
// overlay, e.g. LUM_INIT_TIMEOUT.
const EnvPrefix = "LUM_"

// Duration wraps time.Duration so config files and environment variables
// can use human-readable values like "10s".
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// UnmarshalText supports TOML files and the environment overlay.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	*d = Duration(parsed)
	return nil
}

// UnmarshalYAML supports YAML files.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(raw))
}

// Config is the bot's top-level configuration: which modules to enable and
// the settings the framework and built-in modules need at initialization.
type Config struct {
	// Name of the bot, used as the logging identity.
	Name string `yaml:"name" toml:"name" env:"NAME"`

	// Modules lists the built-in modules to enable, by name.
	Modules []string `yaml:"modules" toml:"modules" env:"MODULES"`

	// InitTimeout bounds each module's initialization.
	InitTimeout Duration `yaml:"init_timeout" toml:"init_timeout" env:"INIT_TIMEOUT"`

	// StopTimeout is the per-module shutdown grace period.
	StopTimeout Duration `yaml:"stop_timeout" toml:"stop_timeout" env:"STOP_TIMEOUT"`

	// EventQueueSize is the per-module event buffer of the dispatcher.
	EventQueueSize int `yaml:"event_queue_size" toml:"event_queue_size" env:"EVENT_QUEUE_SIZE"`

	Watchdog  WatchdogConfig  `yaml:"watchdog" toml:"watchdog"`
	StatusAPI StatusAPIConfig `yaml:"status_api" toml:"status_api"`
}

// WatchdogConfig configures the built-in watchdog module.
type WatchdogConfig struct {
	// Schedule is a cron expression or @every interval for health sweeps.
	Schedule string `yaml:"schedule" toml:"schedule" env:"WATCHDOG_SCHEDULE"`
}

// StatusAPIConfig configures the built-in status HTTP module.
type StatusAPIConfig struct {
	// Addr is the listen address for the status endpoints.
	Addr string `yaml:"addr" toml:"addr" env:"STATUS_API_ADDR"`
}

// DefaultConfig returns the baseline configuration overridden by file and
// environment values.
func DefaultConfig() *Config {
	return &Config{
		Name:           "lum",
		InitTimeout:    Duration(DefaultInitTimeout),
		StopTimeout:    Duration(DefaultStopTimeout),
		EventQueueSize: DefaultQueueSize,
		Watchdog:       WatchdogConfig{Schedule: "@every 30s"},
		StatusAPI:      StatusAPIConfig{Addr: ":8745"},
	}
}

// LoadConfig builds the effective configuration: defaults, then the file at
// path (format chosen by extension; missing file is not an error), then the
// LUM_* environment overlay. Environment values win, matching the original
// precedence.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := feedConfigFile(cfg, path); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("failed to apply environment overlay: %w", err)
	}

	return cfg, nil
}

func feedConfigFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse yaml config %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse toml config %s: %w", path, err)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedConfigFormat, filepath.Ext(path))
	}
	return nil
}

// applyEnv walks struct fields with an env tag and overrides them from
// LUM_-prefixed environment variables, casting string values to the field's
// type. Nested structs are walked recursively.
func applyEnv(v reflect.Value) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := v.Field(i)
		structField := t.Field(i)

		if structField.Type.Kind() == reflect.Struct && structField.Tag.Get("env") == "" {
			if _, isUnmarshaler := field.Addr().Interface().(encoding.TextUnmarshaler); !isUnmarshaler {
				if err := applyEnv(field); err != nil {
					return err
				}
				continue
			}
		}

		tag := structField.Tag.Get("env")
		if tag == "" {
			continue
		}
		raw, ok := os.LookupEnv(EnvPrefix + tag)
		if !ok {
			continue
		}

		if err := setFromString(field, raw); err != nil {
			return fmt.Errorf("env %s%s: %w", EnvPrefix, tag, err)
		}
	}
	return nil
}

func setFromString(field reflect.Value, raw string) error {
	if unmarshaler, ok := field.Addr().Interface().(encoding.TextUnmarshaler); ok {
		return unmarshaler.UnmarshalText([]byte(raw))
	}

	if field.Kind() == reflect.Slice && field.Type().Elem().Kind() == reflect.String {
		parts := strings.Split(raw, ",")
		values := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				values = append(values, trimmed)
			}
		}
		field.Set(reflect.ValueOf(values))
		return nil
	}

	converted, err := cast.FromType(raw, field.Type())
	if err != nil {
		return err
	}
	field.Set(reflect.ValueOf(converted).Convert(field.Type()))
	return nil
}
