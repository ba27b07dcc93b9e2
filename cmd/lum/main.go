// Command lum runs the bot host: it loads configuration, assembles the
// enabled modules, and serves until a signal arrives or an essential module
// fails.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/Kitt3120/lum"
	"github.com/Kitt3120/lum/modules/configwatch"
	"github.com/Kitt3120/lum/modules/statusapi"
	"github.com/Kitt3120/lum/modules/watchdog"
)

// slogLogger adapts log/slog to the framework's Logger interface.
type slogLogger struct {
	logger *slog.Logger
}

func (l *slogLogger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l *slogLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }
func (l *slogLogger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *slogLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the config file (yaml or toml)")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := &slogLogger{logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))}

	cfg, err := lum.LoadConfig(*configPath)
	if err != nil {
		logger.Error("Failed to load config", "path", *configPath, "error", err)
		return lum.ExitStartupFailed
	}

	builder := lum.NewBotBuilder(cfg.Name).
		WithLogger(logger).
		WithConfig(cfg)

	for _, name := range cfg.Modules {
		module, err := builtinModule(name, cfg, *configPath)
		if err != nil {
			logger.Error("Unknown module in config", "module", name, "error", err)
			return lum.ExitStartupFailed
		}
		builder.WithModule(module)
	}

	bot, err := builder.Build()
	if err != nil {
		logger.Error("Failed to build bot", "error", err)
		return lum.ExitStartupFailed
	}

	return bot.Run(context.Background())
}

// builtinModule maps a config name to a built-in module instance.
func builtinModule(name string, cfg *lum.Config, configPath string) (lum.Module, error) {
	switch name {
	case watchdog.ModuleName:
		return watchdog.New(cfg.Watchdog.Schedule), nil
	case statusapi.ModuleName:
		return statusapi.New(cfg.StatusAPI.Addr), nil
	case configwatch.ModuleName:
		return configwatch.New(configPath), nil
	default:
		return nil, fmt.Errorf("no built-in module named %q", name)
	}
}
