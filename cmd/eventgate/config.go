package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"gopkg.in/yaml.v3"

	"github.com/randalmurphal/eventgate/pkg/eventgate/config"
)

// ConfigCmd groups settings subcommands.
type ConfigCmd struct {
	Check ConfigCheckCmd `cmd:"" help:"Validate a settings file and print the resolved settings"`
	Watch ConfigWatchCmd `cmd:"" help:"Log resolved settings every time the file changes"`
}

// ConfigCheckCmd implements 'config check'.
type ConfigCheckCmd struct {
	File string `arg:"" type:"existingfile" help:"Settings file (.yaml, .yml or .json)"`
}

// Run validates the file and prints the resolved settings as YAML.
func (c *ConfigCheckCmd) Run(g *Global) error {
	s, err := config.LoadSettings(c.File)
	if err != nil {
		return err
	}
	return yaml.NewEncoder(g.Out).Encode(s)
}

// ConfigWatchCmd implements 'config watch'.
type ConfigWatchCmd struct {
	File string `arg:"" type:"existingfile" help:"Settings file to watch"`
}

// Run blocks until interrupted.
func (c *ConfigWatchCmd) Run(g *Global) error {
	if _, err := config.LoadSettings(c.File); err != nil {
		return err
	}

	w, err := config.NewWatcher(c.File, func(s config.Settings) {
		g.Logger.Info("settings changed",
			slog.Bool("enabled", s.Enabled),
			slog.String("strategy", s.Strategy),
			slog.Bool("log_timing", s.LogTiming),
			slog.String("nested_policy", s.NestedPolicy),
		)
	}, config.WithWatcherLogger(g.Logger))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := w.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return w.Stop()
}
