package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"slipbot/internal/bot"
	"slipbot/internal/bus"
	"slipbot/internal/command"
	"slipbot/internal/config"
	"slipbot/internal/logging"
	"slipbot/internal/metrics"
)

var (
	version    = "0.1.0"
	logger     = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	configPath string // overridable via --config flag
)

func main() {
	root := &cobra.Command{
		Use:          "slipbot",
		Short:        "slipbot: print to-do slips from chat messages",
		Long:         "slipbot listens on Signal, Telegram, Discord, Slack or the terminal and prints !todo messages on an ESC/POS receipt printer.",
		Version:      version,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json or config.yaml (default: ~/.slipbot/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(runCmd())
	root.AddCommand(printCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(configCmd())
	root.AddCommand(daemonCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

// loadConfig loads the config file, falling back to defaults when it does
// not exist yet.
func loadConfig() (*config.Config, string, error) {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn("config not found, using defaults", "path", cfgPath)
		return config.Defaults(), cfgPath, nil
	}
	if err != nil {
		return nil, cfgPath, err
	}
	return cfg, cfgPath, nil
}

// setupLogger replaces the bootstrap logger with the configured one.
func setupLogger(cfg *config.Config) (io.Closer, error) {
	l, closer, err := logging.New(logging.Options{
		Level:      cfg.General.LogLevel,
		File:       cfg.General.LogFile,
		MaxSizeMB:  cfg.General.LogMaxSizeMB,
		MaxBackups: cfg.General.LogMaxBackups,
	})
	if err != nil {
		return nil, err
	}
	logger = l
	return closer, nil
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", cfgPath)
			}
			if err := config.Save(cfgPath, config.Defaults()); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the bot",
		Long:  "Starts all enabled channels and prints to-do slips until interrupted.",
		RunE:  runBot,
	}
}

func runBot(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	closer, err := setupLogger(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	dev, profile, err := newDevice(cfg)
	if err != nil {
		return err
	}
	renderer, err := newRenderer(cfg, profile)
	if err != nil {
		return err
	}
	registry, _, err := newRegistry(cfg, newSpooler(cfg, dev, logger), renderer, logger)
	if err != nil {
		return err
	}
	channels, err := newChannels(cfg, logger)
	if err != nil {
		return err
	}

	messageBus := bus.New(100, logger)
	dispatcher := command.NewDispatcher(command.DispatcherConfig{
		Registry:      registry,
		Responder:     messageBus,
		Logger:        logger,
		RatePerMinute: cfg.Commands.RatePerMinute,
		RateBurst:     cfg.Commands.RateBurst,
	})
	loop := bot.NewLoop(bot.LoopConfig{
		Bus:         messageBus,
		Dispatcher:  dispatcher,
		Logger:      logger,
		Concurrency: cfg.General.Concurrency,
	})

	if err := registry.Start(ctx); err != nil {
		return fmt.Errorf("start commands: %w", err)
	}

	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.Collector.Serve(ctx, cfg.Metrics.Addr, cfg.Metrics.Endpoint, logger); err != nil {
				logger.Error("metrics server error", "err", err)
			}
		}()
	}

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		loop.Run(ctx)
	}()

	// The bot stops on a signal or once every channel has returned.
	var wg sync.WaitGroup
	for _, ch := range channels {
		ch := ch
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ch.Start(ctx, messageBus); err != nil {
				logger.Error("channel error", "channel", ch.Name(), "err", err)
				return
			}
			logger.Info("channel stopped", "channel", ch.Name())
		}()
		logger.Info("channel enabled", "channel", ch.Name())
	}
	go func() {
		wg.Wait()
		cancel()
	}()

	logger.Info("slipbot started. Press Ctrl+C to stop.", "printer", cfg.Printer.Device, "profile", profile.Name)
	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	var shutdownErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-loopDone
		for _, ch := range channels {
			if err := ch.Stop(); err != nil {
				logger.Warn("channel stop failed", "channel", ch.Name(), "err", err)
			}
		}
		if err := registry.Stop(); err != nil {
			logger.Warn("command stop failed", "err", err)
		}
		messageBus.Close()
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timed out, forcing exit")
		shutdownErr = fmt.Errorf("shutdown timed out")
	}
	return shutdownErr
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show config and check the printer",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cfgPath, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "slipbot %s\n", version)
			fmt.Fprintf(out, "config:   %s\n", cfgPath)

			dev, profile, err := newDevice(cfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "printer:  %s (%s, %d dots, %d columns)\n", dev.Address(), profile.Name, profile.DotWidth, profile.Columns)

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Printer.Timeout())
			defer cancel()
			if err := newSpooler(cfg, dev, logger).Check(ctx); err != nil {
				fmt.Fprintf(out, "reachable: no (%v)\n", err)
			} else {
				fmt.Fprintf(out, "reachable: yes\n")
			}

			enabled := map[string]bool{
				"signal":   cfg.Channels.Signal.Enabled,
				"telegram": cfg.Channels.Telegram.Enabled,
				"discord":  cfg.Channels.Discord.Enabled,
				"slack":    cfg.Channels.Slack.Enabled,
				"cli":      cfg.Channels.CLI.Enabled,
			}
			names := make([]string, 0, len(enabled))
			for name := range enabled {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(out, "channel:  %-9s enabled=%v\n", name, enabled[name])
			}
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. printer.device)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(config.Sanitize(cfg), args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. printer.device 192.168.1.50)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			paths := config.ListPaths(config.Sanitize(cfg))
			keys := make([]string, 0, len(paths))
			for k := range paths {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", k, paths[k])
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), resolveConfigPath())
		},
	})

	return cmd
}
