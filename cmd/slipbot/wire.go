package main

import (
	"fmt"
	"log/slog"
	"time"

	"slipbot/internal/channel"
	"slipbot/internal/command"
	"slipbot/internal/config"
	"slipbot/internal/domain"
	"slipbot/internal/printer"
	"slipbot/internal/render"
)

// newSpooler builds the printer spooler for the configured device.
func newSpooler(cfg *config.Config, transport printer.Transport, log *slog.Logger) *printer.Spooler {
	return printer.NewSpooler(transport, cfg.Printer.Timeout(), log.With("component", "printer"))
}

// newDevice opens nothing; it only describes the configured printer.
func newDevice(cfg *config.Config) (*printer.Device, printer.Profile, error) {
	profile, err := printer.LookupProfile(cfg.Printer.Profile)
	if err != nil {
		return nil, printer.Profile{}, err
	}
	dev := printer.NewDevice(printer.DeviceConfig{
		Address: cfg.Printer.Device,
		Profile: profile,
		Timeout: cfg.Printer.Timeout(),
	})
	return dev, profile, nil
}

// newRenderer clamps the configured image width to what the print head
// can take.
func newRenderer(cfg *config.Config, profile printer.Profile) (render.Renderer, error) {
	loc, err := cfg.General.Location()
	if err != nil {
		return render.Renderer{}, err
	}
	width := cfg.Printer.ImageWidth
	if profile.DotWidth > 0 && width > profile.DotWidth {
		width = profile.DotWidth
	}
	return render.New(width, loc), nil
}

// newRegistry registers help first and todo second, the order help lists
// them in.
func newRegistry(cfg *config.Config, p command.Printer, r render.Renderer, log *slog.Logger) (*command.Registry, *command.Todo, error) {
	reg := command.NewRegistry(log)
	if err := reg.Register(command.NewHelp(cfg.Commands.Help, reg)); err != nil {
		return nil, nil, err
	}
	todo := command.NewTodo(command.TodoConfig{
		Trigger:  cfg.Commands.Todo,
		Printer:  p,
		Renderer: r,
		Logger:   log,
	})
	if err := reg.Register(todo); err != nil {
		return nil, nil, err
	}
	return reg, todo, nil
}

// newChannels builds every enabled chat transport.
func newChannels(cfg *config.Config, log *slog.Logger) ([]domain.Channel, error) {
	var chans []domain.Channel
	ch := cfg.Channels
	global := []string(cfg.AllowFrom)

	if ch.Signal.Enabled {
		sig, err := channel.NewSignal(channel.SignalConfig{
			URL:    ch.Signal.URL,
			Number: ch.Signal.Number,
			Allow:  channel.NewAllowList(ch.Signal.AllowFrom, global),
			Logger: log.With("channel", "signal"),
		})
		if err != nil {
			return nil, err
		}
		chans = append(chans, sig)
	}
	if ch.Telegram.Enabled {
		chans = append(chans, channel.NewTelegram(channel.TelegramConfig{
			Token:  ch.Telegram.Token,
			Allow:  channel.NewAllowList(ch.Telegram.AllowFrom, global),
			Logger: log.With("channel", "telegram"),
		}))
	}
	if ch.Discord.Enabled {
		chans = append(chans, channel.NewDiscord(channel.DiscordConfig{
			Token:   ch.Discord.Token,
			GuildID: ch.Discord.GuildID,
			Allow:   channel.NewAllowList(ch.Discord.AllowFrom, global),
			Logger:  log.With("channel", "discord"),
		}))
	}
	if ch.Slack.Enabled {
		chans = append(chans, channel.NewSlack(channel.SlackConfig{
			BotToken: ch.Slack.BotToken,
			AppToken: ch.Slack.AppToken,
			Allow:    channel.NewAllowList(ch.Slack.AllowFrom, global),
			Logger:   log.With("channel", "slack"),
		}))
	}
	if ch.CLI.Enabled {
		chans = append(chans, channel.NewCLI(channel.CLIConfig{Logger: log.With("channel", "cli")}))
	}
	if len(chans) == 0 {
		return nil, fmt.Errorf("no channels enabled")
	}
	return chans, nil
}

const shutdownTimeout = 10 * time.Second
